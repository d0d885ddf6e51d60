package main

import (
	"flag"
	"fmt"
	"os"

	"n64recomp/internal/modsym"
)

func cmdPack(args []string) error {
	fs := flag.NewFlagSet("pack", flag.ExitOnError)
	elfPath := fs.String("elf", "", "path to the mod ELF")
	refPath := fs.String("ref-elf", "", "path to the reference ELF")
	outPath := fs.String("out", "", "output mod symbol file")
	verbose := fs.Bool("verbose", false, "structured progress logging")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *elfPath == "" {
		return fmt.Errorf("--elf is required")
	}
	if *outPath == "" {
		return fmt.Errorf("--out is required")
	}

	res, err := ingestPath(*elfPath, *refPath, *verbose)
	if err != nil {
		return err
	}
	for _, d := range res.Diags {
		fmt.Fprintf(os.Stderr, "warning: %s\n", d)
	}

	blob := modsym.Encode(res.Context)
	if err := os.WriteFile(*outPath, blob, 0o644); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	fmt.Fprintf(os.Stderr, "wrote %s (%d bytes, %d functions)\n",
		*outPath, len(blob), len(res.Context.Functions))
	return nil
}
