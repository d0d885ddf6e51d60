package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"n64recomp/internal/modgraph"
	"n64recomp/internal/modsym"
)

func cmdGraph(args []string) error {
	fs := flag.NewFlagSet("graph", flag.ExitOnError)
	symsPath := fs.String("syms", "", "path to a mod symbol file")
	binPath := fs.String("bin", "", "path to the mod binary")
	name := fs.String("name", "", "mod name for the graph (defaults to the symbol file name)")
	outPath := fs.String("out", "", "output DOT file (stdout when omitted)")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *symsPath == "" || *binPath == "" {
		return fmt.Errorf("--syms and --bin are required")
	}

	data, err := os.ReadFile(*symsPath)
	if err != nil {
		return fmt.Errorf("read syms: %w", err)
	}
	bin, err := os.ReadFile(*binPath)
	if err != nil {
		return fmt.Errorf("read bin: %w", err)
	}
	ctx, err := modsym.Parse(data, bin, nil)
	if err != nil {
		return fmt.Errorf("parse: %w", err)
	}

	modName := *name
	if modName == "" {
		base := filepath.Base(*symsPath)
		modName = strings.TrimSuffix(base, filepath.Ext(base))
	}

	dot := modgraph.DOT(modName, ctx)
	if *outPath == "" {
		fmt.Print(dot)
		return nil
	}
	if err := os.WriteFile(*outPath, []byte(dot), 0o644); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	fmt.Fprintf(os.Stderr, "wrote %s\n", *outPath)
	return nil
}
