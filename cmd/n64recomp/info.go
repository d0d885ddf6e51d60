package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"n64recomp/internal/ingest"
	"n64recomp/internal/recomp"
)

func cmdInfo(args []string) error {
	fs := flag.NewFlagSet("info", flag.ExitOnError)
	elfPath := fs.String("elf", "", "path to a MIPS N64 ELF")
	refPath := fs.String("ref-elf", "", "path to the reference ELF")
	jsonOut := fs.Bool("json", false, "output as JSON")
	verbose := fs.Bool("verbose", false, "structured progress logging")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *elfPath == "" {
		return fmt.Errorf("--elf is required")
	}

	res, err := ingestPath(*elfPath, *refPath, *verbose)
	if err != nil {
		return err
	}
	ctx := res.Context

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summarize(res))
	}

	if res.FoundEntrypoint {
		fmt.Printf("entrypoint: 0x%08x\n", res.Entrypoint)
	}
	fmt.Printf("sections: %d\n", len(ctx.Sections))
	for i := range ctx.Sections {
		s := &ctx.Sections[i]
		attrs := ""
		if s.Executable {
			attrs += " exec"
		}
		if s.Relocatable {
			attrs += " reloc"
		}
		if s.BssSectionIndex != recomp.NoSection {
			attrs += fmt.Sprintf(" bss=%d", s.BssSectionIndex)
		}
		fmt.Printf("  %-24s rom=0x%08x ram=0x%08x size=0x%06x relocs=%d%s\n",
			s.Name, s.RomAddr, s.RamAddr, s.Size, len(s.Relocs), attrs)
	}
	fmt.Printf("functions: %d\n", len(ctx.Functions))
	fmt.Printf("dependencies: %d\n", len(ctx.Dependencies))
	for _, dep := range ctx.Dependencies {
		fmt.Printf("  %s\n", dep)
	}
	fmt.Printf("imports=%d events=%d callbacks=%d replacements=%d hooks=%d exports=%d\n",
		len(ctx.ImportSymbols), len(ctx.EventSymbols), len(ctx.Callbacks),
		len(ctx.Replacements), len(ctx.Hooks), len(ctx.ExportedFuncs))

	for _, d := range res.Diags {
		fmt.Fprintf(os.Stderr, "warning: %s\n", d)
	}
	return nil
}

type infoSummary struct {
	Entrypoint   *uint32       `json:"entrypoint,omitempty"`
	Sections     int           `json:"sections"`
	Functions    int           `json:"functions"`
	Dependencies []string      `json:"dependencies,omitempty"`
	Imports      int           `json:"imports"`
	Events       int           `json:"events"`
	Callbacks    int           `json:"callbacks"`
	Replacements int           `json:"replacements"`
	Hooks        int           `json:"hooks"`
	Exports      int           `json:"exports"`
	Diags        []ingest.Diag `json:"diagnostics,omitempty"`
}

func summarize(res *ingest.Result) infoSummary {
	ctx := res.Context
	sum := infoSummary{
		Sections:     len(ctx.Sections),
		Functions:    len(ctx.Functions),
		Dependencies: ctx.Dependencies,
		Imports:      len(ctx.ImportSymbols),
		Events:       len(ctx.EventSymbols),
		Callbacks:    len(ctx.Callbacks),
		Replacements: len(ctx.Replacements),
		Hooks:        len(ctx.Hooks),
		Exports:      len(ctx.ExportedFuncs),
		Diags:        res.Diags,
	}
	if res.FoundEntrypoint {
		ep := res.Entrypoint
		sum.Entrypoint = &ep
	}
	return sum
}
