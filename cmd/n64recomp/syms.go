package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"n64recomp/internal/modsym"
)

func cmdSyms(args []string) error {
	fs := flag.NewFlagSet("syms", flag.ExitOnError)
	symsPath := fs.String("syms", "", "path to a mod symbol file")
	binPath := fs.String("bin", "", "path to the mod binary")
	jsonOut := fs.Bool("json", false, "output as JSON")

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

	if *jsonOut {
		type funcOut struct {
			Name  string `json:"name"`
			Vram  uint32 `json:"vram"`
			Rom   uint32 `json:"rom"`
			Words int    `json:"words"`
		}
		var funcs []funcOut
		for i := range ctx.Functions {
			fn := &ctx.Functions[i]
			funcs = append(funcs, funcOut{Name: fn.Name, Vram: fn.Vram, Rom: fn.Rom, Words: len(fn.Words)})
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(funcs)
	}

	fmt.Printf("sections: %d\n", len(ctx.Sections))
	fmt.Printf("functions: %d\n", len(ctx.Functions))
	for i := range ctx.Functions {
		fn := &ctx.Functions[i]
		fmt.Printf("  %-32s vram=0x%08x rom=0x%08x words=%d\n",
			fn.Name, fn.Vram, fn.Rom, len(fn.Words))
	}
	fmt.Printf("dependencies: %v\n", ctx.Dependencies)
	fmt.Printf("imports=%d events=%d callbacks=%d replacements=%d hooks=%d exports=%d\n",
		len(ctx.ImportSymbols), len(ctx.EventSymbols), len(ctx.Callbacks),
		len(ctx.Replacements), len(ctx.Hooks), len(ctx.ExportedFuncs))
	return nil
}
