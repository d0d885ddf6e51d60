package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "info":
		err = cmdInfo(os.Args[2:])
	case "pack":
		err = cmdPack(os.Args[2:])
	case "syms":
		err = cmdSyms(os.Args[2:])
	case "graph":
		err = cmdGraph(os.Args[2:])
	case "help", "-h", "--help":
		usage()
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `n64recomp — N64 recompiler symbol and mod tooling

Usage:
  n64recomp info  --elf <path>                    Ingest an ELF and print its program model
  n64recomp pack  --elf <path> --out <file>       Ingest a mod ELF and write its mod symbols
  n64recomp syms  --syms <file> --bin <file>      Parse a mod symbol file against its binary
  n64recomp graph --syms <file> --bin <file>      Emit the mod dependency graph as DOT

Flags:
  --elf <path>        Path to a MIPS N64 ELF
  --ref-elf <path>    Path to the reference (base game) ELF
  --syms <file>       Path to a mod symbol file
  --bin <file>        Path to the mod binary the symbol file describes
  --out <file>        Output file (stdout when omitted)
  --json              Output as JSON
  --verbose           Structured progress logging
`)
}
