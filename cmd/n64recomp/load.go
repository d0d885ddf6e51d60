package main

import (
	"fmt"

	"go.uber.org/zap"

	"n64recomp/internal/elfx"
	"n64recomp/internal/ingest"
	"n64recomp/internal/recomp"
)

// ingestPath opens and ingests an ELF, optionally importing a reference ELF's
// sections and function symbols first.
func ingestPath(elfPath, refPath string, verbose bool) (*ingest.Result, error) {
	cfg := ingest.Config{UnpairedLo16Warnings: true}
	if verbose {
		log, err := zap.NewDevelopment()
		if err != nil {
			return nil, err
		}
		defer log.Sync()
		cfg.Log = log
	}

	var ref *recomp.Context
	if refPath != "" {
		rf, err := elfx.Open(refPath)
		if err != nil {
			return nil, fmt.Errorf("open reference: %w", err)
		}
		defer rf.Close()
		refRes, err := ingest.FromELF(rf, nil, cfg)
		if err != nil {
			return nil, fmt.Errorf("ingest reference: %w", err)
		}
		ref = refRes.Context
	}

	ef, err := elfx.Open(elfPath)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer ef.Close()

	res, err := ingest.FromELF(ef, ref, cfg)
	if err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}
	return res, nil
}
