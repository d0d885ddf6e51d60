package ingest

import "fmt"

// DiagKind classifies a non-fatal ingestion issue.
type DiagKind string

const (
	DiagUnpairedLo16  DiagKind = "unpaired_lo16"
	DiagUnknownReloc  DiagKind = "unknown_reloc"
	DiagMissingSymbol DiagKind = "missing_symbol"
	DiagZeroSize      DiagKind = "zero_size"
	DiagBadSection    DiagKind = "bad_section"
)

// Diag records a non-fatal issue encountered during ingestion.
type Diag struct {
	Vram uint32   `json:"vram"`
	Kind DiagKind `json:"kind"`
	Msg  string   `json:"msg"`
}

func (d Diag) String() string {
	return fmt.Sprintf("[%s] 0x%08x: %s", d.Kind, d.Vram, d.Msg)
}

// Diags accumulates diagnostics.
type Diags struct {
	items []Diag
}

func (d *Diags) Add(vram uint32, kind DiagKind, msg string) {
	d.items = append(d.items, Diag{Vram: vram, Kind: kind, Msg: msg})
}

func (d *Diags) Addf(vram uint32, kind DiagKind, format string, args ...any) {
	d.items = append(d.items, Diag{Vram: vram, Kind: kind, Msg: fmt.Sprintf(format, args...)})
}

func (d *Diags) Items() []Diag { return d.items }
func (d *Diags) Len() int      { return len(d.items) }
