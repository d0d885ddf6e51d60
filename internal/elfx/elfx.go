// Package elfx provides ELF loading helpers for MIPS N64 binaries.
package elfx

import (
	"debug/elf"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

var (
	ErrNotELF       = errors.New("elfx: not an ELF file")
	ErrNotMIPS      = errors.New("elfx: not MIPS (EM_MIPS)")
	ErrNotBigEndian = errors.New("elfx: not big-endian")
	ErrNot32Bit     = errors.New("elfx: not 32-bit ELF")
	ErrBadType      = errors.New("elfx: not an executable or relocatable object")
	ErrNoSymtab     = errors.New("elfx: no symbol table")
	ErrNoSymbol     = errors.New("elfx: symbol not found")
	ErrNoSection    = errors.New("elfx: no section covers address")
)

// File wraps a debug/elf.File with convenience methods for N64 recompilation.
type File struct {
	ELF  *elf.File
	raw  io.ReaderAt
	size int64
}

// Open opens an ELF file and validates it is a 32-bit big-endian MIPS
// executable or relocatable object.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("elfx: open: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("elfx: stat: %w", err)
	}

	ef, err := elf.NewFile(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %v", ErrNotELF, err)
	}
	xf, err := wrap(ef, f, info.Size())
	if err != nil {
		ef.Close()
		f.Close()
		return nil, err
	}
	return xf, nil
}

// New validates an already-parsed ELF image. Used by tests and in-memory
// ingestion.
func New(ef *elf.File, raw io.ReaderAt, size int64) (*File, error) {
	return wrap(ef, raw, size)
}

func wrap(ef *elf.File, raw io.ReaderAt, size int64) (*File, error) {
	if ef.Class != elf.ELFCLASS32 {
		return nil, ErrNot32Bit
	}
	if ef.Machine != elf.EM_MIPS {
		return nil, ErrNotMIPS
	}
	if ef.ByteOrder != binary.BigEndian {
		return nil, ErrNotBigEndian
	}
	if ef.Type != elf.ET_EXEC && ef.Type != elf.ET_REL {
		return nil, ErrBadType
	}
	return &File{ELF: ef, raw: raw, size: size}, nil
}

// Close releases resources.
func (f *File) Close() error {
	return f.ELF.Close()
}

// FileSize returns the size of the underlying file.
func (f *File) FileSize() int64 { return f.size }

// Entry returns the ELF entrypoint address, 0 for relocatable objects.
func (f *File) Entry() uint32 { return uint32(f.ELF.Entry) }

// AllocSections returns the sections that occupy memory at run time, paired
// with their section header indices, in header order.
func (f *File) AllocSections() []SectionInfo {
	var out []SectionInfo
	for i, s := range f.ELF.Sections {
		if s.Flags&elf.SHF_ALLOC != 0 {
			out = append(out, SectionInfo{Index: i, Section: s})
		}
	}
	return out
}

// SectionInfo pairs a section with its header index.
type SectionInfo struct {
	Index   int
	Section *elf.Section
}

// Symbols returns the static symbol table.
func (f *File) Symbols() ([]elf.Symbol, error) {
	syms, err := f.ELF.Symbols()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoSymtab, err)
	}
	return syms, nil
}

// Symbol looks up a symbol by exact name. Returns its value, size and
// section header index.
func (f *File) Symbol(name string) (value uint32, size uint32, section elf.SectionIndex, err error) {
	syms, err := f.Symbols()
	if err != nil {
		return 0, 0, 0, err
	}
	for _, s := range syms {
		if s.Name == name {
			return uint32(s.Value), uint32(s.Size), s.Section, nil
		}
	}
	return 0, 0, 0, fmt.Errorf("%w: %s", ErrNoSymbol, name)
}

// Rel is one parsed SHT_REL entry.
type Rel struct {
	Offset uint32
	Type   uint8 // R_MIPS_* constant
	Sym    int   // symbol table index
}

// RelsFor returns the parsed relocations of the SHT_REL section applying to
// the section at header index target, or nil when it has none.
func (f *File) RelsFor(target int) ([]Rel, error) {
	for _, s := range f.ELF.Sections {
		if s.Type != elf.SHT_REL || int(s.Info) != target {
			continue
		}
		data, err := s.Data()
		if err != nil {
			return nil, fmt.Errorf("elfx: read %s: %w", s.Name, err)
		}
		if len(data)%8 != 0 {
			return nil, fmt.Errorf("elfx: %s: truncated SHT_REL payload", s.Name)
		}
		rels := make([]Rel, 0, len(data)/8)
		for off := 0; off+8 <= len(data); off += 8 {
			addr := binary.BigEndian.Uint32(data[off:])
			info := binary.BigEndian.Uint32(data[off+4:])
			rels = append(rels, Rel{
				Offset: addr,
				Type:   uint8(info & 0xFF),
				Sym:    int(info >> 8),
			})
		}
		return rels, nil
	}
	return nil, nil
}

// SectionForVram returns the header index of the allocated section covering
// vram.
func (f *File) SectionForVram(vram uint32) (int, error) {
	for _, si := range f.AllocSections() {
		s := si.Section
		if uint64(vram) >= s.Addr && uint64(vram) < s.Addr+s.Size {
			return si.Index, nil
		}
	}
	return 0, fmt.Errorf("%w: vram 0x%08x", ErrNoSection, vram)
}

// IsBssName reports whether name carries the given bss suffix (".bss" when
// suffix is empty).
func IsBssName(name, suffix string) bool {
	if suffix == "" {
		suffix = ".bss"
	}
	return strings.HasSuffix(name, suffix)
}

// ByteOrder returns the ELF byte order.
func (f *File) ByteOrder() binary.ByteOrder {
	return f.ELF.ByteOrder
}
