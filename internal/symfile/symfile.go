// Package symfile reads TOML symbol files describing a binary's sections and
// functions, for recompiling without an ELF.
package symfile

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"n64recomp/internal/recomp"
)

var (
	ErrBadRelocType = errors.New("symfile: unknown relocation type")
	ErrOutOfBounds  = errors.New("symfile: function outside the supplied rom")
	ErrNoSection    = errors.New("symfile: address not covered by any section")
)

// File mirrors the symbol file's TOML layout.
type File struct {
	Sections []SectionEntry `toml:"sections"`
}

// SectionEntry is one [[sections]] table.
type SectionEntry struct {
	Name        string          `toml:"name"`
	Rom         uint32          `toml:"rom"`
	Vram        uint32          `toml:"vram"`
	Size        uint32          `toml:"size"`
	Relocatable bool            `toml:"relocatable"`
	Functions   []FunctionEntry `toml:"functions"`
	Relocs      []RelocEntry    `toml:"relocs"`
}

// FunctionEntry is one [[sections.functions]] table.
type FunctionEntry struct {
	Name string `toml:"name"`
	Vram uint32 `toml:"vram"`
	Size uint32 `toml:"size"`
}

// RelocEntry is one [[sections.relocs]] table. Type uses the R_MIPS_* name.
type RelocEntry struct {
	Vram       uint32 `toml:"vram"`
	Type       string `toml:"type"`
	TargetVram uint32 `toml:"target_vram"`
}

var relocTypesByName = map[string]recomp.RelocType{
	"R_MIPS_NONE":    recomp.RelocNone,
	"R_MIPS_16":      recomp.Reloc16,
	"R_MIPS_32":      recomp.Reloc32,
	"R_MIPS_REL32":   recomp.RelocRel32,
	"R_MIPS_26":      recomp.Reloc26,
	"R_MIPS_HI16":    recomp.RelocHi16,
	"R_MIPS_LO16":    recomp.RelocLo16,
	"R_MIPS_GPREL16": recomp.RelocGpRel16,
}

// FromFile reads a symbol file and builds a context over the given rom
// image. Relocation entries are only read when withRelocs is set; a context
// used purely for reference symbols does not need them.
func FromFile(path string, rom []byte, withRelocs bool) (*recomp.Context, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("symfile: read: %w", err)
	}
	var sf File
	if err := toml.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("symfile: parse %s: %w", path, err)
	}
	ctx, err := Build(&sf, rom, withRelocs)
	if err != nil {
		return nil, fmt.Errorf("symfile: %s: %w", path, err)
	}
	return ctx, nil
}

// Build constructs a context from an already-decoded symbol file.
func Build(sf *File, rom []byte, withRelocs bool) (*recomp.Context, error) {
	ctx := recomp.NewContext()
	ctx.Rom = rom

	for _, se := range sf.Sections {
		ctx.AddSection(recomp.Section{
			RomAddr:         se.Rom,
			RamAddr:         se.Vram,
			Size:            se.Size,
			Name:            se.Name,
			BssSectionIndex: recomp.NoSection,
			Executable:      len(se.Functions) > 0,
			Relocatable:     se.Relocatable,
		})
	}

	for si, se := range sf.Sections {
		for _, fe := range se.Functions {
			if fe.Size%4 != 0 {
				return nil, fmt.Errorf("function %s has unaligned size 0x%x", fe.Name, fe.Size)
			}
			romStart := se.Rom + (fe.Vram - se.Vram)
			end := uint64(romStart) + uint64(fe.Size)
			if end > uint64(len(rom)) {
				return nil, fmt.Errorf("%w: %s", ErrOutOfBounds, fe.Name)
			}
			words := make([]uint32, fe.Size/4)
			for i := range words {
				words[i] = binary.BigEndian.Uint32(rom[romStart+uint32(4*i):])
			}
			ctx.AddFunction(recomp.Function{
				Vram:         fe.Vram,
				Rom:          romStart,
				Words:        words,
				Name:         fe.Name,
				SectionIndex: si,
			})
		}

		if !withRelocs {
			continue
		}
		for _, re := range se.Relocs {
			rt, ok := relocTypesByName[re.Type]
			if !ok {
				return nil, fmt.Errorf("%w: %q", ErrBadRelocType, re.Type)
			}
			target, ok := sectionForVram(sf, re.TargetVram)
			if !ok {
				return nil, fmt.Errorf("%w: reloc target 0x%08x", ErrNoSection, re.TargetVram)
			}
			ctx.Sections[si].Relocs = append(ctx.Sections[si].Relocs, recomp.Reloc{
				Address:             re.Vram,
				TargetSectionOffset: re.TargetVram - sf.Sections[target].Vram,
				TargetSection:       recomp.NormalSection(target),
				Type:                rt,
			})
			if rt == recomp.Reloc32 {
				ctx.Sections[si].HasMips32Relocs = true
			}
		}
	}
	return ctx, nil
}

func sectionForVram(sf *File, vram uint32) (int, bool) {
	for i, se := range sf.Sections {
		if vram >= se.Vram && vram < se.Vram+se.Size {
			return i, true
		}
	}
	return 0, false
}

// DataSymsFile mirrors a data reference symbol file's TOML layout.
type DataSymsFile struct {
	Symbols []DataSymEntry `toml:"symbols"`
}

// DataSymEntry is one [[symbols]] table.
type DataSymEntry struct {
	Name string `toml:"name"`
	Vram uint32 `toml:"vram"`
}

// ReadDataReferenceSyms reads a data symbol file and registers its contents
// as reference symbols on ctx. Symbols outside every reference section are
// registered as absolute.
func ReadDataReferenceSyms(ctx *recomp.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("symfile: read: %w", err)
	}
	var df DataSymsFile
	if err := toml.Unmarshal(data, &df); err != nil {
		return fmt.Errorf("symfile: parse %s: %w", path, err)
	}

	for _, sym := range df.Symbols {
		section := recomp.AbsoluteSection
		for i := 0; i < ctx.NumReferenceSections(); i++ {
			rs := ctx.GetReferenceSection(i)
			if sym.Vram >= rs.RamAddr && sym.Vram < rs.RamAddr+rs.Size {
				section = recomp.NormalSection(i)
				break
			}
		}
		if !ctx.AddReferenceSymbol(sym.Name, section, sym.Vram, false) {
			return fmt.Errorf("symfile: adding reference symbol %s failed", sym.Name)
		}
	}
	return nil
}
