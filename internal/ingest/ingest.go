// Package ingest builds a recomp.Context from a MIPS N64 ELF, including the
// mod declaration sections that populate the dependency and event graph.
package ingest

import (
	"debug/elf"
	"encoding/binary"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"n64recomp/internal/elfx"
	"n64recomp/internal/recomp"
)

// Config controls ELF ingestion.
type Config struct {
	// BssSectionSuffix identifies split bss sections; ".bss" when empty.
	BssSectionSuffix string
	// ManuallySizedFuncs overrides symbol-table sizes by function name.
	ManuallySizedFuncs map[string]uint32
	// RelocatableSections names the sections to mark relocatable.
	RelocatableSections map[string]struct{}
	AllSectionsRelocatable bool
	// UnpairedLo16Warnings emits a diagnostic for LO16 relocations with no
	// preceding HI16 on the same symbol.
	UnpairedLo16Warnings bool
	// Known flags specially treated functions.
	Known *recomp.KnownFuncs
	// Log receives structured progress output; a nop logger when nil.
	Log *zap.Logger
}

func (c Config) logger() *zap.Logger {
	if c.Log != nil {
		return c.Log
	}
	return zap.NewNop()
}

// Result is a populated context plus everything ingestion recovered beside
// it.
type Result struct {
	Context         *recomp.Context
	Entrypoint      uint32
	FoundEntrypoint bool
	DataSyms        recomp.DataSymbolMap
	Diags           []Diag
}

// FromELF ingests an opened ELF into a fresh context. ref supplies the
// reference symbols consulted by mod declaration sections; it may be nil for
// a plain (non-mod) binary.
func FromELF(ef *elfx.File, ref *recomp.Context, cfg Config) (*Result, error) {
	log := cfg.logger()
	var diags Diags

	ctx := recomp.NewContext()
	if ref != nil {
		if !ctx.ImportReferenceContext(ref) {
			return nil, fmt.Errorf("ingest: importing reference context failed")
		}
	}

	res := &Result{Context: ctx, DataSyms: make(recomp.DataSymbolMap)}
	if ef.ELF.Type == elf.ET_EXEC {
		res.Entrypoint = ef.Entry()
		res.FoundEntrypoint = true
	}

	// Pass 1: sections.
	elfToCtx := make(map[int]int)
	for _, si := range ef.AllocSections() {
		s := si.Section
		sec := recomp.Section{
			RamAddr:         uint32(s.Addr),
			Size:            uint32(s.Size),
			Name:            s.Name,
			BssSectionIndex: recomp.NoSection,
			Executable:      s.Flags&elf.SHF_EXECINSTR != 0,
		}
		if s.Type != elf.SHT_NOBITS {
			sec.RomAddr = uint32(s.Offset)
		}
		if cfg.AllSectionsRelocatable {
			sec.Relocatable = true
		} else if _, ok := cfg.RelocatableSections[s.Name]; ok {
			sec.Relocatable = true
		}
		elfToCtx[si.Index] = ctx.AddSection(sec)
	}

	// Pass 2: bss twins, matched by name.
	for _, si := range ef.AllocSections() {
		s := si.Section
		if s.Type != elf.SHT_NOBITS || !elfx.IsBssName(s.Name, cfg.BssSectionSuffix) {
			continue
		}
		suffix := cfg.BssSectionSuffix
		if suffix == "" {
			suffix = ".bss"
		}
		dataName := strings.TrimSuffix(s.Name, suffix)
		bssIdx := elfToCtx[si.Index]
		for di, dsec := range ctx.Sections {
			if dsec.Name == dataName && di != bssIdx {
				ctx.Sections[di].BssSectionIndex = bssIdx
				ctx.Sections[di].BssSize = uint32(s.Size)
				ctx.BssSectionToSection[bssIdx] = di
				break
			}
		}
	}

	// Pass 3: function and data symbols.
	syms, err := ef.Symbols()
	if err != nil {
		return nil, err
	}
	sectionData := make(map[int][]byte)
	for _, sym := range syms {
		elfIdx := int(sym.Section)
		ctxIdx, ok := elfToCtx[elfIdx]
		if !ok {
			continue
		}
		switch elf.ST_TYPE(sym.Info) {
		case elf.STT_FUNC:
			if err := ingestFunction(ef, ctx, sym, ctxIdx, elfIdx, sectionData, cfg, &diags); err != nil {
				return nil, err
			}
		case elf.STT_OBJECT, elf.STT_NOTYPE:
			if sym.Name != "" {
				res.DataSyms[ctxIdx] = append(res.DataSyms[ctxIdx], recomp.DataSymbol{
					Vram: uint32(sym.Value),
					Name: sym.Name,
				})
			}
		}
	}

	// Pass 4: relocations.
	for _, si := range ef.AllocSections() {
		ctxIdx := elfToCtx[si.Index]
		if err := ingestRelocs(ef, ctx, syms, si.Index, ctxIdx, elfToCtx, cfg, &diags); err != nil {
			return nil, err
		}
	}

	// Pass 5: mod declaration sections.
	if err := processModSections(ctx, &diags); err != nil {
		return nil, err
	}

	res.Diags = diags.Items()
	log.Info("elf ingested",
		zap.Int("sections", len(ctx.Sections)),
		zap.Int("functions", len(ctx.Functions)),
		zap.Int("dependencies", len(ctx.Dependencies)),
		zap.Int("diagnostics", diags.Len()))
	return res, nil
}

func ingestFunction(ef *elfx.File, ctx *recomp.Context, sym elf.Symbol, ctxIdx, elfIdx int, sectionData map[int][]byte, cfg Config, diags *Diags) error {
	sec := &ctx.Sections[ctxIdx]
	vram := uint32(sym.Value)
	size := uint32(sym.Size)
	if manual, ok := cfg.ManuallySizedFuncs[sym.Name]; ok {
		size = manual
	}
	if size == 0 {
		// Zero-sized symbols in the manual patch window are placeholders,
		// not functions.
		if !recomp.IsManualPatchSymbol(vram) {
			diags.Addf(vram, DiagZeroSize, "function %s has no size", sym.Name)
		}
		return nil
	}
	if size%4 != 0 {
		diags.Addf(vram, DiagZeroSize, "function %s size 0x%x not word aligned", sym.Name, size)
		return nil
	}

	data, ok := sectionData[elfIdx]
	if !ok {
		var err error
		data, err = ef.ELF.Sections[elfIdx].Data()
		if err != nil {
			return fmt.Errorf("ingest: read section %s: %w", sec.Name, err)
		}
		sectionData[elfIdx] = data
	}
	start := vram - sec.RamAddr
	if uint64(start)+uint64(size) > uint64(len(data)) {
		diags.Addf(vram, DiagBadSection, "function %s extends past section %s", sym.Name, sec.Name)
		return nil
	}

	words := make([]uint32, size/4)
	for i := range words {
		words[i] = binary.BigEndian.Uint32(data[start+uint32(4*i):])
	}

	ctx.AddFunction(recomp.Function{
		Vram:          vram,
		Rom:           sec.RomAddr + start,
		Words:         words,
		Name:          sym.Name,
		SectionIndex:  ctxIdx,
		Ignored:       cfg.Known.IsIgnored(sym.Name),
		Reimplemented: cfg.Known.IsReimplemented(sym.Name),
	})
	return nil
}

func ingestRelocs(ef *elfx.File, ctx *recomp.Context, syms []elf.Symbol, elfIdx, ctxIdx int, elfToCtx map[int]int, cfg Config, diags *Diags) error {
	rels, err := ef.RelsFor(elfIdx)
	if err != nil {
		return err
	}
	if len(rels) == 0 {
		return nil
	}
	sec := &ctx.Sections[ctxIdx]

	// HI16 relocations seen, by symbol, with no LO16 yet.
	pendingHi16 := make(map[int]bool)
	seen := make(map[recomp.Reloc]struct{})
	for _, rel := range rels {
		if rel.Type > uint8(recomp.RelocGpRel16) {
			diags.Addf(rel.Offset, DiagUnknownReloc, "relocation type %d in %s", rel.Type, sec.Name)
			continue
		}
		rt := recomp.RelocType(rel.Type)
		if rt == recomp.RelocNone {
			continue
		}
		// ELF symbol index 0 is the null symbol.
		if rel.Sym <= 0 || rel.Sym > len(syms) {
			diags.Addf(rel.Offset, DiagMissingSymbol, "relocation names symbol %d out of range", rel.Sym)
			continue
		}
		sym := syms[rel.Sym-1]

		out := recomp.Reloc{
			Address: rel.Offset,
			Type:    rt,
		}
		if sym.Section == elf.SHN_UNDEF {
			// Symbol lives in another module; resolve through the
			// reference table.
			ref, ok := ctx.FindReferenceSymbol(sym.Name)
			if !ok {
				diags.Addf(rel.Offset, DiagMissingSymbol, "undefined symbol %s", sym.Name)
				continue
			}
			out.ReferenceSymbol = true
			out.SymbolIndex = ref.SymbolIndex
			out.TargetSection = ref.Section
			out.TargetSectionOffset = ctx.GetReferenceSymbol(ref).SectionOffset
		} else if elf.ST_TYPE(sym.Info) == elf.STT_SECTION || sym.Section != elf.SHN_ABS {
			targetCtx, ok := elfToCtx[int(sym.Section)]
			if !ok {
				diags.Addf(rel.Offset, DiagBadSection, "relocation targets non-allocated section for %s", sym.Name)
				continue
			}
			out.TargetSection = recomp.NormalSection(targetCtx)
			// Symbol values are absolute in executables and
			// section-relative in relocatable objects.
			off := uint32(sym.Value)
			if ef.ELF.Type == elf.ET_EXEC {
				off -= ctx.Sections[targetCtx].RamAddr
			}
			out.TargetSectionOffset = off
		} else {
			out.TargetSection = recomp.AbsoluteSection
			out.TargetSectionOffset = uint32(sym.Value)
		}

		if _, dup := seen[out]; dup {
			continue
		}
		seen[out] = struct{}{}

		switch rt {
		case recomp.Reloc32:
			sec.HasMips32Relocs = true
		case recomp.RelocHi16:
			pendingHi16[rel.Sym] = true
		case recomp.RelocLo16:
			if !pendingHi16[rel.Sym] && cfg.UnpairedLo16Warnings {
				diags.Addf(rel.Offset, DiagUnpairedLo16, "LO16 against %s with no preceding HI16", sym.Name)
			}
		}
		sec.Relocs = append(sec.Relocs, out)
	}
	return nil
}

// ensureDependency registers depName if this is its first use and returns
// its index.
func ensureDependency(ctx *recomp.Context, depName string) int {
	if idx, ok := ctx.FindDependency(depName); ok {
		return idx
	}
	ctx.AddDependency(depName)
	idx, _ := ctx.FindDependency(depName)
	return idx
}

// processModSections walks the functions placed in .recomp_* sections and
// turns them into the mod's replacement, export, event, import, callback and
// hook declarations.
func processModSections(ctx *recomp.Context, diags *Diags) error {
	for fi := range ctx.Functions {
		fn := &ctx.Functions[fi]
		secName := ctx.Sections[fn.SectionIndex].Name
		switch {
		case secName == recomp.PatchSectionName, secName == recomp.ForcedPatchSectionName:
			ref, ok := ctx.FindRegularReferenceSymbol(fn.Name)
			if !ok {
				diags.Addf(fn.Vram, DiagMissingSymbol, "patch %s does not match any reference symbol", fn.Name)
				continue
			}
			sym := ctx.GetReferenceSymbol(ref)
			rom := ctx.ReferenceSectionRom(ref.Section)
			if !rom.Valid {
				diags.Addf(fn.Vram, DiagBadSection, "patch %s targets a section with no rom address", fn.Name)
				continue
			}
			var flags recomp.ReplacementFlags
			if secName == recomp.ForcedPatchSectionName {
				flags |= recomp.ReplacementForce
			}
			ctx.Replacements = append(ctx.Replacements, recomp.FunctionReplacement{
				FuncIndex:           uint32(fi),
				OriginalSectionVrom: rom.Addr,
				OriginalVram:        ctx.ReferenceSectionVram(ref.Section) + sym.SectionOffset,
				Flags:               flags,
			})

		case secName == recomp.ExportSectionName:
			ctx.AddExportedFunction(fi)

		case secName == recomp.EventSectionName:
			ctx.AddEventSymbol(fn.Name)

		case strings.HasPrefix(secName, recomp.ImportSectionPrefix):
			depName := secName[len(recomp.ImportSectionPrefix):]
			if !recomp.ValidateModID(depName) {
				diags.Addf(fn.Vram, DiagBadSection, "import section %q has invalid mod id", secName)
				continue
			}
			ctx.AddImportSymbol(fn.Name, ensureDependency(ctx, depName))

		case strings.HasPrefix(secName, recomp.CallbackSectionPrefix):
			// The suffix is <dependency>.<event>; mod ids cannot contain
			// dots, so the first dot splits them.
			suffix := secName[len(recomp.CallbackSectionPrefix):]
			dot := strings.IndexByte(suffix, '.')
			if dot <= 0 || dot == len(suffix)-1 {
				diags.Addf(fn.Vram, DiagBadSection, "callback section %q is missing an event name", secName)
				continue
			}
			depName, eventName := suffix[:dot], suffix[dot+1:]
			if !recomp.ValidateModID(depName) {
				diags.Addf(fn.Vram, DiagBadSection, "callback section %q has invalid mod id", secName)
				continue
			}
			evIdx, ok := ctx.AddDependencyEvent(eventName, ensureDependency(ctx, depName))
			if !ok {
				diags.Addf(fn.Vram, DiagBadSection, "callback %s: bad dependency %s", fn.Name, depName)
				continue
			}
			ctx.AddCallback(evIdx, fi)

		case strings.HasPrefix(secName, recomp.HookReturnSectionPrefix),
			strings.HasPrefix(secName, recomp.HookSectionPrefix):
			atReturn := strings.HasPrefix(secName, recomp.HookReturnSectionPrefix)
			prefix := recomp.HookSectionPrefix
			if atReturn {
				prefix = recomp.HookReturnSectionPrefix
			}
			target := secName[len(prefix):]
			ref, ok := ctx.FindRegularReferenceSymbol(target)
			if !ok {
				diags.Addf(fn.Vram, DiagMissingSymbol, "hook %s targets unknown function %s", fn.Name, target)
				continue
			}
			sym := ctx.GetReferenceSymbol(ref)
			rom := ctx.ReferenceSectionRom(ref.Section)
			if !rom.Valid {
				diags.Addf(fn.Vram, DiagBadSection, "hook %s targets a section with no rom address", fn.Name)
				continue
			}
			var flags recomp.HookFlags
			if atReturn {
				flags |= recomp.HookAtReturn
			}
			ctx.Hooks = append(ctx.Hooks, recomp.FunctionHook{
				FuncIndex:           uint32(fi),
				OriginalSectionVrom: rom.Addr,
				OriginalVram:        ctx.ReferenceSectionVram(ref.Section) + sym.SectionOffset,
				Flags:               flags,
			})
		}
	}
	return nil
}
