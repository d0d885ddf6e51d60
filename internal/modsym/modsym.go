// Package modsym serializes a resolved recomp.Context to and from the
// versioned mod symbol binary format, so a mod's resolved state can be
// reloaded without re-parsing its ELF.
package modsym

import (
	"bytes"
	"encoding/binary"
	"errors"
	"sort"

	"n64recomp/internal/recomp"
)

// Mod symbol container layout (all fields little-endian):
//
//	+0x00: magic   [8]byte "N64RSYMS"
//	+0x08: version uint32
//	+0x0c: payload (version-specific)
//
// The payload stores logical data only: function instruction words are
// re-read from the mod binary at parse time, which both keeps the blob
// independent of the binary copy currently loaded and makes out-of-bounds
// function records detectable.
var magic = [8]byte{'N', '6', '4', 'R', 'S', 'Y', 'M', 'S'}

// FormatVersion is the current (and only) payload version.
const FormatVersion = 1

var (
	ErrNotSymbolFile       = errors.New("modsym: not a mod symbol file")
	ErrUnsupportedVersion  = errors.New("modsym: unsupported symbol file version")
	ErrCorrupt             = errors.New("modsym: corrupt symbol file")
	ErrFunctionOutOfBounds = errors.New("modsym: function outside the supplied binary")
	// ErrUnknownSection means a section recorded in the blob has no entry in
	// the caller's vrom map, so the blob does not belong to this binary.
	ErrUnknownSection = errors.New("modsym: section vrom not present in binary")
)

// Section flag bits.
const (
	secExecutable = 1 << iota
	secRelocatable
	secFixedAddress
	secGloballyLoaded
	secHasMips32Relocs
	secHasGot
)

// Function flag bits.
const (
	fnIgnored = 1 << iota
	fnReimplemented
	fnStubbed
)

// Encode serializes ctx into a self-contained mod symbol blob.
func Encode(ctx *recomp.Context) []byte {
	w := &writer{}
	w.bytes(magic[:])
	w.u32(FormatVersion)

	w.u32(uint32(len(ctx.Sections)))
	for si := range ctx.Sections {
		s := &ctx.Sections[si]
		w.u32(s.RomAddr)
		w.u32(s.RamAddr)
		w.u32(s.Size)
		w.u32(s.BssSize)
		w.i32(int32(s.BssSectionIndex))
		var flags uint8
		if s.Executable {
			flags |= secExecutable
		}
		if s.Relocatable {
			flags |= secRelocatable
		}
		if s.FixedAddress {
			flags |= secFixedAddress
		}
		if s.GloballyLoaded {
			flags |= secGloballyLoaded
		}
		if s.HasMips32Relocs {
			flags |= secHasMips32Relocs
		}
		if s.GotRamAddr.Valid {
			flags |= secHasGot
		}
		w.u8(flags)
		w.u32(s.GotRamAddr.Addr)
		w.str(s.Name)
		w.u32(uint32(len(s.Relocs)))
		for _, r := range s.Relocs {
			w.u32(r.Address)
			w.u32(r.TargetSectionOffset)
			w.u32(uint32(r.SymbolIndex))
			w.sectionRef(r.TargetSection)
			w.u8(uint8(r.Type))
			w.bool(r.ReferenceSymbol)
		}
	}

	w.u32(uint32(len(ctx.Functions)))
	for fi := range ctx.Functions {
		fn := &ctx.Functions[fi]
		w.u32(fn.Vram)
		w.u32(fn.Rom)
		w.u32(uint32(4 * len(fn.Words)))
		w.u32(uint32(fn.SectionIndex))
		var flags uint8
		if fn.Ignored {
			flags |= fnIgnored
		}
		if fn.Reimplemented {
			flags |= fnReimplemented
		}
		if fn.Stubbed {
			flags |= fnStubbed
		}
		w.u8(flags)
		w.str(fn.Name)
		w.u32(uint32(len(fn.FunctionHooks)))
		for _, off := range sortedHookOffsets(fn.FunctionHooks) {
			w.i32(off)
			w.str(fn.FunctionHooks[off])
		}
	}

	w.u32(uint32(ctx.NumReferenceSections()))
	for i := 0; i < ctx.NumReferenceSections(); i++ {
		rs := ctx.GetReferenceSection(i)
		w.u32(rs.RomAddr)
		w.u32(rs.RamAddr)
		w.u32(rs.Size)
		w.bool(rs.Relocatable)
	}

	w.u32(uint32(ctx.NumRegularReferenceSymbols()))
	for i := 0; i < ctx.NumRegularReferenceSymbols(); i++ {
		sym := ctx.GetRegularReferenceSymbol(i)
		w.str(sym.Name)
		w.sectionRef(sym.Section)
		w.u32(sym.SectionOffset)
		w.bool(sym.IsFunction)
	}

	w.u32(uint32(len(ctx.Dependencies)))
	for _, dep := range ctx.Dependencies {
		w.str(dep)
	}

	w.u32(uint32(len(ctx.ImportSymbols)))
	for _, imp := range ctx.ImportSymbols {
		w.str(imp.Name)
		w.u32(uint32(imp.DependencyIndex))
	}

	w.u32(uint32(len(ctx.DependencyEvents)))
	for _, ev := range ctx.DependencyEvents {
		w.u32(uint32(ev.DependencyIndex))
		w.str(ev.EventName)
	}

	w.u32(uint32(len(ctx.EventSymbols)))
	for _, ev := range ctx.EventSymbols {
		w.str(ev.Name)
	}

	w.u32(uint32(len(ctx.Callbacks)))
	for _, cb := range ctx.Callbacks {
		w.u32(uint32(cb.FunctionIndex))
		w.u32(uint32(cb.DependencyEventIndex))
	}

	w.u32(uint32(len(ctx.Replacements)))
	for _, rep := range ctx.Replacements {
		w.u32(rep.FuncIndex)
		w.u32(rep.OriginalSectionVrom)
		w.u32(rep.OriginalVram)
		w.u32(uint32(rep.Flags))
	}

	w.u32(uint32(len(ctx.Hooks)))
	for _, h := range ctx.Hooks {
		w.u32(h.FuncIndex)
		w.u32(h.OriginalSectionVrom)
		w.u32(h.OriginalVram)
		w.u32(uint32(h.Flags))
	}

	w.u32(uint32(len(ctx.ExportedFuncs)))
	for _, idx := range ctx.ExportedFuncs {
		w.u32(uint32(idx))
	}

	return w.buf.Bytes()
}

// Parse deserializes a mod symbol blob. binary is the mod's own bytes, used
// to re-read function words; sectionsByVrom re-anchors the blob's sections
// to the binary copy currently loaded (nil skips the check). On error the
// returned context is always nil, never partially populated.
func Parse(data, bin []byte, sectionsByVrom map[uint32]int) (*recomp.Context, error) {
	r := &reader{data: data}

	var m [8]byte
	r.bytes(m[:])
	if r.err != nil || m != magic {
		return nil, ErrNotSymbolFile
	}
	version := r.u32()
	if r.err != nil {
		return nil, ErrNotSymbolFile
	}
	if version != FormatVersion {
		return nil, ErrUnsupportedVersion
	}

	ctx := recomp.NewContext()

	numSections := r.count(33) // fixed per-section bytes
	for i := 0; i < numSections; i++ {
		var s recomp.Section
		s.RomAddr = r.u32()
		s.RamAddr = r.u32()
		s.Size = r.u32()
		s.BssSize = r.u32()
		s.BssSectionIndex = int(r.i32())
		flags := r.u8()
		got := r.u32()
		s.Name = r.str()
		s.Executable = flags&secExecutable != 0
		s.Relocatable = flags&secRelocatable != 0
		s.FixedAddress = flags&secFixedAddress != 0
		s.GloballyLoaded = flags&secGloballyLoaded != 0
		s.HasMips32Relocs = flags&secHasMips32Relocs != 0
		if flags&secHasGot != 0 {
			s.GotRamAddr = recomp.SomeAddr(got)
		}

		numRelocs := r.count(15)
		for j := 0; j < numRelocs; j++ {
			var rel recomp.Reloc
			rel.Address = r.u32()
			rel.TargetSectionOffset = r.u32()
			rel.SymbolIndex = int(r.u32())
			rel.TargetSection = r.sectionRef()
			rel.Type = recomp.RelocType(r.u8())
			rel.ReferenceSymbol = r.bool()
			s.Relocs = append(s.Relocs, rel)
		}
		if r.err != nil {
			return nil, ErrCorrupt
		}
		if sectionsByVrom != nil {
			if _, ok := sectionsByVrom[s.RomAddr]; !ok {
				return nil, ErrUnknownSection
			}
		}
		if s.BssSectionIndex >= 0 {
			ctx.BssSectionToSection[s.BssSectionIndex] = len(ctx.Sections)
		}
		ctx.AddSection(s)
	}

	numFuncs := r.count(25)
	for i := 0; i < numFuncs; i++ {
		var fn recomp.Function
		fn.Vram = r.u32()
		fn.Rom = r.u32()
		size := r.u32()
		fn.SectionIndex = int(r.u32())
		flags := r.u8()
		fn.Name = r.str()
		fn.Ignored = flags&fnIgnored != 0
		fn.Reimplemented = flags&fnReimplemented != 0
		fn.Stubbed = flags&fnStubbed != 0

		numHooks := r.count(8)
		for j := 0; j < numHooks; j++ {
			off := r.i32()
			name := r.str()
			if fn.FunctionHooks == nil {
				fn.FunctionHooks = make(map[int32]string)
			}
			fn.FunctionHooks[off] = name
		}
		if r.err != nil {
			return nil, ErrCorrupt
		}
		if fn.SectionIndex < 0 || fn.SectionIndex >= len(ctx.Sections) {
			return nil, ErrCorrupt
		}
		if size%4 != 0 {
			return nil, ErrCorrupt
		}
		end := uint64(fn.Rom) + uint64(size)
		if end > uint64(len(bin)) {
			return nil, ErrFunctionOutOfBounds
		}
		fn.Words = make([]uint32, size/4)
		for w := range fn.Words {
			// N64 ROMs store words big-endian.
			fn.Words[w] = binary.BigEndian.Uint32(bin[int(fn.Rom)+4*w:])
		}
		ctx.AddFunction(fn)
	}

	numRefSections := r.count(13)
	for i := 0; i < numRefSections; i++ {
		var rs recomp.ReferenceSection
		rs.RomAddr = r.u32()
		rs.RamAddr = r.u32()
		rs.Size = r.u32()
		rs.Relocatable = r.bool()
		if r.err != nil {
			return nil, ErrCorrupt
		}
		ctx.AddReferenceSection(rs)
	}

	numRefSyms := r.count(14)
	for i := 0; i < numRefSyms; i++ {
		name := r.str()
		ref := r.sectionRef()
		offset := r.u32()
		isFunc := r.bool()
		if r.err != nil {
			return nil, ErrCorrupt
		}
		var vram uint32
		switch ref.Kind {
		case recomp.SectionAbsolute:
			vram = offset
		case recomp.SectionNormal:
			if ref.Index < 0 || ref.Index >= ctx.NumReferenceSections() {
				return nil, ErrCorrupt
			}
			vram = ctx.GetReferenceSection(ref.Index).RamAddr + offset
		default:
			return nil, ErrCorrupt
		}
		if !ctx.AddReferenceSymbol(name, ref, vram, isFunc) {
			return nil, ErrCorrupt
		}
	}

	numDeps := r.count(4)
	for i := 0; i < numDeps; i++ {
		name := r.str()
		if r.err != nil {
			return nil, ErrCorrupt
		}
		if !ctx.AddDependency(name) {
			return nil, ErrCorrupt
		}
	}

	numImports := r.count(8)
	for i := 0; i < numImports; i++ {
		name := r.str()
		dep := int(r.u32())
		if r.err != nil {
			return nil, ErrCorrupt
		}
		if !ctx.AddImportSymbol(name, dep) {
			return nil, ErrCorrupt
		}
	}

	numDepEvents := r.count(8)
	for i := 0; i < numDepEvents; i++ {
		dep := int(r.u32())
		name := r.str()
		if r.err != nil {
			return nil, ErrCorrupt
		}
		if _, ok := ctx.AddDependencyEvent(name, dep); !ok {
			return nil, ErrCorrupt
		}
	}

	numEventSyms := r.count(4)
	for i := 0; i < numEventSyms; i++ {
		name := r.str()
		if r.err != nil {
			return nil, ErrCorrupt
		}
		ctx.AddEventSymbol(name)
	}

	numCallbacks := r.count(8)
	for i := 0; i < numCallbacks; i++ {
		fnIdx := int(r.u32())
		evIdx := int(r.u32())
		if r.err != nil {
			return nil, ErrCorrupt
		}
		if fnIdx >= len(ctx.Functions) || evIdx >= len(ctx.DependencyEvents) {
			return nil, ErrCorrupt
		}
		ctx.AddCallback(evIdx, fnIdx)
	}

	numReplacements := r.count(16)
	for i := 0; i < numReplacements; i++ {
		var rep recomp.FunctionReplacement
		rep.FuncIndex = r.u32()
		rep.OriginalSectionVrom = r.u32()
		rep.OriginalVram = r.u32()
		rep.Flags = recomp.ReplacementFlags(r.u32())
		if r.err != nil {
			return nil, ErrCorrupt
		}
		if int(rep.FuncIndex) >= len(ctx.Functions) {
			return nil, ErrCorrupt
		}
		ctx.Replacements = append(ctx.Replacements, rep)
	}

	numHookSlots := r.count(16)
	for i := 0; i < numHookSlots; i++ {
		var h recomp.FunctionHook
		h.FuncIndex = r.u32()
		h.OriginalSectionVrom = r.u32()
		h.OriginalVram = r.u32()
		h.Flags = recomp.HookFlags(r.u32())
		if r.err != nil {
			return nil, ErrCorrupt
		}
		if int(h.FuncIndex) >= len(ctx.Functions) {
			return nil, ErrCorrupt
		}
		ctx.Hooks = append(ctx.Hooks, h)
	}

	numExports := r.count(4)
	for i := 0; i < numExports; i++ {
		idx := int(r.u32())
		if r.err != nil {
			return nil, ErrCorrupt
		}
		if idx >= len(ctx.Functions) {
			return nil, ErrCorrupt
		}
		ctx.AddExportedFunction(idx)
	}

	if r.err != nil || r.off != len(r.data) {
		return nil, ErrCorrupt
	}
	return ctx, nil
}

type writer struct {
	buf bytes.Buffer
}

func (w *writer) bytes(b []byte) { w.buf.Write(b) }

func (w *writer) u8(v uint8) { w.buf.WriteByte(v) }

func (w *writer) bool(v bool) {
	if v {
		w.u8(1)
	} else {
		w.u8(0)
	}
}

func (w *writer) u32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf.Write(b[:])
}

func (w *writer) i32(v int32) { w.u32(uint32(v)) }

func (w *writer) str(s string) {
	w.u32(uint32(len(s)))
	w.buf.WriteString(s)
}

func (w *writer) sectionRef(ref recomp.SectionRef) {
	w.u8(uint8(ref.Kind))
	w.u32(uint32(ref.Index))
}

type reader struct {
	data []byte
	off  int
	err  error
}

func (r *reader) fail() {
	if r.err == nil {
		r.err = ErrCorrupt
	}
}

func (r *reader) bytes(dst []byte) {
	if r.err != nil {
		return
	}
	if r.off+len(dst) > len(r.data) {
		r.fail()
		return
	}
	copy(dst, r.data[r.off:])
	r.off += len(dst)
}

func (r *reader) u8() uint8 {
	if r.err != nil || r.off+1 > len(r.data) {
		r.fail()
		return 0
	}
	v := r.data[r.off]
	r.off++
	return v
}

func (r *reader) bool() bool { return r.u8() != 0 }

func (r *reader) u32() uint32 {
	if r.err != nil || r.off+4 > len(r.data) {
		r.fail()
		return 0
	}
	v := binary.LittleEndian.Uint32(r.data[r.off:])
	r.off += 4
	return v
}

func (r *reader) i32() int32 { return int32(r.u32()) }

func (r *reader) str() string {
	n := int(r.u32())
	if r.err != nil || n < 0 || r.off+n > len(r.data) {
		r.fail()
		return ""
	}
	s := string(r.data[r.off : r.off+n])
	r.off += n
	return s
}

// count reads an element count and sanity-checks it against the bytes left,
// given a minimum encoded element size, so a corrupt count cannot force a
// huge allocation.
func (r *reader) count(minElemSize int) int {
	n := int(r.u32())
	if r.err != nil {
		return 0
	}
	if n < 0 || n*minElemSize > len(r.data)-r.off {
		r.fail()
		return 0
	}
	return n
}

func (r *reader) sectionRef() recomp.SectionRef {
	kind := recomp.SectionKind(r.u8())
	idx := int(r.u32())
	if kind > recomp.SectionEvent {
		r.fail()
		return recomp.SectionRef{}
	}
	if kind != recomp.SectionNormal {
		idx = 0
	}
	return recomp.SectionRef{Kind: kind, Index: idx}
}

// sortedHookOffsets keeps hook serialization order deterministic.
func sortedHookOffsets(hooks map[int32]string) []int32 {
	offs := make([]int32, 0, len(hooks))
	for off := range hooks {
		offs = append(offs, off)
	}
	sort.Slice(offs, func(i, j int) bool { return offs[i] < offs[j] })
	return offs
}
