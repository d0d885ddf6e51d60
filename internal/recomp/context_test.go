package recomp

import "testing"

// refContext builds a context with two reference sections: one relocatable,
// one not.
func refContext(t *testing.T) *Context {
	t.Helper()
	ctx := NewContext()
	ctx.AddReferenceSection(ReferenceSection{RomAddr: 0x1000, RamAddr: 0x80000400, Size: 0x2000, Relocatable: false})
	ctx.AddReferenceSection(ReferenceSection{RomAddr: 0x3000, RamAddr: 0x80010000, Size: 0x800, Relocatable: true})
	return ctx
}

func TestAddReferenceSymbolOffset(t *testing.T) {
	ctx := refContext(t)
	const k = 0x123C
	if !ctx.AddReferenceSymbol("osInvalDCache", NormalSection(0), 0x80000400+k, true) {
		t.Fatal("AddReferenceSymbol failed")
	}

	ref, ok := ctx.FindReferenceSymbol("osInvalDCache")
	if !ok {
		t.Fatal("symbol not found after add")
	}
	sym := ctx.GetReferenceSymbol(ref)
	if sym.SectionOffset != k {
		t.Errorf("SectionOffset = 0x%x, want 0x%x", sym.SectionOffset, k)
	}
	if !sym.IsFunction {
		t.Error("IsFunction not preserved")
	}
}

func TestAddReferenceSymbolAbsolute(t *testing.T) {
	ctx := NewContext()
	if !ctx.AddReferenceSymbol("HW_REG", AbsoluteSection, 0xA4300004, false) {
		t.Fatal("absolute AddReferenceSymbol failed")
	}
	ref, ok := ctx.FindReferenceSymbol("HW_REG")
	if !ok {
		t.Fatal("symbol not found")
	}
	// Absolute symbols keep the full vram as their offset.
	if got := ctx.GetReferenceSymbol(ref).SectionOffset; got != 0xA4300004 {
		t.Errorf("SectionOffset = 0x%x, want 0xA4300004", got)
	}
}

func TestAddReferenceSymbolInvalidSection(t *testing.T) {
	ctx := refContext(t)
	cases := []SectionRef{
		NormalSection(2),  // out of range
		NormalSection(-1), // negative
		ImportSection,     // pseudo-sections are not valid here
		EventSection,
	}
	for _, ref := range cases {
		if ctx.AddReferenceSymbol("bad", ref, 0x80000000, false) {
			t.Errorf("AddReferenceSymbol(%v) succeeded, want failure", ref)
		}
	}
	if ctx.ReferenceSymbolExists("bad") {
		t.Error("failed add mutated the table")
	}
}

func TestDuplicateReferenceSymbolLastWriteWins(t *testing.T) {
	ctx := refContext(t)
	ctx.AddReferenceSymbol("dup", NormalSection(0), 0x80000410, true)
	ctx.AddReferenceSymbol("dup", NormalSection(1), 0x80010004, false)

	ref, ok := ctx.FindReferenceSymbol("dup")
	if !ok {
		t.Fatal("symbol not found")
	}
	if ref.Section != NormalSection(1) {
		t.Errorf("lookup resolved to %v, want the later write", ref.Section)
	}
	// Both table entries survive; earlier refs stay valid.
	if ctx.NumRegularReferenceSymbols() != 2 {
		t.Errorf("NumRegularReferenceSymbols = %d, want 2", ctx.NumRegularReferenceSymbols())
	}
}

func TestFindRegularReferenceSymbolFilters(t *testing.T) {
	ctx := refContext(t)
	ctx.AddReferenceSymbol("regular", NormalSection(0), 0x80000500, true)
	ctx.AddDependency("depmod")
	ctx.AddImportSymbol("imported", 0)
	ctx.AddEventSymbol("my_event")

	// Imports land in the unified lookup through their own namespace.
	if _, ok := ctx.FindRegularReferenceSymbol("regular"); !ok {
		t.Error("regular symbol rejected")
	}
	if _, ok := ctx.FindRegularReferenceSymbol("my_event"); ok {
		t.Error("event symbol accepted as regular")
	}
	if _, ok := ctx.FindEventSymbol("my_event"); !ok {
		t.Error("event symbol not found by FindEventSymbol")
	}
	if _, ok := ctx.FindEventSymbol("regular"); ok {
		t.Error("regular symbol accepted as event")
	}
}

func TestGetReferenceSymbolDispatch(t *testing.T) {
	ctx := refContext(t)
	ctx.AddReferenceSymbol("regular", NormalSection(0), 0x80000500, true)
	ctx.AddDependency("depmod")
	ctx.AddImportSymbol("imported", 0)
	ctx.AddEventSymbol("my_event")

	ref, _ := ctx.FindImportSymbol("imported", 0)
	if got := ctx.GetReferenceSymbol(ref); got.Name != "imported" || got.Section.Kind != SectionImport {
		t.Errorf("import dispatch returned %+v", got)
	}
	evRef, _ := ctx.FindEventSymbol("my_event")
	if got := ctx.GetReferenceSymbol(evRef); got.Name != "my_event" || got.Section.Kind != SectionEvent {
		t.Errorf("event dispatch returned %+v", got)
	}
}

func TestIsReferenceSectionRelocatable(t *testing.T) {
	ctx := refContext(t)

	if ctx.IsReferenceSectionRelocatable(AbsoluteSection) {
		t.Error("absolute must never be relocatable")
	}
	if !ctx.IsReferenceSectionRelocatable(ImportSection) {
		t.Error("import pseudo-section must always be relocatable")
	}
	if !ctx.IsReferenceSectionRelocatable(EventSection) {
		t.Error("event pseudo-section must always be relocatable")
	}
	if ctx.IsReferenceSectionRelocatable(NormalSection(0)) {
		t.Error("section 0 reported relocatable")
	}
	if !ctx.IsReferenceSectionRelocatable(NormalSection(1)) {
		t.Error("section 1 reported non-relocatable")
	}

	ctx.SetAllReferenceSectionsRelocatable()
	if !ctx.IsReferenceSectionRelocatable(NormalSection(0)) {
		t.Error("global override did not apply")
	}
	if !ctx.IsReferenceSectionRelocatable(AbsoluteSection) {
		t.Error("global override skips absolute in live recompilation")
	}
}

func TestReferenceSectionRomDistinguishesZero(t *testing.T) {
	ctx := NewContext()
	ctx.AddReferenceSection(ReferenceSection{RomAddr: 0, RamAddr: 0x80000000, Size: 0x100})

	rom := ctx.ReferenceSectionRom(NormalSection(0))
	if !rom.Valid || rom.Addr != 0 {
		t.Errorf("rom = %+v, want valid address 0", rom)
	}
	if ctx.ReferenceSectionRom(AbsoluteSection).Valid {
		t.Error("absolute pseudo-section has a rom address")
	}
	if ctx.ReferenceSectionRom(ImportSection).Valid {
		t.Error("import pseudo-section has a rom address")
	}
	if ctx.ReferenceSectionVram(EventSection) != 0 {
		t.Error("event pseudo-section has a vram")
	}
}

func TestFindFunctionByVramSection(t *testing.T) {
	ctx := NewContext()
	ctx.AddSection(Section{Name: ".text", RamAddr: 0x80000400, BssSectionIndex: NoSection})
	ctx.AddSection(Section{Name: ".text2", RamAddr: 0x80001000, BssSectionIndex: NoSection})

	// Two functions aliasing one vram in different sections.
	a := ctx.AddFunction(Function{Vram: 0x80000400, Name: "boot", SectionIndex: 0})
	b := ctx.AddFunction(Function{Vram: 0x80000400, Name: "boot_alias", SectionIndex: 1})

	if got, ok := ctx.FindFunctionByVramSection(0x80000400, 0); !ok || got != a {
		t.Errorf("section 0 lookup = %d, %v", got, ok)
	}
	if got, ok := ctx.FindFunctionByVramSection(0x80000400, 1); !ok || got != b {
		t.Errorf("section 1 lookup = %d, %v", got, ok)
	}
	if _, ok := ctx.FindFunctionByVramSection(0x80000400, 2); ok {
		t.Error("lookup in unrelated section succeeded")
	}
	if _, ok := ctx.FindFunctionByVramSection(0xDEADBEEF, 0); ok {
		t.Error("lookup at unknown vram succeeded")
	}

	// Side tables stay consistent with the vram map.
	if len(ctx.SectionFunctions[0]) != 1 || ctx.SectionFunctions[0][0] != a {
		t.Errorf("SectionFunctions[0] = %v", ctx.SectionFunctions[0])
	}
	if len(ctx.SectionFunctions[1]) != 1 || ctx.SectionFunctions[1][0] != b {
		t.Errorf("SectionFunctions[1] = %v", ctx.SectionFunctions[1])
	}
	if ctx.FunctionsByName["boot"] != a {
		t.Error("FunctionsByName missed boot")
	}
}

func TestDataSectionForBssTolerant(t *testing.T) {
	ctx := NewContext()
	if _, ok := ctx.DataSectionForBss(3); ok {
		t.Error("missing bss mapping reported present")
	}
	ctx.BssSectionToSection[3] = 1
	if idx, ok := ctx.DataSectionForBss(3); !ok || idx != 1 {
		t.Errorf("DataSectionForBss = %d, %v", idx, ok)
	}
}

func TestCopyReferenceSectionsNoAliasing(t *testing.T) {
	src := refContext(t)
	dst := NewContext()
	dst.CopyReferenceSectionsFrom(src)

	if dst.NumReferenceSections() != 2 {
		t.Fatalf("copied %d sections, want 2", dst.NumReferenceSections())
	}
	// Mutating the source afterward must not show through.
	src.AddReferenceSection(ReferenceSection{RamAddr: 0x80400000})
	if dst.NumReferenceSections() != 2 {
		t.Error("copy aliases the source slice")
	}
}

func TestImportReferenceContext(t *testing.T) {
	src := NewContext()
	src.AddSection(Section{Name: ".text", RomAddr: 0x1000, RamAddr: 0x80000400, Size: 0x100, BssSectionIndex: NoSection})
	src.AddFunction(Function{Vram: 0x80000420, Name: "osGetCount", SectionIndex: 0})
	src.AddFunction(Function{Vram: 0x80000440, SectionIndex: 0}) // nameless, skipped

	dst := NewContext()
	if !dst.ImportReferenceContext(src) {
		t.Fatal("ImportReferenceContext failed")
	}
	if dst.NumReferenceSections() != 1 {
		t.Errorf("imported %d sections", dst.NumReferenceSections())
	}
	ref, ok := dst.FindReferenceSymbol("osGetCount")
	if !ok {
		t.Fatal("imported function symbol not found")
	}
	if got := dst.GetReferenceSymbol(ref).SectionOffset; got != 0x20 {
		t.Errorf("SectionOffset = 0x%x, want 0x20", got)
	}

	if dst.ImportReferenceContext(src) {
		t.Error("second import into a populated context succeeded")
	}
}

func TestHasReferenceSymbols(t *testing.T) {
	ctx := NewContext()
	if ctx.HasReferenceSymbols() {
		t.Error("empty context reports reference symbols")
	}
	ctx.AddEventSymbol("ev")
	if !ctx.HasReferenceSymbols() {
		t.Error("event symbols alone should count")
	}
}
