package recomp

import (
	"errors"
	"testing"
)

// relocContext builds a context with one local section and one reference
// section plus a symbol in each.
func relocContext(t *testing.T) *Context {
	t.Helper()
	ctx := NewContext()
	ctx.AddSection(Section{
		Name:            ".data",
		RomAddr:         0x2000,
		RamAddr:         0x80100000,
		Size:            0x1000,
		BssSectionIndex: NoSection,
		GotRamAddr:      SomeAddr(0x80100800),
	})
	ctx.AddReferenceSection(ReferenceSection{RomAddr: 0, RamAddr: 0x1000, Size: 0x100})
	ctx.AddReferenceSymbol("foo", NormalSection(0), 0x1010, true)
	return ctx
}

func TestResolveRelocScenario(t *testing.T) {
	// One section S0 at ram 0x1000, symbol foo at 0x1010, a HI16 reloc
	// against it: target must come out 0x1010 and the HI16 half 0.
	ctx := relocContext(t)
	hi := &Reloc{
		Address:             0x2000,
		TargetSectionOffset: 0x10,
		SymbolIndex:         0,
		TargetSection:       NormalSection(0),
		Type:                RelocHi16,
		ReferenceSymbol:     true,
	}
	ctx.SkipValidatingReferenceSymbols = false

	v, err := ctx.ResolveReloc(hi)
	if err != nil {
		t.Fatal(err)
	}
	if v.Target != 0x1010 {
		t.Errorf("target = 0x%x, want 0x1010", v.Target)
	}
	if v.Value != 0 {
		t.Errorf("HI16 = 0x%x, want 0", v.Value)
	}

	lo := *hi
	lo.Type = RelocLo16
	lv, err := ctx.ResolveReloc(&lo)
	if err != nil {
		t.Fatal(err)
	}
	if lv.Value != 0x1010 {
		t.Errorf("LO16 = 0x%x, want 0x1010", lv.Value)
	}
	if got := PairHi16Lo16(v.Value, lv.Value); got != 0x1010 {
		t.Errorf("reconstructed = 0x%x, want 0x1010", got)
	}
}

func TestHi16RoundingBoundaries(t *testing.T) {
	ctx := NewContext()
	ctx.AddReferenceSection(ReferenceSection{RamAddr: 0})
	ctx.AddReferenceSymbol("sym", NormalSection(0), 0, true)

	cases := []struct {
		target uint32
	}{
		{0x80209ABC}, // low half >= 0x8000 forces the +0x8000 rounding
		{0x80201234}, // low half < 0x8000
		{0x00008000},
		{0xFFFF7FFF},
	}
	for _, tc := range cases {
		hi := &Reloc{
			TargetSectionOffset: tc.target,
			TargetSection:       NormalSection(0),
			Type:                RelocHi16,
			ReferenceSymbol:     true,
		}
		lo := *hi
		lo.Type = RelocLo16

		hv, err := ctx.ResolveReloc(hi)
		if err != nil {
			t.Fatalf("target 0x%x: %v", tc.target, err)
		}
		lv, err := ctx.ResolveReloc(&lo)
		if err != nil {
			t.Fatalf("target 0x%x: %v", tc.target, err)
		}
		if got := PairHi16Lo16(hv.Value, lv.Value); got != tc.target {
			t.Errorf("target 0x%x: (hi=0x%x, lo=0x%x) reconstructs 0x%x",
				tc.target, hv.Value, lv.Value, got)
		}
	}
}

func TestResolveReloc32AndRel32(t *testing.T) {
	ctx := relocContext(t)
	r := &Reloc{
		Address:             0x80100100,
		TargetSectionOffset: 0x40,
		TargetSection:       NormalSection(0),
		Type:                Reloc32,
	}
	v, err := ctx.ResolveReloc(r)
	if err != nil {
		t.Fatal(err)
	}
	if v.Value != 0x80100040 {
		t.Errorf("R_MIPS_32 = 0x%x", v.Value)
	}

	r.Type = RelocRel32
	v, err = ctx.ResolveReloc(r)
	if err != nil {
		t.Fatal(err)
	}
	target, addr := uint32(0x80100040), uint32(0x80100100)
	if v.Value != target-addr {
		t.Errorf("R_MIPS_REL32 = 0x%x", v.Value)
	}
}

func TestResolveReloc26Reach(t *testing.T) {
	ctx := relocContext(t)
	in := &Reloc{
		Address:             0x80100000,
		TargetSectionOffset: 0x100,
		TargetSection:       NormalSection(0),
		Type:                Reloc26,
	}
	v, err := ctx.ResolveReloc(in)
	if err != nil {
		t.Fatal(err)
	}
	if want := (uint32(0x80100100) >> 2) & 0x3FFFFFF; v.Value != want {
		t.Errorf("R_MIPS_26 = 0x%x, want 0x%x", v.Value, want)
	}

	// A consumer in a different 256 MiB region cannot encode the jump.
	out := *in
	out.Address = 0x20000000
	if _, err := ctx.ResolveReloc(&out); !errors.Is(err, ErrUnreachableJump) {
		t.Errorf("err = %v, want ErrUnreachableJump", err)
	}
}

func TestResolveRelocGpRel16(t *testing.T) {
	ctx := relocContext(t)
	r := &Reloc{
		Address:             0x80100010,
		TargetSectionOffset: 0x810,
		TargetSection:       NormalSection(0),
		Type:                RelocGpRel16,
	}
	v, err := ctx.ResolveReloc(r)
	if err != nil {
		t.Fatal(err)
	}
	// 0x80100810 relative to the section's got base 0x80100800.
	if v.Value != 0x10 {
		t.Errorf("GPREL16 = 0x%x, want 0x10", v.Value)
	}

	// Section without a got address.
	ctx.Sections[0].GotRamAddr = OptAddr{}
	if _, err := ctx.ResolveReloc(r); !errors.Is(err, ErrNoGotBase) {
		t.Errorf("err = %v, want ErrNoGotBase", err)
	}
}

func TestResolveRelocNoneSkipped(t *testing.T) {
	ctx := relocContext(t)
	v, err := ctx.ResolveReloc(&Reloc{Type: RelocNone})
	if err != nil {
		t.Fatal(err)
	}
	if !v.Skip {
		t.Error("R_MIPS_NONE not marked skip")
	}
}

func TestResolveRelocValidationPolicy(t *testing.T) {
	ctx := relocContext(t)
	bad := &Reloc{
		TargetSection:   NormalSection(7), // no such reference section
		Type:            Reloc32,
		ReferenceSymbol: true,
	}

	ctx.SkipValidatingReferenceSymbols = false
	if _, err := ctx.ResolveReloc(bad); err == nil {
		t.Error("invalid reference resolved with validation enabled")
	}

	ctx.SkipValidatingReferenceSymbols = true
	v, err := ctx.ResolveReloc(bad)
	if err != nil {
		t.Fatalf("validation disabled: %v", err)
	}
	if !v.Unresolved {
		t.Error("tolerated lookup failure not marked unresolved")
	}

	// Out-of-range symbol index, valid section.
	badSym := &Reloc{
		SymbolIndex:     42,
		TargetSection:   NormalSection(0),
		Type:            Reloc32,
		ReferenceSymbol: true,
	}
	ctx.SkipValidatingReferenceSymbols = false
	if _, err := ctx.ResolveReloc(badSym); !errors.Is(err, ErrUnresolvedSymbol) {
		t.Errorf("err = %v, want ErrUnresolvedSymbol", err)
	}
}

func TestResolveRelocLocalBadSection(t *testing.T) {
	ctx := relocContext(t)
	r := &Reloc{
		TargetSection: NormalSection(9),
		Type:          Reloc32,
	}
	if _, err := ctx.ResolveReloc(r); !errors.Is(err, ErrBadRelocSection) {
		t.Errorf("err = %v, want ErrBadRelocSection", err)
	}
}

func TestRelocTypeStrings(t *testing.T) {
	if got := Reloc26.String(); got != "R_MIPS_26" {
		t.Errorf("String() = %q", got)
	}
	if got := RelocType(200).String(); got != "R_MIPS_UNKNOWN(200)" {
		t.Errorf("String() = %q", got)
	}
}
