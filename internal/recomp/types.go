// Package recomp models a MIPS N64 executable (or a mod extending one) as
// sections, functions and relocations, and resolves cross-module symbol
// references for recompilation.
package recomp

import "fmt"

// RelocType identifies a MIPS relocation kind.
type RelocType uint8

const (
	RelocNone RelocType = iota
	Reloc16
	Reloc32
	RelocRel32
	Reloc26
	RelocHi16
	RelocLo16
	RelocGpRel16
)

func (t RelocType) String() string {
	switch t {
	case RelocNone:
		return "R_MIPS_NONE"
	case Reloc16:
		return "R_MIPS_16"
	case Reloc32:
		return "R_MIPS_32"
	case RelocRel32:
		return "R_MIPS_REL32"
	case Reloc26:
		return "R_MIPS_26"
	case RelocHi16:
		return "R_MIPS_HI16"
	case RelocLo16:
		return "R_MIPS_LO16"
	case RelocGpRel16:
		return "R_MIPS_GPREL16"
	default:
		return fmt.Sprintf("R_MIPS_UNKNOWN(%d)", uint8(t))
	}
}

// SectionKind distinguishes real sections from the three symbol-location
// pseudo-sections.
type SectionKind uint8

const (
	// SectionNormal indexes the owning context's section list.
	SectionNormal SectionKind = iota
	// SectionAbsolute marks a symbol with no section; its address is exact.
	SectionAbsolute
	// SectionImport marks a symbol resolved from another mod at load time.
	SectionImport
	// SectionEvent marks a symbol identifying a subscribable event.
	SectionEvent
)

func (k SectionKind) String() string {
	switch k {
	case SectionNormal:
		return "normal"
	case SectionAbsolute:
		return "absolute"
	case SectionImport:
		return "import"
	case SectionEvent:
		return "event"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// SectionRef locates a symbol's section: either a real index into a section
// list or one of the pseudo-sections. Using a tagged pair instead of sentinel
// indices keeps ordinary indices from ever colliding with a sentinel.
type SectionRef struct {
	Kind  SectionKind
	Index int // meaningful only when Kind == SectionNormal
}

// Pseudo-section references. These never index a section list.
var (
	AbsoluteSection = SectionRef{Kind: SectionAbsolute}
	ImportSection   = SectionRef{Kind: SectionImport}
	EventSection    = SectionRef{Kind: SectionEvent}
)

// NormalSection returns a reference to the real section at index i.
func NormalSection(i int) SectionRef {
	return SectionRef{Kind: SectionNormal, Index: i}
}

func (r SectionRef) String() string {
	if r.Kind == SectionNormal {
		return fmt.Sprintf("section(%d)", r.Index)
	}
	return r.Kind.String()
}

// OptAddr is an address that may be absent. It replaces numeric sentinels so
// that a legitimate value of 0 (or 0xFFFFFFFF) stays representable.
type OptAddr struct {
	Addr  uint32
	Valid bool
}

// SomeAddr returns a present OptAddr.
func SomeAddr(a uint32) OptAddr { return OptAddr{Addr: a, Valid: true} }

// NoSection marks an absent section back-reference (e.g. a section with no
// bss twin).
const NoSection = -1

// Reloc is one relocation record. When ReferenceSymbol is set, SymbolIndex
// and TargetSection address the owning context's reference symbol table
// (including pseudo-sections) rather than the local section list.
type Reloc struct {
	Address             uint32 // vram of the word being patched
	TargetSectionOffset uint32
	SymbolIndex         int // only used for reference symbols
	TargetSection       SectionRef
	Type                RelocType
	ReferenceSymbol     bool
}

// Section is one loadable section of the binary being modeled.
type Section struct {
	RomAddr         uint32
	RamAddr         uint32
	Size            uint32
	BssSize         uint32 // not populated when using a symbol file
	FunctionAddrs   []uint32
	Relocs          []Reloc
	Name            string
	BssSectionIndex int // NoSection when the section has no bss twin
	Executable      bool
	Relocatable     bool
	HasMips32Relocs bool
	// FixedAddress marks a mod section that must not be relocated or placed
	// into mod memory.
	FixedAddress bool
	// GloballyLoaded marks a mod section whose functions are globally
	// loaded. Does not load the section's contents into ram.
	GloballyLoaded bool
	GotRamAddr     OptAddr
}

// ReferenceSection is the slim record kept for a section imported from
// another context.
type ReferenceSection struct {
	RomAddr     uint32
	RamAddr     uint32
	Size        uint32
	Relocatable bool
}

// Function is one recompilable function. Created during ingestion and
// immutable afterward except for hook attachment.
type Function struct {
	Vram          uint32
	Rom           uint32
	Words         []uint32 // raw instruction encodings
	Name          string
	SectionIndex  int
	Ignored       bool
	Reimplemented bool
	Stubbed       bool
	FunctionHooks map[int32]string // instruction offset -> hook name
}

// ReferenceSymbol is a symbol defined in another binary module, queried for
// relocation purposes. SectionOffset is relative to the section's ram_addr
// (0 for an absolute symbol).
type ReferenceSymbol struct {
	Name          string
	Section       SectionRef
	SectionOffset uint32
	IsFunction    bool
}

// ImportSymbol is a reference symbol resolved from a named dependency at mod
// load time.
type ImportSymbol struct {
	ReferenceSymbol
	DependencyIndex int
}

// EventSymbol is a reference symbol naming an event this context provides.
type EventSymbol struct {
	ReferenceSymbol
}

// SymbolRef addresses one entry in a context's reference symbol table.
type SymbolRef struct {
	Section     SectionRef
	SymbolIndex int
}

// DependencyEvent names an event exposed by one of the context's
// dependencies. At most one exists per (dependency, name) pair.
type DependencyEvent struct {
	DependencyIndex int
	EventName       string
}

// Callback attaches a local function to a dependency's event.
type Callback struct {
	FunctionIndex        int
	DependencyEventIndex int
}

// ReplacementFlags modify how a function replacement is applied.
type ReplacementFlags uint32

const (
	// ReplacementForce overrides the original even if another mod already
	// replaced it.
	ReplacementForce ReplacementFlags = 1 << 0
)

// IsForced reports whether the Force flag is set.
func (f ReplacementFlags) IsForced() bool { return f&ReplacementForce != 0 }

// FunctionReplacement substitutes a local function for a function in the
// original binary, identified by its section vrom and vram.
type FunctionReplacement struct {
	FuncIndex           uint32
	OriginalSectionVrom uint32
	OriginalVram        uint32
	Flags               ReplacementFlags
}

// HookFlags modify when a function hook fires.
type HookFlags uint32

const (
	// HookAtReturn fires the hook at function exit instead of entry.
	HookAtReturn HookFlags = 1 << 0
)

// IsAtReturn reports whether the AtReturn flag is set.
func (f HookFlags) IsAtReturn() bool { return f&HookAtReturn != 0 }

// FunctionHook runs a local function when a function in the original binary
// is entered (or returns, with HookAtReturn).
type FunctionHook struct {
	FuncIndex           uint32
	OriginalSectionVrom uint32
	OriginalVram        uint32
	Flags               HookFlags
}

// JumpTable describes a recovered indirect-jump dispatch table. Produced by
// analysis outside this package but stored alongside the model.
type JumpTable struct {
	Vram         uint32
	AddendReg    uint32
	Rom          uint32
	LwVram       uint32
	AdduVram     uint32
	JrVram       uint32
	SectionIndex int
	GotOffset    OptAddr
	Entries      []uint32
}

// DataSymbol is a named data address recovered during ingestion, grouped by
// section for reference-symbol dumping.
type DataSymbol struct {
	Vram uint32
	Name string
}

// DataSymbolMap groups data symbols by section index.
type DataSymbolMap map[int][]DataSymbol

// KnownFuncs is read-only startup configuration listing functions the
// recompiler treats specially. Nothing in this package mutates it.
type KnownFuncs struct {
	Reimplemented map[string]struct{}
	Ignored       map[string]struct{}
	Renamed       map[string]struct{}
}

func (k *KnownFuncs) IsReimplemented(name string) bool {
	if k == nil {
		return false
	}
	_, ok := k.Reimplemented[name]
	return ok
}

func (k *KnownFuncs) IsIgnored(name string) bool {
	if k == nil {
		return false
	}
	_, ok := k.Ignored[name]
	return ok
}

func (k *KnownFuncs) IsRenamed(name string) bool {
	if k == nil {
		return false
	}
	_, ok := k.Renamed[name]
	return ok
}
