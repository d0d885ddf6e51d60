package recomp

// Context is the in-memory program model for one binary module: its
// sections, functions and relocations, the reference symbol table used to
// resolve symbols defined in other modules, and the mod dependency/event
// graph.
//
// A context is populated single-threaded; once populated it must be treated
// as read-only, at which point the query methods are safe to call from many
// goroutines at once.
type Context struct {
	// Reference symbols, used for populating relocations in patches.
	referenceSections []ReferenceSection
	referenceSymbols  []ReferenceSymbol
	// Unified name lookup across regular, import and event symbols.
	referenceSymbolsByName map[string]SymbolRef
	// Treat every reference section as relocatable (live recompilation).
	allReferenceSectionsRelocatable bool

	Sections  []Section
	Functions []Function
	// Function indices per section, in ingestion order. Kept consistent
	// with FunctionsByVram by AddFunction.
	SectionFunctions [][]int
	// Every function at a given vram. Aliases are rare, so buckets stay
	// small.
	FunctionsByVram map[uint32][]int
	// Bss section index to the index of its data-bearing twin. Populated
	// only when bss sections are split from their data sections; callers
	// must tolerate a missing entry.
	BssSectionToSection map[int]int
	FunctionsByName     map[string]int

	// The target ROM being recompiled. Used for reading relocations and
	// for the output binary feature.
	Rom []byte

	// When false, every reference-symbol reloc must resolve or
	// recompilation of that function fails. When true, unresolved lookups
	// produce placeholder references instead.
	SkipValidatingReferenceSymbols bool
	// Route all non-reference function calls through runtime lookup.
	UseLookupForAllFunctionCalls bool

	// Mod dependencies and their symbols.
	Dependencies       []string
	DependenciesByName map[string]int
	ImportSymbols      []ImportSymbol
	DependencyEvents   []DependencyEvent
	// Per-dependency name lookups, indexed by dependency.
	dependencyEventsByName  []map[string]int
	dependencyImportsByName []map[string]int

	// Exported values.
	Replacements  []FunctionReplacement
	ExportedFuncs []int
	Callbacks     []Callback
	EventSymbols  []EventSymbol
	Hooks         []FunctionHook

	JumpTables []JumpTable

	// Functions print their name on first call when set.
	TraceMode bool

	// Known is optional startup configuration for specially treated
	// functions.
	Known *KnownFuncs
}

// NewContext returns an empty context with its lookup tables initialized.
func NewContext() *Context {
	return &Context{
		// Validation is opt-in; exploratory recompilation tolerates
		// unresolved references by default.
		SkipValidatingReferenceSymbols: true,
		referenceSymbolsByName:         make(map[string]SymbolRef),
		FunctionsByVram:                make(map[uint32][]int),
		BssSectionToSection:            make(map[int]int),
		FunctionsByName:                make(map[string]int),
		DependenciesByName:             make(map[string]int),
	}
}

// AddSection appends a section and returns its index.
func (c *Context) AddSection(s Section) int {
	c.Sections = append(c.Sections, s)
	c.SectionFunctions = append(c.SectionFunctions, nil)
	return len(c.Sections) - 1
}

// AddFunction appends a function and updates every index that tracks it.
// Returns the new function's index.
func (c *Context) AddFunction(fn Function) int {
	idx := len(c.Functions)
	c.Functions = append(c.Functions, fn)

	if c.FunctionsByVram == nil {
		c.FunctionsByVram = make(map[uint32][]int)
	}
	c.FunctionsByVram[fn.Vram] = append(c.FunctionsByVram[fn.Vram], idx)

	for len(c.SectionFunctions) <= fn.SectionIndex {
		c.SectionFunctions = append(c.SectionFunctions, nil)
	}
	c.SectionFunctions[fn.SectionIndex] = append(c.SectionFunctions[fn.SectionIndex], idx)

	if fn.Name != "" {
		if c.FunctionsByName == nil {
			c.FunctionsByName = make(map[string]int)
		}
		c.FunctionsByName[fn.Name] = idx
	}
	return idx
}

// FindFunctionByVramSection returns the index of the function at vram that
// belongs to the given section. Multiple functions may share a vram; the
// section disambiguates.
func (c *Context) FindFunctionByVramSection(vram uint32, sectionIndex int) (int, bool) {
	for _, fi := range c.FunctionsByVram[vram] {
		if c.Functions[fi].SectionIndex == sectionIndex {
			return fi, true
		}
	}
	return 0, false
}

// DataSectionForBss returns the data-bearing twin of a bss section, if the
// mapping was populated during ingestion.
func (c *Context) DataSectionForBss(bssSectionIndex int) (int, bool) {
	idx, ok := c.BssSectionToSection[bssSectionIndex]
	return idx, ok
}

// HasReferenceSymbols reports whether any of the three symbol namespaces is
// non-empty.
func (c *Context) HasReferenceSymbols() bool {
	return len(c.referenceSymbols) != 0 || len(c.ImportSymbols) != 0 || len(c.EventSymbols) != 0
}

// IsRegularReferenceSection reports whether ref addresses the regular
// namespace (real sections and absolute symbols) rather than the import or
// event pseudo-sections.
func (c *Context) IsRegularReferenceSection(ref SectionRef) bool {
	return ref.Kind != SectionImport && ref.Kind != SectionEvent
}

// AddReferenceSection appends a reference section and returns its index.
func (c *Context) AddReferenceSection(s ReferenceSection) int {
	c.referenceSections = append(c.referenceSections, s)
	return len(c.referenceSections) - 1
}

// NumReferenceSections returns the number of reference sections.
func (c *Context) NumReferenceSections() int { return len(c.referenceSections) }

// GetReferenceSection returns the reference section at index i.
func (c *Context) GetReferenceSection(i int) ReferenceSection { return c.referenceSections[i] }

// AddReferenceSymbol registers a symbol at vram into the regular namespace.
// The stored offset is relative to the section's ram_addr (0 for absolute
// symbols). Returns false, without mutating anything, if the section
// reference is neither absolute nor a valid section index. A duplicate name
// keeps every table entry; the name lookup keeps the last write.
func (c *Context) AddReferenceSymbol(name string, section SectionRef, vram uint32, isFunction bool) bool {
	var sectionVram uint32
	switch section.Kind {
	case SectionAbsolute:
		sectionVram = 0
	case SectionNormal:
		if section.Index < 0 || section.Index >= len(c.referenceSections) {
			return false
		}
		sectionVram = c.referenceSections[section.Index].RamAddr
	default:
		return false
	}

	if c.referenceSymbolsByName == nil {
		c.referenceSymbolsByName = make(map[string]SymbolRef)
	}
	c.referenceSymbolsByName[name] = SymbolRef{
		Section:     section,
		SymbolIndex: len(c.referenceSymbols),
	}
	c.referenceSymbols = append(c.referenceSymbols, ReferenceSymbol{
		Name:          name,
		Section:       section,
		SectionOffset: vram - sectionVram,
		IsFunction:    isFunction,
	})
	return true
}

// FindReferenceSymbol looks a symbol up by name across all three namespaces.
func (c *Context) FindReferenceSymbol(name string) (SymbolRef, bool) {
	ref, ok := c.referenceSymbolsByName[name]
	return ref, ok
}

// ReferenceSymbolExists reports whether name resolves in any namespace.
func (c *Context) ReferenceSymbolExists(name string) bool {
	_, ok := c.referenceSymbolsByName[name]
	return ok
}

// FindRegularReferenceSymbol is FindReferenceSymbol restricted to the
// regular namespace; hits in the import or event pseudo-sections are
// rejected.
func (c *Context) FindRegularReferenceSymbol(name string) (SymbolRef, bool) {
	ref, ok := c.FindReferenceSymbol(name)
	if !ok || !c.IsRegularReferenceSection(ref.Section) {
		return SymbolRef{}, false
	}
	return ref, true
}

// FindEventSymbol is FindReferenceSymbol restricted to event symbols.
func (c *Context) FindEventSymbol(name string) (SymbolRef, bool) {
	ref, ok := c.FindReferenceSymbol(name)
	if !ok || ref.Section.Kind != SectionEvent {
		return SymbolRef{}, false
	}
	return ref, true
}

// GetReferenceSymbol returns the symbol addressed by ref, dispatching on the
// pseudo-section to the backing namespace.
func (c *Context) GetReferenceSymbol(ref SymbolRef) ReferenceSymbol {
	switch ref.Section.Kind {
	case SectionImport:
		return c.ImportSymbols[ref.SymbolIndex].ReferenceSymbol
	case SectionEvent:
		return c.EventSymbols[ref.SymbolIndex].ReferenceSymbol
	default:
		return c.referenceSymbols[ref.SymbolIndex]
	}
}

// NumRegularReferenceSymbols returns the size of the regular namespace.
func (c *Context) NumRegularReferenceSymbols() int { return len(c.referenceSymbols) }

// GetRegularReferenceSymbol returns the regular-namespace symbol at index i.
func (c *Context) GetRegularReferenceSymbol(i int) ReferenceSymbol { return c.referenceSymbols[i] }

// IsReferenceSectionRelocatable reports whether a loader may rebase the
// given reference section. Absolute symbols are never relocatable; import
// and event symbols always are; real sections use their own flag unless the
// global override is set.
func (c *Context) IsReferenceSectionRelocatable(ref SectionRef) bool {
	if c.allReferenceSectionsRelocatable {
		return true
	}
	switch ref.Kind {
	case SectionAbsolute:
		return false
	case SectionImport, SectionEvent:
		return true
	default:
		return c.referenceSections[ref.Index].Relocatable
	}
}

// SetAllReferenceSectionsRelocatable forces every reference section to be
// treated as relocatable. Used for live recompilation, where every address
// is resolved at runtime.
func (c *Context) SetAllReferenceSectionsRelocatable() {
	c.allReferenceSectionsRelocatable = true
}

// ReferenceSectionVram returns the load address of a reference section.
// Absolute and pseudo-sections have no load address and return 0.
func (c *Context) ReferenceSectionVram(ref SectionRef) uint32 {
	if ref.Kind != SectionNormal {
		return 0
	}
	return c.referenceSections[ref.Index].RamAddr
}

// ReferenceSectionRom returns the ROM address of a reference section.
// Absolute and pseudo-sections have none, which is distinct from a
// legitimate ROM address of 0.
func (c *Context) ReferenceSectionRom(ref SectionRef) OptAddr {
	if ref.Kind != SectionNormal {
		return OptAddr{}
	}
	return SomeAddr(c.referenceSections[ref.Index].RomAddr)
}

// CopyReferenceSectionsFrom copies rhs's reference sections by value, so the
// two contexts never alias.
func (c *Context) CopyReferenceSectionsFrom(rhs *Context) {
	c.referenceSections = append([]ReferenceSection(nil), rhs.referenceSections...)
}

// ImportReferenceContext imports another context's sections and function
// symbols as this context's reference sections and reference symbols. Fails
// if this context already holds reference data.
func (c *Context) ImportReferenceContext(ref *Context) bool {
	if len(c.referenceSections) != 0 || len(c.referenceSymbols) != 0 {
		return false
	}
	for _, s := range ref.Sections {
		c.referenceSections = append(c.referenceSections, ReferenceSection{
			RomAddr:     s.RomAddr,
			RamAddr:     s.RamAddr,
			Size:        s.Size,
			Relocatable: s.Relocatable,
		})
	}
	for _, fn := range ref.Functions {
		if fn.Name == "" {
			continue
		}
		if !c.AddReferenceSymbol(fn.Name, NormalSection(fn.SectionIndex), fn.Vram, true) {
			return false
		}
	}
	return true
}
