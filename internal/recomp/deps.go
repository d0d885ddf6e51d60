package recomp

// Reserved dependency names. Both are auto-registered on first lookup.
const (
	// DependencySelf refers to the current mod.
	DependencySelf = "."
	// DependencyBaseRecomp refers to the always-present base recomp.
	DependencyBaseRecomp = "*"
)

// AddDependency registers a named dependency. Returns false if the name is
// already registered.
func (c *Context) AddDependency(id string) bool {
	if c.DependenciesByName == nil {
		c.DependenciesByName = make(map[string]int)
	}
	if _, ok := c.DependenciesByName[id]; ok {
		return false
	}

	idx := len(c.Dependencies)
	c.Dependencies = append(c.Dependencies, id)
	c.DependenciesByName[id] = idx
	c.dependencyEventsByName = append(c.dependencyEventsByName, make(map[string]int))
	c.dependencyImportsByName = append(c.dependencyImportsByName, make(map[string]int))
	return true
}

// AddDependencies registers a batch of dependencies. If any name is already
// registered the whole batch is rejected and nothing is mutated.
func (c *Context) AddDependencies(ids []string) bool {
	for _, id := range ids {
		if _, ok := c.DependenciesByName[id]; ok {
			return false
		}
	}
	for _, id := range ids {
		c.AddDependency(id)
	}
	return true
}

// FindDependency returns the index of a registered dependency. The reserved
// names "." and "*" are registered on first use instead of failing, and
// later lookups return the same index.
func (c *Context) FindDependency(id string) (int, bool) {
	if idx, ok := c.DependenciesByName[id]; ok {
		return idx, true
	}
	if id == DependencySelf || id == DependencyBaseRecomp {
		c.AddDependency(id)
		return c.DependenciesByName[id], true
	}
	return 0, false
}

// AddDependencyEvent registers an event exposed by a dependency and returns
// its index in DependencyEvents. Registering the same (dependency, name)
// pair again returns the existing index; a mod may attach several callbacks
// to one event, so this is not an error. Returns false for an invalid
// dependency index.
func (c *Context) AddDependencyEvent(eventName string, dependencyIndex int) (int, bool) {
	if dependencyIndex < 0 || dependencyIndex >= len(c.Dependencies) {
		return 0, false
	}
	if idx, ok := c.dependencyEventsByName[dependencyIndex][eventName]; ok {
		return idx, true
	}

	idx := len(c.DependencyEvents)
	c.DependencyEvents = append(c.DependencyEvents, DependencyEvent{
		DependencyIndex: dependencyIndex,
		EventName:       eventName,
	})
	c.dependencyEventsByName[dependencyIndex][eventName] = idx
	return idx, true
}

// AddImportSymbol registers a function symbol imported from a dependency.
// Import symbols always live under the import pseudo-section with offset 0;
// the real address is resolved by the loader at mod load time. Returns false
// for an invalid dependency index.
func (c *Context) AddImportSymbol(name string, dependencyIndex int) bool {
	if dependencyIndex < 0 || dependencyIndex >= len(c.Dependencies) {
		return false
	}
	c.dependencyImportsByName[dependencyIndex][name] = len(c.ImportSymbols)
	c.ImportSymbols = append(c.ImportSymbols, ImportSymbol{
		ReferenceSymbol: ReferenceSymbol{
			Name:       name,
			Section:    ImportSection,
			IsFunction: true,
		},
		DependencyIndex: dependencyIndex,
	})
	return true
}

// FindImportSymbol looks up a symbol imported from the given dependency.
func (c *Context) FindImportSymbol(name string, dependencyIndex int) (SymbolRef, bool) {
	if dependencyIndex < 0 || dependencyIndex >= len(c.dependencyImportsByName) {
		return SymbolRef{}, false
	}
	idx, ok := c.dependencyImportsByName[dependencyIndex][name]
	if !ok {
		return SymbolRef{}, false
	}
	return SymbolRef{Section: ImportSection, SymbolIndex: idx}, true
}

// AddEventSymbol registers an event this context provides. Event names share
// the unified reference-symbol namespace; a duplicate name keeps every
// EventSymbols entry and the name lookup keeps the last write.
func (c *Context) AddEventSymbol(name string) {
	if c.referenceSymbolsByName == nil {
		c.referenceSymbolsByName = make(map[string]SymbolRef)
	}
	c.referenceSymbolsByName[name] = SymbolRef{
		Section:     EventSection,
		SymbolIndex: len(c.EventSymbols),
	}
	c.EventSymbols = append(c.EventSymbols, EventSymbol{
		ReferenceSymbol: ReferenceSymbol{
			Name:       name,
			Section:    EventSection,
			IsFunction: true,
		},
	})
}

// AddCallback attaches a local function to a dependency event. Callbacks are
// appended without deduplication.
func (c *Context) AddCallback(dependencyEventIndex, functionIndex int) {
	c.Callbacks = append(c.Callbacks, Callback{
		FunctionIndex:        functionIndex,
		DependencyEventIndex: dependencyEventIndex,
	})
}

// AddExportedFunction marks a local function as visible to dependents.
func (c *Context) AddExportedFunction(functionIndex int) {
	c.ExportedFuncs = append(c.ExportedFuncs, functionIndex)
}
