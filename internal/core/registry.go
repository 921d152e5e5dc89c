package core

import (
	"cmp"
	"slices"
	"strings"
	"sync"
)

var modulesMu sync.RWMutex

// modules holds every registered module, keyed by ID string.
var modules = make(map[string]ModuleInfo)

// RegisterModule records a module in the global registry, instantiating
// it once to read its ModuleInfo. Called from init() functions; panics
// on a duplicate ID or invalid info because both are programmer errors
// that must surface at startup.
func RegisterModule(instance Module) {
	info := instance.ModuleInfo()
	switch {
	case info.ID == "":
		panic("module ID must not be empty")
	case info.New == nil:
		panic("module " + string(info.ID) + ": New function must not be nil")
	}

	modulesMu.Lock()
	defer modulesMu.Unlock()
	id := string(info.ID)
	if _, exists := modules[id]; exists {
		panic("module already registered: " + id)
	}
	modules[id] = info
}

// GetModule returns the ModuleInfo registered under id.
func GetModule(id string) (ModuleInfo, bool) {
	modulesMu.RLock()
	info, ok := modules[id]
	modulesMu.RUnlock()
	return info, ok
}

// GetModules returns every registered module sorted by ID.
func GetModules() []ModuleInfo {
	modulesMu.RLock()
	defer modulesMu.RUnlock()
	return sortedByID(modules, func(string) bool { return true })
}

// GetModulesByNamespace returns the modules whose ID sits under the
// given namespace, sorted by ID. "provider" matches "provider.anthropic"
// and "provider.openai" but not "providerx.foo".
func GetModulesByNamespace(namespace string) []ModuleInfo {
	modulesMu.RLock()
	defer modulesMu.RUnlock()
	prefix := namespace + "."
	return sortedByID(modules, func(id string) bool {
		return strings.HasPrefix(id, prefix)
	})
}

// sortedByID collects the modules passing keep into an ID-sorted slice.
// Callers hold at least the read lock.
func sortedByID(m map[string]ModuleInfo, keep func(string) bool) []ModuleInfo {
	out := make([]ModuleInfo, 0, len(m))
	for id, info := range m {
		if keep(id) {
			out = append(out, info)
		}
	}
	slices.SortFunc(out, func(a, b ModuleInfo) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

// resetRegistry empties the module table between tests.
func resetRegistry() {
	modulesMu.Lock()
	modules = map[string]ModuleInfo{}
	modulesMu.Unlock()
}
