package core

import "strings"

// ModuleID uniquely identifies a module. IDs are namespaced with dots,
// e.g. "channel.discord" or "provider.anthropic". The part before the last
// dot is the namespace; the part after it is the name.
type ModuleID string

// Namespace returns the module's namespace (everything before the last dot),
// or "" for un-namespaced IDs.
func (id ModuleID) Namespace() string {
	i := strings.LastIndex(string(id), ".")
	if i < 0 {
		return ""
	}
	return string(id)[:i]
}

// Name returns the module's name (everything after the last dot).
func (id ModuleID) Name() string {
	i := strings.LastIndex(string(id), ".")
	if i < 0 {
		return string(id)
	}
	return string(id)[i+1:]
}

// ModuleInfo is the registration metadata for a module.
type ModuleInfo struct {
	// ID is the unique, namespaced identifier.
	ID ModuleID

	// New returns a fresh, unconfigured instance of the module.
	// It must never return nil.
	New func() Module
}

// Module is implemented by every loadable component. Most modules also
// implement one or more of the lifecycle interfaces (Configurable,
// Provisioner, Validator, Starter, Stopper, Reloader).
type Module interface {
	ModuleInfo() ModuleInfo
}
