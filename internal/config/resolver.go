package config

import (
	"maps"
	"slices"
)

// Resolve returns the configured module IDs in sorted order. Loading
// modules in a deterministic order keeps provisioning reproducible
// across restarts.
func Resolve(cfg *Config) []string {
	return slices.Sorted(maps.Keys(cfg.Modules))
}
