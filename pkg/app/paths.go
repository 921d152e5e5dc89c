package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// configFileName is what the XDG search path looks for.
const configFileName = "parley.yaml"

// ResolveConfigPath walks the standard locations and returns the first
// config file that exists.
func ResolveConfigPath() (string, error) {
	candidates := configCandidates()
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("no configuration file found (searched: %v)", candidates)
}

// configCandidates lists search locations in precedence order:
// $XDG_CONFIG_HOME/parley, ~/.config/parley, then the working directory.
func configCandidates() []string {
	var paths []string
	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		paths = append(paths, filepath.Join(xdg, "parley", configFileName))
	} else if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "parley", configFileName))
	}
	return append(paths, configFileName)
}

// DefaultDataDir is $XDG_DATA_HOME/parley, or ~/.local/share/parley
// when the variable is unset.
func DefaultDataDir() string {
	if dir, ok := os.LookupEnv("XDG_DATA_HOME"); ok {
		return filepath.Join(dir, "parley")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "parley")
}

// DefaultWorkspace is the process working directory.
func DefaultWorkspace() string {
	dir, _ := os.Getwd()
	return dir
}
