package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// envPattern captures a variable name and, when present, its inline
// default. Backslash escapes keep "}" usable inside defaults.
var envPattern = regexp.MustCompile(`\$\{([A-Za-z_]\w*)(?::-((?:[^}\\]|\\.)*))?\}`)

// Load reads a YAML configuration file, expands ${VAR} and
// ${VAR:-default} references against the environment, and decodes the
// result into a Config.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	expanded, missing := expandEnv(raw)
	if len(missing) > 0 {
		return nil, fmt.Errorf("config: %s: unresolved variables: %s", path, strings.Join(missing, ", "))
	}

	cfg := new(Config)
	if err := yaml.Unmarshal(expanded, cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}

	return cfg, nil
}

// expandEnv substitutes variable references in raw. A reference whose
// variable is unset falls back to its inline default; one with neither
// is left in place and reported in missing.
func expandEnv(raw []byte) (out []byte, missing []string) {
	out = envPattern.ReplaceAllFunc(raw, func(ref []byte) []byte {
		groups := envPattern.FindSubmatch(ref)
		name := string(groups[1])

		if value, ok := os.LookupEnv(name); ok {
			return []byte(value)
		}
		if groups[2] != nil {
			return groups[2]
		}

		missing = append(missing, name)
		return ref
	})
	return out, missing
}
