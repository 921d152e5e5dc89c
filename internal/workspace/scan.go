package workspace

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// LoadSkillsFromDir parses every .md file in dir, in filename order. A
// missing directory yields no skills and no error; unreadable or
// malformed files are skipped.
func LoadSkillsFromDir(dir string) ([]Skill, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var skills []Skill
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		skill, err := ParseSkill(string(raw), path)
		if err != nil {
			continue
		}
		skills = append(skills, skill)
	}
	return skills, nil
}
