package workspace

import (
	"cmp"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// TriggerMode selects when a skill joins the system prompt.
type TriggerMode string

// Recognized trigger modes.
const (
	// TriggerAlways includes the skill on every message.
	TriggerAlways TriggerMode = "always"
	// TriggerAuto includes it when a keyword matches the user message.
	TriggerAuto TriggerMode = "auto"
	// TriggerManual includes it only on explicit request.
	TriggerManual TriggerMode = "manual"
)

func (t TriggerMode) valid() bool {
	switch t {
	case TriggerAlways, TriggerAuto, TriggerManual:
		return true
	}
	return false
}

// Errors returned by the skill parser.
var (
	ErrMissingSkillName = errors.New("skill: missing required 'name' field")
	ErrNoFrontmatter    = errors.New("skill: missing YAML frontmatter")
	ErrInvalidTrigger   = errors.New("skill: invalid trigger mode")
)

// SkillMeta is the YAML frontmatter of a SKILL.md file.
type SkillMeta struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// Activation controls.
	Trigger  TriggerMode `yaml:"trigger"`
	Keywords []string    `yaml:"keywords"`

	// Tools the skill needs before it may activate.
	ToolsRequired []string `yaml:"tools_required"`
}

// Skill pairs parsed frontmatter with the prompt text it guards.
type Skill struct {
	Meta SkillMeta
	Body string // markdown below the closing frontmatter delimiter
	Path string // where the file was read from, for diagnostics
}

// ParseSkill parses SKILL.md content. The file opens with YAML
// frontmatter between "---" lines; the rest is the markdown body that
// rides into the system prompt on activation.
func ParseSkill(content, path string) (Skill, error) {
	front, body, err := cutFrontmatter(content)
	if err != nil {
		return Skill{}, err
	}

	meta, err := parseMeta(front, path)
	if err != nil {
		return Skill{}, err
	}

	return Skill{Meta: meta, Body: strings.TrimSpace(body), Path: path}, nil
}

// parseMeta decodes and validates frontmatter. An absent trigger means
// manual, the most restrictive mode.
func parseMeta(front, path string) (SkillMeta, error) {
	var meta SkillMeta
	if err := yaml.Unmarshal([]byte(front), &meta); err != nil {
		return SkillMeta{}, fmt.Errorf("skill: invalid YAML in %s: %w", path, err)
	}
	if meta.Name == "" {
		return SkillMeta{}, fmt.Errorf("%w in %s", ErrMissingSkillName, path)
	}
	meta.Trigger = cmp.Or(meta.Trigger, TriggerManual)
	if !meta.Trigger.valid() {
		return SkillMeta{}, fmt.Errorf("%w %q in %s", ErrInvalidTrigger, meta.Trigger, path)
	}
	return meta, nil
}

// cutFrontmatter splits content into YAML frontmatter and body. The
// content must begin with "---\n" and carry a closing "---" line.
func cutFrontmatter(content string) (front, body string, err error) {
	const delimiter = "---"

	content = strings.TrimSpace(content)
	rest, ok := strings.CutPrefix(content, delimiter+"\n")
	if !ok {
		return "", "", ErrNoFrontmatter
	}

	front, body, ok = strings.Cut(rest, "\n"+delimiter)
	if !ok {
		return "", "", ErrNoFrontmatter
	}

	return front, body, nil
}
