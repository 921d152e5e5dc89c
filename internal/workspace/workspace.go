// Package workspace manages the assistant workspace directory, PERSONA.md
// loading, SKILL.md activation, and system prompt construction.
package workspace

import (
	"cmp"
	"os"
	"path/filepath"
)

// Names under the workspace root.
const (
	personaFileName = "PERSONA.md"
	skillsDirName   = "skills"
	dataDirName     = "data"
)

// Workspace is the on-disk layout the assistant works from: persona,
// skills, and persistent data under a single root.
type Workspace struct {
	Root string
}

// New creates a Workspace rooted at the given directory.
func New(root string) *Workspace {
	return &Workspace{Root: root}
}

// EnsureStructure creates the directory tree. Safe to call repeatedly;
// it attempts every directory and reports the first failure.
func (w *Workspace) EnsureStructure() error {
	var err error
	for _, dir := range []string{w.Root, w.SkillsDir(), w.DataDir()} {
		err = cmp.Or(err, os.MkdirAll(dir, 0o755))
	}
	return err
}

// PersonaPath is the PERSONA.md personality file.
func (w *Workspace) PersonaPath() string { return filepath.Join(w.Root, personaFileName) }

// SkillsDir holds one subdirectory per skill.
func (w *Workspace) SkillsDir() string { return filepath.Join(w.Root, skillsDirName) }

// DataDir holds persistent state such as the usage database and audit log.
func (w *Workspace) DataDir() string { return filepath.Join(w.Root, dataDirName) }
