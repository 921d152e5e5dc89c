package workspace

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWorkspacePaths(t *testing.T) {
	t.Parallel()

	ws := New("/workspace")

	if ws.Root != "/workspace" {
		t.Errorf("Root = %q, want %q", ws.Root, "/workspace")
	}
	if got, want := ws.PersonaPath(), filepath.Join("/workspace", "PERSONA.md"); got != want {
		t.Errorf("PersonaPath() = %q, want %q", got, want)
	}
	if got, want := ws.SkillsDir(), filepath.Join("/workspace", "skills"); got != want {
		t.Errorf("SkillsDir() = %q, want %q", got, want)
	}
	if got, want := ws.DataDir(), filepath.Join("/workspace", "data"); got != want {
		t.Errorf("DataDir() = %q, want %q", got, want)
	}
}

func TestEnsureStructureCreatesTree(t *testing.T) {
	t.Parallel()

	ws := New(filepath.Join(t.TempDir(), "assistant"))
	if err := ws.EnsureStructure(); err != nil {
		t.Fatalf("EnsureStructure() error: %v", err)
	}

	for _, dir := range []string{ws.Root, ws.SkillsDir(), ws.DataDir()} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Errorf("stat %q: %v", dir, err)
			continue
		}
		if !info.IsDir() {
			t.Errorf("%q exists but is not a directory", dir)
		}
	}

	// Running it again over the existing tree must be a no-op.
	if err := ws.EnsureStructure(); err != nil {
		t.Fatalf("repeated EnsureStructure() error: %v", err)
	}
}
