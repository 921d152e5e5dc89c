package workspace

import (
	"errors"
	"os"
	"strings"
	"sync"
	"time"
)

// DefaultPersona is used when no PERSONA.md file is found or the file is empty.
const DefaultPersona = "You are a helpful assistant."

// PersonaProvider is the interface for loading the assistant persona prompt.
// Extracted for testability (mocked in prompt tests).
type PersonaProvider interface {
	Load() (string, error)
}

// PersonaLoader implements PersonaProvider with stat-based cache invalidation.
// Every Load() stats the file (~1µs, negligible next to a model call); the
// content is re-read only when the modification time changes, otherwise the
// cached value is returned via the RLock fast path. Edits to PERSONA.md are
// picked up on the next message without a restart.
type PersonaLoader struct {
	path string

	mu       sync.RWMutex
	content  string
	modTime  time.Time
	notFound bool
}

// NewPersonaLoader creates a PersonaLoader for the given PERSONA.md path.
func NewPersonaLoader(path string) *PersonaLoader {
	return &PersonaLoader{path: path}
}

// Load returns the current persona text, hot-reloading on file changes.
//
// Behavior:
//   - File missing → DefaultPersona, no error.
//   - File empty   → DefaultPersona, no error.
//   - ModTime unchanged → cached content (RLock fast path).
//   - ModTime changed   → re-read file + update cache (Lock).
func (p *PersonaLoader) Load() (string, error) {
	info, err := os.Stat(p.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			p.markNotFound()
			return DefaultPersona, nil
		}
		return "", err
	}

	modTime := info.ModTime()

	// Fast path: cached content still valid.
	p.mu.RLock()
	if !p.notFound && p.modTime.Equal(modTime) && p.content != "" {
		cached := p.content
		p.mu.RUnlock()
		return cached, nil
	}
	p.mu.RUnlock()

	// Slow path: re-read the file.
	data, err := os.ReadFile(p.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			p.markNotFound()
			return DefaultPersona, nil
		}
		return "", err
	}

	content := strings.TrimSpace(string(data))
	if content == "" {
		p.markNotFound()
		return DefaultPersona, nil
	}

	p.mu.Lock()
	p.content = content
	p.modTime = modTime
	p.notFound = false
	p.mu.Unlock()

	return content, nil
}

// markNotFound updates the cache to reflect a missing or empty file.
func (p *PersonaLoader) markNotFound() {
	p.mu.Lock()
	p.notFound = true
	p.content = ""
	p.modTime = time.Time{}
	p.mu.Unlock()
}
