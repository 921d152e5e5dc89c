package provider

import (
	"errors"
	"sync"
)

// ErrNoKeys is returned when an AuthProfile is constructed without keys.
var ErrNoKeys = errors.New("auth profile requires at least one key")

// AuthProfile holds the API keys for one provider and cycles through them
// when the active key is rate limited.
type AuthProfile struct {
	mu   sync.Mutex
	keys []string
	idx  int
}

// NewAuthProfile builds a profile over the given keys. At least one is
// required.
func NewAuthProfile(keys ...string) (*AuthProfile, error) {
	if len(keys) == 0 {
		return nil, ErrNoKeys
	}
	return &AuthProfile{keys: keys}, nil
}

// CurrentKey returns the key requests should authenticate with.
func (p *AuthProfile) CurrentKey() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.keys[p.idx]
}

// Rotate advances to the next key, wrapping at the end of the list. It
// reports whether the active key actually changed; a single-key profile
// never rotates.
func (p *AuthProfile) Rotate() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.keys) < 2 {
		return false
	}
	p.idx = (p.idx + 1) % len(p.keys)
	return true
}

// CurrentIndex returns the position of the active key.
func (p *AuthProfile) CurrentIndex() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.idx
}
