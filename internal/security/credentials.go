// Package security provides centralized credential management, log and
// audit redaction, rate limiting, input validation, URL filtering, and
// child process environment sanitization.
package security

import (
	"maps"
	"slices"
	"sync"
)

// CredentialStore is a thread-safe store for sensitive credentials. The
// app loads every secret into it at startup so the rest of the process
// never reads credential environment variables directly, and the redactor
// knows every value that must not appear in output.
type CredentialStore struct {
	mu      sync.RWMutex
	secrets map[string]string
}

// NewCredentialStore returns an empty store.
func NewCredentialStore() *CredentialStore {
	return &CredentialStore{secrets: make(map[string]string)}
}

// Set stores a credential, overwriting any existing value under name.
func (c *CredentialStore) Set(name, value string) {
	c.mu.Lock()
	c.secrets[name] = value
	c.mu.Unlock()
}

// Get returns the credential value and whether it exists.
func (c *CredentialStore) Get(name string) (string, bool) {
	c.mu.RLock()
	v, ok := c.secrets[name]
	c.mu.RUnlock()
	return v, ok
}

// Has reports whether a credential named name exists.
func (c *CredentialStore) Has(name string) bool {
	_, ok := c.Get(name)
	return ok
}

// Names returns every credential name in sorted order.
func (c *CredentialStore) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Sorted(maps.Keys(c.secrets))
}

// Values returns the non-empty credential values in no particular order.
// This is what gets registered with a Redactor.
func (c *CredentialStore) Values() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var values []string
	for _, v := range c.secrets {
		if v == "" {
			continue
		}
		values = append(values, v)
	}
	return values
}

// Delete removes a credential by name. Absent names are a no-op.
func (c *CredentialStore) Delete(name string) {
	c.mu.Lock()
	delete(c.secrets, name)
	c.mu.Unlock()
}

// Len reports how many credentials are stored.
func (c *CredentialStore) Len() int {
	c.mu.RLock()
	n := len(c.secrets)
	c.mu.RUnlock()
	return n
}
