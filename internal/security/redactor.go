package security

import (
	"regexp"
	"slices"
	"strings"
	"sync"
)

// RedactPlaceholder stands in for every scrubbed secret.
const RedactPlaceholder = "***REDACTED***"

// secretKeyPattern flags map keys whose values hold secrets by convention.
var secretKeyPattern = regexp.MustCompile(`(?i)(secret|token|password|key|api_key|credential)`)

// Redactor scrubs secrets out of free text and config maps. It combines
// shape-based matching for the token formats the process handles with
// literal matching for credential values loaded at runtime. A zero
// Redactor is usable and matches nothing until patterns or literals are
// added. All methods are safe for concurrent use.
type Redactor struct {
	mu sync.RWMutex

	// patterns match secret shapes; literals match exact runtime values.
	patterns []*regexp.Regexp
	literals []string
}

// NewRedactor returns a Redactor loaded with DefaultPatterns.
func NewRedactor() *Redactor {
	return &Redactor{patterns: DefaultPatterns()}
}

// AddPattern registers an additional secret shape to scrub.
func (r *Redactor) AddPattern(pattern *regexp.Regexp) {
	r.mu.Lock()
	r.patterns = append(r.patterns, pattern)
	r.mu.Unlock()
}

// AddLiteral registers a concrete secret value to scrub. A value already
// registered is recorded once. The empty string is ignored, it would
// match everywhere.
func (r *Redactor) AddLiteral(secret string) {
	if secret == "" {
		return
	}

	r.mu.Lock()
	if !slices.Contains(r.literals, secret) {
		r.literals = append(r.literals, secret)
	}
	r.mu.Unlock()
}

// SyncCredentials swaps the literal set for the store's current values.
// Call it whenever credentials are loaded or rotated.
func (r *Redactor) SyncCredentials(store *CredentialStore) {
	values := store.Values()
	r.mu.Lock()
	r.literals = values
	r.mu.Unlock()
}

// Redact returns s with every known pattern and literal replaced by
// RedactPlaceholder. Patterns are applied first, then literals.
func (r *Redactor) Redact(s string) string {
	if s == "" {
		return s
	}
	r.mu.RLock()
	patterns, literals := r.patterns, r.literals
	r.mu.RUnlock()

	for _, p := range patterns {
		s = p.ReplaceAllString(s, RedactPlaceholder)
	}
	for _, lit := range literals {
		s = strings.ReplaceAll(s, lit, RedactPlaceholder)
	}
	return s
}

// RedactMap scrubs m in place. Values under secret-named keys (secret,
// token, password, key, api_key, credential) are blanked outright, token
// lists such as pairing_tokens entry by entry. Every other string still
// gets the Redact scan, and nested maps and lists are walked all the way
// down so structured configs cannot leak through display endpoints.
func (r *Redactor) RedactMap(m map[string]any) {
	for k, v := range m {
		m[k] = r.redactValue(secretKeyPattern.MatchString(k), v)
	}
}

// redactValue returns the scrubbed replacement for v. named marks values
// reached through a secret-named key.
func (r *Redactor) redactValue(named bool, v any) any {
	switch val := v.(type) {
	case string:
		if named && val != "" {
			return RedactPlaceholder
		}
		return r.Redact(val)
	case map[string]any:
		r.RedactMap(val)
	case []any:
		for i, item := range val {
			val[i] = r.redactValue(named, item)
		}
	}
	return v
}

// DefaultPatterns compiles the secret shapes the process can encounter,
// plus a few common cloud formats.
func DefaultPatterns() []*regexp.Regexp {
	return []*regexp.Regexp{
		// Anthropic keys, sk-ant- then a long body.
		regexp.MustCompile(`sk-ant-[a-zA-Z0-9\-]{20,}`),
		// OpenRouter keys, sk-or- prefix.
		regexp.MustCompile(`sk-or-[a-zA-Z0-9\-]{20,}`),
		// OpenAI keys, bare sk- with a 20+ character body.
		regexp.MustCompile(`sk-[a-zA-Z0-9]{20,}`),
		// Discord bot tokens, three dot-separated base64url segments.
		regexp.MustCompile(`[MNO][A-Za-z0-9_-]{23,25}\.[A-Za-z0-9_-]{6}\.[A-Za-z0-9_-]{27,}`),
		// Telegram bot tokens, numeric bot ID, colon, 35-char secret.
		regexp.MustCompile(`[0-9]{8,10}:[A-Za-z0-9_-]{35}`),
		// GitHub tokens in all four prefix variants.
		regexp.MustCompile(`(ghp_|gho_|ghs_|github_pat_)[a-zA-Z0-9_]{20,}`),
		// AWS access key IDs.
		regexp.MustCompile(`AKIA[A-Z0-9]{16}`),
	}
}
