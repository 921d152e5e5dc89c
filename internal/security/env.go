package security

import (
	"os"
	"slices"
	"strings"
)

// sensitiveEnvPrefixes match environment variables stripped from child
// process environments. A prefix covers every variable starting with it;
// names that need exact matching live in sensitiveEnvExact.
var sensitiveEnvPrefixes = []string{
	// LLM provider keys
	"ANTHROPIC_",
	"OPENAI_",
	"OPENROUTER_",
	"PARLEY_",

	// chat platform tokens
	"DISCORD_TOKEN",
	"SLACK_BOT_TOKEN",
	"SLACK_TOKEN",
	"TELEGRAM_BOT_TOKEN",

	// infrastructure credentials
	"AWS_SECRET",
	"AWS_SESSION_TOKEN",
	"GH_TOKEN",
	"GITHUB_TOKEN",
	"GITLAB_TOKEN",
	"SMTP_PASSWORD",
}

// sensitiveEnvExact are stripped only on an exact name match.
// DATABASE_URL and DB_PASSWORD are exact-only so DB_PORT and
// DATABASE_HOST survive.
var sensitiveEnvExact = map[string]struct{}{
	"AWS_SECRET_ACCESS_KEY": {},
	"DATABASE_URL":          {},
	"DB_PASSWORD":           {},
	"PGPASSWORD":            {},
	"REDIS_PASSWORD":        {},
}

// SanitizedEnv returns a copy of os.Environ() with sensitive variables
// removed. It is the environment handed to child processes such as stdio
// MCP servers, which must never inherit the host's API keys. If store is
// non-nil, credential values registered in it are additionally scrubbed
// from the values of the variables that remain.
func SanitizedEnv(store *CredentialStore) []string {
	var creds []string
	if store != nil {
		creds = store.Values()
	}

	env := os.Environ()
	kept := make([]string, 0, len(env))
	for _, entry := range env {
		key, _, ok := strings.Cut(entry, "=")
		if !ok || isSensitiveEnvVar(key) {
			continue
		}

		// Credentials shorter than 8 characters are skipped; scrubbing
		// values like "yes" or "1" would mangle unrelated variables.
		for _, c := range creds {
			if len(c) >= 8 && strings.Contains(entry, c) {
				entry = strings.ReplaceAll(entry, c, RedactPlaceholder)
			}
		}
		kept = append(kept, entry)
	}
	return kept
}

// isSensitiveEnvVar reports whether name matches a sensitive prefix or
// exact name. Matching is case-insensitive.
func isSensitiveEnvVar(name string) bool {
	upper := strings.ToUpper(name)
	if _, exact := sensitiveEnvExact[upper]; exact {
		return true
	}
	return slices.ContainsFunc(sensitiveEnvPrefixes, func(p string) bool {
		return strings.HasPrefix(upper, p)
	})
}
