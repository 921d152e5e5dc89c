package gateway

import (
	"crypto/subtle"
	"net"
	"net/http"
	"strings"

	"github.com/parleyhq/parley/internal/security"
)

// authMiddleware returns a chi middleware that admits requests carrying a
// valid Bearer token or Basic credential pair, compared in constant time.
// Successes and failures land in the audit log when one is wired, and
// attempts are throttled per remote host so a brute-forcing client cannot
// lock out other admin callers.
func authMiddleware(cfg AuthConfig, audit *security.AuditLogger, limiter *security.RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter != nil {
				if err := limiter.Allow(security.LimitAuth, remoteHost(r)); err != nil {
					http.Error(w, "too many requests", http.StatusTooManyRequests)
					return
				}
			}
			if r.Header.Get("Authorization") == "" {
				auditAuth(audit, security.EventAuthFailure, r, "missing authorization header")
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			scheme, ok := authenticate(cfg, r)
			if !ok {
				auditAuth(audit, security.EventAuthFailure, r, "invalid credentials")
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			auditAuth(audit, security.EventAuthSuccess, r, scheme)
			next.ServeHTTP(w, r)
		})
	}
}

// authenticate checks the request against both configured schemes and names
// the one that matched.
func authenticate(cfg AuthConfig, r *http.Request) (scheme string, ok bool) {
	if cfg.BearerToken != "" {
		if token, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); found {
			if constantTimeEqual(token, cfg.BearerToken) {
				return "bearer", true
			}
		}
	}
	if cfg.BasicUser != "" && cfg.BasicPass != "" {
		if user, pass, found := r.BasicAuth(); found {
			if constantTimeEqual(user, cfg.BasicUser) && constantTimeEqual(pass, cfg.BasicPass) {
				return "basic", true
			}
		}
	}
	return "", false
}

// auditAuth records an auth event when an audit logger is configured.
func auditAuth(logger *security.AuditLogger, kind security.EventType, r *http.Request, detail string) {
	if logger == nil {
		return
	}
	logger.Log(security.AuditEvent{
		Type:   kind,
		Detail: detail,
		Metadata: map[string]string{
			"method":      r.Method,
			"path":        r.URL.Path,
			"remote_addr": r.RemoteAddr,
		},
	})
}

// remoteHost strips the port from the request's remote address.
func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// constantTimeEqual reports whether a and b match without leaking timing.
func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
