package security

import (
	"errors"
	"fmt"
	"net/netip"
	"net/url"
	"slices"
	"strings"
)

// ErrURLBlocked marks a URL the filter refused.
var ErrURLBlocked = errors.New("URL blocked by filter")

// URLFilterConfig lists the domains outbound fetches may touch.
type URLFilterConfig struct {
	// AllowDomains names the reachable domains. An empty list blocks
	// every domain. Matching covers subdomains, so allowing
	// "discordapp.com" admits "cdn.discordapp.com" as well.
	AllowDomains []string `yaml:"allow_domains"`

	// DenyDomains carves exceptions out of the allow list. Deny wins
	// over allow, which lets a single subdomain of an allowed domain
	// stay blocked.
	DenyDomains []string `yaml:"deny_domains"`
}

// URLFilter vets outbound fetch URLs against allow/deny domain lists.
// Attachment URLs originate from chat platforms, so beyond the lists the
// filter refuses anything that could redirect a fetch into the host's own
// network: non-HTTP schemes and literal loopback, private, and link-local
// addresses are blocked regardless of configuration.
type URLFilter struct {
	allow, deny []string
}

// NewURLFilter creates a URL filter from the given config. Domains are
// normalized to lowercase.
func NewURLFilter(cfg URLFilterConfig) *URLFilter {
	return &URLFilter{
		allow: normalizeDomains(cfg.AllowDomains),
		deny:  normalizeDomains(cfg.DenyDomains),
	}
}

func normalizeDomains(domains []string) []string {
	out := make([]string, len(domains))
	for i, d := range domains {
		out[i] = strings.ToLower(strings.TrimSpace(d))
	}
	return out
}

// Check vets rawURL. A nil return means the fetch may proceed; every
// refusal wraps ErrURLBlocked.
func (f *URLFilter) Check(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: invalid URL: %w", ErrURLBlocked, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return fmt.Errorf("%w: scheme %q", ErrURLBlocked, u.Scheme)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return fmt.Errorf("%w: empty hostname", ErrURLBlocked)
	}

	// An IP literal skips DNS, so the domain lists cannot keep it out of
	// the local network. Internal ranges are refused even when allowed.
	if addr, err := netip.ParseAddr(host); err == nil && isInternalAddr(addr) {
		return fmt.Errorf("%w: %s (internal address)", ErrURLBlocked, host)
	}

	match := func(domain string) bool { return matchDomain(host, domain) }
	if slices.ContainsFunc(f.deny, match) {
		return fmt.Errorf("%w: %s (denied)", ErrURLBlocked, host)
	}
	if len(f.allow) == 0 {
		return fmt.Errorf("%w: %s (no domains allowed)", ErrURLBlocked, host)
	}
	if slices.ContainsFunc(f.allow, match) {
		return nil
	}
	return fmt.Errorf("%w: %s (not in allow list)", ErrURLBlocked, host)
}

// IsConfigured reports whether any allow or deny domains are set. An
// unconfigured filter expresses no policy; callers skip the check rather
// than blocking every fetch.
func (f *URLFilter) IsConfigured() bool {
	return len(f.allow) > 0 || len(f.deny) > 0
}

// isInternalAddr reports whether addr points inside the local network.
// The 169.254.0.0/16 link-local range covers cloud metadata endpoints.
func isInternalAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	return addr.IsLoopback() ||
		addr.IsPrivate() ||
		addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() ||
		addr.IsUnspecified()
}

// matchDomain reports whether host is domain itself or a subdomain of it.
// "notdiscordapp.com" is neither for "discordapp.com".
func matchDomain(host, domain string) bool {
	return host == domain || strings.HasSuffix(host, "."+domain)
}
