package openrouter

import "net/http"

// attributionTransport adds the optional OpenRouter attribution headers
// (HTTP-Referer and X-Title) to every outgoing request. OpenRouter uses them
// to credit the calling app on its rankings page.
type attributionTransport struct {
	base    http.RoundTripper
	referer string
	title   string
}

// RoundTrip implements http.RoundTripper. The request is cloned before
// mutation, as required by the RoundTripper contract.
func (t *attributionTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.referer != "" || t.title != "" {
		req = req.Clone(req.Context())
		if t.referer != "" {
			req.Header.Set("HTTP-Referer", t.referer)
		}
		if t.title != "" {
			req.Header.Set("X-Title", t.title)
		}
	}

	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}
