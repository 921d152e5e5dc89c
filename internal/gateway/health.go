package gateway

import (
	"net/http"

	"github.com/parleyhq/parley/internal/provider"
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string            `json:"status"` // "ok", or "degraded" when a provider is down
	Sessions  int               `json:"sessions"`
	Providers []provider.Status `json:"providers"`
}

// handleHealth reports liveness. Any unavailable provider degrades the
// report and flips the status code to 503, so a load balancer can pull
// the node without parsing the body.
func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := g.healthSnapshot()
		code := http.StatusOK
		if resp.Status != "ok" {
			code = http.StatusServiceUnavailable
		}
		respondJSON(w, code, resp)
	}
}

func (g *Gateway) healthSnapshot() HealthResponse {
	resp := HealthResponse{Status: "ok"}
	if g.sessions != nil {
		resp.Sessions = g.sessions.Len()
	}
	if g.chain == nil {
		return resp
	}

	resp.Providers = g.chain.HealthReport()
	for _, p := range resp.Providers {
		if !p.Available {
			resp.Status = "degraded"
			break
		}
	}
	return resp
}
