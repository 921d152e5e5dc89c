package gateway

import (
	"net/http"
	"time"

	"github.com/parleyhq/parley/internal/provider"
)

// StatusResponse is the JSON response for GET /status.
type StatusResponse struct {
	UptimeSeconds int64             `json:"uptime_seconds"`
	Sessions      int               `json:"sessions"`
	QueueDepth    int               `json:"queue_depth"`
	Providers     []provider.Status `json:"providers"`
}

// handleStatus serves GET /status with session, queue, and provider
// detail for operators.
func (g *Gateway) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := StatusResponse{
			UptimeSeconds: int64(time.Since(g.startedAt) / time.Second),
		}
		if g.sessions != nil {
			resp.Sessions = g.sessions.Len()
		}
		if g.queueDepth != nil {
			resp.QueueDepth = g.queueDepth()
		}
		if g.chain != nil {
			resp.Providers = g.chain.HealthReport()
		}
		respondJSON(w, http.StatusOK, resp)
	}
}
