package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter wires every route onto one chi mux.
func (g *Gateway) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(g.metricsMiddleware)

	// Public endpoints, no auth required.
	r.Get("/health", g.handleHealth())
	r.Get("/metrics", g.handleMetrics())

	// Node WebSocket for device connections (pairing token auth, not bearer).
	if svc, ok := g.appCtx.Service("node.handler"); ok {
		if h, ok := svc.(http.Handler); ok {
			r.Handle("/ws/node", h)
		}
	}

	// Admin endpoints require auth. Not mounted if no auth is configured.
	if g.config.Auth.IsConfigured() {
		r.Group(g.adminRoutes)
	}

	return r
}

// adminRoutes mounts the authenticated operator surface: status plus the
// /api session, usage, node, module, and config endpoints.
func (g *Gateway) adminRoutes(r chi.Router) {
	r.Use(authMiddleware(g.config.Auth, g.audit, g.limiter))
	r.Get("/status", g.handleStatus())
	r.Route("/api", func(r chi.Router) {
		r.Get("/sessions", g.handleListSessions())
		r.Delete("/sessions/{id}", g.handleDeleteSession())
		r.Get("/usage", g.handleUsage())
		r.Get("/nodes", g.handleListNodes())
		r.Get("/modules", g.handleListModules())
		r.Get("/config", g.handleGetConfig())
		r.Post("/config/reload", g.handleReloadConfig())
	})
}

// respondJSON encodes v with the given status code.
func respondJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
