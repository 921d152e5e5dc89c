// Package gateway provides the loopback HTTP server for health, Prometheus
// metrics, and administration. It follows the module system pattern.
package gateway

import (
	"net/http"
	"os"
	"time"

	"github.com/parleyhq/parley/internal/config"
	"github.com/parleyhq/parley/internal/core"
	"github.com/parleyhq/parley/internal/router"
	"github.com/parleyhq/parley/internal/security"
	"github.com/parleyhq/parley/internal/usage"
	"github.com/go-chi/chi/v5"
	"gopkg.in/yaml.v3"
)

// sessionJSON is one row of the admin session listing.
type sessionJSON struct {
	ID       string `json:"id"`
	Channel  string `json:"channel"`
	ChatID   string `json:"chat_id"`
	ThreadID string `json:"thread_id"`

	// CreatedAt and LastActiveAt are RFC 3339 UTC stamps.
	CreatedAt    string         `json:"created_at"`
	LastActiveAt string         `json:"last_active_at"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

func stamp(t time.Time) string { return t.UTC().Format(time.RFC3339) }

func sessionRow(key router.SessionKey, sess *router.Session) sessionJSON {
	return sessionJSON{
		ID:           sess.ID,
		Channel:      key.Channel,
		ChatID:       key.ChatID,
		ThreadID:     key.ThreadID,
		CreatedAt:    stamp(sess.CreatedAt),
		LastActiveAt: stamp(sess.LastActiveAt),
		Metadata:     sess.Metadata,
	}
}

// handleListSessions returns all active sessions as JSON.
func (g *Gateway) handleListSessions() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		rows := []sessionJSON{}
		if g.sessions != nil {
			g.sessions.Range(func(key router.SessionKey, sess *router.Session) bool {
				rows = append(rows, sessionRow(key, sess))
				return true
			})
		}
		respondJSON(w, http.StatusOK, rows)
	}
}

// handleDeleteSession deletes a session by its ID and audits the deletion.
func (g *Gateway) handleDeleteSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			http.Error(w, "session id required", http.StatusBadRequest)
			return
		}

		key, ok := g.findSessionKey(id)
		if !ok {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		g.sessions.Delete(key)

		if g.audit != nil {
			g.audit.Log(security.AuditEvent{
				Type:      security.EventSessionDelete,
				SessionID: id,
				Channel:   key.Channel,
				ChatID:    key.ChatID,
				Detail:    "deleted via admin API",
			})
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// findSessionKey resolves a session ID to its store key with a linear scan.
// Range holds the store's read lock, so the caller deletes after it returns.
func (g *Gateway) findSessionKey(id string) (router.SessionKey, bool) {
	var key router.SessionKey
	var ok bool
	if g.sessions == nil {
		return key, false
	}
	g.sessions.Range(func(k router.SessionKey, sess *router.Session) bool {
		if sess.ID != id {
			return true
		}
		key, ok = k, true
		return false
	})
	return key, ok
}

// usageJSON is a serializable per-model usage row.
type usageJSON struct {
	Day          string `json:"day"`
	Model        string `json:"model"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
	Requests     int    `json:"requests"`
}

// handleUsage returns token usage totals for one UTC day. The day query
// parameter selects it; the default is today.
func (g *Gateway) handleUsage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.recorder == nil {
			http.Error(w, "usage recording not available", http.StatusServiceUnavailable)
			return
		}

		day := r.URL.Query().Get("day")
		if day == "" {
			day = usage.DayOf(time.Now())
		} else if _, err := time.Parse("2006-01-02", day); err != nil {
			http.Error(w, "day must be YYYY-MM-DD", http.StatusBadRequest)
			return
		}

		entries, err := g.recorder.Totals(r.Context(), day)
		if err != nil {
			http.Error(w, "usage lookup failed", http.StatusInternalServerError)
			return
		}

		rows := make([]usageJSON, 0, len(entries))
		for _, e := range entries {
			rows = append(rows, usageJSON{
				Day:          e.Day,
				Model:        e.Model,
				InputTokens:  e.InputTokens,
				OutputTokens: e.OutputTokens,
				Requests:     e.Requests,
			})
		}

		respondJSON(w, http.StatusOK, rows)
	}
}

// nodeJSON is a serializable companion-device snapshot.
type nodeJSON struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Platform     string   `json:"platform"`
	State        string   `json:"state"`
	Capabilities []string `json:"capabilities"`
	ConnectedAt  string   `json:"connected_at"`
	LastSeenAt   string   `json:"last_seen_at"`
}

// handleListNodes lists companion devices known to the node manager,
// including ones mid-pairing or recently cut off.
func (g *Gateway) handleListNodes() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		rows := []nodeJSON{}
		if g.devices != nil {
			for _, snap := range g.devices.Snapshots() {
				caps := make([]string, 0, len(snap.Capabilities))
				for _, c := range snap.Capabilities {
					caps = append(caps, string(c))
				}
				rows = append(rows, nodeJSON{
					ID:           snap.ID,
					Name:         snap.Name,
					Platform:     snap.Platform,
					State:        string(snap.State),
					Capabilities: caps,
					ConnectedAt:  stamp(snap.ConnectedAt),
					LastSeenAt:   stamp(snap.LastSeenAt),
				})
			}
		}
		respondJSON(w, http.StatusOK, rows)
	}
}

// moduleJSON is a serializable module registration snapshot.
type moduleJSON struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Namespace string `json:"namespace"`
}

// handleListModules lists all compiled-in modules.
func (g *Gateway) handleListModules() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		mods := core.GetModules()
		out := make([]moduleJSON, 0, len(mods))
		for _, m := range mods {
			out = append(out, moduleJSON{ID: string(m.ID), Name: m.ID.Name(), Namespace: m.ID.Namespace()})
		}
		respondJSON(w, http.StatusOK, out)
	}
}

// handleGetConfig returns the on-disk config with secret values redacted.
// The file is decoded generically so the redactor sees the real keys;
// environment references are shown unexpanded. The shared redactor is
// preferred because it knows the literal credential values modules pushed.
func (g *Gateway) handleGetConfig() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if g.configPath == "" {
			http.Error(w, "config path not set", http.StatusServiceUnavailable)
			return
		}

		raw, err := os.ReadFile(g.configPath)
		if err != nil {
			http.Error(w, "failed to read config", http.StatusInternalServerError)
			return
		}

		var generic map[string]any
		if err := yaml.Unmarshal(raw, &generic); err != nil {
			http.Error(w, "failed to parse config", http.StatusInternalServerError)
			return
		}

		redactor := g.redactor
		if redactor == nil {
			redactor = security.NewRedactor()
		}
		redactor.RedactMap(generic)

		respondJSON(w, http.StatusOK, generic)
	}
}

// handleReloadConfig validates the config file and, when the app has
// published a reloader, applies it to running modules.
func (g *Gateway) handleReloadConfig() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if g.configPath == "" {
			http.Error(w, "config path not set", http.StatusServiceUnavailable)
			return
		}

		cfg, err := config.Load(g.configPath)
		if err == nil {
			err = config.Validate(cfg)
		}
		if err != nil {
			g.logger.Error("config reload rejected", "error", err)
			respondJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}

		if g.reload == nil {
			respondJSON(w, http.StatusOK, map[string]string{"status": "validated"})
			return
		}

		if err := g.reload(); err != nil {
			g.logger.Error("config reload failed", "error", err)
			respondJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}

		if g.audit != nil {
			g.audit.Log(security.AuditEvent{
				Type:   security.EventConfigChange,
				Detail: "config reloaded via admin API",
			})
		}

		g.logger.Info("configuration reloaded")
		respondJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
	}
}
