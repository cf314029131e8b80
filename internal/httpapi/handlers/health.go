package handlers

import (
	"context"
	"net/http"
	"time"

	"forge/internal/httpkit"
)

// Health handles GET /health. The shallow probe only reports liveness;
// ?deep=true pings postgres and redis and reports per-dependency state.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("deep") != "true" {
		httpkit.WriteJSON(w, http.StatusOK, map[string]any{
			"status":  "ok",
			"service": "forge",
		})
		return
	}
	h.deepHealth(w, r)
}

func (h *Handler) deepHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ok"
	checks := map[string]any{}

	start := time.Now()
	if err := h.pool.Ping(ctx); err != nil {
		status = "degraded"
		checks["postgres"] = map[string]any{"status": "down", "error": err.Error()}
	} else {
		stat := h.pool.Stat()
		checks["postgres"] = map[string]any{
			"status":     "ok",
			"latency_ms": time.Since(start).Milliseconds(),
			"conns":      stat.TotalConns(),
			"idle_conns": stat.IdleConns(),
		}
	}

	start = time.Now()
	if err := h.rdb.Ping(ctx).Err(); err != nil {
		status = "degraded"
		checks["redis"] = map[string]any{"status": "down", "error": err.Error()}
	} else {
		checks["redis"] = map[string]any{
			"status":     "ok",
			"latency_ms": time.Since(start).Milliseconds(),
		}
	}

	checks["storage"] = map[string]any{"provider": h.store.Provider()}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	httpkit.WriteJSON(w, code, map[string]any{
		"status":  status,
		"service": "forge",
		"checks":  checks,
	})
}
