package handlers

import (
	"net/http"

	"forge/internal/httpkit"
)

// Feed handles GET /feed. Results are served from the short-lived feed
// cache when a fresh entry exists for the exact filter combination.
func (h *Handler) Feed(w http.ResponseWriter, r *http.Request) {
	f, err := filterFromQuery(r)
	if err != nil {
		httpkit.WriteError(w, err)
		return
	}
	items, err := h.orch.Feed(r.Context(), f)
	if err != nil {
		httpkit.WriteError(w, err)
		return
	}
	httpkit.WriteJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"count": len(items),
	})
}
