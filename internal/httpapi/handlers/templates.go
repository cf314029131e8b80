package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"forge/internal/httpkit"
)

// ListTemplates handles GET /templates.
func (h *Handler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	list, err := h.engine.List()
	if err != nil {
		httpkit.WriteError(w, err)
		return
	}
	httpkit.WriteJSON(w, http.StatusOK, map[string]any{
		"templates": list,
		"count":     len(list),
	})
}

// TemplateParameters handles GET /templates/{name}/parameters.
func (h *Handler) TemplateParameters(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	params, err := h.engine.Parameters(name)
	if err != nil {
		httpkit.WriteError(w, err)
		return
	}
	httpkit.WriteJSON(w, http.StatusOK, map[string]any{
		"template":   name,
		"parameters": params,
	})
}
