package handlers

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"forge/internal/httpkit"
	"forge/internal/pkg/errors"
)

// ServeFile handles GET /files/*. It streams objects straight from the
// configured store, which is how the local filesystem provider exposes
// stored outputs and thumbnails over HTTP.
func (h *Handler) ServeFile(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if key == "" || strings.Contains(key, "..") {
		httpkit.WriteError(w, errors.Validation("invalid object key"))
		return
	}

	rc, contentType, size, err := h.store.GetObject(r.Context(), key)
	if err != nil {
		httpkit.WriteError(w, err)
		return
	}
	defer rc.Close()

	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	if size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	}
	w.Header().Set("Cache-Control", "public, max-age=3600")

	if _, err := io.Copy(w, rc); err != nil {
		h.log.FromContext(r.Context()).Warn("file stream interrupted", "key", key, "error", err)
	}
}
