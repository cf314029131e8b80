package handlers

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"forge/internal/httpkit"
	"forge/internal/jobs"
	"forge/internal/models"
	"forge/internal/pkg/errors"
)

type createJobRequest struct {
	TemplateName    string         `json:"template_name" validate:"required"`
	Params          map[string]any `json:"params"`
	InputRefs       []string       `json:"input_refs" validate:"omitempty,dive,required"`
	RendererURL     string         `json:"renderer_url" validate:"omitempty,url"`
	ArchiveFolderID string         `json:"archive_folder_id"`
}

type completeJobRequest struct {
	Status       string   `json:"status" validate:"required,oneof=completed failed"`
	OutputRefs   []string `json:"output_refs"`
	ErrorMessage string   `json:"error_message"`
}

// CreateJob handles POST /jobs.
func (h *Handler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := httpkit.DecodeJSON(r, &req); err != nil {
		httpkit.WriteErr(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body: "+err.Error(), nil)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		httpkit.WriteErr(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
		return
	}

	job, err := h.orch.Create(r.Context(), jobs.CreateInput{
		OwnerID:         r.Header.Get(OwnerIDHeader),
		TemplateName:    req.TemplateName,
		Params:          req.Params,
		InputRefs:       req.InputRefs,
		RendererURL:     req.RendererURL,
		ArchiveFolderID: req.ArchiveFolderID,
	})
	if err != nil {
		httpkit.WriteError(w, err)
		return
	}

	httpkit.WriteJSON(w, http.StatusCreated, map[string]any{"job": job})
}

// GetJob handles GET /jobs/{jobId}.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.orch.Get(r.Context(), chi.URLParam(r, "jobId"))
	if err != nil {
		httpkit.WriteError(w, err)
		return
	}
	httpkit.WriteJSON(w, http.StatusOK, map[string]any{"job": job})
}

// ListJobs handles GET /jobs.
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	f, err := filterFromQuery(r)
	if err != nil {
		httpkit.WriteError(w, err)
		return
	}
	list, err := h.orch.List(r.Context(), f)
	if err != nil {
		httpkit.WriteError(w, err)
		return
	}
	httpkit.WriteJSON(w, http.StatusOK, map[string]any{
		"jobs":  list,
		"count": len(list),
	})
}

// MarkProcessing handles PUT /jobs/{jobId}/processing.
func (h *Handler) MarkProcessing(w http.ResponseWriter, r *http.Request) {
	job, err := h.orch.MarkProcessing(r.Context(), chi.URLParam(r, "jobId"))
	if err != nil {
		httpkit.WriteError(w, err)
		return
	}
	httpkit.WriteJSON(w, http.StatusOK, map[string]any{"job": job})
}

// CompleteJob handles PUT /jobs/{jobId}/complete. Completion is keyed by
// the renderer id so late duplicate callbacks stay idempotent.
func (h *Handler) CompleteJob(w http.ResponseWriter, r *http.Request) {
	var req completeJobRequest
	if err := httpkit.DecodeJSON(r, &req); err != nil {
		httpkit.WriteErr(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body: "+err.Error(), nil)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		httpkit.WriteErr(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
		return
	}

	job, err := h.orch.Get(r.Context(), chi.URLParam(r, "jobId"))
	if err != nil {
		httpkit.WriteError(w, err)
		return
	}
	if job.RendererID == "" {
		httpkit.WriteError(w, errors.Conflict("job was never submitted to a renderer"))
		return
	}

	success := req.Status == string(models.StatusCompleted)
	job, err = h.orch.Complete(r.Context(), job.RendererID, success, req.OutputRefs, req.ErrorMessage)
	if err != nil {
		httpkit.WriteError(w, err)
		return
	}
	httpkit.WriteJSON(w, http.StatusOK, map[string]any{"job": job})
}

// CancelJob handles POST /jobs/{jobId}/cancel.
func (h *Handler) CancelJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.orch.Cancel(r.Context(), chi.URLParam(r, "jobId"))
	if err != nil {
		httpkit.WriteError(w, err)
		return
	}
	httpkit.WriteJSON(w, http.StatusOK, map[string]any{"job": job})
}

// OutputURL handles GET /jobs/{jobId}/outputs/{index}/url. Durable outputs
// get a signed URL from the object store; ephemeral refs are returned as
// stored since they never reached the store.
func (h *Handler) OutputURL(w http.ResponseWriter, r *http.Request) {
	job, err := h.orch.Get(r.Context(), chi.URLParam(r, "jobId"))
	if err != nil {
		httpkit.WriteError(w, err)
		return
	}

	idx, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || idx < 0 || idx >= len(job.OutputRefs) {
		httpkit.WriteError(w, errors.NotFound("output", chi.URLParam(r, "index")))
		return
	}

	ref := job.OutputRefs[idx]
	key, ok := objectKeyFromRef(ref)
	if !ok {
		httpkit.WriteJSON(w, http.StatusOK, map[string]any{"url": ref, "ephemeral": true})
		return
	}

	signed, err := h.store.GetSignedURL(r.Context(), key, h.signedURLTTL)
	if err != nil {
		httpkit.WriteError(w, err)
		return
	}
	httpkit.WriteJSON(w, http.StatusOK, map[string]any{
		"url":        signed.URL,
		"expires_at": signed.ExpiresAt,
	})
}

// objectKeyFromRef recovers the object key from a stored output URL. Durable
// refs embed the key path starting at the outputs/ segment; anything else is
// an ephemeral renderer ref.
func objectKeyFromRef(ref string) (string, bool) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", false
	}
	parts := strings.Split(strings.TrimPrefix(u.Path, "/"), "/")
	for i, p := range parts {
		if p == "outputs" && i < len(parts)-1 {
			return strings.Join(parts[i:], "/"), true
		}
	}
	return "", false
}

func filterFromQuery(r *http.Request) (models.FeedFilter, error) {
	q := r.URL.Query()
	f := models.FeedFilter{
		OwnerID:      q.Get("owner_id"),
		TemplateName: q.Get("template_name"),
		Status:       models.Status(q.Get("status")),
		Limit:        20,
	}
	if f.Status != "" && !models.Status(f.Status).Valid() {
		return f, errors.ValidationField("status", "unknown status value")
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return f, errors.ValidationField("limit", "must be a positive integer")
		}
		f.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, errors.ValidationField("offset", "must be a non-negative integer")
		}
		f.Offset = n
	}
	return f, nil
}
