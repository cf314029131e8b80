// Package jobs implements the job lifecycle: creation, state transitions
// and completion materialization.
package jobs

import (
	"context"

	"github.com/google/uuid"

	"forge/internal/feedcache"
	"forge/internal/models"
	"forge/internal/pipeline"
	"forge/internal/pkg/errors"
	"forge/internal/pkg/logger"
	"forge/internal/repositories"
	"forge/internal/template"
)

const feedKind = "jobs"

// Store is the persistence contract the orchestrator drives.
type Store interface {
	Create(ctx context.Context, j *models.Job) error
	SetRendererID(ctx context.Context, jobID, rendererID string) error
	MarkProcessing(ctx context.Context, jobID string) error
	CompleteIfActive(ctx context.Context, jobID string, status models.Status, outputRefs []string, thumbnailURL, errorMessage string) (bool, error)
	Cancel(ctx context.Context, jobID string) error
	GetByID(ctx context.Context, jobID string) (*models.Job, error)
	GetByRendererID(ctx context.Context, rendererID string) (*models.Job, error)
	List(ctx context.Context, f models.FeedFilter) ([]models.Job, error)
	Feed(ctx context.Context, f models.FeedFilter) ([]models.FeedItem, error)
}

// CategoryResolver maps template names to storage category ids.
type CategoryResolver interface {
	Resolve(ctx context.Context, name string) (string, error)
}

// Builder produces render requests from templates.
type Builder interface {
	Build(name string, params map[string]any) (*template.RenderRequest, error)
}

// Submitter submits render requests to the renderer.
type Submitter interface {
	Submit(ctx context.Context, baseURL string, req *template.RenderRequest) (string, error)
}

// Materializer runs the completion pipeline.
type Materializer interface {
	Materialize(ctx context.Context, job *models.Job, ephemeralRefs []string) *pipeline.Result
}

// PollQueue receives renderer ids for the worker to poll.
type PollQueue interface {
	Push(ctx context.Context, rendererID string) error
}

// Deps collects the orchestrator's collaborators.
type Deps struct {
	Store      Store
	Categories CategoryResolver
	Builder    Builder
	Renderer   Submitter
	Pipeline   Materializer
	PollQueue  PollQueue
	Cache      *feedcache.Cache
	Logger     *logger.Logger

	// DefaultRendererURL is used when a create request names no renderer.
	DefaultRendererURL string
}

// Orchestrator owns the job state machine. It holds no job state across
// calls; every transition goes through the store.
type Orchestrator struct {
	deps Deps
	log  *logger.Logger
}

func New(deps Deps) *Orchestrator {
	return &Orchestrator{
		deps: deps,
		log:  deps.Logger.WithComponent("jobs"),
	}
}

// CreateInput describes a job creation request.
type CreateInput struct {
	OwnerID         string
	TemplateName    string
	Params          map[string]any
	InputRefs       []string
	RendererURL     string
	ArchiveFolderID string
}

// Create builds the render request, persists a pending job and submits it.
// A submission failure leaves the pending row in place with no renderer id
// so the caller can retry; template errors fail before anything persists.
func (o *Orchestrator) Create(ctx context.Context, in CreateInput) (*models.Job, error) {
	const op = "jobs.create"

	if in.OwnerID == "" {
		return nil, errors.ValidationField("owner_id", "owner id is required")
	}
	if in.TemplateName == "" {
		return nil, errors.ValidationField("template_name", "template name is required")
	}

	req, err := o.deps.Builder.Build(in.TemplateName, in.Params)
	if err != nil {
		return nil, err
	}

	categoryID, err := o.deps.Categories.Resolve(ctx, in.TemplateName)
	if err != nil {
		return nil, errors.Wrap(err, op, "resolving template category")
	}

	job := &models.Job{
		ID:              uuid.NewString(),
		OwnerID:         in.OwnerID,
		TemplateName:    in.TemplateName,
		CategoryID:      categoryID,
		Status:          models.StatusPending,
		InputRefs:       in.InputRefs,
		Params:          in.Params,
		ArchiveFolderID: in.ArchiveFolderID,
	}

	if err := o.deps.Store.Create(ctx, job); err != nil {
		return nil, errors.Wrap(err, op, "persisting job")
	}
	o.invalidateFeeds(job.OwnerID)

	log := o.log.WithJobID(job.ID)

	rendererURL := in.RendererURL
	if rendererURL == "" {
		rendererURL = o.deps.DefaultRendererURL
	}

	rendererID, err := o.deps.Renderer.Submit(ctx, rendererURL, req)
	if err != nil {
		// The pending row survives so the caller can retry submission.
		log.Warn("renderer submission failed, job left pending", "error", err.Error())
		return nil, errors.WrapWithCode(err, errors.CodeUnavailable, op, "submitting render request").
			WithField("job_id", job.ID)
	}

	if err := o.deps.Store.SetRendererID(ctx, job.ID, rendererID); err != nil {
		return nil, errors.Wrap(err, op, "recording renderer id").WithField("job_id", job.ID)
	}
	job.RendererID = rendererID

	if o.deps.PollQueue != nil {
		if err := o.deps.PollQueue.Push(ctx, rendererID); err != nil {
			log.Warn("poll queue push failed", "error", err.Error())
		}
	}

	log.Info("job created", "template", in.TemplateName, "renderer_id", rendererID)
	return job, nil
}

// MarkProcessing moves a pending job to processing.
func (o *Orchestrator) MarkProcessing(ctx context.Context, jobID string) (*models.Job, error) {
	if err := o.deps.Store.MarkProcessing(ctx, jobID); err != nil {
		return nil, mapStoreErr(err, jobID)
	}

	job, err := o.deps.Store.GetByID(ctx, jobID)
	if err != nil {
		return nil, mapStoreErr(err, jobID)
	}
	o.invalidateFeeds(job.OwnerID)
	return job, nil
}

// MarkProcessingByRendererID moves the job correlated with a renderer id
// to processing. Repeated calls on a job past pending are a no-op.
func (o *Orchestrator) MarkProcessingByRendererID(ctx context.Context, rendererID string) (*models.Job, error) {
	job, err := o.deps.Store.GetByRendererID(ctx, rendererID)
	if err != nil {
		return nil, mapStoreErr(err, rendererID)
	}
	if job.Status != models.StatusPending {
		return job, nil
	}
	return o.MarkProcessing(ctx, job.ID)
}

// Complete finishes the job identified by its renderer id. Duplicate
// deliveries on a terminal job return the stored record unchanged without
// re-running any side effects.
func (o *Orchestrator) Complete(ctx context.Context, rendererID string, success bool, outputRefs []string, errMsg string) (*models.Job, error) {
	const op = "jobs.complete"

	job, err := o.deps.Store.GetByRendererID(ctx, rendererID)
	if err != nil {
		return nil, mapStoreErr(err, rendererID)
	}

	log := o.log.WithJobID(job.ID)

	if job.Status.Terminal() {
		log.Info("duplicate completion ignored", "status", string(job.Status))
		return job, nil
	}

	var (
		status       models.Status
		outputs      []string
		thumbnailURL string
		message      string
	)

	if success {
		res := o.deps.Pipeline.Materialize(ctx, job, outputRefs)
		for _, w := range res.Warnings {
			log.Warn("materialization degraded", "warning", w)
		}

		if res.AllFailed() {
			// Nothing reached durable storage; the deliverable is gone.
			status = models.StatusFailed
			message = "failed to store any render output durably"
		} else {
			status = models.StatusCompleted
			outputs = res.DurableRefs
			thumbnailURL = res.ThumbnailURL
		}
	} else {
		status = models.StatusFailed
		message = errMsg
		if message == "" {
			message = "renderer reported failure"
		}
	}

	updated, err := o.deps.Store.CompleteIfActive(ctx, job.ID, status, outputs, thumbnailURL, message)
	if err != nil {
		return nil, errors.Wrap(err, op, "persisting completion").WithField("job_id", job.ID)
	}
	if !updated {
		// A concurrent duplicate won the conditional update; its record is
		// authoritative.
		log.Info("completion lost conditional update, returning stored record")
		return o.deps.Store.GetByID(ctx, job.ID)
	}

	o.invalidateFeeds(job.OwnerID)
	log.Info("job finished", "status", string(status), "outputs", len(outputs))

	return o.deps.Store.GetByID(ctx, job.ID)
}

// Cancel stops an active job.
func (o *Orchestrator) Cancel(ctx context.Context, jobID string) (*models.Job, error) {
	if err := o.deps.Store.Cancel(ctx, jobID); err != nil {
		return nil, mapStoreErr(err, jobID)
	}

	job, err := o.deps.Store.GetByID(ctx, jobID)
	if err != nil {
		return nil, mapStoreErr(err, jobID)
	}
	o.invalidateFeeds(job.OwnerID)
	return job, nil
}

// Get returns a job by internal id.
func (o *Orchestrator) Get(ctx context.Context, jobID string) (*models.Job, error) {
	job, err := o.deps.Store.GetByID(ctx, jobID)
	if err != nil {
		return nil, mapStoreErr(err, jobID)
	}
	return job, nil
}

// List returns full job rows, uncached.
func (o *Orchestrator) List(ctx context.Context, f models.FeedFilter) ([]models.Job, error) {
	normalizeFilter(&f)
	return o.deps.Store.List(ctx, f)
}

// Feed returns the trimmed feed projection through the read-through cache.
func (o *Orchestrator) Feed(ctx context.Context, f models.FeedFilter) ([]models.FeedItem, error) {
	normalizeFilter(&f)

	key := feedcache.Key(feedKind, f.OwnerID, f.TemplateName, string(f.Status), f.Limit, f.Offset)
	if cached, ok := o.deps.Cache.Get(key); ok {
		if items, ok := cached.([]models.FeedItem); ok {
			return items, nil
		}
	}

	items, err := o.deps.Store.Feed(ctx, f)
	if err != nil {
		return nil, err
	}

	o.deps.Cache.Set(key, items)
	return items, nil
}

// invalidateFeeds drops cached pages for the owner and the owner-less
// aggregate pages, since both could include the changed row.
func (o *Orchestrator) invalidateFeeds(ownerID string) {
	if o.deps.Cache == nil {
		return
	}
	o.deps.Cache.InvalidatePrefix(feedcache.OwnerPrefix(feedKind, ownerID))
	o.deps.Cache.InvalidatePrefix(feedcache.OwnerPrefix(feedKind, ""))
}

func normalizeFilter(f *models.FeedFilter) {
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 20
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
}

func mapStoreErr(err error, id string) error {
	switch {
	case errors.Is(err, repositories.ErrJobNotFound):
		return errors.NotFound("job", id)
	case errors.Is(err, repositories.ErrJobTerminal):
		return errors.Conflict("job already in a terminal status").WithField("id", id)
	default:
		return err
	}
}
