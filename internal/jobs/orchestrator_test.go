package jobs

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"forge/internal/feedcache"
	"forge/internal/models"
	"forge/internal/pipeline"
	"forge/internal/pkg/errors"
	"forge/internal/pkg/logger"
	"forge/internal/repositories"
	"forge/internal/template"
)

type memStore struct {
	jobs      map[string]*models.Job
	feedCalls int
}

func newMemStore() *memStore {
	return &memStore{jobs: make(map[string]*models.Job)}
}

func (s *memStore) Create(ctx context.Context, j *models.Job) error {
	j.CreatedAt = time.Now()
	j.UpdatedAt = j.CreatedAt
	cp := *j
	s.jobs[j.ID] = &cp
	return nil
}

func (s *memStore) SetRendererID(ctx context.Context, jobID, rendererID string) error {
	j, ok := s.jobs[jobID]
	if !ok {
		return repositories.ErrJobNotFound
	}
	j.RendererID = rendererID
	return nil
}

func (s *memStore) MarkProcessing(ctx context.Context, jobID string) error {
	j, ok := s.jobs[jobID]
	if !ok {
		return repositories.ErrJobNotFound
	}
	if j.Status != models.StatusPending {
		return repositories.ErrJobTerminal
	}
	j.Status = models.StatusProcessing
	return nil
}

func (s *memStore) CompleteIfActive(ctx context.Context, jobID string, status models.Status, outputRefs []string, thumbnailURL, errorMessage string) (bool, error) {
	j, ok := s.jobs[jobID]
	if !ok {
		return false, repositories.ErrJobNotFound
	}
	if j.Status != models.StatusPending && j.Status != models.StatusProcessing {
		return false, nil
	}
	j.Status = status
	j.OutputRefs = outputRefs
	j.ThumbnailURL = thumbnailURL
	j.ErrorMessage = errorMessage
	j.UpdatedAt = time.Now()
	return true, nil
}

func (s *memStore) Cancel(ctx context.Context, jobID string) error {
	j, ok := s.jobs[jobID]
	if !ok {
		return repositories.ErrJobNotFound
	}
	if j.Status != models.StatusPending && j.Status != models.StatusProcessing {
		return repositories.ErrJobTerminal
	}
	j.Status = models.StatusCancelled
	return nil
}

func (s *memStore) GetByID(ctx context.Context, jobID string) (*models.Job, error) {
	j, ok := s.jobs[jobID]
	if !ok {
		return nil, repositories.ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

func (s *memStore) GetByRendererID(ctx context.Context, rendererID string) (*models.Job, error) {
	for _, j := range s.jobs {
		if j.RendererID == rendererID {
			cp := *j
			return &cp, nil
		}
	}
	return nil, repositories.ErrJobNotFound
}

func (s *memStore) List(ctx context.Context, f models.FeedFilter) ([]models.Job, error) {
	var out []models.Job
	for _, j := range s.jobs {
		out = append(out, *j)
	}
	return out, nil
}

func (s *memStore) Feed(ctx context.Context, f models.FeedFilter) ([]models.FeedItem, error) {
	s.feedCalls++
	var out []models.FeedItem
	for _, j := range s.jobs {
		if f.OwnerID != "" && j.OwnerID != f.OwnerID {
			continue
		}
		out = append(out, models.FeedItem{
			ID:           j.ID,
			OwnerID:      j.OwnerID,
			TemplateName: j.TemplateName,
			Status:       j.Status,
		})
	}
	return out, nil
}

type fakeCategories struct{}

func (fakeCategories) Resolve(ctx context.Context, name string) (string, error) {
	return "cat-" + name, nil
}

type fakeBuilder struct {
	err error
}

func (b *fakeBuilder) Build(name string, params map[string]any) (*template.RenderRequest, error) {
	if b.err != nil {
		return nil, b.err
	}
	return &template.RenderRequest{
		ClientID: "client-1",
		Document: map[string]any{"1": map[string]any{"class_type": "X", "inputs": map[string]any{}}},
	}, nil
}

type fakeSubmitter struct {
	id    string
	err   error
	calls int
}

func (s *fakeSubmitter) Submit(ctx context.Context, baseURL string, req *template.RenderRequest) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.id, nil
}

type fakeMaterializer struct {
	result *pipeline.Result
	calls  int
}

func (m *fakeMaterializer) Materialize(ctx context.Context, job *models.Job, refs []string) *pipeline.Result {
	m.calls++
	return m.result
}

type fakeQueue struct {
	pushed []string
}

func (q *fakeQueue) Push(ctx context.Context, rendererID string) error {
	q.pushed = append(q.pushed, rendererID)
	return nil
}

type fixture struct {
	orch  *Orchestrator
	store *memStore
	sub   *fakeSubmitter
	mat   *fakeMaterializer
	queue *fakeQueue
	cache *feedcache.Cache
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := newMemStore()
	sub := &fakeSubmitter{id: "rid-1"}
	mat := &fakeMaterializer{result: &pipeline.Result{
		DurableRefs:  []string{"https://store.example/outputs/2026-08-31/j_0.mp4"},
		ObjectKeys:   []string{"outputs/2026-08-31/j_0.mp4"},
		ThumbnailURL: "https://store.example/thumbnails/j.jpg",
	}}
	queue := &fakeQueue{}
	cache := feedcache.New(feedcache.DefaultTTL, feedcache.DefaultEntries)

	orch := New(Deps{
		Store:              store,
		Categories:         fakeCategories{},
		Builder:            &fakeBuilder{},
		Renderer:           sub,
		Pipeline:           mat,
		PollQueue:          queue,
		Cache:              cache,
		Logger:             logger.New(logger.Config{Level: "error", Format: "text", ServiceName: "test"}),
		DefaultRendererURL: "http://renderer:8188",
	})

	return &fixture{orch: orch, store: store, sub: sub, mat: mat, queue: queue, cache: cache}
}

func createJob(t *testing.T, f *fixture) *models.Job {
	t.Helper()
	job, err := f.orch.Create(context.Background(), CreateInput{
		OwnerID:      "owner-1",
		TemplateName: "Lipsync",
		Params:       map[string]any{"VIDEO": "a.mp4"},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return job
}

func TestCreate(t *testing.T) {
	f := newFixture(t)
	job := createJob(t, f)

	if job.Status != models.StatusPending {
		t.Errorf("status = %s, want pending", job.Status)
	}
	if job.RendererID != "rid-1" {
		t.Errorf("renderer id = %q", job.RendererID)
	}
	if job.CategoryID != "cat-Lipsync" {
		t.Errorf("category id = %q", job.CategoryID)
	}
	if len(f.queue.pushed) != 1 || f.queue.pushed[0] != "rid-1" {
		t.Errorf("poll queue = %v", f.queue.pushed)
	}
}

func TestCreateSubmitFailureLeavesPendingRow(t *testing.T) {
	f := newFixture(t)
	f.sub.err = stderrors.New("connection refused")

	_, err := f.orch.Create(context.Background(), CreateInput{
		OwnerID:      "owner-1",
		TemplateName: "Lipsync",
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.IsCode(err, errors.CodeUnavailable) {
		t.Errorf("code = %v", errors.GetCode(err))
	}

	jobID, _ := errors.GetFields(err)["job_id"].(string)
	if jobID == "" {
		t.Fatal("error should carry the persisted job id")
	}

	job, err := f.store.GetByID(context.Background(), jobID)
	if err != nil {
		t.Fatalf("pending row missing: %v", err)
	}
	if job.Status != models.StatusPending || job.RendererID != "" {
		t.Errorf("job = %+v, want pending with no renderer id", job)
	}
}

func TestCreateTemplateFailurePersistsNothing(t *testing.T) {
	f := newFixture(t)
	failing := New(Deps{
		Store:      f.store,
		Categories: fakeCategories{},
		Builder:    &fakeBuilder{err: errors.Validation("unresolved placeholders: VIDEO")},
		Renderer:   f.sub,
		Pipeline:   f.mat,
		Cache:      f.cache,
		Logger:     logger.New(logger.Config{Level: "error", Format: "text", ServiceName: "test"}),
	})

	_, err := failing.Create(context.Background(), CreateInput{
		OwnerID:      "owner-1",
		TemplateName: "Lipsync",
	})
	if !errors.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(f.store.jobs) != 0 {
		t.Error("no job row should exist after a template failure")
	}
	if f.sub.calls != 0 {
		t.Error("renderer must not be called after a template failure")
	}
}

func TestCompleteSuccess(t *testing.T) {
	f := newFixture(t)
	created := createJob(t, f)

	job, err := f.orch.Complete(context.Background(), "rid-1", true, []string{"http://renderer/view?filename=out.mp4"}, "")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if job.ID != created.ID {
		t.Errorf("job id = %s", job.ID)
	}
	if job.Status != models.StatusCompleted {
		t.Errorf("status = %s, want completed", job.Status)
	}
	if len(job.OutputRefs) != 1 || job.OutputRefs[0] != "https://store.example/outputs/2026-08-31/j_0.mp4" {
		t.Errorf("outputs = %v", job.OutputRefs)
	}
	if job.ThumbnailURL == "" {
		t.Error("thumbnail not recorded")
	}
	if f.mat.calls != 1 {
		t.Errorf("pipeline calls = %d, want 1", f.mat.calls)
	}
}

func TestCompleteIsIdempotent(t *testing.T) {
	f := newFixture(t)
	createJob(t, f)

	first, err := f.orch.Complete(context.Background(), "rid-1", true, []string{"http://renderer/view?filename=out.mp4"}, "")
	if err != nil {
		t.Fatalf("first Complete: %v", err)
	}

	second, err := f.orch.Complete(context.Background(), "rid-1", true, []string{"http://renderer/view?filename=out.mp4"}, "")
	if err != nil {
		t.Fatalf("second Complete: %v", err)
	}

	if f.mat.calls != 1 {
		t.Errorf("pipeline calls = %d, want exactly 1", f.mat.calls)
	}
	if second.Status != first.Status || second.UpdatedAt != first.UpdatedAt {
		t.Errorf("record changed on duplicate completion: %+v vs %+v", first, second)
	}
}

func TestCompleteRendererFailure(t *testing.T) {
	f := newFixture(t)
	createJob(t, f)

	job, err := f.orch.Complete(context.Background(), "rid-1", false, nil, "out of VRAM")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if job.Status != models.StatusFailed {
		t.Errorf("status = %s, want failed", job.Status)
	}
	if job.ErrorMessage != "out of VRAM" {
		t.Errorf("error message = %q", job.ErrorMessage)
	}
	if f.mat.calls != 0 {
		t.Error("pipeline must not run on renderer failure")
	}
}

func TestCompleteAllOutputsFailedDurability(t *testing.T) {
	f := newFixture(t)
	createJob(t, f)
	f.mat.result = &pipeline.Result{
		DurableRefs: []string{"http://renderer/view?filename=out.mp4"},
		ObjectKeys:  []string{""},
		Warnings:    []string{"fetch output 0: download failed"},
	}

	job, err := f.orch.Complete(context.Background(), "rid-1", true, []string{"http://renderer/view?filename=out.mp4"}, "")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if job.Status != models.StatusFailed {
		t.Errorf("status = %s, want failed", job.Status)
	}
	if job.ErrorMessage == "" {
		t.Error("error message should record total durability failure")
	}
}

func TestCompleteUnknownRendererID(t *testing.T) {
	f := newFixture(t)
	_, err := f.orch.Complete(context.Background(), "rid-unknown", true, nil, "")
	if !errors.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	created := createJob(t, f)

	job, err := f.orch.Cancel(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if job.Status != models.StatusCancelled {
		t.Errorf("status = %s, want cancelled", job.Status)
	}

	if _, err := f.orch.Cancel(context.Background(), created.ID); !errors.IsConflict(err) {
		t.Errorf("cancelling a cancelled job should conflict, got %v", err)
	}
}

func TestMarkProcessing(t *testing.T) {
	f := newFixture(t)
	created := createJob(t, f)

	job, err := f.orch.MarkProcessing(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}
	if job.Status != models.StatusProcessing {
		t.Errorf("status = %s", job.Status)
	}
}

func TestFeedUsesCache(t *testing.T) {
	f := newFixture(t)
	createJob(t, f)

	filter := models.FeedFilter{OwnerID: "owner-1", Limit: 20}

	if _, err := f.orch.Feed(context.Background(), filter); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if _, err := f.orch.Feed(context.Background(), filter); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if f.store.feedCalls != 1 {
		t.Errorf("store feed calls = %d, want 1 (second read cached)", f.store.feedCalls)
	}
}

func TestFeedInvalidatedByWrite(t *testing.T) {
	f := newFixture(t)
	created := createJob(t, f)

	filter := models.FeedFilter{OwnerID: "owner-1", Limit: 20}
	if _, err := f.orch.Feed(context.Background(), filter); err != nil {
		t.Fatalf("Feed: %v", err)
	}

	if _, err := f.orch.Cancel(context.Background(), created.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	items, err := f.orch.Feed(context.Background(), filter)
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	if f.store.feedCalls != 2 {
		t.Errorf("store feed calls = %d, want 2 (cache invalidated by write)", f.store.feedCalls)
	}
	if len(items) != 1 || items[0].Status != models.StatusCancelled {
		t.Errorf("items = %v, want the cancelled job", items)
	}
}
