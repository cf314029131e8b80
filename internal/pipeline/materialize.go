// Package pipeline turns ephemeral renderer results into durable artifacts.
package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"
	"time"

	"github.com/hibiken/asynq"

	"forge/internal/archive"
	"forge/internal/models"
	"forge/internal/pkg/logger"
	"forge/internal/ports"
)

// Fetcher downloads an ephemeral result from the renderer.
type Fetcher interface {
	FetchResult(ctx context.Context, ref string) ([]byte, error)
}

// Deriver produces a preview artifact from the first materialized output.
type Deriver interface {
	Derive(ctx context.Context, jobID string, videoData []byte) (string, error)
}

// Enqueuer hands archive tasks to the background queue. *asynq.Client
// satisfies it.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Result is what Materialize resolved. DurableRefs always has one entry
// per input ref; items whose durability step failed keep the original
// ephemeral ref and an empty object key.
type Result struct {
	DurableRefs  []string
	ObjectKeys   []string
	ThumbnailURL string
	Warnings     []string
}

// AllFailed reports whether no ref reached the object store.
func (r *Result) AllFailed() bool {
	for _, k := range r.ObjectKeys {
		if k != "" {
			return false
		}
	}
	return len(r.ObjectKeys) > 0
}

// Pipeline runs the three materialization stages. Only stage 1 (durable
// copy) influences the job record; the thumbnail and archive stages are
// best-effort refinements.
type Pipeline struct {
	fetcher  Fetcher
	store    ports.ObjectStore
	deriver  Deriver
	enqueuer Enqueuer
	log      *logger.Logger
}

func New(fetcher Fetcher, store ports.ObjectStore, deriver Deriver, enqueuer Enqueuer, log *logger.Logger) *Pipeline {
	return &Pipeline{
		fetcher:  fetcher,
		store:    store,
		deriver:  deriver,
		enqueuer: enqueuer,
		log:      log.WithComponent("pipeline"),
	}
}

// Materialize copies each ephemeral ref into the object store, derives a
// thumbnail from the first stored output and enqueues archive replication.
// It never returns an error: per-item failures degrade to warnings and the
// original ephemeral ref.
func (p *Pipeline) Materialize(ctx context.Context, job *models.Job, ephemeralRefs []string) *Result {
	log := p.log.WithJobID(job.ID)
	res := &Result{
		DurableRefs: make([]string, len(ephemeralRefs)),
		ObjectKeys:  make([]string, len(ephemeralRefs)),
	}

	date := time.Now().UTC().Format("2006-01-02")
	var firstData []byte

	for i, ref := range ephemeralRefs {
		res.DurableRefs[i] = ref

		data, err := p.fetcher.FetchResult(ctx, ref)
		if err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("fetch output %d: %v", i, err))
			log.Warn("output fetch failed, keeping ephemeral ref", "index", i, "error", err.Error())
			continue
		}

		key := fmt.Sprintf("outputs/%s/%s_%d%s", date, job.ID, i, refExt(ref))
		out, err := p.store.PutObject(ctx, ports.PutObjectInput{
			ObjectKey:   key,
			ContentType: contentTypeFor(refExt(ref)),
			Reader:      bytes.NewReader(data),
			Size:        int64(len(data)),
		})
		if err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("store output %d: %v", i, err))
			log.Warn("output store failed, keeping ephemeral ref", "index", i, "error", err.Error())
			continue
		}

		res.DurableRefs[i] = out.URL
		res.ObjectKeys[i] = key
		if firstData == nil {
			firstData = data
		}
	}

	if firstData != nil && p.deriver != nil {
		thumbURL, err := p.deriver.Derive(ctx, job.ID, firstData)
		if err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("thumbnail: %v", err))
			log.Warn("thumbnail derivation failed", "error", err.Error())
		} else {
			res.ThumbnailURL = thumbURL
		}
	}

	p.enqueueArchive(ctx, job, res, log)

	return res
}

func (p *Pipeline) enqueueArchive(ctx context.Context, job *models.Job, res *Result, log *logger.Logger) {
	if job.ArchiveFolderID == "" || p.enqueuer == nil {
		return
	}

	var items []archive.ReplicateItem
	stored := 0
	for _, k := range res.ObjectKeys {
		if k != "" {
			stored++
		}
	}
	idx := 0
	for _, key := range res.ObjectKeys {
		if key == "" {
			continue
		}
		items = append(items, archive.ReplicateItem{
			ObjectKey: key,
			Filename:  archive.ItemFilename(job.ID, key, idx, stored),
		})
		idx++
	}
	if len(items) == 0 {
		return
	}

	task, err := archive.NewReplicateTask(archive.ReplicatePayload{
		JobID:    job.ID,
		FolderID: job.ArchiveFolderID,
		Items:    items,
	})
	if err != nil {
		res.Warnings = append(res.Warnings, fmt.Sprintf("archive enqueue: %v", err))
		log.Warn("archive task build failed", "error", err.Error())
		return
	}

	if _, err := p.enqueuer.EnqueueContext(ctx, task); err != nil {
		res.Warnings = append(res.Warnings, fmt.Sprintf("archive enqueue: %v", err))
		log.Warn("archive task enqueue failed", "error", err.Error())
	}
}

// refExt extracts a file extension from an ephemeral ref, looking at the
// filename query parameter first since renderer view URLs carry it there.
func refExt(ref string) string {
	if u, err := url.Parse(ref); err == nil {
		if fn := u.Query().Get("filename"); fn != "" {
			if ext := path.Ext(fn); ext != "" {
				return ext
			}
		}
		if ext := path.Ext(u.Path); ext != "" {
			return ext
		}
	}
	return ".mp4"
}

func contentTypeFor(ext string) string {
	switch ext {
	case ".mp4":
		return "video/mp4"
	case ".webm":
		return "video/webm"
	case ".gif":
		return "image/gif"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	default:
		return "application/octet-stream"
	}
}
