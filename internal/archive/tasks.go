// Package archive replicates durable job outputs into a secondary archive
// service. Replication is best-effort: every failure is logged, retried by
// the queue, and never affects the job record.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/hibiken/asynq"

	"forge/internal/pkg/logger"
	"forge/internal/ports"
)

// TypeReplicate is the asynq task type for output replication.
const TypeReplicate = "archive:replicate"

// OutputsFolderName is the well-known subfolder created under the job's
// archive destination.
const OutputsFolderName = "Forge Outputs"

// ReplicateItem is one durable output to copy.
type ReplicateItem struct {
	ObjectKey string `json:"object_key"`
	Filename  string `json:"filename"`
}

// ReplicatePayload is the task payload for TypeReplicate.
type ReplicatePayload struct {
	JobID    string          `json:"job_id"`
	FolderID string          `json:"folder_id"`
	Items    []ReplicateItem `json:"items"`
}

// NewReplicateTask builds the asynq task for a job's outputs.
func NewReplicateTask(p ReplicatePayload) (*asynq.Task, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal replicate payload: %w", err)
	}
	return asynq.NewTask(TypeReplicate, payload, asynq.MaxRetry(3), asynq.Timeout(5*time.Minute)), nil
}

// ItemFilename names an archived output by job id, with an index suffix
// when a job has more than one output.
func ItemFilename(jobID, objectKey string, index, total int) string {
	ext := path.Ext(objectKey)
	if ext == "" {
		ext = ".mp4"
	}
	if total <= 1 {
		return jobID + ext
	}
	return fmt.Sprintf("%s_%d%s", jobID, index, ext)
}

// Handler processes replication tasks against the archive service.
type Handler struct {
	replicator ports.Replicator
	store      ports.ObjectStore
	log        *logger.Logger
}

func NewHandler(replicator ports.Replicator, store ports.ObjectStore, log *logger.Logger) *Handler {
	return &Handler{
		replicator: replicator,
		store:      store,
		log:        log.WithComponent("archive"),
	}
}

// ProcessTask copies each output into the job's archive folder. Per-file
// failures are logged and skipped so one broken output never blocks the
// rest; the task itself only fails when the folder cannot be ensured.
func (h *Handler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	var p ReplicatePayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		return fmt.Errorf("unmarshal replicate payload: %w", err)
	}

	log := h.log.WithJobID(p.JobID)

	folderID, err := h.replicator.EnsureFolder(ctx, p.FolderID, OutputsFolderName)
	if err != nil {
		log.Error("archive folder lookup failed", "error", err.Error())
		return err
	}

	for _, item := range p.Items {
		if err := h.replicateOne(ctx, item, folderID); err != nil {
			log.Warn("archive copy failed",
				"object_key", item.ObjectKey,
				"filename", item.Filename,
				"error", err.Error(),
			)
			continue
		}
		log.Info("archived output", "filename", item.Filename)
	}

	return nil
}

func (h *Handler) replicateOne(ctx context.Context, item ReplicateItem, folderID string) error {
	rc, contentType, _, err := h.store.GetObject(ctx, item.ObjectKey)
	if err != nil {
		return fmt.Errorf("reading stored output: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return fmt.Errorf("reading stored output: %w", err)
	}

	if contentType == "" {
		contentType = "video/mp4"
	}

	_, err = h.replicator.Upload(ctx, data, item.Filename, folderID, contentType)
	return err
}
