// Package repositories holds the Postgres persistence layer.
package repositories

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"forge/internal/models"
)

var (
	ErrJobNotFound = errors.New("job not found")
	// ErrJobTerminal signals a transition attempted on a job that already
	// reached a terminal status.
	ErrJobTerminal = errors.New("job already in a terminal status")
)

type JobRepository struct {
	db *pgxpool.Pool
}

func NewJobRepository(db *pgxpool.Pool) *JobRepository {
	return &JobRepository{db: db}
}

const jobColumns = `
	id, renderer_id, owner_id, template_name, category_id, status,
	input_refs, output_refs, thumbnail_url, params, error_message,
	archive_folder_id, created_at, updated_at
`

func (r *JobRepository) Create(ctx context.Context, j *models.Job) error {
	return r.db.QueryRow(ctx, `
		INSERT INTO jobs (
			id, owner_id, template_name, category_id, status,
			input_refs, params, archive_folder_id
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,NULLIF($8,''))
		RETURNING created_at, updated_at
	`, j.ID, j.OwnerID, j.TemplateName, j.CategoryID, j.Status,
		textArray(j.InputRefs), j.Params, j.ArchiveFolderID,
	).Scan(&j.CreatedAt, &j.UpdatedAt)
}

// SetRendererID records the renderer-assigned id after submission.
func (r *JobRepository) SetRendererID(ctx context.Context, jobID, rendererID string) error {
	cmd, err := r.db.Exec(ctx, `
		UPDATE jobs
		SET renderer_id=$2, updated_at=now()
		WHERE id=$1
	`, jobID, rendererID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

// MarkProcessing moves a pending job to processing.
func (r *JobRepository) MarkProcessing(ctx context.Context, jobID string) error {
	cmd, err := r.db.Exec(ctx, `
		UPDATE jobs
		SET status='processing', updated_at=now()
		WHERE id=$1 AND status='pending'
	`, jobID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return r.transitionFailure(ctx, jobID)
	}
	return nil
}

// CompleteIfActive finishes a job in one conditional update. The WHERE
// clause on active statuses is the idempotency guard: a duplicate delivery
// matches zero rows and reports updated=false without touching the row.
func (r *JobRepository) CompleteIfActive(ctx context.Context, jobID string, status models.Status, outputRefs []string, thumbnailURL, errorMessage string) (bool, error) {
	cmd, err := r.db.Exec(ctx, `
		UPDATE jobs
		SET status=$2,
		    output_refs=$3,
		    thumbnail_url=NULLIF($4,''),
		    error_message=NULLIF($5,''),
		    updated_at=now()
		WHERE id=$1 AND status IN ('pending','processing')
	`, jobID, status, textArray(outputRefs), thumbnailURL, errorMessage)
	if err != nil {
		return false, err
	}
	if cmd.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, jobID); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

// Cancel moves an active job to cancelled.
func (r *JobRepository) Cancel(ctx context.Context, jobID string) error {
	cmd, err := r.db.Exec(ctx, `
		UPDATE jobs
		SET status='cancelled', updated_at=now()
		WHERE id=$1 AND status IN ('pending','processing')
	`, jobID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return r.transitionFailure(ctx, jobID)
	}
	return nil
}

func (r *JobRepository) GetByID(ctx context.Context, jobID string) (*models.Job, error) {
	return r.getBy(ctx, "id", jobID)
}

func (r *JobRepository) GetByRendererID(ctx context.Context, rendererID string) (*models.Job, error) {
	return r.getBy(ctx, "renderer_id", rendererID)
}

func (r *JobRepository) getBy(ctx context.Context, column, value string) (*models.Job, error) {
	var (
		j            models.Job
		rendererID   *string
		thumbnailURL *string
		errorMessage *string
		archiveID    *string
	)

	err := r.db.QueryRow(ctx, `
		SELECT `+jobColumns+`
		FROM jobs
		WHERE `+column+`=$1
	`, value).Scan(
		&j.ID, &rendererID, &j.OwnerID, &j.TemplateName, &j.CategoryID, &j.Status,
		&j.InputRefs, &j.OutputRefs, &thumbnailURL, &j.Params, &errorMessage,
		&archiveID, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}

	j.RendererID = deref(rendererID)
	j.ThumbnailURL = deref(thumbnailURL)
	j.ErrorMessage = deref(errorMessage)
	j.ArchiveFolderID = deref(archiveID)
	return &j, nil
}

// List returns full job rows matching the filter, newest first.
func (r *JobRepository) List(ctx context.Context, f models.FeedFilter) ([]models.Job, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+jobColumns+`
		FROM jobs
		WHERE ($1='' OR owner_id=$1)
		  AND ($2='' OR template_name=$2)
		  AND ($3='' OR status=$3)
		ORDER BY created_at DESC
		LIMIT $4 OFFSET $5
	`, f.OwnerID, f.TemplateName, string(f.Status), f.Limit, f.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Job
	for rows.Next() {
		var (
			j            models.Job
			rendererID   *string
			thumbnailURL *string
			errorMessage *string
			archiveID    *string
		)
		if err := rows.Scan(
			&j.ID, &rendererID, &j.OwnerID, &j.TemplateName, &j.CategoryID, &j.Status,
			&j.InputRefs, &j.OutputRefs, &thumbnailURL, &j.Params, &errorMessage,
			&archiveID, &j.CreatedAt, &j.UpdatedAt,
		); err != nil {
			return nil, err
		}
		j.RendererID = deref(rendererID)
		j.ThumbnailURL = deref(thumbnailURL)
		j.ErrorMessage = deref(errorMessage)
		j.ArchiveFolderID = deref(archiveID)
		out = append(out, j)
	}
	return out, rows.Err()
}

// Feed returns the trimmed feed projection, newest first.
func (r *JobRepository) Feed(ctx context.Context, f models.FeedFilter) ([]models.FeedItem, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, owner_id, template_name, status, output_refs, thumbnail_url, created_at
		FROM jobs
		WHERE ($1='' OR owner_id=$1)
		  AND ($2='' OR template_name=$2)
		  AND ($3='' OR status=$3)
		ORDER BY created_at DESC
		LIMIT $4 OFFSET $5
	`, f.OwnerID, f.TemplateName, string(f.Status), f.Limit, f.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.FeedItem
	for rows.Next() {
		var (
			item         models.FeedItem
			thumbnailURL *string
		)
		if err := rows.Scan(
			&item.ID, &item.OwnerID, &item.TemplateName, &item.Status,
			&item.OutputRefs, &thumbnailURL, &item.CreatedAt,
		); err != nil {
			return nil, err
		}
		item.ThumbnailURL = deref(thumbnailURL)
		out = append(out, item)
	}
	return out, rows.Err()
}

// transitionFailure distinguishes a missing row from a terminal one when a
// conditional update matched nothing.
func (r *JobRepository) transitionFailure(ctx context.Context, jobID string) error {
	if _, err := r.GetByID(ctx, jobID); err != nil {
		return err
	}
	return ErrJobTerminal
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// textArray keeps a nil slice out of TEXT[] binds. pgx encodes nil as SQL
// NULL, which would violate the NOT NULL DEFAULT '{}' on the refs columns.
func textArray(refs []string) []string {
	if refs == nil {
		return []string{}
	}
	return refs
}
