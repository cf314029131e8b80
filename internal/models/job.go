package models

import "time"

// Status is the lifecycle state of a job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Valid reports whether the status is a known lifecycle state.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Job is a single render request tracked from submission to durable outputs.
type Job struct {
	ID              string         `json:"id"`
	RendererID      string         `json:"renderer_id,omitempty"`
	OwnerID         string         `json:"owner_id"`
	TemplateName    string         `json:"template_name"`
	CategoryID      string         `json:"category_id"`
	Status          Status         `json:"status"`
	InputRefs       []string       `json:"input_refs,omitempty"`
	OutputRefs      []string       `json:"output_refs,omitempty"`
	ThumbnailURL    string         `json:"thumbnail_url,omitempty"`
	Params          map[string]any `json:"params,omitempty"`
	ErrorMessage    string         `json:"error_message,omitempty"`
	ArchiveFolderID string         `json:"archive_folder_id,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// FeedItem is the trimmed job view returned by feed queries.
type FeedItem struct {
	ID           string    `json:"id"`
	OwnerID      string    `json:"owner_id"`
	TemplateName string    `json:"template_name"`
	Status       Status    `json:"status"`
	OutputRefs   []string  `json:"output_refs,omitempty"`
	ThumbnailURL string    `json:"thumbnail_url,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// FeedFilter narrows feed and list queries. Zero values mean "any".
type FeedFilter struct {
	OwnerID      string
	TemplateName string
	Status       Status
	Limit        int
	Offset       int
}
