package ports

import "context"

// Replicator copies durable outputs into a secondary archive service.
// Delivery is best-effort; callers log failures and never fail a job on them.
type Replicator interface {
	// EnsureFolder returns the id of the named child folder under parentID,
	// creating it if absent.
	EnsureFolder(ctx context.Context, parentID, name string) (string, error)

	// Upload stores data as filename inside folderID and returns the
	// archive-side file id.
	Upload(ctx context.Context, data []byte, filename, folderID, mimeType string) (string, error)
}
