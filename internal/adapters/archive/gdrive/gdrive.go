// Package gdrive implements ports.Replicator backed by Google Drive.
package gdrive

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
)

const folderMimeType = "application/vnd.google-apps.folder"

// Replicator copies files into Drive folders. It works against both
// personal and shared drives.
type Replicator struct {
	srv *drive.Service
}

func NewReplicator(srv *drive.Service) *Replicator {
	return &Replicator{srv: srv}
}

// EnsureFolder looks up the named child folder under parentID and creates
// it when absent.
func (r *Replicator) EnsureFolder(ctx context.Context, parentID, name string) (string, error) {
	query := fmt.Sprintf(
		"name = '%s' and '%s' in parents and mimeType = '%s' and trashed = false",
		escapeQuery(name), parentID, folderMimeType,
	)

	list, err := r.srv.Files.List().
		Q(query).
		IncludeItemsFromAllDrives(true).
		SupportsAllDrives(true).
		PageSize(1).
		Fields("files(id, name)").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("gdrive folder lookup failed: %w", err)
	}

	if len(list.Files) > 0 {
		return list.Files[0].Id, nil
	}

	folder := &drive.File{
		Name:     name,
		MimeType: folderMimeType,
		Parents:  []string{parentID},
	}
	created, err := r.srv.Files.Create(folder).
		SupportsAllDrives(true).
		Fields("id").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("gdrive folder create failed: %w", err)
	}

	return created.Id, nil
}

// Upload stores data as filename inside folderID and returns the Drive
// file id.
func (r *Replicator) Upload(ctx context.Context, data []byte, filename, folderID, mimeType string) (string, error) {
	file := &drive.File{
		Name:    filename,
		Parents: []string{folderID},
	}

	call := r.srv.Files.Create(file).
		SupportsAllDrives(true).
		Fields("id")
	if mimeType != "" {
		call = call.Media(bytes.NewReader(data), googleapi.ContentType(mimeType))
	} else {
		call = call.Media(bytes.NewReader(data))
	}

	created, err := call.Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("gdrive upload failed: %w", err)
	}

	return created.Id, nil
}

// escapeQuery escapes single quotes and backslashes in a Drive query value.
func escapeQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}
