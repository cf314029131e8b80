// Package ports declares the interfaces behind which external collaborators
// (object store, archive service) sit.
package ports

import (
	"context"
	"io"
	"time"
)

type PutObjectInput struct {
	ObjectKey   string
	ContentType string
	Reader      io.Reader
	Size        int64
}

type PutObjectOutput struct {
	ObjectKey string
	// URL is a caller-usable reference to the stored object. For localfs it
	// is served by the API; for s3 it is the bucket object URL.
	URL  string
	Size int64
}

type SignedURLOutput struct {
	URL       string
	ExpiresAt time.Time
}

// ObjectStore: implementations (localfs, s3).
type ObjectStore interface {
	Provider() string

	PutObject(ctx context.Context, in PutObjectInput) (PutObjectOutput, error)
	GetObject(ctx context.Context, objectKey string) (rc io.ReadCloser, contentType string, size int64, err error)
	DeleteObject(ctx context.Context, objectKey string) error

	GetSignedURL(ctx context.Context, objectKey string, expiresIn time.Duration) (SignedURLOutput, error)
}
