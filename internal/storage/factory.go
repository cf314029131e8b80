// Package storage builds the configured object store and archive clients.
package storage

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"forge/internal/adapters/storage/localfs"
	s3store "forge/internal/adapters/storage/s3"
	"forge/internal/config"
	"forge/internal/ports"
)

// NewObjectStore builds the object store named by cfg.StorageProvider.
func NewObjectStore(ctx context.Context, cfg *config.Config) (ports.ObjectStore, error) {
	switch cfg.StorageProvider {
	case "localfs":
		return localfs.New(cfg.LocalFSRoot, cfg.LocalFSBaseURL), nil

	case "s3":
		return s3store.New(ctx, s3store.Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			ForcePathStyle:  cfg.S3ForcePathStyle,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		})

	default:
		return nil, fmt.Errorf("unknown storage provider: %s", cfg.StorageProvider)
	}
}

// NewDriveService builds an authenticated Drive client from the configured
// OAuth refresh token. Returns nil when Drive is not configured.
func NewDriveService(ctx context.Context, cfg *config.Config) (*drive.Service, error) {
	if !cfg.DriveEnabled() {
		return nil, nil
	}

	conf := &oauth2.Config{
		ClientID:     cfg.DriveClientID,
		ClientSecret: cfg.DriveClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{drive.DriveFileScope},
	}

	tok := &oauth2.Token{RefreshToken: cfg.DriveRefreshToken}
	httpClient := conf.Client(ctx, tok)

	return drive.NewService(ctx, option.WithHTTPClient(httpClient))
}
