package storage

import (
	"context"
	"fmt"

	"github.com/mediaoffload/offloader/internal/config"
)

// New creates the ObjectStore selected by cfg.Backend. It does not validate
// completeness; callers check config.ValidateStorage first.
func New(ctx context.Context, cfg config.StorageConfig) (ObjectStore, error) {
	switch cfg.Backend {
	case "s3", "aws", "r2":
		return NewS3Store(ctx, S3Options{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Prefix:          cfg.S3.Prefix,
			Endpoint:        cfg.S3.Endpoint,
			UsePathStyle:    cfg.S3.UsePathStyle,
			AccessKeyID:     cfg.S3.AccessKey,
			SecretAccessKey: cfg.S3.SecretKey,
			ACL:             cfg.S3.ACL,
		})
	case "gcp", "gcs":
		return NewGCSStore(ctx, cfg.GCP.Bucket, cfg.GCP.Project, cfg.GCP.Prefix)
	case "azure":
		return NewAzureStore(ctx, AzureOptions{
			Container:          cfg.Azure.Container,
			AccountURL:         cfg.Azure.ResolvedAccountURL(),
			ConnectionString:   cfg.Azure.ConnectionString,
			UseManagedIdentity: cfg.Azure.UseManagedIdentity,
			Prefix:             cfg.Azure.Prefix,
		})
	case "local":
		s, err := NewLocalStore(cfg.Local.RootDir)
		if err != nil {
			return nil, err
		}
		if err := s.CleanTempFiles(); err != nil {
			return nil, err
		}
		return s, nil
	case "memory":
		return NewMemoryStore(0), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
