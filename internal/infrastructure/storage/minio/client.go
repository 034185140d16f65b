// Package minio fetches model artifacts from object storage at startup so a
// fresh node can serve without baked-in model files.
package minio

import (
	"context"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/healthsync/hybrid-engine/internal/config"
	"github.com/healthsync/hybrid-engine/internal/infrastructure/monitoring/logging"
	"github.com/healthsync/hybrid-engine/pkg/errors"
)

const statTimeout = 10 * time.Second

// ObjectStore is the slice of the minio client the fetcher uses.
type ObjectStore interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	FGetObject(ctx context.Context, bucketName, objectName, filePath string, opts minio.GetObjectOptions) error
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
}

// Client wraps the object store with the configured bucket and prefix.
type Client struct {
	store  ObjectStore
	cfg    config.MinIOConfig
	logger logging.Logger
}

// NewClient connects to the configured endpoint and verifies the artifact
// bucket exists.
func NewClient(ctx context.Context, cfg config.MinIOConfig, logger logging.Logger) (*Client, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	logger = logger.Named("minio")

	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to create object storage client")
	}

	c := &Client{store: mc, cfg: cfg, logger: logger}

	checkCtx, cancel := context.WithTimeout(ctx, statTimeout)
	defer cancel()
	exists, err := mc.BucketExists(checkCtx, cfg.Bucket)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to check artifact bucket").
			WithDetail("bucket=" + cfg.Bucket)
	}
	if !exists {
		return nil, errors.NotFound("artifact bucket does not exist").WithDetail("bucket=" + cfg.Bucket)
	}

	logger.Info("connected to object storage",
		logging.String("endpoint", cfg.Endpoint),
		logging.String("bucket", cfg.Bucket))
	return c, nil
}

// NewClientWithStore injects a store, for tests.
func NewClientWithStore(store ObjectStore, cfg config.MinIOConfig, logger logging.Logger) *Client {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Client{store: store, cfg: cfg, logger: logger.Named("minio")}
}
