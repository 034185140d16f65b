package minio

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/healthsync/hybrid-engine/internal/infrastructure/monitoring/logging"
	"github.com/healthsync/hybrid-engine/pkg/errors"
)

// Artifact names one file to materialize on local disk.
type Artifact struct {
	// ObjectName is the object key relative to the configured prefix.
	ObjectName string
	// LocalPath is where the file must exist for the engine to load it.
	LocalPath string
}

// EnsureLocal downloads every artifact that is not already present on disk.
// Existing files are kept as-is; a node restart does not re-download
// multi-gigabyte models.
func (c *Client) EnsureLocal(ctx context.Context, artifacts []Artifact) error {
	for _, a := range artifacts {
		if _, err := os.Stat(a.LocalPath); err == nil {
			c.logger.Debug("artifact already present", logging.String("path", a.LocalPath))
			continue
		}
		if err := c.fetch(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) fetch(ctx context.Context, a Artifact) error {
	object := path.Join(c.cfg.ArtifactPrefix, a.ObjectName)

	statCtx, cancel := context.WithTimeout(ctx, statTimeout)
	info, err := c.store.StatObject(statCtx, c.cfg.Bucket, object, minio.StatObjectOptions{})
	cancel()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeNotFound, "model artifact not found in object storage").
			WithDetail("object=" + object)
	}

	if err := os.MkdirAll(filepath.Dir(a.LocalPath), 0o755); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create artifact directory")
	}

	start := time.Now()
	if err := c.store.FGetObject(ctx, c.cfg.Bucket, object, a.LocalPath, minio.GetObjectOptions{}); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to download model artifact").
			WithDetail("object=" + object)
	}

	c.logger.Info("artifact downloaded",
		logging.String("object", object),
		logging.String("path", a.LocalPath),
		logging.Int64("bytes", info.Size),
		logging.Duration("elapsed", time.Since(start)))
	return nil
}
