package backup

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/kaytu-io/elastic-companion/pkg/es"
	"github.com/kaytu-io/elastic-companion/pkg/objectstore"
	"go.uber.org/zap"
	"gopkg.in/go-playground/validator.v9"
)

const DefaultKeyPrefix = "clibackup"

type S3Options struct {
	Options

	Bucket string `validate:"required"`
	// Prefix is the first key segment, DefaultKeyPrefix when empty.
	Prefix string
	// Now is the upload timestamp source, time.Now when nil.
	Now func() time.Time
}

// ObjectKey returns <prefix>/YYYY/MM/DD_HHMMSS_<archive file name> in UTC.
func ObjectKey(prefix string, now time.Time, archivePath string) string {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return path.Join(prefix, now.UTC().Format("2006/01/02_150405")+"_"+filepath.Base(archivePath))
}

// S3 backs up the index and uploads every archive to the bucket. It returns
// the uploaded keys; a missing index uploads nothing and returns no error.
// The working directory is removed whatever the outcome.
func S3(ctx context.Context, client es.ScanClient, store objectstore.Store, logger *zap.Logger, opts S3Options) ([]string, error) {
	if err := validator.New().Struct(opts); err != nil {
		return nil, fmt.Errorf("invalid backup options: %w", err)
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	ws, err := Fetch(ctx, client, logger, opts.Options)
	if err != nil {
		return nil, err
	}
	if ws == nil {
		return nil, nil
	}
	defer func() {
		if err := ws.Cleanup(); err != nil {
			logger.Error("failed to remove working directory", zap.String("dir", ws.Dir), zap.Error(err))
		}
	}()

	stamp := now()
	keys := make([]string, 0, len(ws.Archives))
	for _, p := range ws.Archives {
		key := ObjectKey(opts.Prefix, stamp, p)
		if err := upload(ctx, store, opts.Bucket, key, p); err != nil {
			return keys, err
		}
		logger.Info("archive uploaded", zap.String("bucket", opts.Bucket), zap.String("key", key))
		keys = append(keys, key)
	}
	return keys, nil
}

func upload(ctx context.Context, store objectstore.Store, bucket, key, file string) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()
	return store.PutObject(ctx, bucket, key, f)
}
