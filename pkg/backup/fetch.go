package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/kaytu-io/elastic-companion/pkg/archive"
	"github.com/kaytu-io/elastic-companion/pkg/es"
	"go.uber.org/zap"
	"gopkg.in/go-playground/validator.v9"
)

type Options struct {
	Index string `validate:"required"`
	// Type restricts the backup to one document type.
	Type string
	// Query is a full search body; nil backs up every document.
	Query     map[string]any
	Format    archive.Format
	BatchSize int `validate:"gte=0"`

	ScrollSize int           `validate:"gte=0"`
	KeepAlive  time.Duration `validate:"gte=0"`

	// TempDir is the parent of the working directory, os.TempDir() when empty.
	TempDir string
}

// Workspace is the per-invocation working directory holding the archives of
// one backup. Cleanup must be called once the archives have been consumed.
type Workspace struct {
	Dir       string
	Archives  []string
	Documents int
}

func (w *Workspace) Cleanup() error {
	if w == nil || w.Dir == "" {
		return nil
	}
	return os.RemoveAll(w.Dir)
}

func newArchiver(format archive.Format) (archive.Archiver, error) {
	if format == "" {
		format = archive.FormatZip
	}
	opts := archive.Options{DeleteOriginal: true}
	if format == archive.FormatZip {
		opts.Append = true
	}
	return archive.New(format, opts)
}

// Fetch scans the index into a fresh working directory and returns the
// resulting archives. A missing index is not an error: it is logged and
// (nil, nil) is returned without touching the filesystem.
func Fetch(ctx context.Context, client es.ScanClient, logger *zap.Logger, opts Options) (*Workspace, error) {
	if err := validator.New().Struct(opts); err != nil {
		return nil, fmt.Errorf("invalid backup options: %w", err)
	}
	archiver, err := newArchiver(opts.Format)
	if err != nil {
		return nil, err
	}

	exists, err := client.IndexExists(ctx, opts.Index)
	if err != nil {
		return nil, fmt.Errorf("check index %s: %w", opts.Index, err)
	}
	if !exists {
		logger.Warn("index does not exist, nothing to back up", zap.String("index", opts.Index))
		return nil, nil
	}

	dir, err := os.MkdirTemp(opts.TempDir, "companion-backup-")
	if err != nil {
		return nil, fmt.Errorf("create working directory: %w", err)
	}
	ws := &Workspace{Dir: dir}

	if err := fetchInto(ctx, client, logger, opts, archiver, ws); err != nil {
		if cerr := ws.Cleanup(); cerr != nil {
			logger.Error("failed to remove working directory", zap.String("dir", dir), zap.Error(cerr))
		}
		return nil, err
	}
	return ws, nil
}

func fetchInto(ctx context.Context, client es.ScanClient, logger *zap.Logger, opts Options, archiver archive.Archiver, ws *Workspace) error {
	cursor, err := client.Scan(ctx, opts.Index, es.ScanOptions{
		Query:     opts.Query,
		Type:      opts.Type,
		Size:      opts.ScrollSize,
		KeepAlive: opts.KeepAlive,
	})
	if err != nil {
		return fmt.Errorf("scan %s: %w", opts.Index, err)
	}
	defer func() {
		if err := cursor.Close(ctx); err != nil {
			logger.Warn("failed to close cursor", zap.Error(err))
		}
	}()

	acc := NewAccumulator(ws.Dir, archiver, opts.BatchSize, logger)
	for {
		doc, err := cursor.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("scan %s: %w", opts.Index, err)
		}
		if err := acc.Add(doc); err != nil {
			return err
		}
		ws.Documents++
	}
	if err := acc.Close(); err != nil {
		return err
	}

	ws.Archives = acc.Archives()
	logger.Info("index fetched",
		zap.String("index", opts.Index),
		zap.Int("documents", ws.Documents),
		zap.Int("archives", len(ws.Archives)),
	)
	return nil
}
