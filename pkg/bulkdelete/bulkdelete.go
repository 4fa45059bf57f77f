package bulkdelete

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/kaytu-io/elastic-companion/pkg/es"
	"go.uber.org/zap"
	"gopkg.in/go-playground/validator.v9"
)

const DefaultChunkSize = 1000

type Options struct {
	Index string `validate:"required"`
	// Type restricts the deletion to one document type.
	Type string
	// Query is a full search body; nil deletes every document of the index.
	Query map[string]any

	ChunkSize  int           `validate:"gte=0"`
	ScrollSize int           `validate:"gte=0"`
	KeepAlive  time.Duration `validate:"gte=0"`
}

// Run deletes every document of the index matching the query and type.
// A missing index is logged and reported as zero deletions.
func Run(ctx context.Context, client es.BulkClient, logger *zap.Logger, opts Options) (es.BulkStats, error) {
	var stats es.BulkStats
	if err := validator.New().Struct(opts); err != nil {
		return stats, fmt.Errorf("invalid delete options: %w", err)
	}
	if opts.ChunkSize == 0 {
		opts.ChunkSize = DefaultChunkSize
	}

	exists, err := client.IndexExists(ctx, opts.Index)
	if err != nil {
		return stats, fmt.Errorf("check index %s: %w", opts.Index, err)
	}
	if !exists {
		logger.Warn("index does not exist, nothing to delete", zap.String("index", opts.Index))
		return stats, nil
	}

	cursor, err := client.Scan(ctx, opts.Index, es.ScanOptions{
		Query:     opts.Query,
		Type:      opts.Type,
		Size:      opts.ScrollSize,
		KeepAlive: opts.KeepAlive,
	})
	if err != nil {
		return stats, fmt.Errorf("scan %s: %w", opts.Index, err)
	}
	defer func() {
		if err := cursor.Close(ctx); err != nil {
			logger.Warn("failed to close cursor", zap.Error(err))
		}
	}()

	sink := client.NewBulkSink(opts.ChunkSize)
	for {
		doc, err := cursor.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stats, fmt.Errorf("scan %s: %w", opts.Index, err)
		}
		if err := sink.Add(ctx, es.NewDelete(doc)); err != nil {
			return stats, fmt.Errorf("bulk: %w", err)
		}
	}

	stats, err = sink.Close(ctx)
	if err != nil {
		return stats, fmt.Errorf("bulk: %w", err)
	}
	logger.Info("delete finished",
		zap.String("index", opts.Index),
		zap.Int("succeeded", stats.Succeeded),
		zap.Int("failed", stats.Failed),
	)
	return stats, nil
}
