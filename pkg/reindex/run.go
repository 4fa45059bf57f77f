package reindex

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
	Source string `validate:"required"`
	Target string `validate:"required"`

	DateField  string
	DeleteDocs bool
	UseSameID  bool

	// Query is a full search body restricting the source documents.
	Query map[string]any
	Type  string

	ChunkSize  int           `validate:"gte=0"`
	ScrollSize int           `validate:"gte=0"`
	KeepAlive  time.Duration `validate:"gte=0"`
}

type Stats struct {
	Bulk            es.BulkStats
	MappingFailures int
}

// Run copies every matching document of Source into Target (or the index its
// date renders to) and optionally deletes the source documents. Documents
// that cannot be mapped are logged and counted, they do not stop the run.
func Run(ctx context.Context, client es.BulkClient, logger *zap.Logger, opts Options) (Stats, error) {
	var stats Stats
	if err := validator.New().Struct(opts); err != nil {
		return stats, fmt.Errorf("invalid reindex options: %w", err)
	}
	mapper, err := NewMapper(MapperOptions{
		Target:     opts.Target,
		DateField:  opts.DateField,
		DeleteDocs: opts.DeleteDocs,
		UseSameID:  opts.UseSameID,
	})
	if err != nil {
		return stats, err
	}
	if opts.ChunkSize == 0 {
		opts.ChunkSize = DefaultChunkSize
	}

	exists, err := client.IndexExists(ctx, opts.Source)
	if err != nil {
		return stats, fmt.Errorf("check index %s: %w", opts.Source, err)
	}
	if !exists {
		logger.Warn("source index does not exist, nothing to reindex", zap.String("index", opts.Source))
		return stats, nil
	}

	cursor, err := client.Scan(ctx, opts.Source, es.ScanOptions{
		Query:     opts.Query,
		Type:      opts.Type,
		Size:      opts.ScrollSize,
		KeepAlive: opts.KeepAlive,
	})
	if err != nil {
		return stats, fmt.Errorf("scan %s: %w", opts.Source, err)
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
			return stats, fmt.Errorf("scan %s: %w", opts.Source, err)
		}

		ops, err := mapper.Map(doc)
		if err != nil {
			stats.MappingFailures++
			logger.Error("failed to map document", zap.String("id", doc.ID), zap.Error(err))
			continue
		}
		for _, op := range ops {
			if err := sink.Add(ctx, op); err != nil {
				return stats, fmt.Errorf("bulk: %w", err)
			}
		}
	}

	stats.Bulk, err = sink.Close(ctx)
	if err != nil {
		return stats, fmt.Errorf("bulk: %w", err)
	}
	logger.Info("reindex finished",
		zap.String("source", opts.Source),
		zap.String("target", opts.Target),
		zap.Int("succeeded", stats.Bulk.Succeeded),
		zap.Int("failed", stats.Bulk.Failed),
		zap.Int("mapping_failures", stats.MappingFailures),
	)
	return stats, nil
}
