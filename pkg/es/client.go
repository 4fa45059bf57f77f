package es

import (
	"context"
	"time"
)

const (
	DefaultScrollSize      = 1000
	DefaultScrollKeepAlive = 5 * time.Minute
)

// ScanOptions restricts and tunes a full-index scan.
type ScanOptions struct {
	// Query is a full search body ({"query": {...}}); nil scans everything.
	Query map[string]any
	// Type restricts the scan to one document type.
	Type      string
	Size      int
	KeepAlive time.Duration
}

// Cursor is a forward-only, single-pass sequence of documents.
// Next returns io.EOF once the sequence is exhausted.
type Cursor interface {
	Next(ctx context.Context) (Document, error)
	Close(ctx context.Context) error
}

type Scanner interface {
	Scan(ctx context.Context, index string, opts ScanOptions) (Cursor, error)
}

type IndexChecker interface {
	IndexExists(ctx context.Context, index string) (bool, error)
}

// BulkSink buffers operations and submits them in fixed-size chunks.
type BulkSink interface {
	Add(ctx context.Context, op BulkOperation) error
	Close(ctx context.Context) (BulkStats, error)
}

type BulkWriter interface {
	NewBulkSink(chunkSize int) BulkSink
}

type Counter interface {
	Count(ctx context.Context, index string, opts ScanOptions) (int64, error)
}

// ScanClient is everything the backup pipeline needs from the cluster.
type ScanClient interface {
	IndexChecker
	Scanner
}

// BulkClient is everything the reindex and delete pipelines need from the cluster.
type BulkClient interface {
	IndexChecker
	Scanner
	BulkWriter
}
