// Package estest provides an in-memory cluster implementing the pkg/es
// collaborator interfaces for tests.
package estest

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/kaytu-io/elastic-companion/pkg/es"
)

// MatchFunc decides whether a document satisfies a query body. The in-memory
// cluster has no query engine so tests supply the semantics they need.
type MatchFunc func(query map[string]any, doc es.Document) bool

type Cluster struct {
	mu      sync.Mutex
	indices map[string][]es.Document
	nextID  int

	Match MatchFunc

	// Ops records every operation received by a bulk sink, in order.
	Ops []es.BulkOperation
	// Chunks records the size of every submitted bulk chunk.
	Chunks []int
	// BulkErr, when set, is returned for every submitted chunk.
	BulkErr error
}

func NewCluster() *Cluster {
	return &Cluster{indices: map[string][]es.Document{}}
}

// Put stores doc, replacing an existing document with the same (type, id).
func (c *Cluster) Put(doc es.Document) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.put(doc)
}

func (c *Cluster) put(doc es.Document) {
	docs := c.indices[doc.Index]
	for i, d := range docs {
		if d.ID == doc.ID && d.TypeName() == doc.TypeName() {
			docs[i] = doc
			return
		}
	}
	c.indices[doc.Index] = append(docs, doc)
}

func (c *Cluster) delete(index, typ, id string) bool {
	docs := c.indices[index]
	for i, d := range docs {
		if d.ID == id && (typ == "" || d.TypeName() == typ) {
			c.indices[index] = append(docs[:i], docs[i+1:]...)
			return true
		}
	}
	return false
}

// Docs returns a copy of the documents stored in index.
func (c *Cluster) Docs(index string) []es.Document {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]es.Document(nil), c.indices[index]...)
}

// Indices returns the sorted names of all indices.
func (c *Cluster) Indices() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var names []string
	for name := range c.indices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *Cluster) IndexExists(_ context.Context, index string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.indices[index]
	return ok, nil
}

func (c *Cluster) matches(opts es.ScanOptions, doc es.Document) bool {
	if opts.Type != "" && doc.TypeName() != opts.Type {
		return false
	}
	if opts.Query != nil && c.Match != nil {
		return c.Match(opts.Query, doc)
	}
	return true
}

// Scan snapshots the matching documents; later writes are not observed.
func (c *Cluster) Scan(_ context.Context, index string, opts es.ScanOptions) (es.Cursor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var docs []es.Document
	for _, d := range c.indices[index] {
		if c.matches(opts, d) {
			docs = append(docs, d)
		}
	}
	return &cursor{docs: docs}, nil
}

func (c *Cluster) Count(_ context.Context, index string, opts es.ScanOptions) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var n int64
	for _, d := range c.indices[index] {
		if c.matches(opts, d) {
			n++
		}
	}
	return n, nil
}

func (c *Cluster) NewBulkSink(chunkSize int) es.BulkSink {
	return &sink{cluster: c, chunkSize: chunkSize}
}

func (c *Cluster) apply(ops []es.BulkOperation) (es.BulkStats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Chunks = append(c.Chunks, len(ops))
	if c.BulkErr != nil {
		return es.BulkStats{}, c.BulkErr
	}
	var stats es.BulkStats
	for _, op := range ops {
		switch op.Action {
		case es.ActionIndex:
			id := op.ID
			if id == "" {
				c.nextID++
				id = fmt.Sprintf("auto-%d", c.nextID)
			}
			c.put(es.Document{Index: op.Index, Type: op.Type, ID: id, Routing: op.Routing, Source: op.Source})
			stats.Succeeded++
		case es.ActionDelete:
			if c.delete(op.Index, op.Type, op.ID) {
				stats.Succeeded++
			} else {
				stats.Failed++
			}
		default:
			stats.Failed++
		}
	}
	return stats, nil
}

type cursor struct {
	docs   []es.Document
	pos    int
	closed bool
}

func (c *cursor) Next(context.Context) (es.Document, error) {
	if c.closed || c.pos >= len(c.docs) {
		return es.Document{}, io.EOF
	}
	d := c.docs[c.pos]
	c.pos++
	return d, nil
}

func (c *cursor) Close(context.Context) error {
	c.closed = true
	return nil
}

type sink struct {
	cluster   *Cluster
	chunkSize int
	pending   []es.BulkOperation
	stats     es.BulkStats
}

func (s *sink) Add(_ context.Context, op es.BulkOperation) error {
	s.cluster.mu.Lock()
	s.cluster.Ops = append(s.cluster.Ops, op)
	s.cluster.mu.Unlock()

	s.pending = append(s.pending, op)
	if len(s.pending) >= s.chunkSize {
		return s.flush()
	}
	return nil
}

func (s *sink) flush() error {
	if len(s.pending) == 0 {
		return nil
	}
	stats, err := s.cluster.apply(s.pending)
	s.pending = s.pending[:0]
	if err != nil {
		return err
	}
	s.stats = s.stats.Add(stats)
	return nil
}

func (s *sink) Close(context.Context) (es.BulkStats, error) {
	if err := s.flush(); err != nil {
		return s.stats, err
	}
	return s.stats, nil
}
