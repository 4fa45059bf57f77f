package companion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/kaytu-io/elastic-companion/pkg/es"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const maxLoggedItemErrors = 10

// NewBulkSink returns a synchronous writer submitting one _bulk request per
// chunkSize operations. Only counts are kept from the responses.
func (c *Client) NewBulkSink(chunkSize int) es.BulkSink {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	return &bulkSink{
		client:    c,
		chunkSize: chunkSize,
	}
}

type bulkSink struct {
	client    *Client
	chunkSize int

	buf     bytes.Buffer
	pending int
	stats   es.BulkStats
	logged  int
}

func encodeOperation(w io.Writer, op es.BulkOperation) error {
	meta := map[string]any{
		"_index": op.Index,
	}
	if op.ID != "" {
		meta["_id"] = op.ID
	}
	if op.Type != "" && op.Type != es.DefaultType {
		meta["_type"] = op.Type
	}
	if op.Routing != "" {
		meta["routing"] = op.Routing
	}

	enc := json.NewEncoder(w)
	if err := enc.Encode(map[string]any{string(op.Action): meta}); err != nil {
		return err
	}
	if op.Action != es.ActionIndex {
		return nil
	}
	source := op.Source
	if source == nil {
		source = map[string]any{}
	}
	return enc.Encode(source)
}

func (s *bulkSink) Add(ctx context.Context, op es.BulkOperation) error {
	if err := encodeOperation(&s.buf, op); err != nil {
		return fmt.Errorf("encode %s %s/%s: %w", op.Action, op.Index, op.ID, err)
	}
	s.pending++
	if s.pending >= s.chunkSize {
		return s.flush(ctx)
	}
	return nil
}

func (s *bulkSink) flush(ctx context.Context) error {
	if s.pending == 0 {
		return nil
	}
	count := s.pending
	body := bytes.NewReader(s.buf.Bytes())
	defer func() {
		s.buf.Reset()
		s.pending = 0
	}()

	req := opensearchapi.BulkRequest{
		Body: body,
	}
	res, err := req.Do(ctx, s.client.es)
	defer CloseSafe(res)
	if err != nil {
		return fmt.Errorf("bulk: %w", err)
	} else if err := CheckError(res); err != nil {
		return fmt.Errorf("bulk: %w", err)
	}

	b, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	stats := s.countItems(b)
	if stats.Succeeded+stats.Failed != count {
		s.client.logger.Warn("bulk response item count mismatch",
			zap.Int("sent", count),
			zap.Int("received", stats.Succeeded+stats.Failed))
	}
	s.stats = s.stats.Add(stats)
	s.client.logger.Debug("bulk chunk submitted",
		zap.Int("operations", count),
		zap.Int("failed", stats.Failed))
	return nil
}

func (s *bulkSink) countItems(b []byte) es.BulkStats {
	var stats es.BulkStats
	gjson.GetBytes(b, "items").ForEach(func(_, item gjson.Result) bool {
		item.ForEach(func(action, result gjson.Result) bool {
			status := result.Get("status").Int()
			if status >= 200 && status < 300 {
				stats.Succeeded++
				return false
			}
			stats.Failed++
			if s.logged < maxLoggedItemErrors {
				s.logged++
				s.client.logger.Warn("bulk item failed",
					zap.String("action", action.String()),
					zap.String("index", result.Get("_index").String()),
					zap.String("id", result.Get("_id").String()),
					zap.Int64("status", status),
					zap.String("reason", result.Get("error.reason").String()))
			}
			return false
		})
		return true
	})
	return stats
}

func (s *bulkSink) Close(ctx context.Context) (es.BulkStats, error) {
	if err := s.flush(ctx); err != nil {
		return s.stats, err
	}
	return s.stats, nil
}
