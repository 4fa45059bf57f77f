package companion

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/kaytu-io/elastic-companion/pkg/es"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
	"github.com/opensearch-project/opensearch-go/v2/opensearchutil"
	"go.uber.org/zap"
)

type scrollResponse struct {
	ScrollID string `json:"_scroll_id"`
	Hits     struct {
		Hits []es.Document `json:"hits"`
	} `json:"hits"`
}

// scanBody merges the caller's search body with the type restriction and the
// scroll defaults.
func scanBody(opts es.ScanOptions) map[string]any {
	body := WithFilters(opts.Query)
	if opts.Type != "" {
		body = WithFilters(body, NewTermFilter("_type", opts.Type))
	}

	if _, ok := body["size"]; !ok {
		body["size"] = opts.Size
	}
	if _, ok := body["sort"]; !ok {
		body["sort"] = []string{"_doc"}
	}
	return body
}

// Scan opens a scroll cursor over index. A missing index yields an empty cursor.
func (c *Client) Scan(ctx context.Context, index string, opts es.ScanOptions) (es.Cursor, error) {
	if opts.Size <= 0 {
		opts.Size = es.DefaultScrollSize
	}
	if opts.KeepAlive <= 0 {
		opts.KeepAlive = es.DefaultScrollKeepAlive
	}

	req := opensearchapi.SearchRequest{
		Index:  []string{index},
		Body:   opensearchutil.NewJSONReader(scanBody(opts)),
		Scroll: opts.KeepAlive,
	}
	res, err := req.Do(ctx, c.es)
	defer CloseSafe(res)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", index, err)
	} else if err := CheckError(res); err != nil {
		if IsIndexNotFoundErr(err) {
			c.logger.Warn("scanned index does not exist", zap.String("index", index))
			return &scrollCursor{client: c, done: true}, nil
		}
		return nil, fmt.Errorf("scan %s: %w", index, err)
	}

	cur := &scrollCursor{client: c, opts: opts}
	if err := cur.load(res.Body); err != nil {
		return nil, fmt.Errorf("scan %s: %w", index, err)
	}
	return cur, nil
}

type scrollCursor struct {
	client   *Client
	opts     es.ScanOptions
	scrollID string
	page     []es.Document
	pos      int
	done     bool
}

func (s *scrollCursor) load(body io.Reader) error {
	b, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	var response scrollResponse
	if err := json.Unmarshal(b, &response); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	if response.ScrollID != "" {
		s.scrollID = response.ScrollID
	}
	s.page = response.Hits.Hits
	s.pos = 0
	if len(s.page) == 0 {
		s.done = true
	}
	return nil
}

func (s *scrollCursor) Next(ctx context.Context) (es.Document, error) {
	for s.pos >= len(s.page) {
		if s.done {
			return es.Document{}, io.EOF
		}
		if err := s.fetch(ctx); err != nil {
			return es.Document{}, err
		}
	}
	doc := s.page[s.pos]
	s.pos++
	return doc, nil
}

func (s *scrollCursor) fetch(ctx context.Context) error {
	req := opensearchapi.ScrollRequest{
		ScrollID: s.scrollID,
		Scroll:   s.opts.KeepAlive,
	}
	res, err := req.Do(ctx, s.client.es)
	defer CloseSafe(res)
	if err != nil {
		return fmt.Errorf("scroll: %w", err)
	} else if err := CheckError(res); err != nil {
		return fmt.Errorf("scroll: %w", err)
	}
	return s.load(res.Body)
}

// Close releases the server side scroll context.
func (s *scrollCursor) Close(ctx context.Context) error {
	s.done = true
	s.page = nil
	if s.scrollID == "" {
		return nil
	}
	req := opensearchapi.ClearScrollRequest{
		ScrollID: []string{s.scrollID},
	}
	s.scrollID = ""
	res, err := req.Do(ctx, s.client.es)
	defer CloseSafe(res)
	if err != nil {
		return err
	} else if err := CheckError(res); err != nil {
		return err
	}
	return nil
}
