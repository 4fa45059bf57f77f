package companion

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/kaytu-io/elastic-companion/pkg/es"
	"github.com/kaytu-io/elastic-companion/pkg/koanf"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/zap/zaptest"
)

func readBody(t *testing.T, r *http.Request) []byte {
	t.Helper()
	var body io.Reader = r.Body
	if r.Header.Get("Content-Encoding") == "gzip" {
		gr, err := gzip.NewReader(r.Body)
		require.NoError(t, err)
		body = gr
	}
	b, err := io.ReadAll(body)
	require.NoError(t, err)
	return b
}

func hit(index, id string) map[string]any {
	return map[string]any{
		"_index":  index,
		"_type":   "_doc",
		"_id":     id,
		"_source": map[string]any{"id": id},
	}
}

type fakeCluster struct {
	t *testing.T

	mu          sync.Mutex
	scrollPages [][]map[string]any
	cleared     []string
	searchBody  []byte
	bulkLines   []string
}

func (f *fakeCluster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")

	path := r.URL.Path
	switch {
	case r.Method == http.MethodHead && path == "/companiontest":
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodHead:
		w.WriteHeader(http.StatusNotFound)
	case path == "/missing/_search":
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":{"type":"index_not_found_exception","reason":"no such index [missing]"},"status":404}`)
	case path == "/companiontest/_search":
		f.searchBody = readBody(f.t, r)
		json.NewEncoder(w).Encode(map[string]any{
			"_scroll_id": "scroll-1",
			"hits":       map[string]any{"hits": []any{hit("companiontest", "foo"), hit("companiontest", "bar")}},
		})
	case strings.HasPrefix(path, "/_search/scroll") && r.Method == http.MethodDelete:
		f.cleared = append(f.cleared, path+string(readBody(f.t, r)))
		fmt.Fprint(w, `{"succeeded":true}`)
	case strings.HasPrefix(path, "/_search/scroll"):
		var page []map[string]any
		if len(f.scrollPages) > 0 {
			page, f.scrollPages = f.scrollPages[0], f.scrollPages[1:]
		}
		json.NewEncoder(w).Encode(map[string]any{
			"_scroll_id": "scroll-2",
			"hits":       map[string]any{"hits": page},
		})
	case path == "/_bulk":
		var items []any
		sc := bufio.NewScanner(bytes.NewReader(readBody(f.t, r)))
		for sc.Scan() {
			line := sc.Text()
			f.bulkLines = append(f.bulkLines, line)
			action := gjson.Get(line, "index")
			name := "index"
			if !action.Exists() {
				action = gjson.Get(line, "delete")
				name = "delete"
				if !action.Exists() {
					continue
				}
			}
			status := 201
			if action.Get("_id").String() == "bad" {
				status = 409
			}
			items = append(items, map[string]any{name: map[string]any{
				"_index": action.Get("_index").String(),
				"_id":    action.Get("_id").String(),
				"status": status,
			}})
			if name == "index" {
				sc.Scan()
				f.bulkLines = append(f.bulkLines, sc.Text())
			}
		}
		json.NewEncoder(w).Encode(map[string]any{"errors": false, "items": items})
	case path == "/_cluster/health" && r.URL.Query().Get("level") == "nodes":
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"type":"illegal_argument_exception","reason":"unknown level [nodes]"},"status":400}`)
	case path == "/_cluster/health":
		fmt.Fprintf(w, `{"cluster_name":"test","status":"yellow","level":%q}`, r.URL.Query().Get("level"))
	default:
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprintf(w, `{"error":{"type":"unexpected","reason":"%s %s"},"status":404}`, r.Method, path)
	}
}

func newTestClient(t *testing.T, f *fakeCluster) *Client {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	c, err := NewClient(koanf.ElasticSearch{Address: srv.URL}, zaptest.NewLogger(t))
	require.NoError(t, err)
	return c
}

func TestScanReadsAllPagesAndClearsScroll(t *testing.T) {
	require := require.New(t)
	f := &fakeCluster{t: t, scrollPages: [][]map[string]any{
		{hit("companiontest", "baz")},
		{},
	}}
	c := newTestClient(t, f)
	ctx := context.Background()

	cur, err := c.Scan(ctx, "companiontest", es.ScanOptions{Type: "simple"})
	require.NoError(err)

	var ids []string
	for {
		doc, err := cur.Next(ctx)
		if err == io.EOF {
			break
		}
		require.NoError(err)
		require.Equal("companiontest", doc.Index)
		ids = append(ids, doc.ID)
	}
	require.Equal([]string{"foo", "bar", "baz"}, ids)
	require.NoError(cur.Close(ctx))
	require.Len(f.cleared, 1)

	require.Equal("simple", gjson.GetBytes(f.searchBody, "query.bool.filter.0.term._type").String())
	require.True(gjson.GetBytes(f.searchBody, "query.bool.must.0.match_all").Exists())
	require.Equal(int64(es.DefaultScrollSize), gjson.GetBytes(f.searchBody, "size").Int())
}

func TestScanMissingIndexIsEmpty(t *testing.T) {
	require := require.New(t)
	c := newTestClient(t, &fakeCluster{t: t})
	ctx := context.Background()

	cur, err := c.Scan(ctx, "missing", es.ScanOptions{})
	require.NoError(err)
	_, err = cur.Next(ctx)
	require.Equal(io.EOF, err)
	require.NoError(cur.Close(ctx))
}

func TestIndexExists(t *testing.T) {
	require := require.New(t)
	c := newTestClient(t, &fakeCluster{t: t})
	ctx := context.Background()

	ok, err := c.IndexExists(ctx, "companiontest")
	require.NoError(err)
	require.True(ok)

	ok, err = c.IndexExists(ctx, "missing")
	require.NoError(err)
	require.False(ok)
}

func TestBulkSinkChunksAndCounts(t *testing.T) {
	require := require.New(t)
	f := &fakeCluster{t: t}
	c := newTestClient(t, f)
	ctx := context.Background()

	sink := c.NewBulkSink(2)
	doc := es.Document{Index: "src", Type: "simple", ID: "foo", Source: map[string]any{"a": 1}}
	require.NoError(sink.Add(ctx, es.NewUpsert("dst", doc, true)))
	require.NoError(sink.Add(ctx, es.NewDelete(doc)))
	require.NoError(sink.Add(ctx, es.NewUpsert("dst", es.Document{ID: "bad"}, true)))

	stats, err := sink.Close(ctx)
	require.NoError(err)
	require.Equal(es.BulkStats{Succeeded: 2, Failed: 1}, stats)

	require.Equal(`{"index":{"_id":"foo","_index":"dst","_type":"simple"}}`, f.bulkLines[0])
	require.Equal(`{"a":1}`, f.bulkLines[1])
	require.Equal(`{"delete":{"_id":"foo","_index":"src","_type":"simple"}}`, f.bulkLines[2])
}

func TestClusterHealth(t *testing.T) {
	require := require.New(t)
	c := newTestClient(t, &fakeCluster{t: t})

	report, err := c.ClusterHealth(context.Background(), "indices")
	require.NoError(err)
	require.Equal("yellow", report.Status)
	require.Equal("indices", gjson.GetBytes(report.Raw, "level").String())

	_, err = c.ClusterHealth(context.Background(), "nodes")
	require.Error(err)
	require.True(strings.HasPrefix(err.Error(), "cluster health: "), err.Error())
	require.Contains(err.Error(), "unknown level [nodes]")
	var resp ErrorResponse
	require.ErrorAs(err, &resp)
}

func TestEncodeOperationOmitsDefaultType(t *testing.T) {
	require := require.New(t)
	var buf bytes.Buffer

	op := es.NewUpsert("dst", es.Document{Type: "_doc", Routing: "r1"}, false)
	require.NoError(encodeOperation(&buf, op))
	require.Equal("{\"index\":{\"_index\":\"dst\",\"routing\":\"r1\"}}\n{}\n", buf.String())
}

func TestCheckErrorTypes(t *testing.T) {
	require := require.New(t)

	err := decodeError(404, []byte(`{"error":{"type":"index_not_found_exception","reason":"no such index"},"status":404}`))
	require.True(IsIndexNotFoundErr(err))
	require.False(IsResourceAlreadyExistsErr(err))

	err = decodeError(400, []byte(`{"error":{"type":"resource_already_exists_exception","reason":"exists"}}`))
	require.True(IsResourceAlreadyExistsErr(err))

	err = decodeError(500, []byte(`oops`))
	require.False(IsIndexNotFoundErr(err))
	require.Contains(err.Error(), "oops")
}

func TestWithFiltersWrapsUserQuery(t *testing.T) {
	require := require.New(t)

	body := map[string]any{
		"query": map[string]any{"term": map[string]any{"user": "kimchy"}},
		"size":  10,
	}
	out := WithFilters(body, NewRangeFilter("timestamp", "", "2015-01-01", "2016-01-01", ""))
	b, err := json.Marshal(out)
	require.NoError(err)

	require.Equal("kimchy", gjson.GetBytes(b, "query.bool.must.0.term.user").String())
	require.Equal("2015-01-01", gjson.GetBytes(b, "query.bool.filter.0.range.timestamp.gte").String())
	require.Equal("2016-01-01", gjson.GetBytes(b, "query.bool.filter.0.range.timestamp.lt").String())
	require.False(gjson.GetBytes(b, "query.bool.filter.0.range.timestamp.gt").Exists())
	require.Equal(int64(10), gjson.GetBytes(b, "size").Int())
	require.Contains(body["query"], "term")

	b, err = json.Marshal(WithFilters(nil))
	require.NoError(err)
	require.JSONEq(`{"query":{"match_all":{}}}`, string(b))
}
