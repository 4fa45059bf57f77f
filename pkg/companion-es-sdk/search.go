package companion

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/kaytu-io/elastic-companion/pkg/es"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
	"github.com/opensearch-project/opensearch-go/v2/opensearchutil"
	"github.com/tidwall/gjson"
)

type CountResponse struct {
	Count int64 `json:"count"`
}

// Count returns the number of documents a Scan with the same options would
// produce. A missing index counts as zero.
func (c *Client) Count(ctx context.Context, index string, scan es.ScanOptions) (int64, error) {
	opts := []func(count *opensearchapi.CountRequest){
		c.es.Count.WithContext(ctx),
		c.es.Count.WithIndex(index),
		c.es.Count.WithBody(opensearchutil.NewJSONReader(map[string]any{
			"query": scanBody(scan)["query"],
		})),
	}

	res, err := c.es.Count(opts...)
	defer CloseSafe(res)
	if err != nil {
		return 0, err
	} else if err := CheckError(res); err != nil {
		if IsIndexNotFoundErr(err) {
			return 0, nil
		}
		return 0, err
	}

	b, err := io.ReadAll(res.Body)
	if err != nil {
		return 0, fmt.Errorf("read response: %w", err)
	}

	var response CountResponse
	if err := json.Unmarshal(b, &response); err != nil {
		return 0, fmt.Errorf("unmarshal response: %w", err)
	}
	return response.Count, nil
}

type HealthReport struct {
	Status string
	Raw    json.RawMessage
}

// ClusterHealth returns the _cluster/health report at level cluster, indices or shards.
func (c *Client) ClusterHealth(ctx context.Context, level string) (HealthReport, error) {
	opts := []func(request *opensearchapi.ClusterHealthRequest){
		c.es.Cluster.Health.WithContext(ctx),
	}
	if level != "" {
		opts = append(opts, c.es.Cluster.Health.WithLevel(level))
	}

	res, err := c.es.Cluster.Health(opts...)
	defer CloseSafe(res)
	if err != nil {
		return HealthReport{}, fmt.Errorf("failed to get cluster health due to %v", err)
	} else if err := CheckError(res); err != nil {
		return HealthReport{}, fmt.Errorf("cluster health: %w", err)
	}

	if res.StatusCode != http.StatusOK {
		return HealthReport{}, fmt.Errorf("failed to get cluster health: status %d", res.StatusCode)
	}

	b, err := io.ReadAll(res.Body)
	if err != nil {
		return HealthReport{}, fmt.Errorf("failed to read body due to %v", err)
	}
	if !gjson.ValidBytes(b) {
		return HealthReport{}, fmt.Errorf("invalid health response: %s", string(b))
	}

	return HealthReport{
		Status: gjson.GetBytes(b, "status").String(),
		Raw:    b,
	}, nil
}
