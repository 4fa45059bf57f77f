package companion

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/elastic/go-elasticsearch/v7/esapi"
	"github.com/kaytu-io/elastic-companion/pkg/es"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
	"github.com/opensearch-project/opensearch-go/v2/opensearchutil"
	"go.uber.org/zap"
)

func (c *Client) IndexExists(ctx context.Context, index string) (bool, error) {
	res, err := c.es.Indices.Exists([]string{index}, c.es.Indices.Exists.WithContext(ctx))
	defer CloseSafe(res)
	if err != nil {
		return false, err
	}
	switch res.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	}
	return false, CheckError(res)
}

// CreateIndex creates index with the given settings body. An index that
// already exists is left untouched.
func (c *Client) CreateIndex(ctx context.Context, index string, body any) error {
	opts := []func(*opensearchapi.IndicesCreateRequest){
		c.es.Indices.Create.WithContext(ctx),
	}
	if body != nil {
		opts = append(opts, c.es.Indices.Create.WithBody(opensearchutil.NewJSONReader(body)))
	}

	res, err := c.es.Indices.Create(index, opts...)
	defer CloseSafe(res)
	if err != nil {
		var b []byte
		if res != nil {
			b, _ = io.ReadAll(res.Body)
		}
		c.logger.Error("failure while creating index", zap.Error(err), zap.String("response", string(b)))
		return err
	} else if err := CheckError(res); err != nil {
		if IsResourceAlreadyExistsErr(err) {
			c.logger.Info("index already exists", zap.String("index", index))
			return nil
		}
		c.logger.Error("failure while creating index", zap.String("index", index), zap.Error(err))
		return err
	}

	return nil
}

// DeleteIndex deletes index, ignoring missing indices.
func (c *Client) DeleteIndex(ctx context.Context, index string) error {
	res, err := c.es.Indices.Delete([]string{index}, c.es.Indices.Delete.WithContext(ctx))
	defer CloseSafe(res)
	if err != nil {
		return err
	} else if err := CheckError(res); err != nil {
		if IsIndexNotFoundErr(err) {
			return nil
		}
		return err
	}
	return nil
}

// PutMapping updates the mapping of index. Typed mappings go through the
// Elasticsearch 7 API, which still accepts a document type.
func (c *Client) PutMapping(ctx context.Context, index, typ string, mapping any) error {
	if typ != "" && typ != es.DefaultType {
		includeTypeName := true
		req := esapi.IndicesPutMappingRequest{
			Index:           []string{index},
			DocumentType:    typ,
			Body:            opensearchutil.NewJSONReader(mapping),
			IncludeTypeName: &includeTypeName,
		}
		res, err := req.Do(ctx, c.es.Transport)
		defer ESCloseSafe(res)
		if err != nil {
			return fmt.Errorf("put mapping %s/%s: %w", index, typ, err)
		} else if err := ESCheckError(res); err != nil {
			return fmt.Errorf("put mapping %s/%s: %w", index, typ, err)
		}
		return nil
	}

	req := opensearchapi.IndicesPutMappingRequest{
		Index: []string{index},
		Body:  opensearchutil.NewJSONReader(mapping),
	}
	res, err := req.Do(ctx, c.es)
	defer CloseSafe(res)
	if err != nil {
		return fmt.Errorf("put mapping %s: %w", index, err)
	} else if err := CheckError(res); err != nil {
		return fmt.Errorf("put mapping %s: %w", index, err)
	}
	return nil
}

func (c *Client) PutTemplate(ctx context.Context, name string, body any) error {
	req := opensearchapi.IndicesPutTemplateRequest{
		Name: name,
		Body: opensearchutil.NewJSONReader(body),
	}
	res, err := req.Do(ctx, c.es)
	defer CloseSafe(res)
	if err != nil {
		return fmt.Errorf("put template %s: %w", name, err)
	} else if err := CheckError(res); err != nil {
		return fmt.Errorf("put template %s: %w", name, err)
	}
	return nil
}

// Refresh makes recent writes to indices visible to search, all indices when
// none are given.
func (c *Client) Refresh(ctx context.Context, indices ...string) error {
	opts := []func(*opensearchapi.IndicesRefreshRequest){
		c.es.Indices.Refresh.WithContext(ctx),
	}
	if len(indices) > 0 {
		opts = append(opts, c.es.Indices.Refresh.WithIndex(indices...))
	}

	res, err := c.es.Indices.Refresh(opts...)
	defer CloseSafe(res)
	if err != nil {
		return err
	}
	return CheckError(res)
}
