package companion

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/elastic/go-elasticsearch/v7/esapi"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
)

// ErrorResponse is the error body returned by the cluster.
type ErrorResponse struct {
	Status int       `json:"status"`
	Info   ErrorInfo `json:"error"`
}

type ErrorInfo struct {
	Type      string      `json:"type"`
	Reason    string      `json:"reason"`
	Index     string      `json:"index,omitempty"`
	RootCause []ErrorInfo `json:"root_cause,omitempty"`
}

func (e ErrorResponse) Error() string {
	return fmt.Sprintf("%s: %s (status %d)", e.Info.Type, e.Info.Reason, e.Status)
}

func CloseSafe(resp *opensearchapi.Response) {
	if resp != nil && resp.Body != nil {
		_, _ = io.ReadAll(resp.Body)
		resp.Body.Close() //nolint,gosec
	}
}

func ESCloseSafe(resp *esapi.Response) {
	if resp != nil && resp.Body != nil {
		_, _ = io.ReadAll(resp.Body)
		resp.Body.Close() //nolint,gosec
	}
}

func decodeError(status int, data []byte) error {
	var e ErrorResponse
	if err := json.Unmarshal(data, &e); err != nil {
		return fmt.Errorf("status %d: %s", status, string(data))
	}
	if strings.TrimSpace(e.Info.Type) == "" && strings.TrimSpace(e.Info.Reason) == "" {
		return fmt.Errorf("status %d: %s", status, string(data))
	}
	if e.Status == 0 {
		e.Status = status
	}
	return e
}

// CheckError checks if resp is an error.
func CheckError(resp *opensearchapi.Response) error {
	if !resp.IsError() {
		return nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read error: %w", err)
	}
	return decodeError(resp.StatusCode, data)
}

func ESCheckError(resp *esapi.Response) error {
	if !resp.IsError() {
		return nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read error: %w", err)
	}
	return decodeError(resp.StatusCode, data)
}

func isErrType(err error, typ string) bool {
	var e ErrorResponse
	return errors.As(err, &e) &&
		strings.EqualFold(e.Info.Type, typ)
}

func IsIndexNotFoundErr(err error) bool {
	return isErrType(err, "index_not_found_exception")
}

func IsResourceAlreadyExistsErr(err error) bool {
	return isErrType(err, "resource_already_exists_exception")
}

type BoolFilter interface {
	IsBoolFilter()
}

// RawFilter passes a user supplied query clause through unchanged.
type RawFilter map[string]any

func (RawFilter) IsBoolFilter() {}

type TermFilter struct {
	field string
	value string
}

func NewTermFilter(field, value string) BoolFilter {
	return TermFilter{
		field: field,
		value: value,
	}
}

func (t TermFilter) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		"term": map[string]string{
			t.field: t.value,
		},
	})
}

func (t TermFilter) IsBoolFilter() {}

type RangeFilter struct {
	field string
	gt    string
	gte   string
	lt    string
	lte   string
}

func NewRangeFilter(field, gt, gte, lt, lte string) BoolFilter {
	return RangeFilter{
		field: field,
		gt:    gt,
		gte:   gte,
		lt:    lt,
		lte:   lte,
	}
}

func (t RangeFilter) MarshalJSON() ([]byte, error) {
	fieldMap := map[string]interface{}{}
	if len(t.gt) > 0 {
		fieldMap["gt"] = t.gt
	}
	if len(t.gte) > 0 {
		fieldMap["gte"] = t.gte
	}
	if len(t.lt) > 0 {
		fieldMap["lt"] = t.lt
	}
	if len(t.lte) > 0 {
		fieldMap["lte"] = t.lte
	}

	return json.Marshal(map[string]interface{}{
		"range": map[string]interface{}{
			t.field: fieldMap,
		},
	})
}

func (t RangeFilter) IsBoolFilter() {}

type BoolMustFilter struct {
	must   []BoolFilter
	filter []BoolFilter
}

// NewBoolMustFilter scores on must and restricts on filter.
func NewBoolMustFilter(must []BoolFilter, filter ...BoolFilter) BoolFilter {
	return BoolMustFilter{
		must:   must,
		filter: filter,
	}
}

func (t BoolMustFilter) MarshalJSON() ([]byte, error) {
	clauses := map[string][]BoolFilter{}
	if len(t.must) > 0 {
		clauses["must"] = t.must
	}
	if len(t.filter) > 0 {
		clauses["filter"] = t.filter
	}
	return json.Marshal(map[string]any{
		"bool": clauses,
	})
}

func (t BoolMustFilter) IsBoolFilter() {}

// WithFilters returns a copy of the search body whose query additionally has
// to match every filter. A body without query matches all documents.
func WithFilters(body map[string]any, filters ...BoolFilter) map[string]any {
	out := make(map[string]any, len(body)+1)
	for k, v := range body {
		out[k] = v
	}

	var query BoolFilter
	switch q := out["query"].(type) {
	case BoolFilter:
		query = q
	case map[string]any:
		if len(q) > 0 {
			query = RawFilter(q)
		}
	}
	if query == nil {
		query = RawFilter{"match_all": map[string]any{}}
	}

	if len(filters) == 0 {
		out["query"] = query
	} else {
		out["query"] = NewBoolMustFilter([]BoolFilter{query}, filters...)
	}
	return out
}
