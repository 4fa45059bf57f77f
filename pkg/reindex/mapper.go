package reindex

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kaytu-io/elastic-companion/pkg/es"
	"github.com/spf13/cast"
	"gopkg.in/go-playground/validator.v9"
)

var (
	ErrMissingDateField = errors.New("document has no date field")
	ErrInvalidDate      = errors.New("document date cannot be parsed")
)

type MapperOptions struct {
	// Target is the destination index. With a DateField it must be an
	// IndexTemplate, otherwise it is used verbatim.
	Target    string `validate:"required"`
	DateField string
	// DeleteDocs emits a delete of the source document after its copy.
	DeleteDocs bool
	// UseSameID keeps the source id instead of letting the cluster assign one.
	UseSameID bool
}

// Mapper turns a scanned document into the bulk operations that move it.
type Mapper struct {
	opts     MapperOptions
	template *IndexTemplate
}

func NewMapper(opts MapperOptions) (*Mapper, error) {
	if err := validator.New().Struct(opts); err != nil {
		return nil, fmt.Errorf("invalid reindex options: %w", err)
	}
	m := &Mapper{opts: opts}
	if opts.DateField != "" {
		tmpl, err := ParseIndexTemplate(opts.Target)
		if err != nil {
			return nil, err
		}
		m.template = tmpl
	}
	return m, nil
}

// Target returns the index doc is copied into.
func (m *Mapper) Target(doc es.Document) (string, error) {
	if m.template == nil {
		return m.opts.Target, nil
	}
	raw, ok := lookup(doc.Source, m.opts.DateField)
	if !ok || raw == nil {
		return "", fmt.Errorf("%w: %s/%s has no %q", ErrMissingDateField, doc.Index, doc.ID, m.opts.DateField)
	}
	ts, err := parseDate(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %s/%s %q=%v: %v", ErrInvalidDate, doc.Index, doc.ID, m.opts.DateField, raw, err)
	}
	return m.template.Render(ts), nil
}

// Map returns the upsert of doc into its target followed, when DeleteDocs is
// set, by the delete of the source document.
func (m *Mapper) Map(doc es.Document) ([]es.BulkOperation, error) {
	target, err := m.Target(doc)
	if err != nil {
		return nil, err
	}
	ops := []es.BulkOperation{es.NewUpsert(target, doc, m.opts.UseSameID)}
	if m.opts.DeleteDocs {
		ops = append(ops, es.NewDelete(doc))
	}
	return ops, nil
}

// lookup resolves field in source, first as a literal key and then as a
// dotted path into nested objects.
func lookup(source map[string]any, field string) (any, bool) {
	if v, ok := source[field]; ok {
		return v, true
	}
	var cur any = source
	for _, part := range strings.Split(field, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = obj[part]; !ok {
			return nil, false
		}
	}
	return cur, true
}

func parseDate(v any) (time.Time, error) {
	switch d := v.(type) {
	case float64:
		// JSON numbers; epoch milliseconds is the cluster's default date encoding.
		return time.UnixMilli(int64(d)).UTC(), nil
	case string:
		if d == "" {
			return time.Time{}, errors.New("empty date")
		}
	}
	return cast.ToTimeE(v)
}
