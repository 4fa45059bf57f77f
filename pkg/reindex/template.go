package reindex

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/lestrrat-go/strftime"
)

var ErrInvalidTemplate = errors.New("invalid index template")

var (
	placeholder = regexp.MustCompile(`\{:([^{}]*)\}`)
	braces      = regexp.MustCompile(`[{}]`)
)

// IndexTemplate is a target index name with exactly one {:<strftime layout>}
// placeholder, e.g. "events-{:%Y-%m-%d}".
type IndexTemplate struct {
	prefix string
	suffix string
	layout *strftime.Strftime
}

func ParseIndexTemplate(s string) (*IndexTemplate, error) {
	locs := placeholder.FindAllStringSubmatchIndex(s, -1)
	switch len(locs) {
	case 0:
		return nil, fmt.Errorf("%w: %q has no {:<date format>} placeholder", ErrInvalidTemplate, s)
	case 1:
	default:
		return nil, fmt.Errorf("%w: %q has %d placeholders, expected one", ErrInvalidTemplate, s, len(locs))
	}

	loc := locs[0]
	if braces.MatchString(s[:loc[0]]) || braces.MatchString(s[loc[1]:]) {
		return nil, fmt.Errorf("%w: %q has braces outside the {:<date format>} placeholder", ErrInvalidTemplate, s)
	}
	pattern := s[loc[2]:loc[3]]
	if pattern == "" {
		return nil, fmt.Errorf("%w: %q has an empty date format", ErrInvalidTemplate, s)
	}
	layout, err := strftime.New(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidTemplate, s, err)
	}

	return &IndexTemplate{
		prefix: s[:loc[0]],
		suffix: s[loc[1]:],
		layout: layout,
	}, nil
}

// Render substitutes the placeholder with t formatted by the template layout.
func (t *IndexTemplate) Render(ts time.Time) string {
	return t.prefix + t.layout.FormatString(ts) + t.suffix
}
