package es

import (
	"fmt"
	"net/url"
)

const (
	// DefaultType is reported for hits coming from typeless clusters.
	DefaultType = "_doc"
)

// Document is a single hit read from a scan cursor.
type Document struct {
	Index   string         `json:"_index"`
	Type    string         `json:"_type,omitempty"`
	ID      string         `json:"_id"`
	Routing string         `json:"_routing,omitempty"`
	Source  map[string]any `json:"_source"`
}

func (d Document) TypeName() string {
	if d.Type == "" {
		return DefaultType
	}
	return d.Type
}

// GroupName identifies the (index, type) pair the document belongs to.
func (d Document) GroupName() string {
	return fmt.Sprintf("%s_%s", d.Index, d.TypeName())
}

// RecordName is the file name used for the document inside its group directory.
// The id is path-escaped so it can never leave the group directory.
func (d Document) RecordName() string {
	return fmt.Sprintf("%s_%s.json", d.GroupName(), url.PathEscape(d.ID))
}
