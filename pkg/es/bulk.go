package es

type Action string

const (
	ActionIndex  Action = "index"
	ActionDelete Action = "delete"
)

// BulkOperation is one write or delete instruction of a bulk request.
// ID may be empty for ActionIndex, in which case the cluster assigns one.
type BulkOperation struct {
	Action  Action
	Index   string
	Type    string
	ID      string
	Routing string
	Source  map[string]any
}

func NewDelete(doc Document) BulkOperation {
	return BulkOperation{
		Action:  ActionDelete,
		Index:   doc.Index,
		Type:    doc.Type,
		ID:      doc.ID,
		Routing: doc.Routing,
	}
}

func NewUpsert(index string, doc Document, keepID bool) BulkOperation {
	op := BulkOperation{
		Action:  ActionIndex,
		Index:   index,
		Type:    doc.Type,
		Routing: doc.Routing,
		Source:  doc.Source,
	}
	if keepID {
		op.ID = doc.ID
	}
	return op
}

type BulkStats struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

func (s BulkStats) Add(o BulkStats) BulkStats {
	return BulkStats{
		Succeeded: s.Succeeded + o.Succeeded,
		Failed:    s.Failed + o.Failed,
	}
}
