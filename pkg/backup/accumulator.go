package backup

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kaytu-io/elastic-companion/pkg/archive"
	"github.com/kaytu-io/elastic-companion/pkg/es"
	"github.com/kaytu-io/elastic-companion/pkg/fp"
	"go.uber.org/zap"
)

const DefaultBatchSize = 10000

// Accumulator writes scanned documents as JSON records into per-group
// directories under root and periodically compresses the touched groups.
type Accumulator struct {
	root      string
	archiver  archive.Archiver
	batchSize int
	logger    *zap.Logger

	count    int
	touched  map[string]struct{}
	archives map[string]struct{}
}

func NewAccumulator(root string, archiver archive.Archiver, batchSize int, logger *zap.Logger) *Accumulator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Accumulator{
		root:      root,
		archiver:  archiver,
		batchSize: batchSize,
		logger:    logger,
		touched:   map[string]struct{}{},
		archives:  map[string]struct{}{},
	}
}

// Add stores doc under <root>/<index>_<type>/ and flushes once batchSize
// documents have been added since the previous flush. Archivers that rewrite
// instead of append keep their records until Close, otherwise a later batch
// would replace the members archived by an earlier one.
func (a *Accumulator) Add(doc es.Document) error {
	group := doc.GroupName()
	dir := filepath.Join(a.root, group)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create group directory: %w", err)
	}

	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", doc.Index, doc.ID, err)
	}
	if err := os.WriteFile(filepath.Join(dir, doc.RecordName()), b, 0o644); err != nil {
		return fmt.Errorf("write record: %w", err)
	}

	a.touched[group] = struct{}{}
	a.count++
	if a.count < a.batchSize {
		return nil
	}
	if !a.archiver.Appends() {
		a.count = 0
		return nil
	}
	return a.Flush()
}

// Flush archives every touched group, removes its raw records and resets the
// batch. Flushing with nothing touched is a no-op.
func (a *Accumulator) Flush() error {
	a.count = 0
	if len(a.touched) == 0 {
		return nil
	}

	for _, g := range fp.SortedKeys(a.touched) {
		dir := filepath.Join(a.root, g)
		path, err := a.archiver.Archive(dir, a.root)
		if err != nil {
			return fmt.Errorf("archive %s: %w", g, err)
		}
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("remove records of %s: %w", g, err)
		}
		a.archives[path] = struct{}{}
		delete(a.touched, g)
		a.logger.Debug("group archived", zap.String("group", g), zap.String("archive", path))
	}
	return nil
}

func (a *Accumulator) Close() error {
	return a.Flush()
}

// Archives returns every archive produced so far, sorted and de-duplicated.
func (a *Accumulator) Archives() []string {
	return fp.SortedKeys(a.archives)
}
