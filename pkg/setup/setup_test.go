package setup_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/kaytu-io/elastic-companion/pkg/setup"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type recorder struct {
	calls []string
	err   error
}

func (r *recorder) CreateIndex(_ context.Context, index string, _ any) error {
	r.calls = append(r.calls, "create "+index)
	return r.err
}

func (r *recorder) DeleteIndex(_ context.Context, index string) error {
	r.calls = append(r.calls, "delete "+index)
	return r.err
}

func (r *recorder) PutMapping(_ context.Context, index, typ string, _ any) error {
	r.calls = append(r.calls, "mapping "+index+"/"+typ)
	return r.err
}

func (r *recorder) PutTemplate(_ context.Context, name string, _ any) error {
	r.calls = append(r.calls, "template "+name)
	return r.err
}

func write(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func dataDir(t *testing.T) string {
	root := t.TempDir()
	write(t, root, "index/b.json", `{"index":"companiontest2","setup":{"settings":{"number_of_shards":1}}}`)
	write(t, root, "index/a.json", `{"index":"companiontest","setup":{}}`)
	write(t, root, "index/README.md", `ignored`)
	write(t, root, "mapping/simple.json", `{"index":"companiontest","type":"simple","mapping":{"properties":{"value":{"type":"keyword"}}}}`)
	write(t, root, "mapping/other.yaml", "index: companiontest\ntype: other\nmapping:\n  properties:\n    date:\n      type: date\n")
	write(t, root, "template/logs.yml", "name: logs\nbody:\n  index_patterns: [\"logs-*\"]\n")
	return root
}

func TestNewIndexMapperMissingDataPath(t *testing.T) {
	_, err := setup.NewIndexMapper(&recorder{}, zaptest.NewLogger(t), filepath.Join(t.TempDir(), "nope"), false)
	require.ErrorIs(t, err, setup.ErrDataPathNotFound)
}

func TestRunAppliesInOrder(t *testing.T) {
	require := require.New(t)
	r := &recorder{}

	m, err := setup.NewIndexMapper(r, zaptest.NewLogger(t), dataDir(t), false)
	require.NoError(err)
	require.NoError(m.Run(context.Background()))

	require.Equal([]string{
		"create companiontest",
		"create companiontest2",
		"mapping companiontest/other",
		"mapping companiontest/simple",
		"template logs",
	}, r.calls)
}

func TestRunResetDeletesBeforeCreate(t *testing.T) {
	require := require.New(t)
	r := &recorder{}

	m, err := setup.NewIndexMapper(r, zaptest.NewLogger(t), dataDir(t), true)
	require.NoError(err)
	require.NoError(m.Run(context.Background()))

	require.Equal([]string{
		"delete companiontest",
		"create companiontest",
		"delete companiontest2",
		"create companiontest2",
	}, r.calls[:4])
}

func TestLoadDecodesYAMLAndJSON(t *testing.T) {
	require := require.New(t)
	root := dataDir(t)
	write(t, root, "index/c.json", `{"index":"companiontest","setup":{"settings":{"number_of_replicas":0}}}`)

	m, err := setup.NewIndexMapper(&recorder{}, zaptest.NewLogger(t), root, false)
	require.NoError(err)
	defs, err := m.Load()
	require.NoError(err)

	require.Len(defs.Indices, 2)
	require.Equal("companiontest", defs.Indices[0].Index)
	require.Contains(defs.Indices[0].Setup, "settings")

	require.Len(defs.Mappings, 2)
	props := defs.Mappings[0].Mapping["properties"].(map[string]any)
	require.Equal("date", props["date"].(map[string]any)["type"])

	require.Len(defs.Templates, 1)
	require.Equal([]any{"logs-*"}, defs.Templates[0].Body["index_patterns"])
}

func TestLoadMissingSubdirectories(t *testing.T) {
	require := require.New(t)
	r := &recorder{}

	m, err := setup.NewIndexMapper(r, zaptest.NewLogger(t), t.TempDir(), false)
	require.NoError(err)
	require.NoError(m.Run(context.Background()))
	require.Empty(r.calls)
}

func TestRunStopsOnError(t *testing.T) {
	require := require.New(t)
	r := &recorder{err: errors.New("cluster down")}

	m, err := setup.NewIndexMapper(r, zaptest.NewLogger(t), dataDir(t), false)
	require.NoError(err)
	require.ErrorContains(m.Run(context.Background()), "cluster down")
	require.Len(r.calls, 1)
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	root := t.TempDir()
	write(t, root, "template/bad.json", `{"name":`)

	m, err := setup.NewIndexMapper(&recorder{}, zaptest.NewLogger(t), root, false)
	require.NoError(t, err)
	_, err = m.Load()
	require.ErrorContains(t, err, "bad.json")
}
