package setup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const DefaultDataPath = "./data"

var ErrDataPathNotFound = errors.New("data directory does not exist")

// Admin is the subset of the cluster client used to apply definitions.
type Admin interface {
	CreateIndex(ctx context.Context, index string, body any) error
	DeleteIndex(ctx context.Context, index string) error
	PutMapping(ctx context.Context, index, typ string, mapping any) error
	PutTemplate(ctx context.Context, name string, body any) error
}

type IndexDefinition struct {
	Index string         `json:"index" yaml:"index"`
	Setup map[string]any `json:"setup" yaml:"setup"`
}

type MappingDefinition struct {
	Index   string         `json:"index" yaml:"index"`
	Type    string         `json:"type" yaml:"type"`
	Mapping map[string]any `json:"mapping" yaml:"mapping"`
}

type TemplateDefinition struct {
	Name string         `json:"name" yaml:"name"`
	Body map[string]any `json:"body" yaml:"body"`
}

type Definitions struct {
	Indices   []IndexDefinition
	Mappings  []MappingDefinition
	Templates []TemplateDefinition
}

// IndexMapper applies the index, mapping and template definitions found under
// <dataPath>/index, <dataPath>/mapping and <dataPath>/template.
type IndexMapper struct {
	client   Admin
	logger   *zap.Logger
	dataPath string
	reset    bool
}

func NewIndexMapper(client Admin, logger *zap.Logger, dataPath string, reset bool) (*IndexMapper, error) {
	if dataPath == "" {
		dataPath = DefaultDataPath
	}
	info, err := os.Stat(dataPath)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrDataPathNotFound, dataPath)
	}
	return &IndexMapper{
		client:   client,
		logger:   logger.Named("setup"),
		dataPath: dataPath,
		reset:    reset,
	}, nil
}

// Run reads every definition first and then applies indices, mappings and
// templates in that order. With reset each index is deleted before creation.
func (m *IndexMapper) Run(ctx context.Context) error {
	defs, err := m.Load()
	if err != nil {
		return err
	}

	for _, idx := range defs.Indices {
		if m.reset {
			m.logger.Info("deleting index", zap.String("index", idx.Index))
			if err := m.client.DeleteIndex(ctx, idx.Index); err != nil {
				return fmt.Errorf("delete index %s: %w", idx.Index, err)
			}
		}
		m.logger.Info("creating index", zap.String("index", idx.Index))
		if err := m.client.CreateIndex(ctx, idx.Index, idx.Setup); err != nil {
			return fmt.Errorf("create index %s: %w", idx.Index, err)
		}
	}

	for _, mp := range defs.Mappings {
		m.logger.Info("updating mapping", zap.String("index", mp.Index), zap.String("type", mp.Type))
		if err := m.client.PutMapping(ctx, mp.Index, mp.Type, mp.Mapping); err != nil {
			return fmt.Errorf("put mapping %s/%s: %w", mp.Index, mp.Type, err)
		}
	}

	for _, tpl := range defs.Templates {
		m.logger.Info("updating template", zap.String("template", tpl.Name))
		if err := m.client.PutTemplate(ctx, tpl.Name, tpl.Body); err != nil {
			return fmt.Errorf("put template %s: %w", tpl.Name, err)
		}
	}
	return nil
}

// Load reads all definitions in lexical file order. A later file redefining
// the same index, (index, type) or template replaces the earlier one in place.
func (m *IndexMapper) Load() (Definitions, error) {
	var defs Definitions

	var indices []IndexDefinition
	if err := readDir(m.logger, filepath.Join(m.dataPath, "index"), &indices); err != nil {
		return defs, err
	}
	seen := map[string]int{}
	for _, d := range indices {
		if d.Index == "" {
			return defs, fmt.Errorf("index definition without index name")
		}
		if i, ok := seen[d.Index]; ok {
			defs.Indices[i] = d
			continue
		}
		seen[d.Index] = len(defs.Indices)
		defs.Indices = append(defs.Indices, d)
	}

	var mappings []MappingDefinition
	if err := readDir(m.logger, filepath.Join(m.dataPath, "mapping"), &mappings); err != nil {
		return defs, err
	}
	seen = map[string]int{}
	for _, d := range mappings {
		if d.Index == "" {
			return defs, fmt.Errorf("mapping definition without index name")
		}
		key := d.Index + "/" + d.Type
		if i, ok := seen[key]; ok {
			defs.Mappings[i] = d
			continue
		}
		seen[key] = len(defs.Mappings)
		defs.Mappings = append(defs.Mappings, d)
	}

	var templates []TemplateDefinition
	if err := readDir(m.logger, filepath.Join(m.dataPath, "template"), &templates); err != nil {
		return defs, err
	}
	seen = map[string]int{}
	for _, d := range templates {
		if d.Name == "" {
			return defs, fmt.Errorf("template definition without name")
		}
		if i, ok := seen[d.Name]; ok {
			defs.Templates[i] = d
			continue
		}
		seen[d.Name] = len(defs.Templates)
		defs.Templates = append(defs.Templates, d)
	}

	return defs, nil
}

// readDir decodes every .json, .yaml and .yml file of dir into out, in
// lexical order. A missing directory yields no definitions.
func readDir[T any](logger *zap.Logger, dir string, out *[]T) error {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(dir, name)
		var unmarshal func([]byte, any) error
		switch strings.ToLower(filepath.Ext(name)) {
		case ".json":
			unmarshal = json.Unmarshal
		case ".yaml", ".yml":
			unmarshal = yaml.Unmarshal
		default:
			continue
		}

		logger.Debug("reading definition", zap.String("path", path))
		b, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		var def T
		if err := unmarshal(b, &def); err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}
		*out = append(*out, def)
	}
	return nil
}
