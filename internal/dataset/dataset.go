// Package dataset loads a complete record store (providers, templates,
// mappings, dynamic blocks and assignments) from a single YAML or JSON file.
package dataset

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/jonathan/contract-processor/internal/schemas"
	"github.com/jonathan/contract-processor/internal/types"
	"gopkg.in/yaml.v3"
)

// Dataset is an in-memory record store. It is read-only after loading and
// safe for concurrent use.
type Dataset struct {
	Providers       []types.Provider                `json:"providers"`
	Templates       []types.Template                `json:"templates"`
	Mappings        map[string][]types.FieldMapping `json:"mappings"`
	DynamicBlocks   []types.DynamicBlock            `json:"dynamicBlocks"`
	Assignments     map[string]string               `json:"assignments"`
	TagTemplates    map[string]string               `json:"tagTemplates"`
	DefaultTemplate string                          `json:"defaultTemplate"`

	providers map[string]*types.Provider
	templates map[string]*types.Template
	blocks    map[string]*types.DynamicBlock
}

// Load reads a dataset file. The format follows the extension: .yaml/.yml
// as YAML, anything else as JSON.
func Load(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset %s: %w", path, err)
	}
	ext := strings.ToLower(filepath.Ext(path))
	return Parse(data, ext == ".yaml" || ext == ".yml")
}

// Parse decodes a dataset document, validates it against the dataset schema
// and indexes it. YAML input is normalized to JSON first so both formats
// share one decoding path.
func Parse(data []byte, isYAML bool) (*Dataset, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, fmt.Errorf("dataset is empty")
	}

	if isYAML {
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse dataset YAML: %w", err)
		}
		converted, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("failed to convert dataset YAML: %w", err)
		}
		data = converted
	}

	if err := schemas.Validate(schemas.Dataset, data); err != nil {
		return nil, err
	}

	var ds Dataset
	if err := json.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("failed to decode dataset: %w", err)
	}
	if err := ds.index(); err != nil {
		return nil, err
	}
	return &ds, nil
}

func (d *Dataset) index() error {
	d.providers = make(map[string]*types.Provider, len(d.Providers))
	for i := range d.Providers {
		p := &d.Providers[i]
		if _, dup := d.providers[p.ID]; dup {
			return fmt.Errorf("duplicate provider id %q", p.ID)
		}
		d.providers[p.ID] = p
	}

	d.templates = make(map[string]*types.Template, len(d.Templates))
	for i := range d.Templates {
		t := &d.Templates[i]
		if _, dup := d.templates[t.ID]; dup {
			return fmt.Errorf("duplicate template id %q", t.ID)
		}
		d.templates[t.ID] = t
	}

	d.blocks = make(map[string]*types.DynamicBlock, len(d.DynamicBlocks))
	for i := range d.DynamicBlocks {
		b := &d.DynamicBlocks[i]
		if b.OutputType == "" {
			b.OutputType = types.OutputBullets
		}
		d.blocks[b.ID] = b
	}

	// Explicit tag assignments take the tag away from every other template
	for tag, templateID := range d.TagTemplates {
		target, ok := d.templates[templateID]
		if !ok {
			return fmt.Errorf("tag %q references unknown template %q", tag, templateID)
		}
		for i := range d.Templates {
			t := &d.Templates[i]
			t.Tags = slices.DeleteFunc(t.Tags, func(existing string) bool { return existing == tag })
		}
		target.Tags = append([]string{tag}, target.Tags...)
	}
	if d.DefaultTemplate != "" {
		if _, ok := d.templates[d.DefaultTemplate]; !ok {
			return fmt.Errorf("default template %q not found", d.DefaultTemplate)
		}
	}

	for templateID, mappings := range d.Mappings {
		if _, ok := d.templates[templateID]; !ok {
			return fmt.Errorf("mappings reference unknown template %q", templateID)
		}
		if err := types.ValidateMappings(mappings); err != nil {
			return fmt.Errorf("template %s: %w", templateID, err)
		}
	}
	return nil
}

// GetProvider returns a copy of the provider, or nil when unknown.
func (d *Dataset) GetProvider(_ context.Context, id string) (*types.Provider, error) {
	p, ok := d.providers[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

// ListProviders returns the requested providers in the order given, or all
// providers in file order when ids is empty. Unknown ids are skipped.
func (d *Dataset) ListProviders(_ context.Context, ids []string) ([]types.Provider, error) {
	if len(ids) == 0 {
		return append([]types.Provider(nil), d.Providers...), nil
	}
	out := make([]types.Provider, 0, len(ids))
	for _, id := range ids {
		if p, ok := d.providers[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

// GetTemplate returns a copy of the template, or nil when unknown.
func (d *Dataset) GetTemplate(_ context.Context, id string) (*types.Template, error) {
	t, ok := d.templates[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

// ListTemplates returns every template in file order.
func (d *Dataset) ListTemplates(_ context.Context) ([]types.Template, error) {
	out := make([]types.Template, len(d.Templates))
	for i, t := range d.Templates {
		out[i] = t
		out[i].Tags = append([]string(nil), t.Tags...)
	}
	return out, nil
}

// ListFieldMappings returns the template's mappings, or nil when it has none.
// An explicit empty list also yields nil, matching the database store.
func (d *Dataset) ListFieldMappings(_ context.Context, templateID string) ([]types.FieldMapping, error) {
	mappings := d.Mappings[templateID]
	if len(mappings) == 0 {
		return nil, nil
	}
	return append([]types.FieldMapping{}, mappings...), nil
}

// GetDynamicBlock returns a copy of the block definition, or nil when unknown.
func (d *Dataset) GetDynamicBlock(_ context.Context, id string) (*types.DynamicBlock, error) {
	b, ok := d.blocks[id]
	if !ok {
		return nil, nil
	}
	cp := *b
	return &cp, nil
}

// ListTemplateAssignments returns the manual provider to template overrides.
func (d *Dataset) ListTemplateAssignments(_ context.Context) (map[string]string, error) {
	out := make(map[string]string, len(d.Assignments))
	for k, v := range d.Assignments {
		out[k] = v
	}
	return out, nil
}
