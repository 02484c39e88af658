package dataset

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/jonathan/contract-processor/internal/blocks"
	"github.com/jonathan/contract-processor/internal/merge"
	"github.com/jonathan/contract-processor/internal/schemas"
	"github.com/jonathan/contract-processor/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
defaultTemplate: standard
tagTemplates:
  cardiology: cardio
assignments:
  p2: cardio
providers:
  - id: p1
    name: Jane Doe
    credentials: MD
    startDate: 2026-07-01
    fte: 0.8
    baseSalary: 250000
    wRVUTarget: 5000
    dynamicFields:
      Call Pay: 1500
  - id: p2
    name: John Roe
    templateTag: cardiology
templates:
  - id: standard
    name: Standard
    contractYear: "2026"
    content: "FTE: {{FTE}}, Pay: {{Salary}}"
  - id: cardio
    name: Cardiology
    content: "{{ProviderName}}"
mappings:
  standard:
    - placeholder: FTE
      mappingType: field
      mappedColumn: fte
    - placeholder: Salary
      mappingType: field
      mappedColumn: baseSalary
dynamicBlocks:
  - id: prod
    name: Productivity
    conditions:
      - field: wRVUTarget
        operator: ">"
        value: "4000"
        label: Productivity Threshold
`

func TestParse_YAML(t *testing.T) {
	ds, err := Parse([]byte(sampleYAML), true)
	require.NoError(t, err)
	ctx := context.Background()

	p, err := ds.GetProvider(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "2026-07-01", p.StartDate)
	assert.Equal(t, 0.8, *p.FTE)
	assert.JSONEq(t, `{"Call Pay": 1500}`, string(p.DynamicFields))

	tmpl, err := ds.GetTemplate(ctx, "standard")
	require.NoError(t, err)
	assert.Equal(t, "2026", tmpl.ContractYear)

	mappings, err := ds.ListFieldMappings(ctx, "standard")
	require.NoError(t, err)
	assert.Len(t, mappings, 2)

	none, err := ds.ListFieldMappings(ctx, "cardio")
	require.NoError(t, err)
	assert.Nil(t, none)

	block, err := ds.GetDynamicBlock(ctx, "prod")
	require.NoError(t, err)
	assert.Equal(t, types.OutputBullets, block.OutputType)

	e := blocks.NewEvaluator(ds, nil)
	assert.Equal(t, "<ul><li><b>Productivity Threshold</b>: 5,000</li></ul>", e.GenerateBlockContent(ctx, "prod", p))

	assignments, err := ds.ListTemplateAssignments(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"p2": "cardio"}, assignments)
	assert.Equal(t, "standard", ds.DefaultTemplate)
	assert.Equal(t, "cardio", ds.TagTemplates["cardiology"])
}

func TestParse_JSONFileAndOrdering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dataset.json")
	doc := `{"providers":[{"id":"a","name":"A"},{"id":"b","name":"B"},{"id":"c","name":"C"}],"templates":[]}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	ds, err := Load(path)
	require.NoError(t, err)

	all, err := ds.ListProviders(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	some, err := ds.ListProviders(context.Background(), []string{"c", "missing", "a"})
	require.NoError(t, err)
	require.Len(t, some, 2)
	assert.Equal(t, "c", some[0].ID)
	assert.Equal(t, "a", some[1].ID)
}

func TestListFieldMappings_EmptyListSelectsLegacy(t *testing.T) {
	doc := `{"templates":[{"id":"t","content":"{{ProviderName}}"}],"mappings":{"t":[]}}`
	ds, err := Parse([]byte(doc), false)
	require.NoError(t, err)

	mappings, err := ds.ListFieldMappings(context.Background(), "t")
	require.NoError(t, err)
	assert.Nil(t, mappings)
	assert.Equal(t, "legacy", merge.New(nil).StrategyFor(mappings).Name())
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"empty", "   "},
		{"schema violation", `{"providers":[{"name":"no id"}]}`},
		{"bad mapping type", `{"templates":[{"id":"t","content":""}],"mappings":{"t":[{"placeholder":"X","mappingType":"column"}]}}`},
		{"duplicate provider", `{"providers":[{"id":"a","name":"A"},{"id":"a","name":"B"}]}`},
		{"mapping for unknown template", `{"mappings":{"ghost":[{"placeholder":"X","mappingType":"field","mappedColumn":"x"}]}}`},
		{"tag for unknown template", `{"templates":[{"id":"t","content":""}],"tagTemplates":{"x":"ghost"}}`},
		{"unknown default template", `{"templates":[{"id":"t","content":""}],"defaultTemplate":"ghost"}`},
		{"field mapping without column", `{"templates":[{"id":"t","content":""}],"mappings":{"t":[{"placeholder":"X","mappingType":"field"}]}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc), false)
			assert.Error(t, err)
		})
	}

	_, err := Parse([]byte(`{"providers":[{"name":"no id"}]}`), false)
	var validationErr *schemas.ValidationError
	assert.ErrorAs(t, err, &validationErr)
}

func TestListTemplates_TagTemplatesOwnTheirTag(t *testing.T) {
	doc := `{
		"templates": [
			{"id": "a", "content": "", "tags": ["cardiology", "surgery"]},
			{"id": "b", "content": "", "tags": ["pediatrics"]}
		],
		"tagTemplates": {"cardiology": "b"}
	}`
	ds, err := Parse([]byte(doc), false)
	require.NoError(t, err)

	templates, err := ds.ListTemplates(context.Background())
	require.NoError(t, err)
	require.Len(t, templates, 2)
	assert.Equal(t, []string{"surgery"}, templates[0].Tags)
	assert.Equal(t, []string{"cardiology", "pediatrics"}, templates[1].Tags)

	// Copies are independent of the store
	templates[1].Tags[0] = "changed"
	again, err := ds.ListTemplates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "cardiology", again[1].Tags[0])
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
