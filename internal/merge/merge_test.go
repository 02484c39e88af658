package merge

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/jonathan/contract-processor/internal/blocks"
	"github.com/jonathan/contract-processor/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func staticLoader(defs ...*types.DynamicBlock) blocks.Loader {
	byID := make(map[string]*types.DynamicBlock, len(defs))
	for _, d := range defs {
		byID[d.ID] = d
	}
	return blocks.LoaderFunc(func(_ context.Context, id string) (*types.DynamicBlock, error) {
		return byID[id], nil
	})
}

func fieldMapping(placeholder, column string) types.FieldMapping {
	return types.FieldMapping{Placeholder: placeholder, MappingType: types.MappingTypeField, MappedColumn: column}
}

func TestMerge_FieldMappingScenario(t *testing.T) {
	m := New(nil)
	p := &types.Provider{FTE: types.Float(0.8), BaseSalary: types.Float(250000)}
	mapping := []types.FieldMapping{
		fieldMapping("FTE", "fte"),
		fieldMapping("Salary", "baseSalary"),
	}

	result, err := m.Merge(context.Background(), nil, p, "FTE: {{FTE}}, Pay: {{Salary}}", mapping)
	require.NoError(t, err)
	assert.Equal(t, "FTE: 0.80, Pay: $250,000", result.Content)
	assert.Empty(t, result.Warnings)
	assert.NotNil(t, result.Warnings)
}

func TestMerge_ReplacesEveryOccurrence(t *testing.T) {
	m := New(nil)
	p := &types.Provider{Name: "Jane Doe"}
	mapping := []types.FieldMapping{fieldMapping("Name", "name")}

	result, err := m.Merge(context.Background(), nil, p, "{{Name}} and {{Name}} again, {{Name}}.", mapping)
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe and Jane Doe again, Jane Doe.", result.Content)
	assert.NotContains(t, result.Content, "{{Name}}")
}

func TestMerge_UsesTemplateContentWhenEmpty(t *testing.T) {
	m := New(nil)
	tmpl := &types.Template{ID: "t1", Content: "Dear {{Name}},"}
	p := &types.Provider{Name: "Jane"}

	result, err := m.Merge(context.Background(), tmpl, p, "", []types.FieldMapping{fieldMapping("Name", "name")})
	require.NoError(t, err)
	assert.Equal(t, "Dear Jane,", result.Content)
}

func TestMerge_UnresolvedPlaceholders(t *testing.T) {
	m := New(nil)
	p := &types.Provider{Name: "Jane"}
	mapping := []types.FieldMapping{fieldMapping("Name", "name")}

	result, err := m.Merge(context.Background(), nil, p, "{{Name}} {{Unknown}} {{Other}} {{Unknown}}", mapping)
	require.NoError(t, err)
	assert.Equal(t, "Jane N/A N/A N/A", result.Content)
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, "Unresolved placeholders replaced with N/A: Unknown, Other", result.Warnings[0])
}

func TestMerge_MissingFieldIsEmpty(t *testing.T) {
	m := New(nil)
	p := &types.Provider{Name: "Jane"}
	mapping := []types.FieldMapping{fieldMapping("Bonus", "signingBonus")}

	result, err := m.Merge(context.Background(), nil, p, "Bonus: [{{Bonus}}]", mapping)
	require.NoError(t, err)
	assert.Equal(t, "Bonus: []", result.Content)
	assert.Empty(t, result.Warnings)
}

func TestMerge_FirstMappingEntryWins(t *testing.T) {
	m := New(nil)
	p := &types.Provider{Name: "Jane", Specialty: "Oncology"}
	mapping := []types.FieldMapping{
		fieldMapping("{{Value}}", "specialty"),
		fieldMapping("Value", "name"),
	}

	result, err := m.Merge(context.Background(), nil, p, "{{Value}}", mapping)
	require.NoError(t, err)
	assert.Equal(t, "Oncology", result.Content)
}

func TestMerge_Deterministic(t *testing.T) {
	prod := &types.DynamicBlock{
		ID:         "prod",
		OutputType: types.OutputTable,
		Conditions: json.RawMessage(`[{"field":"wRVUTarget","operator":">","value":"4000","label":"Productivity Threshold"}]`),
		AlwaysInclude: json.RawMessage(`[
			{"label":"Specialty","valueField":"specialty"},
			{"label":"Call","valueField":"call pay"}
		]`),
	}
	m := New(blocks.NewEvaluator(staticLoader(prod), nil))
	p := &types.Provider{
		Name:          "Jane",
		Specialty:     "Cardiology",
		WRVUTarget:    types.Float(5000),
		DynamicFields: json.RawMessage(`{"Call Pay": 1500, "Clinical FTE": 0.6}`),
	}
	mapping := []types.FieldMapping{
		fieldMapping("Name", "name"),
		{Placeholder: "Terms", MappingType: types.MappingTypeDynamic, MappedDynamicBlock: "prod"},
		fieldMapping("Clinical", "clinical fte"),
	}
	content := "{{Name}}\n{{Terms}}\n{{Clinical}}\n{{Missing}}"

	first, err := m.Merge(context.Background(), nil, p, content, mapping)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := m.Merge(context.Background(), nil, p, content, mapping)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	assert.Contains(t, first.Content, "Productivity Threshold")
	assert.Contains(t, first.Content, "0.60")
}

func TestMerge_DynamicBlockMapping(t *testing.T) {
	prod := &types.DynamicBlock{
		ID:            "prod",
		OutputType:    types.OutputBullets,
		Conditions:    json.RawMessage(`[{"field":"wRVUTarget","operator":">","value":"4000","label":"Productivity Threshold"}]`),
		AlwaysInclude: json.RawMessage(`[]`),
	}
	m := New(blocks.NewEvaluator(staticLoader(prod), nil))
	mapping := []types.FieldMapping{
		{Placeholder: "Productivity", MappingType: types.MappingTypeDynamic, MappedDynamicBlock: "prod"},
		{Placeholder: "Ghost", MappingType: types.MappingTypeDynamic, MappedDynamicBlock: "ghost"},
	}

	high, err := m.Merge(context.Background(), nil, &types.Provider{WRVUTarget: types.Float(5000)}, "A{{Productivity}}B", mapping)
	require.NoError(t, err)
	assert.Equal(t, "A<ul><li><b>Productivity Threshold</b>: 5,000</li></ul>B", high.Content)

	low, err := m.Merge(context.Background(), nil, &types.Provider{WRVUTarget: types.Float(3000)}, "A{{Productivity}}B", mapping)
	require.NoError(t, err)
	assert.Equal(t, "AB", low.Content)

	missing, err := m.Merge(context.Background(), nil, &types.Provider{}, "{{Ghost}}", mapping)
	require.NoError(t, err)
	assert.Equal(t, "[Dynamic block not found: ghost]", missing.Content)
}

func TestMerge_DynamicMappingWithoutEvaluator(t *testing.T) {
	m := New(nil)
	mapping := []types.FieldMapping{
		{Placeholder: "Block", MappingType: types.MappingTypeDynamic, MappedDynamicBlock: "prod"},
	}

	result, err := m.Merge(context.Background(), nil, &types.Provider{}, "{{Block}}", mapping)
	require.NoError(t, err)
	assert.Equal(t, "N/A", result.Content)
	require.Len(t, result.Warnings, 1)
}

func TestMerge_CancelledContext(t *testing.T) {
	m := New(blocks.NewEvaluator(staticLoader(&types.DynamicBlock{ID: "prod"}), nil))
	mapping := []types.FieldMapping{
		{Placeholder: "Block", MappingType: types.MappingTypeDynamic, MappedDynamicBlock: "prod"},
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Merge(ctx, nil, &types.Provider{}, "{{Block}}", mapping)
	require.Error(t, err)

	var mergeErr *MergeError
	require.True(t, errors.As(err, &mergeErr))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestMerge_NilProvider(t *testing.T) {
	_, err := New(nil).Merge(context.Background(), nil, nil, "{{A}}", nil)
	var mergeErr *MergeError
	assert.True(t, errors.As(err, &mergeErr))
}

func TestMerge_LegacyStrategy(t *testing.T) {
	m := New(nil)
	p := &types.Provider{
		Name:          "Jane Doe",
		Credentials:   "MD",
		StartDate:     "2026-07-01",
		BaseSalary:    types.Float(250000),
		FTE:           types.Float(0.8),
		Specialty:     "Cardiology",
		SigningBonus:  types.Float(20000),
		DynamicFields: json.RawMessage(`"{\"Clinical FTE\": 0.6, \"Admin FTE\": \"0.2\", \"Shift\": \"Day\"}"`),
	}
	content := strings.Join([]string{
		"{{ProviderName}} starts {{StartDate}}",
		"Salary {{BaseSalary}} at {{FTE}}",
		"{{FTEBreakdown}}",
		"{{Specialty}} {{SigningBonus}} {{RetentionBonus}}",
		"{{Clinical FTE}} / {{Admin FTE}} / {{Shift}}",
	}, "\n")

	result, err := m.Merge(context.Background(), nil, p, content, nil)
	require.NoError(t, err)

	want := strings.Join([]string{
		"<b>Jane Doe, MD</b> starts 07/01/2026",
		"Salary <b>$250,000</b> at <b>0.80</b>",
		"0.8 FTE (32 hours/week)",
		"Cardiology $20,000 N/A",
		"0.60 / 0.2 / N/A",
	}, "\n")
	assert.Equal(t, want, result.Content)
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, "Unresolved placeholders replaced with N/A: RetentionBonus, Shift", result.Warnings[0])
}

func TestMerge_LegacyFTEBlock(t *testing.T) {
	fteBlock := &types.DynamicBlock{
		ID:         "fte-breakdown",
		OutputType: types.OutputParagraph,
		AlwaysInclude: json.RawMessage(`[
			{"label":"Clinical","valueField":"clinicalFTE"},
			{"label":"Research","valueField":"researchFTE"}
		]`),
	}
	m := New(blocks.NewEvaluator(staticLoader(fteBlock), nil), WithLegacyFTEBlock("fte-breakdown"))
	p := &types.Provider{FTE: types.Float(1), ClinicalFTE: types.Float(0.75), ResearchFTE: types.Float(0.25)}

	result, err := m.Merge(context.Background(), nil, p, "{{FTEBreakdown}}", nil)
	require.NoError(t, err)
	assert.Equal(t, "<p>Clinical: 0.75, Research: 0.25</p>", result.Content)
}

func TestMerge_EmptyMappingUsesMappingStrategy(t *testing.T) {
	m := New(nil)
	p := &types.Provider{Name: "Jane"}

	result, err := m.Merge(context.Background(), nil, p, "{{ProviderName}}", []types.FieldMapping{})
	require.NoError(t, err)
	assert.Equal(t, "N/A", result.Content)

	_, isMapping := m.StrategyFor([]types.FieldMapping{}).(*MappingStrategy)
	assert.True(t, isMapping)
	_, isLegacy := m.StrategyFor(nil).(*LegacyStrategy)
	assert.True(t, isLegacy)
}

func TestFinalize(t *testing.T) {
	content, warnings := Finalize("no placeholders")
	assert.Equal(t, "no placeholders", content)
	assert.Empty(t, warnings)

	content, warnings = Finalize("open {{ brace and {{X}}")
	assert.Equal(t, "open  brace and N/A", content)
	require.Len(t, warnings, 2)
	assert.Equal(t, "Unresolved placeholders replaced with N/A: X", warnings[0])
	assert.NotContains(t, content, "{{")
}

func TestSubstitute_SinglePass(t *testing.T) {
	values := map[string]string{"A": "{{B}}", "B": "b"}
	assert.Equal(t, "{{B}} b", Substitute("{{A}} {{B}}", values))
}

func TestCollapseDashLists(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"run of two", "Duties:\n- Clinic\n- Call\nEnd", "Duties:\n<ul><li>Clinic</li><li>Call</li></ul>\nEnd"},
		{"single dash kept", "Intro\n- only one\nEnd", "Intro\n- only one\nEnd"},
		{"two runs", "- a\n- b\nx\n- c\n- d", "<ul><li>a</li><li>b</li></ul>\nx\n<ul><li>c</li><li>d</li></ul>"},
		{"indented", "  - a\n  - b", "<ul><li>a</li><li>b</li></ul>"},
		{"no dashes", "plain text", "plain text"},
		{"dash in prose", "pay - see below\nterm - one year", "pay - see below\nterm - one year"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CollapseDashLists(tt.in))
		})
	}
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, []string{"A", "B C"}, Placeholders("{{A}} {{ B C }} {{A}} {{}}"))
	assert.Nil(t, Placeholders("none"))
}

func TestNormalizePlaceholder(t *testing.T) {
	assert.Equal(t, "Name", NormalizePlaceholder(" {{Name}} "))
	assert.Equal(t, "Name", NormalizePlaceholder("Name"))
	assert.Equal(t, "", NormalizePlaceholder("{{}}"))
}
