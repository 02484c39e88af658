package merge

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/jonathan/contract-processor/internal/blocks"
	"github.com/jonathan/contract-processor/internal/fields"
	"github.com/jonathan/contract-processor/internal/types"
	"golang.org/x/sync/errgroup"
)

// hoursPerFullFTE is the weekly hour count of a 1.0 FTE position.
const hoursPerFullFTE = 40

// maxConcurrentBlocks bounds dynamic block evaluations per merge.
const maxConcurrentBlocks = 8

// Strategy resolves every placeholder value it knows about for a provider.
// The returned table maps placeholder names to final strings.
type Strategy interface {
	Name() string
	Resolve(ctx context.Context, p *types.Provider) (map[string]string, error)
}

// MappingStrategy resolves placeholders through an explicit field mapping list.
type MappingStrategy struct {
	mappings  []types.FieldMapping
	evaluator *blocks.Evaluator
}

// NewMappingStrategy creates a mapping-driven strategy.
func NewMappingStrategy(mappings []types.FieldMapping, evaluator *blocks.Evaluator) *MappingStrategy {
	return &MappingStrategy{mappings: mappings, evaluator: evaluator}
}

// Name identifies the strategy in logs.
func (s *MappingStrategy) Name() string { return "mapping" }

// Resolve computes a value for each mapped placeholder. Dynamic blocks are
// evaluated concurrently; when a placeholder is mapped more than once the
// first entry wins.
func (s *MappingStrategy) Resolve(ctx context.Context, p *types.Provider) (map[string]string, error) {
	values := make([]string, len(s.mappings))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentBlocks)

	for i, m := range s.mappings {
		switch m.MappingType {
		case types.MappingTypeDynamic:
			if s.evaluator == nil || m.MappedDynamicBlock == "" {
				continue
			}
			g.Go(func() error {
				values[i] = s.evaluator.GenerateBlockContent(gCtx, m.MappedDynamicBlock, p)
				return gCtx.Err()
			})
		default:
			raw, _ := fields.GetFieldValue(p, m.MappedColumn)
			values[i] = FormatFieldValue(m.MappedColumn, raw)
		}
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	table := make(map[string]string, len(s.mappings))
	for i, m := range s.mappings {
		name := NormalizePlaceholder(m.Placeholder)
		if name == "" {
			continue
		}
		if m.MappingType == types.MappingTypeDynamic && (s.evaluator == nil || m.MappedDynamicBlock == "") {
			continue
		}
		if _, seen := table[name]; seen {
			continue
		}
		table[name] = values[i]
	}
	return table, nil
}

// LegacyStrategy resolves a fixed table of well-known placeholders straight
// from provider attributes. It is used when no field mapping exists.
type LegacyStrategy struct {
	evaluator  *blocks.Evaluator
	fteBlockID string
}

// NewLegacyStrategy creates the fallback strategy. When fteBlockID is set the
// FTEBreakdown placeholder is produced by that dynamic block.
func NewLegacyStrategy(evaluator *blocks.Evaluator, fteBlockID string) *LegacyStrategy {
	return &LegacyStrategy{evaluator: evaluator, fteBlockID: fteBlockID}
}

// Name identifies the strategy in logs.
func (s *LegacyStrategy) Name() string { return "legacy" }

// Resolve builds the legacy placeholder table.
func (s *LegacyStrategy) Resolve(ctx context.Context, p *types.Provider) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	table := map[string]string{
		"ProviderName":  bold(p.DisplayName()),
		"StartDate":     fields.USDate(p.StartDate),
		"BaseSalary":    boldIf(currencyOf(p.BaseSalary)),
		"FTE":           boldIf(fixedOf(p.FTE)),
		"Specialty":     p.Specialty,
		"PositionTitle": p.PositionTitle,
		"Organization":  p.Organization,
		"ContractTerm":  p.ContractTerm,
	}

	if s.fteBlockID != "" && s.evaluator != nil {
		table["FTEBreakdown"] = s.evaluator.GenerateBlockContent(ctx, s.fteBlockID, p)
	} else {
		table["FTEBreakdown"] = fteBreakdown(p.FTE)
	}

	// Every imported column mentioning FTE is exposed under its own name
	dyn := fields.DynamicFieldsMap(p)
	keys := make([]string, 0, len(dyn))
	for k := range dyn {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !strings.Contains(strings.ToLower(k), "fte") {
			continue
		}
		if _, taken := table[k]; taken {
			continue
		}
		table[k] = FormatFieldValue(k, dyn[k])
	}

	optional := map[string]*float64{
		"SigningBonus":    p.SigningBonus,
		"CME":             p.CMEAmount,
		"RetentionBonus":  p.RetentionBonus,
		"RelocationBonus": p.RelocationBonus,
		"QualityBonus":    p.QualityBonus,
	}
	for name, v := range optional {
		if v != nil {
			table[name] = fields.Currency(*v)
		}
	}

	return table, nil
}

func fteBreakdown(fte *float64) string {
	if fte == nil {
		return ""
	}
	hours := math.Round(*fte*hoursPerFullFTE*10) / 10
	return fmt.Sprintf("%s FTE (%s hours/week)", fields.ToString(*fte), fields.ToString(hours))
}

func currencyOf(v *float64) string {
	if v == nil {
		return ""
	}
	return fields.Currency(*v)
}

func fixedOf(v *float64) string {
	if v == nil {
		return ""
	}
	return fields.Fixed2(*v)
}

func bold(s string) string {
	return "<b>" + s + "</b>"
}

// boldIf wraps non-empty values only, so missing data does not leave empty tags.
func boldIf(s string) string {
	if s == "" {
		return ""
	}
	return bold(s)
}
