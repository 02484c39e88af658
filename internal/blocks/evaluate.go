package blocks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/jonathan/contract-processor/internal/fields"
	"github.com/jonathan/contract-processor/internal/schemas"
	"github.com/jonathan/contract-processor/internal/types"
)

// NotFoundContent is substituted when a block definition cannot be loaded.
const NotFoundContent = "[Dynamic block not found: %s]"

// Evaluator generates dynamic block content for providers.
type Evaluator struct {
	loader Loader
	cache  *Cache
}

// NewEvaluator creates an evaluator reading definitions through loader.
// A nil cache gets a private one.
func NewEvaluator(loader Loader, cache *Cache) *Evaluator {
	if cache == nil {
		cache = NewCache()
	}
	return &Evaluator{loader: loader, cache: cache}
}

// Cache exposes the definition cache so callers can invalidate it.
func (e *Evaluator) Cache() *Cache {
	return e.cache
}

// EvaluateCondition applies a numeric comparison. Missing fields, non-numeric
// thresholds or field values, and unknown operators all evaluate to false.
func EvaluateCondition(cond types.Condition, p *types.Provider) bool {
	raw, ok := fields.GetFieldValue(p, cond.Field)
	if !ok || raw == nil {
		return false
	}

	threshold, ok := fields.ToFloat(string(cond.Value))
	if !ok {
		return false
	}

	value, ok := fields.ToFloat(raw)
	if !ok {
		return false
	}

	switch cond.Operator {
	case ">":
		return value > threshold
	case ">=":
		return value >= threshold
	case "=", "==":
		return value == threshold
	case "!=":
		return value != threshold
	case "<":
		return value < threshold
	case "<=":
		return value <= threshold
	default:
		return false
	}
}

// GenerateBlockContent renders the block identified by blockID for the
// provider. It never fails: a missing definition yields a placeholder
// string and an empty item list yields "".
func (e *Evaluator) GenerateBlockContent(ctx context.Context, blockID string, p *types.Provider) string {
	block, err := e.cache.Load(ctx, blockID, e.loader)
	if err != nil {
		log.Printf("[BLOCKS] Failed to load dynamic block %s: %v", blockID, err)
	}
	if block == nil {
		return fmt.Sprintf(NotFoundContent, blockID)
	}

	items := BuildItems(block, p)
	if len(items) == 0 {
		return ""
	}
	return Render(block.OutputType, items)
}

// BuildItems collects qualifying condition items in declaration order,
// followed by every always-include item whose field resolves.
func BuildItems(block *types.DynamicBlock, p *types.Provider) []types.BlockItem {
	var items []types.BlockItem

	for _, cond := range ParseConditions(block.Conditions) {
		if !EvaluateCondition(cond, p) {
			continue
		}
		value, ok := fields.GetFieldValue(p, cond.Field)
		if !ok {
			continue
		}
		items = append(items, types.BlockItem{
			Label: labelOr(cond.Label, cond.Field),
			Value: formatItemValue(value),
		})
	}

	for _, item := range ParseAlwaysInclude(block.AlwaysInclude) {
		value, ok := fields.GetFieldValue(p, item.ValueField)
		if !ok {
			continue
		}
		items = append(items, types.BlockItem{
			Label: labelOr(item.Label, item.ValueField),
			Value: formatItemValue(value),
		})
	}

	return items
}

// ParseConditions decodes a condition list given as a JSON array or as a
// JSON string holding one. Anything unparseable is an empty list.
func ParseConditions(raw json.RawMessage) []types.Condition {
	var conditions []types.Condition
	decodeRuleList(schemas.Conditions, raw, &conditions)
	return conditions
}

// ParseAlwaysInclude decodes an always-include list the same way as ParseConditions.
func ParseAlwaysInclude(raw json.RawMessage) []types.AlwaysIncludeItem {
	var items []types.AlwaysIncludeItem
	decodeRuleList(schemas.AlwaysInclude, raw, &items)
	return items
}

func decodeRuleList(schema string, raw json.RawMessage, out any) {
	data := bytes.TrimSpace(raw)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return
	}

	if data[0] == '"' {
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return
		}
		data = bytes.TrimSpace([]byte(text))
		if len(data) == 0 {
			return
		}
	}

	if err := schemas.Validate(schema, data); err != nil {
		log.Printf("[BLOCKS] Ignoring invalid %s: %v", schema, err)
		return
	}

	if err := json.Unmarshal(data, out); err != nil {
		log.Printf("[BLOCKS] Ignoring unparseable %s: %v", schema, err)
	}
}

func formatItemValue(v any) string {
	switch n := v.(type) {
	case float64, float32, int, int64, json.Number:
		if f, ok := fields.ToFloat(n); ok {
			return fields.Grouped(f)
		}
	}
	return fields.ToString(v)
}

func labelOr(label, fallback string) string {
	if label != "" {
		return label
	}
	return fallback
}
