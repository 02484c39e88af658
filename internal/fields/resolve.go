// Package fields resolves named values on provider records.
package fields

import (
	"bytes"
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/jonathan/contract-processor/internal/types"
)

// GetFieldValue looks up fieldName on the provider. Direct attributes win;
// otherwise the dynamic field blob is searched by exact key and then by
// case-insensitive key. Returns (nil, false) when nothing resolves.
func GetFieldValue(p *types.Provider, fieldName string) (any, bool) {
	if p == nil || fieldName == "" {
		return nil, false
	}

	if v, ok := p.Attribute(fieldName); ok {
		return v, true
	}

	dyn := DynamicFieldsMap(p)
	if v, ok := dyn[fieldName]; ok && v != nil {
		return v, true
	}

	// Sorted so that colliding keys ("FTE" and "fte") resolve deterministically
	keys := make([]string, 0, len(dyn))
	for k := range dyn {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if strings.EqualFold(k, fieldName) && dyn[k] != nil {
			return dyn[k], true
		}
	}

	return nil, false
}

// DynamicFieldsMap parses the provider's dynamic field blob. The blob may be
// a JSON object or a JSON string holding an object. Malformed input yields
// an empty map; the result is never nil.
func DynamicFieldsMap(p *types.Provider) map[string]any {
	result := map[string]any{}
	if p == nil {
		return result
	}

	raw := bytes.TrimSpace(p.DynamicFields)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return result
	}

	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return result
		}
		raw = bytes.TrimSpace([]byte(inner))
		if len(raw) == 0 {
			return result
		}
	}

	var parsed map[string]any
	if err := json.Unmarshal(raw, &parsed); err != nil || parsed == nil {
		return result
	}
	return parsed
}

// ToFloat coerces a resolved value to a number. Strings may carry "$" and
// "," decoration. Booleans, empty strings, NaN and infinities are not numeric.
func ToFloat(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		s := strings.TrimSpace(n)
		s = strings.TrimPrefix(s, "$")
		s = strings.ReplaceAll(s, ",", "")
		if s == "" {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// ToString renders a resolved value as plain text. nil renders as "".
func ToString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	case json.Number:
		return s.String()
	default:
		b, err := json.Marshal(s)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
