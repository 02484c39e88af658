package merge

import (
	"strings"

	"github.com/jonathan/contract-processor/internal/fields"
)

// currencyColumns are rendered as whole dollars with grouping.
var currencyColumns = map[string]bool{
	"basesalary":      true,
	"signingbonus":    true,
	"relocationbonus": true,
	"qualitybonus":    true,
	"cmeamount":       true,
	"cmebonus":        true,
	"retentionbonus":  true,
}

// FormatFieldValue formats a resolved field value according to the
// case-insensitive classification of its column name.
func FormatFieldValue(column string, value any) string {
	if value == nil {
		return ""
	}
	key := strings.ToLower(strings.TrimSpace(column))

	switch {
	case currencyColumns[key]:
		if n, ok := fields.ToFloat(value); ok {
			return fields.Currency(n)
		}
	case key == "conversionfactor":
		if n, ok := fields.ToFloat(value); ok {
			return fields.CurrencyCents(n)
		}
	case key == "wrvutarget":
		if n, ok := fields.ToFloat(value); ok {
			return fields.Grouped(n)
		}
	case key == "startdate" || key == "originalagreementdate":
		return fields.USDate(fields.ToString(value))
	case strings.Contains(key, "fte"):
		if n, ok := value.(float64); ok {
			return fields.Fixed2(n)
		}
		if s, ok := value.(string); ok {
			return s
		}
		if n, ok := fields.ToFloat(value); ok {
			return fields.Fixed2(n)
		}
	}

	return fields.ToString(value)
}
