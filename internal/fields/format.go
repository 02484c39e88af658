package fields

import (
	"math"
	"regexp"
	"strconv"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// isoDate matches a leading YYYY-MM-DD, optionally followed by a time part.
var isoDate = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})(?:[T ].*)?$`)

// printer returns an en-US printer. Printers keep per-call state, so one is
// built per use instead of shared across goroutines.
func printer() *message.Printer {
	return message.NewPrinter(language.AmericanEnglish)
}

// Grouped formats a number with thousands separators, keeping up to three
// fraction digits (5000 -> "5,000", 1234.5 -> "1,234.5").
func Grouped(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return printer().Sprintf("%d", int64(v))
	}
	return printer().Sprint(number.Decimal(v, number.MaxFractionDigits(3)))
}

// Currency formats a whole-dollar amount: 250000 -> "$250,000".
func Currency(v float64) string {
	rounded := math.Round(v)
	if rounded < 0 {
		return "-$" + printer().Sprintf("%d", int64(-rounded))
	}
	return "$" + printer().Sprintf("%d", int64(rounded))
}

// CurrencyCents formats a dollar amount with two decimals: 52.5 -> "$52.50".
func CurrencyCents(v float64) string {
	return "$" + strconv.FormatFloat(v, 'f', 2, 64)
}

// Fixed2 formats a number with exactly two decimals: 0.8 -> "0.80".
func Fixed2(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// USDate reformats YYYY-MM-DD as MM/DD/YYYY. Other shapes pass through unchanged.
func USDate(s string) string {
	m := isoDate.FindStringSubmatch(s)
	if m == nil {
		return s
	}
	return m[2] + "/" + m[3] + "/" + m[1]
}
