package rendering

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

// SanitizeFileName reduces a display name to a portable file name fragment:
// letters, digits, '-' and '.' are kept, runs of anything else become a
// single underscore. "Jane O'Neil, MD" becomes "Jane_O_Neil_MD".
func SanitizeFileName(name string) string {
	if name == "" {
		return ""
	}

	var result strings.Builder
	result.Grow(len(name))

	pendingSep := false
	for _, r := range name {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '-', r == '.':
			if pendingSep && result.Len() > 0 {
				result.WriteByte('_')
			}
			pendingSep = false
			result.WriteRune(r)
		default:
			pendingSep = true
		}
	}

	return strings.Trim(result.String(), "._-")
}

// FileName builds the deterministic document name for one provider:
// <year>_<Sanitized_Name>_<YYYY-MM-DD><ext>. An empty contract year falls
// back to the run date's year and an empty ext to ".pdf".
func FileName(contractYear, providerName string, runDate time.Time, ext string) string {
	if ext == "" {
		ext = PDFExt
	}
	year := strings.TrimSpace(contractYear)
	if year == "" {
		year = runDate.Format("2006")
	}
	name := SanitizeFileName(providerName)
	if name == "" {
		name = "Provider"
	}
	return fmt.Sprintf("%s_%s_%s%s", SanitizeFileName(year), name, runDate.Format("2006-01-02"), ext)
}

// UniqueNames disambiguates repeated file names by appending _2, _3, ...
// before the extension, preserving input order.
func UniqueNames(names []string) []string {
	out := make([]string, len(names))
	used := make(map[string]bool, len(names))
	for i, name := range names {
		candidate := name
		ext := ""
		if dot := strings.LastIndex(name, "."); dot > 0 {
			ext = name[dot:]
			name = name[:dot]
		}
		for n := 2; used[candidate]; n++ {
			candidate = fmt.Sprintf("%s_%d%s", name, n, ext)
		}
		used[candidate] = true
		out[i] = candidate
	}
	return out
}
