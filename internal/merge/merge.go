// Package merge substitutes provider data into contract template content.
package merge

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/jonathan/contract-processor/internal/blocks"
	"github.com/jonathan/contract-processor/internal/types"
)

// UnresolvedValue replaces any placeholder that has no value.
const UnresolvedValue = "N/A"

var placeholderPattern = regexp.MustCompile(`\{\{([^{}]*)\}\}`)

// MergeError represents a failure to resolve placeholder values.
type MergeError struct {
	Message string
	Cause   error
}

func (e *MergeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("merge error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("merge error: %s", e.Message)
}

func (e *MergeError) Unwrap() error {
	return e.Cause
}

// Merger merges templates with provider records.
type Merger struct {
	evaluator        *blocks.Evaluator
	legacyFTEBlockID string
}

// Option configures a Merger.
type Option func(*Merger)

// WithLegacyFTEBlock makes the legacy strategy render FTEBreakdown from the
// given dynamic block instead of the computed hours string.
func WithLegacyFTEBlock(blockID string) Option {
	return func(m *Merger) {
		m.legacyFTEBlockID = blockID
	}
}

// New creates a Merger. evaluator may be nil when no dynamic blocks are used.
func New(evaluator *blocks.Evaluator, opts ...Option) *Merger {
	m := &Merger{evaluator: evaluator}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// StrategyFor selects the mapping strategy when a mapping list is supplied
// (even an empty one) and the legacy strategy when it is nil.
func (m *Merger) StrategyFor(mapping []types.FieldMapping) Strategy {
	if mapping != nil {
		return NewMappingStrategy(mapping, m.evaluator)
	}
	return NewLegacyStrategy(m.evaluator, m.legacyFTEBlockID)
}

// Merge resolves every placeholder in content for the provider. When content
// is empty the template's own content is used. The returned content never
// contains "{{".
func (m *Merger) Merge(ctx context.Context, tmpl *types.Template, p *types.Provider, content string, mapping []types.FieldMapping) (types.MergeResult, error) {
	if p == nil {
		return types.MergeResult{}, &MergeError{Message: "provider is required"}
	}
	if content == "" && tmpl != nil {
		content = tmpl.Content
	}

	strategy := m.StrategyFor(mapping)
	table, err := strategy.Resolve(ctx, p)
	if err != nil {
		return types.MergeResult{}, &MergeError{
			Message: fmt.Sprintf("failed to resolve placeholders with %s strategy", strategy.Name()),
			Cause:   err,
		}
	}

	merged := Substitute(content, table)
	merged, warnings := Finalize(merged)
	merged = CollapseDashLists(merged)

	return types.MergeResult{Content: merged, Warnings: warnings}, nil
}

// Substitute replaces every {{name}} whose name is in values, in a single
// pass. Unknown placeholders are left in place for Finalize.
func Substitute(content string, values map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(content, func(token string) string {
		name := token[2 : len(token)-2]
		if v, ok := values[name]; ok {
			return v
		}
		if v, ok := values[strings.TrimSpace(name)]; ok {
			return v
		}
		return token
	})
}

// Finalize replaces remaining placeholders with N/A and strips any stray
// opening braces. It returns one warning listing the unresolved names.
func Finalize(content string) (string, []string) {
	warnings := []string{}

	var unresolved []string
	seen := make(map[string]bool)
	content = placeholderPattern.ReplaceAllStringFunc(content, func(token string) string {
		name := strings.TrimSpace(token[2 : len(token)-2])
		if name != "" && !seen[name] {
			seen[name] = true
			unresolved = append(unresolved, name)
		}
		return UnresolvedValue
	})

	if strings.Contains(content, "{{") {
		content = strings.ReplaceAll(content, "{{", "")
		warnings = append(warnings, "Removed unmatched placeholder braces")
	}

	if len(unresolved) > 0 {
		warnings = append([]string{
			"Unresolved placeholders replaced with N/A: " + strings.Join(unresolved, ", "),
		}, warnings...)
	}
	return content, warnings
}

// CollapseDashLists turns runs of two or more consecutive lines beginning
// with "- " into a single HTML unordered list. A lone dash line is kept.
// This is a line heuristic, not a list parser: nested dashes and dashes
// inside prose are not interpreted.
func CollapseDashLists(content string) string {
	if !strings.Contains(content, "- ") {
		return content
	}

	lines := strings.Split(content, "\n")
	out := make([]string, 0, len(lines))

	for i := 0; i < len(lines); {
		j := i
		for j < len(lines) && isDashLine(lines[j]) {
			j++
		}
		if j-i >= 2 {
			var sb strings.Builder
			sb.WriteString("<ul>")
			for _, line := range lines[i:j] {
				sb.WriteString("<li>")
				sb.WriteString(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "- ")))
				sb.WriteString("</li>")
			}
			sb.WriteString("</ul>")
			out = append(out, sb.String())
			i = j
			continue
		}
		out = append(out, lines[i])
		i++
	}
	return strings.Join(out, "\n")
}

func isDashLine(line string) bool {
	return strings.HasPrefix(strings.TrimLeft(line, " \t"), "- ")
}

// NormalizePlaceholder strips surrounding braces and whitespace so a mapping
// written as "{{Name}}" matches the token "Name".
func NormalizePlaceholder(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "{{")
	s = strings.TrimSuffix(s, "}}")
	return strings.TrimSpace(s)
}

// Placeholders lists the distinct placeholder names in content in order of
// first appearance.
func Placeholders(content string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, m := range placeholderPattern.FindAllStringSubmatch(content, -1) {
		name := strings.TrimSpace(m[1])
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}
