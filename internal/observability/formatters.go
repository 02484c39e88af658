// Package observability provides formatted output utilities for verbose CLI mode.
package observability

import (
	"fmt"
	"io"
	"strings"

	"github.com/jonathan/contract-processor/internal/generation"
	"github.com/jonathan/contract-processor/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
	// progressBarWidth is the number of cells in the progress bar
	progressBarWidth = 30
)

// Printer handles formatted output for verbose mode
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	lines := strings.Split(content, "\n")
	for _, line := range lines {
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, truncate(line, boxWidth-4))
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// truncate shortens s to at most n runes, marking the cut with "...".
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-3]) + "..."
}

// PrintProgress outputs a one-line progress bar for a generation run.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintProgress(progress generation.Progress) {
	filled := 0
	if progress.Total > 0 {
		filled = progress.Processed * progressBarWidth / progress.Total
	}
	bar := strings.Repeat("█", filled) + strings.Repeat("░", progressBarWidth-filled)
	fmt.Fprintf(p.out, "[%s] %d/%d  ok:%d skip:%d err:%d  %s\n",
		bar, progress.Processed, progress.Total,
		progress.Succeeded, progress.Skipped, progress.Failed,
		progress.CurrentOperation)
}

// PrintRunSummary outputs the totals, archive and warnings of a finished run.
func (p *Printer) PrintRunSummary(result *generation.BatchResult) {
	if result == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Run:        %s\n", result.RunID))
	sb.WriteString(fmt.Sprintf("Providers:  %d\n", result.Progress.Total))
	sb.WriteString(fmt.Sprintf("Generated:  %d\n", result.Progress.Succeeded))
	sb.WriteString(fmt.Sprintf("Skipped:    %d\n", result.Progress.Skipped))
	sb.WriteString(fmt.Sprintf("Failed:     %d\n", result.Progress.Failed))
	if result.Cancelled {
		sb.WriteString(fmt.Sprintf("Cancelled after batch %d of %d\n", result.Progress.CurrentBatch, result.Progress.TotalBatches))
	}
	if result.Archive != nil {
		sb.WriteString(fmt.Sprintf("\nArchive:    %s (%d bytes)\n", result.Archive.Name, result.Archive.Size))
	}

	if len(result.Warnings) > 0 {
		sb.WriteString("\nWarnings:\n")
		for _, w := range result.Warnings {
			sb.WriteString(fmt.Sprintf("  ⚠ %s\n", w))
		}
	}

	p.printBox("GENERATION SUMMARY", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintSkipped outputs the providers that produced no document and why.
func (p *Printer) PrintSkipped(outcomes []generation.Outcome) {
	if len(outcomes) == 0 {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d providers without a document:\n\n", len(outcomes)))

	count := min(len(outcomes), maxItemsToShow)
	for i := 0; i < count; i++ {
		out := outcomes[i]
		marker := "○"
		if out.Status == types.GenerationStatusError {
			marker = "✗"
		}
		sb.WriteString(fmt.Sprintf("%s %s (%s)\n", marker, out.ProviderName, out.ProviderID))
		sb.WriteString(fmt.Sprintf("  %s\n", out.Reason))
	}

	if len(outcomes) > maxItemsToShow {
		sb.WriteString(fmt.Sprintf("\n... and %d more", len(outcomes)-maxItemsToShow))
	}

	p.printBox("SKIPPED PROVIDERS", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintMergeWarnings outputs the warnings produced by a single merge.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintMergeWarnings(result types.MergeResult) {
	if len(result.Warnings) == 0 {
		fmt.Fprintf(p.out, "┌%s┐\n", strings.Repeat("─", boxWidth-2))
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, "✅ ALL PLACEHOLDERS RESOLVED")
		fmt.Fprintf(p.out, "└%s┘\n", strings.Repeat("─", boxWidth-2))
		return
	}

	var sb strings.Builder
	for i, w := range result.Warnings {
		sb.WriteString(fmt.Sprintf("⚠ %s", w))
		if i < len(result.Warnings)-1 {
			sb.WriteString("\n")
		}
	}
	p.printBox("MERGE WARNINGS", sb.String())
}

// PrintGenerationLogs outputs one page of generation logs as a table.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintGenerationLogs(page *types.GenerationLogPage) {
	if page == nil || len(page.Logs) == 0 {
		fmt.Fprintln(p.out, "No generation logs found.")
		return
	}

	fmt.Fprintf(p.out, "%-20s  %-8s  %-24s  %s\n", "CREATED", "STATUS", "PROVIDER", "DETAIL")
	for _, l := range page.Logs {
		detail := l.FileName
		if detail == "" {
			detail = l.Reason
		}
		fmt.Fprintf(p.out, "%-20s  %-8s  %-24s  %s\n",
			l.CreatedAt.Format("2006-01-02 15:04:05"),
			l.Status,
			truncate(l.ProviderName, 24),
			truncate(detail, 60))
	}
	if page.NextPageToken != "" {
		fmt.Fprintf(p.out, "\nMore results: --page-token %s\n", page.NextPageToken)
	}
}
