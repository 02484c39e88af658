package observability

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/contract-processor/internal/generation"
	"github.com/jonathan/contract-processor/internal/types"
	"github.com/stretchr/testify/assert"
)

func TestPrintProgress(t *testing.T) {
	tests := []struct {
		name     string
		progress generation.Progress
		want     []string
	}{
		{
			name:     "half done",
			progress: generation.Progress{Total: 40, Processed: 20, Succeeded: 19, Skipped: 1, CurrentOperation: "Processing batch 1 of 2"},
			want:     []string{"20/40", "ok:19 skip:1 err:0", "Processing batch 1 of 2", strings.Repeat("█", 15) + strings.Repeat("░", 15)},
		},
		{
			name:     "nothing to do",
			progress: generation.Progress{CurrentOperation: "Complete"},
			want:     []string{"0/0", strings.Repeat("░", progressBarWidth)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			NewPrinter(&buf).PrintProgress(tt.progress)
			for _, w := range tt.want {
				assert.Contains(t, buf.String(), w)
			}
		})
	}
}

func TestPrintRunSummary(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintRunSummary(&generation.BatchResult{
		RunID:     uuid.MustParse("550e8400-e29b-41d4-a716-446655440000"),
		Archive:   &generation.Archive{Name: "contracts_2025-07-01.zip", Size: 2048},
		Warnings:  []string{"Failed to store archive: disk full"},
		Cancelled: true,
		Progress:  generation.Progress{Total: 40, Processed: 32, Succeeded: 31, Skipped: 1, CurrentBatch: 1, TotalBatches: 2},
	})
	output := buf.String()

	assert.Contains(t, output, "GENERATION SUMMARY")
	assert.Contains(t, output, "550e8400-e29b-41d4-a716-446655440000")
	assert.Contains(t, output, "Generated:  31")
	assert.Contains(t, output, "Cancelled after batch 1 of 2")
	assert.Contains(t, output, "contracts_2025-07-01.zip (2048 bytes)")
	assert.Contains(t, output, "Failed to store archive")
}

func TestPrintRunSummary_Nil(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintRunSummary(nil)
	assert.Empty(t, buf.String())
}

func TestPrintSkipped(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	outcomes := []generation.Outcome{
		{ProviderID: "p07", ProviderName: "Jane Doe", Status: types.GenerationStatusSkipped, Reason: generation.ReasonNoTemplate},
		{ProviderID: "p08", ProviderName: "John Roe", Status: types.GenerationStatusError, Reason: "document converter unavailable"},
	}
	for i := 0; i < 5; i++ {
		outcomes = append(outcomes, generation.Outcome{ProviderID: "px", ProviderName: "Other", Status: types.GenerationStatusSkipped})
	}

	p.PrintSkipped(outcomes)
	output := buf.String()

	assert.Contains(t, output, "SKIPPED PROVIDERS")
	assert.Contains(t, output, "○ Jane Doe (p07)")
	assert.Contains(t, output, "No template assigned")
	assert.Contains(t, output, "✗ John Roe (p08)")
	assert.Contains(t, output, "... and 2 more")
}

func TestPrintSkipped_Empty(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintSkipped(nil)
	assert.Empty(t, buf.String())
}

func TestPrintMergeWarnings(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintMergeWarnings(types.MergeResult{})
	assert.Contains(t, buf.String(), "ALL PLACEHOLDERS RESOLVED")

	buf.Reset()
	p.PrintMergeWarnings(types.MergeResult{Warnings: []string{"Unresolved placeholders replaced with N/A: Shift"}})
	assert.Contains(t, buf.String(), "MERGE WARNINGS")
	assert.Contains(t, buf.String(), "⚠ Unresolved placeholders replaced with N/A: Shift")
}

func TestPrintGenerationLogs(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintGenerationLogs(&types.GenerationLogPage{
		Logs: []types.GenerationLog{
			{ProviderName: "Jane Doe", Status: types.GenerationStatusSuccess, FileName: "2025_Jane_Doe_2025-07-01.pdf", CreatedAt: time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)},
			{ProviderName: "John Roe", Status: types.GenerationStatusSkipped, Reason: "No template assigned"},
		},
		NextPageToken: "abc",
	})
	output := buf.String()

	assert.Contains(t, output, "2025-07-01 09:00:00")
	assert.Contains(t, output, "2025_Jane_Doe_2025-07-01.pdf")
	assert.Contains(t, output, "No template assigned")
	assert.Contains(t, output, "--page-token abc")

	buf.Reset()
	p.PrintGenerationLogs(nil)
	assert.Equal(t, "No generation logs found.\n", buf.String())
}

func TestPrintBox_TruncatesLongLines(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.printBox("TITLE", strings.Repeat("x", 100))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 5)
	assert.Contains(t, lines[3], "...")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "éééé...", truncate("éééééééééé", 7))
}
