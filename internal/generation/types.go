// Package generation runs bulk contract generation: it batches providers,
// merges and renders each provider's assigned template concurrently within
// a batch, and packages the results into an archive.
package generation

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/contract-processor/internal/types"
)

// Batch sizes
const (
	DefaultBatchSize     = 32
	InteractiveBatchSize = 1
)

// Status hydration defaults
const (
	DefaultStatusRetries    = 3
	DefaultStatusRetryDelay = 500 * time.Millisecond
)

// ReasonNoTemplate is recorded for providers without an assigned template.
const ReasonNoTemplate = "No template assigned"

// TemplateStore reads templates and their field mappings.
type TemplateStore interface {
	GetTemplate(ctx context.Context, id string) (*types.Template, error)
	ListFieldMappings(ctx context.Context, templateID string) ([]types.FieldMapping, error)
}

// LogStore persists per-provider outcomes and reports them back per run.
type LogStore interface {
	CreateGenerationLog(ctx context.Context, l *types.GenerationLog) error
	CountGenerationLogs(ctx context.Context, runID uuid.UUID) (map[string]int, error)
}

// CancelFlag requests that a run stop before its next batch.
type CancelFlag struct {
	cancelled atomic.Bool
}

// Cancel requests cancellation. It is safe to call more than once.
func (f *CancelFlag) Cancel() {
	f.cancelled.Store(true)
}

// Cancelled reports whether cancellation was requested. A nil flag is never cancelled.
func (f *CancelFlag) Cancelled() bool {
	return f != nil && f.cancelled.Load()
}

// Progress is the aggregate state of a run after each batch.
type Progress struct {
	Total            int    `json:"total"`
	Processed        int    `json:"processed"`
	Succeeded        int    `json:"succeeded"`
	Skipped          int    `json:"skipped"`
	Failed           int    `json:"failed"`
	CurrentBatch     int    `json:"current_batch"`
	TotalBatches     int    `json:"total_batches"`
	CurrentOperation string `json:"current_operation"`
}

// ProgressSink receives progress updates. It is called from the run's
// control goroutine only.
type ProgressSink func(Progress)

// Options configures one run.
type Options struct {
	RunID            uuid.UUID
	BatchSize        int
	Cancel           *CancelFlag
	Progress         ProgressSink
	RunDate          time.Time
	StatusRetries    int
	StatusRetryDelay time.Duration
}

func (o Options) withDefaults() Options {
	if o.RunID == uuid.Nil {
		o.RunID = uuid.New()
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.RunDate.IsZero() {
		o.RunDate = time.Now()
	}
	if o.StatusRetries <= 0 {
		o.StatusRetries = DefaultStatusRetries
	}
	if o.StatusRetryDelay <= 0 {
		o.StatusRetryDelay = DefaultStatusRetryDelay
	}
	return o
}

// Outcome is the result of generating one provider's document.
type Outcome struct {
	ProviderID   string   `json:"provider_id"`
	ProviderName string   `json:"provider_name"`
	TemplateID   string   `json:"template_id,omitempty"`
	Status       string   `json:"status"`
	FileName     string   `json:"file_name,omitempty"`
	BlobKey      string   `json:"blob_key,omitempty"`
	Reason       string   `json:"reason,omitempty"`
	Warnings     []string `json:"warnings,omitempty"`
	Document     []byte   `json:"-"`
}

// Archive is the packaged set of successful documents.
type Archive struct {
	Name    string `json:"name"`
	Size    int    `json:"size"`
	BlobKey string `json:"blob_key,omitempty"`
	Data    []byte `json:"-"`
}

// BatchResult is the outcome of a whole run. Skipped holds every provider
// that did not produce a document, with Status telling skips from errors.
type BatchResult struct {
	RunID      uuid.UUID `json:"run_id"`
	Successful []Outcome `json:"successful"`
	Skipped    []Outcome `json:"skipped"`
	Archive    *Archive  `json:"archive,omitempty"`
	Warnings   []string  `json:"warnings"`
	Cancelled  bool      `json:"cancelled"`
	Hydrated   bool      `json:"hydrated"`
	Progress   Progress  `json:"progress"`
}

// Partition splits providers into consecutive batches of at most size,
// preserving order.
func Partition(providers []types.Provider, size int) [][]types.Provider {
	if size <= 0 {
		size = DefaultBatchSize
	}
	batches := make([][]types.Provider, 0, (len(providers)+size-1)/size)
	for start := 0; start < len(providers); start += size {
		end := min(start+size, len(providers))
		batches = append(batches, providers[start:end])
	}
	return batches
}
