package generation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/jonathan/contract-processor/internal/merge"
	"github.com/jonathan/contract-processor/internal/rendering"
	"github.com/jonathan/contract-processor/internal/storage"
	"github.com/jonathan/contract-processor/internal/types"
	"golang.org/x/sync/errgroup"
)

// Content types recorded with stored blobs
const (
	contentTypePDF  = "application/pdf"
	contentTypeHTML = "text/html; charset=utf-8"
	contentTypeZIP  = "application/zip"
)

// Orchestrator generates contracts for many providers in sequential batches.
type Orchestrator struct {
	templates TemplateStore
	merger    *merge.Merger
	converter rendering.Converter
	blobs     storage.Store
	logs      LogStore
	verbose   bool

	buildArchive func([]rendering.ArchiveEntry, time.Time) ([]byte, error)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithBlobStore stores every generated document and the archive.
func WithBlobStore(s storage.Store) Option {
	return func(o *Orchestrator) { o.blobs = s }
}

// WithLogStore persists one generation log per provider and enables status hydration.
func WithLogStore(s LogStore) Option {
	return func(o *Orchestrator) { o.logs = s }
}

// WithVerbose logs each batch.
func WithVerbose(verbose bool) Option {
	return func(o *Orchestrator) { o.verbose = verbose }
}

// New creates an orchestrator. converter may be nil, in which case every
// provider with a template fails with a converter-unavailable error.
func New(templates TemplateStore, merger *merge.Merger, converter rendering.Converter, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		templates:    templates,
		merger:       merger,
		converter:    converter,
		buildArchive: rendering.BuildArchive,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run generates documents for providers. Batches run one after another and
// the providers in a batch run concurrently. Cancellation through the
// options flag or ctx is honored between batches and yields a partial
// result with Cancelled set rather than an error; a batch already in flight
// always runs to completion. Per-provider failures are reported as outcomes.
func (o *Orchestrator) Run(ctx context.Context, providers []types.Provider, resolver TemplateResolver, opts Options) (*BatchResult, error) {
	if resolver == nil {
		return nil, fmt.Errorf("template resolver is required")
	}
	if o.merger == nil {
		return nil, fmt.Errorf("merger is required")
	}
	opts = opts.withDefaults()

	batches := Partition(providers, opts.BatchSize)
	result := &BatchResult{
		RunID:      opts.RunID,
		Successful: []Outcome{},
		Skipped:    []Outcome{},
		Warnings:   []string{},
	}
	progress := Progress{Total: len(providers), TotalBatches: len(batches)}
	mappings := newMappingCache(o.templates)
	// ctx is only consulted at batch boundaries
	work := context.WithoutCancel(ctx)

	for i, batch := range batches {
		if opts.Cancel.Cancelled() || ctx.Err() != nil {
			log.Printf("[GENERATION] Run %s cancelled after %d of %d batches", opts.RunID, i, len(batches))
			result.Cancelled = true
			break
		}

		progress.CurrentBatch = i + 1
		progress.CurrentOperation = fmt.Sprintf("Processing batch %d of %d", i+1, len(batches))
		if o.verbose {
			log.Printf("[GENERATION] %s (%d providers)", progress.CurrentOperation, len(batch))
		}

		for _, out := range o.runBatch(work, batch, resolver, mappings, opts) {
			switch out.Status {
			case types.GenerationStatusSuccess:
				progress.Succeeded++
				result.Successful = append(result.Successful, out)
			case types.GenerationStatusSkipped:
				progress.Skipped++
				result.Skipped = append(result.Skipped, out)
			default:
				progress.Failed++
				result.Skipped = append(result.Skipped, out)
			}
			o.recordLog(work, opts, out)
		}
		progress.Processed += len(batch)
		emitProgress(opts.Progress, progress)
	}

	if len(result.Successful) > 0 {
		progress.CurrentOperation = "Building archive"
		emitProgress(opts.Progress, progress)
		archive, warnings := o.archive(work, result.Successful, opts)
		result.Archive = archive
		result.Warnings = append(result.Warnings, warnings...)
	}

	if o.logs != nil {
		result.Hydrated = o.hydrate(work, opts, progress)
	}

	progress.CurrentOperation = "Complete"
	if result.Cancelled {
		progress.CurrentOperation = "Cancelled"
	}
	emitProgress(opts.Progress, progress)
	result.Progress = progress
	return result, nil
}

// runBatch generates every provider in the batch concurrently. Outcomes are
// returned in input order.
func (o *Orchestrator) runBatch(ctx context.Context, batch []types.Provider, resolver TemplateResolver, mappings *mappingCache, opts Options) []Outcome {
	outcomes := make([]Outcome, len(batch))

	var g errgroup.Group
	for i := range batch {
		p := &batch[i]
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("[GENERATION] Recovered panic generating provider %s: %v", p.ID, r)
					outcomes[i] = failed(p, "", fmt.Errorf("panic: %v", r))
				}
			}()
			outcomes[i] = o.generate(ctx, p, resolver, mappings, opts)
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

func (o *Orchestrator) generate(ctx context.Context, p *types.Provider, resolver TemplateResolver, mappings *mappingCache, opts Options) Outcome {
	tmpl, err := resolver.ResolveTemplate(ctx, p)
	if err != nil {
		return failed(p, "", err)
	}
	if tmpl == nil {
		return Outcome{
			ProviderID:   p.ID,
			ProviderName: p.Name,
			Status:       types.GenerationStatusSkipped,
			Reason:       ReasonNoTemplate,
		}
	}

	mapping, err := mappings.load(ctx, tmpl.ID)
	if err != nil {
		return failed(p, tmpl.ID, err)
	}

	merged, err := o.merger.Merge(ctx, tmpl, p, "", mapping)
	if err != nil {
		return failed(p, tmpl.ID, err)
	}

	html, err := rendering.PrepareDocument(documentTitle(tmpl, p), rendering.Sanitize(merged.Content))
	if err != nil {
		return failed(p, tmpl.ID, err)
	}
	doc, err := rendering.Convert(ctx, o.converter, html)
	if err != nil {
		return failed(p, tmpl.ID, err)
	}

	out := Outcome{
		ProviderID:   p.ID,
		ProviderName: p.Name,
		TemplateID:   tmpl.ID,
		Status:       types.GenerationStatusSuccess,
		FileName:     rendering.FileName(tmpl.ContractYear, p.Name, opts.RunDate, o.converter.Extension()),
		Document:     doc,
		Warnings:     merged.Warnings,
	}

	if o.blobs != nil {
		key := fmt.Sprintf("runs/%s/%s/%s", opts.RunID, rendering.SanitizeFileName(p.ID), out.FileName)
		stored, err := o.blobs.Put(ctx, doc, key, storage.Metadata{
			"content_type": contentTypeFor(out.FileName),
			"provider_id":  p.ID,
			"template_id":  tmpl.ID,
		})
		if err != nil {
			out.Warnings = append(out.Warnings, fmt.Sprintf("Failed to store document: %v", err))
		} else {
			out.BlobKey = stored
		}
	}

	return out
}

func failed(p *types.Provider, templateID string, err error) Outcome {
	return Outcome{
		ProviderID:   p.ID,
		ProviderName: p.Name,
		TemplateID:   templateID,
		Status:       types.GenerationStatusError,
		Reason:       err.Error(),
	}
}

func documentTitle(tmpl *types.Template, p *types.Provider) string {
	if tmpl.Name == "" {
		return p.DisplayName()
	}
	return tmpl.Name + " - " + p.DisplayName()
}

func contentTypeFor(fileName string) string {
	if strings.HasSuffix(fileName, rendering.PDFExt) {
		return contentTypePDF
	}
	return contentTypeHTML
}

// archive packages the successful documents. Failures are returned as
// warnings; the documents themselves remain available on the outcomes.
func (o *Orchestrator) archive(ctx context.Context, successful []Outcome, opts Options) (*Archive, []string) {
	entries := make([]rendering.ArchiveEntry, len(successful))
	for i, out := range successful {
		entries[i] = rendering.ArchiveEntry{Name: out.FileName, Data: out.Document}
	}

	data, err := o.buildArchive(entries, opts.RunDate)
	if err != nil {
		log.Printf("[GENERATION] Failed to build archive for run %s: %v", opts.RunID, err)
		return nil, []string{fmt.Sprintf("Failed to build archive: %v", err)}
	}

	archive := &Archive{Name: rendering.ArchiveName(opts.RunDate), Size: len(data), Data: data}
	if o.blobs == nil {
		return archive, nil
	}

	key := fmt.Sprintf("runs/%s/%s", opts.RunID, archive.Name)
	stored, err := o.blobs.Put(context.WithoutCancel(ctx), data, key, storage.Metadata{"content_type": contentTypeZIP})
	if err != nil {
		log.Printf("[GENERATION] Failed to store archive for run %s: %v", opts.RunID, err)
		return archive, []string{fmt.Sprintf("Failed to store archive: %v", err)}
	}
	archive.BlobKey = stored
	return archive, nil
}

// recordLog persists one outcome, retrying transient failures. Logs are
// written even when the run's context has been cancelled.
func (o *Orchestrator) recordLog(ctx context.Context, opts Options, out Outcome) {
	if o.logs == nil {
		return
	}
	entry := &types.GenerationLog{
		RunID:        opts.RunID,
		ProviderID:   out.ProviderID,
		ProviderName: out.ProviderName,
		TemplateID:   out.TemplateID,
		Status:       out.Status,
		FileName:     out.FileName,
		BlobKey:      out.BlobKey,
		Reason:       out.Reason,
	}
	persistCtx := context.WithoutCancel(ctx)
	err := retry(persistCtx, opts.StatusRetries, opts.StatusRetryDelay, func() error {
		return o.logs.CreateGenerationLog(persistCtx, entry)
	})
	if err != nil {
		log.Printf("[GENERATION] Failed to record log for provider %s in run %s: %v", out.ProviderID, opts.RunID, err)
	}
}

var errStatusMismatch = errors.New("recorded statuses do not match run outcome")

// hydrate re-reads the run's logs until their per-status counts match what
// the run produced. Exhausting the retries is logged and never fails the run.
func (o *Orchestrator) hydrate(ctx context.Context, opts Options, progress Progress) bool {
	want := map[string]int{
		types.GenerationStatusSuccess: progress.Succeeded,
		types.GenerationStatusSkipped: progress.Skipped,
		types.GenerationStatusError:   progress.Failed,
	}
	readCtx := context.WithoutCancel(ctx)
	err := retry(readCtx, opts.StatusRetries, opts.StatusRetryDelay, func() error {
		got, err := o.logs.CountGenerationLogs(readCtx, opts.RunID)
		if err != nil {
			return err
		}
		for status, n := range want {
			if got[status] != n {
				return fmt.Errorf("%w: %s has %d, expected %d", errStatusMismatch, status, got[status], n)
			}
		}
		return nil
	})
	if err != nil {
		log.Printf("[GENERATION] Status hydration for run %s gave up after %d attempts: %v", opts.RunID, opts.StatusRetries, err)
		return false
	}
	return true
}

// retry calls fn up to attempts times with a fixed delay between calls.
func retry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}

func emitProgress(sink ProgressSink, p Progress) {
	if sink != nil {
		sink(p)
	}
}
