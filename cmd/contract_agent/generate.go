package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/jonathan/contract-processor/internal/blocks"
	"github.com/jonathan/contract-processor/internal/config"
	"github.com/jonathan/contract-processor/internal/generation"
	"github.com/jonathan/contract-processor/internal/merge"
	"github.com/jonathan/contract-processor/internal/observability"
	"github.com/jonathan/contract-processor/internal/types"
	"github.com/spf13/cobra"
)

var generateCmd = &cobra.Command{
	Use:   "generate [provider-id...]",
	Short: "Generate contracts for many providers and package them as a ZIP archive",
	Long: `Runs bulk generation: providers are processed in sequential batches, each provider's
assigned template is merged and rendered, and successful documents are packaged into
<out>/contracts_<run-date>.zip. With no provider ids every provider in the store is used.

Ctrl-C stops the run after the current batch; documents generated so far are still archived.`,
	RunE: runGenerate,
}

var (
	generateOut       string
	generateRunDate   string
	generateBatchSize int
)

func init() {
	addStoreFlags(generateCmd)
	generateCmd.Flags().StringVarP(&generateOut, "out", "o", ".", "Directory the archive is written to")
	generateCmd.Flags().StringVar(&generateRunDate, "run-date", "", "Run date stamped into file names (YYYY-MM-DD, default today)")
	generateCmd.Flags().IntVar(&generateBatchSize, "batch-size", 0, "Providers per batch (default from config or 32)")
	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("batch-size") {
		if generateBatchSize < 1 {
			return fmt.Errorf("--batch-size must be at least 1")
		}
		cfg.BatchSize = generateBatchSize
	}
	runDate, err := parseRunDate(generateRunDate)
	if err != nil {
		return err
	}

	ctx := context.Background()
	st, err := openStores(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open record store: %w", err)
	}
	defer st.close()

	providers, err := st.records.ListProviders(ctx, args)
	if err != nil {
		return fmt.Errorf("failed to load providers: %w", err)
	}
	if len(providers) == 0 {
		return fmt.Errorf("no matching providers found")
	}
	if len(args) > 0 && len(providers) < len(args) {
		log.Printf("Warning: %d of %d requested providers were not found", len(args)-len(providers), len(args))
	}

	resolver, err := buildResolver(ctx, st, cfg)
	if err != nil {
		return err
	}

	orchestrator, cleanup, err := buildOrchestrator(cfg, st)
	if err != nil {
		return err
	}
	defer cleanup()

	// Ctrl-C cancels at the next batch boundary
	cancel := &generation.CancelFlag{}
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stop)
	go func() {
		if _, ok := <-stop; ok {
			log.Println("Interrupt received, stopping after the current batch...")
			cancel.Cancel()
		}
	}()

	printer := observability.NewPrinter(os.Stdout)
	result, err := orchestrator.Run(ctx, providers, resolver, generation.Options{
		BatchSize:        cfg.BatchSize,
		Cancel:           cancel,
		Progress:         printer.PrintProgress,
		RunDate:          runDate,
		StatusRetries:    cfg.StatusRetries,
		StatusRetryDelay: cfg.StatusRetryDelay(),
	})
	if err != nil {
		return fmt.Errorf("generation failed: %w", err)
	}

	printer.PrintRunSummary(result)
	printer.PrintSkipped(result.Skipped)

	if result.Archive == nil {
		return fmt.Errorf("no documents were generated")
	}
	if err := os.MkdirAll(generateOut, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	path := filepath.Join(generateOut, result.Archive.Name)
	if err := os.WriteFile(path, result.Archive.Data, 0o644); err != nil {
		return fmt.Errorf("failed to write archive: %w", err)
	}
	_, _ = fmt.Fprintf(os.Stdout, "Archive written to %s (%d documents)\n", path, len(result.Successful))
	return nil
}

// buildResolver assembles template assignment from the store.
func buildResolver(ctx context.Context, st *stores, cfg config.Config) (*generation.AssignmentResolver, error) {
	assignments, err := st.records.ListTemplateAssignments(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load template assignments: %w", err)
	}
	templates, err := st.records.ListTemplates(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}
	return generation.NewAssignmentResolver(st.records, assignments, generation.TagIndex(templates), st.templateDefault(cfg)), nil
}

// newMerger builds a merger over the store's dynamic blocks.
func newMerger(st *stores, cfg config.Config) *merge.Merger {
	evaluator := blocks.NewEvaluator(st.records, blocks.NewCache())
	return merge.New(evaluator, merge.WithLegacyFTEBlock(cfg.LegacyFTEBlock))
}

// buildOrchestrator wires an orchestrator for CLI runs. Documents go to the
// blob store only when JWT_SECRET is configured.
func buildOrchestrator(cfg config.Config, st *stores) (*generation.Orchestrator, func(), error) {
	converter, closeConverter := newConverter(cfg)

	opts := []generation.Option{
		generation.WithLogStore(st.logs),
		generation.WithVerbose(cfg.Verbose),
	}
	blobs, _, err := newBlobStore(cfg, false)
	if err != nil {
		closeConverter()
		return nil, nil, fmt.Errorf("failed to create blob store: %w", err)
	}
	if blobs != nil {
		opts = append(opts, generation.WithBlobStore(blobs))
	}

	return generation.New(st.records, newMerger(st, cfg), converter, opts...), closeConverter, nil
}

// providerByID loads one provider or fails with a readable error.
func providerByID(ctx context.Context, st *stores, id string) (*types.Provider, error) {
	p, err := st.records.GetProvider(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load provider %s: %w", id, err)
	}
	if p == nil {
		return nil, fmt.Errorf("provider not found: %s", id)
	}
	return p, nil
}
