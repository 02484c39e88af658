package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jonathan/contract-processor/internal/config"
	"github.com/jonathan/contract-processor/internal/generation"
	"github.com/jonathan/contract-processor/internal/observability"
	"github.com/jonathan/contract-processor/internal/types"
	"github.com/spf13/cobra"
)

var mergeCmd = &cobra.Command{
	Use:   "merge <provider-id>",
	Short: "Merge one provider into its contract template",
	Long: `Merges a single provider with its assigned template (or --template) and prints the
merged HTML along with any placeholder warnings.

With --out the merged contract is also rendered through the document converter and written
to that path.`,
	Args: cobra.ExactArgs(1),
	RunE: runMerge,
}

var (
	mergeTemplate string
	mergeLegacy   bool
	mergeOut      string
	mergeRunDate  string
)

func init() {
	addStoreFlags(mergeCmd)
	mergeCmd.Flags().StringVarP(&mergeTemplate, "template", "t", "", "Template id (default: the provider's assigned template)")
	mergeCmd.Flags().BoolVar(&mergeLegacy, "legacy", false, "Preview with the legacy placeholder set instead of field mappings (not applied to --out)")
	mergeCmd.Flags().StringVarP(&mergeOut, "out", "o", "", "Render the document and write it to this path")
	mergeCmd.Flags().StringVar(&mergeRunDate, "run-date", "", "Run date for rendering (YYYY-MM-DD, default today)")
	rootCmd.AddCommand(mergeCmd)
}

func runMerge(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	runDate, err := parseRunDate(mergeRunDate)
	if err != nil {
		return err
	}

	ctx := context.Background()
	st, err := openStores(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open record store: %w", err)
	}
	defer st.close()

	provider, err := providerByID(ctx, st, args[0])
	if err != nil {
		return err
	}

	resolver, err := mergeResolver(ctx, st, cfg)
	if err != nil {
		return err
	}
	tmpl, err := resolver.ResolveTemplate(ctx, provider)
	if err != nil {
		return err
	}
	if tmpl == nil {
		return fmt.Errorf("%s for provider %s", generation.ReasonNoTemplate, provider.ID)
	}

	var mapping []types.FieldMapping
	if !mergeLegacy {
		mapping, err = st.records.ListFieldMappings(ctx, tmpl.ID)
		if err != nil {
			return fmt.Errorf("failed to load field mappings: %w", err)
		}
	}

	merger := newMerger(st, cfg)
	result, err := merger.Merge(ctx, tmpl, provider, "", mapping)
	if err != nil {
		return err
	}

	printer := observability.NewPrinter(os.Stdout)
	if cfg.Verbose {
		_, _ = fmt.Fprintf(os.Stdout, "Template: %s (%s strategy)\n", tmpl.ID, merger.StrategyFor(mapping).Name())
	}
	printer.PrintMergeWarnings(result)
	_, _ = fmt.Fprintln(os.Stdout, result.Content)

	if mergeOut == "" {
		return nil
	}
	return renderSingle(ctx, cfg, st, provider, tmpl, runDate)
}

// mergeResolver honours --template before the store's assignments.
func mergeResolver(ctx context.Context, st *stores, cfg config.Config) (generation.TemplateResolver, error) {
	if mergeTemplate != "" {
		tmpl, err := st.records.GetTemplate(ctx, mergeTemplate)
		if err != nil {
			return nil, fmt.Errorf("failed to load template %s: %w", mergeTemplate, err)
		}
		if tmpl == nil {
			return nil, fmt.Errorf("template not found: %s", mergeTemplate)
		}
		return generation.TemplateResolverFunc(func(context.Context, *types.Provider) (*types.Template, error) {
			return tmpl, nil
		}), nil
	}
	return buildResolver(ctx, st, cfg)
}

// renderSingle runs an interactive single-provider pass through the
// orchestrator and writes the document to --out.
func renderSingle(ctx context.Context, cfg config.Config, st *stores, provider *types.Provider, tmpl *types.Template, runDate time.Time) error {
	orchestrator, cleanup, err := buildOrchestrator(cfg, st)
	if err != nil {
		return err
	}
	defer cleanup()

	fixed := generation.TemplateResolverFunc(func(context.Context, *types.Provider) (*types.Template, error) {
		return tmpl, nil
	})
	result, err := orchestrator.Run(ctx, []types.Provider{*provider}, fixed, generation.Options{
		BatchSize:        generation.InteractiveBatchSize,
		RunDate:          runDate,
		StatusRetries:    cfg.StatusRetries,
		StatusRetryDelay: cfg.StatusRetryDelay(),
	})
	if err != nil {
		return fmt.Errorf("rendering failed: %w", err)
	}
	if len(result.Successful) == 0 {
		observability.NewPrinter(os.Stdout).PrintSkipped(result.Skipped)
		return fmt.Errorf("document was not generated")
	}

	if err := os.WriteFile(mergeOut, result.Successful[0].Document, 0o644); err != nil {
		return fmt.Errorf("failed to write document: %w", err)
	}
	_, _ = fmt.Fprintf(os.Stdout, "Document written to %s\n", mergeOut)
	return nil
}
