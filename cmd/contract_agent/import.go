package main

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/jonathan/contract-processor/internal/dataset"
	"github.com/jonathan/contract-processor/internal/db"
	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import <dataset-file>",
	Short: "Load a dataset file into PostgreSQL",
	Long: `Validates a YAML or JSON dataset and upserts its providers, templates, field mappings,
dynamic blocks and template assignments into the database given by --db-url or DATABASE_URL.
The schema is created if missing.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

var importDatabaseURL string

func init() {
	importCmd.Flags().StringVar(&importDatabaseURL, "db-url", "", "PostgreSQL connection URL (optional, defaults to DATABASE_URL env var)")
	rootCmd.AddCommand(importCmd)
}

func runImport(_ *cobra.Command, args []string) error {
	ds, err := dataset.Load(args[0])
	if err != nil {
		return err
	}

	url := importDatabaseURL
	if url == "" {
		url = os.Getenv("DATABASE_URL")
	}
	if url == "" {
		return fmt.Errorf("DATABASE_URL environment variable or --db-url flag is required")
	}

	ctx := context.Background()
	database, err := db.Connect(ctx, url)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := database.Migrate(ctx); err != nil {
		return err
	}
	if err := importDataset(ctx, database, ds); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(os.Stdout, "Imported %d providers, %d templates, %d dynamic blocks, %d assignments\n",
		len(ds.Providers), len(ds.Templates), len(ds.DynamicBlocks), len(ds.Assignments))
	return nil
}

func importDataset(ctx context.Context, database *db.DB, ds *dataset.Dataset) error {
	for i := range ds.Templates {
		if err := database.UpsertTemplate(ctx, &ds.Templates[i]); err != nil {
			return err
		}
	}

	templateIDs := make([]string, 0, len(ds.Mappings))
	for id := range ds.Mappings {
		templateIDs = append(templateIDs, id)
	}
	sort.Strings(templateIDs)
	for _, id := range templateIDs {
		if err := database.ReplaceFieldMappings(ctx, id, ds.Mappings[id]); err != nil {
			return err
		}
	}

	for i := range ds.DynamicBlocks {
		if err := database.UpsertDynamicBlock(ctx, &ds.DynamicBlocks[i]); err != nil {
			return err
		}
	}

	for i := range ds.Providers {
		if err := database.UpsertProvider(ctx, &ds.Providers[i]); err != nil {
			return err
		}
	}

	for providerID, templateID := range ds.Assignments {
		if err := database.SetTemplateAssignment(ctx, providerID, templateID); err != nil {
			return err
		}
	}
	return nil
}
