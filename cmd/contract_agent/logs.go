package main

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/jonathan/contract-processor/internal/observability"
	"github.com/jonathan/contract-processor/internal/types"
	"github.com/spf13/cobra"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "List generation logs",
	Long:  `Lists per-provider generation logs, newest first. Use --page-token with the token printed at the end of a page to continue.`,
	RunE:  runLogs,
}

var logsDeleteCmd = &cobra.Command{
	Use:   "delete <log-id>",
	Short: "Delete a generation log",
	Args:  cobra.ExactArgs(1),
	RunE:  runLogsDelete,
}

var (
	logsRunID     string
	logsStatus    string
	logsLimit     int
	logsPageToken string
)

func init() {
	addStoreFlags(logsCmd)
	logsCmd.Flags().StringVar(&logsRunID, "run-id", "", "Only logs of this run")
	logsCmd.Flags().StringVar(&logsStatus, "status", "", "Only logs with this status (success, skipped, error)")
	logsCmd.Flags().IntVar(&logsLimit, "limit", 20, "Page size")
	logsCmd.Flags().StringVar(&logsPageToken, "page-token", "", "Continue from a previous page")

	addStoreFlags(logsDeleteCmd)
	logsCmd.AddCommand(logsDeleteCmd)
	rootCmd.AddCommand(logsCmd)
}

// logFilter validates the listing flags.
func logFilter(runID, status string, limit int, pageToken string) (types.GenerationLogFilter, error) {
	filter := types.GenerationLogFilter{Limit: limit, PageToken: pageToken}
	if runID != "" {
		id, err := uuid.Parse(runID)
		if err != nil {
			return filter, fmt.Errorf("invalid --run-id: %w", err)
		}
		filter.RunID = id
	}
	switch status {
	case "", types.GenerationStatusSuccess, types.GenerationStatusSkipped, types.GenerationStatusError:
		filter.Status = status
	default:
		return filter, fmt.Errorf("invalid --status %q (expected success, skipped or error)", status)
	}
	if limit < 1 {
		return filter, fmt.Errorf("--limit must be at least 1")
	}
	return filter, nil
}

func runLogs(cmd *cobra.Command, _ []string) error {
	filter, err := logFilter(logsRunID, logsStatus, logsLimit, logsPageToken)
	if err != nil {
		return err
	}
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	ctx := context.Background()
	st, err := openStores(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open record store: %w", err)
	}
	defer st.close()

	page, err := st.logs.ListGenerationLogs(ctx, filter)
	if err != nil {
		return fmt.Errorf("failed to list generation logs: %w", err)
	}
	observability.NewPrinter(os.Stdout).PrintGenerationLogs(page)
	return nil
}

func runLogsDelete(cmd *cobra.Command, args []string) error {
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid log id: %w", err)
	}
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	ctx := context.Background()
	st, err := openStores(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open record store: %w", err)
	}
	defer st.close()

	deleted, err := st.logs.DeleteGenerationLog(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete generation log: %w", err)
	}
	if !deleted {
		return fmt.Errorf("generation log not found: %s", id)
	}
	_, _ = fmt.Fprintf(os.Stdout, "Deleted generation log %s\n", id)
	return nil
}
