package main

import (
	"context"
	"fmt"

	"github.com/jonathan/contract-processor/internal/blocks"
	"github.com/jonathan/contract-processor/internal/server"
	"github.com/jonathan/contract-processor/internal/server/ratelimit"
	"github.com/spf13/cobra"
)

var (
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long: `Start an HTTP server that exposes REST endpoints for bulk contract generation.

Requires JWT_SECRET for API bearer tokens and signed file URLs.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 8080, "Port to listen on")
	addStoreFlags(serveCmd)
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	st, err := openStores(context.Background(), cfg)
	if err != nil {
		return fmt.Errorf("failed to open record store: %w", err)
	}

	blobs, signing, err := newBlobStore(cfg, true)
	if err != nil {
		st.close()
		return fmt.Errorf("failed to create blob store: %w", err)
	}

	converter, closeConverter := newConverter(cfg)
	limiter := ratelimit.NewLimiter(ratelimit.LoadConfig())

	srv, err := server.New(server.Config{
		Port:             servePort,
		DefaultTemplate:  st.templateDefault(cfg),
		LegacyFTEBlock:   cfg.LegacyFTEBlock,
		BatchSize:        cfg.BatchSize,
		StatusRetries:    cfg.StatusRetries,
		StatusRetryDelay: cfg.StatusRetryDelay(),
		Verbose:          cfg.Verbose,
	}, server.Dependencies{
		Records:     st.records,
		Logs:        st.logs,
		Runs:        st.runs,
		Blobs:       blobs,
		Converter:   converter,
		Cache:       blocks.NewCache(),
		Auth:        server.NewJWTService(signing),
		RateLimiter: limiter,
		Closers:     []func(){closeConverter, st.close},
	})
	if err != nil {
		limiter.Stop()
		closeConverter()
		st.close()
		return fmt.Errorf("failed to create server: %w", err)
	}

	return srv.Start()
}
