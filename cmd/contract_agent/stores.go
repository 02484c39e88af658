package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jonathan/contract-processor/internal/config"
	"github.com/jonathan/contract-processor/internal/dataset"
	"github.com/jonathan/contract-processor/internal/db"
	"github.com/jonathan/contract-processor/internal/rendering"
	"github.com/jonathan/contract-processor/internal/server"
	"github.com/jonathan/contract-processor/internal/storage"
	"github.com/spf13/cobra"
)

// Flags shared by every command that reads the record store
var (
	configPath  string
	datasetPath string
	databaseURL string
	verbose     bool
)

func addStoreFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&configPath, "config", "", "Path to config.json file (values can be overridden by other flags)")
	cmd.Flags().StringVarP(&datasetPath, "dataset", "d", "", "Path to a YAML or JSON dataset file (mutually exclusive with --db-url)")
	cmd.Flags().StringVar(&databaseURL, "db-url", "", "PostgreSQL connection URL (optional, defaults to DATABASE_URL env var)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Print detailed progress information")
}

// resolveConfig loads the config file, applies flag overrides and fills
// defaults. DATABASE_URL is used when neither a dataset nor a URL is given.
func resolveConfig(cmd *cobra.Command) (config.Config, error) {
	var cfg config.Config
	if configPath != "" {
		loaded, err := config.LoadConfig(configPath)
		if err != nil {
			return cfg, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = *loaded
	}

	// Command-line args take priority; only explicitly set flags override
	if cmd.Flags().Changed("dataset") {
		cfg.Dataset = datasetPath
		cfg.DatabaseURL = ""
	}
	if cmd.Flags().Changed("db-url") {
		cfg.DatabaseURL = databaseURL
		if !cmd.Flags().Changed("dataset") {
			cfg.Dataset = ""
		}
	}
	if cmd.Flags().Changed("verbose") {
		cfg.Verbose = verbose
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	cfg = cfg.MergeWithDefaults(config.Config{DatabaseURL: os.Getenv("DATABASE_URL")})
	if cfg.Dataset == "" && cfg.DatabaseURL == "" {
		return cfg, fmt.Errorf("a record store is required: --dataset, --db-url or DATABASE_URL")
	}
	return cfg, nil
}

// stores bundles the record, log and run stores of one backend.
type stores struct {
	records server.RecordStore
	logs    server.LogStore
	runs    server.RunStore // nil for datasets

	// defaultTemplate is the dataset's own default, used when the config has none
	defaultTemplate string
	close           func()
}

func openStores(ctx context.Context, cfg config.Config) (*stores, error) {
	if cfg.Dataset != "" {
		ds, err := dataset.Load(cfg.Dataset)
		if err != nil {
			return nil, err
		}
		return &stores{
			records:         ds,
			logs:            dataset.NewLogBook(),
			defaultTemplate: ds.DefaultTemplate,
			close:           func() {},
		}, nil
	}

	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(ctx); err != nil {
		database.Close()
		return nil, err
	}
	return &stores{
		records: database,
		logs:    database,
		runs:    database,
		close:   database.Close,
	}, nil
}

// templateDefault prefers the configured default template over the store's.
func (s *stores) templateDefault(cfg config.Config) string {
	if cfg.DefaultTemplate != "" {
		return cfg.DefaultTemplate
	}
	return s.defaultTemplate
}

// newConverter returns the configured document converter and a cleanup func.
func newConverter(cfg config.Config) (rendering.Converter, func()) {
	if cfg.Converter == config.ConverterHTML {
		return rendering.HTMLConverter{}, func() {}
	}
	chrome := rendering.NewChromeConverter(cfg.ConvertTimeout(), cfg.Verbose)
	return chrome, chrome.Close
}

// newBlobStore opens the file blob store. Signing needs JWT_SECRET; with
// required=false a missing secret yields a nil store.
func newBlobStore(cfg config.Config, required bool) (*storage.FileStore, *config.SigningConfig, error) {
	signing, err := config.NewSigningConfig()
	if err != nil {
		if required {
			return nil, nil, err
		}
		return nil, nil, nil
	}

	signer, err := storage.NewSigner(signing.Secret, signing.URLTTL(), publicFilesURL(cfg.PublicURL))
	if err != nil {
		return nil, nil, err
	}
	store, err := storage.NewFileStore(cfg.StorageDir, signer)
	if err != nil {
		return nil, nil, err
	}
	return store, signing, nil
}

func publicFilesURL(base string) string {
	if base == "" {
		base = "http://localhost:8080"
	}
	return base + "/files"
}

// parseRunDate parses a YYYY-MM-DD flag value; empty means today.
func parseRunDate(value string) (time.Time, error) {
	if value == "" {
		return time.Now(), nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid run date %q (expected YYYY-MM-DD): %w", value, err)
	}
	return t, nil
}
