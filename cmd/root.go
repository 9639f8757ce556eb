// Package cmd implements the prospector command-line interface: discovery
// runs, standalone crawls, progress reporting, and scheduled runs.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/prospector/internal/config"
	"github.com/jonesrussell/prospector/internal/logger"
	"github.com/jonesrussell/prospector/internal/pipeline"
	"github.com/jonesrussell/prospector/internal/store"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var (
	cfgFile string
	debug   bool

	rootCmd = &cobra.Command{
		Use:   "prospector",
		Short: "Discover, vet, and crawl business websites by keyword",
		Long: `Prospector turns seed keywords into a crawled corpus of business
websites: it generates search queries, collects and deduplicates results,
vets each domain for commerce signals and relevance, and crawls approved
domains into Elasticsearch.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
)

// Execute runs the root command with signal-aware cancellation.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(*cobra.Command, []string) {
			fmt.Printf("prospector version %s\n", Version)
		},
	})

	rootCmd.AddCommand(newDiscoverCmd())
	rootCmd.AddCommand(newCrawlCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newScheduleCmd())
}

// deps bundles everything a command needs, with a Close releasing the
// store connections.
type deps struct {
	cfg      *config.Config
	log      logger.Interface
	pipeline *pipeline.Pipeline

	kv    store.KV
	pages store.PageStore
}

func (d *deps) Close() {
	if d.kv != nil {
		_ = d.kv.Close()
	}
	if d.pages != nil {
		_ = d.pages.Close()
	}
}

// buildDeps loads configuration and connects the stores. Commands call it
// inside RunE so flag parsing has already happened.
func buildDeps(ctx context.Context) (*deps, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if debug {
		cfg.Logger.Level = "debug"
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Logger.Level,
		Development: cfg.Logger.Development,
		Encoding:    cfg.Logger.Encoding,
	})
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	kv, err := store.NewRedisStore(ctx, store.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	pages, err := store.NewESPageStore(ctx, store.ESConfig{
		Addresses: cfg.Elasticsearch.Addresses,
		Username:  cfg.Elasticsearch.Username,
		Password:  cfg.Elasticsearch.Password,
		APIKey:    cfg.Elasticsearch.APIKey,
		Index:     cfg.Elasticsearch.Index,
	}, log)
	if err != nil {
		_ = kv.Close()
		return nil, fmt.Errorf("connect elasticsearch: %w", err)
	}

	return &deps{
		cfg:      cfg,
		log:      log,
		pipeline: pipeline.New(cfg, kv, pages, log),
		kv:       kv,
		pages:    pages,
	}, nil
}
