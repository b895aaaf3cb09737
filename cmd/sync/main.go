// Package main provides the incremental market data sync CLI.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/bull/twstock-rag/internal/config"
	"github.com/bull/twstock-rag/internal/embedding"
	"github.com/bull/twstock-rag/internal/market"
	"github.com/bull/twstock-rag/internal/storage"
	"github.com/bull/twstock-rag/internal/syncer"
)

var (
	configPath       string
	daysBack         int
	stocks           []string
	force            bool
	skipFundamentals bool
)

var rootCmd = &cobra.Command{
	Use:   "twstock-sync",
	Short: "Taiwan equity market data indexing tool",
	Long:  "CLI tool for managing the Taiwan equity market document index in Qdrant",
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Incrementally index recent market data",
	Long: `Builds documents for the configured security universe over a recent
date window, skips already-indexed ones, and embeds and upserts the rest.
Safe to run arbitrarily often (cron-friendly): re-runs over the same window
skip without touching the provider.

Environment variables:
  FINMIND_TOKEN      market data provider token (optional, raises quota)
  EMBEDDING_API_KEY  embeddings endpoint key (optional for local servers)`,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().StringVar(&configPath, "config", "config.yaml", "path to config file")
	syncCmd.Flags().IntVar(&daysBack, "days", 0, "days back to sync (default from config)")
	syncCmd.Flags().StringSliceVar(&stocks, "stocks", nil, "stock codes to sync (default: configured universe)")
	syncCmd.Flags().BoolVar(&force, "force", false, "re-index items even when already present")
	syncCmd.Flags().BoolVar(&skipFundamentals, "skip-fundamentals", false, "skip financial statement documents")
	rootCmd.AddCommand(syncCmd)
}

func main() {
	// Load .env if present (local development), ignore if missing.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	fmt.Printf("Connecting to Qdrant at %s:%d...\n", cfg.Qdrant.Host, cfg.Qdrant.Port)
	store, err := storage.NewQdrantStore(cfg.Qdrant.Host, cfg.Qdrant.Port, cfg.Qdrant.Collection)
	if err != nil {
		return fmt.Errorf("connect to Qdrant: %w", err)
	}
	defer store.Close()

	if err := store.EnsureCollection(ctx, uint64(cfg.Embedding.VectorSize)); err != nil {
		return fmt.Errorf("ensure collection: %w", err)
	}
	fmt.Println("Qdrant ready")

	embedClient := embedding.NewClient(cfg.Embedding.BaseURL, cfg.Embedding.APIKeyEnv)
	embedder := embedding.NewEmbedder(embedClient, cfg.Embedding.Model, cfg.Embedding.VectorSize, cfg.Embedding.BatchSize)

	provider := market.NewClient(cfg.Provider.BaseURL, cfg.ProviderToken(),
		time.Duration(cfg.Provider.TimeoutSecs)*time.Second)

	universe := cfg.Securities
	if len(stocks) > 0 {
		universe = make(map[string]string, len(stocks))
		for _, id := range stocks {
			name := cfg.Securities[id]
			if name == "" {
				name = id
			}
			universe[id] = name
		}
	}

	days := daysBack
	if days <= 0 {
		days = cfg.Sync.DefaultDaysBack
	}
	to := time.Now()
	from := to.AddDate(0, 0, -days)

	items := syncer.BuildItems(universe, from, to, !skipFundamentals)
	fmt.Printf("Syncing %d items (%s to %s, %d securities)\n",
		len(items), from.Format(time.DateOnly), to.Format(time.DateOnly), len(universe))

	s := syncer.New(provider, embedder, store, syncer.Options{
		Workers:         cfg.Sync.Workers,
		FetchRatePerSec: cfg.Sync.FetchRatePerSec,
		MaxAttempts:     cfg.Sync.MaxAttempts,
		Force:           force,
	}, slog.Default())

	report, runErr := s.Run(ctx, items)

	fmt.Println()
	fmt.Println("Sync complete!")
	fmt.Printf("  Requested: %d\n", report.Requested)
	fmt.Printf("  Inserted:  %d\n", report.Inserted)
	fmt.Printf("  Skipped:   %d\n", report.Skipped)
	fmt.Printf("  Failed:    %d\n", report.Failed)
	fmt.Printf("  Duration:  %s\n", report.Duration.Round(time.Second))

	if len(report.Failures) > 0 {
		fmt.Println()
		fmt.Println("Failed items:")
		for _, failure := range report.Failures {
			fmt.Printf("  - %s %s %s: %s\n",
				failure.Item.SecurityID, failure.Item.Date.Format(time.DateOnly),
				failure.Item.Category, failure.Reason)
		}
	}

	if count, err := store.Count(ctx); err == nil {
		fmt.Printf("\nTotal documents in index: %d\n", count)
	}

	return runErr
}
