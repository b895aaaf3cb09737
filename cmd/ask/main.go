// Package main provides the one-shot question answering CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/bull/twstock-rag/internal/config"
	"github.com/bull/twstock-rag/internal/embedding"
	"github.com/bull/twstock-rag/internal/llm"
	"github.com/bull/twstock-rag/internal/rag"
	"github.com/bull/twstock-rag/internal/storage"
)

var (
	configPath string
	stockID    string
	category   string
)

var rootCmd = &cobra.Command{
	Use:   "twstock-ask [question]",
	Short: "Ask a question about the indexed Taiwan equities",
	Long: `Embeds the question, retrieves the most relevant indexed market
documents, and generates an answer with the configured local model.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "config.yaml", "path to config file")
	rootCmd.Flags().StringVar(&stockID, "stock", "", "restrict retrieval to one stock code")
	rootCmd.Flags().StringVar(&category, "category", "", "restrict retrieval to price_technical or fundamental")
}

func main() {
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	question := strings.Join(args, " ")

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	store, err := storage.NewQdrantStore(cfg.Qdrant.Host, cfg.Qdrant.Port, cfg.Qdrant.Collection)
	if err != nil {
		return fmt.Errorf("connect to Qdrant: %w", err)
	}
	defer store.Close()

	embedClient := embedding.NewClient(cfg.Embedding.BaseURL, cfg.Embedding.APIKeyEnv)
	embedder := embedding.NewEmbedder(embedClient, cfg.Embedding.Model, cfg.Embedding.VectorSize, cfg.Embedding.BatchSize)
	retriever := rag.NewRetriever(store, embedder, cfg.RAG.TopK, cfg.RAG.ScoreThreshold)

	generator := rag.NewGenerator(
		llm.NewGenerator(cfg.LLM.BaseURL, os.Getenv(cfg.LLM.APIKeyEnv), cfg.LLM.Model,
			time.Duration(cfg.LLM.TimeoutSecs)*time.Second),
		cfg.SystemPrompt,
	)

	hits, err := retriever.Retrieve(ctx, question, storage.Filter{
		SecurityID: stockID,
		Category:   category,
	})
	if err != nil {
		return fmt.Errorf("retrieve: %w", err)
	}

	if len(hits) == 0 {
		fmt.Println("No indexed market data matched the question; answering without context.")
	}

	answer, err := generator.Answer(ctx, question, rag.FormatContext(hits))
	if err != nil {
		return fmt.Errorf("generate: %w", err)
	}

	fmt.Println(answer)

	if len(hits) > 0 {
		fmt.Println()
		fmt.Println("Sources:")
		for i, hit := range hits {
			rec := hit.Record
			fmt.Printf("  [%d] %s %s %s %s (score %.3f)\n",
				i+1, rec.SecurityID, rec.SecurityName,
				rec.AsOfDate.Format(time.DateOnly), rec.Category, hit.Score)
		}
	}

	return nil
}
