// Package main provides the MCP server entry point for the market analyst.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/bull/twstock-rag/internal/config"
	"github.com/bull/twstock-rag/internal/embedding"
	"github.com/bull/twstock-rag/internal/llm"
	mcpserver "github.com/bull/twstock-rag/internal/mcp"
	"github.com/bull/twstock-rag/internal/rag"
	"github.com/bull/twstock-rag/internal/storage"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	configPath := getEnv("CONFIG_PATH", "config.yaml")
	port := getEnv("PORT", "8080")

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	store, err := storage.NewQdrantStore(cfg.Qdrant.Host, cfg.Qdrant.Port, cfg.Qdrant.Collection)
	if err != nil {
		log.Fatalf("failed to connect to Qdrant: %v", err)
	}
	defer store.Close()

	if err := store.EnsureCollection(ctx, uint64(cfg.Embedding.VectorSize)); err != nil {
		log.Fatalf("failed to ensure collection: %v", err)
	}

	embedClient := embedding.NewClient(cfg.Embedding.BaseURL, cfg.Embedding.APIKeyEnv)
	embedder := embedding.NewEmbedder(embedClient, cfg.Embedding.Model, cfg.Embedding.VectorSize, cfg.Embedding.BatchSize)
	retriever := rag.NewRetriever(store, embedder, cfg.RAG.TopK, cfg.RAG.ScoreThreshold)
	generator := rag.NewGenerator(
		llm.NewGenerator(cfg.LLM.BaseURL, os.Getenv(cfg.LLM.APIKeyEnv), cfg.LLM.Model,
			time.Duration(cfg.LLM.TimeoutSecs)*time.Second),
		cfg.SystemPrompt,
	)

	server := mcpserver.NewServer(&mcpserver.Config{
		Store:     store,
		Retriever: retriever,
		Generator: generator,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/", mcpserver.NewLandingHandler())
	mux.HandleFunc("/health", mcpserver.NewHealthHandler(store))
	mux.Handle("/mcp", mcpserver.NewHTTPHandler(server, nil))

	serverMode := getEnv("SERVER_MODE", "false") == "true"

	if serverMode {
		// HTTP mode: serve MCP over HTTP for remote clients.
		addr := "0.0.0.0:" + port
		log.Printf("Starting HTTP server on %s (MCP at /mcp, health at /health)", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Fatalf("HTTP server error: %v", err)
		}
	} else {
		// Stdio mode: MCP over stdin/stdout for local clients, health
		// endpoint in the background for local testing.
		go func() {
			addr := "0.0.0.0:" + port
			log.Printf("Starting health server on %s", addr)
			if err := http.ListenAndServe(addr, mux); err != nil {
				log.Printf("Health server error: %v", err)
			}
		}()

		log.Println("Starting TW Stock Analyst MCP server (stdio mode)...")
		if err := server.Run(ctx); err != nil {
			log.Printf("server error: %v", err)
			os.Exit(1)
		}
	}
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
