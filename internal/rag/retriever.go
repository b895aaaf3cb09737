// Package rag answers natural-language questions by retrieving indexed
// market documents and conditioning a language model on them.
package rag

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bull/twstock-rag/internal/storage"
)

// Embedder embeds query text. It must be the same implementation (model and
// vector size) used at ingestion, or the similarity space will not match.
type Embedder interface {
	GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// Retriever embeds a query, runs a filtered similarity search, and formats
// the hits into a citation-tagged context block.
type Retriever struct {
	store     storage.VectorStore
	embedder  Embedder
	topK      int
	threshold float32
}

func NewRetriever(store storage.VectorStore, embedder Embedder, topK int, scoreThreshold float64) *Retriever {
	return &Retriever{
		store:     store,
		embedder:  embedder,
		topK:      topK,
		threshold: float32(scoreThreshold),
	}
}

// Retrieve returns the top matches for the query under the filter, bounded
// by the configured top-k. An empty result is not an error; the caller
// decides what an empty context means.
func (r *Retriever) Retrieve(ctx context.Context, query string, filter storage.Filter) ([]storage.ScoredRecord, error) {
	return r.RetrieveN(ctx, query, r.topK, filter)
}

// RetrieveN is Retrieve with a per-call result bound, for callers that take
// the limit as a request parameter. A limit < 1 falls back to the configured
// top-k.
func (r *Retriever) RetrieveN(ctx context.Context, query string, limit int, filter storage.Filter) ([]storage.ScoredRecord, error) {
	if limit < 1 {
		limit = r.topK
	}

	vectors, err := r.embedder.GenerateEmbeddings(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	results, err := r.store.Search(ctx, vectors[0], storage.SearchParams{
		Limit:          limit,
		ScoreThreshold: r.threshold,
		Filter:         filter,
	})
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	return results, nil
}

// FormatContext renders results into the context block fed to the model,
// interleaving each document's text with a citation line for traceability.
func FormatContext(results []storage.ScoredRecord) string {
	if len(results) == 0 {
		return ""
	}

	var b strings.Builder
	for i, result := range results {
		rec := result.Record
		fmt.Fprintf(&b, "[source %d] %s %s %s %s (score %.3f)\n",
			i+1, rec.SecurityID, rec.SecurityName,
			rec.AsOfDate.Format(time.DateOnly), rec.Category, result.Score)
		b.WriteString(rec.Text)
		b.WriteByte('\n')
	}
	return b.String()
}
