package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bull/twstock-rag/internal/rag"
	"github.com/bull/twstock-rag/internal/storage"
)

// makeSearchHandler creates the search_market_data tool handler: embed the
// query, run a filtered similarity search, return scored documents.
func makeSearchHandler(retriever *rag.Retriever, store storage.VectorStore) func(
	context.Context, *mcp.CallToolRequest, SearchInput,
) (*mcp.CallToolResult, SearchOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input SearchInput) (
		*mcp.CallToolResult, SearchOutput, error,
	) {
		maxResults := input.MaxResults
		if maxResults <= 0 {
			maxResults = 5
		}

		vectors, err := retriever.RetrieveN(ctx, input.Query, maxResults, storage.Filter{
			SecurityID: input.SecurityID,
			Category:   input.Category,
		})
		if err != nil {
			return nil, SearchOutput{}, fmt.Errorf("search failed: %w", err)
		}

		results := make([]SearchResult, 0, len(vectors))
		for _, scored := range vectors {
			if input.MinScore > 0 && float64(scored.Score) < input.MinScore {
				continue
			}
			results = append(results, toSearchResult(scored))
			if len(results) == maxResults {
				break
			}
		}

		if len(results) == 0 {
			return nil, SearchOutput{
				Results: []SearchResult{},
				Message: "No matching market data found. Try broader search terms.",
			}, nil
		}
		return nil, SearchOutput{Results: results}, nil
	}
}

// makeAskHandler creates the ask_analyst tool handler: retrieve, assemble
// context, generate. Generation failures surface to the client.
func makeAskHandler(retriever *rag.Retriever, generator *rag.Generator) func(
	context.Context, *mcp.CallToolRequest, AskInput,
) (*mcp.CallToolResult, AskOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input AskInput) (
		*mcp.CallToolResult, AskOutput, error,
	) {
		hits, err := retriever.Retrieve(ctx, input.Question, storage.Filter{
			SecurityID: input.SecurityID,
			Category:   input.Category,
		})
		if err != nil {
			return nil, AskOutput{}, fmt.Errorf("retrieval failed: %w", err)
		}

		answer, err := generator.Answer(ctx, input.Question, rag.FormatContext(hits))
		if err != nil {
			return nil, AskOutput{}, fmt.Errorf("generation failed: %w", err)
		}

		sources := make([]SearchResult, 0, len(hits))
		for _, scored := range hits {
			sources = append(sources, toSearchResult(scored))
		}
		return nil, AskOutput{Answer: answer, Sources: sources}, nil
	}
}

// makeStatusHandler creates the index_status tool handler.
func makeStatusHandler(store storage.VectorStore) func(
	context.Context, *mcp.CallToolRequest, StatusInput,
) (*mcp.CallToolResult, StatusOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input StatusInput) (
		*mcp.CallToolResult, StatusOutput, error,
	) {
		count, err := store.Count(ctx)
		if err != nil {
			return nil, StatusOutput{}, fmt.Errorf("failed to read collection stats: %w", err)
		}
		return nil, StatusOutput{DocumentCount: count}, nil
	}
}

func toSearchResult(scored storage.ScoredRecord) SearchResult {
	rec := scored.Record
	return SearchResult{
		SecurityID:   rec.SecurityID,
		SecurityName: rec.SecurityName,
		Date:         rec.AsOfDate.Format(time.DateOnly),
		Category:     rec.Category,
		Score:        float64(scored.Score),
		Text:         rec.Text,
	}
}
