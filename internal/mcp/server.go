package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bull/twstock-rag/internal/rag"
	"github.com/bull/twstock-rag/internal/storage"
)

// Server wraps the MCP server with its dependencies.
type Server struct {
	server *mcp.Server
}

// Config holds server dependencies.
type Config struct {
	Store     storage.VectorStore
	Retriever *rag.Retriever
	Generator *rag.Generator
}

// NewServer creates a configured MCP server with tools registered.
func NewServer(cfg *Config) *Server {
	impl := &mcp.Implementation{
		Name:    "twstock-analyst-server",
		Version: "v0.1.0",
	}

	server := mcp.NewServer(impl, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_market_data",
		Description: "Semantic search over indexed Taiwan equity market documents (daily price/technical snapshots and fundamentals). Returns scored documents with their rendered facts.",
	}, makeSearchHandler(cfg.Retriever, cfg.Store))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ask_analyst",
		Description: "Ask a natural-language question about the indexed securities. Retrieves relevant market data and generates an answer with cited sources.",
	}, makeAskHandler(cfg.Retriever, cfg.Generator))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "index_status",
		Description: "Report the current size of the market document index.",
	}, makeStatusHandler(cfg.Store))

	return &Server{server: server}
}

// Run starts the server with stdio transport (blocks until the client
// disconnects).
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// MCPServer returns the underlying MCP server instance for transport
// handlers that need to wrap it.
func (s *Server) MCPServer() *mcp.Server {
	return s.server
}
