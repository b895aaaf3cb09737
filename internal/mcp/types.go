// Package mcp exposes the market index and the RAG pipeline as MCP tools.
package mcp

// SearchInput defines the input parameters for the search_market_data tool.
type SearchInput struct {
	// Query is the semantic search query.
	Query string `json:"query" jsonschema:"required,description=The semantic search query for finding relevant market data"`
	// SecurityID optionally restricts results to one stock code.
	SecurityID string `json:"security_id,omitempty" jsonschema:"description=Restrict results to this stock code (e.g. 2330)"`
	// Category optionally restricts results to price_technical or fundamental.
	Category string `json:"category,omitempty" jsonschema:"enum=price_technical,enum=fundamental,description=Restrict results to one document category"`
	// MaxResults is the maximum number of documents to return.
	MaxResults int `json:"max_results,omitempty" jsonschema:"minimum=1,maximum=20,default=5,description=Maximum number of documents to return"`
	// MinScore is the minimum similarity threshold (0-1).
	MinScore float64 `json:"min_score,omitempty" jsonschema:"minimum=0,maximum=1,description=Minimum similarity score threshold (0-1)"`
}

// SearchOutput contains the search results.
type SearchOutput struct {
	Results []SearchResult `json:"results"`
	// Message provides informational context (e.g. "no matching documents").
	Message string `json:"message,omitempty"`
}

// SearchResult is one document match.
type SearchResult struct {
	SecurityID   string  `json:"security_id"`
	SecurityName string  `json:"security_name"`
	Date         string  `json:"date"`
	Category     string  `json:"category"`
	Score        float64 `json:"score"`
	Text         string  `json:"text"`
}

// AskInput defines the input parameters for the ask_analyst tool.
type AskInput struct {
	// Question is the natural-language question to answer.
	Question string `json:"question" jsonschema:"required,description=Natural-language question about the indexed securities"`
	// SecurityID optionally restricts retrieval to one stock code.
	SecurityID string `json:"security_id,omitempty" jsonschema:"description=Restrict retrieval to this stock code"`
	// Category optionally restricts retrieval to one document category.
	Category string `json:"category,omitempty" jsonschema:"enum=price_technical,enum=fundamental,description=Restrict retrieval to one document category"`
}

// AskOutput contains the generated answer and its sources.
type AskOutput struct {
	Answer  string         `json:"answer"`
	Sources []SearchResult `json:"sources"`
}

// StatusInput takes no parameters.
type StatusInput struct{}

// StatusOutput reports index diagnostics.
type StatusOutput struct {
	// DocumentCount is the number of indexed documents.
	DocumentCount uint64 `json:"document_count"`
}
