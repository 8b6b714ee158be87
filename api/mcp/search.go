package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/papercomputeco/vecindex/pkg/indexer"
)

const (
	defaultSearchLimit = 5
	maxSearchLimit     = 50
)

var (
	searchToolName    = "search"
	searchDescription = "Semantic search over indexed records. Returns the most relevant records for the query text with their title, URL and score."
)

// SearchInput represents the input arguments for the search tool.
type SearchInput struct {
	Query    string   `json:"query" jsonschema:"the search query text"`
	Limit    int      `json:"limit,omitempty" jsonschema:"number of results to return (default: 5, max: 50)"`
	Entities []string `json:"entities,omitempty" jsonschema:"entity ids to restrict the search to"`
}

// SearchResult represents a single search result.
type SearchResult struct {
	EntityID string  `json:"entityId"`
	RecordID string  `json:"recordId"`
	Score    float32 `json:"score"`
	Title    string  `json:"title,omitempty"`
	Subtitle string  `json:"subtitle,omitempty"`
	URL      string  `json:"url,omitempty"`
}

// SearchOutput represents the output of the search tool.
type SearchOutput struct {
	Query   string         `json:"query"`
	Results []SearchResult `json:"results"`
	Count   int            `json:"count"`
}

// handleSearch processes a search request.
func (s *Server) handleSearch(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	logger := s.config.Logger

	limit := input.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	limit = min(limit, maxSearchLimit)

	logger.Debug("MCP search request",
		zap.String("query", input.Query),
		zap.Int("limit", limit),
	)

	out, err := s.config.Searcher.Search(ctx, indexer.SearchArgs{
		Query:          input.Query,
		Limit:          limit,
		TenantID:       s.config.TenantID,
		OrganizationID: s.config.OrganizationID,
		EntityIDs:      input.Entities,
	})
	if err != nil {
		logger.Warn("MCP search failed", zap.Error(err))
		return errorResult(fmt.Sprintf("Search failed: %v", err)), SearchOutput{}, nil
	}

	output := SearchOutput{
		Query:   out.Query,
		Results: make([]SearchResult, 0, len(out.Results)),
	}
	for _, hit := range out.Results {
		output.Results = append(output.Results, buildSearchResult(hit))
	}
	output.Count = len(output.Results)

	// Structured content is also returned as serialized JSON text for
	// clients that only read text content.
	jsonBytes, err := json.Marshal(output)
	if err != nil {
		logger.Error("failed to marshal search output", zap.Error(err))
		return errorResult(fmt.Sprintf("Failed to serialize results: %v", err)), SearchOutput{}, nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(jsonBytes)},
		},
	}, output, nil
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: msg},
		},
	}
}

// buildSearchResult flattens a hit for tool output.
func buildSearchResult(hit indexer.SearchHit) SearchResult {
	r := SearchResult{
		EntityID: hit.EntityID,
		RecordID: hit.RecordID,
		Score:    hit.Score,
		URL:      hit.URL,
	}
	if hit.Presenter != nil {
		r.Title = hit.Presenter.Title
		r.Subtitle = hit.Presenter.Subtitle
	}
	return r
}
