// Package mcp provides an MCP (Model Context Protocol) server exposing
// index search as a tool.
package mcp

import (
	"context"
	"errors"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/papercomputeco/vecindex/pkg/indexer"
	"github.com/papercomputeco/vecindex/pkg/utils"
)

// Searcher runs similarity searches.
type Searcher interface {
	Search(ctx context.Context, args indexer.SearchArgs) (*indexer.SearchOutput, error)
}

type Config struct {
	// Searcher backs the search tool
	Searcher Searcher

	// TenantID scopes every tool call. MCP clients cannot choose a tenant.
	TenantID string

	// OrganizationID optionally narrows every tool call to one organization
	OrganizationID string

	// Noop for empty MCP server
	Noop bool

	// Logger is the configured zap logger
	Logger *zap.Logger
}

type Server struct {
	config    Config
	mcpServer *mcp.Server
	handler   *mcp.StreamableHTTPHandler
}

// NewServer creates a new MCP server with the search tool.
func NewServer(c Config) (*Server, error) {
	s := &Server{
		config: c,
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "vecindex",
			Version: utils.Version,
		},
		&mcp.ServerOptions{},
	)

	if !c.Noop {
		if c.Searcher == nil {
			return nil, errors.New("searcher is required")
		}
		if c.TenantID == "" {
			return nil, errors.New("tenant is required")
		}
		if c.Logger == nil {
			return nil, errors.New("logger is required")
		}

		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        searchToolName,
			Description: searchDescription,
		}, s.handleSearch)
	}

	s.mcpServer = mcpServer

	// Create a streamable HTTP net/http handler for stateless operations
	s.handler = mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server {
			return mcpServer
		},
		&mcp.StreamableHTTPOptions{
			Stateless: true,
		},
	)

	return s, nil
}

// Handler returns the HTTP handler for the MCP server.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// MCPServer returns the underlying MCP server, for in-process transports.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcpServer
}
