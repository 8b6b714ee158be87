package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/adaptor/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/papercomputeco/vecindex/pkg/embeddings"
	"github.com/papercomputeco/vecindex/pkg/indexer"
)

// Indexer is the index service the server exposes.
type Indexer interface {
	Search(ctx context.Context, args indexer.SearchArgs) (*indexer.SearchOutput, error)
	ListIndexEntries(ctx context.Context, args indexer.ListArgs) (*indexer.ListOutput, error)
	ReindexEntity(ctx context.Context, args indexer.ReindexArgs) (indexer.ReindexResult, error)
	ReindexAll(ctx context.Context, args indexer.ReindexArgs) ([]indexer.ReindexResult, error)
	IndexRecord(ctx context.Context, ref indexer.RecordRef) (indexer.Outcome, error)
	DeleteRecord(ctx context.Context, ref indexer.RecordRef) error
	ListEnabledEntities() []string
	EmbeddingAvailable() bool
	EmbeddingConfig() embeddings.ProviderConfig
	Readiness(ctx context.Context) map[string]error
}

var _ Indexer = (*indexer.Service)(nil)

// Server is the API server of the index.
type Server struct {
	config  Config
	indexer Indexer
	logger  *zap.Logger
	app     *fiber.App
}

// NewServer creates a new API server around an index service. The service
// is shared with the event workers and the MCP server.
func NewServer(config Config, svc Indexer, logger *zap.Logger) (*Server, error) {
	if svc == nil {
		return nil, errors.New("api server requires an index service")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Gatherer == nil {
		config.Gatherer = prometheus.DefaultGatherer
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config:  config,
		indexer: svc,
		logger:  logger,
		app:     app,
	}

	app.Get("/ping", s.handlePing)
	app.Get("/v1/health", s.handleHealth)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(config.Gatherer, promhttp.HandlerOpts{})))

	app.Get("/search", s.requireTenant, s.handleSearch)
	app.Get("/v1/search", s.requireTenant, s.handleSearch)

	app.Get("/v1/index/entries", s.requireTenant, s.handleListEntries)
	app.Post("/v1/index/reindex", s.requireTenant, s.handleReindex)
	app.Post("/v1/index/records/:entityId/:recordId", s.requireTenant, s.handleIndexRecord)
	app.Delete("/v1/index/records/:entityId/:recordId", s.requireTenant, s.handleDeleteRecord)

	if config.Events != nil {
		app.Post("/v1/events", s.requireTenant, s.handleEvent)
	}
	if config.MCP != nil {
		app.All("/mcp", adaptor.HTTPHandler(config.MCP))
	}

	return s, nil
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server",
		zap.String("listen", s.config.ListenAddr),
	)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.SendString("pong")
}

// Test serves one request in memory. It backs handler tests.
func (s *Server) Test(req *http.Request) (*http.Response, error) {
	return s.app.Test(req, -1)
}
