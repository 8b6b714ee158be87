// Package indexer keeps the vector index of registered entities in step with
// their live records and serves similarity search over it.
package indexer

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/papercomputeco/vecindex/pkg/embeddings"
	"github.com/papercomputeco/vecindex/pkg/entity"
	"github.com/papercomputeco/vecindex/pkg/records"
	"github.com/papercomputeco/vecindex/pkg/vector"
)

const (
	defaultPageSize       = 200
	defaultQueryCacheSize = 256
	defaultSearchLimit    = 10
)

// Embedder is the embedding client the service depends on. It is
// implemented by *embeddings.Client.
type Embedder interface {
	Available() bool
	Config() embeddings.ProviderConfig
	CreateEmbedding(ctx context.Context, input []string) ([]float32, error)
	UpdateConfig(next embeddings.ProviderConfig) embeddings.ProviderConfig
}

// Config configures a Service.
type Config struct {
	// Groups are the entity configurations contributed by each module.
	Groups []entity.Group

	// DefaultDriverID is used by entities and groups that name no driver,
	// and by Search and ListIndexEntries when no driver is requested.
	DefaultDriverID string

	Drivers    *vector.Registry
	Records    records.Querier
	Embeddings Embedder

	// PageSize is the record page size used when reindexing. Defaults to 200.
	PageSize int

	// ReindexConcurrency caps how many entities ReindexAll works on at once.
	// Defaults to 1.
	ReindexConcurrency int

	// QueryCacheSize is the number of query embeddings kept for Search.
	// Defaults to 256, negative disables the cache.
	QueryCacheSize int

	// Metrics defaults to unregistered collectors.
	Metrics *Metrics

	// Logger is the provided zap logger
	Logger *zap.Logger
}

// Service is the vector index orchestrator.
type Service struct {
	entities   *entity.Registry
	drivers    *vector.Registry
	records    records.Querier
	embeddings Embedder

	defaultDriverID    string
	pageSize           int
	reindexConcurrency int

	queryCache *lru.Cache[string, []float32]
	metrics    *Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// NewService validates c and builds the entity registry.
func NewService(c Config) (*Service, error) {
	if c.Drivers == nil {
		return nil, fmt.Errorf("driver registry is required")
	}
	if c.Records == nil {
		return nil, fmt.Errorf("record querier is required")
	}
	if c.Embeddings == nil {
		return nil, fmt.Errorf("embedding client is required")
	}
	if c.DefaultDriverID == "" {
		return nil, fmt.Errorf("default driver id is required")
	}

	entities, err := entity.NewRegistry(c.DefaultDriverID, c.Groups...)
	if err != nil {
		return nil, fmt.Errorf("building entity registry: %w", err)
	}

	pageSize := c.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	concurrency := c.ReindexConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	var cache *lru.Cache[string, []float32]
	if c.QueryCacheSize >= 0 {
		size := c.QueryCacheSize
		if size == 0 {
			size = defaultQueryCacheSize
		}
		cache, err = lru.New[string, []float32](size)
		if err != nil {
			return nil, fmt.Errorf("creating query cache: %w", err)
		}
	}

	metrics := c.Metrics
	if metrics == nil {
		metrics = NewMetrics(nil)
	}

	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		entities:           entities,
		drivers:            c.Drivers,
		records:            c.Records,
		embeddings:         c.Embeddings,
		defaultDriverID:    c.DefaultDriverID,
		pageSize:           pageSize,
		reindexConcurrency: concurrency,
		queryCache:         cache,
		metrics:            metrics,
		logger:             logger,
		now:                time.Now,
	}, nil
}

// ListEnabledEntities returns every registered entity id.
func (s *Service) ListEnabledEntities() []string {
	return s.entities.EntityIDs()
}

// EmbeddingAvailable reports whether the embedding provider has credentials.
func (s *Service) EmbeddingAvailable() bool {
	return s.embeddings.Available()
}

// EmbeddingConfig returns the active embedding provider configuration.
func (s *Service) EmbeddingConfig() embeddings.ProviderConfig {
	return s.embeddings.Config()
}

// driver resolves id and makes sure it is initialized.
func (s *Service) driver(ctx context.Context, id string) (vector.Driver, error) {
	if id == "" {
		id = s.defaultDriverID
	}
	d, err := s.drivers.Get(id)
	if err != nil {
		return nil, err
	}
	if err := d.EnsureReady(ctx); err != nil {
		return nil, fmt.Errorf("preparing driver %s: %w", id, err)
	}
	return d, nil
}

// Readiness runs EnsureReady on every driver used by a registered entity and
// the default driver. The result maps driver id to its error, nil when ready.
func (s *Service) Readiness(ctx context.Context) map[string]error {
	ids := s.entities.DriverIDs()
	out := make(map[string]error, len(ids)+1)
	for _, id := range append(ids, s.defaultDriverID) {
		if _, done := out[id]; done {
			continue
		}
		_, err := s.driver(ctx, id)
		out[id] = err
	}
	return out
}

// UpdateEmbeddingConfig swaps the provider configuration, drops cached
// query embeddings and reports whether stored vectors must be rebuilt. The
// width of already stored vectors is taken from the default driver when it
// can report it.
func (s *Service) UpdateEmbeddingConfig(ctx context.Context, next embeddings.ProviderConfig) embeddings.ChangeDecision {
	previous := s.embeddings.UpdateConfig(next)
	if s.queryCache != nil {
		s.queryCache.Purge()
	}

	indexed := s.IndexedDimension(ctx)
	decision := embeddings.DetectConfigChange(&previous, s.embeddings.Config(), indexed)

	s.logger.Info("embedding configuration change evaluated",
		zap.Bool("requires_reindex", decision.RequiresReindex),
		zap.String("reason", decision.Reason),
	)
	return decision
}

// IndexedDimension returns the stored vector width of the default driver,
// or nil when the driver cannot tell or holds no vectors.
func (s *Service) IndexedDimension(ctx context.Context) *int {
	d, err := s.drivers.Get(s.defaultDriverID)
	if err != nil {
		return nil
	}
	reporter, ok := d.(vector.DimensionReporter)
	if !ok {
		return nil
	}
	if err := d.EnsureReady(ctx); err != nil {
		s.logger.Warn("driver not ready for dimension check", zap.String("driver", d.ID()), zap.Error(err))
		return nil
	}
	dim, ok, err := reporter.IndexedDimension(ctx)
	if err != nil {
		s.logger.Warn("reading indexed dimension", zap.String("driver", d.ID()), zap.Error(err))
		return nil
	}
	if !ok {
		return nil
	}
	return &dim
}
