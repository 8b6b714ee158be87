// Package stack assembles the index runtime from a resolved config: the
// embedding client, vector drivers, record source, index service and the
// event plumbing around it.
package stack

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/papercomputeco/vecindex/pkg/config"
	"github.com/papercomputeco/vecindex/pkg/embeddings"
	embeddingutils "github.com/papercomputeco/vecindex/pkg/embeddings/utils"
	"github.com/papercomputeco/vecindex/pkg/eventstream"
	"github.com/papercomputeco/vecindex/pkg/eventstream/kafka"
	"github.com/papercomputeco/vecindex/pkg/eventstream/nop"
	"github.com/papercomputeco/vecindex/pkg/indexer"
	"github.com/papercomputeco/vecindex/pkg/records"
	"github.com/papercomputeco/vecindex/pkg/records/inmemory"
	"github.com/papercomputeco/vecindex/pkg/records/postgres"
	"github.com/papercomputeco/vecindex/pkg/vector"
	vectorutils "github.com/papercomputeco/vecindex/pkg/vector/utils"
	"github.com/papercomputeco/vecindex/pkg/worker"
)

// Record source providers.
const (
	RecordsPostgres = "postgres"
	RecordsMemory   = "memory"
)

// Event stream providers.
const (
	EventsKafka = "kafka"
	EventsNone  = "none"
)

// Options configures New.
type Options struct {
	Config *config.Config

	// Lookup resolves credentials. Defaults to embeddings.EnvLookup.
	Lookup embeddings.CredentialLookup

	// Registerer receives the index metrics. Nil leaves them unregistered.
	Registerer prometheus.Registerer

	// Records overrides the configured record source.
	Records records.Querier

	// Logger is the provided zap logger
	Logger *zap.Logger
}

// Stack is a wired index runtime.
type Stack struct {
	Config     *config.Config
	Embeddings *embeddings.Client
	Drivers    *vector.Registry
	Driver     vector.Driver
	Records    records.Querier
	Service    *indexer.Service
	Gate       *eventstream.Gate

	lookup  embeddings.CredentialLookup
	logger  *zap.Logger
	mu      sync.Mutex
	closers []func() error
}

// New builds every component the config names. Components opened before a
// failure are closed again.
func New(ctx context.Context, o Options) (*Stack, error) {
	if o.Config == nil {
		return nil, errors.New("config is required")
	}

	logger := o.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	lookup := o.Lookup
	if lookup == nil {
		lookup = embeddings.EnvLookup
	}

	s := &Stack{
		Config: o.Config,
		Gate:   eventstream.NewGate(o.Config.Indexing.AutoIndex, nil),
		lookup: lookup,
		logger: logger,
	}

	if err := s.build(ctx, o); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Stack) build(ctx context.Context, o Options) error {
	cfg := s.Config
	providerCfg := EmbeddingConfig(cfg)

	client, err := embeddings.NewClient(embeddings.ClientConfig{
		Provider:          providerCfg,
		Factory:           embeddingutils.NewEmbedder,
		Lookup:            s.lookup,
		RequestsPerSecond: cfg.Embedding.RequestsPerSecond,
		Logger:            s.logger,
	})
	if err != nil {
		return fmt.Errorf("creating embedding client: %w", err)
	}
	s.Embeddings = client
	s.onClose(client.Close)

	if !client.Available() {
		s.logger.Warn("embedding provider unavailable, search is disabled",
			zap.String("provider", providerCfg.ProviderID),
		)
	}

	dims := int(cfg.VectorStore.Dimensions)
	if dims == 0 {
		dims = client.EffectiveDimension()
	}
	apiKey, _ := s.lookup("QDRANT_API_KEY")

	drivers, driver, err := vectorutils.NewRegistry(&vectorutils.NewVectorDriverOpts{
		ProviderType: cfg.VectorStore.Provider,
		TargetURL:    cfg.VectorStore.Target,
		Dimensions:   dims,
		Table:        cfg.VectorStore.Table,
		Collection:   cfg.VectorStore.Collection,
		Distance:     cfg.VectorStore.Distance,
		APIKey:       apiKey,
		Logger:       s.logger,
	})
	if err != nil {
		return fmt.Errorf("creating vector store: %w", err)
	}
	s.Drivers = drivers
	s.Driver = driver
	s.onClose(drivers.Close)

	s.logger.Info("vector store configured",
		zap.String("provider", cfg.VectorStore.Provider),
		zap.String("driver", driver.ID()),
		zap.Int("dimensions", dims),
	)

	if o.Records != nil {
		s.Records = o.Records
	} else if s.Records, err = s.newRecords(ctx); err != nil {
		return err
	}

	svc, err := indexer.NewService(indexer.Config{
		Groups:             cfg.EntityGroups(),
		DefaultDriverID:    driver.ID(),
		Drivers:            drivers,
		Records:            s.Records,
		Embeddings:         client,
		PageSize:           int(cfg.Indexing.PageSize),
		ReindexConcurrency: int(cfg.Indexing.ReindexConcurrency),
		Metrics:            indexer.NewMetrics(o.Registerer),
		Logger:             s.logger,
	})
	if err != nil {
		return fmt.Errorf("creating index service: %w", err)
	}
	s.Service = svc

	return nil
}

func (s *Stack) newRecords(ctx context.Context) (records.Querier, error) {
	cfg := s.Config.Records
	switch cfg.Provider {
	case RecordsPostgres:
		q, err := postgres.NewQuerier(ctx, postgres.Config{
			ConnString:        cfg.Target,
			Tables:            cfg.Tables,
			CustomFieldsTable: cfg.CustomFieldsTable,
			Logger:            s.logger,
		})
		if err != nil {
			return nil, fmt.Errorf("connecting to records database: %w", err)
		}
		s.onClose(q.Close)
		return q, nil
	case RecordsMemory, "":
		s.logger.Info("using in-memory records")
		return inmemory.NewStore(), nil
	default:
		return nil, fmt.Errorf("unsupported records provider: %s", cfg.Provider)
	}
}

// NewPool starts a worker pool applying events to the index service,
// gated by the stack's auto-index gate.
func (s *Stack) NewPool() (*worker.Pool, error) {
	return worker.NewPool(&worker.Config{
		Indexer:    s.Service,
		Gate:       s.Gate,
		NumWorkers: s.Config.Indexing.Workers,
		QueueSize:  s.Config.Indexing.QueueSize,
		Logger:     s.logger,
	})
}

// NewSubscriber returns the configured event stream consumer. With no
// stream configured it returns a subscriber that delivers nothing.
func (s *Stack) NewSubscriber() (eventstream.Subscriber, error) {
	events := s.Config.Events
	switch events.Provider {
	case EventsKafka:
		sub, err := kafka.NewSubscriber(kafka.Config{
			Brokers: events.Brokers,
			Topic:   events.Topic,
			GroupID: events.GroupID,
			Logger:  s.logger,
		})
		if err != nil {
			return nil, fmt.Errorf("creating kafka subscriber: %w", err)
		}
		return sub, nil
	case EventsNone, "":
		return nop.NewSubscriber(), nil
	default:
		return nil, fmt.Errorf("unsupported events provider: %s", events.Provider)
	}
}

// NewPublisher returns the configured event stream producer.
func (s *Stack) NewPublisher() (eventstream.Publisher, error) {
	return NewPublisher(s.Config.Events, s.logger)
}

// NewPublisher returns the producer for an events config. It needs none of
// the index components, so record writers can use it on its own.
func NewPublisher(events config.EventsConfig, logger *zap.Logger) (eventstream.Publisher, error) {
	switch events.Provider {
	case EventsKafka:
		pub, err := kafka.NewPublisher(kafka.Config{
			Brokers: events.Brokers,
			Topic:   events.Topic,
			Logger:  logger,
		})
		if err != nil {
			return nil, fmt.Errorf("creating kafka publisher: %w", err)
		}
		return pub, nil
	case EventsNone, "":
		return nop.NewPublisher(), nil
	default:
		return nil, fmt.Errorf("unsupported events provider: %s", events.Provider)
	}
}

// Reload applies a changed config to the running stack. Only the embedding
// settings and the auto-index switch take effect; everything else needs a
// restart.
func (s *Stack) Reload(ctx context.Context, next *config.Config) embeddings.ChangeDecision {
	s.Gate.SetEnabled(next.Indexing.AutoIndex)

	decision := s.Service.UpdateEmbeddingConfig(ctx, EmbeddingConfig(next))
	if decision.RequiresReindex {
		s.logger.Warn("embedding change requires a reindex",
			zap.String("reason", decision.Reason),
		)
	}
	return decision
}

// Close releases every component in reverse order of creation.
func (s *Stack) Close() error {
	s.mu.Lock()
	closers := s.closers
	s.closers = nil
	s.mu.Unlock()

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Stack) onClose(fn func() error) {
	s.mu.Lock()
	s.closers = append(s.closers, fn)
	s.mu.Unlock()
}

// EmbeddingConfig maps the embedding section of cfg to a provider config
// with provider defaults filled in.
func EmbeddingConfig(cfg *config.Config) embeddings.ProviderConfig {
	return embeddings.ProviderConfig{
		ProviderID:           cfg.Embedding.Provider,
		Model:                cfg.Embedding.Model,
		Dimension:            int(cfg.Embedding.Dimensions),
		OutputDimensionality: int(cfg.Embedding.OutputDimensionality),
		BaseURL:              cfg.Embedding.BaseURL,
	}.WithDefaults()
}
