// Package vectorutils builds vector drivers from configuration.
package vectorutils

import (
	"fmt"
	"net"
	"strconv"

	"go.uber.org/zap"

	"github.com/papercomputeco/vecindex/pkg/vector"
	"github.com/papercomputeco/vecindex/pkg/vector/chroma"
	"github.com/papercomputeco/vecindex/pkg/vector/inmemory"
	"github.com/papercomputeco/vecindex/pkg/vector/pgvector"
	"github.com/papercomputeco/vecindex/pkg/vector/qdrant"
	"github.com/papercomputeco/vecindex/pkg/vector/sqlitevec"
	"github.com/papercomputeco/vecindex/pkg/vector/unimplemented"
)

// Provider types.
const (
	ProviderPgvector   = "pgvector"
	ProviderQdrant     = "qdrant"
	ProviderSQLiteVec  = "sqlitevec"
	ProviderChroma     = "chromadb"
	ProviderMemory     = "memory"
	ProviderOpenSearch = "opensearch"
)

// UnimplementedProviders are known backends registered as failing stubs.
var UnimplementedProviders = []string{ProviderOpenSearch}

type NewVectorDriverOpts struct {
	ProviderType string

	// TargetURL is the connection string, URL, host:port or file path,
	// depending on the provider.
	TargetURL string

	// DriverID overrides the provider's default id.
	DriverID string

	Dimensions int
	Table      string
	Collection string
	Distance   string

	// APIKey authenticates to hosted qdrant.
	APIKey string

	Logger *zap.Logger
}

func NewVectorDriver(o *NewVectorDriverOpts) (vector.Driver, error) {
	logger := o.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	switch o.ProviderType {
	case ProviderPgvector:
		return pgvector.NewDriver(pgvector.Config{
			ConnString: o.TargetURL,
			DriverID:   o.DriverID,
			Table:      o.Table,
			Dimensions: o.Dimensions,
			Distance:   o.Distance,
		}, logger)
	case ProviderQdrant:
		host, port, err := splitHostPort(o.TargetURL)
		if err != nil {
			return nil, err
		}
		return qdrant.NewDriver(qdrant.Config{
			Host:       host,
			Port:       port,
			APIKey:     o.APIKey,
			DriverID:   o.DriverID,
			Collection: o.Collection,
			Dimensions: o.Dimensions,
			Distance:   o.Distance,
		}, logger)
	case ProviderSQLiteVec:
		return sqlitevec.NewSQLiteVecDriver(sqlitevec.Config{
			DBPath:     o.TargetURL,
			DriverID:   o.DriverID,
			Dimensions: o.Dimensions,
			Distance:   o.Distance,
		}, logger)
	case ProviderChroma:
		return chroma.NewChromaDriver(chroma.Config{
			URL:            o.TargetURL,
			DriverID:       o.DriverID,
			CollectionName: o.Collection,
			Distance:       o.Distance,
		}, logger)
	case ProviderMemory:
		return inmemory.NewDriver(o.DriverID), nil
	case ProviderOpenSearch:
		id := o.DriverID
		if id == "" {
			id = o.ProviderType
		}
		return unimplemented.NewDriver(id), nil
	default:
		return nil, fmt.Errorf("unsupported vector store provider: %s", o.ProviderType)
	}
}

// NewRegistry builds the configured driver and registers it alongside a
// stub for every unimplemented backend, so requests naming one fail with
// vector.ErrDriverNotImplemented rather than ErrDriverNotRegistered.
func NewRegistry(o *NewVectorDriverOpts) (*vector.Registry, vector.Driver, error) {
	driver, err := NewVectorDriver(o)
	if err != nil {
		return nil, nil, err
	}

	registry := vector.NewRegistry()
	for _, id := range UnimplementedProviders {
		registry.Register(unimplemented.NewDriver(id))
	}
	registry.Register(driver)

	return registry, driver, nil
}

func splitHostPort(target string) (string, int, error) {
	if target == "" {
		return "", 0, fmt.Errorf("qdrant target is required")
	}

	host, portStr, err := net.SplitHostPort(target)
	if err != nil {
		return target, 0, nil
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid qdrant port %q: %w", portStr, err)
	}
	return host, port, nil
}
