package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/papercomputeco/vecindex/pkg/entity"
	"github.com/papercomputeco/vecindex/pkg/records/postgres"
)

// Config represents the persistent vecindex configuration stored as
// config.toml in the .vecindex/ directory. The TOML layout uses sections for
// logical grouping.
type Config struct {
	Version     int               `toml:"version" mapstructure:"version"`
	API         APIConfig         `toml:"api" mapstructure:"api"`
	Client      ClientConfig      `toml:"client" mapstructure:"client"`
	MCP         MCPConfig         `toml:"mcp" mapstructure:"mcp"`
	VectorStore VectorStoreConfig `toml:"vector_store" mapstructure:"vector_store"`
	Embedding   EmbeddingConfig   `toml:"embedding" mapstructure:"embedding"`
	Records     RecordsConfig     `toml:"records" mapstructure:"records"`
	Indexing    IndexingConfig    `toml:"indexing" mapstructure:"indexing"`
	Events      EventsConfig      `toml:"events" mapstructure:"events"`
	Entities    []EntityConfig    `toml:"entities,omitempty" mapstructure:"entities"`
}

// APIConfig holds API server settings.
type APIConfig struct {
	Listen string `toml:"listen,omitempty" mapstructure:"listen"`
}

// ClientConfig holds settings for CLI commands that talk to a running API
// server (e.g. vecindex search). Tenant and organization are sent as the
// X-Tenant-Id and X-Organization-Id headers.
type ClientConfig struct {
	APITarget      string `toml:"api_target,omitempty" mapstructure:"api_target"`
	TenantID       string `toml:"tenant_id,omitempty" mapstructure:"tenant_id"`
	OrganizationID string `toml:"organization_id,omitempty" mapstructure:"organization_id"`
}

// MCPConfig fixes the tenant scope of the MCP search tool, which has no
// request headers of its own.
type MCPConfig struct {
	TenantID       string `toml:"tenant_id,omitempty" mapstructure:"tenant_id"`
	OrganizationID string `toml:"organization_id,omitempty" mapstructure:"organization_id"`
}

// VectorStoreConfig holds vector store settings.
type VectorStoreConfig struct {
	Provider string `toml:"provider,omitempty" mapstructure:"provider"`
	Target   string `toml:"target,omitempty" mapstructure:"target"`

	// Dimensions of the stored vectors. Zero takes the embedding
	// provider's effective dimension.
	Dimensions uint   `toml:"dimensions,omitempty" mapstructure:"dimensions"`
	Table      string `toml:"table,omitempty" mapstructure:"table"`
	Collection string `toml:"collection,omitempty" mapstructure:"collection"`
	Distance   string `toml:"distance,omitempty" mapstructure:"distance"`
}

// EmbeddingConfig holds embedding provider settings. Credentials are never
// stored here; they are read from the provider's environment variables.
type EmbeddingConfig struct {
	Provider             string  `toml:"provider,omitempty" mapstructure:"provider"`
	Model                string  `toml:"model,omitempty" mapstructure:"model"`
	Dimensions           uint    `toml:"dimensions,omitempty" mapstructure:"dimensions"`
	OutputDimensionality uint    `toml:"output_dimensionality,omitempty" mapstructure:"output_dimensionality"`
	BaseURL              string  `toml:"base_url,omitempty" mapstructure:"base_url"`
	RequestsPerSecond    float64 `toml:"requests_per_second,omitempty" mapstructure:"requests_per_second"`
}

// RecordsConfig holds the source of truth settings.
type RecordsConfig struct {
	Provider          string                    `toml:"provider,omitempty" mapstructure:"provider"`
	Target            string                    `toml:"target,omitempty" mapstructure:"target"`
	CustomFieldsTable string                    `toml:"custom_fields_table,omitempty" mapstructure:"custom_fields_table"`
	Tables            map[string]postgres.Table `toml:"tables,omitempty" mapstructure:"tables"`
}

// IndexingConfig holds automatic indexing and reindex settings.
type IndexingConfig struct {
	AutoIndex          bool `toml:"auto_index" mapstructure:"auto_index"`
	PageSize           uint `toml:"page_size,omitempty" mapstructure:"page_size"`
	Workers            uint `toml:"workers,omitempty" mapstructure:"workers"`
	QueueSize          uint `toml:"queue_size,omitempty" mapstructure:"queue_size"`
	ReindexConcurrency uint `toml:"reindex_concurrency,omitempty" mapstructure:"reindex_concurrency"`
}

// EventsConfig holds the mutation event stream settings.
type EventsConfig struct {
	Provider string   `toml:"provider,omitempty" mapstructure:"provider"`
	Brokers  []string `toml:"brokers,omitempty" mapstructure:"brokers"`
	Topic    string   `toml:"topic,omitempty" mapstructure:"topic"`
	GroupID  string   `toml:"group_id,omitempty" mapstructure:"group_id"`
}

// EntityConfig declares one searchable entity in an [[entities]] section.
type EntityConfig struct {
	ID       string `toml:"id" mapstructure:"id"`
	Module   string `toml:"module,omitempty" mapstructure:"module"`
	Driver   string `toml:"driver,omitempty" mapstructure:"driver"`
	Disabled bool   `toml:"disabled,omitempty" mapstructure:"disabled"`

	entity.Template `mapstructure:",squash"`
}

// EntityGroups turns the declared entities into one group per module, in
// order of first appearance.
func (c *Config) EntityGroups() []entity.Group {
	var groups []entity.Group
	index := make(map[string]int)
	for _, e := range c.Entities {
		i, ok := index[e.Module]
		if !ok {
			i = len(groups)
			index[e.Module] = i
			groups = append(groups, entity.Group{Module: e.Module})
		}

		cfg := e.Template.Config(e.ID, e.Driver)
		cfg.Disabled = e.Disabled
		groups[i].Entities = append(groups[i].Entities, cfg)
	}
	return groups
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func stringKey(field func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error { *field(c) = v; return nil },
	}
}

func uintKey(key string, field func(c *Config) *uint) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if *field(c) == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(*field(c)), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", key, err)
			}
			*field(c) = uint(n)
			return nil
		},
	}
}

func boolKey(key string, field func(c *Config) *bool) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return strconv.FormatBool(*field(c)) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", key, err)
			}
			*field(c) = b
			return nil
		},
	}
}

func floatKey(key string, field func(c *Config) *float64) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if *field(c) == 0 {
				return ""
			}
			return strconv.FormatFloat(*field(c), 'f', -1, 64)
		},
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", key, err)
			}
			if f < 0 {
				return fmt.Errorf("invalid value for %s: must not be negative", key)
			}
			*field(c) = f
			return nil
		},
	}
}

// listKey reads and writes a comma separated list.
func listKey(field func(c *Config) *[]string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return strings.Join(*field(c), ",") },
		set: func(c *Config, v string) error {
			var items []string
			for _, item := range strings.Split(v, ",") {
				if item = strings.TrimSpace(item); item != "" {
					items = append(items, item)
				}
			}
			*field(c) = items
			return nil
		},
	}
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"api.listen": stringKey(func(c *Config) *string { return &c.API.Listen }),

	"client.api_target":      stringKey(func(c *Config) *string { return &c.Client.APITarget }),
	"client.tenant_id":       stringKey(func(c *Config) *string { return &c.Client.TenantID }),
	"client.organization_id": stringKey(func(c *Config) *string { return &c.Client.OrganizationID }),

	"mcp.tenant_id":       stringKey(func(c *Config) *string { return &c.MCP.TenantID }),
	"mcp.organization_id": stringKey(func(c *Config) *string { return &c.MCP.OrganizationID }),

	"vector_store.provider":   stringKey(func(c *Config) *string { return &c.VectorStore.Provider }),
	"vector_store.target":     stringKey(func(c *Config) *string { return &c.VectorStore.Target }),
	"vector_store.dimensions": uintKey("vector_store.dimensions", func(c *Config) *uint { return &c.VectorStore.Dimensions }),
	"vector_store.table":      stringKey(func(c *Config) *string { return &c.VectorStore.Table }),
	"vector_store.collection": stringKey(func(c *Config) *string { return &c.VectorStore.Collection }),
	"vector_store.distance":   stringKey(func(c *Config) *string { return &c.VectorStore.Distance }),

	"embedding.provider":              stringKey(func(c *Config) *string { return &c.Embedding.Provider }),
	"embedding.model":                 stringKey(func(c *Config) *string { return &c.Embedding.Model }),
	"embedding.dimensions":            uintKey("embedding.dimensions", func(c *Config) *uint { return &c.Embedding.Dimensions }),
	"embedding.output_dimensionality": uintKey("embedding.output_dimensionality", func(c *Config) *uint { return &c.Embedding.OutputDimensionality }),
	"embedding.base_url":              stringKey(func(c *Config) *string { return &c.Embedding.BaseURL }),
	"embedding.requests_per_second":   floatKey("embedding.requests_per_second", func(c *Config) *float64 { return &c.Embedding.RequestsPerSecond }),

	"records.provider":            stringKey(func(c *Config) *string { return &c.Records.Provider }),
	"records.target":              stringKey(func(c *Config) *string { return &c.Records.Target }),
	"records.custom_fields_table": stringKey(func(c *Config) *string { return &c.Records.CustomFieldsTable }),

	"indexing.auto_index":          boolKey("indexing.auto_index", func(c *Config) *bool { return &c.Indexing.AutoIndex }),
	"indexing.page_size":           uintKey("indexing.page_size", func(c *Config) *uint { return &c.Indexing.PageSize }),
	"indexing.workers":             uintKey("indexing.workers", func(c *Config) *uint { return &c.Indexing.Workers }),
	"indexing.queue_size":          uintKey("indexing.queue_size", func(c *Config) *uint { return &c.Indexing.QueueSize }),
	"indexing.reindex_concurrency": uintKey("indexing.reindex_concurrency", func(c *Config) *uint { return &c.Indexing.ReindexConcurrency }),

	"events.provider": stringKey(func(c *Config) *string { return &c.Events.Provider }),
	"events.brokers":  listKey(func(c *Config) *[]string { return &c.Events.Brokers }),
	"events.topic":    stringKey(func(c *Config) *string { return &c.Events.Topic }),
	"events.group_id": stringKey(func(c *Config) *string { return &c.Events.GroupID }),
}
