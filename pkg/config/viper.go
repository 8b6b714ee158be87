package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/papercomputeco/vecindex/pkg/dotdir"
)

// EnvPrefix prefixes every environment variable read by viper.
const EnvPrefix = "VECINDEX"

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the VECINDEX_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (VECINDEX_API_LISTEN, VECINDEX_EMBEDDING_PROVIDER, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	// 1. Register all defaults from NewDefaultConfig().
	setViperDefaults(v)

	// 2. Config file discovery via dotdir resolution.
	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// 3. Environment variables: VECINDEX_API_LISTEN, VECINDEX_EVENTS_BROKERS, etc.
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// Unmarshal resolves the full Config from v, honoring its precedence chain.
func Unmarshal(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	// Viper folds map keys to lower case. Table mappings are keyed by entity
	// id, so they are read from the file as written.
	path := v.ConfigFileUsed()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	fromFile, err := ParseConfigTOML(data)
	if err != nil {
		return nil, err
	}
	cfg.Records.Tables = fromFile.Records.Tables

	return cfg, nil
}

// Watch re-reads the config file whenever it changes on disk and hands the
// resolved Config to onChange. It does nothing when no config file was read.
func Watch(v *viper.Viper, logger *zap.Logger, onChange func(*Config)) {
	if v.ConfigFileUsed() == "" {
		return
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}

		cfg, err := Unmarshal(v)
		if err != nil {
			logger.Warn("ignoring unreadable config change", zap.String("file", e.Name), zap.Error(err))
			return
		}

		logger.Info("config reloaded", zap.String("file", e.Name))
		onChange(cfg)
	})
	v.WatchConfig()
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of
// truth. Every key is registered, even with an empty default, so that
// AutomaticEnv can override it during Unmarshal.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	// API
	v.SetDefault("api.listen", d.API.Listen)

	// Client
	v.SetDefault("client.api_target", d.Client.APITarget)
	v.SetDefault("client.tenant_id", d.Client.TenantID)
	v.SetDefault("client.organization_id", d.Client.OrganizationID)

	// MCP
	v.SetDefault("mcp.tenant_id", d.MCP.TenantID)
	v.SetDefault("mcp.organization_id", d.MCP.OrganizationID)

	// Vector store
	v.SetDefault("vector_store.provider", d.VectorStore.Provider)
	v.SetDefault("vector_store.target", d.VectorStore.Target)
	v.SetDefault("vector_store.dimensions", d.VectorStore.Dimensions)
	v.SetDefault("vector_store.table", d.VectorStore.Table)
	v.SetDefault("vector_store.collection", d.VectorStore.Collection)
	v.SetDefault("vector_store.distance", d.VectorStore.Distance)

	// Embedding
	v.SetDefault("embedding.provider", d.Embedding.Provider)
	v.SetDefault("embedding.model", d.Embedding.Model)
	v.SetDefault("embedding.dimensions", d.Embedding.Dimensions)
	v.SetDefault("embedding.output_dimensionality", d.Embedding.OutputDimensionality)
	v.SetDefault("embedding.base_url", d.Embedding.BaseURL)
	v.SetDefault("embedding.requests_per_second", d.Embedding.RequestsPerSecond)

	// Records
	v.SetDefault("records.provider", d.Records.Provider)
	v.SetDefault("records.target", d.Records.Target)
	v.SetDefault("records.custom_fields_table", d.Records.CustomFieldsTable)

	// Indexing
	v.SetDefault("indexing.auto_index", d.Indexing.AutoIndex)
	v.SetDefault("indexing.page_size", d.Indexing.PageSize)
	v.SetDefault("indexing.workers", d.Indexing.Workers)
	v.SetDefault("indexing.queue_size", d.Indexing.QueueSize)
	v.SetDefault("indexing.reindex_concurrency", d.Indexing.ReindexConcurrency)

	// Events
	v.SetDefault("events.provider", d.Events.Provider)
	v.SetDefault("events.brokers", d.Events.Brokers)
	v.SetDefault("events.topic", d.Events.Topic)
	v.SetDefault("events.group_id", d.Events.GroupID)
}
