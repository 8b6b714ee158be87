package config

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag is the single source of truth for a CLI flag.
// Commands reference flags by registry key rather than hard-coding names,
// shorthands, defaults, and descriptions inline. This prevents flag drift
// when the same logical flag appears on multiple commands (e.g.,
// --embedding-provider on both "vecindex serve" and "vecindex reindex").
type Flag struct {
	// Name is the long flag name (e.g. "listen").
	Name string

	// Shorthand is the one-letter short flag (e.g. "l"). Empty for no shorthand.
	Shorthand string

	// ViperKey is the dotted config key this flag maps to (e.g. "api.listen").
	ViperKey string

	// Description is the help text shown in --help output.
	Description string
}

// FlagSet is a mapping of flag names to Flag structs that hold their name,
// shorthand, viper key, etc.
type FlagSet map[string]Flag

// Flag registry keys.
// Use these constants when calling AddStringFlag, AddUintFlag,
// and BindRegisteredFlags to avoid typos or drift from one command to another.
const (
	FlagAPIListen       = "api-listen"
	FlagAPITarget       = "api-target"
	FlagTenant          = "tenant"
	FlagOrganization    = "organization"
	FlagVectorStoreProv = "vector-store-provider"
	FlagVectorStoreTgt  = "vector-store-target"
	FlagVectorStoreDims = "vector-store-dimensions"
	FlagEmbeddingProv   = "embedding-provider"
	FlagEmbeddingModel  = "embedding-model"
	FlagEmbeddingDims   = "embedding-dimensions"
	FlagEmbeddingURL    = "embedding-base-url"
	FlagRecordsProv     = "records-provider"
	FlagRecordsTgt      = "records-target"
	FlagPageSize        = "page-size"
	FlagWorkers         = "workers"
	FlagEventsProv      = "events-provider"
)

// Flags is the registry of every shared flag.
var Flags = FlagSet{
	FlagAPIListen: {
		Name:        "listen",
		Shorthand:   "l",
		ViperKey:    "api.listen",
		Description: "Address for the API server to listen on",
	},
	FlagAPITarget: {
		Name:        "api-target",
		ViperKey:    "client.api_target",
		Description: "vecindex API server URL",
	},
	FlagTenant: {
		Name:        "tenant",
		Shorthand:   "t",
		ViperKey:    "client.tenant_id",
		Description: "Tenant to act for",
	},
	FlagOrganization: {
		Name:        "organization",
		Shorthand:   "o",
		ViperKey:    "client.organization_id",
		Description: "Organization to act for (empty sees tenant-wide records only)",
	},
	FlagVectorStoreProv: {
		Name:        "vector-store-provider",
		ViperKey:    "vector_store.provider",
		Description: "Vector store driver (pgvector, qdrant, sqlitevec, chromadb, memory)",
	},
	FlagVectorStoreTgt: {
		Name:        "vector-store-target",
		ViperKey:    "vector_store.target",
		Description: "Vector store connection string, address or file path",
	},
	FlagVectorStoreDims: {
		Name:        "vector-store-dimensions",
		ViperKey:    "vector_store.dimensions",
		Description: "Stored vector dimensions (0 uses the embedding dimension)",
	},
	FlagEmbeddingProv: {
		Name:        "embedding-provider",
		ViperKey:    "embedding.provider",
		Description: "Embedding provider (ollama, openai, mistral, google, bedrock)",
	},
	FlagEmbeddingModel: {
		Name:        "embedding-model",
		ViperKey:    "embedding.model",
		Description: "Embedding model (empty uses the provider default)",
	},
	FlagEmbeddingDims: {
		Name:        "embedding-dimensions",
		ViperKey:    "embedding.dimensions",
		Description: "Embedding dimensions (0 uses the provider default)",
	},
	FlagEmbeddingURL: {
		Name:        "embedding-base-url",
		ViperKey:    "embedding.base_url",
		Description: "Embedding provider API URL (empty uses the provider default)",
	},
	FlagRecordsProv: {
		Name:        "records-provider",
		ViperKey:    "records.provider",
		Description: "Source of truth for records (postgres, memory)",
	},
	FlagRecordsTgt: {
		Name:        "records-target",
		ViperKey:    "records.target",
		Description: "Records database connection string",
	},
	FlagPageSize: {
		Name:        "page-size",
		ViperKey:    "indexing.page_size",
		Description: "Records fetched per page while reindexing",
	},
	FlagWorkers: {
		Name:        "workers",
		ViperKey:    "indexing.workers",
		Description: "Workers applying record events",
	},
	FlagEventsProv: {
		Name:        "events-provider",
		ViperKey:    "events.provider",
		Description: "Record event stream (kafka, none)",
	},
}

// AddStringFlag registers a string flag on cmd from the given FlagSet.
// The flag's name, shorthand, default, and description all come from the
// FlagSet entry so they cannot drift across commands.
func AddStringFlag(cmd *cobra.Command, fs FlagSet, key string, target *string) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaultString(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().StringVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().StringVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddUintFlag registers a uint flag on cmd from the given FlagSet.
func AddUintFlag(cmd *cobra.Command, fs FlagSet, registryKey string, target *uint) {
	def, ok := fs[registryKey]
	if !ok {
		return
	}

	defaultVal := defaultUint(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().UintVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().UintVar(target, def.Name, defaultVal, def.Description)
	}
}

// BindRegisteredFlags binds already-registered flags to viper using definitions
// from the given FlagSet. Call this in PreRunE after InitViper to connect flags
// to the viper precedence chain (flag > env > config file > default).
func BindRegisteredFlags(v *viper.Viper, cmd *cobra.Command, fs FlagSet, registryKeys []string) {
	for _, registryKey := range registryKeys {
		def, ok := fs[registryKey]
		if !ok {
			continue
		}

		f := cmd.Flags().Lookup(def.Name)
		if f == nil {
			continue
		}

		_ = v.BindPFlag(def.ViperKey, f)
	}
}

// defaultString returns the default string value for a viper key from NewDefaultConfig.
func defaultString(viperKey string) string {
	v := viper.New()
	setViperDefaults(v)
	return v.GetString(viperKey)
}

// defaultUint returns the default uint value for a viper key from NewDefaultConfig.
func defaultUint(viperKey string) uint {
	v := viper.New()
	setViperDefaults(v)
	return v.GetUint(viperKey)
}

// ResolveForCommand loads the config seen by cmd: the config file found
// from its --config-dir flag, VECINDEX_ environment variables, and the
// registered flags named by registryKeys. The viper instance is returned so
// that long-running commands can Watch it.
func ResolveForCommand(cmd *cobra.Command, registryKeys ...string) (*viper.Viper, *Config, error) {
	configDir, _ := cmd.Flags().GetString("config-dir")

	v, err := InitViper(configDir)
	if err != nil {
		return nil, nil, err
	}

	BindRegisteredFlags(v, cmd, Flags, registryKeys)

	cfg, err := Unmarshal(v)
	if err != nil {
		return nil, nil, err
	}
	return v, cfg, nil
}
