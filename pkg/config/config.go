package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/papercomputeco/vecindex/pkg/dotdir"
	"github.com/papercomputeco/vecindex/pkg/embeddings"
)

const (
	configFile = "config.toml"

	// v0 is the alpha version of the config
	v0 = 0

	// CurrentV is the currently supported version, points to v0
	CurrentV = v0
)

type Configer struct {
	ddm        *dotdir.Manager
	targetPath string
}

func NewConfiger(override string) (*Configer, error) {
	cfger := &Configer{}

	cfger.ddm = dotdir.NewManager()
	target, err := cfger.ddm.Target(override)
	if err != nil {
		return nil, err
	}

	// If no .vecindex/ directory was resolved, targetPath stays empty;
	// LoadConfig will return defaults and SaveConfig will error clearly.
	if target == "" {
		return cfger, nil
	}

	path := filepath.Join(target, configFile)
	_, err = os.Stat(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	// Always set targetPath when the directory exists so SaveConfig
	// can create or overwrite the file.
	cfger.targetPath = path

	return cfger, nil
}

// InitConfiger is NewConfiger for commands that write the config: when no
// directory exists yet, ~/.vecindex/ is created.
func InitConfiger(override string) (*Configer, error) {
	dir, err := dotdir.NewManager().Init(override)
	if err != nil {
		return nil, err
	}
	return NewConfiger(dir)
}

// ValidConfigKeys returns the list of all supported configuration key
// names in TOML section order.
func ValidConfigKeys() []string {
	ordered := []string{
		"api.listen",
		"client.api_target",
		"client.tenant_id",
		"client.organization_id",
		"mcp.tenant_id",
		"mcp.organization_id",
		"vector_store.provider",
		"vector_store.target",
		"vector_store.dimensions",
		"vector_store.table",
		"vector_store.collection",
		"vector_store.distance",
		"embedding.provider",
		"embedding.model",
		"embedding.dimensions",
		"embedding.output_dimensionality",
		"embedding.base_url",
		"embedding.requests_per_second",
		"records.provider",
		"records.target",
		"records.custom_fields_table",
		"indexing.auto_index",
		"indexing.page_size",
		"indexing.workers",
		"indexing.queue_size",
		"indexing.reindex_concurrency",
		"events.provider",
		"events.brokers",
		"events.topic",
		"events.group_id",
	}

	// Sanity: only return keys that actually exist in the map.
	result := make([]string, 0, len(ordered))
	seen := make(map[string]bool, len(ordered))
	for _, k := range ordered {
		if _, ok := configKeys[k]; ok {
			result = append(result, k)
			seen[k] = true
		}
	}

	// Append any keys in the map that we missed in the ordered list.
	var missed []string
	for k := range configKeys {
		if !seen[k] {
			missed = append(missed, k)
		}
	}
	slices.Sort(missed)

	return append(result, missed...)
}

// IsValidConfigKey returns true if the given key is a supported configuration key.
func IsValidConfigKey(key string) bool {
	_, ok := configKeys[key]
	return ok
}

func (c *Configer) GetTarget() string {
	return c.targetPath
}

// LoadConfig loads the configuration from config.toml in the target
// .vecindex/ directory. If the file does not exist, returns
// NewDefaultConfig() so callers always receive a fully-populated Config with
// sane defaults. Fields explicitly set in the file override the defaults.
func (c *Configer) LoadConfig() (*Config, error) {
	if c.targetPath == "" {
		return NewDefaultConfig(), nil
	}

	data, err := os.ReadFile(c.targetPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewDefaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg, md, err := parseConfigTOML(data)
	if err != nil {
		return nil, err
	}

	// Merge in defaults: fill in any zero-value fields from the loaded config
	applyDefaults(cfg, md)

	return cfg, nil
}

// applyDefaults fills zero-value fields in cfg with values from
// NewDefaultConfig(). Booleans are only defaulted when the file does not
// mention them, so an explicit false survives.
func applyDefaults(cfg *Config, md toml.MetaData) {
	d := NewDefaultConfig()

	if cfg.Version == 0 {
		cfg.Version = d.Version
	}

	fillString(&cfg.API.Listen, d.API.Listen)
	fillString(&cfg.Client.APITarget, d.Client.APITarget)

	fillString(&cfg.VectorStore.Provider, d.VectorStore.Provider)
	if cfg.VectorStore.Provider == d.VectorStore.Provider {
		fillString(&cfg.VectorStore.Target, d.VectorStore.Target)
	}

	fillString(&cfg.Embedding.Provider, d.Embedding.Provider)

	fillString(&cfg.Records.Provider, d.Records.Provider)

	if !md.IsDefined("indexing", "auto_index") {
		cfg.Indexing.AutoIndex = d.Indexing.AutoIndex
	}
	fillUint(&cfg.Indexing.PageSize, d.Indexing.PageSize)
	fillUint(&cfg.Indexing.Workers, d.Indexing.Workers)
	fillUint(&cfg.Indexing.QueueSize, d.Indexing.QueueSize)
	fillUint(&cfg.Indexing.ReindexConcurrency, d.Indexing.ReindexConcurrency)

	fillString(&cfg.Events.Provider, d.Events.Provider)
	fillString(&cfg.Events.Topic, d.Events.Topic)
	fillString(&cfg.Events.GroupID, d.Events.GroupID)
}

func fillString(field *string, def string) {
	if *field == "" {
		*field = def
	}
}

func fillUint(field *uint, def uint) {
	if *field == 0 {
		*field = def
	}
}

// SaveConfig persists the configuration to config.toml in the target
// .vecindex/ directory.
func (c *Configer) SaveConfig(cfg *Config) error {
	if cfg == nil {
		return errors.New("cannot save nil config")
	}

	if c.targetPath == "" {
		return errors.New("cannot save empty target path")
	}

	var buf bytes.Buffer
	encoder := toml.NewEncoder(&buf)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.WriteFile(c.targetPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// SetConfigValue loads the config, sets the given key to the given value, and saves it.
// Returns an error if the key is not a valid config key.
func (c *Configer) SetConfigValue(key string, value string) error {
	info, ok := configKeys[key]
	if !ok {
		return fmt.Errorf("unknown config key: %q", key)
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return err
	}

	if err := info.set(cfg, value); err != nil {
		return err
	}

	return c.SaveConfig(cfg)
}

// GetConfigValue loads the config and returns the string representation of the given key.
// Returns an error if the key is not a valid config key.
func (c *Configer) GetConfigValue(key string) (string, error) {
	info, ok := configKeys[key]
	if !ok {
		return "", fmt.Errorf("unknown config key: %q", key)
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return "", err
	}

	return info.get(cfg), nil
}

// PresetConfig returns a default Config switched to the named embedding
// provider with its default model and dimension filled in.
// Returns an error if the preset name is not a supported provider.
func PresetConfig(name string) (*Config, error) {
	provider := strings.ToLower(name)
	if _, ok := embeddings.RequiredCredentials(provider); !ok {
		return nil, fmt.Errorf("unknown preset: %q (available: %s)", name, strings.Join(ValidPresetNames(), ", "))
	}

	resolved := embeddings.ProviderConfig{ProviderID: provider}.WithDefaults()

	cfg := NewDefaultConfig()
	cfg.Embedding = EmbeddingConfig{
		Provider:   provider,
		Model:      resolved.Model,
		Dimensions: uint(resolved.Dimension),
	}
	return cfg, nil
}

// ValidPresetNames returns the list of recognized preset names.
func ValidPresetNames() []string {
	return embeddings.SupportedProviders()
}

// ParseConfigTOML parses raw TOML bytes into a Config.
// Returns an error if the version field is present and not equal to CurrentV.
func ParseConfigTOML(data []byte) (*Config, error) {
	cfg, _, err := parseConfigTOML(data)
	return cfg, err
}

func parseConfigTOML(data []byte) (*Config, toml.MetaData, error) {
	cfg := &Config{}
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, md, fmt.Errorf("parsing config TOML: %w", err)
	}

	if cfg.Version != 0 && cfg.Version != CurrentV {
		return nil, md, fmt.Errorf("unsupported config version %d (expected %d)", cfg.Version, CurrentV)
	}

	return cfg, md, nil
}
