package config

const (
	defaultAPIListen       = ":8081"
	defaultClientAPITarget = "http://localhost:8081"

	defaultVectorProvider = "sqlitevec"
	defaultVectorTarget   = "vecindex.db"

	defaultEmbeddingProvider = "ollama"

	defaultRecordsProvider = "memory"

	defaultPageSize           = 200
	defaultWorkers            = 3
	defaultQueueSize          = 256
	defaultReindexConcurrency = 1

	defaultEventsProvider = "none"
	defaultEventsTopic    = "vecindex.records"
	defaultEventsGroupID  = "vecindex"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		API: APIConfig{
			Listen: defaultAPIListen,
		},
		Client: ClientConfig{
			APITarget: defaultClientAPITarget,
		},
		VectorStore: VectorStoreConfig{
			Provider: defaultVectorProvider,
			Target:   defaultVectorTarget,
		},
		Embedding: EmbeddingConfig{
			Provider: defaultEmbeddingProvider,
		},
		Records: RecordsConfig{
			Provider: defaultRecordsProvider,
		},
		Indexing: IndexingConfig{
			AutoIndex:          true,
			PageSize:           defaultPageSize,
			Workers:            defaultWorkers,
			QueueSize:          defaultQueueSize,
			ReindexConcurrency: defaultReindexConcurrency,
		},
		Events: EventsConfig{
			Provider: defaultEventsProvider,
			Topic:    defaultEventsTopic,
			GroupID:  defaultEventsGroupID,
		},
	}
}
