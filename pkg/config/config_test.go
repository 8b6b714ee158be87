package config_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/vecindex/pkg/config"
)

const fullConfig = `version = 0

[api]
listen = ":9000"

[vector_store]
provider = "pgvector"
target = "postgres://localhost/vectors"
dimensions = 1536
distance = "cosine"

[embedding]
provider = "openai"
model = "text-embedding-3-large"
output_dimensionality = 1536
requests_per_second = 2.5

[records]
provider = "postgres"
target = "postgres://localhost/app"

[records.tables."Products:Item"]
table = "catalog.products"
deleted_at_column = "deleted_at"

[indexing]
auto_index = false
page_size = 50

[events]
provider = "kafka"
brokers = ["kafka-1:9092", "kafka-2:9092"]

[[entities]]
id = "Products:Item"
module = "catalog"
fields = ["name", "description", "custom.color"]
title_field = "name"
url = "/products/{id}"

[[entities]]
id = "customers:person"
module = "crm"
driver = "qdrant"
disabled = true
`

var _ = Describe("Configer config", func() {
	var tmpDir string

	writeConfig := func(data string) {
		Expect(os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(data), 0o600)).To(Succeed())
	}

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "config-test-*")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	Describe("LoadConfig", func() {
		It("returns default config when no config file exists", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg).To(Equal(config.NewDefaultConfig()))
		})

		It("loads every section of a config file", func() {
			writeConfig(fullConfig)
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())

			Expect(cfg.API.Listen).To(Equal(":9000"))
			Expect(cfg.VectorStore.Provider).To(Equal("pgvector"))
			Expect(cfg.VectorStore.Dimensions).To(Equal(uint(1536)))
			Expect(cfg.Embedding.Provider).To(Equal("openai"))
			Expect(cfg.Embedding.OutputDimensionality).To(Equal(uint(1536)))
			Expect(cfg.Embedding.RequestsPerSecond).To(Equal(2.5))
			Expect(cfg.Records.Tables).To(HaveKey("Products:Item"))
			Expect(cfg.Records.Tables["Products:Item"].Name).To(Equal("catalog.products"))
			Expect(cfg.Records.Tables["Products:Item"].DeletedAtColumn).To(Equal("deleted_at"))
			Expect(cfg.Events.Brokers).To(Equal([]string{"kafka-1:9092", "kafka-2:9092"}))

			Expect(cfg.Entities).To(HaveLen(2))
			Expect(cfg.Entities[0].ID).To(Equal("Products:Item"))
			Expect(cfg.Entities[0].Fields).To(Equal([]string{"name", "description", "custom.color"}))
			Expect(cfg.Entities[0].TitleField).To(Equal("name"))
			Expect(cfg.Entities[0].URLTemplate).To(Equal("/products/{id}"))
			Expect(cfg.Entities[1].Disabled).To(BeTrue())
		})

		It("keeps an explicit auto_index = false and fills the other defaults", func() {
			writeConfig(fullConfig)
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())

			defaults := config.NewDefaultConfig()
			Expect(cfg.Indexing.AutoIndex).To(BeFalse())
			Expect(cfg.Indexing.PageSize).To(Equal(uint(50)))
			Expect(cfg.Indexing.Workers).To(Equal(defaults.Indexing.Workers))
			Expect(cfg.Events.Topic).To(Equal(defaults.Events.Topic))
			Expect(cfg.Client.APITarget).To(Equal(defaults.Client.APITarget))
		})

		It("defaults auto_index to true when the file leaves it out", func() {
			writeConfig("[indexing]\npage_size = 10\n")
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Indexing.AutoIndex).To(BeTrue())
		})

		It("returns error for malformed TOML", func() {
			writeConfig("[api\nlisten = ")
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			_, err = c.LoadConfig()
			Expect(err).To(MatchError(ContainSubstring("parsing config TOML")))
		})

		It("returns error for unsupported config version", func() {
			writeConfig("version = 7\n")
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			_, err = c.LoadConfig()
			Expect(err).To(MatchError(ContainSubstring("unsupported config version 7")))
		})
	})

	Describe("SaveConfig", func() {
		It("round-trips entities and table mappings", func() {
			writeConfig(fullConfig)
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(c.SaveConfig(cfg)).To(Succeed())

			reloaded, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(reloaded).To(Equal(cfg))
		})

		It("returns error for nil config", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(c.SaveConfig(nil)).To(MatchError("cannot save nil config"))
		})
	})

	Describe("SetConfigValue and GetConfigValue", func() {
		var c *config.Configer

		BeforeEach(func() {
			var err error
			c, err = config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())
		})

		DescribeTable("stores and reads back values",
			func(key, value, want string) {
				Expect(c.SetConfigValue(key, value)).To(Succeed())
				got, err := c.GetConfigValue(key)
				Expect(err).NotTo(HaveOccurred())
				Expect(got).To(Equal(want))
			},
			Entry("string", "embedding.provider", "mistral", "mistral"),
			Entry("uint", "embedding.dimensions", "1024", "1024"),
			Entry("bool", "indexing.auto_index", "false", "false"),
			Entry("float", "embedding.requests_per_second", "0.5", "0.5"),
			Entry("list", "events.brokers", "a:9092, b:9092,", "a:9092,b:9092"),
			Entry("tenant", "client.tenant_id", "t1", "t1"),
		)

		It("preserves existing values when setting a new key", func() {
			Expect(c.SetConfigValue("vector_store.provider", "qdrant")).To(Succeed())
			Expect(c.SetConfigValue("vector_store.target", "localhost:6334")).To(Succeed())

			got, err := c.GetConfigValue("vector_store.provider")
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal("qdrant"))
		})

		It("returns defaults when no config file exists", func() {
			got, err := c.GetConfigValue("api.listen")
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal(":8081"))
		})

		It("returns an empty string for unset numeric keys", func() {
			got, err := c.GetConfigValue("vector_store.dimensions")
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(BeEmpty())
		})

		DescribeTable("rejects bad input",
			func(key, value, msg string) {
				Expect(c.SetConfigValue(key, value)).To(MatchError(ContainSubstring(msg)))
			},
			Entry("unknown key", "proxy.upstream", "x", "unknown config key"),
			Entry("bad uint", "indexing.workers", "many", "invalid value for indexing.workers"),
			Entry("bad bool", "indexing.auto_index", "perhaps", "invalid value for indexing.auto_index"),
			Entry("negative rate", "embedding.requests_per_second", "-1", "must not be negative"),
		)

		It("returns error for unknown keys on get", func() {
			_, err := c.GetConfigValue("storage.sqlite_path")
			Expect(err).To(MatchError(ContainSubstring("unknown config key")))
		})
	})
})

var _ = Describe("ValidConfigKeys", func() {
	It("lists every key in section order", func() {
		keys := config.ValidConfigKeys()
		Expect(keys[0]).To(Equal("api.listen"))
		Expect(keys).To(ContainElements("embedding.provider", "records.target", "events.group_id"))
		for _, k := range keys {
			Expect(config.IsValidConfigKey(k)).To(BeTrue(), k)
		}
	})

	It("is stable", func() {
		Expect(config.ValidConfigKeys()).To(Equal(config.ValidConfigKeys()))
	})

	It("rejects unknown keys", func() {
		Expect(config.IsValidConfigKey("proxy.listen")).To(BeFalse())
		Expect(config.IsValidConfigKey("")).To(BeFalse())
	})
})

var _ = Describe("PresetConfig", func() {
	It("fills the provider's default model and dimension", func() {
		cfg, err := config.PresetConfig("Mistral")
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Embedding.Provider).To(Equal("mistral"))
		Expect(cfg.Embedding.Model).To(Equal("mistral-embed"))
		Expect(cfg.Embedding.Dimensions).To(Equal(uint(1024)))
		Expect(cfg.API.Listen).To(Equal(config.NewDefaultConfig().API.Listen))
	})

	It("returns error for unknown preset", func() {
		_, err := config.PresetConfig("cohere")
		Expect(err).To(MatchError(ContainSubstring("unknown preset")))
	})

	It("offers every supported provider", func() {
		Expect(config.ValidPresetNames()).To(ConsistOf("ollama", "openai", "mistral", "google", "bedrock"))
	})
})

var _ = Describe("EntityGroups", func() {
	It("groups declared entities by module", func() {
		cfg, err := config.ParseConfigTOML([]byte(fullConfig + `
[[entities]]
id = "products:variant"
module = "catalog"
`))
		Expect(err).NotTo(HaveOccurred())

		groups := cfg.EntityGroups()
		Expect(groups).To(HaveLen(2))
		Expect(groups[0].Module).To(Equal("catalog"))
		Expect(groups[0].Entities).To(HaveLen(2))
		Expect(groups[0].Entities[0].EntityID).To(Equal("Products:Item"))
		Expect(groups[0].Entities[0].Source).NotTo(BeNil())
		Expect(groups[0].Entities[0].URL).NotTo(BeNil())
		Expect(groups[0].Entities[1].Source).To(BeNil())

		Expect(groups[1].Module).To(Equal("crm"))
		Expect(groups[1].Entities[0].DriverID).To(Equal("qdrant"))
		Expect(groups[1].Entities[0].Disabled).To(BeTrue())
	})
})
