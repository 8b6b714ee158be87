package testutils

import (
	"github.com/papercomputeco/vecindex/pkg/embeddings"
	"github.com/papercomputeco/vecindex/pkg/entity"
	"github.com/papercomputeco/vecindex/pkg/indexer"
	"github.com/papercomputeco/vecindex/pkg/records"
	"github.com/papercomputeco/vecindex/pkg/records/inmemory"
	"github.com/papercomputeco/vecindex/pkg/vector"
)

// ProductEntity is the entity registered by ProductGroups.
const ProductEntity = "products:item"

// Harness is an index service over in-memory records, a recording driver
// named "memory" and a counting embedder, for tests of the outer surfaces.
type Harness struct {
	Store    *inmemory.Store
	Driver   *RecordingDriver
	Embedder *MockEmbedder
	Client   *embeddings.Client
	Service  *indexer.Service
}

// HarnessOptions configures NewHarness.
type HarnessOptions struct {
	// Groups default to ProductGroups.
	Groups []entity.Group

	// Provider defaults to ollama, which needs no credentials.
	Provider string

	// Credentials are the only ones the embedding client can see.
	Credentials map[string]string

	// Drivers are registered next to the recording driver.
	Drivers []vector.Driver
}

// NewHarness wires a Harness.
func NewHarness(o HarnessOptions) (*Harness, error) {
	h := &Harness{
		Store:    inmemory.NewStore(),
		Driver:   NewRecordingDriver("memory"),
		Embedder: NewMockEmbedder(),
	}

	provider := o.Provider
	if provider == "" {
		provider = embeddings.ProviderOllama
	}

	client, err := embeddings.NewClient(embeddings.ClientConfig{
		Provider: embeddings.ProviderConfig{ProviderID: provider, Dimension: h.Embedder.Dimensions},
		Factory: func(embeddings.ProviderConfig, embeddings.Credentials) (embeddings.Embedder, error) {
			return h.Embedder, nil
		},
		Lookup: func(name string) (string, bool) {
			v, ok := o.Credentials[name]
			return v, ok
		},
	})
	if err != nil {
		return nil, err
	}
	h.Client = client

	groups := o.Groups
	if groups == nil {
		groups = ProductGroups()
	}

	svc, err := indexer.NewService(indexer.Config{
		Groups:          groups,
		DefaultDriverID: h.Driver.ID(),
		Drivers:         vector.NewRegistry(append([]vector.Driver{h.Driver}, o.Drivers...)...),
		Records:         h.Store,
		Embeddings:      client,
	})
	if err != nil {
		return nil, err
	}
	h.Service = svc
	return h, nil
}

// ProductGroups registers ProductEntity as a declarative entity embedding
// name and description, titled by name and linked to /products/{id}.
func ProductGroups() []entity.Group {
	tmpl := entity.Template{
		Fields:        []string{"name", "description"},
		TitleField:    "name",
		SubtitleField: "description",
		URLTemplate:   "/products/{id}",
	}
	return []entity.Group{{
		Module:   "products",
		Entities: []entity.Config{tmpl.Config(ProductEntity, "")},
	}}
}

// PutProduct stores a product row. An empty organization makes it visible
// to the whole tenant.
func (h *Harness) PutProduct(id, tenantID, organizationID, name, description string) error {
	row := records.RawRow{
		records.FieldID:       id,
		records.FieldTenantID: tenantID,
		"name":                name,
		"description":         description,
	}
	if organizationID != "" {
		row[records.FieldOrganizationID] = organizationID
	}
	return h.Store.Put(ProductEntity, row)
}
