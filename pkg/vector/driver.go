// Package vector provides the storage contract for indexed records and the
// registry of vector store drivers.
package vector

import (
	"context"
	"encoding/json"
	"time"
)

// Presenter is the display metadata of a search result.
type Presenter struct {
	Title    string `json:"title"`
	Subtitle string `json:"subtitle,omitempty"`
	Icon     string `json:"icon,omitempty"`
	Badge    string `json:"badge,omitempty"`
}

// Link is a navigable reference attached to a search result.
type Link struct {
	Href  string `json:"href"`
	Label string `json:"label,omitempty"`
	Kind  string `json:"kind,omitempty"`
}

// Document is one indexed record. The composite key is
// (DriverID, EntityID, RecordID, TenantID); OrganizationID is empty for
// tenant-global records.
type Document struct {
	DriverID       string `json:"driverId"`
	EntityID       string `json:"entityId"`
	RecordID       string `json:"recordId"`
	TenantID       string `json:"tenantId"`
	OrganizationID string `json:"organizationId,omitempty"`

	// Checksum is the digest of the record's checksum source at index time.
	Checksum string `json:"checksum"`

	Embedding []float32 `json:"embedding,omitempty"`

	URL       string          `json:"url,omitempty"`
	Presenter *Presenter      `json:"presenter,omitempty"`
	Links     []Link          `json:"links,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// QueryFilter scopes a similarity query. TenantID always applies. A non-empty
// OrganizationID matches that organization plus tenant-global records. An
// empty EntityIDs matches every entity.
type QueryFilter struct {
	TenantID       string
	OrganizationID string
	EntityIDs      []string
}

// Hit is a similarity query match, ordered by descending Score.
type Hit struct {
	EntityID       string          `json:"entityId"`
	RecordID       string          `json:"recordId"`
	OrganizationID string          `json:"organizationId,omitempty"`
	Score          float32         `json:"score"`
	Checksum       string          `json:"checksum"`
	URL            string          `json:"url,omitempty"`
	Presenter      *Presenter      `json:"presenter,omitempty"`
	Links          []Link          `json:"links,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
}

// Order keys for List.
const (
	OrderByUpdated = "updated"
	OrderByCreated = "created"
)

// ListParams scopes an administrative listing of indexed documents.
type ListParams struct {
	TenantID       string
	OrganizationID string
	EntityID       string
	Limit          int
	Offset         int

	// OrderBy is OrderByUpdated (default) or OrderByCreated, newest first.
	OrderBy string
}

// Driver is a vector store backend. Every operation is keyed by the
// composite (driver, entity, record, tenant) key, so one physical store can
// be shared by several drivers and tenants.
type Driver interface {
	// ID is the driver id records are stored under.
	ID() string

	// EnsureReady prepares schema/collections. Implementations run the
	// underlying setup at most once per process after a success.
	EnsureReady(ctx context.Context) error

	// Upsert inserts or replaces the document at its composite key.
	Upsert(ctx context.Context, doc Document) error

	// Delete removes one document. Deleting a missing document is not an error.
	Delete(ctx context.Context, entityID, recordID, tenantID string) error

	// GetChecksum returns the stored checksum and whether the document exists.
	GetChecksum(ctx context.Context, entityID, recordID, tenantID string) (string, bool, error)

	// Purge removes every document of an entity for a tenant.
	Purge(ctx context.Context, entityID, tenantID string) error

	// Query returns up to limit nearest documents matching filter.
	Query(ctx context.Context, embedding []float32, limit int, filter QueryFilter) ([]Hit, error)

	// List returns stored documents without their embeddings.
	List(ctx context.Context, params ListParams) ([]Document, error)

	// Close releases any resources held by the driver.
	Close() error
}

// DimensionReporter is implemented by drivers that can report the width of
// the vectors they already hold. ok is false when the store is empty.
type DimensionReporter interface {
	IndexedDimension(ctx context.Context) (dim int, ok bool, err error)
}

// Similarity maps a distance to a score where higher is more similar.
func Similarity(metric string, distance float64) float32 {
	switch metric {
	case DistanceL2:
		return float32(1.0 / (1.0 + distance))
	case DistanceInnerProduct:
		return float32(-distance)
	default:
		return float32(1.0 - distance)
	}
}

// Distance metrics.
const (
	DistanceCosine       = "cosine"
	DistanceL2           = "l2"
	DistanceInnerProduct = "ip"
)
