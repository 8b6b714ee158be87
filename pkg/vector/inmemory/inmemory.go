// Package inmemory provides an in-process vector driver using brute-force
// cosine similarity. It is intended for tests and local development.
package inmemory

import (
	"context"
	"math"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/papercomputeco/vecindex/pkg/vector"
)

// DriverID is the id documents are stored under when none is configured.
const DriverID = "memory"

type key struct {
	entityID string
	recordID string
	tenantID string
}

// Driver implements vector.Driver in memory.
type Driver struct {
	id   string
	mu   sync.RWMutex
	docs map[key]vector.Document

	// now is swapped in tests to control timestamps.
	now func() time.Time
}

// NewDriver creates an empty in-memory driver. An empty id uses DriverID.
func NewDriver(id string) *Driver {
	if id == "" {
		id = DriverID
	}
	return &Driver{
		id:   id,
		docs: make(map[key]vector.Document),
		now:  time.Now,
	}
}

// ID returns the driver id.
func (d *Driver) ID() string {
	return d.id
}

// EnsureReady is a no-op.
func (d *Driver) EnsureReady(_ context.Context) error {
	return nil
}

// Upsert stores doc, keeping the original creation time on update.
func (d *Driver) Upsert(_ context.Context, doc vector.Document) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	k := key{doc.EntityID, doc.RecordID, doc.TenantID}
	now := d.now()

	doc.DriverID = d.id
	doc.Embedding = slices.Clone(doc.Embedding)
	doc.UpdatedAt = now
	if existing, ok := d.docs[k]; ok {
		doc.CreatedAt = existing.CreatedAt
	} else {
		doc.CreatedAt = now
	}

	d.docs[k] = doc
	return nil
}

// Delete removes a document.
func (d *Driver) Delete(_ context.Context, entityID, recordID, tenantID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.docs, key{entityID, recordID, tenantID})
	return nil
}

// GetChecksum returns the stored checksum.
func (d *Driver) GetChecksum(_ context.Context, entityID, recordID, tenantID string) (string, bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	doc, ok := d.docs[key{entityID, recordID, tenantID}]
	if !ok {
		return "", false, nil
	}
	return doc.Checksum, true, nil
}

// Purge removes every document of an entity in a tenant.
func (d *Driver) Purge(_ context.Context, entityID, tenantID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for k := range d.docs {
		if k.entityID == entityID && k.tenantID == tenantID {
			delete(d.docs, k)
		}
	}
	return nil
}

// Query ranks every visible document by cosine similarity.
func (d *Driver) Query(_ context.Context, embedding []float32, limit int, filter vector.QueryFilter) ([]vector.Hit, error) {
	if limit <= 0 {
		limit = 10
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	hits := make([]vector.Hit, 0)
	for _, doc := range d.docs {
		if !visible(doc, filter.TenantID, filter.OrganizationID) {
			continue
		}
		if len(filter.EntityIDs) > 0 && !slices.Contains(filter.EntityIDs, doc.EntityID) {
			continue
		}

		hits = append(hits, vector.Hit{
			EntityID:       doc.EntityID,
			RecordID:       doc.RecordID,
			OrganizationID: doc.OrganizationID,
			Score:          cosine(embedding, doc.Embedding),
			Checksum:       doc.Checksum,
			URL:            doc.URL,
			Presenter:      doc.Presenter,
			Links:          doc.Links,
			Payload:        doc.Payload,
		})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		if hits[i].EntityID != hits[j].EntityID {
			return hits[i].EntityID < hits[j].EntityID
		}
		return hits[i].RecordID < hits[j].RecordID
	})

	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// List returns visible documents newest first.
func (d *Driver) List(_ context.Context, params vector.ListParams) ([]vector.Document, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	docs := make([]vector.Document, 0)
	for _, doc := range d.docs {
		if !visible(doc, params.TenantID, params.OrganizationID) {
			continue
		}
		if params.EntityID != "" && doc.EntityID != params.EntityID {
			continue
		}
		doc.Embedding = nil
		docs = append(docs, doc)
	}

	byCreated := params.OrderBy == vector.OrderByCreated
	sort.SliceStable(docs, func(i, j int) bool {
		ti, tj := docs[i].UpdatedAt, docs[j].UpdatedAt
		if byCreated {
			ti, tj = docs[i].CreatedAt, docs[j].CreatedAt
		}
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		if docs[i].EntityID != docs[j].EntityID {
			return docs[i].EntityID < docs[j].EntityID
		}
		return docs[i].RecordID < docs[j].RecordID
	})

	if params.Offset > 0 {
		if params.Offset >= len(docs) {
			return []vector.Document{}, nil
		}
		docs = docs[params.Offset:]
	}
	if params.Limit > 0 && len(docs) > params.Limit {
		docs = docs[:params.Limit]
	}
	return docs, nil
}

// IndexedDimension reports the width of any stored vector.
func (d *Driver) IndexedDimension(_ context.Context) (int, bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, doc := range d.docs {
		return len(doc.Embedding), true, nil
	}
	return 0, false, nil
}

// Len returns the number of stored documents.
func (d *Driver) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.docs)
}

// Close is a no-op.
func (d *Driver) Close() error {
	return nil
}

func visible(doc vector.Document, tenantID, organizationID string) bool {
	if doc.TenantID != tenantID {
		return false
	}
	if organizationID == "" {
		return true
	}
	return doc.OrganizationID == "" || doc.OrganizationID == organizationID
}

func cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

var (
	_ vector.Driver            = (*Driver)(nil)
	_ vector.DimensionReporter = (*Driver)(nil)
)
