package testutils

import (
	"context"
	"sync"

	"github.com/papercomputeco/vecindex/pkg/vector"
	"github.com/papercomputeco/vecindex/pkg/vector/inmemory"
)

// RecordingDriver wraps the in-memory driver and records mutating calls.
type RecordingDriver struct {
	*inmemory.Driver

	mu      sync.Mutex
	upserts []vector.Document
	deletes []string
	purges  []string
	readies int

	// FailDelete makes Delete return this error.
	FailDelete error

	// FailQuery makes Query return this error.
	FailQuery error
}

// NewRecordingDriver creates a recording driver with the given id.
func NewRecordingDriver(id string) *RecordingDriver {
	return &RecordingDriver{Driver: inmemory.NewDriver(id)}
}

func (r *RecordingDriver) EnsureReady(ctx context.Context) error {
	r.mu.Lock()
	r.readies++
	r.mu.Unlock()
	return r.Driver.EnsureReady(ctx)
}

func (r *RecordingDriver) Upsert(ctx context.Context, doc vector.Document) error {
	r.mu.Lock()
	r.upserts = append(r.upserts, doc)
	r.mu.Unlock()
	return r.Driver.Upsert(ctx, doc)
}

func (r *RecordingDriver) Delete(ctx context.Context, entityID, recordID, tenantID string) error {
	r.mu.Lock()
	r.deletes = append(r.deletes, entityID+"/"+recordID)
	r.mu.Unlock()
	if r.FailDelete != nil {
		return r.FailDelete
	}
	return r.Driver.Delete(ctx, entityID, recordID, tenantID)
}

func (r *RecordingDriver) Purge(ctx context.Context, entityID, tenantID string) error {
	r.mu.Lock()
	r.purges = append(r.purges, entityID)
	r.mu.Unlock()
	return r.Driver.Purge(ctx, entityID, tenantID)
}

func (r *RecordingDriver) Query(ctx context.Context, embedding []float32, limit int, filter vector.QueryFilter) ([]vector.Hit, error) {
	if r.FailQuery != nil {
		return nil, r.FailQuery
	}
	return r.Driver.Query(ctx, embedding, limit, filter)
}

// Upserts returns every upserted document in call order.
func (r *RecordingDriver) Upserts() []vector.Document {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]vector.Document(nil), r.upserts...)
}

// Deletes returns "entity/record" for every Delete call.
func (r *RecordingDriver) Deletes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.deletes...)
}

// Purges returns the entity id of every Purge call.
func (r *RecordingDriver) Purges() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.purges...)
}

var _ vector.Driver = (*RecordingDriver)(nil)
