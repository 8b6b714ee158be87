package eventstream

import (
	"fmt"
	"time"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeCreated is emitted after a record is created.
	EventTypeCreated = "created"

	// EventTypeUpdated is emitted after a record is updated.
	EventTypeUpdated = "updated"

	// EventTypeDeleted is emitted after a record is deleted.
	EventTypeDeleted = "deleted"
)

// RecordEvent is a transport-neutral payload describing a mutation of one
// source record.
type RecordEvent struct {
	SchemaVersion  int       `json:"schema_version"`
	EventType      string    `json:"event_type"`
	EventID        string    `json:"event_id,omitempty"`
	EmittedAt      time.Time `json:"emitted_at"`
	EntityID       string    `json:"entity_id"`
	RecordID       string    `json:"record_id"`
	TenantID       string    `json:"tenant_id"`
	OrganizationID string    `json:"organization_id,omitempty"`
}

// Validate checks that the event names a known mutation of a record.
func (e *RecordEvent) Validate() error {
	if e == nil {
		return ErrNilRecordEvent
	}
	switch e.EventType {
	case EventTypeCreated, EventTypeUpdated, EventTypeDeleted:
	default:
		return fmt.Errorf("%w: unknown event type %q", ErrInvalidRecordEvent, e.EventType)
	}
	if e.EntityID == "" || e.RecordID == "" || e.TenantID == "" {
		return fmt.Errorf("%w: entity_id, record_id and tenant_id are required", ErrInvalidRecordEvent)
	}
	return nil
}

// Key identifies the record the event is about. Events with equal keys must
// be applied in order.
func (e *RecordEvent) Key() string {
	return e.TenantID + "/" + e.EntityID + "/" + e.RecordID
}
