package pgvector

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/papercomputeco/vecindex/pkg/vector"
)

// row is the scan target for documentColumns.
type row struct {
	entityID       string
	recordID       string
	organizationID *string
	checksum       string
	url            *string
	presenter      []byte
	links          []byte
	payload        []byte
	createdAt      time.Time
	updatedAt      time.Time
}

func (r *row) targets(extra ...any) []any {
	return append([]any{
		&r.entityID, &r.recordID, &r.organizationID, &r.checksum,
		&r.url, &r.presenter, &r.links, &r.payload,
	}, extra...)
}

func (r *row) document() (vector.Document, error) {
	doc := vector.Document{
		EntityID:  r.entityID,
		RecordID:  r.recordID,
		Checksum:  r.checksum,
		CreatedAt: r.createdAt,
		UpdatedAt: r.updatedAt,
	}
	if r.organizationID != nil {
		doc.OrganizationID = *r.organizationID
	}
	if r.url != nil {
		doc.URL = *r.url
	}
	if len(r.presenter) > 0 {
		doc.Presenter = &vector.Presenter{}
		if err := json.Unmarshal(r.presenter, doc.Presenter); err != nil {
			return doc, fmt.Errorf("decoding presenter for %s/%s: %w", r.entityID, r.recordID, err)
		}
	}
	if len(r.links) > 0 {
		if err := json.Unmarshal(r.links, &doc.Links); err != nil {
			return doc, fmt.Errorf("decoding links for %s/%s: %w", r.entityID, r.recordID, err)
		}
	}
	if len(r.payload) > 0 {
		doc.Payload = json.RawMessage(r.payload)
	}
	return doc, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func marshalNullable(v *vector.Presenter) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}
