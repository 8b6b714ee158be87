package indexer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/papercomputeco/vecindex/pkg/records"
	"github.com/papercomputeco/vecindex/pkg/vector"
)

const defaultListLimit = 50

// ListArgs pages through the indexed documents of a tenant.
type ListArgs struct {
	TenantID       string
	OrganizationID string
	EntityID       string
	DriverID       string
	Limit          int
	Offset         int

	// OrderBy is vector.OrderByUpdated (default) or vector.OrderByCreated.
	OrderBy string
}

// IndexEntry is an indexed document with presentation resolved against its
// live record.
type IndexEntry struct {
	DriverID       string            `json:"driverId"`
	EntityID       string            `json:"entityId"`
	RecordID       string            `json:"recordId"`
	OrganizationID string            `json:"organizationId,omitempty"`
	Checksum       string            `json:"checksum"`
	URL            string            `json:"url,omitempty"`
	Presenter      *vector.Presenter `json:"presenter,omitempty"`
	Links          []vector.Link     `json:"links,omitempty"`
	Payload        json.RawMessage   `json:"payload,omitempty"`
	CreatedAt      time.Time         `json:"createdAt"`
	UpdatedAt      time.Time         `json:"updatedAt"`

	// Registered is false for entities no longer in the registry. Their
	// entries are returned as stored.
	Registered bool `json:"registered"`

	// Stale marks entries whose live record no longer exists.
	Stale bool `json:"stale,omitempty"`
}

// ListOutput is the result of ListIndexEntries.
type ListOutput struct {
	Entries []IndexEntry `json:"entries"`
	Limit   int          `json:"limit"`
	Offset  int          `json:"offset"`
}

// ListIndexEntries lists indexed documents newest first, re-hydrating
// presentation from live records the way Search does. Entries are never
// deleted here.
func (s *Service) ListIndexEntries(ctx context.Context, args ListArgs) (*ListOutput, error) {
	limit := args.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	driver, err := s.driver(ctx, args.DriverID)
	if err != nil {
		return nil, err
	}

	docs, err := driver.List(ctx, vector.ListParams{
		TenantID:       args.TenantID,
		OrganizationID: args.OrganizationID,
		EntityID:       args.EntityID,
		Limit:          limit,
		Offset:         args.Offset,
		OrderBy:        args.OrderBy,
	})
	if err != nil {
		return nil, err
	}

	byEntity := make(map[string][]string)
	for _, d := range docs {
		if _, ok := s.entities.Lookup(d.EntityID); ok {
			byEntity[d.EntityID] = append(byEntity[d.EntityID], d.RecordID)
		}
	}

	live := make(map[string]map[string]records.RawRow, len(byEntity))
	for entityID, ids := range byEntity {
		rows, err := s.fetchLive(ctx, entityID, args.TenantID, args.OrganizationID, ids)
		if err != nil {
			return nil, err
		}
		live[entityID] = rows
	}

	out := &ListOutput{Entries: make([]IndexEntry, 0, len(docs)), Limit: limit, Offset: args.Offset}
	for _, d := range docs {
		entry := IndexEntry{
			DriverID:       d.DriverID,
			EntityID:       d.EntityID,
			RecordID:       d.RecordID,
			OrganizationID: d.OrganizationID,
			Checksum:       d.Checksum,
			URL:            d.URL,
			Presenter:      d.Presenter,
			Links:          d.Links,
			Payload:        d.Payload,
			CreatedAt:      d.CreatedAt,
			UpdatedAt:      d.UpdatedAt,
		}

		reg, ok := s.entities.Lookup(d.EntityID)
		if !ok {
			out.Entries = append(out.Entries, entry)
			continue
		}
		entry.Registered = true

		row, ok := live[d.EntityID][d.RecordID]
		if !ok {
			entry.Stale = true
			out.Entries = append(out.Entries, entry)
			continue
		}

		hc := hookContext(d.EntityID, d.RecordID, args.TenantID, d.OrganizationID, row)
		src := s.liveSource(ctx, reg.Config, hc)
		p := s.present(ctx, reg.Config, hc, src, presentation{Presenter: d.Presenter, Links: d.Links, URL: d.URL})
		entry.Presenter, entry.Links, entry.URL = p.Presenter, p.Links, p.URL

		out.Entries = append(out.Entries, entry)
	}
	return out, nil
}
