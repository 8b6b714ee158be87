// Package inmemory is an in-process records.Querier used by tests and for
// seeding a development server.
package inmemory

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/papercomputeco/vecindex/pkg/records"
)

// Store implements records.Querier over a map of entity id to rows.
type Store struct {
	// mu guards rows
	mu sync.RWMutex

	// rows maps entity id, then record id, to the stored row
	rows map[string]map[string]records.RawRow
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		rows: make(map[string]map[string]records.RawRow),
	}
}

// Put stores a copy of row under entityID. The row must carry an id and a
// tenant_id.
func (s *Store) Put(entityID string, row records.RawRow) error {
	if row.ID() == "" {
		return errors.New("record id is required")
	}
	if row[records.FieldTenantID] == nil {
		return errors.New("tenant id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	byID, ok := s.rows[entityID]
	if !ok {
		byID = make(map[string]records.RawRow)
		s.rows[entityID] = byID
	}
	byID[row.ID()] = maps.Clone(row)
	return nil
}

// Delete removes a record. Deleting a missing record is a no-op.
func (s *Store) Delete(entityID, recordID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows[entityID], recordID)
}

// Query returns matching rows ordered by record id.
func (s *Store) Query(_ context.Context, entityID string, opts records.QueryOptions) ([]records.RawRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []records.RawRow
	for id, row := range s.rows[entityID] {
		if len(opts.IDs) > 0 && !slices.Contains(opts.IDs, id) {
			continue
		}
		if row[records.FieldTenantID] != opts.TenantID {
			continue
		}
		if org := row.OrganizationID(); opts.OrganizationID != "" && org != "" && org != opts.OrganizationID {
			continue
		}
		matched = append(matched, project(row, opts.IncludeCustomFields))
	}

	sort.Slice(matched, func(i, j int) bool { return matched[i].ID() < matched[j].ID() })

	if opts.PageSize > 0 {
		page := max(opts.Page, 1)
		start := (page - 1) * opts.PageSize
		if start >= len(matched) {
			return nil, nil
		}
		end := min(start+opts.PageSize, len(matched))
		matched = matched[start:end]
	}
	return matched, nil
}

func project(row records.RawRow, includeCustom bool) records.RawRow {
	out := make(records.RawRow, len(row))
	for k, v := range row {
		if !includeCustom && strings.HasPrefix(k, records.CustomFieldPrefix) {
			continue
		}
		out[k] = v
	}
	return out
}

var _ records.Querier = (*Store)(nil)
