// Package records is the read contract for the live source of truth that
// indexed documents are built from and re-hydrated against.
package records

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrRecordNotFound is returned when a record no longer exists.
var ErrRecordNotFound = errors.New("record not found")

const (
	// CustomFieldPrefix marks custom field keys in a RawRow.
	CustomFieldPrefix = "cf:"

	// MultiMarkerSuffix marks a custom field as multi-valued when the
	// companion key "cf:<key>__is_multi" is true.
	MultiMarkerSuffix = "__is_multi"
)

// Well-known plain fields.
const (
	FieldID             = "id"
	FieldTenantID       = "tenant_id"
	FieldOrganizationID = "organization_id"
)

// RawRow is a fetched record mixing plain fields with prefixed custom fields.
type RawRow map[string]any

// ID returns the row's record id.
func (r RawRow) ID() string {
	return StringValue(r[FieldID])
}

// OrganizationID returns the row's organization, empty for tenant-global rows.
func (r RawRow) OrganizationID() string {
	return StringValue(r[FieldOrganizationID])
}

// QueryOptions scopes a record query. OrganizationID matches that
// organization plus tenant-global rows.
type QueryOptions struct {
	TenantID       string
	OrganizationID string

	// IDs restricts the query to these record ids when non-empty.
	IDs []string

	// Page is 1-based. PageSize zero returns every match.
	Page     int
	PageSize int

	IncludeCustomFields bool
}

// Querier fetches live records of an entity.
type Querier interface {
	Query(ctx context.Context, entityID string, opts QueryOptions) ([]RawRow, error)
}

// Split separates a raw row into plain fields and custom fields. Custom
// fields flagged multi-valued are normalized to []any.
func Split(row RawRow) (record map[string]any, customFields map[string]any) {
	record = make(map[string]any, len(row))
	customFields = make(map[string]any)
	multi := make(map[string]bool)

	for k, v := range row {
		key, ok := strings.CutPrefix(k, CustomFieldPrefix)
		if !ok {
			record[k] = v
			continue
		}
		if base, isMarker := strings.CutSuffix(key, MultiMarkerSuffix); isMarker {
			if truthy(v) {
				multi[base] = true
			}
			continue
		}
		customFields[key] = v
	}

	for key := range multi {
		customFields[key] = toList(customFields[key])
	}
	return record, customFields
}

// FetchOne returns a single record, or ErrRecordNotFound.
func FetchOne(ctx context.Context, q Querier, entityID, recordID string, opts QueryOptions) (RawRow, error) {
	opts.IDs = []string{recordID}
	opts.Page, opts.PageSize = 0, 0
	rows, err := q.Query(ctx, entityID, opts)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		if row.ID() == recordID {
			return row, nil
		}
	}
	return nil, ErrRecordNotFound
}

func toList(v any) []any {
	switch val := v.(type) {
	case nil:
		return []any{}
	case []any:
		return val
	case []string:
		out := make([]any, len(val))
		for i, s := range val {
			out[i] = s
		}
		return out
	default:
		return []any{val}
	}
}

func truthy(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		return val == "true" || val == "1"
	case int:
		return val != 0
	case int64:
		return val != 0
	case float64:
		return val != 0
	case json.Number:
		f, err := val.Float64()
		return err == nil && f != 0
	default:
		return false
	}
}

// StringValue renders a scalar field value as text. Numbers never use
// exponent notation, so integral ids decoded as float64 or json.Number
// keep their digits.
func StringValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	default:
		return fmt.Sprint(val)
	}
}
