// Package postgres provides a PostgreSQL-backed records.Querier over
// application tables described in configuration.
package postgres

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/papercomputeco/vecindex/pkg/records"
)

// DefaultCustomFieldsTable holds custom field values as
// (entity_id, record_id, tenant_id, field_key, value jsonb, is_multi).
const DefaultCustomFieldsTable = "custom_field_values"

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// ErrUnknownEntity is returned when an entity has no table mapping.
var ErrUnknownEntity = errors.New("entity has no table mapping")

// Table maps an entity onto a relational table. Empty columns take the
// conventional names.
type Table struct {
	Name               string `toml:"table" mapstructure:"table"`
	IDColumn           string `toml:"id_column" mapstructure:"id_column"`
	TenantColumn       string `toml:"tenant_column" mapstructure:"tenant_column"`
	OrganizationColumn string `toml:"organization_column" mapstructure:"organization_column"`

	// DeletedAtColumn hides soft-deleted rows when set.
	DeletedAtColumn string `toml:"deleted_at_column" mapstructure:"deleted_at_column"`
}

func (t Table) withDefaults() Table {
	if t.IDColumn == "" {
		t.IDColumn = records.FieldID
	}
	if t.TenantColumn == "" {
		t.TenantColumn = records.FieldTenantID
	}
	if t.OrganizationColumn == "" {
		t.OrganizationColumn = records.FieldOrganizationID
	}
	return t
}

func (t Table) validate() error {
	for _, name := range []string{t.Name, t.IDColumn, t.TenantColumn, t.OrganizationColumn} {
		if !identifierPattern.MatchString(name) {
			return fmt.Errorf("invalid identifier %q", name)
		}
	}
	if t.DeletedAtColumn != "" && !identifierPattern.MatchString(t.DeletedAtColumn) {
		return fmt.Errorf("invalid identifier %q", t.DeletedAtColumn)
	}
	return nil
}

// Config configures a Querier.
type Config struct {
	ConnString string

	// Tables maps entity ids to their tables.
	Tables map[string]Table

	// CustomFieldsTable defaults to DefaultCustomFieldsTable.
	CustomFieldsTable string

	Logger *zap.Logger
}

// Querier implements records.Querier using a pgx connection pool.
type Querier struct {
	pool         *pgxpool.Pool
	tables       map[string]Table
	customFields string
	logger       *zap.Logger
}

// NewQuerier validates every table mapping and opens a connection pool.
func NewQuerier(ctx context.Context, cfg Config) (*Querier, error) {
	tables := make(map[string]Table, len(cfg.Tables))
	for entityID, t := range cfg.Tables {
		t = t.withDefaults()
		if err := t.validate(); err != nil {
			return nil, fmt.Errorf("entity %s: %w", entityID, err)
		}
		tables[entityID] = t
	}

	customFields := cfg.CustomFieldsTable
	if customFields == "" {
		customFields = DefaultCustomFieldsTable
	}
	if !identifierPattern.MatchString(customFields) {
		return nil, fmt.Errorf("invalid custom fields table %q", customFields)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	pool, err := pgxpool.New(ctx, cfg.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to open records database: %w", err)
	}

	return &Querier{
		pool:         pool,
		tables:       tables,
		customFields: customFields,
		logger:       logger,
	}, nil
}

// Query fetches rows as JSON objects so that arbitrary application tables
// can be read without a per-table scan type. Numbers are kept as
// json.Number so bigint ids survive intact.
func (q *Querier) Query(ctx context.Context, entityID string, opts records.QueryOptions) ([]records.RawRow, error) {
	t, ok := q.tables[entityID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, entityID)
	}

	sql, args := buildSelect(t, opts)
	rows, err := q.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", entityID, err)
	}
	raw, err := pgx.CollectRows(rows, pgx.RowTo[[]byte])
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", entityID, err)
	}

	out := make([]records.RawRow, len(raw))
	ids := make([]string, len(raw))
	for i, doc := range raw {
		m, err := decodeRow(doc)
		if err != nil {
			return nil, fmt.Errorf("decoding %s row: %w", entityID, err)
		}
		out[i] = normalize(t, m)
		ids[i] = out[i].ID()
	}

	if opts.IncludeCustomFields && len(out) > 0 {
		if err := q.attachCustomFields(ctx, entityID, opts.TenantID, ids, out); err != nil {
			return nil, err
		}
	}

	q.logger.Debug("records fetched",
		zap.String("entity_id", entityID),
		zap.Int("count", len(out)),
	)
	return out, nil
}

func (q *Querier) attachCustomFields(ctx context.Context, entityID, tenantID string, ids []string, rows []records.RawRow) error {
	sql := fmt.Sprintf(`SELECT record_id, field_key, value, is_multi FROM %s
WHERE entity_id = $1 AND tenant_id = $2 AND record_id = ANY($3)
ORDER BY record_id, field_key`, quote(q.customFields))

	res, err := q.pool.Query(ctx, sql, entityID, tenantID, ids)
	if err != nil {
		return fmt.Errorf("querying custom fields of %s: %w", entityID, err)
	}
	defer res.Close()

	byID := make(map[string]records.RawRow, len(rows))
	for _, row := range rows {
		byID[row.ID()] = row
	}

	for res.Next() {
		var (
			recordID, key string
			doc           []byte
			multi         bool
		)
		if err := res.Scan(&recordID, &key, &doc, &multi); err != nil {
			return fmt.Errorf("scanning custom field: %w", err)
		}
		row, ok := byID[recordID]
		if !ok {
			continue
		}
		value, err := decodeValue(doc)
		if err != nil {
			return fmt.Errorf("decoding custom field %s of %s: %w", key, recordID, err)
		}
		addCustomField(row, key, value, multi)
	}
	return res.Err()
}

// addCustomField appends values of multi fields, which arrive one row per value.
func addCustomField(row records.RawRow, key string, value any, multi bool) {
	name := records.CustomFieldPrefix + key
	if !multi {
		row[name] = value
		return
	}
	row[name+records.MultiMarkerSuffix] = true
	existing, _ := row[name].([]any)
	row[name] = append(existing, value)
}

// normalize exposes the configured id, tenant and organization columns
// under their conventional names.
func normalize(t Table, m map[string]any) records.RawRow {
	row := records.RawRow(m)
	row[records.FieldID] = stringify(m[t.IDColumn])
	row[records.FieldTenantID] = stringify(m[t.TenantColumn])
	if org := m[t.OrganizationColumn]; org != nil {
		row[records.FieldOrganizationID] = stringify(org)
	} else {
		delete(row, records.FieldOrganizationID)
	}
	return row
}

func stringify(v any) string {
	return strings.TrimSpace(records.StringValue(v))
}

func decodeRow(doc []byte) (map[string]any, error) {
	var m map[string]any
	if err := newDecoder(doc).Decode(&m); err != nil {
		return nil, err
	}
	if m == nil {
		m = map[string]any{}
	}
	return m, nil
}

// decodeValue decodes a jsonb column. SQL NULL scans as nil bytes.
func decodeValue(doc []byte) (any, error) {
	if doc == nil {
		return nil, nil
	}
	var v any
	if err := newDecoder(doc).Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func newDecoder(doc []byte) *json.Decoder {
	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.UseNumber()
	return dec
}

// buildSelect renders the row query. Identifiers are validated at
// construction, every value is a bind parameter.
func buildSelect(t Table, opts records.QueryOptions) (string, []any) {
	var (
		b     strings.Builder
		args  []any
		conds []string
	)

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	conds = append(conds, fmt.Sprintf("t.%s::text = %s", quote(t.TenantColumn), arg(opts.TenantID)))
	if opts.OrganizationID != "" {
		org := quote(t.OrganizationColumn)
		conds = append(conds, fmt.Sprintf("(t.%s IS NULL OR t.%s::text = %s)", org, org, arg(opts.OrganizationID)))
	}
	if len(opts.IDs) > 0 {
		conds = append(conds, fmt.Sprintf("t.%s::text = ANY(%s)", quote(t.IDColumn), arg(opts.IDs)))
	}
	if t.DeletedAtColumn != "" {
		conds = append(conds, fmt.Sprintf("t.%s IS NULL", quote(t.DeletedAtColumn)))
	}

	fmt.Fprintf(&b, "SELECT to_jsonb(t) FROM %s t WHERE %s ORDER BY t.%s",
		quote(t.Name), strings.Join(conds, " AND "), quote(t.IDColumn))

	if opts.PageSize > 0 {
		page := max(opts.Page, 1)
		fmt.Fprintf(&b, " LIMIT %s OFFSET %s", arg(opts.PageSize), arg((page-1)*opts.PageSize))
	}
	return b.String(), args
}

// quote double-quotes each part of a possibly schema-qualified identifier.
func quote(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = `"` + p + `"`
	}
	return strings.Join(parts, ".")
}

// Close closes the connection pool.
func (q *Querier) Close() error {
	q.pool.Close()
	return nil
}

var _ records.Querier = (*Querier)(nil)
