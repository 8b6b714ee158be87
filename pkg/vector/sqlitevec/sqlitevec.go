//go:build cgo

package sqlitevec

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/papercomputeco/vecindex/pkg/vector"
)

// SQLiteVecDriver implements vector.Driver using SQLite with sqlite-vec.
type SQLiteVecDriver struct {
	id         string
	db         *sql.DB
	dimensions int
	distanceFn string
	metric     string
	ready      vector.ReadyOnce
	logger     *zap.Logger
}

// NewSQLiteVecDriver creates a new SQLite vector driver backed by sqlite-vec.
func NewSQLiteVecDriver(c Config, logger *zap.Logger) (*SQLiteVecDriver, error) {
	// enable connection to have sqlite-vec extension
	sqlite_vec.Auto()

	if c.DBPath == "" {
		return nil, fmt.Errorf("database path is required")
	}

	if c.Dimensions <= 0 {
		return nil, fmt.Errorf("sqlite-vec embedding dimensions cannot be 0, must be configured")
	}

	metric := c.Distance
	var distanceFn string
	switch metric {
	case "", vector.DistanceCosine:
		metric, distanceFn = vector.DistanceCosine, "vec_distance_cosine"
	case vector.DistanceL2:
		distanceFn = "vec_distance_l2"
	default:
		return nil, fmt.Errorf("sqlite-vec does not support distance %q", metric)
	}

	db, err := sql.Open("sqlite3", c.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Every connection to ":memory:" is a separate database.
	db.SetMaxOpenConns(1)

	// Verify sqlite-vec is loaded
	var vecVersion string
	if err := db.QueryRow("SELECT vec_version()").Scan(&vecVersion); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite-vec not available: %w", err)
	}

	id := c.DriverID
	if id == "" {
		id = DriverID
	}

	logger.Info("sqlite-vec vector driver opened",
		zap.String("db_path", c.DBPath),
		zap.Int("dimensions", c.Dimensions),
		zap.String("vec_version", vecVersion),
	)

	return &SQLiteVecDriver{
		id:         id,
		db:         db,
		dimensions: c.Dimensions,
		distanceFn: distanceFn,
		metric:     metric,
		logger:     logger,
	}, nil
}

// ID returns the driver id.
func (d *SQLiteVecDriver) ID() string {
	return d.id
}

// EnsureReady creates the documents table and indexes once.
func (d *SQLiteVecDriver) EnsureReady(ctx context.Context) error {
	return d.ready.Do(ctx, func(ctx context.Context) error {
		stmts := []string{
			`CREATE TABLE IF NOT EXISTS vec_documents (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				driver_id TEXT NOT NULL,
				entity_id TEXT NOT NULL,
				record_id TEXT NOT NULL,
				tenant_id TEXT NOT NULL,
				organization_id TEXT NULL,
				checksum TEXT NOT NULL,
				embedding BLOB NOT NULL,
				url TEXT NULL,
				presenter TEXT NULL,
				links TEXT NULL,
				payload TEXT NULL,
				created_at INTEGER NOT NULL,
				updated_at INTEGER NOT NULL,
				UNIQUE (driver_id, entity_id, record_id, tenant_id)
			)`,
			`CREATE INDEX IF NOT EXISTS vec_documents_scope_idx
				ON vec_documents (driver_id, tenant_id, organization_id, entity_id)`,
			`CREATE INDEX IF NOT EXISTS vec_documents_updated_idx
				ON vec_documents (driver_id, tenant_id, updated_at)`,
		}
		for _, stmt := range stmts {
			if _, err := d.db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("creating documents table: %w", err)
			}
		}
		return nil
	})
}

// serializeFloat32 converts a float32 slice to a little-endian byte slice
// suitable for sqlite-vec BLOB format.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// deserializeFloat32 converts a little-endian byte slice back to a float32 slice.
func deserializeFloat32(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding blob length %d: must be divisible by 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}

// Upsert inserts or replaces a document at its composite key.
func (d *SQLiteVecDriver) Upsert(ctx context.Context, doc vector.Document) error {
	if len(doc.Embedding) != d.dimensions {
		return fmt.Errorf("embedding has %d dimensions, store expects %d", len(doc.Embedding), d.dimensions)
	}

	presenter, links, payload, err := encodeJSONColumns(doc)
	if err != nil {
		return err
	}

	now := time.Now().UnixMilli()
	_, err = d.db.ExecContext(ctx, `
		INSERT INTO vec_documents (driver_id, entity_id, record_id, tenant_id, organization_id,
			checksum, embedding, url, presenter, links, payload, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (driver_id, entity_id, record_id, tenant_id) DO UPDATE SET
			organization_id = excluded.organization_id,
			checksum = excluded.checksum,
			embedding = excluded.embedding,
			url = excluded.url,
			presenter = excluded.presenter,
			links = excluded.links,
			payload = excluded.payload,
			updated_at = excluded.updated_at`,
		d.id, doc.EntityID, doc.RecordID, doc.TenantID, nullString(doc.OrganizationID),
		doc.Checksum, serializeFloat32(doc.Embedding), nullString(doc.URL),
		presenter, links, payload, now, now,
	)
	if err != nil {
		return fmt.Errorf("upserting %s/%s: %w", doc.EntityID, doc.RecordID, err)
	}

	d.logger.Debug("upserted document to sqlite-vec",
		zap.String("entity_id", doc.EntityID),
		zap.String("record_id", doc.RecordID),
	)
	return nil
}

// Delete removes one document.
func (d *SQLiteVecDriver) Delete(ctx context.Context, entityID, recordID, tenantID string) error {
	_, err := d.db.ExecContext(ctx,
		`DELETE FROM vec_documents WHERE driver_id = ? AND entity_id = ? AND record_id = ? AND tenant_id = ?`,
		d.id, entityID, recordID, tenantID,
	)
	if err != nil {
		return fmt.Errorf("deleting %s/%s: %w", entityID, recordID, err)
	}
	return nil
}

// GetChecksum returns the stored checksum for a document.
func (d *SQLiteVecDriver) GetChecksum(ctx context.Context, entityID, recordID, tenantID string) (string, bool, error) {
	var checksum string
	err := d.db.QueryRowContext(ctx,
		`SELECT checksum FROM vec_documents WHERE driver_id = ? AND entity_id = ? AND record_id = ? AND tenant_id = ?`,
		d.id, entityID, recordID, tenantID,
	).Scan(&checksum)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading checksum for %s/%s: %w", entityID, recordID, err)
	}
	return checksum, true, nil
}

// Purge removes every document of an entity in a tenant.
func (d *SQLiteVecDriver) Purge(ctx context.Context, entityID, tenantID string) error {
	res, err := d.db.ExecContext(ctx,
		`DELETE FROM vec_documents WHERE driver_id = ? AND entity_id = ? AND tenant_id = ?`,
		d.id, entityID, tenantID,
	)
	if err != nil {
		return fmt.Errorf("purging %s: %w", entityID, err)
	}

	n, _ := res.RowsAffected()
	d.logger.Debug("purged sqlite-vec documents",
		zap.String("entity_id", entityID),
		zap.Int64("count", n),
	)
	return nil
}

// Query ranks visible documents by distance to embedding.
func (d *SQLiteVecDriver) Query(ctx context.Context, embedding []float32, limit int, filter vector.QueryFilter) ([]vector.Hit, error) {
	if limit <= 0 {
		limit = 10
	}
	if len(embedding) != d.dimensions {
		return nil, fmt.Errorf("query embedding has %d dimensions, store expects %d", len(embedding), d.dimensions)
	}

	where, args := scopeClause(d.id, filter.TenantID, filter.OrganizationID, filter.EntityIDs)
	args = append([]any{serializeFloat32(embedding)}, args...)
	args = append(args, limit)

	rows, err := d.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s, %s(embedding, ?) AS distance
		FROM vec_documents
		WHERE %s
		ORDER BY distance ASC
		LIMIT ?`, documentColumns, d.distanceFn, where), args...)
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}
	defer rows.Close()

	hits := make([]vector.Hit, 0, limit)
	for rows.Next() {
		var (
			r        row
			distance float64
		)
		if err := rows.Scan(r.targets(&distance)...); err != nil {
			return nil, fmt.Errorf("scanning query result: %w", err)
		}

		doc, err := r.document()
		if err != nil {
			return nil, err
		}
		hits = append(hits, vector.Hit{
			EntityID:       doc.EntityID,
			RecordID:       doc.RecordID,
			OrganizationID: doc.OrganizationID,
			Score:          vector.Similarity(d.metric, distance),
			Checksum:       doc.Checksum,
			URL:            doc.URL,
			Presenter:      doc.Presenter,
			Links:          doc.Links,
			Payload:        doc.Payload,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating query results: %w", err)
	}

	d.logger.Debug("queried sqlite-vec",
		zap.Int("results", len(hits)),
	)

	return hits, nil
}

// List returns stored documents newest first.
func (d *SQLiteVecDriver) List(ctx context.Context, params vector.ListParams) ([]vector.Document, error) {
	if params.Limit <= 0 {
		params.Limit = 50
	}

	var entityIDs []string
	if params.EntityID != "" {
		entityIDs = []string{params.EntityID}
	}
	where, args := scopeClause(d.id, params.TenantID, params.OrganizationID, entityIDs)
	args = append(args, params.Limit, params.Offset)

	order := "updated_at"
	if params.OrderBy == vector.OrderByCreated {
		order = "created_at"
	}

	rows, err := d.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s, created_at, updated_at
		FROM vec_documents
		WHERE %s
		ORDER BY %s DESC, id DESC
		LIMIT ? OFFSET ?`, documentColumns, where, order), args...)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	docs := make([]vector.Document, 0, params.Limit)
	for rows.Next() {
		var r row
		if err := rows.Scan(r.targets(&r.createdAt, &r.updatedAt)...); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}

		doc, err := r.document()
		if err != nil {
			return nil, err
		}
		doc.DriverID = d.id
		doc.TenantID = params.TenantID
		docs = append(docs, doc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}

	return docs, nil
}

// IndexedDimension reports the width of the stored vectors.
func (d *SQLiteVecDriver) IndexedDimension(ctx context.Context) (int, bool, error) {
	var blob []byte
	err := d.db.QueryRowContext(ctx,
		`SELECT embedding FROM vec_documents WHERE driver_id = ? LIMIT 1`, d.id,
	).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("reading indexed dimension: %w", err)
	}

	v, err := deserializeFloat32(blob)
	if err != nil {
		return 0, false, err
	}
	return len(v), true, nil
}

// Close releases resources held by the driver.
func (d *SQLiteVecDriver) Close() error {
	return d.db.Close()
}

// scopeClause renders the driver, tenant, organization and entity filter.
func scopeClause(driverID, tenantID, organizationID string, entityIDs []string) (string, []any) {
	where := []string{"driver_id = ?", "tenant_id = ?"}
	args := []any{driverID, tenantID}

	if organizationID != "" {
		where = append(where, "(organization_id IS NULL OR organization_id = ?)")
		args = append(args, organizationID)
	}

	if len(entityIDs) > 0 {
		placeholders := make([]string, len(entityIDs))
		for i, id := range entityIDs {
			placeholders[i] = "?"
			args = append(args, id)
		}
		where = append(where, fmt.Sprintf("entity_id IN (%s)", strings.Join(placeholders, ",")))
	}

	return strings.Join(where, " AND "), args
}

const documentColumns = `entity_id, record_id, organization_id, checksum, url, presenter, links, payload`

type row struct {
	entityID       string
	recordID       string
	organizationID sql.NullString
	checksum       string
	url            sql.NullString
	presenter      sql.NullString
	links          sql.NullString
	payload        sql.NullString
	createdAt      int64
	updatedAt      int64
}

func (r *row) targets(extra ...any) []any {
	return append([]any{
		&r.entityID, &r.recordID, &r.organizationID, &r.checksum,
		&r.url, &r.presenter, &r.links, &r.payload,
	}, extra...)
}

func (r *row) document() (vector.Document, error) {
	doc := vector.Document{
		EntityID:       r.entityID,
		RecordID:       r.recordID,
		OrganizationID: r.organizationID.String,
		Checksum:       r.checksum,
		URL:            r.url.String,
	}
	if r.createdAt > 0 {
		doc.CreatedAt = time.UnixMilli(r.createdAt).UTC()
	}
	if r.updatedAt > 0 {
		doc.UpdatedAt = time.UnixMilli(r.updatedAt).UTC()
	}

	if r.presenter.Valid {
		doc.Presenter = &vector.Presenter{}
		if err := json.Unmarshal([]byte(r.presenter.String), doc.Presenter); err != nil {
			return doc, fmt.Errorf("decoding presenter for %s/%s: %w", r.entityID, r.recordID, err)
		}
	}
	if r.links.Valid {
		if err := json.Unmarshal([]byte(r.links.String), &doc.Links); err != nil {
			return doc, fmt.Errorf("decoding links for %s/%s: %w", r.entityID, r.recordID, err)
		}
	}
	if r.payload.Valid {
		doc.Payload = json.RawMessage(r.payload.String)
	}
	return doc, nil
}

func encodeJSONColumns(doc vector.Document) (presenter, links, payload any, err error) {
	if doc.Presenter != nil {
		b, err := json.Marshal(doc.Presenter)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("encoding presenter: %w", err)
		}
		presenter = string(b)
	}
	if len(doc.Links) > 0 {
		b, err := json.Marshal(doc.Links)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("encoding links: %w", err)
		}
		links = string(b)
	}
	if len(doc.Payload) > 0 {
		payload = string(doc.Payload)
	}
	return presenter, links, payload, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

var (
	_ vector.Driver            = (*SQLiteVecDriver)(nil)
	_ vector.DimensionReporter = (*SQLiteVecDriver)(nil)
)
