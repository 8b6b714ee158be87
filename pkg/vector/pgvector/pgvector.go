// Package pgvector provides the reference vector driver: PostgreSQL with the
// pgvector extension and an HNSW index on the embedding column.
package pgvector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgv "github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"github.com/papercomputeco/vecindex/pkg/vector"
)

// DriverID is the default id for this driver.
const DriverID = "pgvector"

// Config holds configuration for the pgvector driver.
type Config struct {
	// ConnString is the PostgreSQL connection string.
	ConnString string

	// DriverID overrides the id documents are stored under.
	DriverID string

	// Table is the document table name. Unsafe names fall back to DefaultTable.
	Table string

	// Dimensions is the width of the embedding column. Required.
	Dimensions int

	// Distance is the ANN metric: cosine (default), l2 or ip.
	Distance string
}

// Driver implements vector.Driver on PostgreSQL + pgvector.
type Driver struct {
	id         string
	pool       *pgxpool.Pool
	table      string
	dimensions int
	metric     string
	ready      vector.ReadyOnce
	logger     *zap.Logger
}

// NewDriver creates a pgvector driver. The pool connects lazily; schema is
// created on the first EnsureReady.
func NewDriver(c Config, logger *zap.Logger) (*Driver, error) {
	if c.ConnString == "" {
		return nil, fmt.Errorf("postgres connection string is required")
	}
	if c.Dimensions <= 0 {
		return nil, fmt.Errorf("pgvector embedding dimensions must be configured")
	}

	pool, err := pgxpool.New(context.Background(), c.ConnString)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", vector.ErrConnection, err)
	}

	id := c.DriverID
	if id == "" {
		id = DriverID
	}

	table := SafeIdentifier(c.Table, DefaultTable)
	if c.Table != "" && table != c.Table {
		logger.Warn("unsafe pgvector table name, using default",
			zap.String("configured", c.Table),
			zap.String("table", table),
		)
	}

	metric := c.Distance
	if metric == "" {
		metric = vector.DistanceCosine
	}

	return &Driver{
		id:         id,
		pool:       pool,
		table:      table,
		dimensions: c.Dimensions,
		metric:     metric,
		logger:     logger,
	}, nil
}

// ID returns the driver id.
func (d *Driver) ID() string {
	return d.id
}

// EnsureReady creates the extension, table, indexes and applies pending
// migrations. It runs once per process after a success.
func (d *Driver) EnsureReady(ctx context.Context) error {
	return d.ready.Do(ctx, d.initialize)
}

func (d *Driver) initialize(ctx context.Context) error {
	for _, stmt := range schemaStatements(d.table, d.dimensions, d.metric) {
		if _, err := d.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("initializing pgvector schema: %w", err)
		}
	}

	applied := 0
	for _, m := range migrations(d.table) {
		ok, err := d.applyMigration(ctx, m)
		if err != nil {
			return err
		}
		if ok {
			applied++
		}
	}

	d.logger.Info("pgvector driver ready",
		zap.String("table", d.table),
		zap.Int("dimensions", d.dimensions),
		zap.String("distance", d.metric),
		zap.Int("migrations_applied", applied),
	)
	return nil
}

func (d *Driver) applyMigration(ctx context.Context, m migration) (bool, error) {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("beginning migration %s: %w", m.name, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var exists bool
	err = tx.QueryRow(ctx,
		fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s_migrations WHERE name = $1)`, d.table),
		m.name,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking migration %s: %w", m.name, err)
	}
	if exists {
		return false, nil
	}

	if _, err := tx.Exec(ctx, m.sql); err != nil {
		return false, fmt.Errorf("applying migration %s: %w", m.name, err)
	}
	if _, err := tx.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s_migrations (name) VALUES ($1) ON CONFLICT DO NOTHING`, d.table),
		m.name,
	); err != nil {
		return false, fmt.Errorf("recording migration %s: %w", m.name, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("committing migration %s: %w", m.name, err)
	}
	return true, nil
}

// Upsert inserts or replaces a document at its composite key.
func (d *Driver) Upsert(ctx context.Context, doc vector.Document) error {
	if len(doc.Embedding) != d.dimensions {
		return fmt.Errorf("embedding has %d dimensions, store expects %d", len(doc.Embedding), d.dimensions)
	}

	presenter, err := marshalNullable(doc.Presenter)
	if err != nil {
		return fmt.Errorf("encoding presenter: %w", err)
	}
	var links []byte
	if len(doc.Links) > 0 {
		if links, err = json.Marshal(doc.Links); err != nil {
			return fmt.Errorf("encoding links: %w", err)
		}
	}
	var payload []byte
	if len(doc.Payload) > 0 {
		payload = doc.Payload
	}

	_, err = d.pool.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (driver_id, entity_id, record_id, tenant_id, organization_id,
			checksum, embedding, url, presenter, links, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7::vector, $8, $9, $10, $11)
		ON CONFLICT (driver_id, entity_id, record_id, tenant_id) DO UPDATE SET
			organization_id = EXCLUDED.organization_id,
			checksum = EXCLUDED.checksum,
			embedding = EXCLUDED.embedding,
			url = EXCLUDED.url,
			presenter = EXCLUDED.presenter,
			links = EXCLUDED.links,
			payload = EXCLUDED.payload,
			updated_at = now()`, d.table),
		d.id, doc.EntityID, doc.RecordID, doc.TenantID, nullString(doc.OrganizationID),
		doc.Checksum, pgv.NewVector(doc.Embedding), nullString(doc.URL), presenter, links, payload,
	)
	if err != nil {
		return fmt.Errorf("upserting %s/%s: %w", doc.EntityID, doc.RecordID, err)
	}
	return nil
}

// Delete removes one document.
func (d *Driver) Delete(ctx context.Context, entityID, recordID, tenantID string) error {
	_, err := d.pool.Exec(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE driver_id = $1 AND entity_id = $2 AND record_id = $3 AND tenant_id = $4`, d.table),
		d.id, entityID, recordID, tenantID,
	)
	if err != nil {
		return fmt.Errorf("deleting %s/%s: %w", entityID, recordID, err)
	}
	return nil
}

// GetChecksum returns the stored checksum for a document.
func (d *Driver) GetChecksum(ctx context.Context, entityID, recordID, tenantID string) (string, bool, error) {
	var checksum string
	err := d.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT checksum FROM %s WHERE driver_id = $1 AND entity_id = $2 AND record_id = $3 AND tenant_id = $4`, d.table),
		d.id, entityID, recordID, tenantID,
	).Scan(&checksum)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading checksum for %s/%s: %w", entityID, recordID, err)
	}
	return checksum, true, nil
}

// Purge removes every document of an entity in a tenant.
func (d *Driver) Purge(ctx context.Context, entityID, tenantID string) error {
	tag, err := d.pool.Exec(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE driver_id = $1 AND entity_id = $2 AND tenant_id = $3`, d.table),
		d.id, entityID, tenantID,
	)
	if err != nil {
		return fmt.Errorf("purging %s: %w", entityID, err)
	}

	d.logger.Debug("purged pgvector documents",
		zap.String("entity_id", entityID),
		zap.Int64("count", tag.RowsAffected()),
	)
	return nil
}

// Query returns the nearest documents visible under filter.
func (d *Driver) Query(ctx context.Context, embedding []float32, limit int, filter vector.QueryFilter) ([]vector.Hit, error) {
	if limit <= 0 {
		limit = 10
	}

	sql, args := buildQuery(d.table, d.metric, d.id, pgv.NewVector(embedding), limit, filter)
	rows, err := d.pool.Query(ctx, sql, args...)
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

	return hits, nil
}

// List returns stored documents newest first.
func (d *Driver) List(ctx context.Context, params vector.ListParams) ([]vector.Document, error) {
	if params.Limit <= 0 {
		params.Limit = 50
	}

	sql, args := buildList(d.table, d.id, params)
	rows, err := d.pool.Query(ctx, sql, args...)
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
func (d *Driver) IndexedDimension(ctx context.Context) (int, bool, error) {
	var dim int
	err := d.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT vector_dims(embedding) FROM %s WHERE driver_id = $1 LIMIT 1`, d.table),
		d.id,
	).Scan(&dim)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("reading indexed dimension: %w", err)
	}
	return dim, true, nil
}

// Close releases the connection pool.
func (d *Driver) Close() error {
	d.pool.Close()
	return nil
}

var (
	_ vector.Driver            = (*Driver)(nil)
	_ vector.DimensionReporter = (*Driver)(nil)
)
