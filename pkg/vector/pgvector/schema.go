package pgvector

import (
	"fmt"
	"regexp"

	"github.com/papercomputeco/vecindex/pkg/vector"
)

// DefaultTable is used when no table name, or an unsafe one, is configured.
const DefaultTable = "vector_search_documents"

var safeIdentifier = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// SafeIdentifier returns name when it only holds letters, digits and
// underscores, and fallback otherwise. Table and index names are
// interpolated into DDL so nothing else is allowed through.
func SafeIdentifier(name, fallback string) string {
	if name == "" || len(name) > 48 || !safeIdentifier.MatchString(name) {
		return fallback
	}
	return name
}

// operatorClass returns the HNSW operator class and the distance operator
// for a metric.
func operatorClass(metric string) (opclass, operator string) {
	switch metric {
	case vector.DistanceL2:
		return "vector_l2_ops", "<->"
	case vector.DistanceInnerProduct:
		return "vector_ip_ops", "<#>"
	default:
		return "vector_cosine_ops", "<=>"
	}
}

// schemaStatements is the idempotent base schema.
func schemaStatements(table string, dimensions int, metric string) []string {
	opclass, _ := operatorClass(metric)
	return []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %[1]s (
			id BIGSERIAL PRIMARY KEY,
			driver_id TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			record_id TEXT NOT NULL,
			tenant_id TEXT NOT NULL,
			organization_id TEXT NULL,
			checksum TEXT NOT NULL,
			embedding vector(%[2]d) NOT NULL,
			url TEXT NULL,
			presenter JSONB NULL,
			links JSONB NULL,
			payload JSONB NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, table, dimensions),
		fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS %[1]s_key_idx
			ON %[1]s (driver_id, entity_id, record_id, tenant_id)`, table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %[1]s_embedding_idx
			ON %[1]s USING hnsw (embedding %[2]s)`, table, opclass),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %[1]s_migrations (
			name TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, table),
	}
}

type migration struct {
	name string
	sql  string
}

// migrations are additive schema changes applied once each, gated by a row
// in the marker table. New entries go at the end.
func migrations(table string) []migration {
	return []migration{
		{
			name: "0001_scope_index",
			sql: fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %[1]s_scope_idx
				ON %[1]s (driver_id, tenant_id, organization_id, entity_id)`, table),
		},
		{
			name: "0002_updated_index",
			sql: fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %[1]s_updated_idx
				ON %[1]s (driver_id, tenant_id, updated_at DESC)`, table),
		},
		{
			name: "0003_created_index",
			sql: fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %[1]s_created_idx
				ON %[1]s (driver_id, tenant_id, created_at DESC)`, table),
		},
	}
}
