package pgvector

import (
	"fmt"
	"strings"

	"github.com/papercomputeco/vecindex/pkg/vector"
)

const documentColumns = `entity_id, record_id, organization_id, checksum, url, presenter, links, payload`

// buildQuery renders the similarity query. Tenant scoping is always
// present; the organization clause admits global rows alongside the
// requested organization.
func buildQuery(table, metric, driverID string, embedding any, limit int, filter vector.QueryFilter) (string, []any) {
	_, op := operatorClass(metric)

	args := []any{embedding, driverID, filter.TenantID}
	where := []string{"driver_id = $2", "tenant_id = $3"}

	if filter.OrganizationID != "" {
		args = append(args, filter.OrganizationID)
		where = append(where, fmt.Sprintf("(organization_id IS NULL OR organization_id = $%d)", len(args)))
	}
	if len(filter.EntityIDs) > 0 {
		args = append(args, filter.EntityIDs)
		where = append(where, fmt.Sprintf("entity_id = ANY($%d)", len(args)))
	}

	args = append(args, limit)
	sql := fmt.Sprintf(`SELECT %s, embedding %s $1::vector AS distance
		FROM %s
		WHERE %s
		ORDER BY distance ASC
		LIMIT $%d`,
		documentColumns, op, table, strings.Join(where, " AND "), len(args))

	return sql, args
}

// buildList renders the administrative listing query.
func buildList(table, driverID string, params vector.ListParams) (string, []any) {
	args := []any{driverID, params.TenantID}
	where := []string{"driver_id = $1", "tenant_id = $2"}

	if params.OrganizationID != "" {
		args = append(args, params.OrganizationID)
		where = append(where, fmt.Sprintf("(organization_id IS NULL OR organization_id = $%d)", len(args)))
	}
	if params.EntityID != "" {
		args = append(args, params.EntityID)
		where = append(where, fmt.Sprintf("entity_id = $%d", len(args)))
	}

	order := "updated_at"
	if params.OrderBy == vector.OrderByCreated {
		order = "created_at"
	}

	args = append(args, params.Limit, params.Offset)
	sql := fmt.Sprintf(`SELECT %s, created_at, updated_at
		FROM %s
		WHERE %s
		ORDER BY %s DESC, entity_id, record_id
		LIMIT $%d OFFSET $%d`,
		documentColumns, table, strings.Join(where, " AND "), order, len(args)-1, len(args))

	return sql, args
}
