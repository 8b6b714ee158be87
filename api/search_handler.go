package api

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/vecindex/pkg/indexer"
)

const (
	defaultSearchLimit = 10
	maxSearchLimit     = 50
)

// handleSearch handles GET /search and /v1/search.
//
// Query parameters:
//   - q (or query): the search text (required)
//   - limit: number of results, 1 to 50 (default 10, larger values are clamped)
//   - driverId: vector driver to search (default driver if omitted)
//   - entities: comma separated entity ids to narrow the search
func (s *Server) handleSearch(c *fiber.Ctx) error {
	query := strings.TrimSpace(c.Query("q", c.Query("query")))
	if query == "" {
		return errorJSON(c, fiber.StatusBadRequest, "query parameter 'q' is required")
	}

	limit := defaultSearchLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return errorJSON(c, fiber.StatusBadRequest, "limit must be a positive integer")
		}
		limit = min(n, maxSearchLimit)
	}

	out, err := s.indexer.Search(c.UserContext(), indexer.SearchArgs{
		Query:          query,
		Limit:          limit,
		TenantID:       tenantOf(c),
		OrganizationID: organizationOf(c),
		DriverID:       c.Query("driverId"),
		EntityIDs:      splitList(c.Query("entities")),
	})
	if err != nil {
		return s.fail(c, "search", err)
	}
	return c.JSON(out)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
