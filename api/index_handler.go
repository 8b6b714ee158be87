package api

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/vecindex/pkg/indexer"
)

// ReindexRequest is the body of POST /v1/index/reindex. An empty entity
// reindexes every enabled entity.
type ReindexRequest struct {
	EntityID string `json:"entityId,omitempty"`

	// PurgeFirst defaults to true.
	PurgeFirst *bool `json:"purgeFirst,omitempty"`
}

// ReindexResponse lists one result per reindexed entity.
type ReindexResponse struct {
	Results []indexer.ReindexResult `json:"results"`
}

// RecordResponse is the body of POST /v1/index/records/:entityId/:recordId.
type RecordResponse struct {
	EntityID string          `json:"entityId"`
	RecordID string          `json:"recordId"`
	Outcome  indexer.Outcome `json:"outcome"`
}

// handleListEntries handles GET /v1/index/entries.
//
// Query parameters: entityId, driverId, limit, offset, orderBy.
func (s *Server) handleListEntries(c *fiber.Ctx) error {
	limit, err := intQuery(c, "limit")
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "limit must be a non-negative integer")
	}
	offset, err := intQuery(c, "offset")
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "offset must be a non-negative integer")
	}

	out, err := s.indexer.ListIndexEntries(c.UserContext(), indexer.ListArgs{
		TenantID:       tenantOf(c),
		OrganizationID: organizationOf(c),
		EntityID:       c.Query("entityId"),
		DriverID:       c.Query("driverId"),
		Limit:          limit,
		Offset:         offset,
		OrderBy:        c.Query("orderBy"),
	})
	if err != nil {
		return s.fail(c, "list index entries", err)
	}
	return c.JSON(out)
}

// handleReindex handles POST /v1/index/reindex. The reindex runs to
// completion before the response is written.
func (s *Server) handleReindex(c *fiber.Ctx) error {
	var req ReindexRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return errorJSON(c, fiber.StatusBadRequest, "invalid request body")
		}
	}

	args := indexer.ReindexArgs{
		EntityID:       req.EntityID,
		TenantID:       tenantOf(c),
		OrganizationID: organizationOf(c),
		SkipPurge:      req.PurgeFirst != nil && !*req.PurgeFirst,
	}

	if args.EntityID != "" {
		result, err := s.indexer.ReindexEntity(c.UserContext(), args)
		if err != nil {
			return s.fail(c, "reindex", err)
		}
		return c.JSON(ReindexResponse{Results: []indexer.ReindexResult{result}})
	}

	results, err := s.indexer.ReindexAll(c.UserContext(), args)
	if err != nil {
		return s.fail(c, "reindex", err)
	}
	if results == nil {
		results = []indexer.ReindexResult{}
	}
	return c.JSON(ReindexResponse{Results: results})
}

// handleIndexRecord handles POST /v1/index/records/:entityId/:recordId.
func (s *Server) handleIndexRecord(c *fiber.Ctx) error {
	ref := s.recordRef(c)
	outcome, err := s.indexer.IndexRecord(c.UserContext(), ref)
	if err != nil {
		return s.fail(c, "index record", err)
	}
	return c.JSON(RecordResponse{EntityID: ref.EntityID, RecordID: ref.RecordID, Outcome: outcome})
}

// handleDeleteRecord handles DELETE /v1/index/records/:entityId/:recordId.
func (s *Server) handleDeleteRecord(c *fiber.Ctx) error {
	if err := s.indexer.DeleteRecord(c.UserContext(), s.recordRef(c)); err != nil {
		return s.fail(c, "delete record", err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) recordRef(c *fiber.Ctx) indexer.RecordRef {
	return indexer.RecordRef{
		EntityID:       c.Params("entityId"),
		RecordID:       c.Params("recordId"),
		TenantID:       tenantOf(c),
		OrganizationID: organizationOf(c),
	}
}

func intQuery(c *fiber.Ctx, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, strconv.ErrRange
	}
	return n, nil
}
