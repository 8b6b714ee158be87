package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/vecindex/pkg/eventstream"
)

// handleEvent handles POST /v1/events. The tenant always comes from the
// request header; a tenant in the body is overwritten.
func (s *Server) handleEvent(c *fiber.Ctx) error {
	var event eventstream.RecordEvent
	if err := c.BodyParser(&event); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "invalid request body")
	}
	event.TenantID = tenantOf(c)
	if event.OrganizationID == "" {
		event.OrganizationID = organizationOf(c)
	}
	if event.SchemaVersion == 0 {
		event.SchemaVersion = eventstream.SchemaVersionV1
	}

	if err := event.Validate(); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, err.Error())
	}

	if !s.config.Events.Enqueue(&event) {
		return errorJSON(c, fiber.StatusServiceUnavailable, "event queue is full")
	}
	return c.SendStatus(fiber.StatusAccepted)
}
