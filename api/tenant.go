package api

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

const (
	// HeaderTenant carries the tenant every request is scoped to.
	HeaderTenant = "X-Tenant-Id"

	// HeaderOrganization optionally narrows a request to one organization.
	HeaderOrganization = "X-Organization-Id"

	localTenant       = "tenant"
	localOrganization = "organization"
)

// requireTenant rejects requests without a tenant. Authentication happens
// upstream; the headers are trusted.
func (s *Server) requireTenant(c *fiber.Ctx) error {
	tenant := strings.TrimSpace(c.Get(HeaderTenant))
	if tenant == "" {
		return errorJSON(c, fiber.StatusUnauthorized, "missing "+HeaderTenant+" header")
	}
	c.Locals(localTenant, tenant)
	c.Locals(localOrganization, strings.TrimSpace(c.Get(HeaderOrganization)))
	return c.Next()
}

func tenantOf(c *fiber.Ctx) string {
	v, _ := c.Locals(localTenant).(string)
	return v
}

func organizationOf(c *fiber.Ctx) string {
	v, _ := c.Locals(localOrganization).(string)
	return v
}
