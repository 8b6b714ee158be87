package api

import (
	"sort"

	"github.com/gofiber/fiber/v2"
)

// HealthResponse is the body of GET /v1/health.
type HealthResponse struct {
	Status    string            `json:"status"`
	Embedding EmbeddingHealth   `json:"embedding"`
	Drivers   map[string]string `json:"drivers"`
	Entities  []string          `json:"entities"`
}

// EmbeddingHealth describes the active embedding provider. Credentials are
// never included.
type EmbeddingHealth struct {
	Provider  string `json:"provider"`
	Model     string `json:"model,omitempty"`
	Dimension int    `json:"dimension,omitempty"`
	Available bool   `json:"available"`
}

const (
	statusOK       = "ok"
	statusDegraded = "degraded"
	driverReady    = "ready"
)

// handleHealth handles GET /v1/health. It answers 503 when search could not
// be served: the embedding provider is unavailable or a driver is not ready.
func (s *Server) handleHealth(c *fiber.Ctx) error {
	cfg := s.indexer.EmbeddingConfig()
	resp := HealthResponse{
		Status: statusOK,
		Embedding: EmbeddingHealth{
			Provider:  cfg.ProviderID,
			Model:     cfg.Model,
			Dimension: cfg.EffectiveDimension(),
			Available: s.indexer.EmbeddingAvailable(),
		},
		Drivers:  map[string]string{},
		Entities: s.indexer.ListEnabledEntities(),
	}
	if resp.Entities == nil {
		resp.Entities = []string{}
	}
	sort.Strings(resp.Entities)

	if !resp.Embedding.Available {
		resp.Status = statusDegraded
	}
	for id, err := range s.indexer.Readiness(c.UserContext()) {
		if err != nil {
			resp.Drivers[id] = err.Error()
			resp.Status = statusDegraded
			continue
		}
		resp.Drivers[id] = driverReady
	}

	if resp.Status != statusOK {
		return c.Status(fiber.StatusServiceUnavailable).JSON(resp)
	}
	return c.JSON(resp)
}
