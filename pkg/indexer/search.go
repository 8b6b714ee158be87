package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/vecindex/pkg/embeddings"
	"github.com/papercomputeco/vecindex/pkg/entity"
	"github.com/papercomputeco/vecindex/pkg/records"
	"github.com/papercomputeco/vecindex/pkg/vector"
)

// SearchArgs is a similarity search request.
type SearchArgs struct {
	Query          string
	Limit          int
	TenantID       string
	OrganizationID string

	// DriverID defaults to the service's default driver.
	DriverID string

	// EntityIDs narrows the search to these entities.
	EntityIDs []string
}

// SearchHit is a ranked result re-hydrated against its live record.
type SearchHit struct {
	EntityID       string            `json:"entityId"`
	RecordID       string            `json:"recordId"`
	OrganizationID string            `json:"organizationId,omitempty"`
	Score          float32           `json:"score"`
	URL            string            `json:"url,omitempty"`
	Presenter      *vector.Presenter `json:"presenter,omitempty"`
	Links          []vector.Link     `json:"links,omitempty"`
	Payload        json.RawMessage   `json:"payload,omitempty"`
}

// SearchOutput is the result of Search.
type SearchOutput struct {
	Query   string      `json:"query"`
	Results []SearchHit `json:"results"`
	Count   int         `json:"count"`
}

// Search embeds the query once, asks the driver for the nearest documents
// of the tenant and re-reads their records, one fetch per entity. Hits
// whose record is gone are dropped and their documents deleted on a best
// effort basis.
func (s *Service) Search(ctx context.Context, args SearchArgs) (*SearchOutput, error) {
	start := time.Now()
	defer func() { s.metrics.SearchDuration.Observe(time.Since(start).Seconds()) }()

	query := strings.TrimSpace(args.Query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if !s.embeddings.Available() {
		return nil, fmt.Errorf("%w: search is disabled", embeddings.ErrEmbeddingUnavailable)
	}

	limit := args.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	driver, err := s.driver(ctx, args.DriverID)
	if err != nil {
		return nil, err
	}

	out := &SearchOutput{Query: query, Results: []SearchHit{}}

	entityIDs := s.searchableEntities(driver.ID(), args.EntityIDs)
	if len(entityIDs) == 0 {
		return out, nil
	}

	vec, err := s.queryEmbedding(ctx, query)
	if err != nil {
		return nil, err
	}

	hits, err := driver.Query(ctx, vec, limit, vector.QueryFilter{
		TenantID:       args.TenantID,
		OrganizationID: args.OrganizationID,
		EntityIDs:      entityIDs,
	})
	if err != nil {
		return nil, fmt.Errorf("querying driver %s: %w", driver.ID(), err)
	}

	s.logger.Debug("search hits",
		zap.String("driver", driver.ID()),
		zap.Int("limit", limit),
		zap.Int("hits", len(hits)),
	)

	byEntity := make(map[string][]string)
	for _, h := range hits {
		byEntity[h.EntityID] = append(byEntity[h.EntityID], h.RecordID)
	}

	live := make(map[string]map[string]records.RawRow, len(byEntity))
	for entityID, ids := range byEntity {
		rows, err := s.fetchLive(ctx, entityID, args.TenantID, args.OrganizationID, ids)
		if err != nil {
			return nil, err
		}
		live[entityID] = rows
	}

	for _, h := range hits {
		reg, ok := s.entities.Lookup(h.EntityID)
		if !ok {
			continue
		}

		row, ok := live[h.EntityID][h.RecordID]
		if !ok {
			s.removeStaleHit(ctx, driver, h, args.TenantID)
			continue
		}

		hc := hookContext(h.EntityID, h.RecordID, args.TenantID, h.OrganizationID, row)
		src := s.liveSource(ctx, reg.Config, hc)
		p := s.present(ctx, reg.Config, hc, src, presentation{Presenter: h.Presenter, Links: h.Links, URL: h.URL})

		out.Results = append(out.Results, SearchHit{
			EntityID:       h.EntityID,
			RecordID:       h.RecordID,
			OrganizationID: h.OrganizationID,
			Score:          h.Score,
			URL:            p.URL,
			Presenter:      p.Presenter,
			Links:          p.Links,
			Payload:        h.Payload,
		})
	}

	out.Count = len(out.Results)
	return out, nil
}

// searchableEntities returns the registered entities stored in driverID,
// narrowed to requested when it is not empty.
func (s *Service) searchableEntities(driverID string, requested []string) []string {
	var ids []string
	for _, id := range s.entities.EntityIDs() {
		reg, _ := s.entities.Lookup(id)
		if reg.DriverID != driverID {
			continue
		}
		if len(requested) > 0 && !slices.Contains(requested, id) {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// queryEmbedding embeds a search query, reusing recent embeddings of the
// same query under the same provider configuration.
func (s *Service) queryEmbedding(ctx context.Context, query string) ([]float32, error) {
	cfg := s.embeddings.Config()
	key := cfg.ProviderID + "\x00" + cfg.Model + "\x00" + strconv.Itoa(cfg.EffectiveDimension()) + "\x00" + query

	if s.queryCache != nil {
		if vec, ok := s.queryCache.Get(key); ok {
			s.metrics.QueryCacheHits.Inc()
			return vec, nil
		}
	}

	s.metrics.EmbeddingRequests.WithLabelValues("search").Inc()
	vec, err := s.embeddings.CreateEmbedding(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	if s.queryCache != nil {
		s.queryCache.Add(key, vec)
	}
	return vec, nil
}

// fetchLive reads the given records of one entity, keyed by record id.
func (s *Service) fetchLive(ctx context.Context, entityID, tenantID, organizationID string, ids []string) (map[string]records.RawRow, error) {
	rows, err := s.records.Query(ctx, entityID, records.QueryOptions{
		TenantID:            tenantID,
		OrganizationID:      organizationID,
		IDs:                 ids,
		IncludeCustomFields: true,
	})
	if err != nil {
		return nil, fmt.Errorf("fetching live records of %s: %w", entityID, err)
	}

	out := make(map[string]records.RawRow, len(rows))
	for _, row := range rows {
		out[row.ID()] = row
	}
	return out, nil
}

// liveSource rebuilds the source of a live record for presentation. A
// failing builder only costs the source-level fallbacks.
func (s *Service) liveSource(ctx context.Context, cfg entity.Config, hc entity.HookContext) *entity.Source {
	if cfg.Formatter != nil && cfg.Links != nil {
		return nil
	}
	src, err := buildSource(ctx, cfg, hc)
	if err != nil {
		s.hookFailed("build_source", hc, err)
		return nil
	}
	return src
}

func (s *Service) removeStaleHit(ctx context.Context, driver vector.Driver, h vector.Hit, tenantID string) {
	log := s.logger.With(
		zap.String("entity_id", h.EntityID),
		zap.String("record_id", h.RecordID),
	)
	if err := driver.Delete(ctx, h.EntityID, h.RecordID, tenantID); err != nil {
		log.Warn("failed to delete stale search hit", zap.Error(err))
		return
	}
	s.metrics.StaleHitsDeleted.WithLabelValues(h.EntityID).Inc()
	log.Debug("stale search hit deleted")
}
