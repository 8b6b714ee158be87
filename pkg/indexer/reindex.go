package indexer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/papercomputeco/vecindex/pkg/records"
)

// ReindexArgs scopes a reindex.
type ReindexArgs struct {
	EntityID       string `json:"entityId,omitempty"`
	TenantID       string `json:"tenantId"`
	OrganizationID string `json:"organizationId,omitempty"`

	// SkipPurge keeps existing documents instead of purging the entity first.
	// OrganizationID only narrows the records read when SkipPurge is set.
	SkipPurge bool `json:"skipPurge,omitempty"`
}

// ReindexResult summarizes the reindex of one entity.
type ReindexResult struct {
	EntityID  string        `json:"entityId"`
	Purged    bool          `json:"purged"`
	Pages     int           `json:"pages"`
	Indexed   int           `json:"indexed"`
	Unchanged int           `json:"unchanged"`
	Ignored   int           `json:"ignored"`
	Duration  time.Duration `json:"duration"`
}

// ReindexEntity rebuilds the documents of one entity for a tenant. Records
// are read page by page until a short page. Records that are not indexable
// keep whatever the purge left, which is nothing unless SkipPurge is set.
//
// Purge removes the documents of every organization in the tenant, so a
// purging reindex repopulates the whole tenant and ignores
// OrganizationID. Documents keep the organization of their record.
func (s *Service) ReindexEntity(ctx context.Context, args ReindexArgs) (ReindexResult, error) {
	result := ReindexResult{EntityID: args.EntityID}
	start := time.Now()

	if err := ctx.Err(); err != nil {
		return result, err
	}

	reg, ok := s.entities.Lookup(args.EntityID)
	if !ok {
		return result, fmt.Errorf("%w: %s", ErrEntityNotRegistered, args.EntityID)
	}

	driver, err := s.driver(ctx, reg.DriverID)
	if err != nil {
		return result, err
	}

	log := s.logger.With(zap.String("entity_id", args.EntityID), zap.String("driver", driver.ID()))
	log.Info("reindex started",
		zap.Bool("purge", !args.SkipPurge),
		zap.String("organization_id", args.OrganizationID),
	)

	if !args.SkipPurge {
		if err := driver.Purge(ctx, args.EntityID, args.TenantID); err != nil {
			return result, fmt.Errorf("purging %s: %w", args.EntityID, err)
		}
		result.Purged = true
	}

	organizationID := args.OrganizationID
	if result.Purged {
		organizationID = ""
	}

	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		rows, err := s.records.Query(ctx, args.EntityID, records.QueryOptions{
			TenantID:            args.TenantID,
			OrganizationID:      organizationID,
			Page:                page,
			PageSize:            s.pageSize,
			IncludeCustomFields: true,
		})
		if err != nil {
			return result, fmt.Errorf("fetching page %d of %s: %w", page, args.EntityID, err)
		}
		result.Pages++

		for _, row := range rows {
			ref := RecordRef{
				EntityID:       args.EntityID,
				RecordID:       row.ID(),
				TenantID:       args.TenantID,
				OrganizationID: row.OrganizationID(),
			}
			outcome, err := s.indexExisting(ctx, reg, driver, ref, row, true)
			if err != nil {
				return result, err
			}
			switch outcome {
			case OutcomeIndexed:
				result.Indexed++
			case OutcomeUnchanged:
				result.Unchanged++
			default:
				result.Ignored++
			}
		}

		if len(rows) < s.pageSize {
			break
		}
	}

	result.Duration = time.Since(start)
	log.Info("reindex finished",
		zap.Int("pages", result.Pages),
		zap.Int("indexed", result.Indexed),
		zap.Int("unchanged", result.Unchanged),
		zap.Int("ignored", result.Ignored),
		zap.Duration("duration", result.Duration),
	)
	return result, nil
}

// ReindexAll reindexes every registered entity. Entities run one at a time
// unless ReindexConcurrency allows more. Each entity is handled by a single
// goroutine, so its purge always precedes its pages. The first failure
// cancels the remaining entities.
func (s *Service) ReindexAll(ctx context.Context, args ReindexArgs) ([]ReindexResult, error) {
	ids := s.entities.EntityIDs()
	results := make([]ReindexResult, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.reindexConcurrency)

	for i, id := range ids {
		entityArgs := args
		entityArgs.EntityID = id
		g.Go(func() error {
			res, err := s.ReindexEntity(gctx, entityArgs)
			results[i] = res
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}
