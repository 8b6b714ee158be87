package indexer

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"go.uber.org/zap"

	"github.com/papercomputeco/vecindex/pkg/checksum"
	"github.com/papercomputeco/vecindex/pkg/embeddings"
	"github.com/papercomputeco/vecindex/pkg/entity"
	"github.com/papercomputeco/vecindex/pkg/records"
	"github.com/papercomputeco/vecindex/pkg/vector"
)

// RecordRef identifies one record of an entity within a tenant.
type RecordRef struct {
	EntityID       string `json:"entityId"`
	RecordID       string `json:"recordId"`
	TenantID       string `json:"tenantId"`
	OrganizationID string `json:"organizationId,omitempty"`
}

// Outcome is what indexing did with one record.
type Outcome string

const (
	OutcomeIndexed   Outcome = "indexed"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeRemoved   Outcome = "removed"
	OutcomeIgnored   Outcome = "ignored"
)

// IndexRecord brings the document of one record up to date with the live
// record. Unregistered entities are ignored. A record that no longer exists
// has its document removed.
func (s *Service) IndexRecord(ctx context.Context, ref RecordRef) (Outcome, error) {
	reg, ok := s.entities.Lookup(ref.EntityID)
	if !ok {
		s.logger.Debug("index request for unregistered entity", zap.String("entity_id", ref.EntityID))
		return OutcomeIgnored, nil
	}

	driver, err := s.driver(ctx, reg.DriverID)
	if err != nil {
		return "", err
	}

	row, err := records.FetchOne(ctx, s.records, ref.EntityID, ref.RecordID, records.QueryOptions{
		TenantID:            ref.TenantID,
		OrganizationID:      ref.OrganizationID,
		IncludeCustomFields: true,
	})
	if errors.Is(err, records.ErrRecordNotFound) {
		if err := driver.Delete(ctx, ref.EntityID, ref.RecordID, ref.TenantID); err != nil {
			return "", fmt.Errorf("deleting document of missing record %s/%s: %w", ref.EntityID, ref.RecordID, err)
		}
		s.logger.Debug("record gone, document removed",
			zap.String("entity_id", ref.EntityID),
			zap.String("record_id", ref.RecordID),
		)
		return OutcomeRemoved, nil
	}
	if err != nil {
		return "", fmt.Errorf("fetching record %s/%s: %w", ref.EntityID, ref.RecordID, err)
	}

	return s.indexExisting(ctx, reg, driver, ref, row, false)
}

// DeleteRecord removes the document of one record. Unregistered entities
// are ignored.
func (s *Service) DeleteRecord(ctx context.Context, ref RecordRef) error {
	reg, ok := s.entities.Lookup(ref.EntityID)
	if !ok {
		return nil
	}

	driver, err := s.driver(ctx, reg.DriverID)
	if err != nil {
		return err
	}
	if err := driver.Delete(ctx, ref.EntityID, ref.RecordID, ref.TenantID); err != nil {
		return fmt.Errorf("deleting document %s/%s: %w", ref.EntityID, ref.RecordID, err)
	}
	return nil
}

// indexExisting indexes a fetched row. The embedding provider is only called
// when the checksum of the record differs from the stored one. skipDelete
// keeps the document of a record that is not indexable, for paginated
// reindexing where a purge already ran.
func (s *Service) indexExisting(
	ctx context.Context,
	reg entity.Registered,
	driver vector.Driver,
	ref RecordRef,
	row records.RawRow,
	skipDelete bool,
) (Outcome, error) {
	hc := hookContext(ref.EntityID, ref.RecordID, ref.TenantID, ref.OrganizationID, row)
	log := s.logger.With(
		zap.String("entity_id", hc.EntityID),
		zap.String("record_id", hc.RecordID),
	)

	src, err := buildSource(ctx, reg.Config, hc)
	if err != nil {
		return "", fmt.Errorf("building source for %s/%s: %w", hc.EntityID, hc.RecordID, err)
	}
	if src == nil {
		if skipDelete {
			return OutcomeIgnored, nil
		}
		if err := driver.Delete(ctx, hc.EntityID, hc.RecordID, hc.TenantID); err != nil {
			return "", fmt.Errorf("deleting document of unindexable record %s/%s: %w", hc.EntityID, hc.RecordID, err)
		}
		log.Debug("record not indexable, document removed")
		return OutcomeRemoved, nil
	}

	sum, err := checksum.Compute(checksumSource(src, hc))
	if err != nil {
		return "", fmt.Errorf("checksum for %s/%s: %w", hc.EntityID, hc.RecordID, err)
	}

	stored, found, err := driver.GetChecksum(ctx, hc.EntityID, hc.RecordID, hc.TenantID)
	if err != nil {
		return "", fmt.Errorf("reading checksum of %s/%s: %w", hc.EntityID, hc.RecordID, err)
	}
	if found && stored == sum {
		s.metrics.IndexSkipped.WithLabelValues(hc.EntityID).Inc()
		log.Debug("record unchanged, skipping embedding")
		return OutcomeUnchanged, nil
	}

	if !s.embeddings.Available() {
		return "", fmt.Errorf("%w: cannot index %s/%s", embeddings.ErrEmbeddingUnavailable, hc.EntityID, hc.RecordID)
	}

	s.metrics.EmbeddingRequests.WithLabelValues("index").Inc()
	vec, err := s.embeddings.CreateEmbedding(ctx, src.Input)
	if err != nil {
		return "", fmt.Errorf("embedding %s/%s: %w", hc.EntityID, hc.RecordID, err)
	}

	p := s.present(ctx, reg.Config, hc, src, presentation{})
	now := s.now()
	doc := vector.Document{
		DriverID:       driver.ID(),
		EntityID:       hc.EntityID,
		RecordID:       hc.RecordID,
		TenantID:       hc.TenantID,
		OrganizationID: hc.OrganizationID,
		Checksum:       sum,
		Embedding:      vec,
		URL:            p.URL,
		Presenter:      p.Presenter,
		Links:          p.Links,
		Payload:        src.Payload,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := driver.Upsert(ctx, doc); err != nil {
		return "", fmt.Errorf("upserting %s/%s: %w", hc.EntityID, hc.RecordID, err)
	}

	s.metrics.IndexUpserts.WithLabelValues(hc.EntityID).Inc()
	log.Debug("document upserted", zap.String("driver", driver.ID()), zap.Int("dimension", len(vec)))
	return OutcomeIndexed, nil
}

// checksumSource picks what change detection hashes. A ChecksumSource that
// is nil, a typed nil or empty counts as unset and falls back to the record
// and custom fields, so edits are still detected.
func checksumSource(src *entity.Source, hc entity.HookContext) any {
	if !isEmptyValue(src.ChecksumSource) {
		return src.ChecksumSource
	}
	return map[string]any{"record": hc.Record, "customFields": hc.CustomFields}
}

func isEmptyValue(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}
