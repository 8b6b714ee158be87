package indexer

import (
	"context"
	"slices"
	"sort"

	"go.uber.org/zap"

	"github.com/papercomputeco/vecindex/pkg/entity"
	"github.com/papercomputeco/vecindex/pkg/records"
	"github.com/papercomputeco/vecindex/pkg/vector"
)

var (
	// identityFields lead the generic source in this order.
	identityFields = []string{"title", "name", "displayName", "summary", "subject"}

	// bookkeepingFields never reach the generic source.
	bookkeepingFields = []string{
		"id", "tenant_id", "tenantId", "organization_id", "organizationId",
		"created_at", "createdAt", "updated_at", "updatedAt", "deleted_at", "deletedAt",
	}

	titleFields    = []string{"title", "name", "displayName", "display_name", "label", "subject"}
	subtitleFields = []string{"description", "summary", "subtitle", "email"}
)

// hookContext splits a raw row into the context handed to entity hooks. The
// row's own organization wins over the requested one.
func hookContext(entityID, recordID, tenantID, organizationID string, row records.RawRow) entity.HookContext {
	record, custom := records.Split(row)
	if id := row.ID(); id != "" {
		recordID = id
	}
	if org := row.OrganizationID(); org != "" {
		organizationID = org
	}
	return entity.HookContext{
		EntityID:       entityID,
		RecordID:       recordID,
		TenantID:       tenantID,
		OrganizationID: organizationID,
		Record:         record,
		CustomFields:   custom,
	}
}

// buildSource runs the entity's builder, or the generic one when it has none.
func buildSource(ctx context.Context, cfg entity.Config, hc entity.HookContext) (*entity.Source, error) {
	if cfg.Source != nil {
		return cfg.Source.BuildSource(ctx, hc)
	}
	return defaultSource(hc), nil
}

// defaultSource renders "label: value" lines: identity fields first, then
// the remaining plain fields sorted by name, then custom fields. It never
// returns an empty input.
func defaultSource(hc entity.HookContext) *entity.Source {
	var lines []string
	add := func(label string, v any) {
		if value := entity.FormatValue(v); value != "" {
			lines = append(lines, label+": "+value)
		}
	}

	for _, f := range identityFields {
		add(f, hc.Record[f])
	}
	for _, f := range sortedKeys(hc.Record) {
		if slices.Contains(identityFields, f) || slices.Contains(bookkeepingFields, f) {
			continue
		}
		add(f, hc.Record[f])
	}
	for _, f := range sortedKeys(hc.CustomFields) {
		add("custom."+f, hc.CustomFields[f])
	}

	if len(lines) == 0 {
		lines = []string{hc.EntityID + "#" + hc.RecordID}
	}
	return &entity.Source{Input: lines}
}

// fallbackPresenter guesses a presenter from common field names.
func fallbackPresenter(hc entity.HookContext) *vector.Presenter {
	title := firstValue(hc.Record, titleFields)
	if title == "" {
		return nil
	}
	return &vector.Presenter{
		Title:    title,
		Subtitle: firstValue(hc.Record, subtitleFields),
	}
}

func firstValue(m map[string]any, fields []string) string {
	for _, f := range fields {
		if v := entity.FormatValue(m[f]); v != "" {
			return v
		}
	}
	return ""
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// presentation is what a record looks like in results.
type presentation struct {
	Presenter *vector.Presenter
	Links     []vector.Link
	URL       string
}

// present resolves presentation for a live record. Each part falls back from
// the entity's hook to the built source, then to the generic heuristic, then
// to what was stored with the document. Hook failures are logged and fall
// through so that presentation never fails a request.
func (s *Service) present(ctx context.Context, cfg entity.Config, hc entity.HookContext, src *entity.Source, stored presentation) presentation {
	var out presentation

	if cfg.Formatter != nil {
		p, err := cfg.Formatter.FormatResult(ctx, hc)
		if err != nil {
			s.hookFailed("format_result", hc, err)
		}
		out.Presenter = p
	}
	if out.Presenter == nil && src != nil {
		out.Presenter = src.Presenter
	}
	if out.Presenter == nil {
		out.Presenter = fallbackPresenter(hc)
	}
	if out.Presenter == nil {
		out.Presenter = stored.Presenter
	}
	if out.Presenter == nil {
		out.Presenter = &vector.Presenter{Title: hc.RecordID}
	}

	if cfg.Links != nil {
		links, err := cfg.Links.ResolveLinks(ctx, hc)
		if err != nil {
			s.hookFailed("resolve_links", hc, err)
		}
		out.Links = links
	}
	if out.Links == nil && src != nil {
		out.Links = src.Links
	}
	if out.Links == nil {
		out.Links = stored.Links
	}

	if cfg.URL != nil {
		u, err := cfg.URL.ResolveURL(ctx, hc)
		if err != nil {
			s.hookFailed("resolve_url", hc, err)
		}
		out.URL = u
	}
	if out.URL == "" {
		out.URL = stored.URL
	}

	return out
}

func (s *Service) hookFailed(hook string, hc entity.HookContext, err error) {
	s.logger.Warn("entity hook failed",
		zap.String("hook", hook),
		zap.String("entity_id", hc.EntityID),
		zap.String("record_id", hc.RecordID),
		zap.Error(err),
	)
}
