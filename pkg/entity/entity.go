// Package entity describes how business entities take part in the vector
// index: how a record becomes embeddable text, and how a hit is presented
// back to a user.
package entity

import (
	"context"
	"encoding/json"

	"github.com/papercomputeco/vecindex/pkg/vector"
)

// HookContext is handed to every entity hook. Record holds the live record's
// plain fields and CustomFields its custom field values, keyed without the
// storage prefix.
type HookContext struct {
	EntityID       string
	RecordID       string
	TenantID       string
	OrganizationID string

	Record       map[string]any
	CustomFields map[string]any
}

// Source is the embeddable form of one record.
type Source struct {
	// Input is embedded as one request, fragments joined by a blank line.
	Input []string

	// Payload is stored with the document and returned with hits.
	Payload json.RawMessage

	// ChecksumSource replaces the record and custom fields for change
	// detection. A nil, typed nil or empty value leaves the default.
	ChecksumSource any

	Presenter *vector.Presenter
	Links     []vector.Link
}

// SourceBuilder builds a record's Source. A nil Source means the record is
// not indexable.
type SourceBuilder interface {
	BuildSource(ctx context.Context, hc HookContext) (*Source, error)
}

// ResultFormatter builds the presenter of a record.
type ResultFormatter interface {
	FormatResult(ctx context.Context, hc HookContext) (*vector.Presenter, error)
}

// LinkResolver resolves the links of a record.
type LinkResolver interface {
	ResolveLinks(ctx context.Context, hc HookContext) ([]vector.Link, error)
}

// URLResolver resolves the canonical URL of a record.
type URLResolver interface {
	ResolveURL(ctx context.Context, hc HookContext) (string, error)
}

// SourceBuilderFunc adapts a function to SourceBuilder.
type SourceBuilderFunc func(ctx context.Context, hc HookContext) (*Source, error)

func (f SourceBuilderFunc) BuildSource(ctx context.Context, hc HookContext) (*Source, error) {
	return f(ctx, hc)
}

// ResultFormatterFunc adapts a function to ResultFormatter.
type ResultFormatterFunc func(ctx context.Context, hc HookContext) (*vector.Presenter, error)

func (f ResultFormatterFunc) FormatResult(ctx context.Context, hc HookContext) (*vector.Presenter, error) {
	return f(ctx, hc)
}

// LinkResolverFunc adapts a function to LinkResolver.
type LinkResolverFunc func(ctx context.Context, hc HookContext) ([]vector.Link, error)

func (f LinkResolverFunc) ResolveLinks(ctx context.Context, hc HookContext) ([]vector.Link, error) {
	return f(ctx, hc)
}

// URLResolverFunc adapts a function to URLResolver.
type URLResolverFunc func(ctx context.Context, hc HookContext) (string, error)

func (f URLResolverFunc) ResolveURL(ctx context.Context, hc HookContext) (string, error) {
	return f(ctx, hc)
}

// Config is the index configuration of one entity. Every hook is optional.
type Config struct {
	EntityID string

	// Disabled entities are left out of the registry.
	Disabled bool

	// DriverID overrides the group's default driver.
	DriverID string

	Source    SourceBuilder
	Formatter ResultFormatter
	Links     LinkResolver
	URL       URLResolver
}

// WithHooks returns a Config for entityID whose hooks are every hook
// interface h implements.
func WithHooks(entityID string, h any) Config {
	c := Config{EntityID: entityID}
	if v, ok := h.(SourceBuilder); ok {
		c.Source = v
	}
	if v, ok := h.(ResultFormatter); ok {
		c.Formatter = v
	}
	if v, ok := h.(LinkResolver); ok {
		c.Links = v
	}
	if v, ok := h.(URLResolver); ok {
		c.URL = v
	}
	return c
}

// Group is the set of entity configurations contributed by one module.
type Group struct {
	Module          string
	DefaultDriverID string
	Entities        []Config
}
