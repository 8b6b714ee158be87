package entity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/papercomputeco/vecindex/pkg/vector"
)

// customFieldPrefix addresses a custom field from a Template field list.
const customFieldPrefix = "custom."

var placeholderPattern = regexp.MustCompile(`\{([A-Za-z0-9_.]+)\}`)

// Template is a declarative entity described by field names instead of
// code. It backs the [[entities]] sections of the config file.
type Template struct {
	// Fields are embedded as "field: value" lines in order. A "custom."
	// prefix reads a custom field. An empty list leaves source building to
	// the indexer's generic builder.
	Fields []string `toml:"fields" mapstructure:"fields"`

	TitleField    string `toml:"title_field" mapstructure:"title_field"`
	SubtitleField string `toml:"subtitle_field" mapstructure:"subtitle_field"`
	Icon          string `toml:"icon" mapstructure:"icon"`
	Badge         string `toml:"badge" mapstructure:"badge"`

	// URLTemplate expands {field} placeholders from the record, e.g.
	// "/products/{id}". {id} falls back to the record id.
	URLTemplate string `toml:"url" mapstructure:"url"`
}

// Config returns the entity configuration backed by t.
func (t Template) Config(entityID, driverID string) Config {
	c := Config{EntityID: entityID, DriverID: driverID}
	if len(t.Fields) > 0 {
		c.Source = t
	}
	if t.TitleField != "" {
		c.Formatter = t
	}
	if t.URLTemplate != "" {
		c.URL = t
	}
	return c
}

// BuildSource returns nil when every configured field is empty.
func (t Template) BuildSource(_ context.Context, hc HookContext) (*Source, error) {
	lines := make([]string, 0, len(t.Fields))
	for _, field := range t.Fields {
		value := FormatValue(t.lookup(hc, field))
		if value == "" {
			continue
		}
		lines = append(lines, field+": "+value)
	}
	if len(lines) == 0 {
		return nil, nil
	}
	return &Source{Input: lines}, nil
}

func (t Template) FormatResult(_ context.Context, hc HookContext) (*vector.Presenter, error) {
	title := FormatValue(t.lookup(hc, t.TitleField))
	if title == "" {
		return nil, nil
	}
	return &vector.Presenter{
		Title:    title,
		Subtitle: FormatValue(t.lookup(hc, t.SubtitleField)),
		Icon:     t.Icon,
		Badge:    t.Badge,
	}, nil
}

func (t Template) ResolveURL(_ context.Context, hc HookContext) (string, error) {
	var missing string
	out := placeholderPattern.ReplaceAllStringFunc(t.URLTemplate, func(m string) string {
		field := m[1 : len(m)-1]
		value := FormatValue(t.lookup(hc, field))
		if value == "" && field == "id" {
			value = hc.RecordID
		}
		if value == "" {
			missing = field
		}
		return url.PathEscape(value)
	})
	if missing != "" {
		return "", fmt.Errorf("url template %q: field %q is empty", t.URLTemplate, missing)
	}
	return out, nil
}

func (t Template) lookup(hc HookContext, field string) any {
	if field == "" {
		return nil
	}
	if key, ok := strings.CutPrefix(field, customFieldPrefix); ok {
		return hc.CustomFields[key]
	}
	return hc.Record[field]
}

// FormatValue renders a record value as a single line of text. Lists are
// comma-joined, nil renders empty and numbers keep plain decimal digits.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			if s := FormatValue(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	case []string:
		return strings.Join(val, ", ")
	default:
		return strings.TrimSpace(fmt.Sprint(val))
	}
}

var (
	_ SourceBuilder   = Template{}
	_ ResultFormatter = Template{}
	_ URLResolver     = Template{}
)
