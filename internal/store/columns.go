package store

import (
	"strings"

	"github.com/sells-group/venue-enricher/internal/model"
)

// Columns maps the logical venue attributes onto physical column names.
// Empty entries fall back to DefaultColumns.
type Columns struct {
	Key       string            `yaml:"key" mapstructure:"key"`
	Name      string            `yaml:"name" mapstructure:"name"`
	Website   string            `yaml:"website" mapstructure:"website"`
	City      string            `yaml:"city" mapstructure:"city"`
	Country   string            `yaml:"country" mapstructure:"country"`
	Category  string            `yaml:"category" mapstructure:"category"`
	Status    string            `yaml:"status" mapstructure:"status"`
	UpdatedAt string            `yaml:"updated_at" mapstructure:"updated_at"`
	Notes     string            `yaml:"notes" mapstructure:"notes"`
	Segment   string            `yaml:"segment" mapstructure:"segment"`
	Fields    map[string]string `yaml:"fields" mapstructure:"fields"`
}

// DefaultColumns matches the layout of the original venue tables, where the
// venue name doubles as the row key.
func DefaultColumns() Columns {
	return Columns{
		Key:       "name",
		Name:      "name",
		Website:   "domain",
		City:      "city",
		Country:   "country",
		Category:  "category",
		Status:    "enrichment_status",
		UpdatedAt: "last_updated",
		Notes:     "notes",
		Segment:   "segment",
	}
}

// WithDefaults fills every empty name from DefaultColumns.
func (c Columns) WithDefaults() Columns {
	d := DefaultColumns()
	pick := func(v, def string) string {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
		return def
	}
	out := Columns{
		Key:       pick(c.Key, d.Key),
		Name:      pick(c.Name, d.Name),
		Website:   pick(c.Website, d.Website),
		City:      pick(c.City, d.City),
		Country:   pick(c.Country, d.Country),
		Category:  pick(c.Category, d.Category),
		Status:    pick(c.Status, d.Status),
		UpdatedAt: pick(c.UpdatedAt, d.UpdatedAt),
		Notes:     pick(c.Notes, d.Notes),
		Segment:   pick(c.Segment, d.Segment),
		Fields:    make(map[string]string, len(c.Fields)),
	}
	for k, v := range c.Fields {
		if v = strings.TrimSpace(v); v != "" {
			out.Fields[k] = v
		}
	}
	return out
}

// Field returns the column holding a target field.
func (c Columns) Field(f model.Field) string {
	if col, ok := c.Fields[string(f)]; ok && col != "" {
		return col
	}
	return string(f)
}

// Source returns the provenance column for a target field.
func (c Columns) Source(f model.Field) string {
	return c.Field(f) + "_source"
}
