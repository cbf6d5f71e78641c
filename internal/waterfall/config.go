package waterfall

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/venue-enricher/internal/model"
	"github.com/sells-group/venue-enricher/internal/vendor"
)

// DefaultPriority is the global source order, highest first. Specialised
// APIs rank above scraped signals, which rank above model guesses.
var DefaultPriority = []string{
	"ticketmaster_api",
	"eventbrite_api",
	"website",
	"wikidata",
	"google_places",
	"web_search",
	"perplexity",
	"llm",
	"llm_revenue",
}

// Config is the top-level waterfall configuration.
type Config struct {
	Defaults DefaultConfig          `yaml:"defaults"`
	Priority []string               `yaml:"priority"`
	Fields   map[string]FieldConfig `yaml:"fields"`
}

// DefaultConfig holds global defaults.
type DefaultConfig struct {
	ConfidenceThreshold float64 `yaml:"min_confidence"`
}

// FieldConfig configures the chain for one field. Sources listed here are
// tried before the global priority list.
type FieldConfig struct {
	ConfidenceThreshold float64        `yaml:"min_confidence"`
	Sources             []SourceConfig `yaml:"sources"`
}

// SourceConfig names one source in a field chain.
type SourceConfig struct {
	Name string `yaml:"name"`
}

// UnmarshalYAML accepts either "- website" or "- {name: website}".
func (s *SourceConfig) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		s.Name = n.Value
		return nil
	}
	type plain SourceConfig
	return n.Decode((*plain)(s))
}

// Default returns the built-in configuration: the default priority
// and the vendor confidence floor.
func Default() *Config {
	return &Config{
		Priority: append([]string(nil), DefaultPriority...),
		Fields: map[string]FieldConfig{
			string(model.FieldTicketVendor): {ConfidenceThreshold: vendor.MinScore},
		},
	}
}

// LoadConfig reads waterfall config from a YAML file. Missing pieces are
// taken from Default.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "waterfall: read config %s", path)
	}

	// The YAML has a top-level "waterfall" key
	var wrapper struct {
		Waterfall Config `yaml:"waterfall"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "waterfall: parse config")
	}

	cfg := &wrapper.Waterfall
	for key := range cfg.Fields {
		if _, ok := model.ParseField(key); !ok {
			return nil, eris.Errorf("waterfall: unknown field %q", key)
		}
	}
	return cfg.withDefaults(), nil
}

// withDefaults fills the priority list and the vendor threshold when the
// file leaves them out.
func (c *Config) withDefaults() *Config {
	def := Default()
	if len(c.Priority) == 0 {
		c.Priority = def.Priority
	}
	if c.Fields == nil {
		c.Fields = make(map[string]FieldConfig)
	}
	for key, fc := range def.Fields {
		cur, ok := c.Fields[key]
		if !ok {
			c.Fields[key] = fc
			continue
		}
		if cur.ConfidenceThreshold == 0 && c.Defaults.ConfidenceThreshold == 0 {
			cur.ConfidenceThreshold = fc.ConfidenceThreshold
			c.Fields[key] = cur
		}
	}
	for key, fc := range c.Fields {
		if fc.ConfidenceThreshold == 0 {
			fc.ConfidenceThreshold = c.Defaults.ConfidenceThreshold
		}
		c.Fields[key] = fc
	}
	return c
}

// SetThreshold overrides one field's minimum confidence.
func (c *Config) SetThreshold(f model.Field, min float64) {
	if c.Fields == nil {
		c.Fields = make(map[string]FieldConfig)
	}
	fc := c.Fields[string(f)]
	fc.ConfidenceThreshold = min
	c.Fields[string(f)] = fc
}

// GetFieldConfig returns the config for a field, falling back to defaults.
func (c *Config) GetFieldConfig(fieldKey string) FieldConfig {
	if fc, ok := c.Fields[fieldKey]; ok {
		return fc
	}
	return FieldConfig{
		ConfidenceThreshold: c.Defaults.ConfidenceThreshold,
	}
}
