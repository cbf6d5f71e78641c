package config

import (
	"slices"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/venue-enricher/internal/cost"
	"github.com/sells-group/venue-enricher/internal/enricher"
	"github.com/sells-group/venue-enricher/internal/model"
	"github.com/sells-group/venue-enricher/internal/resilience"
	"github.com/sells-group/venue-enricher/internal/store"
)

// Config holds the full application configuration.
type Config struct {
	Warehouse    WarehouseConfig    `yaml:"warehouse" mapstructure:"warehouse"`
	Columns      store.Columns      `yaml:"columns" mapstructure:"columns"`
	Batch        BatchConfig        `yaml:"batch" mapstructure:"batch"`
	Website      WebsiteConfig      `yaml:"website" mapstructure:"website"`
	Ticketmaster TicketmasterConfig `yaml:"ticketmaster" mapstructure:"ticketmaster"`
	Eventbrite   EventbriteConfig   `yaml:"eventbrite" mapstructure:"eventbrite"`
	Wikidata     WikidataConfig     `yaml:"wikidata" mapstructure:"wikidata"`
	Places       PlacesConfig       `yaml:"places" mapstructure:"places"`
	VendorSearch EnricherConfig     `yaml:"vendor_search" mapstructure:"vendor_search"`
	Jina         JinaConfig         `yaml:"jina" mapstructure:"jina"`
	Firecrawl    FirecrawlConfig    `yaml:"firecrawl" mapstructure:"firecrawl"`
	Perplexity   PerplexityConfig   `yaml:"perplexity" mapstructure:"perplexity"`
	LLM          LLMConfig          `yaml:"llm" mapstructure:"llm"`
	Revenue      EnricherConfig     `yaml:"revenue" mapstructure:"revenue"`
	Merge        MergeConfig        `yaml:"merge" mapstructure:"merge"`
	Pricing      cost.Rates         `yaml:"pricing" mapstructure:"pricing"`
	Server       ServerConfig       `yaml:"server" mapstructure:"server"`
	Log          LogConfig          `yaml:"log" mapstructure:"log"`
}

// WarehouseConfig selects the table backend.
type WarehouseConfig struct {
	Driver      string            `yaml:"driver" mapstructure:"driver"`
	ProjectID   string            `yaml:"project_id" mapstructure:"project_id"`
	DatasetID   string            `yaml:"dataset_id" mapstructure:"dataset_id"`
	Table       string            `yaml:"table" mapstructure:"table"`
	Location    string            `yaml:"location" mapstructure:"location"`
	DatabaseURL string            `yaml:"database_url" mapstructure:"database_url"`
	Pool        *store.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// StoreConfig converts the warehouse and column settings for store.Open.
func (c *Config) StoreConfig() store.Config {
	return store.Config{
		Driver:      c.Warehouse.Driver,
		DatabaseURL: c.Warehouse.DatabaseURL,
		ProjectID:   c.Warehouse.ProjectID,
		DatasetID:   c.Warehouse.DatasetID,
		Table:       c.Warehouse.Table,
		Location:    c.Warehouse.Location,
		Columns:     c.Columns,
		Pool:        c.Warehouse.Pool,
	}
}

// BatchConfig configures the runner loop.
type BatchConfig struct {
	DefaultLimit   int  `yaml:"default_limit" mapstructure:"default_limit"`
	MaxLimit       int  `yaml:"max_limit" mapstructure:"max_limit"`
	RowDelayMinMs  int  `yaml:"row_delay_min_ms" mapstructure:"row_delay_min_ms"`
	RowDelayMaxMs  int  `yaml:"row_delay_max_ms" mapstructure:"row_delay_max_ms"`
	StopOnQuota    bool `yaml:"stop_on_quota" mapstructure:"stop_on_quota"`
	TouchUnmatched bool `yaml:"touch_unmatched" mapstructure:"touch_unmatched"`
	WriteAttempts  int  `yaml:"write_attempts" mapstructure:"write_attempts"`
}

// RetryConfig is the YAML form of resilience.RetryConfig.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// EnricherConfig holds the settings every enricher section shares.
type EnricherConfig struct {
	Enabled          bool        `yaml:"enabled" mapstructure:"enabled"`
	TimeoutSecs      int         `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	Retry            RetryConfig `yaml:"retry" mapstructure:"retry"`
	BreakerThreshold int         `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerResetSecs int         `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
	BaseURL          string      `yaml:"base_url" mapstructure:"base_url"`
	RateLimit        float64     `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// Timeout returns the per-call deadline.
func (e EnricherConfig) Timeout() time.Duration {
	return time.Duration(e.TimeoutSecs) * time.Second
}

// RetryPolicy converts the retry block.
func (e EnricherConfig) RetryPolicy() resilience.RetryConfig {
	return resilience.FromRetryConfig(e.Retry.MaxAttempts, e.Retry.InitialBackoffMs, e.Retry.MaxBackoffMs)
}

// BreakerPolicy converts the breaker settings.
func (e EnricherConfig) BreakerPolicy() resilience.CircuitBreakerConfig {
	return resilience.FromCircuitConfig(e.BreakerThreshold, e.BreakerResetSecs)
}

// WebsiteConfig configures the website scraper.
type WebsiteConfig struct {
	EnricherConfig `yaml:",inline" mapstructure:",squash"`
	MaxPages       int      `yaml:"max_pages" mapstructure:"max_pages"`
	HostRPS        float64  `yaml:"host_rps" mapstructure:"host_rps"`
	Paths          []string `yaml:"paths" mapstructure:"paths"`
}

// TicketmasterConfig holds Discovery API settings.
type TicketmasterConfig struct {
	EnricherConfig `yaml:",inline" mapstructure:",squash"`
	Key            string  `yaml:"key" mapstructure:"key"`
	MinSimilarity  float64 `yaml:"min_similarity" mapstructure:"min_similarity"`
}

// EventbriteConfig holds Eventbrite API settings.
type EventbriteConfig struct {
	EnricherConfig `yaml:",inline" mapstructure:",squash"`
	Token          string  `yaml:"token" mapstructure:"token"`
	MinSimilarity  float64 `yaml:"min_similarity" mapstructure:"min_similarity"`
}

// WikidataConfig holds SPARQL endpoint settings.
type WikidataConfig struct {
	EnricherConfig `yaml:",inline" mapstructure:",squash"`
	UserAgent      string   `yaml:"user_agent" mapstructure:"user_agent"`
	Languages      []string `yaml:"languages" mapstructure:"languages"`
}

// PlacesConfig holds Google Places settings.
type PlacesConfig struct {
	EnricherConfig `yaml:",inline" mapstructure:",squash"`
	Key            string  `yaml:"key" mapstructure:"key"`
	Language       string  `yaml:"language" mapstructure:"language"`
	MinSimilarity  float64 `yaml:"min_similarity" mapstructure:"min_similarity"`
}

// JinaConfig holds Jina Reader and Search settings. Reader backs the
// website fallback, Search backs vendor_search.
type JinaConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	BaseURL       string `yaml:"base_url" mapstructure:"base_url"`
	SearchBaseURL string `yaml:"search_base_url" mapstructure:"search_base_url"`
}

// FirecrawlConfig holds Firecrawl settings (last website fallback).
type FirecrawlConfig struct {
	Key       string  `yaml:"key" mapstructure:"key"`
	BaseURL   string  `yaml:"base_url" mapstructure:"base_url"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// PerplexityConfig holds Perplexity API settings.
type PerplexityConfig struct {
	EnricherConfig `yaml:",inline" mapstructure:",squash"`
	Key            string `yaml:"key" mapstructure:"key"`
	Model          string `yaml:"model" mapstructure:"model"`
}

// LLMConfig configures the model router shared by the llm and revenue
// enrichers.
type LLMConfig struct {
	EnricherConfig `yaml:",inline" mapstructure:",squash"`
	AnthropicKey   string   `yaml:"anthropic_key" mapstructure:"anthropic_key"`
	GeminiKey      string   `yaml:"gemini_key" mapstructure:"gemini_key"`
	AnthropicURL   string   `yaml:"anthropic_base_url" mapstructure:"anthropic_base_url"`
	Models         []string `yaml:"models" mapstructure:"models"`
	CooldownSecs   int      `yaml:"cooldown_secs" mapstructure:"cooldown_secs"`
}

// MergeConfig configures the waterfall merge.
type MergeConfig struct {
	Priority      []string           `yaml:"priority" mapstructure:"priority"`
	WaterfallFile string             `yaml:"waterfall_file" mapstructure:"waterfall_file"`
	MinConfidence map[string]float64 `yaml:"min_confidence" mapstructure:"min_confidence"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// legacyEnv maps config keys to the environment names the original
// deployment used. ENRICH_* names always win.
var legacyEnv = map[string][]string{
	"warehouse.project_id":   {"PROJECT_ID"},
	"warehouse.dataset_id":   {"DATASET_ID"},
	"warehouse.table":        {"TABLE", "STAGING_TABLE"},
	"warehouse.location":     {"BQ_LOCATION"},
	"ticketmaster.key":       {"TICKETMASTER_KEY"},
	"eventbrite.token":       {"EVENTBRITE_TOKEN"},
	"places.key":             {"GOOGLE_PLACES_KEY"},
	"jina.key":               {"JINA_API_KEY"},
	"perplexity.key":         {"PERPLEXITY_API_KEY"},
	"llm.anthropic_key":      {"ANTHROPIC_API_KEY"},
	"llm.gemini_key":         {"GEMINI_API_KEY"},
	"batch.row_delay_min_ms": {"ROW_DELAY_MIN_MS"},
	"batch.row_delay_max_ms": {"ROW_DELAY_MAX_MS"},
	"batch.stop_on_quota":    {"STOP_ON_QUOTA", "STOP_ON_GPT_QUOTA"},
	"server.port":            {"PORT"},
}

// Sections lists the enricher config sections by enricher name.
var Sections = []string{"website", "ticketmaster", "eventbrite", "wikidata", "places", "vendor_search", "perplexity", "llm", "revenue"}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ENRICH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range legacyEnv {
		envKey := "ENRICH_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(append([]string{key, envKey}, names...)...); err != nil {
			return nil, eris.Wrapf(err, "config: bind env %s", key)
		}
	}

	setDefaults(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	cfg.Columns = cfg.Columns.WithDefaults()

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("warehouse.driver", store.DriverBigQuery)
	v.SetDefault("warehouse.table", "venues")
	v.SetDefault("warehouse.location", "EU")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)

	v.SetDefault("batch.default_limit", 10)
	v.SetDefault("batch.max_limit", 100)
	v.SetDefault("batch.row_delay_min_ms", 30)
	v.SetDefault("batch.row_delay_max_ms", 180)
	v.SetDefault("batch.stop_on_quota", false)
	v.SetDefault("batch.touch_unmatched", true)
	v.SetDefault("batch.write_attempts", 3)

	for _, s := range Sections {
		v.SetDefault(s+".enabled", true)
		v.SetDefault(s+".timeout_secs", 20)
		v.SetDefault(s+".retry.max_attempts", 2)
		v.SetDefault(s+".retry.initial_backoff_ms", 500)
		v.SetDefault(s+".retry.max_backoff_ms", 5000)
		v.SetDefault(s+".breaker_threshold", 3)
		v.SetDefault(s+".breaker_reset_secs", 300)
	}
	v.SetDefault("website.max_pages", 3)
	v.SetDefault("website.host_rps", 2.0)
	v.SetDefault("ticketmaster.min_similarity", 0.72)
	v.SetDefault("ticketmaster.rate_limit", 4.0)
	v.SetDefault("eventbrite.min_similarity", 0.72)
	v.SetDefault("places.min_similarity", 0.72)
	v.SetDefault("wikidata.user_agent", "venue-enricher/1.0")
	v.SetDefault("wikidata.languages", []string{"es", "en"})
	v.SetDefault("jina.base_url", "https://r.jina.ai")
	v.SetDefault("jina.search_base_url", "https://s.jina.ai")
	v.SetDefault("firecrawl.base_url", "https://api.firecrawl.dev/v1")
	v.SetDefault("firecrawl.rate_limit", 1.0)
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.model", "sonar")
	v.SetDefault("perplexity.timeout_secs", 60)
	v.SetDefault("llm.timeout_secs", 45)
	v.SetDefault("llm.models", []string{"anthropic:claude-haiku-4-5-20251001", "gemini:gemini-2.5-flash"})
	v.SetDefault("llm.cooldown_secs", 20)
	v.SetDefault("revenue.timeout_secs", 45)
	v.SetDefault("merge.min_confidence", map[string]float64{"ticket_vendor": 0.75})
}

// Calculator prices model and search calls: the built-in rates with the
// pricing section applied on top.
func (c *Config) Calculator() *cost.Calculator {
	return cost.NewCalculator(cost.DefaultRates().Merge(c.Pricing))
}

// Enricher returns the shared settings of the named enricher section.
func (c *Config) Enricher(name string) (EnricherConfig, bool) {
	switch name {
	case "website":
		return c.Website.EnricherConfig, true
	case "ticketmaster":
		return c.Ticketmaster.EnricherConfig, true
	case "eventbrite":
		return c.Eventbrite.EnricherConfig, true
	case "wikidata":
		return c.Wikidata.EnricherConfig, true
	case "places":
		return c.Places.EnricherConfig, true
	case "vendor_search":
		return c.VendorSearch, true
	case "perplexity":
		return c.Perplexity.EnricherConfig, true
	case "llm":
		return c.LLM.EnricherConfig, true
	case "revenue":
		return c.Revenue, true
	}
	return EnricherConfig{}, false
}

// Validate rejects settings the runner cannot work with.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Warehouse.Driver) {
	case store.DriverBigQuery:
		if c.Warehouse.ProjectID == "" || c.Warehouse.DatasetID == "" {
			return eris.New("config: warehouse.project_id and warehouse.dataset_id are required for bigquery")
		}
	case store.DriverPostgres:
		if c.Warehouse.DatabaseURL == "" {
			return eris.New("config: warehouse.database_url is required for postgres")
		}
	case store.DriverSQLite:
	default:
		return eris.Errorf("config: unknown warehouse.driver %q", c.Warehouse.Driver)
	}
	if c.Warehouse.Table == "" {
		return eris.New("config: warehouse.table is required")
	}

	b := c.Batch
	if b.MaxLimit < 1 {
		return eris.Errorf("config: batch.max_limit must be positive, got %d", b.MaxLimit)
	}
	if b.DefaultLimit < 1 || b.DefaultLimit > b.MaxLimit {
		return eris.Errorf("config: batch.default_limit must be in 1..%d, got %d", b.MaxLimit, b.DefaultLimit)
	}
	if b.RowDelayMinMs < 0 || b.RowDelayMaxMs < 0 {
		return eris.New("config: batch row delays must not be negative")
	}
	if b.RowDelayMinMs > b.RowDelayMaxMs {
		return eris.Errorf("config: batch.row_delay_min_ms (%d) exceeds row_delay_max_ms (%d)", b.RowDelayMinMs, b.RowDelayMaxMs)
	}

	for _, name := range c.Merge.Priority {
		if !knownSource(name) {
			return eris.Errorf("config: merge.priority names unknown enricher %q", name)
		}
	}
	for field, v := range c.Merge.MinConfidence {
		if _, ok := model.ParseField(field); !ok {
			return eris.Errorf("config: merge.min_confidence names unknown field %q", field)
		}
		if v < 0 || v > 1 {
			return eris.Errorf("config: merge.min_confidence.%s must be in [0,1], got %v", field, v)
		}
	}
	return nil
}

// knownSource accepts an enricher name or the source tag it writes.
func knownSource(name string) bool {
	if slices.Contains(Sections, name) {
		return true
	}
	for _, tag := range enricher.Sources {
		if tag == name {
			return true
		}
	}
	return false
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
