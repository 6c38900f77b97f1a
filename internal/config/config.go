// Package config holds the chimera service configuration.
package config

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jonesrussell/north-cloud/chimera/infrastructure/circuitbreaker"
	infraconfig "github.com/jonesrussell/north-cloud/chimera/infrastructure/config"
	"github.com/jonesrussell/north-cloud/chimera/infrastructure/profiling"
	"github.com/jonesrussell/north-cloud/chimera/infrastructure/retry"
	"github.com/jonesrussell/north-cloud/chimera/internal/domain"
	"github.com/jonesrussell/north-cloud/chimera/internal/skill"
)

// Default configuration values.
const (
	defaultServiceName = "chimera"
	defaultServicePort = 8110
	defaultVersion     = "0.1.0"
	defaultDBName      = "chimera"
	defaultDBUser      = "postgres"

	defaultTrendLimit       = 20
	defaultTrendMaxLimit    = 100
	defaultTrendCacheTTL    = 5 * time.Minute
	defaultTrendIndexTTL    = 7 * 24 * time.Hour
	defaultTrendTimeout     = 10 * time.Second
	defaultTrendConcurrency = 4
	defaultRefreshSchedule  = "*/5 * * * *"
	defaultESField          = "topics"
	defaultESTimeField      = "published_date"
	defaultESWindow         = 24 * time.Hour
	defaultESBuckets        = 25

	defaultWriter           = "template"
	defaultAnthropicURL     = "https://api.anthropic.com"
	defaultAnthropicModel   = "claude-sonnet-4-5"
	defaultAnthropicTokens  = 1024
	defaultAnthropicRetries = 2
	defaultWriterTimeout    = 60 * time.Second
	defaultStorageDriver    = "local"
	defaultLocalDir         = "./data/media"
	defaultS3Region         = "us-east-1"
	defaultS3Prefix         = "drafts"
	defaultLanguage         = "en"
	defaultTone             = "informative"

	defaultScheduleAhead   = 30 * 24 * time.Hour
	defaultPastTolerance   = time.Minute
	defaultRateMax         = 30
	defaultRateWindow      = time.Hour
	defaultPollInterval    = 5 * time.Second
	defaultBatchSize       = 100
	defaultPublishTimeout  = 10 * time.Second
	defaultStaleAfter      = 5 * time.Minute
	defaultCleanupInterval = time.Hour
	defaultRetention       = 7 * 24 * time.Hour
)

// Source kinds.
const (
	SourceFeed          = "feed"
	SourceHTML          = "html"
	SourceElasticsearch = "elasticsearch"
)

// Writer and storage drivers.
const (
	WriterTemplate  = "template"
	WriterAnthropic = "anthropic"
	StorageLocal    = "local"
	StorageS3       = "s3"
)

// Config holds the application configuration.
type Config struct {
	Service    ServiceConfig              `yaml:"service"`
	Database   infraconfig.DatabaseConfig `yaml:"database"`
	Redis      infraconfig.RedisConfig    `yaml:"redis"`
	Auth       AuthConfig                 `yaml:"auth"`
	Logging    infraconfig.LoggingConfig  `yaml:"logging"`
	Trends     TrendsConfig               `yaml:"trends"`
	Generation GenerationConfig           `yaml:"generation"`
	Publishing PublishingConfig           `yaml:"publishing"`
	Profiling  profiling.Config           `yaml:"profiling"`
}

// ServiceConfig holds service-level configuration.
type ServiceConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Port    int    `env:"CHIMERA_PORT" yaml:"port"`
	Debug   bool   `env:"APP_DEBUG"    yaml:"debug"`
	// Skills lists the enabled skills. Disabled skills answer 503.
	Skills      []string `env:"CHIMERA_SKILLS" yaml:"skills"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// SkillEnabled reports whether name is in the enabled list.
func (s *ServiceConfig) SkillEnabled(name skill.Name) bool {
	for _, n := range s.Skills {
		if n == string(name) {
			return true
		}
	}
	return false
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	// JWTSecret enables HS256 bearer auth on /api/v1 when set.
	JWTSecret string `env:"AUTH_JWT_SECRET" yaml:"jwt_secret"`
}

// TrendsConfig configures fetch_trends.
type TrendsConfig struct {
	DefaultLimit    int                             `yaml:"default_limit"`
	MaxLimit        int                             `yaml:"max_limit"`
	CacheTTL        time.Duration                   `yaml:"cache_ttl"`
	IndexTTL        time.Duration                   `yaml:"index_ttl"`
	FetchTimeout    time.Duration                   `yaml:"fetch_timeout"`
	Concurrency     int                             `yaml:"concurrency"`
	RefreshSchedule string                          `env:"TRENDS_REFRESH_SCHEDULE" yaml:"refresh_schedule"`
	Retry           retry.Config                    `yaml:"retry"`
	Breaker         circuitbreaker.Config           `yaml:"circuit_breaker"`
	Elasticsearch   infraconfig.ElasticsearchConfig `yaml:"elasticsearch"`
	Sources         []SourceConfig                  `yaml:"sources"`
}

// SourceConfig configures one trend source.
type SourceConfig struct {
	Name    string `yaml:"name"`
	Kind    string `yaml:"kind"`
	Enabled *bool  `yaml:"enabled"`
	// URL is fetched by feed and html sources.
	URL string `yaml:"url"`
	// Selector picks label elements in html sources.
	Selector  string `yaml:"selector"`
	TrendType string `yaml:"trend_type"`
	// Index, Field, TimeField, Window and Size configure elasticsearch sources.
	Index     string        `yaml:"index"`
	Field     string        `yaml:"field"`
	TimeField string        `yaml:"time_field"`
	Window    time.Duration `yaml:"window"`
	Size      int           `yaml:"size"`
}

// IsEnabled reports whether the source takes part in fetches. Sources are enabled unless disabled explicitly.
func (s *SourceConfig) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// GenerationConfig configures generate_video.
type GenerationConfig struct {
	Writer          string          `env:"GENERATION_WRITER" yaml:"writer"`
	DefaultLanguage string          `yaml:"default_language"`
	DefaultTone     string          `yaml:"default_tone"`
	Anthropic       AnthropicConfig `yaml:"anthropic"`
	Storage         StorageConfig   `yaml:"storage"`
}

// AnthropicConfig configures the anthropic writer.
type AnthropicConfig struct {
	APIKey     string        `env:"ANTHROPIC_API_KEY"  yaml:"api_key"`
	BaseURL    string        `env:"ANTHROPIC_BASE_URL" yaml:"base_url"`
	Model      string        `env:"ANTHROPIC_MODEL"    yaml:"model"`
	MaxTokens  int           `yaml:"max_tokens"`
	// MaxRetries is nil when unset; 0 turns SDK retries off.
	MaxRetries *int          `yaml:"max_retries"`
	Timeout    time.Duration `yaml:"timeout"`
}

// StorageConfig configures the media store.
type StorageConfig struct {
	Driver   string   `env:"MEDIA_STORAGE_DRIVER" yaml:"driver"`
	LocalDir string   `yaml:"local_dir"`
	S3       S3Config `yaml:"s3"`
}

// S3Config configures an S3-compatible bucket.
type S3Config struct {
	Endpoint        string `env:"S3_ENDPOINT"          yaml:"endpoint"`
	Region          string `env:"S3_REGION"            yaml:"region"`
	Bucket          string `env:"S3_BUCKET"            yaml:"bucket"`
	AccessKeyID     string `env:"S3_ACCESS_KEY_ID"     yaml:"access_key_id"`
	SecretAccessKey string `env:"S3_SECRET_ACCESS_KEY" yaml:"secret_access_key"`
	Prefix          string `yaml:"prefix"`
}

// PublishingConfig configures publish_content and the outbox worker.
type PublishingConfig struct {
	MaxScheduleAhead time.Duration   `yaml:"max_schedule_ahead"`
	PastTolerance    time.Duration   `yaml:"past_tolerance"`
	RateLimit        RateLimitConfig `yaml:"rate_limit"`
	Worker           WorkerConfig    `yaml:"worker"`
}

// RateLimitConfig is a fixed window per agent and platform.
type RateLimitConfig struct {
	MaxRequests int           `yaml:"max_requests"`
	Window      time.Duration `yaml:"window"`
}

// WorkerConfig configures the outbox worker.
type WorkerConfig struct {
	PollInterval    time.Duration `yaml:"poll_interval"`
	BatchSize       int           `yaml:"batch_size"`
	PublishTimeout  time.Duration `yaml:"publish_timeout"`
	StaleAfter      time.Duration `yaml:"stale_after"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
	Retention       time.Duration `yaml:"retention"`
	// RequireSubscribers fails a dispatch when no platform adapter is listening.
	RequireSubscribers bool `yaml:"require_subscribers"`
}

// Load loads configuration from the specified path.
func Load(path string) (*Config, error) {
	return infraconfig.LoadWithDefaults[Config](path, setDefaults)
}

// setDefaults applies default values to the config.
func setDefaults(cfg *Config) {
	setServiceDefaults(&cfg.Service)
	cfg.Database.SetDefaults()
	if cfg.Database.Database == "" {
		cfg.Database.Database = defaultDBName
	}
	if cfg.Database.User == "" {
		cfg.Database.User = defaultDBUser
	}
	cfg.Redis.SetDefaults()
	cfg.Logging.SetDefaults()
	cfg.Profiling.SetDefaults()
	setTrendsDefaults(&cfg.Trends)
	setGenerationDefaults(&cfg.Generation)
	setPublishingDefaults(&cfg.Publishing)
}

func setServiceDefaults(svc *ServiceConfig) {
	if svc.Name == "" {
		svc.Name = defaultServiceName
	}
	if svc.Version == "" {
		svc.Version = defaultVersion
	}
	if svc.Port == 0 {
		svc.Port = defaultServicePort
	}
	if len(svc.Skills) == 0 {
		svc.Skills = []string{string(skill.FetchTrends), string(skill.GenerateVideo), string(skill.PublishContent)}
	}
}

func setTrendsDefaults(t *TrendsConfig) {
	if t.DefaultLimit == 0 {
		t.DefaultLimit = defaultTrendLimit
	}
	if t.MaxLimit == 0 {
		t.MaxLimit = defaultTrendMaxLimit
	}
	if t.CacheTTL == 0 {
		t.CacheTTL = defaultTrendCacheTTL
	}
	if t.IndexTTL == 0 {
		t.IndexTTL = defaultTrendIndexTTL
	}
	if t.FetchTimeout == 0 {
		t.FetchTimeout = defaultTrendTimeout
	}
	if t.Concurrency == 0 {
		t.Concurrency = defaultTrendConcurrency
	}
	if t.RefreshSchedule == "" {
		t.RefreshSchedule = defaultRefreshSchedule
	}

	def := retry.DefaultConfig()
	if t.Retry.MaxAttempts == 0 {
		t.Retry.MaxAttempts = def.MaxAttempts
	}
	if t.Retry.InitialDelay == 0 {
		t.Retry.InitialDelay = def.InitialDelay
	}
	if t.Retry.MaxDelay == 0 {
		t.Retry.MaxDelay = def.MaxDelay
	}
	if t.Retry.Multiplier == 0 {
		t.Retry.Multiplier = def.Multiplier
	}

	cb := circuitbreaker.DefaultConfig()
	if t.Breaker.FailureThreshold == 0 {
		t.Breaker.FailureThreshold = cb.FailureThreshold
	}
	if t.Breaker.SuccessThreshold == 0 {
		t.Breaker.SuccessThreshold = cb.SuccessThreshold
	}
	if t.Breaker.Timeout == 0 {
		t.Breaker.Timeout = cb.Timeout
	}

	for i := range t.Sources {
		src := &t.Sources[i]
		if src.TrendType == "" {
			src.TrendType = "topic"
		}
		if src.Kind != SourceElasticsearch {
			continue
		}
		if src.Field == "" {
			src.Field = defaultESField
		}
		if src.TimeField == "" {
			src.TimeField = defaultESTimeField
		}
		if src.Window == 0 {
			src.Window = defaultESWindow
		}
		if src.Size == 0 {
			src.Size = defaultESBuckets
		}
	}
}

func setGenerationDefaults(g *GenerationConfig) {
	if g.Writer == "" {
		g.Writer = defaultWriter
	}
	if g.DefaultLanguage == "" {
		g.DefaultLanguage = defaultLanguage
	}
	if g.DefaultTone == "" {
		g.DefaultTone = defaultTone
	}
	if g.Anthropic.BaseURL == "" {
		g.Anthropic.BaseURL = defaultAnthropicURL
	}
	if g.Anthropic.Model == "" {
		g.Anthropic.Model = defaultAnthropicModel
	}
	if g.Anthropic.MaxTokens == 0 {
		g.Anthropic.MaxTokens = defaultAnthropicTokens
	}
	if g.Anthropic.MaxRetries == nil {
		retries := defaultAnthropicRetries
		g.Anthropic.MaxRetries = &retries
	}
	if g.Anthropic.Timeout == 0 {
		g.Anthropic.Timeout = defaultWriterTimeout
	}
	if g.Storage.Driver == "" {
		g.Storage.Driver = defaultStorageDriver
	}
	if g.Storage.LocalDir == "" {
		g.Storage.LocalDir = defaultLocalDir
	}
	if g.Storage.S3.Region == "" {
		g.Storage.S3.Region = defaultS3Region
	}
	if g.Storage.S3.Prefix == "" {
		g.Storage.S3.Prefix = defaultS3Prefix
	}
}

func setPublishingDefaults(p *PublishingConfig) {
	if p.MaxScheduleAhead == 0 {
		p.MaxScheduleAhead = defaultScheduleAhead
	}
	if p.PastTolerance == 0 {
		p.PastTolerance = defaultPastTolerance
	}
	if p.RateLimit.MaxRequests == 0 {
		p.RateLimit.MaxRequests = defaultRateMax
	}
	if p.RateLimit.Window == 0 {
		p.RateLimit.Window = defaultRateWindow
	}
	w := &p.Worker
	if w.PollInterval == 0 {
		w.PollInterval = defaultPollInterval
	}
	if w.BatchSize == 0 {
		w.BatchSize = defaultBatchSize
	}
	if w.PublishTimeout == 0 {
		w.PublishTimeout = defaultPublishTimeout
	}
	if w.StaleAfter == 0 {
		w.StaleAfter = defaultStaleAfter
	}
	if w.CleanupInterval == 0 {
		w.CleanupInterval = defaultCleanupInterval
	}
	if w.Retention == 0 {
		w.Retention = defaultRetention
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := infraconfig.ValidatePort("service.port", c.Service.Port); err != nil {
		return err
	}
	for _, name := range c.Service.Skills {
		if _, ok := skill.Lookup(skill.Name(name)); !ok {
			return &infraconfig.ValidationError{Field: "service.skills", Message: "unknown skill " + name}
		}
	}
	if err := c.Database.Validate(); err != nil {
		return err
	}
	if err := infraconfig.ValidateRequired("redis.address", c.Redis.Address); err != nil {
		return err
	}
	if err := c.Logging.Validate(); err != nil {
		return err
	}
	if err := c.Trends.Validate(); err != nil {
		return err
	}
	if err := c.Generation.Validate(); err != nil {
		return err
	}
	return c.Publishing.Validate()
}

// Validate checks limits, the refresh schedule and every source.
func (t *TrendsConfig) Validate() error {
	if t.DefaultLimit < 1 || t.DefaultLimit > t.MaxLimit {
		return &infraconfig.ValidationError{Field: "trends.default_limit", Message: "must be between 1 and trends.max_limit"}
	}
	if err := infraconfig.ValidatePositiveDuration("trends.cache_ttl", t.CacheTTL); err != nil {
		return err
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(t.RefreshSchedule); err != nil {
		return &infraconfig.ValidationError{Field: "trends.refresh_schedule", Message: err.Error()}
	}

	seen := make(map[string]bool, len(t.Sources))
	for i := range t.Sources {
		src := &t.Sources[i]
		field := fmt.Sprintf("trends.sources[%d]", i)
		if err := infraconfig.ValidateRequired(field+".name", src.Name); err != nil {
			return err
		}
		if seen[src.Name] {
			return &infraconfig.ValidationError{Field: field + ".name", Message: "duplicate source " + src.Name}
		}
		seen[src.Name] = true
		if err := infraconfig.ValidateOneOf(field+".kind", src.Kind, SourceFeed, SourceHTML, SourceElasticsearch); err != nil {
			return err
		}
		if !domain.TrendType(src.TrendType).Valid() {
			return &infraconfig.ValidationError{Field: field + ".trend_type", Message: "must be one of: topic, hashtag, format, platform_signal"}
		}
		switch src.Kind {
		case SourceFeed:
			if err := infraconfig.ValidateURL(field+".url", src.URL); err != nil {
				return err
			}
		case SourceHTML:
			if err := infraconfig.ValidateURL(field+".url", src.URL); err != nil {
				return err
			}
			if err := infraconfig.ValidateRequired(field+".selector", src.Selector); err != nil {
				return err
			}
		case SourceElasticsearch:
			if err := infraconfig.ValidateRequired(field+".index", src.Index); err != nil {
				return err
			}
		}
	}
	return nil
}

// Validate checks the writer and storage drivers.
func (g *GenerationConfig) Validate() error {
	if err := infraconfig.ValidateOneOf("generation.writer", g.Writer, WriterTemplate, WriterAnthropic); err != nil {
		return err
	}
	if g.Writer == WriterAnthropic {
		if err := infraconfig.ValidateRequired("generation.anthropic.api_key", g.Anthropic.APIKey); err != nil {
			return err
		}
	}
	if g.Anthropic.MaxRetries != nil && *g.Anthropic.MaxRetries < 0 {
		return &infraconfig.ValidationError{Field: "generation.anthropic.max_retries", Message: "must not be negative"}
	}
	if err := infraconfig.ValidateOneOf("generation.storage.driver", g.Storage.Driver, StorageLocal, StorageS3); err != nil {
		return err
	}
	if g.Storage.Driver == StorageS3 {
		return infraconfig.ValidateRequired("generation.storage.s3.bucket", g.Storage.S3.Bucket)
	}
	return nil
}

// Validate checks the rate limit and worker settings.
func (p *PublishingConfig) Validate() error {
	if p.RateLimit.MaxRequests < 1 {
		return &infraconfig.ValidationError{Field: "publishing.rate_limit.max_requests", Message: "must be positive"}
	}
	if err := infraconfig.ValidatePositiveDuration("publishing.rate_limit.window", p.RateLimit.Window); err != nil {
		return err
	}
	return infraconfig.ValidatePositiveDuration("publishing.worker.poll_interval", p.Worker.PollInterval)
}
