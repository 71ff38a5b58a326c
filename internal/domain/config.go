package domain

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/edumetrics/kestrel/internal/fuzzy"
)

// Config is the complete runtime configuration.
type Config struct {
	Server ServerConfig `json:"server"`

	// Tier picks the default backends.
	Tier Tier `json:"tier"`

	// Method is the default defuzzification method, "tsukamoto" or
	// "strict". Requests may override it.
	Method string `json:"method"`

	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`

	Auth      AuthConfig      `json:"auth"`
	RateLimit RateLimitConfig `json:"rateLimit"`

	// AssessmentTTL is how long a stored student's assessment is cached.
	// Zero disables caching.
	AssessmentTTL time.Duration `json:"assessmentTtl"`

	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

type ServerConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"readTimeout"`
	WriteTimeout time.Duration `json:"writeTimeout"`
}

// AuthConfig configures HS256 bearer tokens for admin routes. An empty
// Secret turns authentication off.
type AuthConfig struct {
	Secret string `json:"-"`
	Issuer string `json:"issuer"`
}

func (a AuthConfig) Enabled() bool {
	return a.Secret != ""
}

// RateLimitConfig limits classification requests per tenant. Zero
// Requests turns limiting off.
type RateLimitConfig struct {
	Requests int           `json:"requests"`
	Window   time.Duration `json:"window"`
}

type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

type TracingConfig struct {
	Enabled     bool   `json:"enabled"`
	ServiceName string `json:"serviceName"`
}

// Tier is a deployment profile.
type Tier string

const (
	// TierCommunity: SQLite, in-process LRU, channel bus.
	TierCommunity Tier = "community"

	// TierPro: PostgreSQL, Redis behind an LRU, NATS.
	TierPro Tier = "pro"
)

// DefaultConfig is the community profile.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Tier:   TierCommunity,
		Method: "tsukamoto",
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./kestrel.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Auth:          AuthConfig{Issuer: "kestrel"},
		RateLimit:     RateLimitConfig{Requests: 600, Window: time.Minute},
		AssessmentTTL: 10 * time.Minute,
		Logging:       LoggingConfig{Level: "info", Format: "json"},
		Tracing:       TracingConfig{ServiceName: "kestrel"},
	}
}

// ProConfig is the pro profile: shared backends for several replicas.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "kestrel",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       time.Minute,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5 * time.Second,
	}
	cfg.Tracing.Enabled = true
	return cfg
}

// LoadConfig starts from the profile named by KESTREL_TIER, applies the
// environment and validates the result.
func LoadConfig() (*Config, error) {
	var cfg *Config
	switch Tier(os.Getenv("KESTREL_TIER")) {
	case "", TierCommunity:
		cfg = DefaultConfig()
	case TierPro:
		cfg = ProConfig()
	default:
		return nil, fmt.Errorf("KESTREL_TIER: unknown tier %q", os.Getenv("KESTREL_TIER"))
	}

	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

type envBinding struct {
	key string
	set func(cfg *Config, v string) error
}

func str(dst func(*Config) *string) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		*dst(cfg) = v
		return nil
	}
}

func integer(dst func(*Config) *int) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*dst(cfg) = n
		return nil
	}
}

func duration(dst func(*Config) *time.Duration) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*dst(cfg) = d
		return nil
	}
}

func boolean(dst func(*Config) *bool) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*dst(cfg) = b
		return nil
	}
}

var envBindings = []envBinding{
	{"KESTREL_HOST", str(func(c *Config) *string { return &c.Server.Host })},
	{"KESTREL_PORT", integer(func(c *Config) *int { return &c.Server.Port })},
	{"KESTREL_READ_TIMEOUT", duration(func(c *Config) *time.Duration { return &c.Server.ReadTimeout })},
	{"KESTREL_WRITE_TIMEOUT", duration(func(c *Config) *time.Duration { return &c.Server.WriteTimeout })},
	{"KESTREL_METHOD", str(func(c *Config) *string { return &c.Method })},

	{"KESTREL_DB_DRIVER", str(func(c *Config) *string { return &c.Repository.Driver })},
	{"KESTREL_DB_PATH", str(func(c *Config) *string { return &c.Repository.SQLitePath })},
	{"KESTREL_PG_HOST", str(func(c *Config) *string { return &c.Repository.PostgresHost })},
	{"KESTREL_PG_PORT", integer(func(c *Config) *int { return &c.Repository.PostgresPort })},
	{"KESTREL_PG_USER", str(func(c *Config) *string { return &c.Repository.PostgresUser })},
	{"KESTREL_PG_PASSWORD", str(func(c *Config) *string { return &c.Repository.PostgresPassword })},
	{"KESTREL_PG_DB", str(func(c *Config) *string { return &c.Repository.PostgresDB })},
	{"KESTREL_PG_SSLMODE", str(func(c *Config) *string { return &c.Repository.PostgresSSLMode })},

	{"KESTREL_CACHE", str(func(c *Config) *string { return &c.Cache.Type })},
	{"KESTREL_CACHE_SIZE", integer(func(c *Config) *int { return &c.Cache.LocalMaxSize })},
	{"KESTREL_CACHE_TWO_PHASE", boolean(func(c *Config) *bool { return &c.Cache.EnableTwoPhase })},
	{"KESTREL_REDIS_ADDR", str(func(c *Config) *string { return &c.Cache.RedisAddr })},
	{"KESTREL_REDIS_PASSWORD", str(func(c *Config) *string { return &c.Cache.RedisPassword })},
	{"KESTREL_REDIS_DB", integer(func(c *Config) *int { return &c.Cache.RedisDB })},

	{"KESTREL_BUS", str(func(c *Config) *string { return &c.EventBus.Type })},
	{"KESTREL_NATS_URL", str(func(c *Config) *string { return &c.EventBus.NATSUrl })},
	{"KESTREL_NATS_TOKEN", str(func(c *Config) *string { return &c.EventBus.NATSToken })},

	{"KESTREL_JWT_SECRET", str(func(c *Config) *string { return &c.Auth.Secret })},
	{"KESTREL_JWT_ISSUER", str(func(c *Config) *string { return &c.Auth.Issuer })},
	{"KESTREL_RATE_LIMIT", integer(func(c *Config) *int { return &c.RateLimit.Requests })},
	{"KESTREL_RATE_WINDOW", duration(func(c *Config) *time.Duration { return &c.RateLimit.Window })},
	{"KESTREL_ASSESSMENT_TTL", duration(func(c *Config) *time.Duration { return &c.AssessmentTTL })},

	{"KESTREL_LOG_LEVEL", str(func(c *Config) *string { return &c.Logging.Level })},
	{"KESTREL_LOG_FORMAT", str(func(c *Config) *string { return &c.Logging.Format })},
	{"KESTREL_TRACING", boolean(func(c *Config) *bool { return &c.Tracing.Enabled })},
}

// ApplyEnv overlays the set KESTREL_* variables onto cfg. A malformed
// value is an error naming the variable.
func ApplyEnv(cfg *Config) error {
	var errs []error
	for _, b := range envBindings {
		v, ok := os.LookupEnv(b.key)
		if !ok || v == "" {
			continue
		}
		if err := b.set(cfg, v); err != nil {
			errs = append(errs, fmt.Errorf("%s=%q: %w", b.key, v, err))
		}
	}
	if on, _ := strconv.ParseBool(os.Getenv("KESTREL_DEBUG")); on {
		cfg.Logging.Level = "debug"
	}
	return errors.Join(errs...)
}

// Validate rejects settings the backends cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server port %d out of range", c.Server.Port))
	}
	if _, err := fuzzy.ParseMethod(c.Method); err != nil {
		errs = append(errs, err)
	}
	if d := c.Repository.Driver; d != "sqlite" && d != "postgres" {
		errs = append(errs, fmt.Errorf("unknown repository driver %q", d))
	}
	if t := c.Cache.Type; t != "memory" && t != "redis" {
		errs = append(errs, fmt.Errorf("unknown cache type %q", t))
	}
	if t := c.EventBus.Type; t != "channel" && t != "nats" {
		errs = append(errs, fmt.Errorf("unknown event bus type %q", t))
	}
	if c.RateLimit.Requests < 0 {
		errs = append(errs, errors.New("rate limit must not be negative"))
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Logging.Format))
	}
	return errors.Join(errs...)
}
