// Package config loads the engine configuration from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"

	"github.com/boddenberg/fleetpay-go/internal/domain"
	"github.com/boddenberg/fleetpay-go/internal/infra/resilience"
)

// EnvPrefix namespaces every variable, e.g. FLEETPAY_PORT. The bare name
// (PORT) is accepted as a fallback.
const EnvPrefix = "FLEETPAY"

// Rows backends.
const (
	BackendWorkbook = "workbook"
	BackendSheets   = "sheets"
	BackendGateway  = "gateway"
)

// Cache backends.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// Config holds all application configuration.
type Config struct {
	// Server
	Port     int    `envconfig:"PORT" default:"8080"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// Rows provider
	RowsBackend           string `envconfig:"ROWS_BACKEND" default:"workbook"`
	WorkbookPath          string `envconfig:"WORKBOOK_PATH" default:"data/fleet.xlsx"`
	SheetsSpreadsheetID   string `envconfig:"SHEETS_SPREADSHEET_ID"`
	SheetsCredentialsFile string `envconfig:"SHEETS_CREDENTIALS_FILE"`
	GatewayURL            string `envconfig:"GATEWAY_URL"`
	GatewayToken          string `envconfig:"GATEWAY_TOKEN"`

	// HTTP client
	HTTPTimeout time.Duration `envconfig:"HTTP_TIMEOUT" default:"10s"`

	// Resilience
	MaxRetries         int           `envconfig:"MAX_RETRIES" default:"3"`
	InitialBackoff     time.Duration `envconfig:"INITIAL_BACKOFF" default:"100ms"`
	MaxConcurrency     int           `envconfig:"MAX_CONCURRENCY" default:"50"`
	BreakerOpenTimeout time.Duration `envconfig:"BREAKER_OPEN_TIMEOUT" default:"10s"`

	// Cache
	CacheBackend   string        `envconfig:"CACHE_BACKEND" default:"memory"`
	RedisURL       string        `envconfig:"REDIS_URL"`
	RedisAddr      string        `envconfig:"REDIS_ADDR"`
	RedisPassword  string        `envconfig:"REDIS_PASSWORD"`
	RedisDB        int           `envconfig:"REDIS_DB" default:"0"`
	RedisPoolSize  int           `envconfig:"REDIS_POOL_SIZE" default:"10"`
	RidersTTL      time.Duration `envconfig:"CACHE_RIDERS_TTL" default:"5m"`
	PerformanceTTL time.Duration `envconfig:"CACHE_PERFORMANCE_TTL" default:"2m"`
	DebtsTTL       time.Duration `envconfig:"CACHE_DEBTS_TTL" default:"2m"`
	ConfigTTL      time.Duration `envconfig:"CACHE_CONFIG_TTL" default:"10m"`

	// Config store
	ConfigDBDriver string `envconfig:"CONFIG_DB_DRIVER" default:"sqlite"`
	ConfigDBDSN    string `envconfig:"CONFIG_DB_DSN" default:"fleetpay.db"`

	// Auth
	JWTSecret string `envconfig:"JWT_SECRET"`

	// Observability
	OTLPEndpoint string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	// Engine defaults
	DefaultTopN                      int             `envconfig:"DEFAULT_TOP_N" default:"5"`
	DefaultSecurityCost              decimal.Decimal `envconfig:"DEFAULT_SECURITY_COST" default:"0"`
	DefaultLegacyOrderRate           decimal.Decimal `envconfig:"LEGACY_ORDER_RATE" default:"2"`
	DefaultLegacyBonusMultiplier     decimal.Decimal `envconfig:"LEGACY_BONUS_MULTIPLIER" default:"1.2"`
	DefaultLegacyAcceptanceThreshold float64         `envconfig:"LEGACY_ACCEPTANCE_THRESHOLD" default:"90"`
}

// Load reads configuration from environment variables with defaults.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	c.RowsBackend = strings.ToLower(strings.TrimSpace(c.RowsBackend))
	c.CacheBackend = strings.ToLower(strings.TrimSpace(c.CacheBackend))
	c.ConfigDBDriver = strings.ToLower(strings.TrimSpace(c.ConfigDBDriver))
}

// Validate checks cross-field requirements of the selected backends.
func (c *Config) Validate() error {
	switch c.RowsBackend {
	case BackendWorkbook:
		if c.WorkbookPath == "" {
			return &domain.ErrConfig{Key: "WORKBOOK_PATH", Err: errRequired}
		}
	case BackendSheets:
		if c.SheetsSpreadsheetID == "" {
			return &domain.ErrConfig{Key: "SHEETS_SPREADSHEET_ID", Err: errRequired}
		}
	case BackendGateway:
		if c.GatewayURL == "" {
			return &domain.ErrConfig{Key: "GATEWAY_URL", Err: errRequired}
		}
	default:
		return &domain.ErrConfig{Key: "ROWS_BACKEND", Err: fmt.Errorf("unknown backend %q", c.RowsBackend)}
	}

	switch c.CacheBackend {
	case CacheMemory:
	case CacheRedis:
		if c.RedisURL == "" && c.RedisAddr == "" {
			return &domain.ErrConfig{Key: "REDIS_URL", Err: errRequired}
		}
	default:
		return &domain.ErrConfig{Key: "CACHE_BACKEND", Err: fmt.Errorf("unknown backend %q", c.CacheBackend)}
	}

	switch c.ConfigDBDriver {
	case "sqlite", "postgres":
	default:
		return &domain.ErrConfig{Key: "CONFIG_DB_DRIVER", Err: fmt.Errorf("unknown driver %q", c.ConfigDBDriver)}
	}

	if c.DefaultTopN < 0 {
		return &domain.ErrConfig{Key: "DEFAULT_TOP_N", Err: fmt.Errorf("must be >= 0")}
	}
	return nil
}

// Resilience returns the retry, breaker and bulkhead parameters.
func (c *Config) Resilience() resilience.Config {
	return resilience.Config{
		MaxRetries:     c.MaxRetries,
		InitialBackoff: c.InitialBackoff,
		MaxConcurrency: c.MaxConcurrency,
		OpenTimeout:    c.BreakerOpenTimeout,
	}
}

// DefaultSettings is the policy used until an administrator saves one.
func (c *Config) DefaultSettings() domain.PolicySettings {
	return domain.PolicySettings{
		SecurityCost:              c.DefaultSecurityCost,
		LegacyOrderRate:           c.DefaultLegacyOrderRate,
		LegacyBonusMultiplier:     c.DefaultLegacyBonusMultiplier,
		LegacyAcceptanceThreshold: c.DefaultLegacyAcceptanceThreshold,
	}
}

var errRequired = fmt.Errorf("required")
