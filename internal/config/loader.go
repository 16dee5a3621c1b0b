package config

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	"github.com/example/staffboard/internal/logging"
	"github.com/example/staffboard/internal/sales"
)

// EnvPrefix prefixes every environment variable, e.g. STAFFBOARD_HTTP_PORT.
const EnvPrefix = "STAFFBOARD"

// Configuration keys.
const (
	KeyHTTPPort            = "http.port"
	KeyHTTPShutdownTimeout = "http.shutdown_timeout"
	KeyDatabaseDSN         = "database.dsn"
	KeyBackendBaseURL      = "backend.base_url"
	KeyBackendToken        = "backend.token"
	KeyBackendTimeout      = "backend.timeout"
	KeyBackendMaxRetries   = "backend.max_retries"
	KeySyncStageAttempts   = "sync.stage_attempts"
	KeySyncStageDelay      = "sync.stage_delay"
	KeySyncCron            = "sync.cron"
	KeyStatusRefreshCron   = "status.refresh_cron"
	KeyStatusTimezone      = "status.timezone"
	KeyStatusFlexibleUsers = "status.flexible_users"
	KeyEventsDuration      = "events.instance_duration"
	KeyEventsCacheTTL      = "events.cache_ttl"
	KeyEventsCacheSize     = "events.cache_size"
	KeySalesExchangeRate   = "sales.exchange_rate"
	KeySalesVATRate        = "sales.vat_rate"
	KeySalesBusinessStart  = "sales.business_start"
	KeySalesBranches       = "sales.branches"
	KeySalesForecastDays   = "sales.forecast_days"
	KeySalesCacheTTL       = "sales.cache_ttl"
	KeySecurityAPIKeyHash  = "security.api_key_hash"
	KeyLoggingLevel        = "logging.level"
	KeyLoggingFormat       = "logging.format"
)

// Required key sets per command.
var (
	ServeRequired = []string{KeyBackendBaseURL, KeySecurityAPIKeyHash}
	SyncRequired  = []string{KeyBackendBaseURL}
)

var defaults = map[string]any{
	KeyHTTPPort:            8080,
	KeyHTTPShutdownTimeout: "10s",
	KeyDatabaseDSN:         "staffboard.db",
	KeyBackendToken:        "",
	KeyBackendTimeout:      "15s",
	KeyBackendMaxRetries:   3,
	KeySyncStageAttempts:   3,
	KeySyncStageDelay:      "2s",
	KeySyncCron:            "0 3 * * *",
	KeyStatusRefreshCron:   "*/5 * * * *",
	KeyStatusTimezone:      "America/Santiago",
	KeyStatusFlexibleUsers: "",
	KeyEventsDuration:      "3h",
	KeyEventsCacheTTL:      "30s",
	KeyEventsCacheSize:     128,
	KeySalesExchangeRate:   945,
	KeySalesVATRate:        1.19,
	KeySalesBusinessStart:  "2024-04-01",
	KeySalesBranches:       "Osorno,La Unión",
	KeySalesForecastDays:   5,
	KeySalesCacheTTL:       "5m",
	KeyLoggingLevel:        "info",
	KeyLoggingFormat:       "json",
}

// Config captures the service configuration.
type Config struct {
	HTTP     HTTPConfig
	Database DatabaseConfig
	Backend  BackendConfig
	Sync     SyncConfig
	Status   StatusConfig
	Events   EventsConfig
	Sales    SalesConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

type HTTPConfig struct {
	Port            int
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	DSN string
}

type BackendConfig struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	MaxRetries int
}

type SyncConfig struct {
	StageAttempts int
	StageDelay    time.Duration
	Cron          string
}

type StatusConfig struct {
	RefreshCron   string
	Timezone      string
	Location      *time.Location
	FlexibleUsers []string
}

type EventsConfig struct {
	InstanceDuration time.Duration
	CacheTTL         time.Duration
	CacheSize        int
}

// SalesConfig holds the rules of the counter sales ledger.
type SalesConfig struct {
	Rates         sales.Rates
	BusinessStart time.Time
	Branches      []string
	ForecastDays  int
	CacheTTL      time.Duration
}

type SecurityConfig struct {
	APIKeyHash string
}

type LoggingConfig struct {
	Level  string
	Format string
}

// LoadOptions selects the optional config file and the keys that must be set.
type LoadOptions struct {
	// File is an optional YAML file. Environment variables override it.
	File     string
	Required []string
}

// Load reads defaults, the optional file and STAFFBOARD_* environment
// variables. Missing and invalid keys are collected and reported together.
func Load(opts LoadOptions) (Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.File != "" {
		v.SetConfigFile(opts.File)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", opts.File, err)
		}
	}

	return parse(v, opts.Required)
}

func parse(v *viper.Viper, required []string) (Config, error) {
	var (
		cfg     Config
		missing []string
		invalid []string
	)

	for _, key := range required {
		if strings.TrimSpace(v.GetString(key)) == "" {
			missing = append(missing, envName(key))
		}
	}

	positiveInt := func(key string, allowZero bool) int {
		n, err := strconv.Atoi(strings.TrimSpace(v.GetString(key)))
		if err != nil || n < 0 || (n == 0 && !allowZero) {
			invalid = append(invalid, envName(key))
			return 0
		}
		return n
	}
	duration := func(key string, allowZero bool) time.Duration {
		d, err := time.ParseDuration(strings.TrimSpace(v.GetString(key)))
		if err != nil || d < 0 || (d == 0 && !allowZero) {
			invalid = append(invalid, envName(key))
			return 0
		}
		return d
	}
	positiveFloat := func(key string) float64 {
		f, err := strconv.ParseFloat(strings.TrimSpace(v.GetString(key)), 64)
		if err != nil || f <= 0 {
			invalid = append(invalid, envName(key))
			return 0
		}
		return f
	}
	schedule := func(key string) string {
		spec := strings.TrimSpace(v.GetString(key))
		if _, err := cron.ParseStandard(spec); err != nil {
			invalid = append(invalid, envName(key))
		}
		return spec
	}

	cfg.HTTP.Port = positiveInt(KeyHTTPPort, false)
	if cfg.HTTP.Port > 65535 {
		invalid = append(invalid, envName(KeyHTTPPort))
	}
	cfg.HTTP.ShutdownTimeout = duration(KeyHTTPShutdownTimeout, false)

	cfg.Database.DSN = strings.TrimSpace(v.GetString(KeyDatabaseDSN))
	if cfg.Database.DSN == "" {
		missing = append(missing, envName(KeyDatabaseDSN))
	}

	cfg.Backend.BaseURL = strings.TrimRight(strings.TrimSpace(v.GetString(KeyBackendBaseURL)), "/")
	if cfg.Backend.BaseURL != "" {
		if u, err := url.Parse(cfg.Backend.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			invalid = append(invalid, envName(KeyBackendBaseURL))
		}
	}
	cfg.Backend.Token = strings.TrimSpace(v.GetString(KeyBackendToken))
	cfg.Backend.Timeout = duration(KeyBackendTimeout, false)
	cfg.Backend.MaxRetries = positiveInt(KeyBackendMaxRetries, true)

	cfg.Sync.StageAttempts = positiveInt(KeySyncStageAttempts, false)
	cfg.Sync.StageDelay = duration(KeySyncStageDelay, true)
	cfg.Sync.Cron = schedule(KeySyncCron)

	cfg.Status.RefreshCron = schedule(KeyStatusRefreshCron)
	cfg.Status.Timezone = strings.TrimSpace(v.GetString(KeyStatusTimezone))
	if loc, err := time.LoadLocation(cfg.Status.Timezone); err != nil {
		invalid = append(invalid, envName(KeyStatusTimezone))
	} else {
		cfg.Status.Location = loc
	}
	cfg.Status.FlexibleUsers = stringList(v.Get(KeyStatusFlexibleUsers))

	cfg.Events.InstanceDuration = duration(KeyEventsDuration, false)
	cfg.Events.CacheTTL = duration(KeyEventsCacheTTL, false)
	cfg.Events.CacheSize = positiveInt(KeyEventsCacheSize, false)

	cfg.Sales.Rates = sales.Rates{
		ExchangeRate: positiveFloat(KeySalesExchangeRate),
		VATRate:      positiveFloat(KeySalesVATRate),
	}
	if r := cfg.Sales.Rates; r.ExchangeRate > 0 && r.VATRate > 0 && r.Validate() != nil {
		invalid = append(invalid, envName(KeySalesVATRate))
	}
	if start, err := time.Parse(time.DateOnly, strings.TrimSpace(v.GetString(KeySalesBusinessStart))); err != nil {
		invalid = append(invalid, envName(KeySalesBusinessStart))
	} else {
		cfg.Sales.BusinessStart = start
	}
	cfg.Sales.Branches = stringList(v.Get(KeySalesBranches))
	cfg.Sales.ForecastDays = positiveInt(KeySalesForecastDays, false)
	cfg.Sales.CacheTTL = duration(KeySalesCacheTTL, false)

	cfg.Security.APIKeyHash = strings.TrimSpace(v.GetString(KeySecurityAPIKeyHash))

	cfg.Logging.Level = strings.TrimSpace(v.GetString(KeyLoggingLevel))
	if _, err := logging.ParseLevel(cfg.Logging.Level); err != nil {
		invalid = append(invalid, envName(KeyLoggingLevel))
	}
	cfg.Logging.Format = strings.ToLower(strings.TrimSpace(v.GetString(KeyLoggingFormat)))
	switch cfg.Logging.Format {
	case "json", "text", "auto":
	default:
		invalid = append(invalid, envName(KeyLoggingFormat))
	}

	var errs []error
	if len(missing) > 0 {
		errs = append(errs, fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", ")))
	}
	if len(invalid) > 0 {
		errs = append(errs, fmt.Errorf("invalid configuration values: %s", strings.Join(invalid, ", ")))
	}
	if len(errs) > 0 {
		return Config{}, errors.Join(errs...)
	}
	return cfg, nil
}

// envName renders a key the way it is spelled in the environment.
func envName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// stringList accepts a YAML sequence or a comma separated string.
func stringList(raw any) []string {
	var parts []string
	switch value := raw.(type) {
	case nil:
		return nil
	case string:
		parts = strings.Split(value, ",")
	case []string:
		parts = value
	case []any:
		for _, item := range value {
			parts = append(parts, fmt.Sprint(item))
		}
	default:
		parts = strings.Split(fmt.Sprint(value), ",")
	}

	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
