package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"github.com/shopspring/decimal"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	AppName            string
	Port               string
	DatabaseURL        string
	RedisURL           string
	CORSAllowedOrigins []string
	RunMigrations      bool

	Log      LogConfig
	Metrics  MetricsConfig
	Tracing  TracingConfig
	Auth     AuthConfig
	Pricing  PricingConfig
	Catalog  CatalogConfig
	Payment  PaymentConfig
	Abuse    AbuseConfig
	Limits   RateLimitConfig
	Events   EventsConfig
	Notify   NotifyConfig
	Audit    AuditConfig
	Security SecurityConfig
	Pprof    PprofConfig

	IdempotencyTTL time.Duration
	BodyLimitBytes int64
}

// LogConfig controls logger output.
type LogConfig struct {
	Format string
	Level  string
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled   bool
	Namespace string
	Path      string
	Buckets   string
}

// TracingConfig controls the OTLP exporter.
type TracingConfig struct {
	Enabled     bool
	Endpoint    string
	SampleRatio float64
}

// AuthConfig configures bearer token verification and the admin PIN guard.
type AuthConfig struct {
	JWTSecret          string
	JWTIssuer          string
	JWTAudience        string
	ClockSkew          time.Duration
	AdminPINHash       string
	AdminPINMaxFails   int
	AdminPINFailWindow time.Duration
}

// PricingConfig bounds cart pricing.
type PricingConfig struct {
	Currency           string
	MaxQuantityPerLine int64
	MaxTotalMinor      int64
	MinTotalMinor      int64
	SurchargeBps       int64
	AccumulateErrors   bool
}

// CatalogConfig selects where the price table is loaded from.
type CatalogConfig struct {
	Source         string
	Path           string
	ReloadInterval time.Duration
}

// PaymentConfig configures the payment authority.
type PaymentConfig struct {
	Provider            string
	StripeSecretKey     string
	StripeWebhookSecret string
	Timeout             time.Duration
	WebhookReplayTTL    time.Duration
}

// AbuseConfig configures the invalid-cart strike counter.
type AbuseConfig struct {
	Window     time.Duration
	MaxStrikes int
}

// RateLimitConfig configures the per-IP and per-user request limiters.
type RateLimitConfig struct {
	PublicRate       string
	IntentsPerWindow int
	IntentsWindow    time.Duration
}

// EventsConfig configures domain event fan-out.
type EventsConfig struct {
	AMQPURL      string
	AMQPExchange string
}

// NotifyConfig toggles notification channels.
type NotifyConfig struct {
	EmailEnabled      bool
	EmailFrom         string
	SMSEnabled        bool
	TwilioAccountSID  string
	TwilioAuthToken   string
	TwilioFrom        string
	DefaultCountry    string
	TelegramToken     string
	TelegramChatID    int64
	TrackingBaseURL   string
	WorkerConcurrency int
}

// AuditConfig controls admin audit logging.
type AuditConfig struct {
	Enabled      bool
	SamplingRate float64
}

// SecurityConfig tunes security alerts and the IP blocklist.
type SecurityConfig struct {
	AlertWindow        time.Duration
	BlocklistSyncEvery time.Duration
}

// PprofConfig exposes the profiler behind basic auth.
type PprofConfig struct {
	Enabled bool
	User    string
	Pass    string
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	maxTotal, err := parseMinor(k.String("PRICING_MAX_TOTAL"), "100000")
	if err != nil {
		return nil, fmt.Errorf("PRICING_MAX_TOTAL: %w", err)
	}
	minTotal, err := parseMinor(k.String("PRICING_MIN_TOTAL"), "0.01")
	if err != nil {
		return nil, fmt.Errorf("PRICING_MIN_TOTAL: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		AppName:            valueOrDefault(k.String("APP_NAME"), "backend-resto"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		RunMigrations:      parseBool(k.String("RUN_MIGRATIONS")),
		Log: LogConfig{
			Format: valueOrDefault(k.String("LOG_FORMAT"), "json"),
			Level:  valueOrDefault(k.String("LOG_LEVEL"), "info"),
		},
		Metrics: MetricsConfig{
			Enabled:   parseBoolDefault(k.String("METRICS_ENABLED"), true),
			Namespace: valueOrDefault(k.String("METRICS_NAMESPACE"), "resto"),
			Path:      valueOrDefault(k.String("METRICS_PATH"), "/metrics"),
			Buckets:   k.String("METRICS_BUCKETS"),
		},
		Tracing: TracingConfig{
			Enabled:     parseBool(k.String("OTEL_ENABLED")),
			Endpoint:    k.String("OTEL_EXPORTER_OTLP_ENDPOINT"),
			SampleRatio: parseFloat(k.String("OTEL_TRACES_SAMPLER_RATIO"), 0.1),
		},
		Auth: AuthConfig{
			JWTSecret:          k.String("JWT_SECRET"),
			JWTIssuer:          strings.TrimSpace(k.String("JWT_ISSUER")),
			JWTAudience:        valueOrDefault(k.String("JWT_AUDIENCE"), "authenticated"),
			ClockSkew:          parseDuration(k.String("JWT_CLOCK_SKEW"), "30s"),
			AdminPINHash:       strings.TrimSpace(k.String("ADMIN_PIN_HASH")),
			AdminPINMaxFails:   parseInt(k.String("ADMIN_PIN_MAX_FAILS"), 5),
			AdminPINFailWindow: parseDuration(k.String("ADMIN_PIN_FAIL_WINDOW"), "15m"),
		},
		Pricing: PricingConfig{
			Currency:           strings.ToUpper(valueOrDefault(k.String("PRICING_CURRENCY"), "INR")),
			MaxQuantityPerLine: int64(parseInt(k.String("PRICING_MAX_QUANTITY"), 100)),
			MaxTotalMinor:      maxTotal,
			MinTotalMinor:      minTotal,
			SurchargeBps:       int64(parseInt(k.String("PRICING_SURCHARGE_BPS"), 0)),
			AccumulateErrors:   parseBool(k.String("PRICING_ACCUMULATE_ERRORS")),
		},
		Catalog: CatalogConfig{
			Source:         strings.ToLower(valueOrDefault(k.String("CATALOG_SOURCE"), "embedded")),
			Path:           strings.TrimSpace(k.String("CATALOG_PATH")),
			ReloadInterval: parseDuration(k.String("CATALOG_RELOAD_INTERVAL"), "0s"),
		},
		Payment: PaymentConfig{
			Provider:            strings.ToLower(valueOrDefault(k.String("PAYMENT_PROVIDER"), "stub")),
			StripeSecretKey:     k.String("STRIPE_SECRET_KEY"),
			StripeWebhookSecret: k.String("STRIPE_WEBHOOK_SECRET"),
			Timeout:             parseDuration(k.String("PAYMENT_TIMEOUT"), "10s"),
			WebhookReplayTTL:    parseDuration(k.String("PAYMENT_WEBHOOK_REPLAY_TTL"), "72h"),
		},
		Abuse: AbuseConfig{
			Window:     parseDuration(k.String("ABUSE_WINDOW"), "10m"),
			MaxStrikes: parseInt(k.String("ABUSE_MAX_STRIKES"), 5),
		},
		Limits: RateLimitConfig{
			PublicRate:       valueOrDefault(k.String("RATE_LIMIT_PUBLIC"), "120-M"),
			IntentsPerWindow: parseInt(k.String("RATE_LIMIT_INTENTS"), 10),
			IntentsWindow:    parseDuration(k.String("RATE_LIMIT_INTENTS_WINDOW"), "1m"),
		},
		Events: EventsConfig{
			AMQPURL:      strings.TrimSpace(k.String("AMQP_URL")),
			AMQPExchange: valueOrDefault(k.String("AMQP_EXCHANGE"), "resto.events"),
		},
		Notify: NotifyConfig{
			EmailEnabled:      parseBool(k.String("NOTIFY_EMAIL_ENABLED")),
			EmailFrom:         valueOrDefault(k.String("NOTIFY_EMAIL_FROM"), "orders@example.com"),
			SMSEnabled:        parseBool(k.String("NOTIFY_SMS_ENABLED")),
			TwilioAccountSID:  k.String("TWILIO_ACCOUNT_SID"),
			TwilioAuthToken:   k.String("TWILIO_AUTH_TOKEN"),
			TwilioFrom:        k.String("TWILIO_PHONE_NUMBER"),
			DefaultCountry:    valueOrDefault(k.String("NOTIFY_SMS_DEFAULT_COUNTRY_CODE"), "+1"),
			TelegramToken:     k.String("TELEGRAM_BOT_TOKEN"),
			TelegramChatID:    int64(parseInt(k.String("TELEGRAM_KITCHEN_CHAT_ID"), 0)),
			TrackingBaseURL:   strings.TrimRight(k.String("ORDER_TRACKING_BASE_URL"), "/"),
			WorkerConcurrency: parseInt(k.String("WORKER_CONCURRENCY"), 10),
		},
		Audit: AuditConfig{
			Enabled:      parseBoolDefault(k.String("AUDIT_ENABLED"), true),
			SamplingRate: parseFloat(k.String("AUDIT_SAMPLING_RATE"), 1),
		},
		Security: SecurityConfig{
			AlertWindow:        parseDuration(k.String("SECURITY_ALERT_WINDOW"), "10m"),
			BlocklistSyncEvery: parseDuration(k.String("BLOCKLIST_SYNC_INTERVAL"), "1m"),
		},
		Pprof: PprofConfig{
			Enabled: parseBool(k.String("PPROF_ENABLED")),
			User:    strings.TrimSpace(k.String("PPROF_BASIC_AUTH_USER")),
			Pass:    strings.TrimSpace(k.String("PPROF_BASIC_AUTH_PASS")),
		},
		IdempotencyTTL: parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		BodyLimitBytes: int64(parseInt(k.String("BODY_LIMIT_BYTES"), 1<<20)),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.Auth.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Catalog.Source {
	case "embedded", "postgres":
	case "file":
		if c.Catalog.Path == "" {
			return errors.New("CATALOG_PATH is required when CATALOG_SOURCE=file")
		}
	default:
		return fmt.Errorf("CATALOG_SOURCE %q is not supported", c.Catalog.Source)
	}
	switch c.Payment.Provider {
	case "stub":
	case "stripe":
		if c.Payment.StripeSecretKey == "" {
			return errors.New("STRIPE_SECRET_KEY is required when PAYMENT_PROVIDER=stripe")
		}
	default:
		return fmt.Errorf("PAYMENT_PROVIDER %q is not supported", c.Payment.Provider)
	}
	if c.Pricing.MaxQuantityPerLine <= 0 {
		return errors.New("PRICING_MAX_QUANTITY must be positive")
	}
	if c.Pricing.MinTotalMinor <= 0 || c.Pricing.MinTotalMinor > c.Pricing.MaxTotalMinor {
		return errors.New("PRICING_MIN_TOTAL must be positive and not above PRICING_MAX_TOTAL")
	}
	if c.Pricing.SurchargeBps < 0 || c.Pricing.SurchargeBps > 10000 {
		return errors.New("PRICING_SURCHARGE_BPS must be between 0 and 10000")
	}
	if c.Pprof.Enabled && c.IsProduction() && c.Pprof.User == "" {
		return errors.New("PPROF_BASIC_AUTH_USER is required to enable pprof in production")
	}
	if c.Notify.SMSEnabled && (c.Notify.TwilioAccountSID == "" || c.Notify.TwilioAuthToken == "" || c.Notify.TwilioFrom == "") {
		return errors.New("TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_PHONE_NUMBER are required when NOTIFY_SMS_ENABLED")
	}
	return nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// IsProduction reports whether the service runs with production defaults.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseBool(value string) bool {
	return parseBoolDefault(value, false)
}

func parseBoolDefault(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func parseInt(value string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return v
}

func parseFloat(value string, fallback float64) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return v
}

// parseMinor converts a major-unit decimal setting such as "100000" or "0.01" into minor units.
func parseMinor(value, fallback string) (int64, error) {
	d, err := decimal.NewFromString(valueOrDefault(value, fallback))
	if err != nil {
		return 0, err
	}
	minor := d.Shift(2)
	if !minor.IsInteger() {
		return 0, fmt.Errorf("%s has more than two decimal places", d.String())
	}
	return minor.IntPart(), nil
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
