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

	"github.com/noah-isme/storefront-bff/internal/pricing"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	RedisURL           string
	CORSAllowedOrigins []string
	CookieSecure       bool
	Currency           string

	OrderServiceURL     string
	OrderCreatePath     string
	OrderGetPath        string
	CatalogListPath     string
	CatalogDetailPath   string
	CheckoutTimeout     time.Duration
	ReadTimeout         time.Duration
	RetryBase           time.Duration
	RetryMaxDelay       time.Duration
	RetryMaxRetries     int
	BreakerMinRequests  int
	BreakerFailureRatio float64
	BreakerOpenFor      time.Duration
	BreakerWindow       time.Duration

	CatalogCacheTTL    time.Duration
	CatalogCacheDriver string
	CartTTL            time.Duration
	OrderStateTTL      time.Duration
	IdempotencyTTL     time.Duration
	CheckoutRateLimit  string
	BodyLimitBytes     int64

	FeeMode    pricing.FeeMode
	FeePercent float64
	FeeFixed   pricing.Money
	FeeLabel   string

	ShippingFreeThreshold int
	ShippingFlatFee       pricing.Money

	KafkaBrokers []string
	KafkaTopic   string

	WorkerConcurrency    int
	OrderRefreshDelay    time.Duration
	OrderRefreshMaxRetry int
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	feeMode, err := pricing.ParseFeeMode(k.String("PAYMENT_FEE_MODE"))
	if err != nil {
		return nil, fmt.Errorf("PAYMENT_FEE_MODE: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		RedisURL:           k.String("REDIS_URL"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		CookieSecure:       parseBool(k.String("COOKIE_SECURE")),
		Currency:           valueOrDefault(k.String("CURRENCY_CODE"), "ARS"),

		OrderServiceURL:     strings.TrimRight(strings.TrimSpace(k.String("ORDER_SERVICE_URL")), "/"),
		OrderCreatePath:     valueOrDefault(k.String("ORDER_CREATE_PATH"), "/api/pedidos/crear"),
		OrderGetPath:        valueOrDefault(k.String("ORDER_GET_PATH"), "/api/pedidos/{id}"),
		CatalogListPath:     valueOrDefault(k.String("CATALOG_LIST_PATH"), "/api/productos"),
		CatalogDetailPath:   valueOrDefault(k.String("CATALOG_DETAIL_PATH"), "/api/productos/{id}"),
		CheckoutTimeout:     parseDuration(k.String("CHECKOUT_TIMEOUT"), "15s"),
		ReadTimeout:         parseDuration(k.String("READ_TIMEOUT"), "10s"),
		RetryBase:           parseDuration(k.String("READ_RETRY_BASE"), "1s"),
		RetryMaxDelay:       parseDuration(k.String("READ_RETRY_MAX_DELAY"), "8s"),
		RetryMaxRetries:     parseInt(k.String("READ_RETRY_MAX_RETRIES"), 3),
		BreakerMinRequests:  parseInt(k.String("BREAKER_MIN_REQUESTS"), 10),
		BreakerFailureRatio: parseFloat(k.String("BREAKER_FAILURE_RATIO"), 0.5),
		BreakerOpenFor:      parseDuration(k.String("BREAKER_OPEN_FOR"), "30s"),
		BreakerWindow:       parseDuration(k.String("BREAKER_WINDOW"), "60s"),

		CatalogCacheTTL:    parseDuration(k.String("CATALOG_CACHE_TTL"), "5m"),
		CatalogCacheDriver: strings.ToLower(valueOrDefault(k.String("CATALOG_CACHE_DRIVER"), "memory")),
		CartTTL:            parseDuration(k.String("CART_TTL"), "168h"),
		OrderStateTTL:      parseDuration(k.String("ORDER_STATE_TTL"), "168h"),
		IdempotencyTTL:     parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		CheckoutRateLimit:  valueOrDefault(k.String("CHECKOUT_RATE_LIMIT"), "10-M"),
		BodyLimitBytes:     int64(parseInt(k.String("BODY_LIMIT_BYTES"), 64<<10)),

		FeeMode:    feeMode,
		FeePercent: parseFloat(k.String("PAYMENT_FEE_PERCENT"), 0),
		FeeFixed:   pricing.Money(parseInt(k.String("PAYMENT_FEE_FIXED"), 0)),
		FeeLabel:   valueOrDefault(k.String("PAYMENT_FEE_LABEL"), "Costo de procesamiento"),

		ShippingFreeThreshold: parseInt(k.String("SHIPPING_FREE_THRESHOLD_UNITS"), pricing.FreeShippingThreshold),
		ShippingFlatFee:       pricing.Money(parseInt(k.String("SHIPPING_FLAT_FEE"), int(pricing.FlatShippingFee))),

		KafkaBrokers: splitAndTrim(k.String("KAFKA_BROKERS")),
		KafkaTopic:   valueOrDefault(k.String("KAFKA_TOPIC"), "storefront.events"),

		WorkerConcurrency:    parseInt(k.String("WORKER_CONCURRENCY"), 5),
		OrderRefreshDelay:    parseDuration(k.String("ORDER_REFRESH_DELAY"), "30s"),
		OrderRefreshMaxRetry: parseInt(k.String("ORDER_REFRESH_MAX_RETRY"), 20),
	}

	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.OrderServiceURL == "" {
		return nil, errors.New("ORDER_SERVICE_URL is required")
	}
	if _, err := pricing.QuoteSurcharge(0, cfg.FeeConfig()); err != nil {
		return nil, fmt.Errorf("payment fee settings: %w", err)
	}
	if cfg.FeePercent < 0 || cfg.FeeFixed < 0 {
		return nil, fmt.Errorf("payment fee settings must not be negative: %w", pricing.ErrInvalidFeeConfig)
	}
	if cfg.ShippingFreeThreshold < 0 || cfg.ShippingFlatFee < 0 {
		return nil, errors.New("shipping settings must not be negative")
	}

	return cfg, nil
}

// FeeConfig returns the payment fee settings consumed by the surcharge calculator.
func (c *Config) FeeConfig() pricing.FeeConfig {
	return pricing.FeeConfig{Mode: c.FeeMode, Percent: c.FeePercent, Fixed: c.FeeFixed, Label: c.FeeLabel}
}

// ShippingPolicy returns the configured free-shipping rule.
func (c *Config) ShippingPolicy() pricing.ShippingPolicy {
	return pricing.ShippingPolicy{FreeThreshold: c.ShippingFreeThreshold, FlatFee: c.ShippingFlatFee}
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
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func parseInt(value string, fallback int) int {
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}

func parseFloat(value string, fallback float64) float64 {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return parsed
}

// MustLoad behaves like Load but panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]*string, len(env))
	for key := range env {
		if prev, ok := os.LookupEnv(key); ok {
			original[key] = &prev
		} else {
			original[key] = nil
		}
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

func restoreEnv(values map[string]*string) error {
	var errs []string
	for key, value := range values {
		var err error
		if value == nil {
			err = os.Unsetenv(key)
		} else {
			err = os.Setenv(key, *value)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
