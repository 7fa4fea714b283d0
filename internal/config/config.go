package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	CORSAllowedOrigins []string

	PublicBaseURL string
	Currency      string

	StripeSecretKey     string
	StripeWebhookSecret string

	BrevoAPIKey     string
	SenderName      string
	SenderEmail     string
	AdminEmail      string
	ShopName        string
	EmailEnabled    bool
	CartRemindDelay time.Duration

	OrderLinkSecret string
	OrderLinkMaxAge time.Duration

	ProductsFile  string
	DiscountsFile string

	OTLPEndpoint string
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		PublicBaseURL: strings.TrimRight(valueOrDefault(k.String("PUBLIC_BASE_URL"), "http://localhost:3000"), "/"),
		Currency:      strings.ToUpper(valueOrDefault(k.String("CURRENCY"), "PLN")),

		StripeSecretKey:     k.String("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: k.String("STRIPE_WEBHOOK_SECRET"),

		BrevoAPIKey:     k.String("BREVO_API_KEY"),
		SenderName:      valueOrDefault(k.String("MAIL_SENDER_NAME"), "Sklep"),
		SenderEmail:     k.String("MAIL_SENDER_EMAIL"),
		AdminEmail:      k.String("MAIL_ADMIN_EMAIL"),
		ShopName:        valueOrDefault(k.String("SHOP_NAME"), "Sklep"),
		EmailEnabled:    parseBool(valueOrDefault(k.String("MAIL_ENABLED"), "true")),
		CartRemindDelay: parseDuration(k.String("CART_REMINDER_DELAY"), "1h"),

		OrderLinkSecret: k.String("ORDER_LINK_SECRET"),
		OrderLinkMaxAge: parseDuration(k.String("ORDER_LINK_MAX_AGE"), "24h"),

		ProductsFile:  valueOrDefault(k.String("PRODUCTS_FILE"), "data/products.json"),
		DiscountsFile: valueOrDefault(k.String("DISCOUNTS_FILE"), "data/discounts.json"),

		OTLPEndpoint: k.String("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.StripeSecretKey == "" {
		return nil, errors.New("STRIPE_SECRET_KEY is required")
	}
	if cfg.StripeWebhookSecret == "" {
		return nil, errors.New("STRIPE_WEBHOOK_SECRET is required")
	}
	if cfg.OrderLinkSecret == "" {
		return nil, errors.New("ORDER_LINK_SECRET is required")
	}
	if cfg.EmailEnabled && cfg.BrevoAPIKey == "" {
		return nil, errors.New("BREVO_API_KEY is required when mail is enabled")
	}
	if cfg.EmailEnabled && cfg.SenderEmail == "" {
		return nil, errors.New("MAIL_SENDER_EMAIL is required when mail is enabled")
	}

	return cfg, nil
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

// IsProduction reports whether the app runs with production settings.
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
		return value
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
