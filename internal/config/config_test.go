package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/storefront")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_123")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_123")
	t.Setenv("ORDER_LINK_SECRET", "link-secret")
	t.Setenv("MAIL_ENABLED", "false")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "development", cfg.AppEnv)
	require.Equal(t, ":8080", cfg.HTTPAddr())
	require.Equal(t, "PLN", cfg.Currency)
	require.Equal(t, time.Hour, cfg.CartRemindDelay)
	require.Equal(t, 24*time.Hour, cfg.OrderLinkMaxAge)
	require.False(t, cfg.IsProduction())
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("DATABASE_URL", "")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadRequiresBrevoKeyWhenMailEnabled(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("MAIL_ENABLED", "true")
	t.Setenv("BREVO_API_KEY", "")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadTrimsPublicBaseURL(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PUBLIC_BASE_URL", "https://shop.example.com/")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "https://shop.example.com", cfg.PublicBaseURL)
}

func TestLoadSplitsCORSOrigins(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORSAllowedOrigins)
}
