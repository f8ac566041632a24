package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "LOG_LEVEL", "LOG_FORMAT", "AI_PROVIDER", "AI_MODEL", "Model",
		"ARK_API_KEY", "ARK_ACCESS_KEY", "ARK_SECRET_KEY", "OPENAI_API_KEY",
		"AI_TEMPERATURE", "AI_TOP_P", "AI_MAX_TOKENS",
		"DIALOG_GENERATION_TIMEOUT", "DIALOG_LOCK_WAIT", "DIALOG_SESSION_TTL", "DIALOG_SWEEP_INTERVAL",
		"INVOICE_TERMS", "INVOICE_PAYMENT_METHODS",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":3001", cfg.Server.Addr)
	assert.InDelta(t, 2.0, cfg.Server.RateLimitRPS, 1e-9)
	assert.Equal(t, 5, cfg.Server.RateLimitBurst)
	assert.Equal(t, ProviderArk, cfg.AI.Provider)
	require.NotNil(t, cfg.AI.Temperature)
	assert.InDelta(t, 0.3, *cfg.AI.Temperature, 1e-9)
	assert.False(t, cfg.AI.Enabled())
	assert.Equal(t, 60*time.Second, cfg.Dialog.GenerationTimeout)
	assert.Equal(t, 30*time.Minute, cfg.Dialog.SessionTTL)
	assert.Equal(t, "Due on receipt", cfg.Invoice.Terms)
	assert.Equal(t, []string{"Card", "Cash", "Zelle"}, cfg.Invoice.PaymentMethods)
}

func TestLoadServerAddrVariants(t *testing.T) {
	clearEnv(t)

	t.Setenv("PORT", "127.0.0.1:9000")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)

	t.Setenv("PORT", "80 80")
	_, err = Load()
	assert.Error(t, err)
}

func TestLoadRejectsInvalidDuration(t *testing.T) {
	clearEnv(t)
	t.Setenv("DIALOG_SESSION_TTL", "soon")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DIALOG_SESSION_TTL")

	t.Setenv("DIALOG_SESSION_TTL", "-1m")
	_, err = Load()
	assert.Error(t, err)
}

func TestLoadRejectsUnknownProvider(t *testing.T) {
	clearEnv(t)
	t.Setenv("AI_PROVIDER", "carrier-pigeon")

	_, err := Load()
	assert.Error(t, err)
}

func TestOpenAIProviderCredentials(t *testing.T) {
	clearEnv(t)
	t.Setenv("AI_PROVIDER", "openai")
	t.Setenv("AI_MODEL", "gpt-4o-mini")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.AI.Enabled())
	assert.Equal(t, "https://api.openai.com/v1", cfg.AI.BaseURL)
}

func TestArkAcceptsLegacyModelVariable(t *testing.T) {
	clearEnv(t)
	t.Setenv("Model", "ep-2024")
	t.Setenv("ARK_ACCESS_KEY", "ak")
	t.Setenv("ARK_SECRET_KEY", "sk")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "ep-2024", cfg.AI.Model)
	assert.True(t, cfg.AI.Enabled())
}

func TestNewChatModelRequiresCredentials(t *testing.T) {
	_, err := AIConfig{Provider: ProviderArk}.NewChatModel(context.Background())
	assert.Error(t, err)
}

func TestPaymentMethodsList(t *testing.T) {
	clearEnv(t)
	t.Setenv("INVOICE_PAYMENT_METHODS", " Card , ,Check ")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"Card", "Check"}, cfg.Invoice.PaymentMethods)
}

func TestRateLimitSettings(t *testing.T) {
	clearEnv(t)
	t.Setenv("RATE_LIMIT_RPS", "0")
	t.Setenv("RATE_LIMIT_BURST", "10")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Zero(t, cfg.Server.RateLimitRPS)
	assert.Equal(t, 10, cfg.Server.RateLimitBurst)

	t.Setenv("RATE_LIMIT_BURST", "0")
	_, err = Load()
	assert.Error(t, err)
}
