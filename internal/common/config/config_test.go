package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("SOURCING_APP_KEY", "test-key")
	t.Setenv("SOURCING_APP_SECRET", "test-secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 7*24*time.Hour, cfg.Cache.ImageTTL)
	assert.Equal(t, int64(5<<30), cfg.Cache.MaxBytes)
	assert.Equal(t, 50_000, cfg.Cache.MaxEntries)

	assert.InDelta(t, 0.3, cfg.Similarity.HashThreshold, 1e-9)
	assert.InDelta(t, 0.8, cfg.Similarity.VisualWeight, 1e-9)

	assert.InDelta(t, 0.5, cfg.Matcher.ItemSimilarity, 1e-9)
	assert.Equal(t, 200, cfg.Matcher.MinResolution)
	assert.Equal(t, 5, cfg.Matcher.MaxRunnersUp)

	assert.Equal(t, int64(500_000), cfg.Filters.Store.MinRevenue30d)
	assert.Equal(t, 250, cfg.Filters.Store.MinOrders30d)

	assert.Equal(t, 2, cfg.Scraper.MaxRetries)
	assert.Equal(t, time.Second, cfg.Scraper.RetryGap)
	assert.Equal(t, 50, cfg.Scraper.MaxProducts)
	assert.Equal(t, 1, cfg.Scraper.CompetitorDepth)

	assert.Equal(t, 10, cfg.Sourcing.PageSize)
	assert.InDelta(t, 1.0, cfg.Sourcing.RatePerS, 1e-9)

	assert.Equal(t, 5*time.Second, cfg.Browser.LockPollWait)
	assert.Equal(t, "scout-results", cfg.Export.IndexPrefix)
}

func TestLoadPullsCredentialsFromEnv(t *testing.T) {
	t.Setenv("SOURCING_APP_KEY", "env-key")
	t.Setenv("SOURCING_APP_SECRET", "env-secret")
	t.Setenv("LLM_API_KEY", "env-llm")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "env-key", cfg.Sourcing.AppKey)
	assert.Equal(t, "env-secret", cfg.Sourcing.AppSecret)
	assert.Equal(t, "env-llm", cfg.Similarity.LLMAPIKey)
}

func TestValidateConfigRanges(t *testing.T) {
	base := func() *Config {
		cfg := &Config{}
		applyDefaults(cfg)
		return cfg
	}

	cfg := base()
	require.NoError(t, validateConfig(cfg))

	cfg = base()
	cfg.Similarity.VisualWeight = 1.5
	assert.Error(t, validateConfig(cfg))

	cfg = base()
	cfg.Similarity.HashThreshold = 0
	assert.Error(t, validateConfig(cfg))

	cfg = base()
	cfg.Matcher.ItemSimilarity = -0.1
	assert.Error(t, validateConfig(cfg))

	cfg = base()
	cfg.Export.Enabled = true
	cfg.Export.Addresses = nil
	assert.Error(t, validateConfig(cfg))
}
