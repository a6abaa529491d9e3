package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(context.Background())
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "https://s3-ap-northeast-1.amazonaws.com/data.binance.vision", cfg.Provider.BaseURL)
	assert.Equal(t, "https://data.binance.vision/", cfg.Provider.DownloadPrefix)
	assert.Equal(t, 60*time.Second, cfg.Provider.Timeout)
	assert.Equal(t, 3, cfg.Provider.Retries)

	assert.Equal(t, 3, cfg.Walk.MaxEmptyRetries)

	assert.Equal(t, "downloads", cfg.Download.Destination)
	assert.Equal(t, 5, cfg.Download.Concurrency)
	assert.Equal(t, 3, cfg.Download.Retries)
	assert.True(t, cfg.Download.VerifyChecksum)
	assert.Equal(t, 30*time.Second, cfg.Download.Timeout)

	assert.False(t, cfg.Logging.Verbose)
}

func TestLoadOverrides(t *testing.T) {
	overrides := map[string]any{
		"download": map[string]any{
			"concurrency":     12,
			"verify_checksum": false,
		},
		"provider": map[string]any{
			"base_url": "https://mirror.test/listing",
		},
	}

	cfg, err := Load(context.Background(), overrides)
	require.NoError(t, err)

	assert.Equal(t, 12, cfg.Download.Concurrency)
	assert.False(t, cfg.Download.VerifyChecksum)
	assert.Equal(t, "https://mirror.test/listing", cfg.Provider.BaseURL)
	// Untouched keys keep defaults.
	assert.Equal(t, "downloads", cfg.Download.Destination)
}

func TestLoadEnvironment(t *testing.T) {
	t.Setenv("HISTVISION_DOWNLOAD_CONCURRENCY", "9")
	t.Setenv("HISTVISION_LOGGING_VERBOSE", "true")

	cfg, err := Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 9, cfg.Download.Concurrency)
	assert.True(t, cfg.Logging.Verbose)
}

func TestLoadRejectsInvalidConcurrency(t *testing.T) {
	overrides := map[string]any{
		"download": map[string]any{"concurrency": 0},
	}
	_, err := Load(context.Background(), overrides)
	assert.Error(t, err)
}
