package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gwhthompson/grist-mcp-server-sub001/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Grist: config.GristConfig{
			BaseURL: "https://docs.getgrist.com",
			APIKey:  "test-key",
			Timeout: 30 * time.Second,
		},
		Observability: config.ObservabilityConfig{
			ServiceName: "grist-mcp-server",
			Environment: "test",
			Logging: config.LoggingConfig{
				Level:  "error",
				Format: "text",
			},
		},
	}
}

func TestNew_WiresServer(t *testing.T) {
	cfg := testConfig()

	logger, provider, err := InitLogger(cfg)
	require.NoError(t, err)
	assert.Nil(t, provider, "no OTLP provider without exports enabled")

	s := New(cfg, logger, nil)
	require.NotNil(t, s)
}

func TestInitMetrics_DisabledReturnsNil(t *testing.T) {
	cfg := testConfig()

	logger, _, err := InitLogger(cfg)
	require.NoError(t, err)

	mp, metrics, err := InitMetrics(cfg, logger)
	require.NoError(t, err)
	assert.Nil(t, mp)
	assert.Nil(t, metrics)
}

func TestInitTracing_DisabledReturnsNil(t *testing.T) {
	cfg := testConfig()

	logger, _, err := InitLogger(cfg)
	require.NoError(t, err)

	tp, err := InitTracing(cfg, logger)
	require.NoError(t, err)
	assert.Nil(t, tp)
}
