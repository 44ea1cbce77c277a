package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Grist: GristConfig{
			BaseURL: "https://docs.getgrist.com",
			APIKey:  "test-key",
			Timeout: 30 * time.Second,
		},
		Observability: ObservabilityConfig{
			ServiceName:      "grist-mcp-server",
			Environment:      "test",
			TraceSampleRatio: 1.0,
			MetricsAddr:      "localhost:9464",
			Logging: LoggingConfig{
				Level:  "info",
				Format: "text",
			},
		},
	}
}

func TestLoad_Precedence(t *testing.T) {
	dir := t.TempDir()
	cfgPath := dir + "/grist-mcp.yaml"
	require.NoError(t, os.WriteFile(cfgPath, []byte(
		"grist:\n  base_url: https://grist.internal.example.com\n  api_key: from-file\n  timeout: 1s\n",
	), 0o600))

	// Flags beat env, env beats the file, the file beats defaults.
	origArgs := os.Args
	os.Args = []string{"grist-mcp-server", "--config", cfgPath, "--grist.timeout=5s"}
	t.Cleanup(func() { os.Args = origArgs })
	t.Setenv("GRIST_MCP_GRIST_API_KEY", "from-env")
	t.Setenv("GRIST_MCP_GRIST_TIMEOUT", "9s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://grist.internal.example.com", cfg.Grist.BaseURL)
	assert.Equal(t, "from-env", cfg.Grist.APIKey)
	assert.Equal(t, 5*time.Second, cfg.Grist.Timeout)
}

func TestConfig_Validate_Valid(t *testing.T) {
	result := validConfig().Validate()
	assert.False(t, result.HasErrors(), "valid config should produce no errors: %s", result.Error())
}

func TestConfig_Validate_MissingAPIKey(t *testing.T) {
	cfg := validConfig()
	cfg.Grist.APIKey = ""

	result := cfg.Validate()
	require.True(t, result.HasErrors())
	assert.Contains(t, result.Error(), "grist.api_key")
	assert.Contains(t, result.Error(), "api_key_prompt", "hint should mention the prompt alternative")
}

func TestConfig_Validate_APIKeyPromptSatisfiesRequirement(t *testing.T) {
	cfg := validConfig()
	cfg.Grist.APIKey = ""
	cfg.Grist.APIKeyPrompt = true

	result := cfg.Validate()
	assert.False(t, result.HasErrors(), "prompt mode should not require a key up front")
}

func TestConfig_Validate_BaseURL(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		wantErr string
	}{
		{name: "empty", baseURL: "", wantErr: "base URL is required"},
		{name: "bad scheme", baseURL: "ftp://example.com", wantErr: "unsupported scheme"},
		{name: "no host", baseURL: "https://", wantErr: "no host"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Grist.BaseURL = tt.baseURL

			result := cfg.Validate()
			require.True(t, result.HasErrors())
			assert.Contains(t, result.Error(), tt.wantErr)
		})
	}
}

func TestConfig_Validate_PlaintextRemoteWarns(t *testing.T) {
	cfg := validConfig()
	cfg.Grist.BaseURL = "http://grist.example.com"

	result := cfg.Validate()
	assert.False(t, result.HasErrors())
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, "grist.base_url", result.Warnings[0].Field)
}

func TestConfig_Validate_PlaintextLocalhostAllowed(t *testing.T) {
	cfg := validConfig()
	cfg.Grist.BaseURL = "http://localhost:8484"

	result := cfg.Validate()
	assert.False(t, result.HasErrors())
	assert.Empty(t, result.Warnings)
}

func TestConfig_Validate_TraceSampleRatio(t *testing.T) {
	cfg := validConfig()
	cfg.Observability.TraceSampleRatio = 1.5

	result := cfg.Validate()
	require.True(t, result.HasErrors())
	assert.Contains(t, result.Error(), "trace_sample_ratio")
}

func TestConfig_Validate_MetricsAddr(t *testing.T) {
	cfg := validConfig()
	cfg.Observability.MetricsEnabled = true
	cfg.Observability.MetricsAddr = "not-an-address"

	result := cfg.Validate()
	require.True(t, result.HasErrors())
	assert.Contains(t, result.Error(), "metrics_addr")
}

func TestConfig_Validate_MetricsTLS(t *testing.T) {
	cfg := validConfig()
	cfg.Observability.MetricsTLS = TLSConfig{Mode: "pkcs11"}
	result := cfg.Validate()
	require.True(t, result.HasErrors())
	assert.Contains(t, result.Error(), `unknown TLS mode "pkcs11"`)

	cfg = validConfig()
	cfg.Observability.MetricsTLS = TLSConfig{Mode: "file", CertFile: "/tmp/metrics.crt"}
	result = cfg.Validate()
	require.True(t, result.HasErrors())
	assert.Contains(t, result.Error(), "requires both cert_file and key_file")

	cfg = validConfig()
	cfg.Observability.MetricsTLS = TLSConfig{Mode: "selfsigned"}
	result = cfg.Validate()
	require.True(t, result.HasErrors())
	assert.Contains(t, result.Error(), "certificate directory")

	cfg = validConfig()
	cfg.Observability.MetricsTLS = TLSConfig{Mode: "selfsigned", CertDir: "/var/lib/grist-mcp/certs"}
	assert.False(t, cfg.Validate().HasErrors())
}

func TestConfig_Validate_OTLPClientCertPair(t *testing.T) {
	cfg := validConfig()
	cfg.Observability.OTLP.TLSClientCertFile = "/tmp/client.crt"

	result := cfg.Validate()
	require.True(t, result.HasErrors())
	assert.Contains(t, result.Error(), "client cert and key")
}

func TestMergeOTLPConfigs_SignalOverrides(t *testing.T) {
	base := OTLPConfig{
		Endpoint:    "collector:4317",
		Protocol:    "grpc",
		Compression: "gzip",
		Timeout:     10 * time.Second,
		Headers:     map[string]string{"x-team": "data"},
	}
	override := OTLPConfig{
		Endpoint: "traces-collector:4317",
		Headers:  map[string]string{"x-signal": "traces"},
	}

	merged := mergeOTLPConfigs(base, override)
	assert.Equal(t, "traces-collector:4317", merged.Endpoint)
	assert.Equal(t, "grpc", merged.Protocol)
	assert.Equal(t, "gzip", merged.Compression)
	assert.Equal(t, 10*time.Second, merged.Timeout)
	assert.Equal(t, "data", merged.Headers["x-team"])
	assert.Equal(t, "traces", merged.Headers["x-signal"])
}

func TestReadSecretFile_TrimsWhitespace(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/key"
	require.NoError(t, os.WriteFile(path, []byte("  secret-key\n"), 0600))

	key, err := readSecretFile(path)
	require.NoError(t, err)
	assert.Equal(t, "secret-key", key)
}

func TestReadSecretFile_Missing(t *testing.T) {
	_, err := readSecretFile("/nonexistent/key")
	require.Error(t, err)
}
