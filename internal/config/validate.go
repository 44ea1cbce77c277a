package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ValidationError represents a configuration validation error with context.
type ValidationError struct {
	Field   string
	Message string
	Hint    string
}

func (e ValidationError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s (hint: %s)", e.Field, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Field   string
	Message string
	Hint    string
}

// ValidationResult contains the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// Error returns a combined error message if there are validation errors.
func (r *ValidationResult) Error() string {
	if !r.HasErrors() {
		return ""
	}
	var msgs []string
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the configuration for errors and returns validation results.
// It returns both errors (fatal) and warnings (non-fatal issues).
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{}

	c.Grist.validate(result)
	c.Observability.validate(result)

	return result
}

func (g *GristConfig) validate(result *ValidationResult) {
	baseURL := strings.TrimSpace(g.BaseURL)
	if baseURL == "" {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "grist.base_url",
			Message: "base URL is required",
			Hint:    "set grist.base_url or GRIST_MCP_GRIST_BASE_URL (e.g. https://docs.getgrist.com)",
		})
	} else {
		u, err := url.Parse(baseURL)
		switch {
		case err != nil:
			result.Errors = append(result.Errors, ValidationError{
				Field:   "grist.base_url",
				Message: fmt.Sprintf("invalid URL: %v", err),
			})
		case u.Scheme != "http" && u.Scheme != "https":
			result.Errors = append(result.Errors, ValidationError{
				Field:   "grist.base_url",
				Message: fmt.Sprintf("unsupported scheme %q", u.Scheme),
				Hint:    "use http:// or https://",
			})
		case u.Host == "":
			result.Errors = append(result.Errors, ValidationError{
				Field:   "grist.base_url",
				Message: "URL has no host",
			})
		case u.Scheme == "http" && !isLoopbackHost(u.Hostname()):
			result.Warnings = append(result.Warnings, ValidationWarning{
				Field:   "grist.base_url",
				Message: "plaintext HTTP to a non-local Grist instance sends the API key unencrypted",
				Hint:    "use https:// for remote instances",
			})
		}
	}

	if strings.TrimSpace(g.APIKey) == "" && !g.APIKeyPrompt {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "grist.api_key",
			Message: "API key is required",
			Hint:    "set grist.api_key, grist.api_key_file, GRIST_MCP_GRIST_API_KEY, or enable grist.api_key_prompt",
		})
	}

	if g.Timeout < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "grist.timeout",
			Message: "timeout cannot be negative",
		})
	}
	if g.Timeout == 0 {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "grist.timeout",
			Message: "timeout of 0 disables the per-request deadline",
			Hint:    "set grist.timeout (e.g. 30s) to bound API calls",
		})
	}
}

func (o *ObservabilityConfig) validate(result *ValidationResult) {
	if o.ServiceName == "" {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "observability.service_name",
			Message: "service name is required",
		})
	}

	if o.TraceSampleRatio < 0 || o.TraceSampleRatio > 1 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "observability.trace_sample_ratio",
			Message: fmt.Sprintf("sample ratio %v is out of range", o.TraceSampleRatio),
			Hint:    "use a value between 0.0 and 1.0",
		})
	}

	switch o.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		result.Errors = append(result.Errors, ValidationError{
			Field:   "observability.logging.level",
			Message: fmt.Sprintf("unknown log level %q", o.Logging.Level),
			Hint:    "use debug, info, warn, or error",
		})
	}

	switch o.Logging.Format {
	case "", "json", "text":
	default:
		result.Errors = append(result.Errors, ValidationError{
			Field:   "observability.logging.format",
			Message: fmt.Sprintf("unknown log format %q", o.Logging.Format),
			Hint:    "use json or text",
		})
	}

	if o.MetricsEnabled {
		if _, _, err := net.SplitHostPort(o.MetricsAddr); err != nil {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "observability.metrics_addr",
				Message: fmt.Sprintf("invalid listen address %q", o.MetricsAddr),
				Hint:    "use host:port (e.g. localhost:9464)",
			})
		}
	}

	switch o.MetricsTLS.Mode {
	case "":
	case "file":
		if o.MetricsTLS.CertFile == "" || o.MetricsTLS.KeyFile == "" {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "observability.metrics_tls",
				Message: "file mode requires both cert_file and key_file",
			})
		}
	case "selfsigned":
		if o.MetricsTLS.CertDir == "" {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "observability.metrics_tls.cert_dir",
				Message: "selfsigned mode requires a certificate directory",
			})
		}
	default:
		result.Errors = append(result.Errors, ValidationError{
			Field:   "observability.metrics_tls.mode",
			Message: fmt.Sprintf("unknown TLS mode %q", o.MetricsTLS.Mode),
			Hint:    "use file or selfsigned, or leave empty for plaintext",
		})
	}

	validateOTLP(result, "observability.otlp", o.OTLP)
	if o.Traces != nil {
		validateOTLP(result, "observability.traces", o.GetTracesConfig())
	}
	if o.Logs != nil {
		validateOTLP(result, "observability.logs", o.GetLogsConfig())
	}
}

func validateOTLP(result *ValidationResult, field string, cfg OTLPConfig) {
	switch strings.ToLower(strings.TrimSpace(cfg.Protocol)) {
	case "", "grpc", "http", "http/protobuf":
	default:
		result.Errors = append(result.Errors, ValidationError{
			Field:   field + ".protocol",
			Message: fmt.Sprintf("unsupported OTLP protocol %q", cfg.Protocol),
			Hint:    "use grpc or http/protobuf",
		})
	}

	switch cfg.Compression {
	case "", "none", "gzip":
	default:
		result.Errors = append(result.Errors, ValidationError{
			Field:   field + ".compression",
			Message: fmt.Sprintf("unsupported compression %q", cfg.Compression),
			Hint:    "use none or gzip",
		})
	}

	if (cfg.TLSClientCertFile == "") != (cfg.TLSClientKeyFile == "") {
		result.Errors = append(result.Errors, ValidationError{
			Field:   field,
			Message: "TLS client cert and key must both be set for mTLS",
		})
	}
}

func isLoopbackHost(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
