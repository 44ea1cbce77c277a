package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gwhthompson/grist-mcp-server-sub001/internal/config"
	"github.com/gwhthompson/grist-mcp-server-sub001/internal/logging"
	"github.com/gwhthompson/grist-mcp-server-sub001/internal/observability"
	"github.com/gwhthompson/grist-mcp-server-sub001/internal/tlscert"
)

// InitLogger builds the process logger and, when log exports are enabled,
// the OTLP logger provider feeding it.
func InitLogger(cfg *config.Config) (*logging.Logger, *observability.LoggerProvider, error) {
	loggerCfg := logging.Config{
		Level:  cfg.Observability.Logging.Level,
		Format: cfg.Observability.Logging.Format,
	}
	logger := logging.NewLogger(loggerCfg)
	slog.SetDefault(logger.Logger)

	if !cfg.Observability.Logging.ExportsEnabled {
		return logger, nil, nil
	}

	logsConfig := cfg.Observability.GetLogsConfig()
	logger.Info("initializing OpenTelemetry logging",
		slog.String("service_name", cfg.Observability.ServiceName),
		slog.String("otlp_endpoint", logsConfig.Endpoint),
		slog.String("otlp_protocol", logsConfig.Protocol),
		slog.Bool("insecure", logsConfig.Insecure),
	)

	loggerProvider, err := observability.InitLoggerProvider(observability.Config{
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		Environment:    cfg.Observability.Environment,
		OTLPConfig:     otlpExporterConfig(logsConfig),
	})
	if err != nil {
		return nil, nil, err
	}

	loggerCfg.LoggerProvider = loggerProvider.Provider()
	logger = logging.NewLogger(loggerCfg)
	slog.SetDefault(logger.Logger)

	return logger, loggerProvider, nil
}

// InitMetrics builds the Prometheus-backed meter provider and the build
// metrics instruments. Both are nil when metrics are disabled.
func InitMetrics(cfg *config.Config, logger *logging.Logger) (*observability.MeterProvider, *observability.BuildMetrics, error) {
	if !cfg.Observability.MetricsEnabled {
		return nil, nil, nil
	}

	logger.Info("initializing OpenTelemetry metrics",
		slog.String("service_name", cfg.Observability.ServiceName),
		slog.String("environment", cfg.Observability.Environment),
	)

	meterProvider, err := observability.InitMeterProvider(observability.Config{
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		Environment:    cfg.Observability.Environment,
	})
	if err != nil {
		return nil, nil, err
	}

	buildMetrics, err := observability.InitBuildMetrics(logger.Logger)
	if err != nil {
		return nil, nil, err
	}

	return meterProvider, buildMetrics, nil
}

// InitTracing builds the OTLP tracer provider, or nil when tracing is
// disabled.
func InitTracing(cfg *config.Config, logger *logging.Logger) (*observability.TracerProvider, error) {
	if !cfg.Observability.TracingEnabled {
		return nil, nil
	}

	tracesConfig := cfg.Observability.GetTracesConfig()
	logger.Info("initializing OpenTelemetry tracing",
		slog.String("service_name", cfg.Observability.ServiceName),
		slog.String("otlp_endpoint", tracesConfig.Endpoint),
		slog.String("otlp_protocol", tracesConfig.Protocol),
		slog.Bool("insecure", tracesConfig.Insecure),
	)

	return observability.InitTracerProvider(observability.Config{
		ServiceName:      cfg.Observability.ServiceName,
		ServiceVersion:   cfg.Observability.ServiceVersion,
		Environment:      cfg.Observability.Environment,
		TraceSampleRatio: cfg.Observability.TraceSampleRatio,
		OTLPConfig:       otlpExporterConfig(tracesConfig),
	})
}

// StartMetricsListener serves the Prometheus scrape endpoint on its own
// listener, separate from the stdio MCP transport, optionally behind TLS.
// The returned shutdown function stops the listener.
func StartMetricsListener(cfg *config.Config, logger *logging.Logger) (func(context.Context) error, error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:         cfg.Observability.MetricsAddr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	serve := srv.ListenAndServe
	scheme := "http"
	if mode := cfg.Observability.MetricsTLS.Mode; mode != "" {
		manager, err := tlscert.NewManager(tlscert.Config{
			Mode:     tlscert.Mode(mode),
			CertFile: cfg.Observability.MetricsTLS.CertFile,
			KeyFile:  cfg.Observability.MetricsTLS.KeyFile,
			CertDir:  cfg.Observability.MetricsTLS.CertDir,
			Hosts:    cfg.Observability.MetricsTLS.Hosts,
		}, logger.Logger)
		if err != nil {
			return nil, fmt.Errorf("metrics listener TLS: %w", err)
		}
		srv.TLSConfig, err = manager.TLSConfig()
		if err != nil {
			return nil, fmt.Errorf("metrics listener TLS: %w", err)
		}
		serve = func() error { return srv.ListenAndServeTLS("", "") }
		scheme = "https"
		logger.Info("metrics listener TLS enabled", slog.String("certs", manager.Description()))
	}

	go func() {
		logger.Info("metrics endpoint enabled",
			slog.String("addr", cfg.Observability.MetricsAddr),
			slog.String("path", "/metrics"),
			slog.String("scheme", scheme),
		)
		if err := serve(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics listener failed", slog.String("error", err.Error()))
		}
	}()

	return srv.Shutdown, nil
}

func otlpExporterConfig(cfg config.OTLPConfig) observability.OTLPExporterConfig {
	return observability.OTLPExporterConfig{
		Endpoint:          cfg.Endpoint,
		Protocol:          cfg.Protocol,
		Insecure:          cfg.Insecure,
		TLSCertFile:       cfg.TLSCertFile,
		TLSClientCertFile: cfg.TLSClientCertFile,
		TLSClientKeyFile:  cfg.TLSClientKeyFile,
		Headers:           cfg.Headers,
		Timeout:           cfg.Timeout,
		Compression:       cfg.Compression,
		RetryEnabled:      cfg.RetryEnabled,
		RetryMaxAttempts:  cfg.RetryMaxAttempts,
	}
}
