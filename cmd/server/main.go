package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/pflag"

	"github.com/gwhthompson/grist-mcp-server-sub001/internal/config"
	"github.com/gwhthompson/grist-mcp-server-sub001/internal/server"
)

var (
	// Version is set at build time via -ldflags "-X main.Version=...".
	Version = "dev"
	Commit  = "none"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	pflag.Bool("version", false, "Print version and exit")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if showVersion, _ := pflag.CommandLine.GetBool("version"); showVersion {
		fmt.Printf("grist-mcp-server %s (%s)\n", Version, Commit)
		return nil
	}

	if cfg.Observability.ServiceVersion == "" {
		cfg.Observability.ServiceVersion = Version
	}
	server.Version = Version

	validationResult := cfg.Validate()
	for _, warn := range validationResult.Warnings {
		slog.Warn("configuration warning",
			slog.String("field", warn.Field),
			slog.String("message", warn.Message),
			slog.String("hint", warn.Hint),
		)
	}
	if validationResult.HasErrors() {
		for _, err := range validationResult.Errors {
			slog.Error("configuration error",
				slog.String("field", err.Field),
				slog.String("message", err.Message),
				slog.String("hint", err.Hint),
			)
		}
		return fmt.Errorf("configuration validation failed")
	}

	logger, loggerProvider, err := server.InitLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer func() {
		if loggerProvider != nil {
			_ = loggerProvider.Shutdown(context.Background(), logger.Logger)
		}
	}()

	meterProvider, buildMetrics, err := server.InitMetrics(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}
	defer func() {
		if meterProvider != nil {
			_ = meterProvider.Shutdown(context.Background(), logger.Logger)
		}
	}()

	tracerProvider, err := server.InitTracing(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		if tracerProvider != nil {
			_ = tracerProvider.Shutdown(context.Background(), logger.Logger)
		}
	}()

	if meterProvider != nil {
		stopMetrics, err := server.StartMetricsListener(cfg, logger)
		if err != nil {
			return err
		}
		defer func() { _ = stopMetrics(context.Background()) }()
	}

	s := server.New(cfg, logger, buildMetrics)

	logger.Info("starting MCP server on stdio",
		slog.String("version", Version),
		slog.String("grist_base_url", cfg.Grist.BaseURL),
	)

	// ServeStdio installs its own signal handling and returns when the
	// client disconnects or the process is interrupted.
	if err := mcpserver.ServeStdio(s); err != nil {
		return fmt.Errorf("server stopped: %w", err)
	}

	logger.Info("server stopped gracefully")
	return nil
}
