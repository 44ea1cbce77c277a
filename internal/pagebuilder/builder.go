// Package pagebuilder turns declarative page pattern descriptions into
// sequences of document mutations: it creates widgets, arranges them with a
// layout tree, links them, and reports what it built. Phases within one build
// are strictly sequential; each depends on identifiers returned by the
// previous phase. There is no compensating transaction across phases.
package pagebuilder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/gwhthompson/grist-mcp-server-sub001/internal/actions"
	"github.com/gwhthompson/grist-mcp-server-sub001/internal/logging"
	"github.com/gwhthompson/grist-mcp-server-sub001/internal/observability"
	"github.com/gwhthompson/grist-mcp-server-sub001/internal/refs"
)

// PageBuilder dispatches page configs to the matching pattern builder.
type PageBuilder struct {
	resolver *refs.Resolver
	pipeline *Pipeline
	logger   *logging.Logger
	metrics  *observability.BuildMetrics
}

// New builds a page builder over the given resolver and pipeline.
func New(resolver *refs.Resolver, pipeline *Pipeline, logger *logging.Logger, metrics *observability.BuildMetrics) *PageBuilder {
	if logger == nil {
		logger = &logging.Logger{Logger: slog.Default()}
	}
	return &PageBuilder{
		resolver: resolver,
		pipeline: pipeline,
		logger:   logger.WithFields(slog.String("component", "page_builder")),
		metrics:  metrics,
	}
}

// patternBuilder is the common capability behind the five pattern variants.
// Each implementation owns its phase sequence.
type patternBuilder interface {
	build(ctx context.Context, docID string) (*BuildResult, error)
}

// Build runs the pattern builder selected by cfg.Pattern. A failure in any
// phase aborts the remaining phases; mutations from completed phases are not
// rolled back, so a failed build needs manual inspection rather than blind
// retry.
func (b *PageBuilder) Build(ctx context.Context, docID string, cfg Config) (*BuildResult, error) {
	ctx, span := startSpan(ctx, "pagebuilder.build",
		attribute.String("grist.doc_id", docID),
		attribute.String("page.pattern", string(cfg.Pattern)),
	)
	defer span.End()

	builder, err := b.patternFor(docID, cfg)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}

	start := time.Now()
	result, err := builder.build(ctx, docID)
	if b.metrics != nil {
		b.metrics.RecordBuild(ctx, string(cfg.Pattern), time.Since(start), err == nil)
	}
	if err != nil {
		recordSpanError(span, err)
		b.logger.Error("page build failed",
			slog.String("doc_id", docID),
			slog.String("pattern", string(cfg.Pattern)),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("build %s page: %w", cfg.Pattern, err)
	}

	result.Success = true
	result.BuildID = uuid.NewString()
	result.Pattern = cfg.Pattern
	result.Description = cfg.Description
	b.logger.Info("page built",
		slog.String("doc_id", docID),
		slog.String("pattern", string(cfg.Pattern)),
		slog.String("page", result.PageName),
		slog.Int("widgets", len(result.Widgets)),
		slog.Duration("duration", time.Since(start)),
	)
	return result, nil
}

func (b *PageBuilder) patternFor(docID string, cfg Config) (patternBuilder, error) {
	switch cfg.Pattern {
	case PatternMasterDetail:
		if cfg.MasterDetail == nil {
			return nil, fmt.Errorf("pattern %s requires a master_detail config", cfg.Pattern)
		}
		return &masterDetailBuilder{deps: b, cfg: *cfg.MasterDetail, pageName: cfg.PageName}, nil
	case PatternHierarchical:
		if cfg.Hierarchical == nil {
			return nil, fmt.Errorf("pattern %s requires a hierarchical config", cfg.Pattern)
		}
		return &hierarchicalBuilder{deps: b, cfg: *cfg.Hierarchical, pageName: cfg.PageName}, nil
	case PatternChartDashboard:
		if cfg.ChartDashboard == nil {
			return nil, fmt.Errorf("pattern %s requires a chart_dashboard config", cfg.Pattern)
		}
		return &chartDashboardBuilder{deps: b, cfg: *cfg.ChartDashboard, pageName: cfg.PageName}, nil
	case PatternFormTable:
		if cfg.FormTable == nil {
			return nil, fmt.Errorf("pattern %s requires a form_table config", cfg.Pattern)
		}
		return &formTableBuilder{deps: b, cfg: *cfg.FormTable, pageName: cfg.PageName}, nil
	case PatternCustom:
		if cfg.Custom == nil {
			return nil, fmt.Errorf("pattern %s requires a custom config", cfg.Pattern)
		}
		return &customBuilder{deps: b, cfg: *cfg.Custom, pageName: cfg.PageName}, nil
	default:
		return nil, fmt.Errorf("unknown page pattern %q", cfg.Pattern)
	}
}

// applyPhase applies a batch and, when the batch mutated schema, invalidates
// the document's table-ref cache so later lookups see the new objects.
func (b *PageBuilder) applyPhase(ctx context.Context, docID string, batch actions.Batch, phase string) error {
	if _, err := b.pipeline.Apply(ctx, docID, batch, phase); err != nil {
		return err
	}
	if batch.MutatesSchema() {
		b.resolver.Invalidate(docID)
	}
	return nil
}

// createSections applies a batch and returns the created sections, with the
// same generic cache invalidation as applyPhase.
func (b *PageBuilder) createSections(ctx context.Context, docID string, batch actions.Batch, phase string) ([]SectionResult, error) {
	sections, err := b.pipeline.CreateSections(ctx, docID, batch, phase)
	if err != nil {
		return nil, err
	}
	if batch.MutatesSchema() {
		b.resolver.Invalidate(docID)
	}
	return sections, nil
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.Tracer("grist-mcp-server/pagebuilder")
	ctx, span := tracer.Start(ctx, name)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}

func recordSpanError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
