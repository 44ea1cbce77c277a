package pagebuilder

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/gwhthompson/grist-mcp-server-sub001/internal/actions"
	"github.com/gwhthompson/grist-mcp-server-sub001/internal/grist"
	"github.com/gwhthompson/grist-mcp-server-sub001/internal/logging"
	"github.com/gwhthompson/grist-mcp-server-sub001/internal/observability"
)

// Applier is the single RPC through which every mutation happens.
type Applier interface {
	Apply(ctx context.Context, docID string, actions [][]any) (*grist.ApplyResult, error)
}

// ShapeError reports that the apply RPC returned a different count or shape
// of results than the batch implies. Phase is the caller-supplied context
// label naming the phase that sent the batch.
type ShapeError struct {
	Phase  string
	Want   int
	Got    int
	Detail string
}

func (e *ShapeError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Phase, e.Detail)
	}
	return fmt.Sprintf("%s: expected %d action results, got %d", e.Phase, e.Want, e.Got)
}

// SectionResult carries the identifiers returned by a create-view-section
// action. These are the only channel by which later phases learn what
// earlier phases created.
type SectionResult struct {
	TableRef   int64 `json:"tableRef"`
	ViewRef    int64 `json:"viewRef"`
	SectionRef int64 `json:"sectionRef"`
}

// Pipeline sends action batches and validates their results. It performs no
// retries; a failed phase aborts the build and leaves earlier phases'
// mutations in the document.
type Pipeline struct {
	applier Applier
	logger  *logging.Logger
	metrics *observability.BuildMetrics
}

// NewPipeline builds an apply pipeline over the given applier.
func NewPipeline(applier Applier, logger *logging.Logger, metrics *observability.BuildMetrics) *Pipeline {
	if logger == nil {
		logger = &logging.Logger{Logger: slog.Default()}
	}
	return &Pipeline{
		applier: applier,
		logger:  logger.WithFields(slog.String("component", "page_builder")),
		metrics: metrics,
	}
}

// Apply sends one batch and checks that the result count matches the batch.
// The phase label is embedded in every error for diagnostics.
func (p *Pipeline) Apply(ctx context.Context, docID string, batch actions.Batch, phase string) ([]json.RawMessage, error) {
	if len(batch) == 0 {
		return nil, nil
	}

	result, err := p.applier.Apply(ctx, docID, batch.Payload())
	if p.metrics != nil {
		p.metrics.RecordApply(ctx, len(batch), err == nil)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", phase, err)
	}
	if len(result.RetValues) != len(batch) {
		return nil, &ShapeError{Phase: phase, Want: len(batch), Got: len(result.RetValues)}
	}

	p.logger.Debug("phase applied",
		slog.String("doc_id", docID),
		slog.String("phase", phase),
		slog.Int("actions", len(batch)),
		slog.Int64("action_num", result.ActionNum),
	)
	return result.RetValues, nil
}

// CreateSections applies a batch and decodes the section results of every
// create-view-section action in it. A phase that must yield at least one
// created section but yields zero is a prerequisite failure.
func (p *Pipeline) CreateSections(ctx context.Context, docID string, batch actions.Batch, phase string) ([]SectionResult, error) {
	retValues, err := p.Apply(ctx, docID, batch, phase)
	if err != nil {
		return nil, err
	}

	var sections []SectionResult
	for i, action := range batch {
		if !action.CreatesSection() {
			continue
		}
		var section SectionResult
		if err := json.Unmarshal(retValues[i], &section); err != nil {
			return nil, &ShapeError{
				Phase:  phase,
				Detail: fmt.Sprintf("action %d returned a malformed section result: %v", i, err),
			}
		}
		if section.ViewRef == 0 || section.SectionRef == 0 {
			return nil, &ShapeError{
				Phase:  phase,
				Detail: fmt.Sprintf("action %d returned an incomplete section result %s", i, retValues[i]),
			}
		}
		sections = append(sections, section)
	}

	if len(sections) == 0 {
		return nil, fmt.Errorf("%s: no results returned from API; verify the table exists and you have access", phase)
	}
	return sections, nil
}
