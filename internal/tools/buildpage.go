package tools

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/gwhthompson/grist-mcp-server-sub001/internal/format"
	"github.com/gwhthompson/grist-mcp-server-sub001/internal/logging"
	"github.com/gwhthompson/grist-mcp-server-sub001/internal/pagebuilder"
	"github.com/gwhthompson/grist-mcp-server-sub001/internal/refs"
)

// PageBuilder turns a page config into document mutations.
type PageBuilder interface {
	Build(ctx context.Context, docID string, cfg pagebuilder.Config) (*pagebuilder.BuildResult, error)
}

// BuildPageTool creates a multi-widget page from a pattern description.
type BuildPageTool struct {
	builder PageBuilder
	logger  *logging.Logger
}

func NewBuildPageTool(builder PageBuilder, logger *logging.Logger) *BuildPageTool {
	return &BuildPageTool{builder: builder, logger: logger}
}

func (t *BuildPageTool) Definition() mcp.Tool {
	return mcp.NewTool("build_page",
		mcp.WithDescription("Create a page of linked widgets from a pattern description. "+
			"Patterns: master_detail (list plus filtered detail), hierarchical (summary drill-down levels), "+
			"chart_dashboard (optional selector plus charts), form_table (entry form over a table), "+
			"custom (arbitrary widgets with optional links and layout). "+
			"Set exactly the config field matching the chosen pattern. "+
			"A failed build is not rolled back; inspect the document before retrying."),
		mcp.WithString("doc_id",
			mcp.Required(),
			mcp.Description("Document ID"),
		),
		mcp.WithString("pattern",
			mcp.Required(),
			mcp.Description("One of: master_detail, hierarchical, chart_dashboard, form_table, custom"),
			mcp.Enum("master_detail", "hierarchical", "chart_dashboard", "form_table", "custom"),
		),
		mcp.WithString("page_name",
			mcp.Description("Name for the new page; each pattern has a sensible default"),
		),
		mcp.WithString("description",
			mcp.Description("Free-text description echoed back in the result"),
		),
		mcp.WithObject("master_detail",
			mcp.Description("Master/detail config: master {table, widget_type, title, width}, detail {table, widget_type, title, link_field}, split (vertical|horizontal)"),
		),
		mcp.WithObject("hierarchical",
			mcp.Description("Drill-down config: levels, each {table, group_by, title}; every level except the last needs group_by"),
		),
		mcp.WithObject("chart_dashboard",
			mcp.Description("Dashboard config: optional selector {table, widget_type, title} plus charts, each {table, chart_type, title, x_axis, y_axes, options}"),
		),
		mcp.WithObject("form_table",
			mcp.Description("Form-over-table config: form {table, title}, table {table, widget_type, title}, split (vertical|horizontal)"),
		),
		mcp.WithObject("custom",
			mcp.Description("Custom config: widgets, each {table, widget_type, title, description, link_to, link_field}, plus optional serialized layout whose leaves are widget indexes"),
		),
	)
}

func (t *BuildPageTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		DocID string `json:"doc_id"`
		pagebuilder.Config
	}
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if args.DocID == "" {
		return mcp.NewToolResultError("doc_id is required"), nil
	}

	result, err := t.builder.Build(ctx, args.DocID, args.Config)
	if err != nil {
		t.logger.Error("build page failed",
			slog.String("doc_id", args.DocID),
			slog.String("pattern", string(args.Pattern)),
			slog.String("error", err.Error()),
		)

		// Name resolution failures carry the available names; surface them
		// verbatim so the caller can correct the config.
		var notFound *refs.NotFoundError
		if errors.As(err, &notFound) {
			return mcp.NewToolResultError(notFound.Error()), nil
		}
		return mcp.NewToolResultErrorFromErr("page build failed", err), nil
	}

	return mcp.NewToolResultText(format.BuildResult(result)), nil
}
