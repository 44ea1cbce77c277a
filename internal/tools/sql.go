package tools

import (
	"context"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/gwhthompson/grist-mcp-server-sub001/internal/format"
	"github.com/gwhthompson/grist-mcp-server-sub001/internal/grist"
	"github.com/gwhthompson/grist-mcp-server-sub001/internal/logging"
)

// SQLQuerier runs read-only SQL against a document.
type SQLQuerier interface {
	SQLQuery(ctx context.Context, docID, statement string, args []any) (*grist.SQLResult, error)
}

// QuerySQLTool runs a read-only SELECT against a document.
type QuerySQLTool struct {
	client SQLQuerier
	logger *logging.Logger
}

func NewQuerySQLTool(client SQLQuerier, logger *logging.Logger) *QuerySQLTool {
	return &QuerySQLTool{client: client, logger: logger}
}

func (t *QuerySQLTool) Definition() mcp.Tool {
	return mcp.NewTool("query_sql",
		mcp.WithDescription("Run a read-only SQL SELECT against a document. Use ? placeholders with args for parameters."),
		mcp.WithString("doc_id",
			mcp.Required(),
			mcp.Description("Document ID"),
		),
		mcp.WithString("statement",
			mcp.Required(),
			mcp.Description("SQL SELECT statement"),
		),
		mcp.WithArray("args",
			mcp.Description("Positional parameters for ? placeholders"),
		),
		withResponseFormat(),
	)
}

func (t *QuerySQLTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		DocID     string `json:"doc_id"`
		Statement string `json:"statement"`
		Args      []any  `json:"args,omitempty"`
	}
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if args.DocID == "" || args.Statement == "" {
		return mcp.NewToolResultError("doc_id and statement are required"), nil
	}

	result, err := t.client.SQLQuery(ctx, args.DocID, args.Statement, args.Args)
	if err != nil {
		t.logger.Error("sql query failed",
			slog.String("doc_id", args.DocID),
			slog.String("error", err.Error()),
		)
		return mcp.NewToolResultErrorFromErr("query failed", err), nil
	}
	return renderResult(req, result, func() string { return format.SQLRows(result) })
}
