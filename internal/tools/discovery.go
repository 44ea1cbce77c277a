// Package tools implements the MCP tools exposed by the server. Each tool
// is a small struct holding its dependencies, with a Definition describing
// the input schema and a Handle method executing the call.
package tools

import (
	"context"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/gwhthompson/grist-mcp-server-sub001/internal/format"
	"github.com/gwhthompson/grist-mcp-server-sub001/internal/grist"
	"github.com/gwhthompson/grist-mcp-server-sub001/internal/logging"
)

// WorkspaceLister lists the workspaces visible to the API key.
type WorkspaceLister interface {
	ListWorkspaces(ctx context.Context) ([]grist.Workspace, error)
}

// DocumentLister lists the documents of one workspace.
type DocumentLister interface {
	ListDocuments(ctx context.Context, workspaceID int64) ([]grist.Doc, error)
}

// MetadataLister lists the tables and columns of a document.
type MetadataLister interface {
	ListTables(ctx context.Context, docID string) ([]grist.TableMeta, error)
	ListColumns(ctx context.Context, docID, tableID string) ([]grist.ColumnMeta, error)
}

// ListWorkspacesTool lists workspaces and the documents they contain.
type ListWorkspacesTool struct {
	client WorkspaceLister
	logger *logging.Logger
}

func NewListWorkspacesTool(client WorkspaceLister, logger *logging.Logger) *ListWorkspacesTool {
	return &ListWorkspacesTool{client: client, logger: logger}
}

func (t *ListWorkspacesTool) Definition() mcp.Tool {
	return mcp.NewTool("list_workspaces",
		mcp.WithDescription("List all workspaces and their documents visible to the configured API key. Use this to find document IDs."),
		withResponseFormat(),
	)
}

func (t *ListWorkspacesTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workspaces, err := t.client.ListWorkspaces(ctx)
	if err != nil {
		t.logger.Error("list workspaces failed", slog.String("error", err.Error()))
		return mcp.NewToolResultErrorFromErr("failed to list workspaces", err), nil
	}
	return renderResult(req, workspaces, func() string { return format.Workspaces(workspaces) })
}

// ListDocumentsTool lists the documents of a workspace.
type ListDocumentsTool struct {
	client DocumentLister
	logger *logging.Logger
}

func NewListDocumentsTool(client DocumentLister, logger *logging.Logger) *ListDocumentsTool {
	return &ListDocumentsTool{client: client, logger: logger}
}

func (t *ListDocumentsTool) Definition() mcp.Tool {
	return mcp.NewTool("list_documents",
		mcp.WithDescription("List the documents of one workspace. Workspace IDs come from list_workspaces."),
		mcp.WithNumber("workspace_id",
			mcp.Required(),
			mcp.Description("Numeric workspace ID"),
		),
		withResponseFormat(),
	)
}

func (t *ListDocumentsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		WorkspaceID int64 `json:"workspace_id"`
	}
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if args.WorkspaceID <= 0 {
		return mcp.NewToolResultError("workspace_id must be a positive workspace ID"), nil
	}

	docs, err := t.client.ListDocuments(ctx, args.WorkspaceID)
	if err != nil {
		t.logger.Error("list documents failed",
			slog.Int64("workspace_id", args.WorkspaceID),
			slog.String("error", err.Error()),
		)
		return mcp.NewToolResultErrorFromErr("failed to list documents", err), nil
	}
	return renderResult(req, docs, func() string { return format.Documents(docs) })
}

// ListTablesTool lists the tables of a document.
type ListTablesTool struct {
	client MetadataLister
	logger *logging.Logger
}

func NewListTablesTool(client MetadataLister, logger *logging.Logger) *ListTablesTool {
	return &ListTablesTool{client: client, logger: logger}
}

func (t *ListTablesTool) Definition() mcp.Tool {
	return mcp.NewTool("list_tables",
		mcp.WithDescription("List the tables of a Grist document."),
		mcp.WithString("doc_id",
			mcp.Required(),
			mcp.Description("Document ID"),
		),
		withResponseFormat(),
	)
}

func (t *ListTablesTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docID, err := req.RequireString("doc_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	tables, err := t.client.ListTables(ctx, docID)
	if err != nil {
		t.logger.Error("list tables failed",
			slog.String("doc_id", docID),
			slog.String("error", err.Error()),
		)
		return mcp.NewToolResultErrorFromErr("failed to list tables", err), nil
	}
	return renderResult(req, tables, func() string { return format.Tables(tables) })
}

// ListColumnsTool lists the columns of a table.
type ListColumnsTool struct {
	client MetadataLister
	logger *logging.Logger
}

func NewListColumnsTool(client MetadataLister, logger *logging.Logger) *ListColumnsTool {
	return &ListColumnsTool{client: client, logger: logger}
}

func (t *ListColumnsTool) Definition() mcp.Tool {
	return mcp.NewTool("list_columns",
		mcp.WithDescription("List the columns of a table, including types and formulas. Table names are case-sensitive."),
		mcp.WithString("doc_id",
			mcp.Required(),
			mcp.Description("Document ID"),
		),
		mcp.WithString("table",
			mcp.Required(),
			mcp.Description("Table name (case-sensitive)"),
		),
		withResponseFormat(),
	)
}

func (t *ListColumnsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docID, err := req.RequireString("doc_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	tableID, err := req.RequireString("table")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	columns, err := t.client.ListColumns(ctx, docID, tableID)
	if err != nil {
		t.logger.Error("list columns failed",
			slog.String("doc_id", docID),
			slog.String("table", tableID),
			slog.String("error", err.Error()),
		)
		return mcp.NewToolResultErrorFromErr("failed to list columns", err), nil
	}
	return renderResult(req, columns, func() string { return format.Columns(tableID, columns) })
}
