package tools

import (
	"context"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/gwhthompson/grist-mcp-server-sub001/internal/format"
	"github.com/gwhthompson/grist-mcp-server-sub001/internal/grist"
	"github.com/gwhthompson/grist-mcp-server-sub001/internal/logging"
)

// RecordStore reads and writes table rows.
type RecordStore interface {
	ListRecords(ctx context.Context, docID, tableID string, opts grist.ListRecordsOptions) ([]grist.Record, error)
	AddRecords(ctx context.Context, docID, tableID string, fields []map[string]any) ([]int64, error)
	UpdateRecords(ctx context.Context, docID, tableID string, records []grist.Record) error
	DeleteRecords(ctx context.Context, docID, tableID string, ids []int64) error
}

// ListRecordsTool reads rows from a table.
type ListRecordsTool struct {
	client RecordStore
	logger *logging.Logger
}

func NewListRecordsTool(client RecordStore, logger *logging.Logger) *ListRecordsTool {
	return &ListRecordsTool{client: client, logger: logger}
}

func (t *ListRecordsTool) Definition() mcp.Tool {
	return mcp.NewTool("list_records",
		mcp.WithDescription("Read rows from a table, optionally filtered, sorted, and limited."),
		mcp.WithString("doc_id",
			mcp.Required(),
			mcp.Description("Document ID"),
		),
		mcp.WithString("table",
			mcp.Required(),
			mcp.Description("Table name (case-sensitive)"),
		),
		mcp.WithObject("filter",
			mcp.Description("Column filters: maps column names to arrays of values to keep"),
		),
		mcp.WithString("sort",
			mcp.Description("Comma-separated sort columns; prefix with - for descending"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of rows to return"),
		),
		withResponseFormat(),
	)
}

func (t *ListRecordsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		DocID  string           `json:"doc_id"`
		Table  string           `json:"table"`
		Filter map[string][]any `json:"filter,omitempty"`
		Sort   string           `json:"sort,omitempty"`
		Limit  int              `json:"limit,omitempty"`
	}
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if args.DocID == "" || args.Table == "" {
		return mcp.NewToolResultError("doc_id and table are required"), nil
	}

	records, err := t.client.ListRecords(ctx, args.DocID, args.Table, grist.ListRecordsOptions{
		Filter: args.Filter,
		Sort:   args.Sort,
		Limit:  args.Limit,
	})
	if err != nil {
		t.logger.Error("list records failed",
			slog.String("doc_id", args.DocID),
			slog.String("table", args.Table),
			slog.String("error", err.Error()),
		)
		return mcp.NewToolResultErrorFromErr("failed to list records", err), nil
	}
	return renderResult(req, records, func() string { return format.Records(records) })
}

// AddRecordsTool appends rows to a table.
type AddRecordsTool struct {
	client RecordStore
	logger *logging.Logger
}

func NewAddRecordsTool(client RecordStore, logger *logging.Logger) *AddRecordsTool {
	return &AddRecordsTool{client: client, logger: logger}
}

func (t *AddRecordsTool) Definition() mcp.Tool {
	return mcp.NewTool("add_records",
		mcp.WithDescription("Append rows to a table. Each record maps column names to values."),
		mcp.WithString("doc_id",
			mcp.Required(),
			mcp.Description("Document ID"),
		),
		mcp.WithString("table",
			mcp.Required(),
			mcp.Description("Table name (case-sensitive)"),
		),
		mcp.WithArray("records",
			mcp.Required(),
			mcp.Description("Rows to add, each a map of column name to value"),
		),
	)
}

func (t *AddRecordsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		DocID   string           `json:"doc_id"`
		Table   string           `json:"table"`
		Records []map[string]any `json:"records"`
	}
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if args.DocID == "" || args.Table == "" {
		return mcp.NewToolResultError("doc_id and table are required"), nil
	}
	if len(args.Records) == 0 {
		return mcp.NewToolResultError("records must not be empty"), nil
	}

	ids, err := t.client.AddRecords(ctx, args.DocID, args.Table, args.Records)
	if err != nil {
		t.logger.Error("add records failed",
			slog.String("doc_id", args.DocID),
			slog.String("table", args.Table),
			slog.String("error", err.Error()),
		)
		return mcp.NewToolResultErrorFromErr("failed to add records", err), nil
	}

	t.logger.Info("records added",
		slog.String("doc_id", args.DocID),
		slog.String("table", args.Table),
		slog.Int("count", len(ids)),
	)
	return mcp.NewToolResultText("Added " + format.CountNoun(len(ids), "record") + "."), nil
}

// UpdateRecordsTool modifies existing rows by id.
type UpdateRecordsTool struct {
	client RecordStore
	logger *logging.Logger
}

func NewUpdateRecordsTool(client RecordStore, logger *logging.Logger) *UpdateRecordsTool {
	return &UpdateRecordsTool{client: client, logger: logger}
}

func (t *UpdateRecordsTool) Definition() mcp.Tool {
	return mcp.NewTool("update_records",
		mcp.WithDescription("Update existing rows by id. Each record needs an id and the fields to change."),
		mcp.WithString("doc_id",
			mcp.Required(),
			mcp.Description("Document ID"),
		),
		mcp.WithString("table",
			mcp.Required(),
			mcp.Description("Table name (case-sensitive)"),
		),
		mcp.WithArray("records",
			mcp.Required(),
			mcp.Description("Rows to update, each with an id and a fields map"),
		),
	)
}

func (t *UpdateRecordsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		DocID   string         `json:"doc_id"`
		Table   string         `json:"table"`
		Records []grist.Record `json:"records"`
	}
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if args.DocID == "" || args.Table == "" {
		return mcp.NewToolResultError("doc_id and table are required"), nil
	}
	if len(args.Records) == 0 {
		return mcp.NewToolResultError("records must not be empty"), nil
	}
	for _, rec := range args.Records {
		if rec.ID == 0 {
			return mcp.NewToolResultError("every record needs a non-zero id"), nil
		}
	}

	if err := t.client.UpdateRecords(ctx, args.DocID, args.Table, args.Records); err != nil {
		t.logger.Error("update records failed",
			slog.String("doc_id", args.DocID),
			slog.String("table", args.Table),
			slog.String("error", err.Error()),
		)
		return mcp.NewToolResultErrorFromErr("failed to update records", err), nil
	}
	return mcp.NewToolResultText("Updated " + format.CountNoun(len(args.Records), "record") + "."), nil
}

// DeleteRecordsTool removes rows by id.
type DeleteRecordsTool struct {
	client RecordStore
	logger *logging.Logger
}

func NewDeleteRecordsTool(client RecordStore, logger *logging.Logger) *DeleteRecordsTool {
	return &DeleteRecordsTool{client: client, logger: logger}
}

func (t *DeleteRecordsTool) Definition() mcp.Tool {
	return mcp.NewTool("delete_records",
		mcp.WithDescription("Delete rows from a table by id."),
		mcp.WithString("doc_id",
			mcp.Required(),
			mcp.Description("Document ID"),
		),
		mcp.WithString("table",
			mcp.Required(),
			mcp.Description("Table name (case-sensitive)"),
		),
		mcp.WithArray("ids",
			mcp.Required(),
			mcp.Description("Row ids to delete"),
		),
	)
}

func (t *DeleteRecordsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		DocID string  `json:"doc_id"`
		Table string  `json:"table"`
		IDs   []int64 `json:"ids"`
	}
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if args.DocID == "" || args.Table == "" {
		return mcp.NewToolResultError("doc_id and table are required"), nil
	}
	if len(args.IDs) == 0 {
		return mcp.NewToolResultError("ids must not be empty"), nil
	}

	if err := t.client.DeleteRecords(ctx, args.DocID, args.Table, args.IDs); err != nil {
		t.logger.Error("delete records failed",
			slog.String("doc_id", args.DocID),
			slog.String("table", args.Table),
			slog.String("error", err.Error()),
		)
		return mcp.NewToolResultErrorFromErr("failed to delete records", err), nil
	}
	return mcp.NewToolResultText("Deleted " + format.CountNoun(len(args.IDs), "record") + "."), nil
}
