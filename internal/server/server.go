// Package server wires the Grist client, resolver, page builder, and MCP
// tools into a server instance. This is the composition root: concrete
// implementations are created here and injected into the tools that depend
// on abstractions. No business logic lives here.
package server

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/gwhthompson/grist-mcp-server-sub001/internal/config"
	"github.com/gwhthompson/grist-mcp-server-sub001/internal/grist"
	"github.com/gwhthompson/grist-mcp-server-sub001/internal/logging"
	"github.com/gwhthompson/grist-mcp-server-sub001/internal/observability"
	"github.com/gwhthompson/grist-mcp-server-sub001/internal/pagebuilder"
	"github.com/gwhthompson/grist-mcp-server-sub001/internal/refs"
	"github.com/gwhthompson/grist-mcp-server-sub001/internal/tools"
)

// Version is set at build time via ldflags.
var Version = "dev"

// New creates the MCP server with all tools registered. This is the single
// place where all dependencies are resolved.
func New(cfg *config.Config, logger *logging.Logger, metrics *observability.BuildMetrics) *server.MCPServer {
	client := grist.New(grist.Config{
		BaseURL: cfg.Grist.BaseURL,
		APIKey:  cfg.Grist.APIKey,
		Timeout: cfg.Grist.Timeout,
		Logger:  logger,
	})

	resolver := refs.NewResolver(client, logger)
	pipeline := pagebuilder.NewPipeline(client, logger, metrics)
	builder := pagebuilder.New(resolver, pipeline, logger, metrics)

	s := server.NewMCPServer(
		"grist-mcp-server",
		Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	workspacesTool := tools.NewListWorkspacesTool(client, logger)
	s.AddTool(workspacesTool.Definition(), workspacesTool.Handle)

	documentsTool := tools.NewListDocumentsTool(client, logger)
	s.AddTool(documentsTool.Definition(), documentsTool.Handle)

	tablesTool := tools.NewListTablesTool(client, logger)
	s.AddTool(tablesTool.Definition(), tablesTool.Handle)

	columnsTool := tools.NewListColumnsTool(client, logger)
	s.AddTool(columnsTool.Definition(), columnsTool.Handle)

	listRecordsTool := tools.NewListRecordsTool(client, logger)
	s.AddTool(listRecordsTool.Definition(), listRecordsTool.Handle)

	addRecordsTool := tools.NewAddRecordsTool(client, logger)
	s.AddTool(addRecordsTool.Definition(), addRecordsTool.Handle)

	updateRecordsTool := tools.NewUpdateRecordsTool(client, logger)
	s.AddTool(updateRecordsTool.Definition(), updateRecordsTool.Handle)

	deleteRecordsTool := tools.NewDeleteRecordsTool(client, logger)
	s.AddTool(deleteRecordsTool.Definition(), deleteRecordsTool.Handle)

	sqlTool := tools.NewQuerySQLTool(client, logger)
	s.AddTool(sqlTool.Definition(), sqlTool.Handle)

	buildPageTool := tools.NewBuildPageTool(builder, logger)
	s.AddTool(buildPageTool.Definition(), buildPageTool.Handle)

	return s
}

func serverInstructions() string {
	return `This server exposes Grist documents: spreadsheet-database hybrids
organized as workspaces containing documents containing tables.

Start with list_workspaces and list_documents to find document IDs,
then list_tables and list_columns to learn a document's schema. Table and column names are
case-sensitive everywhere.

Read and write rows with list_records, add_records, update_records, and
delete_records, or run read-only SELECTs with query_sql.

Use build_page to create pages of linked widgets from a single call.
Pick the pattern matching the user's intent: master_detail for a list
with a filtered detail view, hierarchical for summary drill-downs,
chart_dashboard for charts with an optional selector, form_table for
data entry, and custom for anything else. Builds are not transactional:
if a build fails partway, inspect the document before retrying.`
}
