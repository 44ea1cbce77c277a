package format

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/gwhthompson/grist-mcp-server-sub001/internal/pagebuilder"
)

// BuildResult renders a page build outcome: a summary line plus one row
// per created widget.
func BuildResult(res *pagebuilder.BuildResult) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Position", "Title", "Type", "Section ID", "Summary Table"})
	for _, w := range res.Widgets {
		t.AppendRow(table.Row{w.Position, w.Title, w.WidgetType, w.SectionID, w.SummaryTableID})
	}

	return fmt.Sprintf("Created page %q (view %d, %s pattern) with %s.\n\n%s",
		res.PageName, res.ViewID, res.Pattern,
		CountNoun(len(res.Widgets), "widget"), t.RenderMarkdown())
}
