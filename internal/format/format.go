// Package format renders Grist API data as Markdown for tool responses.
package format

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jinzhu/inflection"

	"github.com/gwhthompson/grist-mcp-server-sub001/internal/grist"
)

// CountNoun phrases a count with the correctly pluralized noun,
// e.g. "1 record" or "3 columns".
func CountNoun(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", inflection.Singular(noun))
	}
	return fmt.Sprintf("%d %s", n, inflection.Plural(noun))
}

// Workspaces renders workspaces and their documents as a Markdown table.
func Workspaces(workspaces []grist.Workspace) string {
	if len(workspaces) == 0 {
		return "No workspaces found."
	}

	t := table.NewWriter()
	t.AppendHeader(table.Row{"Workspace", "Document", "Doc ID", "Pinned"})
	for _, ws := range workspaces {
		if len(ws.Docs) == 0 {
			t.AppendRow(table.Row{ws.Name, "", "", ""})
			continue
		}
		for _, doc := range ws.Docs {
			pinned := ""
			if doc.Pinned {
				pinned = "yes"
			}
			t.AppendRow(table.Row{ws.Name, doc.Name, doc.ID, pinned})
		}
	}

	return fmt.Sprintf("%s\n\n%s", t.RenderMarkdown(), CountNoun(len(workspaces), "workspace"))
}

// Documents renders one workspace's documents as a Markdown table.
func Documents(docs []grist.Doc) string {
	if len(docs) == 0 {
		return "No documents found."
	}

	t := table.NewWriter()
	t.AppendHeader(table.Row{"Document", "Doc ID", "Pinned"})
	for _, doc := range docs {
		pinned := ""
		if doc.Pinned {
			pinned = "yes"
		}
		t.AppendRow(table.Row{doc.Name, doc.ID, pinned})
	}

	return fmt.Sprintf("%s\n\n%s", t.RenderMarkdown(), CountNoun(len(docs), "document"))
}

// Tables renders table metadata as a Markdown table.
func Tables(tables []grist.TableMeta) string {
	if len(tables) == 0 {
		return "No tables found."
	}

	t := table.NewWriter()
	t.AppendHeader(table.Row{"Table", "Table Ref", "On Demand"})
	for _, tbl := range tables {
		onDemand := ""
		if tbl.Fields.OnDemand {
			onDemand = "yes"
		}
		t.AppendRow(table.Row{tbl.ID, tbl.Fields.TableRef, onDemand})
	}

	return fmt.Sprintf("%s\n\n%s", t.RenderMarkdown(), CountNoun(len(tables), "table"))
}

// Columns renders column metadata as a Markdown table.
func Columns(tableID string, columns []grist.ColumnMeta) string {
	if len(columns) == 0 {
		return fmt.Sprintf("Table %q has no columns.", tableID)
	}

	t := table.NewWriter()
	t.AppendHeader(table.Row{"Column", "Type", "Label", "Formula"})
	for _, col := range columns {
		formula := ""
		if col.Fields.IsFormula {
			formula = col.Fields.Formula
		}
		t.AppendRow(table.Row{col.ID, col.Fields.Type, col.Fields.Label, formula})
	}

	return fmt.Sprintf("Columns of %q:\n\n%s\n\n%s",
		tableID, t.RenderMarkdown(), CountNoun(len(columns), "column"))
}

// Records renders table rows as a Markdown table. Column order is the
// sorted union of the field names across all rows, with "id" first.
func Records(records []grist.Record) string {
	if len(records) == 0 {
		return "No records found."
	}

	cols := fieldColumns(recordFields(records))

	t := table.NewWriter()
	header := table.Row{"id"}
	for _, col := range cols {
		header = append(header, col)
	}
	t.AppendHeader(header)

	for _, rec := range records {
		row := table.Row{rec.ID}
		for _, col := range cols {
			row = append(row, cellValue(rec.Fields[col]))
		}
		t.AppendRow(row)
	}

	return fmt.Sprintf("%s\n\n%s", t.RenderMarkdown(), CountNoun(len(records), "record"))
}

// SQLRows renders a read-only SQL result set as a Markdown table.
func SQLRows(result *grist.SQLResult) string {
	rows := result.Rows()
	if len(rows) == 0 {
		return "Query returned no rows."
	}

	cols := fieldColumns(rows)

	t := table.NewWriter()
	header := make(table.Row, len(cols))
	for i, col := range cols {
		header[i] = col
	}
	t.AppendHeader(header)

	for _, row := range rows {
		out := make(table.Row, len(cols))
		for i, col := range cols {
			out[i] = cellValue(row[col])
		}
		t.AppendRow(out)
	}

	return fmt.Sprintf("%s\n\n%s", t.RenderMarkdown(), CountNoun(len(rows), "row"))
}

func recordFields(records []grist.Record) []map[string]any {
	fields := make([]map[string]any, len(records))
	for i, rec := range records {
		fields[i] = rec.Fields
	}
	return fields
}

func fieldColumns(rows []map[string]any) []string {
	seen := map[string]bool{}
	var cols []string
	for _, row := range rows {
		for name := range row {
			if !seen[name] {
				seen[name] = true
				cols = append(cols, name)
			}
		}
	}
	sort.Strings(cols)
	return cols
}

func cellValue(v any) string {
	if v == nil {
		return ""
	}
	s := fmt.Sprintf("%v", v)
	// Literal pipes and newlines break Markdown table cells.
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\n", " ")
	return s
}
