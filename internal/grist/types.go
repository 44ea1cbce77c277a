package grist

import "encoding/json"

// ApplyResult is the response of the apply endpoint: one return value per
// submitted action, in the same order.
type ApplyResult struct {
	ActionNum int64             `json:"actionNum"`
	RetValues []json.RawMessage `json:"retValues"`
}

// TableMeta describes one table of a document.
type TableMeta struct {
	ID     string      `json:"id"`
	Fields TableFields `json:"fields"`
}

// TableFields carries the numeric identifiers the backend uses internally.
type TableFields struct {
	TableRef          int64 `json:"tableRef"`
	RawViewSectionRef int64 `json:"rawViewSectionRef"`
	OnDemand          bool  `json:"onDemand"`
}

// ColumnMeta describes one column of a table.
type ColumnMeta struct {
	ID     string       `json:"id"`
	Fields ColumnFields `json:"fields"`
}

// ColumnFields carries column metadata relevant to reference resolution.
type ColumnFields struct {
	ColRef    int64  `json:"colRef"`
	Type      string `json:"type"`
	Label     string `json:"label"`
	IsFormula bool   `json:"isFormula"`
	Formula   string `json:"formula"`
}

// Record is one row of a table.
type Record struct {
	ID     int64          `json:"id"`
	Fields map[string]any `json:"fields"`
}

// Workspace is a named container of documents.
type Workspace struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Docs []Doc  `json:"docs"`
}

// Doc identifies one document within a workspace.
type Doc struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Pinned bool   `json:"isPinned"`
}

// SQLResult is the response of the read-only SQL endpoint.
type SQLResult struct {
	Statement string      `json:"statement"`
	Records   []sqlRecord `json:"records"`
}

type sqlRecord struct {
	Fields map[string]any `json:"fields"`
}

// Rows returns the result set as plain field maps.
func (r *SQLResult) Rows() []map[string]any {
	rows := make([]map[string]any, len(r.Records))
	for i, rec := range r.Records {
		rows[i] = rec.Fields
	}
	return rows
}

// ListRecordsOptions narrows a record listing.
type ListRecordsOptions struct {
	// Filter maps column ids to the values to keep.
	Filter map[string][]any
	// Sort is a comma-separated column list; prefix a column with "-" for
	// descending order.
	Sort string
	// Limit caps the number of returned records; zero means no cap.
	Limit int
}
