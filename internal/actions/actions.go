// Package actions builds the positional user-action tuples accepted by the
// Grist apply endpoint. Constructors are pure: they perform no I/O and fail
// only on malformed input. A Batch serializes an ordered list of actions into
// one request payload.
package actions

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Metadata table ids addressed by view and section updates.
const (
	ViewsTable        = "_grist_Views"
	ViewSectionsTable = "_grist_Views_section"
)

// Section types understood by CreateViewSection.
const (
	SectionRecord = "record"
	SectionSingle = "single"
	SectionDetail = "detail"
	SectionChart  = "chart"
	SectionForm   = "form"
	SectionCustom = "custom"
)

var sectionTypes = map[string]struct{}{
	SectionRecord: {},
	SectionSingle: {},
	SectionDetail: {},
	SectionChart:  {},
	SectionForm:   {},
	SectionCustom: {},
}

// Action is one user action: a verb followed by positional arguments, plus a
// flag marking whether applying it changes the document schema. Callers use
// the flag to invalidate name->ref caches after a batch lands.
type Action struct {
	tuple         []any
	mutatesSchema bool
}

// Verb returns the action name, the first element of the tuple.
func (a Action) Verb() string {
	if len(a.tuple) == 0 {
		return ""
	}
	verb, _ := a.tuple[0].(string)
	return verb
}

// Tuple returns the wire tuple in apply order.
func (a Action) Tuple() []any {
	return a.tuple
}

// MutatesSchema reports whether the action creates or removes schema objects.
func (a Action) MutatesSchema() bool {
	return a.mutatesSchema
}

// CreatesSection reports whether the action yields a view-section result.
func (a Action) CreatesSection() bool {
	return a.Verb() == "CreateViewSection"
}

// CreateViewSection creates a widget on a view. A viewRef of 0 asks the
// backend for a new page; the created view's ref comes back in the result.
// Group-by column refs make the backend materialize a summary table for the
// section, which is a schema mutation.
func CreateViewSection(tableRef, viewRef int64, sectionType string, groupByColRefs []int64) (Action, error) {
	if tableRef <= 0 {
		return Action{}, fmt.Errorf("actions: table ref %d must be positive", tableRef)
	}
	if viewRef < 0 {
		return Action{}, fmt.Errorf("actions: view ref %d must not be negative", viewRef)
	}
	if _, ok := sectionTypes[sectionType]; !ok {
		return Action{}, fmt.Errorf("actions: unknown section type %q", sectionType)
	}
	var groupBy any
	if len(groupByColRefs) > 0 {
		groupBy = groupByColRefs
	}
	return Action{
		tuple:         []any{"CreateViewSection", tableRef, viewRef, sectionType, groupBy, nil},
		mutatesSchema: len(groupByColRefs) > 0,
	}, nil
}

// UpdateViewLayout stores a serialized layout tree on a view.
func UpdateViewLayout(viewRef int64, layoutSpec string) (Action, error) {
	if viewRef <= 0 {
		return Action{}, fmt.Errorf("actions: view ref %d must be positive", viewRef)
	}
	if strings.TrimSpace(layoutSpec) == "" {
		return Action{}, fmt.Errorf("actions: empty layout spec")
	}
	return Action{
		tuple: []any{"UpdateRecord", ViewsTable, viewRef, map[string]any{"layoutSpec": layoutSpec}},
	}, nil
}

// RenameView sets the page name on a view.
func RenameView(viewRef int64, name string) (Action, error) {
	if viewRef <= 0 {
		return Action{}, fmt.Errorf("actions: view ref %d must be positive", viewRef)
	}
	if strings.TrimSpace(name) == "" {
		return Action{}, fmt.Errorf("actions: empty view name")
	}
	return Action{
		tuple: []any{"UpdateRecord", ViewsTable, viewRef, map[string]any{"name": name}},
	}, nil
}

// SetSectionTitle sets a widget's title.
func SetSectionTitle(sectionRef int64, title string) (Action, error) {
	if sectionRef <= 0 {
		return Action{}, fmt.Errorf("actions: section ref %d must be positive", sectionRef)
	}
	return Action{
		tuple: []any{"UpdateRecord", ViewSectionsTable, sectionRef, map[string]any{"title": title}},
	}, nil
}

// SetSectionDescription sets a widget's description text.
func SetSectionDescription(sectionRef int64, description string) (Action, error) {
	if sectionRef <= 0 {
		return Action{}, fmt.Errorf("actions: section ref %d must be positive", sectionRef)
	}
	return Action{
		tuple: []any{"UpdateRecord", ViewSectionsTable, sectionRef, map[string]any{"description": description}},
	}, nil
}

// LinkSections wires target so that selecting a row in source filters it.
// A column ref of 0 links on row selection rather than a specific column.
func LinkSections(targetSectionRef, sourceSectionRef, sourceColRef, targetColRef int64) (Action, error) {
	if targetSectionRef <= 0 || sourceSectionRef <= 0 {
		return Action{}, fmt.Errorf("actions: link requires positive section refs (target %d, source %d)",
			targetSectionRef, sourceSectionRef)
	}
	if sourceColRef < 0 || targetColRef < 0 {
		return Action{}, fmt.Errorf("actions: link column refs must not be negative")
	}
	return Action{
		tuple: []any{"UpdateRecord", ViewSectionsTable, targetSectionRef, map[string]any{
			"linkSrcSectionRef": sourceSectionRef,
			"linkSrcColRef":     sourceColRef,
			"linkTargetColRef":  targetColRef,
		}},
	}, nil
}

// ConfigureChart sets the chart type and style options on a chart section.
func ConfigureChart(sectionRef int64, chartType string, options map[string]any) (Action, error) {
	if sectionRef <= 0 {
		return Action{}, fmt.Errorf("actions: section ref %d must be positive", sectionRef)
	}
	if strings.TrimSpace(chartType) == "" {
		return Action{}, fmt.Errorf("actions: empty chart type")
	}
	fields := map[string]any{"chartType": chartType}
	if len(options) > 0 {
		encoded, err := json.Marshal(options)
		if err != nil {
			return Action{}, fmt.Errorf("actions: encode chart options: %w", err)
		}
		fields["options"] = string(encoded)
	}
	return Action{
		tuple: []any{"UpdateRecord", ViewSectionsTable, sectionRef, fields},
	}, nil
}

// SetChartAxes binds the x axis and series columns of a chart section.
func SetChartAxes(sectionRef, xColRef int64, yColRefs []int64) (Action, error) {
	if sectionRef <= 0 {
		return Action{}, fmt.Errorf("actions: section ref %d must be positive", sectionRef)
	}
	if xColRef <= 0 {
		return Action{}, fmt.Errorf("actions: x axis column ref %d must be positive", xColRef)
	}
	for _, ref := range yColRefs {
		if ref <= 0 {
			return Action{}, fmt.Errorf("actions: y axis column ref %d must be positive", ref)
		}
	}
	axes := map[string]any{"xAxis": xColRef}
	if len(yColRefs) > 0 {
		axes["yAxes"] = yColRefs
	}
	encoded, err := json.Marshal(axes)
	if err != nil {
		return Action{}, fmt.Errorf("actions: encode chart axes: %w", err)
	}
	return Action{
		tuple: []any{"UpdateRecord", ViewSectionsTable, sectionRef, map[string]any{"axes": string(encoded)}},
	}, nil
}

// ColumnDef describes one column for AddTable and AddColumn.
type ColumnDef struct {
	ID    string
	Type  string
	Label string
}

func (c ColumnDef) fields() map[string]any {
	fields := map[string]any{"id": c.ID, "type": c.Type}
	if c.Label != "" {
		fields["label"] = c.Label
	}
	return fields
}

// AddTable creates a table with the given columns.
func AddTable(tableID string, columns []ColumnDef) (Action, error) {
	if strings.TrimSpace(tableID) == "" {
		return Action{}, fmt.Errorf("actions: empty table id")
	}
	cols := make([]any, 0, len(columns))
	for _, col := range columns {
		if strings.TrimSpace(col.ID) == "" {
			return Action{}, fmt.Errorf("actions: table %s: empty column id", tableID)
		}
		cols = append(cols, col.fields())
	}
	return Action{
		tuple:         []any{"AddTable", tableID, cols},
		mutatesSchema: true,
	}, nil
}

// RemoveTable deletes a table.
func RemoveTable(tableID string) (Action, error) {
	if strings.TrimSpace(tableID) == "" {
		return Action{}, fmt.Errorf("actions: empty table id")
	}
	return Action{
		tuple:         []any{"RemoveTable", tableID},
		mutatesSchema: true,
	}, nil
}

// AddColumn adds a column to a table.
func AddColumn(tableID string, column ColumnDef) (Action, error) {
	if strings.TrimSpace(tableID) == "" {
		return Action{}, fmt.Errorf("actions: empty table id")
	}
	if strings.TrimSpace(column.ID) == "" {
		return Action{}, fmt.Errorf("actions: table %s: empty column id", tableID)
	}
	info := map[string]any{"type": column.Type}
	if column.Label != "" {
		info["label"] = column.Label
	}
	return Action{
		tuple:         []any{"AddColumn", tableID, column.ID, info},
		mutatesSchema: true,
	}, nil
}

// RemoveColumn deletes a column from a table.
func RemoveColumn(tableID, columnID string) (Action, error) {
	if strings.TrimSpace(tableID) == "" || strings.TrimSpace(columnID) == "" {
		return Action{}, fmt.Errorf("actions: remove column requires table and column ids")
	}
	return Action{
		tuple:         []any{"RemoveColumn", tableID, columnID},
		mutatesSchema: true,
	}, nil
}

// Batch is an ordered list of actions sent in one apply request.
type Batch []Action

// Payload returns the request body for the apply endpoint: one tuple per
// action, in order.
func (b Batch) Payload() [][]any {
	payload := make([][]any, len(b))
	for i, action := range b {
		payload[i] = action.Tuple()
	}
	return payload
}

// MutatesSchema reports whether any action in the batch mutates schema.
func (b Batch) MutatesSchema() bool {
	for _, action := range b {
		if action.MutatesSchema() {
			return true
		}
	}
	return false
}

// SectionCount returns how many actions in the batch create view sections.
func (b Batch) SectionCount() int {
	count := 0
	for _, action := range b {
		if action.CreatesSection() {
			count++
		}
	}
	return count
}
