package pagebuilder

import (
	"fmt"
	"strings"

	"github.com/gwhthompson/grist-mcp-server-sub001/internal/actions"
	"github.com/gwhthompson/grist-mcp-server-sub001/internal/layout"
)

// Pattern selects one of the five page patterns.
type Pattern string

const (
	PatternMasterDetail   Pattern = "master_detail"
	PatternHierarchical   Pattern = "hierarchical"
	PatternChartDashboard Pattern = "chart_dashboard"
	PatternFormTable      Pattern = "form_table"
	PatternCustom         Pattern = "custom"
)

// Config is the discriminated page description: exactly the field matching
// Pattern must be set.
type Config struct {
	Pattern     Pattern `json:"pattern"`
	PageName    string  `json:"page_name,omitempty"`
	Description string  `json:"description,omitempty"`

	MasterDetail   *MasterDetailConfig   `json:"master_detail,omitempty"`
	Hierarchical   *HierarchicalConfig   `json:"hierarchical,omitempty"`
	ChartDashboard *ChartDashboardConfig `json:"chart_dashboard,omitempty"`
	FormTable      *FormTableConfig      `json:"form_table,omitempty"`
	Custom         *CustomConfig         `json:"custom,omitempty"`
}

// WidgetConfig describes one widget to create.
type WidgetConfig struct {
	Table      string `json:"table"`
	WidgetType string `json:"widget_type,omitempty"`
	Title      string `json:"title,omitempty"`
}

// DisplayTitle is the widget title, defaulting to the table name.
func (w WidgetConfig) DisplayTitle() string {
	if w.Title != "" {
		return w.Title
	}
	return w.Table
}

// MasterDetailConfig describes a two-widget master/detail page.
type MasterDetailConfig struct {
	Master MasterConfig       `json:"master"`
	Detail DetailConfig       `json:"detail"`
	Split  layout.Orientation `json:"split,omitempty"`
}

// MasterConfig is the master widget plus its share of the page.
type MasterConfig struct {
	WidgetConfig
	// WidthPercent is the master's share of the split in percent; zero means
	// the default 50.
	WidthPercent float64 `json:"width,omitempty"`
}

// DetailConfig is the detail widget plus the column linking it to the master.
type DetailConfig struct {
	WidgetConfig
	// LinkField names the column on the detail table that references the
	// master table.
	LinkField string `json:"link_field,omitempty"`
}

// Level is one drill-down level of a hierarchical page.
type Level struct {
	Table   string   `json:"table"`
	GroupBy []string `json:"group_by,omitempty"`
	Title   string   `json:"title,omitempty"`
}

// HierarchicalConfig describes an N-level drill-down page.
type HierarchicalConfig struct {
	Levels []Level `json:"levels"`
}

// ChartConfig describes one chart widget.
type ChartConfig struct {
	Table     string         `json:"table"`
	Title     string         `json:"title,omitempty"`
	ChartType string         `json:"chart_type"`
	XAxis     string         `json:"x_axis,omitempty"`
	YAxes     []string       `json:"y_axes,omitempty"`
	Options   map[string]any `json:"options,omitempty"`
}

// ChartDashboardConfig describes an optional selector widget plus charts.
type ChartDashboardConfig struct {
	Selector *WidgetConfig `json:"selector,omitempty"`
	Charts   []ChartConfig `json:"charts"`
}

// FormTableConfig describes a form widget over a table widget.
type FormTableConfig struct {
	Form  WidgetConfig       `json:"form"`
	Table WidgetConfig       `json:"table"`
	Split layout.Orientation `json:"split,omitempty"`
}

// CustomWidget is one widget of a custom page, optionally linked by name to
// another widget on the same page.
type CustomWidget struct {
	WidgetConfig
	Description string `json:"description,omitempty"`
	// LinkTo names the source widget (by title or table) whose selection
	// filters this widget.
	LinkTo string `json:"link_to,omitempty"`
	// LinkField names the column on this widget's table used for the link.
	LinkField string `json:"link_field,omitempty"`
}

// CustomConfig describes an arbitrary widget list. Layout, when set, is a
// serialized layout tree whose leaves are zero-based widget indexes; when
// empty, widgets stack vertically.
type CustomConfig struct {
	Widgets []CustomWidget `json:"widgets"`
	Layout  string         `json:"layout,omitempty"`
}

// sectionType maps a config widget type onto the backend's section type.
func sectionType(widgetType string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(widgetType)) {
	case "", "table", "grid":
		return actions.SectionRecord, nil
	case "card":
		return actions.SectionSingle, nil
	case "card_list":
		return actions.SectionDetail, nil
	case "chart":
		return actions.SectionChart, nil
	case "form":
		return actions.SectionForm, nil
	case "custom":
		return actions.SectionCustom, nil
	default:
		return "", fmt.Errorf("unknown widget type %q", widgetType)
	}
}

// GuessSummaryTableID returns the conventional name of the summary table the
// backend materializes for a group-by section. The backend may perturb the
// name to avoid collisions, so lookups fall back to a prefix scan.
func GuessSummaryTableID(sourceTable string, groupBy []string) string {
	return sourceTable + "_summary_" + strings.Join(groupBy, "_")
}
