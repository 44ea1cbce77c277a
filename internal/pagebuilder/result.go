package pagebuilder

// Widget describes one created widget in a build result.
type Widget struct {
	SectionID  int64  `json:"section_id"`
	TableRef   int64  `json:"table_ref"`
	Title      string `json:"title,omitempty"`
	Position   string `json:"position,omitempty"`
	WidgetType string `json:"widget_type,omitempty"`
	// SummaryTableID is set on hierarchical levels whose group-by columns
	// caused the backend to materialize a summary table.
	SummaryTableID string `json:"summary_table_id,omitempty"`
}

// BuildResult is the externally visible outcome of a build. Remote side
// effects from completed phases survive a failed build; a result is only
// returned when every phase completed.
type BuildResult struct {
	Success     bool     `json:"success"`
	BuildID     string   `json:"build_id"`
	PageName    string   `json:"page_name"`
	ViewID      int64    `json:"view_id"`
	Pattern     Pattern  `json:"pattern"`
	Description string   `json:"description,omitempty"`
	Widgets     []Widget `json:"widgets"`
}
