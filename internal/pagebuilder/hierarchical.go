package pagebuilder

import (
	"context"
	"fmt"
	"strings"

	"github.com/gwhthompson/grist-mcp-server-sub001/internal/actions"
	"github.com/gwhthompson/grist-mcp-server-sub001/internal/layout"
	"github.com/gwhthompson/grist-mcp-server-sub001/internal/refs"
)

// hierarchicalBuilder creates an N-level drill-down page. Each level's
// group-by columns make the backend materialize a summary table; selecting a
// row in level i filters level i+1.
type hierarchicalBuilder struct {
	deps     *PageBuilder
	cfg      HierarchicalConfig
	pageName string
}

type resolvedLevel struct {
	level    Level
	tableRef int64
	groupBy  []int64
}

func (h *hierarchicalBuilder) build(ctx context.Context, docID string) (*BuildResult, error) {
	if len(h.cfg.Levels) == 0 {
		return nil, fmt.Errorf("hierarchical page requires at least one level")
	}

	// Phase: resolve every level's table and group-by columns before any
	// network mutation, so a missing column fails the build with nothing
	// applied.
	resolved := make([]resolvedLevel, 0, len(h.cfg.Levels))
	for i, level := range h.cfg.Levels {
		if level.Table == "" {
			return nil, fmt.Errorf("level %d: missing table", i+1)
		}
		tableRef, err := h.deps.resolver.TableRef(ctx, docID, level.Table)
		if err != nil {
			return nil, err
		}
		groupBy := make([]int64, 0, len(level.GroupBy))
		for _, columnName := range level.GroupBy {
			colRef, err := h.deps.resolver.ColumnRef(ctx, docID, level.Table, columnName)
			if err != nil {
				return nil, err
			}
			groupBy = append(groupBy, colRef)
		}
		resolved = append(resolved, resolvedLevel{level: level, tableRef: tableRef, groupBy: groupBy})
	}

	// Phase: create the first level on a new page.
	first, err := actions.CreateViewSection(resolved[0].tableRef, 0, actions.SectionRecord, resolved[0].groupBy)
	if err != nil {
		return nil, err
	}
	firstSections, err := h.deps.createSections(ctx, docID, actions.Batch{first},
		"creating top level widget for hierarchical page")
	if err != nil {
		return nil, err
	}
	viewRef := firstSections[0].ViewRef
	sections := firstSections

	// Phase: all remaining levels in one batch.
	if len(resolved) > 1 {
		var batch actions.Batch
		for _, level := range resolved[1:] {
			create, err := actions.CreateViewSection(level.tableRef, viewRef, actions.SectionRecord, level.groupBy)
			if err != nil {
				return nil, err
			}
			batch = append(batch, create)
		}
		rest, err := h.deps.createSections(ctx, docID, batch,
			"creating drill-down widgets for hierarchical page")
		if err != nil {
			return nil, err
		}
		sections = append(sections, rest...)
	}

	// Phase: titles, vertical layout chain, page name.
	var phase actions.Batch
	for i, section := range sections {
		title := resolved[i].level.Title
		if title == "" {
			title = resolved[i].level.Table
		}
		setTitle, err := actions.SetSectionTitle(section.SectionRef, title)
		if err != nil {
			return nil, err
		}
		phase = append(phase, setTitle)
	}
	sectionRefs := make([]int64, len(sections))
	for i, section := range sections {
		sectionRefs[i] = section.SectionRef
	}
	tree, err := layout.StackFromFirst(layout.Vertical, sectionRefs)
	if err != nil {
		return nil, err
	}
	spec, err := tree.Serialize()
	if err != nil {
		return nil, err
	}
	setLayout, err := actions.UpdateViewLayout(viewRef, spec)
	if err != nil {
		return nil, err
	}
	pageName := h.pageName
	if pageName == "" {
		pageName = resolved[0].level.Table + " drill-down"
	}
	rename, err := actions.RenameView(viewRef, pageName)
	if err != nil {
		return nil, err
	}
	phase = append(phase, setLayout, rename)
	if err := h.deps.applyPhase(ctx, docID, phase, "setting layout for hierarchical page"); err != nil {
		return nil, err
	}

	// Phase: drill-down links. Column ref 0 links on row selection.
	var links actions.Batch
	for i := 1; i < len(sections); i++ {
		link, err := actions.LinkSections(sections[i].SectionRef, sections[i-1].SectionRef, 0, 0)
		if err != nil {
			return nil, err
		}
		links = append(links, link)
	}
	if err := h.deps.applyPhase(ctx, docID, links, "linking levels for hierarchical page"); err != nil {
		return nil, err
	}

	// Summary table creation is a schema mutation: drop the stale snapshot
	// before guessing the generated names. createSections already
	// invalidates generically, but the explicit call keeps this phase
	// correct on its own.
	h.deps.resolver.Invalidate(docID)
	tableRefs, err := h.deps.resolver.TableRefs(ctx, docID)
	if err != nil {
		return nil, err
	}

	widgets := make([]Widget, 0, len(sections))
	for i, section := range sections {
		title := resolved[i].level.Title
		if title == "" {
			title = resolved[i].level.Table
		}
		widget := Widget{
			SectionID:  section.SectionRef,
			TableRef:   section.TableRef,
			Title:      title,
			Position:   fmt.Sprintf("level_%d", i+1),
			WidgetType: actions.SectionRecord,
		}
		if len(resolved[i].level.GroupBy) > 0 {
			widget.SummaryTableID = findSummaryTable(tableRefs, resolved[i].level.Table, resolved[i].level.GroupBy)
		}
		widgets = append(widgets, widget)
	}

	return &BuildResult{
		PageName: pageName,
		ViewID:   viewRef,
		Widgets:  widgets,
	}, nil
}

// findSummaryTable looks up the summary table generated for a group-by
// section: first the exact conventional name, then a prefix scan, since the
// backend may append collision-avoidance suffixes.
func findSummaryTable(tableRefs refs.TableRefMap, sourceTable string, groupBy []string) string {
	guess := GuessSummaryTableID(sourceTable, groupBy)
	if _, ok := tableRefs[guess]; ok {
		return guess
	}
	for _, name := range tableRefs.Names() {
		if strings.HasPrefix(name, guess) {
			return name
		}
	}
	return guess
}
