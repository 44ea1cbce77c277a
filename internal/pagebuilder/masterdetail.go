package pagebuilder

import (
	"context"
	"fmt"

	"github.com/gwhthompson/grist-mcp-server-sub001/internal/actions"
	"github.com/gwhthompson/grist-mcp-server-sub001/internal/layout"
)

// masterDetailBuilder creates exactly two widgets: a master whose selection
// filters a detail widget on a shared column.
type masterDetailBuilder struct {
	deps     *PageBuilder
	cfg      MasterDetailConfig
	pageName string
}

func (m *masterDetailBuilder) build(ctx context.Context, docID string) (*BuildResult, error) {
	cfg := m.cfg
	if cfg.Master.Table == "" || cfg.Detail.Table == "" {
		return nil, fmt.Errorf("master-detail requires both master and detail tables")
	}
	if cfg.Detail.LinkField == "" {
		return nil, fmt.Errorf("master-detail requires a detail link_field")
	}

	orientation := cfg.Split
	if orientation == "" {
		orientation = layout.Horizontal
	}
	if !orientation.Valid() {
		return nil, fmt.Errorf("unknown split orientation %q", orientation)
	}
	fraction, err := layout.FractionFromPercent(cfg.Master.WidthPercent)
	if err != nil {
		return nil, err
	}
	masterType, err := sectionType(cfg.Master.WidgetType)
	if err != nil {
		return nil, fmt.Errorf("master widget: %w", err)
	}
	detailType, err := sectionType(cfg.Detail.WidgetType)
	if err != nil {
		return nil, fmt.Errorf("detail widget: %w", err)
	}

	// Phase: resolve references. Both tables must exist before any mutation.
	masterRef, err := m.deps.resolver.TableRef(ctx, docID, cfg.Master.Table)
	if err != nil {
		return nil, err
	}
	detailRef, err := m.deps.resolver.TableRef(ctx, docID, cfg.Detail.Table)
	if err != nil {
		return nil, err
	}

	// Phase: create the master widget. viewRef 0 asks for a new page; the
	// returned viewRef places every later widget on that page.
	createMaster, err := actions.CreateViewSection(masterRef, 0, masterType, nil)
	if err != nil {
		return nil, err
	}
	masterSections, err := m.deps.createSections(ctx, docID, actions.Batch{createMaster},
		"creating master widget for master-detail page")
	if err != nil {
		return nil, err
	}
	master := masterSections[0]

	// Phase: create the detail widget on the same page.
	createDetail, err := actions.CreateViewSection(detailRef, master.ViewRef, detailType, nil)
	if err != nil {
		return nil, err
	}
	detailSections, err := m.deps.createSections(ctx, docID, actions.Batch{createDetail},
		"creating detail widget for master-detail page")
	if err != nil {
		return nil, err
	}
	detail := detailSections[0]

	// Phase: titles.
	masterTitle, err := actions.SetSectionTitle(master.SectionRef, cfg.Master.DisplayTitle())
	if err != nil {
		return nil, err
	}
	detailTitle, err := actions.SetSectionTitle(detail.SectionRef, cfg.Detail.DisplayTitle())
	if err != nil {
		return nil, err
	}
	if err := m.deps.applyPhase(ctx, docID, actions.Batch{masterTitle, detailTitle},
		"setting widget titles for master-detail page"); err != nil {
		return nil, err
	}

	// Phase: layout and page name.
	pageName := m.pageName
	if pageName == "" {
		pageName = cfg.Master.Table + " & " + cfg.Detail.Table
	}
	tree, err := layout.Split(orientation, fraction, layout.Leaf(master.SectionRef), layout.Leaf(detail.SectionRef))
	if err != nil {
		return nil, err
	}
	spec, err := tree.Serialize()
	if err != nil {
		return nil, err
	}
	setLayout, err := actions.UpdateViewLayout(master.ViewRef, spec)
	if err != nil {
		return nil, err
	}
	rename, err := actions.RenameView(master.ViewRef, pageName)
	if err != nil {
		return nil, err
	}
	if err := m.deps.applyPhase(ctx, docID, actions.Batch{setLayout, rename},
		"setting layout for master-detail page"); err != nil {
		return nil, err
	}

	// Phase: link detail to master on the configured column.
	linkColRef, err := m.deps.resolver.ColumnRef(ctx, docID, cfg.Detail.Table, cfg.Detail.LinkField)
	if err != nil {
		return nil, err
	}
	link, err := actions.LinkSections(detail.SectionRef, master.SectionRef, 0, linkColRef)
	if err != nil {
		return nil, err
	}
	if err := m.deps.applyPhase(ctx, docID, actions.Batch{link},
		"linking detail widget for master-detail page"); err != nil {
		return nil, err
	}

	return &BuildResult{
		PageName: pageName,
		ViewID:   master.ViewRef,
		Widgets: []Widget{
			{
				SectionID:  master.SectionRef,
				TableRef:   master.TableRef,
				Title:      cfg.Master.DisplayTitle(),
				Position:   "master",
				WidgetType: masterType,
			},
			{
				SectionID:  detail.SectionRef,
				TableRef:   detail.TableRef,
				Title:      cfg.Detail.DisplayTitle(),
				Position:   "detail",
				WidgetType: detailType,
			},
		},
	}, nil
}
