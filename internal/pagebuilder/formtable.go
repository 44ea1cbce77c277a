package pagebuilder

import (
	"context"
	"fmt"

	"github.com/gwhthompson/grist-mcp-server-sub001/internal/actions"
	"github.com/gwhthompson/grist-mcp-server-sub001/internal/layout"
)

// formTableBuilder creates exactly two widgets on one page: a form for entry
// and a table showing the rows, in an even split.
type formTableBuilder struct {
	deps     *PageBuilder
	cfg      FormTableConfig
	pageName string
}

func (f *formTableBuilder) build(ctx context.Context, docID string) (*BuildResult, error) {
	cfg := f.cfg
	if cfg.Form.Table == "" || cfg.Table.Table == "" {
		return nil, fmt.Errorf("form-table requires both form and table widgets")
	}

	orientation := cfg.Split
	if orientation == "" {
		orientation = layout.Vertical
	}
	if !orientation.Valid() {
		return nil, fmt.Errorf("unknown split orientation %q", orientation)
	}
	tableType, err := sectionType(cfg.Table.WidgetType)
	if err != nil {
		return nil, fmt.Errorf("table widget: %w", err)
	}

	formTableRef, err := f.deps.resolver.TableRef(ctx, docID, cfg.Form.Table)
	if err != nil {
		return nil, err
	}
	tableTableRef, err := f.deps.resolver.TableRef(ctx, docID, cfg.Table.Table)
	if err != nil {
		return nil, err
	}

	createForm, err := actions.CreateViewSection(formTableRef, 0, actions.SectionForm, nil)
	if err != nil {
		return nil, err
	}
	formSections, err := f.deps.createSections(ctx, docID, actions.Batch{createForm},
		"creating form widget for form-table page")
	if err != nil {
		return nil, err
	}
	form := formSections[0]

	createTable, err := actions.CreateViewSection(tableTableRef, form.ViewRef, tableType, nil)
	if err != nil {
		return nil, err
	}
	tableSections, err := f.deps.createSections(ctx, docID, actions.Batch{createTable},
		"creating table widget for form-table page")
	if err != nil {
		return nil, err
	}
	table := tableSections[0]

	formTitle, err := actions.SetSectionTitle(form.SectionRef, cfg.Form.DisplayTitle())
	if err != nil {
		return nil, err
	}
	tableTitle, err := actions.SetSectionTitle(table.SectionRef, cfg.Table.DisplayTitle())
	if err != nil {
		return nil, err
	}
	tree, err := layout.Split(orientation, 0.5, layout.Leaf(form.SectionRef), layout.Leaf(table.SectionRef))
	if err != nil {
		return nil, err
	}
	spec, err := tree.Serialize()
	if err != nil {
		return nil, err
	}
	setLayout, err := actions.UpdateViewLayout(form.ViewRef, spec)
	if err != nil {
		return nil, err
	}
	pageName := f.pageName
	if pageName == "" {
		pageName = cfg.Form.Table + " entry"
	}
	rename, err := actions.RenameView(form.ViewRef, pageName)
	if err != nil {
		return nil, err
	}
	if err := f.deps.applyPhase(ctx, docID, actions.Batch{formTitle, tableTitle, setLayout, rename},
		"setting layout for form-table page"); err != nil {
		return nil, err
	}

	return &BuildResult{
		PageName: pageName,
		ViewID:   form.ViewRef,
		Widgets: []Widget{
			{
				SectionID:  form.SectionRef,
				TableRef:   form.TableRef,
				Title:      cfg.Form.DisplayTitle(),
				Position:   "form",
				WidgetType: actions.SectionForm,
			},
			{
				SectionID:  table.SectionRef,
				TableRef:   table.TableRef,
				Title:      cfg.Table.DisplayTitle(),
				Position:   "table",
				WidgetType: tableType,
			},
		},
	}, nil
}
