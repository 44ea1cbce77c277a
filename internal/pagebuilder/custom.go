package pagebuilder

import (
	"context"
	"fmt"

	"github.com/gwhthompson/grist-mcp-server-sub001/internal/actions"
	"github.com/gwhthompson/grist-mcp-server-sub001/internal/layout"
)

// customBuilder creates an arbitrary widget list with optional by-name links
// and an optional explicit layout whose leaves are widget indexes. Without a
// layout, widgets stack vertically anchored at the original first leaf; this
// differs from the chart dashboard's growing-composite chain on purpose.
type customBuilder struct {
	deps     *PageBuilder
	cfg      CustomConfig
	pageName string
}

func (c *customBuilder) build(ctx context.Context, docID string) (*BuildResult, error) {
	cfg := c.cfg
	if len(cfg.Widgets) == 0 {
		return nil, fmt.Errorf("custom page requires at least one widget")
	}

	// Phase: resolve tables and widget types, and parse any layout override,
	// before any mutation.
	tableRefs := make([]int64, len(cfg.Widgets))
	types := make([]string, len(cfg.Widgets))
	for i, widget := range cfg.Widgets {
		if widget.Table == "" {
			return nil, fmt.Errorf("widget %d: missing table", i+1)
		}
		ref, err := c.deps.resolver.TableRef(ctx, docID, widget.Table)
		if err != nil {
			return nil, err
		}
		tableRefs[i] = ref
		types[i], err = sectionType(widget.WidgetType)
		if err != nil {
			return nil, fmt.Errorf("widget %d: %w", i+1, err)
		}
	}
	var override *layout.Node
	if cfg.Layout != "" {
		var err error
		override, err = layout.Parse(cfg.Layout)
		if err != nil {
			return nil, err
		}
		if err := validateLayoutIndexes(override, len(cfg.Widgets)); err != nil {
			return nil, err
		}
	}

	// Phase: first widget on a new page.
	createFirst, err := actions.CreateViewSection(tableRefs[0], 0, types[0], nil)
	if err != nil {
		return nil, err
	}
	firstSections, err := c.deps.createSections(ctx, docID, actions.Batch{createFirst},
		"creating first widget for custom page")
	if err != nil {
		return nil, err
	}
	viewRef := firstSections[0].ViewRef
	sections := firstSections

	// Phase: remaining widgets in one batch.
	if len(cfg.Widgets) > 1 {
		var batch actions.Batch
		for i := 1; i < len(cfg.Widgets); i++ {
			create, err := actions.CreateViewSection(tableRefs[i], viewRef, types[i], nil)
			if err != nil {
				return nil, err
			}
			batch = append(batch, create)
		}
		rest, err := c.deps.createSections(ctx, docID, batch,
			"creating remaining widgets for custom page")
		if err != nil {
			return nil, err
		}
		sections = append(sections, rest...)
	}
	if len(sections) != len(cfg.Widgets) {
		return nil, &ShapeError{
			Phase:  "creating remaining widgets for custom page",
			Detail: fmt.Sprintf("expected %d sections, got %d", len(cfg.Widgets), len(sections)),
		}
	}

	// Phase: titles, descriptions, layout, page name.
	var phase actions.Batch
	for i, widget := range cfg.Widgets {
		setTitle, err := actions.SetSectionTitle(sections[i].SectionRef, widget.DisplayTitle())
		if err != nil {
			return nil, err
		}
		phase = append(phase, setTitle)
		if widget.Description != "" {
			setDescription, err := actions.SetSectionDescription(sections[i].SectionRef, widget.Description)
			if err != nil {
				return nil, err
			}
			phase = append(phase, setDescription)
		}
	}
	tree, err := c.layoutTree(override, sections)
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
	pageName := c.pageName
	if pageName == "" {
		pageName = cfg.Widgets[0].Table + " page"
	}
	rename, err := actions.RenameView(viewRef, pageName)
	if err != nil {
		return nil, err
	}
	phase = append(phase, setLayout, rename)
	if err := c.deps.applyPhase(ctx, docID, phase, "setting layout for custom page"); err != nil {
		return nil, err
	}

	// Phase: by-name links, resolved exactly as in master-detail.
	var links actions.Batch
	for i, widget := range cfg.Widgets {
		if widget.LinkTo == "" {
			continue
		}
		if widget.LinkField == "" {
			return nil, fmt.Errorf("widget %d links to %q but has no link_field", i+1, widget.LinkTo)
		}
		sourceIndex, err := findLinkSource(cfg.Widgets, i, widget.LinkTo)
		if err != nil {
			return nil, err
		}
		colRef, err := c.deps.resolver.ColumnRef(ctx, docID, widget.Table, widget.LinkField)
		if err != nil {
			return nil, err
		}
		link, err := actions.LinkSections(sections[i].SectionRef, sections[sourceIndex].SectionRef, 0, colRef)
		if err != nil {
			return nil, err
		}
		links = append(links, link)
	}
	if err := c.deps.applyPhase(ctx, docID, links, "linking widgets for custom page"); err != nil {
		return nil, err
	}

	widgets := make([]Widget, len(cfg.Widgets))
	for i, widget := range cfg.Widgets {
		widgets[i] = Widget{
			SectionID:  sections[i].SectionRef,
			TableRef:   sections[i].TableRef,
			Title:      widget.DisplayTitle(),
			Position:   fmt.Sprintf("widget_%d", i+1),
			WidgetType: types[i],
		}
	}

	return &BuildResult{
		PageName: pageName,
		ViewID:   viewRef,
		Widgets:  widgets,
	}, nil
}

// layoutTree maps a user layout's widget indexes onto section refs, or falls
// back to the default fixed-anchor vertical stack.
func (c *customBuilder) layoutTree(override *layout.Node, sections []SectionResult) (*layout.Node, error) {
	if override == nil {
		refs := make([]int64, len(sections))
		for i, section := range sections {
			refs[i] = section.SectionRef
		}
		return layout.StackFromFirst(layout.Vertical, refs)
	}
	return override.MapLeaves(func(index int64) (int64, error) {
		return sections[index].SectionRef, nil
	})
}

// validateLayoutIndexes checks that a layout override covers every widget
// index exactly once.
func validateLayoutIndexes(tree *layout.Node, widgetCount int) error {
	leaves := tree.Leaves()
	if len(leaves) != widgetCount {
		return fmt.Errorf("layout has %d leaves for %d widgets", len(leaves), widgetCount)
	}
	seen := make(map[int64]bool, widgetCount)
	for _, index := range leaves {
		if index < 0 || index >= int64(widgetCount) {
			return fmt.Errorf("layout leaf %d is not a valid widget index", index)
		}
		if seen[index] {
			return fmt.Errorf("layout references widget index %d twice", index)
		}
		seen[index] = true
	}
	return nil
}

// findLinkSource resolves a link_to name against widget titles first, then
// table names.
func findLinkSource(widgets []CustomWidget, self int, linkTo string) (int, error) {
	for i, widget := range widgets {
		if i != self && widget.DisplayTitle() == linkTo {
			return i, nil
		}
	}
	for i, widget := range widgets {
		if i != self && widget.Table == linkTo {
			return i, nil
		}
	}
	return 0, fmt.Errorf("widget %d links to %q, which matches no other widget's title or table", self+1, linkTo)
}
