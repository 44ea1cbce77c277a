package pagebuilder

import (
	"context"
	"fmt"

	"github.com/gwhthompson/grist-mcp-server-sub001/internal/actions"
	"github.com/gwhthompson/grist-mcp-server-sub001/internal/layout"
)

// selectorFraction is the share of the page given to the selector widget
// when one is present, left of the chart stack.
const selectorFraction = 0.3

// chartDashboardBuilder creates an optional selector widget plus one or more
// chart widgets. Charts stack vertically; a selector sits to their left and
// filters every chart by row selection.
type chartDashboardBuilder struct {
	deps     *PageBuilder
	cfg      ChartDashboardConfig
	pageName string
}

func (c *chartDashboardBuilder) build(ctx context.Context, docID string) (*BuildResult, error) {
	cfg := c.cfg
	if len(cfg.Charts) == 0 {
		return nil, fmt.Errorf("chart dashboard requires at least one chart")
	}

	// Phase: resolve every referenced table up front.
	var selectorRef int64
	var selectorType string
	if cfg.Selector != nil {
		if cfg.Selector.Table == "" {
			return nil, fmt.Errorf("selector widget: missing table")
		}
		var err error
		selectorRef, err = c.deps.resolver.TableRef(ctx, docID, cfg.Selector.Table)
		if err != nil {
			return nil, err
		}
		selectorType, err = sectionType(cfg.Selector.WidgetType)
		if err != nil {
			return nil, fmt.Errorf("selector widget: %w", err)
		}
	}
	chartTableRefs := make([]int64, len(cfg.Charts))
	for i, chart := range cfg.Charts {
		if chart.Table == "" {
			return nil, fmt.Errorf("chart %d: missing table", i+1)
		}
		if chart.ChartType == "" {
			return nil, fmt.Errorf("chart %d: missing chart_type", i+1)
		}
		ref, err := c.deps.resolver.TableRef(ctx, docID, chart.Table)
		if err != nil {
			return nil, err
		}
		chartTableRefs[i] = ref
	}

	// Phase: first widget on a new page. The selector leads when present.
	firstTableRef := chartTableRefs[0]
	firstType := actions.SectionChart
	if cfg.Selector != nil {
		firstTableRef = selectorRef
		firstType = selectorType
	}
	createFirst, err := actions.CreateViewSection(firstTableRef, 0, firstType, nil)
	if err != nil {
		return nil, err
	}
	firstSections, err := c.deps.createSections(ctx, docID, actions.Batch{createFirst},
		"creating first widget for chart dashboard")
	if err != nil {
		return nil, err
	}
	viewRef := firstSections[0].ViewRef
	sections := firstSections

	// Phase: remaining widgets in one batch.
	remaining := chartTableRefs
	if cfg.Selector == nil {
		remaining = chartTableRefs[1:]
	}
	if len(remaining) > 0 {
		var batch actions.Batch
		for _, tableRef := range remaining {
			create, err := actions.CreateViewSection(tableRef, viewRef, actions.SectionChart, nil)
			if err != nil {
				return nil, err
			}
			batch = append(batch, create)
		}
		rest, err := c.deps.createSections(ctx, docID, batch,
			"creating chart widgets for chart dashboard")
		if err != nil {
			return nil, err
		}
		sections = append(sections, rest...)
	}

	var selectorSection *SectionResult
	chartSections := sections
	if cfg.Selector != nil {
		selectorSection = &sections[0]
		chartSections = sections[1:]
	}
	if len(chartSections) != len(cfg.Charts) {
		return nil, &ShapeError{
			Phase:  "creating chart widgets for chart dashboard",
			Detail: fmt.Sprintf("expected %d chart sections, got %d", len(cfg.Charts), len(chartSections)),
		}
	}

	// Phase: titles, layout, page name. Charts nest vertically by splitting
	// the growing composite; a selector sits left of the stack at 0.3.
	var phase actions.Batch
	if selectorSection != nil {
		title, err := actions.SetSectionTitle(selectorSection.SectionRef, cfg.Selector.DisplayTitle())
		if err != nil {
			return nil, err
		}
		phase = append(phase, title)
	}
	chartRefs := make([]int64, len(chartSections))
	for i, section := range chartSections {
		chartRefs[i] = section.SectionRef
		title := cfg.Charts[i].Title
		if title == "" {
			title = cfg.Charts[i].Table + " " + cfg.Charts[i].ChartType
		}
		setTitle, err := actions.SetSectionTitle(section.SectionRef, title)
		if err != nil {
			return nil, err
		}
		phase = append(phase, setTitle)
	}
	tree, err := layout.StackOntoComposite(layout.Vertical, chartRefs)
	if err != nil {
		return nil, err
	}
	if selectorSection != nil {
		tree, err = layout.HorizontalSplit(layout.Leaf(selectorSection.SectionRef), tree, selectorFraction)
		if err != nil {
			return nil, err
		}
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
		pageName = cfg.Charts[0].Table + " dashboard"
	}
	rename, err := actions.RenameView(viewRef, pageName)
	if err != nil {
		return nil, err
	}
	phase = append(phase, setLayout, rename)
	if err := c.deps.applyPhase(ctx, docID, phase, "setting layout for chart dashboard"); err != nil {
		return nil, err
	}

	// Phase: each chart configured independently.
	for i, chart := range cfg.Charts {
		label := fmt.Sprintf("configuring chart %d (%s) for chart dashboard", i+1, chart.ChartType)
		configure, err := actions.ConfigureChart(chartSections[i].SectionRef, chart.ChartType, chart.Options)
		if err != nil {
			return nil, err
		}
		batch := actions.Batch{configure}
		if chart.XAxis != "" {
			xRef, err := c.deps.resolver.ColumnRef(ctx, docID, chart.Table, chart.XAxis)
			if err != nil {
				return nil, err
			}
			yRefs := make([]int64, 0, len(chart.YAxes))
			for _, yAxis := range chart.YAxes {
				yRef, err := c.deps.resolver.ColumnRef(ctx, docID, chart.Table, yAxis)
				if err != nil {
					return nil, err
				}
				yRefs = append(yRefs, yRef)
			}
			setAxes, err := actions.SetChartAxes(chartSections[i].SectionRef, xRef, yRefs)
			if err != nil {
				return nil, err
			}
			batch = append(batch, setAxes)
		}
		if err := c.deps.applyPhase(ctx, docID, batch, label); err != nil {
			return nil, err
		}
	}

	// Phase: selector links. Without a selector no link actions are issued.
	if selectorSection != nil {
		var links actions.Batch
		for _, section := range chartSections {
			link, err := actions.LinkSections(section.SectionRef, selectorSection.SectionRef, 0, 0)
			if err != nil {
				return nil, err
			}
			links = append(links, link)
		}
		if err := c.deps.applyPhase(ctx, docID, links, "linking selector for chart dashboard"); err != nil {
			return nil, err
		}
	}

	var widgets []Widget
	if selectorSection != nil {
		widgets = append(widgets, Widget{
			SectionID:  selectorSection.SectionRef,
			TableRef:   selectorSection.TableRef,
			Title:      cfg.Selector.DisplayTitle(),
			Position:   "selector",
			WidgetType: selectorType,
		})
	}
	for i, section := range chartSections {
		title := cfg.Charts[i].Title
		if title == "" {
			title = cfg.Charts[i].Table + " " + cfg.Charts[i].ChartType
		}
		widgets = append(widgets, Widget{
			SectionID:  section.SectionRef,
			TableRef:   section.TableRef,
			Title:      title,
			Position:   fmt.Sprintf("chart_%d", i+1),
			WidgetType: actions.SectionChart,
		})
	}

	return &BuildResult{
		PageName: pageName,
		ViewID:   viewRef,
		Widgets:  widgets,
	}, nil
}
