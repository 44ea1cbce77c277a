package pagebuilder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gwhthompson/grist-mcp-server-sub001/internal/actions"
	"github.com/gwhthompson/grist-mcp-server-sub001/internal/grist"
	"github.com/gwhthompson/grist-mcp-server-sub001/internal/layout"
)

func TestChartDashboardWithSelector(t *testing.T) {
	backend := newFakeBackend()
	backend.tables["doc1"] = []grist.TableMeta{table("Products", 1), table("Sales", 2)}
	backend.columns["Sales"] = []grist.ColumnMeta{
		column("Month", 31), column("Revenue", 32), column("Units", 33),
	}
	builder := newTestBuilder(backend)

	result, err := builder.Build(t.Context(), "doc1", Config{
		Pattern: PatternChartDashboard,
		ChartDashboard: &ChartDashboardConfig{
			Selector: &WidgetConfig{Table: "Products"},
			Charts: []ChartConfig{
				{Table: "Sales", ChartType: "bar", XAxis: "Month", YAxes: []string{"Revenue"}},
				{Table: "Sales", ChartType: "line", Title: "Units over time", XAxis: "Month", YAxes: []string{"Units"},
					Options: map[string]any{"lineConnectGaps": true}},
			},
		},
	})
	require.NoError(t, err)
	require.Len(t, backend.calls, 6)

	// Selector opens the page, charts follow in one batch.
	assert.Equal(t, payload(t,
		mustAction(actions.CreateViewSection(1, 0, actions.SectionRecord, nil)),
	), backend.calls[0])
	assert.Equal(t, payload(t,
		mustAction(actions.CreateViewSection(2, 7, actions.SectionChart, nil)),
		mustAction(actions.CreateViewSection(2, 7, actions.SectionChart, nil)),
	), backend.calls[1])

	// Charts stack by splitting the growing composite; the selector takes
	// the left 30%.
	stack, err := layout.StackOntoComposite(layout.Vertical, []int64{102, 103})
	require.NoError(t, err)
	tree, err := layout.HorizontalSplit(layout.Leaf(101), stack, 0.3)
	require.NoError(t, err)
	assert.Equal(t, payload(t,
		mustAction(actions.SetSectionTitle(101, "Products")),
		mustAction(actions.SetSectionTitle(102, "Sales bar")),
		mustAction(actions.SetSectionTitle(103, "Units over time")),
		mustAction(actions.UpdateViewLayout(7, serialize(t, tree))),
		mustAction(actions.RenameView(7, "Sales dashboard")),
	), backend.calls[2])

	assert.Equal(t, payload(t,
		mustAction(actions.ConfigureChart(102, "bar", nil)),
		mustAction(actions.SetChartAxes(102, 31, []int64{32})),
	), backend.calls[3])
	assert.Equal(t, payload(t,
		mustAction(actions.ConfigureChart(103, "line", map[string]any{"lineConnectGaps": true})),
		mustAction(actions.SetChartAxes(103, 31, []int64{33})),
	), backend.calls[4])

	assert.Equal(t, payload(t,
		mustAction(actions.LinkSections(102, 101, 0, 0)),
		mustAction(actions.LinkSections(103, 101, 0, 0)),
	), backend.calls[5])

	require.Len(t, result.Widgets, 3)
	assert.Equal(t, "selector", result.Widgets[0].Position)
	assert.Equal(t, "chart_1", result.Widgets[1].Position)
	assert.Equal(t, "chart_2", result.Widgets[2].Position)
	assert.Equal(t, "Sales dashboard", result.PageName)
}

func TestChartDashboardWithoutSelector(t *testing.T) {
	backend := newFakeBackend()
	backend.tables["doc1"] = []grist.TableMeta{table("Sales", 2)}
	builder := newTestBuilder(backend)

	result, err := builder.Build(t.Context(), "doc1", Config{
		Pattern: PatternChartDashboard,
		ChartDashboard: &ChartDashboardConfig{
			Charts: []ChartConfig{
				{Table: "Sales", ChartType: "pie"},
				{Table: "Sales", ChartType: "bar"},
			},
		},
	})
	require.NoError(t, err)
	// First chart, second chart, titles+layout, two per-chart configs.
	// No selector means no link batch at all.
	require.Len(t, backend.calls, 5)

	assert.Equal(t, payload(t,
		mustAction(actions.CreateViewSection(2, 0, actions.SectionChart, nil)),
	), backend.calls[0])

	tree, err := layout.StackOntoComposite(layout.Vertical, []int64{101, 102})
	require.NoError(t, err)
	assert.Equal(t, payload(t,
		mustAction(actions.SetSectionTitle(101, "Sales pie")),
		mustAction(actions.SetSectionTitle(102, "Sales bar")),
		mustAction(actions.UpdateViewLayout(7, serialize(t, tree))),
		mustAction(actions.RenameView(7, "Sales dashboard")),
	), backend.calls[2])

	// Charts without axes get a bare chart-type update.
	assert.Equal(t, payload(t,
		mustAction(actions.ConfigureChart(101, "pie", nil)),
	), backend.calls[3])
	assert.Equal(t, payload(t,
		mustAction(actions.ConfigureChart(102, "bar", nil)),
	), backend.calls[4])

	require.Len(t, result.Widgets, 2)
	assert.Equal(t, "chart_1", result.Widgets[0].Position)
}

func TestChartDashboardValidation(t *testing.T) {
	backend := newFakeBackend()
	backend.tables["doc1"] = []grist.TableMeta{table("Sales", 2)}
	builder := newTestBuilder(backend)

	tests := []struct {
		name    string
		cfg     ChartDashboardConfig
		wantErr string
	}{
		{
			name:    "no charts",
			cfg:     ChartDashboardConfig{},
			wantErr: "requires at least one chart",
		},
		{
			name:    "chart missing table",
			cfg:     ChartDashboardConfig{Charts: []ChartConfig{{ChartType: "bar"}}},
			wantErr: "chart 1: missing table",
		},
		{
			name:    "chart missing type",
			cfg:     ChartDashboardConfig{Charts: []ChartConfig{{Table: "Sales"}}},
			wantErr: "chart 1: missing chart_type",
		},
		{
			name: "selector missing table",
			cfg: ChartDashboardConfig{
				Selector: &WidgetConfig{},
				Charts:   []ChartConfig{{Table: "Sales", ChartType: "bar"}},
			},
			wantErr: "selector widget: missing table",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := builder.Build(t.Context(), "doc1", Config{Pattern: PatternChartDashboard, ChartDashboard: &tc.cfg})
			require.Error(t, err)
			assert.ErrorContains(t, err, tc.wantErr)
			assert.Empty(t, backend.calls)
		})
	}
}
