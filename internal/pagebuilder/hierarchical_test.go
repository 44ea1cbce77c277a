package pagebuilder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gwhthompson/grist-mcp-server-sub001/internal/actions"
	"github.com/gwhthompson/grist-mcp-server-sub001/internal/grist"
	"github.com/gwhthompson/grist-mcp-server-sub001/internal/layout"
	"github.com/gwhthompson/grist-mcp-server-sub001/internal/refs"
)

func TestHierarchicalBuild(t *testing.T) {
	backend := newFakeBackend()
	backend.tables["doc1"] = []grist.TableMeta{table("Sales", 3)}
	backend.columns["Sales"] = []grist.ColumnMeta{column("Region", 21), column("City", 22)}
	// The backend materializes one summary table per distinct group-by; the
	// second carries a collision suffix the builder must find by prefix scan.
	backend.summaryTables = []grist.TableMeta{
		table("Sales_summary_Region", 50),
		table("Sales_summary_Region_City2", 51),
	}
	builder := newTestBuilder(backend)

	result, err := builder.Build(t.Context(), "doc1", Config{
		Pattern: PatternHierarchical,
		Hierarchical: &HierarchicalConfig{Levels: []Level{
			{Table: "Sales", GroupBy: []string{"Region"}, Title: "By region"},
			{Table: "Sales", GroupBy: []string{"Region", "City"}},
			{Table: "Sales"},
		}},
	})
	require.NoError(t, err)
	require.Len(t, backend.calls, 4)

	// Top level opens the page; the rest land on it in one batch.
	assert.Equal(t, payload(t,
		mustAction(actions.CreateViewSection(3, 0, actions.SectionRecord, []int64{21})),
	), backend.calls[0])
	assert.Equal(t, payload(t,
		mustAction(actions.CreateViewSection(3, 7, actions.SectionRecord, []int64{21, 22})),
		mustAction(actions.CreateViewSection(3, 7, actions.SectionRecord, nil)),
	), backend.calls[1])

	tree, err := layout.StackFromFirst(layout.Vertical, []int64{101, 102, 103})
	require.NoError(t, err)
	assert.Equal(t, payload(t,
		mustAction(actions.SetSectionTitle(101, "By region")),
		mustAction(actions.SetSectionTitle(102, "Sales")),
		mustAction(actions.SetSectionTitle(103, "Sales")),
		mustAction(actions.UpdateViewLayout(7, serialize(t, tree))),
		mustAction(actions.RenameView(7, "Sales drill-down")),
	), backend.calls[2])

	// Each level filters by the row selected one level up.
	assert.Equal(t, payload(t,
		mustAction(actions.LinkSections(102, 101, 0, 0)),
		mustAction(actions.LinkSections(103, 102, 0, 0)),
	), backend.calls[3])

	assert.Equal(t, "Sales drill-down", result.PageName)
	require.Len(t, result.Widgets, 3)
	assert.Equal(t, "level_1", result.Widgets[0].Position)
	assert.Equal(t, "level_3", result.Widgets[2].Position)
	assert.Equal(t, "Sales_summary_Region", result.Widgets[0].SummaryTableID)
	assert.Equal(t, "Sales_summary_Region_City2", result.Widgets[1].SummaryTableID,
		"suffixed summary table must be found by prefix scan")
	assert.Empty(t, result.Widgets[2].SummaryTableID, "levels without group-by have no summary table")

	assert.GreaterOrEqual(t, backend.tableCalls, 2,
		"summary table lookup must re-fetch after invalidation")
}

func TestHierarchicalSingleLevel(t *testing.T) {
	backend := newFakeBackend()
	backend.tables["doc1"] = []grist.TableMeta{table("Sales", 3)}
	builder := newTestBuilder(backend)

	result, err := builder.Build(t.Context(), "doc1", Config{
		Pattern:      PatternHierarchical,
		PageName:     "All sales",
		Hierarchical: &HierarchicalConfig{Levels: []Level{{Table: "Sales"}}},
	})
	require.NoError(t, err)
	// Create, then titles+layout+rename. No links for a single level.
	require.Len(t, backend.calls, 2)

	tree := layout.Leaf(101)
	assert.Equal(t, payload(t,
		mustAction(actions.SetSectionTitle(101, "Sales")),
		mustAction(actions.UpdateViewLayout(7, serialize(t, tree))),
		mustAction(actions.RenameView(7, "All sales")),
	), backend.calls[1])
	assert.Equal(t, "All sales", result.PageName)
}

func TestHierarchicalResolvesEverythingBeforeMutating(t *testing.T) {
	backend := newFakeBackend()
	backend.tables["doc1"] = []grist.TableMeta{table("Sales", 3)}
	backend.columns["Sales"] = []grist.ColumnMeta{column("Region", 21)}
	builder := newTestBuilder(backend)

	_, err := builder.Build(t.Context(), "doc1", Config{
		Pattern: PatternHierarchical,
		Hierarchical: &HierarchicalConfig{Levels: []Level{
			{Table: "Sales", GroupBy: []string{"Region"}},
			{Table: "Sales", GroupBy: []string{"Quarter"}},
		}},
	})
	require.Error(t, err)

	var notFound *refs.NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "column", notFound.Kind)
	assert.Empty(t, backend.calls, "a missing group-by column must fail before any mutation")
}

func TestHierarchicalRequiresLevels(t *testing.T) {
	builder := newTestBuilder(newFakeBackend())

	_, err := builder.Build(t.Context(), "doc1", Config{
		Pattern:      PatternHierarchical,
		Hierarchical: &HierarchicalConfig{},
	})
	assert.ErrorContains(t, err, "requires at least one level")

	_, err = builder.Build(t.Context(), "doc1", Config{
		Pattern:      PatternHierarchical,
		Hierarchical: &HierarchicalConfig{Levels: []Level{{}}},
	})
	assert.ErrorContains(t, err, "level 1: missing table")
}

func TestGuessSummaryTableID(t *testing.T) {
	assert.Equal(t, "Sales_summary_Region", GuessSummaryTableID("Sales", []string{"Region"}))
	assert.Equal(t, "Sales_summary_Region_City", GuessSummaryTableID("Sales", []string{"Region", "City"}))
}
