package pagebuilder

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gwhthompson/grist-mcp-server-sub001/internal/actions"
	"github.com/gwhthompson/grist-mcp-server-sub001/internal/grist"
	"github.com/gwhthompson/grist-mcp-server-sub001/internal/layout"
	"github.com/gwhthompson/grist-mcp-server-sub001/internal/refs"
)

// fakeBackend plays both sides of a build: it serves the metadata the
// resolver reads and answers apply batches the way the real backend does,
// allocating view and section refs for every create-view-section action.
// Tables in summaryTables appear in listings only after the first apply,
// standing in for the summary tables the backend materializes.
type fakeBackend struct {
	tables        map[string][]grist.TableMeta
	columns       map[string][]grist.ColumnMeta
	summaryTables []grist.TableMeta

	calls       [][][]any
	tableCalls  int
	failOnCall  int // 1-based apply call index to fail, 0 disables
	nextView    int64
	nextSection int64
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		tables:      make(map[string][]grist.TableMeta),
		columns:     make(map[string][]grist.ColumnMeta),
		nextView:    7,
		nextSection: 101,
	}
}

func (f *fakeBackend) ListTables(_ context.Context, docID string) ([]grist.TableMeta, error) {
	f.tableCalls++
	tables := f.tables[docID]
	if len(f.calls) > 0 {
		tables = append(append([]grist.TableMeta{}, tables...), f.summaryTables...)
	}
	return tables, nil
}

func (f *fakeBackend) ListColumns(_ context.Context, _, tableID string) ([]grist.ColumnMeta, error) {
	return f.columns[tableID], nil
}

func (f *fakeBackend) Apply(_ context.Context, _ string, acts [][]any) (*grist.ApplyResult, error) {
	f.calls = append(f.calls, acts)
	if f.failOnCall > 0 && len(f.calls) == f.failOnCall {
		return nil, fmt.Errorf("document is read-only")
	}

	retValues := make([]json.RawMessage, len(acts))
	for i, tuple := range acts {
		if verb, _ := tuple[0].(string); verb != "CreateViewSection" {
			retValues[i] = json.RawMessage("null")
			continue
		}
		tableRef := tuple[1].(int64)
		viewRef := tuple[2].(int64)
		if viewRef == 0 {
			viewRef = f.nextView
			f.nextView++
		}
		sectionRef := f.nextSection
		f.nextSection++
		retValues[i] = json.RawMessage(fmt.Sprintf(
			`{"tableRef":%d,"viewRef":%d,"sectionRef":%d}`, tableRef, viewRef, sectionRef))
	}
	return &grist.ApplyResult{ActionNum: int64(len(f.calls)), RetValues: retValues}, nil
}

func newTestBuilder(backend *fakeBackend) *PageBuilder {
	resolver := refs.NewResolver(backend, nil)
	pipeline := NewPipeline(backend, nil, nil)
	return New(resolver, pipeline, nil, nil)
}

func table(id string, ref int64) grist.TableMeta {
	return grist.TableMeta{ID: id, Fields: grist.TableFields{TableRef: ref}}
}

func column(id string, ref int64) grist.ColumnMeta {
	return grist.ColumnMeta{ID: id, Fields: grist.ColumnFields{ColRef: ref}}
}

// payload builds the expected wire form of a batch so tests compare whole
// apply calls rather than picking at tuples.
func payload(t *testing.T, batch ...actions.Action) [][]any {
	t.Helper()
	return actions.Batch(batch).Payload()
}

func mustAction(action actions.Action, err error) actions.Action {
	if err != nil {
		panic(err)
	}
	return action
}

func serialize(t *testing.T, tree *layout.Node) string {
	t.Helper()
	spec, err := tree.Serialize()
	require.NoError(t, err)
	return spec
}

func TestBuildRejectsUnknownPattern(t *testing.T) {
	builder := newTestBuilder(newFakeBackend())

	_, err := builder.Build(t.Context(), "doc1", Config{Pattern: "scatter"})
	require.Error(t, err)
	assert.ErrorContains(t, err, `unknown page pattern "scatter"`)
}

func TestBuildRequiresMatchingConfig(t *testing.T) {
	builder := newTestBuilder(newFakeBackend())

	for _, pattern := range []Pattern{
		PatternMasterDetail, PatternHierarchical, PatternChartDashboard, PatternFormTable, PatternCustom,
	} {
		_, err := builder.Build(t.Context(), "doc1", Config{Pattern: pattern})
		assert.ErrorContains(t, err, fmt.Sprintf("pattern %s requires a", pattern))
	}
}

func TestBuildWrapsPatternFailures(t *testing.T) {
	backend := newFakeBackend()
	backend.tables["doc1"] = []grist.TableMeta{table("Customers", 1), table("Orders", 2)}
	backend.columns["Orders"] = []grist.ColumnMeta{column("Customer", 15)}
	backend.failOnCall = 1
	builder := newTestBuilder(backend)

	_, err := builder.Build(t.Context(), "doc1", Config{
		Pattern: PatternMasterDetail,
		MasterDetail: &MasterDetailConfig{
			Master: MasterConfig{WidgetConfig: WidgetConfig{Table: "Customers"}},
			Detail: DetailConfig{WidgetConfig: WidgetConfig{Table: "Orders"}, LinkField: "Customer"},
		},
	})
	require.Error(t, err)
	assert.ErrorContains(t, err, "build master_detail page:")
	assert.ErrorContains(t, err, "creating master widget for master-detail page")
	assert.ErrorContains(t, err, "document is read-only")
}

func TestMasterDetailBuild(t *testing.T) {
	backend := newFakeBackend()
	backend.tables["doc1"] = []grist.TableMeta{table("Customers", 1), table("Orders", 2)}
	backend.columns["Orders"] = []grist.ColumnMeta{column("Customer", 15)}
	builder := newTestBuilder(backend)

	result, err := builder.Build(t.Context(), "doc1", Config{
		Pattern: PatternMasterDetail,
		MasterDetail: &MasterDetailConfig{
			Master: MasterConfig{WidgetConfig: WidgetConfig{Table: "Customers"}, WidthPercent: 40},
			Detail: DetailConfig{WidgetConfig: WidgetConfig{Table: "Orders"}, LinkField: "Customer"},
		},
	})
	require.NoError(t, err)
	require.Len(t, backend.calls, 5)

	// Master on a new page, detail on the page the backend allocated.
	assert.Equal(t, payload(t,
		mustAction(actions.CreateViewSection(1, 0, actions.SectionRecord, nil)),
	), backend.calls[0])
	assert.Equal(t, payload(t,
		mustAction(actions.CreateViewSection(2, 7, actions.SectionRecord, nil)),
	), backend.calls[1])

	assert.Equal(t, payload(t,
		mustAction(actions.SetSectionTitle(101, "Customers")),
		mustAction(actions.SetSectionTitle(102, "Orders")),
	), backend.calls[2])

	tree, err := layout.Split(layout.Horizontal, 0.4, layout.Leaf(101), layout.Leaf(102))
	require.NoError(t, err)
	assert.Equal(t, payload(t,
		mustAction(actions.UpdateViewLayout(7, serialize(t, tree))),
		mustAction(actions.RenameView(7, "Customers & Orders")),
	), backend.calls[3])

	assert.Equal(t, payload(t,
		mustAction(actions.LinkSections(102, 101, 0, 15)),
	), backend.calls[4])

	assert.True(t, result.Success)
	assert.NotEmpty(t, result.BuildID)
	assert.Equal(t, PatternMasterDetail, result.Pattern)
	assert.Equal(t, "Customers & Orders", result.PageName)
	assert.Equal(t, int64(7), result.ViewID)
	require.Len(t, result.Widgets, 2)
	assert.Equal(t, Widget{SectionID: 101, TableRef: 1, Title: "Customers", Position: "master", WidgetType: "record"}, result.Widgets[0])
	assert.Equal(t, Widget{SectionID: 102, TableRef: 2, Title: "Orders", Position: "detail", WidgetType: "record"}, result.Widgets[1])
}

func TestMasterDetailCustomTitlesAndSplit(t *testing.T) {
	backend := newFakeBackend()
	backend.tables["doc1"] = []grist.TableMeta{table("Customers", 1), table("Orders", 2)}
	backend.columns["Orders"] = []grist.ColumnMeta{column("Customer", 15)}
	builder := newTestBuilder(backend)

	result, err := builder.Build(t.Context(), "doc1", Config{
		Pattern:  PatternMasterDetail,
		PageName: "Accounts",
		MasterDetail: &MasterDetailConfig{
			Master: MasterConfig{WidgetConfig: WidgetConfig{Table: "Customers", Title: "Who", WidgetType: "card_list"}},
			Detail: DetailConfig{WidgetConfig: WidgetConfig{Table: "Orders", Title: "What"}, LinkField: "Customer"},
			Split:  layout.Vertical,
		},
	})
	require.NoError(t, err)
	require.Len(t, backend.calls, 5)

	assert.Equal(t, payload(t,
		mustAction(actions.CreateViewSection(1, 0, actions.SectionDetail, nil)),
	), backend.calls[0])
	assert.Equal(t, payload(t,
		mustAction(actions.SetSectionTitle(101, "Who")),
		mustAction(actions.SetSectionTitle(102, "What")),
	), backend.calls[2])

	// Zero width means an even split.
	tree, err := layout.Split(layout.Vertical, 0.5, layout.Leaf(101), layout.Leaf(102))
	require.NoError(t, err)
	assert.Equal(t, payload(t,
		mustAction(actions.UpdateViewLayout(7, serialize(t, tree))),
		mustAction(actions.RenameView(7, "Accounts")),
	), backend.calls[3])

	assert.Equal(t, "Accounts", result.PageName)
	assert.Equal(t, "detail", result.Widgets[0].WidgetType)
}

func TestMasterDetailValidation(t *testing.T) {
	backend := newFakeBackend()
	backend.tables["doc1"] = []grist.TableMeta{table("Customers", 1), table("Orders", 2)}
	builder := newTestBuilder(backend)

	tests := []struct {
		name    string
		cfg     MasterDetailConfig
		wantErr string
	}{
		{
			name: "missing tables",
			cfg: MasterDetailConfig{
				Detail: DetailConfig{WidgetConfig: WidgetConfig{Table: "Orders"}, LinkField: "Customer"},
			},
			wantErr: "requires both master and detail tables",
		},
		{
			name: "missing link field",
			cfg: MasterDetailConfig{
				Master: MasterConfig{WidgetConfig: WidgetConfig{Table: "Customers"}},
				Detail: DetailConfig{WidgetConfig: WidgetConfig{Table: "Orders"}},
			},
			wantErr: "requires a detail link_field",
		},
		{
			name: "bad orientation",
			cfg: MasterDetailConfig{
				Master: MasterConfig{WidgetConfig: WidgetConfig{Table: "Customers"}},
				Detail: DetailConfig{WidgetConfig: WidgetConfig{Table: "Orders"}, LinkField: "Customer"},
				Split:  "diagonal",
			},
			wantErr: `unknown split orientation "diagonal"`,
		},
		{
			name: "width out of range",
			cfg: MasterDetailConfig{
				Master: MasterConfig{WidgetConfig: WidgetConfig{Table: "Customers"}, WidthPercent: 150},
				Detail: DetailConfig{WidgetConfig: WidgetConfig{Table: "Orders"}, LinkField: "Customer"},
			},
			wantErr: "percent",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := builder.Build(t.Context(), "doc1", Config{Pattern: PatternMasterDetail, MasterDetail: &tc.cfg})
			require.Error(t, err)
			assert.ErrorContains(t, err, tc.wantErr)
			assert.Empty(t, backend.calls, "validation failures must not reach the network")
		})
	}
}

func TestMasterDetailUnknownTableSuggestsNames(t *testing.T) {
	backend := newFakeBackend()
	backend.tables["doc1"] = []grist.TableMeta{table("Customers", 1), table("Orders", 2)}
	builder := newTestBuilder(backend)

	_, err := builder.Build(t.Context(), "doc1", Config{
		Pattern: PatternMasterDetail,
		MasterDetail: &MasterDetailConfig{
			Master: MasterConfig{WidgetConfig: WidgetConfig{Table: "customers"}},
			Detail: DetailConfig{WidgetConfig: WidgetConfig{Table: "Orders"}, LinkField: "Customer"},
		},
	})
	require.Error(t, err)

	var notFound *refs.NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "Customers", notFound.CaseMismatch)
	assert.Empty(t, backend.calls)
}
