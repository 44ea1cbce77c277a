package pagebuilder

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gwhthompson/grist-mcp-server-sub001/internal/actions"
	"github.com/gwhthompson/grist-mcp-server-sub001/internal/grist"
	"github.com/gwhthompson/grist-mcp-server-sub001/internal/layout"
	"github.com/gwhthompson/grist-mcp-server-sub001/internal/refs"
)

// gristStub answers the metadata and apply endpoints the way a real Grist
// instance would, recording the JSON body of every apply call.
type gristStub struct {
	applied     [][][]any
	nextSection int64
}

func (s *gristStub) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/docs/doc1/tables":
			_, _ = w.Write([]byte(`{"tables":[{"id":"Customers","fields":{"tableRef":1}},{"id":"Orders","fields":{"tableRef":2}}]}`))
		case "/api/docs/doc1/tables/Orders/columns":
			_, _ = w.Write([]byte(`{"columns":[{"id":"Customer","fields":{"colRef":15,"type":"Ref:Customers"}}]}`))
		case "/api/docs/doc1/apply":
			var batch [][]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&batch))
			s.applied = append(s.applied, batch)
			retValues := make([]any, len(batch))
			for i, action := range batch {
				if len(action) > 0 && action[0] == "CreateViewSection" {
					s.nextSection++
					retValues[i] = map[string]any{
						"tableRef":   action[1],
						"viewRef":    7,
						"sectionRef": s.nextSection,
					}
				}
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"actionNum": int64(len(s.applied)), "retValues": retValues})
		default:
			http.NotFound(w, r)
		}
	}
}

// wire round-trips v through JSON so expectations compare at the wire level,
// the same representation the stub decoded from the request body.
func wire(t *testing.T, v any) []any {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	var out []any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestMasterDetailAgainstHTTPBackend(t *testing.T) {
	stub := &gristStub{nextSection: 100}
	server := httptest.NewServer(stub.handler(t))
	t.Cleanup(server.Close)

	client := grist.New(grist.Config{BaseURL: server.URL, APIKey: "test-key"})
	builder := New(refs.NewResolver(client, nil), NewPipeline(client, nil, nil), nil, nil)

	result, err := builder.Build(t.Context(), "doc1", Config{
		Pattern: PatternMasterDetail,
		MasterDetail: &MasterDetailConfig{
			Master: MasterConfig{WidgetConfig: WidgetConfig{Table: "Customers"}, WidthPercent: 40},
			Detail: DetailConfig{WidgetConfig: WidgetConfig{Table: "Orders"}, LinkField: "Customer"},
		},
	})
	require.NoError(t, err)
	require.Len(t, stub.applied, 5)

	assert.Equal(t, wire(t, payload(t,
		mustAction(actions.CreateViewSection(1, 0, actions.SectionRecord, nil)),
	)), wire(t, stub.applied[0]))
	assert.Equal(t, wire(t, payload(t,
		mustAction(actions.CreateViewSection(2, 7, actions.SectionRecord, nil)),
	)), wire(t, stub.applied[1]))
	assert.Equal(t, wire(t, payload(t,
		mustAction(actions.SetSectionTitle(101, "Customers")),
		mustAction(actions.SetSectionTitle(102, "Orders")),
	)), wire(t, stub.applied[2]))

	tree, err := layout.Split(layout.Horizontal, 0.4, layout.Leaf(101), layout.Leaf(102))
	require.NoError(t, err)
	assert.Equal(t, wire(t, payload(t,
		mustAction(actions.UpdateViewLayout(7, serialize(t, tree))),
		mustAction(actions.RenameView(7, "Customers & Orders")),
	)), wire(t, stub.applied[3]))
	assert.Equal(t, wire(t, payload(t,
		mustAction(actions.LinkSections(102, 101, 0, 15)),
	)), wire(t, stub.applied[4]))

	assert.Equal(t, "Customers & Orders", result.PageName)
	assert.Equal(t, int64(7), result.ViewID)
	require.Len(t, result.Widgets, 2)
	assert.Equal(t, int64(101), result.Widgets[0].SectionID)
	assert.Equal(t, int64(102), result.Widgets[1].SectionID)
}
