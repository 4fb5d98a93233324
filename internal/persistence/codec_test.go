package persistence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/petrijr/botflow/pkg/api"
)

func genGraph(t *rapid.T) api.FlowGraph {
	ids := rapid.SliceOfNDistinct(rapid.StringMatching(`[a-z][a-z0-9_]{0,6}`), 1, 8, rapid.ID[string]).Draw(t, "ids")
	kinds := []string{"start", "message", "button", "condition", "menu", "end"}

	g := api.FlowGraph{AdminChatID: rapid.StringMatching(`[0-9]{0,6}`).Draw(t, "admin")}
	for i, id := range ids {
		n := api.Node{
			ID:   id,
			Kind: rapid.SampledFrom(kinds).Draw(t, "kind"),
			Data: api.NodeData{Label: rapid.String().Draw(t, "label")},
		}
		if rapid.Bool().Draw(t, "keywords") {
			n.Data.Keywords = rapid.SliceOfN(rapid.String(), 0, 3).Draw(t, "kw")
		}
		if rapid.Bool().Draw(t, "buttons") {
			labels := rapid.SliceOfN(rapid.String(), 0, 3).Draw(t, "buttons")
			n.Data.Buttons = make([]api.Button, len(labels))
			for j, l := range labels {
				n.Data.Buttons[j] = api.Button{Label: l}
			}
		}
		if rapid.Bool().Draw(t, "position") {
			n.Position = &api.Position{X: float64(i), Y: rapid.Float64Range(-1e3, 1e3).Draw(t, "y")}
		}
		g.Nodes = append(g.Nodes, n)
	}
	g.Edges = rapid.SliceOfN(rapid.Custom(func(t *rapid.T) api.Edge {
		return api.Edge{
			Source: rapid.SampledFrom(ids).Draw(t, "src"),
			Target: rapid.SampledFrom(ids).Draw(t, "dst"),
			Handle: rapid.SampledFrom([]string{"", "yes", "no", "0", "1"}).Draw(t, "handle"),
		}
	}), 0, 10).Draw(t, "edges")
	if len(g.Edges) == 0 && rapid.Bool().Draw(t, "nil_edges") {
		g.Edges = nil
	}
	return g
}

// normalized maps the nil/empty slice forms a stored graph cannot tell apart
// onto the form DecodeFlow returns.
func normalized(g api.FlowGraph) api.FlowGraph {
	g = g.Clone()
	if g.Nodes == nil {
		g.Nodes = []api.Node{}
	}
	if g.Edges == nil {
		g.Edges = []api.Edge{}
	}
	for i := range g.Nodes {
		if len(g.Nodes[i].Data.Keywords) == 0 {
			g.Nodes[i].Data.Keywords = nil
		}
		if len(g.Nodes[i].Data.Buttons) == 0 {
			g.Nodes[i].Data.Buttons = nil
		}
	}
	return g
}

func TestEncodeDecodeFlow_RoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		g := genGraph(t)
		data, err := EncodeFlow(g)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		got, err := DecodeFlow(data)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		assert.Equal(t, normalized(g), got)
	})
}

func TestDecodeFlow_EditorShape(t *testing.T) {
	raw := `{
		"nodes": [
			{"id": "n1", "type": "start", "data": {}, "position": {"x": 0, "y": 0}},
			{"id": "n2", "type": "schedule", "data": {"dateQuestion": "When?", "timeInterval": 30, "crmIntegration": true, "crmEndpoint": "http://crm/slots"}},
			{"id": "n3", "type": "product_card", "data": {"title": "Tea", "price": "5", "photo_url": "http://img", "features": [{"key": "Size", "value": "L"}]}}
		],
		"edges": [{"id": "e", "source": "n1", "target": "n2", "sourceHandle": null}],
		"adminChatId": "42",
		"viewport": {"zoom": 1}
	}`
	g, err := DecodeFlow([]byte(raw))
	require.NoError(t, err)

	assert.Equal(t, "42", g.AdminChatID)
	require.Len(t, g.Nodes, 3)
	assert.Equal(t, "When?", g.Nodes[1].Data.DateQuestion)
	assert.Equal(t, 30, g.Nodes[1].Data.TimeInterval)
	assert.True(t, g.Nodes[1].Data.CRMIntegration)
	assert.Equal(t, []api.Feature{{Key: "Size", Value: "L"}}, g.Nodes[2].Data.Features)
	assert.Equal(t, "http://img", g.Nodes[2].Data.PhotoURL)
	assert.Equal(t, api.Edge{ID: "e", Source: "n1", Target: "n2"}, g.Edges[0])
}

func TestDecodeFlow_Errors(t *testing.T) {
	_, err := DecodeFlow(nil)
	assert.Error(t, err)
	_, err = DecodeFlow([]byte(`{"nodes": 3}`))
	assert.Error(t, err)
	_, err = DecodeFlowYAML([]byte("   "))
	assert.Error(t, err)
}

func TestDecodeFlowFile_YAMLMatchesJSON(t *testing.T) {
	yml := `
adminChatId: "555"
nodes:
  - id: s
    type: start
  - id: m
    type: message
    data:
      label: Welcome
  - id: b
    type: button
    position: {x: 10, y: 20.5}
    data:
      label: Pick one
      buttons:
        - label: A
        - label: B
          callbackData: b
edges:
  - {id: e1, source: s, target: m}
  - {id: e2, source: m, target: b}
  - {id: e3, source: b, target: m, sourceHandle: "1"}
`
	g, err := DecodeFlowFile("flow.YML", []byte(yml))
	require.NoError(t, err)
	assert.Equal(t, sampleGraph("Welcome"), g)

	data, err := EncodeFlowYAML(g)
	require.NoError(t, err)
	back, err := DecodeFlowFile("bot_shop.yaml", data)
	require.NoError(t, err)
	assert.Equal(t, g, back)

	js, err := EncodeFlow(g)
	require.NoError(t, err)
	fromJSON, err := DecodeFlowFile("bot_shop.json", js)
	require.NoError(t, err)
	assert.Equal(t, g, fromJSON)
}
