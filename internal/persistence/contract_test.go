package persistence

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petrijr/botflow/pkg/api"
)

func sampleGraph(label string) api.FlowGraph {
	return api.FlowGraph{
		AdminChatID: "555",
		Nodes: []api.Node{
			{ID: "s", Kind: api.KindStart},
			{ID: "m", Kind: "message", Data: api.NodeData{Label: label}},
			{ID: "b", Kind: "button", Data: api.NodeData{
				Label:   "Pick one",
				Buttons: []api.Button{{Label: "A"}, {Label: "B", CallbackData: "b"}},
			}, Position: &api.Position{X: 10, Y: 20.5}},
		},
		Edges: []api.Edge{
			{ID: "e1", Source: "s", Target: "m"},
			{ID: "e2", Source: "m", Target: "b"},
			{ID: "e3", Source: "b", Target: "m", Handle: "1"},
		},
	}
}

// testFlowStore runs the behaviour every FlowStore backend must share.
func testFlowStore(t *testing.T, store FlowStore) {
	ctx := context.Background()

	t.Run("missing flow", func(t *testing.T) {
		_, err := store.LoadFlow(ctx, "ghost")
		assert.ErrorIs(t, err, api.ErrFlowNotFound)
		assert.ErrorIs(t, store.DeleteFlow(ctx, "ghost"), api.ErrFlowNotFound)
	})

	t.Run("save load overwrite", func(t *testing.T) {
		require.NoError(t, store.SaveFlow(ctx, "shop", sampleGraph("Welcome")))
		got, err := store.LoadFlow(ctx, "shop")
		require.NoError(t, err)
		assert.Equal(t, sampleGraph("Welcome"), got)

		require.NoError(t, store.SaveFlow(ctx, "shop", sampleGraph("Hello again")))
		got, err = store.LoadFlow(ctx, "shop")
		require.NoError(t, err)
		assert.Equal(t, "Hello again", got.Nodes[1].Data.Label)
	})

	t.Run("list sorted", func(t *testing.T) {
		require.NoError(t, store.SaveFlow(ctx, "bakery", sampleGraph("x")))
		require.NoError(t, store.SaveFlow(ctx, "zoo", sampleGraph("y")))
		ids, err := store.ListFlows(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"bakery", "shop", "zoo"}, ids)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, store.DeleteFlow(ctx, "zoo"))
		_, err := store.LoadFlow(ctx, "zoo")
		assert.ErrorIs(t, err, api.ErrFlowNotFound)
		ids, err := store.ListFlows(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"bakery", "shop"}, ids)
	})

	t.Run("invalid graph rejected", func(t *testing.T) {
		bad := api.FlowGraph{Nodes: []api.Node{{ID: "a", Kind: api.KindStart}, {ID: "a", Kind: "message"}}}
		err := store.SaveFlow(ctx, "broken", bad)
		require.Error(t, err)
		assert.True(t, api.IsConfigurationError(err))
		assert.Contains(t, err.Error(), "broken")
		_, err = store.LoadFlow(ctx, "broken")
		assert.ErrorIs(t, err, api.ErrFlowNotFound)
	})

	t.Run("invalid bot id rejected", func(t *testing.T) {
		assert.ErrorIs(t, store.SaveFlow(ctx, "", sampleGraph("x")), ErrInvalidBotID)
		assert.ErrorIs(t, store.SaveFlow(ctx, "../etc", sampleGraph("x")), ErrInvalidBotID)
	})

	t.Run("returned graph is a copy", func(t *testing.T) {
		got, err := store.LoadFlow(ctx, "shop")
		require.NoError(t, err)
		got.Nodes[1].Data.Label = "mutated"
		again, err := store.LoadFlow(ctx, "shop")
		require.NoError(t, err)
		assert.Equal(t, "Hello again", again.Nodes[1].Data.Label)
	})
}

func TestInMemoryStore(t *testing.T) {
	testFlowStore(t, NewInMemoryStore())
}

func TestInMemoryStore_SaveClonesInput(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	g := sampleGraph("Welcome")
	require.NoError(t, store.SaveFlow(ctx, "shop", g))

	g.Nodes[1].Data.Label = "changed after save"
	got, err := store.LoadFlow(ctx, "shop")
	require.NoError(t, err)
	assert.Equal(t, "Welcome", got.Nodes[1].Data.Label)
}
