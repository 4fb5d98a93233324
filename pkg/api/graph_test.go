package api

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func branchGraph() *FlowGraph {
	return &FlowGraph{
		Nodes: []Node{
			{ID: "A", Kind: KindStart},
			{ID: "B", Kind: "condition"},
			{ID: "C", Kind: "message"},
			{ID: "D", Kind: "message"},
		},
		Edges: []Edge{
			{Source: "A", Target: "B"},
			{Source: "B", Target: "C", Handle: "yes"},
			{Source: "B", Target: "D", Handle: "no"},
		},
	}
}

func TestFlowGraph_NextByHandle(t *testing.T) {
	g := branchGraph()

	next, ok := g.Next("B", "yes")
	require.True(t, ok)
	assert.Equal(t, "C", next)

	next, ok = g.Next("B", "no")
	require.True(t, ok)
	assert.Equal(t, "D", next)

	_, ok = g.Next("B", "maybe")
	assert.False(t, ok)
}

func TestFlowGraph_NextDefaultPrefersUnlabeled(t *testing.T) {
	g := &FlowGraph{Edges: []Edge{
		{Source: "X", Target: "labeled", Handle: "0"},
		{Source: "X", Target: "plain"},
		{Source: "X", Target: "later"},
	}}

	next, ok := g.Next("X", "")
	require.True(t, ok)
	assert.Equal(t, "plain", next)
}

func TestFlowGraph_NextDefaultFallsBackToFirstEdge(t *testing.T) {
	g := branchGraph()

	next, ok := g.Next("B", "")
	require.True(t, ok)
	assert.Equal(t, "C", next, "with only labeled edges the first declared one wins")
}

func TestFlowGraph_NextFirstMatchWins(t *testing.T) {
	g := &FlowGraph{Edges: []Edge{
		{Source: "X", Target: "first", Handle: "1"},
		{Source: "X", Target: "second", Handle: "1"},
	}}

	next, ok := g.Next("X", "1")
	require.True(t, ok)
	assert.Equal(t, "first", next)
}

func TestFlowGraph_NextWithoutOutgoingEdgesIsTerminal(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 12).Draw(t, "edges")
		g := &FlowGraph{}
		for i := 0; i < n; i++ {
			src := rapid.SampledFrom([]string{"a", "b", "c"}).Draw(t, fmt.Sprintf("src%d", i))
			h := rapid.SampledFrom([]string{"", "yes", "no", "0"}).Draw(t, fmt.Sprintf("handle%d", i))
			g.Edges = append(g.Edges, Edge{Source: src, Target: "t", Handle: h})
		}
		handle := rapid.SampledFrom([]string{"", "yes", "no", "0", "1"}).Draw(t, "query")

		next, ok := g.Next("sink", handle)
		if ok || next != "" {
			t.Fatalf("node without outgoing edges resolved to %q", next)
		}
	})
}

func TestFlowGraph_StartNodeAndKinds(t *testing.T) {
	g := branchGraph()

	start, ok := g.StartNode()
	require.True(t, ok)
	assert.Equal(t, "A", start)
	assert.Len(t, g.NodesOfKind("message"), 2)

	_, ok = (&FlowGraph{}).StartNode()
	assert.False(t, ok)
}

func TestFlowGraph_Validate(t *testing.T) {
	require.NoError(t, branchGraph().Validate())

	cases := map[string]FlowGraph{
		"empty id":     {Nodes: []Node{{Kind: "message"}}},
		"duplicate id": {Nodes: []Node{{ID: "a", Kind: "message"}, {ID: "a", Kind: "end"}}},
		"missing type": {Nodes: []Node{{ID: "a"}}},
		"two starts":   {Nodes: []Node{{ID: "a", Kind: KindStart}, {ID: "b", Kind: KindStart}}},
		"edge no target": {
			Nodes: []Node{{ID: "a", Kind: "message"}},
			Edges: []Edge{{Source: "a"}},
		},
	}
	for name, g := range cases {
		t.Run(name, func(t *testing.T) {
			err := g.Validate()
			require.Error(t, err)
			var ce *ConfigurationError
			assert.True(t, errors.As(err, &ce))
		})
	}
}

func TestFlowGraph_ValidateToleratesDanglingTargets(t *testing.T) {
	g := &FlowGraph{
		Nodes: []Node{{ID: "a", Kind: "message"}},
		Edges: []Edge{{Source: "a", Target: "ghost"}},
	}
	assert.NoError(t, g.Validate())
}

func TestFlowGraph_CloneIsDeep(t *testing.T) {
	g := FlowGraph{
		Nodes: []Node{{
			ID:       "btn",
			Kind:     "button",
			Position: &Position{X: 1, Y: 2},
			Data:     NodeData{Buttons: []Button{{Label: "one"}}},
		}},
		Edges: []Edge{{Source: "btn", Target: "x", Handle: "0"}},
	}

	c := g.Clone()
	require.Equal(t, g, c)

	c.Nodes[0].Data.Buttons[0].Label = "changed"
	c.Nodes[0].Position.X = 99
	c.Edges[0].Target = "y"

	assert.Equal(t, "one", g.Nodes[0].Data.Buttons[0].Label)
	assert.Equal(t, float64(1), g.Nodes[0].Position.X)
	assert.Equal(t, "x", g.Edges[0].Target)
}
