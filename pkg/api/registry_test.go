package api

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopFactory(Node) (Block, error) {
	return BlockFunc(func(ctx context.Context, x *Exec) (Directive, error) {
		return FollowEdge(), nil
	}), nil
}

func TestRegistry_RegisterRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("message", noopFactory))
	assert.Error(t, r.Register("message", noopFactory))
	assert.Error(t, r.Register("", noopFactory))
	assert.Error(t, r.Register("nil", nil))
	assert.Equal(t, []string{"message"}, r.Kinds())
}

func TestRegistry_BuildUnknownKind(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(KindStart, noopFactory)

	g := &FlowGraph{Nodes: []Node{
		{ID: "s", Kind: KindStart},
		{ID: "u", Kind: "auto_update"},
	}}

	_, err := r.Build(g)
	require.Error(t, err)

	var ce *ConfigurationError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "u", ce.NodeID)
}

func TestRegistry_BuildWrapsFactoryErrors(t *testing.T) {
	r := NewRegistry()
	r.MustRegister("bad", func(Node) (Block, error) { return nil, errors.New("no buttons") })

	_, err := r.Build(&FlowGraph{Nodes: []Node{{ID: "x", Kind: "bad"}}})
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))
	assert.ErrorContains(t, err, "no buttons")
}

func TestRegistry_BuildOneBlockPerNode(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(KindStart, noopFactory)
	r.MustRegister("message", noopFactory)

	blocks, err := r.Build(branchGraphWithKinds())
	require.NoError(t, err)
	assert.Len(t, blocks, 3)
}

func branchGraphWithKinds() *FlowGraph {
	return &FlowGraph{Nodes: []Node{
		{ID: "a", Kind: KindStart},
		{ID: "b", Kind: "message"},
		{ID: "c", Kind: "message"},
	}}
}

func TestDirective(t *testing.T) {
	var zero Directive
	_, explicit := zero.Target()
	assert.False(t, explicit)
	assert.False(t, zero.Waits())
	assert.Equal(t, "follow", zero.String())

	id, explicit := Goto("n1").Target()
	assert.True(t, explicit)
	assert.Equal(t, "n1", id)

	assert.Equal(t, "yes", FollowHandle("yes").Handle())
	assert.True(t, Wait().Waits())
}

func TestErrors_Matching(t *testing.T) {
	conflict := error(&TransportConflict{Reason: "terminated by other getUpdates request"})
	assert.True(t, errors.Is(conflict, ErrTransportConflict))

	cred := &CredentialError{BotID: "shop", Err: ErrTokenNotFound}
	assert.True(t, errors.Is(cred, ErrTokenNotFound))
	assert.True(t, IsCredentialError(cred))
	assert.False(t, IsConfigurationError(cred))

	be := &BlockExecutionError{NodeID: "n", Kind: "message", Err: context.DeadlineExceeded}
	assert.True(t, errors.Is(be, context.DeadlineExceeded))
}
