package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/petrijr/botflow/pkg/api"
)

// DefaultMaxChain bounds how many nodes a single inbound event may execute,
// so a cycle of non-interactive nodes cannot spin forever.
const DefaultMaxChain = 100

// DefaultApology is sent to the chat when a block fails.
const DefaultApology = "Sorry, something went wrong while processing your request."

// Interpreter executes blocks of one bot's flow graph and resolves successors.
// It is owned by a single worker and holds no per-chat state; everything
// chat-specific lives in the Session passed to each call.
type Interpreter struct {
	botID     string
	runID     string
	graph     *api.FlowGraph
	blocks    map[string]api.Block
	transport api.Transport
	observer  api.Observer
	logger    *slog.Logger
	maxChain  int
	apology   string
}

// Config describes how to construct an Interpreter.
type Config struct {
	BotID     string
	RunID     string
	Graph     *api.FlowGraph
	Blocks    map[string]api.Block
	Transport api.Transport
	Observer  api.Observer
	Logger    *slog.Logger

	// MaxChain defaults to DefaultMaxChain.
	MaxChain int
	// Apology defaults to DefaultApology.
	Apology string
}

// New creates an Interpreter from cfg.
func New(cfg Config) *Interpreter {
	obs := cfg.Observer
	if obs == nil {
		obs = api.NoopObserver{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxChain := cfg.MaxChain
	if maxChain <= 0 {
		maxChain = DefaultMaxChain
	}
	apology := cfg.Apology
	if apology == "" {
		apology = DefaultApology
	}
	graph := cfg.Graph
	if graph == nil {
		graph = &api.FlowGraph{}
	}
	return &Interpreter{
		botID:     cfg.BotID,
		runID:     cfg.RunID,
		graph:     graph,
		blocks:    cfg.Blocks,
		transport: cfg.Transport,
		observer:  obs,
		logger:    logger,
		maxChain:  maxChain,
		apology:   apology,
	}
}

// Graph returns the read-only graph being interpreted.
func (in *Interpreter) Graph() *api.FlowGraph { return in.graph }

// Block returns the block bound to nodeID.
func (in *Interpreter) Block(nodeID string) (api.Block, bool) {
	b, ok := in.blocks[nodeID]
	return b, ok
}

// Step executes the block of nodeID and returns its successor. An empty
// successor means the chain ends, either because the block waits for input
// or because no edge matched.
func (in *Interpreter) Step(ctx context.Context, sess *api.Session, nodeID string, u *api.Update) string {
	return in.step(ctx, sess, nodeID, u, func(ctx context.Context, b api.Block, x *api.Exec) (api.Directive, error) {
		return b.Execute(ctx, x)
	})
}

// Run executes a chain starting at nodeID until a block waits, no successor
// exists, or the chain limit is reached. It returns the number of nodes
// executed.
func (in *Interpreter) Run(ctx context.Context, sess *api.Session, nodeID string, u *api.Update) int {
	return in.chain(ctx, sess, nodeID, u)
}

// Continue routes u to the continuation of the block that owns the session's
// pending interaction and runs the chain from whatever it resolves to. It
// returns false when there is no pending interaction or its owner cannot
// continue; the pending marker is dropped in the latter case.
func (in *Interpreter) Continue(ctx context.Context, sess *api.Session, u *api.Update) bool {
	p, ok := sess.Pending()
	if !ok {
		return false
	}
	b, ok := in.blocks[p.NodeID]
	if !ok {
		sess.ClearPending()
		return false
	}
	c, ok := b.(api.Continuer)
	if !ok {
		sess.ClearPending()
		return false
	}

	next := in.step(ctx, sess, p.NodeID, u, func(ctx context.Context, _ api.Block, x *api.Exec) (api.Directive, error) {
		return c.Continue(ctx, x)
	})
	if next != "" {
		in.chain(ctx, sess, next, u)
	}
	return true
}

// Follow resolves the edge leaving source with handle and runs the chain from
// its target. It returns false when no edge matches.
func (in *Interpreter) Follow(ctx context.Context, sess *api.Session, source, handle string, u *api.Update) bool {
	next, ok := in.graph.Next(source, handle)
	if !ok {
		return false
	}
	in.chain(ctx, sess, next, u)
	return true
}

func (in *Interpreter) chain(ctx context.Context, sess *api.Session, nodeID string, u *api.Update) int {
	executed := 0
	for cur := nodeID; cur != ""; executed++ {
		if ctx.Err() != nil {
			return executed
		}
		if executed >= in.maxChain {
			in.logger.WarnContext(ctx, "chain_limit_reached",
				slog.String("bot_id", in.botID),
				slog.Int64("chat_id", sess.ChatID),
				slog.String("node", cur),
				slog.Int("limit", in.maxChain),
			)
			return executed
		}
		cur = in.Step(ctx, sess, cur, u)
	}
	return executed
}

type invokeFunc func(ctx context.Context, b api.Block, x *api.Exec) (api.Directive, error)

func (in *Interpreter) step(ctx context.Context, sess *api.Session, nodeID string, u *api.Update, invoke invokeFunc) string {
	node, ok := in.graph.Node(nodeID)
	if !ok {
		in.logger.DebugContext(ctx, "dangling_node",
			slog.String("bot_id", in.botID),
			slog.Int64("chat_id", sess.ChatID),
			slog.String("node", nodeID),
		)
		return ""
	}
	b, ok := in.blocks[nodeID]
	if !ok {
		in.logger.DebugContext(ctx, "node_without_block",
			slog.String("bot_id", in.botID),
			slog.String("node", nodeID),
		)
		return ""
	}

	sess.Push(nodeID)

	ev := api.NodeEvent{BotID: in.botID, RunID: in.runID, ChatID: sess.ChatID, NodeID: nodeID, Kind: node.Kind}
	x := &api.Exec{
		BotID:     in.botID,
		ChatID:    sess.ChatID,
		Node:      node,
		Graph:     in.graph,
		Session:   sess,
		Transport: in.transport,
		Logger:    in.logger.With(slog.String("bot_id", in.botID), slog.String("node", nodeID)),
		Update:    u,
	}

	started := time.Now()
	in.observer.OnNodeStart(ctx, ev)
	d, err := safeInvoke(ctx, invoke, b, x)
	in.observer.OnNodeCompleted(ctx, ev, err, time.Since(started))

	if err != nil {
		berr := &api.BlockExecutionError{NodeID: nodeID, Kind: node.Kind, Err: err}
		in.logger.ErrorContext(ctx, "block_failed",
			slog.String("bot_id", in.botID),
			slog.Int64("chat_id", sess.ChatID),
			slog.String("node", nodeID),
			slog.String("kind", node.Kind),
			slog.Any("error", berr),
		)
		if _, sendErr := in.transport.Send(ctx, sess.ChatID, api.OutboundMessage{Text: in.apology}); sendErr != nil {
			in.logger.WarnContext(ctx, "apology_send_failed",
				slog.String("bot_id", in.botID),
				slog.Any("error", sendErr),
			)
		}
		// The conversation limps forward along the default edge.
		d = api.FollowEdge()
	}

	if d.Waits() {
		return ""
	}
	if target, ok := d.Target(); ok {
		return target
	}
	next, ok := in.graph.Next(nodeID, d.Handle())
	if !ok {
		in.logger.DebugContext(ctx, "chain_end",
			slog.String("bot_id", in.botID),
			slog.Int64("chat_id", sess.ChatID),
			slog.String("node", nodeID),
			slog.String("handle", d.Handle()),
		)
		return ""
	}
	return next
}

func safeInvoke(ctx context.Context, invoke invokeFunc, b api.Block, x *api.Exec) (d api.Directive, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return invoke(ctx, b, x)
}
