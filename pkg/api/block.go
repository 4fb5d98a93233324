package api

import (
	"context"
	"log/slog"
)

type directiveKind int

const (
	directiveFollow directiveKind = iota
	directiveGoto
	directiveWait
)

// Directive tells the interpreter where a conversation goes after a block
// has executed. The zero value follows the default edge.
type Directive struct {
	kind   directiveKind
	target string
	handle string
}

// Goto jumps to an explicit node id, bypassing edge lookup.
func Goto(nodeID string) Directive {
	return Directive{kind: directiveGoto, target: nodeID}
}

// FollowEdge resolves the successor through the default (unlabeled) edge.
func FollowEdge() Directive {
	return Directive{kind: directiveFollow}
}

// FollowHandle resolves the successor through the first edge carrying handle.
func FollowHandle(handle string) Directive {
	return Directive{kind: directiveFollow, handle: handle}
}

// Wait ends the current chain. The conversation resumes on the next inbound
// event for the chat.
func Wait() Directive {
	return Directive{kind: directiveWait}
}

// Target returns the explicit node id for a Goto directive.
func (d Directive) Target() (string, bool) {
	return d.target, d.kind == directiveGoto
}

// Handle returns the edge handle a follow directive resolves through.
func (d Directive) Handle() string { return d.handle }

// Waits reports whether the chain stops after this block.
func (d Directive) Waits() bool { return d.kind == directiveWait }

func (d Directive) String() string {
	switch d.kind {
	case directiveGoto:
		return "goto(" + d.target + ")"
	case directiveWait:
		return "wait"
	default:
		if d.handle != "" {
			return "follow(" + d.handle + ")"
		}
		return "follow"
	}
}

// Exec is everything a block may touch while it runs: the transport, the
// chat's own session, and the read-only graph of its bot.
type Exec struct {
	BotID     string
	ChatID    int64
	Node      Node
	Graph     *FlowGraph
	Session   *Session
	Transport Transport
	Logger    *slog.Logger

	// Update is the inbound event that triggered the chain. It is nil for
	// chains that were not started by user input.
	Update *Update
}

// Text returns the text of the triggering update, if any.
func (x *Exec) Text() string {
	if x.Update == nil {
		return ""
	}
	return x.Update.Text
}

// Send delivers msg to the chat being served.
func (x *Exec) Send(ctx context.Context, msg OutboundMessage) (SentMessage, error) {
	return x.Transport.Send(ctx, x.ChatID, msg)
}

// SendText is a shortcut for a plain text message.
func (x *Exec) SendText(ctx context.Context, text string) error {
	_, err := x.Transport.Send(ctx, x.ChatID, OutboundMessage{Text: text})
	return err
}

// Block is the runtime handler bound to one node. A block is built once per
// node when a worker starts and must keep no per-chat state outside the
// Session it is handed.
type Block interface {
	Execute(ctx context.Context, x *Exec) (Directive, error)
}

// BlockFunc adapts a function to the Block interface.
type BlockFunc func(ctx context.Context, x *Exec) (Directive, error)

func (f BlockFunc) Execute(ctx context.Context, x *Exec) (Directive, error) { return f(ctx, x) }

// Interactive is implemented by blocks that end a chain and wait for the
// user to answer (keyboards, menus).
type Interactive interface {
	Interactive() bool
}

// Continuer is implemented by multi-step blocks. When a chat has a pending
// interaction owned by a node, the worker routes the next text message to that
// node's Continue instead of normal dispatch.
type Continuer interface {
	Continue(ctx context.Context, x *Exec) (Directive, error)
}

// Matcher is implemented by blocks that claim free text, such as keyword
// processors.
type Matcher interface {
	Match(text string) bool
}

// Chooser is implemented by keyboard blocks. Choose maps a typed answer to the
// edge handle of the chosen button.
type Chooser interface {
	Choose(text string) (handle string, ok bool)
}

// CallbackResolver is implemented by inline keyboard blocks. ResolveCallback
// maps callback data to the edge handle of the pressed button.
type CallbackResolver interface {
	ResolveCallback(data string) (handle string, ok bool)
}

// IsInteractive reports whether b waits for input after executing.
func IsInteractive(b Block) bool {
	i, ok := b.(Interactive)
	return ok && i.Interactive()
}
