package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/petrijr/botflow/internal/engine"
	"github.com/petrijr/botflow/internal/session"
	"github.com/petrijr/botflow/pkg/api"
	"github.com/petrijr/botflow/pkg/blocks"
)

// Defaults for Config fields left zero.
const (
	DefaultConflictRetries = 3
	DefaultConflictBackoff = 5 * time.Second
	DefaultErrorBackoff    = 3 * time.Second
)

// Replies sent by the worker itself rather than by a block.
const (
	ReplyNoStart        = "Bot started. No start block is configured yet."
	ReplyNoPrevious     = "There are no previous steps."
	ReplyUnknownCommand = "Unknown command. Send /start to begin."
	ReplyButtonInactive = "This button is no longer active."
	ReplyChoiceNoted    = "Thank you for your choice!"
	ReplyFallback       = "I did not understand that. Send /start to begin."
)

var backCommands = map[string]bool{
	"/back": true, "back": true, "/назад": true, "назад": true,
}

// Config describes one bot run.
type Config struct {
	BotID string
	RunID string

	Graph     api.FlowGraph
	Registry  *api.Registry
	Transport api.Transport

	Observer api.Observer
	Logger   *slog.Logger

	// HistoryDepth defaults to api.DefaultHistoryDepth.
	HistoryDepth int
	// MaxChain defaults to engine.DefaultMaxChain.
	MaxChain int

	// ConflictRetries is how many consecutive transport conflicts are
	// tolerated before Run gives up. Defaults to DefaultConflictRetries.
	ConflictRetries int
	// ConflictBackoff is the fixed delay after a conflict. A conflict that
	// carries a longer RetryAfter waits that long instead.
	ConflictBackoff time.Duration
	// ErrorBackoff is the delay after any other poll failure.
	ErrorBackoff time.Duration
}

// Worker drives one bot: it long-polls the transport and dispatches each
// update to the interpreter. A Worker is used by a single goroutine; Handle
// must not be called concurrently with Run.
type Worker struct {
	botID     string
	runID     string
	graph     *api.FlowGraph
	transport api.Transport
	observer  api.Observer
	logger    *slog.Logger
	interp    *engine.Interpreter
	sessions  *session.Store
	order     []string

	conflictRetries int
	conflictBackoff time.Duration
	errorBackoff    time.Duration
}

// New builds the blocks of cfg.Graph and returns a Worker ready to Run. An
// invalid graph or unknown node kind yields a *api.ConfigurationError.
func New(cfg Config) (*Worker, error) {
	if cfg.Transport == nil {
		return nil, errors.New("worker: transport is required")
	}
	reg := cfg.Registry
	if reg == nil {
		reg = blocks.NewRegistry(blocks.Options{Logger: cfg.Logger})
	}
	graph := cfg.Graph.Clone()
	built, err := reg.Build(&graph)
	if err != nil {
		var cerr *api.ConfigurationError
		if errors.As(err, &cerr) && cerr.BotID == "" {
			cerr.BotID = cfg.BotID
		}
		return nil, err
	}

	obs := cfg.Observer
	if obs == nil {
		obs = api.NoopObserver{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	depth := cfg.HistoryDepth
	if depth <= 0 {
		depth = api.DefaultHistoryDepth
	}

	w := &Worker{
		botID:           cfg.BotID,
		runID:           cfg.RunID,
		graph:           &graph,
		transport:       cfg.Transport,
		observer:        obs,
		logger:          logger,
		sessions:        session.NewStore(depth),
		conflictRetries: cfg.ConflictRetries,
		conflictBackoff: cfg.ConflictBackoff,
		errorBackoff:    cfg.ErrorBackoff,
	}
	if w.conflictRetries <= 0 {
		w.conflictRetries = DefaultConflictRetries
	}
	if w.conflictBackoff <= 0 {
		w.conflictBackoff = DefaultConflictBackoff
	}
	if w.errorBackoff <= 0 {
		w.errorBackoff = DefaultErrorBackoff
	}
	for _, n := range graph.Nodes {
		w.order = append(w.order, n.ID)
	}
	w.interp = engine.New(engine.Config{
		BotID:     cfg.BotID,
		RunID:     cfg.RunID,
		Graph:     &graph,
		Blocks:    built,
		Transport: cfg.Transport,
		Observer:  obs,
		Logger:    logger,
		MaxChain:  cfg.MaxChain,
	})
	return w, nil
}

// BotID returns the bot this worker serves.
func (w *Worker) BotID() string { return w.botID }

// RunID returns the identity of this run.
func (w *Worker) RunID() string { return w.runID }

// Session returns the live session of chatID, if any.
func (w *Worker) Session(chatID int64) (*api.Session, bool) {
	return w.sessions.Lookup(w.botID, chatID)
}

// Run polls the transport until ctx is cancelled or a fatal error occurs. It
// returns nil for a requested stop. Transport conflicts are retried with a
// fixed backoff; once ConflictRetries consecutive conflicts have been retried
// the next one is returned. Credential errors are returned immediately. Any
// other poll error is logged and retried after ErrorBackoff.
//
// Sessions are discarded when Run returns.
func (w *Worker) Run(ctx context.Context) (err error) {
	w.observer.OnWorkerStart(ctx, w.botID, w.runID)
	defer func() {
		w.sessions.Clear()
		w.observer.OnWorkerStop(context.WithoutCancel(ctx), w.botID, w.runID, err)
	}()

	conflicts := 0
	for {
		if ctx.Err() != nil {
			return nil
		}
		updates, perr := w.transport.Poll(ctx)
		if perr != nil {
			if ctx.Err() != nil {
				return nil
			}
			delay, fatal := w.classify(ctx, perr, &conflicts)
			if fatal != nil {
				return fatal
			}
			if sleepContext(ctx, delay) != nil {
				return nil
			}
			continue
		}
		conflicts = 0

		for _, u := range updates {
			if ctx.Err() != nil {
				return nil
			}
			w.Handle(ctx, u)
		}
	}
}

// classify decides how Run reacts to a poll error: either a delay before the
// next poll or a fatal error ending the run.
func (w *Worker) classify(ctx context.Context, err error, conflicts *int) (time.Duration, error) {
	switch {
	case api.IsCredentialError(err):
		return 0, err
	case errors.Is(err, api.ErrTransportConflict):
		*conflicts++
		if *conflicts > w.conflictRetries {
			w.logger.ErrorContext(ctx, "transport_conflict_exhausted",
				slog.String("bot_id", w.botID),
				slog.String("run_id", w.runID),
				slog.Int("attempts", *conflicts),
			)
			return 0, fmt.Errorf("worker %s: giving up after %d conflicts: %w", w.botID, *conflicts, err)
		}
		delay := w.conflictBackoff
		var tc *api.TransportConflict
		if errors.As(err, &tc) && tc.RetryAfter > delay {
			delay = tc.RetryAfter
		}
		w.logger.WarnContext(ctx, "transport_conflict",
			slog.String("bot_id", w.botID),
			slog.String("run_id", w.runID),
			slog.Int("attempt", *conflicts),
			slog.Duration("backoff", delay),
			slog.Any("error", err),
		)
		return delay, nil
	default:
		w.logger.ErrorContext(ctx, "poll_failed",
			slog.String("bot_id", w.botID),
			slog.String("run_id", w.runID),
			slog.Any("error", err),
		)
		return w.errorBackoff, nil
	}
}

// Handle dispatches one update. Updates of a chat must be handled in arrival
// order, which Run guarantees by handling them sequentially.
func (w *Worker) Handle(ctx context.Context, u api.Update) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.ErrorContext(ctx, "update_panic",
				slog.String("bot_id", w.botID),
				slog.Int64("chat_id", u.ChatID),
				slog.Any("panic", r),
			)
		}
	}()

	w.observer.OnUpdate(ctx, w.botID, u)
	sess := w.sessions.Get(w.botID, u.ChatID)

	if u.Kind == api.UpdateCallback {
		w.onCallback(ctx, sess, &u)
		return
	}

	text := strings.TrimSpace(u.Text)
	cmd, isCommand := command(text)
	switch {
	case cmd == "start" || cmd == "help":
		w.onStart(ctx, sess, &u)
	case backCommands[strings.ToLower(text)] || (isCommand && backCommands[cmd]):
		w.onBack(ctx, sess, &u)
	case isCommand:
		w.onCommand(ctx, sess, cmd, &u)
	default:
		w.onText(ctx, sess, text, &u)
	}
}

// command extracts the lower-cased command name of a "/cmd[@bot] args" text.
func command(text string) (string, bool) {
	if !strings.HasPrefix(text, "/") {
		return "", false
	}
	name := strings.Fields(text)[0][1:]
	if at := strings.IndexByte(name, '@'); at >= 0 {
		name = name[:at]
	}
	return strings.ToLower(name), true
}

func (w *Worker) onStart(ctx context.Context, sess *api.Session, u *api.Update) {
	sess.Reset()
	start, ok := w.graph.StartNode()
	if !ok {
		w.reply(ctx, sess.ChatID, ReplyNoStart)
		return
	}
	w.interp.Run(ctx, sess, start, u)
}

// onBack re-executes the previous node only; it does not chain past it.
func (w *Worker) onBack(ctx context.Context, sess *api.Session, u *api.Update) {
	sess.ClearPending()
	prev, ok := sess.Back()
	if !ok {
		w.reply(ctx, sess.ChatID, ReplyNoPrevious)
		return
	}
	w.interp.Step(ctx, sess, prev, u)
}

// onCommand runs the menu entry registered for cmd. An edge whose handle is
// the command wins over the menu's default edge.
func (w *Worker) onCommand(ctx context.Context, sess *api.Session, cmd string, u *api.Update) {
	sess.ClearPending()
	for _, menu := range w.graph.NodesOfKind(blocks.KindMenu) {
		for _, item := range menu.Data.MenuItems {
			if strings.ToLower(blocks.NormalizeCommand(item.Command)) != cmd {
				continue
			}
			if w.interp.Follow(ctx, sess, menu.ID, cmd, u) || w.interp.Follow(ctx, sess, menu.ID, "", u) {
				return
			}
		}
	}
	w.reply(ctx, sess.ChatID, ReplyUnknownCommand)
}

func (w *Worker) onCallback(ctx context.Context, sess *api.Session, u *api.Update) {
	for _, id := range w.candidates(sess) {
		b, _ := w.interp.Block(id)
		r, ok := b.(api.CallbackResolver)
		if !ok {
			continue
		}
		handle, ok := r.ResolveCallback(u.CallbackData)
		if !ok {
			continue
		}
		w.answer(ctx, u.CallbackID, "")
		if u.MessageID != 0 {
			if err := w.transport.ClearInlineKeyboard(ctx, u.ChatID, u.MessageID); err != nil {
				w.logger.WarnContext(ctx, "clear_keyboard_failed",
					slog.String("bot_id", w.botID),
					slog.Int64("chat_id", u.ChatID),
					slog.Any("error", err),
				)
			}
		}
		if !w.interp.Follow(ctx, sess, id, handle, u) {
			w.reply(ctx, sess.ChatID, ReplyChoiceNoted)
		}
		return
	}
	w.answer(ctx, u.CallbackID, ReplyButtonInactive)
}

func (w *Worker) onText(ctx context.Context, sess *api.Session, text string, u *api.Update) {
	if w.interp.Continue(ctx, sess, u) {
		return
	}

	for _, id := range w.order {
		b, _ := w.interp.Block(id)
		if m, ok := b.(api.Matcher); ok && m.Match(text) {
			if !w.interp.Follow(ctx, sess, id, "", u) {
				w.logger.DebugContext(ctx, "keyword_without_edge",
					slog.String("bot_id", w.botID),
					slog.String("node", id),
				)
			}
			return
		}
	}

	for _, id := range w.candidates(sess) {
		b, _ := w.interp.Block(id)
		c, ok := b.(api.Chooser)
		if !ok {
			continue
		}
		if handle, ok := c.Choose(text); ok {
			if !w.interp.Follow(ctx, sess, id, handle, u) {
				w.reply(ctx, sess.ChatID, ReplyChoiceNoted)
			}
			return
		}
	}

	if nlp := w.graph.NodesOfKind(blocks.KindNLPResponse); len(nlp) > 0 {
		w.interp.Run(ctx, sess, nlp[0].ID, u)
		return
	}

	w.reply(ctx, sess.ChatID, ReplyFallback)
}

// candidates lists node ids with the chat's current node first, then the
// rest in declaration order.
func (w *Worker) candidates(sess *api.Session) []string {
	cur, ok := sess.Current()
	if !ok {
		return w.order
	}
	out := make([]string, 0, len(w.order))
	out = append(out, cur)
	for _, id := range w.order {
		if id != cur {
			out = append(out, id)
		}
	}
	return out
}

func (w *Worker) reply(ctx context.Context, chatID int64, text string) {
	if _, err := w.transport.Send(ctx, chatID, api.OutboundMessage{Text: text}); err != nil {
		w.logger.WarnContext(ctx, "reply_failed",
			slog.String("bot_id", w.botID),
			slog.Int64("chat_id", chatID),
			slog.Any("error", err),
		)
	}
}

func (w *Worker) answer(ctx context.Context, callbackID, text string) {
	if callbackID == "" {
		return
	}
	if err := w.transport.AnswerCallback(ctx, callbackID, text); err != nil {
		w.logger.WarnContext(ctx, "answer_callback_failed",
			slog.String("bot_id", w.botID),
			slog.Any("error", err),
		)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
