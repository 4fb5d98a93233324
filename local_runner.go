package botflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/petrijr/botflow/internal/persistence"
	"github.com/petrijr/botflow/pkg/api"
	"github.com/petrijr/botflow/pkg/supervisor"
	"github.com/petrijr/botflow/pkg/transport/memory"
)

// LocalRunner bundles an in-memory flow store, an in-memory chat network and
// a Supervisor to provide a simple "local runner" for development, debugging
// and tests. No real messaging platform is contacted.
//
// Typical usage:
//
//	runner := botflow.NewLocalRunner()
//	defer runner.Close()
//
//	_ = runner.AddBot(ctx, "shop", botflow.NewFlow().Start("s").Message("m", "Hi").Chain("s", "m").MustBuild())
//	_ = runner.Start(ctx, "shop")
//
//	runner.Send("shop", 7, "/start")
//	replies, _ := runner.WaitForReplies(ctx, "shop", 7, 1)
type LocalRunner struct {
	// Flows stores the graphs added with AddBot.
	Flows FlowStore

	// Network is the fake chat platform the bots poll.
	Network *memory.Network

	// Supervisor runs the workers.
	Supervisor *Supervisor

	// Metrics counts worker and node activity.
	Metrics *BasicMetrics

	// Events records worker lifecycle events.
	Events EventStore

	mu     sync.Mutex
	tokens map[string]string
}

// NewLocalRunner constructs a LocalRunner. Extra observers receive every
// callback alongside Metrics.
func NewLocalRunner(observers ...Observer) *LocalRunner {
	r := &LocalRunner{
		Flows:   persistence.NewInMemoryStore(),
		Network: memory.NewNetwork(memory.WithPollTimeout(10 * time.Millisecond)),
		Metrics: &api.BasicMetrics{},
		Events:  persistence.NewInMemoryEventStore(0),
		tokens:  make(map[string]string),
	}

	sup, err := supervisor.New(supervisor.Config{
		Flows:           r.Flows,
		Tokens:          r,
		Transports:      r.Network.Factory(),
		Observer:        api.NewCompositeObserver(append([]Observer{r.Metrics}, observers...)...),
		Events:          r.Events,
		StopTimeout:     5 * time.Second,
		ConflictBackoff: 10 * time.Millisecond,
		ErrorBackoff:    10 * time.Millisecond,
	})
	if err != nil {
		// Only reachable if a required collaborator is nil.
		panic(err)
	}
	r.Supervisor = sup
	return r
}

// ResolveToken implements api.TokenResolver over the bots added so far.
func (r *LocalRunner) ResolveToken(_ context.Context, botID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tok, ok := r.tokens[botID]
	if !ok {
		return "", api.ErrTokenNotFound
	}
	return tok, nil
}

// Token returns the fake credential of botID, or "" if it was never added.
func (r *LocalRunner) Token(botID string) string {
	tok, _ := r.ResolveToken(context.Background(), botID)
	return tok
}

// AddBot stores g for botID and registers a fake account for it. Calling it
// again replaces the graph; a running bot sees the change after Restart.
func (r *LocalRunner) AddBot(ctx context.Context, botID string, g FlowGraph) error {
	if err := r.Flows.SaveFlow(ctx, botID, g); err != nil {
		return err
	}

	r.mu.Lock()
	tok, ok := r.tokens[botID]
	if !ok {
		tok = fmt.Sprintf("%d:local-%s", len(r.tokens)+1, botID)
		r.tokens[botID] = tok
	}
	r.mu.Unlock()

	r.Network.AddBot(tok, botID+"_bot")
	return nil
}

func (r *LocalRunner) Start(ctx context.Context, botID string) error {
	return r.Supervisor.Start(ctx, botID)
}

func (r *LocalRunner) Stop(ctx context.Context, botID string) error {
	return r.Supervisor.Stop(ctx, botID)
}

func (r *LocalRunner) Restart(ctx context.Context, botID string) error {
	return r.Supervisor.Restart(ctx, botID)
}

// Close stops every running bot.
func (r *LocalRunner) Close() error {
	return r.Supervisor.StopAll(context.Background())
}

// Send delivers a text message from chatID to the bot.
func (r *LocalRunner) Send(botID string, chatID int64, text string) {
	r.Network.SendText(r.mustToken(botID), chatID, text)
}

// Press delivers an inline button press on messageID.
func (r *LocalRunner) Press(botID string, chatID, messageID int64, data string) {
	r.Network.Press(r.mustToken(botID), chatID, messageID, data)
}

// Replies returns the texts the bot has sent to chatID so far.
func (r *LocalRunner) Replies(botID string, chatID int64) []string {
	return r.Network.Texts(r.mustToken(botID), chatID)
}

// WaitForReplies blocks until the bot has sent at least n texts to chatID or
// ctx ends, and returns everything sent so far.
func (r *LocalRunner) WaitForReplies(ctx context.Context, botID string, chatID int64, n int) ([]string, error) {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		texts := r.Replies(botID, chatID)
		if len(texts) >= n {
			return texts, nil
		}
		select {
		case <-ctx.Done():
			return texts, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (r *LocalRunner) mustToken(botID string) string {
	tok := r.Token(botID)
	if tok == "" {
		panic(fmt.Sprintf("botflow: bot %q was not added to the LocalRunner", botID))
	}
	return tok
}
