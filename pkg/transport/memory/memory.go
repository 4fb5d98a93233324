// Package memory provides an in-process Transport for development and tests.
//
// A Network hosts any number of fake bot accounts keyed by token. Tests push
// inbound updates into it and inspect what the bots sent back. Like the real
// platform, a token accepts only one long-poll at a time: a concurrent Poll
// on the same token fails with a *api.TransportConflict.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/petrijr/botflow/pkg/api"
)

// DefaultPollTimeout is how long Poll waits for updates before returning an
// empty batch.
const DefaultPollTimeout = 50 * time.Millisecond

// Message is an outbound message recorded by the network.
type Message struct {
	ChatID    int64
	MessageID int64
	api.OutboundMessage
}

// CallbackAnswer is a recorded AnswerCallback call.
type CallbackAnswer struct {
	CallbackID string
	Text       string
}

type bot struct {
	identity api.BotIdentity

	queue  []api.Update
	notify chan struct{}

	sent     []Message
	answers  []CallbackAnswer
	cleared  []int64
	deleted  []int64
	commands []api.BotCommand

	pollers     int
	peakPollers int
	polls       int

	pollFaults  []error
	sendFaults  []error
	identityErr error
	hang        <-chan struct{}
}

// Network is a set of fake bot accounts.
type Network struct {
	mu          sync.Mutex
	bots        map[string]*bot
	nextID      int64
	nextMsg     int64
	pollTimeout time.Duration
}

// Option configures a Network.
type Option func(*Network)

// WithPollTimeout overrides DefaultPollTimeout.
func WithPollTimeout(d time.Duration) Option {
	return func(n *Network) { n.pollTimeout = d }
}

// NewNetwork creates an empty network.
func NewNetwork(opts ...Option) *Network {
	n := &Network{
		bots:        make(map[string]*bot),
		pollTimeout: DefaultPollTimeout,
	}
	for _, o := range opts {
		o(n)
	}
	return n
}

// AddBot registers a bot account. Registering an existing token is a no-op.
func (n *Network) AddBot(token, username string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.bots[token]; ok {
		return
	}
	n.bots[token] = &bot{
		identity: api.BotIdentity{ID: int64(len(n.bots) + 1), Username: username, Name: username},
		notify:   make(chan struct{}, 1),
	}
}

// Factory returns a TransportFactory over this network. Unknown tokens are
// rejected with a *api.CredentialError, like a 401 from the platform.
func (n *Network) Factory() api.TransportFactory {
	return func(token string) (api.Transport, error) {
		return n.Transport(token)
	}
}

// Transport returns a transport bound to token.
func (n *Network) Transport(token string) (*Transport, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.bots[token]; !ok {
		return nil, &api.CredentialError{Err: fmt.Errorf("unauthorized token")}
	}
	return &Transport{net: n, token: token}, nil
}

// Push queues an inbound update for token and returns its assigned id.
func (n *Network) Push(token string, u api.Update) int64 {
	n.mu.Lock()
	b := n.mustBot(token)
	n.nextID++
	u.ID = n.nextID
	if u.Kind == "" {
		u.Kind = api.UpdateMessage
	}
	b.queue = append(b.queue, u)
	n.mu.Unlock()

	select {
	case b.notify <- struct{}{}:
	default:
	}
	return u.ID
}

// SendText queues a text message from a user in chatID.
func (n *Network) SendText(token string, chatID int64, text string) int64 {
	return n.Push(token, api.Update{Kind: api.UpdateMessage, ChatID: chatID, UserID: chatID, Text: text})
}

// Press queues an inline keyboard callback from chatID.
func (n *Network) Press(token string, chatID, messageID int64, data string) int64 {
	return n.Push(token, api.Update{
		Kind:         api.UpdateCallback,
		ChatID:       chatID,
		UserID:       chatID,
		MessageID:    messageID,
		CallbackID:   fmt.Sprintf("cb-%d-%d", chatID, messageID),
		CallbackData: data,
	})
}

// Pending returns the number of queued, undelivered updates for token.
func (n *Network) Pending(token string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.mustBot(token).queue)
}

// Sent returns every message sent by token's bot, in order.
func (n *Network) Sent(token string) []Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Clone(n.mustBot(token).sent)
}

// SentTo returns the messages sent by token's bot to chatID.
func (n *Network) SentTo(token string, chatID int64) []Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []Message
	for _, m := range n.mustBot(token).sent {
		if m.ChatID == chatID {
			out = append(out, m)
		}
	}
	return out
}

// Texts returns the text (or caption) of every message sent to chatID.
func (n *Network) Texts(token string, chatID int64) []string {
	var out []string
	for _, m := range n.SentTo(token, chatID) {
		if m.Text != "" {
			out = append(out, m.Text)
		} else {
			out = append(out, m.Caption)
		}
	}
	return out
}

// Answers returns recorded callback answers.
func (n *Network) Answers(token string) []CallbackAnswer {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Clone(n.mustBot(token).answers)
}

// ClearedKeyboards returns message ids whose inline keyboard was removed.
func (n *Network) ClearedKeyboards(token string) []int64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Clone(n.mustBot(token).cleared)
}

// Commands returns the last command menu set by token's bot.
func (n *Network) Commands(token string) []api.BotCommand {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Clone(n.mustBot(token).commands)
}

// ActivePollers returns how many Poll calls are in flight for token.
func (n *Network) ActivePollers(token string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.mustBot(token).pollers
}

// PeakPollers returns the highest number of concurrent Poll calls seen for token.
func (n *Network) PeakPollers(token string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.mustBot(token).peakPollers
}

// Polls returns the number of Poll calls made for token.
func (n *Network) Polls(token string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.mustBot(token).polls
}

// FailPolls makes the next len(errs) Poll calls for token return errs in order.
func (n *Network) FailPolls(token string, errs ...error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	b := n.mustBot(token)
	b.pollFaults = append(b.pollFaults, errs...)
}

// FailSends makes the next len(errs) Send calls for token return errs in order.
func (n *Network) FailSends(token string, errs ...error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	b := n.mustBot(token)
	b.sendFaults = append(b.sendFaults, errs...)
}

// FailIdentity makes Identity return err for token until cleared with nil.
func (n *Network) FailIdentity(token string, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.mustBot(token).identityErr = err
}

// Hang makes Poll for token ignore cancellation and block until release is
// closed. It simulates a transport that cannot be interrupted.
func (n *Network) Hang(token string, release <-chan struct{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.mustBot(token).hang = release
}

func (n *Network) mustBot(token string) *bot {
	b, ok := n.bots[token]
	if !ok {
		panic(fmt.Sprintf("memory: unknown bot token %q", token))
	}
	return b
}

// Transport is the api.Transport of one bot account on a Network.
type Transport struct {
	net   *Network
	token string
}

var _ api.Transport = (*Transport)(nil)

func (t *Transport) Identity(ctx context.Context) (api.BotIdentity, error) {
	t.net.mu.Lock()
	defer t.net.mu.Unlock()
	b := t.net.mustBot(t.token)
	if b.identityErr != nil {
		return api.BotIdentity{}, b.identityErr
	}
	return b.identity, nil
}

func (t *Transport) Poll(ctx context.Context) ([]api.Update, error) {
	n := t.net

	n.mu.Lock()
	b := n.mustBot(t.token)
	b.polls++
	if len(b.pollFaults) > 0 {
		err := b.pollFaults[0]
		b.pollFaults = b.pollFaults[1:]
		n.mu.Unlock()
		return nil, err
	}
	if b.pollers > 0 {
		n.mu.Unlock()
		return nil, &api.TransportConflict{Reason: "terminated by other getUpdates request"}
	}
	b.pollers++
	if b.pollers > b.peakPollers {
		b.peakPollers = b.pollers
	}
	hang := b.hang
	n.mu.Unlock()

	defer func() {
		n.mu.Lock()
		b.pollers--
		n.mu.Unlock()
	}()

	if hang != nil {
		<-hang
	}

	if batch := t.drain(); len(batch) > 0 {
		return batch, nil
	}

	timer := time.NewTimer(n.pollTimeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, nil
	case <-b.notify:
		return t.drain(), nil
	}
}

func (t *Transport) drain() []api.Update {
	t.net.mu.Lock()
	defer t.net.mu.Unlock()
	b := t.net.mustBot(t.token)
	batch := b.queue
	b.queue = nil
	return batch
}

func (t *Transport) Send(ctx context.Context, chatID int64, msg api.OutboundMessage) (api.SentMessage, error) {
	if err := ctx.Err(); err != nil {
		return api.SentMessage{}, err
	}
	n := t.net
	n.mu.Lock()
	defer n.mu.Unlock()
	b := n.mustBot(t.token)
	if len(b.sendFaults) > 0 {
		err := b.sendFaults[0]
		b.sendFaults = b.sendFaults[1:]
		return api.SentMessage{}, err
	}
	n.nextMsg++
	b.sent = append(b.sent, Message{ChatID: chatID, MessageID: n.nextMsg, OutboundMessage: msg})
	return api.SentMessage{ChatID: chatID, MessageID: n.nextMsg}, nil
}

func (t *Transport) ClearInlineKeyboard(ctx context.Context, chatID, messageID int64) error {
	t.net.mu.Lock()
	defer t.net.mu.Unlock()
	b := t.net.mustBot(t.token)
	b.cleared = append(b.cleared, messageID)
	return nil
}

func (t *Transport) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	t.net.mu.Lock()
	defer t.net.mu.Unlock()
	b := t.net.mustBot(t.token)
	b.deleted = append(b.deleted, messageID)
	return nil
}

func (t *Transport) AnswerCallback(ctx context.Context, callbackID, text string) error {
	t.net.mu.Lock()
	defer t.net.mu.Unlock()
	b := t.net.mustBot(t.token)
	b.answers = append(b.answers, CallbackAnswer{CallbackID: callbackID, Text: text})
	return nil
}

func (t *Transport) SetCommands(ctx context.Context, commands []api.BotCommand) error {
	t.net.mu.Lock()
	defer t.net.mu.Unlock()
	t.net.mustBot(t.token).commands = slices.Clone(commands)
	return nil
}
