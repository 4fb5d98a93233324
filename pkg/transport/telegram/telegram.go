// Package telegram implements api.Transport over the Telegram Bot API using
// long polling.
package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/petrijr/botflow/pkg/api"
)

// DefaultBaseURL is the public Bot API endpoint.
const DefaultBaseURL = "https://api.telegram.org"

// Config tunes the transport. Zero fields take the defaults noted.
type Config struct {
	// BaseURL defaults to DefaultBaseURL.
	BaseURL string
	// PollTimeout is the long-poll duration of getUpdates. Defaults to 25s.
	PollTimeout time.Duration
	// RequestTimeout is added to PollTimeout to form the HTTP timeout.
	// Defaults to 10s.
	RequestTimeout time.Duration
	// RateLimit caps outbound calls per second. Defaults to 25.
	RateLimit float64
	// RateBurst defaults to 5.
	RateBurst int

	Logger *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = 25 * time.Second
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 10 * time.Second
	}
	if c.RateLimit <= 0 {
		c.RateLimit = 25
	}
	if c.RateBurst <= 0 {
		c.RateBurst = 5
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

var tokenPattern = regexp.MustCompile(`^[0-9]+:[A-Za-z0-9_-]+$`)

// ErrMalformedToken is returned by ValidateToken.
var ErrMalformedToken = errors.New("telegram: malformed bot token")

// ValidateToken checks the "<digits>:<secret>" shape of a bot token without
// contacting the API.
func ValidateToken(token string) error {
	if !tokenPattern.MatchString(token) {
		return ErrMalformedToken
	}
	return nil
}

// APIError is a Bot API failure that is neither a credential problem nor a
// conflict.
type APIError struct {
	Method      string
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s: %d %s", e.Method, e.Code, e.Description)
}

// Transport talks to the Bot API for one bot token. Poll must not be called
// concurrently; the other methods are safe for concurrent use.
type Transport struct {
	client      *resty.Client
	pollTimeout time.Duration
	limiter     *rate.Limiter
	logger      *slog.Logger

	mu     sync.Mutex
	offset int64
}

var _ api.Transport = (*Transport)(nil)

// New returns a transport for token. A malformed token yields a
// *api.CredentialError.
func New(token string, cfg Config) (*Transport, error) {
	if err := ValidateToken(token); err != nil {
		return nil, &api.CredentialError{Err: err}
	}
	cfg = cfg.withDefaults()
	client := resty.New().
		SetBaseURL(cfg.BaseURL+"/bot"+token).
		SetTimeout(cfg.PollTimeout+cfg.RequestTimeout).
		SetHeader("Accept", "application/json")
	return &Transport{
		client:      client,
		pollTimeout: cfg.PollTimeout,
		limiter:     rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		logger:      cfg.Logger,
	}, nil
}

// Factory returns an api.TransportFactory building transports with cfg.
func Factory(cfg Config) api.TransportFactory {
	return func(token string) (api.Transport, error) {
		return New(token, cfg)
	}
}

type envelope struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

func (t *Transport) call(ctx context.Context, method string, req *resty.Request, out any) error {
	var env envelope
	resp, err := req.SetContext(ctx).SetResult(&env).SetError(&env).Post("/" + method)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	if !env.OK {
		return classify(method, resp.StatusCode(), env)
	}
	if out == nil || len(env.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("telegram %s: decode result: %w", method, err)
	}
	return nil
}

func classify(method string, status int, env envelope) error {
	code := env.ErrorCode
	if code == 0 {
		code = status
	}
	switch code {
	case http.StatusUnauthorized, http.StatusNotFound:
		return &api.CredentialError{Err: &APIError{Method: method, Code: code, Description: env.Description}}
	case http.StatusConflict:
		return &api.TransportConflict{Reason: env.Description}
	case http.StatusTooManyRequests:
		c := &api.TransportConflict{Reason: env.Description}
		if env.Parameters != nil {
			c.RetryAfter = time.Duration(env.Parameters.RetryAfter) * time.Second
		}
		return c
	default:
		return &APIError{Method: method, Code: code, Description: env.Description}
	}
}

// send rate-limits and issues a JSON call.
func (t *Transport) send(ctx context.Context, method string, body any, out any) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	return t.call(ctx, method, t.client.R().SetBody(body), out)
}

type user struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	Username  string `json:"username"`
}

type chat struct {
	ID int64 `json:"id"`
}

type message struct {
	MessageID int64  `json:"message_id"`
	Chat      chat   `json:"chat"`
	From      *user  `json:"from"`
	Text      string `json:"text"`
	Caption   string `json:"caption"`
}

type callbackQuery struct {
	ID      string   `json:"id"`
	From    user     `json:"from"`
	Message *message `json:"message"`
	Data    string   `json:"data"`
}

type update struct {
	UpdateID      int64          `json:"update_id"`
	Message       *message       `json:"message"`
	CallbackQuery *callbackQuery `json:"callback_query"`
}

func (t *Transport) Identity(ctx context.Context) (api.BotIdentity, error) {
	var me user
	if err := t.call(ctx, "getMe", t.client.R(), &me); err != nil {
		return api.BotIdentity{}, err
	}
	return api.BotIdentity{ID: me.ID, Username: me.Username, Name: me.FirstName}, nil
}

// Poll long-polls getUpdates and acknowledges everything it returns, so each
// update is delivered once.
func (t *Transport) Poll(ctx context.Context) ([]api.Update, error) {
	t.mu.Lock()
	offset := t.offset
	t.mu.Unlock()

	body := map[string]any{
		"offset":          offset,
		"timeout":         int(t.pollTimeout / time.Second),
		"allowed_updates": []string{"message", "callback_query"},
	}
	var raw []update
	if err := t.call(ctx, "getUpdates", t.client.R().SetBody(body), &raw); err != nil {
		return nil, err
	}

	out := make([]api.Update, 0, len(raw))
	for _, r := range raw {
		if r.UpdateID >= offset {
			offset = r.UpdateID + 1
		}
		u, ok := convert(r)
		if !ok {
			t.logger.DebugContext(ctx, "update_skipped", slog.Int64("update_id", r.UpdateID))
			continue
		}
		out = append(out, u)
	}
	t.mu.Lock()
	t.offset = offset
	t.mu.Unlock()
	return out, nil
}

func convert(r update) (api.Update, bool) {
	switch {
	case r.Message != nil:
		m := r.Message
		u := api.Update{
			ID:        r.UpdateID,
			Kind:      api.UpdateMessage,
			ChatID:    m.Chat.ID,
			MessageID: m.MessageID,
			Text:      m.Text,
		}
		if u.Text == "" {
			u.Text = m.Caption
		}
		if m.From != nil {
			u.UserID = m.From.ID
			u.Username = m.From.Username
		}
		return u, true
	case r.CallbackQuery != nil:
		q := r.CallbackQuery
		u := api.Update{
			ID:           r.UpdateID,
			Kind:         api.UpdateCallback,
			ChatID:       q.From.ID,
			UserID:       q.From.ID,
			Username:     q.From.Username,
			CallbackID:   q.ID,
			CallbackData: q.Data,
		}
		if q.Message != nil {
			u.ChatID = q.Message.Chat.ID
			u.MessageID = q.Message.MessageID
		}
		return u, true
	default:
		return api.Update{}, false
	}
}

type inlineButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
}

type keyboardButton struct {
	Text string `json:"text"`
}

type replyMarkup struct {
	InlineKeyboard  [][]inlineButton   `json:"inline_keyboard,omitempty"`
	Keyboard        [][]keyboardButton `json:"keyboard,omitempty"`
	ResizeKeyboard  bool               `json:"resize_keyboard,omitempty"`
	OneTimeKeyboard bool               `json:"one_time_keyboard,omitempty"`
	RemoveKeyboard  bool               `json:"remove_keyboard,omitempty"`
}

func markup(msg api.OutboundMessage) *replyMarkup {
	switch {
	case len(msg.Inline) > 0:
		m := &replyMarkup{}
		for _, row := range msg.Inline {
			var r []inlineButton
			for _, b := range row {
				r = append(r, inlineButton{Text: b.Text, CallbackData: b.Data})
			}
			m.InlineKeyboard = append(m.InlineKeyboard, r)
		}
		return m
	case len(msg.Keyboard) > 0:
		m := &replyMarkup{ResizeKeyboard: true, OneTimeKeyboard: msg.OneTime}
		for _, row := range msg.Keyboard {
			var r []keyboardButton
			for _, label := range row {
				r = append(r, keyboardButton{Text: label})
			}
			m.Keyboard = append(m.Keyboard, r)
		}
		return m
	case msg.RemoveKeyboard:
		return &replyMarkup{RemoveKeyboard: true}
	default:
		return nil
	}
}

var uploadMethods = map[api.MediaKind][2]string{
	api.MediaDocument: {"sendDocument", "document"},
	api.MediaPhoto:    {"sendPhoto", "photo"},
	api.MediaVideo:    {"sendVideo", "video"},
	api.MediaAudio:    {"sendAudio", "audio"},
}

func (t *Transport) Send(ctx context.Context, chatID int64, msg api.OutboundMessage) (api.SentMessage, error) {
	var sent message
	var err error
	switch {
	case msg.DocumentPath != "":
		err = t.upload(ctx, chatID, msg, &sent)
	case msg.PhotoURL != "":
		body := map[string]any{"chat_id": chatID, "photo": msg.PhotoURL}
		addCommon(body, msg, msg.Caption)
		err = t.send(ctx, "sendPhoto", body, &sent)
	default:
		body := map[string]any{"chat_id": chatID, "text": msg.Text}
		addCommon(body, msg, "")
		err = t.send(ctx, "sendMessage", body, &sent)
	}
	if err != nil {
		return api.SentMessage{}, err
	}
	return api.SentMessage{ChatID: chatID, MessageID: sent.MessageID}, nil
}

func addCommon(body map[string]any, msg api.OutboundMessage, caption string) {
	if caption != "" {
		body["caption"] = caption
	}
	if msg.ParseMode != "" {
		body["parse_mode"] = msg.ParseMode
	}
	if m := markup(msg); m != nil {
		body["reply_markup"] = m
	}
}

func (t *Transport) upload(ctx context.Context, chatID int64, msg api.OutboundMessage, out *message) error {
	kind := msg.MediaKind
	if kind == "" {
		kind = api.MediaDocument
	}
	m, ok := uploadMethods[kind]
	if !ok {
		return fmt.Errorf("telegram: unsupported media kind %q", kind)
	}
	form := map[string]string{"chat_id": strconv.FormatInt(chatID, 10)}
	if msg.Caption != "" {
		form["caption"] = msg.Caption
	}
	if msg.ParseMode != "" {
		form["parse_mode"] = msg.ParseMode
	}
	if rm := markup(msg); rm != nil {
		b, err := json.Marshal(rm)
		if err != nil {
			return err
		}
		form["reply_markup"] = string(b)
	}
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	req := t.client.R().SetFormData(form).SetFile(m[1], msg.DocumentPath)
	return t.call(ctx, m[0], req, out)
}

func (t *Transport) ClearInlineKeyboard(ctx context.Context, chatID, messageID int64) error {
	body := map[string]any{
		"chat_id":      chatID,
		"message_id":   messageID,
		"reply_markup": map[string]any{"inline_keyboard": [][]inlineButton{}},
	}
	return t.send(ctx, "editMessageReplyMarkup", body, nil)
}

func (t *Transport) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	return t.send(ctx, "deleteMessage", map[string]any{"chat_id": chatID, "message_id": messageID}, nil)
}

func (t *Transport) AnswerCallback(ctx context.Context, callbackID, text string) error {
	body := map[string]any{"callback_query_id": callbackID}
	if text != "" {
		body["text"] = text
	}
	return t.send(ctx, "answerCallbackQuery", body, nil)
}

func (t *Transport) SetCommands(ctx context.Context, commands []api.BotCommand) error {
	type botCommand struct {
		Command     string `json:"command"`
		Description string `json:"description"`
	}
	list := make([]botCommand, len(commands))
	for i, c := range commands {
		list[i] = botCommand{Command: c.Command, Description: c.Description}
	}
	return t.send(ctx, "setMyCommands", map[string]any{"commands": list}, nil)
}
