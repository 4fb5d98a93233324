package api

import "context"

// UpdateKind distinguishes inbound events.
type UpdateKind string

const (
	UpdateMessage  UpdateKind = "message"
	UpdateCallback UpdateKind = "callback"
)

// Update is one inbound event delivered by a Transport.
type Update struct {
	ID        int64
	Kind      UpdateKind
	ChatID    int64
	MessageID int64
	UserID    int64
	Username  string

	// Text is set for messages.
	Text string

	// CallbackID and CallbackData are set for callback queries. MessageID then
	// refers to the message that carried the inline keyboard.
	CallbackID   string
	CallbackData string
}

// BotIdentity describes the bot account behind a token.
type BotIdentity struct {
	ID       int64
	Username string
	Name     string
}

// InlineButton is one button of an inline keyboard.
type InlineButton struct {
	Text string
	Data string
}

// OutboundMessage is the uniform outbound content shape. Exactly one of Text,
// PhotoURL/PhotoPath or DocumentPath is the primary payload; Caption applies to
// media.
type OutboundMessage struct {
	Text      string
	ParseMode string

	PhotoURL     string
	PhotoPath    string
	DocumentPath string
	MediaKind    MediaKind
	Caption      string

	// Keyboard is a reply keyboard, one slice per row.
	Keyboard [][]string
	OneTime  bool
	// Inline is an inline keyboard, one slice per row.
	Inline [][]InlineButton
	// RemoveKeyboard hides a previously shown reply keyboard.
	RemoveKeyboard bool
}

// MediaKind selects how DocumentPath is uploaded.
type MediaKind string

const (
	MediaDocument MediaKind = "document"
	MediaPhoto    MediaKind = "photo"
	MediaVideo    MediaKind = "video"
	MediaAudio    MediaKind = "audio"
)

// SentMessage identifies a message accepted by the platform.
type SentMessage struct {
	ChatID    int64
	MessageID int64
}

// BotCommand is one entry of the bot's command menu.
type BotCommand struct {
	Command     string
	Description string
}

// Transport abstracts the external messaging platform for one bot token.
//
// Poll performs one long-poll cycle and returns the updates received, if any.
// It must return promptly once ctx is cancelled; that is how a Supervisor
// interrupts a running subscription.
type Transport interface {
	Identity(ctx context.Context) (BotIdentity, error)
	Poll(ctx context.Context) ([]Update, error)
	Send(ctx context.Context, chatID int64, msg OutboundMessage) (SentMessage, error)
	// ClearInlineKeyboard removes the inline keyboard from a sent message.
	ClearInlineKeyboard(ctx context.Context, chatID, messageID int64) error
	DeleteMessage(ctx context.Context, chatID, messageID int64) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
	SetCommands(ctx context.Context, commands []BotCommand) error
}

// TransportFactory builds a Transport for a resolved token.
type TransportFactory func(token string) (Transport, error)

// TokenResolver resolves the credential of a bot. It returns
// ErrTokenNotFound when none is known.
type TokenResolver interface {
	ResolveToken(ctx context.Context, botID string) (string, error)
}

// FlowLoader loads the flow graph of a bot. It returns ErrFlowNotFound when
// none is stored.
type FlowLoader interface {
	LoadFlow(ctx context.Context, botID string) (FlowGraph, error)
}
