package blocks

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/petrijr/botflow/pkg/api"
)

// buttonBlock shows a reply keyboard and waits. The chosen button's 0-based
// index is the handle of the edge that is followed.
type buttonBlock struct {
	prompt  string
	labels  []string
	perRow  int
	numbers bool
}

func newButtonBlock(n api.Node) (api.Block, error) {
	labels := make([]string, len(n.Data.Buttons))
	for i, b := range n.Data.Buttons {
		labels[i] = b.Label
	}
	prompt := n.Data.Label
	if prompt == "" {
		prompt = DefaultChoosePrompt
	}
	return &buttonBlock{
		prompt:  prompt,
		labels:  labels,
		perRow:  max(n.Data.ButtonsPerRow, 1),
		numbers: n.Data.HideKeyboard,
	}, nil
}

func (b *buttonBlock) Interactive() bool { return len(b.labels) > 0 }

func (b *buttonBlock) Execute(ctx context.Context, x *api.Exec) (api.Directive, error) {
	if len(b.labels) == 0 {
		return api.FollowEdge(), nil
	}
	if b.numbers {
		_, err := x.Send(ctx, api.OutboundMessage{Text: numbered(b.prompt, b.labels), RemoveKeyboard: true})
		return api.Wait(), err
	}
	_, err := x.Send(ctx, api.OutboundMessage{
		Text:     b.prompt,
		Keyboard: rows(b.labels, b.perRow),
		OneTime:  true,
	})
	return api.Wait(), err
}

// Choose accepts a button label, or its 1-based number when the keyboard is
// hidden.
func (b *buttonBlock) Choose(text string) (string, bool) {
	if b.numbers {
		if i, ok := choiceNumber(text, len(b.labels)); ok {
			return strconv.Itoa(i), true
		}
	}
	for i, l := range b.labels {
		if l == text {
			return strconv.Itoa(i), true
		}
	}
	return "", false
}

// inlineButtonBlock shows an inline keyboard and waits for a callback.
type inlineButtonBlock struct {
	prompt  string
	labels  []string
	data    []string
	perRow  int
	numbers bool
}

func newInlineButtonBlock(n api.Node) (api.Block, error) {
	b := &inlineButtonBlock{
		prompt:  n.Data.Label,
		perRow:  max(n.Data.ButtonsPerRow, 1),
		numbers: n.Data.HideKeyboard,
	}
	if b.prompt == "" {
		b.prompt = DefaultChoosePrompt
	}
	seen := make(map[string]bool, len(n.Data.Buttons))
	for i, btn := range n.Data.Buttons {
		label := btn.Label
		if label == "" {
			label = "Button"
		}
		data := CallbackData(btn, i)
		if seen[data] {
			return nil, &api.ConfigurationError{NodeID: n.ID, Reason: fmt.Sprintf("duplicate callback data %q", data)}
		}
		seen[data] = true
		b.labels = append(b.labels, label)
		b.data = append(b.data, data)
	}
	return b, nil
}

// CallbackData returns the callback payload of the i-th inline button.
func CallbackData(b api.Button, i int) string {
	if b.CallbackData != "" {
		return b.CallbackData
	}
	return "btn_" + strconv.Itoa(i)
}

func (b *inlineButtonBlock) Interactive() bool { return len(b.labels) > 0 }

func (b *inlineButtonBlock) Execute(ctx context.Context, x *api.Exec) (api.Directive, error) {
	if len(b.labels) == 0 {
		return api.FollowEdge(), x.SendText(ctx, b.prompt)
	}
	if b.numbers {
		_, err := x.Send(ctx, api.OutboundMessage{Text: numbered(b.prompt, b.labels), RemoveKeyboard: true})
		return api.Wait(), err
	}

	var keyboard [][]api.InlineButton
	var row []api.InlineButton
	for i := range b.labels {
		row = append(row, api.InlineButton{Text: b.labels[i], Data: b.data[i]})
		if len(row) == b.perRow {
			keyboard = append(keyboard, row)
			row = nil
		}
	}
	if len(row) > 0 {
		keyboard = append(keyboard, row)
	}
	_, err := x.Send(ctx, api.OutboundMessage{Text: b.prompt, Inline: keyboard})
	return api.Wait(), err
}

func (b *inlineButtonBlock) ResolveCallback(data string) (string, bool) {
	for i, d := range b.data {
		if d == data {
			return strconv.Itoa(i), true
		}
	}
	return "", false
}

// Choose accepts a 1-based number when the keyboard is hidden.
func (b *inlineButtonBlock) Choose(text string) (string, bool) {
	if !b.numbers {
		return "", false
	}
	if i, ok := choiceNumber(text, len(b.labels)); ok {
		return strconv.Itoa(i), true
	}
	return "", false
}

// menuBlock publishes the bot's command menu and waits.
type menuBlock struct {
	title    string
	commands []api.BotCommand
}

func newMenuBlock(n api.Node) (api.Block, error) {
	b := &menuBlock{title: n.Data.Label}
	hasBack := false
	for _, item := range n.Data.MenuItems {
		cmd := NormalizeCommand(item.Command)
		if cmd == "" {
			continue
		}
		if cmd == BackCommand {
			hasBack = true
		}
		desc := item.Description
		if desc == "" {
			desc = cmd
		}
		b.commands = append(b.commands, api.BotCommand{Command: cmd, Description: desc})
	}
	if !hasBack {
		b.commands = append(b.commands, api.BotCommand{Command: BackCommand, Description: BackDescription})
	}
	return b, nil
}

// NormalizeCommand strips the leading slash and surrounding space of a menu
// command.
func NormalizeCommand(cmd string) string {
	return strings.TrimPrefix(strings.TrimSpace(cmd), "/")
}

func (b *menuBlock) Interactive() bool { return true }

func (b *menuBlock) Execute(ctx context.Context, x *api.Exec) (api.Directive, error) {
	if err := x.Transport.SetCommands(ctx, b.commands); err != nil {
		return api.Wait(), fmt.Errorf("set commands: %w", err)
	}
	if b.title != "" {
		if err := x.SendText(ctx, b.title); err != nil {
			return api.Wait(), err
		}
	}
	return api.Wait(), nil
}

func numbered(prompt string, labels []string) string {
	var sb strings.Builder
	sb.WriteString(prompt)
	for i, l := range labels {
		fmt.Fprintf(&sb, "\n%d. %s", i+1, l)
	}
	return sb.String()
}

func rows(labels []string, perRow int) [][]string {
	var out [][]string
	for i := 0; i < len(labels); i += perRow {
		out = append(out, labels[i:min(i+perRow, len(labels))])
	}
	return out
}

func choiceNumber(text string, n int) (int, bool) {
	v, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil || v < 1 || v > n {
		return 0, false
	}
	return v - 1, true
}
