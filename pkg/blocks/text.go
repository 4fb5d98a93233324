package blocks

import (
	"context"
	"slices"
	"strings"
	"unicode"

	"github.com/petrijr/botflow/pkg/api"
)

// Match modes of a keyword processor.
const (
	MatchExact   = "exact"
	MatchPartial = "partial"
)

// keywordBlock claims free text containing one of its keywords. It sends
// nothing itself; the worker continues from its default successor.
type keywordBlock struct {
	keywords      []string
	caseSensitive bool
	partial       bool
}

func newKeywordBlock(n api.Node) (api.Block, error) {
	mode := n.Data.MatchMode
	if mode == "" {
		mode = MatchExact
	}
	if mode != MatchExact && mode != MatchPartial {
		return nil, &api.ConfigurationError{NodeID: n.ID, Reason: "unknown match mode " + mode}
	}
	b := &keywordBlock{caseSensitive: n.Data.CaseSensitive, partial: mode == MatchPartial}
	for _, k := range n.Data.Keywords {
		if k = strings.TrimSpace(k); k != "" {
			b.keywords = append(b.keywords, k)
		}
	}
	return b, nil
}

func (b *keywordBlock) Execute(context.Context, *api.Exec) (api.Directive, error) {
	return api.FollowEdge(), nil
}

// Match reports whether text contains a keyword. In exact mode a keyword must
// appear as whole words; in partial mode any substring counts.
func (b *keywordBlock) Match(text string) bool {
	if text == "" {
		return false
	}
	msg := text
	if !b.caseSensitive {
		msg = strings.ToLower(msg)
	}
	var words []string
	if !b.partial {
		words = splitWords(msg)
	}
	for _, k := range b.keywords {
		if !b.caseSensitive {
			k = strings.ToLower(k)
		}
		if b.partial {
			if strings.Contains(msg, k) {
				return true
			}
			continue
		}
		if containsRun(words, splitWords(k)) {
			return true
		}
	}
	return false
}

func splitWords(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
}

// containsRun reports whether needle occurs as a contiguous run in words.
func containsRun(words, needle []string) bool {
	if len(needle) == 0 || len(needle) > len(words) {
		return false
	}
	for i := 0; i+len(needle) <= len(words); i++ {
		if slices.Equal(words[i:i+len(needle)], needle) {
			return true
		}
	}
	return false
}

// nlpBlock answers free text from a small built-in knowledge base.
type nlpBlock struct{}

type topic struct {
	triggers []string
	reply    string
}

var knowledgeBase = []topic{
	{[]string{"привет", "здравствуй", "hi", "hello"}, "Hello! Glad to see you. How can I help?"},
	{[]string{"пока", "до свидания", "goodbye", "bye"}, "Goodbye! Happy to help again any time."},
	{[]string{"помоги", "помощь", "help", "support"}, "I can answer questions and help you find information. Just ask!"},
	{[]string{"который час", "time"}, "Sorry, I have no access to the current time, but I can help with other questions."},
	{[]string{"как тебя зовут", "what is your name", "your name"}, "I am your virtual assistant."},
	{[]string{"сколько тебе лет", "how old are you"}, "I am a virtual assistant, so I have no age in the usual sense."},
	{[]string{"что ты умеешь", "what can you do"}, "I can answer questions, share information and help with various tasks."},
}

const (
	nlpDefault   = "Thanks for your message! Could you tell me a bit more about what you need?"
	nlpEmptyText = "Please send a text message."
)

// Reply picks the answer for text.
func (nlpBlock) Reply(text string) string {
	msg := strings.ToLower(text)
	for _, t := range knowledgeBase {
		for _, trig := range t.triggers {
			if strings.Contains(msg, trig) {
				return t.reply
			}
		}
	}
	return nlpDefault
}

func (b nlpBlock) Execute(ctx context.Context, x *api.Exec) (api.Directive, error) {
	text := strings.TrimSpace(x.Text())
	if text == "" {
		return api.FollowEdge(), x.SendText(ctx, nlpEmptyText)
	}
	return api.FollowEdge(), x.SendText(ctx, b.Reply(text))
}
