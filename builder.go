package botflow

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/petrijr/botflow/pkg/api"
	"github.com/petrijr/botflow/pkg/blocks"
)

// FlowBuilder provides a fluent API for defining flow graphs in code:
//
//	g := botflow.NewFlow().
//	    Start("start").
//	    Message("hello", "Welcome!").
//	    Buttons("menu", "What next?", "Prices", "Contacts").
//	    Message("prices", "Tea is 5€").
//	    Message("contacts", "Call us").
//	    Chain("start", "hello", "menu").
//	    Choice("menu", 0, "prices").
//	    Choice("menu", 1, "contacts").
//	    MustBuild()
//
// Node helpers panic on an empty id, like a programming error. Structural
// problems (duplicate ids, several start nodes) are reported by Build.
type FlowBuilder struct {
	g api.FlowGraph
}

// NewFlow creates an empty builder.
func NewFlow() *FlowBuilder {
	return &FlowBuilder{}
}

// Node appends a node of any kind, including custom registered ones.
func (b *FlowBuilder) Node(id, kind string, data api.NodeData) *FlowBuilder {
	if id == "" {
		panic("botflow: node id must not be empty")
	}
	if kind == "" {
		panic(fmt.Sprintf("botflow: node %q has no kind", id))
	}
	b.g.Nodes = append(b.g.Nodes, api.Node{ID: id, Kind: kind, Data: data})
	return b
}

// AdminChat sets the chat that receives booking notifications.
func (b *FlowBuilder) AdminChat(chatID string) *FlowBuilder {
	b.g.AdminChatID = chatID
	return b
}

func (b *FlowBuilder) Start(id string) *FlowBuilder {
	return b.Node(id, blocks.KindStart, api.NodeData{})
}

func (b *FlowBuilder) Message(id, text string) *FlowBuilder {
	return b.Node(id, blocks.KindMessage, api.NodeData{Label: text})
}

func (b *FlowBuilder) Image(id, url, caption string) *FlowBuilder {
	return b.Node(id, blocks.KindImage, api.NodeData{URL: url, Caption: caption})
}

// Buttons adds a reply keyboard node. Choice i leaves through handle "i".
func (b *FlowBuilder) Buttons(id, prompt string, labels ...string) *FlowBuilder {
	return b.Node(id, blocks.KindButton, api.NodeData{Label: prompt, Buttons: buttons(labels)})
}

// InlineButtons adds an inline keyboard node with default callback data.
func (b *FlowBuilder) InlineButtons(id, prompt string, labels ...string) *FlowBuilder {
	return b.Node(id, blocks.KindInlineButton, api.NodeData{Label: prompt, Buttons: buttons(labels)})
}

// Condition adds an expression node with "yes" and "no" handles.
func (b *FlowBuilder) Condition(id, expr string) *FlowBuilder {
	return b.Node(id, blocks.KindCondition, api.NodeData{Condition: expr})
}

// Keywords adds a keyword processor that matches whole words.
func (b *FlowBuilder) Keywords(id string, words ...string) *FlowBuilder {
	return b.Node(id, blocks.KindKeywordProcessor, api.NodeData{Keywords: words})
}

// Menu adds a command menu node. Follow a command with Command.
func (b *FlowBuilder) Menu(id, title string, items ...api.MenuItem) *FlowBuilder {
	return b.Node(id, blocks.KindMenu, api.NodeData{Label: title, MenuItems: items})
}

func (b *FlowBuilder) Delay(id string, d time.Duration) *FlowBuilder {
	d = d.Round(time.Second)
	return b.Node(id, blocks.KindDelay, api.NodeData{
		Hours:   int(d / time.Hour),
		Minutes: int(d % time.Hour / time.Minute),
		Seconds: int(d % time.Minute / time.Second),
	})
}

func (b *FlowBuilder) End(id, farewell string) *FlowBuilder {
	return b.Node(id, blocks.KindEnd, api.NodeData{Label: farewell})
}

// Link adds an unlabelled edge.
func (b *FlowBuilder) Link(source, target string) *FlowBuilder {
	return b.LinkHandle(source, "", target)
}

// LinkHandle adds an edge leaving source through handle.
func (b *FlowBuilder) LinkHandle(source, handle, target string) *FlowBuilder {
	b.g.Edges = append(b.g.Edges, api.Edge{
		ID:     fmt.Sprintf("e%d", len(b.g.Edges)+1),
		Source: source,
		Target: target,
		Handle: handle,
	})
	return b
}

// Chain links each node to the next with unlabelled edges.
func (b *FlowBuilder) Chain(ids ...string) *FlowBuilder {
	for i := 1; i < len(ids); i++ {
		b.Link(ids[i-1], ids[i])
	}
	return b
}

// Choice links button index i of a keyboard node to target.
func (b *FlowBuilder) Choice(source string, i int, target string) *FlowBuilder {
	return b.LinkHandle(source, strconv.Itoa(i), target)
}

// Command links a menu command to target.
func (b *FlowBuilder) Command(menu, command, target string) *FlowBuilder {
	return b.LinkHandle(menu, strings.ToLower(blocks.NormalizeCommand(command)), target)
}

// Build validates and returns a copy of the graph.
func (b *FlowBuilder) Build() (api.FlowGraph, error) {
	if err := b.g.Validate(); err != nil {
		return api.FlowGraph{}, err
	}
	return b.g.Clone(), nil
}

// MustBuild is like Build but panics on error.
func (b *FlowBuilder) MustBuild() api.FlowGraph {
	g, err := b.Build()
	if err != nil {
		panic(err)
	}
	return g
}

func buttons(labels []string) []api.Button {
	out := make([]api.Button, len(labels))
	for i, l := range labels {
		out[i] = api.Button{Label: l}
	}
	return out
}
