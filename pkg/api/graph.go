package api

import "fmt"

// KindStart is the node kind that begins a conversation on /start.
const KindStart = "start"

// FlowGraph is the stored flowchart for one bot: nodes plus directed edges.
//
// A FlowGraph is loaded once when a Worker starts and is treated as read-only
// for the lifetime of that Worker.
//
// Stored graphs do not distinguish nil from empty slices: Nodes and Edges
// always decode as non-nil, optional node data lists decode as nil when empty.
type FlowGraph struct {
	Nodes       []Node `json:"nodes" yaml:"nodes"`
	Edges       []Edge `json:"edges" yaml:"edges"`
	AdminChatID string `json:"adminChatId,omitempty" yaml:"adminChatId,omitempty"`
}

// Node is one step of the flowchart.
type Node struct {
	ID       string    `json:"id" yaml:"id"`
	Kind     string    `json:"type" yaml:"type"`
	Data     NodeData  `json:"data" yaml:"data"`
	Position *Position `json:"position,omitempty" yaml:"position,omitempty"`
}

// Position is editor layout data. It has no effect on execution.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Edge is a directed transition. Handle discriminates branches out of the
// same source ("yes"/"no", a button index). An empty Handle is the default path.
type Edge struct {
	ID     string `json:"id,omitempty" yaml:"id,omitempty"`
	Source string `json:"source" yaml:"source"`
	Target string `json:"target" yaml:"target"`
	Handle string `json:"sourceHandle,omitempty" yaml:"sourceHandle,omitempty"`
}

// NodeData is the kind-specific configuration of a node. Each block kind reads
// the fields it understands and ignores the rest.
type NodeData struct {
	Label         string     `json:"label,omitempty" yaml:"label,omitempty"`
	URL           string     `json:"url,omitempty" yaml:"url,omitempty"`
	Images        []string   `json:"images,omitempty" yaml:"images,omitempty"`
	Buttons       []Button   `json:"buttons,omitempty" yaml:"buttons,omitempty"`
	ButtonsPerRow int        `json:"buttonsPerRow,omitempty" yaml:"buttonsPerRow,omitempty"`
	HideKeyboard  bool       `json:"hideKeyboard,omitempty" yaml:"hideKeyboard,omitempty"`
	Condition     string     `json:"condition,omitempty" yaml:"condition,omitempty"`
	Keywords      []string   `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	CaseSensitive bool       `json:"caseSensitive,omitempty" yaml:"caseSensitive,omitempty"`
	MatchMode     string     `json:"matchMode,omitempty" yaml:"matchMode,omitempty"`
	MenuItems     []MenuItem `json:"menuItems,omitempty" yaml:"menuItems,omitempty"`

	Hours   int `json:"hours,omitempty" yaml:"hours,omitempty"`
	Minutes int `json:"minutes,omitempty" yaml:"minutes,omitempty"`
	Seconds int `json:"seconds,omitempty" yaml:"seconds,omitempty"`

	Files   []FileRef `json:"files,omitempty" yaml:"files,omitempty"`
	Caption string    `json:"caption,omitempty" yaml:"caption,omitempty"`

	Title       string    `json:"title,omitempty" yaml:"title,omitempty"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Price       string    `json:"price,omitempty" yaml:"price,omitempty"`
	PhotoURL    string    `json:"photo_url,omitempty" yaml:"photo_url,omitempty"`
	Features    []Feature `json:"features,omitempty" yaml:"features,omitempty"`

	DateQuestion       string `json:"dateQuestion,omitempty" yaml:"dateQuestion,omitempty"`
	TimeQuestion       string `json:"timeQuestion,omitempty" yaml:"timeQuestion,omitempty"`
	MinDate            string `json:"minDate,omitempty" yaml:"minDate,omitempty"`
	MaxDate            string `json:"maxDate,omitempty" yaml:"maxDate,omitempty"`
	TimeInterval       int    `json:"timeInterval,omitempty" yaml:"timeInterval,omitempty"`
	WorkStartTime      string `json:"workStartTime,omitempty" yaml:"workStartTime,omitempty"`
	WorkEndTime        string `json:"workEndTime,omitempty" yaml:"workEndTime,omitempty"`
	CRMIntegration     bool   `json:"crmIntegration,omitempty" yaml:"crmIntegration,omitempty"`
	CRMEndpoint        string `json:"crmEndpoint,omitempty" yaml:"crmEndpoint,omitempty"`
	UnavailableMessage string `json:"unavailableMessage,omitempty" yaml:"unavailableMessage,omitempty"`
	AdminChatID        string `json:"adminChatId,omitempty" yaml:"adminChatId,omitempty"`
}

// Button is one entry of a reply or inline keyboard.
type Button struct {
	Label        string `json:"label" yaml:"label"`
	CallbackData string `json:"callbackData,omitempty" yaml:"callbackData,omitempty"`
}

// MenuItem is one bot command exposed by a menu node.
type MenuItem struct {
	Command     string `json:"command" yaml:"command"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// FileRef points at a local file sent by a file node.
type FileRef struct {
	Path string `json:"path" yaml:"path"`
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
}

// Feature is one key/value line of a product card.
type Feature struct {
	Key   string `json:"key" yaml:"key"`
	Value string `json:"value" yaml:"value"`
}

// Node returns the node with the given id.
func (g *FlowGraph) Node(id string) (Node, bool) {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// StartNode returns the id of the first node of kind "start", if any.
func (g *FlowGraph) StartNode() (string, bool) {
	for _, n := range g.Nodes {
		if n.Kind == KindStart {
			return n.ID, true
		}
	}
	return "", false
}

// NodesOfKind returns the nodes of the given kind in declaration order.
func (g *FlowGraph) NodesOfKind(kind string) []Node {
	var out []Node
	for _, n := range g.Nodes {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

// Next resolves the successor of source by scanning edges in declaration order.
//
// With a non-empty handle, the first edge from source carrying that handle
// wins. With an empty handle, the first unlabeled edge from source wins, and
// if every edge from source is labeled the first of them is used. The second
// result is false when no edge matches; callers treat that as the end of the
// chain.
func (g *FlowGraph) Next(source, handle string) (string, bool) {
	if handle != "" {
		for _, e := range g.Edges {
			if e.Source == source && e.Handle == handle {
				return e.Target, true
			}
		}
		return "", false
	}

	first := -1
	for i, e := range g.Edges {
		if e.Source != source {
			continue
		}
		if e.Handle == "" {
			return e.Target, true
		}
		if first < 0 {
			first = i
		}
	}
	if first >= 0 {
		return g.Edges[first].Target, true
	}
	return "", false
}

// Validate checks the structural invariants of the graph: node ids are
// non-empty and unique, every node has a kind, at most one start node exists,
// and every edge names a source and a target.
//
// Edges pointing at missing nodes are tolerated here; the interpreter treats
// them as terminal.
func (g *FlowGraph) Validate() error {
	seen := make(map[string]struct{}, len(g.Nodes))
	starts := 0
	for i, n := range g.Nodes {
		if n.ID == "" {
			return &ConfigurationError{Reason: fmt.Sprintf("node at index %d has an empty id", i)}
		}
		if _, dup := seen[n.ID]; dup {
			return &ConfigurationError{NodeID: n.ID, Reason: "duplicate node id"}
		}
		seen[n.ID] = struct{}{}
		if n.Kind == "" {
			return &ConfigurationError{NodeID: n.ID, Reason: "node has no type"}
		}
		if n.Kind == KindStart {
			starts++
		}
	}
	if starts > 1 {
		return &ConfigurationError{Reason: fmt.Sprintf("graph has %d start nodes, at most one is allowed", starts)}
	}
	for i, e := range g.Edges {
		if e.Source == "" || e.Target == "" {
			return &ConfigurationError{Reason: fmt.Sprintf("edge at index %d is missing source or target", i)}
		}
	}
	return nil
}

// Clone returns a deep copy of the graph so callers can hand out snapshots
// without sharing slices.
func (g FlowGraph) Clone() FlowGraph {
	out := FlowGraph{AdminChatID: g.AdminChatID}
	if g.Nodes != nil {
		out.Nodes = make([]Node, len(g.Nodes))
		for i, n := range g.Nodes {
			out.Nodes[i] = n.clone()
		}
	}
	if g.Edges != nil {
		out.Edges = append([]Edge(nil), g.Edges...)
	}
	return out
}

func (n Node) clone() Node {
	c := n
	if n.Position != nil {
		p := *n.Position
		c.Position = &p
	}
	d := &c.Data
	d.Images = cloneSlice(n.Data.Images)
	d.Buttons = cloneSlice(n.Data.Buttons)
	d.Keywords = cloneSlice(n.Data.Keywords)
	d.MenuItems = cloneSlice(n.Data.MenuItems)
	d.Files = cloneSlice(n.Data.Files)
	d.Features = cloneSlice(n.Data.Features)
	return c
}

func cloneSlice[T any](s []T) []T {
	if s == nil {
		return nil
	}
	return append([]T(nil), s...)
}
