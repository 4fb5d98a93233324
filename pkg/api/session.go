package api

import "maps"

// DefaultHistoryDepth bounds the navigation history of a Session.
const DefaultHistoryDepth = 10

// Pending marks a multi-step interaction in progress. It belongs to the block
// of NodeID; only that block reads or writes Tag and Data.
type Pending struct {
	NodeID string
	Tag    string
	Data   map[string]string
}

// Session is the runtime state of one (bot, chat) pair. It is owned by a
// single worker and is not safe for concurrent use.
type Session struct {
	BotID  string
	ChatID int64

	// Vars holds values collected by blocks during the conversation.
	Vars map[string]string

	depth   int
	history []string
	pending *Pending
}

// NewSession creates an empty session. A depth below 1 selects
// DefaultHistoryDepth.
func NewSession(botID string, chatID int64, depth int) *Session {
	if depth < 1 {
		depth = DefaultHistoryDepth
	}
	return &Session{
		BotID:  botID,
		ChatID: chatID,
		Vars:   make(map[string]string),
		depth:  depth,
	}
}

// Depth returns the history bound.
func (s *Session) Depth() int { return s.depth }

// Push records a visit to nodeID. A push equal to the current top is a no-op;
// otherwise the oldest entry is evicted once the bound is reached.
func (s *Session) Push(nodeID string) {
	if n := len(s.history); n > 0 && s.history[n-1] == nodeID {
		return
	}
	s.history = append(s.history, nodeID)
	if over := len(s.history) - s.depth; over > 0 {
		s.history = append(s.history[:0:0], s.history[over:]...)
	}
}

// Back drops the current node and returns the one before it, which becomes
// the new current node. With fewer than two entries it returns false and
// leaves the history untouched.
func (s *Session) Back() (string, bool) {
	n := len(s.history)
	if n < 2 {
		return "", false
	}
	s.history = s.history[:n-1]
	return s.history[n-2], true
}

// Current returns the most recently visited node.
func (s *Session) Current() (string, bool) {
	if len(s.history) == 0 {
		return "", false
	}
	return s.history[len(s.history)-1], true
}

// History returns a copy of the visited node ids, oldest first.
func (s *Session) History() []string {
	return append([]string(nil), s.history...)
}

// Pending returns the pending interaction, if any.
func (s *Session) Pending() (Pending, bool) {
	if s.pending == nil {
		return Pending{}, false
	}
	p := *s.pending
	p.Data = maps.Clone(s.pending.Data)
	return p, true
}

// SetPending replaces the pending interaction.
func (s *Session) SetPending(p Pending) {
	if p.Data == nil {
		p.Data = make(map[string]string)
	}
	s.pending = &p
}

// ClearPending drops any pending interaction.
func (s *Session) ClearPending() { s.pending = nil }

// Reset clears history, pending interaction and vars.
func (s *Session) Reset() {
	s.history = nil
	s.pending = nil
	s.Vars = make(map[string]string)
}
