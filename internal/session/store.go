// Package session holds the per-(bot, chat) Session index owned by a worker.
package session

import (
	"sync"

	"github.com/petrijr/botflow/pkg/api"
)

// Key identifies one conversation.
type Key struct {
	BotID  string
	ChatID int64
}

// Store creates sessions lazily on first use and keeps them in memory until
// the owning worker discards the store.
type Store struct {
	mu       sync.Mutex
	depth    int
	sessions map[Key]*api.Session
}

// NewStore returns an empty store whose sessions keep depth history entries.
func NewStore(depth int) *Store {
	return &Store{
		depth:    depth,
		sessions: make(map[Key]*api.Session),
	}
}

// Get returns the session for (botID, chatID), creating it if needed.
func (s *Store) Get(botID string, chatID int64) *api.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := Key{BotID: botID, ChatID: chatID}
	sess, ok := s.sessions[k]
	if !ok {
		sess = api.NewSession(botID, chatID, s.depth)
		s.sessions[k] = sess
	}
	return sess
}

// Lookup returns an existing session without creating one.
func (s *Store) Lookup(botID string, chatID int64) (*api.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[Key{BotID: botID, ChatID: chatID}]
	return sess, ok
}

// Delete drops the session for (botID, chatID).
func (s *Store) Delete(botID string, chatID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, Key{BotID: botID, ChatID: chatID})
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Clear drops every session.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make(map[Key]*api.Session)
}
