package persistence

import (
	"context"
	"slices"
	"sync"

	"github.com/petrijr/botflow/pkg/api"
)

// EventStore is an append-only log of worker lifecycle events.
type EventStore interface {
	api.EventRecorder
	// ListEvents returns the events of one bot in append order.
	ListEvents(ctx context.Context, botID string) ([]api.WorkerEvent, error)
}

// NoopEventStore drops all events.
type NoopEventStore struct{}

var _ EventStore = NoopEventStore{}

func (NoopEventStore) AppendEvent(context.Context, api.WorkerEvent) error { return nil }

func (NoopEventStore) ListEvents(context.Context, string) ([]api.WorkerEvent, error) {
	return nil, nil
}

// InMemoryEventStore keeps events in memory. A positive limit caps the number
// of events retained per bot, dropping the oldest first.
type InMemoryEventStore struct {
	mu     sync.Mutex
	limit  int
	events map[string][]api.WorkerEvent
}

var _ EventStore = (*InMemoryEventStore)(nil)

// NewInMemoryEventStore creates an InMemoryEventStore; limit <= 0 keeps
// everything.
func NewInMemoryEventStore(limit int) *InMemoryEventStore {
	return &InMemoryEventStore{limit: limit, events: make(map[string][]api.WorkerEvent)}
}

func (s *InMemoryEventStore) AppendEvent(_ context.Context, ev api.WorkerEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := append(s.events[ev.BotID], ev)
	if s.limit > 0 && len(list) > s.limit {
		list = slices.Clone(list[len(list)-s.limit:])
	}
	s.events[ev.BotID] = list
	return nil
}

func (s *InMemoryEventStore) ListEvents(_ context.Context, botID string) ([]api.WorkerEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.events[botID]), nil
}
