package persistence

import (
	"context"
	"slices"
	"sync"

	"github.com/petrijr/botflow/pkg/api"
)

// InMemoryStore is a simple, goroutine-safe FlowStore backed by a map.
// Graphs are cloned on the way in and out.
type InMemoryStore struct {
	mu    sync.RWMutex
	flows map[string]api.FlowGraph
}

var _ FlowStore = (*InMemoryStore)(nil)

// NewInMemoryStore creates a new InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{flows: make(map[string]api.FlowGraph)}
}

func (s *InMemoryStore) SaveFlow(_ context.Context, botID string, g api.FlowGraph) error {
	if _, err := prepareSave(botID, g); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.flows[botID] = g.Clone()
	return nil
}

func (s *InMemoryStore) LoadFlow(_ context.Context, botID string) (api.FlowGraph, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.flows[botID]
	if !ok {
		return api.FlowGraph{}, api.ErrFlowNotFound
	}
	return g.Clone(), nil
}

func (s *InMemoryStore) DeleteFlow(_ context.Context, botID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.flows[botID]; !ok {
		return api.ErrFlowNotFound
	}
	delete(s.flows, botID)
	return nil
}

func (s *InMemoryStore) ListFlows(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.flows))
	for id := range s.flows {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}
