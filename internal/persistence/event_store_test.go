package persistence

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petrijr/botflow/pkg/api"
)

func TestInMemoryEventStore_Limit(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryEventStore(3)
	for i := range 5 {
		require.NoError(t, store.AppendEvent(ctx, api.WorkerEvent{ID: fmt.Sprint(i), BotID: "shop"}))
	}
	require.NoError(t, store.AppendEvent(ctx, api.WorkerEvent{ID: "x", BotID: "cafe"}))

	evs, err := store.ListEvents(ctx, "shop")
	require.NoError(t, err)
	ids := make([]string, len(evs))
	for i, ev := range evs {
		ids[i] = ev.ID
	}
	assert.Equal(t, []string{"2", "3", "4"}, ids)

	evs[0].ID = "mutated"
	again, _ := store.ListEvents(ctx, "shop")
	assert.Equal(t, "2", again[0].ID)
}

func TestInMemoryEventStore_ConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryEventStore(0)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.AppendEvent(ctx, api.WorkerEvent{ID: fmt.Sprint(i), BotID: "shop"})
		}()
	}
	wg.Wait()

	evs, err := store.ListEvents(ctx, "shop")
	require.NoError(t, err)
	assert.Len(t, evs, 20)
}

func TestNoopEventStore(t *testing.T) {
	var s EventStore = NoopEventStore{}
	require.NoError(t, s.AppendEvent(context.Background(), api.WorkerEvent{BotID: "shop"}))
	evs, err := s.ListEvents(context.Background(), "shop")
	require.NoError(t, err)
	assert.Empty(t, evs)
}
