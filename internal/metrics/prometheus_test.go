package metrics

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petrijr/botflow/pkg/api"
)

func TestObserver_WorkerLifecycle(t *testing.T) {
	reg := prometheus.NewRegistry()
	o := NewObserver(reg, "")
	ctx := context.Background()

	o.OnWorkerStart(ctx, "shop", "shop#1")
	assert.Equal(t, 1.0, testutil.ToFloat64(o.workersRunning.WithLabelValues("shop")))

	o.OnWorkerStop(ctx, "shop", "shop#1", nil)
	o.OnWorkerStart(ctx, "shop", "shop#2")
	o.OnWorkerStop(ctx, "shop", "shop#2", errors.New("conflict"))

	assert.Equal(t, 0.0, testutil.ToFloat64(o.workersRunning.WithLabelValues("shop")))
	assert.Equal(t, 2.0, testutil.ToFloat64(o.workerStarts.WithLabelValues("shop")))
	assert.Equal(t, 1.0, testutil.ToFloat64(o.workerStops.WithLabelValues("shop", "stopped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(o.workerStops.WithLabelValues("shop", "failed")))
}

func TestObserver_UpdatesAndNodes(t *testing.T) {
	reg := prometheus.NewRegistry()
	o := NewObserver(reg, "test")
	ctx := context.Background()

	o.OnUpdate(ctx, "shop", api.Update{Kind: api.UpdateMessage})
	o.OnUpdate(ctx, "shop", api.Update{Kind: api.UpdateMessage})
	o.OnUpdate(ctx, "shop", api.Update{Kind: api.UpdateCallback})

	ev := api.NodeEvent{BotID: "shop", NodeID: "m", Kind: "message"}
	o.OnNodeCompleted(ctx, ev, nil, 10*time.Millisecond)
	o.OnNodeCompleted(ctx, ev, errors.New("send failed"), time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(o.updates.WithLabelValues("shop", string(api.UpdateMessage))))
	assert.Equal(t, 1.0, testutil.ToFloat64(o.updates.WithLabelValues("shop", string(api.UpdateCallback))))
	assert.Equal(t, 1.0, testutil.ToFloat64(o.nodes.WithLabelValues("shop", "message", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(o.nodes.WithLabelValues("shop", "message", "error")))
	assert.Equal(t, 1, testutil.CollectAndCount(o.nodeDuration, "test_node_duration_seconds"))
}

func TestObserver_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		NewObserver(prometheus.NewRegistry(), "")
		NewObserver(prometheus.NewRegistry(), "")
	})
}

func TestHandler_ServesMetrics(t *testing.T) {
	reg := NewRegistry()
	o := NewObserver(reg, "")
	o.OnWorkerStart(context.Background(), "shop", "shop#1")

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `botflow_workers_running{bot_id="shop"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
