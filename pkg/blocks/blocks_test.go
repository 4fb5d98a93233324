package blocks

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/petrijr/botflow/pkg/api"
	"github.com/petrijr/botflow/pkg/transport/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const token = "100:secret"

type harness struct {
	net   *memory.Network
	tr    api.Transport
	graph *api.FlowGraph
	sess  *api.Session
}

func newHarness(t *testing.T, nodes ...api.Node) *harness {
	t.Helper()
	net := memory.NewNetwork()
	net.AddBot(token, "testbot")
	tr, err := net.Transport(token)
	require.NoError(t, err)
	return &harness{
		net:   net,
		tr:    tr,
		graph: &api.FlowGraph{Nodes: nodes},
		sess:  api.NewSession("bot", 7, 0),
	}
}

func (h *harness) exec(node api.Node, text string) *api.Exec {
	x := &api.Exec{
		BotID:     "bot",
		ChatID:    h.sess.ChatID,
		Node:      node,
		Graph:     h.graph,
		Session:   h.sess,
		Transport: h.tr,
		Logger:    slog.Default(),
	}
	if text != "" {
		x.Update = &api.Update{Kind: api.UpdateMessage, ChatID: h.sess.ChatID, UserID: 99, Username: "ann", Text: text}
	}
	return x
}

func (h *harness) texts() []string { return h.net.Texts(token, h.sess.ChatID) }

func build(t *testing.T, opts Options, n api.Node) api.Block {
	t.Helper()
	blocks, err := NewRegistry(opts).Build(&api.FlowGraph{Nodes: []api.Node{n}})
	require.NoError(t, err)
	return blocks[n.ID]
}

func TestNewRegistry_RegistersBuiltins(t *testing.T) {
	r := NewRegistry(Options{})
	for _, k := range []string{
		KindStart, KindMessage, KindImage, KindButton, KindInlineButton, KindCondition,
		KindMenu, KindEnd, KindDelay, KindKeywordProcessor, KindNLPResponse,
		KindProductCard, KindSchedule, KindFile,
	} {
		assert.True(t, r.Has(k), k)
	}
	assert.False(t, r.Has("auto_update"))
}

func TestMessageBlock(t *testing.T) {
	n := api.Node{ID: "m", Kind: KindMessage, Data: api.NodeData{Label: "Welcome!"}}
	h := newHarness(t, n)

	d, err := build(t, Options{}, n).Execute(context.Background(), h.exec(n, ""))
	require.NoError(t, err)
	assert.False(t, d.Waits())
	assert.Equal(t, []string{"Welcome!"}, h.texts())
}

func TestEndBlock_WaitsAndClearsPending(t *testing.T) {
	n := api.Node{ID: "e", Kind: KindEnd}
	h := newHarness(t, n)
	h.sess.SetPending(api.Pending{NodeID: "x", Tag: "y"})

	d, err := build(t, Options{}, n).Execute(context.Background(), h.exec(n, ""))
	require.NoError(t, err)
	assert.True(t, d.Waits())
	assert.Equal(t, []string{DefaultFarewell}, h.texts())
	_, pending := h.sess.Pending()
	assert.False(t, pending)
}

func TestImageBlock_FallsBackToLink(t *testing.T) {
	n := api.Node{ID: "i", Kind: KindImage, Data: api.NodeData{URL: "https://example.com/cat.png"}}
	h := newHarness(t, n)
	h.net.FailSends(token, assert.AnError)

	_, err := build(t, Options{}, n).Execute(context.Background(), h.exec(n, ""))
	require.NoError(t, err)
	assert.Equal(t, []string{"Image: https://example.com/cat.png"}, h.texts())
}

func TestImageBlock_SendsPhoto(t *testing.T) {
	n := api.Node{ID: "i", Kind: KindImage, Data: api.NodeData{URL: "https://example.com/cat.png"}}
	h := newHarness(t, n)

	_, err := build(t, Options{}, n).Execute(context.Background(), h.exec(n, ""))
	require.NoError(t, err)
	sent := h.net.Sent(token)
	require.Len(t, sent, 1)
	assert.Equal(t, "https://example.com/cat.png", sent[0].PhotoURL)
}

func TestDelayBlock_SleepsForConfiguredDuration(t *testing.T) {
	var slept time.Duration
	opts := Options{Sleep: func(ctx context.Context, d time.Duration) error {
		slept = d
		return nil
	}}
	n := api.Node{ID: "d", Kind: KindDelay, Data: api.NodeData{Minutes: 1, Seconds: 5}}
	h := newHarness(t, n)

	d, err := build(t, opts, n).Execute(context.Background(), h.exec(n, ""))
	require.NoError(t, err)
	assert.False(t, d.Waits())
	assert.Equal(t, 65*time.Second, slept)
	assert.Equal(t, []string{"Waiting 0 h 1 min 5 sec..."}, h.texts())
}

func TestDelayBlock_CancelledSleepEndsChain(t *testing.T) {
	n := api.Node{ID: "d", Kind: KindDelay, Data: api.NodeData{Hours: 1}}
	h := newHarness(t, n)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d, err := build(t, Options{}, n).Execute(ctx, h.exec(n, ""))
	require.NoError(t, err)
	assert.True(t, d.Waits())
}

func TestDelayBlock_NegativeIsConfigurationError(t *testing.T) {
	_, err := NewRegistry(Options{}).Build(&api.FlowGraph{Nodes: []api.Node{
		{ID: "d", Kind: KindDelay, Data: api.NodeData{Seconds: -1}},
	}})
	assert.True(t, api.IsConfigurationError(err))
}

func TestProductBlock_FormatsCard(t *testing.T) {
	n := api.Node{ID: "p", Kind: KindProductCard, Data: api.NodeData{
		Title:       "Mug",
		Description: "Ceramic",
		Price:       "10 EUR",
		Features:    []api.Feature{{Key: "Volume", Value: "300 ml"}, {Key: "", Value: "skip"}},
	}}
	h := newHarness(t, n)

	_, err := build(t, Options{}, n).Execute(context.Background(), h.exec(n, ""))
	require.NoError(t, err)
	sent := h.net.Sent(token)
	require.Len(t, sent, 1)
	assert.Equal(t, "Markdown", sent[0].ParseMode)
	assert.Equal(t, "*Mug*\n\nCeramic\n\n*Price:* 10 EUR\n\n*Features:*\n• Volume: 300 ml", sent[0].Text)
}

func TestProductBlock_EmptyCard(t *testing.T) {
	assert.Equal(t, "Product card", formatProduct(api.NodeData{}))
}

func TestFileBlock_SendsByExtensionAndReportsMissing(t *testing.T) {
	dir := t.TempDir()
	photo := filepath.Join(dir, "menu.PNG")
	require.NoError(t, os.WriteFile(photo, []byte("png"), 0o600))

	n := api.Node{ID: "f", Kind: KindFile, Data: api.NodeData{
		Caption: "Our menu",
		Files: []api.FileRef{
			{Path: photo, Name: "menu"},
			{Path: filepath.Join(dir, "gone.pdf"), Name: "price list"},
		},
	}}
	h := newHarness(t, n)

	_, err := build(t, Options{}, n).Execute(context.Background(), h.exec(n, ""))
	require.NoError(t, err)

	sent := h.net.Sent(token)
	require.Len(t, sent, 2)
	assert.Equal(t, photo, sent[0].DocumentPath)
	assert.Equal(t, api.MediaPhoto, sent[0].MediaKind)
	assert.Equal(t, "Our menu\nmenu", sent[0].Caption)
	assert.Equal(t, "File not found: price list", sent[1].Text)
}

func TestMediaKindFor(t *testing.T) {
	assert.Equal(t, api.MediaVideo, MediaKindFor("a.mp4"))
	assert.Equal(t, api.MediaAudio, MediaKindFor("a.OGG"))
	assert.Equal(t, api.MediaDocument, MediaKindFor("a.pdf"))
}
