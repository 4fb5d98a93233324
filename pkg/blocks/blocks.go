// Package blocks implements the built-in node kinds of the flow editor.
//
// NewRegistry returns an api.Registry with every kind registered. Kinds that
// reach outside the process (CRM availability checks) take their clients from
// Options so tests can substitute them.
package blocks

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/petrijr/botflow/pkg/api"
)

// Node kinds understood by NewRegistry.
const (
	KindStart            = api.KindStart
	KindMessage          = "message"
	KindImage            = "image"
	KindButton           = "button"
	KindInlineButton     = "inline_button"
	KindCondition        = "condition"
	KindMenu             = "menu"
	KindEnd              = "end"
	KindDelay            = "delay"
	KindKeywordProcessor = "keyword_processor"
	KindNLPResponse      = "nlp_response"
	KindProductCard      = "product_card"
	KindSchedule         = "schedule"
	KindFile             = "file"
)

// User-facing defaults.
const (
	DefaultChoosePrompt = "Choose an option:"
	DefaultFarewell     = "Thank you! Send /start to begin again."
	BackCommand         = "back"
	BackDescription     = "Go back"
)

// Options carries the collaborators of blocks that need them.
type Options struct {
	// HTTPClient is used for CRM availability checks. Defaults to a resty
	// client with a 10s timeout.
	HTTPClient *resty.Client

	// Now defaults to time.Now.
	Now func() time.Time

	// Sleep waits for d or until ctx is done. Defaults to a timer.
	Sleep func(ctx context.Context, d time.Duration) error

	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.HTTPClient == nil {
		o.HTTPClient = resty.New().SetTimeout(10 * time.Second)
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Sleep == nil {
		o.Sleep = sleepContext
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// NewRegistry returns a registry holding every built-in kind.
func NewRegistry(opts Options) *api.Registry {
	r := api.NewRegistry()
	Register(r, opts)
	return r
}

// Register adds every built-in kind to r. It panics if a kind is already
// registered.
func Register(r *api.Registry, opts Options) {
	opts = opts.withDefaults()

	r.MustRegister(KindStart, func(api.Node) (api.Block, error) { return passBlock{}, nil })
	r.MustRegister(KindMessage, newMessageBlock)
	r.MustRegister(KindImage, newImageBlock)
	r.MustRegister(KindButton, newButtonBlock)
	r.MustRegister(KindInlineButton, newInlineButtonBlock)
	r.MustRegister(KindCondition, newConditionBlock)
	r.MustRegister(KindMenu, newMenuBlock)
	r.MustRegister(KindEnd, newEndBlock)
	r.MustRegister(KindDelay, func(n api.Node) (api.Block, error) { return newDelayBlock(n, opts.Sleep) })
	r.MustRegister(KindKeywordProcessor, newKeywordBlock)
	r.MustRegister(KindNLPResponse, func(api.Node) (api.Block, error) { return nlpBlock{}, nil })
	r.MustRegister(KindProductCard, newProductBlock)
	r.MustRegister(KindSchedule, func(n api.Node) (api.Block, error) { return newScheduleBlock(n, opts) })
	r.MustRegister(KindFile, newFileBlock)
}

// passBlock does nothing and follows the default edge.
type passBlock struct{}

func (passBlock) Execute(context.Context, *api.Exec) (api.Directive, error) {
	return api.FollowEdge(), nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
