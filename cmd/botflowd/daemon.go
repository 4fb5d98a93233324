package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"slices"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/petrijr/botflow/internal/config"
	"github.com/petrijr/botflow/internal/metrics"
	"github.com/petrijr/botflow/internal/persistence"
	"github.com/petrijr/botflow/pkg/api"
	"github.com/petrijr/botflow/pkg/blocks"
	"github.com/petrijr/botflow/pkg/supervisor"
	"github.com/petrijr/botflow/pkg/transport/telegram"
)

// startFanOut bounds concurrent Start/Restart calls at boot and on SIGHUP.
const startFanOut = 8

type daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *persistence.Persistence
	sup    *supervisor.Supervisor
	reg    *prometheus.Registry
}

// newDaemon opens the store and wires the supervisor. A nil factory selects
// the Telegram transport.
func newDaemon(ctx context.Context, cfg *config.Config, logger *slog.Logger, factory api.TransportFactory) (*daemon, error) {
	store, err := persistence.Open(ctx, cfg.StoreOptions())
	if err != nil {
		return nil, err
	}

	envTokens, err := persistence.NewEnvTokens(cfg.Tokens.EnvPrefix, cfg.Tokens.DotenvFiles...)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	tokens := persistence.ChainTokens{persistence.StaticTokens(cfg.Tokens.Static), envTokens}

	var validateToken func(string) error
	if factory == nil {
		factory = telegram.Factory(telegram.Config{
			BaseURL:        cfg.Telegram.BaseURL,
			PollTimeout:    cfg.Telegram.PollTimeout,
			RequestTimeout: cfg.Telegram.RequestTimeout,
			RateLimit:      cfg.Telegram.RateLimit,
			RateBurst:      cfg.Telegram.RateBurst,
			Logger:         logger,
		})
		validateToken = telegram.ValidateToken
	}

	reg := metrics.NewRegistry()
	observer := api.NewCompositeObserver(
		api.NewLoggingObserver(logger),
		metrics.NewObserver(reg, metrics.DefaultNamespace),
	)

	sup, err := supervisor.New(supervisor.Config{
		Flows:           store.Flows,
		Tokens:          tokens,
		Transports:      factory,
		Registry:        blocks.NewRegistry(blocks.Options{Logger: logger}),
		ValidateToken:   validateToken,
		Observer:        observer,
		Events:          store.Events,
		Logger:          logger,
		StopTimeout:     cfg.Supervisor.StopTimeout,
		HistoryDepth:    cfg.Supervisor.HistoryDepth,
		MaxChain:        cfg.Supervisor.MaxChain,
		ConflictRetries: cfg.Supervisor.ConflictRetries,
		ConflictBackoff: cfg.Supervisor.ConflictBackoff,
		ErrorBackoff:    cfg.Supervisor.ErrorBackoff,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return &daemon{cfg: cfg, logger: logger, store: store, sup: sup, reg: reg}, nil
}

// fanOut runs fn for every id with bounded concurrency. Failures are logged
// and joined; one bot failing never prevents the others.
func (d *daemon) fanOut(ctx context.Context, op string, ids []string, fn func(context.Context, string) error) error {
	var g errgroup.Group
	g.SetLimit(startFanOut)
	errs := make([]error, len(ids))
	for i, id := range ids {
		g.Go(func() error {
			if err := fn(ctx, id); err != nil {
				d.logger.ErrorContext(ctx, "bot_"+op+"_failed",
					slog.String("bot_id", id),
					slog.Any("error", err),
				)
				errs[i] = fmt.Errorf("%s %s: %w", op, id, err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// startAll starts every configured bot.
func (d *daemon) startAll(ctx context.Context) error {
	return d.fanOut(ctx, "start", d.cfg.Bots, d.sup.Start)
}

// restartAll restarts the configured bots plus any other running bot, so a
// SIGHUP picks up edited flows and rotated tokens.
func (d *daemon) restartAll(ctx context.Context) error {
	ids := slices.Clone(d.cfg.Bots)
	for _, id := range d.sup.Running() {
		if !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	d.logger.InfoContext(ctx, "restart_all", slog.Int("bots", len(ids)))
	return d.fanOut(ctx, "restart", ids, d.sup.Restart)
}

// serve runs until ctx ends or a terminating signal arrives. SIGHUP restarts
// all bots. On exit every worker is stopped and the store is closed.
func (d *daemon) serve(ctx context.Context, signals <-chan os.Signal) error {
	var srv *http.Server
	if addr := d.cfg.Metrics.Listen; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler(d.reg))
		srv = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				d.logger.Error("metrics_server_failed", slog.Any("error", err))
			}
		}()
		d.logger.Info("metrics_listening", slog.String("addr", addr))
	}

	if err := d.startAll(ctx); err != nil {
		d.logger.Warn("some_bots_not_started", slog.Any("error", err))
	}

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case sig := <-signals:
			if sig == syscall.SIGHUP {
				_ = d.restartAll(ctx)
				continue
			}
			d.logger.Info("shutdown_requested", slog.String("signal", sig.String()))
			break loop
		}
	}
	return d.shutdown(srv)
}

func (d *daemon) shutdown(srv *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.Supervisor.StopTimeout+5*time.Second)
	defer cancel()

	var errs []error
	errs = append(errs, d.sup.StopAll(ctx))
	if srv != nil {
		errs = append(errs, srv.Shutdown(ctx))
	}
	errs = append(errs, d.store.Close())
	d.logger.Info("shutdown_complete")
	return errors.Join(errs...)
}
