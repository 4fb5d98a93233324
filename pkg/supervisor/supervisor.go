package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/petrijr/botflow/pkg/api"
	"github.com/petrijr/botflow/pkg/worker"
)

// DefaultStopTimeout bounds how long Stop waits for a worker to exit.
const DefaultStopTimeout = 15 * time.Second

// Config describes the collaborators shared by every worker of a Supervisor.
type Config struct {
	Flows      api.FlowLoader
	Tokens     api.TokenResolver
	Transports api.TransportFactory

	// Registry builds blocks for every bot. Defaults to blocks.NewRegistry.
	Registry *api.Registry

	// ValidateToken, if set, rejects malformed tokens before any transport
	// is created.
	ValidateToken func(token string) error

	Observer api.Observer
	Events   api.EventRecorder
	Logger   *slog.Logger

	// StopTimeout defaults to DefaultStopTimeout.
	StopTimeout time.Duration

	// Passed through to worker.Config.
	HistoryDepth    int
	MaxChain        int
	ConflictRetries int
	ConflictBackoff time.Duration
	ErrorBackoff    time.Duration
}

// unit is one run of one bot. done is closed once the run has fully ended,
// whether it failed while starting or its worker returned.
type unit struct {
	botID     string
	runID     string
	gen       uint64
	state     api.WorkerState
	startedAt time.Time
	username  string

	cancel context.CancelFunc
	done   chan struct{}
}

func (u *unit) exited() bool {
	select {
	case <-u.done:
		return true
	default:
		return false
	}
}

// Supervisor keeps at most one live worker per bot id.
//
// All bookkeeping lives in a single mutex-protected map. A unit is removed
// from it only after its goroutine has exited, except when Stop times out:
// the unit is then moved aside as lingering and Start refuses the bot with
// api.ErrStillStopping until the old goroutine really ends.
type Supervisor struct {
	cfg    Config
	logger *slog.Logger

	mu          sync.Mutex
	units       map[string]*unit
	lingering   map[string]*unit
	generations map[string]uint64
	lastErr     map[string]string
}

// New creates a Supervisor. Flows, Tokens and Transports are required.
func New(cfg Config) (*Supervisor, error) {
	if cfg.Flows == nil || cfg.Tokens == nil || cfg.Transports == nil {
		return nil, errors.New("supervisor: flows, tokens and transports are required")
	}
	if cfg.Observer == nil {
		cfg.Observer = api.NoopObserver{}
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = DefaultStopTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		cfg:         cfg,
		logger:      logger,
		units:       make(map[string]*unit),
		lingering:   make(map[string]*unit),
		generations: make(map[string]uint64),
		lastErr:     make(map[string]string),
	}, nil
}

// Start resolves the bot's credential, loads its flow graph and spawns its
// worker. It fails with api.ErrAlreadyRunning if the bot has a unit, with
// api.ErrStillStopping if a timed-out unit has not exited, with a
// *api.CredentialError for a missing or rejected token, and with a
// *api.ConfigurationError for an unusable graph. Nothing is left running when
// Start fails.
func (s *Supervisor) Start(ctx context.Context, botID string) error {
	u, runCtx, err := s.reserve(botID)
	if err != nil {
		return err
	}
	s.record(ctx, u, api.EventWorkerStarting, "")

	// Stop may cancel runCtx while we are still preparing.
	prepCtx, cancelPrep := context.WithCancel(ctx)
	defer cancelPrep()
	stopPrep := context.AfterFunc(runCtx, cancelPrep)
	defer stopPrep()

	w, username, err := s.prepare(prepCtx, u)
	if err != nil {
		s.abandon(ctx, u, err)
		return err
	}

	s.mu.Lock()
	if runCtx.Err() != nil {
		s.mu.Unlock()
		err := fmt.Errorf("start %s: stopped while starting: %w", botID, context.Canceled)
		s.abandon(ctx, u, err)
		return err
	}
	u.state = api.StateRunning
	u.username = username
	u.startedAt = time.Now()
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "worker_spawned",
		slog.String("bot_id", botID),
		slog.String("run_id", u.runID),
		slog.String("username", username),
	)
	s.record(ctx, u, api.EventWorkerStarted, username)

	go s.run(runCtx, u, w)
	return nil
}

func (s *Supervisor) reserve(botID string) (*unit, context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.lingering[botID]; ok {
		if !old.exited() {
			return nil, nil, fmt.Errorf("start %s: %w", botID, api.ErrStillStopping)
		}
		delete(s.lingering, botID)
	}
	if _, ok := s.units[botID]; ok {
		return nil, nil, fmt.Errorf("start %s: %w", botID, api.ErrAlreadyRunning)
	}

	s.generations[botID]++
	gen := s.generations[botID]
	runCtx, cancel := context.WithCancel(context.Background())
	u := &unit{
		botID:  botID,
		runID:  fmt.Sprintf("%s#%d", botID, gen),
		gen:    gen,
		state:  api.StateStarting,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.units[botID] = u
	delete(s.lastErr, botID)
	return u, runCtx, nil
}

func (s *Supervisor) prepare(ctx context.Context, u *unit) (*worker.Worker, string, error) {
	token, err := s.cfg.Tokens.ResolveToken(ctx, u.botID)
	if err != nil {
		if errors.Is(err, api.ErrTokenNotFound) {
			return nil, "", &api.CredentialError{BotID: u.botID, Err: err}
		}
		return nil, "", fmt.Errorf("resolve token: %w", err)
	}
	if s.cfg.ValidateToken != nil {
		if err := s.cfg.ValidateToken(token); err != nil {
			return nil, "", &api.CredentialError{BotID: u.botID, Err: err}
		}
	}

	tr, err := s.cfg.Transports(token)
	if err != nil {
		var cerr *api.CredentialError
		if errors.As(err, &cerr) {
			cerr.BotID = u.botID
			return nil, "", cerr
		}
		return nil, "", fmt.Errorf("create transport: %w", err)
	}
	me, err := tr.Identity(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
		return nil, "", &api.CredentialError{BotID: u.botID, Err: err}
	}

	graph, err := s.cfg.Flows.LoadFlow(ctx, u.botID)
	if err != nil {
		return nil, "", fmt.Errorf("load flow %s: %w", u.botID, err)
	}

	w, err := worker.New(worker.Config{
		BotID:           u.botID,
		RunID:           u.runID,
		Graph:           graph,
		Registry:        s.cfg.Registry,
		Transport:       tr,
		Observer:        s.cfg.Observer,
		Logger:          s.logger,
		HistoryDepth:    s.cfg.HistoryDepth,
		MaxChain:        s.cfg.MaxChain,
		ConflictRetries: s.cfg.ConflictRetries,
		ConflictBackoff: s.cfg.ConflictBackoff,
		ErrorBackoff:    s.cfg.ErrorBackoff,
	})
	if err != nil {
		return nil, "", err
	}
	return w, me.Username, nil
}

// abandon undoes reserve after a failed start.
func (s *Supervisor) abandon(ctx context.Context, u *unit, err error) {
	u.cancel()
	s.logger.ErrorContext(ctx, "worker_start_failed",
		slog.String("bot_id", u.botID),
		slog.String("run_id", u.runID),
		slog.Any("error", err),
	)
	s.record(ctx, u, api.EventWorkerFailed, err.Error())

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.units[u.botID] == u {
		delete(s.units, u.botID)
	}
	s.lastErr[u.botID] = err.Error()
	close(u.done)
}

func (s *Supervisor) run(ctx context.Context, u *unit, w *worker.Worker) {
	err := w.Run(ctx)
	u.cancel()

	bg := context.Background()
	if err != nil {
		s.logger.ErrorContext(bg, "worker_exited",
			slog.String("bot_id", u.botID),
			slog.String("run_id", u.runID),
			slog.Any("error", err),
		)
		s.record(bg, u, api.EventWorkerFailed, err.Error())
	} else {
		s.record(bg, u, api.EventWorkerStopped, "")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.units[u.botID] == u {
		delete(s.units, u.botID)
	}
	if s.lingering[u.botID] == u {
		delete(s.lingering, u.botID)
	}
	if err != nil {
		s.lastErr[u.botID] = err.Error()
	}
	close(u.done)
}

// Stop cancels the bot's worker and waits up to StopTimeout for it to exit.
// It returns api.ErrNotRunning if the bot has no unit. A worker that does not
// exit in time is given up on: Stop logs it and returns nil, and the bot
// cannot be started again until the old goroutine ends.
func (s *Supervisor) Stop(ctx context.Context, botID string) error {
	_, err := s.stop(ctx, botID)
	return err
}

func (s *Supervisor) stop(ctx context.Context, botID string) (timedOut bool, err error) {
	s.mu.Lock()
	u, ok := s.units[botID]
	if !ok {
		s.mu.Unlock()
		return false, fmt.Errorf("stop %s: %w", botID, api.ErrNotRunning)
	}
	// Cancel under the lock so a Start still preparing this unit cannot
	// flip it back to running.
	u.state = api.StateStopRequested
	u.cancel()
	s.mu.Unlock()

	s.record(ctx, u, api.EventWorkerStopRequested, "")

	timer := time.NewTimer(s.cfg.StopTimeout)
	defer timer.Stop()
	select {
	case <-u.done:
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	case <-timer.C:
	}

	s.mu.Lock()
	if !u.exited() {
		if s.units[botID] == u {
			delete(s.units, botID)
		}
		s.lingering[botID] = u
	}
	s.mu.Unlock()

	s.logger.WarnContext(ctx, "worker_stop_timeout",
		slog.String("bot_id", botID),
		slog.String("run_id", u.runID),
		slog.Duration("timeout", s.cfg.StopTimeout),
	)
	s.record(ctx, u, api.EventWorkerStopTimeout, s.cfg.StopTimeout.String())
	return true, nil
}

// Restart stops the bot's worker if it has one and starts a new run with the
// next generation. The new run never overlaps the old one: if the old worker
// does not exit within StopTimeout, Restart returns api.ErrStopTimeout and
// starts nothing.
func (s *Supervisor) Restart(ctx context.Context, botID string) error {
	timedOut, err := s.stop(ctx, botID)
	if err != nil && !errors.Is(err, api.ErrNotRunning) {
		return err
	}
	if timedOut {
		return fmt.Errorf("restart %s: %w", botID, api.ErrStopTimeout)
	}
	return s.Start(ctx, botID)
}

// Status reports the bot's state. Bots never started report StateStopped.
func (s *Supervisor) Status(botID string) api.WorkerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked(botID)
}

func (s *Supervisor) statusLocked(botID string) api.WorkerStatus {
	st := api.WorkerStatus{
		BotID:      botID,
		State:      api.StateStopped,
		Generation: s.generations[botID],
		LastError:  s.lastErr[botID],
	}
	u, ok := s.units[botID]
	if !ok {
		if old, lingering := s.lingering[botID]; lingering && !old.exited() {
			st.State = api.StateStopRequested
			st.RunID = old.runID
		}
		return st
	}
	st.State = u.state
	st.Running = u.state == api.StateRunning && !u.exited()
	st.RunID = u.runID
	st.StartedAt = u.startedAt
	st.Username = u.username
	return st
}

// List returns the status of every bot the Supervisor has seen, ordered by
// bot id.
func (s *Supervisor) List() []api.WorkerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.generations))
	for id := range s.generations {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	out := make([]api.WorkerStatus, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.statusLocked(id))
	}
	return out
}

// Running returns the ids of bots whose worker is live, ordered by bot id.
func (s *Supervisor) Running() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, u := range s.units {
		if u.state == api.StateRunning && !u.exited() {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// StopAll stops every bot concurrently and returns the first error.
func (s *Supervisor) StopAll(ctx context.Context) error {
	s.mu.Lock()
	ids := make([]string, 0, len(s.units))
	for id := range s.units {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, id := range ids {
		g.Go(func() error {
			if err := s.Stop(gctx, id); err != nil && !errors.Is(err, api.ErrNotRunning) {
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

// Done returns a channel closed when the bot's current unit has ended, or nil
// if the bot has no unit.
func (s *Supervisor) Done(botID string) <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.units[botID]; ok {
		return u.done
	}
	return nil
}

func (s *Supervisor) record(ctx context.Context, u *unit, typ api.EventType, detail string) {
	if s.cfg.Events == nil {
		return
	}
	ev := api.WorkerEvent{
		ID:     uuid.NewString(),
		BotID:  u.botID,
		RunID:  u.runID,
		At:     time.Now().UTC(),
		Type:   typ,
		Detail: detail,
	}
	if err := s.cfg.Events.AppendEvent(context.WithoutCancel(ctx), ev); err != nil {
		s.logger.WarnContext(ctx, "event_append_failed",
			slog.String("bot_id", u.botID),
			slog.String("type", string(typ)),
			slog.Any("error", err),
		)
	}
}
