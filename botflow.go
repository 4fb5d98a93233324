package botflow

import (
	"database/sql"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/petrijr/botflow/internal/persistence"
	"github.com/petrijr/botflow/pkg/api"
	"github.com/petrijr/botflow/pkg/blocks"
	"github.com/petrijr/botflow/pkg/supervisor"
	"github.com/petrijr/botflow/pkg/transport/telegram"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	FlowGraph    = api.FlowGraph
	Node         = api.Node
	Edge         = api.Edge
	NodeData     = api.NodeData
	Button       = api.Button
	MenuItem     = api.MenuItem
	Block        = api.Block
	BlockFunc    = api.BlockFunc
	Registry     = api.Registry
	Exec         = api.Exec
	Directive    = api.Directive
	Update       = api.Update
	Transport    = api.Transport
	WorkerStatus = api.WorkerStatus
	WorkerEvent  = api.WorkerEvent

	Observer             = api.Observer
	NodeEvent            = api.NodeEvent
	LoggingObserver      = api.LoggingObserver
	BasicMetrics         = api.BasicMetrics
	BasicMetricsSnapshot = api.BasicMetricsSnapshot
	CompositeObserver    = api.CompositeObserver
	NoopObserver         = api.NoopObserver

	Supervisor       = supervisor.Supervisor
	SupervisorConfig = supervisor.Config

	// FlowStore persists one flow graph per bot.
	FlowStore = persistence.FlowStore
	// EventStore keeps worker lifecycle events.
	EventStore = persistence.EventStore

	StaticTokens = persistence.StaticTokens
	ChainTokens  = persistence.ChainTokens
)

// Re-export common helpers.

var (
	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver

	Goto         = api.Goto
	FollowEdge   = api.FollowEdge
	FollowHandle = api.FollowHandle
	Wait         = api.Wait
)

// Re-export worker states.

const (
	StateStopped       = api.StateStopped
	StateStarting      = api.StateStarting
	StateRunning       = api.StateRunning
	StateStopRequested = api.StateStopRequested
)

// NewSupervisor returns a Supervisor. Flows, Tokens and Transports are
// required; a nil Registry selects the built-in blocks.
func NewSupervisor(cfg SupervisorConfig) (*Supervisor, error) {
	return supervisor.New(cfg)
}

// NewBlockRegistry returns a registry holding every built-in node kind.
// Register custom kinds on it before passing it to a Supervisor.
func NewBlockRegistry() *Registry {
	return blocks.NewRegistry(blocks.Options{})
}

// NewTelegramSupervisor returns a Supervisor that talks to the Telegram Bot
// API with default settings. Malformed tokens are rejected before any request.
func NewTelegramSupervisor(flows FlowStore, tokens api.TokenResolver, obs Observer) (*Supervisor, error) {
	return supervisor.New(supervisor.Config{
		Flows:         flows,
		Tokens:        tokens,
		Transports:    telegram.Factory(telegram.Config{}),
		ValidateToken: telegram.ValidateToken,
		Observer:      obs,
	})
}

// Store constructors.
// These wrap the internal/persistence package so external callers
// never need to import internal packages.

// NewInMemoryStore returns a FlowStore kept in process memory.
func NewInMemoryStore() FlowStore {
	return persistence.NewInMemoryStore()
}

// NewFileStore returns a FlowStore over a directory of bot_<id>.json files.
func NewFileStore(dir string) (FlowStore, error) {
	s, err := persistence.NewFileStore(dir)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// NewSQLiteStore returns a FlowStore in a SQLite database. The caller imports
// the driver, e.g. modernc.org/sqlite.
func NewSQLiteStore(db *sql.DB) (FlowStore, error) {
	s, err := persistence.NewSQLiteFlowStore(db)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// NewSQLiteEventStore returns an EventStore in a SQLite database.
func NewSQLiteEventStore(db *sql.DB) (EventStore, error) {
	s, err := persistence.NewSQLiteEventStore(db)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// NewPostgresStore returns a FlowStore in PostgreSQL. The caller imports the
// driver, e.g. github.com/jackc/pgx/v5/stdlib.
func NewPostgresStore(db *sql.DB) (FlowStore, error) {
	s, err := persistence.NewPostgresFlowStore(db)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// NewRedisStore returns a FlowStore in Redis under keyPrefix.
func NewRedisStore(client redis.UniversalClient, keyPrefix string) FlowStore {
	return persistence.NewRedisFlowStore(client, keyPrefix)
}

// NewMongoStore returns a FlowStore in a MongoDB collection.
func NewMongoStore(client *mongo.Client, dbName, collName string) FlowStore {
	return persistence.NewMongoFlowStore(client, dbName, collName)
}

// NewEnvTokens resolves bot tokens from <prefix><BOT_ID> environment
// variables, falling back to the given dotenv files.
func NewEnvTokens(prefix string, dotenvFiles ...string) (api.TokenResolver, error) {
	r, err := persistence.NewEnvTokens(prefix, dotenvFiles...)
	if err != nil {
		return nil, err
	}
	return r, nil
}
