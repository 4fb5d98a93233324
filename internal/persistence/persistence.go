package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	_ "modernc.org/sqlite"
)

// Driver names accepted by Open.
const (
	DriverMemory   = "memory"
	DriverFile     = "file"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverMongo    = "mongo"
)

// Options selects and configures a storage backend.
type Options struct {
	Driver string
	// DSN is the SQL connection string, the Redis URL or the Mongo URI.
	DSN string
	// Dir is the flow directory of the file driver.
	Dir string
	// Prefix namespaces Redis keys.
	Prefix string
	// Database and Collection name the Mongo location.
	Database   string
	Collection string
	// EventLimit caps in-memory events per bot.
	EventLimit int
}

// Persistence groups the stores a daemon needs.
type Persistence struct {
	Flows  FlowStore
	Events EventStore

	closers []func() error
}

// Close releases the underlying connections.
func (p *Persistence) Close() error {
	var errs []error
	for i := len(p.closers) - 1; i >= 0; i-- {
		errs = append(errs, p.closers[i]())
	}
	return errors.Join(errs...)
}

// Open connects to the backend named by opts.Driver. Lifecycle events are
// kept in SQLite when that driver is used and in memory otherwise.
func Open(ctx context.Context, opts Options) (*Persistence, error) {
	p := &Persistence{Events: NewInMemoryEventStore(opts.EventLimit)}

	switch opts.Driver {
	case "", DriverMemory:
		p.Flows = NewInMemoryStore()

	case DriverFile:
		fs, err := NewFileStore(opts.Dir)
		if err != nil {
			return nil, err
		}
		p.Flows = fs

	case DriverSQLite:
		db, err := sql.Open("sqlite", opts.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		// modernc sqlite serialises writers; one connection avoids SQLITE_BUSY.
		db.SetMaxOpenConns(1)
		p.closers = append(p.closers, db.Close)
		flows, err := NewSQLiteFlowStore(db)
		if err != nil {
			_ = p.Close()
			return nil, err
		}
		events, err := NewSQLiteEventStore(db)
		if err != nil {
			_ = p.Close()
			return nil, err
		}
		p.Flows, p.Events = flows, events

	case DriverPostgres:
		db, err := sql.Open("pgx", opts.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		p.closers = append(p.closers, db.Close)
		if err := db.PingContext(ctx); err != nil {
			_ = p.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		flows, err := NewPostgresFlowStore(db)
		if err != nil {
			_ = p.Close()
			return nil, err
		}
		p.Flows = flows

	case DriverRedis:
		ropts, err := redis.ParseURL(opts.DSN)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(ropts)
		p.closers = append(p.closers, client.Close)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = p.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		p.Flows = NewRedisFlowStore(client, opts.Prefix)

	case DriverMongo:
		cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		client, err := mongo.Connect(cctx, options.Client().ApplyURI(opts.DSN))
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		p.closers = append(p.closers, func() error { return client.Disconnect(context.Background()) })
		if err := client.Ping(cctx, nil); err != nil {
			_ = p.Close()
			return nil, fmt.Errorf("ping mongo: %w", err)
		}
		p.Flows = NewMongoFlowStore(client, opts.Database, opts.Collection)

	default:
		return nil, fmt.Errorf("unknown store driver %q", opts.Driver)
	}
	return p, nil
}
