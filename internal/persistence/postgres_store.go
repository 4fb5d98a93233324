package persistence

import (
	"context"
	"database/sql"
	"errors"

	"github.com/petrijr/botflow/pkg/api"
)

// PostgresFlowStore is a FlowStore backed by PostgreSQL.
//
// It expects an *sql.DB that uses a PostgreSQL driver (for example,
// "github.com/jackc/pgx/v5/stdlib").
//
// The caller is responsible for:
//   - importing the driver for its side effects, e.g.:
//     _ "github.com/jackc/pgx/v5/stdlib"
//   - providing a DSN via sql.Open.
type PostgresFlowStore struct {
	db *sql.DB
}

var _ FlowStore = (*PostgresFlowStore)(nil)

// NewPostgresFlowStore initializes the required schema in the given
// database and returns a new PostgresFlowStore.
func NewPostgresFlowStore(db *sql.DB) (*PostgresFlowStore, error) {
	s := &PostgresFlowStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresFlowStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS bot_flows (
			bot_id TEXT PRIMARY KEY,
			graph JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
	`)
	return err
}

func (s *PostgresFlowStore) SaveFlow(ctx context.Context, botID string, g api.FlowGraph) error {
	data, err := prepareSave(botID, g)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO bot_flows (bot_id, graph, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (bot_id) DO UPDATE SET graph = EXCLUDED.graph, updated_at = now()
	`,
		botID,
		string(data),
	)
	return err
}

func (s *PostgresFlowStore) LoadFlow(ctx context.Context, botID string) (api.FlowGraph, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT graph::text FROM bot_flows WHERE bot_id = $1`, botID).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return api.FlowGraph{}, api.ErrFlowNotFound
		}
		return api.FlowGraph{}, err
	}
	return DecodeFlow([]byte(data))
}

func (s *PostgresFlowStore) DeleteFlow(ctx context.Context, botID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM bot_flows WHERE bot_id = $1`, botID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return api.ErrFlowNotFound
	}
	return nil
}

func (s *PostgresFlowStore) ListFlows(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT bot_id FROM bot_flows ORDER BY bot_id ASC`)
	if err != nil {
		return nil, err
	}
	return scanIDs(rows)
}
