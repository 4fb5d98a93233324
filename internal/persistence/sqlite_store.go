package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/petrijr/botflow/pkg/api"
)

// SQLiteFlowStore is a FlowStore backed by SQLite.
//
// It expects an *sql.DB that uses a SQLite driver (for example,
// "modernc.org/sqlite"). The caller is responsible for importing
// the driver, e.g.:
//
//	import _ "modernc.org/sqlite"
type SQLiteFlowStore struct {
	db *sql.DB
}

var _ FlowStore = (*SQLiteFlowStore)(nil)

// NewSQLiteFlowStore initializes the required schema in the given
// database and returns a new SQLiteFlowStore.
func NewSQLiteFlowStore(db *sql.DB) (*SQLiteFlowStore, error) {
	s := &SQLiteFlowStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteFlowStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS bot_flows (
			bot_id TEXT PRIMARY KEY,
			graph BLOB NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
	)
	return err
}

func (s *SQLiteFlowStore) SaveFlow(ctx context.Context, botID string, g api.FlowGraph) error {
	data, err := prepareSave(botID, g)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO bot_flows (bot_id, graph, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(bot_id) DO UPDATE SET graph = excluded.graph, updated_at = excluded.updated_at`,
		botID,
		data,
		time.Now().UnixNano(),
	)
	return err
}

func (s *SQLiteFlowStore) LoadFlow(ctx context.Context, botID string) (api.FlowGraph, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT graph FROM bot_flows WHERE bot_id = ?`, botID).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return api.FlowGraph{}, api.ErrFlowNotFound
		}
		return api.FlowGraph{}, err
	}
	return DecodeFlow(data)
}

func (s *SQLiteFlowStore) DeleteFlow(ctx context.Context, botID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM bot_flows WHERE bot_id = ?`, botID)
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

func (s *SQLiteFlowStore) ListFlows(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT bot_id FROM bot_flows ORDER BY bot_id ASC`)
	if err != nil {
		return nil, err
	}
	return scanIDs(rows)
}

func scanIDs(rows *sql.Rows) ([]string, error) {
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
