package persistence

import (
	"context"
	"database/sql"
	"time"

	"github.com/petrijr/botflow/pkg/api"
)

// SQLiteEventStore stores worker lifecycle events in SQLite.
type SQLiteEventStore struct {
	db *sql.DB
}

var _ EventStore = (*SQLiteEventStore)(nil)

func NewSQLiteEventStore(db *sql.DB) (*SQLiteEventStore, error) {
	s := &SQLiteEventStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteEventStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS worker_events (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL,
			bot_id TEXT NOT NULL,
			run_id TEXT NOT NULL DEFAULT '',
			at INTEGER NOT NULL,
			type TEXT NOT NULL,
			detail TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_worker_events_bot_id ON worker_events(bot_id, seq);
	`)
	return err
}

func (s *SQLiteEventStore) AppendEvent(ctx context.Context, ev api.WorkerEvent) error {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO worker_events (id, bot_id, run_id, at, type, detail)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ev.ID,
		ev.BotID,
		ev.RunID,
		at.UnixNano(),
		string(ev.Type),
		ev.Detail,
	)
	return err
}

func (s *SQLiteEventStore) ListEvents(ctx context.Context, botID string) ([]api.WorkerEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, bot_id, run_id, at, type, detail
		FROM worker_events
		WHERE bot_id = ?
		ORDER BY seq ASC`, botID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []api.WorkerEvent
	for rows.Next() {
		var (
			ev  api.WorkerEvent
			atN int64
			typ string
		)
		if err := rows.Scan(&ev.ID, &ev.BotID, &ev.RunID, &atN, &typ, &ev.Detail); err != nil {
			return nil, err
		}
		ev.At = time.Unix(0, atN)
		ev.Type = api.EventType(typ)
		out = append(out, ev)
	}
	return out, rows.Err()
}
