// Package record persists session transcripts: every byte sent to and
// received from a transport, plus match events, keyed by session id. It is
// the structured replacement for a flat logfile.
package record

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	_ "modernc.org/sqlite"
)

// Directions of a transcript event.
const (
	DirSend  = "send"
	DirRecv  = "recv"
	DirMatch = "match"
)

// Event is one transcript entry. PatternIndex is meaningful only for
// match events; it is -1 otherwise.
type Event struct {
	ID           int64     `json:"id"`
	SessionID    string    `json:"session_id"`
	Direction    string    `json:"direction"`
	Data         string    `json:"data"`
	PatternIndex int       `json:"pattern_index"`
	CreatedAt    time.Time `json:"created_at"`
}

// Store is a sqlite-backed transcript store.
type Store struct {
	conn *sql.DB
}

// Open creates the database (and its parent directory) if needed and runs
// the schema migration.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("record: database path cannot be empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("record: create directory %q: %w", dir, err)
		}
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("record: open database %q: %w", path, err)
	}
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("record: ping database: %w", err)
	}
	if _, err := conn.ExecContext(ctx, schema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("record: migrate: %w", err)
	}
	return &Store{conn: conn}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS transcript (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id    TEXT    NOT NULL,
	direction     TEXT    NOT NULL,
	data          TEXT    NOT NULL,
	pattern_index INTEGER NOT NULL DEFAULT -1,
	created_at    TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transcript_session ON transcript(session_id, id);
`

func (s *Store) Close() error {
	if s == nil || s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// Append stores one event.
func (s *Store) Append(ctx context.Context, ev Event) error {
	ts := ev.CreatedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO transcript (session_id, direction, data, pattern_index, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		ev.SessionID, ev.Direction, ev.Data, ev.PatternIndex, ts.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("record: insert event: %w", err)
	}
	return nil
}

// List returns up to limit events for a session in insertion order.
// limit <= 0 means no limit.
func (s *Store) List(ctx context.Context, sessionID string, limit int) ([]Event, error) {
	q := `SELECT id, session_id, direction, data, pattern_index, created_at
	      FROM transcript WHERE session_id = ? ORDER BY id`
	args := []any{sessionID}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("record: query events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var ev Event
		var ts string
		if err := rows.Scan(&ev.ID, &ev.SessionID, &ev.Direction, &ev.Data, &ev.PatternIndex, &ts); err != nil {
			return nil, fmt.Errorf("record: scan event: %w", err)
		}
		if parsed, perr := time.Parse(time.RFC3339Nano, ts); perr == nil {
			ev.CreatedAt = parsed
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Summary returns a one-line description of a session's transcript,
// e.g. "42 events, 1.3 kB received, 120 B sent".
func (s *Store) Summary(ctx context.Context, sessionID string) (string, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN direction = 'recv' THEN LENGTH(data) ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN direction = 'send' THEN LENGTH(data) ELSE 0 END), 0)
		 FROM transcript WHERE session_id = ?`, sessionID)
	var events int
	var recv, sent uint64
	if err := row.Scan(&events, &recv, &sent); err != nil {
		return "", fmt.Errorf("record: summarize: %w", err)
	}
	return fmt.Sprintf("%d events, %s received, %s sent",
		events, humanize.Bytes(recv), humanize.Bytes(sent)), nil
}

// SessionObserver adapts a Store to the engine's Observer interface for
// one session. Append failures are logged, not propagated: recording must
// never fail the expect call it shadows.
type SessionObserver struct {
	store     *Store
	sessionID string
}

func NewSessionObserver(store *Store, sessionID string) *SessionObserver {
	return &SessionObserver{store: store, sessionID: sessionID}
}

func (o *SessionObserver) Sent(data []byte) {
	o.append(Event{SessionID: o.sessionID, Direction: DirSend, Data: string(data), PatternIndex: -1})
}

func (o *SessionObserver) Received(data []byte) {
	o.append(Event{SessionID: o.sessionID, Direction: DirRecv, Data: string(data), PatternIndex: -1})
}

func (o *SessionObserver) Matched(index int, before, after string) {
	o.append(Event{SessionID: o.sessionID, Direction: DirMatch, Data: after, PatternIndex: index})
}

func (o *SessionObserver) append(ev Event) {
	if err := o.store.Append(context.Background(), ev); err != nil {
		slog.Warn("transcript append failed", "session_id", o.sessionID, "error", err)
	}
}
