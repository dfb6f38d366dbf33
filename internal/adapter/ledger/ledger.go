// Package ledger keeps an audit trail of fetch passes in SQLite. The ledger
// is never consulted to decide what to fetch; the output directory is the
// source of truth for completion.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/couchcryptid/airquality-etl/internal/domain"
	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS passes (
  id          INTEGER PRIMARY KEY AUTOINCREMENT,
  run_id      TEXT    NOT NULL,
  period      INTEGER NOT NULL,
  attempt     INTEGER NOT NULL,
  outcome     TEXT    NOT NULL,
  made        INTEGER NOT NULL,
  skipped     INTEGER NOT NULL,
  fetched     INTEGER NOT NULL,
  failures    INTEGER NOT NULL,
  error       TEXT,
  started_at  TEXT    NOT NULL,
  finished_at TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_passes_period ON passes(period, id);
CREATE INDEX IF NOT EXISTS idx_passes_run ON passes(run_id);
`

// Ledger records pass summaries. It implements acquire.PassRecorder.
type Ledger struct {
	db *sql.DB
}

// Open opens (creating if needed) the ledger database at path.
func Open(path string) (*Ledger, error) {
	dsn := path
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("mkdir %s: %w", dir, err)
			}
		}
		dsn = fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("ledger open: %w", err)
	}
	// One writer; also keeps ":memory:" on a single connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ledger ping: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ledger schema: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Ping reports whether the database is usable.
func (l *Ledger) Ping(ctx context.Context) error {
	return l.db.PingContext(ctx)
}

// RecordPass appends one pass summary.
func (l *Ledger) RecordPass(ctx context.Context, ev domain.PassEvent) error {
	var errText sql.NullString
	if ev.Error != "" {
		errText = sql.NullString{String: ev.Error, Valid: true}
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO passes (run_id, period, attempt, outcome, made, skipped, fetched, failures, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.RunID, int(ev.Period), ev.Attempt, ev.Outcome,
		ev.Made, ev.Skipped, ev.Fetched, ev.Failures, errText,
		ev.StartedAt.UTC().Format(time.RFC3339Nano), ev.FinishedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record pass: %w", err)
	}
	return nil
}

// Passes returns the recorded passes for period, oldest first.
func (l *Ledger) Passes(ctx context.Context, period domain.Period) ([]domain.PassEvent, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT run_id, period, attempt, outcome, made, skipped, fetched, failures, error, started_at, finished_at
		FROM passes WHERE period = ? ORDER BY id`, int(period))
	if err != nil {
		return nil, fmt.Errorf("query passes: %w", err)
	}
	defer rows.Close()

	var out []domain.PassEvent
	for rows.Next() {
		var (
			ev                domain.PassEvent
			p                 int
			errText           sql.NullString
			started, finished string
		)
		if err := rows.Scan(&ev.RunID, &p, &ev.Attempt, &ev.Outcome, &ev.Made, &ev.Skipped,
			&ev.Fetched, &ev.Failures, &errText, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan pass: %w", err)
		}
		ev.Period = domain.Period(p)
		ev.Error = errText.String
		if ev.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
			return nil, fmt.Errorf("parse started_at: %w", err)
		}
		if ev.FinishedAt, err = time.Parse(time.RFC3339Nano, finished); err != nil {
			return nil, fmt.Errorf("parse finished_at: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
