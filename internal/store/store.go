// Package store archives finished session reports to SQLite so operators can
// inspect deferral and failure patterns across sessions.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/taskgov/governor/contracts"
	"github.com/taskgov/governor/pkg/logx"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	started_at  TEXT NOT NULL,
	ended_at    TEXT NOT NULL,
	stop_reason TEXT NOT NULL,
	final_tier  TEXT NOT NULL,
	completed   INTEGER NOT NULL,
	deferred    INTEGER NOT NULL,
	failed      INTEGER NOT NULL,
	blocked     INTEGER NOT NULL,
	ledger_json TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS dispositions (
	session_id INTEGER NOT NULL REFERENCES sessions(id),
	task_id    TEXT NOT NULL,
	name       TEXT,
	domain     TEXT,
	state      TEXT NOT NULL,
	reason     TEXT,
	attempts   INTEGER NOT NULL,
	units      INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_dispositions_session ON dispositions(session_id);
`

type sqliteArchive struct {
	db  *sql.DB
	log logx.Logger
}

// Open creates or opens the session archive at path.
func Open(path string, log logx.Logger) (contracts.SessionArchive, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("archive path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating archive schema: %w", err)
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &sqliteArchive{db: db, log: log}, nil
}

// AppendReport writes the report and its per-task dispositions in one
// transaction.
func (s *sqliteArchive) AppendReport(ctx context.Context, report *contracts.SessionReport) error {
	if report == nil {
		return contracts.ErrInvalidInput
	}

	ledgerJSON, err := json.Marshal(report.Ledger)
	if err != nil {
		return fmt.Errorf("marshal ledger snapshot: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO sessions(started_at, ended_at, stop_reason, final_tier, completed, deferred, failed, blocked, ledger_json)
		 VALUES(?,?,?,?,?,?,?,?,?)`,
		report.StartedAt.Format(time.RFC3339Nano),
		report.EndedAt.Format(time.RFC3339Nano),
		string(report.StopReason),
		report.FinalTier.String(),
		report.Completed, report.Deferred, report.Failed, report.Blocked,
		string(ledgerJSON),
	)
	if err != nil {
		return err
	}
	sessionID, err := res.LastInsertId()
	if err != nil {
		return err
	}

	for _, d := range report.Tasks {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO dispositions(session_id, task_id, name, domain, state, reason, attempts, units)
			 VALUES(?,?,?,?,?,?,?,?)`,
			sessionID, string(d.ID), d.Name, string(d.Domain),
			d.State.String(), d.Reason, d.Attempts, int64(d.Units),
		); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	s.log.Debug("session archived",
		logx.Int64("session_id", sessionID),
		logx.Int("tasks", len(report.Tasks)))
	return nil
}

func (s *sqliteArchive) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
