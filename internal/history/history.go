// Package history journals commands issued through the control-mode
// coordinator to a sqlite database, so a disconnected host can see what
// was sent and how the multiplexer answered.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS commands (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	command TEXT NOT NULL,
	status TEXT NOT NULL,
	response TEXT NOT NULL DEFAULT '',
	error TEXT NOT NULL DEFAULT '',
	sent_at TEXT NOT NULL,
	finished_at TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_commands_sent_at ON commands(sent_at);
`

// Command statuses as stored in the journal.
const (
	StatusSent      = "sent"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Entry is one journaled command.
type Entry struct {
	ID         int64     `json:"id"`
	Command    string    `json:"command"`
	Status     string    `json:"status"`
	Response   string    `json:"response,omitempty"`
	Error      string    `json:"error,omitempty"`
	SentAt     time.Time `json:"sent_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// Journal records commands and their outcomes. It implements the
// coordinator's CommandRecorder; the recording methods never fail the
// caller, they log and move on.
type Journal struct {
	db *sql.DB
}

// Open creates or opens the journal database at path, creating parent
// directories as needed.
func Open(ctx context.Context, path string) (*Journal, error) {
	if path == "" {
		return nil, fmt.Errorf("history path cannot be empty")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create history directory %q: %w", dir, err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history database at %q: %w", path, err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping history database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create history schema: %w", err)
	}

	return &Journal{db: db}, nil
}

func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// CommandSent records a command the moment it is written to the
// transport and returns the journal id its outcome will be filed under.
// Returns 0 if the insert fails.
func (j *Journal) CommandSent(command string) int64 {
	res, err := j.db.Exec(`
INSERT INTO commands (command, status, sent_at) VALUES (?, ?, ?)
`, command, StatusSent, formatTimestamp(time.Now()))
	if err != nil {
		slog.Error("history: record command", "error", err)
		return 0
	}
	id, err := res.LastInsertId()
	if err != nil {
		slog.Error("history: command id", "error", err)
		return 0
	}
	return id
}

// CommandFinished files the outcome of a previously recorded command.
func (j *Journal) CommandFinished(id int64, body string, cmdErr error) {
	if id == 0 {
		return
	}
	status := StatusSucceeded
	errText := ""
	if cmdErr != nil {
		status = StatusFailed
		errText = cmdErr.Error()
	}
	_, err := j.db.Exec(`
UPDATE commands SET status = ?, response = ?, error = ?, finished_at = ? WHERE id = ?
`, status, body, errText, formatTimestamp(time.Now()), id)
	if err != nil {
		slog.Error("history: record outcome", "id", id, "error", err)
	}
}

// Recent returns the latest entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	rows, err := j.db.QueryContext(ctx, `
SELECT id, command, status, response, error, sent_at, finished_at
FROM commands
ORDER BY id DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var sentRaw, finishedRaw string
		if err := rows.Scan(&e.ID, &e.Command, &e.Status, &e.Response, &e.Error, &sentRaw, &finishedRaw); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		if e.SentAt, err = parseTimestamp(sentRaw); err != nil {
			return nil, err
		}
		if finishedRaw != "" {
			if e.FinishedAt, err = parseTimestamp(finishedRaw); err != nil {
				return nil, err
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTimestamp(raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", raw, err)
	}
	return t, nil
}
