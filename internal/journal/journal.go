// Package journal keeps the history of sync passes in a SQLite database
// stored in the ignored cache directory of the working tree.
//
// Every Syncer run gets a ULID, and so does every pass of the run:
//
//	j, err := journal.Open(filepath.Join(cacheDir, journal.FileName))
//	if err != nil {
//	    return err
//	}
//	defer j.Close()
//	s.Recorder = j.NewRun()
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/oklog/ulid/v2"

	"github.com/synctogit/synctogit/internal/notes"
	"github.com/synctogit/synctogit/internal/syncer"
)

// FileName is the journal database inside the cache directory.
const FileName = "journal.db"

const schema = `
CREATE TABLE IF NOT EXISTS passes (
	id          TEXT PRIMARY KEY,
	run_id      TEXT NOT NULL,
	started_at  TEXT NOT NULL,
	finished_at TEXT,
	deleted     INTEGER NOT NULL DEFAULT 0,
	created     INTEGER NOT NULL DEFAULT 0,
	updated     INTEGER NOT NULL DEFAULT 0,
	saved       INTEGER NOT NULL DEFAULT 0,
	failed      INTEGER NOT NULL DEFAULT 0,
	changed     INTEGER NOT NULL DEFAULT 0,
	converged   INTEGER NOT NULL DEFAULT 0,
	error       TEXT
);

CREATE TABLE IF NOT EXISTS failed_notes (
	pass_id  TEXT NOT NULL,
	note_key TEXT NOT NULL,
	PRIMARY KEY (pass_id, note_key),
	FOREIGN KEY (pass_id) REFERENCES passes(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_passes_started ON passes(started_at);
CREATE INDEX IF NOT EXISTS idx_passes_run ON passes(run_id);
`

// Journal is the pass history database.
type Journal struct {
	conn *sql.DB
	path string
}

// Open opens or creates the journal at path.
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	// SQLite allows a single writer.
	conn.SetMaxOpenConns(1)

	j := &Journal{conn: conn, path: path}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}
	if _, err := conn.Exec(schema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to initialize journal schema: %w", err)
	}
	return j, nil
}

// Path returns the database file.
func (j *Journal) Path() string {
	return j.path
}

// Close closes the database.
func (j *Journal) Close() error {
	if j.conn == nil {
		return nil
	}
	err := j.conn.Close()
	j.conn = nil
	if err != nil {
		return fmt.Errorf("failed to close journal: %w", err)
	}
	return nil
}

// Run records the passes of a single sync run.
type Run struct {
	ID      string
	journal *Journal
}

var _ syncer.Recorder = (*Run)(nil)

// NewRun starts a run with a fresh ULID.
func (j *Journal) NewRun() *Run {
	return &Run{ID: ulid.Make().String(), journal: j}
}

// Record implements syncer.Recorder.
func (r *Run) Record(ctx context.Context, report syncer.Report, passErr error) error {
	started := report.Started
	if started.IsZero() {
		started = time.Now()
	}
	id := ulid.MustNew(ulid.Timestamp(started), ulid.DefaultEntropy()).String()

	var errText sql.NullString
	if passErr != nil {
		errText = sql.NullString{String: passErr.Error(), Valid: true}
	}

	tx, err := r.journal.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin journal transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
	INSERT INTO passes (
		id, run_id, started_at, finished_at,
		deleted, created, updated, saved, failed, changed, converged, error
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, r.ID,
		formatTime(started), nullTime(report.Finished),
		len(report.Changeset.Delete), len(report.Changeset.New), len(report.Changeset.Update),
		len(report.Saved), len(report.Failed), len(report.Changed),
		boolToInt(report.Converged && passErr == nil),
		errText,
	)
	if err != nil {
		return fmt.Errorf("failed to record pass: %w", err)
	}

	for _, key := range report.Failed {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO failed_notes (pass_id, note_key) VALUES (?, ?)`,
			id, string(key)); err != nil {
			return fmt.Errorf("failed to record failed note %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit journal transaction: %w", err)
	}
	return nil
}

// Pass is a recorded sync pass.
type Pass struct {
	ID       string
	RunID    string
	Started  time.Time
	Finished time.Time

	Deleted int
	Created int
	Updated int

	Saved   int
	Failed  int
	Changed int

	Converged bool
	Error     string

	FailedNotes []notes.Key
}

// ListFilter selects passes for List.
type ListFilter struct {
	// Since excludes passes started before it. Zero means no bound.
	Since time.Time
	// Limit caps the number of passes, newest first. Zero means no cap.
	Limit int
}

// List returns recorded passes, newest first.
func (j *Journal) List(ctx context.Context, filter ListFilter) ([]Pass, error) {
	var (
		where []string
		args  []any
	)
	if !filter.Since.IsZero() {
		where = append(where, "started_at >= ?")
		args = append(args, formatTime(filter.Since))
	}

	query := `
	SELECT id, run_id, started_at, finished_at,
	       deleted, created, updated, saved, failed, changed, converged, error
	FROM passes`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := j.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query passes: %w", err)
	}
	defer rows.Close()

	var passes []Pass
	for rows.Next() {
		var (
			p         Pass
			started   string
			finished  sql.NullString
			converged int
			errText   sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.RunID, &started, &finished,
			&p.Deleted, &p.Created, &p.Updated, &p.Saved, &p.Failed, &p.Changed,
			&converged, &errText); err != nil {
			return nil, fmt.Errorf("failed to scan pass: %w", err)
		}
		if p.Started, err = parseTime(started); err != nil {
			return nil, err
		}
		if finished.Valid {
			if p.Finished, err = parseTime(finished.String); err != nil {
				return nil, err
			}
		}
		p.Converged = converged != 0
		p.Error = errText.String
		passes = append(passes, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate passes: %w", err)
	}

	for i := range passes {
		if passes[i].Failed == 0 {
			continue
		}
		if passes[i].FailedNotes, err = j.failedNotes(ctx, passes[i].ID); err != nil {
			return nil, err
		}
	}
	return passes, nil
}

func (j *Journal) failedNotes(ctx context.Context, passID string) ([]notes.Key, error) {
	rows, err := j.conn.QueryContext(ctx,
		`SELECT note_key FROM failed_notes WHERE pass_id = ? ORDER BY note_key`, passID)
	if err != nil {
		return nil, fmt.Errorf("failed to query failed notes: %w", err)
	}
	defer rows.Close()

	var keys []notes.Key
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("failed to scan failed note: %w", err)
		}
		keys = append(keys, notes.Key(k))
	}
	return keys, rows.Err()
}

// ErrNoPasses is returned by Last when nothing was recorded yet.
var ErrNoPasses = errors.New("no sync passes recorded")

// Last returns the most recent pass.
func (j *Journal) Last(ctx context.Context) (Pass, error) {
	passes, err := j.List(ctx, ListFilter{Limit: 1})
	if err != nil {
		return Pass{}, err
	}
	if len(passes) == 0 {
		return Pass{}, ErrNoPasses
	}
	return passes[0], nil
}

// Timestamps are stored in UTC with a fixed width so that they sort
// lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q in journal: %w", s, err)
	}
	return t, nil
}

func nullTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(t), Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
