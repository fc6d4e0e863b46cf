package sqlite

import (
	"database/sql"
	"os"
	"path/filepath"

	"github.com/m-mizutani/goerr/v2"
	_ "modernc.org/sqlite"

	"github.com/secmon-lab/pippin/pkg/domain/interfaces"
)

// SQLite is the default durable repository backend. The schema follows
// the episodic memory layout: one append-only activity_logs table plus
// a state_snapshots table.
type SQLite struct {
	db      *sql.DB
	records *recordRepository
}

var _ interfaces.Repository = &SQLite{}

// New opens or creates a SQLite database at the given path
func New(dbPath string) (*SQLite, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, goerr.Wrap(err, "failed to create database directory", goerr.V("path", dbPath))
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open database", goerr.V("path", dbPath))
	}

	s := &SQLite{
		db:      db,
		records: newRecordRepository(db),
	}

	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, goerr.Wrap(err, "failed to migrate database", goerr.V("path", dbPath))
	}

	return s, nil
}

func (s *SQLite) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS activity_logs (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id        TEXT,
		timestamp     INTEGER NOT NULL,
		activity      TEXT NOT NULL,
		result        TEXT,
		start_time    INTEGER,
		end_time      INTEGER,
		duration_sec  REAL NOT NULL DEFAULT 0,
		state_delta   TEXT,
		state_after   TEXT,
		embedding     BLOB,
		source        TEXT NOT NULL,
		parent_id     INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_activity_logs_activity ON activity_logs(activity, id DESC);
	CREATE INDEX IF NOT EXISTS idx_activity_logs_timestamp ON activity_logs(timestamp);

	CREATE TABLE IF NOT EXISTS state_snapshots (
		id        INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp INTEGER NOT NULL,
		energy    INTEGER NOT NULL,
		happiness INTEGER NOT NULL,
		xp        INTEGER NOT NULL
	);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return goerr.Wrap(err, "failed to create schema")
	}

	return nil
}

func (s *SQLite) Records() interfaces.RecordRepository {
	return s.records
}

func (s *SQLite) Close() error {
	if err := s.db.Close(); err != nil {
		return goerr.Wrap(err, "failed to close database")
	}
	return nil
}
