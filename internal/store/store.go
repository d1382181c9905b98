package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// migration upgrades a checkpoint written by an older build. schema.sql
// always creates the latest layout, so every statement must be a no-op on
// a fresh database.
type migration struct {
	version int
	name    string
	stmt    string
}

var migrations = []migration{
	{1, "connections by seq", `CREATE INDEX IF NOT EXISTS idx_connections_seq ON connections(seq)`},
	{2, "commits by instance", `CREATE INDEX IF NOT EXISTS idx_commits_instance ON commits(instance)`},
}

// currentSchemaVersion is the user_version of a fully migrated checkpoint.
var currentSchemaVersion = migrations[len(migrations)-1].version

// pragmas configure every connection:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
var pragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA synchronous = NORMAL",
	"PRAGMA busy_timeout = 5000",
	"PRAGMA foreign_keys = ON",
}

// Store is the durable checkpoint of one workflow: committed graph state,
// the ids of committed invocations and per-instance records.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates or opens the checkpoint at path, applying pragmas and
// migrations. Safe to call repeatedly on the same file.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Commits serialize on the engine's writer lock; one connection keeps
	// SQLite from ever seeing two writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", p, err)
		}
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, path: path}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the file the store was opened on.
func (s *Store) Path() string { return s.path }

// LastSeq returns the highest committed commit sequence, 0 for an empty
// store.
func (s *Store) LastSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM commits`).Scan(&seq); err != nil {
		return 0, &PersistenceError{Op: "last seq", Err: err}
	}
	return seq.Int64, nil
}

// Stats counts the rows of a checkpoint.
type Stats struct {
	Commits     int `json:"commits"`
	Instances   int `json:"instances"`
	Connections int `json:"connections"`
	Records     int `json:"records"`
}

// Stats returns the row counts of every table.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM commits),
			(SELECT COUNT(*) FROM instances),
			(SELECT COUNT(*) FROM connections),
			(SELECT COUNT(*) FROM records)`,
	).Scan(&st.Commits, &st.Instances, &st.Connections, &st.Records)
	if err != nil {
		return Stats{}, &PersistenceError{Op: "stats", Err: err}
	}
	return st, nil
}

// migrate creates missing tables and applies the migrations newer than the
// file's user_version.
func migrate(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	for _, m := range migrations {
		if m.version <= version {
			continue
		}
		if _, err := db.Exec(m.stmt); err != nil {
			return fmt.Errorf("migrate to v%d (%s): %w", m.version, m.name, err)
		}
	}
	if version < currentSchemaVersion {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	if err := s.db.QueryRow("PRAGMA " + name).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
