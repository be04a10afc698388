// Package audit persists a durable, append-only record of every completed
// execution — independent of and never consulted by the in-memory
// execution cache. It exists purely for operator visibility (GET /audit),
// grounded on the teacher's internal/store package and its
// migration-on-open, WAL-mode sqlite setup.
package audit

import (
	"database/sql"
	"embed"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Record is one completed (or timed-out) execution.
type Record struct {
	RunID     string
	Script    string
	StartedAt time.Time
	Duration  time.Duration
	ExitCode  int
	TimedOut  bool
	CacheHit  bool
}

// Store wraps a sqlite database holding the executions table.
type Store struct {
	db *sql.DB
}

// Open creates or reuses the sqlite database at dsn and applies any
// pending migrations.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, f := range files {
		var applied int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = ?", f).Scan(&applied); err != nil {
			return fmt.Errorf("check migration %s: %w", f, err)
		}
		if applied > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + f)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", f, err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin tx for %s: %w", f, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration %s: %w", f, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", f); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %s: %w", f, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", f, err)
		}
	}
	return nil
}

// Record inserts one execution row. A failure is the caller's to decide
// whether to surface; fanout.Runner logs and otherwise ignores it, since
// an audit-log outage must never fail a request whose result is already
// computed.
func (s *Store) Record(r Record) error {
	_, err := s.db.Exec(
		`INSERT INTO executions (run_id, script, started_at, duration_ms, exit_code, timed_out, cache_hit)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Script, r.StartedAt, r.Duration.Milliseconds(), r.ExitCode, boolToInt(r.TimedOut), boolToInt(r.CacheHit),
	)
	if err != nil {
		return fmt.Errorf("insert execution: %w", err)
	}
	return nil
}

// Recent returns the most recent rows for script (or all scripts if empty),
// newest first, bounded by limit.
func (s *Store) Recent(script string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows *sql.Rows
	var err error
	if script == "" {
		rows, err = s.db.Query(
			`SELECT run_id, script, started_at, duration_ms, exit_code, timed_out, cache_hit
			 FROM executions ORDER BY started_at DESC LIMIT ?`, limit)
	} else {
		rows, err = s.db.Query(
			`SELECT run_id, script, started_at, duration_ms, exit_code, timed_out, cache_hit
			 FROM executions WHERE script = ? ORDER BY started_at DESC LIMIT ?`, script, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("query executions: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var durationMs int64
		var timedOut, cacheHit int
		if err := rows.Scan(&r.RunID, &r.Script, &r.StartedAt, &durationMs, &r.ExitCode, &timedOut, &cacheHit); err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		r.Duration = time.Duration(durationMs) * time.Millisecond
		r.TimedOut = timedOut != 0
		r.CacheHit = cacheHit != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// LogRecordFailure logs a best-effort audit write failure without
// propagating it to the request path.
func LogRecordFailure(script string, err error) {
	log.Printf("[audit] record %s: %v", script, err)
}
