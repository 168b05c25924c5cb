package eventlog

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/teslashibe/farmgate/internal/log"
	"github.com/teslashibe/farmgate/pkg/episode"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLite is a Store backed by a SQLite database. Unlike the CSV log it
// keeps exact durations and episode IDs.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens the database at path and migrates it to the latest
// schema.
func OpenSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "" && path != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLite{db: db}, nil
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}

	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite driver: %w", err)
	}

	// Not closed: closing m would close db.
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = migrateLogger{}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...interface{}) {
	log.Component("migrate").Info(fmt.Sprintf(format, v...))
}

func (migrateLogger) Verbose() bool { return false }

// Append inserts one record.
func (s *SQLite) Append(ctx context.Context, rec episode.Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events (timestamp, unix_nanos, event_kind, description_localized,
			description_plain, duration_ms, episode_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.Timestamp.Format(TimeFormat),
		rec.Timestamp.UnixNano(),
		string(rec.Kind),
		rec.Local,
		rec.Plain,
		rec.Duration.Milliseconds(),
		rec.EpisodeID,
	)
	if err != nil {
		if errors.Is(err, sql.ErrConnDone) {
			return ErrClosed
		}
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// List returns matching records oldest first.
func (s *SQLite) List(ctx context.Context, q Query) ([]episode.Record, error) {
	var since int64
	if !q.Since.IsZero() {
		since = q.Since.UnixNano()
	}
	limit := q.Limit
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT unix_nanos, event_kind, description_localized, description_plain,
			duration_ms, episode_id
		FROM events
		WHERE unix_nanos >= ?
		ORDER BY unix_nanos DESC, event_id DESC
		LIMIT ?`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var recs []episode.Record
	for rows.Next() {
		var (
			nanos, durMS int64
			kind         string
			rec          episode.Record
		)
		if err := rows.Scan(&nanos, &kind, &rec.Local, &rec.Plain, &durMS, &rec.EpisodeID); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		rec.Timestamp = time.Unix(0, nanos)
		rec.Kind = episode.Kind(kind)
		rec.Duration = time.Duration(durMS) * time.Millisecond
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}

	for i, j := 0, len(recs)-1; i < j; i, j = i+1, j-1 {
		recs[i], recs[j] = recs[j], recs[i]
	}
	return recs, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}
