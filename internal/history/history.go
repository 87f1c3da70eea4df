// Package history keeps the plays observed on the realtime feed in SQLite.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jfmyers9/spotwatch/internal/player"
)

// DBFile is the history database name inside the data directory.
const DBFile = "history.db"

// Store is a persistent play history backed by SQLite
type Store struct {
	db *sql.DB
}

// Entry is a recorded play
type Entry struct {
	ID        int64
	AccountID string
	TrackID   string
	Name      string
	Artists   string
	Album     string
	Duration  time.Duration
	StartedAt time.Time
}

// Open opens or creates the history database at dbPath
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection keeps :memory: databases consistent
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA journal_mode = WAL",
		"PRAGMA temp_store = MEMORY",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	schema := `
		CREATE TABLE IF NOT EXISTS plays (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			account_id TEXT NOT NULL,
			track_id TEXT NOT NULL,
			name TEXT NOT NULL,
			artists TEXT NOT NULL,
			album TEXT,
			duration INTEGER NOT NULL,
			started_at INTEGER NOT NULL,
			created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
		);

		CREATE INDEX IF NOT EXISTS idx_started_at ON plays(started_at);
		CREATE INDEX IF NOT EXISTS idx_track ON plays(track_id);
	`

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Record implements player.Recorder.
func (s *Store) Record(ctx context.Context, p player.Play) error {
	_, err := s.Add(ctx, p)
	return err
}

// Add inserts a play and returns its id
func (s *Store) Add(ctx context.Context, p player.Play) (int64, error) {
	query := `
		INSERT INTO plays (account_id, track_id, name, artists, album, duration, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query,
		p.AccountID,
		p.TrackID,
		p.Name,
		p.Artists,
		p.Album,
		int64(p.Duration.Seconds()),
		p.StartedAt.Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert play: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get insert id: %w", err)
	}

	return id, nil
}

// Recent returns the latest plays, newest first. A limit of zero or less
// returns every play.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	query := `
		SELECT id, account_id, track_id, name, artists, COALESCE(album, ''), duration, started_at
		FROM plays
		ORDER BY started_at DESC, id DESC
	`

	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query plays: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var durationSecs int64
		var startedUnix int64

		err := rows.Scan(
			&e.ID,
			&e.AccountID,
			&e.TrackID,
			&e.Name,
			&e.Artists,
			&e.Album,
			&durationSecs,
			&startedUnix,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan play: %w", err)
		}

		e.Duration = time.Duration(durationSecs) * time.Second
		e.StartedAt = time.Unix(startedUnix, 0)

		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating plays: %w", err)
	}

	return entries, nil
}

// Count returns the number of recorded plays
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM plays").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count plays: %w", err)
	}
	return count, nil
}

// Cleanup removes plays that started more than maxAge ago
func (s *Store) Cleanup(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().Add(-maxAge).Unix()

	result, err := s.db.ExecContext(ctx, "DELETE FROM plays WHERE started_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup old plays: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return deleted, nil
}
