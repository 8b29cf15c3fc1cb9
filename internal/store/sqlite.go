package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nhle/mailto/internal/model"
)

// Store records the mailbox listings the client has received.
type Store interface {
	RecordSnapshot(ctx context.Context, snap model.Snapshot) (model.Snapshot, error)
	GetSnapshots(ctx context.Context, username string, limit int) ([]model.Snapshot, error)
	PruneSnapshots(ctx context.Context, username string, keep int) (int64, error)
}

// SQLiteStore implements Store using a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

// snapshotRow is the database shape of a snapshot.
type snapshotRow struct {
	ID         string    `db:"id"`
	Username   string    `db:"username"`
	Action     string    `db:"action"`
	ModTime    string    `db:"modtime"`
	ModBy      string    `db:"modby"`
	ModWith    string    `db:"modwith"`
	Boxes      string    `db:"boxes"`
	RecordedAt time.Time `db:"recorded_at"`
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// An in-memory database exists per connection.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// RecordSnapshot stores a status. ID and RecordedAt are filled in when
// empty; the stored snapshot is returned.
func (s *SQLiteStore) RecordSnapshot(ctx context.Context, snap model.Snapshot) (model.Snapshot, error) {
	if snap.ID == "" {
		snap.ID = uuid.NewString()
	}
	if snap.RecordedAt.IsZero() {
		snap.RecordedAt = time.Now()
	}

	boxes := snap.Status.Boxes
	if boxes == nil {
		boxes = []model.Mailbox{}
	}
	boxesJSON, err := json.Marshal(boxes)
	if err != nil {
		return snap, fmt.Errorf("marshaling boxes for snapshot %s: %w", snap.ID, err)
	}

	const query = `
		INSERT INTO snapshots (
			id, username, action,
			modtime, modby, modwith,
			boxes, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, query,
		snap.ID, snap.Username, string(snap.Action),
		snap.Status.ModTime, snap.Status.ModBy, snap.Status.ModWith,
		string(boxesJSON), snap.RecordedAt.UTC(),
	)
	if err != nil {
		return snap, fmt.Errorf("inserting snapshot %s: %w", snap.ID, err)
	}

	return snap, nil
}

// GetSnapshots returns the most recent snapshots for username, newest
// first. A non-positive limit returns all of them.
func (s *SQLiteStore) GetSnapshots(ctx context.Context, username string, limit int) ([]model.Snapshot, error) {
	query := `
		SELECT id, username, action, modtime, modby, modwith, boxes, recorded_at
		FROM snapshots
		WHERE username = ?
		ORDER BY recorded_at DESC, rowid DESC`
	args := []interface{}{username}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	var rows []snapshotRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("querying snapshots: %w", err)
	}

	snaps := make([]model.Snapshot, 0, len(rows))
	for _, r := range rows {
		var boxes []model.Mailbox
		if err := json.Unmarshal([]byte(r.Boxes), &boxes); err != nil {
			return nil, fmt.Errorf("unmarshaling boxes for snapshot %s: %w", r.ID, err)
		}
		snaps = append(snaps, model.Snapshot{
			ID:       r.ID,
			Username: r.Username,
			Action:   model.Action(r.Action),
			Status: model.Status{
				ModTime: r.ModTime,
				ModBy:   r.ModBy,
				ModWith: r.ModWith,
				Boxes:   boxes,
			},
			RecordedAt: r.RecordedAt,
		})
	}

	return snaps, nil
}

// PruneSnapshots deletes all but the newest keep snapshots for username
// and reports how many were removed.
func (s *SQLiteStore) PruneSnapshots(ctx context.Context, username string, keep int) (int64, error) {
	const query = `
		DELETE FROM snapshots
		WHERE username = ? AND id NOT IN (
			SELECT id FROM snapshots
			WHERE username = ?
			ORDER BY recorded_at DESC, rowid DESC
			LIMIT ?
		)`

	res, err := s.db.ExecContext(ctx, query, username, username, keep)
	if err != nil {
		return 0, fmt.Errorf("pruning snapshots: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting pruned snapshots: %w", err)
	}
	return n, nil
}
