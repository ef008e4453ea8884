package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/floorcast/floorcast/internal/domain"
	"github.com/floorcast/floorcast/internal/storage"
)

// CreateSnapshot inserts the snapshot and re-reads the row so the caller
// observes the authoritative created_at assigned by the database.
func (s *Store) CreateSnapshot(ctx context.Context, snapshot *domain.Snapshot) (*domain.Snapshot, error) {
	state, err := json.Marshal(snapshot.State)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot state: %w", err)
	}

	// created_at is written from the server clock rather than the column
	// default so it carries the same microsecond precision as event
	// timestamps.
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO snapshots (last_event_id, state, created_at) VALUES (?, ?, ?)",
		snapshot.LastEventID, state, formatTime(time.Now()))
	if err != nil {
		return nil, fmt.Errorf("insert snapshot: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("snapshot insert id: %w", err)
	}
	return s.GetSnapshotByID(ctx, id)
}

// GetSnapshotByID returns the snapshot with the given id.
func (s *Store) GetSnapshotByID(ctx context.Context, id int64) (*domain.Snapshot, error) {
	return s.querySnapshot(ctx,
		"SELECT id, last_event_id, state, created_at FROM snapshots WHERE id = ?", id)
}

// GetLatestSnapshot returns the newest snapshot by id.
func (s *Store) GetLatestSnapshot(ctx context.Context) (*domain.Snapshot, error) {
	return s.querySnapshot(ctx,
		"SELECT id, last_event_id, state, created_at FROM snapshots ORDER BY id DESC LIMIT 1")
}

// GetSnapshotBefore returns the snapshot with the greatest created_at
// strictly before t.
func (s *Store) GetSnapshotBefore(ctx context.Context, t time.Time) (*domain.Snapshot, error) {
	return s.querySnapshot(ctx, `
		SELECT id, last_event_id, state, created_at FROM snapshots
		WHERE created_at < ?
		ORDER BY created_at DESC LIMIT 1`,
		formatTime(t))
}

func (s *Store) querySnapshot(ctx context.Context, query string, args ...any) (*domain.Snapshot, error) {
	var (
		snap      domain.Snapshot
		state     []byte
		createdAt string
	)
	err := s.db.QueryRowContext(ctx, query, args...).
		Scan(&snap.ID, &snap.LastEventID, &state, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query snapshot: %w", err)
	}
	if err := json.Unmarshal(state, &snap.State); err != nil {
		return nil, fmt.Errorf("decode snapshot state: %w", err)
	}
	snap.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	return &snap, nil
}
