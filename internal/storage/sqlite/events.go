package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/floorcast/floorcast/internal/domain"
	"github.com/floorcast/floorcast/internal/storage"
)

const eventColumns = "id, entity_id, domain, event_id, event_type, external_id, state, unit, timestamp, data, metadata"

// CreateEvent inserts the event, assigning its serial. A second insert with
// the same external_id is the defined upsert path: the original row is left
// untouched and returned, original serial included. The no-op SET on
// external_id is what makes RETURNING yield the pre-existing row.
func (s *Store) CreateEvent(ctx context.Context, event *domain.Event) (*domain.Event, error) {
	data, err := marshalJSON(event.Data)
	if err != nil {
		return nil, fmt.Errorf("encode event data: %w", err)
	}
	metadata, err := marshalJSON(event.Metadata)
	if err != nil {
		return nil, fmt.Errorf("encode event metadata: %w", err)
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO events (
			entity_id, domain, event_id, event_type, external_id,
			state, unit, timestamp, data, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(external_id) DO UPDATE SET external_id = excluded.external_id
		RETURNING `+eventColumns,
		event.EntityID,
		event.Domain,
		event.EventID.String(),
		event.EventType,
		event.ExternalID,
		nullString(event.State),
		nullString(event.Unit),
		formatTime(event.Timestamp),
		data,
		metadata,
	)

	stored, err := scanEvent(row)
	if err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}
	return stored, nil
}

// GetEventBySerial returns the event with the given serial.
func (s *Store) GetEventBySerial(ctx context.Context, serial int64) (*domain.Event, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+eventColumns+" FROM events WHERE id = ?", serial)
	event, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get event %d: %w", serial, err)
	}
	return event, nil
}

// GetTimelineBetween returns compact events strictly after afterSerial with
// timestamp before beforeTime, ordered by (timestamp, serial).
func (s *Store) GetTimelineBetween(ctx context.Context, afterSerial int64, beforeTime time.Time) ([]domain.CompactEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, entity_id, timestamp, state, unit FROM events
		WHERE id > ? AND timestamp < ?
		ORDER BY timestamp, id`,
		afterSerial, formatTime(beforeTime))
	if err != nil {
		return nil, fmt.Errorf("query timeline: %w", err)
	}
	defer rows.Close()

	var events []domain.CompactEvent
	for rows.Next() {
		var (
			ev          domain.CompactEvent
			ts          string
			state, unit sql.NullString
		)
		if err := rows.Scan(&ev.Serial, &ev.EntityID, &ts, &state, &unit); err != nil {
			return nil, fmt.Errorf("scan timeline row: %w", err)
		}
		t, err := parseTime(ts)
		if err != nil {
			return nil, err
		}
		ev.Timestamp = t.UnixMilli()
		ev.State = stringPtr(state)
		ev.Unit = stringPtr(unit)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate timeline rows: %w", err)
	}
	return events, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*domain.Event, error) {
	var (
		ev             domain.Event
		eventID, ts    string
		state, unit    sql.NullString
		data, metadata []byte
	)
	err := row.Scan(
		&ev.Serial, &ev.EntityID, &ev.Domain, &eventID, &ev.EventType,
		&ev.ExternalID, &state, &unit, &ts, &data, &metadata,
	)
	if err != nil {
		return nil, err
	}
	ev.EventID, err = uuid.Parse(eventID)
	if err != nil {
		return nil, fmt.Errorf("parse stored event_id: %w", err)
	}
	ev.Timestamp, err = parseTime(ts)
	if err != nil {
		return nil, err
	}
	ev.State = stringPtr(state)
	ev.Unit = stringPtr(unit)
	if err := json.Unmarshal(data, &ev.Data); err != nil {
		return nil, fmt.Errorf("decode event data: %w", err)
	}
	if err := json.Unmarshal(metadata, &ev.Metadata); err != nil {
		return nil, fmt.Errorf("decode event metadata: %w", err)
	}
	return &ev, nil
}

func marshalJSON(m map[string]any) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
