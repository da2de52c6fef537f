package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"uptime/app/internal/models"
)

// AppendEvent records a lifecycle event and returns its ordering key
func (s *Store) AppendEvent(ctx context.Context, kind models.EventKind, ts time.Time) (int64, error) {
	if !kind.Valid() {
		return 0, fmt.Errorf("append event: unknown kind %q", kind)
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO uptime_events (event_type, timestamp) VALUES (?, ?)`,
		string(kind), formatTime(ts))
	if err != nil {
		return 0, fmt.Errorf("append event: %w", err)
	}
	return res.LastInsertId()
}

// ListEventsOrdered returns every event in insertion order
func (s *Store) ListEventsOrdered(ctx context.Context) ([]models.Event, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, event_type, timestamp FROM uptime_events ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		var (
			e  models.Event
			ts string
		)
		if err := rows.Scan(&e.ID, &e.Kind, &ts); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		t, err := parseTime(ts)
		if err != nil {
			// A row we cannot place in time is dropped rather than failing the read
			log.Printf("Skipping event %d: %v", e.ID, err)
			continue
		}
		e.Time = t
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

// CountEvents returns the number of recorded events
func (s *Store) CountEvents(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM uptime_events`).Scan(&n)
	return n, err
}
