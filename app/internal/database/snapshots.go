package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"uptime/app/internal/models"
)

const snapshotColumns = `id, computed_at, total_up_seconds, total_down_seconds, availability_pct, status`

// AppendSnapshot persists a snapshot and returns its id. Any ID on snap is ignored.
func (s *Store) AppendSnapshot(ctx context.Context, snap models.Snapshot) (int64, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO uptime_snapshots
		(computed_at, total_up_seconds, total_down_seconds, availability_pct, status)
		VALUES (?, ?, ?, ?, ?)`,
		formatTime(snap.ComputedAt), snap.TotalUpSeconds, snap.TotalDownSeconds,
		snap.AvailabilityPct, string(snap.Status))
	if err != nil {
		return 0, fmt.Errorf("append snapshot: %w", err)
	}
	return res.LastInsertId()
}

// LatestSnapshot returns the most recently appended snapshot, or nil if none exist
func (s *Store) LatestSnapshot(ctx context.Context) (*models.Snapshot, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+snapshotColumns+` FROM uptime_snapshots ORDER BY id DESC LIMIT 1`)
	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest snapshot: %w", err)
	}
	return snap, nil
}

// ListSnapshots returns snapshots newest first
func (s *Store) ListSnapshots(ctx context.Context, limit, offset int) ([]models.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+snapshotColumns+` FROM uptime_snapshots
		ORDER BY id DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	return collectSnapshots(rows)
}

// SnapshotsSince returns at most limit snapshots computed at or after since,
// oldest first. When more match, the newest limit are returned. limit <= 0
// returns all of them.
func (s *Store) SnapshotsSince(ctx context.Context, since time.Time, limit int) ([]models.Snapshot, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+snapshotColumns+` FROM uptime_snapshots
		WHERE computed_at >= ? ORDER BY id DESC LIMIT ?`, formatTime(since), limit)
	if err != nil {
		return nil, fmt.Errorf("snapshots since: %w", err)
	}
	snaps, err := collectSnapshots(rows)
	if err != nil {
		return nil, err
	}
	slices.Reverse(snaps)
	return snaps, nil
}

// CountSnapshots returns the number of persisted snapshots
func (s *Store) CountSnapshots(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM uptime_snapshots`).Scan(&n)
	return n, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row rowScanner) (*models.Snapshot, error) {
	var (
		snap models.Snapshot
		ts   string
	)
	if err := row.Scan(&snap.ID, &ts, &snap.TotalUpSeconds, &snap.TotalDownSeconds,
		&snap.AvailabilityPct, &snap.Status); err != nil {
		return nil, err
	}
	t, err := parseTime(ts)
	if err != nil {
		return nil, err
	}
	snap.ComputedAt = t
	return &snap, nil
}

func collectSnapshots(rows *sql.Rows) ([]models.Snapshot, error) {
	defer rows.Close()

	var out []models.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		out = append(out, *snap)
	}
	return out, rows.Err()
}
