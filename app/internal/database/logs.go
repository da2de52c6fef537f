package database

import (
	"context"
	"time"

	"uptime/app/internal/models"
)

// ============================================
// Logging Functions
// ============================================

// LogLevel constants
const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

// LogCategory constants
const (
	LogCategoryLifecycle = "lifecycle"
	LogCategorySnapshot  = "snapshot"
	LogCategoryStorage   = "storage"
	LogCategorySystem    = "system"
)

// InsertLog adds a new log entry
func (s *Store) InsertLog(ctx context.Context, level, category, message, details string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO system_logs (timestamp, level, category, message, details)
		VALUES (?, ?, ?, ?, ?)`,
		formatTime(time.Now()), level, category, message, details)
	return err
}

// GetLogs retrieves logs with optional filtering, newest first
func (s *Store) GetLogs(ctx context.Context, limit int, level, category string, offset int) ([]models.LogEntry, error) {
	query := `SELECT id, timestamp, level, category, message, COALESCE(details, '')
		FROM system_logs WHERE 1=1`
	args := []interface{}{}

	if level != "" {
		query += " AND level = ?"
		args = append(args, level)
	}
	if category != "" {
		query += " AND category = ?"
		args = append(args, category)
	}

	query += " ORDER BY id DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []models.LogEntry
	for rows.Next() {
		var entry models.LogEntry
		if err := rows.Scan(&entry.ID, &entry.Timestamp, &entry.Level, &entry.Category, &entry.Message, &entry.Details); err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

// GetLogStats returns statistics about logs
func (s *Store) GetLogStats(ctx context.Context) (*models.LogStats, error) {
	var stats models.LogStats
	err := s.db.QueryRowContext(ctx, `SELECT
		COUNT(*),
		COALESCE(SUM(level = 'error'), 0),
		COALESCE(SUM(level = 'warn'), 0),
		COALESCE(SUM(level = 'info'), 0),
		COALESCE(SUM(level = 'debug'), 0)
		FROM system_logs`).Scan(&stats.TotalLogs, &stats.ErrorCount, &stats.WarnCount, &stats.InfoCount, &stats.DebugCount)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// PruneLogs removes old logs to keep the database size manageable (keeps last N logs)
func (s *Store) PruneLogs(ctx context.Context, keepCount int) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM system_logs WHERE id NOT IN (
		SELECT id FROM system_logs ORDER BY id DESC LIMIT ?
	)`, keepCount)
	return err
}
