package database

// EnsureSchema creates all necessary database tables
func (s *Store) EnsureSchema() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS uptime_events (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  event_type TEXT NOT NULL CHECK (event_type IN ('start', 'stop', 'crash')),
  timestamp TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS uptime_snapshots (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  computed_at TEXT NOT NULL,
  total_up_seconds INTEGER NOT NULL,
  total_down_seconds INTEGER NOT NULL,
  availability_pct REAL NOT NULL,
  status TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_computed ON uptime_snapshots(computed_at);

CREATE TABLE IF NOT EXISTS system_logs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  timestamp TEXT NOT NULL,
  level TEXT NOT NULL,
  category TEXT NOT NULL,
  message TEXT NOT NULL,
  details TEXT,
  created_at TEXT NOT NULL DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_logs_timestamp ON system_logs(timestamp);
CREATE INDEX IF NOT EXISTS idx_logs_level ON system_logs(level);
CREATE INDEX IF NOT EXISTS idx_logs_category ON system_logs(category);
`)
	return err
}
