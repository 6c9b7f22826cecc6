package store

import (
	"database/sql"
	"fmt"
	"log"
	"time"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "Initial schema",
		SQL: `
CREATE TABLE IF NOT EXISTS day_records (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    date_reference DATE NOT NULL,
    day_in_advance INTEGER NOT NULL,
    source TEXT NOT NULL,
    max_temp INTEGER NOT NULL,
    min_temp INTEGER NOT NULL,
    UNIQUE(date_reference, day_in_advance, source)
);

CREATE TABLE IF NOT EXISTS actual_day_records (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    date_meas DATE NOT NULL,
    location TEXT NOT NULL,
    max_temp INTEGER NOT NULL,
    min_temp INTEGER NOT NULL,
    UNIQUE(date_meas, location)
);

CREATE TABLE IF NOT EXISTS error_histograms (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    source TEXT NOT NULL,
    location TEXT NOT NULL,
    mtype TEXT NOT NULL,
    day_in_advance INTEGER NOT NULL,
    UNIQUE(source, location, mtype, day_in_advance)
);

CREATE TABLE IF NOT EXISTS error_bins (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    histogram_id INTEGER NOT NULL REFERENCES error_histograms(id) ON DELETE CASCADE,
    error INTEGER NOT NULL,
    quantity INTEGER NOT NULL,
    start_date DATE NOT NULL,
    end_date DATE NOT NULL,
    UNIQUE(histogram_id, error)
);

CREATE INDEX IF NOT EXISTS idx_day_records_lookup ON day_records(source, day_in_advance, date_reference);
CREATE INDEX IF NOT EXISTS idx_actuals_lookup ON actual_day_records(location, date_meas);
CREATE INDEX IF NOT EXISTS idx_bins_histogram ON error_bins(histogram_id);
`,
	},
}

func (s *Store) Migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT,
			applied_at DATETIME
		)
	`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	var current int
	err = s.db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		if _, err := s.db.Exec(m.SQL); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}
		if _, err := s.db.Exec(
			`INSERT INTO schema_migrations (version, description, applied_at) VALUES (?, ?, ?)`,
			m.Version, m.Description, time.Now().UTC(),
		); err != nil {
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}
		log.Printf("store: applied migration %d: %s", m.Version, m.Description)
	}
	return nil
}

// enable foreign keys so bin rows cascade if a histogram is ever removed
func EnablePragmas(db *sql.DB) {
	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")
	db.Exec("PRAGMA foreign_keys=ON")
}
