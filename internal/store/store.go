package store

import (
	"database/sql"
	"time"
)

// Store wraps the SQLite database. All dates are stored as ISO calendar
// strings (no time component) so range comparisons work lexically.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const dateLayout = "2006-01-02"

func dateStr(t time.Time) string {
	return t.Format(dateLayout)
}

func parseDate(s string) (time.Time, error) {
	return time.Parse(dateLayout, s)
}
