package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/pdxweather/pdxweather/internal/models"
)

// UpsertForecast creates the forecast row for (date, dayInAdvance, source)
// or merges into the existing one. Intra-day re-polls of the same horizon
// keep the most extreme reading of each field: max_temp only ever rises,
// min_temp only ever falls.
func (s *Store) UpsertForecast(date time.Time, dayInAdvance int, source models.Source, maxTemp, minTemp int) error {
	_, err := s.db.Exec(`
		INSERT INTO day_records (date_reference, day_in_advance, source, max_temp, min_temp)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(date_reference, day_in_advance, source) DO UPDATE SET
			max_temp = MAX(max_temp, excluded.max_temp),
			min_temp = MIN(min_temp, excluded.min_temp)
	`, dateStr(date), dayInAdvance, string(source), maxTemp, minTemp)
	if err != nil {
		return fmt.Errorf("upsert forecast: %w", err)
	}
	return nil
}

// GetForecast returns the forecast for (date, dayInAdvance, source), or nil
// when none exists. A miss is a normal branch, not an error.
func (s *Store) GetForecast(date time.Time, dayInAdvance int, source models.Source) (*models.DayRecord, error) {
	row := s.db.QueryRow(`
		SELECT id, date_reference, day_in_advance, source, max_temp, min_temp
		FROM day_records
		WHERE date_reference = ? AND day_in_advance = ? AND source = ?
	`, dateStr(date), dayInAdvance, string(source))

	rec, err := scanDayRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func scanDayRecord(row *sql.Row) (*models.DayRecord, error) {
	var rec models.DayRecord
	var date, source string
	if err := row.Scan(&rec.ID, &date, &rec.DayInAdvance, &source, &rec.MaxTemp, &rec.MinTemp); err != nil {
		return nil, err
	}
	d, err := parseDate(date)
	if err != nil {
		return nil, fmt.Errorf("parse forecast date %q: %w", date, err)
	}
	rec.DateReference = d
	rec.Source = models.Source(source)
	return &rec, nil
}

// CreateActualIfAbsent records a measured temperature for (date, location).
// The first measurement wins; later calls leave the stored row untouched and
// return it.
func (s *Store) CreateActualIfAbsent(date time.Time, location models.Location, maxTemp, minTemp int) (*models.ActualDayRecord, error) {
	_, err := s.db.Exec(`
		INSERT INTO actual_day_records (date_meas, location, max_temp, min_temp)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(date_meas, location) DO NOTHING
	`, dateStr(date), string(location), maxTemp, minTemp)
	if err != nil {
		return nil, fmt.Errorf("insert actual: %w", err)
	}
	return s.GetActual(date, location)
}

// GetActual returns the measured record for (date, location), or nil.
func (s *Store) GetActual(date time.Time, location models.Location) (*models.ActualDayRecord, error) {
	row := s.db.QueryRow(`
		SELECT id, date_meas, location, max_temp, min_temp
		FROM actual_day_records
		WHERE date_meas = ? AND location = ?
	`, dateStr(date), string(location))

	var rec models.ActualDayRecord
	var d, loc string
	err := row.Scan(&rec.ID, &d, &loc, &rec.MaxTemp, &rec.MinTemp)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	date, err = parseDate(d)
	if err != nil {
		return nil, fmt.Errorf("parse actual date %q: %w", d, err)
	}
	rec.DateMeas = date
	rec.Location = models.Location(loc)
	return &rec, nil
}

// GetActualsSince returns all measured records for a location from start
// onward, ascending by measurement date.
func (s *Store) GetActualsSince(location models.Location, start time.Time) ([]models.ActualDayRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, date_meas, location, max_temp, min_temp
		FROM actual_day_records
		WHERE location = ? AND date_meas >= ?
		ORDER BY date_meas ASC
	`, string(location), dateStr(start))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.ActualDayRecord
	for rows.Next() {
		var rec models.ActualDayRecord
		var d, loc string
		if err := rows.Scan(&rec.ID, &d, &loc, &rec.MaxTemp, &rec.MinTemp); err != nil {
			return nil, err
		}
		date, err := parseDate(d)
		if err != nil {
			return nil, fmt.Errorf("parse actual date %q: %w", d, err)
		}
		rec.DateMeas = date
		rec.Location = models.Location(loc)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// LatestMatchingDay returns the latest day in [start, end] for which both a
// forecast row (source, dayInAdvance) and an actual row (location) exist.
// Days in between may be missing records; a gap does not block detection of
// a later fully-matched day. Returns the zero time when no day matches.
func (s *Store) LatestMatchingDay(source models.Source, location models.Location, dayInAdvance int, start, end time.Time) (time.Time, error) {
	var latest sql.NullString
	err := s.db.QueryRow(`
		SELECT MAX(d.date_reference)
		FROM day_records d
		JOIN actual_day_records a ON a.date_meas = d.date_reference AND a.location = ?
		WHERE d.source = ? AND d.day_in_advance = ?
		  AND d.date_reference >= ? AND d.date_reference <= ?
	`, string(location), string(source), dayInAdvance, dateStr(start), dateStr(end)).Scan(&latest)
	if err != nil {
		return time.Time{}, err
	}
	if !latest.Valid {
		return time.Time{}, nil
	}
	return parseDate(latest.String)
}
