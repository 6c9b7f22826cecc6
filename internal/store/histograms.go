package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/pdxweather/pdxweather/internal/models"
)

// GetHistogram returns the histogram for the key, or nil when it has never
// been created.
func (s *Store) GetHistogram(key models.HistogramKey) (*models.ErrorHistogram, error) {
	row := s.db.QueryRow(`
		SELECT id, source, location, mtype, day_in_advance
		FROM error_histograms
		WHERE source = ? AND location = ? AND mtype = ? AND day_in_advance = ?
	`, string(key.Source), string(key.Location), string(key.MType), key.DayInAdvance)

	var h models.ErrorHistogram
	var source, location, mtype string
	err := row.Scan(&h.ID, &source, &location, &mtype, &h.DayInAdvance)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	h.Source = models.Source(source)
	h.Location = models.Location(location)
	h.MType = models.MeasurementType(mtype)
	return &h, nil
}

// GetOrCreateHistogram returns the histogram for the key, creating it on
// first use.
func (s *Store) GetOrCreateHistogram(key models.HistogramKey) (*models.ErrorHistogram, error) {
	_, err := s.db.Exec(`
		INSERT INTO error_histograms (source, location, mtype, day_in_advance)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(source, location, mtype, day_in_advance) DO NOTHING
	`, string(key.Source), string(key.Location), string(key.MType), key.DayInAdvance)
	if err != nil {
		return nil, fmt.Errorf("create histogram: %w", err)
	}
	return s.GetHistogram(key)
}

// RecordError folds one error observation into a histogram inside a single
// transaction. A fresh bin starts at quantity 1 with start and end dates on
// the observation date. An existing bin increments only when the date is
// strictly after the bin's end_date; an observation at or before it has
// already been counted and is dropped. The transaction closes the
// read-check-increment race between concurrent replays.
//
// Returns true when the observation was counted, false when deduplicated.
func (s *Store) RecordError(histogramID int64, errVal int, date time.Time) (bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var id int64
	var endDate string
	err = tx.QueryRow(`
		SELECT id, end_date FROM error_bins
		WHERE histogram_id = ? AND error = ?
	`, histogramID, errVal).Scan(&id, &endDate)

	counted := false
	switch {
	case err == sql.ErrNoRows:
		_, err = tx.Exec(`
			INSERT INTO error_bins (histogram_id, error, quantity, start_date, end_date)
			VALUES (?, ?, 1, ?, ?)
		`, histogramID, errVal, dateStr(date), dateStr(date))
		if err != nil {
			return false, fmt.Errorf("insert bin: %w", err)
		}
		counted = true
	case err != nil:
		return false, err
	case dateStr(date) > endDate:
		_, err = tx.Exec(`
			UPDATE error_bins SET quantity = quantity + 1, end_date = ? WHERE id = ?
		`, dateStr(date), id)
		if err != nil {
			return false, fmt.Errorf("increment bin: %w", err)
		}
		counted = true
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return counted, nil
}

// GetBins returns all bins of a histogram, ordered by error value.
func (s *Store) GetBins(histogramID int64) ([]models.ErrorBin, error) {
	rows, err := s.db.Query(`
		SELECT id, histogram_id, error, quantity, start_date, end_date
		FROM error_bins
		WHERE histogram_id = ?
		ORDER BY error ASC
	`, histogramID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bins []models.ErrorBin
	for rows.Next() {
		var b models.ErrorBin
		var start, end string
		if err := rows.Scan(&b.ID, &b.HistogramID, &b.Error, &b.Quantity, &start, &end); err != nil {
			return nil, err
		}
		if b.StartDate, err = parseDate(start); err != nil {
			return nil, fmt.Errorf("parse bin start %q: %w", start, err)
		}
		if b.EndDate, err = parseDate(end); err != nil {
			return nil, fmt.Errorf("parse bin end %q: %w", end, err)
		}
		bins = append(bins, b)
	}
	return bins, rows.Err()
}

// HistogramWatermark returns the latest measurement date already folded into
// the histogram: the maximum end_date across its bins. Bins advance their
// end dates independently, so this must be computed live rather than cached.
// When the histogram or its bins do not exist it returns the epoch sentinel.
func (s *Store) HistogramWatermark(key models.HistogramKey) (time.Time, error) {
	var latest sql.NullString
	err := s.db.QueryRow(`
		SELECT MAX(b.end_date)
		FROM error_bins b
		JOIN error_histograms h ON b.histogram_id = h.id
		WHERE h.source = ? AND h.location = ? AND h.mtype = ? AND h.day_in_advance = ?
	`, string(key.Source), string(key.Location), string(key.MType), key.DayInAdvance).Scan(&latest)
	if err != nil {
		return time.Time{}, err
	}
	if !latest.Valid {
		return models.Epoch, nil
	}
	return parseDate(latest.String)
}

// BinDateRange returns the earliest start_date and latest end_date across a
// histogram's bins, or ok=false when it has none.
func (s *Store) BinDateRange(histogramID int64) (start, end time.Time, ok bool, err error) {
	var minStart, maxEnd sql.NullString
	err = s.db.QueryRow(`
		SELECT MIN(start_date), MAX(end_date) FROM error_bins WHERE histogram_id = ?
	`, histogramID).Scan(&minStart, &maxEnd)
	if err != nil {
		return time.Time{}, time.Time{}, false, err
	}
	if !minStart.Valid || !maxEnd.Valid {
		return time.Time{}, time.Time{}, false, nil
	}
	if start, err = parseDate(minStart.String); err != nil {
		return time.Time{}, time.Time{}, false, err
	}
	if end, err = parseDate(maxEnd.String); err != nil {
		return time.Time{}, time.Time{}, false, err
	}
	return start, end, true, nil
}
