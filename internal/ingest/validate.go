package ingest

import (
	"fmt"

	"github.com/pdxweather/pdxweather/internal/models"
)

// ValidationError marks a record that failed field checks before write. The
// offending record is dropped and logged; the surrounding batch continues.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// QualifyForecast checks a forecast point against the operating window, the
// source registry, the source's horizon, and the temperature bounds.
func QualifyForecast(f NormalizedForecast, dayInAdvance int, maxTemp, minTemp int, sources map[models.Source]models.SourceConfig) *ValidationError {
	if !f.PredictDate.After(models.WindowStart) || !f.PredictDate.Before(models.WindowEnd) {
		return invalid("date", "not in operating window, got %s", f.PredictDate.Format("2006-01-02"))
	}
	cfg, ok := sources[f.Source]
	if !ok {
		return invalid("source", "unknown source %q", f.Source)
	}
	if dayInAdvance < 0 || dayInAdvance >= cfg.Horizon {
		return invalid("day_in_advance", "outside [0, %d), got %d", cfg.Horizon, dayInAdvance)
	}
	if maxTemp < models.TempFloor || maxTemp > models.TempCeiling {
		return invalid("max_temp", "outside [%d, %d], got %d", models.TempFloor, models.TempCeiling, maxTemp)
	}
	if minTemp < models.TempFloor || minTemp > models.TempCeiling {
		return invalid("min_temp", "outside [%d, %d], got %d", models.TempFloor, models.TempCeiling, minTemp)
	}
	return nil
}

// QualifyActual checks a measured record against the operating window, the
// known locations, and the temperature bounds.
func QualifyActual(a Actual) *ValidationError {
	if !a.Date.After(models.WindowStart) || !a.Date.Before(models.WindowEnd) {
		return invalid("date", "not in operating window, got %s", a.Date.Format("2006-01-02"))
	}
	if a.Location != models.LocationPDX {
		return invalid("location", "unknown location %q", a.Location)
	}
	if a.MaxTemp < models.TempFloor || a.MaxTemp > models.TempCeiling {
		return invalid("max_temp", "outside [%d, %d], got %d", models.TempFloor, models.TempCeiling, a.MaxTemp)
	}
	if a.MinTemp < models.TempFloor || a.MinTemp > models.TempCeiling {
		return invalid("min_temp", "outside [%d, %d], got %d", models.TempFloor, models.TempCeiling, a.MinTemp)
	}
	return nil
}
