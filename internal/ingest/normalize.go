package ingest

import (
	"log"
	"time"

	"github.com/pdxweather/pdxweather/internal/metrics"
	"github.com/pdxweather/pdxweather/internal/models"
	"github.com/pdxweather/pdxweather/internal/store"
)

// TempRange is one day's forecast max/min pair in °F.
type TempRange struct {
	Max int
	Min int
}

// NormalizedForecast is the adapter output contract: one provider's forecast
// issued on PredictDate, keyed by lead time in local calendar days. Adapters
// deduplicate and retime to calendar days before handing this to the core.
type NormalizedForecast struct {
	Source      models.Source
	PredictDate time.Time
	Days        map[int]TempRange
}

// Actual is a measured max/min for one calendar day at one station.
type Actual struct {
	Date     time.Time
	Location models.Location
	MaxTemp  int
	MinTemp  int
}

// daysInAdvance converts a forecast validity timestamp (unix seconds) to
// whole calendar days ahead of the prediction date, in the given zone.
func daysInAdvance(predictDate time.Time, forecastUnix int64, loc *time.Location) int {
	f := time.Unix(forecastUnix, 0).In(loc)
	fDay := time.Date(f.Year(), f.Month(), f.Day(), 0, 0, 0, 0, time.UTC)
	pDay := time.Date(predictDate.Year(), predictDate.Month(), predictDate.Day(), 0, 0, 0, 0, time.UTC)
	return int(fDay.Sub(pDay).Hours() / 24)
}

// kelvinToF converts a Kelvin reading to whole degrees Fahrenheit.
func kelvinToF(k float64) int {
	return int((k-273.15)*9/5 + 32 + 0.5)
}

// StoreForecast validates and persists each lead time of a normalized
// forecast. A record that fails validation is logged and skipped; the rest
// of the batch is written. Stored points merge with prior polls of the same
// (date, lead, source) key, keeping the most extreme max and min.
func StoreForecast(st *store.Store, f NormalizedForecast, sources map[models.Source]models.SourceConfig) error {
	for dayInAdvance, temps := range f.Days {
		if verr := QualifyForecast(f, dayInAdvance, temps.Max, temps.Min, sources); verr != nil {
			log.Printf("ingest: dropping %s forecast point: %v", f.Source, verr)
			metrics.ValidationRejects.WithLabelValues(string(f.Source), verr.Field).Inc()
			continue
		}
		dateReference := f.PredictDate.AddDate(0, 0, dayInAdvance)
		if err := st.UpsertForecast(dateReference, dayInAdvance, f.Source, temps.Max, temps.Min); err != nil {
			return err
		}
		metrics.ForecastsIngested.WithLabelValues(string(f.Source)).Inc()
	}
	return nil
}

// StoreActual validates and persists a measured record. First measurement
// for a (date, location) wins; a validation failure drops the record.
func StoreActual(st *store.Store, a Actual) error {
	if verr := QualifyActual(a); verr != nil {
		log.Printf("ingest: dropping actual record: %v", verr)
		metrics.ValidationRejects.WithLabelValues("actual", verr.Field).Inc()
		return nil
	}
	if _, err := st.CreateActualIfAbsent(a.Date, a.Location, a.MaxTemp, a.MinTemp); err != nil {
		return err
	}
	metrics.ActualsIngested.WithLabelValues(string(a.Location)).Inc()
	return nil
}
