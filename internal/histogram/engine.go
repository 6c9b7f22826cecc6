// Package histogram maintains per-source, per-lead-time distributions of
// forecast error and derives the statistics used to put confidence bands on
// a raw forecast.
package histogram

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/pdxweather/pdxweather/internal/metrics"
	"github.com/pdxweather/pdxweather/internal/models"
	"github.com/pdxweather/pdxweather/internal/store"
)

// Engine fuses stored forecast/actual pairs into error histograms and keeps
// them fresh. Staleness refreshes for the same histogram key are serialized
// with a per-key mutex; the bin-level end-date guard in the store makes any
// overlapping replay idempotent on top of that.
type Engine struct {
	store   *store.Store
	sources map[models.Source]models.SourceConfig
	loc     *time.Location
	now     func() time.Time

	mu    sync.Mutex
	locks map[models.HistogramKey]*sync.Mutex
}

// New builds an engine over the record store. loc must be the same zone the
// ingestion side keys its calendar days by, or reads and writes disagree on
// what "today" means for part of every day.
func New(st *store.Store, sources map[models.Source]models.SourceConfig, loc *time.Location) *Engine {
	return &Engine{
		store:   st,
		sources: sources,
		loc:     loc,
		now:     time.Now,
		locks:   make(map[models.HistogramKey]*sync.Mutex),
	}
}

func (e *Engine) keyLock(key models.HistogramKey) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[key]
	if !ok {
		l = &sync.Mutex{}
		e.locks[key] = l
	}
	return l
}

func (e *Engine) today() time.Time {
	t := e.now().In(e.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Populate fuses every actual observation for the key's location dated
// startDay or later with its matching forecast record, folding the signed
// errors into the key's histogram. A date with no matching forecast is
// logged and skipped; it never aborts the remaining dates.
func (e *Engine) Populate(key models.HistogramKey, startDay time.Time) error {
	histo, err := e.store.GetOrCreateHistogram(key)
	if err != nil {
		return fmt.Errorf("histogram %v: %w", key, err)
	}

	actuals, err := e.store.GetActualsSince(key.Location, startDay)
	if err != nil {
		return fmt.Errorf("actuals since %s: %w", startDay.Format("2006-01-02"), err)
	}

	// The bin end-date guard is only correct when dates arrive in
	// ascending order; the store orders the query, but the guard is
	// load-bearing so the ordering is enforced here rather than assumed.
	sort.Slice(actuals, func(i, j int) bool {
		return actuals[i].DateMeas.Before(actuals[j].DateMeas)
	})

	for _, act := range actuals {
		fcst, err := e.store.GetForecast(act.DateMeas, key.DayInAdvance, key.Source)
		if err != nil {
			return fmt.Errorf("forecast lookup %s: %w", act.DateMeas.Format("2006-01-02"), err)
		}
		if fcst == nil {
			log.Printf("histogram: no forecast matching actual record for %s (source=%s day=%d)",
				act.DateMeas.Format("2006-01-02"), key.Source, key.DayInAdvance)
			metrics.FusionSkips.WithLabelValues(string(key.Source)).Inc()
			continue
		}

		errVal := fcst.Temp(key.MType) - act.Temp(key.MType)
		counted, err := e.store.RecordError(histo.ID, errVal, act.DateMeas)
		if err != nil {
			return fmt.Errorf("record error %d on %s: %w", errVal, act.DateMeas.Format("2006-01-02"), err)
		}
		if counted {
			metrics.ObservationsCounted.WithLabelValues(string(key.Source), string(key.MType)).Inc()
		} else {
			metrics.ObservationsDeduped.WithLabelValues(string(key.Source), string(key.MType)).Inc()
		}
	}
	return nil
}

// Watermark returns the latest measurement date already folded into the
// key's histogram, or the epoch sentinel when nothing has been accumulated.
func (e *Engine) Watermark(key models.HistogramKey) (time.Time, error) {
	return e.store.HistogramWatermark(key)
}

// LatestMatchingDay returns the latest day in [startDay, today] having both
// a forecast record and an actual record for the key. Days in between may be
// unmatched; see RefreshIfStale. Returns the epoch sentinel when no day
// qualifies.
func (e *Engine) LatestMatchingDay(key models.HistogramKey, startDay time.Time) (time.Time, error) {
	day, err := e.store.LatestMatchingDay(key.Source, key.Location, key.DayInAdvance, startDay, e.today())
	if err != nil {
		return time.Time{}, err
	}
	if day.IsZero() {
		return models.Epoch, nil
	}
	return day, nil
}

// RefreshIfStale replays fusion over the gap between the histogram's
// watermark and the latest fully-matched day, when such a day exists beyond
// the watermark. The replay deliberately re-touches the watermark date
// itself; the bin guard absorbs the overlap.
func (e *Engine) RefreshIfStale(key models.HistogramKey) error {
	l := e.keyLock(key)
	l.Lock()
	defer l.Unlock()

	watermark, err := e.Watermark(key)
	if err != nil {
		return fmt.Errorf("watermark %v: %w", key, err)
	}
	latest, err := e.LatestMatchingDay(key, watermark)
	if err != nil {
		return fmt.Errorf("latest matching day %v: %w", key, err)
	}
	if !latest.After(watermark) {
		return nil
	}

	metrics.StalenessReplays.WithLabelValues(string(key.Source), string(key.MType)).Inc()
	return e.Populate(key, watermark)
}

// RefreshAll runs a staleness check over every histogram key derived from
// the source registry. Used by the daily job and the backfill command.
func (e *Engine) RefreshAll(location models.Location) error {
	for _, cfg := range e.sources {
		for _, mtype := range models.MeasurementTypes {
			for day := 0; day < cfg.Horizon; day++ {
				key := models.HistogramKey{
					Source:       cfg.Source,
					Location:     location,
					MType:        mtype,
					DayInAdvance: day,
				}
				if err := e.RefreshIfStale(key); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// PopulateAll regenerates every histogram from the epoch forward. The bin
// guard makes this safe to run over already-counted history; it exists for
// database rebuilds and for filling gaps created by late-arriving actuals.
func (e *Engine) PopulateAll(location models.Location) error {
	for _, cfg := range e.sources {
		for _, mtype := range models.MeasurementTypes {
			for day := 0; day < cfg.Horizon; day++ {
				key := models.HistogramKey{
					Source:       cfg.Source,
					Location:     location,
					MType:        mtype,
					DayInAdvance: day,
				}
				l := e.keyLock(key)
				l.Lock()
				err := e.Populate(key, models.Epoch)
				l.Unlock()
				if err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// CurrentForecast assembles the raw lead-time to temperature map for a
// source from today's stored forecast records. Lead times with no record are
// omitted.
func (e *Engine) CurrentForecast(source models.Source, mtype models.MeasurementType) (map[int]int, error) {
	cfg, ok := e.sources[source]
	if !ok {
		return nil, fmt.Errorf("unknown source %q", source)
	}

	today := e.today()
	forecast := make(map[int]int)
	for day := 0; day < cfg.Horizon; day++ {
		rec, err := e.store.GetForecast(today.AddDate(0, 0, day), day, source)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			continue
		}
		forecast[day] = rec.Temp(mtype)
	}
	return forecast, nil
}
