package histogram

import (
	"fmt"
	"math"

	"github.com/pdxweather/pdxweather/internal/models"
)

// BinStatistics computes the mean and sample standard deviation of the error
// distribution held in bins. With no observations it returns the (0, 0)
// sentinel rather than an error; with a single observation the mean is that
// error and the deviation is 0, since one sample carries no spread
// information.
func BinStatistics(bins []models.ErrorBin) (mean, stdev float64) {
	total := 0
	for _, b := range bins {
		total += b.Quantity
	}
	if total == 0 {
		return 0, 0
	}

	sum := 0.0
	for _, b := range bins {
		sum += float64(b.Error * b.Quantity)
	}
	mean = sum / float64(total)

	if total == 1 {
		return mean, 0
	}

	variance := 0.0
	for _, b := range bins {
		d := float64(b.Error) - mean
		variance += d * d * float64(b.Quantity)
	}
	return mean, math.Sqrt(variance / float64(total-1))
}

// Statistics returns per-lead-time error means and standard deviations for a
// source, refreshing each histogram from the record store first.
func (e *Engine) Statistics(source models.Source, location models.Location, mtype models.MeasurementType) (means, stdevs map[int]float64, err error) {
	cfg, ok := e.sources[source]
	if !ok {
		return nil, nil, fmt.Errorf("unknown source %q", source)
	}

	means = make(map[int]float64)
	stdevs = make(map[int]float64)
	for day := 0; day < cfg.Horizon; day++ {
		key := models.HistogramKey{Source: source, Location: location, MType: mtype, DayInAdvance: day}
		if err := e.RefreshIfStale(key); err != nil {
			return nil, nil, err
		}

		histo, err := e.store.GetOrCreateHistogram(key)
		if err != nil {
			return nil, nil, err
		}
		bins, err := e.store.GetBins(histo.ID)
		if err != nil {
			return nil, nil, err
		}
		means[day], stdevs[day] = BinStatistics(bins)
	}
	return means, stdevs, nil
}

// DayStats is one lead time's accuracy summary.
type DayStats struct {
	Day   int     `json:"day"`
	Mean  float64 `json:"mean"`
	Std   float64 `json:"std"`
	Worst int     `json:"max"` // largest-magnitude signed error seen
}

// StatsSummary is the per-source accuracy report served to clients.
type StatsSummary struct {
	SourceName string     `json:"source_str"`
	MType      string     `json:"mtype"`
	StatsByDay []DayStats `json:"stats_by_day"`
	StartDate  string     `json:"start_date"`
	EndDate    string     `json:"end_date"`
}

// Summary builds the accuracy report for a source: per-lead-time mean,
// deviation and worst error, plus the overall date coverage of the bins.
func (e *Engine) Summary(source models.Source, location models.Location, mtype models.MeasurementType) (*StatsSummary, error) {
	cfg, ok := e.sources[source]
	if !ok {
		return nil, fmt.Errorf("unknown source %q", source)
	}

	means, stdevs, err := e.Statistics(source, location, mtype)
	if err != nil {
		return nil, err
	}

	coverStart := models.WindowEnd
	coverEnd := models.WindowStart
	summary := &StatsSummary{
		SourceName: cfg.Alias,
		MType:      string(mtype),
	}
	for day := 0; day < cfg.Horizon; day++ {
		key := models.HistogramKey{Source: source, Location: location, MType: mtype, DayInAdvance: day}
		histo, err := e.store.GetOrCreateHistogram(key)
		if err != nil {
			return nil, err
		}
		bins, err := e.store.GetBins(histo.ID)
		if err != nil {
			return nil, err
		}
		start, end, ok, err := e.store.BinDateRange(histo.ID)
		if err != nil {
			return nil, err
		}
		if ok {
			if start.Before(coverStart) {
				coverStart = start
			}
			if end.After(coverEnd) {
				coverEnd = end
			}
		}
		summary.StatsByDay = append(summary.StatsByDay, DayStats{
			Day:   day,
			Mean:  means[day],
			Std:   stdevs[day],
			Worst: worstError(bins),
		})
	}

	if coverEnd.Before(coverStart) {
		// no bins anywhere; report an empty range at the epoch
		coverStart, coverEnd = models.Epoch, models.Epoch
	}
	summary.StartDate = coverStart.Format("2006-01-02")
	summary.EndDate = coverEnd.Format("2006-01-02")
	return summary, nil
}

// worstError returns the signed error with the largest magnitude across the
// bins, preferring the positive one on a tie. Zero when there are no bins.
func worstError(bins []models.ErrorBin) int {
	worst := 0
	for _, b := range bins {
		if abs(b.Error) > abs(worst) || (abs(b.Error) == abs(worst) && b.Error > worst) {
			worst = b.Error
		}
	}
	return worst
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
