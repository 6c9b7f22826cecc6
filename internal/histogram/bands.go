package histogram

import (
	"fmt"
	"time"

	"github.com/pdxweather/pdxweather/internal/models"
)

// Normal-distribution quantile multipliers for the 90% and 50% central
// intervals.
const (
	z90 = 1.96
	z50 = 0.674
)

// Band is one day's calibrated forecast: the provider's raw number plus
// percentile bounds derived from that provider's error history. The field
// names are a contract with consumers and must not change.
type Band struct {
	Date      string  `json:"date"`
	SourceRaw int     `json:"source_raw"`
	Pct05     float64 `json:"pct05"`
	Pct25     float64 `json:"pct25"`
	Pct50     float64 `json:"pct50"`
	Pct75     float64 `json:"pct75"`
	Pct95     float64 `json:"pct95"`
}

// BuildBands decorates a raw lead-time forecast with percentile bands. The
// center is the bias-corrected forecast (raw minus mean historical error);
// the 5/95 and 25/75 bounds assume normally distributed errors. Lead times
// absent from raw are skipped. Bands are returned in lead-time order
// starting at startDate.
func BuildBands(raw map[int]int, means, stdevs map[int]float64, startDate time.Time, horizon int) []Band {
	var bands []Band
	for day := 0; day < horizon; day++ {
		temp, ok := raw[day]
		if !ok {
			continue
		}
		center := float64(temp) - means[day]
		bands = append(bands, Band{
			Date:      startDate.AddDate(0, 0, day).Format("2006-01-02"),
			SourceRaw: temp,
			Pct05:     center - z90*stdevs[day],
			Pct25:     center - z50*stdevs[day],
			Pct50:     center,
			Pct75:     center + z50*stdevs[day],
			Pct95:     center + z90*stdevs[day],
		})
	}
	return bands
}

// ForecastBands is the read path used for display: refresh statistics for
// the source, fetch its current raw forecast, and combine the two.
func (e *Engine) ForecastBands(source models.Source, location models.Location, mtype models.MeasurementType) ([]Band, error) {
	cfg, ok := e.sources[source]
	if !ok {
		return nil, fmt.Errorf("unknown source %q", source)
	}

	raw, err := e.CurrentForecast(source, mtype)
	if err != nil {
		return nil, fmt.Errorf("current forecast: %w", err)
	}
	means, stdevs, err := e.Statistics(source, location, mtype)
	if err != nil {
		return nil, fmt.Errorf("statistics: %w", err)
	}
	return BuildBands(raw, means, stdevs, e.today(), cfg.Horizon), nil
}
