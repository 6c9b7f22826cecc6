package models

import "time"

// MeasurementType selects which temperature field of a record a histogram
// tracks.
type MeasurementType string

const (
	MeasurementMax MeasurementType = "max"
	MeasurementMin MeasurementType = "min"
)

// MeasurementTypes lists the valid measurement types in display order.
var MeasurementTypes = []MeasurementType{MeasurementMax, MeasurementMin}

func (m MeasurementType) Valid() bool {
	return m == MeasurementMax || m == MeasurementMin
}

// Source identifies a forecast provider.
type Source string

const (
	SourceAPI    Source = "api"    // JSON forecast feed
	SourceHTML   Source = "html"   // scraped forecast page
	SourceScreen Source = "screen" // OCR-read broadcast screenshot
)

// Location identifies a monitoring station for measured temperatures.
type Location string

const LocationPDX Location = "PDX"

// CropGeometry describes where the temperature strip sits in a source's
// screenshot, in pixels. Column i is centered at XStart + i*XPitch.
type CropGeometry struct {
	XPitch  float64
	XStart  int
	MaxLocY int
	MinLocY int
	WinW    int
	WinH    int
}

// SourceConfig is the per-source configuration. Instances are built once at
// startup and treated as immutable.
type SourceConfig struct {
	Source  Source
	Alias   string // display name shown to clients
	Horizon int    // forecast length in days; day_in_advance < Horizon
	URL     string
	Crop    *CropGeometry // screenshot sources only
}

// DefaultSources returns the source registry.
func DefaultSources() map[Source]SourceConfig {
	return map[Source]SourceConfig{
		SourceAPI: {
			Source:  SourceAPI,
			Alias:   "Service B",
			Horizon: 5,
			URL:     "http://api.openweathermap.org/data/2.5/forecast/city",
		},
		SourceHTML: {
			Source:  SourceHTML,
			Alias:   "Service A",
			Horizon: 7,
			URL:     "http://www.kgw.com/weather",
		},
		SourceScreen: {
			Source:  SourceScreen,
			Alias:   "Service C",
			Horizon: 7,
			URL:     "http://www.katu.com/weather/images/weatherwall.jpg",
			Crop: &CropGeometry{
				XPitch:  86.5,
				XStart:  98,
				MaxLocY: 301,
				MinLocY: 334,
				WinW:    81,
				WinH:    37,
			},
		},
	}
}

// Operating window for record dates. Anything outside is treated as a
// corrupt upstream timestamp and rejected.
var (
	WindowStart = time.Date(2016, 5, 1, 0, 0, 0, 0, time.UTC)
	WindowEnd   = time.Date(2116, 6, 1, 0, 0, 0, 0, time.UTC)

	// Epoch is the system data start, used as the sentinel watermark for
	// histograms with no accumulated bins.
	Epoch = time.Date(2016, 6, 1, 0, 0, 0, 0, time.UTC)
)

// Temperature bounds in degrees Fahrenheit.
const (
	TempFloor   = -99
	TempCeiling = 199
)

// DayRecord is one forecaster's prediction for one calendar day, made
// DayInAdvance days ahead. At most one row exists per
// (date_reference, day_in_advance, source); re-polls of the same horizon
// merge to the most extreme max and min.
type DayRecord struct {
	ID            int64
	DateReference time.Time
	DayInAdvance  int
	Source        Source
	MaxTemp       int
	MinTemp       int
}

// Temp returns the record's max or min temperature per the measurement type.
func (r DayRecord) Temp(mtype MeasurementType) int {
	if mtype == MeasurementMax {
		return r.MaxTemp
	}
	return r.MinTemp
}

// ActualDayRecord is a measured temperature for one calendar day at one
// location. First measurement wins; rows are never mutated.
type ActualDayRecord struct {
	ID       int64
	DateMeas time.Time
	Location Location
	MaxTemp  int
	MinTemp  int
}

// Temp returns the record's max or min temperature per the measurement type.
func (r ActualDayRecord) Temp(mtype MeasurementType) int {
	if mtype == MeasurementMax {
		return r.MaxTemp
	}
	return r.MinTemp
}

// HistogramKey identifies one error histogram.
type HistogramKey struct {
	Source       Source
	Location     Location
	MType        MeasurementType
	DayInAdvance int
}

// ErrorHistogram accumulates signed forecast errors for one histogram key.
// Created lazily, never deleted.
type ErrorHistogram struct {
	ID           int64
	Source       Source
	Location     Location
	MType        MeasurementType
	DayInAdvance int
}

// ErrorBin counts how often one signed error value occurred within a
// histogram. EndDate is the latest measurement date folded into the bin and
// acts as the per-error-value guard against double counting: an observation
// dated at or before EndDate has already been accounted for.
type ErrorBin struct {
	ID          int64
	HistogramID int64
	Error       int
	Quantity    int
	StartDate   time.Time
	EndDate     time.Time
}
