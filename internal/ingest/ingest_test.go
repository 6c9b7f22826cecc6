package ingest

import (
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pdxweather/pdxweather/internal/models"
	"github.com/pdxweather/pdxweather/internal/store"
)

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	st := store.New(db)
	if err := st.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return st
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestDaysInAdvance(t *testing.T) {
	predict := day(2016, 8, 1)
	tests := []struct {
		name string
		unix int64
		want int
	}{
		{"same day early", time.Date(2016, 8, 1, 3, 0, 0, 0, time.UTC).Unix(), 0},
		{"same day late", time.Date(2016, 8, 1, 23, 0, 0, 0, time.UTC).Unix(), 0},
		{"next day", time.Date(2016, 8, 2, 0, 0, 0, 0, time.UTC).Unix(), 1},
		{"four out", time.Date(2016, 8, 5, 12, 0, 0, 0, time.UTC).Unix(), 4},
		{"day before", time.Date(2016, 7, 31, 12, 0, 0, 0, time.UTC).Unix(), -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := daysInAdvance(predict, tt.unix, time.UTC); got != tt.want {
				t.Errorf("daysInAdvance = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestKelvinToF(t *testing.T) {
	tests := []struct {
		kelvin float64
		want   int
	}{
		{305.15, 90},
		{288.15, 59},
		{283.15, 50},
		{273.15, 32},
	}
	for _, tt := range tests {
		if got := kelvinToF(tt.kelvin); got != tt.want {
			t.Errorf("kelvinToF(%v) = %d, want %d", tt.kelvin, got, tt.want)
		}
	}
}

func TestJSONClient_Normalize(t *testing.T) {
	c := NewJSONClient(models.DefaultSources()[models.SourceAPI], "test-key", time.UTC)
	predict := day(2016, 8, 1)

	body := []byte(`{"list": [
		{"dt": 1469966400, "main": {"temp": 300.15}},
		{"dt": 1470020400, "main": {"temp": 305.15}},
		{"dt": 1470063600, "main": {"temp": 288.15}},
		{"dt": 1470139200, "main": {"temp": 283.15}}
	]}`)

	f, err := c.Normalize(body, predict)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if f.Source != models.SourceAPI {
		t.Errorf("Source = %q, want %q", f.Source, models.SourceAPI)
	}
	if !f.PredictDate.Equal(predict) {
		t.Errorf("PredictDate = %v, want %v", f.PredictDate, predict)
	}
	// the point before the prediction date is dropped, so only leads 0 and 1
	if len(f.Days) != 2 {
		t.Fatalf("len(Days) = %d, want 2; got %v", len(f.Days), f.Days)
	}
	if f.Days[0] != (TempRange{Max: 90, Min: 59}) {
		t.Errorf("day 0 = %+v, want {Max:90 Min:59}", f.Days[0])
	}
	if f.Days[1] != (TempRange{Max: 50, Min: 50}) {
		t.Errorf("day 1 = %+v, want {Max:50 Min:50}", f.Days[1])
	}
}

func TestJSONClient_Normalize_MissingList(t *testing.T) {
	c := NewJSONClient(models.DefaultSources()[models.SourceAPI], "test-key", time.UTC)
	if _, err := c.Normalize([]byte(`{"cod": "404"}`), day(2016, 8, 1)); err == nil {
		t.Fatal("expected error for payload without list element")
	}
}

func TestHTMLClient_Normalize(t *testing.T) {
	c := NewHTMLClient(models.DefaultSources()[models.SourceHTML])
	predict := day(2016, 8, 1)

	body := []byte(`<html><body>
		<div class="day"><span>MON</span><p>83° / 55°</p></div>
		<div class="day"><span>TUE</span><p>79° / 52°</p></div>
		<div class="day"><span>WED</span><p>-2° / -10°</p></div>
	</body></html>`)

	f, err := c.Normalize(body, predict)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if f.Source != models.SourceHTML {
		t.Errorf("Source = %q, want %q", f.Source, models.SourceHTML)
	}
	if len(f.Days) != 3 {
		t.Fatalf("len(Days) = %d, want 3; got %v", len(f.Days), f.Days)
	}
	if f.Days[0] != (TempRange{Max: 83, Min: 55}) {
		t.Errorf("day 0 = %+v, want {Max:83 Min:55}", f.Days[0])
	}
	if f.Days[2] != (TempRange{Max: -2, Min: -10}) {
		t.Errorf("day 2 = %+v, want {Max:-2 Min:-10}", f.Days[2])
	}
}

func TestHTMLClient_Normalize_NoPairs(t *testing.T) {
	c := NewHTMLClient(models.DefaultSources()[models.SourceHTML])
	if _, err := c.Normalize([]byte(`<html><body>maintenance</body></html>`), day(2016, 8, 1)); err == nil {
		t.Fatal("expected error for page without temperature pairs")
	}
}

func TestParseOCRReply(t *testing.T) {
	days, err := parseOCRReply(`[{"high": 83, "low": 55}, {"high": 79, "low": 52}]`, 7)
	if err != nil {
		t.Fatalf("parseOCRReply: %v", err)
	}
	if len(days) != 2 {
		t.Fatalf("len(days) = %d, want 2", len(days))
	}
	if days[0] != (TempRange{Max: 83, Min: 55}) || days[1] != (TempRange{Max: 79, Min: 52}) {
		t.Errorf("days = %v", days)
	}
}

func TestParseOCRReply_CodeFence(t *testing.T) {
	reply := "```json\n[{\"high\": 83, \"low\": 55}]\n```"
	days, err := parseOCRReply(reply, 7)
	if err != nil {
		t.Fatalf("parseOCRReply: %v", err)
	}
	if days[0] != (TempRange{Max: 83, Min: 55}) {
		t.Errorf("days = %v", days)
	}
}

func TestParseOCRReply_UnreadableColumns(t *testing.T) {
	days, err := parseOCRReply(`[{"high": 83, "low": 55}, {"high": null, "low": 52}, {"high": 75, "low": 50}]`, 7)
	if err != nil {
		t.Fatalf("parseOCRReply: %v", err)
	}
	if _, ok := days[1]; ok {
		t.Error("column with null reading should be omitted")
	}
	if days[2] != (TempRange{Max: 75, Min: 50}) {
		t.Errorf("day 2 = %+v, want {Max:75 Min:50}", days[2])
	}

	if _, err := parseOCRReply(`[{"high": null, "low": null}]`, 7); err == nil {
		t.Error("expected error when no column is readable")
	}
	if _, err := parseOCRReply(`cannot read the image`, 7); err == nil {
		t.Error("expected error when the reply has no JSON array")
	}
}

func TestParseOCRReply_HorizonClamp(t *testing.T) {
	days, err := parseOCRReply(`[{"high": 1, "low": 0}, {"high": 2, "low": 0}, {"high": 3, "low": 0}]`, 2)
	if err != nil {
		t.Fatalf("parseOCRReply: %v", err)
	}
	if len(days) != 2 {
		t.Errorf("len(days) = %d, want 2 (columns past the horizon dropped)", len(days))
	}
}

func TestActualsClient_Parse(t *testing.T) {
	c := NewActualsClient()
	body := []byte(`
CLIMATE REPORT
NATIONAL WEATHER SERVICE PORTLAND OR

TEMPERATURE (F)
 YESTERDAY
  MAXIMUM         83    311 PM  108    1981  84     -1       66
  MINIMUM         58    449 AM   51    1964  57      1       52
`)

	a, err := c.Parse(body, day(2016, 8, 2))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !a.Date.Equal(day(2016, 8, 1)) {
		t.Errorf("Date = %v, want 2016-08-01 (day before the report)", a.Date)
	}
	if a.Location != models.LocationPDX {
		t.Errorf("Location = %q, want %q", a.Location, models.LocationPDX)
	}
	if a.MaxTemp != 83 || a.MinTemp != 58 {
		t.Errorf("temps = (%d, %d), want (83, 58)", a.MaxTemp, a.MinTemp)
	}
}

func TestActualsClient_Parse_MissingLines(t *testing.T) {
	c := NewActualsClient()
	if _, err := c.Parse([]byte("TEMPERATURE (F)\n MAXIMUM 83\n"), day(2016, 8, 2)); err == nil {
		t.Fatal("expected error when the minimum line is absent")
	}
}

func TestQualifyForecast(t *testing.T) {
	sources := models.DefaultSources()
	ok := NormalizedForecast{Source: models.SourceAPI, PredictDate: day(2016, 8, 1)}

	if verr := QualifyForecast(ok, 2, 83, 55, sources); verr != nil {
		t.Errorf("valid point rejected: %v", verr)
	}

	tests := []struct {
		name  string
		f     NormalizedForecast
		lead  int
		max   int
		min   int
		field string
	}{
		{"before window", NormalizedForecast{Source: models.SourceAPI, PredictDate: day(2016, 4, 30)}, 2, 83, 55, "date"},
		{"window start excluded", NormalizedForecast{Source: models.SourceAPI, PredictDate: day(2016, 5, 1)}, 2, 83, 55, "date"},
		{"unknown source", NormalizedForecast{Source: "carrier-pigeon", PredictDate: day(2016, 8, 1)}, 2, 83, 55, "source"},
		{"negative lead", ok, -1, 83, 55, "day_in_advance"},
		{"lead at horizon", ok, 5, 83, 55, "day_in_advance"},
		{"max too high", ok, 2, 200, 55, "max_temp"},
		{"min too low", ok, 2, 83, -100, "min_temp"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verr := QualifyForecast(tt.f, tt.lead, tt.max, tt.min, sources)
			if verr == nil {
				t.Fatal("expected rejection")
			}
			if verr.Field != tt.field {
				t.Errorf("Field = %q, want %q", verr.Field, tt.field)
			}
		})
	}
}

func TestQualifyActual(t *testing.T) {
	if verr := QualifyActual(Actual{Date: day(2016, 8, 1), Location: models.LocationPDX, MaxTemp: 83, MinTemp: 55}); verr != nil {
		t.Errorf("valid record rejected: %v", verr)
	}
	if verr := QualifyActual(Actual{Date: day(2016, 8, 1), Location: "XXX", MaxTemp: 83, MinTemp: 55}); verr == nil || verr.Field != "location" {
		t.Errorf("verr = %v, want location rejection", verr)
	}
	if verr := QualifyActual(Actual{Date: day(2016, 8, 1), Location: models.LocationPDX, MaxTemp: 250, MinTemp: 55}); verr == nil || verr.Field != "max_temp" {
		t.Errorf("verr = %v, want max_temp rejection", verr)
	}
}

func TestStoreForecast_SkipsInvalidPoints(t *testing.T) {
	st := setupTestStore(t)
	f := NormalizedForecast{
		Source:      models.SourceAPI,
		PredictDate: day(2016, 8, 1),
		Days: map[int]TempRange{
			0: {Max: 83, Min: 55},
			1: {Max: 250, Min: 55}, // out of bounds, dropped
			2: {Max: 79, Min: 52},
		},
	}

	if err := StoreForecast(st, f, models.DefaultSources()); err != nil {
		t.Fatalf("StoreForecast: %v", err)
	}

	rec, err := st.GetForecast(day(2016, 8, 1), 0, models.SourceAPI)
	if err != nil {
		t.Fatalf("GetForecast: %v", err)
	}
	if rec == nil || rec.MaxTemp != 83 {
		t.Errorf("day 0 record = %+v, want MaxTemp 83", rec)
	}

	rec, err = st.GetForecast(day(2016, 8, 2), 1, models.SourceAPI)
	if err != nil {
		t.Fatalf("GetForecast: %v", err)
	}
	if rec != nil {
		t.Errorf("invalid point was stored: %+v", rec)
	}

	rec, err = st.GetForecast(day(2016, 8, 3), 2, models.SourceAPI)
	if err != nil {
		t.Fatalf("GetForecast: %v", err)
	}
	if rec == nil || rec.MaxTemp != 79 {
		t.Errorf("day 2 record = %+v, want MaxTemp 79", rec)
	}
}

func TestStoreActual(t *testing.T) {
	st := setupTestStore(t)

	if err := StoreActual(st, Actual{Date: day(2016, 8, 1), Location: models.LocationPDX, MaxTemp: 83, MinTemp: 55}); err != nil {
		t.Fatalf("StoreActual: %v", err)
	}
	// second write for the same day is ignored
	if err := StoreActual(st, Actual{Date: day(2016, 8, 1), Location: models.LocationPDX, MaxTemp: 70, MinTemp: 40}); err != nil {
		t.Fatalf("StoreActual: %v", err)
	}

	rec, err := st.GetActual(day(2016, 8, 1), models.LocationPDX)
	if err != nil {
		t.Fatalf("GetActual: %v", err)
	}
	if rec == nil || rec.MaxTemp != 83 || rec.MinTemp != 55 {
		t.Errorf("record = %+v, want first write (83, 55)", rec)
	}

	// invalid record is dropped without error
	if err := StoreActual(st, Actual{Date: day(2016, 8, 2), Location: models.LocationPDX, MaxTemp: 300, MinTemp: 55}); err != nil {
		t.Fatalf("StoreActual: %v", err)
	}
	rec, err = st.GetActual(day(2016, 8, 2), models.LocationPDX)
	if err != nil {
		t.Fatalf("GetActual: %v", err)
	}
	if rec != nil {
		t.Errorf("invalid record was stored: %+v", rec)
	}
}
