package ingest

import (
	"context"
	"log"
	"time"

	"github.com/pdxweather/pdxweather/internal/histogram"
	"github.com/pdxweather/pdxweather/internal/metrics"
	"github.com/pdxweather/pdxweather/internal/models"
	"github.com/pdxweather/pdxweather/internal/store"
)

// Scheduler drives the ingestion cadence: forecast sources every few hours
// (intra-day re-polls merge into the same records), the climate report and
// the histogram refresh once per day. Every failure is logged and the loop
// continues; a bad source never blocks the others.
type Scheduler struct {
	store      *store.Store
	engine     *histogram.Engine
	sources    map[models.Source]models.SourceConfig
	jsonClient *JSONClient
	htmlClient *HTMLClient
	screen     *ScreenClient
	actuals    *ActualsClient
	loc        *time.Location
	fcInterval time.Duration

	lastDaily time.Time
}

func NewScheduler(st *store.Store, engine *histogram.Engine, sources map[models.Source]models.SourceConfig, loc *time.Location) *Scheduler {
	return &Scheduler{
		store:      st,
		engine:     engine,
		sources:    sources,
		actuals:    NewActualsClient(),
		loc:        loc,
		fcInterval: 6 * time.Hour,
	}
}

func (s *Scheduler) SetJSONClient(c *JSONClient) { s.jsonClient = c }
func (s *Scheduler) SetHTMLClient(c *HTMLClient) { s.htmlClient = c }
func (s *Scheduler) SetScreenClient(c *ScreenClient) { s.screen = c }

func (s *Scheduler) Run(ctx context.Context) {
	s.IngestForecasts(ctx)
	s.runDailyJobsIfNeeded(ctx)

	fcTicker := time.NewTicker(s.fcInterval)
	dailyTicker := time.NewTicker(1 * time.Hour)
	defer fcTicker.Stop()
	defer dailyTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("scheduler: shutting down")
			return
		case <-fcTicker.C:
			s.IngestForecasts(ctx)
		case <-dailyTicker.C:
			s.runDailyJobsIfNeeded(ctx)
		}
	}
}

func (s *Scheduler) today() time.Time {
	now := time.Now().In(s.loc)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// IngestForecasts polls every configured forecast source once.
func (s *Scheduler) IngestForecasts(ctx context.Context) {
	predictDate := s.today()

	if s.jsonClient != nil {
		s.ingestOne(models.SourceAPI, func() (NormalizedForecast, error) {
			return s.jsonClient.Fetch(predictDate)
		})
	}
	if s.htmlClient != nil {
		s.ingestOne(models.SourceHTML, func() (NormalizedForecast, error) {
			return s.htmlClient.Fetch(predictDate)
		})
	}
	if s.screen != nil {
		s.ingestOne(models.SourceScreen, func() (NormalizedForecast, error) {
			return s.screen.Fetch(ctx, predictDate)
		})
	}
}

func (s *Scheduler) ingestOne(source models.Source, fetch func() (NormalizedForecast, error)) {
	log.Printf("scheduler: ingesting %s forecast", source)
	started := time.Now()
	fc, err := fetch()
	metrics.FetchLatency.WithLabelValues(string(source)).Observe(time.Since(started).Seconds())
	if err != nil {
		log.Printf("scheduler: %s fetch failed: %v", source, err)
		return
	}
	if err := StoreForecast(s.store, fc, s.sources); err != nil {
		log.Printf("scheduler: %s store failed: %v", source, err)
	}
}

// runDailyJobsIfNeeded fires the daily jobs once per local day, in the early
// morning after the climate report for yesterday is published.
func (s *Scheduler) runDailyJobsIfNeeded(ctx context.Context) {
	now := time.Now().In(s.loc)
	if now.Hour() < 6 {
		return
	}
	today := s.today()
	if s.lastDaily.Equal(today) {
		return
	}
	s.lastDaily = today
	s.RunDailyJobs(ctx)
}

// RunDailyJobs ingests yesterday's measured temperatures and refreshes every
// histogram against the record store.
func (s *Scheduler) RunDailyJobs(ctx context.Context) {
	log.Println("scheduler: running daily jobs")

	act, err := s.actuals.Fetch(s.today())
	if err != nil {
		log.Printf("scheduler: climate report fetch failed: %v", err)
	} else if err := StoreActual(s.store, act); err != nil {
		log.Printf("scheduler: actual store failed: %v", err)
	}

	if err := s.engine.RefreshAll(models.LocationPDX); err != nil {
		log.Printf("scheduler: histogram refresh failed: %v", err)
	}
}
