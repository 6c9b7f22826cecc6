package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"
	_ "modernc.org/sqlite"

	"github.com/pdxweather/pdxweather/internal/api"
	"github.com/pdxweather/pdxweather/internal/histogram"
	"github.com/pdxweather/pdxweather/internal/ingest"
	"github.com/pdxweather/pdxweather/internal/models"
	"github.com/pdxweather/pdxweather/internal/store"
)

type cli struct {
	Env kongdotenv.ENVFileConfig `kong:"optional,name=env-file,help='Load environment from a .env file.'"`

	DB       string `kong:"default='data/pdxweather.db',help='Path to the SQLite database.'"`
	Timezone string `kong:"default='America/Los_Angeles',help='Local timezone for calendar-day bookkeeping.'"`

	Serve    serveCmd    `kong:"cmd,help='Run the ingestion scheduler and HTTP API.'"`
	Ingest   ingestCmd   `kong:"cmd,help='Run one ingestion cycle and exit.'"`
	Backfill backfillCmd `kong:"cmd,help='Replay all histograms from the epoch.'"`
	Stats    statsCmd    `kong:"cmd,help='Print one histogram to stdout.'"`
}

type app struct {
	store   *store.Store
	engine  *histogram.Engine
	sources map[models.Source]models.SourceConfig
	loc     *time.Location
}

func (c *cli) build() (*app, func(), error) {
	db, err := sql.Open("sqlite", c.DB)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	store.EnablePragmas(db)

	st := store.New(db)
	if err := st.Migrate(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}

	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		log.Printf("warning: could not load timezone %s, using UTC: %v", c.Timezone, err)
		loc = time.UTC
	}

	sources := models.DefaultSources()
	engine := histogram.New(st, sources, loc)
	return &app{store: st, engine: engine, sources: sources, loc: loc}, func() { db.Close() }, nil
}

func newScheduler(a *app, owmKey, openaiKey string) *ingest.Scheduler {
	scheduler := ingest.NewScheduler(a.store, a.engine, a.sources, a.loc)

	if owmKey != "" {
		scheduler.SetJSONClient(ingest.NewJSONClient(a.sources[models.SourceAPI], owmKey, a.loc))
	} else {
		log.Println("OWM_API_KEY not set, json source disabled")
	}

	scheduler.SetHTMLClient(ingest.NewHTMLClient(a.sources[models.SourceHTML]))

	if screen, err := ingest.NewScreenClient(a.sources[models.SourceScreen], openaiKey); err != nil {
		log.Printf("screen source disabled: %v", err)
	} else {
		scheduler.SetScreenClient(screen)
	}
	return scheduler
}

type serveCmd struct {
	Port      string `kong:"default='8080',help='HTTP listen port.'"`
	OWMKey    string `kong:"env='OWM_API_KEY',help='API key for the JSON forecast feed.'"`
	OpenAIKey string `kong:"env='OPENAI_API_KEY',help='API key for screenshot OCR.'"`
	NoPoll    bool   `kong:"help='Disable ingestion polling (server only).'"`
}

func (cmd *serveCmd) Run(c *cli) error {
	a, closeDB, err := c.build()
	if err != nil {
		return err
	}
	defer closeDB()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cmd.NoPoll {
		log.Println("polling disabled (--no-poll)")
	} else {
		go newScheduler(a, cmd.OWMKey, cmd.OpenAIKey).Run(ctx)
	}

	log.Printf("starting server on :%s", cmd.Port)
	return api.NewServer(a.engine, a.sources, cmd.Port).Run(ctx)
}

type ingestCmd struct {
	OWMKey    string `kong:"env='OWM_API_KEY',help='API key for the JSON forecast feed.'"`
	OpenAIKey string `kong:"env='OPENAI_API_KEY',help='API key for screenshot OCR.'"`
	Daily     bool   `kong:"help='Also run the daily jobs (actuals + histogram refresh).'"`
}

func (cmd *ingestCmd) Run(c *cli) error {
	a, closeDB, err := c.build()
	if err != nil {
		return err
	}
	defer closeDB()

	scheduler := newScheduler(a, cmd.OWMKey, cmd.OpenAIKey)
	scheduler.IngestForecasts(context.Background())
	if cmd.Daily {
		scheduler.RunDailyJobs(context.Background())
	}
	log.Println("done")
	return nil
}

type backfillCmd struct{}

func (cmd *backfillCmd) Run(c *cli) error {
	a, closeDB, err := c.build()
	if err != nil {
		return err
	}
	defer closeDB()

	log.Println("replaying all histograms from epoch")
	if err := a.engine.PopulateAll(models.LocationPDX); err != nil {
		return err
	}
	log.Println("done")
	return nil
}

type statsCmd struct {
	Source string `kong:"arg,help='Forecast source (api, html, screen).'"`
	Type   string `kong:"arg,help='Measurement type (max or min).'"`
	Day    int    `kong:"arg,help='Lead time in days.'"`
}

// Run prints a histogram as an ASCII bar chart, a troubleshooting aid for
// studying one source's error distribution.
func (cmd *statsCmd) Run(c *cli) error {
	a, closeDB, err := c.build()
	if err != nil {
		return err
	}
	defer closeDB()

	key := models.HistogramKey{
		Source:       models.Source(cmd.Source),
		Location:     models.LocationPDX,
		MType:        models.MeasurementType(cmd.Type),
		DayInAdvance: cmd.Day,
	}
	histo, err := a.store.GetHistogram(key)
	if err != nil {
		return err
	}
	if histo == nil {
		fmt.Println("no such histogram")
		return nil
	}
	bins, err := a.store.GetBins(histo.ID)
	if err != nil {
		return err
	}

	mean, stdev := histogram.BinStatistics(bins)
	count := 0
	for _, b := range bins {
		count += b.Quantity
	}
	fmt.Printf("==== Histogram for %d ====\n", cmd.Day)
	fmt.Print(renderHistogram(bins))
	fmt.Printf("\nCount: %d, Mean: %.3f, SD: %.3f\n", count, mean, stdev)
	return nil
}

// renderHistogram draws one row per integer error across the full observed
// range, blank bars included, so gaps in the distribution stay visible.
// Bins must be ordered by error value ascending.
func renderHistogram(bins []models.ErrorBin) string {
	if len(bins) == 0 {
		return ""
	}
	counts := make(map[int]int, len(bins))
	for _, b := range bins {
		counts[b.Error] = b.Quantity
	}
	var sb strings.Builder
	for e := bins[0].Error; e <= bins[len(bins)-1].Error; e++ {
		fmt.Fprintf(&sb, "%d: %s\n", e, strings.Repeat("*", counts[e]))
	}
	return sb.String()
}

func main() {
	var c cli
	ctx := kong.Parse(&c,
		kong.Name("pdxweather"),
		kong.Description("Multi-source temperature forecast tracker with calibrated confidence bands."),
		kong.UsageOnError(),
	)
	if err := ctx.Run(&c); err != nil {
		log.Fatal(err)
	}
}
