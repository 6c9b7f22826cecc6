package ingest

import (
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/k3a/html2text"

	"github.com/pdxweather/pdxweather/internal/models"
)

// HTMLClient scrapes the daily-forecast section of the TV station's weather
// page. The page renders one column per day with a high and low reading;
// after reduction to text these appear as repeated "<high>° ... <low>°"
// pairs in day order starting today.
type HTMLClient struct {
	url     string
	horizon int
	client  *http.Client
}

func NewHTMLClient(cfg models.SourceConfig) *HTMLClient {
	return &HTMLClient{
		url:     cfg.URL,
		horizon: cfg.Horizon,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

var tempPairRE = regexp.MustCompile(`(-?\d{1,3})°\s*/\s*(-?\d{1,3})°`)

func (c *HTMLClient) Fetch(predictDate time.Time) (NormalizedForecast, error) {
	var body []byte
	operation := func() error {
		resp, err := c.client.Get(c.url)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("fetch forecast page: %w", err))
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("fetch forecast page: status %d", resp.StatusCode))
		}
		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("read body: %w", err))
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 2 * time.Minute
	if err := backoff.Retry(operation, bo); err != nil {
		return NormalizedForecast{}, err
	}

	return c.Normalize(body, predictDate)
}

// Normalize extracts per-day high/low pairs from the page, in column order
// starting at lead time 0.
func (c *HTMLClient) Normalize(body []byte, predictDate time.Time) (NormalizedForecast, error) {
	text := html2text.HTML2Text(string(body))

	matches := tempPairRE.FindAllStringSubmatch(text, c.horizon)
	if len(matches) == 0 {
		return NormalizedForecast{}, fmt.Errorf("forecast page: no temperature pairs found")
	}

	days := make(map[int]TempRange)
	for lead, m := range matches {
		high, err := strconv.Atoi(m[1])
		if err != nil {
			return NormalizedForecast{}, fmt.Errorf("parse high %q: %w", m[1], err)
		}
		low, err := strconv.Atoi(m[2])
		if err != nil {
			return NormalizedForecast{}, fmt.Errorf("parse low %q: %w", m[2], err)
		}
		days[lead] = TempRange{Max: high, Min: low}
	}

	return NormalizedForecast{
		Source:      models.SourceHTML,
		PredictDate: predictDate,
		Days:        days,
	}, nil
}
