package ingest

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/tidwall/gjson"

	"github.com/pdxweather/pdxweather/internal/models"
)

// JSONClient fetches the 5-day JSON forecast feed. The feed carries
// 3-hourly temperature points in Kelvin stamped with unix validity times;
// the client retimes them to local calendar days and folds each day to its
// max/min.
type JSONClient struct {
	url    string
	apiKey string
	client *http.Client
	loc    *time.Location
}

func NewJSONClient(cfg models.SourceConfig, apiKey string, loc *time.Location) *JSONClient {
	return &JSONClient{
		url:    cfg.URL,
		apiKey: apiKey,
		client: &http.Client{Timeout: 30 * time.Second},
		loc:    loc,
	}
}

func (c *JSONClient) Fetch(predictDate time.Time) (NormalizedForecast, error) {
	url := fmt.Sprintf("%s?APPID=%s", c.url, c.apiKey)

	var body []byte
	operation := func() error {
		resp, err := c.client.Get(url)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("fetch json feed: %w", err))
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("rate limited: status %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			return backoff.Permanent(fmt.Errorf("fetch json feed: status %d: %s", resp.StatusCode, string(b)))
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

// Normalize retimes the feed's 3-hourly points into per-calendar-day max/min
// pairs keyed by lead time. Points landing before the prediction date are
// discarded.
func (c *JSONClient) Normalize(body []byte, predictDate time.Time) (NormalizedForecast, error) {
	list := gjson.GetBytes(body, "list")
	if !list.Exists() {
		return NormalizedForecast{}, fmt.Errorf("json feed: missing list element")
	}

	days := make(map[int]TempRange)
	list.ForEach(func(_, row gjson.Result) bool {
		forecastUnix := row.Get("dt").Int()
		kelvin := row.Get("main.temp").Float()
		lead := daysInAdvance(predictDate, forecastUnix, c.loc)
		if lead < 0 {
			return true
		}
		temp := kelvinToF(kelvin)
		if r, ok := days[lead]; ok {
			if temp > r.Max {
				r.Max = temp
			}
			if temp < r.Min {
				r.Min = temp
			}
			days[lead] = r
		} else {
			days[lead] = TempRange{Max: temp, Min: temp}
		}
		return true
	})

	return NormalizedForecast{
		Source:      models.SourceAPI,
		PredictDate: predictDate,
		Days:        days,
	}, nil
}
