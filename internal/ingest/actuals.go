package ingest

import (
	"fmt"
	"io"
	"regexp"
	"strconv"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/pdxweather/pdxweather/internal/models"
)

const (
	nwsFTPHost     = "tgftp.nws.noaa.gov:21"
	pdxClimatePath = "/data/raw/cd/cdus45.kpqr.cli.pdx.txt"
)

// ActualsClient fetches the NWS daily climate report for Portland over FTP
// and extracts yesterday's measured high and low.
type ActualsClient struct {
	host     string
	path     string
	location models.Location
}

func NewActualsClient() *ActualsClient {
	return &ActualsClient{
		host:     nwsFTPHost,
		path:     pdxClimatePath,
		location: models.LocationPDX,
	}
}

var (
	climateMaxRE = regexp.MustCompile(`MAXIMUM\s+(-?\d+)`)
	climateMinRE = regexp.MustCompile(`MINIMUM\s+(-?\d+)`)
)

// Fetch retrieves the climate report issued on reportDate and returns the
// measurement for the previous calendar day.
func (c *ActualsClient) Fetch(reportDate time.Time) (Actual, error) {
	conn, err := ftp.Dial(c.host, ftp.DialWithTimeout(30*time.Second))
	if err != nil {
		return Actual{}, fmt.Errorf("ftp dial: %w", err)
	}
	defer conn.Quit()

	if err := conn.Login("anonymous", "anonymous"); err != nil {
		return Actual{}, fmt.Errorf("ftp login: %w", err)
	}

	resp, err := conn.Retr(c.path)
	if err != nil {
		return Actual{}, fmt.Errorf("ftp retr %s: %w", c.path, err)
	}
	defer resp.Close()

	body, err := io.ReadAll(resp)
	if err != nil {
		return Actual{}, fmt.Errorf("read climate report: %w", err)
	}

	return c.Parse(body, reportDate)
}

// Parse extracts the measured max/min from a climate report body. The report
// summarizes the day before its issue date.
func (c *ActualsClient) Parse(body []byte, reportDate time.Time) (Actual, error) {
	maxMatch := climateMaxRE.FindSubmatch(body)
	minMatch := climateMinRE.FindSubmatch(body)
	if maxMatch == nil || minMatch == nil {
		return Actual{}, fmt.Errorf("climate report: temperature lines not found")
	}

	maxTemp, err := strconv.Atoi(string(maxMatch[1]))
	if err != nil {
		return Actual{}, fmt.Errorf("parse max %q: %w", maxMatch[1], err)
	}
	minTemp, err := strconv.Atoi(string(minMatch[1]))
	if err != nil {
		return Actual{}, fmt.Errorf("parse min %q: %w", minMatch[1], err)
	}

	return Actual{
		Date:     reportDate.AddDate(0, 0, -1),
		Location: c.location,
		MaxTemp:  maxTemp,
		MinTemp:  minTemp,
	}, nil
}
