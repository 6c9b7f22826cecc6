package ingest

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"io"
	"net/http"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/tidwall/gjson"
	"golang.org/x/image/draw"

	"github.com/pdxweather/pdxweather/internal/models"
)

// ScreenClient reads a broadcast forecast screenshot. The temperature strip
// is cropped out using the source's pixel geometry, upscaled for legibility,
// and handed to a vision model that returns the per-day highs and lows as
// JSON.
type ScreenClient struct {
	cfg    models.SourceConfig
	ai     openai.Client
	model  string
	client *http.Client
}

func NewScreenClient(cfg models.SourceConfig, apiKey string) (*ScreenClient, error) {
	if apiKey == "" {
		return nil, errors.New("screen OCR requires an OpenAI API key")
	}
	if cfg.Crop == nil {
		return nil, fmt.Errorf("source %q has no crop geometry", cfg.Source)
	}
	return &ScreenClient{
		cfg:    cfg,
		ai:     openai.NewClient(option.WithAPIKey(apiKey)),
		model:  "gpt-4o-mini",
		client: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (c *ScreenClient) Fetch(ctx context.Context, predictDate time.Time) (NormalizedForecast, error) {
	resp, err := c.client.Get(c.cfg.URL)
	if err != nil {
		return NormalizedForecast{}, fmt.Errorf("fetch screenshot: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return NormalizedForecast{}, fmt.Errorf("fetch screenshot: status %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return NormalizedForecast{}, fmt.Errorf("read screenshot: %w", err)
	}
	return c.Normalize(ctx, raw, predictDate)
}

// Normalize crops the temperature strip, runs OCR, and retimes the columns
// to lead days starting at 0.
func (c *ScreenClient) Normalize(ctx context.Context, raw []byte, predictDate time.Time) (NormalizedForecast, error) {
	strip, err := c.cropStrip(raw)
	if err != nil {
		return NormalizedForecast{}, err
	}

	days, err := c.readTemps(ctx, strip)
	if err != nil {
		return NormalizedForecast{}, err
	}

	return NormalizedForecast{
		Source:      c.cfg.Source,
		PredictDate: predictDate,
		Days:        days,
	}, nil
}

// cropStrip cuts the high/low temperature band out of the screenshot and
// doubles its size, which measurably improves OCR on the small broadcast
// digits.
func (c *ScreenClient) cropStrip(raw []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode screenshot: %w", err)
	}

	g := c.cfg.Crop
	x0 := g.XStart - g.WinW/2
	x1 := g.XStart + int(g.XPitch*float64(c.cfg.Horizon-1)) + g.WinW/2
	y0 := g.MaxLocY - g.WinH/2
	y1 := g.MinLocY + g.WinH/2
	rect := image.Rect(x0, y0, x1, y1).Intersect(img.Bounds())
	if rect.Empty() {
		return nil, fmt.Errorf("crop window %v outside image bounds %v", rect, img.Bounds())
	}

	scaled := image.NewRGBA(image.Rect(0, 0, rect.Dx()*2, rect.Dy()*2))
	draw.CatmullRom.Scale(scaled, scaled.Bounds(), img, rect, draw.Over, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, scaled); err != nil {
		return nil, fmt.Errorf("encode crop: %w", err)
	}
	return buf.Bytes(), nil
}

const ocrPrompt = `The image is a strip from a TV weather graphic showing a row of daily high
temperatures above a row of daily low temperatures, one column per day, in
degrees Fahrenheit. Reply with only a JSON array, one element per column in
left-to-right order: [{"high": H, "low": L}, ...]. Use null for any number
you cannot read.`

func (c *ScreenClient) readTemps(ctx context.Context, strip []byte) (map[int]TempRange, error) {
	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(strip)

	resp, err := c.ai.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(ocrPrompt),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: dataURL}),
			}),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("ocr request: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("ocr request: empty response")
	}

	return parseOCRReply(resp.Choices[0].Message.Content, c.cfg.Horizon)
}

// parseOCRReply extracts the per-column temperature pairs from the model's
// JSON reply. Columns the model could not read are omitted rather than
// guessed.
func parseOCRReply(reply string, horizon int) (map[int]TempRange, error) {
	// models occasionally wrap the array in a code fence
	arr := gjson.Get(reply, "@this")
	if !arr.IsArray() {
		start := bytes.IndexByte([]byte(reply), '[')
		end := bytes.LastIndexByte([]byte(reply), ']')
		if start < 0 || end <= start {
			return nil, fmt.Errorf("ocr reply has no JSON array: %q", reply)
		}
		arr = gjson.Parse(reply[start : end+1])
	}

	days := make(map[int]TempRange)
	lead := 0
	arr.ForEach(func(_, col gjson.Result) bool {
		if lead >= horizon {
			return false
		}
		high := col.Get("high")
		low := col.Get("low")
		if high.Exists() && low.Exists() && high.Type != gjson.Null && low.Type != gjson.Null {
			days[lead] = TempRange{Max: int(high.Int()), Min: int(low.Int())}
		}
		lead++
		return true
	})
	if len(days) == 0 {
		return nil, fmt.Errorf("ocr reply yielded no readable columns: %q", reply)
	}
	return days, nil
}
