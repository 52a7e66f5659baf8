// Package weather scores insured assets against live weather conditions
// using the Tomorrow.io realtime API.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/riskfoundry/kestrel/internal/domain"
)

// Observation holds the weather fields the risk score consumes.
type Observation struct {
	FireIndex     float64 `json:"fireIndex"`
	WindSpeed     float64 `json:"windSpeed"`
	Temperature   float64 `json:"temperature"`
	Humidity      float64 `json:"humidity"`
	Precipitation float64 `json:"precipitation"`
}

// defaultObservation is served when the API is unreachable or no key is
// configured, so assessments degrade to a mild baseline instead of failing.
func defaultObservation() Observation {
	return Observation{
		FireIndex:     1.0,
		WindSpeed:     5.0,
		Temperature:   20.0,
		Humidity:      50.0,
		Precipitation: 0.0,
	}
}

// Client fetches realtime observations from Tomorrow.io.
type Client struct {
	cfg    domain.WeatherConfig
	client *http.Client
	logger *slog.Logger
}

// NewClient creates a weather client. An empty APIKey is allowed; Fetch
// then always returns the default observation.
func NewClient(cfg domain.WeatherConfig, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.tomorrow.io/v4"
	}
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

// realtimeResponse mirrors the subset of the Tomorrow.io realtime payload
// we consume: {"data": {"values": {...}}}.
type realtimeResponse struct {
	Data struct {
		Values struct {
			FireIndex              float64 `json:"fireIndex"`
			WindSpeed              float64 `json:"windSpeed"`
			Temperature            float64 `json:"temperature"`
			Humidity               float64 `json:"humidity"`
			PrecipitationIntensity float64 `json:"precipitationIntensity"`
		} `json:"values"`
	} `json:"data"`
}

// Fetch retrieves the realtime observation for a coordinate. Any failure
// (no API key, transport error, non-2xx, bad payload) falls back to the
// default observation so a flaky weather feed never breaks an assessment.
func (c *Client) Fetch(ctx context.Context, lat, lon float64) Observation {
	if c.cfg.APIKey == "" {
		return defaultObservation()
	}

	obs, err := c.fetch(ctx, lat, lon)
	if err != nil {
		c.logger.Warn("weather fetch failed, using default observation",
			"lat", lat, "lon", lon, "error", err)
		return defaultObservation()
	}
	return obs
}

func (c *Client) fetch(ctx context.Context, lat, lon float64) (Observation, error) {
	q := url.Values{}
	q.Set("location", fmt.Sprintf("%g,%g", lat, lon))
	q.Set("apikey", c.cfg.APIKey)
	q.Set("fields", "fireIndex,windSpeed,temperature,humidity,precipitationIntensity")

	endpoint := c.cfg.BaseURL + "/weather/realtime?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Observation{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return Observation{}, err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Observation{}, fmt.Errorf("weather api returned status %d", resp.StatusCode)
	}

	var payload realtimeResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Observation{}, fmt.Errorf("failed to decode weather response: %w", err)
	}

	v := payload.Data.Values
	return Observation{
		FireIndex:     v.FireIndex,
		WindSpeed:     v.WindSpeed,
		Temperature:   v.Temperature,
		Humidity:      v.Humidity,
		Precipitation: v.PrecipitationIntensity,
	}, nil
}
