// Package openmeteo fetches and decodes hourly/daily observation documents
// from the Open-Meteo API.
package openmeteo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	sharedretry "github.com/couchcryptid/storm-data-shared/retry"
	"github.com/sony/gobreaker"

	"github.com/couchcryptid/weather-rollup-etl/internal/domain"
	"github.com/couchcryptid/weather-rollup-etl/internal/observability"
)

const maxBodyBytes = 32 << 20

// Hourly and daily variables requested from the API.
var (
	hourlyVariables = []string{
		"temperature_2m", "relative_humidity_2m", "dew_point_2m", "apparent_temperature",
		"temperature_80m", "temperature_120m", "wind_speed_10m", "wind_speed_80m",
		"wind_direction_10m", "wind_direction_80m", "visibility", "evapotranspiration",
		"soil_temperature_0cm", "soil_temperature_6cm", "rain", "showers", "snowfall",
	}
	dailyVariables = []string{"sunrise", "sunset"}
)

var (
	errRateLimited = errors.New("rate limited")
	errServerError = errors.New("server error")
	errRejected    = errors.New("request rejected")
	errCircuitOpen = errors.New("circuit breaker open")
)

// BackoffConfig controls exponential backoff between attempts.
type BackoffConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Request selects a location and an inclusive date range.
type Request struct {
	Latitude  float64
	Longitude float64
	StartDate time.Time
	EndDate   time.Time
}

func (r Request) validate() error {
	if r.Latitude < -90 || r.Latitude > 90 {
		return fmt.Errorf("latitude out of range: %v", r.Latitude)
	}
	if r.Longitude < -180 || r.Longitude > 180 {
		return fmt.Errorf("longitude out of range: %v", r.Longitude)
	}
	if r.EndDate.Before(r.StartDate) {
		return fmt.Errorf("end date %s is before start date %s",
			r.EndDate.Format(domain.DateLayout), r.StartDate.Format(domain.DateLayout))
	}
	return nil
}

// Client calls the forecast endpoint with retries and a circuit breaker.
type Client struct {
	baseURL string
	http    *http.Client
	backoff BackoffConfig
	circuit *gobreaker.CircuitBreaker
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewClient creates a Client for baseURL (the full endpoint URL).
func NewClient(baseURL string, timeout time.Duration, retries int, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		backoff: BackoffConfig{
			MaxRetries:      retries,
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     5 * time.Second,
		},
		circuit: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "openmeteo",
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     time.Minute,
		}),
		logger:  logger,
		metrics: metrics,
	}
}

// Fetch downloads and decodes the document for req.
func (c *Client) Fetch(ctx context.Context, req Request) (domain.RawSeriesResponse, error) {
	if err := req.validate(); err != nil {
		return domain.RawSeriesResponse{}, err
	}

	u := c.buildURL(req)
	start := time.Now()
	body, err := c.doWithResilience(ctx, u)
	c.metrics.SourceAPIDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		outcome := "error"
		if errors.Is(err, errCircuitOpen) {
			outcome = "rejected"
		}
		c.metrics.SourceRequests.WithLabelValues(outcome).Inc()
		return domain.RawSeriesResponse{}, fmt.Errorf("fetch open-meteo: %w", err)
	}
	c.metrics.SourceRequests.WithLabelValues("success").Inc()

	resp, err := Decode(body)
	if err != nil {
		return domain.RawSeriesResponse{}, err
	}
	c.logger.Debug("open-meteo document fetched",
		"latitude", req.Latitude,
		"longitude", req.Longitude,
		"hours", len(resp.Hourly.Time),
		"days", len(resp.Daily.Time),
	)
	return resp, nil
}

func (c *Client) buildURL(req Request) string {
	v := url.Values{}
	v.Set("latitude", strconv.FormatFloat(req.Latitude, 'f', -1, 64))
	v.Set("longitude", strconv.FormatFloat(req.Longitude, 'f', -1, 64))
	v.Set("start_date", req.StartDate.Format(domain.DateLayout))
	v.Set("end_date", req.EndDate.Format(domain.DateLayout))
	v.Set("hourly", strings.Join(hourlyVariables, ","))
	v.Set("daily", strings.Join(dailyVariables, ","))
	v.Set("temperature_unit", "fahrenheit")
	v.Set("wind_speed_unit", "kn")
	v.Set("precipitation_unit", "inch")
	v.Set("timeformat", "unixtime")
	v.Set("timezone", "GMT")
	return c.baseURL + "?" + v.Encode()
}

// doWithResilience performs GET u with retries, exponential backoff and the
// circuit breaker. Client errors other than 429 are not retried.
func (c *Client) doWithResilience(ctx context.Context, u string) ([]byte, error) {
	delay := c.backoff.InitialInterval
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result, err := c.circuit.Execute(func() (interface{}, error) {
			return c.get(ctx, u)
		})
		if err == nil {
			body, ok := result.([]byte)
			if !ok {
				return nil, errors.New("unexpected result type from circuit breaker")
			}
			return body, nil
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", errCircuitOpen, err)
		}
		if errors.Is(err, errRejected) || ctx.Err() != nil || attempt >= c.backoff.MaxRetries {
			return nil, err
		}

		c.logger.Warn("open-meteo request failed, retrying", "error", err, "attempt", attempt+1, "delay", delay)
		if !sharedretry.SleepWithContext(ctx, delay) {
			return nil, ctx.Err()
		}
		delay = sharedretry.NextBackoff(delay, c.backoff.MaxInterval)
	}
}

func (c *Client) get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, errRateLimited
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: %d", errServerError, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("%w: %d: %s", errRejected, resp.StatusCode, apiReason(body))
	}
	return body, nil
}

// apiReason extracts the "reason" field of an API error body.
func apiReason(body []byte) string {
	var e struct {
		Reason string `json:"reason"`
	}
	if json.Unmarshal(body, &e) == nil && e.Reason != "" {
		return e.Reason
	}
	return "no reason given"
}
