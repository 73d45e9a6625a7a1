// Package extract pulls daily forecasts from the upstream weather API and
// writes them to CSV files for the raw loader to pick up.
package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

// Forecast response shape, reduced to the fields the pipeline consumes.
type (
	forecastResponse struct {
		DailyForecasts []dailyForecast `json:"DailyForecasts"`
	}

	dailyForecast struct {
		Date        string       `json:"Date"`
		Temperature temperature  `json:"Temperature"`
		Day         halfDay      `json:"Day"`
		Night       halfDay      `json:"Night"`
		Sources     []string     `json:"Sources"`
		MobileLink  string       `json:"MobileLink"`
		Link        string       `json:"Link"`
	}

	temperature struct {
		Minimum tempValue `json:"Minimum"`
		Maximum tempValue `json:"Maximum"`
	}

	tempValue struct {
		Value float64 `json:"Value"`
	}

	halfDay struct {
		Icon                   int    `json:"Icon"`
		IconPhrase             string `json:"IconPhrase"`
		HasPrecipitation       bool   `json:"HasPrecipitation"`
		PrecipitationType      string `json:"PrecipitationType"`
		PrecipitationIntensity string `json:"PrecipitationIntensity"`
	}
)

// BackoffConfig controls retry behaviour on transient upstream failures.
type BackoffConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

var (
	errRateLimited = errors.New("rate limited")
	errServerError = errors.New("server error")
	errUnexpected  = errors.New("unexpected status code")
	errCircuitOpen = errors.New("circuit breaker open")
)

// Client fetches forecasts for location endpoints. Failures trip a circuit
// breaker shared across locations so a dead upstream fails fast for the
// whole run.
type Client struct {
	httpClient *http.Client
	apiKey     string
	backoff    BackoffConfig
	breaker    *gobreaker.CircuitBreaker
}

// NewClient builds a Client with sane resilience defaults.
func NewClient(apiKey string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		apiKey:     apiKey,
		backoff: BackoffConfig{
			MaxRetries:      3,
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     5 * time.Second,
		},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "weather-api",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
}

// fetch retrieves the daily forecasts for one endpoint URL.
func (c *Client) fetch(ctx context.Context, endpoint string) ([]dailyForecast, error) {
	resp, err := c.doWithResilience(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var parsed forecastResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode forecast response: %w", err)
	}
	return parsed.DailyForecasts, nil
}

// doWithResilience executes the request with retries, exponential backoff and
// the shared circuit breaker. Client errors other than 429 are not retried.
func (c *Client) doWithResilience(ctx context.Context, endpoint string) (*http.Response, error) {
	var attempt int
	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Content-Type", "application/json")

		result, err := c.breaker.Execute(func() (interface{}, error) {
			resp, execErr := c.httpClient.Do(req)
			if execErr != nil {
				return nil, execErr
			}
			if resp.StatusCode == http.StatusTooManyRequests {
				resp.Body.Close()
				return nil, errRateLimited
			}
			if resp.StatusCode >= 500 {
				resp.Body.Close()
				return nil, errServerError
			}
			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				resp.Body.Close()
				return nil, fmt.Errorf("%w: %d", errUnexpected, resp.StatusCode)
			}
			return resp, nil
		})
		if err == nil {
			return result.(*http.Response), nil
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", errCircuitOpen, err)
		}
		if errors.Is(err, errUnexpected) {
			return nil, err
		}
		if attempt >= c.backoff.MaxRetries {
			return nil, err
		}

		delay := c.backoff.InitialInterval * time.Duration(math.Pow(2, float64(attempt)))
		if c.backoff.MaxInterval > 0 && delay > c.backoff.MaxInterval {
			delay = c.backoff.MaxInterval
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		attempt++
	}
}
