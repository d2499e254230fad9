// Package laptimes implements the HTTP client for the external lap-time
// board: the read-only source the orchestrator polls for each track's
// current best laps. The board is treated as unreliable - calls are rate
// limited, retried with backoff and guarded by a circuit breaker.
package laptimes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/rotorcup/rotorcup-hub/internal/application/orchestrator"
	"github.com/rotorcup/rotorcup-hub/pkg/circuitbreaker"
	"github.com/rotorcup/rotorcup-hub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrTrackNotFound - the board has no such track.
	ErrTrackNotFound = errors.New("laptimes: track not found")

	// ErrRateLimited - the local limiter or the board refused the request.
	ErrRateLimited = errors.New("laptimes: rate limited")

	// ErrUnavailable - the board is down or misbehaving.
	ErrUnavailable = errors.New("laptimes: board unavailable")
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// ClientConfig contains configuration for the lap-time board client.
type ClientConfig struct {
	// BaseURL is the board's API base URL.
	BaseURL string

	// APIKey authenticates requests (sent as a bearer token). Empty for
	// public boards.
	APIKey string

	// Timeout is the HTTP request timeout.
	Timeout time.Duration

	// RateLimiterConfig controls the client-side request rate.
	RateLimiterConfig RateLimiterConfig

	// Logger for structured logging.
	Logger *slog.Logger
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(baseURL string) ClientConfig {
	return ClientConfig{
		BaseURL:           baseURL,
		Timeout:           30 * time.Second,
		RateLimiterConfig: DefaultRateLimiterConfig(),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client is the lap-time board API client.
type Client struct {
	config      ClientConfig
	httpClient  *http.Client
	logger      *slog.Logger
	rateLimiter *RateLimiter
	breaker     *circuitbreaker.CircuitBreaker
	retrier     *retry.Retrier
}

var _ orchestrator.ResultSource = (*Client)(nil)

// NewClient creates a new lap-time board client.
func NewClient(config ClientConfig) *Client {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	logger := config.Logger
	breaker := circuitbreaker.BoardAPIBreaker(func(name string, from, to circuitbreaker.State) {
		logger.Warn("circuit breaker state changed",
			"breaker", name,
			"from", from.String(),
			"to", to.String(),
		)
	})

	retrier := retry.BoardAPIRetrier(
		retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
			logger.Debug("retrying board request",
				"attempt", attempt,
				"delay", delay,
				"error", err,
			)
		}),
	)

	return &Client{
		config:      config,
		httpClient:  &http.Client{Timeout: config.Timeout},
		logger:      logger,
		rateLimiter: NewRateLimiter(config.RateLimiterConfig),
		breaker:     breaker,
		retrier:     retrier,
	}
}

// FetchTrackResults returns the current best laps for a track.
func (c *Client) FetchTrackResults(ctx context.Context, trackRef string) ([]orchestrator.LapRecord, error) {
	if trackRef == "" {
		return nil, fmt.Errorf("laptimes: track ref is required")
	}

	var dto TrackResultsDTO
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.retrier.Do(ctx, func(ctx context.Context) error {
			if err := c.rateLimiter.Allow(ctx); err != nil {
				return retry.Permanent(err)
			}
			return c.getTrack(ctx, trackRef, &dto)
		})
	})
	if err != nil {
		return nil, err
	}

	records := mapLapRecords(dto)
	c.logger.Debug("fetched track results",
		"track_ref", trackRef,
		"records", len(records),
	)
	return records, nil
}

// getTrack performs one GET against the board. Server-side failures are
// wrapped retryable; client-side failures are permanent.
func (c *Client) getTrack(ctx context.Context, trackRef string, dto *TrackResultsDTO) error {
	fullURL := fmt.Sprintf("%s/api/v1/tracks/%s/laps", c.config.BaseURL, url.PathEscape(trackRef))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return retry.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return retry.Retryable(fmt.Errorf("%w: %v", ErrUnavailable, err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to decode
	case resp.StatusCode == http.StatusNotFound:
		return retry.Permanent(ErrTrackNotFound)
	case resp.StatusCode == http.StatusTooManyRequests:
		return retry.Retryable(ErrRateLimited)
	case resp.StatusCode >= 500:
		return retry.Retryable(fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode))
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return retry.Permanent(fmt.Errorf("laptimes: unexpected status %d: %s", resp.StatusCode, body))
	}

	if err := json.NewDecoder(resp.Body).Decode(dto); err != nil {
		return retry.Retryable(fmt.Errorf("laptimes: failed to decode response: %w", err))
	}
	return nil
}
