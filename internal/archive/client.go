package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/airquality-etl/internal/observability"
)

var (
	// ErrTransport wraps failures to reach the archive at all.
	ErrTransport = errors.New("archive transport error")
	// ErrStatus wraps non-2xx responses.
	ErrStatus = errors.New("archive status error")
	// ErrRateLimited matches 429 responses in addition to ErrStatus.
	ErrRateLimited = errors.New("archive rate limited")
)

// maxErrorBody bounds how much of an error response is kept.
const maxErrorBody = 512

// StatusError is returned for non-2xx archive responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("archive API error: status %d: %s", e.Code, e.Body)
}

// Is lets callers match StatusError against ErrStatus and, for 429, ErrRateLimited.
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrStatus:
		return true
	case ErrRateLimited:
		return e.Code == http.StatusTooManyRequests
	}
	return false
}

// Client downloads archive CSV documents.
type Client struct {
	httpClient *http.Client
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates an archive client. Every request is bounded by timeout.
func NewClient(timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		metrics: metrics,
		logger:  logger,
	}
}

// Fetch performs one GET for the request and returns the response body.
func (c *Client) Fetch(ctx context.Context, r Request) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.URL(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.ArchiveDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.ArchiveRequests.WithLabelValues("transport_error").Inc()
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		serr := &StatusError{Code: resp.StatusCode, Body: string(body)}
		if errors.Is(serr, ErrRateLimited) {
			c.metrics.ArchiveRequests.WithLabelValues("rate_limited").Inc()
		} else {
			c.metrics.ArchiveRequests.WithLabelValues("status_error").Inc()
		}
		c.logger.Debug("archive request rejected",
			"station", r.Station.OriginalID,
			"period", r.Period.String(),
			"status", resp.StatusCode,
		)
		return nil, serr
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		c.metrics.ArchiveRequests.WithLabelValues("transport_error").Inc()
		return nil, fmt.Errorf("%w: read body: %w", ErrTransport, err)
	}
	c.metrics.ArchiveRequests.WithLabelValues("success").Inc()
	return data, nil
}
