package scraper

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/jgoulah/meterfetch/internal/logger"
	"github.com/jgoulah/meterfetch/pkg/models"
)

const (
	// DefaultBaseURL is the myelectricaldata.fr proxy in front of the Enedis API
	DefaultBaseURL = "https://www.myelectricaldata.fr"

	// DefaultRequestsPerSecond stays under the proxy's per-token quota
	DefaultRequestsPerSecond = 5.0

	userAgent = "meterfetch/1.0"
)

// Client calls the metering API for one window at a time
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewClient creates an API client. An empty baseURL uses DefaultBaseURL and a
// non-positive rps uses DefaultRequestsPerSecond.
func NewClient(baseURL string, rps float64, log *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if rps <= 0 {
		rps = DefaultRequestsPerSecond
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		logger:  logger.OrDiscard(log),
	}
}

// URL builds the request URL for req. The token travels in a header only.
func (c *Client) URL(req models.FetchRequest) string {
	return fmt.Sprintf("%s/%s/%s/start/%s/end/%s",
		c.baseURL,
		req.Endpoint,
		url.PathEscape(req.UsagePointID),
		req.Window.Start.Format(models.DateLayout),
		req.Window.End.Format(models.DateLayout),
	)
}

// Fetch performs one GET and returns the status and body as received. A
// non-200 status is not an error here; callers decide what it means.
func (c *Client) Fetch(ctx context.Context, req models.FetchRequest) (int, []byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, nil, fmt.Errorf("waiting for rate limiter: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL(req), nil)
	if err != nil {
		return 0, nil, fmt.Errorf("creating request: %w", err)
	}

	httpReq.Header.Set("Authorization", req.AccessToken)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", userAgent)

	c.logger.Debug("calling metering API", slog.Any("request", req))

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return 0, nil, fmt.Errorf("making request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("reading response body: %w", err)
	}

	c.logger.Debug("metering API responded",
		slog.String("window", req.Window.String()),
		slog.Int("status", resp.StatusCode),
		slog.Int("bytes", len(body)),
		slog.Duration("latency", time.Since(start)),
	)

	return resp.StatusCode, body, nil
}
