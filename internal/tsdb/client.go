// Package tsdb implements the line-protocol database client: a rate-limited
// HTTP POST transport, retried on transient failure, with basic or
// query-parameter credential injection.
package tsdb

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/dheyman/epiflux/internal/epierr"
)

const maxRetries = 4

// Auth holds the write credentials. When either field is set, the set
// fields are sent as u/p query parameters, and a non-empty User is also sent
// as HTTP basic auth.
type Auth struct {
	User     string
	Password string
}

func (a Auth) enabled() bool { return a.User != "" || a.Password != "" }

// Client is the line-protocol database HTTP client.
type Client struct {
	baseURL    string
	database   string
	precision  string
	httpClient *http.Client
	limiter    *rate.Limiter
	auth       Auth
	debug      bool
	logger     *slog.Logger
}

// NewClient constructs a Client targeting baseURL/write?db=database. A nil
// logger falls back to slog.Default().
func NewClient(baseURL, database, precision string, auth Auth, timeout time.Duration, ratePerSec float64, debug bool, logger *slog.Logger) *Client {
	burst := int(ratePerSec)
	if burst < 1 {
		burst = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		database:   database,
		precision:  precision,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(ratePerSec), burst),
		auth:       auth,
		debug:      debug,
		logger:     logger,
	}
}

// Post sends one chunk of newline-delimited line-protocol text, rate
// limited and retried on transient transport failures and 5xx responses,
// mapping any final response other than 204 to a Transport-kind error.
func (c *Client) Post(ctx context.Context, body string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return epierr.Wrap(epierr.Transport, "rate limiter", err)
	}

	params := url.Values{}
	params.Set("db", c.database)
	params.Set("precision", c.precision)
	if c.auth.enabled() {
		if c.auth.User != "" {
			params.Set("u", c.auth.User)
		}
		if c.auth.Password != "" {
			params.Set("p", c.auth.Password)
		}
	}
	reqURL := c.baseURL + "/write?" + params.Encode()

	if c.debug {
		safe := reqURL
		if c.auth.Password != "" {
			safe = strings.Replace(safe, c.auth.Password, "REDACTED", 1)
		}
		c.logger.Debug("tsdb write", "url", safe, "bytes", len(body))
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))*500) * time.Millisecond
			c.logger.Debug("retrying write after backoff", "attempt", attempt, "backoff", backoff)
			select {
			case <-ctx.Done():
				return epierr.Wrap(epierr.Transport, "context cancelled while backing off", ctx.Err())
			case <-time.After(backoff):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, strings.NewReader(body))
		if err != nil {
			return epierr.Wrap(epierr.Transport, "building write request", err)
		}
		if c.auth.enabled() && c.auth.User != "" {
			req.SetBasicAuth(c.auth.User, c.auth.Password)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if c.debug {
			c.logger.Debug("tsdb response", "status", resp.StatusCode, "bytes", len(respBody))
		}

		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
			continue
		}

		return mapStatus(resp.StatusCode, respBody)
	}
	return epierr.Wrap(epierr.Transport, fmt.Sprintf("after %d attempts", maxRetries), lastErr)
}

// mapStatus maps an HTTP response status to the Transport error kind:
// 204 is success, 401/403 permission, 400/413 data, 404
// database-not-found.
func mapStatus(status int, body []byte) error {
	switch status {
	case http.StatusNoContent:
		return nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return epierr.Wrap(epierr.Transport, "permission denied", fmt.Errorf("HTTP %d: %s", status, body))
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge:
		return epierr.Wrap(epierr.Transport, "rejected write payload", fmt.Errorf("HTTP %d: %s", status, body))
	case http.StatusNotFound:
		return epierr.Wrap(epierr.Transport, "database not found", fmt.Errorf("HTTP %d: %s", status, body))
	default:
		return epierr.Wrap(epierr.Transport, "unexpected status", fmt.Errorf("HTTP %d: %s", status, body))
	}
}
