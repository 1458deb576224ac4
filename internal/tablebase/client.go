package tablebase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Fetcher performs the oracle round trip for one position key. Implementations
// must be safe for concurrent use across different keys.
type Fetcher interface {
	Fetch(ctx context.Context, key string) (*WireEvaluation, error)
}

// DefaultBaseURL is the public Lichess tablebase endpoint.
const DefaultBaseURL = "https://tablebase.lichess.ovh/standard"

// ClientConfig configures the HTTP transport. Zero fields fall back to the
// defaults below.
type ClientConfig struct {
	BaseURL        string
	Timeout        time.Duration // per attempt, reset on each retry
	MaxRetries     int           // retries after the first attempt
	BackoffBase    time.Duration
	BackoffCeiling time.Duration
	Logger         *logrus.Entry
}

func (cfg ClientConfig) withDefaults() ClientConfig {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 4
	}
	if cfg.BackoffBase == 0 {
		cfg.BackoffBase = 250 * time.Millisecond
	}
	if cfg.BackoffCeiling == 0 {
		cfg.BackoffCeiling = 8 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return cfg
}

// Client fetches evaluations over HTTP with per-attempt timeouts and
// exponential backoff on rate limits and transient failures. It holds no
// per-key state, so concurrent fetches for different keys do not serialize.
type Client struct {
	cfg  ClientConfig
	http *http.Client
	log  *logrus.Entry
}

// NewClient creates a transport with the given configuration.
func NewClient(cfg ClientConfig) *Client {
	cfg = cfg.withDefaults()
	return &Client{
		cfg: cfg,
		// The per-attempt deadline comes from the request context, not from
		// http.Client.Timeout, so each retry gets a fresh window.
		http: &http.Client{},
		log:  cfg.Logger.WithField("component", "oracle"),
	}
}

// transientError marks failures worth retrying: connection resets, 5xx.
type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

func retryable(err error) bool {
	var te *transientError
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrTimeout) || errors.As(err, &te)
}

// Fetch queries the oracle for key, retrying rate limits, timeouts, and
// transient failures up to MaxRetries times. Rejections and malformed
// payloads surface immediately.
func (c *Client) Fetch(ctx context.Context, key string) (*WireEvaluation, error) {
	// Lichess wants underscores instead of spaces in the fen parameter.
	url := c.cfg.BaseURL + "?fen=" + strings.ReplaceAll(key, " ", "_")

	var lastErr error
	for attempt := 0; ; attempt++ {
		wire, retryAfter, err := c.attempt(ctx, url)
		if err == nil {
			return wire, nil
		}
		if !retryable(err) {
			return nil, err
		}
		lastErr = err
		if attempt >= c.cfg.MaxRetries {
			break
		}

		delay := c.backoff(attempt, retryAfter)
		c.log.WithFields(logrus.Fields{
			"attempt": attempt + 1,
			"delay":   delay,
		}).Debugf("oracle fetch failed, retrying: %v", err)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	var te *transientError
	if errors.As(lastErr, &te) {
		return nil, fmt.Errorf("tablebase: giving up after %d attempts: %w", c.cfg.MaxRetries+1, lastErr)
	}
	return nil, lastErr
}

func (c *Client) attempt(ctx context.Context, url string) (*WireEvaluation, time.Duration, error) {
	actx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(actx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: building request: %v", ErrOracleRejected, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			// The caller's context died, not our attempt deadline.
			return nil, 0, ctx.Err()
		}
		if errors.Is(actx.Err(), context.DeadlineExceeded) {
			return nil, 0, ErrTimeout
		}
		return nil, 0, &transientError{err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		var wire WireEvaluation
		if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
			return nil, 0, fmt.Errorf("%w: decoding body: %v", ErrMalformedResponse, err)
		}
		return &wire, 0, nil

	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, parseRetryAfter(resp), ErrRateLimited

	case resp.StatusCode >= 500:
		return nil, 0, &transientError{fmt.Errorf("oracle returned %s", resp.Status)}

	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, 0, fmt.Errorf("%w: %s: %s", ErrOracleRejected, resp.Status, bytes.TrimSpace(body))
	}
}

// backoff computes base*2^attempt capped at the ceiling, with uniform jitter
// in [0, delay/2). A Retry-After hint wins when it fits under the ceiling.
func (c *Client) backoff(attempt int, retryAfter time.Duration) time.Duration {
	if retryAfter > 0 && retryAfter <= c.cfg.BackoffCeiling {
		return retryAfter
	}
	delay := c.cfg.BackoffBase << uint(attempt)
	if delay > c.cfg.BackoffCeiling || delay <= 0 {
		delay = c.cfg.BackoffCeiling
	}
	if half := int64(delay / 2); half > 0 {
		delay += time.Duration(rand.Int63n(half))
	}
	if delay > c.cfg.BackoffCeiling {
		delay = c.cfg.BackoffCeiling
	}
	return delay
}

func parseRetryAfter(resp *http.Response) time.Duration {
	header := resp.Header.Get("Retry-After")
	if header == "" {
		return 0
	}
	secs, err := strconv.Atoi(header)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
