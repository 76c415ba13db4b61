package tenderanalysis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultRateLimitPerMinute = 60
	maxResponseBytes          = 8 << 20
	maxSearchAttempts         = 4
)

// RecordSource is the record-search collaborator. It may return fewer records
// than asked for.
type RecordSource interface {
	Search(ctx context.Context, query string, pageSize int) ([]Record, error)
}

// SourceFetch adapts a RecordSource to the collector's per-keyword fetch.
func SourceFetch(src RecordSource, pageSize int) FetchFunc {
	return func(ctx context.Context, keyword string) ([]Record, error) {
		return src.Search(ctx, keyword, pageSize)
	}
}

type statusError struct {
	Code int
	Body string
}

func (e *statusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("status code: %d", e.Code)
	}
	return fmt.Sprintf("status code: %d body=%s", e.Code, e.Body)
}

// apiClient rate limits and retries JSON calls to a public dataset API.
type apiClient struct {
	name    string
	http    *http.Client
	ticker  *time.Ticker
	sleep   func(context.Context, time.Duration) error
	attempt int
}

func newAPIClient(name string, hc *http.Client, perMinute int) *apiClient {
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	if perMinute <= 0 {
		perMinute = DefaultRateLimitPerMinute
	}
	return &apiClient{
		name:    name,
		http:    hc,
		ticker:  time.NewTicker(time.Minute / time.Duration(perMinute)),
		sleep:   sleepCtx,
		attempt: maxSearchAttempts,
	}
}

func (c *apiClient) close() { c.ticker.Stop() }

func (c *apiClient) waitRateLimit(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ticker.C:
		return nil
	}
}

// do sends the request built by newReq, retrying 429 and 5xx responses. Other
// 4xx responses fail immediately.
func (c *apiClient) do(ctx context.Context, newReq func(context.Context) (*http.Request, error)) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= c.attempt; attempt++ {
		if err := c.waitRateLimit(ctx); err != nil {
			return nil, err
		}
		body, retryAfter, err := c.once(ctx, newReq)
		if err == nil {
			return body, nil
		}
		lastErr = err
		retryable := classifyTransportError(err) == failureTimeout
		var se *statusError
		if errors.As(err, &se) {
			retryable = se.Code == http.StatusTooManyRequests || se.Code >= 500
		}
		if !retryable || attempt == c.attempt {
			break
		}
		wait := retryAfter
		if wait <= 0 {
			wait = backoffDelay(attempt)
		}
		log.Printf("tender-advisor search_retry source=%s attempt=%d wait_ms=%d err=%q", c.name, attempt, wait.Milliseconds(), err.Error())
		if err := c.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *apiClient) once(ctx context.Context, newReq func(context.Context) (*http.Request, error)) ([]byte, time.Duration, error) {
	req, err := newReq(ctx)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "tender-advisor/1.0")
	res, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer res.Body.Close()
	b, _ := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes))
	retryAfter := parseRetryAfter(res.Header.Get("Retry-After"))
	if res.StatusCode == http.StatusTooManyRequests {
		return nil, retryAfter, &statusError{Code: res.StatusCode}
	}
	if res.StatusCode >= 400 {
		return nil, retryAfter, &statusError{Code: res.StatusCode, Body: truncate(string(b), 512)}
	}
	return b, 0, nil
}

func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
