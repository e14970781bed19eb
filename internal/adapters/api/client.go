// Package api is the REST adapter for the hosted DNS service. It owns the
// outbound rate limiter and turns every response into a classified
// domain.Result; callers never see a raw HTTP error.
package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/poyrazK/desecdesk/internal/core/domain"
	"github.com/poyrazK/desecdesk/internal/infrastructure/metrics"
)

// DefaultRetryAfter applies when a 429 carries no usable Retry-After.
const DefaultRetryAfter = 30 * time.Second

// MinRate is the floor AdaptRateLimit will not go below.
const MinRate = 0.25

// TokenProvider returns the current plaintext API token. The token lives
// in memory only; the client asks for it per request so a re-seal or
// profile switch takes effect immediately.
type TokenProvider func() string

// Client issues requests against one API base URL.
type Client struct {
	baseURL string
	token   TokenProvider
	http    *http.Client
	logger  *slog.Logger

	// dispatchMu serialises admission so the inter-request spacing holds
	// even under concurrent misuse. It is never held across the HTTP call.
	dispatchMu sync.Mutex
	rateMu     sync.Mutex
	limiter    *rate.Limiter // nil when limiting is disabled
	rps        float64
}

// NewClient builds a client for baseURL. rps 0 disables rate limiting.
func NewClient(baseURL string, token TokenProvider, rps float64, timeout time.Duration) *Client {
	c := &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: timeout},
		logger:  slog.Default(),
	}
	c.SetRate(rps)
	return c
}

// SetRate replaces the requests-per-second ceiling. Takes effect on the
// next dispatch.
func (c *Client) SetRate(rps float64) {
	c.rateMu.Lock()
	defer c.rateMu.Unlock()
	c.rps = rps
	if rps <= 0 {
		c.limiter = nil
		return
	}
	c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
}

// Rate returns the current ceiling; 0 means unlimited.
func (c *Client) Rate() float64 {
	c.rateMu.Lock()
	defer c.rateMu.Unlock()
	return c.rps
}

// AdaptRateLimit halves the current rate after a rate-limit event, with a
// floor of MinRate. A disabled limiter is re-enabled at MinRate: the
// server has told us to slow down.
func (c *Client) AdaptRateLimit(retryAfter time.Duration) {
	c.rateMu.Lock()
	old := c.rps
	next := old / 2
	if next < MinRate {
		next = MinRate
	}
	c.rateMu.Unlock()

	c.SetRate(next)
	c.logger.Info("adapted rate limit after throttle",
		"retry_after", retryAfter, "old_rps", old, "new_rps", next)
}

// Do executes one request and classifies the response. The context bounds
// the whole call including the rate-limiter wait.
func (c *Client) Do(ctx context.Context, req domain.Request) domain.Result {
	start := time.Now()
	res := c.do(ctx, req)
	metrics.RequestsTotal.WithLabelValues(res.Kind.String()).Inc()
	metrics.RequestDuration.Observe(time.Since(start).Seconds())
	return res
}

func (c *Client) do(ctx context.Context, req domain.Request) domain.Result {
	c.dispatchMu.Lock()
	c.rateMu.Lock()
	limiter := c.limiter
	c.rateMu.Unlock()
	if limiter != nil {
		waitStart := time.Now()
		if err := limiter.Wait(ctx); err != nil {
			c.dispatchMu.Unlock()
			return domain.Result{Kind: domain.KindNetwork, Message: err.Error()}
		}
		metrics.RateLimiterWait.Observe(time.Since(waitStart).Seconds())
	}
	c.dispatchMu.Unlock()

	var body io.Reader
	if req.Body != nil {
		encoded, err := json.Marshal(req.Body)
		if err != nil {
			return domain.Result{Kind: domain.KindNetwork, Message: fmt.Sprintf("encode body: %v", err)}
		}
		body = bytes.NewReader(encoded)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, c.baseURL+req.Path, body)
	if err != nil {
		return domain.Result{Kind: domain.KindNetwork, Message: err.Error()}
	}
	if secret := c.token(); secret != "" {
		httpReq.Header.Set("Authorization", "Token "+secret)
	}
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return domain.Result{Kind: domain.KindNetwork, Message: err.Error()}
	}
	defer func() { _ = resp.Body.Close() }()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return domain.Result{Kind: domain.KindNetwork, Code: resp.StatusCode, Message: err.Error()}
	}

	return classify(resp, payload)
}

// classify maps a response to the closed result taxonomy.
func classify(resp *http.Response, payload []byte) domain.Result {
	code := resp.StatusCode
	switch {
	case code >= 200 && code < 300:
		return domain.OKResult(code, payload)
	case code == http.StatusTooManyRequests:
		return domain.Result{
			Kind:       domain.KindRateLimited,
			Code:       code,
			Payload:    payload,
			Message:    errorMessage(payload),
			RetryAfter: retryAfter(resp, payload),
		}
	case code == http.StatusUnauthorized:
		return domain.Result{Kind: domain.KindUnauthenticated, Code: code, Message: errorMessage(payload)}
	case code == http.StatusForbidden:
		return domain.Result{Kind: domain.KindForbidden, Code: code, Message: errorMessage(payload)}
	case code >= 400 && code < 500:
		return domain.Result{Kind: domain.KindConflict, Code: code, Payload: payload, Message: errorMessage(payload)}
	default:
		return domain.Result{Kind: domain.KindServer, Code: code, Message: errorMessage(payload)}
	}
}

var retryAfterBody = regexp.MustCompile(`available in (\d+) second`)

// retryAfter extracts the advertised delay from the Retry-After header,
// falling back to the throttle detail text, then DefaultRetryAfter.
func retryAfter(resp *http.Response, payload []byte) time.Duration {
	if h := resp.Header.Get("Retry-After"); h != "" {
		if secs, err := strconv.Atoi(h); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
	}
	var body struct {
		RetryAfter int    `json:"retry_after"`
		Detail     string `json:"detail"`
	}
	if err := json.Unmarshal(payload, &body); err == nil {
		if body.RetryAfter > 0 {
			return time.Duration(body.RetryAfter) * time.Second
		}
		if m := retryAfterBody.FindStringSubmatch(body.Detail); m != nil {
			if secs, err := strconv.Atoi(m[1]); err == nil {
				return time.Duration(secs) * time.Second
			}
		}
	}
	return DefaultRetryAfter
}

// errorMessage extracts the human-readable message from an error body:
// non_field_errors[0] when present, then detail, then the raw text.
func errorMessage(payload []byte) string {
	if len(payload) == 0 {
		return ""
	}
	var body struct {
		NonFieldErrors []string `json:"non_field_errors"`
		Detail         string   `json:"detail"`
	}
	if err := json.Unmarshal(payload, &body); err == nil {
		if len(body.NonFieldErrors) > 0 {
			return body.NonFieldErrors[0]
		}
		if body.Detail != "" {
			return body.Detail
		}
	}
	return string(payload)
}
