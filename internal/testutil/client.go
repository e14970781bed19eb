package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/poyrazK/desecdesk/internal/core/domain"
)

// ScriptedClient implements ports.APIClient with canned results. Results
// are consumed in order; when the script runs dry every further call
// answers with an empty OK.
type ScriptedClient struct {
	mu      sync.Mutex
	script  []domain.Result
	calls   []domain.Request
	rate    float64
	adapted []time.Duration

	// Respond, when set, overrides the script entirely.
	Respond func(req domain.Request) domain.Result
}

// NewScriptedClient builds a client answering with the given results in
// order.
func NewScriptedClient(script ...domain.Result) *ScriptedClient {
	return &ScriptedClient{script: script, rate: 2.0}
}

func (c *ScriptedClient) Do(_ context.Context, req domain.Request) domain.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, req)
	if c.Respond != nil {
		return c.Respond(req)
	}
	if len(c.script) == 0 {
		return domain.OKResult(200, nil)
	}
	res := c.script[0]
	c.script = c.script[1:]
	return res
}

func (c *ScriptedClient) SetRate(rps float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rate = rps
}

func (c *ScriptedClient) Rate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rate
}

// AdaptRateLimit mimics the real client: halve with a floor of 0.25.
func (c *ScriptedClient) AdaptRateLimit(retryAfter time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.adapted = append(c.adapted, retryAfter)
	c.rate /= 2
	if c.rate < 0.25 {
		c.rate = 0.25
	}
}

// Calls returns a copy of every request seen so far.
func (c *ScriptedClient) Calls() []domain.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Request, len(c.calls))
	copy(out, c.calls)
	return out
}

// CallCount returns how many requests were dispatched.
func (c *ScriptedClient) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

// AdaptCalls returns the retry_after values passed to AdaptRateLimit.
func (c *ScriptedClient) AdaptCalls() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.adapted))
	copy(out, c.adapted)
	return out
}

// WaitForCalls blocks until at least n requests were dispatched or the
// timeout elapses; reports success.
func (c *ScriptedClient) WaitForCalls(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if c.CallCount() >= n {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return c.CallCount() >= n
}

// RateLimited builds a canned 429 result.
func RateLimited(retryAfter time.Duration) domain.Result {
	return domain.Result{
		Kind:       domain.KindRateLimited,
		Code:       429,
		Message:    "Request was throttled.",
		RetryAfter: retryAfter,
	}
}
