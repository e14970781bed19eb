package domain

import (
	"time"

	"github.com/goccy/go-json"
)

// Priority orders queue items across tiers. Lower value dispatches first.
type Priority int

const (
	PriorityHigh   Priority = 0
	PriorityNormal Priority = 1
	PriorityLow    Priority = 2
)

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	}
	return "unknown"
}

// Status is the queue item state machine. Terminal states are StatusOK,
// StatusFailed, StatusCancelled and StatusRateLimited.
type Status int

const (
	StatusPending Status = iota
	StatusRunning
	StatusOK
	StatusFailed
	StatusCancelled
	StatusRateLimited
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusOK:
		return "ok"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	case StatusRateLimited:
		return "rate_limited"
	}
	return "unknown"
}

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	switch s {
	case StatusOK, StatusFailed, StatusCancelled, StatusRateLimited:
		return true
	}
	return false
}

// Request describes one REST call: method, path relative to the API base
// URL, and an optional JSON body.
type Request struct {
	Method string `json:"method"`
	Path   string `json:"path"`
	Body   any    `json:"body,omitempty"`
}

// Well-known queue item categories.
const (
	CategoryRecords      = "records"
	CategoryZones        = "zones"
	CategoryTokens       = "tokens"
	CategoryAccount      = "account"
	CategoryConnectivity = "connectivity"
)

// QueueItem is the unit of work owned by the API queue from enqueue
// through history truncation.
type QueueItem struct {
	ID          uint64     `json:"id"`
	Priority    Priority   `json:"priority"`
	Category    string     `json:"category"`
	Action      string     `json:"action"`
	Request     Request    `json:"request"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Status      Status     `json:"status"`
	RetryCount  int        `json:"retry_count"`
	Result      *Result    `json:"result,omitempty"`
}

// Duration is the wall time between start and completion, zero until the
// item is terminal.
func (q QueueItem) Duration() time.Duration {
	if q.StartedAt == nil || q.CompletedAt == nil {
		return 0
	}
	return q.CompletedAt.Sub(*q.StartedAt)
}

// Clone returns a structural copy safe to hand across goroutines.
func (q QueueItem) Clone() QueueItem {
	out := q
	if q.StartedAt != nil {
		t := *q.StartedAt
		out.StartedAt = &t
	}
	if q.CompletedAt != nil {
		t := *q.CompletedAt
		out.CompletedAt = &t
	}
	if q.Result != nil {
		r := *q.Result
		r.Payload = json.RawMessage(append([]byte(nil), q.Result.Payload...))
		out.Result = &r
	}
	return out
}

// QueueSnapshot is a structural copy of queue state for display.
type QueueSnapshot struct {
	Pending []QueueItem `json:"pending"`
	History []QueueItem `json:"history"`
	Paused  bool        `json:"paused"`
}
