package domain

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// ResultKind is the closed taxonomy of API call outcomes. Every response
// and failure classifies into exactly one kind; the queue and the facade
// switch on it rather than on raw errors.
type ResultKind int

const (
	// KindOK is any 2xx response.
	KindOK ResultKind = iota
	// KindNetwork is a transport-level failure, including timeouts.
	KindNetwork
	// KindUnauthenticated is a 401: the token is invalid or revoked.
	KindUnauthenticated
	// KindForbidden is a 403: missing permission or a server-managed type.
	KindForbidden
	// KindConflict is any other 4xx, e.g. a duplicate RRset or bad TTL.
	KindConflict
	// KindRateLimited is a 429. It is not an error: it drives the queue's
	// retry and cooldown decisions and carries the advertised delay.
	KindRateLimited
	// KindServer is a 5xx. Transient but never auto-retried.
	KindServer
	// KindValidation is produced locally by the record validator; a
	// request classified Validation never reached the network.
	KindValidation
	// KindStorage is a local cache or version-store I/O failure.
	KindStorage
)

func (k ResultKind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindNetwork:
		return "network"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	case KindRateLimited:
		return "rate_limited"
	case KindServer:
		return "server"
	case KindValidation:
		return "validation"
	case KindStorage:
		return "storage"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Result is the discriminated outcome of one API call (or of local
// validation). The zero value is an OK result with no payload.
type Result struct {
	Kind       ResultKind      `json:"kind"`
	Code       int             `json:"code,omitempty"` // HTTP status when applicable
	Payload    json.RawMessage `json:"payload,omitempty"`
	Message    string          `json:"message,omitempty"`
	RetryAfter time.Duration   `json:"retry_after,omitempty"` // KindRateLimited only
}

// OK reports whether the call succeeded.
func (r Result) OK() bool { return r.Kind == KindOK }

// Decode unmarshals the payload into v. Calling Decode on a non-OK result
// is a caller bug and returns an error rather than partial data.
func (r Result) Decode(v any) error {
	if !r.OK() {
		return fmt.Errorf("decode on %s result: %s", r.Kind, r.Message)
	}
	if len(r.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(r.Payload, v)
}

// OKResult wraps a payload in a successful result.
func OKResult(code int, payload json.RawMessage) Result {
	return Result{Kind: KindOK, Code: code, Payload: payload}
}

// ValidationResult wraps a local validation failure.
func ValidationResult(err *ValidationError) Result {
	return Result{Kind: KindValidation, Message: err.Error()}
}

// StorageResult wraps a local persistence failure.
func StorageResult(err error) Result {
	return Result{Kind: KindStorage, Message: err.Error()}
}
