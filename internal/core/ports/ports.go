// Package ports defines the interfaces between the core services and
// their adapters.
package ports

import (
	"context"
	"time"

	"github.com/poyrazK/desecdesk/internal/core/domain"
)

// APIClient issues REST calls against the hosted DNS service. Do blocks
// until the rate limiter admits the request and the response (or failure)
// has been classified; it never returns a Go error, the Result carries
// the outcome.
type APIClient interface {
	Do(ctx context.Context, req domain.Request) domain.Result

	// SetRate replaces the request-per-second ceiling; 0 disables
	// limiting. Takes effect on the next dispatch.
	SetRate(rps float64)
	Rate() float64

	// AdaptRateLimit halves the current rate after a rate-limit event,
	// with a floor of 0.25 req/s.
	AdaptRateLimit(retryAfter time.Duration)
}

// Cache is the three-layer per-profile cache. Readers never block on
// writers; all methods are safe for concurrent use.
type Cache interface {
	Zones() ([]domain.Zone, time.Time, bool)
	SetZones(zones []domain.Zone) error
	ZoneByName(name string) (domain.Zone, bool)

	Records(zone string) ([]domain.RRset, time.Time, bool)
	SetRecords(zone string, sets []domain.RRset) error
	RRset(zone, subname, typ string) (domain.RRset, bool)

	Account() (domain.AccountInfo, time.Time, bool)
	SetAccount(info domain.AccountInfo) error

	// InvalidateRecords evicts records[zone] from every layer.
	InvalidateRecords(zone string) error
	// InvalidateZones evicts the zone list (and its index) from every layer.
	InvalidateZones() error
}

// VersionStore is the append-only snapshot log, one log per zone.
type VersionStore interface {
	// Snapshot appends the state unless its content hash equals the most
	// recent entry's. Returns the entry hash and whether it was appended.
	Snapshot(zone, message string, state []domain.RRset) (hash string, appended bool, err error)
	List(zone string) ([]domain.SnapshotEntry, error)
	Read(zone, hash string) ([]domain.RRset, error)
	DeleteHistory(zone string) error
}

// ProfileStore manages isolated per-profile configuration, the sealed
// credential, and the on-disk layout handed to the other subsystems.
type ProfileStore interface {
	List() ([]domain.Profile, error)
	Active() (domain.Profile, error)
	Create(name, displayName string) (domain.Profile, error)
	Rename(name, newDisplayName string) error
	Switch(name string) (domain.Profile, error)
	Delete(name string) error
	MigrateLegacy() (migrated bool, err error)

	LoadSettings(name string) (domain.Settings, error)
	SaveSettings(name string, s domain.Settings) error

	SealToken(name, token, password string) error
	UnsealToken(name, password string) (string, error)
	ClearToken(name string) error

	CacheDir(name string) string
	VersionsDir(name string) string
}

// Dispatcher posts callbacks to the UI-owning goroutine. Delivery is
// exactly-once and preserves post order for a single consumer.
type Dispatcher interface {
	Post(fn func())
}

// Clock abstracts time so retry and cooldown behaviour is testable with a
// virtual clock. Sleep returns early when the context is cancelled.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration)
	// AfterFunc runs fn on its own goroutine after d, returning a cancel
	// function.
	AfterFunc(d time.Duration, fn func()) (cancel func())
}
