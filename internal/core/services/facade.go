package services

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/poyrazK/desecdesk/internal/adapters/api"
	"github.com/poyrazK/desecdesk/internal/adapters/history"
	"github.com/poyrazK/desecdesk/internal/core/domain"
	"github.com/poyrazK/desecdesk/internal/core/ports"
)

// recordsStaleAfter is how long cached RRsets stay fresh; zones use the
// profile's sync interval instead.
const recordsStaleAfter = 5 * time.Minute

// Subsystems bundles the per-profile adapters the facade owns. They are
// rebuilt wholesale on every profile switch.
type Subsystems struct {
	Client   ports.APIClient
	Cache    ports.Cache
	Versions ports.VersionStore
}

// SubsystemFactory builds the per-profile adapters. token is read per
// request so unlocking later takes effect without a rebuild.
type SubsystemFactory func(p domain.Profile, s domain.Settings, token func() string) (Subsystems, error)

// Signals are the facade's callbacks to the UI layer; all of them are
// delivered on the dispatcher. Nil members are skipped.
type Signals struct {
	OnlineChanged    func(online bool)
	RateLimited      func(retryAfter time.Duration)
	QueueChanged     func()
	CacheInvalidated func(key string)
	Notify           func(level, title, message string)
}

// Core is the single entry point used by the UI layer. It owns the queue,
// the per-profile subsystems and the offline state.
type Core struct {
	profiles   ports.ProfileStore
	factory    SubsystemFactory
	dispatcher ports.Dispatcher
	clock      ports.Clock
	logger     *slog.Logger

	mu       sync.Mutex
	profile  domain.Profile
	settings domain.Settings
	subs     Subsystems
	queue    *Queue
	token    string
	online   bool
	signals  Signals

	stopKeepalive chan struct{}
	keepaliveWG   sync.WaitGroup
}

// NewCore loads the active profile and brings up all per-profile
// subsystems. The caller unlocks the credential separately.
func NewCore(profiles ports.ProfileStore, factory SubsystemFactory, dispatcher ports.Dispatcher, clock ports.Clock) (*Core, error) {
	c := &Core{
		profiles:   profiles,
		factory:    factory,
		dispatcher: dispatcher,
		clock:      clock,
		logger:     slog.Default(),
		online:     true,
	}
	active, err := profiles.Active()
	if err != nil {
		return nil, fmt.Errorf("resolve active profile: %w", err)
	}
	if err := c.initProfile(active); err != nil {
		return nil, err
	}
	return c, nil
}

// initProfile (re)builds everything owned per profile. Caller must not
// hold c.mu.
func (c *Core) initProfile(p domain.Profile) error {
	settings, err := c.profiles.LoadSettings(p.Name)
	if err != nil {
		return fmt.Errorf("load settings for %s: %w", p.Name, err)
	}
	subs, err := c.factory(p, settings, c.Token)
	if err != nil {
		return fmt.Errorf("build subsystems for %s: %w", p.Name, err)
	}

	queue := NewQueue(subs.Client, c.dispatcher, c.clock, settings.QueueHistoryLimit)
	queue.OnRateLimited(c.emitRateLimited)
	queue.OnChanged(c.emitQueueChanged)
	if settings.PersistQueueHistory {
		if err := queue.LoadHistory(c.historyPath()); err != nil {
			c.logger.Warn("could not load queue history", "error", err)
		}
	}

	c.mu.Lock()
	c.profile = p
	c.settings = settings
	c.subs = subs
	c.queue = queue
	c.token = ""
	c.online = !settings.Offline
	c.mu.Unlock()

	if settings.Offline {
		queue.Pause()
	} else {
		c.startKeepalive()
	}
	return nil
}

func (c *Core) historyPath() string {
	type rooter interface{ Root() string }
	if r, ok := c.profiles.(rooter); ok {
		return filepath.Join(r.Root(), "queue_history.json")
	}
	return "queue_history.json"
}

// SetSignals installs the UI callbacks.
func (c *Core) SetSignals(s Signals) {
	c.mu.Lock()
	c.signals = s
	c.mu.Unlock()
}

func (c *Core) currentSignals() Signals {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.signals
}

func (c *Core) emitRateLimited(retryAfter time.Duration) {
	if s := c.currentSignals(); s.RateLimited != nil {
		c.dispatcher.Post(func() { s.RateLimited(retryAfter) })
	}
}

func (c *Core) emitQueueChanged() {
	if s := c.currentSignals(); s.QueueChanged != nil {
		c.dispatcher.Post(s.QueueChanged)
	}
}

func (c *Core) emitOnlineChanged(online bool) {
	if s := c.currentSignals(); s.OnlineChanged != nil {
		c.dispatcher.Post(func() { s.OnlineChanged(online) })
	}
}

func (c *Core) emitCacheInvalidated(key string) {
	if s := c.currentSignals(); s.CacheInvalidated != nil {
		c.dispatcher.Post(func() { s.CacheInvalidated(key) })
	}
}

func (c *Core) notify(level, title, message string) {
	if s := c.currentSignals(); s.Notify != nil {
		c.dispatcher.Post(func() { s.Notify(level, title, message) })
	}
}

// Token returns the in-memory plaintext token; empty until Unlock or
// SetToken. Used by the API client to build Authorization headers.
func (c *Core) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// Unlock unseals the profile's API token into memory.
func (c *Core) Unlock(password string) error {
	c.mu.Lock()
	name := c.profile.Name
	c.mu.Unlock()
	token, err := c.profiles.UnsealToken(name, password)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
	return nil
}

// SetToken seals a new API token under password and keeps the plaintext
// in memory for the session.
func (c *Core) SetToken(token, password string) error {
	c.mu.Lock()
	name := c.profile.Name
	c.mu.Unlock()
	if err := c.profiles.SealToken(name, token, password); err != nil {
		return err
	}
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
	return nil
}

// ClearToken drops the credential from memory and disk, e.g. after a 401.
func (c *Core) ClearToken() error {
	c.mu.Lock()
	name := c.profile.Name
	c.token = ""
	c.mu.Unlock()
	return c.profiles.ClearToken(name)
}

// Submit enqueues an arbitrary request. Most callers use the typed
// mutation helpers instead, which validate first.
func (c *Core) Submit(priority domain.Priority, category, action string, req domain.Request, cb Callback) (*Handle, error) {
	c.mu.Lock()
	queue := c.queue
	c.mu.Unlock()
	return queue.Submit(priority, category, action, req, cb)
}

// Pause suspends dispatch; Resume restarts it.
func (c *Core) Pause()         { c.currentQueue().Pause() }
func (c *Core) Resume()        { c.currentQueue().Resume() }
func (c *Core) Paused() bool   { return c.currentQueue().Paused() }
func (c *Core) Queue() domain.QueueSnapshot { return c.currentQueue().Snapshot() }

func (c *Core) currentQueue() *Queue {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue
}

// SetRate changes the dispatch ceiling and persists it in the profile's
// settings.
func (c *Core) SetRate(rps float64) error {
	c.mu.Lock()
	c.subs.Client.SetRate(rps)
	c.settings.RateLimit = rps
	settings := c.settings
	name := c.profile.Name
	c.mu.Unlock()
	return c.profiles.SaveSettings(name, settings)
}

// Settings returns a copy of the active profile's settings.
func (c *Core) Settings() domain.Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

// Zones is the cache-first zone reader. Stale or missing data enqueues a
// refresh; whatever the cache has is returned immediately.
func (c *Core) Zones() []domain.Zone {
	c.mu.Lock()
	cache := c.subs.Cache
	stale := c.settings.SyncInterval()
	c.mu.Unlock()

	zones, fetched, ok := cache.Zones()
	if !ok || c.clock.Now().Sub(fetched) > stale {
		c.refreshZones(domain.PriorityNormal)
	}
	return zones
}

// Records is the cache-first RRset reader for one zone.
func (c *Core) Records(zone string) []domain.RRset {
	c.mu.Lock()
	cache := c.subs.Cache
	c.mu.Unlock()

	sets, fetched, ok := cache.Records(zone)
	if !ok || c.clock.Now().Sub(fetched) > recordsStaleAfter {
		c.refreshRecords(zone, domain.PriorityNormal, "")
	}
	return sets
}

// Account is the cache-first quota reader.
func (c *Core) Account() (domain.AccountInfo, bool) {
	c.mu.Lock()
	cache := c.subs.Cache
	stale := c.settings.SyncInterval()
	c.mu.Unlock()

	info, fetched, ok := cache.Account()
	if !ok || c.clock.Now().Sub(fetched) > stale {
		_, _ = c.Submit(domain.PriorityLow, domain.CategoryAccount, "Refresh account info", api.ReqAccount(), func(item domain.QueueItem) {
			if item.Status != domain.StatusOK {
				return
			}
			var fresh domain.AccountInfo
			if err := item.Result.Decode(&fresh); err != nil {
				return
			}
			if err := cache.SetAccount(fresh); err != nil {
				c.storageWarning("account", err)
			}
			c.emitCacheInvalidated("account")
		})
	}
	return info, ok
}

func (c *Core) refreshZones(priority domain.Priority) {
	c.mu.Lock()
	cache := c.subs.Cache
	c.mu.Unlock()
	_, _ = c.Submit(priority, domain.CategoryZones, "Refresh zone list", api.ReqListZones(), func(item domain.QueueItem) {
		if item.Status != domain.StatusOK {
			return
		}
		var zones []domain.Zone
		if err := item.Result.Decode(&zones); err != nil {
			return
		}
		if err := cache.SetZones(zones); err != nil {
			c.storageWarning("zones", err)
		}
		c.emitCacheInvalidated("zones")
	})
}

// refreshRecords reloads a zone's RRsets and, when snapshotMsg is set,
// appends a version snapshot of the fresh state.
func (c *Core) refreshRecords(zone string, priority domain.Priority, snapshotMsg string) {
	c.mu.Lock()
	cache := c.subs.Cache
	versions := c.subs.Versions
	c.mu.Unlock()
	action := fmt.Sprintf("Refresh records of %s", zone)
	_, _ = c.Submit(priority, domain.CategoryRecords, action, api.ReqListRRsets(zone), func(item domain.QueueItem) {
		if item.Status != domain.StatusOK {
			return
		}
		var sets []domain.RRset
		if err := item.Result.Decode(&sets); err != nil {
			return
		}
		if err := cache.SetRecords(zone, sets); err != nil {
			c.storageWarning("records/"+zone, err)
		}
		c.emitCacheInvalidated("records/" + zone)
		if snapshotMsg != "" {
			if _, _, err := versions.Snapshot(zone, snapshotMsg, sets); err != nil {
				c.storageWarning("versions/"+zone, err)
			}
		}
	})
}

func (c *Core) storageWarning(key string, err error) {
	c.logger.Warn("local storage failure", "key", key, "error", err)
	c.notify("warning", "Storage problem", fmt.Sprintf("Could not persist %s locally: %v", key, err))
}

// CreateRRset validates locally and enqueues the creation. Validation
// failures never reach the network.
func (c *Core) CreateRRset(zone, subname, typ string, ttl int, records []string, cb Callback) (*Handle, error) {
	records = domain.NormalizeRecords(records)
	if err := domain.ValidateSubname(subname); err != nil {
		return nil, &domain.ValidationError{Index: 0, Reason: err.Error()}
	}
	if verr := domain.ValidateRRset(typ, ttl, records); verr != nil {
		return nil, verr
	}
	set := domain.RRset{Subname: subname, Type: typ, TTL: ttl, Records: records}
	action := fmt.Sprintf("Create %s record %s in %s", typ, set.DisplayName(), zone)
	return c.submitRecordMutation(zone, action, api.ReqCreateRRset(zone, set), cb)
}

// UpdateRRset validates the patched fields and enqueues the update.
func (c *Core) UpdateRRset(zone, subname, typ string, ttl int, records []string, cb Callback) (*Handle, error) {
	records = domain.NormalizeRecords(records)
	if verr := domain.ValidateRRset(typ, ttl, records); verr != nil {
		return nil, verr
	}
	patch := map[string]any{"ttl": ttl, "records": records}
	action := fmt.Sprintf("Update %s record %s in %s", typ, subnameOrApex(subname), zone)
	return c.submitRecordMutation(zone, action, api.ReqUpdateRRset(zone, subname, typ, patch), cb)
}

// DeleteRRset enqueues the deletion of one RRset.
func (c *Core) DeleteRRset(zone, subname, typ string, cb Callback) (*Handle, error) {
	action := fmt.Sprintf("Delete %s record %s in %s", typ, subnameOrApex(subname), zone)
	return c.submitRecordMutation(zone, action, api.ReqDeleteRRset(zone, subname, typ), cb)
}

func subnameOrApex(subname string) string {
	if subname == "" {
		return "@"
	}
	return subname
}

// submitRecordMutation wraps the caller's callback: on success it evicts
// the zone's record cache, re-fetches, and snapshots the fresh state.
func (c *Core) submitRecordMutation(zone, action string, req domain.Request, cb Callback) (*Handle, error) {
	return c.Submit(domain.PriorityNormal, domain.CategoryRecords, action, req, func(item domain.QueueItem) {
		if item.Status == domain.StatusOK {
			c.afterRecordMutation(zone, action)
		}
		if item.Status == domain.StatusFailed && item.Result != nil && item.Result.Kind == domain.KindUnauthenticated {
			c.handleUnauthenticated()
		}
		if cb != nil {
			cb(item)
		}
	})
}

func (c *Core) afterRecordMutation(zone, action string) {
	c.mu.Lock()
	cache := c.subs.Cache
	c.mu.Unlock()
	if err := cache.InvalidateRecords(zone); err != nil {
		c.storageWarning("records/"+zone, err)
	}
	c.emitCacheInvalidated("records/" + zone)
	c.refreshRecords(zone, domain.PriorityNormal, action)
}

func (c *Core) handleUnauthenticated() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
	c.notify("error", "Authentication failed", "The API token was rejected. Please re-authenticate.")
}

// CreateZone enqueues a zone creation and evicts the zone list on
// success.
func (c *Core) CreateZone(name string, cb Callback) (*Handle, error) {
	if err := domain.ValidateZoneName(name); err != nil {
		return nil, &domain.ValidationError{Index: 0, Reason: err.Error()}
	}
	return c.submitZoneMutation(fmt.Sprintf("Create zone %s", name), api.ReqCreateZone(domain.CanonicalZoneName(name)), cb)
}

// DeleteZone enqueues a zone deletion.
func (c *Core) DeleteZone(name string, cb Callback) (*Handle, error) {
	return c.submitZoneMutation(fmt.Sprintf("Delete zone %s", name), api.ReqDeleteZone(name), cb)
}

func (c *Core) submitZoneMutation(action string, req domain.Request, cb Callback) (*Handle, error) {
	return c.Submit(domain.PriorityNormal, domain.CategoryZones, action, req, func(item domain.QueueItem) {
		if item.Status == domain.StatusOK {
			c.mu.Lock()
			cache := c.subs.Cache
			c.mu.Unlock()
			if err := cache.InvalidateZones(); err != nil {
				c.storageWarning("zones", err)
			}
			c.emitCacheInvalidated("zones")
			c.refreshZones(domain.PriorityNormal)
		}
		if cb != nil {
			cb(item)
		}
	})
}

// Snapshots lists a zone's version history, newest first.
func (c *Core) Snapshots(zone string) ([]domain.SnapshotEntry, error) {
	c.mu.Lock()
	versions := c.subs.Versions
	c.mu.Unlock()
	return versions.List(zone)
}

// SnapshotState returns the zone state captured under hash.
func (c *Core) SnapshotState(zone, hash string) ([]domain.RRset, error) {
	c.mu.Lock()
	versions := c.subs.Versions
	c.mu.Unlock()
	return versions.Read(zone, hash)
}

// DeleteHistory drops a zone's version log.
func (c *Core) DeleteHistory(zone string) error {
	c.mu.Lock()
	versions := c.subs.Versions
	c.mu.Unlock()
	return versions.DeleteHistory(zone)
}

// Restore emits a single bulk-put that replaces the zone's RRsets with
// the state captured under hash. The version store itself never mutates
// the service; the intent flows through the queue like any other edit.
func (c *Core) Restore(zone, hash string, cb Callback) (*Handle, error) {
	c.mu.Lock()
	versions := c.subs.Versions
	cache := c.subs.Cache
	c.mu.Unlock()

	target, err := versions.Read(zone, hash)
	if err != nil {
		return nil, err
	}
	current, _, _ := cache.Records(zone)
	plan := history.RestorePlan(current, target)
	action := fmt.Sprintf("Restore %s to snapshot %.12s", zone, hash)
	return c.submitRecordMutation(zone, action, api.ReqBulkPutRRsets(zone, plan), cb)
}

// Profiles lists all profiles.
func (c *Core) Profiles() ([]domain.Profile, error) { return c.profiles.List() }

// ActiveProfile returns the profile the core is currently bound to.
func (c *Core) ActiveProfile() domain.Profile {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.profile
}

// SwitchProfile tears down the per-profile subsystems and rebuilds them
// for the named profile. The credential must be unlocked again.
func (c *Core) SwitchProfile(name string) error {
	p, err := c.profiles.Switch(name)
	if err != nil {
		return err
	}
	c.shutdownProfile()
	return c.initProfile(p)
}

// shutdownProfile stops the queue and timers of the current profile.
func (c *Core) shutdownProfile() {
	c.stopKeepaliveLoop()
	c.mu.Lock()
	queue := c.queue
	persist := c.settings.PersistQueueHistory
	c.mu.Unlock()
	if queue == nil {
		return
	}
	if persist {
		if err := queue.SaveHistory(c.historyPath()); err != nil {
			c.logger.Warn("could not persist queue history", "error", err)
		}
	}
	queue.Close()
}

// Close shuts the core down, persisting queue history when configured.
func (c *Core) Close() {
	c.shutdownProfile()
}

// Online reports connectivity as last observed.
func (c *Core) Online() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.online
}

// SetOffline toggles offline mode. Going offline pauses the queue and
// stops the timers; reads keep working from the cache. Going online
// resumes the queue and enqueues a HIGH-priority connectivity check.
func (c *Core) SetOffline(offline bool) error {
	c.mu.Lock()
	c.settings.Offline = offline
	settings := c.settings
	name := c.profile.Name
	wasOnline := c.online
	c.online = !offline
	c.mu.Unlock()

	if offline {
		c.stopKeepaliveLoop()
		c.Pause()
		if wasOnline {
			c.emitOnlineChanged(false)
		}
	} else {
		c.Resume()
		c.startKeepalive()
		_, _ = c.Submit(domain.PriorityHigh, domain.CategoryConnectivity, "Connectivity check", api.ReqConnectivity(), func(item domain.QueueItem) {
			c.setOnline(item.Result != nil && item.Result.Kind != domain.KindNetwork)
		})
	}
	return c.profiles.SaveSettings(name, settings)
}

// setOnline records observed connectivity. Losing the link pauses the
// queue; regaining it resumes. Manual offline mode goes through
// SetOffline instead and additionally stops the probe loop.
func (c *Core) setOnline(online bool) {
	c.mu.Lock()
	changed := c.online != online
	c.online = online
	c.mu.Unlock()
	if !changed {
		return
	}
	if online {
		c.Resume()
	} else {
		c.Pause()
	}
	c.emitOnlineChanged(online)
}

// startKeepalive launches the periodic connectivity probe. The probe
// calls the client directly rather than going through the queue, so it
// keeps running while the queue is paused and can bring the link back.
// Consecutive failures back off exponentially.
func (c *Core) startKeepalive() {
	c.stopKeepaliveLoop()
	c.mu.Lock()
	interval := c.settings.Keepalive()
	timeout := c.settings.HTTPTimeout()
	client := c.subs.Client
	stop := make(chan struct{})
	c.stopKeepalive = stop
	c.mu.Unlock()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = interval
	policy.MaxInterval = 10 * interval
	policy.MaxElapsedTime = 0 // probe forever; only Stop ends the loop
	policy.Reset()

	c.keepaliveWG.Add(1)
	go func() {
		defer c.keepaliveWG.Done()
		wait := interval
		for {
			select {
			case <-stop:
				return
			case <-time.After(wait):
			}
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			res := client.Do(ctx, api.ReqConnectivity())
			cancel()
			up := res.Kind != domain.KindNetwork
			c.setOnline(up)
			if up {
				policy.Reset()
				wait = interval
			} else {
				wait = policy.NextBackOff()
			}
		}
	}()
}

func (c *Core) stopKeepaliveLoop() {
	c.mu.Lock()
	stop := c.stopKeepalive
	c.stopKeepalive = nil
	c.mu.Unlock()
	if stop != nil {
		close(stop)
		c.keepaliveWG.Wait()
	}
}
