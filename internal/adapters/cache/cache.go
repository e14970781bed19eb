// Package cache implements the three-layer per-profile cache: an indexed
// in-memory layer, a compact binary layer and a textual fallback layer.
// Reads are instantaneous, offline browsing works from disk, and the
// facade decides when cached data is stale enough to refresh.
package cache

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang/snappy"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/poyrazK/desecdesk/internal/core/domain"
	"github.com/poyrazK/desecdesk/internal/infrastructure/fsutil"
	"github.com/poyrazK/desecdesk/internal/infrastructure/metrics"
)

// maxDomains bounds the number of per-domain record entries held in
// memory at once. Evicted domains reload from disk on next access.
const maxDomains = 256

// binaryMagic prefixes every .bin file so schema drift is detected before
// snappy decoding.
var binaryMagic = []byte("DDC1")

// envelope is the persisted form of every cache key: the payload plus the
// fetch timestamp that drives staleness.
type envelope[T any] struct {
	FetchedAt time.Time `json:"fetched_at"`
	Data      T         `json:"data"`
}

type recordEntry struct {
	list    []domain.RRset
	index   map[domain.RRsetKey]domain.RRset
	fetched time.Time
}

// Store is one profile's cache. All methods are safe for concurrent use:
// the store mutex guards the zone and account state and the LRU guards
// the record entries. Disk writes happen outside those locks and are
// atomic, so a crash mid-write never leaves a torn file; concurrent
// writers of the same key are not ordered against each other on disk.
type Store struct {
	dir    string
	logger *slog.Logger

	mu           sync.RWMutex
	zones        []domain.Zone
	zonesByName  map[string]domain.Zone
	zonesFetched time.Time
	zonesLoaded  bool

	records *lru.Cache[string, *recordEntry]

	account        *domain.AccountInfo
	accountFetched time.Time
}

// New opens (or creates) the cache directory for a profile.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	records, err := lru.New[string, *recordEntry](maxDomains)
	if err != nil {
		return nil, err
	}
	return &Store{
		dir:     dir,
		logger:  slog.Default(),
		records: records,
	}, nil
}

// Zones returns the cached zone list, its fetch time and whether any
// layer had it. Memory wins, then binary, then textual.
func (s *Store) Zones() ([]domain.Zone, time.Time, bool) {
	s.mu.RLock()
	if s.zonesLoaded {
		zones := make([]domain.Zone, len(s.zones))
		copy(zones, s.zones)
		fetched := s.zonesFetched
		s.mu.RUnlock()
		metrics.CacheOperations.WithLabelValues("memory", "hit").Inc()
		return zones, fetched, true
	}
	s.mu.RUnlock()
	metrics.CacheOperations.WithLabelValues("memory", "miss").Inc()

	var env envelope[[]domain.Zone]
	if !s.loadKey("zones", &env) {
		return nil, time.Time{}, false
	}
	s.populateZones(env.Data, env.FetchedAt)
	return env.Data, env.FetchedAt, true
}

// SetZones replaces the zone list in every layer.
func (s *Store) SetZones(zones []domain.Zone) error {
	now := time.Now()
	s.populateZones(zones, now)
	return s.storeKey("zones", envelope[[]domain.Zone]{FetchedAt: now, Data: zones})
}

func (s *Store) populateZones(zones []domain.Zone, fetched time.Time) {
	index := make(map[string]domain.Zone, len(zones))
	for _, z := range zones {
		index[domain.CanonicalZoneName(z.Name)] = z
	}
	s.mu.Lock()
	s.zones = append([]domain.Zone(nil), zones...)
	s.zonesByName = index
	s.zonesFetched = fetched
	s.zonesLoaded = true
	s.mu.Unlock()
}

// ZoneByName is an O(1) lookup against the in-memory index.
func (s *Store) ZoneByName(name string) (domain.Zone, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	z, ok := s.zonesByName[domain.CanonicalZoneName(name)]
	return z, ok
}

// Records returns the cached RRsets of a zone with their fetch time.
func (s *Store) Records(zone string) ([]domain.RRset, time.Time, bool) {
	key := domain.CanonicalZoneName(zone)
	if entry, ok := s.records.Get(key); ok {
		metrics.CacheOperations.WithLabelValues("memory", "hit").Inc()
		list := make([]domain.RRset, len(entry.list))
		copy(list, entry.list)
		return list, entry.fetched, true
	}
	metrics.CacheOperations.WithLabelValues("memory", "miss").Inc()

	var env envelope[[]domain.RRset]
	if !s.loadKey(recordsKey(key), &env) {
		return nil, time.Time{}, false
	}
	s.records.Add(key, newRecordEntry(env.Data, env.FetchedAt))
	return env.Data, env.FetchedAt, true
}

// SetRecords replaces a zone's RRsets in every layer.
func (s *Store) SetRecords(zone string, sets []domain.RRset) error {
	key := domain.CanonicalZoneName(zone)
	now := time.Now()
	s.records.Add(key, newRecordEntry(sets, now))
	return s.storeKey(recordsKey(key), envelope[[]domain.RRset]{FetchedAt: now, Data: sets})
}

// RRset is an O(1) lookup by (subname, type) against the in-memory index.
// It does not fall back to disk: a missing domain entry is a miss.
func (s *Store) RRset(zone, subname, typ string) (domain.RRset, bool) {
	entry, ok := s.records.Get(domain.CanonicalZoneName(zone))
	if !ok {
		return domain.RRset{}, false
	}
	set, ok := entry.index[domain.RRsetKey{Subname: subname, Type: typ}]
	return set, ok
}

// Account returns the cached account info.
func (s *Store) Account() (domain.AccountInfo, time.Time, bool) {
	s.mu.RLock()
	if s.account != nil {
		info, fetched := *s.account, s.accountFetched
		s.mu.RUnlock()
		return info, fetched, true
	}
	s.mu.RUnlock()

	var env envelope[domain.AccountInfo]
	if !s.loadKey("account", &env) {
		return domain.AccountInfo{}, time.Time{}, false
	}
	s.mu.Lock()
	info := env.Data
	s.account = &info
	s.accountFetched = env.FetchedAt
	s.mu.Unlock()
	return env.Data, env.FetchedAt, true
}

// SetAccount replaces the account info in every layer.
func (s *Store) SetAccount(info domain.AccountInfo) error {
	now := time.Now()
	s.mu.Lock()
	stored := info
	s.account = &stored
	s.accountFetched = now
	s.mu.Unlock()
	return s.storeKey("account", envelope[domain.AccountInfo]{FetchedAt: now, Data: info})
}

// InvalidateRecords evicts records[zone] from all three layers.
func (s *Store) InvalidateRecords(zone string) error {
	key := domain.CanonicalZoneName(zone)
	s.records.Remove(key)
	return s.removeKey(recordsKey(key))
}

// InvalidateZones evicts the zone list and its index from all layers.
func (s *Store) InvalidateZones() error {
	s.mu.Lock()
	s.zones = nil
	s.zonesByName = nil
	s.zonesLoaded = false
	s.zonesFetched = time.Time{}
	s.mu.Unlock()
	return s.removeKey("zones")
}

func newRecordEntry(sets []domain.RRset, fetched time.Time) *recordEntry {
	index := make(map[domain.RRsetKey]domain.RRset, len(sets))
	for _, set := range sets {
		index[set.Key()] = set
	}
	return &recordEntry{
		list:    append([]domain.RRset(nil), sets...),
		index:   index,
		fetched: fetched,
	}
}

// recordsKey maps a zone name to its file stem. Zone names are host
// names, but a stray separator must never escape the cache directory.
func recordsKey(zone string) string {
	safe := strings.NewReplacer("/", "_", string(os.PathSeparator), "_").Replace(zone)
	return "records_" + safe
}

func (s *Store) binPath(key string) string  { return filepath.Join(s.dir, key+".bin") }
func (s *Store) jsonPath(key string) string { return filepath.Join(s.dir, key+".json") }

// storeKey writes both persistent layers atomically. A failure in either
// layer is reported but does not undo the in-memory update: the logical
// operation already succeeded.
func (s *Store) storeKey(key string, env any) error {
	text, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	framed := append(append([]byte(nil), binaryMagic...), snappy.Encode(nil, text)...)

	var errs []error
	if err := fsutil.WriteFileAtomic(s.binPath(key), framed, 0o600); err != nil {
		errs = append(errs, err)
	}
	if err := fsutil.WriteFileAtomic(s.jsonPath(key), text, 0o600); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// loadKey reads a key from the binary layer, falling back to the textual
// layer when the binary file is missing or fails to decode.
func (s *Store) loadKey(key string, out any) bool {
	if raw, err := os.ReadFile(s.binPath(key)); err == nil {
		if decoded, err := decodeBinary(raw); err == nil {
			if err := json.Unmarshal(decoded, out); err == nil {
				metrics.CacheOperations.WithLabelValues("binary", "hit").Inc()
				return true
			}
		}
		s.logger.Warn("binary cache layer unreadable, trying textual layer", "key", key)
	}
	metrics.CacheOperations.WithLabelValues("binary", "miss").Inc()

	raw, err := os.ReadFile(s.jsonPath(key))
	if err != nil {
		metrics.CacheOperations.WithLabelValues("textual", "miss").Inc()
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		s.logger.Warn("textual cache layer unreadable", "key", key, "error", err)
		metrics.CacheOperations.WithLabelValues("textual", "miss").Inc()
		return false
	}
	metrics.CacheOperations.WithLabelValues("textual", "hit").Inc()
	return true
}

func decodeBinary(raw []byte) ([]byte, error) {
	if len(raw) < len(binaryMagic) || string(raw[:len(binaryMagic)]) != string(binaryMagic) {
		return nil, errors.New("bad magic")
	}
	return snappy.Decode(nil, raw[len(binaryMagic):])
}

func (s *Store) removeKey(key string) error {
	return errors.Join(
		fsutil.RemoveIfExists(s.binPath(key)),
		fsutil.RemoveIfExists(s.jsonPath(key)),
	)
}
