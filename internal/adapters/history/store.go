// Package history is the append-only, content-addressed snapshot log of
// zone states. Snapshots are deduplicated by hash and never mutated; the
// store records intent to restore but never talks to the service itself.
package history

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofrs/flock"

	"github.com/poyrazK/desecdesk/internal/core/domain"
	"github.com/poyrazK/desecdesk/internal/infrastructure/fsutil"
	"github.com/poyrazK/desecdesk/internal/infrastructure/metrics"
)

// snapshotFile is the persisted form of one snapshot.
type snapshotFile struct {
	Zone      string         `json:"zone"`
	Message   string         `json:"message"`
	Timestamp time.Time      `json:"timestamp"`
	StateHash string         `json:"state_hash"`
	RRsets    []domain.RRset `json:"rrsets"`
}

// logFile is the per-zone index, oldest first.
type logFile struct {
	Entries []domain.SnapshotEntry `json:"entries"`
}

// Store keeps one snapshot log per zone under a profile's versions
// directory.
type Store struct {
	dir    string
	logger *slog.Logger
}

// New opens (or creates) the version store rooted at dir.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create versions dir: %w", err)
	}
	return &Store{dir: dir, logger: slog.Default()}, nil
}

// Snapshot appends the given zone state unless its content hash equals
// the most recent entry's hash. It returns the state hash and whether a
// new entry was appended.
func (s *Store) Snapshot(zone, message string, state []domain.RRset) (string, bool, error) {
	canonical := CanonicalState(state)
	hash := StateHash(canonical)

	zoneDir := s.zoneDir(zone)
	if err := os.MkdirAll(zoneDir, 0o700); err != nil {
		metrics.SnapshotsTotal.WithLabelValues("error").Inc()
		return "", false, fmt.Errorf("create zone history dir: %w", err)
	}

	lock := flock.New(filepath.Join(zoneDir, ".lock"))
	if err := lock.Lock(); err != nil {
		metrics.SnapshotsTotal.WithLabelValues("error").Inc()
		return "", false, fmt.Errorf("lock zone history: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	log, err := s.readLog(zone)
	if err != nil {
		metrics.SnapshotsTotal.WithLabelValues("error").Inc()
		return "", false, err
	}
	if n := len(log.Entries); n > 0 && log.Entries[n-1].Hash == hash {
		metrics.SnapshotsTotal.WithLabelValues("dedup").Inc()
		return hash, false, nil
	}

	entry := domain.SnapshotEntry{Hash: hash, Timestamp: time.Now(), Message: message}
	snap := snapshotFile{
		Zone:      zone,
		Message:   message,
		Timestamp: entry.Timestamp,
		StateHash: hash,
		RRsets:    canonical,
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		metrics.SnapshotsTotal.WithLabelValues("error").Inc()
		return "", false, fmt.Errorf("encode snapshot: %w", err)
	}
	if err := fsutil.WriteFileAtomic(filepath.Join(zoneDir, hash+".json"), data, 0o600); err != nil {
		metrics.SnapshotsTotal.WithLabelValues("error").Inc()
		return "", false, err
	}

	log.Entries = append(log.Entries, entry)
	if err := s.writeLog(zone, log); err != nil {
		metrics.SnapshotsTotal.WithLabelValues("error").Inc()
		return "", false, err
	}
	metrics.SnapshotsTotal.WithLabelValues("appended").Inc()
	return hash, true, nil
}

// List returns the snapshot entries for a zone, newest first. A zone with
// no history yields an empty slice, not an error.
func (s *Store) List(zone string) ([]domain.SnapshotEntry, error) {
	log, err := s.readLog(zone)
	if err != nil {
		return nil, err
	}
	out := make([]domain.SnapshotEntry, len(log.Entries))
	for i, e := range log.Entries {
		out[len(log.Entries)-1-i] = e
	}
	return out, nil
}

// Read returns the full zone state captured under hash.
func (s *Store) Read(zone, hash string) ([]domain.RRset, error) {
	if !validHash(hash) {
		return nil, fmt.Errorf("malformed snapshot hash %q", hash)
	}
	raw, err := os.ReadFile(filepath.Join(s.zoneDir(zone), hash+".json"))
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", hash, err)
	}
	var snap snapshotFile
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", hash, err)
	}
	if snap.StateHash != hash {
		return nil, fmt.Errorf("snapshot %s content hash mismatch", hash)
	}
	return snap.RRsets, nil
}

// DeleteHistory drops all entries for a zone.
func (s *Store) DeleteHistory(zone string) error {
	return os.RemoveAll(s.zoneDir(zone))
}

// RestorePlan builds the single bulk-put request body that would replace
// the zone's current RRsets with the target state: target sets as-is,
// plus empty-record tombstones for sets present now but absent then.
func RestorePlan(current, target []domain.RRset) []domain.RRset {
	targetKeys := make(map[domain.RRsetKey]struct{}, len(target))
	plan := make([]domain.RRset, 0, len(target)+len(current))
	for _, set := range target {
		targetKeys[set.Key()] = struct{}{}
		plan = append(plan, set)
	}
	for _, set := range current {
		if _, ok := targetKeys[set.Key()]; !ok {
			plan = append(plan, domain.RRset{
				Subname: set.Subname,
				Type:    set.Type,
				TTL:     set.TTL,
				Records: []string{},
			})
		}
	}
	domain.SortRRsets(plan)
	return plan
}

// CanonicalState returns a copy of the state sorted by (subname, type);
// the copy is what gets hashed and persisted. Record lists are kept as
// given and share their backing arrays with the input.
func CanonicalState(state []domain.RRset) []domain.RRset {
	out := make([]domain.RRset, len(state))
	copy(out, state)
	domain.SortRRsets(out)
	return out
}

// StateHash hashes the canonical encoding: one line per RRset with the
// records joined by newline inside the line's value field.
func StateHash(canonical []domain.RRset) string {
	h := sha256.New()
	for _, set := range canonical {
		fmt.Fprintf(h, "%s|%s|%d|%s\x00", set.Subname, set.Type, set.TTL, strings.Join(set.Records, "\n"))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (s *Store) zoneDir(zone string) string {
	safe := strings.NewReplacer("/", "_", string(os.PathSeparator), "_").Replace(domain.CanonicalZoneName(zone))
	return filepath.Join(s.dir, safe)
}

func (s *Store) logPath(zone string) string {
	return filepath.Join(s.zoneDir(zone), "log.json")
}

func (s *Store) readLog(zone string) (logFile, error) {
	var log logFile
	raw, err := os.ReadFile(s.logPath(zone))
	if os.IsNotExist(err) {
		return log, nil
	}
	if err != nil {
		return log, fmt.Errorf("read history log: %w", err)
	}
	if err := json.Unmarshal(raw, &log); err != nil {
		// A corrupt index is recoverable: rebuild from snapshot files.
		s.logger.Warn("history log corrupt, rebuilding", "zone", zone, "error", err)
		return s.rebuildLog(zone)
	}
	return log, nil
}

func (s *Store) writeLog(zone string, log logFile) error {
	data, err := json.MarshalIndent(log, "", "  ")
	if err != nil {
		return fmt.Errorf("encode history log: %w", err)
	}
	return fsutil.WriteFileAtomic(s.logPath(zone), data, 0o600)
}

// rebuildLog reconstructs the index by scanning snapshot files, ordered
// by capture time.
func (s *Store) rebuildLog(zone string) (logFile, error) {
	var log logFile
	entries, err := os.ReadDir(s.zoneDir(zone))
	if err != nil {
		return log, fmt.Errorf("scan zone history dir: %w", err)
	}
	for _, de := range entries {
		name := de.Name()
		if de.IsDir() || name == "log.json" || !strings.HasSuffix(name, ".json") {
			continue
		}
		hash := strings.TrimSuffix(name, ".json")
		if !validHash(hash) {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(s.zoneDir(zone), name))
		if err != nil {
			continue
		}
		var snap snapshotFile
		if err := json.Unmarshal(raw, &snap); err != nil {
			continue
		}
		log.Entries = append(log.Entries, domain.SnapshotEntry{
			Hash:      snap.StateHash,
			Timestamp: snap.Timestamp,
			Message:   snap.Message,
		})
	}
	sort.Slice(log.Entries, func(i, j int) bool {
		return log.Entries[i].Timestamp.Before(log.Entries[j].Timestamp)
	})
	return log, nil
}

func validHash(hash string) bool {
	if len(hash) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(hash)
	return err == nil
}
