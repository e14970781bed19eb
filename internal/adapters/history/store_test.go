package history

import (
	"testing"

	"github.com/poyrazK/desecdesk/internal/core/domain"
)

func state1() []domain.RRset {
	return []domain.RRset{
		{Subname: "www", Type: "A", TTL: 3600, Records: []string{"1.2.3.4"}},
		{Subname: "", Type: "MX", TTL: 3600, Records: []string{"10 mail.example.com."}},
	}
}

func state2() []domain.RRset {
	return []domain.RRset{
		{Subname: "www", Type: "A", TTL: 3600, Records: []string{"5.6.7.8"}},
	}
}

func TestSnapshotIdempotence(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	hash1, appended, err := store.Snapshot("example.com", "first", state1())
	if err != nil {
		t.Fatal(err)
	}
	if !appended {
		t.Fatal("first snapshot not appended")
	}
	hash2, appended, err := store.Snapshot("example.com", "second, same state", state1())
	if err != nil {
		t.Fatal(err)
	}
	if appended {
		t.Error("identical state appended a second entry")
	}
	if hash1 != hash2 {
		t.Errorf("hashes differ: %s / %s", hash1, hash2)
	}
	entries, err := store.List("example.com")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("log has %d entries, want 1", len(entries))
	}
}

// Record order must not affect the hash: the canonical encoding sorts by
// (subname, type).
func TestSnapshotCanonicalOrder(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	shuffled := []domain.RRset{state1()[1], state1()[0]}
	h1, _, err := store.Snapshot("example.com", "a", state1())
	if err != nil {
		t.Fatal(err)
	}
	h2, appended, err := store.Snapshot("example.com", "b", shuffled)
	if err != nil {
		t.Fatal(err)
	}
	if appended || h1 != h2 {
		t.Errorf("order changed the hash: %s / %s appended=%v", h1, h2, appended)
	}
}

func TestListNewestFirst(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := store.Snapshot("example.com", "one", state1()); err != nil {
		t.Fatal(err)
	}
	h2, _, err := store.Snapshot("example.com", "two", state2())
	if err != nil {
		t.Fatal(err)
	}
	entries, err := store.List("example.com")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d", len(entries))
	}
	if entries[0].Hash != h2 || entries[0].Message != "two" {
		t.Errorf("newest entry = %+v", entries[0])
	}
}

func TestReadRoundTrip(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	hash, _, err := store.Snapshot("example.com", "capture", state1())
	if err != nil {
		t.Fatal(err)
	}
	sets, err := store.Read("example.com", hash)
	if err != nil {
		t.Fatal(err)
	}
	if len(sets) != 2 {
		t.Fatalf("read %d sets", len(sets))
	}
	// Canonical order: apex MX before www A.
	if sets[0].Type != "MX" || sets[1].Subname != "www" {
		t.Errorf("sets = %+v", sets)
	}
	if _, err := store.Read("example.com", "doesnotexist"); err == nil {
		t.Error("reading a bogus hash succeeded")
	}
}

func TestDeleteHistory(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := store.Snapshot("example.com", "x", state1()); err != nil {
		t.Fatal(err)
	}
	if err := store.DeleteHistory("example.com"); err != nil {
		t.Fatal(err)
	}
	entries, err := store.List("example.com")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("entries after delete = %d", len(entries))
	}
}

func TestZoneIsolation(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := store.Snapshot("a.com", "x", state1()); err != nil {
		t.Fatal(err)
	}
	entries, err := store.List("b.com")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("b.com sees a.com history")
	}
}

func TestRestorePlan(t *testing.T) {
	current := []domain.RRset{
		{Subname: "www", Type: "A", TTL: 3600, Records: []string{"9.9.9.9"}},
		{Subname: "extra", Type: "TXT", TTL: 3600, Records: []string{`"leftover"`}},
	}
	target := state1()

	plan := RestorePlan(current, target)
	byKey := make(map[domain.RRsetKey]domain.RRset, len(plan))
	for _, set := range plan {
		byKey[set.Key()] = set
	}
	if set := byKey[domain.RRsetKey{Subname: "www", Type: "A"}]; len(set.Records) != 1 || set.Records[0] != "1.2.3.4" {
		t.Errorf("www/A not restored to target: %+v", set)
	}
	tomb, ok := byKey[domain.RRsetKey{Subname: "extra", Type: "TXT"}]
	if !ok {
		t.Fatal("no tombstone for the RRset absent from the target")
	}
	if len(tomb.Records) != 0 {
		t.Errorf("tombstone carries records: %+v", tomb)
	}
	if set := byKey[domain.RRsetKey{Subname: "", Type: "MX"}]; len(set.Records) == 0 {
		t.Errorf("apex MX missing from plan")
	}
}
