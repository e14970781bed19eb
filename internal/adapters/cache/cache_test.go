package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/poyrazK/desecdesk/internal/core/domain"
)

func testZones() []domain.Zone {
	return []domain.Zone{
		{Name: "example.com", Published: true},
		{Name: "example.net"},
	}
}

func testRecords() []domain.RRset {
	return []domain.RRset{
		{Subname: "www", Type: "A", TTL: 3600, Records: []string{"1.2.3.4"}},
		{Subname: "", Type: "MX", TTL: 3600, Records: []string{"10 mail.example.com."}},
	}
}

func TestZonesRoundTripAndIndex(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, _, ok := store.Zones(); ok {
		t.Fatal("cold store reports zones")
	}
	if err := store.SetZones(testZones()); err != nil {
		t.Fatal(err)
	}
	zones, fetched, ok := store.Zones()
	if !ok || len(zones) != 2 {
		t.Fatalf("zones = %v ok=%v", zones, ok)
	}
	if fetched.IsZero() {
		t.Error("fetched time is zero")
	}
	z, ok := store.ZoneByName("EXAMPLE.COM")
	if !ok || !z.Published {
		t.Errorf("index lookup = %+v ok=%v", z, ok)
	}
}

// A second store over the same directory must read what the first wrote:
// the persistent layers back the memory layer.
func TestPersistentReadThrough(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.SetRecords("example.com", testRecords()); err != nil {
		t.Fatal(err)
	}

	reopened, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}
	sets, _, ok := reopened.Records("example.com")
	if !ok || len(sets) != 2 {
		t.Fatalf("records after reopen = %v ok=%v", sets, ok)
	}
	set, ok := reopened.RRset("example.com", "www", "A")
	if !ok || set.Records[0] != "1.2.3.4" {
		t.Errorf("rrset index = %+v ok=%v", set, ok)
	}
}

// Corrupting the binary layer must fall back to the textual layer.
func TestLayerFallback(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.SetZones(testZones()); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "zones.bin"), []byte("garbage"), 0o600); err != nil {
		t.Fatal(err)
	}

	reopened, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}
	zones, _, ok := reopened.Zones()
	if !ok || len(zones) != 2 {
		t.Fatalf("fallback zones = %v ok=%v", zones, ok)
	}
}

func TestInvalidateRecords(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.SetRecords("example.com", testRecords()); err != nil {
		t.Fatal(err)
	}
	if err := store.InvalidateRecords("example.com"); err != nil {
		t.Fatal(err)
	}
	if _, _, ok := store.Records("example.com"); ok {
		t.Error("records still cached after invalidation")
	}
	for _, name := range []string{"records_example.com.bin", "records_example.com.json"} {
		if _, err := os.Stat(filepath.Join(dir, name)); !os.IsNotExist(err) {
			t.Errorf("%s still exists", name)
		}
	}
}

func TestInvalidateZones(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := store.SetZones(testZones()); err != nil {
		t.Fatal(err)
	}
	if err := store.InvalidateZones(); err != nil {
		t.Fatal(err)
	}
	if _, _, ok := store.Zones(); ok {
		t.Error("zones still cached after invalidation")
	}
	if _, ok := store.ZoneByName("example.com"); ok {
		t.Error("zone index still populated after invalidation")
	}
}

func TestAccountRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.SetAccount(domain.AccountInfo{LimitDomains: 15}); err != nil {
		t.Fatal(err)
	}
	reopened, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}
	info, fetched, ok := reopened.Account()
	if !ok || info.LimitDomains != 15 {
		t.Fatalf("account = %+v ok=%v", info, ok)
	}
	if time.Since(fetched) > time.Minute {
		t.Errorf("fetched = %v", fetched)
	}
}

// Two stores over different directories must not see each other's data.
func TestProfileIsolation(t *testing.T) {
	a, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	b, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := a.SetZones(testZones()); err != nil {
		t.Fatal(err)
	}
	if _, _, ok := b.Zones(); ok {
		t.Error("profile B sees profile A's zones")
	}
}
