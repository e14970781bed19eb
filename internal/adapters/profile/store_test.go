package profile

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"

	"github.com/poyrazK/desecdesk/internal/core/domain"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return store
}

func TestNewCreatesDefaultProfile(t *testing.T) {
	store := newStore(t)
	active, err := store.Active()
	if err != nil {
		t.Fatal(err)
	}
	if active.Name != domain.DefaultProfileName {
		t.Errorf("active = %s, want default", active.Name)
	}
	if active.ID == "" {
		t.Error("profile has no id")
	}
	for _, dir := range []string{store.CacheDir(active.Name), store.VersionsDir(active.Name)} {
		if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
			t.Errorf("missing profile dir %s: %v", dir, err)
		}
	}
}

func TestCreateSwitchDelete(t *testing.T) {
	store := newStore(t)
	if _, err := store.Create("work", "Work account"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Create("work", "dup"); !errors.Is(err, ErrProfileExists) {
		t.Errorf("duplicate create: %v", err)
	}
	if _, err := store.Create("Bad Name", ""); err == nil {
		t.Error("invalid slug accepted")
	}

	p, err := store.Switch("work")
	if err != nil {
		t.Fatal(err)
	}
	if p.DisplayName != "Work account" {
		t.Errorf("switched profile = %+v", p)
	}

	// Active and default profiles are protected.
	if err := store.Delete("work"); !errors.Is(err, ErrProfileProtected) {
		t.Errorf("deleting active: %v", err)
	}
	if _, err := store.Switch(domain.DefaultProfileName); err != nil {
		t.Fatal(err)
	}
	if err := store.Delete(domain.DefaultProfileName); !errors.Is(err, ErrProfileProtected) {
		t.Errorf("deleting default: %v", err)
	}
	if err := store.Delete("work"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(store.Root(), "profiles", "work")); !os.IsNotExist(err) {
		t.Error("profile dir survives deletion")
	}
	if err := store.Delete("work"); !errors.Is(err, ErrProfileNotFound) {
		t.Errorf("double delete: %v", err)
	}
}

func TestRename(t *testing.T) {
	store := newStore(t)
	if err := store.Rename(domain.DefaultProfileName, "Main"); err != nil {
		t.Fatal(err)
	}
	profiles, err := store.List()
	if err != nil {
		t.Fatal(err)
	}
	if profiles[0].DisplayName != "Main" {
		t.Errorf("display name = %s", profiles[0].DisplayName)
	}
	if err := store.Rename("ghost", "x"); !errors.Is(err, ErrProfileNotFound) {
		t.Errorf("renaming unknown: %v", err)
	}
}

func TestSettingsDefaultsAndClamp(t *testing.T) {
	store := newStore(t)
	settings, err := store.LoadSettings(domain.DefaultProfileName)
	if err != nil {
		t.Fatal(err)
	}
	want := domain.DefaultSettings()
	if settings.APIURL != want.APIURL || settings.SyncIntervalMinutes != 15 || settings.RateLimit != 2.0 {
		t.Errorf("defaults = %+v", settings)
	}

	settings.SyncIntervalMinutes = 500
	if err := store.SaveSettings(domain.DefaultProfileName, settings); err != nil {
		t.Fatal(err)
	}
	settings, err = store.LoadSettings(domain.DefaultProfileName)
	if err != nil {
		t.Fatal(err)
	}
	if settings.SyncIntervalMinutes != 60 {
		t.Errorf("sync interval = %d, want clamped 60", settings.SyncIntervalMinutes)
	}
}

// Unknown keys written by a newer version must survive a load-save cycle.
func TestSettingsPreserveUnknownKeys(t *testing.T) {
	store := newStore(t)
	path := filepath.Join(store.Root(), "profiles", domain.DefaultProfileName, "config.json")

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatal(err)
	}
	doc["future_flag"] = json.RawMessage(`{"nested":true}`)
	out, _ := json.Marshal(doc)
	if err := os.WriteFile(path, out, 0o600); err != nil {
		t.Fatal(err)
	}

	settings, err := store.LoadSettings(domain.DefaultProfileName)
	if err != nil {
		t.Fatal(err)
	}
	settings.Debug = true
	if err := store.SaveSettings(domain.DefaultProfileName, settings); err != nil {
		t.Fatal(err)
	}

	raw, err = os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	doc = nil
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatal(err)
	}
	// SaveSettings re-indents the file, so compare the value without
	// whitespace.
	var flag bytes.Buffer
	if err := json.Compact(&flag, doc["future_flag"]); err != nil {
		t.Fatal(err)
	}
	if flag.String() != `{"nested":true}` {
		t.Errorf("future_flag = %s", doc["future_flag"])
	}
	if string(doc["debug"]) != "true" {
		t.Errorf("debug = %s", doc["debug"])
	}
}

func TestMigrateLegacy(t *testing.T) {
	root := t.TempDir()
	legacy := []byte(`{"api_url":"https://desec.example/api/v1","sync_interval_minutes":30}`)
	if err := os.WriteFile(filepath.Join(root, "config.json"), legacy, 0o600); err != nil {
		t.Fatal(err)
	}

	store, err := New(root)
	if err != nil {
		t.Fatal(err)
	}
	active, err := store.Active()
	if err != nil {
		t.Fatal(err)
	}
	if active.Name != domain.DefaultProfileName {
		t.Errorf("active = %s", active.Name)
	}
	settings, err := store.LoadSettings(domain.DefaultProfileName)
	if err != nil {
		t.Fatal(err)
	}
	if settings.APIURL != "https://desec.example/api/v1" || settings.SyncIntervalMinutes != 30 {
		t.Errorf("migrated settings = %+v", settings)
	}
}

func TestSealedTokenLifecycle(t *testing.T) {
	store := newStore(t)
	name := domain.DefaultProfileName

	if _, err := store.UnsealToken(name, "pw"); !errors.Is(err, ErrNoToken) {
		t.Errorf("unseal with no token: %v", err)
	}
	if err := store.SealToken(name, "super-secret", "pw"); err != nil {
		t.Fatal(err)
	}

	// The plaintext must not appear in the config file.
	raw, err := os.ReadFile(filepath.Join(store.Root(), "profiles", name, "config.json"))
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(raw, []byte("super-secret")) {
		t.Error("plaintext token leaked into config.json")
	}

	token, err := store.UnsealToken(name, "pw")
	if err != nil {
		t.Fatal(err)
	}
	if token != "super-secret" {
		t.Errorf("unsealed = %q", token)
	}
	if _, err := store.UnsealToken(name, "wrong"); !errors.Is(err, ErrWrongPassword) {
		t.Errorf("wrong password: %v", err)
	}

	if err := store.ClearToken(name); err != nil {
		t.Fatal(err)
	}
	if _, err := store.UnsealToken(name, "pw"); !errors.Is(err, ErrNoToken) {
		t.Errorf("unseal after clear: %v", err)
	}
}

