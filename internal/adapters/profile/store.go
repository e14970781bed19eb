// Package profile manages isolated per-profile configuration: the root
// metadata file, per-profile settings with unknown-key preservation, and
// the sealed API credential.
package profile

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/poyrazK/desecdesk/internal/core/domain"
	"github.com/poyrazK/desecdesk/internal/infrastructure/fsutil"
)

var (
	// ErrProfileExists is returned by Create for a duplicate slug.
	ErrProfileExists = errors.New("profile already exists")
	// ErrProfileNotFound is returned when the named profile is unknown.
	ErrProfileNotFound = errors.New("profile not found")
	// ErrProfileProtected is returned when deleting the active or the
	// default profile.
	ErrProfileProtected = errors.New("cannot delete the active or default profile")
	// ErrNoToken is returned by UnsealToken when no credential is sealed.
	ErrNoToken = errors.New("no sealed token for profile")
)

var slugRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// metadata is the root profiles.json document.
type metadata struct {
	Active   string           `json:"active"`
	Profiles []domain.Profile `json:"profiles"`
}

// Store is the on-disk profile registry rooted at the application's
// config directory.
type Store struct {
	root   string
	logger *slog.Logger
	mu     sync.Mutex
}

// New opens the profile store at root, creating the directory and an
// initial default profile on first use.
func New(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, fmt.Errorf("create config root: %w", err)
	}
	s := &Store{root: root, logger: slog.Default()}

	if _, err := os.Stat(s.metadataPath()); os.IsNotExist(err) {
		if migrated, err := s.MigrateLegacy(); err != nil {
			return nil, err
		} else if !migrated {
			if _, err := s.Create(domain.DefaultProfileName, "Default"); err != nil {
				return nil, err
			}
		}
	}
	return s, nil
}

// Root returns the application config root.
func (s *Store) Root() string { return s.root }

func (s *Store) metadataPath() string { return filepath.Join(s.root, "profiles.json") }

func (s *Store) profileDir(name string) string {
	return filepath.Join(s.root, "profiles", name)
}

// CacheDir returns the per-profile cache directory.
func (s *Store) CacheDir(name string) string {
	return filepath.Join(s.profileDir(name), "cache")
}

// VersionsDir returns the per-profile version store directory.
func (s *Store) VersionsDir(name string) string {
	return filepath.Join(s.profileDir(name), "versions")
}

// List returns all profiles.
func (s *Store) List() ([]domain.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	meta, err := s.readMetadata()
	if err != nil {
		return nil, err
	}
	return meta.Profiles, nil
}

// Active returns the currently selected profile.
func (s *Store) Active() (domain.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	meta, err := s.readMetadata()
	if err != nil {
		return domain.Profile{}, err
	}
	for _, p := range meta.Profiles {
		if p.Name == meta.Active {
			return p, nil
		}
	}
	return domain.Profile{}, ErrProfileNotFound
}

// Create registers a new profile and writes its default settings and
// salt. The first profile created becomes active.
func (s *Store) Create(name, displayName string) (domain.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !slugRegex.MatchString(name) {
		return domain.Profile{}, fmt.Errorf("invalid profile name %q: lowercase letters, digits, - and _ only", name)
	}
	meta, err := s.readMetadata()
	if err != nil {
		return domain.Profile{}, err
	}
	for _, p := range meta.Profiles {
		if p.Name == name {
			return domain.Profile{}, ErrProfileExists
		}
	}

	if displayName == "" {
		displayName = name
	}
	p := domain.Profile{
		ID:          uuid.New().String(),
		Name:        name,
		DisplayName: displayName,
		Created:     time.Now(),
		LastUsed:    time.Now(),
	}
	if err := s.initProfileDir(name); err != nil {
		return domain.Profile{}, err
	}

	meta.Profiles = append(meta.Profiles, p)
	if meta.Active == "" {
		meta.Active = name
	}
	if err := s.writeMetadata(meta); err != nil {
		return domain.Profile{}, err
	}
	return p, nil
}

func (s *Store) initProfileDir(name string) error {
	dir := s.profileDir(name)
	for _, sub := range []string{"cache", "versions"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o700); err != nil {
			return fmt.Errorf("create profile dirs: %w", err)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "config.json")); os.IsNotExist(err) {
		if err := s.saveSettingsLocked(name, domain.DefaultSettings()); err != nil {
			return err
		}
	}
	saltPath := filepath.Join(dir, "salt")
	if _, err := os.Stat(saltPath); os.IsNotExist(err) {
		salt, err := NewSalt()
		if err != nil {
			return err
		}
		if err := fsutil.WriteFileAtomic(saltPath, salt, 0o600); err != nil {
			return err
		}
	}
	return nil
}

// Rename changes a profile's display name; the slug is immutable because
// it names the on-disk directory.
func (s *Store) Rename(name, newDisplayName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	meta, err := s.readMetadata()
	if err != nil {
		return err
	}
	for i := range meta.Profiles {
		if meta.Profiles[i].Name == name {
			meta.Profiles[i].DisplayName = newDisplayName
			return s.writeMetadata(meta)
		}
	}
	return ErrProfileNotFound
}

// Switch makes name the active profile and touches its last_used stamp.
// The caller reinitialises all per-profile subsystems afterwards.
func (s *Store) Switch(name string) (domain.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	meta, err := s.readMetadata()
	if err != nil {
		return domain.Profile{}, err
	}
	for i := range meta.Profiles {
		if meta.Profiles[i].Name == name {
			meta.Active = name
			meta.Profiles[i].LastUsed = time.Now()
			if err := s.writeMetadata(meta); err != nil {
				return domain.Profile{}, err
			}
			return meta.Profiles[i], nil
		}
	}
	return domain.Profile{}, ErrProfileNotFound
}

// Delete removes a profile and its entire directory. The active and the
// default profile are protected.
func (s *Store) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	meta, err := s.readMetadata()
	if err != nil {
		return err
	}
	if name == meta.Active || name == domain.DefaultProfileName {
		return ErrProfileProtected
	}
	idx := -1
	for i, p := range meta.Profiles {
		if p.Name == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrProfileNotFound
	}
	meta.Profiles = append(meta.Profiles[:idx], meta.Profiles[idx+1:]...)
	if err := s.writeMetadata(meta); err != nil {
		return err
	}
	return os.RemoveAll(s.profileDir(name))
}

// MigrateLegacy copies a pre-profile config.json found at the root into
// profiles/default/ and writes the root metadata. Reports whether a
// migration happened.
func (s *Store) MigrateLegacy() (bool, error) {
	legacyPath := filepath.Join(s.root, "config.json")
	legacy, err := os.ReadFile(legacyPath)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read legacy config: %w", err)
	}
	if _, err := os.Stat(s.metadataPath()); err == nil {
		return false, nil // already migrated
	}

	name := domain.DefaultProfileName
	if err := s.initProfileDir(name); err != nil {
		return false, err
	}
	if err := fsutil.WriteFileAtomic(filepath.Join(s.profileDir(name), "config.json"), legacy, 0o600); err != nil {
		return false, err
	}
	now := time.Now()
	meta := metadata{
		Active: name,
		Profiles: []domain.Profile{{
			ID:          uuid.New().String(),
			Name:        name,
			DisplayName: "Default",
			Created:     now,
			LastUsed:    now,
		}},
	}
	if err := s.writeMetadata(meta); err != nil {
		return false, err
	}
	s.logger.Info("migrated legacy single-profile config", "profile", name)
	return true, nil
}

// LoadSettings reads a profile's settings, clamping every value into its
// documented range. Unknown keys are retained for the next save.
func (s *Store) LoadSettings(name string) (domain.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadSettingsLocked(name)
}

func (s *Store) loadSettingsLocked(name string) (domain.Settings, error) {
	raw, err := os.ReadFile(filepath.Join(s.profileDir(name), "config.json"))
	if os.IsNotExist(err) {
		return domain.DefaultSettings(), nil
	}
	if err != nil {
		return domain.Settings{}, fmt.Errorf("read settings: %w", err)
	}
	settings := domain.DefaultSettings()
	if err := json.Unmarshal(raw, &settings); err != nil {
		return domain.Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	settings.Clamp()
	return settings, nil
}

// SaveSettings writes a profile's settings, merging back any unknown keys
// the file already carried so newer versions' settings survive.
func (s *Store) SaveSettings(name string, settings domain.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveSettingsLocked(name, settings)
}

func (s *Store) saveSettingsLocked(name string, settings domain.Settings) error {
	settings.Clamp()
	known, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	merged := map[string]json.RawMessage{}
	if raw, err := os.ReadFile(filepath.Join(s.profileDir(name), "config.json")); err == nil {
		_ = json.Unmarshal(raw, &merged) // unknown keys; a corrupt file loses them
	}
	var knownMap map[string]json.RawMessage
	if err := json.Unmarshal(known, &knownMap); err != nil {
		return err
	}
	for k, v := range knownMap {
		merged[k] = v
	}
	// sealed_token is omitempty: an explicit clear must erase the old key.
	if settings.SealedToken == "" {
		delete(merged, "sealed_token")
	}
	out, err := json.MarshalIndent(merged, "", "  ")
	if err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(filepath.Join(s.profileDir(name), "config.json"), out, 0o600)
}

func (s *Store) salt(name string) ([]byte, error) {
	salt, err := os.ReadFile(filepath.Join(s.profileDir(name), "salt"))
	if err != nil {
		return nil, fmt.Errorf("read profile salt: %w", err)
	}
	return salt, nil
}

// SealToken encrypts the plaintext token under the password and stores
// the sealed form in the profile's settings.
func (s *Store) SealToken(name, token, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	salt, err := s.salt(name)
	if err != nil {
		return err
	}
	sealed, err := Seal(token, password, salt)
	if err != nil {
		return err
	}
	settings, err := s.loadSettingsLocked(name)
	if err != nil {
		return err
	}
	settings.SealedToken = sealed
	return s.saveSettingsLocked(name, settings)
}

// UnsealToken decrypts the stored token. The plaintext lives in the
// caller's memory only.
func (s *Store) UnsealToken(name, password string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	settings, err := s.loadSettingsLocked(name)
	if err != nil {
		return "", err
	}
	if settings.SealedToken == "" {
		return "", ErrNoToken
	}
	salt, err := s.salt(name)
	if err != nil {
		return "", err
	}
	return Unseal(settings.SealedToken, password, salt)
}

// ClearToken removes the sealed credential, e.g. after a 401.
func (s *Store) ClearToken(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	settings, err := s.loadSettingsLocked(name)
	if err != nil {
		return err
	}
	settings.SealedToken = ""
	return s.saveSettingsLocked(name, settings)
}

func (s *Store) readMetadata() (metadata, error) {
	var meta metadata
	raw, err := os.ReadFile(s.metadataPath())
	if os.IsNotExist(err) {
		return meta, nil
	}
	if err != nil {
		return meta, fmt.Errorf("read profiles metadata: %w", err)
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return meta, fmt.Errorf("decode profiles metadata: %w", err)
	}
	return meta, nil
}

func (s *Store) writeMetadata(meta metadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encode profiles metadata: %w", err)
	}
	return fsutil.WriteFileAtomic(s.metadataPath(), data, 0o600)
}
