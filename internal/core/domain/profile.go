package domain

import "time"

// Profile is an isolated configuration namespace. Each profile owns its
// own config file, credential seal, cache directory and version store.
type Profile struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"` // slug, directory-safe
	DisplayName string    `json:"display_name"`
	Created     time.Time `json:"created"`
	LastUsed    time.Time `json:"last_used"`
}

// DefaultProfileName is the profile legacy configs migrate into. It can
// never be deleted.
const DefaultProfileName = "default"

// Settings is the per-profile configuration schema. Unknown keys found on
// disk are kept with their values on save (re-encoded, so whitespace may
// change) but never interpreted.
type Settings struct {
	APIURL               string  `json:"api_url"`
	SealedToken          string  `json:"sealed_token,omitempty"` // base64, authenticated ciphertext
	SyncIntervalMinutes  int     `json:"sync_interval_minutes"`
	RateLimit            float64 `json:"rate_limit"` // requests per second, 0 disables
	HTTPTimeoutSeconds   int     `json:"http_timeout_seconds"`
	KeepaliveSeconds     int     `json:"keepalive_seconds"`
	Theme                string  `json:"theme"` // passthrough for the UI shell
	Debug                bool    `json:"debug"`
	ShowLogConsole       bool    `json:"show_log_console"`
	ShowMultilineRecords bool    `json:"show_multiline_records"`
	Offline              bool    `json:"offline"`
	PersistQueueHistory  bool    `json:"persist_queue_history"`
	QueueHistoryLimit    int     `json:"queue_history_limit"`
}

// DefaultSettings returns the schema defaults for a fresh profile.
func DefaultSettings() Settings {
	return Settings{
		APIURL:              "https://desec.io/api/v1",
		SyncIntervalMinutes: 15,
		RateLimit:           2.0,
		HTTPTimeoutSeconds:  30,
		KeepaliveSeconds:    60,
		Theme:               "system",
		PersistQueueHistory: true,
		QueueHistoryLimit:   5000,
	}
}

// Clamp forces every numeric setting into its documented range. The sync
// interval is capped at 60 and rate_limit is clamped into [0, 10]; a sync
// interval below 1, non-positive timeout, keepalive and history values and
// an empty api_url take the default.
func (s *Settings) Clamp() {
	if s.APIURL == "" {
		s.APIURL = DefaultSettings().APIURL
	}
	switch {
	case s.SyncIntervalMinutes < 1:
		s.SyncIntervalMinutes = 15
	case s.SyncIntervalMinutes > 60:
		s.SyncIntervalMinutes = 60
	}
	switch {
	case s.RateLimit < 0:
		s.RateLimit = 0
	case s.RateLimit > 10:
		s.RateLimit = 10
	}
	if s.HTTPTimeoutSeconds <= 0 {
		s.HTTPTimeoutSeconds = 30
	}
	if s.KeepaliveSeconds <= 0 {
		s.KeepaliveSeconds = 60
	}
	if s.QueueHistoryLimit <= 0 {
		s.QueueHistoryLimit = 5000
	}
}

// SyncInterval is the zone staleness horizon.
func (s Settings) SyncInterval() time.Duration {
	return time.Duration(s.SyncIntervalMinutes) * time.Minute
}

// HTTPTimeout is the per-request deadline.
func (s Settings) HTTPTimeout() time.Duration {
	return time.Duration(s.HTTPTimeoutSeconds) * time.Second
}

// Keepalive is the connectivity probe interval.
func (s Settings) Keepalive() time.Duration {
	return time.Duration(s.KeepaliveSeconds) * time.Second
}
