package domain

import "time"

// SnapshotEntry describes one version-store snapshot of a zone. Entries
// are content-addressed and never mutated after being appended.
type SnapshotEntry struct {
	Hash      string    `json:"hash"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}
