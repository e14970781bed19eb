// Package domain contains the core entities and value types for desecdesk.
package domain

import (
	"sort"
	"strings"
	"time"
)

// TTL bounds enforced by the service for standard accounts.
const (
	MinTTL = 3600
	MaxTTL = 86400
)

// Zone represents a hosted DNS zone. Zones live authoritatively on the
// server; local copies are cache entries only.
type Zone struct {
	Name       string      `json:"name"` // e.g. example.com
	Created    time.Time   `json:"created"`
	Published  bool        `json:"published"`
	MinimumTTL int         `json:"minimum_ttl,omitempty"`
	Keys       []DNSSECKey `json:"keys,omitempty"`
}

// DNSSECKey is the key material the service publishes for a signed zone.
type DNSSECKey struct {
	KeyTag    int               `json:"keytag"`
	Algorithm int               `json:"algorithm"`
	Flags     int               `json:"flags"`
	Digests   map[string]string `json:"digests,omitempty"` // digest type -> hex digest
	PublicKey string            `json:"public_key"`
}

// RRset is a resource record set, the smallest unit of mutation. Its
// natural key within a zone is (Subname, Type).
type RRset struct {
	Domain  string    `json:"domain,omitempty"`
	Subname string    `json:"subname"`
	Name    string    `json:"name,omitempty"` // FQDN as reported by the server
	Type    string    `json:"type"`
	TTL     int       `json:"ttl"`
	Records []string  `json:"records"`
	Created time.Time `json:"created,omitempty"`
	Touched time.Time `json:"touched,omitempty"`
}

// Key returns the (subname, type) identity of the RRset within its zone.
func (r RRset) Key() RRsetKey {
	return RRsetKey{Subname: r.Subname, Type: r.Type}
}

// RRsetKey identifies an RRset within a zone.
type RRsetKey struct {
	Subname string
	Type    string
}

// DisplayName renders the subname for humans; the zone apex shows as "@".
func (r RRset) DisplayName() string {
	if r.Subname == "" {
		return "@"
	}
	return r.Subname
}

// SortRRsets orders a zone state canonically by (subname, type). The
// canonical order is what the version store hashes, so it must be stable.
func SortRRsets(sets []RRset) {
	sort.Slice(sets, func(i, j int) bool {
		if sets[i].Subname != sets[j].Subname {
			return sets[i].Subname < sets[j].Subname
		}
		return sets[i].Type < sets[j].Type
	})
}

// AccountInfo is the cached quota information from the account endpoint.
type AccountInfo struct {
	Email        string `json:"email,omitempty"`
	LimitDomains int    `json:"limit_domains"`
}

// CanonicalZoneName lowercases and strips the trailing dot so zone names
// compare equal regardless of input form.
func CanonicalZoneName(name string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(name)), ".")
}
