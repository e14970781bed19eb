package domain

import "time"

// Token is a long-lived API credential. The secret is returned by the
// server exactly once on creation and is never persisted locally.
type Token struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Created          time.Time  `json:"created"`
	LastUsed         *time.Time `json:"last_used,omitempty"`
	ValidUntil       *time.Time `json:"valid_until,omitempty"`
	PermCreateDomain bool       `json:"perm_create_domain"`
	PermDeleteDomain bool       `json:"perm_delete_domain"`
	PermManageTokens bool       `json:"perm_manage_tokens"`
	AutoPolicy       bool       `json:"auto_policy"`
	MaxAge           *string    `json:"max_age,omitempty"`
	MaxUnusedPeriod  *string    `json:"max_unused_period,omitempty"`
	AllowedSubnets   []string   `json:"allowed_subnets,omitempty"`
}

// TokenSecret pairs a freshly created token with its one-time secret.
// The secret must be handed to the caller and then dropped; it is never
// written to disk or logs.
type TokenSecret struct {
	Token  Token
	Secret string
}

// TokenPolicy is a fine-grained RRset ACL row for a token. A nil Domain,
// Subname or Type acts as a catch-all wildcard.
type TokenPolicy struct {
	ID        string  `json:"id"`
	TokenID   string  `json:"-"`
	Domain    *string `json:"domain"`
	Subname   *string `json:"subname"`
	Type      *string `json:"type"`
	PermWrite bool    `json:"perm_write"`
}
