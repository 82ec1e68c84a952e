package model

import "time"

// CredentialEntry is the shared cached credential stored in Redis.
// ExpiresAt is already margin-adjusted: a token read before ExpiresAt is
// safe to use for the duration of one request.
type CredentialEntry struct {
	Token       string    `json:"token"`
	ExpiresAt   time.Time `json:"expires_at"`
	Placeholder bool      `json:"placeholder,omitempty"`
}

// Valid reports whether the cached token can still be served.
func (e *CredentialEntry) Valid(now time.Time) bool {
	return e != nil && e.Token != "" && now.Before(e.ExpiresAt)
}
