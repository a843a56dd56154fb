// Package auth contains domain-level types for authentication and sessions.
// It is pure and free of framework/adapter concerns.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"time"
)

// Role represents an application's authorization role.
// Keep string form for easy persistence and cookies.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleMember  Role = "member"
	RoleSupport Role = "support"
)

// Session is the server-side record persisted for an authenticated user.
// ID is an opaque session identifier (random URL-safe string).
//
// UserAgentHash and IPPrefix bind the session to the client that created
// it; a cookie replayed from a different device or network is rejected.
type Session struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	TenantID      string    `json:"tenant_id"`
	PhoneE164     string    `json:"phone_e164"`
	Role          Role      `json:"role"`
	UserAgentHash string    `json:"user_agent_hash"`
	IPPrefix      string    `json:"ip_prefix"`
	CreatedAt     time.Time `json:"created_at"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// Expired returns true once the session is past its expiry.
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// MatchesBinding verifies the session's client binding in constant time.
// Empty stored bindings (legacy sessions) match anything.
func (s Session) MatchesBinding(userAgent, ipPrefix string) bool {
	uaOK := s.UserAgentHash == "" ||
		subtle.ConstantTimeCompare([]byte(s.UserAgentHash), []byte(HashUserAgent(userAgent))) == 1
	ipOK := s.IPPrefix == "" ||
		subtle.ConstantTimeCompare([]byte(s.IPPrefix), []byte(ipPrefix)) == 1
	return uaOK && ipOK
}

// HashUserAgent derives the stored binding value from a raw User-Agent.
// Hashing keeps raw client strings out of the session store.
func HashUserAgent(userAgent string) string {
	if userAgent == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(userAgent))
	return hex.EncodeToString(sum[:])
}
