package registry

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/dmitrymomot/sessionkit/pkg/session"
)

// Record is the stored form of a session.
type Record struct {
	ID              string             `json:"id"`
	TokenHash       string             `json:"token_hash"`
	UserID          string             `json:"user_id"`
	Device          session.DeviceInfo `json:"device"`
	IPAddress       string             `json:"ip_address,omitempty"`
	Active          bool               `json:"active"`
	CreatedAt       time.Time          `json:"created_at"`
	LastActivity    time.Time          `json:"last_activity"`
	ExpiresAt       time.Time          `json:"expires_at"`
	IdleTimeout     time.Duration      `json:"idle_timeout"`
	AbsoluteTimeout time.Duration      `json:"absolute_timeout"`
	RevokedAt       time.Time          `json:"revoked_at,omitzero"`
	RevokeReason    session.Reason     `json:"revoke_reason,omitempty"`
}

// HashToken returns the lookup key stored for token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// expiry is min(last activity + idle, created + absolute).
func (r Record) expiry() time.Time {
	idle := r.LastActivity.Add(r.IdleTimeout)
	absolute := r.CreatedAt.Add(r.AbsoluteTimeout)
	if absolute.Before(idle) {
		return absolute
	}
	return idle
}

// Live reports whether r is active and not expired at now.
func (r Record) Live(now time.Time) bool {
	return r.Active && now.Before(r.ExpiresAt)
}

func (r *Record) end(now time.Time, reason session.Reason) {
	r.Active = false
	r.RevokedAt = now
	r.RevokeReason = reason
}

// Summary returns the listing form of r.
func (r Record) Summary() session.Summary {
	return session.Summary{
		ID:           r.ID,
		UserID:       r.UserID,
		Device:       r.Device,
		DeviceLabel:  r.Device.Label(),
		IPAddress:    r.IPAddress,
		CreatedAt:    r.CreatedAt,
		LastActivity: r.LastActivity,
		ExpiresAt:    r.ExpiresAt,
	}
}
