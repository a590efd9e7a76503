package session

import (
	"context"
	"time"
)

// Backend is the server side session registry consumed by a Manager.
type Backend interface {
	// Register records a new session and enforces the concurrent session
	// limit by revoking the least recently active sessions of the user.
	Register(ctx context.Context, req RegisterRequest) (Registration, error)

	// Heartbeat checks the session and slides its idle expiry.
	Heartbeat(ctx context.Context, token string) (HeartbeatResult, error)

	// Logout ends the session. An unknown or already ended token is a success.
	Logout(ctx context.Context, token string, reason Reason) (LogoutResult, error)
}

// Admin is the administrative and self-service side of the registry.
type Admin interface {
	Revoke(ctx context.Context, actor Actor, req RevokeRequest) (int, error)
	ListSessions(ctx context.Context, actor Actor, userID string) ([]Summary, error)
}

// RegisterRequest creates a session for UserID identified by Token.
type RegisterRequest struct {
	UserID                string        `json:"user_id"`
	Token                 string        `json:"token"`
	Device                DeviceInfo    `json:"device"`
	IdleTimeout           time.Duration `json:"idle_timeout"`
	AbsoluteTimeout       time.Duration `json:"absolute_timeout"`
	MaxConcurrentSessions int           `json:"max_concurrent_sessions"`
	IPAddress             string        `json:"ip_address,omitempty"`
}

// Registration is the registry's answer to a RegisterRequest.
type Registration struct {
	SessionID         string    `json:"session_id"`
	ExpiresAt         time.Time `json:"expires_at"`
	RevokedSessionIDs []string  `json:"revoked_session_ids,omitempty"`
}

// HeartbeatResult reports the state of a session. Valid is false whenever
// Expired or Revoked is true.
type HeartbeatResult struct {
	Valid     bool      `json:"valid"`
	Expired   bool      `json:"expired,omitempty"`
	Revoked   bool      `json:"revoked,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
}

// Invalidated reports whether the session must end.
func (r HeartbeatResult) Invalidated() bool {
	return !r.Valid || r.Expired || r.Revoked
}

// LogoutResult acknowledges a logout.
type LogoutResult struct {
	Success          bool `json:"success"`
	AlreadyLoggedOut bool `json:"already_logged_out,omitempty"`
}

// Actor is the caller of an Admin operation.
type Actor struct {
	UserID string `json:"user_id"`
	Admin  bool   `json:"admin"`
}

// CanManage reports whether a may manage the sessions of userID.
func (a Actor) CanManage(userID string) bool {
	return a.Admin || (a.UserID != "" && a.UserID == userID)
}

// RevokeRequest targets a single session by SessionID, or every active
// session of UserID when RevokeAll is set.
type RevokeRequest struct {
	SessionID string `json:"session_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	RevokeAll bool   `json:"revoke_all,omitempty"`
	Reason    Reason `json:"reason,omitempty"`
}

// Summary describes an active session without exposing its token.
type Summary struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	Device       DeviceInfo `json:"device"`
	DeviceLabel  string     `json:"device_label"`
	IPAddress    string     `json:"ip_address,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	LastActivity time.Time  `json:"last_activity"`
	ExpiresAt    time.Time  `json:"expires_at"`
}
