package session

import (
	"time"

	"github.com/dmitrymomot/sessionkit/pkg/device"
)

// Phase is the lifecycle state of a tab's session.
type Phase string

const (
	PhaseAnonymous Phase = "anonymous"
	PhaseActive    Phase = "active"
	PhaseIdle      Phase = "idle"
	PhaseWarning   Phase = "warning"
)

// Reason tells why a session ended.
type Reason string

const (
	ReasonManualLogout       Reason = "manual_logout"
	ReasonTimeout            Reason = "timeout"
	ReasonSessionInvalidated Reason = "session_invalidated"
	ReasonBrowserClose       Reason = "browser_close"
	ReasonCrossTabLogout     Reason = "cross_tab_logout"
	ReasonSignedOut          Reason = "signed_out"
	ReasonRevoked            Reason = "revoked"
	ReasonConcurrentLimit    Reason = "concurrent_session_limit"
)

// DeviceInfo annotates a session record. It is diagnostic metadata only.
type DeviceInfo = device.Info

// State is a read-only snapshot of a tab's session.
//
// SessionToken is non-empty exactly when IsAuthenticated is true, and
// ShowTimeoutWarning implies IsIdle.
type State struct {
	Phase              Phase     `json:"phase"`
	IsAuthenticated    bool      `json:"is_authenticated"`
	UserID             string    `json:"user_id,omitempty"`
	SessionToken       string    `json:"-"`
	SessionID          string    `json:"session_id,omitempty"`
	ExpiresAt          time.Time `json:"expires_at,omitzero"`
	LastActivity       time.Time `json:"last_activity,omitzero"`
	IsIdle             bool      `json:"is_idle"`
	ShowTimeoutWarning bool      `json:"show_timeout_warning"`
	TimeUntilTimeout   int       `json:"time_until_timeout"` // seconds
}

func anonymousState() State {
	return State{Phase: PhaseAnonymous}
}
