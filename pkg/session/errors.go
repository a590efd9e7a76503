package session

import "errors"

var (
	// ErrRegistration indicates the backend rejected session creation
	ErrRegistration = errors.New("session.registration_failed")

	// ErrHeartbeat indicates a heartbeat could not reach the backend
	ErrHeartbeat = errors.New("session.heartbeat_failed")

	// ErrSessionInvalidated indicates the backend reported the session expired or revoked
	ErrSessionInvalidated = errors.New("session.invalidated")

	// ErrLogout indicates the backend logout call failed
	ErrLogout = errors.New("session.logout_failed")

	// ErrNotAuthenticated is returned by operations that need a live session
	ErrNotAuthenticated = errors.New("session.not_authenticated")

	// ErrNoStoredSession indicates there is nothing to restore in tab storage
	ErrNoStoredSession = errors.New("session.no_stored_session")

	// ErrNoBackend indicates the manager was built without a Backend
	ErrNoBackend = errors.New("session.no_backend")

	// ErrClosed is returned after Close
	ErrClosed = errors.New("session.closed")

	// ErrForbidden indicates the actor may not manage the target user's sessions
	ErrForbidden = errors.New("session.forbidden")

	// ErrSessionNotFound indicates no session matches the request
	ErrSessionNotFound = errors.New("session.not_found")
)
