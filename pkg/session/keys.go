package session

// Namespace prefixes every key the manager writes to tab storage.
const Namespace = "sessionkit."

const (
	KeySessionToken = Namespace + "session_token"
	KeyUserID       = Namespace + "user_id"
	KeySessionID    = Namespace + "session_id"
	KeyTabID        = Namespace + "tab_id"
)
