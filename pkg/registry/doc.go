// Package registry is the server side session registry behind
// session.Backend and session.Admin.
//
// Records are keyed by a random UUID and looked up by the SHA-256 hash of
// the client's session token, so a leaked store never reveals live tokens.
// A session expires at the earlier of its last activity plus the idle
// timeout and its creation plus the absolute timeout. Heartbeats slide the
// first bound, the second never moves.
//
// When a registration pushes a user over the concurrent session limit the
// least recently active sessions are revoked with reason
// concurrent_session_limit.
//
// Three stores are provided: MemoryStore for tests and single node
// deployments, pgstore for PostgreSQL and redisstore for Redis.
package registry
