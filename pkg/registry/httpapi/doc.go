// Package httpapi exposes a session registry over HTTP.
//
//	POST /sessions                 register, body session.RegisterRequest
//	POST /sessions/heartbeat       body {"token": "..."}
//	POST /sessions/logout          body {"token": "...", "reason": "..."}, also accepts unload beacons
//	POST /sessions/revoke          body session.RevokeRequest, needs an actor
//	GET  /users/{userID}/sessions  active sessions of a user, needs an actor
//
// Errors are JSON objects {"error": "<code>"} with a matching status code.
// Admin routes resolve the calling actor with an ActorResolver. The default
// one trusts the X-User-ID and X-User-Admin headers and must only be used
// behind a gateway that sets them.
package httpapi
