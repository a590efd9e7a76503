package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/dmitrymomot/sessionkit/pkg/session"
)

const (
	HeaderActorID    = "X-User-ID"
	HeaderActorAdmin = "X-User-Admin"
)

// ErrUnauthenticated indicates the request carries no actor.
var ErrUnauthenticated = errors.New("httpapi.unauthenticated")

// ActorResolver identifies the caller of an admin route.
type ActorResolver func(r *http.Request) (session.Actor, error)

// HeaderActor reads the actor from gateway set headers.
func HeaderActor(r *http.Request) (session.Actor, error) {
	id := r.Header.Get(HeaderActorID)
	if id == "" {
		return session.Actor{}, ErrUnauthenticated
	}
	admin, _ := strconv.ParseBool(r.Header.Get(HeaderActorAdmin))
	return session.Actor{UserID: id, Admin: admin}, nil
}
