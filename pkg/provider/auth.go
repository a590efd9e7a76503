package provider

import "context"

// AuthEventType is the kind of auth source notification.
type AuthEventType string

const (
	SignedIn  AuthEventType = "signed_in"
	SignedOut AuthEventType = "signed_out"
)

// AuthEvent is a sign in or sign out notification. UserID is empty for SignedOut.
type AuthEvent struct {
	Type   AuthEventType
	UserID string
}

// AuthSource is the authentication source of truth.
type AuthSource interface {
	// CurrentUser returns the signed in principal, if any.
	CurrentUser(ctx context.Context) (userID string, ok bool, err error)
	// Subscribe registers fn for sign in and sign out notifications.
	Subscribe(fn func(AuthEvent)) (unsubscribe func())
}

// SignOuter is implemented by auth sources that can revoke their own principal.
type SignOuter interface {
	SignOut(ctx context.Context) error
}
