// Package provider binds one session.Manager to an external authentication
// source.
//
// A Provider is created once at the application's composition root and
// passed to every component that needs the session. On Mount it asks the
// auth source for the current principal, restores the tab's stored session
// or starts a fresh one, and from then on mirrors the auth source's sign in
// and sign out notifications into the manager.
//
//	p := provider.New(auth, backend,
//		provider.WithOptions(session.Options{IdleTimeoutMinutes: 30}),
//		provider.WithLogger(log),
//	)
//	p.Mount(ctx)
//	defer p.Unmount()
//
//	if !p.Login(ctx, userID) {
//		// keep the user on the sign in flow
//	}
//
// Sessions ended by the manager itself (idle timeout, server revocation,
// a sibling tab's logout) sign the auth source out when it implements
// SignOuter, so both stay aligned.
package provider
