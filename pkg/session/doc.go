// Package session keeps the client side of an authenticated session: one
// Manager per browser tab tracks whether the user is active, idle or about to
// time out, keeps the backend session alive with heartbeats and ends the
// session consistently on logout, idle timeout, server side revocation, tab
// close or a logout in a sibling tab.
//
// # State machine
//
//	anonymous --StartSession/RestoreSession--> active
//	active    --no input for IdleTimeout-----> idle
//	idle      --IdleTimeout-WarnBeforeTimeout-> warning (1s countdown)
//	idle, warning --input/ExtendSession/sibling activity--> active
//	any       --EndSession/countdown zero/heartbeat invalid--> anonymous
//
// The backend is authoritative: a heartbeat reporting an expired or revoked
// session ends the local session whatever its phase.
//
// # Concurrency
//
// Timers, interaction events, lifecycle events, heartbeat completions and
// cross-tab messages arrive on different goroutines. Every one of them goes
// through a mutex guarded update and carries the session epoch it was
// created for; completions for an ended epoch are dropped. Start, restore
// and end are additionally serialized so a slow backend call can never
// interleave with another transition.
//
// # Usage
//
//	mgr := session.New(client,
//		session.WithConfig(cfg),
//		session.WithBus(bus),
//		session.WithActivitySource(input),
//		session.WithLifecycleSource(pageEvents),
//		session.WithBeacon(lifecycle.NewHTTPBeacon()),
//		session.WithLogger(log),
//	)
//	defer mgr.Close()
//
//	mgr.Subscribe(func(s session.State) { render(s) })
//
//	if err := mgr.RestoreSession(ctx); err != nil {
//		err = mgr.StartSession(ctx, userID)
//	}
//
//	mgr.EndSession(ctx, session.ReasonManualLogout)
package session
