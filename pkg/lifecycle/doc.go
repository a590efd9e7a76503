// Package lifecycle reacts to page lifecycle signals of the hosting runtime:
// tab close, page hide and show, and visibility changes.
//
// A Guard observes a Source and, when the page is about to be discarded, runs
// an owner callback and fires a best-effort logout beacon carrying the
// current session token. Pages preserved for back/forward navigation keep
// their session. The beacon never blocks teardown.
//
// For explicit sign-out flows where a short blocking call is acceptable use
// PerformLogout instead.
//
//	guard := lifecycle.NewGuard(events,
//		lifecycle.WithBeacon(lifecycle.NewHTTPBeacon()),
//		lifecycle.WithEndpoint("https://api.example.com/sessions/logout"),
//		lifecycle.WithTokenFunc(manager.Token),
//		lifecycle.WithOnVisibilityChange(func(visible bool) { ... }),
//	)
//	guard.Start()
//	defer guard.Stop()
package lifecycle
