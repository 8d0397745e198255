// Package browser launches configured browser sessions and tracks their
// lifecycle.
//
// # Backends
//
// Two backends implement the Driver interface:
//
//   - rod drives the chromium family (chrome, chromium, edge) over the
//     DevTools protocol.
//   - playwright drives firefox, and webkit for safari.
//
// The Launcher picks the backend from DriverConfig.Browser and resolves the
// executable through the driver cache unless driver_path is set.
//
// # Session Lifecycle
//
//  1. Create: SessionManager.Create launches a driver and applies stealth
//  2. Use: Get returns the driver and refreshes the session's activity time
//  3. Close: Close or CloseAll quit the browser and forget the session
//  4. Timeout: CleanupIdle closes sessions idle for longer than a limit
//
// # Example Usage
//
//	mgr := browser.NewSessionManager(browser.NewLauncher(cache))
//	err := browser.WithSession(ctx, mgr, cfg, func(s *browser.Session) error {
//	    return s.Driver.Navigate(ctx, "https://example.com")
//	})
package browser
