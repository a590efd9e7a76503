// Package device derives diagnostic metadata about the environment a session
// runs in and generates session tokens.
//
// Generate combines several weak environmental signals (user agent, language,
// screen geometry, timezone offset, core count and touch points) into a compact
// fingerprint and classifies the browser, operating system and device class.
// The fingerprint is NOT cryptographically secure and must never be used as
// an authorization credential. It annotates the server side session record so
// that session listings can show entries such as "Chrome on Windows".
//
// When no environment is available (server side rendering, background jobs)
// Generate returns Sentinel, so callers never need a nil check.
//
// Session tokens come from a TokenGenerator reading 256 bits from
// crypto/rand. If the entropy source fails the generator logs a warning and
// falls back to a seeded ChaCha8 generator.
package device
