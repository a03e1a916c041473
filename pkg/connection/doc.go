// Package connection keeps a transport connected across failures.
//
// This package handles:
//   - Exponential backoff for redial attempts
//   - Jitter to prevent thundering herd
//   - Supervision state tracking
//   - Automatic redial on unexpected closes
//
// # Redial Strategy
//
// When the supervised client reports a non-graceful close, the
// supervisor redials with exponential backoff:
//
//  1. Initial delay: 1 second
//  2. Exponential increase: 2s, 4s, 8s, 16s, 32s
//  3. Maximum delay: 60 seconds
//  4. Continue at 60s until successful (or the attempt cap)
//  5. Reset to 1s on successful reconnection
//
// # Jitter
//
// To prevent thundering herd when multiple agents redial at once:
//
//	actual_delay = base_delay + random(0, base_delay * 0.25)
//
// # Graceful closes
//
// A close with code 1000 means the caller asked for the disconnect.
// The supervisor treats it as the end of supervision, not a failure,
// and does not redial.
package connection
