// Package transport implements the uplink client transport layer.
//
// The transport wraps a single WebSocket connection to a remote monitoring
// endpoint and handles:
//   - Connection establishment with embedded authentication proof
//   - JSON envelope framing and channel-based dispatch
//   - Keep-alive ping/pong for connection liveness
//   - Connection state management and manual reconnection
//
// # Protocol Stack
//
//	┌────────────────────────────────┐
//	│   JSON Envelopes (channels)    │
//	├────────────────────────────────┤
//	│   WebSocket messages + pings   │
//	├────────────────────────────────┤
//	│   HTTP upgrade w/ auth headers │
//	├────────────────────────────────┤
//	│         TCP (or TLS)           │
//	└────────────────────────────────┘
//
// # Authentication
//
// An agent proves possession of the pre-shared secret once, at connect
// time: the upgrade request carries X-PUBLIC-KEY, X-AUTH-DATA (the cipher
// of JSON-serialized system metadata under the secret key), X-SERVER-NAME
// and X-CLIENT-VERSION. Nothing is retransmitted mid-connection.
//
// # Lifecycle
//
// States move Disconnected → Connecting → Connected → Disconnected.
// Errors fold into the close path: any socket-level error while connected
// forces a close with code 400 before the error reaches subscribers, so
// the transport never sits on a half-open socket. A graceful Disconnect
// uses close code 1000. Every connection attempt carries a generation
// number; signals from a superseded socket are dropped rather than
// corrupting the active connection's state.
package transport
