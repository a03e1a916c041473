// Package wire defines the uplink wire format.
//
// After connection establishment every message exchanged with the remote
// endpoint is an Envelope: a JSON object carrying the protocol version, a
// channel name and an arbitrary JSON payload.
//
//	{"version":1,"channel":"metrics","payload":{"cpu":10}}
//
// An inbound object missing any of the three keys is not a valid Envelope
// and is discarded by the transport without dispatch.
//
// Connection establishment itself is authenticated out-of-band via HTTP
// headers on the WebSocket upgrade request; BuildAuthHeaders constructs
// that header set.
package wire
