package transport

import (
	"context"
	"net/http"
)

// Callbacks are the signals a Socket delivers to its owner. All callbacks
// for one socket are invoked from a single goroutine, one at a time, in
// the order the underlying events occurred. A socket must not invoke any
// callback before Start is called.
type Callbacks struct {
	// OnMessage delivers a raw inbound data frame.
	OnMessage func(data []byte)

	// OnPong delivers the payload of a pong control frame.
	OnPong func(data []byte)

	// OnError reports a socket failure (read error, broken pipe).
	OnError func(err error)

	// OnClose reports a close frame received from the peer.
	OnClose func(code int, reason string)
}

// Socket is the raw duplex connection primitive owned by a Transport.
// Implemented by wsSocket; tests substitute stubs.
type Socket interface {
	// Start begins delivering callbacks. Idempotent.
	Start()

	// Send writes a data frame.
	Send(data []byte) error

	// Ping sends a ping control frame with the given payload.
	Ping(data []byte) error

	// Close sends a close frame with the given code and reason, then
	// tears down the connection. Idempotent.
	Close(code int, reason string) error

	// IsOpen reports whether the socket is usable.
	IsOpen() bool
}

// Dialer establishes sockets. Implemented by WebSocketDialer.
type Dialer interface {
	// Dial connects to address, attaching headers to the connection
	// handshake. On success the returned socket is open but not yet
	// started; the caller registers interest by having passed cb and
	// activates delivery with Start.
	Dial(ctx context.Context, address string, headers http.Header, cb Callbacks) (Socket, error)
}

// Compile-time interface satisfaction checks.
var (
	_ Socket = (*wsSocket)(nil)
	_ Dialer = (*WebSocketDialer)(nil)
)
