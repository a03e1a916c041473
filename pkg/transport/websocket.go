package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Socket defaults.
const (
	// DefaultHandshakeTimeout bounds the WebSocket upgrade handshake.
	DefaultHandshakeTimeout = 30 * time.Second

	// DefaultWriteTimeout bounds individual frame writes.
	DefaultWriteTimeout = 10 * time.Second

	// DefaultMaxMessageSize caps inbound frames (1 MiB).
	DefaultMaxMessageSize = 1 << 20
)

// ErrSocketClosed is returned by socket operations after Close.
var ErrSocketClosed = errors.New("socket closed")

// WebSocketOptions configures a WebSocketDialer.
type WebSocketOptions struct {
	// HandshakeTimeout bounds the upgrade handshake
	// (default: DefaultHandshakeTimeout).
	HandshakeTimeout time.Duration

	// WriteTimeout bounds each frame write (default: DefaultWriteTimeout).
	WriteTimeout time.Duration

	// MaxMessageSize caps inbound frames (default: DefaultMaxMessageSize).
	MaxMessageSize int64

	// EnableCompression negotiates per-message compression.
	EnableCompression bool

	// TLSConfig overrides TLS settings for wss:// addresses.
	TLSConfig *tls.Config
}

// WebSocketDialer establishes WebSocket sockets. It implements Dialer.
type WebSocketDialer struct {
	opts WebSocketOptions
}

// NewWebSocketDialer creates a dialer with the given options.
func NewWebSocketDialer(opts WebSocketOptions) *WebSocketDialer {
	if opts.HandshakeTimeout == 0 {
		opts.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	if opts.MaxMessageSize == 0 {
		opts.MaxMessageSize = DefaultMaxMessageSize
	}
	return &WebSocketDialer{opts: opts}
}

// Dial connects to a ws:// or wss:// address with headers attached to the
// upgrade request. The returned socket delivers no callbacks until Start.
func (d *WebSocketDialer) Dial(ctx context.Context, address string, headers http.Header, cb Callbacks) (Socket, error) {
	dialer := websocket.Dialer{
		Proxy:             http.ProxyFromEnvironment,
		HandshakeTimeout:  d.opts.HandshakeTimeout,
		EnableCompression: d.opts.EnableCompression,
		TLSClientConfig:   d.opts.TLSConfig,
	}

	conn, resp, err := dialer.DialContext(ctx, address, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: HTTP %d: %w", address, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}

	conn.SetReadLimit(d.opts.MaxMessageSize)
	conn.EnableWriteCompression(d.opts.EnableCompression)

	s := &wsSocket{
		conn:         conn,
		cb:           cb,
		writeTimeout: d.opts.WriteTimeout,
		closeCh:      make(chan struct{}),
	}
	conn.SetPongHandler(func(appData string) error {
		// Invoked from the read loop, so ordering with OnMessage holds.
		if s.cb.OnPong != nil {
			s.cb.OnPong([]byte(appData))
		}
		return nil
	})
	return s, nil
}

// wsSocket wraps a gorilla websocket connection. A single read goroutine
// (started by Start) delivers all callbacks in order.
type wsSocket struct {
	conn         *websocket.Conn
	cb           Callbacks
	writeTimeout time.Duration

	writeMu   sync.Mutex
	startOnce sync.Once
	closeOnce sync.Once
	closeCh   chan struct{}
}

// Start launches the read loop. Idempotent.
func (s *wsSocket) Start() {
	s.startOnce.Do(func() {
		go s.readLoop()
	})
}

// Send writes a text data frame.
func (s *wsSocket) Send(data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if !s.IsOpen() {
		return ErrSocketClosed
	}

	_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// Ping sends a ping control frame carrying data.
func (s *wsSocket) Ping(data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if !s.IsOpen() {
		return ErrSocketClosed
	}

	return s.conn.WriteControl(websocket.PingMessage, data, time.Now().Add(s.writeTimeout))
}

// Close sends a close frame with code and reason, then tears the
// connection down. After Close no further callbacks are delivered.
func (s *wsSocket) Close(code int, reason string) error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closeCh)

		s.writeMu.Lock()
		msg := websocket.FormatCloseMessage(code, reason)
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.writeTimeout))
		err = s.conn.Close()
		s.writeMu.Unlock()
	})
	return err
}

// IsOpen reports whether the socket is usable.
func (s *wsSocket) IsOpen() bool {
	select {
	case <-s.closeCh:
		return false
	default:
		return true
	}
}

// readLoop reads frames until the connection dies. Peer-initiated close
// frames surface as OnClose; anything else as OnError. Failures after a
// local Close are expected and suppressed.
func (s *wsSocket) readLoop() {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.closeCh:
				return
			default:
			}

			// Mark closed before the callback so IsOpen is already
			// false when the owner reacts.
			s.closeOnce.Do(func() {
				close(s.closeCh)
				_ = s.conn.Close()
			})

			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				if s.cb.OnClose != nil {
					s.cb.OnClose(closeErr.Code, closeErr.Text)
				}
			} else if s.cb.OnError != nil {
				s.cb.OnError(err)
			}
			return
		}

		if s.cb.OnMessage != nil {
			s.cb.OnMessage(data)
		}
	}
}
