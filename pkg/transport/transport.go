package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/uplink-protocol/uplink-go/pkg/auth"
	"github.com/uplink-protocol/uplink-go/pkg/dispatch"
	"github.com/uplink-protocol/uplink-go/pkg/log"
	"github.com/uplink-protocol/uplink-go/pkg/sysinfo"
	"github.com/uplink-protocol/uplink-go/pkg/version"
	"github.com/uplink-protocol/uplink-go/pkg/wire"
)

// Connection states.
type ConnectionState int

const (
	// StateDisconnected indicates no connection.
	StateDisconnected ConnectionState = iota

	// StateConnecting indicates connection in progress.
	StateConnecting

	// StateConnected indicates an active connection.
	StateConnected
)

// String returns the connection state name.
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	default:
		return "UNKNOWN"
	}
}

// Close codes used on the wire.
const (
	// CloseCodeNormal is sent on a graceful, caller-initiated disconnect.
	CloseCodeNormal = 1000

	// CloseCodeError is sent on a forced close following a transport error.
	CloseCodeError = 400
)

// Transport errors.
var (
	ErrAlreadyConnected = errors.New("already connected")
	ErrNotConnected     = errors.New("not connected")
	ErrInvalidState     = errors.New("no previous address to reconnect to")
	ErrEmptyChannel     = errors.New("channel must not be empty")
	ErrEmptyPayload     = errors.New("payload must not be nil")
	ErrSuperseded       = errors.New("connection attempt superseded")
)

// Config configures a Transport. PublicKey and SecretKey are required;
// everything else has a usable default.
type Config struct {
	// PublicKey identifies the agent to the remote endpoint.
	PublicKey string

	// SecretKey is the pre-shared secret the authentication token is
	// derived from. Never sent on the wire.
	SecretKey string

	// ServerName is the machine name reported in X-SERVER-NAME.
	ServerName string

	// Compression enables per-message compression on the socket.
	Compression bool

	// HandshakeTimeout bounds the connection handshake (default: 30s).
	HandshakeTimeout time.Duration

	// Cipher produces the authentication token (default: auth.Seal).
	Cipher wire.CipherFunc

	// Metadata supplies the system metadata that gets ciphered into the
	// token (default: sysinfo.System).
	Metadata sysinfo.Provider

	// Dialer establishes the underlying socket (default: WebSocketDialer).
	Dialer Dialer

	// Logger receives diagnostic events (default: log.NoopLogger).
	Logger log.Logger
}

// Transport is a persistent, authenticated, reconnectable duplex
// messaging client. It owns at most one socket at a time; the handle is
// replaced on every connect and torn down on disconnect, close or error.
//
// All methods are safe for concurrent use.
type Transport struct {
	config Config
	dialer Dialer
	cipher wire.CipherFunc
	meta   sysinfo.Provider
	logger log.Logger

	mu          sync.Mutex
	state       ConnectionState
	generation  uint64
	socket      Socket
	lastAddress string
	connID      string

	events *dispatch.Emitter

	hmu           sync.Mutex
	closeHandlers []*func(code int, reason string)
	errorHandlers []*func(err error)
	pongHandlers  []*func(data []byte)
}

// New creates a Transport. It does not connect.
func New(config Config) *Transport {
	if config.HandshakeTimeout == 0 {
		config.HandshakeTimeout = 30 * time.Second
	}

	t := &Transport{
		config: config,
		dialer: config.Dialer,
		cipher: config.Cipher,
		meta:   config.Metadata,
		logger: config.Logger,
		state:  StateDisconnected,
		events: dispatch.NewEmitter(),
	}
	if t.dialer == nil {
		t.dialer = NewWebSocketDialer(WebSocketOptions{
			HandshakeTimeout:  config.HandshakeTimeout,
			EnableCompression: config.Compression,
		})
	}
	if t.cipher == nil {
		t.cipher = auth.Seal
	}
	if t.meta == nil {
		t.meta = sysinfo.System{}
	}
	if t.logger == nil {
		t.logger = log.NoopLogger{}
	}
	return t
}

// State returns the current connection state.
func (t *Transport) State() ConnectionState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// IsConnected reports whether the transport is connected and the socket
// is open. Safe to call in any state, with no side effects.
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state == StateConnected && t.socket != nil && t.socket.IsOpen()
}

// LastAddress returns the address of the most recent connection attempt.
// Retained across disconnects to support Reconnect without an address.
func (t *Transport) LastAddress() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastAddress
}

// Connect establishes a connection to address. It builds the
// authentication headers from fresh system metadata, dials, and returns
// once the connection is open (nil) or has failed (the error). Later
// errors and closes are delivered through OnError and OnClose instead.
//
// Connect is only valid from Disconnected; otherwise it returns
// ErrAlreadyConnected without touching the active connection.
func (t *Transport) Connect(ctx context.Context, address string) error {
	t.mu.Lock()
	if t.state != StateDisconnected {
		t.mu.Unlock()
		return ErrAlreadyConnected
	}
	t.state = StateConnecting
	t.generation++
	gen := t.generation
	t.connID = uuid.NewString()
	connID := t.connID
	t.mu.Unlock()

	t.logState(connID, address, StateDisconnected, StateConnecting, "connect requested")

	headers, err := t.buildAuthHeaders(ctx)
	if err != nil {
		t.abortConnect(gen, connID, address, err)
		return err
	}

	cb := Callbacks{
		OnMessage: func(data []byte) { t.handleMessage(gen, data) },
		OnPong:    func(data []byte) { t.handlePong(gen, data) },
		OnError:   func(err error) { t.handleError(gen, err) },
		OnClose:   func(code int, reason string) { t.handleClose(gen, code, reason) },
	}

	sock, err := t.dialer.Dial(ctx, address, headers, cb)
	if err != nil {
		err = fmt.Errorf("dial failed: %w", err)
		t.abortConnect(gen, connID, address, err)
		return err
	}

	t.mu.Lock()
	if t.generation != gen {
		// A newer attempt superseded this one while dialing.
		t.mu.Unlock()
		_ = sock.Close(CloseCodeNormal, "superseded by newer connection attempt")
		return ErrSuperseded
	}
	t.socket = sock
	t.lastAddress = address
	t.state = StateConnected
	t.mu.Unlock()

	sock.Start()
	t.logState(connID, address, StateConnecting, StateConnected, "open")
	return nil
}

// Disconnect gracefully closes the active connection with code 1000.
// It is a no-op unless Connected. The close event is emitted to
// subscribers and the state moves to Disconnected before Disconnect
// returns; signals later surfacing from the old socket are discarded.
func (t *Transport) Disconnect() error {
	t.mu.Lock()
	if t.state != StateConnected || t.socket == nil {
		t.mu.Unlock()
		t.logDrop("", log.DirectionOut, "disconnect ignored: not connected", 0)
		return nil
	}
	sock := t.socket
	t.socket = nil
	t.generation++
	t.state = StateDisconnected
	connID := t.connID
	addr := t.lastAddress
	t.mu.Unlock()

	const reason = "client requested disconnect"
	err := sock.Close(CloseCodeNormal, reason)

	t.logControl(connID, addr, log.DirectionOut, "close", CloseCodeNormal, reason)
	t.logState(connID, addr, StateConnected, StateDisconnected, reason)
	t.emitClose(CloseCodeNormal, reason)
	return err
}

// Reconnect performs Disconnect followed immediately by Connect. With an
// empty address it reuses the last one; if no prior address exists it
// fails with ErrInvalidState before any socket operation. The teardown is
// requested and the old socket's signals detached before the new dial
// starts, so two live sockets never race.
func (t *Transport) Reconnect(ctx context.Context, address string) error {
	t.mu.Lock()
	if address == "" {
		address = t.lastAddress
	}
	t.mu.Unlock()

	if address == "" {
		return ErrInvalidState
	}

	_ = t.Disconnect()
	return t.Connect(ctx, address)
}

// Send serializes data into an envelope on the given channel and writes
// it to the socket.
//
// Precondition failures are deliberately non-fatal: an empty channel, a
// nil payload or a disconnected transport performs no socket write and
// returns a distinguishable sentinel error (ErrEmptyChannel,
// ErrEmptyPayload, ErrNotConnected) after logging the skip. Write
// failures on a live socket are reported asynchronously through the
// error event, not the return value; there is no retry queue.
func (t *Transport) Send(channel string, data any) error {
	if channel == "" {
		t.logDrop(t.currentConnID(), log.DirectionOut, "send skipped: empty channel", 0)
		return ErrEmptyChannel
	}
	if data == nil {
		t.logDrop(t.currentConnID(), log.DirectionOut, "send skipped: nil payload", 0)
		return ErrEmptyPayload
	}

	t.mu.Lock()
	if t.state != StateConnected || t.socket == nil {
		t.mu.Unlock()
		t.logDrop("", log.DirectionOut, "send skipped: not connected", 0)
		return ErrNotConnected
	}
	sock := t.socket
	connID := t.connID
	addr := t.lastAddress
	t.mu.Unlock()

	frame, err := wire.Encode(channel, data)
	if err != nil {
		return err
	}

	if err := sock.Send(frame); err != nil {
		err = fmt.Errorf("send on channel %q failed: %w", channel, err)
		t.logError(connID, log.DirectionOut, err, "send")
		t.emitError(err)
		return nil
	}

	t.logEnvelope(connID, addr, log.DirectionOut, channel, len(frame), 0)
	return nil
}

// Ping serializes data and sends it as a ping control frame. Valid only
// while a socket handle exists; otherwise it returns ErrNotConnected.
// Send failures are re-emitted as an error event rather than returned,
// matching how connection errors are reported.
func (t *Transport) Ping(data any) error {
	t.mu.Lock()
	sock := t.socket
	connID := t.connID
	addr := t.lastAddress
	t.mu.Unlock()

	if sock == nil {
		return ErrNotConnected
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode ping payload: %w", err)
	}

	if err := sock.Ping(payload); err != nil {
		err = fmt.Errorf("ping failed: %w", err)
		t.logError(connID, log.DirectionOut, err, "ping")
		t.emitError(err)
		return nil
	}

	t.logControl(connID, addr, log.DirectionOut, "ping", 0, "")
	return nil
}

// On subscribes fn to every channel matching pattern (see dispatch.Match
// for the rules). It returns an unsubscribe function.
func (t *Transport) On(pattern string, fn dispatch.Handler) func() {
	return t.events.On(pattern, fn)
}

// OnClose subscribes fn to connection close events.
func (t *Transport) OnClose(fn func(code int, reason string)) func() {
	t.hmu.Lock()
	defer t.hmu.Unlock()
	p := &fn
	t.closeHandlers = append(t.closeHandlers, p)
	return func() { t.removeCloseHandler(p) }
}

// OnError subscribes fn to transport error events.
func (t *Transport) OnError(fn func(err error)) func() {
	t.hmu.Lock()
	defer t.hmu.Unlock()
	p := &fn
	t.errorHandlers = append(t.errorHandlers, p)
	return func() { t.removeErrorHandler(p) }
}

// OnPong subscribes fn to pong control frames.
func (t *Transport) OnPong(fn func(data []byte)) func() {
	t.hmu.Lock()
	defer t.hmu.Unlock()
	p := &fn
	t.pongHandlers = append(t.pongHandlers, p)
	return func() { t.removePongHandler(p) }
}

// buildAuthHeaders fetches fresh system metadata and assembles the
// out-of-band authentication header set.
func (t *Transport) buildAuthHeaders(ctx context.Context) (http.Header, error) {
	meta, err := t.meta.Metadata(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch system metadata: %w", err)
	}

	id := wire.Identity{
		PublicKey:  t.config.PublicKey,
		SecretKey:  t.config.SecretKey,
		ServerName: t.config.ServerName,
	}
	return wire.BuildAuthHeaders(id, meta, t.cipher, version.Version)
}

// abortConnect rolls a failed connection attempt back to Disconnected,
// unless a newer attempt has already taken over.
func (t *Transport) abortConnect(gen uint64, connID, address string, cause error) {
	t.mu.Lock()
	if t.generation == gen && t.state == StateConnecting {
		t.state = StateDisconnected
	}
	t.mu.Unlock()

	t.logError(connID, log.DirectionOut, cause, "connect")
	t.logState(connID, address, StateConnecting, StateDisconnected, cause.Error())
}

// handleMessage processes an inbound data frame from the socket.
// Malformed envelopes are dropped with a diagnostic log, never surfaced
// as errors and never dispatched.
func (t *Transport) handleMessage(gen uint64, data []byte) {
	t.mu.Lock()
	stale := t.generation != gen
	connID := t.connID
	addr := t.lastAddress
	t.mu.Unlock()

	if stale {
		t.logDrop(connID, log.DirectionIn, "message from superseded socket", len(data))
		return
	}

	env, err := wire.Decode(data)
	if err != nil {
		t.logDrop(connID, log.DirectionIn, err.Error(), len(data))
		return
	}

	delivered := t.events.Emit(env.Channel, env.Payload)
	t.logEnvelope(connID, addr, log.DirectionIn, env.Channel, len(data), delivered)
}

// handlePong routes a pong payload to pong subscribers.
func (t *Transport) handlePong(gen uint64, data []byte) {
	t.mu.Lock()
	stale := t.generation != gen
	connID := t.connID
	addr := t.lastAddress
	t.mu.Unlock()

	if stale {
		t.logDrop(connID, log.DirectionIn, "pong from superseded socket", len(data))
		return
	}

	t.logControl(connID, addr, log.DirectionIn, "pong", 0, "")

	t.hmu.Lock()
	snapshot := make([]*func(data []byte), len(t.pongHandlers))
	copy(snapshot, t.pongHandlers)
	t.hmu.Unlock()
	for _, fn := range snapshot {
		(*fn)(data)
	}
}

// handleError processes a socket-level error. While connected it forces
// a close with code 400 and the error text as reason before re-emitting
// the error, so the socket is never left ambiguously open.
func (t *Transport) handleError(gen uint64, cause error) {
	t.mu.Lock()
	if t.generation != gen {
		connID := t.connID
		t.mu.Unlock()
		t.logDrop(connID, log.DirectionIn, "error from superseded socket: "+cause.Error(), 0)
		return
	}
	sock := t.socket
	t.socket = nil
	t.generation++
	prev := t.state
	t.state = StateDisconnected
	connID := t.connID
	addr := t.lastAddress
	t.mu.Unlock()

	reason := cause.Error()
	if sock != nil {
		_ = sock.Close(CloseCodeError, reason)
		t.logControl(connID, addr, log.DirectionOut, "close", CloseCodeError, reason)
		t.emitClose(CloseCodeError, reason)
	}

	t.logError(connID, log.DirectionIn, cause, "socket")
	t.logState(connID, addr, prev, StateDisconnected, reason)
	t.emitError(cause)
}

// handleClose processes a close frame initiated by the peer.
func (t *Transport) handleClose(gen uint64, code int, reason string) {
	t.mu.Lock()
	if t.generation != gen {
		connID := t.connID
		t.mu.Unlock()
		t.logDrop(connID, log.DirectionIn, "close from superseded socket", 0)
		return
	}
	t.socket = nil
	t.generation++
	prev := t.state
	t.state = StateDisconnected
	connID := t.connID
	addr := t.lastAddress
	t.mu.Unlock()

	t.logControl(connID, addr, log.DirectionIn, "close", code, reason)
	t.logState(connID, addr, prev, StateDisconnected, reason)
	t.emitClose(code, reason)
}

// currentConnID returns the connection ID of the active attempt, if any.
func (t *Transport) currentConnID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connID
}

func (t *Transport) emitClose(code int, reason string) {
	t.hmu.Lock()
	snapshot := make([]*func(code int, reason string), len(t.closeHandlers))
	copy(snapshot, t.closeHandlers)
	t.hmu.Unlock()
	for _, fn := range snapshot {
		(*fn)(code, reason)
	}
}

func (t *Transport) emitError(err error) {
	t.hmu.Lock()
	snapshot := make([]*func(err error), len(t.errorHandlers))
	copy(snapshot, t.errorHandlers)
	t.hmu.Unlock()
	for _, fn := range snapshot {
		(*fn)(err)
	}
}

func (t *Transport) removeCloseHandler(p *func(code int, reason string)) {
	t.hmu.Lock()
	defer t.hmu.Unlock()
	for i, h := range t.closeHandlers {
		if h == p {
			t.closeHandlers = append(t.closeHandlers[:i], t.closeHandlers[i+1:]...)
			return
		}
	}
}

func (t *Transport) removeErrorHandler(p *func(err error)) {
	t.hmu.Lock()
	defer t.hmu.Unlock()
	for i, h := range t.errorHandlers {
		if h == p {
			t.errorHandlers = append(t.errorHandlers[:i], t.errorHandlers[i+1:]...)
			return
		}
	}
}

func (t *Transport) removePongHandler(p *func(data []byte)) {
	t.hmu.Lock()
	defer t.hmu.Unlock()
	for i, h := range t.pongHandlers {
		if h == p {
			t.pongHandlers = append(t.pongHandlers[:i], t.pongHandlers[i+1:]...)
			return
		}
	}
}

// Logging helpers.

func (t *Transport) logState(connID, addr string, oldState, newState ConnectionState, reason string) {
	t.logger.Log(log.Event{
		Timestamp:    time.Now().UTC(),
		ConnectionID: connID,
		Direction:    log.DirectionOut,
		Category:     log.CategoryState,
		RemoteAddr:   addr,
		StateChange:  &log.StateChangeEvent{OldState: oldState.String(), NewState: newState.String(), Reason: reason},
	})
}

func (t *Transport) logEnvelope(connID, addr string, dir log.Direction, channel string, size, subscribers int) {
	t.logger.Log(log.Event{
		Timestamp:    time.Now().UTC(),
		ConnectionID: connID,
		Direction:    dir,
		Category:     log.CategoryEnvelope,
		RemoteAddr:   addr,
		Envelope:     &log.EnvelopeEvent{Channel: channel, Size: size, Subscribers: subscribers},
	})
}

func (t *Transport) logControl(connID, addr string, dir log.Direction, typ string, code int, reason string) {
	t.logger.Log(log.Event{
		Timestamp:    time.Now().UTC(),
		ConnectionID: connID,
		Direction:    dir,
		Category:     log.CategoryControl,
		RemoteAddr:   addr,
		Control:      &log.ControlEvent{Type: typ, Code: code, Reason: reason},
	})
}

func (t *Transport) logDrop(connID string, dir log.Direction, reason string, size int) {
	t.logger.Log(log.Event{
		Timestamp:    time.Now().UTC(),
		ConnectionID: connID,
		Direction:    dir,
		Category:     log.CategoryDrop,
		Drop:         &log.DropEvent{Reason: reason, Size: size},
	})
}

func (t *Transport) logError(connID string, dir log.Direction, err error, context string) {
	t.logger.Log(log.Event{
		Timestamp:    time.Now().UTC(),
		ConnectionID: connID,
		Direction:    dir,
		Category:     log.CategoryError,
		Error:        &log.ErrorEventData{Message: err.Error(), Context: context},
	})
}
