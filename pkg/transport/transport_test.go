package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/uplink-protocol/uplink-go/pkg/sysinfo"
	"github.com/uplink-protocol/uplink-go/pkg/wire"
)

// stubSocket records writes and lets tests fire socket signals.
type stubSocket struct {
	mu          sync.Mutex
	cb          Callbacks
	started     bool
	open        bool
	sent        [][]byte
	pings       [][]byte
	closeCode   int
	closeReason string
	closeCalls  int
	sendErr     error
	pingErr     error
}

func (s *stubSocket) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = true
}

func (s *stubSocket) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, data)
	return nil
}

func (s *stubSocket) Ping(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pingErr != nil {
		return s.pingErr
	}
	s.pings = append(s.pings, data)
	return nil
}

func (s *stubSocket) Close(code int, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeCalls++
	if s.closeCalls == 1 {
		s.closeCode = code
		s.closeReason = reason
	}
	s.open = false
	return nil
}

func (s *stubSocket) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

func (s *stubSocket) sentFrames() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.sent))
	copy(out, s.sent)
	return out
}

// stubDialer hands out stub sockets and records dial attempts.
type stubDialer struct {
	mu        sync.Mutex
	dialErr   error
	sockets   []*stubSocket
	addresses []string
	headers   []http.Header
}

func (d *stubDialer) Dial(_ context.Context, address string, headers http.Header, cb Callbacks) (Socket, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.addresses = append(d.addresses, address)
	d.headers = append(d.headers, headers)
	if d.dialErr != nil {
		return nil, d.dialErr
	}
	s := &stubSocket{cb: cb, open: true}
	d.sockets = append(d.sockets, s)
	return s, nil
}

func (d *stubDialer) lastSocket() *stubSocket {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.sockets) == 0 {
		return nil
	}
	return d.sockets[len(d.sockets)-1]
}

func (d *stubDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.addresses)
}

func newTestTransport(d Dialer) *Transport {
	return New(Config{
		PublicKey:  "pk-test",
		SecretKey:  "sk-test",
		ServerName: "test-host",
		Metadata:   sysinfo.Static{Snapshot: sysinfo.Metadata{Hostname: "test-host", Platform: "testos"}},
		Dialer:     d,
	})
}

func TestConnectSuccess(t *testing.T) {
	d := &stubDialer{}
	tr := newTestTransport(d)

	if tr.IsConnected() {
		t.Error("IsConnected = true before any connect")
	}

	if err := tr.Connect(context.Background(), "ws://host/x"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if tr.State() != StateConnected {
		t.Errorf("state = %v, want CONNECTED", tr.State())
	}
	if !tr.IsConnected() {
		t.Error("IsConnected = false after successful connect")
	}
	if tr.LastAddress() != "ws://host/x" {
		t.Errorf("LastAddress = %q, want ws://host/x", tr.LastAddress())
	}

	sock := d.lastSocket()
	if sock == nil || !sock.started {
		t.Fatal("socket was not started")
	}
}

func TestConnectSendsAuthHeaders(t *testing.T) {
	d := &stubDialer{}
	tr := newTestTransport(d)

	if err := tr.Connect(context.Background(), "ws://host/x"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	headers := d.headers[0]
	if got := headers.Get(wire.HeaderPublicKey); got != "pk-test" {
		t.Errorf("%s = %q, want pk-test", wire.HeaderPublicKey, got)
	}
	if headers.Get(wire.HeaderAuthData) == "" {
		t.Errorf("%s is empty", wire.HeaderAuthData)
	}
	if got := headers.Get(wire.HeaderServerName); got != "test-host" {
		t.Errorf("%s = %q, want test-host", wire.HeaderServerName, got)
	}
	if headers.Get(wire.HeaderClientVersion) == "" {
		t.Errorf("%s is empty", wire.HeaderClientVersion)
	}
}

func TestConnectDialFailure(t *testing.T) {
	d := &stubDialer{dialErr: errors.New("connection refused")}
	tr := newTestTransport(d)

	err := tr.Connect(context.Background(), "ws://host/x")
	if err == nil {
		t.Fatal("Connect succeeded, want error")
	}

	if tr.State() != StateDisconnected {
		t.Errorf("state = %v, want DISCONNECTED", tr.State())
	}
	if tr.IsConnected() {
		t.Error("IsConnected = true after failed connect")
	}
}

func TestConnectGuardedWhileConnected(t *testing.T) {
	d := &stubDialer{}
	tr := newTestTransport(d)

	if err := tr.Connect(context.Background(), "ws://host/x"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if err := tr.Connect(context.Background(), "ws://host/y"); !errors.Is(err, ErrAlreadyConnected) {
		t.Errorf("second Connect error = %v, want ErrAlreadyConnected", err)
	}
	if d.dialCount() != 1 {
		t.Errorf("dial count = %d, want 1", d.dialCount())
	}
}

func TestConnectMetadataFailure(t *testing.T) {
	d := &stubDialer{}
	tr := New(Config{
		PublicKey: "pk",
		SecretKey: "sk",
		Metadata:  failingProvider{},
		Dialer:    d,
	})

	if err := tr.Connect(context.Background(), "ws://host/x"); err == nil {
		t.Fatal("Connect succeeded with failing metadata provider")
	}
	if d.dialCount() != 0 {
		t.Errorf("dial count = %d, want 0 (no socket operation before auth data)", d.dialCount())
	}
	if tr.State() != StateDisconnected {
		t.Errorf("state = %v, want DISCONNECTED", tr.State())
	}
}

type failingProvider struct{}

func (failingProvider) Metadata(context.Context) (sysinfo.Metadata, error) {
	return sysinfo.Metadata{}, errors.New("probe failed")
}

func TestSendProducesExactFrame(t *testing.T) {
	d := &stubDialer{}
	tr := newTestTransport(d)

	if err := tr.Connect(context.Background(), "ws://host/x"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if err := tr.Send("metrics", map[string]int{"cpu": 10}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	frames := d.lastSocket().sentFrames()
	if len(frames) != 1 {
		t.Fatalf("sent %d frames, want 1", len(frames))
	}
	want := `{"version":1,"channel":"metrics","payload":{"cpu":10}}`
	if string(frames[0]) != want {
		t.Errorf("frame = %s, want %s", frames[0], want)
	}
}

func TestSendWhileDisconnected(t *testing.T) {
	d := &stubDialer{}
	tr := newTestTransport(d)

	if err := tr.Send("metrics", map[string]int{"cpu": 10}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send error = %v, want ErrNotConnected", err)
	}

	// Same after an explicit disconnect: no write reaches the old socket.
	if err := tr.Connect(context.Background(), "ws://host/x"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	sock := d.lastSocket()
	if err := tr.Disconnect(); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}
	if err := tr.Send("metrics", map[string]int{"cpu": 10}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send error = %v, want ErrNotConnected", err)
	}
	if len(sock.sentFrames()) != 0 {
		t.Errorf("socket recorded %d writes, want 0", len(sock.sentFrames()))
	}
}

func TestSendPreconditions(t *testing.T) {
	d := &stubDialer{}
	tr := newTestTransport(d)

	if err := tr.Connect(context.Background(), "ws://host/x"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if err := tr.Send("", map[string]int{"cpu": 10}); !errors.Is(err, ErrEmptyChannel) {
		t.Errorf("Send error = %v, want ErrEmptyChannel", err)
	}
	if err := tr.Send("metrics", nil); !errors.Is(err, ErrEmptyPayload) {
		t.Errorf("Send error = %v, want ErrEmptyPayload", err)
	}
	if len(d.lastSocket().sentFrames()) != 0 {
		t.Error("precondition failures must not write to the socket")
	}
}

func TestSendWriteFailureReportedAsErrorEvent(t *testing.T) {
	d := &stubDialer{}
	tr := newTestTransport(d)

	if err := tr.Connect(context.Background(), "ws://host/x"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	d.lastSocket().sendErr = errors.New("broken pipe")

	var gotErr error
	tr.OnError(func(err error) { gotErr = err })

	if err := tr.Send("metrics", map[string]int{"cpu": 10}); err != nil {
		t.Errorf("Send returned %v, want nil (failure goes to the error event)", err)
	}
	if gotErr == nil {
		t.Error("error event was not emitted for write failure")
	}
}

func TestReceiveDispatchesToChannelSubscriber(t *testing.T) {
	d := &stubDialer{}
	tr := newTestTransport(d)

	var payloads []string
	tr.On("metrics", func(channel string, payload json.RawMessage) {
		payloads = append(payloads, string(payload))
	})
	tr.On("logs", func(channel string, payload json.RawMessage) {
		t.Error("logs subscriber received a metrics message")
	})

	if err := tr.Connect(context.Background(), "ws://host/x"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	sock := d.lastSocket()
	sock.cb.OnMessage([]byte(`{"version":1,"channel":"metrics","payload":{"cpu":10}}`))

	if len(payloads) != 1 {
		t.Fatalf("metrics subscriber invoked %d times, want 1", len(payloads))
	}
	if payloads[0] != `{"cpu":10}` {
		t.Errorf("payload = %s, want {\"cpu\":10}", payloads[0])
	}
}

func TestReceiveWildcardSubscriber(t *testing.T) {
	d := &stubDialer{}
	tr := newTestTransport(d)

	var channels []string
	tr.On("process:*", func(channel string, _ json.RawMessage) {
		channels = append(channels, channel)
	})

	if err := tr.Connect(context.Background(), "ws://host/x"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	sock := d.lastSocket()
	sock.cb.OnMessage([]byte(`{"version":1,"channel":"process:restart","payload":{}}`))
	sock.cb.OnMessage([]byte(`{"version":1,"channel":"host:restart","payload":{}}`))

	if len(channels) != 1 || channels[0] != "process:restart" {
		t.Errorf("channels = %v, want [process:restart]", channels)
	}
}

func TestMalformedInboundDropped(t *testing.T) {
	d := &stubDialer{}
	tr := newTestTransport(d)

	dispatched := 0
	tr.On("**", func(string, json.RawMessage) { dispatched++ })
	var gotErr error
	tr.OnError(func(err error) { gotErr = err })

	if err := tr.Connect(context.Background(), "ws://host/x"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	sock := d.lastSocket()
	for _, frame := range []string{
		`{"channel":"x","payload":{}}`,
		`{"version":1,"payload":{}}`,
		`{"version":1,"channel":"x"}`,
		`{"version":1,"channel":"x","payload":null}`,
		`not json at all`,
	} {
		sock.cb.OnMessage([]byte(frame))
	}

	if dispatched != 0 {
		t.Errorf("dispatched %d malformed messages, want 0", dispatched)
	}
	if gotErr != nil {
		t.Errorf("malformed input surfaced an error event: %v", gotErr)
	}
	if !tr.IsConnected() {
		t.Error("malformed input must not tear the connection down")
	}
}

func TestRuntimeErrorForcesClose(t *testing.T) {
	d := &stubDialer{}
	tr := newTestTransport(d)

	var closeCode int
	var closeReason string
	var gotErr error
	var order []string
	tr.OnClose(func(code int, reason string) {
		closeCode, closeReason = code, reason
		order = append(order, "close")
	})
	tr.OnError(func(err error) {
		gotErr = err
		order = append(order, "error")
	})

	if err := tr.Connect(context.Background(), "ws://host/x"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	sock := d.lastSocket()
	sock.cb.OnError(errors.New("read timeout"))

	if tr.State() != StateDisconnected {
		t.Errorf("state = %v, want DISCONNECTED after forced close", tr.State())
	}
	if sock.closeCode != CloseCodeError {
		t.Errorf("socket close code = %d, want %d", sock.closeCode, CloseCodeError)
	}
	if sock.closeReason != "read timeout" {
		t.Errorf("socket close reason = %q, want the error message", sock.closeReason)
	}
	if closeCode != CloseCodeError || closeReason != "read timeout" {
		t.Errorf("close event = (%d, %q), want (400, read timeout)", closeCode, closeReason)
	}
	if gotErr == nil || gotErr.Error() != "read timeout" {
		t.Errorf("error event = %v, want read timeout", gotErr)
	}
	if len(order) != 2 || order[0] != "close" || order[1] != "error" {
		t.Errorf("event order = %v, want [close error]", order)
	}
}

func TestPeerInitiatedClose(t *testing.T) {
	d := &stubDialer{}
	tr := newTestTransport(d)

	var closeCode int
	tr.OnClose(func(code int, reason string) { closeCode = code })

	if err := tr.Connect(context.Background(), "ws://host/x"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	d.lastSocket().cb.OnClose(1001, "going away")

	if closeCode != 1001 {
		t.Errorf("close event code = %d, want 1001", closeCode)
	}
	if tr.State() != StateDisconnected {
		t.Errorf("state = %v, want DISCONNECTED", tr.State())
	}
}

func TestDisconnect(t *testing.T) {
	d := &stubDialer{}
	tr := newTestTransport(d)

	var closeCode int
	closeEvents := 0
	tr.OnClose(func(code int, reason string) {
		closeCode = code
		closeEvents++
	})

	// No-op when not connected.
	if err := tr.Disconnect(); err != nil {
		t.Errorf("Disconnect while disconnected returned %v, want nil", err)
	}
	if closeEvents != 0 {
		t.Error("no-op disconnect emitted a close event")
	}

	if err := tr.Connect(context.Background(), "ws://host/x"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	sock := d.lastSocket()

	if err := tr.Disconnect(); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}

	if sock.closeCode != CloseCodeNormal {
		t.Errorf("socket close code = %d, want %d", sock.closeCode, CloseCodeNormal)
	}
	if closeCode != CloseCodeNormal || closeEvents != 1 {
		t.Errorf("close event = (%d, count %d), want (1000, 1)", closeCode, closeEvents)
	}
	if tr.State() != StateDisconnected {
		t.Errorf("state = %v, want DISCONNECTED", tr.State())
	}
}

func TestReconnectWithoutPriorAddress(t *testing.T) {
	d := &stubDialer{}
	tr := newTestTransport(d)

	if err := tr.Reconnect(context.Background(), ""); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Reconnect error = %v, want ErrInvalidState", err)
	}
	if d.dialCount() != 0 {
		t.Errorf("dial count = %d, want 0 (fail before any socket operation)", d.dialCount())
	}
}

func TestReconnectReusesLastAddress(t *testing.T) {
	d := &stubDialer{}
	tr := newTestTransport(d)

	if err := tr.Connect(context.Background(), "ws://host/x"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	first := d.lastSocket()

	if err := tr.Reconnect(context.Background(), ""); err != nil {
		t.Fatalf("Reconnect failed: %v", err)
	}

	if d.dialCount() != 2 {
		t.Fatalf("dial count = %d, want 2", d.dialCount())
	}
	if d.addresses[1] != "ws://host/x" {
		t.Errorf("reconnect address = %q, want ws://host/x", d.addresses[1])
	}
	if first.closeCode != CloseCodeNormal {
		t.Errorf("old socket close code = %d, want %d", first.closeCode, CloseCodeNormal)
	}
	if first.IsOpen() {
		t.Error("old socket still open after reconnect")
	}
	if !tr.IsConnected() {
		t.Error("not connected after reconnect")
	}
}

func TestStaleSocketSignalsIgnored(t *testing.T) {
	d := &stubDialer{}
	tr := newTestTransport(d)

	dispatched := 0
	tr.On("metrics", func(string, json.RawMessage) { dispatched++ })
	var gotErr error
	tr.OnError(func(err error) { gotErr = err })

	if err := tr.Connect(context.Background(), "ws://host/x"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	first := d.lastSocket()

	if err := tr.Reconnect(context.Background(), ""); err != nil {
		t.Fatalf("Reconnect failed: %v", err)
	}

	// Late signals from the superseded socket must not leak into the
	// new connection's lifecycle.
	first.cb.OnMessage([]byte(`{"version":1,"channel":"metrics","payload":{}}`))
	first.cb.OnError(errors.New("stale read error"))
	first.cb.OnClose(1006, "stale close")

	if dispatched != 0 {
		t.Errorf("stale socket dispatched %d messages, want 0", dispatched)
	}
	if gotErr != nil {
		t.Errorf("stale socket emitted error event: %v", gotErr)
	}
	if !tr.IsConnected() {
		t.Error("stale signals tore down the new connection")
	}
	if tr.State() != StateConnected {
		t.Errorf("state = %v, want CONNECTED", tr.State())
	}
}

func TestPing(t *testing.T) {
	d := &stubDialer{}
	tr := newTestTransport(d)

	if err := tr.Ping(map[string]int{"seq": 1}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Ping without socket = %v, want ErrNotConnected", err)
	}

	if err := tr.Connect(context.Background(), "ws://host/x"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if err := tr.Ping(map[string]int{"seq": 1}); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}

	sock := d.lastSocket()
	if len(sock.pings) != 1 {
		t.Fatalf("sent %d pings, want 1", len(sock.pings))
	}
	if string(sock.pings[0]) != `{"seq":1}` {
		t.Errorf("ping payload = %s, want {\"seq\":1}", sock.pings[0])
	}
}

func TestPingFailureReportedAsErrorEvent(t *testing.T) {
	d := &stubDialer{}
	tr := newTestTransport(d)

	if err := tr.Connect(context.Background(), "ws://host/x"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	d.lastSocket().pingErr = errors.New("connection torn down")

	var gotErr error
	tr.OnError(func(err error) { gotErr = err })

	if err := tr.Ping("beat"); err != nil {
		t.Errorf("Ping returned %v, want nil (failure goes to the error event)", err)
	}
	if gotErr == nil {
		t.Error("error event was not emitted for ping failure")
	}
}

func TestPongRoutedToSubscribers(t *testing.T) {
	d := &stubDialer{}
	tr := newTestTransport(d)

	var pongs []string
	off := tr.OnPong(func(data []byte) { pongs = append(pongs, string(data)) })

	if err := tr.Connect(context.Background(), "ws://host/x"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	sock := d.lastSocket()
	sock.cb.OnPong([]byte(`{"seq":7}`))
	off()
	sock.cb.OnPong([]byte(`{"seq":8}`))

	if len(pongs) != 1 || pongs[0] != `{"seq":7}` {
		t.Errorf("pongs = %v, want [{\"seq\":7}]", pongs)
	}
}

func TestIsConnectedReflectsSocketCondition(t *testing.T) {
	d := &stubDialer{}
	tr := newTestTransport(d)

	if err := tr.Connect(context.Background(), "ws://host/x"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	// Socket reports not ready: state alone is not enough.
	sock := d.lastSocket()
	sock.mu.Lock()
	sock.open = false
	sock.mu.Unlock()

	if tr.IsConnected() {
		t.Error("IsConnected = true while the socket reports closed")
	}
	if tr.State() != StateConnected {
		t.Errorf("state = %v, want CONNECTED (only the socket condition changed)", tr.State())
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	d := &stubDialer{}
	tr := newTestTransport(d)

	calls := 0
	off := tr.On("metrics", func(string, json.RawMessage) { calls++ })

	if err := tr.Connect(context.Background(), "ws://host/x"); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	sock := d.lastSocket()
	sock.cb.OnMessage([]byte(`{"version":1,"channel":"metrics","payload":{}}`))
	off()
	sock.cb.OnMessage([]byte(`{"version":1,"channel":"metrics","payload":{}}`))

	if calls != 1 {
		t.Errorf("handler invoked %d times, want 1", calls)
	}
}
