package connection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/uplink-protocol/uplink-go/pkg/log"
)

// Supervision errors.
var (
	ErrSupervisorStopped = errors.New("supervisor stopped")
	ErrAlreadyStarted    = errors.New("supervisor already started")
	ErrGaveUp            = errors.New("gave up after maximum redial attempts")
)

// GracefulCloseCode is the close code of a caller-requested disconnect.
// Closes carrying it do not trigger a redial.
const GracefulCloseCode = 1000

// DefaultDialTimeout bounds each redial attempt.
const DefaultDialTimeout = 30 * time.Second

// State is the supervision state.
type State uint8

const (
	// StateIdle indicates no supervision is active.
	StateIdle State = iota

	// StateConnected indicates the supervised client is connected.
	StateConnected

	// StateRetrying indicates redial attempts are in progress.
	StateRetrying

	// StateStopped indicates the supervisor has been stopped.
	StateStopped
)

// String returns the supervision state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateConnected:
		return "CONNECTED"
	case StateRetrying:
		return "RETRYING"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// Client is the connection surface the supervisor drives. It is
// satisfied by transport.Transport.
type Client interface {
	Connect(ctx context.Context, address string) error
	Disconnect() error
	IsConnected() bool
	OnClose(fn func(code int, reason string)) func()
	OnError(fn func(err error)) func()
}

// Config configures a Supervisor. The zero value selects defaults.
type Config struct {
	// Backoff parameterizes the delay between redial attempts.
	Backoff BackoffConfig

	// MaxAttempts caps consecutive failed redials before the supervisor
	// gives up (0: retry forever).
	MaxAttempts int

	// DialTimeout bounds each redial attempt (default: DefaultDialTimeout).
	DialTimeout time.Duration

	// Logger receives diagnostic events (default: log.NoopLogger).
	Logger log.Logger
}

// Supervisor keeps a client connected. After Start it watches the
// client's close events: a close with GracefulCloseCode ends
// supervision quietly, any other close starts redialing with
// exponential backoff until the connection is back, the attempt cap
// is hit, or the supervisor is stopped.
type Supervisor struct {
	client  Client
	cfg     Config
	backoff *Backoff
	logger  log.Logger

	mu       sync.Mutex
	state    State
	address  string
	cancel   context.CancelFunc
	offClose func()
	offError func()

	wg      sync.WaitGroup
	retryCh chan string

	hmu           sync.Mutex
	onStateChange func(oldState, newState State)
	onRetry       func(attempt int, delay time.Duration)
	onGiveUp      func(err error)
}

// NewSupervisor creates a supervisor for client. It does not connect.
func NewSupervisor(client Client, cfg Config) *Supervisor {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NoopLogger{}
	}

	return &Supervisor{
		client:  client,
		cfg:     cfg,
		backoff: NewBackoff(cfg.Backoff),
		logger:  logger,
		state:   StateIdle,
		retryCh: make(chan string, 1),
	}
}

// State returns the current supervision state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// OnStateChange sets a callback for supervision state changes.
func (s *Supervisor) OnStateChange(fn func(oldState, newState State)) {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	s.onStateChange = fn
}

// OnRetry sets a callback invoked before each redial wait.
func (s *Supervisor) OnRetry(fn func(attempt int, delay time.Duration)) {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	s.onRetry = fn
}

// OnGiveUp sets a callback invoked when the attempt cap is exhausted.
func (s *Supervisor) OnGiveUp(fn func(err error)) {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	s.onGiveUp = fn
}

// Start connects the client to address and begins supervising it. The
// initial connect is synchronous; its failure is returned without
// starting supervision, so the caller can distinguish a bad address
// from a connection lost later.
func (s *Supervisor) Start(ctx context.Context, address string) error {
	s.mu.Lock()
	if s.state == StateStopped {
		s.mu.Unlock()
		return ErrSupervisorStopped
	}
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.address = address
	s.mu.Unlock()

	if err := s.client.Connect(ctx, address); err != nil {
		return fmt.Errorf("initial connect: %w", err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	s.cancel = cancel
	s.offClose = s.client.OnClose(s.handleClientClose)
	s.offError = s.client.OnError(s.handleClientError)
	s.mu.Unlock()

	s.setState(StateConnected, "supervision started")

	s.wg.Add(1)
	go s.retryLoop(loopCtx)
	return nil
}

// Stop ends supervision and disconnects the client. Safe to call more
// than once.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if s.state == StateStopped {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	offClose := s.offClose
	offError := s.offError
	s.cancel, s.offClose, s.offError = nil, nil, nil
	s.mu.Unlock()

	if offClose != nil {
		offClose()
	}
	if offError != nil {
		offError()
	}
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()

	_ = s.client.Disconnect()
	s.setState(StateStopped, "supervision stopped")
}

// handleClientClose decides whether a close warrants redialing. The
// client emits a close for every teardown, including error-forced
// ones, so this is the single redial trigger; handleClientError only
// records diagnostics.
func (s *Supervisor) handleClientClose(code int, reason string) {
	if code == GracefulCloseCode {
		s.setState(StateIdle, "graceful close")
		return
	}

	s.setState(StateRetrying, fmt.Sprintf("close %d: %s", code, reason))
	select {
	case s.retryCh <- reason:
	default:
	}
}

func (s *Supervisor) handleClientError(err error) {
	s.logger.Log(log.Event{
		Timestamp: time.Now().UTC(),
		Direction: log.DirectionIn,
		Category:  log.CategoryError,
		Error:     &log.ErrorEventData{Message: err.Error(), Context: "supervised client"},
	})
}

func (s *Supervisor) retryLoop(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.retryCh:
			if !s.redial(ctx) {
				return
			}
		}
	}
}

// redial attempts to reconnect until success or the attempt cap.
// It reports false when the supervisor should stop looping.
func (s *Supervisor) redial(ctx context.Context) bool {
	for {
		if s.State() != StateRetrying {
			return true
		}

		delay := s.backoff.Next()
		attempt := s.backoff.Attempts()

		s.hmu.Lock()
		onRetry := s.onRetry
		s.hmu.Unlock()
		if onRetry != nil {
			onRetry(attempt, delay)
		}

		select {
		case <-ctx.Done():
			return false
		case <-time.After(delay):
		}

		s.mu.Lock()
		address := s.address
		s.mu.Unlock()

		dialCtx, cancel := context.WithTimeout(ctx, s.cfg.DialTimeout)
		err := s.client.Connect(dialCtx, address)
		cancel()

		if err == nil {
			s.backoff.Reset()
			s.setState(StateConnected, "redial succeeded")
			return true
		}

		s.logger.Log(log.Event{
			Timestamp: time.Now().UTC(),
			Direction: log.DirectionOut,
			Category:  log.CategoryError,
			Error:     &log.ErrorEventData{Message: err.Error(), Context: fmt.Sprintf("redial attempt %d", attempt)},
		})

		if s.cfg.MaxAttempts > 0 && attempt >= s.cfg.MaxAttempts {
			s.setState(StateIdle, "redial attempts exhausted")
			s.hmu.Lock()
			onGiveUp := s.onGiveUp
			s.hmu.Unlock()
			if onGiveUp != nil {
				onGiveUp(fmt.Errorf("%w: %v", ErrGaveUp, err))
			}
			return true
		}
	}
}

func (s *Supervisor) setState(newState State, reason string) {
	s.mu.Lock()
	oldState := s.state
	if oldState == newState || oldState == StateStopped {
		s.mu.Unlock()
		return
	}
	s.state = newState
	s.mu.Unlock()

	s.logger.Log(log.Event{
		Timestamp:   time.Now().UTC(),
		Direction:   log.DirectionOut,
		Category:    log.CategoryState,
		StateChange: &log.StateChangeEvent{OldState: oldState.String(), NewState: newState.String(), Reason: reason},
	})

	s.hmu.Lock()
	fn := s.onStateChange
	s.hmu.Unlock()
	if fn != nil {
		fn(oldState, newState)
	}
}
