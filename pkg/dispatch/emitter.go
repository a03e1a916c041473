package dispatch

import (
	"encoding/json"
	"sync"
)

// Handler receives the payload of a dispatched message together with the
// concrete channel it arrived on (which may be more specific than the
// subscribed pattern).
type Handler func(channel string, payload json.RawMessage)

// subscription pairs a pattern with its handler. Identity (pointer) is
// what the unsubscribe closure removes.
type subscription struct {
	pattern string
	fn      Handler
}

// Emitter maps channel-name patterns to subscriber lists.
//
// Registration and removal are safe for concurrent use. Emit snapshots
// the subscriber list, then invokes matching handlers synchronously in
// registration order without holding the lock.
type Emitter struct {
	mu   sync.RWMutex
	subs []*subscription
}

// NewEmitter constructs an empty Emitter.
func NewEmitter() *Emitter {
	return &Emitter{}
}

// On registers a handler for every channel matching pattern.
// It returns an unsubscribe function; calling it more than once is safe.
func (e *Emitter) On(pattern string, fn Handler) func() {
	s := &subscription{pattern: pattern, fn: fn}

	e.mu.Lock()
	e.subs = append(e.subs, s)
	e.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			for i, sub := range e.subs {
				if sub == s {
					e.subs = append(e.subs[:i], e.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Emit delivers payload to every subscriber whose pattern matches channel
// and returns the number of handlers invoked.
func (e *Emitter) Emit(channel string, payload json.RawMessage) int {
	e.mu.RLock()
	snapshot := make([]*subscription, len(e.subs))
	copy(snapshot, e.subs)
	e.mu.RUnlock()

	delivered := 0
	for _, s := range snapshot {
		if Match(s.pattern, channel) {
			s.fn(channel, payload)
			delivered++
		}
	}
	return delivered
}

// Len returns the current subscriber count.
func (e *Emitter) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.subs)
}
