package http

import (
	"sync"
	"time"

	pkgerrors "github.com/jdziat/govbench/pkg/errors"
)

// Circuit breaker states.
const (
	// CircuitClosed lets calls through.
	CircuitClosed CircuitState = iota
	// CircuitOpen rejects calls until the cool-down elapses.
	CircuitOpen
	// CircuitHalfOpen lets a single probe through.
	CircuitHalfOpen
)

// CircuitState is the state of a Breaker.
type CircuitState int

// String returns the string representation of the circuit state.
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig configures a Breaker.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failed calls, each one
	// already retried to exhaustion, that opens the circuit. Zero or less
	// disables the breaker.
	FailureThreshold int

	// CoolDown is how long the circuit stays open before a probe is
	// allowed.
	// Default: 30 seconds
	CoolDown time.Duration

	// OnStateChange is called synchronously, outside the lock, after every
	// transition.
	OnStateChange func(from, to CircuitState)

	// IsFailure decides whether an error counts against the endpoint.
	// If nil, errors classified as transient (rate limits, timeouts,
	// transport errors and 5xx responses) count; malformed replies and
	// client errors do not.
	IsFailure func(err error) bool

	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
}

// Breaker stops a worker from hammering a model endpoint that keeps
// failing. It wraps whole retried calls, not single attempts:
//
//   - Closed: calls pass; FailureThreshold consecutive failures open it
//   - Open: calls fail fast with pkgerrors.ErrCircuitOpen
//   - Half-Open: after CoolDown one probe passes; success closes the
//     circuit, failure reopens it
type Breaker struct {
	config BreakerConfig

	mu                sync.Mutex
	state             CircuitState
	openedAt          time.Time
	probing           bool
	consecutiveErrors int
	rejected          int
}

// NewBreaker returns a breaker, or nil when the threshold disables it.
// A nil *Breaker allows every call.
func NewBreaker(config BreakerConfig) *Breaker {
	if config.FailureThreshold <= 0 {
		return nil
	}
	if config.CoolDown <= 0 {
		config.CoolDown = 30 * time.Second
	}
	if config.IsFailure == nil {
		config.IsFailure = pkgerrors.IsRetryable
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Breaker{config: config, state: CircuitClosed}
}

// State returns the current state.
func (b *Breaker) State() CircuitState {
	if b == nil {
		return CircuitClosed
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentState()
}

// currentState must be called with the lock held.
func (b *Breaker) currentState() CircuitState {
	if b.state == CircuitOpen && b.config.Now().Sub(b.openedAt) >= b.config.CoolDown {
		return CircuitHalfOpen
	}
	return b.state
}

// Allow reports whether a call may proceed. When it returns nil the
// caller must report the outcome with Record.
func (b *Breaker) Allow() error {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	var from, to CircuitState
	changed := false
	switch b.currentState() {
	case CircuitClosed:
		b.mu.Unlock()
		return nil
	case CircuitHalfOpen:
		if !b.probing {
			from, to, changed = b.setState(CircuitHalfOpen)
			b.probing = true
			b.mu.Unlock()
			b.notify(from, to, changed)
			return nil
		}
	}
	b.rejected++
	b.mu.Unlock()
	return pkgerrors.ErrCircuitOpen
}

// Record reports the outcome of an allowed call.
func (b *Breaker) Record(err error) {
	if b == nil {
		return
	}
	failed := err != nil && b.config.IsFailure(err)

	b.mu.Lock()
	var from, to CircuitState
	changed := false
	switch b.state {
	case CircuitClosed:
		if !failed {
			b.consecutiveErrors = 0
			break
		}
		b.consecutiveErrors++
		if b.consecutiveErrors >= b.config.FailureThreshold {
			from, to, changed = b.setState(CircuitOpen)
		}
	case CircuitHalfOpen:
		b.probing = false
		if failed {
			from, to, changed = b.setState(CircuitOpen)
		} else {
			from, to, changed = b.setState(CircuitClosed)
		}
	}
	b.mu.Unlock()
	b.notify(from, to, changed)
}

// ConsecutiveErrors returns the current run of failures.
func (b *Breaker) ConsecutiveErrors() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.consecutiveErrors
}

// Rejected returns how many calls were refused while open.
func (b *Breaker) Rejected() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rejected
}

// setState must be called with the lock held.
func (b *Breaker) setState(next CircuitState) (from, to CircuitState, changed bool) {
	if b.state == next {
		return b.state, next, false
	}
	from = b.state
	b.state = next
	switch next {
	case CircuitOpen:
		b.openedAt = b.config.Now()
	case CircuitClosed:
		b.consecutiveErrors = 0
	}
	return from, next, true
}

func (b *Breaker) notify(from, to CircuitState, changed bool) {
	if changed && b.config.OnStateChange != nil {
		b.config.OnStateChange(from, to)
	}
}
