package clients

import (
	"sync"
	"time"
)

// State is a circuit breaker state.
type State int

// Circuit states.
const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures a CircuitBreaker.
type CircuitBreakerConfig struct {
	// MaxFailures consecutive failures open a closed circuit.
	MaxFailures int

	// Timeout is the minimum time an open circuit stays open.
	Timeout time.Duration

	// HalfOpenLimit bounds in-flight trial requests while half-open, and is also the
	// number of trial successes needed to close again.
	HalfOpenLimit int
}

// CircuitBreaker stops publish attempts while the platform is failing or has
// asked us to back off.
//
//	closed    --MaxFailures failures or TripUntil-->  open
//	open      --reopen deadline reached, on Allow-->  half-open
//	half-open --HalfOpenLimit successes-->            closed
//	half-open --any failure-->                        open
type CircuitBreaker struct {
	cfg CircuitBreakerConfig
	now func() time.Time

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	inFlight  int
	reopenAt  time.Time
	notify    func(from, to State)
}

// NewCircuitBreaker returns a closed circuit breaker.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{cfg: cfg, now: time.Now}
}

// OnStateChange registers fn to be called after every transition.
// fn runs outside the breaker's lock.
func (cb *CircuitBreaker) OnStateChange(fn func(from, to State)) {
	cb.mu.Lock()
	cb.notify = fn
	cb.mu.Unlock()
}

// Allow reports whether a request may proceed. An open circuit whose
// deadline has passed moves to half-open and admits the first trial request.
func (cb *CircuitBreaker) Allow() bool {
	return cb.locked(func() bool {
		switch cb.state {
		case StateClosed:
			return true
		case StateOpen:
			if cb.now().Before(cb.reopenAt) {
				return false
			}

			cb.moveTo(StateHalfOpen)
			cb.inFlight = 1

			return true
		case StateHalfOpen:
			if cb.inFlight >= cb.cfg.HalfOpenLimit {
				return false
			}

			cb.inFlight++

			return true
		default:
			return false
		}
	})
}

// RecordSuccess reports a request that reached the platform and was not a
// server failure.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.locked(func() bool {
		switch cb.state {
		case StateClosed:
			cb.failures = 0
		case StateHalfOpen:
			cb.inFlight--
			cb.successes++

			if cb.successes >= cb.cfg.HalfOpenLimit {
				cb.moveTo(StateClosed)
			}
		}

		return true
	})
}

// RecordFailure reports a failed request. A failure while open pushes the
// reopen deadline out.
func (cb *CircuitBreaker) RecordFailure() {
	cb.locked(func() bool {
		switch cb.state {
		case StateClosed:
			cb.failures++
			if cb.failures >= cb.cfg.MaxFailures {
				cb.open(time.Time{})
			}
		case StateHalfOpen:
			cb.inFlight--
			cb.open(time.Time{})
		case StateOpen:
			cb.open(time.Time{})
		}

		return true
	})
}

// TripUntil opens the circuit and keeps it open at least until t, as for a
// rate-limit window reported by the platform. An earlier t never shortens
// a deadline already in force.
func (cb *CircuitBreaker) TripUntil(t time.Time) {
	cb.locked(func() bool {
		cb.inFlight = 0
		cb.open(t)

		return true
	})
}

// RetryAfter reports how long an open circuit keeps blocking. Zero otherwise.
func (cb *CircuitBreaker) RetryAfter() time.Duration {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != StateOpen {
		return 0
	}

	return max(cb.reopenAt.Sub(cb.now()), 0)
}

// State returns the current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return cb.state
}

// locked runs fn under mu and reports any state change to the registered
// callback once mu is released.
func (cb *CircuitBreaker) locked(fn func() bool) bool {
	cb.mu.Lock()
	from := cb.state
	ok := fn()
	to, notify := cb.state, cb.notify
	cb.mu.Unlock()

	if notify != nil && from != to {
		notify(from, to)
	}

	return ok
}

// open moves to StateOpen with a deadline of at least now+Timeout and until.
// An open circuit keeps its later deadline. Caller holds mu.
func (cb *CircuitBreaker) open(until time.Time) {
	deadline := cb.now().Add(cb.cfg.Timeout)
	if until.After(deadline) {
		deadline = until
	}

	if cb.state == StateOpen && cb.reopenAt.After(deadline) {
		deadline = cb.reopenAt
	}

	cb.reopenAt = deadline
	cb.moveTo(StateOpen)
}

// moveTo changes state and resets the counters. Caller holds mu.
func (cb *CircuitBreaker) moveTo(to State) {
	if cb.state == to {
		return
	}

	cb.state = to
	cb.failures = 0
	cb.successes = 0
}
