package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/parleylabs/parley/logger"
)

// Default breaker parameters.
const (
	DefaultFailureThreshold = 3
	DefaultResetTimeout     = 30 * time.Second
)

// BreakerState represents the circuit breaker state.
type BreakerState string

// Circuit breaker states.
const (
	StateClosed   BreakerState = "CLOSED"
	StateOpen     BreakerState = "OPEN"
	StateHalfOpen BreakerState = "HALF_OPEN"
)

// ErrOpen is returned when the breaker rejects a call without invoking the
// operation and no fallback was supplied.
var ErrOpen = errors.New("circuit breaker is open")

// BreakerOption configures a Breaker.
type BreakerOption func(*Breaker)

// WithFailureThreshold sets the number of consecutive failures that trips
// the breaker. Defaults to DefaultFailureThreshold.
func WithFailureThreshold(n int) BreakerOption {
	return func(b *Breaker) {
		if n > 0 {
			b.threshold = n
		}
	}
}

// WithResetTimeout sets how long the breaker stays open before allowing a
// half-open probe. Defaults to DefaultResetTimeout.
func WithResetTimeout(d time.Duration) BreakerOption {
	return func(b *Breaker) {
		if d > 0 {
			b.resetTimeout = d
		}
	}
}

// WithClock overrides the time source. Tests use this to drive state
// transitions without real waits.
func WithClock(now func() time.Time) BreakerOption {
	return func(b *Breaker) { b.now = now }
}

// Breaker is a named circuit breaker protecting one external operation.
//
// State lives in process memory only: each running instance tracks failures
// independently. Breaker state is not worth a network round-trip on every
// call for this workload.
type Breaker struct {
	name         string
	threshold    int
	resetTimeout time.Duration
	now          func() time.Time

	mu          sync.Mutex
	state       BreakerState
	failures    int
	openedUntil time.Time
	probing     bool
}

// NewBreaker creates a circuit breaker with the given name.
func NewBreaker(name string, opts ...BreakerOption) *Breaker {
	b := &Breaker{
		name:         name,
		threshold:    DefaultFailureThreshold,
		resetTimeout: DefaultResetTimeout,
		now:          time.Now,
		state:        StateClosed,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns the breaker's name.
func (b *Breaker) Name() string { return b.name }

// State returns the current state, accounting for reset-timeout expiry.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && !b.now().Before(b.openedUntil) {
		return StateHalfOpen
	}
	return b.state
}

// Execute runs op through the breaker.
//
// While CLOSED, op runs normally; each failure increments the consecutive
// failure counter and the threshold trips the breaker OPEN. While OPEN and
// before the reset timeout elapses, op is not invoked: the fallback runs
// instead, or ErrOpen is returned when no fallback is supplied. After the
// reset timeout the breaker moves to HALF_OPEN and exactly one probe call
// is allowed: success closes the breaker and resets the counter; failure
// reopens it immediately, and the fallback (if supplied) is still consulted
// so the caller gets a degraded result rather than the probe's error.
func (b *Breaker) Execute(ctx context.Context, op func(context.Context) error, fallback func(context.Context) error) error {
	proceed, probe := b.admit()
	if !proceed {
		return b.useFallback(ctx, fallback, fmt.Errorf("%s: %w", b.name, ErrOpen))
	}

	err := op(ctx)
	b.record(err, probe)

	if err != nil && probe {
		// Probe failure reopened the breaker; degrade via fallback when possible.
		return b.useFallback(ctx, fallback, err)
	}
	return err
}

// admit decides whether a call may proceed. The second return value reports
// whether this call is the single half-open probe.
func (b *Breaker) admit() (proceed, probe bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true, false
	case StateOpen:
		if b.now().Before(b.openedUntil) {
			return false, false
		}
		b.state = StateHalfOpen
		b.probing = true
		logger.Debug("circuit breaker half-open", "breaker", b.name)
		return true, true
	case StateHalfOpen:
		if b.probing {
			// Another probe is in flight; reject.
			return false, false
		}
		b.probing = true
		return true, true
	}
	return false, false
}

// record applies the outcome of an admitted call to the breaker state.
func (b *Breaker) record(err error, probe bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if probe {
		b.probing = false
	}

	if err == nil {
		if b.state != StateClosed {
			logger.Info("circuit breaker closed", "breaker", b.name)
		}
		b.state = StateClosed
		b.failures = 0
		return
	}

	if probe {
		b.trip()
		return
	}

	b.failures++
	if b.failures >= b.threshold {
		b.trip()
	}
}

// trip opens the breaker. Caller must hold the mutex.
func (b *Breaker) trip() {
	b.state = StateOpen
	b.openedUntil = b.now().Add(b.resetTimeout)
	logger.Warn("circuit breaker opened",
		"breaker", b.name, "failures", b.failures, "reopens_at", b.openedUntil)
}

// useFallback runs the fallback when supplied, otherwise returns rejectErr.
func (b *Breaker) useFallback(ctx context.Context, fallback func(context.Context) error, rejectErr error) error {
	if fallback != nil {
		return fallback(ctx)
	}
	return rejectErr
}
