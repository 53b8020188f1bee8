package executor

import (
	"context"
	"errors"
	"sync"
	"time"
)

// BreakerState is the circuit breaker's current mode, grounded on the
// teacher's resilience package (Closed/Open/HalfOpen three-state model).
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// ErrBreakerOpen is returned when a call is rejected without being
// attempted because the breaker is open (spec §4.6).
var ErrBreakerOpen = errors.New("circuit breaker open")

// Breaker is a per-backend circuit breaker: it opens after Threshold
// consecutive failures, rejects calls while open, and allows exactly one
// half-open probe after CoolOff elapses.
type Breaker struct {
	Name      string
	Threshold int
	CoolOff   time.Duration

	mu              sync.Mutex
	state           BreakerState
	consecutiveFail int
	openedAt        time.Time
	halfOpenInFlight bool

	OnStateChange func(name string, from, to BreakerState)
}

// NewBreaker builds a Breaker starting Closed.
func NewBreaker(name string, threshold int, coolOff time.Duration) *Breaker {
	return &Breaker{Name: name, Threshold: threshold, CoolOff: coolOff, state: BreakerClosed}
}

func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) transition(to BreakerState) {
	from := b.state
	b.state = to
	if from != to && b.OnStateChange != nil {
		b.OnStateChange(b.Name, from, to)
	}
}

// Execute runs fn if the breaker allows it, recording the outcome. It
// never consumes pool resources when rejecting (the caller's fn is simply
// never invoked).
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if !b.allow() {
		return ErrBreakerOpen
	}

	err := fn(ctx)
	b.record(err == nil)
	return err
}

func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return true
	case BreakerOpen:
		if time.Since(b.openedAt) >= b.CoolOff {
			b.transition(BreakerHalfOpen)
			b.halfOpenInFlight = true
			return true
		}
		return false
	case BreakerHalfOpen:
		if b.halfOpenInFlight {
			return false
		}
		b.halfOpenInFlight = true
		return true
	}
	return false
}

func (b *Breaker) record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.halfOpenInFlight = false

	if success {
		b.consecutiveFail = 0
		if b.state != BreakerClosed {
			b.transition(BreakerClosed)
		}
		return
	}

	b.consecutiveFail++
	if b.state == BreakerHalfOpen || b.consecutiveFail >= b.Threshold {
		b.openedAt = time.Now()
		b.transition(BreakerOpen)
	}
}
