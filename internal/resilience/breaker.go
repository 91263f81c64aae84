// Package resilience guards calls to flaky upstream model services.
package resilience

import (
	"errors"
	"log"
	"sync"
	"time"
)

// State is the breaker state.
type State int

const (
	StateClosed   State = iota // normal operation
	StateOpen                  // rejecting calls
	StateHalfOpen              // probing whether the upstream recovered
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// ErrCircuitOpen is returned when the breaker rejects a call outright.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Breaker is a named circuit breaker. It opens after failThreshold
// consecutive failures, rejects calls for openTimeout, then lets a probe
// call through: success closes the breaker, failure reopens it.
type Breaker struct {
	name          string
	failThreshold int
	openTimeout   time.Duration

	mu        sync.Mutex
	state     State
	failCount int
	openedAt  time.Time
}

// NewBreaker creates a closed breaker identified by name in logs.
func NewBreaker(name string, failThreshold int, openTimeout time.Duration) *Breaker {
	return &Breaker{
		name:          name,
		failThreshold: failThreshold,
		openTimeout:   openTimeout,
		state:         StateClosed,
	}
}

// Execute runs fn unless the breaker is open and its timeout has not
// elapsed, in which case it returns ErrCircuitOpen without calling fn.
func (b *Breaker) Execute(fn func() error) error {
	b.mu.Lock()
	if b.state == StateOpen {
		if time.Since(b.openedAt) <= b.openTimeout {
			b.mu.Unlock()
			return ErrCircuitOpen
		}
		b.transition(StateHalfOpen)
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.failCount++
		if b.state == StateHalfOpen || b.failCount >= b.failThreshold {
			b.transition(StateOpen)
			b.openedAt = time.Now()
		}
		return err
	}

	b.failCount = 0
	if b.state != StateClosed {
		b.transition(StateClosed)
	}
	return nil
}

// CurrentState reports the breaker state.
func (b *Breaker) CurrentState() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// transition must be called with the mutex held.
func (b *Breaker) transition(next State) {
	if b.state == next {
		return
	}
	log.Printf("[Breaker] %s: %s -> %s", b.name, b.state, next)
	b.state = next
}
