// Package resilience provides retry and circuit breaking for platform fetches.
package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	// CircuitClosed lets fetches through.
	CircuitClosed CircuitState = iota
	// CircuitOpen rejects fetches until the cool-down elapses.
	CircuitOpen
	// CircuitHalfOpen lets probe fetches through.
	CircuitHalfOpen
)

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

// ErrCircuitOpen is returned when a fetch is rejected because the platform
// has been failing for this operation.
var ErrCircuitOpen = eris.New("circuit breaker is open")

// CircuitBreakerConfig controls circuit breaker behavior.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before the
	// circuit opens. Default: 5.
	FailureThreshold int

	// CoolDown is how long the circuit stays open before probing. Default: 60s.
	CoolDown time.Duration

	// ProbesToClose is the number of successful probes needed to close a
	// half-open circuit. Default: 1.
	ProbesToClose int

	// ShouldTrip decides which errors count as failures. Default: IsTransient,
	// so a legitimately missing account never opens the circuit.
	ShouldTrip func(err error) bool
}

// DefaultCircuitBreakerConfig returns the defaults used for platform fetches.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		CoolDown:         60 * time.Second,
		ProbesToClose:    1,
		ShouldTrip:       IsTransient,
	}
}

// CircuitBreaker guards a single fetch operation.
type CircuitBreaker struct {
	name string
	cfg  CircuitBreakerConfig

	mu                  sync.Mutex
	state               CircuitState
	consecutiveFailures int
	openedAt            time.Time
	probeSuccesses      int

	nowFunc func() time.Time
}

// NewCircuitBreaker creates a breaker with defaults applied.
func NewCircuitBreaker(name string, cfg CircuitBreakerConfig) *CircuitBreaker {
	def := DefaultCircuitBreakerConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.CoolDown <= 0 {
		cfg.CoolDown = def.CoolDown
	}
	if cfg.ProbesToClose <= 0 {
		cfg.ProbesToClose = def.ProbesToClose
	}
	if cfg.ShouldTrip == nil {
		cfg.ShouldTrip = def.ShouldTrip
	}
	return &CircuitBreaker{name: name, cfg: cfg, nowFunc: time.Now}
}

// Call runs fn unless the circuit is open.
func Call[T any](ctx context.Context, cb *CircuitBreaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if !cb.allow() {
		return zero, eris.Wrapf(ErrCircuitOpen, "operation %s", cb.name)
	}
	val, err := fn(ctx)
	cb.record(err)
	return val, err
}

// State returns the current state, reporting half-open once the cool-down
// has elapsed.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == CircuitOpen && cb.nowFunc().Sub(cb.openedAt) >= cb.cfg.CoolDown {
		return CircuitHalfOpen
	}
	return cb.state
}

// Reset closes the circuit.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.transition(CircuitClosed)
	cb.consecutiveFailures = 0
	cb.probeSuccesses = 0
}

func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != CircuitOpen {
		return true
	}
	if cb.nowFunc().Sub(cb.openedAt) >= cb.cfg.CoolDown {
		cb.transition(CircuitHalfOpen)
		return true
	}
	return false
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil || !cb.cfg.ShouldTrip(err) {
		switch cb.state {
		case CircuitHalfOpen:
			cb.probeSuccesses++
			if cb.probeSuccesses >= cb.cfg.ProbesToClose {
				cb.transition(CircuitClosed)
				cb.consecutiveFailures = 0
				cb.probeSuccesses = 0
			}
		case CircuitClosed:
			cb.consecutiveFailures = 0
		}
		return
	}

	cb.consecutiveFailures++
	switch cb.state {
	case CircuitClosed:
		if cb.consecutiveFailures >= cb.cfg.FailureThreshold {
			cb.openedAt = cb.nowFunc()
			cb.transition(CircuitOpen)
		}
	case CircuitHalfOpen:
		cb.openedAt = cb.nowFunc()
		cb.probeSuccesses = 0
		cb.transition(CircuitOpen)
	}
}

func (cb *CircuitBreaker) transition(to CircuitState) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	zap.L().Warn("circuit state change",
		zap.String("operation", cb.name),
		zap.String("from", from.String()),
		zap.String("to", to.String()),
	)
}

// BreakerSet holds one breaker per fetch operation.
type BreakerSet struct {
	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
	cfg      CircuitBreakerConfig
}

// NewBreakerSet creates an empty set sharing one config.
func NewBreakerSet(cfg CircuitBreakerConfig) *BreakerSet {
	return &BreakerSet{breakers: make(map[string]*CircuitBreaker), cfg: cfg}
}

// Get returns the breaker for the named operation, creating it if needed.
func (s *BreakerSet) Get(operation string) *CircuitBreaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	cb, ok := s.breakers[operation]
	if !ok {
		cb = NewCircuitBreaker(operation, s.cfg)
		s.breakers[operation] = cb
	}
	return cb
}

// States returns a snapshot of every breaker's state.
func (s *BreakerSet) States() map[string]CircuitState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]CircuitState, len(s.breakers))
	for name, cb := range s.breakers {
		out[name] = cb.State()
	}
	return out
}
