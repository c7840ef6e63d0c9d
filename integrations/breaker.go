package integrations

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// BreakerState is the current mode of a circuit breaker.
type BreakerState int

const (
	// BreakerClosed lets requests through
	BreakerClosed BreakerState = iota
	// BreakerOpen rejects requests until the recovery timeout elapses
	BreakerOpen
	// BreakerHalfOpen lets a bounded number of probe requests through
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes a circuit breaker.
type BreakerConfig struct {
	// FailureThreshold is the consecutive failure count that opens the circuit
	FailureThreshold int `json:"failure_threshold" yaml:"failure_threshold"`
	// RecoveryTimeout is how long the circuit stays open before probing
	RecoveryTimeout time.Duration `json:"recovery_timeout" yaml:"recovery_timeout"`
	// HalfOpenMaxProbes bounds concurrent probes in the half-open state
	HalfOpenMaxProbes int `json:"half_open_max_probes" yaml:"half_open_max_probes"`
	// HalfOpenSuccesses is the consecutive success count that closes the circuit
	HalfOpenSuccesses int `json:"half_open_successes" yaml:"half_open_successes"`
}

// DefaultBreakerConfig returns the breaker tuning used when a caller does
// not provide its own.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold:  5,
		RecoveryTimeout:   30 * time.Second,
		HalfOpenMaxProbes: 3,
		HalfOpenSuccesses: 2,
	}
}

// Breaker is a circuit breaker guarding one upstream host. Consecutive
// failures open the circuit; after the recovery timeout a few probes are
// let through, and consecutive probe successes close it again.
type Breaker struct {
	host        string
	config      BreakerConfig
	state       BreakerState
	failures    int
	successes   int
	probes      int
	lastFailure time.Time
	logger      *zap.Logger
	mu          sync.Mutex
}

// NewBreaker creates a closed breaker for the given host.
func NewBreaker(host string, config BreakerConfig, logger *zap.Logger) *Breaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Breaker{
		host:   host,
		config: config,
		state:  BreakerClosed,
		logger: logger.With(zap.String("host", host)),
	}
}

// Allow reports whether a request may go out now. The returned error
// names the host and the remaining recovery time when the circuit is
// open.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return nil

	case BreakerOpen:
		if time.Since(b.lastFailure) >= b.config.RecoveryTimeout {
			b.transitionTo(BreakerHalfOpen, "recovery timeout elapsed")
			b.probes = 0
			b.successes = 0
			b.probes++
			return nil
		}
		return fmt.Errorf("circuit open for %s: %d consecutive failures, retry in %v",
			b.host, b.failures, b.config.RecoveryTimeout-time.Since(b.lastFailure))

	case BreakerHalfOpen:
		if b.probes < b.config.HalfOpenMaxProbes {
			b.probes++
			return nil
		}
		return fmt.Errorf("circuit half-open for %s: probe limit (%d) reached",
			b.host, b.config.HalfOpenMaxProbes)

	default:
		return fmt.Errorf("circuit in unknown state %d for %s", b.state, b.host)
	}
}

// RecordSuccess feeds a successful request back into the breaker.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		b.failures = 0

	case BreakerHalfOpen:
		b.successes++
		if b.successes >= b.config.HalfOpenSuccesses {
			b.transitionTo(BreakerClosed, fmt.Sprintf("%d consecutive probe successes", b.successes))
			b.failures = 0
			b.successes = 0
		}
	}
}

// RecordFailure feeds a failed request back into the breaker.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.lastFailure = time.Now()

	switch b.state {
	case BreakerClosed:
		if b.failures >= b.config.FailureThreshold {
			b.transitionTo(BreakerOpen, fmt.Sprintf("%d consecutive failures", b.failures))
		}

	case BreakerHalfOpen:
		// Any probe failure reopens the circuit immediately.
		b.successes = 0
		b.transitionTo(BreakerOpen, "probe failed")
	}
}

// State returns the breaker's current state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// transitionTo must be called with the mutex held.
func (b *Breaker) transitionTo(state BreakerState, reason string) {
	old := b.state
	b.state = state
	b.logger.Info("circuit state change",
		zap.String("old_state", old.String()),
		zap.String("new_state", state.String()),
		zap.String("reason", reason),
		zap.Int("failures", b.failures),
	)
}

// breakerSet lazily creates one breaker per upstream host.
type breakerSet struct {
	breakers map[string]*Breaker
	config   BreakerConfig
	logger   *zap.Logger
	mu       sync.RWMutex
}

func newBreakerSet(config BreakerConfig, logger *zap.Logger) *breakerSet {
	return &breakerSet{
		breakers: make(map[string]*Breaker),
		config:   config,
		logger:   logger,
	}
}

func (s *breakerSet) get(host string) *Breaker {
	s.mu.RLock()
	if b, ok := s.breakers[host]; ok {
		s.mu.RUnlock()
		return b
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.breakers[host]; ok {
		return b
	}
	b := NewBreaker(host, s.config, s.logger)
	s.breakers[host] = b
	return b
}

// states snapshots every known breaker's state.
func (s *breakerSet) states() map[string]BreakerState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]BreakerState, len(s.breakers))
	for host, b := range s.breakers {
		out[host] = b.State()
	}
	return out
}
