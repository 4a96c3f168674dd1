package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/telekom/itsmctl/pkg/metrics"
)

type CircuitState int32

const (
	// CircuitClosed lets every write through.
	CircuitClosed CircuitState = iota
	// CircuitOpen rejects writes until OpenTimeout has passed.
	CircuitOpen
	// CircuitHalfOpen lets a limited number of trial writes through.
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

type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before opening the circuit.
	// Default: 5
	FailureThreshold int

	// SuccessThreshold is the number of consecutive half-open successes that close the circuit.
	// Default: 2
	SuccessThreshold int

	// OpenTimeout is how long the circuit stays open before probing.
	// Default: 30s
	OpenTimeout time.Duration

	// HalfOpenMaxRequests caps concurrent trial writes while half-open.
	// Default: 1
	HalfOpenMaxRequests int

	OnStateChange func(from, to CircuitState)
}

func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold:    5,
		SuccessThreshold:    2,
		OpenTimeout:         30 * time.Second,
		HalfOpenMaxRequests: 1,
	}
}

var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreaker stops calls to a failing sink for a cooldown period.
type CircuitBreaker struct {
	name   string
	config CircuitBreakerConfig
	logger *zap.Logger
	now    func() time.Time

	mu               sync.Mutex
	state            CircuitState
	consecutiveFails int
	consecutiveSuccs int
	halfOpenInFlight int
	lastStateChange  time.Time
	lastError        error
	totalRequests    int64
	totalFailures    int64
	totalRejections  int64
}

func NewCircuitBreaker(name string, cfg CircuitBreakerConfig, logger *zap.Logger) *CircuitBreaker {
	def := DefaultCircuitBreakerConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = def.SuccessThreshold
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = def.OpenTimeout
	}
	if cfg.HalfOpenMaxRequests <= 0 {
		cfg.HalfOpenMaxRequests = def.HalfOpenMaxRequests
	}

	cb := &CircuitBreaker{
		name:   name,
		config: cfg,
		logger: logger.Named("circuit-breaker").With(zap.String("sink", name)),
		now:    time.Now,
	}
	cb.lastStateChange = cb.now()
	metrics.EventSinkCircuitState.WithLabelValues(name).Set(float64(CircuitClosed))
	return cb
}

// Execute runs fn unless the circuit is open. It returns ErrCircuitOpen
// without calling fn when the call is rejected.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if !cb.acquire() {
		return ErrCircuitOpen
	}
	err := fn(ctx)
	cb.release(err)
	return err
}

func (cb *CircuitBreaker) acquire() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitOpen && cb.now().Sub(cb.lastStateChange) >= cb.config.OpenTimeout {
		cb.transitionLocked(CircuitHalfOpen)
	}

	switch cb.state {
	case CircuitClosed:
	case CircuitHalfOpen:
		if cb.halfOpenInFlight >= cb.config.HalfOpenMaxRequests {
			cb.totalRejections++
			return false
		}
		cb.halfOpenInFlight++
	default:
		cb.totalRejections++
		return false
	}
	cb.totalRequests++
	return true
}

func (cb *CircuitBreaker) release(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitHalfOpen && cb.halfOpenInFlight > 0 {
		cb.halfOpenInFlight--
	}

	if err != nil {
		cb.totalFailures++
		cb.lastError = err
		cb.consecutiveSuccs = 0
		cb.consecutiveFails++
		switch cb.state {
		case CircuitClosed:
			if cb.consecutiveFails >= cb.config.FailureThreshold {
				cb.transitionLocked(CircuitOpen)
			}
		case CircuitHalfOpen:
			cb.transitionLocked(CircuitOpen)
		}
		return
	}

	cb.consecutiveFails = 0
	cb.consecutiveSuccs++
	if cb.state == CircuitHalfOpen && cb.consecutiveSuccs >= cb.config.SuccessThreshold {
		cb.transitionLocked(CircuitClosed)
	}
}

func (cb *CircuitBreaker) transitionLocked(to CircuitState) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	cb.lastStateChange = cb.now()
	cb.consecutiveFails = 0
	cb.consecutiveSuccs = 0
	cb.halfOpenInFlight = 0

	cb.logger.Info("circuit breaker state changed",
		zap.String("from", from.String()),
		zap.String("to", to.String()))
	metrics.EventSinkCircuitState.WithLabelValues(cb.name).Set(float64(to))

	if cb.config.OnStateChange != nil {
		cb.config.OnStateChange(from, to)
	}
}

func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

type CircuitBreakerStats struct {
	State            CircuitState
	ConsecutiveFails int
	TotalRequests    int64
	TotalFailures    int64
	TotalRejections  int64
	LastStateChange  time.Time
	LastError        error
}

func (cb *CircuitBreaker) Stats() CircuitBreakerStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return CircuitBreakerStats{
		State:            cb.state,
		ConsecutiveFails: cb.consecutiveFails,
		TotalRequests:    cb.totalRequests,
		TotalFailures:    cb.totalFailures,
		TotalRejections:  cb.totalRejections,
		LastStateChange:  cb.lastStateChange,
		LastError:        cb.lastError,
	}
}

// ForceOpen opens the circuit, e.g. while a destination is under maintenance.
func (cb *CircuitBreaker) ForceOpen() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.transitionLocked(CircuitOpen)
}

func (cb *CircuitBreaker) ForceClose() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.transitionLocked(CircuitClosed)
}

func (cb *CircuitBreaker) IsHealthy() bool {
	return cb.State() == CircuitClosed
}

// CircuitBreakerSink wraps a Sink with circuit breaker protection.
type CircuitBreakerSink struct {
	sink    Sink
	breaker *CircuitBreaker
}

func NewCircuitBreakerSink(sink Sink, cfg CircuitBreakerConfig, logger *zap.Logger) *CircuitBreakerSink {
	return &CircuitBreakerSink{
		sink:    sink,
		breaker: NewCircuitBreaker(sink.Name(), cfg, logger),
	}
}

func (s *CircuitBreakerSink) Write(ctx context.Context, event *Event) error {
	err := s.breaker.Execute(ctx, func(ctx context.Context) error {
		return s.sink.Write(ctx, event)
	})
	if errors.Is(err, ErrCircuitOpen) {
		metrics.EventSinkDropped.WithLabelValues(s.sink.Name(), "circuit_open").Inc()
	}
	return err
}

func (s *CircuitBreakerSink) Close() error {
	return s.sink.Close()
}

func (s *CircuitBreakerSink) Name() string {
	return s.sink.Name()
}

func (s *CircuitBreakerSink) CircuitBreaker() *CircuitBreaker {
	return s.breaker
}
