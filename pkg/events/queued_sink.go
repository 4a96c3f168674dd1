package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/telekom/itsmctl/pkg/metrics"
)

type QueuedSinkConfig struct {
	// QueueSize is the capacity of the event queue.
	// Default: 1000
	QueueSize int

	// WorkerCount is the number of goroutines draining the queue.
	// Default: 1, which keeps per-sink delivery in emission order.
	WorkerCount int

	// WriteTimeout bounds a single write to the wrapped sink.
	// Default: 5s
	WriteTimeout time.Duration

	// CircuitBreaker guards the wrapped sink; zero values take the defaults.
	CircuitBreaker CircuitBreakerConfig
}

func DefaultQueuedSinkConfig() QueuedSinkConfig {
	return QueuedSinkConfig{
		QueueSize:      1000,
		WorkerCount:    1,
		WriteTimeout:   5 * time.Second,
		CircuitBreaker: DefaultCircuitBreakerConfig(),
	}
}

type QueuedSinkHealth struct {
	Name            string    `json:"name"`
	Healthy         bool      `json:"healthy"`
	QueueLength     int       `json:"queueLength"`
	QueueCapacity   int       `json:"queueCapacity"`
	DroppedEvents   int64     `json:"droppedEvents"`
	ProcessedEvents int64     `json:"processedEvents"`
	FailedEvents    int64     `json:"failedEvents"`
	CircuitState    string    `json:"circuitState"`
	LastError       string    `json:"lastError,omitempty"`
	LastErrorTime   time.Time `json:"lastErrorTime,omitempty"`
	LastSuccessTime time.Time `json:"lastSuccessTime,omitempty"`
}

// QueuedSink decouples a Sink from its callers. Write never blocks: when the
// queue is full or the circuit is open the event is dropped and counted.
type QueuedSink struct {
	sink    Sink
	queue   chan *Event
	config  QueuedSinkConfig
	breaker *CircuitBreaker
	logger  *zap.Logger

	droppedEvents   atomic.Int64
	processedEvents atomic.Int64
	failedEvents    atomic.Int64

	mu              sync.RWMutex
	lastError       string
	lastErrorTime   time.Time
	lastSuccessTime time.Time

	closeMu sync.RWMutex
	closed  bool
	wg      sync.WaitGroup
}

func NewQueuedSink(sink Sink, cfg QueuedSinkConfig, logger *zap.Logger) *QueuedSink {
	def := DefaultQueuedSinkConfig()
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = def.WorkerCount
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}

	qs := &QueuedSink{
		sink:    sink,
		queue:   make(chan *Event, cfg.QueueSize),
		config:  cfg,
		breaker: NewCircuitBreaker(sink.Name(), cfg.CircuitBreaker, logger),
		logger:  logger.Named("queued-sink").With(zap.String("sink", sink.Name())),
	}

	for i := 0; i < cfg.WorkerCount; i++ {
		qs.wg.Add(1)
		go qs.processQueue(i)
	}

	qs.logger.Info("queued sink started",
		zap.Int("queue_size", cfg.QueueSize),
		zap.Int("workers", cfg.WorkerCount),
		zap.Duration("write_timeout", cfg.WriteTimeout))

	return qs
}

// Write enqueues the event. It only fails once the sink is closed.
func (qs *QueuedSink) Write(_ context.Context, event *Event) error {
	qs.closeMu.RLock()
	defer qs.closeMu.RUnlock()
	if qs.closed {
		return fmt.Errorf("queued sink %s is closed", qs.sink.Name())
	}

	select {
	case qs.queue <- event:
		metrics.EventSinkQueueDepth.WithLabelValues(qs.sink.Name()).Set(float64(len(qs.queue)))
	default:
		qs.drop(event, "queue_full")
	}
	return nil
}

func (qs *QueuedSink) drop(event *Event, reason string) {
	qs.droppedEvents.Add(1)
	metrics.EventSinkDropped.WithLabelValues(qs.sink.Name(), reason).Inc()
	qs.logger.Warn("dropping event",
		zap.String("reason", reason),
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)))
}

func (qs *QueuedSink) processQueue(workerID int) {
	defer qs.wg.Done()

	for event := range qs.queue {
		metrics.EventSinkQueueDepth.WithLabelValues(qs.sink.Name()).Set(float64(len(qs.queue)))

		ctx, cancel := context.WithTimeout(context.Background(), qs.config.WriteTimeout)
		err := qs.breaker.Execute(ctx, func(ctx context.Context) error {
			return qs.sink.Write(ctx, event)
		})
		cancel()

		switch {
		case errors.Is(err, ErrCircuitOpen):
			qs.drop(event, "circuit_open")
		case err != nil:
			qs.failedEvents.Add(1)
			qs.mu.Lock()
			qs.lastError = err.Error()
			qs.lastErrorTime = time.Now()
			qs.mu.Unlock()
			qs.logger.Error("failed to write event",
				zap.Int("worker", workerID),
				zap.String("event_id", event.ID),
				zap.Error(err))
		default:
			qs.processedEvents.Add(1)
			qs.mu.Lock()
			qs.lastSuccessTime = time.Now()
			qs.mu.Unlock()
		}
	}
}

func (qs *QueuedSink) Health() QueuedSinkHealth {
	qs.mu.RLock()
	lastError, lastErrorTime, lastSuccessTime := qs.lastError, qs.lastErrorTime, qs.lastSuccessTime
	qs.mu.RUnlock()

	queueLen, queueCap := len(qs.queue), cap(qs.queue)
	state := qs.breaker.State()

	healthy := state == CircuitClosed &&
		queueLen*5 < queueCap*4 &&
		(lastErrorTime.IsZero() || lastSuccessTime.After(lastErrorTime))

	return QueuedSinkHealth{
		Name:            qs.sink.Name(),
		Healthy:         healthy,
		QueueLength:     queueLen,
		QueueCapacity:   queueCap,
		DroppedEvents:   qs.droppedEvents.Load(),
		ProcessedEvents: qs.processedEvents.Load(),
		FailedEvents:    qs.failedEvents.Load(),
		CircuitState:    state.String(),
		LastError:       lastError,
		LastErrorTime:   lastErrorTime,
		LastSuccessTime: lastSuccessTime,
	}
}

// Close drains the queue, waits for the workers and closes the wrapped sink.
func (qs *QueuedSink) Close() error {
	qs.closeMu.Lock()
	if qs.closed {
		qs.closeMu.Unlock()
		return nil
	}
	qs.closed = true
	close(qs.queue)
	qs.closeMu.Unlock()

	qs.wg.Wait()
	return qs.sink.Close()
}

func (qs *QueuedSink) Name() string {
	return qs.sink.Name()
}
