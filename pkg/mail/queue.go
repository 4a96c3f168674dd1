package mail

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/telekom/itsmctl/pkg/metrics"
)

const (
	defaultMaxRetries = 5
	defaultBackoffMs  = 10000
	defaultQueueSize  = 1000
	maxBackoffMs      = 30 * 60 * 1000
)

var errQueueClosed = errors.New("queue is shutting down")

// outgoing is one alert mail together with its delivery state. It is only
// touched by the worker once enqueued.
type outgoing struct {
	id        string
	to        []string
	subject   string
	body      string
	attempts  int
	notBefore time.Time
}

// Queue delivers alert mails on a single worker. Failed sends are retried
// with exponential backoff until maxRetries attempts were made.
type Queue struct {
	sender     Sender
	log        *zap.SugaredLogger
	maxRetries int
	backoffMs  int
	capacity   int

	incoming chan *outgoing
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewQueue(sender Sender, log *zap.SugaredLogger, maxRetries, initialBackoffMs, maxQueueSize int) *Queue {
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	if initialBackoffMs <= 0 {
		initialBackoffMs = defaultBackoffMs
	}
	if maxQueueSize <= 0 {
		maxQueueSize = defaultQueueSize
	}
	log.Infow("Mail queue configured",
		"maxRetries", maxRetries,
		"initialBackoffMs", initialBackoffMs,
		"capacity", maxQueueSize)

	return &Queue{
		sender:     sender,
		log:        log,
		maxRetries: maxRetries,
		backoffMs:  initialBackoffMs,
		capacity:   maxQueueSize,
		incoming:   make(chan *outgoing, maxQueueSize),
		done:       make(chan struct{}),
	}
}

func (q *Queue) Start() {
	q.wg.Add(1)
	go q.run()
}

// Enqueue never blocks: a full or stopped queue rejects the mail.
func (q *Queue) Enqueue(id string, receivers []string, subject, body string) error {
	if len(receivers) == 0 {
		metrics.MailSend.WithLabelValues("dropped").Inc()
		q.log.Errorw("Alert mail without recipients dropped", "event", id, "subject", subject)
		return fmt.Errorf("cannot enqueue email with no receivers")
	}
	select {
	case <-q.done:
		metrics.MailSend.WithLabelValues("dropped").Inc()
		return errQueueClosed
	default:
	}

	m := &outgoing{
		id:        id,
		to:        slices.Clone(receivers),
		subject:   subject,
		body:      body,
		notBefore: time.Now(),
	}
	select {
	case q.incoming <- m:
		metrics.MailQueueDepth.Set(float64(len(q.incoming)))
		q.log.Debugw("Alert mail queued", "event", id, "recipients", len(receivers))
		return nil
	default:
		metrics.MailSend.WithLabelValues("dropped").Inc()
		q.log.Errorw("Mail queue full, alert dropped", "event", id, "capacity", q.capacity)
		return fmt.Errorf("mail queue is full (capacity: %d)", q.capacity)
	}
}

func (q *Queue) run() {
	defer q.wg.Done()
	var waiting []*outgoing
	for {
		var wake <-chan time.Time
		if next, ok := earliest(waiting); ok {
			wake = time.After(time.Until(next))
		}
		select {
		case <-q.done:
			q.drain(waiting)
			return
		case m := <-q.incoming:
			metrics.MailQueueDepth.Set(float64(len(q.incoming)))
			if !q.attempt(m) {
				waiting = append(waiting, m)
			}
		case now := <-wake:
			waiting = q.retryDue(waiting, now)
		}
	}
}

// retryDue attempts every mail whose backoff elapsed and returns the ones
// that still need another try.
func (q *Queue) retryDue(waiting []*outgoing, now time.Time) []*outgoing {
	remaining := waiting[:0]
	for _, m := range waiting {
		if m.notBefore.After(now) || !q.attempt(m) {
			if m.attempts < q.maxRetries {
				remaining = append(remaining, m)
			}
		}
	}
	return remaining
}

// drain gives queued and waiting mails one final attempt on shutdown.
func (q *Queue) drain(waiting []*outgoing) {
	for drained := false; !drained; {
		select {
		case m := <-q.incoming:
			waiting = append(waiting, m)
		default:
			drained = true
		}
	}
	if len(waiting) > 0 {
		q.log.Infow("Final delivery attempt for pending alert mails", "count", len(waiting))
	}
	for _, m := range waiting {
		if m.attempts < q.maxRetries {
			q.attempt(m)
		}
	}
	metrics.MailQueueDepth.Set(0)
}

// attempt sends m once and reports whether it is finished, either delivered
// or out of retries.
func (q *Queue) attempt(m *outgoing) bool {
	m.attempts++
	err := q.send(m)
	if err == nil {
		q.log.Infow("Alert mail sent", "event", m.id, "attempt", m.attempts, "recipients", len(m.to))
		return true
	}
	if m.attempts >= q.maxRetries {
		metrics.MailSend.WithLabelValues("exhausted").Inc()
		q.log.Errorw("Alert mail failed permanently",
			"event", m.id,
			"attempts", m.attempts,
			"recipients", m.to,
			"error", err)
		return true
	}
	delay := time.Duration(q.calculateBackoff(m.attempts)) * time.Millisecond
	m.notBefore = time.Now().Add(delay)
	metrics.MailSend.WithLabelValues("retry").Inc()
	q.log.Warnw("Alert mail failed, retrying",
		"event", m.id,
		"attempt", m.attempts,
		"retryIn", delay.String(),
		"error", err)
	return false
}

// send turns a panicking Sender into an error so the worker survives.
func (q *Queue) send(m *outgoing) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sender panicked: %v", r)
		}
	}()
	return q.sender.Send(m.to, m.subject, m.body)
}

// calculateBackoff doubles the initial backoff per attempt, capped at 30 minutes.
func (q *Queue) calculateBackoff(attempt int) int {
	backoff := q.backoffMs
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if backoff >= maxBackoffMs {
			return maxBackoffMs
		}
	}
	return backoff
}

func earliest(waiting []*outgoing) (time.Time, bool) {
	if len(waiting) == 0 {
		return time.Time{}, false
	}
	next := waiting[0].notBefore
	for _, m := range waiting[1:] {
		if m.notBefore.Before(next) {
			next = m.notBefore
		}
	}
	return next, true
}

// Stop rejects new mails, lets the worker make a final attempt for pending
// ones and waits for it until ctx is done.
func (q *Queue) Stop(ctx context.Context) error {
	q.stopOnce.Do(func() { close(q.done) })

	finished := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		q.log.Info("Mail queue stopped")
		return nil
	case <-ctx.Done():
		q.log.Warn("Mail queue stop timed out, pending alert mails may be lost")
		return ctx.Err()
	}
}

func (q *Queue) Length() int {
	return len(q.incoming)
}
