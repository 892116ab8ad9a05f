package outbound

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/rathix/workflow-engine/internal/metrics"
	"github.com/rathix/workflow-engine/internal/task"
)

// Queue is the outbound task dispatcher: it owns bounded
// exponential-backoff retry for dispatches handed to it by the Outbox,
// using the sethvargo/go-retry backoff helpers under a
// concurrency-limiting semaphore. Pending deliveries live only in process
// memory and are lost if the process exits; a dispatch is dropped when
// every concurrency slot is busy, and abandoned after maxAttempts failed
// attempts.
type Queue struct {
	client      *Client
	maxAttempts uint64
	baseDelay   time.Duration
	maxDelay    time.Duration
	sem         chan struct{}
	logger      *slog.Logger
	wg          sync.WaitGroup
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithMaxAttempts sets the maximum number of delivery attempts per
// dispatch. Defaults to 5.
func WithMaxAttempts(n uint64) QueueOption {
	return func(q *Queue) { q.maxAttempts = n }
}

// WithBaseDelay sets the base delay for exponential backoff. Defaults to
// 500ms.
func WithBaseDelay(d time.Duration) QueueOption {
	return func(q *Queue) { q.baseDelay = d }
}

// WithMaxDelay caps the backoff delay between attempts. Defaults to 30s.
func WithMaxDelay(d time.Duration) QueueOption {
	return func(q *Queue) { q.maxDelay = d }
}

// WithMaxConcurrent bounds the number of in-flight deliveries. Defaults to
// 32.
func WithMaxConcurrent(n int) QueueOption {
	return func(q *Queue) { q.sem = make(chan struct{}, n) }
}

// WithQueueLogger sets the queue's logger.
func WithQueueLogger(logger *slog.Logger) QueueOption {
	return func(q *Queue) { q.logger = logger }
}

// NewQueue creates a Queue delivering through client.
func NewQueue(client *Client, opts ...QueueOption) *Queue {
	q := &Queue{
		client:      client,
		maxAttempts: 5,
		baseDelay:   500 * time.Millisecond,
		maxDelay:    30 * time.Second,
		sem:         make(chan struct{}, 32),
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue schedules d for asynchronous delivery with retry. It never
// blocks the caller beyond acquiring a concurrency slot; if the queue is
// saturated, the dispatch is dropped and logged rather than blocking
// ingress.
func (q *Queue) Enqueue(ctx context.Context, d task.Dispatch) {
	select {
	case q.sem <- struct{}{}:
	default:
		q.logger.Warn("dispatch dropped: queue at max concurrency", "path", d.Path)
		return
	}

	metrics.DispatchQueueDepth.Inc()
	q.wg.Add(1)
	go func() {
		defer func() { <-q.sem; q.wg.Done(); metrics.DispatchQueueDepth.Dec() }()
		q.deliverWithRetry(context.WithoutCancel(ctx), d)
	}()
}

func (q *Queue) deliverWithRetry(ctx context.Context, d task.Dispatch) {
	backoff := retry.NewExponential(q.baseDelay)
	backoff = retry.WithMaxRetries(q.maxAttempts-1, backoff)
	if q.maxDelay > 0 {
		backoff = retry.WithCappedDuration(q.maxDelay, backoff)
	}

	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		result, err := q.client.Send(ctx, d)
		if err != nil {
			metrics.DispatchAttemptsTotal.WithLabelValues("transport_error").Inc()
			q.logger.Warn("dispatch delivery attempt failed",
				"path", d.Path, "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		if result.Status < 200 || result.Status >= 300 {
			metrics.DispatchAttemptsTotal.WithLabelValues("non_2xx").Inc()
			err := fmt.Errorf("non-2xx response %d", result.Status)
			q.logger.Warn("dispatch delivery attempt failed",
				"path", d.Path, "attempt", attempt, "status", result.Status)
			return retry.RetryableError(err)
		}
		metrics.DispatchAttemptsTotal.WithLabelValues("success").Inc()
		return nil
	})
	if err != nil {
		q.logger.Warn("dispatch delivery exhausted retries",
			"path", d.Path, "attempts", attempt, "error", err)
	}
}

// Wait blocks until every in-flight delivery has finished. Intended for
// graceful shutdown and tests.
func (q *Queue) Wait() {
	q.wg.Wait()
}
