package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrQueueClosed is returned when submitting to a queue that is not running.
var ErrQueueClosed = errors.New("queue closed")

// Task wraps a payload with its retry bookkeeping.
type Task[T any] struct {
	Payload  T
	Attempt  int
	Enqueued time.Time
}

// Handler processes one payload.
type Handler[T any] func(context.Context, T) error

// Config configures worker pool behaviour.
type Config struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
	Logger     *zap.Logger
}

// Queue fans payloads out to a fixed set of goroutines. Stop drains whatever
// is still buffered before returning.
type Queue[T any] struct {
	name    string
	handler Handler[T]
	cfg     Config
	logger  *zap.Logger

	tasks   chan Task[T]
	ctx     context.Context
	cancel  context.CancelFunc
	workers sync.WaitGroup
	mu      sync.RWMutex
	running bool
}

// New builds a queue; call Start before Submit.
func New[T any](name string, handler Handler[T], cfg Config) *Queue[T] {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = cfg.Workers * 16
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Queue[T]{
		name:    name,
		handler: handler,
		cfg:     cfg,
		logger:  cfg.Logger.With(zap.String("queue", name)),
		tasks:   make(chan Task[T], cfg.BufferSize),
	}
}

// Start launches the workers. Calling it twice is a no-op.
func (q *Queue[T]) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return
	}
	q.ctx, q.cancel = context.WithCancel(context.WithoutCancel(ctx))
	for i := 0; i < q.cfg.Workers; i++ {
		q.workers.Add(1)
		go q.work()
	}
	q.running = true
	q.logger.Info("queue started", zap.Int("workers", q.cfg.Workers))
}

// Submit enqueues payload without blocking past ctx.
func (q *Queue[T]) Submit(ctx context.Context, payload T) error {
	return q.push(ctx, Task[T]{Payload: payload, Enqueued: time.Now().UTC()})
}

func (q *Queue[T]) push(ctx context.Context, task Task[T]) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if !q.running {
		return fmt.Errorf("%s: %w", q.name, ErrQueueClosed)
	}
	select {
	case q.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop refuses new work and waits until the buffer is drained.
func (q *Queue[T]) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	q.running = false
	close(q.tasks)
	q.mu.Unlock()

	q.cancel()
	q.workers.Wait()
	q.logger.Info("queue stopped")
}

func (q *Queue[T]) work() {
	defer q.workers.Done()
	for task := range q.tasks {
		q.run(task)
	}
}

// run retries inline; once the queue is stopping the delay is skipped so a
// drain finishes promptly.
func (q *Queue[T]) run(task Task[T]) {
	ctx := context.WithoutCancel(q.ctx)
	for {
		err := q.handler(ctx, task.Payload)
		if err == nil {
			return
		}
		task.Attempt++
		if task.Attempt > q.cfg.MaxRetries {
			q.logger.Error("task dropped after retries", zap.Int("attempts", task.Attempt), zap.Error(err))
			return
		}
		q.logger.Warn("task failed, retrying", zap.Int("attempt", task.Attempt), zap.Error(err))

		timer := time.NewTimer(q.cfg.RetryDelay)
		select {
		case <-timer.C:
		case <-q.ctx.Done():
		}
		timer.Stop()
	}
}
