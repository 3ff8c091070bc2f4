package async

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	// ErrPoolClosed is returned when submitting to a pool that was shut down
	ErrPoolClosed = errors.New("worker pool shut down")
	// ErrQueueFull is returned when the pool's queue has no free slot
	ErrQueueFull = errors.New("worker pool queue full")
)

// run executes fn with a timeout, turning panics into errors
func run(ctx context.Context, timeout time.Duration, fn func(context.Context) error) (err error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return fn(ctx)
}

// SafeGo executes fn in a goroutine with panic recovery and a timeout.
// The goroutine is detached from parentCtx's cancellation but keeps its
// values, so it outlives the request that started it. Failures are logged.
//
//	async.SafeGo(r.Context(), logger, 30*time.Second, "release attachments", func(ctx context.Context) error {
//		return uploader.Delete(ctx, key)
//	})
func SafeGo(parentCtx context.Context, logger logrus.FieldLogger, timeout time.Duration, taskName string, fn func(context.Context) error) {
	ctx := context.WithoutCancel(parentCtx)
	go func() {
		if err := run(ctx, timeout, fn); err != nil && logger != nil {
			logger.WithError(err).WithField("task", taskName).Error("background task failed")
		}
	}()
}

// WorkerPool runs submitted tasks on a fixed number of workers reading from
// a bounded queue
type WorkerPool struct {
	taskName string
	timeout  time.Duration
	logger   logrus.FieldLogger

	mu     sync.RWMutex
	closed bool
	workCh chan func(context.Context) error
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewWorkerPool starts workers goroutines draining a queue of queueSize tasks.
// Each task gets its own timeout derived from ctx.
func NewWorkerPool(ctx context.Context, logger logrus.FieldLogger, workers, queueSize int, taskName string, timeout time.Duration) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	ctx, cancel := context.WithCancel(ctx)

	p := &WorkerPool{
		taskName: taskName,
		timeout:  timeout,
		logger:   logger,
		workCh:   make(chan func(context.Context) error, queueSize),
		ctx:      ctx,
		cancel:   cancel,
	}

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker(i)
	}
	return p
}

// Submit queues fn without blocking
func (p *WorkerPool) Submit(fn func(context.Context) error) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.workCh <- fn:
		return nil
	default:
		return ErrQueueFull
	}
}

// Shutdown stops accepting tasks and waits for queued ones to finish. When
// ctx expires first the running tasks are cancelled.
func (p *WorkerPool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.workCh)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		return fmt.Errorf("%s pool shutdown: %w", p.taskName, ctx.Err())
	}
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	for fn := range p.workCh {
		if err := run(p.ctx, p.timeout, fn); err != nil && p.logger != nil {
			p.logger.WithError(err).WithFields(logrus.Fields{
				"task":   p.taskName,
				"worker": id,
			}).Error("background task failed")
		}
	}
}
