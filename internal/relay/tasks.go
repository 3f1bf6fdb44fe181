package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
)

// Tasks runs fire-and-forget work in the background. Failures and panics are
// logged and handed to the failure hook; they never reach the caller.
type Tasks struct {
	ctx       context.Context
	cancel    context.CancelFunc
	logger    *slog.Logger
	onFailure func(name string, err error)

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewTasks creates a task group whose tasks run under a context derived from parent.
// onFailure may be nil.
func NewTasks(parent context.Context, logger *slog.Logger, onFailure func(name string, err error)) *Tasks {
	ctx, cancel := context.WithCancel(parent)
	return &Tasks{
		ctx:       ctx,
		cancel:    cancel,
		logger:    logger,
		onFailure: onFailure,
	}
}

// Go starts fn in its own goroutine and returns immediately. After Close it
// drops fn and reports false.
func (t *Tasks) Go(name string, fn func(ctx context.Context) error) bool {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		t.logger.Warn("task dropped during shutdown", "task", name)
		return false
	}
	t.wg.Add(1)
	t.mu.Unlock()

	go func() {
		defer t.wg.Done()

		err := t.run(fn)
		if err == nil || errors.Is(err, context.Canceled) {
			return
		}
		t.logger.Error("background task failed", "task", name, "error", err)
		if t.onFailure != nil {
			t.onFailure(name, err)
		}
	}()
	return true
}

func (t *Tasks) run(fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			t.logger.Error("background task panicked", "panic", r, "stack", string(debug.Stack()))
		}
	}()
	return fn(t.ctx)
}

// Close stops Go from accepting new tasks. Tasks already started keep
// running; call Wait or Stop afterwards to drain them.
func (t *Tasks) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
}

// Wait blocks until every started task has returned or ctx expires.
func (t *Tasks) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop closes the group, cancels running tasks, and waits for them to return.
func (t *Tasks) Stop(ctx context.Context) error {
	t.Close()
	t.cancel()
	return t.Wait(ctx)
}
