// Package task runs cancellable background goroutines whose termination can
// be awaited.
package task

import (
	"context"
	"time"
)

// Task is a handle to one running goroutine.
type Task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Start runs fn on a new goroutine with a context derived from parent.
func Start(parent context.Context, fn func(ctx context.Context)) *Task {
	ctx, cancel := context.WithCancel(parent)
	t := &Task{
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(t.done)
		defer cancel()
		fn(ctx)
	}()
	return t
}

// Stop cancels the task and blocks until fn has returned. Safe on a nil or
// already finished task.
func (t *Task) Stop() {
	if t == nil {
		return
	}
	t.cancel()
	<-t.done
}

// Done is closed once fn has returned.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Every calls tick once per interval until ctx is cancelled or tick returns
// false. The first call happens one interval after Every starts.
func Every(ctx context.Context, interval time.Duration, tick func(ctx context.Context) bool) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			if !tick(ctx) {
				return
			}
		}
	}
}
