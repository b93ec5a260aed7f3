package attendance

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// rotator runs one ticker goroutine per Active session, rotating its token
// every interval. It is owned by the server so rotation continues whether or
// not a display client is connected.
type rotator struct {
	mu      sync.Mutex
	tasks   map[int64]*rotationTask
	ctx     context.Context
	stopAll context.CancelFunc
	wg      sync.WaitGroup
	rotate  func(ctx context.Context, id int64) error
	logger  *slog.Logger
}

type rotationTask struct {
	cancel context.CancelFunc
	every  time.Duration
}

func newRotator(rotate func(ctx context.Context, id int64) error, logger *slog.Logger) *rotator {
	ctx, stopAll := context.WithCancel(context.Background())
	return &rotator{
		tasks:   make(map[int64]*rotationTask),
		ctx:     ctx,
		stopAll: stopAll,
		rotate:  rotate,
		logger:  logger,
	}
}

// schedule starts rotating id every interval, replacing any existing task.
// It is a no-op after stop.
func (r *rotator) schedule(id int64, every time.Duration) {
	if every <= 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.start(id, every)
}

// reschedule restarts the task for id with a new interval, but only while
// one is registered. A session cancelled in the meantime stays cancelled.
func (r *rotator) reschedule(id int64, every time.Duration) bool {
	if every <= 0 {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[id]; !ok {
		return false
	}
	r.start(id, every)
	return true
}

// start replaces the task for id. r.mu must be held.
func (r *rotator) start(id int64, every time.Duration) {
	if r.ctx.Err() != nil {
		return
	}
	if old, ok := r.tasks[id]; ok {
		old.cancel()
	}

	ctx, cancel := context.WithCancel(r.ctx)
	t := &rotationTask{cancel: cancel, every: every}
	r.tasks[id] = t

	r.wg.Add(1)
	go r.run(ctx, id, t)
}

// cancel stops the task for id, if any.
func (r *rotator) cancel(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.tasks[id]; ok {
		t.cancel()
		delete(r.tasks, id)
	}
}

func (r *rotator) interval(id int64) (time.Duration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return 0, false
	}
	return t.every, true
}

func (r *rotator) scheduled(id int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tasks[id]
	return ok
}

func (r *rotator) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

// stop cancels all tasks and waits for their goroutines to return.
func (r *rotator) stop() {
	r.mu.Lock()
	r.stopAll()
	r.tasks = make(map[int64]*rotationTask)
	r.mu.Unlock()

	r.wg.Wait()
}

// forget removes t if it is still the registered task for id.
func (r *rotator) forget(id int64, t *rotationTask) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.tasks[id]; ok && cur == t {
		t.cancel()
		delete(r.tasks, id)
	}
}

func (r *rotator) run(ctx context.Context, id int64, t *rotationTask) {
	defer r.wg.Done()

	ticker := time.NewTicker(t.every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := r.tick(ctx, id, t.every)
			switch {
			case err == nil:
			case errors.Is(err, ErrSessionInactive), errors.Is(err, ErrNotFound):
				// Ended or deleted elsewhere; nothing left to rotate.
				r.forget(id, t)
				return
			case ctx.Err() != nil:
				return
			default:
				// Keep the task; the next tick retries.
				r.logger.Error("scheduled rotation failed", "session_id", id, "error", err)
			}
		}
	}
}

func (r *rotator) tick(ctx context.Context, id int64, every time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, every)
	defer cancel()
	return r.rotate(ctx, id)
}
