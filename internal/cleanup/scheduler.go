// Package cleanup runs periodic housekeeping such as purging expired login
// sessions.
package cleanup

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Task is one unit of housekeeping. It returns how many items it removed.
type Task struct {
	Name string
	Run  func(ctx context.Context) (int64, error)
}

// Scheduler runs its tasks every interval until stopped.
type Scheduler struct {
	mu       sync.RWMutex
	tasks    []Task
	interval time.Duration
	logger   *slog.Logger
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewScheduler creates a cleanup scheduler.
func NewScheduler(interval time.Duration, logger *slog.Logger, tasks ...Task) *Scheduler {
	return &Scheduler{
		tasks:    tasks,
		interval: interval,
		logger:   logger,
	}
}

// Start begins the scheduler loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.RunOnce(ctx)
			}
		}
	}()
}

// Stop gracefully stops the scheduler.
func (s *Scheduler) Stop() {
	s.mu.RLock()
	cancel := s.cancel
	done := s.done
	s.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// RunOnce runs every task once. A failing task does not stop the others.
func (s *Scheduler) RunOnce(ctx context.Context) {
	for _, t := range s.tasks {
		n, err := t.Run(ctx)
		if err != nil {
			s.logger.Error("cleanup task failed", "task", t.Name, "error", err)
			continue
		}
		if n > 0 {
			s.logger.Info("cleanup", "task", t.Name, "removed", n)
		}
	}
}
