package cleanup

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunOnceContinuesAfterFailure(t *testing.T) {
	var ran atomic.Int32
	s := NewScheduler(time.Hour, slog.New(slog.NewTextHandler(io.Discard, nil)),
		Task{Name: "broken", Run: func(ctx context.Context) (int64, error) {
			return 0, errors.New("database is locked")
		}},
		Task{Name: "sessions", Run: func(ctx context.Context) (int64, error) {
			ran.Add(1)
			return 3, nil
		}},
	)

	s.RunOnce(context.Background())
	if ran.Load() != 1 {
		t.Errorf("second task ran %d times, want 1", ran.Load())
	}
}

func TestStartStop(t *testing.T) {
	var ran atomic.Int32
	s := NewScheduler(5*time.Millisecond, slog.New(slog.NewTextHandler(io.Discard, nil)),
		Task{Name: "count", Run: func(ctx context.Context) (int64, error) {
			ran.Add(1)
			return 0, nil
		}},
	)

	s.Start(context.Background())
	deadline := time.Now().Add(2 * time.Second)
	for ran.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	s.Stop()

	if ran.Load() < 2 {
		t.Fatalf("task ran %d times, want at least 2", ran.Load())
	}
	after := ran.Load()
	time.Sleep(20 * time.Millisecond)
	if ran.Load() != after {
		t.Error("task kept running after Stop")
	}
}

func TestStopWithoutStart(t *testing.T) {
	s := NewScheduler(time.Second, slog.Default())
	// Should not block or panic
	s.Stop()
}
