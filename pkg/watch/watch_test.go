package watch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type countingReloader struct {
	calls atomic.Int32
	err   error
}

func (c *countingReloader) Reload(ctx context.Context) error {
	c.calls.Add(1)
	return c.err
}

func TestInvalidSchedule(t *testing.T) {
	if _, err := New(&countingReloader{}, "whenever", nil, nil); err == nil {
		t.Error("Expected error for invalid schedule")
	}
}

func TestRunTicks(t *testing.T) {
	r := &countingReloader{err: errors.New("service down")}
	var renders atomic.Int32
	w, err := New(r, "@every 1s", func() { renders.Add(1) }, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2500*time.Millisecond)
	defer cancel()
	if err := w.Run(ctx); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if got := r.calls.Load(); got < 2 {
		t.Errorf("Expected at least 2 reloads, got %d", got)
	}
	if renders.Load() != r.calls.Load() {
		t.Errorf("Expected a render per reload, got %d renders for %d reloads", renders.Load(), r.calls.Load())
	}
}

type blockingReloader struct {
	cancelled atomic.Bool
}

func (b *blockingReloader) Reload(ctx context.Context) error {
	<-ctx.Done()
	b.cancelled.Store(true)
	return ctx.Err()
}

func TestRunCancelsReloadInFlight(t *testing.T) {
	r := &blockingReloader{}
	w, err := New(r, "@every 1h", nil, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	if !r.cancelled.Load() {
		t.Error("Expected the reload to see the cancelled context")
	}
}
