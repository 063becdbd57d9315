package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestRunner_RunsImmediatelyAndOnTick(t *testing.T) {
	var runs int64
	r := NewRunner(zerolog.Nop())
	r.Register(Job{
		Name:     "tick",
		Interval: 10 * time.Millisecond,
		Run: func(context.Context) error {
			atomic.AddInt64(&runs, 1)
			return nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	r.Start(ctx)
	time.Sleep(35 * time.Millisecond)
	cancel()
	r.Wait()

	if got := atomic.LoadInt64(&runs); got < 2 {
		t.Errorf("expected at least 2 runs, got %d", got)
	}
}

func TestRunner_ContinuesAfterError(t *testing.T) {
	var runs int64
	r := NewRunner(zerolog.Nop())
	r.Register(Job{
		Name:     "flaky",
		Interval: 5 * time.Millisecond,
		Run: func(context.Context) error {
			atomic.AddInt64(&runs, 1)
			return errors.New("boom")
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	r.Start(ctx)
	time.Sleep(20 * time.Millisecond)
	cancel()
	r.Wait()

	if got := atomic.LoadInt64(&runs); got < 2 {
		t.Errorf("expected schedule to continue after errors, got %d runs", got)
	}
}

func TestRunner_StopsOnCancel(t *testing.T) {
	r := NewRunner(zerolog.Nop())
	r.Register(Job{
		Name:     "noop",
		Interval: time.Millisecond,
		Run:      func(context.Context) error { return nil },
	})

	ctx, cancel := context.WithCancel(context.Background())
	r.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		r.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("runner did not stop after cancel")
	}
}
