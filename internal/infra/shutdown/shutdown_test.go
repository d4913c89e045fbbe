package shutdown

import (
	"context"
	"errors"
	"slices"
	"sync"
	"syscall"
	"testing"
	"time"
)

func TestHandler_HooksRunInReverse(t *testing.T) {
	h := NewHandler(5 * time.Second)

	var (
		mu    sync.Mutex
		order []int
	)
	for i := 1; i <= 3; i++ {
		h.OnShutdown(func(ctx context.Context) error {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil
		})
	}

	h.Trigger()
	if err := h.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if !slices.Equal(order, []int{3, 2, 1}) {
		t.Errorf("hook order = %v, want [3 2 1]", order)
	}

	select {
	case <-h.Done():
	default:
		t.Error("Done() should be closed after Wait returns")
	}
}

func TestHandler_JoinsErrors(t *testing.T) {
	h := NewHandler(time.Second)
	errA := errors.New("a")
	errB := errors.New("b")
	h.OnShutdown(func(context.Context) error { return errA })
	h.OnShutdown(func(context.Context) error { return nil })
	h.OnShutdown(func(context.Context) error { return errB })

	h.Trigger()
	err := h.Wait(context.Background())
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Errorf("Wait() error = %v, want both hook errors", err)
	}
}

func TestHandler_ContextCancel(t *testing.T) {
	h := NewHandler(time.Second)
	called := false
	h.OnShutdown(func(context.Context) error {
		called = true
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := h.Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if !called {
		t.Error("hook should run when the parent context is cancelled")
	}
}

func TestHandler_HookDeadline(t *testing.T) {
	h := NewHandler(50 * time.Millisecond)
	h.OnShutdown(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	h.Trigger()
	if err := h.Wait(context.Background()); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait() error = %v, want DeadlineExceeded", err)
	}
}

func TestHandler_Signal(t *testing.T) {
	h := NewHandler(time.Second)

	errCh := make(chan error, 1)
	go func() { errCh <- h.Wait(context.Background()) }()

	// Let Wait register for signals before sending one.
	time.Sleep(50 * time.Millisecond)
	if err := syscall.Kill(syscall.Getpid(), syscall.SIGTERM); err != nil {
		t.Fatalf("Kill() error = %v", err)
	}

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Wait() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Wait() did not return after SIGTERM")
	}
}

func TestHandler_TriggerTwice(t *testing.T) {
	h := NewHandler(time.Second)
	h.Trigger()
	h.Trigger()
	if err := h.Wait(context.Background()); err != nil {
		t.Errorf("Wait() error = %v", err)
	}
}
