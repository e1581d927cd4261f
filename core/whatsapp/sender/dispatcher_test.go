package sender

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestDispatcherRunsJob(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, QueueSize: 4})

	var mu sync.Mutex
	ran := false
	done := make(chan struct{})
	err := d.Enqueue(context.Background(), "message.text", "254700000001", func() error {
		mu.Lock()
		ran = true
		mu.Unlock()
		close(done)
		return nil
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job never ran")
	}
	d.Close()

	mu.Lock()
	defer mu.Unlock()
	if !ran {
		t.Fatal("job did not run")
	}
	if got := d.ErrorCount(); got != 0 {
		t.Fatalf("error count = %d", got)
	}
}

func TestDispatcherCountsPermanentFailures(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, QueueSize: 4, MaxRetries: 2, RetryBackoff: time.Millisecond})

	err := d.Enqueue(context.Background(), "message.text", "254700000001", func() error {
		return errors.New("boom")
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	d.Close()

	if got := d.ErrorCount(); got != 1 {
		t.Fatalf("error count = %d, want 1", got)
	}
}

func TestDispatcherRejectsAfterClose(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1})
	d.Close()

	err := d.Enqueue(context.Background(), "message.text", "254700000001", func() error { return nil })
	if !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("err = %v, want ErrQueueClosed", err)
	}
}

func TestDispatcherPreservesPerKeyOrder(t *testing.T) {
	d := NewDispatcher(Options{Workers: 4, QueueSize: 8})

	var (
		mu    sync.Mutex
		order []string
	)
	record := func(name string, delay time.Duration) func() error {
		return func() error {
			time.Sleep(delay)
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}
	}

	// The first job is slow; with independent workers the second would
	// finish ahead of it.
	if err := d.Enqueue(context.Background(), "message.text", "254700000001", record("first", 50*time.Millisecond)); err != nil {
		t.Fatalf("Enqueue first: %v", err)
	}
	if err := d.Enqueue(context.Background(), "message.text", "254700000001", record("second", 0)); err != nil {
		t.Fatalf("Enqueue second: %v", err)
	}
	d.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("completion order = %v, want [first second]", order)
	}
}

func TestDispatcherCloseDuringEnqueueDoesNotPanic(t *testing.T) {
	d := NewDispatcher(Options{Workers: 2, QueueSize: 1})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			err := d.Enqueue(context.Background(), "message.text", "254700000001", func() error { return nil })
			if errors.Is(err, ErrQueueClosed) {
				return
			}
		}
	}()

	time.Sleep(5 * time.Millisecond)
	d.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("enqueue loop never observed the closed dispatcher")
	}
}

func TestClassifyErrorAPIStatus(t *testing.T) {
	if got := classifyError(&APIError{StatusCode: 503}); got != "http_5xx" {
		t.Fatalf("classify 503 = %q", got)
	}
	if got := classifyError(&APIError{StatusCode: 401}); got != "http_4xx" {
		t.Fatalf("classify 401 = %q", got)
	}
	if got := classifyError(context.DeadlineExceeded); got != "timeout" {
		t.Fatalf("classify deadline = %q", got)
	}
	if got := classifyError(errors.New("boom")); got != "unknown" {
		t.Fatalf("classify misc = %q", got)
	}
}

func TestSanitizeErrorMessageRedactsTokens(t *testing.T) {
	err := errors.New(`401 Unauthorized: Bearer EAAGm0PX4ZCpsBO7abc123 rejected`)
	got := sanitizeErrorMessage(err)
	if got != "401 Unauthorized: <redacted> rejected" {
		t.Fatalf("sanitized = %q", got)
	}
}
