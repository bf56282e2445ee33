package supervisor

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestGoCleanExit(t *testing.T) {
	t.Parallel()
	s := New(context.Background())
	s.Go("ok", func(context.Context) error { return nil })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

func TestCancelOnError(t *testing.T) {
	t.Parallel()
	s := New(context.Background(), WithCancelOnError(true))
	boom := errors.New("boom")
	s.Go("failing", func(context.Context) error { return boom })

	select {
	case <-s.Context().Done():
	case <-time.After(time.Second):
		t.Fatal("context not cancelled after goroutine error")
	}
	if err := s.Err(); !errors.Is(err, boom) {
		t.Errorf("Err = %v, want %v", err, boom)
	}
}

func TestPanicRecovered(t *testing.T) {
	t.Parallel()
	s := New(context.Background(), WithCancelOnError(true))
	s.Go("panicking", func(context.Context) error { panic("kaboom") })

	select {
	case <-s.Context().Done():
	case <-time.After(time.Second):
		t.Fatal("context not cancelled after panic")
	}
	if err := s.Err(); err == nil {
		t.Error("panic should surface as Err")
	}
}

func TestContextCanceledIsClean(t *testing.T) {
	t.Parallel()
	s := New(context.Background(), WithCancelOnError(true))
	s.Go("loop", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	s.Cancel()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Wait(ctx); err != nil {
		t.Fatalf("Wait after clean cancel: %v", err)
	}
}
