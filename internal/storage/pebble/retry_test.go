package pebblestore

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestOpenRetryGivesUpOnHeldLock(t *testing.T) {
	dir := t.TempDir()
	holder, err := Open(Options{DataDir: dir})
	if err != nil {
		t.Fatalf("open holder: %v", err)
	}
	defer holder.Close()

	_, err = OpenRetry(context.Background(), Options{DataDir: dir}, RetryOptions{
		Attempts: 2,
		Delay:    5 * time.Millisecond,
	})
	if !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
}

func TestOpenRetrySucceedsAfterRelease(t *testing.T) {
	dir := t.TempDir()
	holder, err := Open(Options{DataDir: dir})
	if err != nil {
		t.Fatalf("open holder: %v", err)
	}

	released := make(chan struct{})
	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = holder.Close()
		close(released)
	}()

	db, err := OpenRetry(context.Background(), Options{DataDir: dir}, RetryOptions{
		Attempts: 50,
		Delay:    10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("open retry: %v", err)
	}
	<-released
	_ = db.Close()
}

func TestOpenRetryRespectsContext(t *testing.T) {
	dir := t.TempDir()
	holder, err := Open(Options{DataDir: dir})
	if err != nil {
		t.Fatalf("open holder: %v", err)
	}
	defer holder.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Millisecond)
	defer cancel()
	_, err = OpenRetry(ctx, Options{DataDir: dir}, RetryOptions{
		Attempts: 1000,
		Delay:    50 * time.Millisecond,
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestIsNotFound(t *testing.T) {
	db, _ := newTestDB(t)
	_, err := db.Get([]byte("missing"))
	if !IsNotFound(err) {
		t.Fatalf("expected not-found classification, got %v", err)
	}
}
