package sessions

import (
	"context"
	"testing"
	"time"
)

func TestLockerLockUnlockRoundTrip(t *testing.T) {
	locker := NewLocker(100 * time.Millisecond)
	ctx := context.Background()
	if err := locker.Lock(ctx, "rec-1"); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	locker.Unlock("rec-1")

	if err := locker.Lock(ctx, "rec-1"); err != nil {
		t.Fatalf("second Lock: %v", err)
	}
	locker.Unlock("rec-1")
}

func TestLockerTimesOutWhenHeld(t *testing.T) {
	locker := NewLocker(30 * time.Millisecond)
	ctx := context.Background()
	if err := locker.Lock(ctx, "rec-1"); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	defer locker.Unlock("rec-1")

	err := locker.Lock(ctx, "rec-1")
	if err != ErrLockTimeout {
		t.Fatalf("second Lock err = %v, want ErrLockTimeout", err)
	}
}

func TestLockerIndependentIDsDoNotBlock(t *testing.T) {
	locker := NewLocker(50 * time.Millisecond)
	ctx := context.Background()
	if err := locker.Lock(ctx, "rec-1"); err != nil {
		t.Fatalf("Lock rec-1: %v", err)
	}
	defer locker.Unlock("rec-1")

	if err := locker.Lock(ctx, "rec-2"); err != nil {
		t.Fatalf("Lock rec-2 should not block on rec-1: %v", err)
	}
	locker.Unlock("rec-2")
}

func TestLockerRespectsContextCancellation(t *testing.T) {
	locker := NewLocker(time.Second)
	base := context.Background()
	if err := locker.Lock(base, "rec-1"); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	defer locker.Unlock("rec-1")

	ctx, cancel := context.WithTimeout(base, 20*time.Millisecond)
	defer cancel()
	if err := locker.Lock(ctx, "rec-1"); err != context.DeadlineExceeded {
		t.Fatalf("Lock err = %v, want context.DeadlineExceeded", err)
	}
}
