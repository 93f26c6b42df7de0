package sessions

import (
	"testing"
	"time"
)

func TestIdleExpiryReportsExpiredAfterTimeout(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	expiry := NewIdleExpiry(10 * time.Minute)
	expiry.nowFunc = func() time.Time { return base }

	rec := &Record{UpdatedAt: base.Add(-15 * time.Minute)}
	if !expiry.IsExpired(rec) {
		t.Fatal("expected record idle for 15m against a 10m timeout to be expired")
	}

	fresh := &Record{UpdatedAt: base.Add(-5 * time.Minute)}
	if expiry.IsExpired(fresh) {
		t.Fatal("expected record idle for 5m against a 10m timeout to not be expired")
	}
}

func TestIdleExpiryNonPositiveTimeoutNeverExpires(t *testing.T) {
	expiry := NewIdleExpiry(0)
	rec := &Record{UpdatedAt: time.Now().Add(-24 * time.Hour)}
	if expiry.IsExpired(rec) {
		t.Fatal("expected zero timeout to disable expiry")
	}
}

func TestIdleExpiryFallsBackToCreatedAt(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	expiry := NewIdleExpiry(time.Minute)
	expiry.nowFunc = func() time.Time { return base }

	rec := &Record{CreatedAt: base.Add(-2 * time.Minute)}
	if !expiry.IsExpired(rec) {
		t.Fatal("expected fallback to CreatedAt when UpdatedAt is zero")
	}
}
