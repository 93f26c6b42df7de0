package media

import (
	"context"
	"testing"
)

func TestMemoryPutGetRoundTrip(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	ref, err := m.Put(ctx, "abc", []byte("hello"), "text/plain")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if ref == "" {
		t.Fatal("expected non-empty reference")
	}

	data, mimeType, err := m.Get(ctx, "abc")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(data) != "hello" || mimeType != "text/plain" {
		t.Fatalf("Get = (%q, %q), want (hello, text/plain)", data, mimeType)
	}
}

func TestMemoryGetMissingReturnsError(t *testing.T) {
	m := NewMemory()
	if _, _, err := m.Get(context.Background(), "missing"); err == nil {
		t.Fatal("expected error for missing id")
	}
}

func TestMemoryDeleteThenExists(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	if _, err := m.Put(ctx, "x", []byte("data"), "text/plain"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if ok, _ := m.Exists(ctx, "x"); !ok {
		t.Fatal("expected id to exist after Put")
	}
	if err := m.Delete(ctx, "x"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if ok, _ := m.Exists(ctx, "x"); ok {
		t.Fatal("expected id to be gone after Delete")
	}
}

func TestMemoryPutCopiesData(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	buf := []byte("original")
	if _, err := m.Put(ctx, "y", buf, "text/plain"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	buf[0] = 'X'
	data, _, err := m.Get(ctx, "y")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(data) != "original" {
		t.Fatalf("stored data mutated via caller's slice: got %q", data)
	}
}
