package sessions

import (
	"context"
	"testing"

	"github.com/wrenlabs/gadgetrun/pkg/message"
)

func TestMemoryStoreCreateAssignsID(t *testing.T) {
	store := NewMemoryStore()
	rec := &Record{RunID: "run-1"}
	if err := store.Create(context.Background(), rec); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if rec.ID == "" {
		t.Fatal("expected ID to be assigned")
	}
	if rec.CreatedAt.IsZero() || rec.UpdatedAt.IsZero() {
		t.Fatal("expected timestamps to be set")
	}
}

func TestMemoryStoreAppendMessagesAndGet(t *testing.T) {
	store := NewMemoryStore()
	rec := &Record{RunID: "run-1"}
	ctx := context.Background()
	if err := store.Create(ctx, rec); err != nil {
		t.Fatalf("Create: %v", err)
	}

	msgs := []message.Message{message.NewText(message.RoleUser, "hello")}
	if err := store.AppendMessages(ctx, rec.ID, msgs); err != nil {
		t.Fatalf("AppendMessages: %v", err)
	}

	got, err := store.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got.Messages) != 1 || got.Messages[0].Flatten() != "hello" {
		t.Fatalf("Messages = %+v, want one message with text 'hello'", got.Messages)
	}
}

func TestMemoryStoreGetMissingReturnsErrNotFound(t *testing.T) {
	store := NewMemoryStore()
	if _, err := store.Get(context.Background(), "missing"); err != ErrNotFound {
		t.Fatalf("Get(missing) err = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreAppendMessagesMissingReturnsErrNotFound(t *testing.T) {
	store := NewMemoryStore()
	err := store.AppendMessages(context.Background(), "missing", []message.Message{message.NewText(message.RoleUser, "x")})
	if err != ErrNotFound {
		t.Fatalf("AppendMessages(missing) err = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreSetMetadataMerges(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	rec := &Record{RunID: "run-1", Metadata: map[string]string{"model": "claude"}}
	if err := store.Create(ctx, rec); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.SetMetadata(ctx, rec.ID, map[string]string{"provider": "anthropic"}); err != nil {
		t.Fatalf("SetMetadata: %v", err)
	}
	got, err := store.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Metadata["model"] != "claude" || got.Metadata["provider"] != "anthropic" {
		t.Fatalf("Metadata = %+v, want both keys preserved", got.Metadata)
	}
}

func TestMemoryStoreDeleteThenGetReturnsErrNotFound(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	rec := &Record{RunID: "run-1"}
	if err := store.Create(ctx, rec); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.Delete(ctx, rec.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get(ctx, rec.ID); err != ErrNotFound {
		t.Fatalf("Get after Delete err = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreListOrdersByUpdatedAtDescending(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	first := &Record{RunID: "run-1"}
	second := &Record{RunID: "run-2"}
	if err := store.Create(ctx, first); err != nil {
		t.Fatalf("Create first: %v", err)
	}
	if err := store.Create(ctx, second); err != nil {
		t.Fatalf("Create second: %v", err)
	}
	// Touch first so it becomes the most recently updated.
	if err := store.AppendMessages(ctx, first.ID, []message.Message{message.NewText(message.RoleUser, "x")}); err != nil {
		t.Fatalf("AppendMessages: %v", err)
	}

	out, err := store.List(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(out) != 2 || out[0].ID != first.ID {
		t.Fatalf("List order = %+v, want first record leading", out)
	}
}
