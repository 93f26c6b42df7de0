package exec

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/wrenlabs/gadgetrun/internal/backoff"
	"github.com/wrenlabs/gadgetrun/pkg/gadget"
)

type fnGadget struct {
	name string
	fn   func(ctx context.Context, params json.RawMessage) (gadget.Result, error)
}

func (f *fnGadget) Name() string                  { return f.name }
func (f *fnGadget) Description() string           { return "test gadget" }
func (f *fnGadget) Schema() json.RawMessage        { return json.RawMessage(`{}`) }
func (f *fnGadget) Examples() []string             { return nil }
func (f *fnGadget) Execute(ctx context.Context, params json.RawMessage) (gadget.Result, error) {
	return f.fn(ctx, params)
}

func newTestExecutor(t *testing.T, g gadget.Gadget, def *gadget.Definition) (*Executor, *gadget.Registry) {
	t.Helper()
	reg := gadget.NewRegistry()
	if def == nil {
		def = &gadget.Definition{Gadget: g}
	} else {
		def.Gadget = g
	}
	if err := reg.Register(def); err != nil {
		t.Fatal(err)
	}
	cfg := DefaultConfig()
	cfg.RetryPolicy = backoff.Policy{MaxAttempts: 1}
	cfg.DefaultTimeout = time.Second
	return New(reg, cfg), reg
}

func TestExecuteSuccess(t *testing.T) {
	g := &fnGadget{name: "Echo", fn: func(ctx context.Context, params json.RawMessage) (gadget.Result, error) {
		return gadget.Result{Content: "E:hi"}, nil
	}}
	ex, _ := newTestExecutor(t, g, nil)
	res := ex.Execute(context.Background(), Call{InvocationID: "1", Name: "Echo", Parameters: []byte(`{}`)})
	if res.IsError {
		t.Fatalf("unexpected error result: %+v", res)
	}
	if res.Content != "E:hi" {
		t.Fatalf("content = %q", res.Content)
	}
}

func TestExecuteUnknownGadget(t *testing.T) {
	ex, _ := newTestExecutor(t, &fnGadget{name: "Noop", fn: func(ctx context.Context, p json.RawMessage) (gadget.Result, error) {
		return gadget.Result{}, nil
	}}, nil)
	res := ex.Execute(context.Background(), Call{InvocationID: "1", Name: "DoesNotExist"})
	if !res.IsError {
		t.Fatal("expected error result for unknown gadget")
	}
}

func TestExecuteHumanInputRequired(t *testing.T) {
	g := &fnGadget{name: "Ask", fn: func(ctx context.Context, params json.RawMessage) (gadget.Result, error) {
		return gadget.Result{}, &gadget.HumanInputRequired{Question: "which file?"}
	}}
	ex, _ := newTestExecutor(t, g, nil)
	res := ex.Execute(context.Background(), Call{InvocationID: "1", Name: "Ask", Parameters: []byte(`{}`)})
	if res.IsError {
		t.Fatalf("human-input-required should not surface as an error result: %+v", res)
	}
	if res.HumanInputAsked != "which file?" {
		t.Fatalf("HumanInputAsked = %q", res.HumanInputAsked)
	}
}

func TestExecuteHumanInputResolvedByHostCallback(t *testing.T) {
	g := &fnGadget{name: "Ask", fn: func(ctx context.Context, params json.RawMessage) (gadget.Result, error) {
		return gadget.Result{}, &gadget.HumanInputRequired{Question: "which file?"}
	}}
	reg := gadget.NewRegistry()
	_ = reg.Register(&gadget.Definition{Gadget: g})
	cfg := DefaultConfig()
	cfg.RetryPolicy = backoff.Policy{MaxAttempts: 1}
	cfg.RequestHumanInput = func(ctx context.Context, question string) (string, error) {
		return "main.go", nil
	}
	ex := New(reg, cfg)

	res := ex.Execute(context.Background(), Call{InvocationID: "1", Name: "Ask", Parameters: []byte(`{}`)})
	if res.HumanInputAsked != "" {
		t.Fatalf("expected HumanInputAsked cleared once resolved, got %q", res.HumanInputAsked)
	}
	if res.Content != "main.go" {
		t.Fatalf("Content = %q, want host's answer", res.Content)
	}
}

func TestExecuteTaskCompletionSignalBreaksLoop(t *testing.T) {
	g := &fnGadget{name: "Done", fn: func(ctx context.Context, params json.RawMessage) (gadget.Result, error) {
		return gadget.Result{}, &gadget.TaskCompletionSignal{Message: "all done"}
	}}
	ex, _ := newTestExecutor(t, g, nil)
	res := ex.Execute(context.Background(), Call{InvocationID: "1", Name: "Done", Parameters: []byte(`{}`)})
	if !res.BreaksLoop {
		t.Fatal("expected BreaksLoop=true for task completion signal")
	}
}

func TestExecuteTimeout(t *testing.T) {
	g := &fnGadget{name: "Slow", fn: func(ctx context.Context, params json.RawMessage) (gadget.Result, error) {
		select {
		case <-ctx.Done():
			return gadget.Result{}, ctx.Err()
		case <-time.After(time.Second):
			return gadget.Result{Content: "too slow"}, nil
		}
	}}
	reg := gadget.NewRegistry()
	_ = reg.Register(&gadget.Definition{Gadget: g, Timeout: 10})
	cfg := DefaultConfig()
	cfg.RetryPolicy = backoff.Policy{MaxAttempts: 1}
	ex := New(reg, cfg)

	res := ex.Execute(context.Background(), Call{InvocationID: "1", Name: "Slow", Parameters: []byte(`{}`)})
	if !res.IsError {
		t.Fatal("expected timeout to surface as an error result")
	}
}

func TestExecuteAllPreservesOrder(t *testing.T) {
	mk := func(name, content string) gadget.Gadget {
		return &fnGadget{name: name, fn: func(ctx context.Context, p json.RawMessage) (gadget.Result, error) {
			return gadget.Result{Content: content}, nil
		}}
	}
	reg := gadget.NewRegistry()
	_ = reg.Register(&gadget.Definition{Gadget: mk("A", "a")})
	_ = reg.Register(&gadget.Definition{Gadget: mk("B", "b")})
	_ = reg.Register(&gadget.Definition{Gadget: mk("C", "c")})
	cfg := DefaultConfig()
	cfg.RetryPolicy = backoff.Policy{MaxAttempts: 1}
	ex := New(reg, cfg)

	calls := []Call{
		{InvocationID: "1", Name: "A", Parameters: []byte(`{}`)},
		{InvocationID: "2", Name: "B", Parameters: []byte(`{}`)},
		{InvocationID: "3", Name: "C", Parameters: []byte(`{}`)},
	}
	results := ex.ExecuteAll(context.Background(), calls)
	want := []string{"a", "b", "c"}
	for i, w := range want {
		if results[i].Content != w {
			t.Fatalf("results[%d].Content = %q, want %q", i, results[i].Content, w)
		}
	}
}

type fakeSpillover struct{ stored map[string]string }

func (f *fakeSpillover) Put(ctx context.Context, content string) (string, error) {
	id := fmt.Sprintf("spill-%d", len(f.stored)+1)
	f.stored[id] = content
	return id, nil
}

func (f *fakeSpillover) Get(ctx context.Context, id string) (string, error) {
	content, ok := f.stored[id]
	if !ok {
		return "", ErrGadgetNotFound
	}
	return content, nil
}

func TestSpilloverOnOversizedResult(t *testing.T) {
	big := make([]byte, 200<<10)
	for i := range big {
		big[i] = 'x'
	}
	g := &fnGadget{name: "Big", fn: func(ctx context.Context, p json.RawMessage) (gadget.Result, error) {
		return gadget.Result{Content: string(big)}, nil
	}}
	reg := gadget.NewRegistry()
	_ = reg.Register(&gadget.Definition{Gadget: g})
	store := &fakeSpillover{stored: map[string]string{}}
	cfg := DefaultConfig()
	cfg.RetryPolicy = backoff.Policy{MaxAttempts: 1}
	cfg.SpilloverBudget = 50 << 10
	cfg.SpilloverStore = store
	ex := New(reg, cfg)

	res := ex.Execute(context.Background(), Call{InvocationID: "1", Name: "Big", Parameters: []byte(`{}`)})
	if len(res.Content) >= len(big) {
		t.Fatalf("expected spillover stub, got content of length %d", len(res.Content))
	}
	if len(store.stored) != 1 {
		t.Fatalf("expected 1 spillover entry, got %d", len(store.stored))
	}

	var id string
	for k := range store.stored {
		id = k
	}

	view := ex.Execute(context.Background(), Call{
		InvocationID: "2",
		Name:         outputViewerName,
		Parameters:   []byte(fmt.Sprintf(`{"id":%q}`, id)),
	})
	if view.IsError {
		t.Fatalf("GadgetOutputViewer returned an error result: %+v", view)
	}
	if view.Content != string(big) {
		t.Fatalf("GadgetOutputViewer content length = %d, want %d", len(view.Content), len(big))
	}
}

func TestSpilloverNotRegisteredWithoutStore(t *testing.T) {
	reg := gadget.NewRegistry()
	cfg := DefaultConfig()
	cfg.RetryPolicy = backoff.Policy{MaxAttempts: 1}
	New(reg, cfg)

	if _, ok := reg.Get(outputViewerName); ok {
		t.Fatal("GadgetOutputViewer should not be registered when SpilloverStore is nil")
	}
}
