package agent

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/wrenlabs/gadgetrun/internal/hooks"
	"github.com/wrenlabs/gadgetrun/internal/provider"
	"github.com/wrenlabs/gadgetrun/internal/stream"
	"github.com/wrenlabs/gadgetrun/pkg/gadget"
	"github.com/wrenlabs/gadgetrun/pkg/message"
)

type echoGadget struct{}

func (echoGadget) Name() string            { return "Echo" }
func (echoGadget) Description() string     { return "echoes its input" }
func (echoGadget) Schema() json.RawMessage { return json.RawMessage(`{"type":"object"}`) }
func (echoGadget) Examples() []string      { return nil }
func (echoGadget) Execute(ctx context.Context, params json.RawMessage) (gadget.Result, error) {
	return gadget.Result{Content: "echoed"}, nil
}

// scriptedProvider is a fake Provider driven by a script of raw chunks per
// call index (cycling once exhausted), with optional forced errors by call
// index, grounded on the teacher's scripted fake-provider test pattern.
type scriptedProvider struct {
	mu      sync.Mutex
	scripts [][]stream.Chunk
	errs    map[int]error
	calls   int
	specs   []provider.ModelSpec
}

func (p *scriptedProvider) Supports(descriptor string) bool        { return true }
func (p *scriptedProvider) ModelSpecs() []provider.ModelSpec       { return p.specs }
func (p *scriptedProvider) CountTokens(_ []message.Message, _ string) int { return 0 }

func (p *scriptedProvider) Stream(ctx context.Context, opts provider.GenerationOptions) (<-chan stream.Chunk, error) {
	p.mu.Lock()
	idx := p.calls
	p.calls++
	p.mu.Unlock()

	if p.errs != nil {
		if err, ok := p.errs[idx]; ok {
			return nil, err
		}
	}
	var script []stream.Chunk
	if len(p.scripts) > 0 {
		script = p.scripts[idx%len(p.scripts)]
	}
	ch := make(chan stream.Chunk, len(script))
	for _, c := range script {
		ch <- c
	}
	close(ch)
	return ch, nil
}

func (p *scriptedProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func newTestAgent(t *testing.T, fake *scriptedProvider, opts ...Option) *Agent {
	t.Helper()
	reg := gadget.NewRegistry()
	if err := reg.Register(&gadget.Definition{Gadget: echoGadget{}}); err != nil {
		t.Fatal(err)
	}
	base := []Option{WithProvider(fake), WithRegistry(reg), WithModel("test-model"), WithMaxIterations(5)}
	ag, err := New(append(base, opts...)...)
	if err != nil {
		t.Fatal(err)
	}
	return ag
}

func drain(ag *Agent) []stream.Event {
	var events []stream.Event
	for ev := range ag.Run(context.Background()) {
		events = append(events, ev)
	}
	return events
}

func TestRunTextOnlyTerminate(t *testing.T) {
	fake := &scriptedProvider{
		scripts: [][]stream.Chunk{
			{{Text: "hello there", FinishReason: "stop", Usage: &stream.Usage{InputTokens: 10, OutputTokens: 5}}},
		},
		specs: []provider.ModelSpec{{ModelID: "test-model", Pricing: provider.Pricing{InputPerMToken: 1, OutputPerMToken: 2}}},
	}
	ag := newTestAgent(t, fake)
	ag.Conversation().AddUserText("hi")

	events := drain(ag)

	if ag.TerminationReason() != TerminationTextOnlyTerminate {
		t.Fatalf("termination = %s, want %s", ag.TerminationReason(), TerminationTextOnlyTerminate)
	}
	if err := ag.Err(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var sawComplete bool
	for _, ev := range events {
		if ev.Type == stream.EventStreamComplete {
			sawComplete = true
		}
	}
	if !sawComplete {
		t.Fatal("expected a stream_complete event")
	}
	if got := ag.Conversation().Len(); got != 2 {
		t.Fatalf("conversation len = %d, want 2", got)
	}
	if fake.callCount() != 1 {
		t.Fatalf("provider called %d times, want 1", fake.callCount())
	}
}

func TestRunExecutesGadgetThenTerminates(t *testing.T) {
	fake := &scriptedProvider{
		scripts: [][]stream.Chunk{
			{{Text: "<<<GADGET_START>>>Echo:1\n{}\n<<<GADGET_END>>>Echo:1", FinishReason: "stop"}},
			{{Text: "all done", FinishReason: "stop"}},
		},
	}
	ag := newTestAgent(t, fake)
	ag.Conversation().AddUserText("do the thing")

	events := drain(ag)

	if ag.TerminationReason() != TerminationTextOnlyTerminate {
		t.Fatalf("termination = %s, want %s", ag.TerminationReason(), TerminationTextOnlyTerminate)
	}
	if fake.callCount() != 2 {
		t.Fatalf("provider called %d times, want 2", fake.callCount())
	}
	var sawGadgetResult bool
	for _, ev := range events {
		if ev.Type == stream.EventGadgetResult && ev.Result != nil && ev.Result.Content == "echoed" {
			sawGadgetResult = true
		}
	}
	if !sawGadgetResult {
		t.Fatal("expected a gadget_result event carrying the echoed content")
	}
}

func TestRunAbortStopsLoopBeforeFirstCall(t *testing.T) {
	fake := &scriptedProvider{}
	ag := newTestAgent(t, fake)
	ag.Abort()

	drain(ag)

	if ag.TerminationReason() != TerminationAbort {
		t.Fatalf("termination = %s, want %s", ag.TerminationReason(), TerminationAbort)
	}
	if fake.callCount() != 0 {
		t.Fatalf("provider called %d times, want 0", fake.callCount())
	}
}

func TestRunMaxIterationsReached(t *testing.T) {
	fake := &scriptedProvider{
		scripts: [][]stream.Chunk{
			{{Text: "<<<GADGET_START>>>Echo:1\n{}\n<<<GADGET_END>>>Echo:1", FinishReason: "stop"}},
		},
	}
	ag := newTestAgent(t, fake, WithMaxIterations(3))

	drain(ag)

	if ag.TerminationReason() != TerminationMaxIterations {
		t.Fatalf("termination = %s, want %s", ag.TerminationReason(), TerminationMaxIterations)
	}
	if fake.callCount() != 3 {
		t.Fatalf("provider called %d times, want 3", fake.callCount())
	}
}

func TestRunControllerSkipBeforeLLMCall(t *testing.T) {
	fake := &scriptedProvider{}
	ag := newTestAgent(t, fake)
	ag.Hooks().RegisterController(hooks.SlotBeforeLLMCall, func(ctx context.Context, e hooks.Event) (hooks.Action, error) {
		return hooks.Action{Kind: hooks.ActionSkip, Payload: "skipped by policy"}, nil
	})
	ag.Conversation().AddUserText("hi")

	drain(ag)

	if ag.TerminationReason() != TerminationControllerSkip {
		t.Fatalf("termination = %s, want %s", ag.TerminationReason(), TerminationControllerSkip)
	}
	if fake.callCount() != 0 {
		t.Fatalf("provider called %d times, want 0", fake.callCount())
	}
	if got := ag.Conversation().Len(); got != 2 {
		t.Fatalf("conversation len = %d, want 2", got)
	}
}

func TestRunRecoversFromLLMError(t *testing.T) {
	fake := &scriptedProvider{
		errs:    map[int]error{0: errors.New("boom")},
		scripts: [][]stream.Chunk{{{Text: "done", FinishReason: "stop"}}},
	}
	ag := newTestAgent(t, fake)
	ag.Hooks().RegisterController(hooks.SlotAfterLLMError, func(ctx context.Context, e hooks.Event) (hooks.Action, error) {
		return hooks.Action{Kind: hooks.ActionRecover, Payload: "recovered, retrying"}, nil
	})
	ag.Conversation().AddUserText("hi")

	drain(ag)

	if err := ag.Err(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ag.TerminationReason() != TerminationTextOnlyTerminate {
		t.Fatalf("termination = %s, want %s", ag.TerminationReason(), TerminationTextOnlyTerminate)
	}
	if fake.callCount() != 2 {
		t.Fatalf("provider called %d times, want 2", fake.callCount())
	}
}

func TestRunRethrowsUnrecoveredLLMError(t *testing.T) {
	wantErr := errors.New("fatal provider error")
	fake := &scriptedProvider{errs: map[int]error{0: wantErr}}
	ag := newTestAgent(t, fake)
	ag.Conversation().AddUserText("hi")

	drain(ag)

	if ag.TerminationReason() != TerminationError {
		t.Fatalf("termination = %s, want %s", ag.TerminationReason(), TerminationError)
	}
	if !errors.Is(ag.Err(), wantErr) {
		t.Fatalf("err = %v, want %v", ag.Err(), wantErr)
	}
}
