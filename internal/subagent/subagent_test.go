package subagent

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/wrenlabs/gadgetrun/internal/backoff"
	"github.com/wrenlabs/gadgetrun/internal/exec"
	"github.com/wrenlabs/gadgetrun/internal/exectree"
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
// call index, grounded on the same pattern as agent_test.go's fake.
type scriptedProvider struct {
	mu      sync.Mutex
	scripts [][]stream.Chunk
	calls   int
	specs   []provider.ModelSpec
}

func (p *scriptedProvider) Supports(string) bool                      { return true }
func (p *scriptedProvider) ModelSpecs() []provider.ModelSpec          { return p.specs }
func (p *scriptedProvider) CountTokens([]message.Message, string) int { return 0 }

func (p *scriptedProvider) Stream(ctx context.Context, opts provider.GenerationOptions) (<-chan stream.Chunk, error) {
	p.mu.Lock()
	idx := p.calls
	p.calls++
	p.mu.Unlock()

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

// TestSubagentSharesTreeAndRollsUpCost exercises spec.md §8 scenario 6: a
// subagent gadget performs two inner LLM calls costing $0.001 and $0.002,
// and the parent observes GetSubtreeCost(rootLLMNodeId) >= $0.003 once the
// gadget returns, because the nested Agent writes directly into the shared
// Tree under the gadget's own node rather than a tree of its own.
func TestSubagentSharesTreeAndRollsUpCost(t *testing.T) {
	fake := &scriptedProvider{
		scripts: [][]stream.Chunk{
			{{Text: "<<<GADGET_START>>>Echo:1\n{}\n<<<GADGET_END>>>Echo:1", FinishReason: "stop", Usage: &stream.Usage{OutputTokens: 1000}}},
			{{Text: "final answer", FinishReason: "stop", Usage: &stream.Usage{OutputTokens: 2000}}},
		},
		specs: []provider.ModelSpec{{ModelID: "test-model", Pricing: provider.Pricing{OutputPerMToken: 1.0}}},
	}

	registry := gadget.NewRegistry()
	if err := registry.Register(&gadget.Definition{Gadget: echoGadget{}}); err != nil {
		t.Fatal(err)
	}
	sub := New(fake, registry, "test-model")
	if err := registry.Register(&gadget.Definition{Gadget: sub}); err != nil {
		t.Fatal(err)
	}

	tree := exectree.New(nil)
	rootLLMID := tree.AddLLMCall("", 0, "test-model", nil)
	gadgetNodeID := tree.AddGadget(rootLLMID, "1", Name, nil)
	node, _ := tree.Get(gadgetNodeID)

	var mu sync.Mutex
	var forwarded []any
	sink := func(payload any) {
		mu.Lock()
		forwarded = append(forwarded, payload)
		mu.Unlock()
	}

	execCfg := exec.DefaultConfig()
	execCfg.RetryPolicy = backoff.Policy{MaxAttempts: 1}
	ex := exec.New(registry, execCfg)

	params, _ := json.Marshal(map[string]string{"task": "do the thing"})
	result := ex.Execute(context.Background(), exec.Call{
		InvocationID: "1",
		Name:         Name,
		Parameters:   params,
		NodeID:       gadgetNodeID,
		Tree:         tree,
		DepthBase:    node.Depth + 1,
		SubagentSink: sink,
	})
	if result.IsError {
		t.Fatalf("subagent gadget returned an error result: %+v", result)
	}
	if result.Content != "final answer" {
		t.Fatalf("content = %q, want %q", result.Content, "final answer")
	}

	tree.CompleteGadget(gadgetNodeID, result.Content, nil, result.ExecutionTimeMS, 0, nil)
	tree.CompleteLLMCall(rootLLMID, nil, nil, 0, "stop")

	if got := tree.GetSubtreeCost(rootLLMID); got < 0.003 {
		t.Fatalf("GetSubtreeCost(root) = %v, want >= 0.003", got)
	}

	mu.Lock()
	n := len(forwarded)
	mu.Unlock()
	if n == 0 {
		t.Fatal("expected at least one subagent_event forwarded through the sink")
	}
}

func TestSubagentRequiresExecutionTreeContext(t *testing.T) {
	fake := &scriptedProvider{}
	registry := gadget.NewRegistry()
	sub := New(fake, registry, "test-model")

	params, _ := json.Marshal(map[string]string{"task": "do the thing"})
	_, err := sub.Execute(context.Background(), params)
	if err == nil {
		t.Fatal("expected an error when no SubagentContext is attached to ctx")
	}
}

func TestSubagentRejectsPastMaxDepth(t *testing.T) {
	fake := &scriptedProvider{}
	registry := gadget.NewRegistry()
	sub := New(fake, registry, "test-model")
	sub.maxDepth = 1

	ctx := context.Background()
	tree := exectree.New(nil)
	gadgetNodeID := tree.AddGadget("", "1", Name, nil)

	execCfg := exec.DefaultConfig()
	execCfg.RetryPolicy = backoff.Policy{MaxAttempts: 1}
	ex := exec.New(registry, execCfg)
	if err := registry.Register(&gadget.Definition{Gadget: sub}); err != nil {
		t.Fatal(err)
	}

	params, _ := json.Marshal(map[string]string{"task": "nested"})
	result := ex.Execute(ctx, exec.Call{
		InvocationID: "1",
		Name:         Name,
		Parameters:   params,
		NodeID:       gadgetNodeID,
		Tree:         tree,
		DepthBase:    2,
	})
	if !result.IsError {
		t.Fatal("expected an error result past max subagent depth")
	}
}
