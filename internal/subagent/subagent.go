// Package subagent implements the spec.md §4.F subagent gadget: a gadget
// that runs its own nested Agent against the shared execution tree, so its
// inner LLM calls and gadget executions roll up into the parent's cost and
// token aggregates.
//
// Grounded on the teacher's internal/tools/subagent.Manager/Spawn, adapted
// from the teacher's background-goroutine SubAgent bookkeeping to a
// synchronous gadget call: the spec's GetSubtreeCost scenario (§8 scenario
// 6) observes the subtree total immediately after the gadget returns, which
// requires the nested run to complete before Execute does.
package subagent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/wrenlabs/gadgetrun/agent"
	"github.com/wrenlabs/gadgetrun/internal/exec"
	"github.com/wrenlabs/gadgetrun/internal/provider"
	"github.com/wrenlabs/gadgetrun/internal/stream"
	"github.com/wrenlabs/gadgetrun/pkg/gadget"
)

const Name = "Subagent"

const schema = `{
  "type": "object",
  "properties": {
    "task": {"type": "string", "description": "the task to hand to the nested agent"},
    "model": {"type": "string", "description": "optional provider:model override; defaults to the parent's model"}
  },
  "required": ["task"]
}`

// Gadget spawns a nested Agent per call, sharing its caller's Provider and
// gadget Registry. MaxDepth bounds recursive subagent-spawning-subagent
// chains; spec.md §9 leaves the exact limit to implementers.
type Gadget struct {
	provider provider.Adapter
	registry *gadget.Registry
	model    string

	maxIterations int
	maxDepth      int
}

// New builds the implicit subagent gadget. defaultModel is used when a call
// doesn't supply its own "model" argument.
func New(p provider.Adapter, registry *gadget.Registry, defaultModel string) *Gadget {
	return &Gadget{
		provider:      p,
		registry:      registry,
		model:         defaultModel,
		maxIterations: 25,
		maxDepth:      3,
	}
}

func (g *Gadget) Name() string            { return Name }
func (g *Gadget) Description() string     { return "Delegates a self-contained task to a nested agent and returns its final answer." }
func (g *Gadget) Schema() json.RawMessage { return json.RawMessage(schema) }
func (g *Gadget) Examples() []string {
	return []string{`{"task": "Summarize the last 3 files changed in this repository."}`}
}

func (g *Gadget) Execute(ctx context.Context, params json.RawMessage) (gadget.Result, error) {
	var args struct {
		Task  string `json:"task"`
		Model string `json:"model"`
	}
	if err := json.Unmarshal(params, &args); err != nil {
		return gadget.Result{}, fmt.Errorf("subagent: invalid parameters: %w", err)
	}
	if args.Task == "" {
		return gadget.Result{}, fmt.Errorf("subagent: task is required")
	}

	sc, ok := exec.SubagentContextFromContext(ctx)
	if !ok {
		return gadget.Result{}, fmt.Errorf("subagent: no execution tree attached to this call")
	}
	if sc.DepthBase > g.maxDepth {
		return gadget.Result{}, fmt.Errorf("subagent: max nesting depth %d exceeded", g.maxDepth)
	}

	model := args.Model
	if model == "" {
		model = g.model
	}

	inner, err := agent.New(
		agent.WithProvider(g.provider),
		agent.WithRegistry(g.registry),
		agent.WithTree(sc.Tree),
		agent.WithInitialParentNodeID(sc.ParentNodeID),
		agent.WithModel(model),
		agent.WithMaxIterations(g.maxIterations),
	)
	if err != nil {
		return gadget.Result{}, fmt.Errorf("subagent: %w", err)
	}
	inner.Conversation().AddUserText(args.Task)

	var final strings.Builder
	for ev := range inner.Run(ctx) {
		if sc.Sink != nil {
			sc.Sink(ev)
		}
		if ev.Type == stream.EventText {
			final.WriteString(ev.Text)
		}
	}

	if err := inner.Err(); err != nil && inner.TerminationReason() == agent.TerminationError {
		return gadget.Result{}, fmt.Errorf("subagent: %w", err)
	}

	return gadget.Result{Content: final.String()}, nil
}
