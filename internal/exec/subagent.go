package exec

import (
	"context"

	"github.com/wrenlabs/gadgetrun/internal/exectree"
)

// SubagentSink receives a subagent gadget's own nested stream events, in
// emission order, so the processor that launched the gadget call can wrap
// each as a public subagent_event (spec.md §4.G). Payload is always a
// stream.Event, passed as any to avoid exec importing stream.
type SubagentSink func(payload any)

// SubagentContext is what a subagent gadget retrieves from its Execute
// context to attach its own nested Agent to the caller's execution tree,
// per spec.md §4.F: "the subagent receives (tree, parentNodeId, depthBase)
// at construction" and shares the same *Tree instance rather than owning
// its own.
type SubagentContext struct {
	Tree         *exectree.Tree
	ParentNodeID string
	DepthBase    int
	Sink         SubagentSink
}

type subagentCtxKey struct{}

func withSubagentContext(ctx context.Context, sc SubagentContext) context.Context {
	return context.WithValue(ctx, subagentCtxKey{}, sc)
}

// SubagentContextFromContext retrieves the SubagentContext the executor
// attaches to a gadget call's Execute context. A gadget that spawns a
// nested Agent calls this to learn where to attach it; ok is false when the
// executor wasn't given a Tree for this call (e.g. a gadget invoked
// directly in a test, outside a stream processor).
func SubagentContextFromContext(ctx context.Context) (SubagentContext, bool) {
	sc, ok := ctx.Value(subagentCtxKey{}).(SubagentContext)
	return sc, ok
}
