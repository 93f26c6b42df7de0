// Package gadget defines the gadget contract, the registry, and parameter
// schema validation (spec.md §4.B).
package gadget

import (
	"context"
	"encoding/json"
	"fmt"
)

// Gadget is a named, schema-typed tool the model can invoke mid-stream.
type Gadget interface {
	Name() string
	Description() string
	Schema() json.RawMessage
	Examples() []string

	// Execute runs the gadget. Implementations signal the three named
	// side-channel exceptions from spec.md §4.D by returning the
	// corresponding sentinel error types from this package
	// (HumanInputRequired, TaskCompletionSignal, and context
	// cancellation/deadline for Timeout) rather than encoding them in
	// Result — the executor is responsible for translating them.
	Execute(ctx context.Context, params json.RawMessage) (Result, error)
}

// Result is what a gadget returns on success. MediaPayload, if non-nil, is
// persisted by the executor's media store and replaced with a handle.
type Result struct {
	Content      string
	MediaPayload []byte
	MediaMime    string
	// PropagateBreak is not read anywhere in this module: setting it has no
	// effect. The subagent gadget returns only its nested run's text, so a
	// loop break inside a subagent never reaches the parent loop.
	PropagateBreak bool
	// BreaksLoop, when true, marks the loop for termination after the
	// gadget's result is recorded.
	BreaksLoop bool
	// Parallel, when true, permits the executor to run this gadget call
	// concurrently with siblings from the same response (spec.md §4.D).
	Parallel bool
}

// Definition wraps a Gadget with the executor-facing configuration the
// registry tracks alongside it: per-gadget timeout/retry overrides and
// whether concurrent execution is permitted.
type Definition struct {
	Gadget     Gadget
	Timeout    int // milliseconds; 0 = the executor's default timeout
	MaxRetries int
	Parallel   bool
}

// HumanInputRequired signals that the gadget cannot complete without a
// human answering Question; the executor translates this into a blocking
// callback per spec.md §7.
type HumanInputRequired struct {
	Question string
}

func (e *HumanInputRequired) Error() string {
	return fmt.Sprintf("human input required: %s", e.Question)
}

// TaskCompletionSignal tells the executor this gadget call concludes the
// agent's task; the executor sets Result.BreaksLoop and records Message.
type TaskCompletionSignal struct {
	Message string
}

func (e *TaskCompletionSignal) Error() string {
	if e.Message == "" {
		return "task completion signaled"
	}
	return "task completion signaled: " + e.Message
}
