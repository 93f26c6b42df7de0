// Package stream implements the stream processor from spec.md §4.G: the
// single integration point composing the parser (C), executor (D), hooks
// (E), and execution tree (F) into one sequence of public stream events.
package stream

import (
	"encoding/json"

	"github.com/wrenlabs/gadgetrun/internal/exectree"
	"github.com/wrenlabs/gadgetrun/internal/exec"
)

// EventType tags the discriminated union of public stream events
// (spec.md §3, "StreamEvent (public)").
type EventType string

const (
	EventText           EventType = "text"
	EventGadgetCall     EventType = "gadget_call"
	EventGadgetResult   EventType = "gadget_result"
	EventGadgetSkipped  EventType = "gadget_skipped"
	EventThinking       EventType = "thinking"
	EventSubagent       EventType = "subagent_event"
	EventCompaction     EventType = "compaction"
	EventStreamComplete EventType = "stream_complete"
)

// Usage mirrors the provider contract's usage shape (spec.md §6).
type Usage struct {
	InputTokens              int
	OutputTokens             int
	TotalTokens              int
	CachedInputTokens        int
	CacheCreationInputTokens int
	ReasoningTokens          int
}

// Chunk is one raw unit from a provider adapter's stream (spec.md §6).
type Chunk struct {
	Text         string
	Thinking     string
	FinishReason string
	Usage        *Usage
	RawEvent     any
}

// CompleteData is the payload carried by the terminal stream_complete event.
type CompleteData struct {
	RawResponse       any
	FinalMessage      string
	FinishReason      string
	Usage             Usage
	DidExecuteGadgets bool
	Outputs           []exec.Result
	ShouldBreakLoop   bool
}

// Event is one item in the public stream, tagged by Type; only the fields
// relevant to Type are populated. Unknown fields must be ignored by
// consumers, per spec.md §6.
type Event struct {
	Type EventType

	Text string // EventText, EventThinking

	GadgetName   string          // EventGadgetCall, EventGadgetResult, EventGadgetSkipped
	InvocationID string          // EventGadgetCall, EventGadgetResult, EventGadgetSkipped
	Parameters   json.RawMessage // EventGadgetCall
	ParseError   error           // EventGadgetCall (parser-level failure)

	Result     *exec.Result // EventGadgetResult
	SkipReason string       // EventGadgetSkipped

	Subagent   any // EventSubagent
	Compaction any // EventCompaction

	Complete *CompleteData // EventStreamComplete
}

// Emit is called once per produced Event, in emission order. Implementations
// must not block longer than necessary: per spec.md §4.G, the processor only
// advances to the next raw chunk after Emit returns, giving cooperative
// backpressure with no unbounded internal buffering.
type Emit func(Event)

// Deps bundles the collaborators the processor composes; all are shared with
// the owning Agent and its execution tree.
type Deps struct {
	Executor     *exec.Executor
	Tree         *exectree.Tree
	ParentNodeID string
	RunID        string
	Iteration    int
}
