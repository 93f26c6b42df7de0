// Package trace records internal/exectree.Event values to a JSONL file and
// can replay them to a caller-supplied Sink at a controlled speed. Not one
// of spec.md's nine core components — the agent loop never imports this
// package — but a natural consumer of §4.F's event bus, useful for
// debugging a run after the fact and for the testable properties that
// check tree/event-bus behavior against a recorded fixture instead of a
// live LLM call. Grounded on the teacher's internal/agent/trace.go
// (TracePlugin/TraceReader/TraceReplayer), generalized from
// models.AgentEvent to exectree.Event and from the teacher's tool-calling
// vocabulary to node_added/node_completed/node_skipped.
package trace

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/wrenlabs/gadgetrun/internal/exectree"
)

// Header is the first line of a trace file.
type Header struct {
	Version   int       `json:"version"`
	RunID     string    `json:"run_id"`
	StartedAt time.Time `json:"started_at"`
}

// Record is one JSONL line after the header: an exectree.Event flattened
// to a JSON-safe shape (Node.Err is an error and Node.Request/Response/
// Parameters/Result are `any`, none of which round-trip through
// encoding/json on their own without a concrete type, so Record stores
// their string forms instead).
type Record struct {
	Seq       uint64             `json:"seq"`
	Timestamp time.Time          `json:"timestamp"`
	Type      exectree.EventType `json:"type"`
	Node      RecordedNode       `json:"node"`
}

// RecordedNode mirrors exectree.Node with interface-typed fields rendered
// to strings so the file is both diffable and immune to the producer's
// concrete provider/gadget types never being registered on the reading
// side.
type RecordedNode struct {
	ID           string            `json:"id"`
	ParentID     string            `json:"parent_id,omitempty"`
	Depth        int               `json:"depth"`
	Kind         exectree.NodeKind `json:"kind"`
	Iteration    int               `json:"iteration,omitempty"`
	Model        string            `json:"model,omitempty"`
	Request      string            `json:"request,omitempty"`
	Response     string            `json:"response,omitempty"`
	Usage        *exectree.Usage   `json:"usage,omitempty"`
	Cost         float64           `json:"cost,omitempty"`
	FinishReason string            `json:"finish_reason,omitempty"`
	InvocationID string            `json:"invocation_id,omitempty"`
	GadgetName   string            `json:"gadget_name,omitempty"`
	Parameters   string            `json:"parameters,omitempty"`
	Result       string            `json:"result,omitempty"`
	Err          string            `json:"error,omitempty"`
	ExecutionMS  int64             `json:"execution_ms,omitempty"`
	Media        []string          `json:"media,omitempty"`
	Skipped      bool              `json:"skipped,omitempty"`
	SkipReason   string            `json:"skip_reason,omitempty"`
	Completed    bool              `json:"completed"`
}

func toRecordedNode(n *exectree.Node) RecordedNode {
	if n == nil {
		return RecordedNode{}
	}
	rn := RecordedNode{
		ID: n.ID, ParentID: n.ParentID, Depth: n.Depth, Kind: n.Kind,
		Iteration: n.Iteration, Model: n.Model, Usage: n.Usage, Cost: n.Cost,
		FinishReason: n.FinishReason, InvocationID: n.InvocationID, GadgetName: n.GadgetName,
		ExecutionMS: n.ExecutionMS, Media: n.Media, Skipped: n.Skipped, SkipReason: n.SkipReason,
		Completed: n.Completed,
	}
	if n.Request != nil {
		rn.Request = fmt.Sprintf("%v", n.Request)
	}
	if n.Response != nil {
		rn.Response = fmt.Sprintf("%v", n.Response)
	}
	if n.Parameters != nil {
		rn.Parameters = fmt.Sprintf("%v", n.Parameters)
	}
	if n.Result != nil {
		rn.Result = fmt.Sprintf("%v", n.Result)
	}
	if n.Err != nil {
		rn.Err = n.Err.Error()
	}
	return rn
}

// Recorder subscribes to an exectree.EventBus and writes every event as a
// JSONL line, flushed immediately so a killed process loses nothing after
// the last successfully flushed line.
type Recorder struct {
	w      *bufio.Writer
	closer io.Closer
	seq    uint64
}

// NewRecorderFile creates (truncating) a trace file at path and writes its
// header.
func NewRecorderFile(path, runID string) (*Recorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("trace: create %s: %w", path, err)
	}
	rec := NewRecorder(f, runID)
	rec.closer = f
	return rec, nil
}

// NewRecorder wraps an already-open writer, writing the header immediately.
func NewRecorder(w io.Writer, runID string) *Recorder {
	rec := &Recorder{w: bufio.NewWriter(w)}
	rec.writeLine(Header{Version: 1, RunID: runID, StartedAt: time.Now()})
	return rec
}

// Attach subscribes the recorder to bus and returns the unsubscribe func.
func (r *Recorder) Attach(bus *exectree.EventBus) (unsubscribe func()) {
	return bus.OnAll(func(e exectree.Event) {
		r.seq++
		r.writeLine(Record{Seq: r.seq, Timestamp: time.Now(), Type: e.Type, Node: toRecordedNode(e.Node)})
	})
}

func (r *Recorder) writeLine(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	r.w.Write(data)
	r.w.WriteByte('\n')
	r.w.Flush()
}

// Close flushes and, if the recorder owns its underlying file, closes it.
func (r *Recorder) Close() error {
	r.w.Flush()
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}
