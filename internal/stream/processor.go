package stream

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/wrenlabs/gadgetrun/internal/exec"
	"github.com/wrenlabs/gadgetrun/internal/hooks"
	"github.com/wrenlabs/gadgetrun/internal/parser"
)

// Processor runs the algorithm in spec.md §4.G over one raw provider stream,
// yielding public Events via Emit and returning the terminal CompleteData.
type Processor struct {
	parser *parser.Parser
	hooks  *hooks.Registry
	deps   Deps

	assistantText strings.Builder
	didExecute    bool
	shouldBreak   bool
	outputs       []exec.Result
}

// New builds a Processor for one LLM response. p is fresh (or freshly reset)
// for each response, matching "one Parser belongs to one in-flight LLM
// response".
func New(p *parser.Parser, h *hooks.Registry, deps Deps) *Processor {
	return &Processor{parser: p, hooks: h, deps: deps}
}

// Run drains chunks until the channel closes, calling emit for every public
// event and returning the stream_complete payload. The caller owns cancelling
// ctx; Run observes cancellation between chunks and at gadget-execution
// boundaries.
func (p *Processor) Run(ctx context.Context, chunks <-chan Chunk, emit Emit) (*CompleteData, error) {
	var lastFinishReason string
	var lastUsage Usage
	var lastRaw any

	for {
		select {
		case <-ctx.Done():
			return p.finish(ctx, emit, lastFinishReason, lastUsage, lastRaw)
		case chunk, ok := <-chunks:
			if !ok {
				return p.finish(ctx, emit, lastFinishReason, lastUsage, lastRaw)
			}
			lastRaw = chunk.RawEvent
			if chunk.FinishReason != "" {
				lastFinishReason = chunk.FinishReason
			}
			if chunk.Usage != nil {
				lastUsage = *chunk.Usage
			}
			if chunk.Thinking != "" {
				emit(Event{Type: EventThinking, Text: chunk.Thinking})
			}
			if err := p.handleRawText(ctx, chunk.Text, emit); err != nil {
				return nil, err
			}
			if p.shouldBreak {
				return p.finish(ctx, emit, lastFinishReason, lastUsage, lastRaw)
			}
		}
	}
}

// handleRawText runs step 1-3 of spec.md §4.G's algorithm for one raw chunk.
func (p *Processor) handleRawText(ctx context.Context, text string, emit Emit) error {
	rawVal, err := p.hooks.Intercept(ctx, hooks.Event{Slot: hooks.SlotInterceptRawChunk, RunID: p.deps.RunID, Iteration: p.deps.Iteration, RawChunk: text}, text)
	if err != nil {
		return err
	}
	if rawVal == nil {
		return nil
	}
	rawText, _ := rawVal.(string)

	p.hooks.Observe(ctx, hooks.Event{Slot: hooks.SlotOnStreamChunk, RunID: p.deps.RunID, Iteration: p.deps.Iteration, Text: rawText})

	events := p.parser.Feed(rawText)
	return p.drainParserEvents(ctx, events, emit)
}

func (p *Processor) drainParserEvents(ctx context.Context, events []parser.Event, emit Emit) error {
	for _, ev := range events {
		switch ev.Kind {
		case parser.EventText:
			textVal, err := p.hooks.Intercept(ctx, hooks.Event{Slot: hooks.SlotInterceptTextChunk, RunID: p.deps.RunID, Iteration: p.deps.Iteration, Text: ev.Text}, ev.Text)
			if err != nil {
				return err
			}
			if textVal == nil {
				continue
			}
			text, _ := textVal.(string)
			p.assistantText.WriteString(text)
			emit(Event{Type: EventText, Text: text})

		case parser.EventGadgetCall:
			if err := p.handleGadgetCall(ctx, ev, emit); err != nil {
				return err
			}
			if p.shouldBreak {
				return nil
			}
		}
	}
	return nil
}

// handleGadgetCall runs the on-block-boundary chain from spec.md §4.G step 3
// and the hook chain diagram in §4.E.
func (p *Processor) handleGadgetCall(ctx context.Context, ev parser.Event, emit Emit) error {
	emit(Event{
		Type:         EventGadgetCall,
		GadgetName:   ev.Name,
		InvocationID: ev.InvocationID,
		Parameters:   ev.Parameters,
		ParseError:   ev.ParseError,
	})

	if ev.ParseError != nil {
		result := exec.Result{
			InvocationID: ev.InvocationID,
			GadgetName:   ev.Name,
			IsError:      true,
			Err:          ev.ParseError,
			Content:      ev.ParseError.Error(),
		}
		p.recordResult(ctx, "", result, emit)
		return nil
	}

	paramsVal, err := p.hooks.Intercept(ctx, hooks.Event{
		Slot: hooks.SlotInterceptGadgetParams, RunID: p.deps.RunID, Iteration: p.deps.Iteration,
		GadgetName: ev.Name, InvocationID: ev.InvocationID, Parameters: ev.Parameters,
	}, ev.Parameters)
	if err != nil {
		return err
	}
	if paramsVal == nil {
		p.recordSkip(ctx, ev, "suppressed by interceptGadgetParameters", emit)
		return nil
	}
	params, _ := paramsVal.(json.RawMessage)

	decideEvent := hooks.Event{
		Slot: hooks.SlotBeforeGadgetExecution, RunID: p.deps.RunID, Iteration: p.deps.Iteration,
		GadgetName: ev.Name, InvocationID: ev.InvocationID, Parameters: params,
	}
	action, err := p.hooks.Decide(ctx, decideEvent)
	if err != nil {
		return err
	}
	if action.Kind == hooks.ActionSkip {
		reason, _ := action.Payload.(string)
		if reason == "" {
			reason = "skipped by beforeGadgetExecution"
		}
		p.recordSkip(ctx, ev, reason, emit)
		return nil
	}

	p.hooks.Observe(ctx, hooks.Event{
		Slot: hooks.SlotOnGadgetExecutionStart, RunID: p.deps.RunID, Iteration: p.deps.Iteration,
		GadgetName: ev.Name, InvocationID: ev.InvocationID, Parameters: params,
	})

	nodeID := p.deps.Tree.AddGadget(p.deps.ParentNodeID, ev.InvocationID, ev.Name, params)
	node, _ := p.deps.Tree.Get(nodeID)

	// A subagent gadget runs its own nested Agent sharing this Tree and
	// attached under nodeID (spec.md §4.F); its stream events arrive here
	// via subagentSink and are re-emitted as public subagent_event values
	// (spec.md §4.G), in the order the subagent produced them.
	subagentSink := func(payload any) {
		emit(Event{Type: EventSubagent, GadgetName: ev.Name, InvocationID: ev.InvocationID, Subagent: payload})
	}

	result := p.deps.Executor.Execute(ctx, exec.Call{
		InvocationID: ev.InvocationID,
		Name:         ev.Name,
		Parameters:   params,
		NodeID:       nodeID,
		Tree:         p.deps.Tree,
		DepthBase:    node.Depth + 1,
		SubagentSink: subagentSink,
	})

	resultVal, err := p.hooks.Intercept(ctx, hooks.Event{
		Slot: hooks.SlotInterceptGadgetResult, RunID: p.deps.RunID, Iteration: p.deps.Iteration,
		GadgetName: ev.Name, InvocationID: ev.InvocationID, Result: result,
	}, result)
	if err != nil {
		return err
	}
	if rv, ok := resultVal.(exec.Result); ok {
		result = rv
	}

	afterEvent := hooks.Event{
		Slot: hooks.SlotAfterGadgetExecution, RunID: p.deps.RunID, Iteration: p.deps.Iteration,
		GadgetName: ev.Name, InvocationID: ev.InvocationID, Result: result, Err: result.Err,
	}
	action, err = p.hooks.Decide(ctx, afterEvent)
	if err != nil {
		return err
	}
	if action.Kind == hooks.ActionRecover {
		if rv, ok := action.Payload.(exec.Result); ok {
			result = rv
		}
	}

	p.hooks.Observe(ctx, hooks.Event{
		Slot: hooks.SlotOnGadgetExecutionDone, RunID: p.deps.RunID, Iteration: p.deps.Iteration,
		GadgetName: ev.Name, InvocationID: ev.InvocationID, Result: result,
	})

	p.recordResult(ctx, nodeID, result, emit)
	return nil
}

func (p *Processor) recordResult(ctx context.Context, nodeID string, result exec.Result, emit Emit) {
	p.didExecute = true
	p.outputs = append(p.outputs, result)
	if nodeID != "" {
		var media []string
		for _, m := range result.Media {
			media = append(media, m.ID)
		}
		p.deps.Tree.CompleteGadget(nodeID, result.Content, result.Err, result.ExecutionTimeMS, 0, media)
	}
	if result.BreaksLoop {
		p.shouldBreak = true
	}
	emit(Event{
		Type:         EventGadgetResult,
		GadgetName:   result.GadgetName,
		InvocationID: result.InvocationID,
		Result:       &result,
	})
}

func (p *Processor) recordSkip(ctx context.Context, ev parser.Event, reason string, emit Emit) {
	nodeID := p.deps.Tree.AddGadget(p.deps.ParentNodeID, ev.InvocationID, ev.Name, ev.Parameters)
	p.deps.Tree.MarkSkipped(nodeID, reason)
	emit(Event{
		Type:         EventGadgetSkipped,
		GadgetName:   ev.Name,
		InvocationID: ev.InvocationID,
		SkipReason:   reason,
	})
}

// finish runs step 4: interceptAssistantMessage over the accumulated text,
// flushes any trailing parser state, and emits exactly one stream_complete.
func (p *Processor) finish(ctx context.Context, emit Emit, finishReason string, usage Usage, raw any) (*CompleteData, error) {
	if trailing := p.parser.Close(); len(trailing) > 0 {
		if err := p.drainParserEvents(ctx, trailing, emit); err != nil {
			return nil, err
		}
	}

	finalVal, err := p.hooks.Intercept(ctx, hooks.Event{
		Slot: hooks.SlotInterceptAssistantMsg, RunID: p.deps.RunID, Iteration: p.deps.Iteration,
		Text: p.assistantText.String(),
	}, p.assistantText.String())
	if err != nil {
		return nil, err
	}
	finalText, _ := finalVal.(string)

	complete := &CompleteData{
		RawResponse:       raw,
		FinalMessage:      finalText,
		FinishReason:      finishReason,
		Usage:             usage,
		DidExecuteGadgets: p.didExecute,
		Outputs:           p.outputs,
		ShouldBreakLoop:   p.shouldBreak,
	}
	emit(Event{Type: EventStreamComplete, Complete: complete})
	return complete, nil
}
