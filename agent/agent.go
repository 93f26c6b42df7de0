// Package agent implements the agent loop from spec.md §4.I, the public
// entry point wiring the conversation manager (H), stream processor (G) —
// itself composing the parser (C), executor (D), hooks (E), and execution
// tree (F) — and an external compaction collaborator around a Provider.
//
// Grounded on the teacher's internal/agent/loop.go AgenticLoop: the same
// goroutine-and-channel run shape, the same sanitize-then-run configuration
// idiom, generalized from the teacher's fixed tool-calling protocol to this
// package's hook-mediated, provider-agnostic one.
package agent

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/wrenlabs/gadgetrun/internal/compaction"
	"github.com/wrenlabs/gadgetrun/internal/exec"
	"github.com/wrenlabs/gadgetrun/internal/exectree"
	"github.com/wrenlabs/gadgetrun/internal/hooks"
	"github.com/wrenlabs/gadgetrun/internal/parser"
	"github.com/wrenlabs/gadgetrun/internal/provider"
	"github.com/wrenlabs/gadgetrun/internal/stream"
	"github.com/wrenlabs/gadgetrun/pkg/conversation"
	"github.com/wrenlabs/gadgetrun/pkg/gadget"
	"github.com/wrenlabs/gadgetrun/pkg/message"
)

// AfterLLMCallPayload is the Action.Payload shape an afterLLMCall controller
// returns alongside ModifyAndContinue/AppendMessages/AppendAndModify: only
// the field(s) relevant to the returned Kind are consulted.
type AfterLLMCallPayload struct {
	Text     string
	Messages []message.Message
}

// Agent is the public entry point described by spec.md §4.I.
type Agent struct {
	cfg       Config
	conv      *conversation.Conversation
	hooks     *hooks.Registry
	tree      *exectree.Tree
	executor  *exec.Executor
	registry  *gadget.Registry
	compactor *compaction.Manager
	provider  provider.Adapter

	abortOnce sync.Once
	abortCh   chan struct{}

	mu                sync.Mutex
	lastErr           error
	terminationReason TerminationReason
}

// New builds an Agent from the given options, filling every unset
// collaborator with sanitizeConfig's defaults. A Provider is the only
// required option.
func New(opts ...Option) (*Agent, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Provider == nil {
		return nil, fmt.Errorf("agent: Provider is required")
	}
	cfg = sanitizeConfig(cfg)

	return &Agent{
		cfg:       cfg,
		conv:      cfg.Conversation,
		hooks:     cfg.Hooks,
		tree:      cfg.Tree,
		registry:  cfg.Registry,
		compactor: cfg.Compaction,
		provider:  cfg.Provider,
		executor:  exec.New(cfg.Registry, cfg.ExecutorConfig),
		abortCh:   make(chan struct{}),
	}, nil
}

// Conversation exposes the underlying conversation manager so callers can
// seed the catalog/system block and the first user turn before calling Run.
func (a *Agent) Conversation() *conversation.Conversation { return a.conv }

// Tree exposes the execution tree so callers can subscribe to its event bus.
func (a *Agent) Tree() *exectree.Tree { return a.tree }

// Hooks exposes the hook registry so callers can register observers,
// interceptors, and controllers before calling Run.
func (a *Agent) Hooks() *hooks.Registry { return a.hooks }

// Registry exposes the gadget registry backing this agent's executor.
func (a *Agent) Registry() *gadget.Registry { return a.registry }

// Abort signals the running loop to stop at its next iteration boundary, per
// spec.md §4.I step 1. Safe to call more than once or before Run starts.
func (a *Agent) Abort() {
	a.abortOnce.Do(func() { close(a.abortCh) })
}

func (a *Agent) aborted() bool {
	select {
	case <-a.abortCh:
		return true
	default:
		return false
	}
}

// Err returns the error, if any, that ended the most recent Run. Valid once
// the channel Run returned has closed.
func (a *Agent) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastErr
}

// TerminationReason reports why the most recent Run ended. Valid once the
// channel Run returned has closed.
func (a *Agent) TerminationReason() TerminationReason {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.terminationReason
}

func (a *Agent) setTermination(reason TerminationReason, err error) {
	a.mu.Lock()
	a.terminationReason = reason
	a.lastErr = err
	a.mu.Unlock()
}

// Run drives the agent loop to completion, emitting every stream event on
// the returned channel and closing it on termination. Call Err and
// TerminationReason afterward to learn how the run ended.
func (a *Agent) Run(ctx context.Context) <-chan stream.Event {
	out := make(chan stream.Event)
	runID := uuid.NewString()

	go func() {
		defer close(out)
		emit := func(e stream.Event) {
			select {
			case out <- e:
			case <-ctx.Done():
			}
		}
		a.runLoop(ctx, runID, emit)
	}()

	return out
}

// runLoop implements spec.md §4.I's ten-step algorithm.
func (a *Agent) runLoop(ctx context.Context, runID string, emit stream.Emit) {
	parentNodeID := a.cfg.InitialParentNodeID

	for iteration := 0; iteration < a.cfg.MaxIterations; iteration++ {
		// Step 1.
		if a.aborted() || ctx.Err() != nil {
			a.hooks.Observe(ctx, hooks.Event{Slot: hooks.SlotOnAbort, RunID: runID, Iteration: iteration})
			a.setTermination(TerminationAbort, ErrAborted)
			return
		}

		// Step 2.
		if a.compactor != nil {
			if ev, did := a.compactor.CheckAndCompact(ctx, a.conv, iteration); did {
				emit(stream.Event{Type: stream.EventCompaction, Compaction: ev})
				a.hooks.Observe(ctx, hooks.Event{Slot: hooks.SlotOnCompaction, RunID: runID, Iteration: iteration, Result: ev})
			}
		}

		// Step 3.
		genOpts := provider.GenerationOptions{
			Model:       a.cfg.Model,
			Messages:    a.conv.GetMessages(),
			Temperature: a.cfg.Temperature,
			MaxTokens:   a.cfg.MaxTokens,
		}

		// Step 4.
		a.hooks.Observe(ctx, hooks.Event{Slot: hooks.SlotOnLLMCallStart, RunID: runID, Iteration: iteration, Parameters: genOpts})
		beforeAction, err := a.hooks.Decide(ctx, hooks.Event{Slot: hooks.SlotBeforeLLMCall, RunID: runID, Iteration: iteration, Parameters: genOpts})
		if err != nil {
			a.setTermination(TerminationError, err)
			return
		}
		if beforeAction.Kind == hooks.ActionSkip {
			text, _ := beforeAction.Payload.(string)
			a.conv.AddAssistantMessage(text)
			emit(stream.Event{Type: stream.EventText, Text: text})
			a.setTermination(TerminationControllerSkip, nil)
			return
		}

		// Step 5.
		a.hooks.Observe(ctx, hooks.Event{Slot: hooks.SlotOnLLMCallReady, RunID: runID, Iteration: iteration})
		nodeID := a.tree.AddLLMCall(parentNodeID, iteration, genOpts.Model, genOpts)

		chunks, err := a.provider.Stream(ctx, genOpts)
		if err != nil {
			if !a.handleLLMError(ctx, runID, iteration, emit, err) {
				return
			}
			continue
		}

		// Step 6.
		proc := stream.New(
			parser.New(parser.WithMarkers(a.cfg.StartMarker, a.cfg.EndMarker)),
			a.hooks,
			stream.Deps{Executor: a.executor, Tree: a.tree, ParentNodeID: nodeID, RunID: runID, Iteration: iteration},
		)
		complete, err := proc.Run(ctx, chunks, emit)
		if err != nil {
			if !a.handleLLMError(ctx, runID, iteration, emit, err) {
				return
			}
			continue
		}

		// Step 7.
		usage := &exectree.Usage{
			InputTokens:  complete.Usage.InputTokens,
			OutputTokens: complete.Usage.OutputTokens,
			TotalTokens:  complete.Usage.TotalTokens,
		}
		cost := a.computeCost(genOpts.Model, complete.Usage)
		a.tree.CompleteLLMCall(nodeID, complete.RawResponse, usage, cost, complete.FinishReason)
		a.hooks.Observe(ctx, hooks.Event{Slot: hooks.SlotOnLLMCallComplete, RunID: runID, Iteration: iteration, Result: complete})

		// Step 8.
		afterAction, err := a.hooks.Decide(ctx, hooks.Event{Slot: hooks.SlotAfterLLMCall, RunID: runID, Iteration: iteration, Result: complete})
		if err != nil {
			a.setTermination(TerminationError, err)
			return
		}
		finalText := complete.FinalMessage
		var extraMessages []message.Message
		if payload, ok := afterAction.Payload.(AfterLLMCallPayload); ok {
			switch afterAction.Kind {
			case hooks.ActionModifyAndContinue:
				finalText = payload.Text
			case hooks.ActionAppendMessages:
				extraMessages = payload.Messages
			case hooks.ActionAppendAndModify:
				finalText = payload.Text
				extraMessages = payload.Messages
			}
		}

		// Step 9.
		a.conv.AddAssistantMessage(finalText)
		for _, m := range extraMessages {
			a.appendRawMessage(m)
		}

		switch {
		case complete.DidExecuteGadgets:
			for _, res := range complete.Outputs {
				a.conv.AddGadgetCallResult(res.GadgetName, res.InvocationID, res.Content, res.Media)
			}
		case a.cfg.TextWithGadgetsHandler != nil:
			if name, invID, ok := a.cfg.TextWithGadgetsHandler(finalText); ok {
				a.conv.AddSyntheticGadgetResult(name, invID, finalText)
			}
		default:
			switch a.cfg.TextOnlyHandler {
			case TextOnlyTerminate:
				a.setTermination(TerminationTextOnlyTerminate, nil)
				return
			case TextOnlyWaitForInput:
				a.setTermination(TerminationWaitForInput, nil)
				return
			case TextOnlyAcknowledge:
				a.conv.AddUserText(AcknowledgeText)
			}
		}

		// Step 10.
		if complete.ShouldBreakLoop {
			a.setTermination(TerminationBreakLoop, nil)
			return
		}
	}

	a.setTermination(TerminationMaxIterations, nil)
}

// handleLLMError implements step 11: observe onLLMCallError, run
// afterLLMError, and either recover (append a fallback assistant message and
// continue the loop) or rethrow (terminate with err). Returns true when the
// loop should proceed to its next iteration.
func (a *Agent) handleLLMError(ctx context.Context, runID string, iteration int, emit stream.Emit, err error) bool {
	a.hooks.Observe(ctx, hooks.Event{Slot: hooks.SlotOnLLMCallError, RunID: runID, Iteration: iteration, Err: err})

	action, decErr := a.hooks.Decide(ctx, hooks.Event{Slot: hooks.SlotAfterLLMError, RunID: runID, Iteration: iteration, Err: err})
	if decErr != nil {
		a.setTermination(TerminationError, decErr)
		return false
	}
	if action.Kind == hooks.ActionRecover {
		text, _ := action.Payload.(string)
		if text == "" {
			text = fmt.Sprintf("[LLM call failed: %v]", err)
		}
		a.conv.AddAssistantMessage(text)
		emit(stream.Event{Type: stream.EventText, Text: text})
		return true
	}
	a.setTermination(TerminationError, err)
	return false
}

func (a *Agent) appendRawMessage(m message.Message) {
	if m.Role == message.RoleUser {
		a.conv.AddUserMessage(m.Parts...)
		return
	}
	a.conv.AddAssistantMessage(m.Flatten())
}

// computeCost looks up the model's pricing from the configured Provider and
// applies it to usage, per spec.md §4.I step 7. An unpriced model yields
// zero cost rather than an error.
func (a *Agent) computeCost(model string, usage stream.Usage) float64 {
	pricing, ok := provider.LookupPricing(a.provider, model)
	if !ok {
		return 0
	}
	const perMillion = 1_000_000.0
	billableInput := usage.InputTokens - usage.CachedInputTokens
	if billableInput < 0 {
		billableInput = 0
	}
	cost := float64(billableInput) / perMillion * pricing.InputPerMToken
	cost += float64(usage.OutputTokens) / perMillion * pricing.OutputPerMToken
	cost += float64(usage.CachedInputTokens) / perMillion * pricing.CachedInputPerMToken
	cost += float64(usage.CacheCreationInputTokens) / perMillion * pricing.CacheWriteInputPerMToken
	return cost
}
