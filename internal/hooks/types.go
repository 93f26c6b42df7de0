// Package hooks implements the three-layer hook system from spec.md §4.E:
// Observers (fire-and-forget), Interceptors (synchronous pure transforms),
// and Controllers (async, tagged-action return, exactly one per slot).
package hooks

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Slot names the well-known dispatch points enumerated in spec.md §4.E.
type Slot string

const (
	SlotOnLLMCallStart          Slot = "onLLMCallStart"
	SlotOnLLMCallReady          Slot = "onLLMCallReady"
	SlotOnLLMCallComplete       Slot = "onLLMCallComplete"
	SlotOnLLMCallError          Slot = "onLLMCallError"
	SlotOnStreamChunk           Slot = "onStreamChunk"
	SlotOnGadgetExecutionStart  Slot = "onGadgetExecutionStart"
	SlotOnGadgetExecutionDone   Slot = "onGadgetExecutionComplete"
	SlotOnAbort                 Slot = "onAbort"
	SlotOnCompaction            Slot = "onCompaction"
	SlotInterceptRawChunk       Slot = "interceptRawChunk"
	SlotInterceptTextChunk      Slot = "interceptTextChunk"
	SlotInterceptGadgetParams   Slot = "interceptGadgetParameters"
	SlotInterceptGadgetResult   Slot = "interceptGadgetResult"
	SlotInterceptAssistantMsg   Slot = "interceptAssistantMessage"
	SlotBeforeLLMCall           Slot = "beforeLLMCall"
	SlotAfterLLMCall            Slot = "afterLLMCall"
	SlotAfterLLMError           Slot = "afterLLMError"
	SlotBeforeGadgetExecution   Slot = "beforeGadgetExecution"
	SlotAfterGadgetExecution    Slot = "afterGadgetExecution"
)

// Event is the immutable context record passed to every hook call, per
// spec.md §3 ("Each hook call receives an immutable context record").
// Fields are populated according to Slot; callers must not mutate a
// received Event.
type Event struct {
	Slot      Slot
	RunID     string
	Iteration int

	Text       string
	RawChunk   string
	GadgetName string
	InvocationID string
	Parameters any
	Result     any
	Err        error
	Extra      map[string]any
}

// Observer is a read-only, fire-and-forget handler. Its return value, if
// any, is ignored; a panic or error is caught, logged, and never reaches
// the caller or other observers (spec.md §4.E Observer isolation).
type Observer func(ctx context.Context, e Event)

// Interceptor is a synchronous, pure transform. It receives the current
// value and returns a replacement; returning a zero/nil value suppresses
// the value where suppression is meaningful. Multiple interceptors for one
// slot compose in registration order.
type Interceptor func(ctx context.Context, e Event, value any) (any, error)

// Controller is async and returns exactly one tagged Action per slot.
type Controller func(ctx context.Context, e Event) (Action, error)

// Action is the closed set of controller return values. Kind is one of the
// Action* kinds below and identifies which; Payload carries kind-specific
// data.
type Action struct {
	Kind    ActionKind
	Payload any
}

type ActionKind string

const (
	ActionProceed           ActionKind = "proceed"
	ActionSkip              ActionKind = "skip"
	ActionContinue          ActionKind = "continue"
	ActionModifyAndContinue ActionKind = "modify_and_continue"
	ActionAppendMessages    ActionKind = "append_messages"
	ActionAppendAndModify   ActionKind = "append_and_modify"
	ActionRecover           ActionKind = "recover"
	ActionRethrow           ActionKind = "rethrow"
)

// ErrInvalidAction is a programmer error: a Controller returned an Action
// whose Kind isn't valid for the slot it was registered against, per
// spec.md §4.E's validation clause.
type ErrInvalidAction struct {
	Slot Slot
	Kind ActionKind
}

func (e *ErrInvalidAction) Error() string {
	return fmt.Sprintf("hooks: action %q is not valid for slot %q", e.Kind, e.Slot)
}

// validActionKinds enumerates, per controller slot, the Action Kinds
// spec.md §4.E declares legal.
var validActionKinds = map[Slot]map[ActionKind]bool{
	SlotBeforeLLMCall:         {ActionProceed: true, ActionSkip: true},
	SlotAfterLLMCall:          {ActionContinue: true, ActionModifyAndContinue: true, ActionAppendMessages: true, ActionAppendAndModify: true},
	SlotAfterLLMError:         {ActionRecover: true, ActionRethrow: true},
	SlotBeforeGadgetExecution: {ActionProceed: true, ActionSkip: true},
	SlotAfterGadgetExecution:  {ActionContinue: true, ActionRecover: true},
}

// ValidateAction checks act against the declared shape for slot.
func ValidateAction(slot Slot, act Action) error {
	kinds, ok := validActionKinds[slot]
	if !ok || !kinds[act.Kind] {
		return &ErrInvalidAction{Slot: slot, Kind: act.Kind}
	}
	return nil
}

// registration is a single registered handler of any layer, kept generic so
// Registry can manage all three layers uniformly while dispatch methods
// stay type-specific.
type registration struct {
	id       string
	priority int
	observer Observer
	interceptor Interceptor
	controller  Controller
}

// Registry holds all registered hooks across the three layers, keyed by
// slot. Safe for concurrent registration and dispatch.
type Registry struct {
	mu           sync.RWMutex
	observers    map[Slot][]*registration
	interceptors map[Slot][]*registration
	controllers  map[Slot]*registration
	logger       *slog.Logger
	nextID       int
}

// RegisterOption configures a registration using the functional-options
// pattern used throughout this codebase.
type RegisterOption func(*registration)

func WithPriority(p int) RegisterOption {
	return func(r *registration) { r.priority = p }
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		observers:    make(map[Slot][]*registration),
		interceptors: make(map[Slot][]*registration),
		controllers:  make(map[Slot]*registration),
		logger:       logger,
	}
}

func (r *Registry) nextIDLocked() string {
	r.nextID++
	return fmt.Sprintf("hook-%d", r.nextID)
}

// RegisterObserver attaches obs to slot. Multiple observers per slot are
// permitted and run independently in priority then registration order.
func (r *Registry) RegisterObserver(slot Slot, obs Observer, opts ...RegisterOption) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg := &registration{id: r.nextIDLocked(), observer: obs}
	for _, opt := range opts {
		opt(reg)
	}
	r.observers[slot] = append(r.observers[slot], reg)
	sortByPriority(r.observers[slot])
	return reg.id
}

// RegisterInterceptor attaches ic to slot, composing after any already
// registered for the same slot.
func (r *Registry) RegisterInterceptor(slot Slot, ic Interceptor, opts ...RegisterOption) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg := &registration{id: r.nextIDLocked(), interceptor: ic}
	for _, opt := range opts {
		opt(reg)
	}
	r.interceptors[slot] = append(r.interceptors[slot], reg)
	sortByPriority(r.interceptors[slot])
	return reg.id
}

// RegisterController attaches c to slot. Exactly one controller per slot is
// permitted; a second registration replaces the first (last-writer-wins,
// matching the registry's general registration convention).
func (r *Registry) RegisterController(slot Slot, c Controller) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.controllers[slot] = &registration{id: r.nextIDLocked(), controller: c}
}

func sortByPriority(regs []*registration) {
	sort.SliceStable(regs, func(i, j int) bool { return regs[i].priority > regs[j].priority })
}
