package hooks

import (
	"context"
	"fmt"
	"runtime/debug"
)

// Observe fires every observer registered for slot. Each call is isolated:
// a panic or error is caught and logged, and never affects the caller or
// other observers (spec.md §4.E, Observer isolation testable property).
// Observers run one after another on the caller's goroutine, in priority
// then registration order; Observe returns once every observer has run.
func (r *Registry) Observe(ctx context.Context, e Event) {
	r.mu.RLock()
	regs := append([]*registration(nil), r.observers[e.Slot]...)
	r.mu.RUnlock()

	for _, reg := range regs {
		r.callObserver(ctx, reg, e)
	}
}

func (r *Registry) callObserver(ctx context.Context, reg *registration, e Event) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("hooks: observer panicked",
				"slot", e.Slot, "hook_id", reg.id, "panic", rec, "stack", string(debug.Stack()))
		}
	}()
	reg.observer(ctx, e)
}

// Intercept runs every interceptor registered for slot, in registration
// (priority-then-order) order, each receiving the prior interceptor's
// output. A nil returned value is semantically "suppressed" and becomes the
// final result for the slots where suppression is meaningful (spec.md
// §4.E); the chain does not short-circuit on nil.
func (r *Registry) Intercept(ctx context.Context, e Event, value any) (any, error) {
	r.mu.RLock()
	regs := append([]*registration(nil), r.interceptors[e.Slot]...)
	r.mu.RUnlock()

	current := value
	for _, reg := range regs {
		next, err := reg.interceptor(ctx, e, current)
		if err != nil {
			return nil, fmt.Errorf("hooks: interceptor %s failed on slot %s: %w", reg.id, e.Slot, err)
		}
		current = next
	}
	return current, nil
}

// Decide invokes the single controller registered for slot, if any,
// validating its returned Action against the slot's declared shape. If no
// controller is registered, Decide returns the slot's default
// "continue"-equivalent action.
func (r *Registry) Decide(ctx context.Context, e Event) (Action, error) {
	r.mu.RLock()
	reg := r.controllers[e.Slot]
	r.mu.RUnlock()

	if reg == nil {
		return defaultAction(e.Slot), nil
	}

	act, err := reg.controller(ctx, e)
	if err != nil {
		return Action{}, fmt.Errorf("hooks: controller failed on slot %s: %w", e.Slot, err)
	}
	if err := ValidateAction(e.Slot, act); err != nil {
		return Action{}, err
	}
	return act, nil
}

func defaultAction(slot Slot) Action {
	switch slot {
	case SlotBeforeLLMCall, SlotBeforeGadgetExecution:
		return Action{Kind: ActionProceed}
	case SlotAfterLLMCall, SlotAfterGadgetExecution:
		return Action{Kind: ActionContinue}
	case SlotAfterLLMError:
		return Action{Kind: ActionRethrow}
	default:
		return Action{Kind: ActionContinue}
	}
}
