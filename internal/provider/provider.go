// Package provider defines the adapter contract from spec.md §6 and a
// Dispatcher that composes concrete adapters (internal/provider/anthropic,
// openai, gemini, bedrock) behind one value.
package provider

import (
	"context"
	"strings"

	"github.com/wrenlabs/gadgetrun/internal/stream"
	"github.com/wrenlabs/gadgetrun/pkg/message"
)

// Pricing mirrors the provider contract's pricing shape (spec.md §6), in
// dollars per million tokens.
type Pricing struct {
	InputPerMToken           float64
	OutputPerMToken          float64
	CachedInputPerMToken     float64
	CacheWriteInputPerMToken float64
}

// ModelSpec describes one model an Adapter can serve.
type ModelSpec struct {
	ModelID         string
	ContextWindow   int
	MaxOutputTokens int
	Pricing         Pricing
	Features        []string
}

// GenerationOptions composes the per-call LLM request, built at spec.md
// §4.I step 3.
type GenerationOptions struct {
	Model       string
	Messages    []message.Message
	Temperature float64
	MaxTokens   int
}

// Adapter is the provider contract from spec.md §6. Concrete adapters live
// under internal/provider/{anthropic,openai,gemini,bedrock}; Dispatcher
// composes several behind one value.
type Adapter interface {
	// Supports reports whether this adapter handles the given
	// provider:model-id descriptor.
	Supports(descriptor string) bool
	ModelSpecs() []ModelSpec
	Stream(ctx context.Context, opts GenerationOptions) (<-chan stream.Chunk, error)
	// CountTokens estimates token usage for messages against model; used
	// for compaction budget checks when callers don't otherwise have an
	// estimate.
	CountTokens(messages []message.Message, model string) int
}

// Dispatcher holds an ordered list of adapters and implements "first
// adapter whose Supports returns true" from spec.md §6 using the
// provider:model-id descriptor syntax. Dispatcher itself satisfies Adapter,
// so callers can treat a multi-provider setup exactly like a single one.
type Dispatcher struct {
	adapters []Adapter
}

func NewDispatcher(adapters ...Adapter) *Dispatcher {
	return &Dispatcher{adapters: append([]Adapter(nil), adapters...)}
}

func (d *Dispatcher) Supports(descriptor string) bool {
	_, ok := d.resolve(descriptor)
	return ok
}

func (d *Dispatcher) ModelSpecs() []ModelSpec {
	var specs []ModelSpec
	for _, a := range d.adapters {
		specs = append(specs, a.ModelSpecs()...)
	}
	return specs
}

func (d *Dispatcher) Stream(ctx context.Context, opts GenerationOptions) (<-chan stream.Chunk, error) {
	a, ok := d.resolve(opts.Model)
	if !ok {
		return nil, &ErrNoAdapterForModel{Model: opts.Model}
	}
	return a.Stream(ctx, opts)
}

func (d *Dispatcher) CountTokens(messages []message.Message, model string) int {
	if a, ok := d.resolve(model); ok {
		return a.CountTokens(messages, model)
	}
	return FallbackTokenEstimate(messages)
}

func (d *Dispatcher) resolve(descriptor string) (Adapter, bool) {
	for _, a := range d.adapters {
		if a.Supports(descriptor) {
			return a, true
		}
	}
	return nil, false
}

// FallbackTokenEstimate implements spec.md §6's adapter-absent fallback:
// ceil(chars/4) plus a flat per-media surcharge.
func FallbackTokenEstimate(messages []message.Message) int {
	const charsPerToken = 4
	const mediaSurcharge = 256

	total := 0
	for _, m := range messages {
		chars := len(m.Flatten())
		total += (chars + charsPerToken - 1) / charsPerToken
		for _, p := range m.Parts {
			if p.Type != message.PartText {
				total += mediaSurcharge
			}
		}
	}
	return total
}

// IsRetryableError classifies a provider transport error as transient,
// grounded on the teacher's AnthropicProvider.isRetryableError: rate limits,
// 5xx responses, timeouts, and connection resets are retried; everything
// else (bad request, auth) is not.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, substr := range []string{
		"rate_limit", "429", "too many requests",
		"500", "502", "503", "504",
		"internal server error", "bad gateway", "service unavailable", "gateway timeout",
		"timeout", "deadline exceeded",
		"connection reset", "connection refused", "no such host", "eof",
	} {
		if strings.Contains(msg, substr) {
			return true
		}
	}
	return false
}

// LookupPricing finds the ModelSpec for model across an Adapter's specs,
// used by the agent loop to compute per-call cost (spec.md §4.I step 7).
func LookupPricing(a Adapter, model string) (Pricing, bool) {
	if a == nil {
		return Pricing{}, false
	}
	for _, spec := range a.ModelSpecs() {
		if spec.ModelID == model {
			return spec.Pricing, true
		}
	}
	return Pricing{}, false
}
