package provider

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/wrenlabs/gadgetrun/internal/stream"
	"github.com/wrenlabs/gadgetrun/pkg/message"
)

type prefixAdapter struct {
	prefix string
	specs  []ModelSpec
}

func (p *prefixAdapter) Supports(descriptor string) bool { return strings.HasPrefix(descriptor, p.prefix) }
func (p *prefixAdapter) ModelSpecs() []ModelSpec          { return p.specs }
func (p *prefixAdapter) CountTokens(messages []message.Message, model string) int { return 99 }
func (p *prefixAdapter) Stream(ctx context.Context, opts GenerationOptions) (<-chan stream.Chunk, error) {
	ch := make(chan stream.Chunk)
	close(ch)
	return ch, nil
}

func TestDispatcherRoutesByFirstMatchingAdapter(t *testing.T) {
	anthropic := &prefixAdapter{prefix: "anthropic:", specs: []ModelSpec{{ModelID: "anthropic:claude", Pricing: Pricing{InputPerMToken: 3}}}}
	openai := &prefixAdapter{prefix: "openai:", specs: []ModelSpec{{ModelID: "openai:gpt", Pricing: Pricing{InputPerMToken: 5}}}}
	d := NewDispatcher(anthropic, openai)

	if !d.Supports("openai:gpt") {
		t.Fatal("expected dispatcher to support openai:gpt")
	}
	if d.Supports("gemini:flash") {
		t.Fatal("expected dispatcher to reject an unregistered descriptor")
	}

	if _, err := d.Stream(context.Background(), GenerationOptions{Model: "anthropic:claude"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err := d.Stream(context.Background(), GenerationOptions{Model: "unknown:model"})
	var notFound *ErrNoAdapterForModel
	if !errors.As(err, &notFound) {
		t.Fatalf("error = %v, want *ErrNoAdapterForModel", err)
	}
}

func TestDispatcherCountTokensFallsBackWhenUnsupported(t *testing.T) {
	d := NewDispatcher(&prefixAdapter{prefix: "anthropic:"})
	messages := []message.Message{message.NewText(message.RoleUser, strings.Repeat("a", 40))}

	if got := d.CountTokens(messages, "unknown:model"); got != 10 {
		t.Fatalf("CountTokens fallback = %d, want 10", got)
	}
}

func TestDispatcherModelSpecsAggregatesAllAdapters(t *testing.T) {
	a := &prefixAdapter{specs: []ModelSpec{{ModelID: "a"}}}
	b := &prefixAdapter{specs: []ModelSpec{{ModelID: "b"}, {ModelID: "c"}}}
	d := NewDispatcher(a, b)

	if got := len(d.ModelSpecs()); got != 3 {
		t.Fatalf("ModelSpecs() len = %d, want 3", got)
	}
}

func TestLookupPricingFindsModelAcrossAdapter(t *testing.T) {
	a := &prefixAdapter{specs: []ModelSpec{{ModelID: "x", Pricing: Pricing{InputPerMToken: 7}}}}

	p, ok := LookupPricing(a, "x")
	if !ok || p.InputPerMToken != 7 {
		t.Fatalf("LookupPricing = %+v, %v", p, ok)
	}

	if _, ok := LookupPricing(a, "missing"); ok {
		t.Fatal("expected LookupPricing to report not found for an unknown model")
	}
}
