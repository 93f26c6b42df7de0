package anthropic

import (
	"testing"

	"github.com/wrenlabs/gadgetrun/internal/provider"
	"github.com/wrenlabs/gadgetrun/pkg/message"
)

func TestNewRequiresAPIKey(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error for empty API key")
	}
}

func TestSupportsMatchesDescriptorPrefix(t *testing.T) {
	a := &Adapter{}
	if !a.Supports("anthropic:claude-sonnet-4-20250514") {
		t.Fatal("expected adapter to support an anthropic: descriptor")
	}
	if a.Supports("openai:gpt-4o") {
		t.Fatal("expected adapter to reject a non-anthropic descriptor")
	}
}

func TestModelSpecsCarryPricing(t *testing.T) {
	a := &Adapter{}
	specs := a.ModelSpecs()
	if len(specs) == 0 {
		t.Fatal("expected at least one model spec")
	}
	for _, s := range specs {
		if s.Pricing.InputPerMToken <= 0 {
			t.Fatalf("model %s has no input pricing", s.ModelID)
		}
	}
}

func TestBuildParamsSeparatesSystemFromMessages(t *testing.T) {
	opts := provider.GenerationOptions{
		Model: "anthropic:claude-sonnet-4-20250514",
		Messages: []message.Message{
			message.NewText(message.RoleSystem, "be terse"),
			message.NewText(message.RoleUser, "hi"),
			message.NewText(message.RoleAssistant, "hello"),
		},
		MaxTokens: 512,
	}

	params, err := buildParams(opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(params.System) != 1 || params.System[0].Text != "be terse" {
		t.Fatalf("System = %+v, want one block with 'be terse'", params.System)
	}
	if len(params.Messages) != 2 {
		t.Fatalf("Messages len = %d, want 2", len(params.Messages))
	}
	if string(params.Model) != "claude-sonnet-4-20250514" {
		t.Fatalf("Model = %q, want descriptor stripped of provider prefix", params.Model)
	}
	if params.MaxTokens != 512 {
		t.Fatalf("MaxTokens = %d, want 512", params.MaxTokens)
	}
}

func TestBuildParamsRejectsUnsupportedPartType(t *testing.T) {
	opts := provider.GenerationOptions{
		Model: "anthropic:claude-sonnet-4-20250514",
		Messages: []message.Message{
			{Role: message.RoleUser, Parts: []message.Part{{Type: message.PartAudio}}},
		},
	}
	if _, err := buildParams(opts); err == nil {
		t.Fatal("expected an error for an audio part, which Anthropic cannot accept")
	}
}
