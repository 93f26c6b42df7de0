package gemini

import (
	"testing"

	"google.golang.org/genai"

	"github.com/wrenlabs/gadgetrun/internal/provider"
	"github.com/wrenlabs/gadgetrun/pkg/message"
)

func TestSupportsMatchesDescriptorPrefix(t *testing.T) {
	a := &Adapter{}
	if !a.Supports("gemini:gemini-2.0-flash") {
		t.Fatal("expected adapter to support a gemini: descriptor")
	}
	if a.Supports("openai:gpt-4o") {
		t.Fatal("expected adapter to reject a non-gemini descriptor")
	}
}

func TestBuildRequestSplitsSystemInstruction(t *testing.T) {
	opts := provider.GenerationOptions{
		Model: "gemini:gemini-2.0-flash",
		Messages: []message.Message{
			message.NewText(message.RoleSystem, "be terse"),
			message.NewText(message.RoleUser, "hi"),
			message.NewText(message.RoleAssistant, "hello"),
		},
		MaxTokens: 256,
	}

	contents, config := buildRequest(opts)

	if config.SystemInstruction == nil || config.SystemInstruction.Parts[0].Text != "be terse" {
		t.Fatalf("SystemInstruction = %+v, want 'be terse'", config.SystemInstruction)
	}
	if len(contents) != 2 {
		t.Fatalf("contents len = %d, want 2", len(contents))
	}
	if contents[1].Role != genai.RoleModel {
		t.Fatalf("contents[1].Role = %q, want model", contents[1].Role)
	}
	if config.MaxOutputTokens != 256 {
		t.Fatalf("MaxOutputTokens = %d, want 256", config.MaxOutputTokens)
	}
}
