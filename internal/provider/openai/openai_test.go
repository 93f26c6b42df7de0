package openai

import (
	"testing"

	openaisdk "github.com/sashabaranov/go-openai"

	"github.com/wrenlabs/gadgetrun/pkg/message"
)

func TestNewRequiresAPIKey(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error for empty API key")
	}
}

func TestSupportsMatchesDescriptorPrefix(t *testing.T) {
	a := &Adapter{}
	if !a.Supports("openai:gpt-4o") {
		t.Fatal("expected adapter to support an openai: descriptor")
	}
	if a.Supports("anthropic:claude-sonnet-4-20250514") {
		t.Fatal("expected adapter to reject a non-openai descriptor")
	}
}

func TestConvertMessagesMapsRoles(t *testing.T) {
	out := convertMessages([]message.Message{
		message.NewText(message.RoleSystem, "be terse"),
		message.NewText(message.RoleUser, "hi"),
		message.NewText(message.RoleAssistant, "hello"),
	})

	if len(out) != 3 {
		t.Fatalf("len = %d, want 3", len(out))
	}
	wantRoles := []string{openaisdk.ChatMessageRoleSystem, openaisdk.ChatMessageRoleUser, openaisdk.ChatMessageRoleAssistant}
	for i, want := range wantRoles {
		if out[i].Role != want {
			t.Fatalf("out[%d].Role = %q, want %q", i, out[i].Role, want)
		}
	}
}

func TestModelIDStripsProviderPrefix(t *testing.T) {
	if got := modelID("openai:gpt-4o-mini"); got != "gpt-4o-mini" {
		t.Fatalf("modelID = %q, want gpt-4o-mini", got)
	}
}
