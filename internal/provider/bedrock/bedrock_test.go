package bedrock

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/wrenlabs/gadgetrun/internal/provider"
	"github.com/wrenlabs/gadgetrun/pkg/message"
)

func TestSupportsMatchesDescriptorPrefix(t *testing.T) {
	a := &Adapter{}
	if !a.Supports("bedrock:anthropic.claude-3-sonnet-20240229-v1:0") {
		t.Fatal("expected adapter to support a bedrock: descriptor")
	}
	if a.Supports("anthropic:claude-sonnet-4-20250514") {
		t.Fatal("expected adapter to reject a non-bedrock descriptor")
	}
}

func TestBuildRequestSplitsSystemAndMapsRoles(t *testing.T) {
	opts := provider.GenerationOptions{
		Model: "bedrock:anthropic.claude-3-sonnet-20240229-v1:0",
		Messages: []message.Message{
			message.NewText(message.RoleSystem, "be terse"),
			message.NewText(message.RoleUser, "hi"),
			message.NewText(message.RoleAssistant, "hello"),
		},
		MaxTokens: 512,
	}

	req := buildRequest(opts)

	if len(req.System) != 1 {
		t.Fatalf("System len = %d, want 1", len(req.System))
	}
	textBlock, ok := req.System[0].(*types.SystemContentBlockMemberText)
	if !ok || textBlock.Value != "be terse" {
		t.Fatalf("System[0] = %+v, want text block 'be terse'", req.System[0])
	}
	if len(req.Messages) != 2 {
		t.Fatalf("Messages len = %d, want 2", len(req.Messages))
	}
	if req.Messages[1].Role != types.ConversationRoleAssistant {
		t.Fatalf("Messages[1].Role = %q, want assistant", req.Messages[1].Role)
	}
	if aws.ToString(req.ModelId) != "anthropic.claude-3-sonnet-20240229-v1:0" {
		t.Fatalf("ModelId = %q, want provider prefix stripped", aws.ToString(req.ModelId))
	}
	if aws.ToInt32(req.InferenceConfig.MaxTokens) != 512 {
		t.Fatalf("MaxTokens = %d, want 512", aws.ToInt32(req.InferenceConfig.MaxTokens))
	}
}
