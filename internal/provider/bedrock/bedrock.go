// Package bedrock implements provider.Adapter over aws-sdk-go-v2's
// bedrockruntime ConverseStream API, grounded on the teacher's
// internal/agent/providers/bedrock.go: AWS config loading, ConverseStream
// event loop, generalized to this module's text-and-marker protocol. Used to
// reach Anthropic/Titan/Llama/Mistral/Cohere models hosted on Bedrock under
// one AWS credential chain.
package bedrock

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/wrenlabs/gadgetrun/internal/backoff"
	"github.com/wrenlabs/gadgetrun/internal/provider"
	"github.com/wrenlabs/gadgetrun/internal/stream"
	"github.com/wrenlabs/gadgetrun/pkg/message"
)

type Config struct {
	Region string
	Retry  backoff.Policy
}

type Adapter struct {
	client *bedrockruntime.Client
	retry  backoff.Policy
}

func New(ctx context.Context, cfg Config) (*Adapter, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("bedrock: failed to load AWS config: %w", err)
	}
	retry := cfg.Retry
	if retry.MaxAttempts == 0 {
		retry = backoff.DefaultPolicy()
	}
	return &Adapter{client: bedrockruntime.NewFromConfig(awsCfg), retry: retry}, nil
}

const descriptorPrefix = "bedrock:"

func (a *Adapter) Supports(descriptor string) bool {
	return len(descriptor) > len(descriptorPrefix) && descriptor[:len(descriptorPrefix)] == descriptorPrefix
}

func (a *Adapter) ModelSpecs() []provider.ModelSpec {
	return []provider.ModelSpec{
		{ModelID: "bedrock:anthropic.claude-3-sonnet-20240229-v1:0", ContextWindow: 200000, Pricing: provider.Pricing{InputPerMToken: 3, OutputPerMToken: 15}, Features: []string{"vision"}},
		{ModelID: "bedrock:anthropic.claude-3-haiku-20240307-v1:0", ContextWindow: 200000, Pricing: provider.Pricing{InputPerMToken: 0.25, OutputPerMToken: 1.25}, Features: []string{"vision"}},
		{ModelID: "bedrock:amazon.titan-text-express-v1", ContextWindow: 8192, Pricing: provider.Pricing{InputPerMToken: 0.2, OutputPerMToken: 0.6}},
		{ModelID: "bedrock:meta.llama3-70b-instruct-v1:0", ContextWindow: 8192, Pricing: provider.Pricing{InputPerMToken: 2.65, OutputPerMToken: 3.5}},
	}
}

func (a *Adapter) CountTokens(messages []message.Message, model string) int {
	return provider.FallbackTokenEstimate(messages)
}

func modelID(descriptor string) string { return descriptor[len(descriptorPrefix):] }

func (a *Adapter) Stream(ctx context.Context, opts provider.GenerationOptions) (<-chan stream.Chunk, error) {
	req := buildRequest(opts)

	var output *bedrockruntime.ConverseStreamOutput
	err := backoff.Retry(ctx, a.retry, provider.IsRetryableError, func(ctx context.Context) error {
		out, err := a.client.ConverseStream(ctx, req)
		if err != nil {
			return err
		}
		output = out
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("bedrock: %w", err)
	}

	out := make(chan stream.Chunk)
	go processStream(output, out)
	return out, nil
}

func buildRequest(opts provider.GenerationOptions) *bedrockruntime.ConverseStreamInput {
	var system []types.SystemContentBlock
	var messages []types.Message
	for _, m := range opts.Messages {
		if m.Role == message.RoleSystem {
			system = append(system, &types.SystemContentBlockMemberText{Value: m.Flatten()})
			continue
		}
		role := types.ConversationRoleUser
		if m.Role == message.RoleAssistant {
			role = types.ConversationRoleAssistant
		}
		var content []types.ContentBlock
		if text := m.Flatten(); text != "" {
			content = append(content, &types.ContentBlockMemberText{Value: text})
		}
		messages = append(messages, types.Message{Role: role, Content: content})
	}

	req := &bedrockruntime.ConverseStreamInput{
		ModelId:  aws.String(modelID(opts.Model)),
		Messages: messages,
	}
	if len(system) > 0 {
		req.System = system
	}
	if opts.MaxTokens > 0 {
		req.InferenceConfig = &types.InferenceConfiguration{MaxTokens: aws.Int32(int32(opts.MaxTokens))}
	}
	return req
}

func processStream(output *bedrockruntime.ConverseStreamOutput, out chan<- stream.Chunk) {
	defer close(out)

	eventStream := output.GetStream()
	defer eventStream.Close()

	var inputTokens, outputTokens int

	for event := range eventStream.Events() {
		switch ev := event.(type) {
		case *types.ConverseStreamOutputMemberContentBlockDelta:
			if textDelta, ok := ev.Value.Delta.(*types.ContentBlockDeltaMemberText); ok && textDelta.Value != "" {
				out <- stream.Chunk{Text: textDelta.Value, RawEvent: ev}
			}
		case *types.ConverseStreamOutputMemberMetadata:
			if ev.Value.Usage != nil {
				inputTokens = int(aws.ToInt32(ev.Value.Usage.InputTokens))
				outputTokens = int(aws.ToInt32(ev.Value.Usage.OutputTokens))
			}
		}
	}

	if err := eventStream.Err(); err != nil {
		out <- stream.Chunk{FinishReason: "error", RawEvent: err}
		return
	}
	out <- stream.Chunk{
		FinishReason: "stop",
		Usage: &stream.Usage{
			InputTokens:  inputTokens,
			OutputTokens: outputTokens,
			TotalTokens:  inputTokens + outputTokens,
		},
	}
}
