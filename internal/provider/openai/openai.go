// Package openai implements provider.Adapter over sashabaranov/go-openai's
// chat-completions streaming API, grounded on the teacher's
// internal/agent/providers/openai.go: retry-then-stream shape, same SDK,
// generalized to this module's text-and-marker protocol.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"

	openaisdk "github.com/sashabaranov/go-openai"

	"github.com/wrenlabs/gadgetrun/internal/backoff"
	"github.com/wrenlabs/gadgetrun/internal/provider"
	"github.com/wrenlabs/gadgetrun/internal/stream"
	"github.com/wrenlabs/gadgetrun/pkg/message"
)

type Config struct {
	APIKey  string
	BaseURL string
	Retry   backoff.Policy
}

type Adapter struct {
	client *openaisdk.Client
	retry  backoff.Policy
}

func New(cfg Config) (*Adapter, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: API key is required")
	}
	clientCfg := openaisdk.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	retry := cfg.Retry
	if retry.MaxAttempts == 0 {
		retry = backoff.DefaultPolicy()
	}
	return &Adapter{client: openaisdk.NewClientWithConfig(clientCfg), retry: retry}, nil
}

const descriptorPrefix = "openai:"

func (a *Adapter) Supports(descriptor string) bool {
	return len(descriptor) > len(descriptorPrefix) && descriptor[:len(descriptorPrefix)] == descriptorPrefix
}

func (a *Adapter) ModelSpecs() []provider.ModelSpec {
	return []provider.ModelSpec{
		{
			ModelID: "openai:gpt-4o", ContextWindow: 128000, MaxOutputTokens: 16384,
			Pricing:  provider.Pricing{InputPerMToken: 2.5, OutputPerMToken: 10, CachedInputPerMToken: 1.25},
			Features: []string{"vision"},
		},
		{
			ModelID: "openai:gpt-4o-mini", ContextWindow: 128000, MaxOutputTokens: 16384,
			Pricing:  provider.Pricing{InputPerMToken: 0.15, OutputPerMToken: 0.6, CachedInputPerMToken: 0.075},
			Features: []string{"vision"},
		},
		{
			ModelID: "openai:o1", ContextWindow: 200000, MaxOutputTokens: 100000,
			Pricing: provider.Pricing{InputPerMToken: 15, OutputPerMToken: 60},
		},
	}
}

func (a *Adapter) CountTokens(messages []message.Message, model string) int {
	return provider.FallbackTokenEstimate(messages)
}

func modelID(descriptor string) string { return descriptor[len(descriptorPrefix):] }

func (a *Adapter) Stream(ctx context.Context, opts provider.GenerationOptions) (<-chan stream.Chunk, error) {
	req := openaisdk.ChatCompletionRequest{
		Model:         modelID(opts.Model),
		Messages:      convertMessages(opts.Messages),
		Stream:        true,
		StreamOptions: &openaisdk.StreamOptions{IncludeUsage: true},
	}
	if opts.MaxTokens > 0 {
		req.MaxTokens = opts.MaxTokens
	}
	if opts.Temperature > 0 {
		req.Temperature = float32(opts.Temperature)
	}

	var sdkStream *openaisdk.ChatCompletionStream
	err := backoff.Retry(ctx, a.retry, provider.IsRetryableError, func(ctx context.Context) error {
		s, err := a.client.CreateChatCompletionStream(ctx, req)
		if err != nil {
			return err
		}
		sdkStream = s
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}

	out := make(chan stream.Chunk)
	go processStream(sdkStream, out)
	return out, nil
}

func convertMessages(messages []message.Message) []openaisdk.ChatCompletionMessage {
	var out []openaisdk.ChatCompletionMessage
	for _, m := range messages {
		role := openaisdk.ChatMessageRoleUser
		switch m.Role {
		case message.RoleSystem:
			role = openaisdk.ChatMessageRoleSystem
		case message.RoleAssistant:
			role = openaisdk.ChatMessageRoleAssistant
		}
		out = append(out, openaisdk.ChatCompletionMessage{Role: role, Content: m.Flatten()})
	}
	return out
}

func processStream(s *openaisdk.ChatCompletionStream, out chan<- stream.Chunk) {
	defer close(out)
	defer s.Close()

	var finishReason string
	for {
		resp, err := s.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			out <- stream.Chunk{FinishReason: "error", RawEvent: err}
			return
		}
		if resp.Usage != nil {
			out <- stream.Chunk{
				FinishReason: finishReason,
				Usage: &stream.Usage{
					InputTokens:  resp.Usage.PromptTokens,
					OutputTokens: resp.Usage.CompletionTokens,
					TotalTokens:  resp.Usage.TotalTokens,
				},
				RawEvent: resp,
			}
			continue
		}
		if len(resp.Choices) == 0 {
			continue
		}
		choice := resp.Choices[0]
		if choice.Delta.Content != "" {
			out <- stream.Chunk{Text: choice.Delta.Content, RawEvent: resp}
		}
		if choice.FinishReason != "" {
			finishReason = string(choice.FinishReason)
		}
	}
}
