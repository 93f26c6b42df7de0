// Package anthropic implements provider.Adapter for Anthropic's Claude API,
// grounded on the teacher's internal/agent/providers/anthropic.go: the same
// anthropic-sdk-go client and ssestream event loop, generalized from the
// teacher's tool-calling request/response types to this module's
// text-and-marker protocol (the adapter streams raw text and thinking
// deltas; gadget calls are parsed out of that text downstream, not passed in
// as provider-native tool definitions). Stream makes a single attempt: a
// stream error arrives as a terminal "error" chunk and is not retried, and
// Config.Retry is stored but not consulted.
package anthropic

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/wrenlabs/gadgetrun/internal/backoff"
	"github.com/wrenlabs/gadgetrun/internal/provider"
	"github.com/wrenlabs/gadgetrun/internal/stream"
	"github.com/wrenlabs/gadgetrun/pkg/message"
)

// Config configures an Adapter.
type Config struct {
	APIKey  string
	BaseURL string
	Retry   backoff.Policy
}

// Adapter implements provider.Adapter for Anthropic models, reached through
// the "anthropic:" descriptor prefix.
type Adapter struct {
	client anthropic.Client
	retry  backoff.Policy
}

// New creates an Adapter. APIKey is required.
func New(cfg Config) (*Adapter, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	retry := cfg.Retry
	if retry.MaxAttempts == 0 {
		retry = backoff.DefaultPolicy()
	}
	return &Adapter{client: anthropic.NewClient(opts...), retry: retry}, nil
}

const descriptorPrefix = "anthropic:"

func (a *Adapter) Supports(descriptor string) bool {
	return len(descriptor) > len(descriptorPrefix) && descriptor[:len(descriptorPrefix)] == descriptorPrefix
}

func (a *Adapter) ModelSpecs() []provider.ModelSpec {
	return []provider.ModelSpec{
		{
			ModelID: "anthropic:claude-opus-4-20250514", ContextWindow: 200000, MaxOutputTokens: 32000,
			Pricing:  provider.Pricing{InputPerMToken: 15, OutputPerMToken: 75, CachedInputPerMToken: 1.5, CacheWriteInputPerMToken: 18.75},
			Features: []string{"vision", "thinking"},
		},
		{
			ModelID: "anthropic:claude-sonnet-4-20250514", ContextWindow: 200000, MaxOutputTokens: 64000,
			Pricing:  provider.Pricing{InputPerMToken: 3, OutputPerMToken: 15, CachedInputPerMToken: 0.3, CacheWriteInputPerMToken: 3.75},
			Features: []string{"vision", "thinking"},
		},
		{
			ModelID: "anthropic:claude-3-5-sonnet-20241022", ContextWindow: 200000, MaxOutputTokens: 8192,
			Pricing:  provider.Pricing{InputPerMToken: 3, OutputPerMToken: 15, CachedInputPerMToken: 0.3, CacheWriteInputPerMToken: 3.75},
			Features: []string{"vision"},
		},
		{
			ModelID: "anthropic:claude-3-haiku-20240307", ContextWindow: 200000, MaxOutputTokens: 4096,
			Pricing:  provider.Pricing{InputPerMToken: 0.25, OutputPerMToken: 1.25},
			Features: []string{"vision"},
		},
	}
}

func (a *Adapter) CountTokens(messages []message.Message, model string) int {
	return provider.FallbackTokenEstimate(messages)
}

func modelID(descriptor string) string {
	return descriptor[len(descriptorPrefix):]
}

func (a *Adapter) Stream(ctx context.Context, opts provider.GenerationOptions) (<-chan stream.Chunk, error) {
	params, err := buildParams(opts)
	if err != nil {
		return nil, fmt.Errorf("anthropic: %w", err)
	}

	sseStream := a.client.Messages.NewStreaming(ctx, params)
	out := make(chan stream.Chunk)
	go processStream(sseStream, out)
	return out, nil
}

func buildParams(opts provider.GenerationOptions) (anthropic.MessageNewParams, error) {
	var system []anthropic.TextBlockParam
	var msgs []anthropic.MessageParam
	for _, m := range opts.Messages {
		if m.Role == message.RoleSystem {
			system = append(system, anthropic.TextBlockParam{Text: m.Flatten()})
			continue
		}
		blocks, err := convertParts(m.Parts)
		if err != nil {
			return anthropic.MessageNewParams{}, err
		}
		if m.Role == message.RoleAssistant {
			msgs = append(msgs, anthropic.NewAssistantMessage(blocks...))
		} else {
			msgs = append(msgs, anthropic.NewUserMessage(blocks...))
		}
	}

	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(modelID(opts.Model)),
		Messages:  msgs,
		MaxTokens: int64(maxTokens),
	}
	if len(system) > 0 {
		params.System = system
	}
	if opts.Temperature > 0 {
		params.Temperature = anthropic.Float(opts.Temperature)
	}
	return params, nil
}

func convertParts(parts []message.Part) ([]anthropic.ContentBlockParamUnion, error) {
	var blocks []anthropic.ContentBlockParamUnion
	for _, p := range parts {
		switch p.Type {
		case message.PartText:
			blocks = append(blocks, anthropic.NewTextBlock(p.Text))
		case message.PartImage:
			blocks = append(blocks, anthropic.NewImageBlockBase64(p.MediaType, p.Data))
		default:
			return nil, fmt.Errorf("unsupported part type %q", p.Type)
		}
	}
	return blocks, nil
}

// processStream translates Anthropic SSE events into stream.Chunk, closing
// out when the stream ends (message_stop or a terminal error).
func processStream(s *ssestream.Stream[anthropic.MessageStreamEventUnion], out chan<- stream.Chunk) {
	defer close(out)

	var inputTokens, outputTokens, cacheCreation, cacheRead int64

	for s.Next() {
		event := s.Current()
		switch event.Type {
		case "message_start":
			ms := event.AsMessageStart()
			inputTokens = ms.Message.Usage.InputTokens
			cacheCreation = ms.Message.Usage.CacheCreationInputTokens
			cacheRead = ms.Message.Usage.CacheReadInputTokens

		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				if delta.Text != "" {
					out <- stream.Chunk{Text: delta.Text, RawEvent: event}
				}
			case "thinking_delta":
				if delta.Thinking != "" {
					out <- stream.Chunk{Thinking: delta.Thinking, RawEvent: event}
				}
			}

		case "message_delta":
			md := event.AsMessageDelta()
			if md.Usage.OutputTokens > 0 {
				outputTokens = md.Usage.OutputTokens
			}

		case "message_stop":
			out <- stream.Chunk{
				FinishReason: "stop",
				Usage: &stream.Usage{
					InputTokens:              int(inputTokens),
					OutputTokens:             int(outputTokens),
					TotalTokens:              int(inputTokens + outputTokens),
					CachedInputTokens:        int(cacheRead),
					CacheCreationInputTokens: int(cacheCreation),
				},
				RawEvent: event,
			}
			return
		}
	}
	if err := s.Err(); err != nil {
		out <- stream.Chunk{FinishReason: "error", RawEvent: err}
	}
}
