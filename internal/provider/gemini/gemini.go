// Package gemini implements provider.Adapter over google.golang.org/genai's
// GenerateContentStream, grounded on the teacher's
// internal/agent/providers/google.go: the same client construction and
// Go 1.23 iterator stream loop, generalized to this module's
// text-and-marker protocol.
package gemini

import (
	"context"
	"errors"

	"google.golang.org/genai"

	"github.com/wrenlabs/gadgetrun/internal/provider"
	"github.com/wrenlabs/gadgetrun/internal/stream"
	"github.com/wrenlabs/gadgetrun/pkg/message"
)

type Config struct {
	APIKey string
}

type Adapter struct {
	client *genai.Client
}

func New(ctx context.Context, cfg Config) (*Adapter, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini: API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	return &Adapter{client: client}, nil
}

const descriptorPrefix = "gemini:"

func (a *Adapter) Supports(descriptor string) bool {
	return len(descriptor) > len(descriptorPrefix) && descriptor[:len(descriptorPrefix)] == descriptorPrefix
}

func (a *Adapter) ModelSpecs() []provider.ModelSpec {
	return []provider.ModelSpec{
		{
			ModelID: "gemini:gemini-2.0-flash", ContextWindow: 1048576, MaxOutputTokens: 8192,
			Pricing:  provider.Pricing{InputPerMToken: 0.1, OutputPerMToken: 0.4},
			Features: []string{"vision"},
		},
		{
			ModelID: "gemini:gemini-1.5-pro", ContextWindow: 2097152, MaxOutputTokens: 8192,
			Pricing:  provider.Pricing{InputPerMToken: 1.25, OutputPerMToken: 5},
			Features: []string{"vision"},
		},
	}
}

func (a *Adapter) CountTokens(messages []message.Message, model string) int {
	return provider.FallbackTokenEstimate(messages)
}

func modelID(descriptor string) string { return descriptor[len(descriptorPrefix):] }

func (a *Adapter) Stream(ctx context.Context, opts provider.GenerationOptions) (<-chan stream.Chunk, error) {
	contents, config := buildRequest(opts)

	out := make(chan stream.Chunk)
	go func() {
		defer close(out)
		for resp, err := range a.client.Models.GenerateContentStream(ctx, modelID(opts.Model), contents, config) {
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				out <- stream.Chunk{FinishReason: "error", RawEvent: err}
				return
			}
			if resp == nil {
				continue
			}
			for _, candidate := range resp.Candidates {
				if candidate == nil || candidate.Content == nil {
					continue
				}
				for _, part := range candidate.Content.Parts {
					if part != nil && part.Text != "" {
						out <- stream.Chunk{Text: part.Text, RawEvent: resp}
					}
				}
			}
			if resp.UsageMetadata != nil {
				out <- stream.Chunk{
					Usage: &stream.Usage{
						InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
						OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
						TotalTokens:  int(resp.UsageMetadata.TotalTokenCount),
					},
				}
			}
		}
		out <- stream.Chunk{FinishReason: "stop"}
	}()
	return out, nil
}

func buildRequest(opts provider.GenerationOptions) ([]*genai.Content, *genai.GenerateContentConfig) {
	config := &genai.GenerateContentConfig{}
	if opts.MaxTokens > 0 {
		config.MaxOutputTokens = int32(opts.MaxTokens)
	}
	if opts.Temperature > 0 {
		t := float32(opts.Temperature)
		config.Temperature = &t
	}

	var contents []*genai.Content
	for _, m := range opts.Messages {
		if m.Role == message.RoleSystem {
			config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: m.Flatten()}}}
			continue
		}
		role := genai.RoleUser
		if m.Role == message.RoleAssistant {
			role = genai.RoleModel
		}
		var parts []*genai.Part
		for _, p := range m.Parts {
			switch p.Type {
			case message.PartText:
				parts = append(parts, &genai.Part{Text: p.Text})
			case message.PartImage:
				parts = append(parts, &genai.Part{InlineData: &genai.Blob{MIMEType: p.MediaType, Data: []byte(p.Data)}})
			}
		}
		contents = append(contents, &genai.Content{Role: role, Parts: parts})
	}
	return contents, config
}
