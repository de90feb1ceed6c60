package generator

import (
	"context"
	"errors"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	aoption "github.com/anthropics/anthropic-sdk-go/option"
)

const anthropicDefaultMaxTokens = 4096

// AnthropicLLM implements LLMClient on the Anthropic Messages API.
type AnthropicLLM struct {
	Model    string
	Settings LLMSettings
	client   anthropic.Client
}

func NewAnthropicLLMFromConfig(cfg *LLMSettings) (*AnthropicLLM, error) {
	if cfg == nil {
		return nil, errors.New("llm config is nil")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("anthropic api key missing; provide llm.api_key or llm.api_key_env")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("llm model is required")
	}
	opts := []aoption.RequestOption{aoption.WithAPIKey(strings.TrimSpace(cfg.APIKey))}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, aoption.WithBaseURL(strings.TrimSpace(cfg.BaseURL)))
	}
	return &AnthropicLLM{
		Model:    strings.TrimSpace(cfg.Model),
		Settings: *cfg,
		client:   anthropic.NewClient(opts...),
	}, nil
}

func (a *AnthropicLLM) params(prompt Prompt) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.Model),
		MaxTokens: anthropicDefaultMaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt.User)),
		},
	}
	if a.Settings.MaxTokens > 0 {
		params.MaxTokens = int64(a.Settings.MaxTokens)
	}
	if a.Settings.Temperature != nil {
		params.Temperature = anthropic.Float(*a.Settings.Temperature)
	}
	if strings.TrimSpace(prompt.System) != "" {
		params.System = []anthropic.TextBlockParam{{Text: prompt.System}}
	}
	return params
}

func (a *AnthropicLLM) Complete(ctx context.Context, prompt Prompt) (string, error) {
	ctx, cancel := withTimeout(ctx, a.Settings.Timeout)
	defer cancel()

	msg, err := a.client.Messages.New(ctx, a.params(prompt))
	if err != nil {
		return "", err
	}
	var out strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	if out.Len() == 0 {
		return "", errors.New("anthropic: no text content")
	}
	return out.String(), nil
}

func (a *AnthropicLLM) CompleteStream(ctx context.Context, prompt Prompt, onDelta func(chunk string)) (string, error) {
	ctx, cancel := withTimeout(ctx, a.Settings.Timeout)
	defer cancel()

	stream := a.client.Messages.NewStreaming(ctx, a.params(prompt))
	defer stream.Close()

	var out strings.Builder
	for stream.Next() {
		event := stream.Current()
		variant, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent)
		if !ok {
			continue
		}
		delta, ok := variant.Delta.AsAny().(anthropic.TextDelta)
		if !ok || delta.Text == "" {
			continue
		}
		out.WriteString(delta.Text)
		if onDelta != nil {
			onDelta(delta.Text)
		}
	}
	if err := stream.Err(); err != nil {
		return "", err
	}
	if out.Len() == 0 {
		return "", errors.New("anthropic: empty stream")
	}
	return out.String(), nil
}
