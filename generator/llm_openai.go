package generator

import (
	"context"
	"errors"
	"strings"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAILLM implements LLMClient using the official openai-go SDK (chat completions).
// Any OpenAI-compatible endpoint works through BaseURL.
type OpenAILLM struct {
	Model    string
	Settings LLMSettings
	Opts     []option.RequestOption
}

func NewOpenAILLMFromConfig(cfg *LLMSettings) (*OpenAILLM, error) {
	if cfg == nil {
		return nil, errors.New("llm config is nil")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("openai api key missing; provide llm.api_key or llm.api_key_env")
	}
	if cfg.Model == "" {
		return nil, errors.New("llm model is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAILLM{Model: cfg.Model, Settings: *cfg, Opts: opts}, nil
}

func (o *OpenAILLM) params(prompt Prompt) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(prompt.System),
			openai.UserMessage(prompt.User),
		},
	}
	if o.Settings.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(o.Settings.MaxTokens))
	}
	if o.Settings.Temperature != nil {
		params.Temperature = openai.Float(*o.Settings.Temperature)
	}
	return params
}

func (o *OpenAILLM) Complete(ctx context.Context, prompt Prompt) (string, error) {
	ctx, cancel := withTimeout(ctx, o.Settings.Timeout)
	defer cancel()
	client := openai.NewClient(o.Opts...)

	resp, err := client.Chat.Completions.New(ctx, o.params(prompt))
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai: empty choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func (o *OpenAILLM) CompleteStream(ctx context.Context, prompt Prompt, onDelta func(chunk string)) (string, error) {
	ctx, cancel := withTimeout(ctx, o.Settings.Timeout)
	defer cancel()
	client := openai.NewClient(o.Opts...)

	stream := client.Chat.Completions.NewStreaming(ctx, o.params(prompt))
	defer stream.Close()

	var out strings.Builder
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		out.WriteString(delta)
		if onDelta != nil {
			onDelta(delta)
		}
	}
	if err := stream.Err(); err != nil {
		return "", err
	}
	if out.Len() == 0 {
		return "", errors.New("openai: empty stream")
	}
	return out.String(), nil
}
