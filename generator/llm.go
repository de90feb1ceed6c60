package generator

import (
	"context"
	"time"
)

// LLMClient is the completion service. Implementations own provider
// authentication, retries and timeouts.
type LLMClient interface {
	Complete(ctx context.Context, prompt Prompt) (string, error)
}

// StreamingLLMClient delivers the completion incrementally. onDelta is
// called for each chunk; the returned string is the full concatenation.
type StreamingLLMClient interface {
	LLMClient
	CompleteStream(ctx context.Context, prompt Prompt, onDelta func(chunk string)) (string, error)
}

// LLMSettings is the base configuration shared by provider clients.
type LLMSettings struct {
	Provider    string
	Model       string
	APIKey      string
	BaseURL     string
	MaxTokens   int
	Temperature *float64
	Timeout     time.Duration
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
