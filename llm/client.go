package llm

import (
	"context"
	"sync"

	"github.com/m4xw311/steer/config"
	"github.com/m4xw311/steer/errors"
	"github.com/m4xw311/steer/session"
)

// Model is the interface for interacting with a Large Language Model.
type Model interface {
	Query(ctx context.Context, messages []session.Message) (session.Message, error)
	Stats() Stats
}

// Stats is the accumulated usage of a model over a session.
type Stats struct {
	Calls int
	Cost  float64
}

// meter counts calls and prices token usage. Providers embed it.
type meter struct {
	mu      sync.Mutex
	pricing config.Pricing
	stats   Stats
}

func (m *meter) record(inputTokens, outputTokens int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats.Calls++
	m.stats.Cost += float64(inputTokens)*m.pricing.InputPerMTok/1e6 +
		float64(outputTokens)*m.pricing.OutputPerMTok/1e6
}

func (m *meter) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// New creates the model named by cfg.LLMClient.
func New(ctx context.Context, cfg *config.Config) (Model, error) {
	switch cfg.LLMClient {
	case "gemini":
		return NewGeminiLLMClient(ctx, cfg.Model, cfg.Pricing)
	case "openai":
		return NewOpenAILLMClient(ctx, cfg.Model, cfg.Pricing)
	case "bedrock":
		return NewBedrockLLMClient(ctx, cfg.Model, cfg.Pricing)
	case "anthropic":
		return NewAnthropicLLMClient(ctx, cfg.Model, cfg.Pricing)
	case "", "mock":
		return &MockLLMClient{}, nil
	default:
		return nil, errors.New("unknown llm client '%s'", cfg.LLMClient)
	}
}

// splitSystem separates the system prompt (the last system message wins)
// from the conversation turns.
func splitSystem(messages []session.Message) (string, []session.Message) {
	var system string
	turns := make([]session.Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == session.RoleSystem {
			system = msg.Content
			continue
		}
		turns = append(turns, msg)
	}
	return system, turns
}
