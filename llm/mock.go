package llm

import (
	"context"
	"fmt"
	"sync"

	"github.com/m4xw311/steer/session"
)

// MockLLMClient replays scripted responses in order. Without a script it
// answers with a command that submits immediately.
type MockLLMClient struct {
	Responses []string
	// CostPerCall is added to Stats().Cost for every query.
	CostPerCall float64

	mu    sync.Mutex
	next  int
	stats Stats
}

func (m *MockLLMClient) Query(ctx context.Context, messages []session.Message) (session.Message, error) {
	if err := ctx.Err(); err != nil {
		return session.Message{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var content string
	switch {
	case len(m.Responses) == 0:
		content = "I am a mock model.\n\n```bash\necho COMPLETE_TASK_AND_SUBMIT_FINAL_OUTPUT\n```"
	case m.next < len(m.Responses):
		content = m.Responses[m.next]
		m.next++
	default:
		return session.Message{}, fmt.Errorf("mock model has no response left after %d calls", m.next)
	}
	m.stats.Calls++
	m.stats.Cost += m.CostPerCall
	return session.Message{Role: session.RoleAssistant, Content: content}, nil
}

func (m *MockLLMClient) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}
