package llm

import (
	"context"
	"os"

	"github.com/google/generative-ai-go/genai"
	"github.com/m4xw311/steer/config"
	"github.com/m4xw311/steer/errors"
	"github.com/m4xw311/steer/session"
	"google.golang.org/api/option"
)

// GeminiLLMClient is a client for the Google Gemini API.
type GeminiLLMClient struct {
	meter
	model *genai.GenerativeModel
}

// NewGeminiLLMClient creates a new GeminiLLMClient.
// It requires the GEMINI_API_KEY environment variable to be set.
func NewGeminiLLMClient(ctx context.Context, modelName string, pricing config.Pricing) (*GeminiLLMClient, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return nil, errors.New("GEMINI_API_KEY environment variable not set")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create genai client")
	}

	return &GeminiLLMClient{
		meter: meter{pricing: pricing},
		model: client.GenerativeModel(modelName),
	}, nil
}

// Query sends the conversation to the Gemini API. The last turn is sent as
// the new message, the rest as chat history.
func (g *GeminiLLMClient) Query(ctx context.Context, messages []session.Message) (session.Message, error) {
	systemPrompt, turns := splitSystem(messages)
	if len(turns) == 0 {
		return session.Message{}, errors.New("no messages to send to Gemini")
	}
	if systemPrompt != "" {
		g.model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemPrompt)}}
	}

	history := convertMessagesToGeminiContent(turns)
	lastMessage := history[len(history)-1]

	chatSession := g.model.StartChat()
	chatSession.History = history[:len(history)-1]
	resp, err := chatSession.SendMessage(ctx, lastMessage.Parts...)
	if err != nil {
		return session.Message{}, errors.Wrapf(err, "failed to send message to Gemini")
	}
	if resp.UsageMetadata != nil {
		g.record(int64(resp.UsageMetadata.PromptTokenCount), int64(resp.UsageMetadata.CandidatesTokenCount))
	} else {
		g.record(0, 0)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return session.Message{}, errors.New("received an empty response from Gemini")
	}
	var content string
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			content += string(text)
		}
	}
	return session.Message{Role: session.RoleAssistant, Content: content}, nil
}

// convertMessagesToGeminiContent converts our internal message format to Gemini's.
func convertMessagesToGeminiContent(messages []session.Message) []*genai.Content {
	var contents []*genai.Content
	for _, msg := range messages {
		role := "user"
		if msg.Role == session.RoleAssistant {
			role = "model"
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(msg.Content)},
		})
	}
	return contents
}
