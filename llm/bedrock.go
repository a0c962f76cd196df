package llm

import (
	"context"
	"encoding/json"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/m4xw311/steer/config"
	"github.com/m4xw311/steer/errors"
	"github.com/m4xw311/steer/session"
)

// BedrockLLMClient is a client for the Anthropic models on AWS Bedrock.
type BedrockLLMClient struct {
	meter
	client  *bedrockruntime.Client
	modelID string
}

// NewBedrockLLMClient creates a new BedrockLLMClient.
// It requires AWS credentials to be configured in the environment.
func NewBedrockLLMClient(ctx context.Context, modelID string, pricing config.Pricing) (*BedrockLLMClient, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load AWS config")
	}
	if cfg.Region == "" {
		cfg.Region = os.Getenv("AWS_DEFAULT_REGION")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	var opts []func(*bedrockruntime.Options)
	// Custom endpoint, useful for testing
	if endpoint := os.Getenv("BEDROCK_ENDPOINT_URL"); endpoint != "" {
		opts = append(opts, func(o *bedrockruntime.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
	}

	return &BedrockLLMClient{
		meter:   meter{pricing: pricing},
		client:  bedrockruntime.NewFromConfig(cfg, opts...),
		modelID: modelID,
	}, nil
}

// Query sends the conversation to the Anthropic model via AWS Bedrock.
func (b *BedrockLLMClient) Query(ctx context.Context, messages []session.Message) (session.Message, error) {
	requestBody, err := createBedrockRequest(messages)
	if err != nil {
		return session.Message{}, errors.Wrapf(err, "failed to create Anthropic request")
	}

	resp, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(b.modelID),
		ContentType: aws.String("application/json"),
		Body:        requestBody,
	})
	if err != nil {
		return session.Message{}, errors.Wrapf(err, "failed to invoke Bedrock model")
	}

	msg, usage, err := processBedrockResponse(resp.Body)
	if err != nil {
		return session.Message{}, err
	}
	b.record(usage.InputTokens, usage.OutputTokens)
	return msg, nil
}

type bedrockContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type bedrockMessage struct {
	Role    string           `json:"role"`
	Content []bedrockContent `json:"content"`
}

type bedrockRequest struct {
	AnthropicVersion string           `json:"anthropic_version"`
	MaxTokens        int              `json:"max_tokens"`
	System           string           `json:"system,omitempty"`
	Messages         []bedrockMessage `json:"messages"`
}

type bedrockUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

type bedrockResponse struct {
	Content []bedrockContent `json:"content"`
	Usage   bedrockUsage     `json:"usage"`
	Error   any              `json:"error,omitempty"`
}

// createBedrockRequest creates the request body for Anthropic models on Bedrock.
func createBedrockRequest(messages []session.Message) ([]byte, error) {
	systemPrompt, turns := splitSystem(messages)
	request := bedrockRequest{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        4096,
		System:           systemPrompt,
	}
	for _, msg := range turns {
		role := "user"
		if msg.Role == session.RoleAssistant {
			role = "assistant"
		}
		request.Messages = append(request.Messages, bedrockMessage{
			Role:    role,
			Content: []bedrockContent{{Type: "text", Text: msg.Content}},
		})
	}
	return json.Marshal(request)
}

// processBedrockResponse converts a Bedrock API response into our internal session.Message format.
func processBedrockResponse(body []byte) (session.Message, bedrockUsage, error) {
	var response bedrockResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return session.Message{}, bedrockUsage{}, errors.Wrapf(err, "failed to unmarshal Bedrock response")
	}
	if response.Error != nil {
		return session.Message{}, bedrockUsage{}, errors.New("Bedrock API error: %v", response.Error)
	}

	var content string
	for _, item := range response.Content {
		if item.Type == "text" {
			content += item.Text
		}
	}
	return session.Message{Role: session.RoleAssistant, Content: content}, response.Usage, nil
}
