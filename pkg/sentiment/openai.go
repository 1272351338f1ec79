package sentiment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const systemPrompt = `You classify public-service feedback written in Indonesian or English.
Answer with exactly one word: Negative, Neutral or Positive.`

// OpenAIConfig configures the chat-completion backend.
type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// DefaultOpenAIConfig returns the model and timeout used when unset.
func DefaultOpenAIConfig() OpenAIConfig {
	return OpenAIConfig{
		Model:   openai.GPT4oMini,
		Timeout: 30 * time.Second,
	}
}

// OpenAIClient classifies text with a chat completion constrained to the three
// labels. The API reports no class probabilities, so Confidence is 1.
type OpenAIClient struct {
	client *openai.Client
	config OpenAIConfig
}

// NewOpenAIClient creates a client. An empty BaseURL uses the public API.
func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: API key is required")
	}
	def := DefaultOpenAIConfig()
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIClient{client: openai.NewClientWithConfig(clientCfg), config: cfg}, nil
}

// Classify asks the model for a single label.
func (c *OpenAIClient) Classify(ctx context.Context, text string) (Prediction, error) {
	apiCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(apiCtx, openai.ChatCompletionRequest{
		Model:       c.config.Model,
		Temperature: 0,
		MaxTokens:   4,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
	})
	if err != nil {
		return Prediction{}, fmt.Errorf("openai: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Prediction{}, errors.New("openai: empty response")
	}

	answer := strings.Fields(resp.Choices[0].Message.Content)
	if len(answer) == 0 {
		return Prediction{}, errors.New("openai: blank answer")
	}
	label, err := ParseLabel(answer[0])
	if err != nil {
		return Prediction{}, fmt.Errorf("openai: %w", err)
	}
	return Prediction{Label: label, Confidence: 1}, nil
}
