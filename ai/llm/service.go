// Package llm is the chat completion client with transient-failure
// retry.
package llm

import (
	"context"

	openai "github.com/sashabaranov/go-openai"
	"github.com/pkg/errors"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a completion request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Completer produces a completion for a sequence of turns.
// Implementations must be safe for concurrent use.
type Completer interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// DefaultTemperature applies when no temperature is configured.
const DefaultTemperature = 0.7

// Service is the OpenAI-compatible completion client.
type Service struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
}

// NewService creates a completion client. endpoint may be empty for the
// default API host; temperature <= 0 selects the default; maxTokens 0
// leaves the limit to the upstream service.
func NewService(endpoint, apiKey, model string, temperature float32, maxTokens int) *Service {
	config := openai.DefaultConfig(apiKey)
	if endpoint != "" {
		config.BaseURL = endpoint
	}
	if temperature <= 0 {
		temperature = DefaultTemperature
	}
	return &Service{
		client:      openai.NewClientWithConfig(config),
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
	}
}

// Complete sends the turns to the model and returns the reply text.
// Transient upstream failures are retried; the returned error is a
// *CompletionFailed carrying the failure class when retries run out or
// the failure is terminal.
func (s *Service) Complete(ctx context.Context, messages []Message) (string, error) {
	chatMessages := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		chatMessages = append(chatMessages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	var content string
	err := withRetry(ctx, func(ctx context.Context) error {
		resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       s.model,
			Messages:    chatMessages,
			Temperature: s.temperature,
			MaxTokens:   s.maxTokens,
		})
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return errors.New("completion response empty")
		}
		content = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return "", err
	}
	return content, nil
}
