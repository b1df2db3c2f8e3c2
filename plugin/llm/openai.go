package llm

import (
	"context"
	"log/slog"
	"time"

	"github.com/sashabaranov/go-openai"
)

// OpenAIConfig holds the configuration for an OpenAI-compatible provider.
type OpenAIConfig struct {
	BaseURL      string
	APIKey       string
	Model        string
	Temperature  float32
	MaxTokens    int
	MaxRetries   int
	RetryBackoff time.Duration
}

// OpenAIClient is a Generator backed by an OpenAI-compatible endpoint.
// Single-model providers have no candidate list; transient failures are
// retried with exponential backoff and everything else is terminal.
type OpenAIClient struct {
	client *openai.Client
	config *OpenAIConfig
}

// NewOpenAIClient creates an OpenAI-compatible client.
func NewOpenAIClient(cfg *OpenAIConfig) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, &GenerateError{Kind: KindNoCredential}
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = time.Second
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(clientConfig),
		config: cfg,
	}, nil
}

// Send implements Generator with the same speculative-append and rollback
// semantics as the Gemini client.
func (c *OpenAIClient) Send(ctx context.Context, conv *Conversation, userText string) (string, error) {
	mark := conv.Len()
	conv.append(Message{Role: RoleUser, Text: userText})

	reply, err := c.chatWithRetry(ctx, conv.messages)
	if err != nil {
		conv.truncate(mark)
		return "", err
	}

	conv.append(Message{Role: RoleModel, Text: reply})
	return reply, nil
}

func (c *OpenAIClient) chatWithRetry(ctx context.Context, messages []Message) (string, error) {
	backoff := c.config.RetryBackoff
	var lastErr error
	for attempt := 0; attempt < c.config.MaxRetries; attempt++ {
		reply, err := c.chat(ctx, messages)
		if err == nil {
			return reply, nil
		}
		lastErr = err

		if attempt < c.config.MaxRetries-1 {
			slog.Debug("chat request failed, retrying",
				"attempt", attempt+1,
				"wait_time", backoff,
				"error", err)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", &GenerateError{Kind: KindNetworkFailure, Model: c.config.Model, Err: ctx.Err()}
			}
			backoff *= 2
		}
	}
	return "", lastErr
}

func (c *OpenAIClient) chat(ctx context.Context, messages []Message) (string, error) {
	chatMessages := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		role := openai.ChatMessageRoleUser
		if m.Role == RoleModel {
			role = openai.ChatMessageRoleAssistant
		}
		chatMessages = append(chatMessages, openai.ChatCompletionMessage{
			Role:    role,
			Content: m.Text,
		})
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.config.Model,
		Messages:    chatMessages,
		Temperature: c.config.Temperature,
		MaxTokens:   c.config.MaxTokens,
	})
	if err != nil {
		return "", &GenerateError{Kind: KindNetworkFailure, Model: c.config.Model, Err: err}
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", &GenerateError{Kind: KindEmptyReply, Model: c.config.Model}
	}
	return resp.Choices[0].Message.Content, nil
}

var _ Generator = (*OpenAIClient)(nil)
