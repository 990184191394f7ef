package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/charlesng35/cveintel/pkg/logger"
)

const (
	// DefaultOpenAIBaseURL is the public OpenAI API root.
	DefaultOpenAIBaseURL = "https://api.openai.com/v1"
	// DefaultModel is used when no model is configured.
	DefaultModel   = "gpt-4o-mini"
	defaultTimeout = 60 * time.Second
)

// ErrNoContent is returned when the provider answers without any generated text.
var ErrNoContent = errors.New("llm: no content in response")

// ProviderError reports a failed chat completion call with the provider's HTTP status.
type ProviderError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("llm: request failed: %v", e.Err)
	}
	return fmt.Sprintf("llm: provider returned status %d: %s", e.StatusCode, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// OpenAIConfig configures an OpenAI-compatible chat completions endpoint.
type OpenAIConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// OpenAIClient implements Generator against the chat completions API.
type OpenAIClient struct {
	client *openai.Client
	apiKey string
	model  string
	log    *zap.Logger
}

// NewOpenAIClient creates a chat completions client. Requests go through an otelhttp
// transport so generations show up in traces next to provider calls.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultOpenAIBaseURL
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	apiKey := strings.TrimSpace(cfg.APIKey)

	clientCfg := openai.DefaultConfig(apiKey)
	clientCfg.BaseURL = base
	clientCfg.HTTPClient = &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(clientCfg),
		apiKey: apiKey,
		model:  model,
		log:    logger.WithModule("llm.openai"),
	}
}

// Generate sends the system prompt, history and prompt as one chat completion request.
func (c *OpenAIClient) Generate(ctx context.Context, prompt string, history []Message, opts GenerateOptions) (*Generation, error) {
	if c.apiKey == "" {
		return nil, errors.New("llm: API key is required")
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	if system := strings.TrimSpace(opts.SystemPrompt); system != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	for _, turn := range history {
		messages = append(messages, openai.ChatCompletionMessage{Role: turn.Role, Content: turn.Content})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: float32(opts.Temperature),
		MaxTokens:   opts.MaxTokens,
	})
	if err != nil {
		return nil, providerError(err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return nil, ErrNoContent
	}

	c.log.Debug("generation completed",
		zap.String("model", resp.Model),
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.Duration("elapsed", time.Since(start)),
	)

	return &Generation{
		Content:          strings.TrimSpace(resp.Choices[0].Message.Content),
		Model:            resp.Model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

func providerError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &ProviderError{StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message, Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		message := http.StatusText(reqErr.HTTPStatusCode)
		if reqErr.Err != nil {
			message = reqErr.Err.Error()
		}
		return &ProviderError{StatusCode: reqErr.HTTPStatusCode, Message: message, Err: err}
	}
	return &ProviderError{Err: err}
}
