package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"
)

func TestOpenAIClientGenerate(t *testing.T) {
	var captured openai.ChatCompletionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"model": "gpt-4o-mini",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "  Patch Log4j now.  "}}],
			"usage": {"prompt_tokens": 120, "completion_tokens": 8}
		}`))
	}))
	defer server.Close()

	client := NewOpenAIClient(OpenAIConfig{BaseURL: server.URL + "/v1/", APIKey: "test-key"})
	generation, err := client.Generate(context.Background(), "Assess CVE-2021-44228", []Message{
		{Role: "assistant", Content: "Earlier summary."},
	}, GenerateOptions{
		SystemPrompt: "You are a security analyst.",
		Temperature:  0.3,
		MaxTokens:    1024,
	})
	require.NoError(t, err)
	require.Equal(t, "Patch Log4j now.", generation.Content)
	require.Equal(t, "gpt-4o-mini", generation.Model)
	require.Equal(t, 120, generation.PromptTokens)
	require.Equal(t, 8, generation.CompletionTokens)

	require.Equal(t, DefaultModel, captured.Model)
	require.InDelta(t, 0.3, captured.Temperature, 1e-6)
	require.Equal(t, 1024, captured.MaxTokens)
	require.Len(t, captured.Messages, 3)
	require.Equal(t, openai.ChatMessageRoleSystem, captured.Messages[0].Role)
	require.Equal(t, openai.ChatMessageRoleAssistant, captured.Messages[1].Role)
	require.Equal(t, openai.ChatMessageRoleUser, captured.Messages[2].Role)
	require.Equal(t, "Assess CVE-2021-44228", captured.Messages[2].Content)
}

func TestOpenAIClientErrors(t *testing.T) {
	_, err := NewOpenAIClient(OpenAIConfig{}).Generate(context.Background(), "hello", nil, GenerateOptions{})
	require.ErrorContains(t, err, "API key")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": {"message": "quota exceeded", "type": "insufficient_quota", "code": "insufficient_quota"}}`))
	}))
	defer server.Close()

	client := NewOpenAIClient(OpenAIConfig{BaseURL: server.URL, APIKey: "k"})
	_, err = client.Generate(context.Background(), "hello", nil, GenerateOptions{})
	var providerErr *ProviderError
	require.ErrorAs(t, err, &providerErr)
	require.Equal(t, http.StatusTooManyRequests, providerErr.StatusCode)
	require.Equal(t, "quota exceeded", providerErr.Message)
	require.ErrorContains(t, err, "429")
}

func TestOpenAIClientUnstructuredErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := NewOpenAIClient(OpenAIConfig{BaseURL: server.URL, APIKey: "k"}).Generate(context.Background(), "hello", nil, GenerateOptions{})
	var providerErr *ProviderError
	require.ErrorAs(t, err, &providerErr)
	require.Equal(t, http.StatusBadGateway, providerErr.StatusCode)
}

func TestOpenAIClientEmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices": []}`))
	}))
	defer server.Close()

	_, err := NewOpenAIClient(OpenAIConfig{BaseURL: server.URL, APIKey: "k"}).Generate(context.Background(), "hello", nil, GenerateOptions{})
	require.ErrorIs(t, err, ErrNoContent)
}
