package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aeo-tracker/backend/pkg/circuitbreaker"
)

func TestParseRankedList(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []string
	}{
		{
			name:    "numbered",
			content: "1. Tesla (tesla.com) - market leader\n2. Rivian (rivian.com) - adventure trucks\n3) Lucid",
			want:    []string{"Tesla (tesla.com) - market leader", "Rivian (rivian.com) - adventure trucks", "Lucid"},
		},
		{
			name:    "markdown emphasis and chatter",
			content: "Here are my picks:\n\n1. **Tesla** - fast\n  2. __Rivian__\n\nHope this helps!",
			want:    []string{"Tesla - fast", "Rivian"},
		},
		{
			name:    "bullets",
			content: "- Tesla\n* Rivian\n• Lucid",
			want:    []string{"Tesla", "Rivian", "Lucid"},
		},
		{
			name:    "no list",
			content: "I cannot recommend anything.",
			want:    nil,
		},
		{
			name:    "years are not list items",
			content: "2024 was a good year.\n10. Polestar",
			want:    []string{"Polestar"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseRankedList(tt.content))
		})
	}
}

func completionServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) *Client {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(handler))
	t.Cleanup(srv.Close)

	c := NewClient("test-key", srv.URL+"/v1", 0.2, 200, 5*time.Second)
	c.retryConfig.InitialDelay = time.Millisecond
	c.retryConfig.MaxDelay = 2 * time.Millisecond
	return c
}

func writeCompletion(t *testing.T, w http.ResponseWriter, content string) {
	t.Helper()

	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
		ID:      "chatcmpl-1",
		Object:  "chat.completion",
		Created: 1,
		Model:   "gpt-4o-mini",
		Choices: []openai.ChatCompletionChoice{{
			Index:        0,
			Message:      openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content},
			FinishReason: openai.FinishReasonStop,
		}},
		Usage: openai.Usage{PromptTokens: 12, CompletionTokens: 8, TotalTokens: 20},
	}))
}

func TestRankedAnswer(t *testing.T) {
	var got openai.ChatCompletionRequest
	c := completionServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeCompletion(t, w, "1. Rivian\n2. Tesla (tesla.com)")
	})

	answer, err := c.RankedAnswer(context.Background(), "gpt-4o-mini", "best EVs")
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o-mini", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "best EVs", got.Messages[1].Content)
	assert.Equal(t, 200, got.MaxTokens)

	assert.Equal(t, []string{"Rivian", "Tesla (tesla.com)"}, answer.Items)
	assert.Equal(t, Usage{PromptTokens: 12, CompletionTokens: 8, TotalTokens: 20}, answer.Usage)
}

func TestComplete_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := completionServer(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		writeCompletion(t, w, "1. Tesla")
	})

	resp, err := c.Complete(context.Background(), CompletionRequest{Model: "gpt-4o-mini", UserPrompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "1. Tesla", resp.Content)
	assert.Equal(t, int32(3), calls.Load())
}

func TestComplete_ClientErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := completionServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	})

	_, err := c.Complete(context.Background(), CompletionRequest{Model: "gpt-4o-mini", UserPrompt: "hi"})
	require.Error(t, err)

	var apiErr *openai.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.HTTPStatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestComplete_BreakerIsPerModel(t *testing.T) {
	c := completionServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req openai.ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Model == "retired-model" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"message":"model not found","type":"invalid_request_error"}}`))
			return
		}
		writeCompletion(t, w, "1. Tesla")
	})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := c.Complete(ctx, CompletionRequest{Model: "retired-model", UserPrompt: "hi"})
		require.Error(t, err)
	}
	_, err := c.Complete(ctx, CompletionRequest{Model: "retired-model", UserPrompt: "hi"})
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)

	resp, err := c.Complete(ctx, CompletionRequest{Model: "gpt-4o-mini", UserPrompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "1. Tesla", resp.Content)
}

func TestComplete_EmptyChoices(t *testing.T) {
	c := completionServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","choices":[]}`))
	})

	_, err := c.Complete(context.Background(), CompletionRequest{Model: "gpt-4o-mini", UserPrompt: "hi"})
	assert.ErrorIs(t, err, ErrEmptyCompletion)
}

func TestIsTransient(t *testing.T) {
	assert.True(t, isTransient(&openai.APIError{HTTPStatusCode: http.StatusTooManyRequests}))
	assert.True(t, isTransient(&openai.RequestError{HTTPStatusCode: http.StatusServiceUnavailable}))
	assert.False(t, isTransient(&openai.APIError{HTTPStatusCode: http.StatusBadRequest}))
	assert.False(t, isTransient(context.Canceled))
}
