package completion_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mail-triage/internal/completion"
)

func TestOllamaGenerate(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/x-ndjson")
		fmt.Fprintln(w, `{"model":"llama3","response":"{\"Rat","done":false}`)
		fmt.Fprintln(w, `{"model":"llama3","response":"ing\":9}","done":false}`)
		fmt.Fprintln(w, `{"model":"llama3","response":"","done":true}`)
	}))
	defer srv.Close()

	p := completion.NewOllama(srv.URL+"/", "llama3")
	text, err := p.Generate(context.Background(), "rate this")
	require.NoError(t, err)
	assert.Equal(t, `{"Rating":9}`, text)

	assert.Equal(t, "llama3", got["model"])
	assert.Equal(t, "rate this", got["prompt"])
	assert.Equal(t, true, got["stream"])
}

func TestOllamaErrors(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
		wantErr string
	}{
		{
			name: "non-2xx status",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, `{"error":"model 'llama3' not found"}`, http.StatusNotFound)
			},
			wantErr: "ollama error (404)",
		},
		{
			name: "error chunk",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				fmt.Fprintln(w, `{"error":"out of memory"}`)
			},
			wantErr: "out of memory",
		},
		{
			name: "garbage stream",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				fmt.Fprintln(w, `not json`)
			},
			wantErr: "decoding stream chunk",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()

			_, err := completion.NewOllama(srv.URL, "llama3").Generate(context.Background(), "p")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestOllamaCancellation(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := completion.NewOllama(srv.URL, "llama3").Generate(ctx, "p")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func chatCompletionBody(content string) string {
	body, _ := json.Marshal(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   "gpt-3.5-turbo",
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]string{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
	})
	return string(body)
}

func TestOpenAIGenerate(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, chatCompletionBody(`{"Rating":3}`))
	}))
	defer srv.Close()

	p := completion.NewOpenAI("sk-test", "", srv.URL+"/v1", 1000, 0.1)
	text, err := p.Generate(context.Background(), "rate this")
	require.NoError(t, err)
	assert.Equal(t, `{"Rating":3}`, text)

	assert.Equal(t, "gpt-3.5-turbo", got["model"])
	assert.EqualValues(t, 1000, got["max_tokens"])
	messages, ok := got["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 1)
	msg := messages[0].(map[string]any)
	assert.Equal(t, "user", msg["role"])
	assert.Equal(t, "rate this", msg["content"])
}

func TestOpenAISendsZeroTemperature(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, chatCompletionBody(`{"Rating":3}`))
	}))
	defer srv.Close()

	p := completion.NewOpenAI("sk-test", "", srv.URL+"/v1", 1000, 0)
	_, err := p.Generate(context.Background(), "rate this")
	require.NoError(t, err)

	temp, ok := got["temperature"].(float64)
	require.True(t, ok, "temperature must be present in the request")
	assert.InDelta(t, 0, temp, 1e-6)
}

func TestOpenAIErrors(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{
			name:    "unauthorized",
			status:  http.StatusUnauthorized,
			body:    `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`,
			wantErr: "Incorrect API key provided",
		},
		{
			name:    "no choices",
			status:  http.StatusOK,
			body:    `{"id":"x","object":"chat.completion","choices":[]}`,
			wantErr: "response has no choices",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tc.status)
				io.WriteString(w, tc.body)
			}))
			defer srv.Close()

			_, err := completion.NewOpenAI("sk-test", "", srv.URL+"/v1", 1000, 0.1).
				Generate(context.Background(), "p")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestAzureOpenAIGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/openai/deployments/triage/chat/completions", r.URL.Path)
		assert.Equal(t, "2024-02-15-preview", r.URL.Query().Get("api-version"))
		assert.Equal(t, "azure-key", r.Header.Get("api-key"))

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, chatCompletionBody(`{"Rating":5}`))
	}))
	defer srv.Close()

	p := completion.NewAzureOpenAI("azure-key", srv.URL+"/", "triage", "", 1000, 0.1)
	assert.Equal(t, completion.ProviderAzureOpenAI, p.Name())

	text, err := p.Generate(context.Background(), "rate this")
	require.NoError(t, err)
	assert.Equal(t, `{"Rating":5}`, text)
}

func TestAnthropicGenerate(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "ak", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"msg_1","type":"message","role":"assistant",`+
			`"content":[{"type":"text","text":"{\"Rating\":1}"},{"type":"text","text":"ignored"}],`+
			`"model":"claude-3-haiku-20240307","stop_reason":"end_turn"}`)
	}))
	defer srv.Close()

	p := completion.NewAnthropic("ak", "", srv.URL, 1000)
	text, err := p.Generate(context.Background(), "rate this")
	require.NoError(t, err)
	assert.Equal(t, `{"Rating":1}`, text)

	assert.Equal(t, "claude-3-haiku-20240307", got["model"])
	assert.EqualValues(t, 1000, got["max_tokens"])
	_, hasTemperature := got["temperature"]
	assert.False(t, hasTemperature)
}

func TestAnthropicErrors(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{
			name:    "api error message",
			status:  http.StatusTooManyRequests,
			body:    `{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`,
			wantErr: "API error (429): slow down",
		},
		{
			name:    "plain error body",
			status:  http.StatusBadGateway,
			body:    `bad gateway`,
			wantErr: "API error (502): bad gateway",
		},
		{
			name:    "empty content",
			status:  http.StatusOK,
			body:    `{"id":"msg_1","content":[]}`,
			wantErr: "no content",
		},
		{
			name:    "undecodable",
			status:  http.StatusOK,
			body:    `{"id":`,
			wantErr: "decoding response",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				io.WriteString(w, tc.body)
			}))
			defer srv.Close()

			_, err := completion.NewAnthropic("ak", "", srv.URL, 1000).Generate(context.Background(), "p")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}
