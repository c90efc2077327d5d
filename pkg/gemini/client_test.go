package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const groundedBody = `{
	"candidates": [{
		"content": {"role": "model", "parts": [{"text": "{\"status\":"}, {"text": "\"Accurate\"}"}]},
		"finishReason": "STOP",
		"groundingMetadata": {
			"webSearchQueries": ["nifty 50 november 2024"],
			"groundingChunks": [
				{"web": {"uri": "https://nseindia.com/a", "title": "NSE"}},
				{"web": {"uri": "", "title": "empty"}},
				{}
			]
		}
	}],
	"usageMetadata": {"promptTokenCount": 12, "candidatesTokenCount": 7, "totalTokenCount": 19},
	"modelVersion": "gemini-3-pro-preview"
}`

func TestGenerateContent(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{name: "success", status: http.StatusOK, body: groundedBody},
		{name: "rate_limit", status: http.StatusTooManyRequests, body: `{"error":{"code":429}}`, wantErr: "unexpected status 429"},
		{name: "server_error", status: http.StatusInternalServerError, body: `{}`, wantErr: "unexpected status 500"},
		{name: "malformed_response", status: http.StatusOK, body: `{not json`, wantErr: "unmarshal response"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/models/gemini-3-flash-preview:generateContent", r.URL.Path)
				assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))
				assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client := NewClient("test-key", WithBaseURL(srv.URL))
			resp, err := client.GenerateContent(context.Background(), GenerateRequest{
				Contents: UserText("verify"),
			})

			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Nil(t, resp)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, `{"status":"Accurate"}`, resp.Text())
			assert.Equal(t, 19, resp.UsageMetadata.TotalTokenCount)
			sources := resp.WebSources()
			require.Len(t, sources, 1)
			assert.Equal(t, "NSE", sources[0].Title)
			assert.Equal(t, "https://nseindia.com/a", sources[0].URI)
		})
	}
}

func TestGenerateContent_RequestShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-3-pro-preview:generateContent", r.URL.Path)

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var raw map[string]any
		require.NoError(t, json.Unmarshal(body, &raw))

		_, hasModel := raw["Model"]
		assert.False(t, hasModel)

		tools := raw["tools"].([]any)
		require.Len(t, tools, 1)
		_, hasSearch := tools[0].(map[string]any)["google_search"]
		assert.True(t, hasSearch)

		gc := raw["generationConfig"].(map[string]any)
		assert.Equal(t, "application/json", gc["responseMimeType"])
		assert.Equal(t, "array", gc["responseSchema"].(map[string]any)["type"])

		sys := raw["systemInstruction"].(map[string]any)["parts"].([]any)
		assert.Equal(t, "be terse", sys[0].(map[string]any)["text"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"[]"}]}}]}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL+"/"))
	resp, err := client.GenerateContent(context.Background(), GenerateRequest{
		Model:             "gemini-3-pro-preview",
		SystemInstruction: &Content{Parts: []Part{{Text: "be terse"}}},
		Contents:          UserText("extract"),
		Tools:             []Tool{GoogleSearchTool()},
		GenerationConfig: &GenerationConfig{
			ResponseMimeType: "application/json",
			ResponseSchema:   json.RawMessage(`{"type":"array"}`),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "[]", resp.Text())
	assert.Nil(t, resp.WebSources())
}

func TestStatusErrorIsTyped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`API key not valid`))
	}))
	defer srv.Close()

	_, err := NewClient("bad", WithBaseURL(srv.URL)).GenerateContent(context.Background(), GenerateRequest{Contents: UserText("x")})
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusForbidden, se.StatusCode)
	assert.Contains(t, err.Error(), "API key not valid")
}

func TestContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewClient("k", WithBaseURL(srv.URL)).GenerateContent(ctx, GenerateRequest{Contents: UserText("x")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "send request")
}

func TestNewClient_Defaults(t *testing.T) {
	t.Parallel()
	hc := NewClient("my-key").(*httpClient)
	assert.Equal(t, "my-key", hc.apiKey)
	assert.Equal(t, defaultBaseURL, hc.baseURL)
	assert.Equal(t, defaultModel, hc.model)
	assert.NotNil(t, hc.http)

	custom := &http.Client{}
	hc = NewClient("k", WithHTTPClient(custom), WithModel("gemini-3-pro-preview")).(*httpClient)
	assert.Equal(t, custom, hc.http)
	assert.Equal(t, "gemini-3-pro-preview", hc.model)
}

func TestText_Empty(t *testing.T) {
	var r *GenerateResponse
	assert.Empty(t, r.Text())
	assert.Empty(t, (&GenerateResponse{}).Text())
}
