package gemini

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clown-builder-backend/internal/llm"
)

func testCall(key string) llm.Call {
	return llm.Call{
		APIKey: key,
		Model:  "gemini-1.5-flash",
		System: "be a builder",
		Prompt: "add a hero",
		Config: llm.GenerationConfig{
			Temperature:     0.2,
			TopP:            0.8,
			TopK:            40,
			MaxOutputTokens: 8192,
			JSONResponse:    true,
		},
	}
}

func TestGenerate_SendsCredentialAndConfig(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/gemini-1.5-flash:generateContent", r.URL.Path)
		assert.Equal(t, "key-123", r.Header.Get("x-goog-api-key"))
		assert.Empty(t, r.URL.Query().Get("key"))

		b, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var body map[string]any
		require.NoError(t, json.Unmarshal(b, &body))

		gc := body["generationConfig"].(map[string]any)
		assert.InDelta(t, 0.2, gc["temperature"], 0.0001)
		assert.InDelta(t, 0.8, gc["topP"], 0.0001)
		assert.EqualValues(t, 40, gc["topK"])
		assert.EqualValues(t, 8192, gc["maxOutputTokens"])
		assert.Equal(t, "application/json", gc["responseMimeType"])

		sys := body["systemInstruction"].(map[string]any)["parts"].([]any)[0].(map[string]any)
		assert.Equal(t, "be a builder", sys["text"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"{\"text\":"},{"text":"\"ok\",\"actions\":[]}"}]}}]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, nil)
	out, err := client.Generate(context.Background(), testCall("key-123"))
	require.NoError(t, err)
	assert.Equal(t, `{"text":"ok","actions":[]}`, out)
}

func TestGenerate_APIErrorMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":400,"message":"API key not valid. Please pass a valid API key.","status":"INVALID_ARGUMENT"}}`))
	}))
	defer server.Close()

	_, err := NewClient(server.URL, nil).Generate(context.Background(), testCall("bad"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key not valid")
}

func TestGenerate_NonJSONErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("upstream overloaded"))
	}))
	defer server.Close()

	_, err := NewClient(server.URL, nil).Generate(context.Background(), testCall("k"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "upstream overloaded")
}

func TestGenerate_BlockedPrompt(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"promptFeedback":{"blockReason":"SAFETY"}}`))
	}))
	defer server.Close()

	_, err := NewClient(server.URL, nil).Generate(context.Background(), testCall("k"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SAFETY")
}

func TestGenerate_NoCandidates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	}))
	defer server.Close()

	_, err := NewClient(server.URL, nil).Generate(context.Background(), testCall("k"))
	require.Error(t, err)
}

func TestGenerate_MissingKey(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer server.Close()

	_, err := NewClient(server.URL, nil).Generate(context.Background(), testCall("  "))
	require.Error(t, err)
	assert.Zero(t, calls)
}

func TestGenerate_KeyIsPerCall(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.Header.Get("x-goog-api-key"))
		mu.Unlock()
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"{}"}]}}]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, nil)
	_, err := client.Generate(context.Background(), testCall("first"))
	require.NoError(t, err)
	_, err = client.Generate(context.Background(), testCall("second"))
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, seen)
}

func TestBuildConfig_OmitsUnsetSampling(t *testing.T) {
	call := testCall("k")
	call.Config = llm.GenerationConfig{Temperature: 0}
	call.System = ""

	cfg := buildConfig(call)
	assert.Nil(t, cfg.SystemInstruction)
	assert.Nil(t, cfg.TopP)
	assert.Nil(t, cfg.TopK)
	assert.Empty(t, cfg.ResponseMIMEType)
	require.NotNil(t, cfg.Temperature)
	assert.Zero(t, *cfg.Temperature)
}

func TestBuildConfig_CarriesSampling(t *testing.T) {
	cfg := buildConfig(testCall("k"))
	require.NotNil(t, cfg.SystemInstruction)
	require.Len(t, cfg.SystemInstruction.Parts, 1)
	assert.Equal(t, "be a builder", cfg.SystemInstruction.Parts[0].Text)
	require.NotNil(t, cfg.TopK)
	assert.InDelta(t, 40, *cfg.TopK, 0.0001)
	assert.EqualValues(t, 8192, cfg.MaxOutputTokens)
	assert.Equal(t, "application/json", cfg.ResponseMIMEType)
}
