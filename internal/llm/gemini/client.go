package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"clown-builder-backend/internal/llm"
)

const (
	DefaultModel      = "gemini-1.5-flash"
	defaultAPIVersion = "v1beta"
)

// Client calls Gemini generateContent through the genai SDK. It holds no
// credential; a genai client is built for each llm.Call from its key.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient returns a provider for the Gemini API. An empty baseURL uses the
// SDK's default endpoint.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		// Generation can take a while; the relay sets its own deadline when configured.
		httpClient = &http.Client{Timeout: 5 * time.Minute}
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
	}
}

func (c *Client) clientFor(ctx context.Context, apiKey string) (*genai.Client, error) {
	return genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: c.httpClient,
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    c.baseURL,
			APIVersion: defaultAPIVersion,
		},
	})
}

func buildConfig(call llm.Call) *genai.GenerateContentConfig {
	cfg := call.Config
	out := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(cfg.Temperature),
		MaxOutputTokens: int32(cfg.MaxOutputTokens),
	}
	if strings.TrimSpace(call.System) != "" {
		out.SystemInstruction = genai.NewContentFromText(call.System, genai.RoleUser)
	}
	if cfg.TopP > 0 {
		out.TopP = genai.Ptr(cfg.TopP)
	}
	if cfg.TopK > 0 {
		out.TopK = genai.Ptr(float32(cfg.TopK))
	}
	if cfg.JSONResponse {
		out.ResponseMIMEType = "application/json"
	}
	return out
}

// Generate sends one generateContent request and returns the concatenated
// text of the first candidate.
func (c *Client) Generate(ctx context.Context, call llm.Call) (string, error) {
	// genai falls back to GOOGLE_API_KEY from the environment on an empty key.
	if strings.TrimSpace(call.APIKey) == "" {
		return "", errors.New("gemini: API key required")
	}
	model := strings.TrimSpace(call.Model)
	if model == "" {
		model = DefaultModel
	}

	client, err := c.clientFor(ctx, call.APIKey)
	if err != nil {
		return "", fmt.Errorf("gemini: create client: %w", err)
	}

	resp, err := client.Models.GenerateContent(ctx, model, genai.Text(call.Prompt), buildConfig(call))
	if err != nil {
		return "", apiError(err)
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("gemini: prompt blocked: %s", resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errors.New("gemini: no candidates")
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if p == nil || p.Thought {
			continue
		}
		b.WriteString(p.Text)
	}
	return b.String(), nil
}

// apiError surfaces the provider's own message from a non-2xx response.
func apiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return formatAPIError(apiErr, err)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return formatAPIError(*apiErrPtr, err)
	}
	return fmt.Errorf("gemini: request failed: %w", err)
}

func formatAPIError(apiErr genai.APIError, err error) error {
	msg := strings.TrimSpace(apiErr.Message)
	if msg == "" {
		msg = err.Error()
	}
	return fmt.Errorf("gemini api error %d: %s", apiErr.Code, msg)
}
