package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"
)

// GeminiClient adapts the Google GenAI SDK to Runtime. The SDK client is
// created on first use so that building a runtime never blocks.
type GeminiClient struct {
	apiKey           string
	baseURL          string
	httpTimeout      time.Duration
	retryMaxAttempts int
	retryBaseDelay   time.Duration
	retryMaxDelay    time.Duration

	mu     sync.Mutex
	client *genai.Client
}

// NewGeminiClient returns a runtime for the Gemini API. baseURL may be empty.
func NewGeminiClient(apiKey, baseURL string, httpTimeout time.Duration, retryMax int, baseDelay, maxDelay time.Duration) *GeminiClient {
	if httpTimeout <= 0 {
		httpTimeout = 60 * time.Second
	}
	if retryMax <= 0 {
		retryMax = 3
	}
	if baseDelay <= 0 {
		baseDelay = 500 * time.Millisecond
	}
	if maxDelay <= 0 {
		maxDelay = 4 * time.Second
	}
	return &GeminiClient{
		apiKey:           apiKey,
		baseURL:          baseURL,
		httpTimeout:      httpTimeout,
		retryMaxAttempts: retryMax,
		retryBaseDelay:   baseDelay,
		retryMaxDelay:    maxDelay,
	}
}

func (c *GeminiClient) sdk(ctx context.Context) (*genai.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		return c.client, nil
	}
	cfg := &genai.ClientConfig{
		APIKey:     c.apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: c.httpTimeout},
	}
	if c.baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: c.baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	c.client = client
	return client, nil
}

// Generate maps the chat request onto GenerateContent. System messages become
// the system instruction and assistant turns use the "model" role.
func (c *GeminiClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	if c.apiKey == "" {
		return nil, errors.New("api key is missing")
	}
	if req.Model == "" {
		return nil, errors.New("model cannot be empty")
	}
	var system []string
	var contents []*genai.Content
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			system = append(system, m.Content)
		case "assistant":
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	if len(contents) == 0 {
		return nil, errors.New("messages cannot be empty")
	}
	cfg := &genai.GenerateContentConfig{}
	if len(system) > 0 {
		cfg.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}
	if req.Temperature > 0 {
		cfg.Temperature = genai.Ptr(float32(req.Temperature))
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}

	client, err := c.sdk(ctx)
	if err != nil {
		return nil, &UnreachableError{Host: "gemini", Err: err}
	}
	var out *GenerateResponse
	err = retry(ctx, c.retryMaxAttempts, c.retryBaseDelay, c.retryMaxDelay, func() (time.Duration, error) {
		resp, err := client.Models.GenerateContent(ctx, req.Model, contents, cfg)
		if err != nil {
			return classifyGeminiError(err)
		}
		out = &GenerateResponse{
			ID:        resp.ResponseID,
			Choices:   []Choice{{Message: Message{Role: "assistant", Content: resp.Text()}}},
			RequestID: resp.ResponseID,
		}
		if u := resp.UsageMetadata; u != nil {
			out.Usage = Usage{
				PromptTokens:     int(u.PromptTokenCount),
				CompletionTokens: int(u.CandidatesTokenCount),
				TotalTokens:      int(u.TotalTokenCount),
			}
		}
		return 0, nil
	})
	return out, err
}

// classifyGeminiError maps SDK errors onto the typed errors of this package
// and reports whether the call may be retried.
func classifyGeminiError(err error) (time.Duration, error) {
	var gerr genai.APIError
	if !errors.As(err, &gerr) {
		if isRetryableNetErr(err) {
			return 0, err
		}
		return -1, &UnreachableError{Host: "gemini", Err: err}
	}
	apiErr := &APIError{StatusCode: gerr.Code, Code: gerr.Status, Message: gerr.Message}
	typed := classifyAPIError(apiErr, &http.Response{Header: http.Header{}})
	if gerr.Code == http.StatusTooManyRequests || gerr.Code >= 500 {
		return 0, typed
	}
	return -1, typed
}
