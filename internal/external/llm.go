package external

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// HTTPLLMProvider adapts a generic chat-completions-style HTTP endpoint to
// the LLMProvider contract (spec §6). It carries no vendor-specific
// request/response shape baked in beyond role/content messages, so it can
// front any OpenAI-compatible gateway.
type HTTPLLMProvider struct {
	BaseURL string
	APIKey  string
	Model   string
	Client  *http.Client
}

func NewHTTPLLMProvider(baseURL, apiKey, model string, timeout time.Duration) *HTTPLLMProvider {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPLLMProvider{BaseURL: baseURL, APIKey: apiKey, Model: model, Client: &http.Client{Timeout: timeout}}
}

type llmChatRequest struct {
	Model       string       `json:"model"`
	Messages    []LLMMessage `json:"messages"`
	MaxTokens   int          `json:"max_tokens,omitempty"`
	Temperature float64      `json:"temperature,omitempty"`
}

type llmChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Invoke implements LLMProvider. Cancellation propagates through ctx;
// failures are taxonomized per spec §6 rather than returned raw, so
// callers (Router, Synthesizer) can decide to degrade silently on
// anything but a bad_response.
func (h *HTTPLLMProvider) Invoke(ctx context.Context, messages []LLMMessage, opts LLMOptions) (LLMResponse, error) {
	reqBody, err := json.Marshal(llmChatRequest{
		Model:       h.Model,
		Messages:    messages,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	})
	if err != nil {
		return LLMResponse{}, &LLMError{Kind: LLMErrorOther, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.BaseURL+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return LLMResponse{}, &LLMError{Kind: LLMErrorOther, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if h.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.APIKey)
	}

	resp, err := h.Client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(ctx.Err(), context.Canceled) {
			return LLMResponse{}, &LLMError{Kind: LLMErrorTimeout, Err: err}
		}
		return LLMResponse{}, &LLMError{Kind: LLMErrorOther, Err: err}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		// fall through
	case http.StatusUnauthorized, http.StatusForbidden:
		return LLMResponse{}, &LLMError{Kind: LLMErrorAuth, Err: fmt.Errorf("status %d", resp.StatusCode)}
	case http.StatusTooManyRequests:
		return LLMResponse{}, &LLMError{Kind: LLMErrorRateLimited, Err: fmt.Errorf("status %d", resp.StatusCode)}
	default:
		return LLMResponse{}, &LLMError{Kind: LLMErrorOther, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	var out llmChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return LLMResponse{}, &LLMError{Kind: LLMErrorBadResponse, Err: err}
	}
	if len(out.Choices) == 0 {
		return LLMResponse{}, &LLMError{Kind: LLMErrorBadResponse, Err: errors.New("no choices returned")}
	}

	return LLMResponse{
		Content: out.Choices[0].Message.Content,
		Usage: &LLMUsage{
			InputTokens:  out.Usage.PromptTokens,
			OutputTokens: out.Usage.CompletionTokens,
		},
	}, nil
}
