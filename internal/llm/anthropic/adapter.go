// Package anthropic implements the anthropic-messages provider kind: a
// direct, hand-rolled client for the Messages API. Anthropic's wire format
// diverges enough from the OpenAI-compatible vendors that no shared client
// library serves both, so this follows the raw net/http pattern the rest of
// the pack uses for non-OpenAI-compatible vendors.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/n0rvyn/cross-mind-consensus/internal/llm"
)

const (
	DefaultBaseURL   = "https://api.anthropic.com"
	DefaultAPIVersion = "2023-06-01"
	DefaultTimeout   = 30 * time.Second
)

// HTTPClient allows tests to substitute a stub transport.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Adapter implements llm.Provider for provider_kind=anthropic-messages.
type Adapter struct {
	modelID    string
	apiKey     string
	model      string
	baseURL    string
	apiVersion string
	client     HTTPClient
}

func init() {
	llm.RegisterFactory(llm.ProviderKindAnthropic, New)
}

// New constructs an Adapter from a resolved llm.Config.
func New(cfg llm.Config) (llm.Provider, error) {
	if cfg.Credential == "" {
		return nil, fmt.Errorf("anthropic: credential required for model %q", cfg.ModelID)
	}
	timeout := DefaultTimeout
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}
	baseURL := cfg.EndpointURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Adapter{
		modelID:    cfg.ModelID,
		apiKey:     cfg.Credential,
		model:      cfg.ModelName,
		baseURL:    baseURL,
		apiVersion: DefaultAPIVersion,
		client:     &http.Client{Timeout: timeout},
	}, nil
}

func (a *Adapter) Kind() llm.ProviderKind { return llm.ProviderKindAnthropic }

type messagesRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature *float64           `json:"temperature,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type errorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (a *Adapter) Invoke(ctx context.Context, call llm.Call) (llm.Reply, error) {
	start := time.Now()
	reply := llm.Reply{ModelID: call.ModelID}

	if call.Prompt == "" {
		return llm.Reply{}, fmt.Errorf("anthropic: empty prompt")
	}

	maxTokens := call.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	temp := call.Temperature
	apiReq := messagesRequest{
		Model:       a.model,
		MaxTokens:   maxTokens,
		Temperature: &temp,
		Messages:    []anthropicMessage{{Role: "user", Content: call.Prompt}},
	}
	body, err := json.Marshal(apiReq)
	if err != nil {
		return llm.Reply{}, fmt.Errorf("anthropic: marshal request: %w", err)
	}

	ctx, cancel := context.WithDeadline(ctx, call.Deadline)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return llm.Reply{}, fmt.Errorf("anthropic: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.apiKey)
	httpReq.Header.Set("anthropic-version", a.apiVersion)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		reply.Latency = time.Since(start)
		if ctx.Err() != nil {
			reply.ErrorKind = llm.ErrorKindCanceled
		} else {
			reply.ErrorKind = llm.ErrorKindTimeout
		}
		return reply, nil
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	reply.Latency = time.Since(start)

	if resp.StatusCode != http.StatusOK {
		var errResp errorResponse
		_ = json.Unmarshal(raw, &errResp)
		reply.ErrorKind = llm.ErrorKindHTTPError
		reply.StatusCode = resp.StatusCode
		return reply, nil
	}

	var apiResp messagesResponse
	if err := json.Unmarshal(raw, &apiResp); err != nil {
		reply.ErrorKind = llm.ErrorKindParseError
		return reply, nil
	}

	var text string
	for _, block := range apiResp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	reply.Text = text
	reply.Success = true
	reply.PromptTokens = apiResp.Usage.InputTokens
	reply.CompletionTokens = apiResp.Usage.OutputTokens
	if reply.PromptTokens == 0 && reply.CompletionTokens == 0 {
		reply.PromptTokens = llm.EstimateTokens(call.Prompt)
		reply.CompletionTokens = llm.EstimateTokens(text)
		reply.TokenEstimated = true
	}
	return reply, nil
}

func (a *Adapter) HealthCheck(ctx context.Context) llm.HealthStatus {
	if a.apiKey == "" {
		return llm.HealthUnhealthy
	}
	return llm.HealthHealthy
}
