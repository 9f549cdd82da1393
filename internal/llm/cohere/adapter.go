// Package cohere implements the cohere-generate provider kind. No client
// library for Cohere appears anywhere in the example pack, so this follows
// the same raw net/http idiom as the anthropic and google adapters.
package cohere

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
	DefaultBaseURL = "https://api.cohere.ai/v1"
	DefaultTimeout = 30 * time.Second
)

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type Adapter struct {
	apiKey  string
	model   string
	baseURL string
	client  HTTPClient
}

func init() {
	llm.RegisterFactory(llm.ProviderKindCohere, New)
}

func New(cfg llm.Config) (llm.Provider, error) {
	if cfg.Credential == "" {
		return nil, fmt.Errorf("cohere: credential required for model %q", cfg.ModelID)
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
		apiKey:  cfg.Credential,
		model:   cfg.ModelName,
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

func (a *Adapter) Kind() llm.ProviderKind { return llm.ProviderKindCohere }

type generateRequest struct {
	Model       string  `json:"model"`
	Prompt      string  `json:"prompt"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
}

type generateResponse struct {
	Generations []struct {
		Text string `json:"text"`
	} `json:"generations"`
	Meta struct {
		BilledUnits struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"billed_units"`
	} `json:"meta"`
}

func (a *Adapter) Invoke(ctx context.Context, call llm.Call) (llm.Reply, error) {
	start := time.Now()
	reply := llm.Reply{ModelID: call.ModelID}

	if call.Prompt == "" {
		return llm.Reply{}, fmt.Errorf("cohere: empty prompt")
	}

	maxTokens := call.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	apiReq := generateRequest{
		Model:       a.model,
		Prompt:      call.Prompt,
		MaxTokens:   maxTokens,
		Temperature: call.Temperature,
	}
	body, err := json.Marshal(apiReq)
	if err != nil {
		return llm.Reply{}, fmt.Errorf("cohere: marshal request: %w", err)
	}

	ctx, cancel := context.WithDeadline(ctx, call.Deadline)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/generate", bytes.NewReader(body))
	if err != nil {
		return llm.Reply{}, fmt.Errorf("cohere: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)

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
		reply.ErrorKind = llm.ErrorKindHTTPError
		reply.StatusCode = resp.StatusCode
		return reply, nil
	}

	var apiResp generateResponse
	if err := json.Unmarshal(raw, &apiResp); err != nil {
		reply.ErrorKind = llm.ErrorKindParseError
		return reply, nil
	}
	if len(apiResp.Generations) == 0 {
		reply.ErrorKind = llm.ErrorKindParseError
		return reply, nil
	}

	text := apiResp.Generations[0].Text
	reply.Text = text
	reply.Success = true
	reply.PromptTokens = apiResp.Meta.BilledUnits.InputTokens
	reply.CompletionTokens = apiResp.Meta.BilledUnits.OutputTokens
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
