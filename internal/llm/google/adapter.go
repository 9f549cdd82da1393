// Package google implements the google-generate provider kind against the
// Generative Language REST API, following the same raw-HTTP idiom the
// teacher uses for its Gemini provider (key passed as a query parameter
// rather than a header).
package google

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
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
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
	llm.RegisterFactory(llm.ProviderKindGoogle, New)
}

func New(cfg llm.Config) (llm.Provider, error) {
	if cfg.Credential == "" {
		return nil, fmt.Errorf("google: credential required for model %q", cfg.ModelID)
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

func (a *Adapter) Kind() llm.ProviderKind { return llm.ProviderKindGoogle }

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

func (a *Adapter) Invoke(ctx context.Context, call llm.Call) (llm.Reply, error) {
	start := time.Now()
	reply := llm.Reply{ModelID: call.ModelID}

	if call.Prompt == "" {
		return llm.Reply{}, fmt.Errorf("google: empty prompt")
	}

	maxTokens := call.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	apiReq := generateRequest{
		Contents: []content{{Parts: []part{{Text: call.Prompt}}}},
		GenerationConfig: generationConfig{
			Temperature:     call.Temperature,
			MaxOutputTokens: maxTokens,
		},
	}
	body, err := json.Marshal(apiReq)
	if err != nil {
		return llm.Reply{}, fmt.Errorf("google: marshal request: %w", err)
	}

	ctx, cancel := context.WithDeadline(ctx, call.Deadline)
	defer cancel()

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", a.baseURL, a.model, a.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return llm.Reply{}, fmt.Errorf("google: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

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
	if len(apiResp.Candidates) == 0 || len(apiResp.Candidates[0].Content.Parts) == 0 {
		reply.ErrorKind = llm.ErrorKindParseError
		return reply, nil
	}

	text := apiResp.Candidates[0].Content.Parts[0].Text
	reply.Text = text
	reply.Success = true
	reply.PromptTokens = apiResp.UsageMetadata.PromptTokenCount
	reply.CompletionTokens = apiResp.UsageMetadata.CandidatesTokenCount
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
