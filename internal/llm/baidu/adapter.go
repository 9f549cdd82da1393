// Package baidu implements the baidu-ernie provider kind. ERNIE's wire
// protocol needs a two-legged OAuth exchange (API key + secret -> bearer
// access_token) ahead of the actual completion call; the token is cached
// for its 30-minute TTL the same way the registry caches health-check
// results, avoiding a round trip on every call.
package baidu

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/n0rvyn/cross-mind-consensus/internal/llm"
)

const (
	DefaultBaseURL  = "https://aip.baidubce.com"
	DefaultTimeout  = 30 * time.Second
	tokenTTL        = 30 * time.Minute
)

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type Adapter struct {
	apiKey    string
	secretKey string
	model     string
	baseURL   string
	client    HTTPClient

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func init() {
	llm.RegisterFactory(llm.ProviderKindBaidu, New)
}

func New(cfg llm.Config) (llm.Provider, error) {
	if cfg.Credential == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("baidu: api key and secret key both required for model %q", cfg.ModelID)
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
		apiKey:    cfg.Credential,
		secretKey: cfg.SecretKey,
		model:     cfg.ModelName,
		baseURL:   baseURL,
		client:    &http.Client{Timeout: timeout},
	}, nil
}

func (a *Adapter) Kind() llm.ProviderKind { return llm.ProviderKindBaidu }

type oauthResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	Error       string `json:"error"`
	ErrorDesc   string `json:"error_description"`
}

// tokenFor returns a valid access_token, refreshing it if the cached one has
// expired or is within one minute of expiry.
func (a *Adapter) tokenFor(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.accessToken != "" && time.Now().Before(a.tokenExpiry.Add(-time.Minute)) {
		return a.accessToken, nil
	}

	q := url.Values{}
	q.Set("grant_type", "client_credentials")
	q.Set("client_id", a.apiKey)
	q.Set("client_secret", a.secretKey)

	tokenURL := a.baseURL + "/oauth/2.0/token?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, nil)
	if err != nil {
		return "", fmt.Errorf("baidu: build token request: %w", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("baidu: token exchange: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	var tokResp oauthResponse
	if err := json.Unmarshal(raw, &tokResp); err != nil {
		return "", fmt.Errorf("baidu: decode token response: %w", err)
	}
	if tokResp.Error != "" {
		return "", fmt.Errorf("baidu: token exchange failed: %s: %s", tokResp.Error, tokResp.ErrorDesc)
	}

	a.accessToken = tokResp.AccessToken
	ttl := tokenTTL
	if tokResp.ExpiresIn > 0 {
		if reported := time.Duration(tokResp.ExpiresIn) * time.Second; reported < ttl {
			ttl = reported
		}
	}
	a.tokenExpiry = time.Now().Add(ttl)
	return a.accessToken, nil
}

type ernieMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ernieRequest struct {
	Messages    []ernieMessage `json:"messages"`
	Temperature float64        `json:"temperature,omitempty"`
}

type ernieResponse struct {
	Result    string `json:"result"`
	ErrorCode int    `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`
	Usage     struct {
		PromptTokens   int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (a *Adapter) Invoke(ctx context.Context, call llm.Call) (llm.Reply, error) {
	start := time.Now()
	reply := llm.Reply{ModelID: call.ModelID}

	if call.Prompt == "" {
		return llm.Reply{}, fmt.Errorf("baidu: empty prompt")
	}

	ctx, cancel := context.WithDeadline(ctx, call.Deadline)
	defer cancel()

	token, err := a.tokenFor(ctx)
	if err != nil {
		reply.Latency = time.Since(start)
		reply.ErrorKind = llm.ErrorKindHTTPError
		return reply, nil
	}

	apiReq := ernieRequest{
		Messages:    []ernieMessage{{Role: "user", Content: call.Prompt}},
		Temperature: call.Temperature,
	}
	body, err := json.Marshal(apiReq)
	if err != nil {
		return llm.Reply{}, fmt.Errorf("baidu: marshal request: %w", err)
	}

	reqURL := fmt.Sprintf("%s/rpc/2.0/ai_custom/v1/wenxinworkshop/chat/%s?access_token=%s",
		a.baseURL, a.model, token)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return llm.Reply{}, fmt.Errorf("baidu: build request: %w", err)
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

	var apiResp ernieResponse
	if err := json.Unmarshal(raw, &apiResp); err != nil {
		reply.ErrorKind = llm.ErrorKindParseError
		return reply, nil
	}
	if apiResp.ErrorCode != 0 {
		// Ernie's body-level error code rides on an HTTP 200, so there is no
		// transport status to thread through; treat as non-transient like any
		// other deterministic 4xx.
		reply.ErrorKind = llm.ErrorKindHTTPError
		return reply, nil
	}

	reply.Text = apiResp.Result
	reply.Success = true
	reply.PromptTokens = apiResp.Usage.PromptTokens
	reply.CompletionTokens = apiResp.Usage.CompletionTokens
	if reply.PromptTokens == 0 && reply.CompletionTokens == 0 {
		reply.PromptTokens = llm.EstimateTokens(call.Prompt)
		reply.CompletionTokens = llm.EstimateTokens(apiResp.Result)
		reply.TokenEstimated = true
	}
	return reply, nil
}

func (a *Adapter) HealthCheck(ctx context.Context) llm.HealthStatus {
	if _, err := a.tokenFor(ctx); err != nil {
		return llm.HealthUnhealthy
	}
	return llm.HealthHealthy
}
