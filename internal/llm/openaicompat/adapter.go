// Package openaicompat implements every provider_kind that speaks the
// OpenAI chat-completions wire format: openai-chat, moonshot-chat,
// zhipu-chat, and mistral-chat all accept the same
// {model, messages, temperature, max_tokens} JSON body and bearer auth, so
// a single adapter backed by github.com/sashabaranov/go-openai's
// custom-BaseURL client serves all four, grounded on the embeddings client
// usage in BaSui01-AgentFlowCreativeHub's rag/openai_embeddings.go.
package openaicompat

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/n0rvyn/cross-mind-consensus/internal/llm"
)

// defaultBaseURLs gives each OpenAI-wire-compatible vendor its native
// endpoint when a model descriptor doesn't override endpoint_url.
var defaultBaseURLs = map[llm.ProviderKind]string{
	llm.ProviderKindOpenAIChat: "https://api.openai.com/v1",
	llm.ProviderKindMoonshot:   "https://api.moonshot.cn/v1",
	llm.ProviderKindZhipu:      "https://open.bigmodel.cn/api/paas/v4",
	llm.ProviderKindMistral:    "https://api.mistral.ai/v1",
}

func init() {
	for kind := range defaultBaseURLs {
		k := kind
		llm.RegisterFactory(k, func(cfg llm.Config) (llm.Provider, error) {
			return newAdapter(k, cfg)
		})
	}
}

// Adapter implements llm.Provider for any OpenAI-wire-compatible vendor.
type Adapter struct {
	kind   llm.ProviderKind
	model  string
	client *openai.Client
}

func newAdapter(kind llm.ProviderKind, cfg llm.Config) (llm.Provider, error) {
	if cfg.Credential == "" {
		return nil, fmt.Errorf("openaicompat: credential required for model %q (%s)", cfg.ModelID, kind)
	}
	clientCfg := openai.DefaultConfig(cfg.Credential)
	if cfg.EndpointURL != "" {
		clientCfg.BaseURL = cfg.EndpointURL
	} else if base, ok := defaultBaseURLs[kind]; ok {
		clientCfg.BaseURL = base
	}
	return &Adapter{
		kind:   kind,
		model:  cfg.ModelName,
		client: openai.NewClientWithConfig(clientCfg),
	}, nil
}

func (a *Adapter) Kind() llm.ProviderKind { return a.kind }

func (a *Adapter) Invoke(ctx context.Context, call llm.Call) (llm.Reply, error) {
	start := time.Now()
	reply := llm.Reply{ModelID: call.ModelID}

	if call.Prompt == "" {
		return llm.Reply{}, fmt.Errorf("openaicompat: empty prompt")
	}

	ctx, cancel := context.WithDeadline(ctx, call.Deadline)
	defer cancel()

	maxTokens := call.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2048
	}

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: call.Prompt},
		},
		Temperature: float32(call.Temperature),
		MaxTokens:   maxTokens,
	})
	reply.Latency = time.Since(start)

	if err != nil {
		if ctx.Err() != nil {
			reply.ErrorKind = llm.ErrorKindCanceled
			return reply, nil
		}
		var apiErr *openai.APIError
		if asAPIError(err, &apiErr) {
			reply.ErrorKind = llm.ErrorKindHTTPError
			reply.StatusCode = apiErr.HTTPStatusCode
			return reply, nil
		}
		reply.ErrorKind = llm.ErrorKindTimeout
		return reply, nil
	}

	if len(resp.Choices) == 0 {
		reply.ErrorKind = llm.ErrorKindParseError
		return reply, nil
	}

	reply.Text = resp.Choices[0].Message.Content
	reply.Success = true
	reply.PromptTokens = resp.Usage.PromptTokens
	reply.CompletionTokens = resp.Usage.CompletionTokens
	if reply.PromptTokens == 0 && reply.CompletionTokens == 0 {
		reply.PromptTokens = llm.EstimateTokens(call.Prompt)
		reply.CompletionTokens = llm.EstimateTokens(reply.Text)
		reply.TokenEstimated = true
	}
	return reply, nil
}

func asAPIError(err error, target **openai.APIError) bool {
	if apiErr, ok := err.(*openai.APIError); ok {
		*target = apiErr
		return true
	}
	return false
}

func (a *Adapter) HealthCheck(ctx context.Context) llm.HealthStatus {
	if a.client == nil {
		return llm.HealthUnhealthy
	}
	return llm.HealthHealthy
}
