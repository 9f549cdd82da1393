package consensus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n0rvyn/cross-mind-consensus/internal/cache"
	"github.com/n0rvyn/cross-mind-consensus/internal/embedding"
	"github.com/n0rvyn/cross-mind-consensus/internal/llm"
)

// fakeProvider is a scripted llm.Provider used to drive the engine through
// its fan-out, retry, and chain-refinement paths without any network I/O.
type fakeProvider struct {
	kind       llm.ProviderKind
	text       string
	fail       llm.ErrorKind // non-empty: always fail with this kind
	failCount  int           // number of leading calls to fail before succeeding
	calls      int
	sleep      time.Duration
	respondFor func(prompt string) string
}

func (p *fakeProvider) Kind() llm.ProviderKind { return p.kind }

func (p *fakeProvider) Invoke(ctx context.Context, call llm.Call) (llm.Reply, error) {
	p.calls++
	if p.sleep > 0 {
		select {
		case <-time.After(p.sleep):
		case <-ctx.Done():
			return llm.Reply{ModelID: call.ModelID, Success: false, ErrorKind: llm.ErrorKindCanceled}, nil
		}
	}
	if p.failCount > 0 && call.Attempt <= p.failCount {
		return llm.Reply{ModelID: call.ModelID, Success: false, ErrorKind: llm.ErrorKindTimeout}, nil
	}
	if p.fail != "" {
		return llm.Reply{ModelID: call.ModelID, Success: false, ErrorKind: p.fail}, nil
	}
	text := p.text
	if p.respondFor != nil {
		text = p.respondFor(call.Prompt)
	}
	return llm.Reply{ModelID: call.ModelID, Text: text, Success: true, PromptTokens: 5, CompletionTokens: 5}, nil
}

func (p *fakeProvider) HealthCheck(ctx context.Context) llm.HealthStatus { return llm.HealthHealthy }

// fakeResolver maps model id directly to a fakeProvider, bypassing the real
// factory registry.
type fakeResolver map[string]llm.Provider

func (r fakeResolver) Get(modelID string) (llm.Provider, error) {
	p, ok := r[modelID]
	if !ok {
		return nil, &llm.RegistryError{ModelID: modelID, Message: "not configured"}
	}
	return p, nil
}

type fakeRecorder struct {
	records []AnalyticsRecord
}

func (f *fakeRecorder) Record(rec AnalyticsRecord) { f.records = append(f.records, rec) }

func baseRequest(models []string) Request {
	return Request{
		Question:         "What is 2+2?",
		SelectedModelIDs:  models,
		Method:            MethodDirectConsensus,
		Temperature:       0.7,
		Weights:           []float64{1, 1, 1}[:len(models)],
		EnableCaching:     true,
		ChainDepth:        1,
	}
}

func newTestEngine(resolver fakeResolver, recorder *fakeRecorder) *Engine {
	e := NewEngine(resolver, embedding.LocalEmbedder{}, cache.NewMemoryCache(), recorder)
	e.RequestTimeout = 2 * time.Second
	return e
}

func TestEngine_HappyPath_ThreeModelsAgree(t *testing.T) {
	resolver := fakeResolver{
		"m1": &fakeProvider{kind: llm.ProviderKindOpenAIChat, text: "4"},
		"m2": &fakeProvider{kind: llm.ProviderKindOpenAIChat, text: "4"},
		"m3": &fakeProvider{kind: llm.ProviderKindOpenAIChat, text: "4"},
	}
	rec := &fakeRecorder{}
	e := newTestEngine(resolver, rec)

	req := baseRequest([]string{"m1", "m2", "m3"})
	req.ChainDepth = 0

	result, err := e.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "4", result.ConsensusText)
	assert.InDelta(t, 1.0, result.ConsensusScore, 1e-9)
	assert.False(t, result.CacheHit)
	assert.Len(t, result.PerModel, 3)
	require.Len(t, rec.records, 1)
	assert.True(t, rec.records[0].Success)
}

func TestEngine_CacheHit_ReturnsIdenticalText(t *testing.T) {
	resolver := fakeResolver{
		"m1": &fakeProvider{kind: llm.ProviderKindOpenAIChat, text: "4"},
		"m2": &fakeProvider{kind: llm.ProviderKindOpenAIChat, text: "4"},
		"m3": &fakeProvider{kind: llm.ProviderKindOpenAIChat, text: "4"},
	}
	rec := &fakeRecorder{}
	e := newTestEngine(resolver, rec)

	req := baseRequest([]string{"m1", "m2", "m3"})
	req.ChainDepth = 0

	first, err := e.Run(context.Background(), req)
	require.NoError(t, err)
	require.False(t, first.CacheHit)

	second, err := e.Run(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
	assert.Equal(t, first.ConsensusText, second.ConsensusText)
	assert.Less(t, second.TotalLatency, 50*time.Millisecond)
}

func TestEngine_LowAgreement_TriggersChainRefinement(t *testing.T) {
	resolver := fakeResolver{
		"m1": &fakeProvider{kind: llm.ProviderKindOpenAIChat, text: "Python"},
		"m2": &fakeProvider{kind: llm.ProviderKindOpenAIChat, respondFor: func(prompt string) string {
			return "a clearer, improved answer"
		}},
	}
	rec := &fakeRecorder{}
	e := newTestEngine(resolver, rec)

	req := baseRequest([]string{"m1", "m2"})
	req.Weights = []float64{1, 1}
	req.ChainDepth = 1

	result, err := e.Run(context.Background(), req)
	require.NoError(t, err)
	assert.NotEmpty(t, result.ConsensusText)
	assert.Len(t, result.ChainTrace, 1)
}

func TestEngine_OneProviderTimesOut_ScoresOverRemaining(t *testing.T) {
	resolver := fakeResolver{
		"m1": &fakeProvider{kind: llm.ProviderKindOpenAIChat, text: "4"},
		"m2": &fakeProvider{kind: llm.ProviderKindOpenAIChat, text: "4"},
		"m3": &fakeProvider{kind: llm.ProviderKindOpenAIChat, fail: llm.ErrorKindTimeout},
	}
	rec := &fakeRecorder{}
	e := newTestEngine(resolver, rec)
	e.MaxRetries = 0

	req := baseRequest([]string{"m1", "m2", "m3"})
	req.ChainDepth = 0

	result, err := e.Run(context.Background(), req)
	require.NoError(t, err)

	var failed bool
	for _, pm := range result.PerModel {
		if pm.ModelID == "m3" {
			failed = true
			assert.False(t, pm.Success)
			assert.Equal(t, string(llm.ErrorKindTimeout), pm.ErrorKind)
		}
	}
	assert.True(t, failed)
	assert.InDelta(t, 1.0, result.ConsensusScore, 1e-9)
}

func TestEngine_AllProvidersFail_ReturnsConsensusFailed(t *testing.T) {
	resolver := fakeResolver{
		"m1": &fakeProvider{kind: llm.ProviderKindOpenAIChat, fail: llm.ErrorKindHTTPError},
		"m2": &fakeProvider{kind: llm.ProviderKindOpenAIChat, fail: llm.ErrorKindHTTPError},
		"m3": &fakeProvider{kind: llm.ProviderKindOpenAIChat, fail: llm.ErrorKindHTTPError},
	}
	rec := &fakeRecorder{}
	e := newTestEngine(resolver, rec)
	e.MaxRetries = 0

	req := baseRequest([]string{"m1", "m2", "m3"})

	_, err := e.Run(context.Background(), req)
	require.Error(t, err)
	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, ErrorKindConsensusFailed, cerr.Kind)

	require.Len(t, rec.records, 1)
	assert.False(t, rec.records[0].Success)
}

func TestEngine_TwoModelsOneFails_ReturnsPartial(t *testing.T) {
	resolver := fakeResolver{
		"m1": &fakeProvider{kind: llm.ProviderKindOpenAIChat, text: "survivor"},
		"m2": &fakeProvider{kind: llm.ProviderKindOpenAIChat, fail: llm.ErrorKindHTTPError},
	}
	rec := &fakeRecorder{}
	e := newTestEngine(resolver, rec)
	e.MaxRetries = 0

	req := baseRequest([]string{"m1", "m2"})
	req.Weights = []float64{1, 1}

	result, err := e.Run(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, result.Partial)
	assert.Equal(t, 0.0, result.ConsensusScore)
	assert.Equal(t, "survivor", result.ConsensusText)
}

func TestEngine_RetriesTransientFailureWithinBudget(t *testing.T) {
	flaky := &fakeProvider{kind: llm.ProviderKindOpenAIChat, text: "4", failCount: 1}
	resolver := fakeResolver{
		"m1": flaky,
		"m2": &fakeProvider{kind: llm.ProviderKindOpenAIChat, text: "4"},
	}
	rec := &fakeRecorder{}
	e := newTestEngine(resolver, rec)
	e.MinSuccess = 2

	req := baseRequest([]string{"m1", "m2"})
	req.Weights = []float64{1, 1}
	req.ChainDepth = 0

	result, err := e.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "4", result.ConsensusText)
	assert.GreaterOrEqual(t, flaky.calls, 2)
}

func TestFanOutOrdering_PreservesRequestOrder(t *testing.T) {
	resolver := fakeResolver{
		"slow": &fakeProvider{kind: llm.ProviderKindOpenAIChat, text: "slow-answer", sleep: 20 * time.Millisecond},
		"fast": &fakeProvider{kind: llm.ProviderKindOpenAIChat, text: "fast-answer"},
	}
	e := newTestEngine(resolver, &fakeRecorder{})
	replies := e.fanOut(context.Background(), []string{"slow", "fast"}, []string{"p1", "p2"}, 0.7, time.Now().Add(time.Second))
	require.Len(t, replies, 2)
	assert.Equal(t, "slow-answer", replies[0].Text)
	assert.Equal(t, "fast-answer", replies[1].Text)
}
