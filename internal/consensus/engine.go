package consensus

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/n0rvyn/cross-mind-consensus/internal/cache"
	"github.com/n0rvyn/cross-mind-consensus/internal/embedding"
	"github.com/n0rvyn/cross-mind-consensus/internal/llm"
	"github.com/n0rvyn/cross-mind-consensus/internal/promptreg"
)

// Defaults from §4.5 and §6, used whenever an Engine is built with a zero
// value for the corresponding field.
const (
	DefaultRequestTimeout        = 30 * time.Second
	DefaultMaxRetries            = 2
	DefaultMinSuccess            = 2
	DefaultLowConsensusThreshold = 0.85
	DefaultCacheTTL              = time.Hour
	maxChainDepth                = 5
	scoreTolerance               = 1e-9
	retryBaseDelay               = 100 * time.Millisecond
)

// ProviderResolver is the capability the engine needs from C1: resolving a
// model id to the Provider that serves it. *llm.Registry satisfies this;
// tests inject fakes directly without touching the factory registry.
type ProviderResolver interface {
	Get(modelID string) (llm.Provider, error)
}

// Engine implements C5, orchestrating fan-out to C1, scoring via C2,
// optional chain refinement, and finalisation through C3/C6. Every
// dependency is injected explicitly (§9's design note against ambient
// optional singletons): a caller that wants a no-op cache or analytics sink
// passes one concretely rather than leaving the field nil.
type Engine struct {
	Providers ProviderResolver
	Embedder  embedding.Embedder
	Cache     cache.Cache
	Analytics AnalyticsRecorder

	RequestTimeout        time.Duration
	MaxRetries            int
	MinSuccess            int
	LowConsensusThreshold float64
	CacheTTL              time.Duration

	// CostPer1K gives cost_per_1k_tokens per model id, used to compute an
	// analytics record's cost_estimate (§3). Nil or a missing id costs 0.
	CostPer1K map[string]float64

	group singleflight.Group
}

// NewEngine builds an Engine, filling zero-valued tuning fields with §4.5/§6
// defaults. Cache and Analytics default to no-ops if left nil, so a caller
// that only cares about the fan-out/scoring core can omit them.
func NewEngine(providers ProviderResolver, embedder embedding.Embedder, c cache.Cache, analytics AnalyticsRecorder) *Engine {
	if c == nil {
		c = cache.NullCache{}
	}
	if analytics == nil {
		analytics = noopRecorder{}
	}
	return &Engine{
		Providers:             providers,
		Embedder:              embedder,
		Cache:                 c,
		Analytics:             analytics,
		RequestTimeout:        DefaultRequestTimeout,
		MaxRetries:            DefaultMaxRetries,
		MinSuccess:            DefaultMinSuccess,
		LowConsensusThreshold: DefaultLowConsensusThreshold,
		CacheTTL:              DefaultCacheTTL,
	}
}

// Run executes the nine-step algorithm of §4.5 for one validated request.
func (e *Engine) Run(ctx context.Context, req Request) (Result, error) {
	start := time.Now()
	fp := Fingerprint(req)

	// Step 1: fingerprint & cache lookup.
	if req.EnableCaching {
		if raw, hit := e.Cache.GetResult(ctx, fp); hit {
			var cached Result
			if err := json.Unmarshal(raw, &cached); err == nil {
				cached.CacheHit = true
				cached.TotalLatency = time.Since(start)
				e.recordAnalytics(AnalyticsRecord{
					Fingerprint:    fp,
					Method:         req.Method,
					ConsensusScore: cached.ConsensusScore,
					TotalLatency:   cached.TotalLatency,
					Success:        true,
					CacheHit:       true,
				})
				return cached, nil
			}
			log.Printf("consensus: cached result for fingerprint %s failed to decode, recomputing", fp)
		}
	}

	// Cache miss: coalesce identical in-flight fingerprints (§5: "client-side
	// coalescing is optional"), so a burst of duplicate requests pays the
	// fan-out cost once.
	v, err, _ := e.group.Do(fp, func() (interface{}, error) {
		return e.compute(ctx, req, fp, start)
	})
	if err != nil {
		return Result{}, classifyRunError(ctx, err)
	}
	result := v.(Result)
	result.TotalLatency = time.Since(start)
	return result, nil
}

// classifyRunError ensures every error Run returns is a *Error (§7: "internal
// components communicate with the enum"), mapping a request-wide context
// cancellation to canceled/deadline_exceeded ahead of whatever compute()
// itself returned.
func classifyRunError(ctx context.Context, err error) error {
	switch ctx.Err() {
	case context.DeadlineExceeded:
		return &Error{Kind: ErrorKindDeadlineExceeded, Message: "request-wide deadline exceeded"}
	case context.Canceled:
		return &Error{Kind: ErrorKindCanceled, Message: "client disconnected"}
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce
	}
	return &Error{Kind: ErrorKindInternal, Message: err.Error()}
}

// fanOutFailureKind distinguishes a shortfall caused by the shared fan-out
// deadline elapsing (or the request being canceled) from a genuine
// insufficient-consensus outcome, so §8's "deadline elapses mid-fan-out"
// case surfaces as deadline_exceeded/canceled rather than consensus_failed.
func fanOutFailureKind(fanCtx context.Context) ErrorKind {
	switch fanCtx.Err() {
	case context.DeadlineExceeded:
		return ErrorKindDeadlineExceeded
	case context.Canceled:
		return ErrorKindCanceled
	default:
		return ErrorKindConsensusFailed
	}
}

func (e *Engine) compute(ctx context.Context, req Request, fp string, start time.Time) (Result, error) {
	n := len(req.SelectedModelIDs)
	deadline := start.Add(e.requestTimeout())
	fanCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	// Step 2: prompt rendering.
	prompts := make([]string, n)
	for i := range req.SelectedModelIDs {
		role := ""
		if len(req.Roles) > 0 {
			role = req.Roles[i%len(req.Roles)]
		}
		prompt := promptreg.RenderRole(req.Question, role)
		if req.EnableChainOfThought {
			prompt = promptreg.RenderCoT(prompt, promptreg.ReasoningMethod(req.ReasoningMethod))
		}
		prompts[i] = prompt
	}

	// Step 3 & 4: fan-out with shared deadline, per-call retry on transient
	// errors.
	replies := e.fanOut(fanCtx, req.SelectedModelIDs, prompts, req.Temperature, deadline)

	perModel := make([]ModelResult, n)
	successIdx := make([]int, 0, n)
	for i, r := range replies {
		perModel[i] = ModelResult{
			ModelID:          r.ModelID,
			Text:             r.Text,
			Success:          r.Success,
			ErrorKind:        string(r.ErrorKind),
			Latency:          r.Latency,
			PromptTokens:     r.PromptTokens,
			CompletionTokens: r.CompletionTokens,
		}
		if r.Success {
			successIdx = append(successIdx, i)
		}
	}
	successCount := len(successIdx)

	// Step 5: completion criterion, with the n=2/one-failure carve-out from
	// §4.5's edge cases taking precedence over the general min_success gate.
	if successCount == 0 {
		e.recordAnalytics(AnalyticsRecord{
			Fingerprint:  fp,
			Method:       req.Method,
			TotalLatency: time.Since(start),
			Success:      false,
			PerModel:     e.modelAnalytics(perModel),
			CostEstimate: e.costEstimate(perModel),
		})
		kind := fanOutFailureKind(fanCtx)
		msg := "no provider returned a successful reply"
		if kind != ErrorKindConsensusFailed {
			msg = "fan-out deadline elapsed before any provider replied"
		}
		return Result{}, &Error{Kind: kind, Message: msg}
	}

	if n == 2 && successCount == 1 {
		idx := successIdx[0]
		perModel[idx].Weight = 1.0
		perModel[idx].PairwiseScore = 1.0
		result := Result{
			ConsensusText:  replies[idx].Text,
			ConsensusScore: 0.0,
			PerModel:       perModel,
			MethodUsed:     req.Method,
			ModelsUsed:     []string{replies[idx].ModelID},
			Partial:        true,
		}
		e.finalize(ctx, req, fp, result, start)
		return result, nil
	}

	if successCount < e.minSuccess() {
		e.recordAnalytics(AnalyticsRecord{
			Fingerprint:  fp,
			Method:       req.Method,
			TotalLatency: time.Since(start),
			Success:      false,
			PerModel:     e.modelAnalytics(perModel),
			CostEstimate: e.costEstimate(perModel),
		})
		kind := fanOutFailureKind(fanCtx)
		msg := "fewer than min_success replies succeeded"
		if kind != ErrorKindConsensusFailed {
			msg = "fan-out deadline elapsed before min_success replies completed"
		}
		return Result{}, &Error{Kind: kind, Message: msg}
	}

	// Step 6: scoring. Embed every successful reply (cache-backed).
	embeddings := make([]embedding.Vector, successCount)
	weights := make([]float64, successCount)
	reqWeights := NormalizeWeights(req.Weights, n)
	for k, idx := range successIdx {
		vec, err := e.Embedder.Embed(ctx, replies[idx].Text)
		if err != nil {
			log.Printf("consensus: embedding failed for model %s: %v", replies[idx].ModelID, err)
			vec = embedding.Vector{}
		}
		embeddings[k] = vec
		weights[k] = reqWeights[idx]
	}

	agreement := Agreement(weights, embeddings)
	for k, idx := range successIdx {
		perModel[idx].Weight = agreement.AdaptiveWeights[k]
		perModel[idx].PairwiseScore = agreement.Individual[k]
	}

	// Step 7: select consensus text — highest individual agreement, stable
	// tie-break on lower model index (successIdx is already in ascending
	// original-index order, so the first max found wins ties).
	bestK := 0
	for k := 1; k < successCount; k++ {
		if agreement.Individual[k] > agreement.Individual[bestK] {
			bestK = k
		}
	}
	consensusText := replies[successIdx[bestK]].Text
	consensusScore := agreement.S

	modelsUsed := make([]string, successCount)
	for k, idx := range successIdx {
		modelsUsed[k] = replies[idx].ModelID
	}

	result := Result{
		ConsensusText:  consensusText,
		ConsensusScore: consensusScore,
		PerModel:       perModel,
		MethodUsed:     req.Method,
		ModelsUsed:     modelsUsed,
	}

	adaptive := make(map[string]float64, successCount)
	for k, idx := range successIdx {
		adaptive[replies[idx].ModelID] = agreement.AdaptiveWeights[k]
	}
	result.AdaptiveWeights = adaptive

	// Step 8: optional chain refinement.
	if e.shouldRefine(req, consensusScore) {
		result = e.refine(fanCtx, req, result, embeddings, weights, successIdx, replies, bestK, deadline)
	}

	e.finalize(ctx, req, fp, result, start)
	return result, nil
}

func (e *Engine) shouldRefine(req Request, score float64) bool {
	if req.ChainDepth <= 0 {
		return false
	}
	if req.Method == MethodChain {
		return true
	}
	// "method = agreement" in §4.5 step 8 has no literal counterpart in the
	// method enum (§3); read as "any non-chain method", so ordinary
	// consensus runs still self-correct on low agreement.
	return score < e.lowConsensusThreshold()
}

// refine runs up to chain_depth critique/revise rounds per §4.5 step 8. The
// embeddings slice is mutated in place at bestK so each round re-scores
// against the rest of the original answer set, as the spec requires.
func (e *Engine) refine(ctx context.Context, req Request, result Result, embeddings []embedding.Vector, weights []float64, successIdx []int, replies []llm.Reply, bestK int, deadline time.Time) Result {
	rounds := req.ChainDepth
	if rounds > maxChainDepth {
		rounds = maxChainDepth
	}
	successModels := make([]string, len(successIdx))
	for k, idx := range successIdx {
		successModels[k] = replies[idx].ModelID
	}
	n := len(successModels)
	if n < 2 {
		return result
	}

	currentText := result.ConsensusText
	currentScore := result.ConsensusScore

	trace := make([]ChainRound, 0, rounds)
	for k := 0; k < rounds; k++ {
		if time.Now().After(deadline) || ctx.Err() != nil {
			break
		}
		roundsLeft := rounds - k
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		subBudget := remaining / time.Duration(roundsLeft+1)
		subDeadline := time.Now().Add(subBudget)

		criticID := successModels[(k+1)%n]
		reviserID := successModels[(k+2)%n]

		critiqueReply := e.dispatchOne(ctx, subDeadline, criticID, promptreg.RenderCritique(req.Question, currentText), req.Temperature)
		if !critiqueReply.Success {
			continue
		}
		reviseReply := e.dispatchOne(ctx, subDeadline, reviserID, promptreg.RenderRevision(req.Question, currentText, critiqueReply.Text), req.Temperature)
		if !reviseReply.Success {
			continue
		}

		revisedVec, err := e.Embedder.Embed(ctx, reviseReply.Text)
		if err != nil {
			continue
		}

		trialEmbeddings := make([]embedding.Vector, len(embeddings))
		copy(trialEmbeddings, embeddings)
		trialEmbeddings[bestK] = revisedVec
		trial := Agreement(weights, trialEmbeddings)

		round := ChainRound{
			Round:       k + 1,
			CriticID:    criticID,
			Critique:    critiqueReply.Text,
			ReviserID:   reviserID,
			RevisedText: reviseReply.Text,
			NewScore:    trial.S,
		}
		trace = append(trace, round)

		// "score must not decrease" gate, §9's resolution of the chain
		// acceptance ambiguity.
		if trial.S >= currentScore-scoreTolerance {
			currentText = reviseReply.Text
			currentScore = trial.S
			embeddings[bestK] = revisedVec
		}
	}

	result.ConsensusText = currentText
	result.ConsensusScore = currentScore
	if len(trace) > 0 {
		result.ChainTrace = trace
	}
	return result
}

func (e *Engine) finalize(ctx context.Context, req Request, fp string, result Result, start time.Time) {
	if req.EnableCaching {
		if raw, err := json.Marshal(result); err == nil {
			if err := e.Cache.PutResult(ctx, fp, raw, e.cacheTTL()); err != nil {
				log.Printf("consensus: cache write-through failed for %s: %v", fp, err)
			}
		}
	}
	e.recordAnalytics(AnalyticsRecord{
		Fingerprint:    fp,
		Method:         req.Method,
		ConsensusScore: result.ConsensusScore,
		TotalLatency:   time.Since(start),
		Success:        true,
		PerModel:       e.modelAnalytics(result.PerModel),
		CostEstimate:   e.costEstimate(result.PerModel),
	})
}

func (e *Engine) recordAnalytics(rec AnalyticsRecord) {
	if e.Analytics == nil {
		return
	}
	e.Analytics.Record(rec)
}

// modelAnalytics projects the engine's per-model results into the
// per-model breakdown AnalyticsRecord carries, pricing each successful
// reply against CostPer1K (unpriced or failed models cost 0).
func (e *Engine) modelAnalytics(perModel []ModelResult) []ModelAnalytics {
	out := make([]ModelAnalytics, len(perModel))
	for i, pm := range perModel {
		var cost float64
		if pm.Success && e.CostPer1K != nil {
			if rate, ok := e.CostPer1K[pm.ModelID]; ok {
				tokens := pm.PromptTokens + pm.CompletionTokens
				cost = float64(tokens) / 1000.0 * rate
			}
		}
		out[i] = ModelAnalytics{
			ModelID:       pm.ModelID,
			Success:       pm.Success,
			Latency:       pm.Latency,
			PairwiseScore: pm.PairwiseScore,
			CostEstimate:  cost,
		}
	}
	return out
}

// costEstimate sums a request's per-model costs into the
// QueryAnalyticsRecord.cost_estimate field (§3).
func (e *Engine) costEstimate(perModel []ModelResult) float64 {
	var total float64
	for _, m := range e.modelAnalytics(perModel) {
		total += m.CostEstimate
	}
	return total
}

// fanOut dispatches one ProviderCall per model in parallel, grounded on
// workflow_engine.go's executeStepsParallel (one goroutine per unit of work,
// a WaitGroup barrier, results written to a pre-sized slice by index so
// per_model preserves request order regardless of completion order — §5's
// ordering guarantee).
func (e *Engine) fanOut(ctx context.Context, modelIDs []string, prompts []string, temperature float64, deadline time.Time) []llm.Reply {
	replies := make([]llm.Reply, len(modelIDs))
	var wg sync.WaitGroup
	for i := range modelIDs {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			reply := e.dispatchOne(ctx, deadline, modelIDs[idx], prompts[idx], temperature)
			reply.ModelID = modelIDs[idx]
			replies[idx] = reply
		}(i)
	}
	wg.Wait()
	return replies
}

// dispatchOne invokes one model, retrying transient failures with jittered
// exponential backoff per §4.5 step 4 (100ms * 2^attempt, +/-25%), bounded
// by deadline and by MaxRetries.
func (e *Engine) dispatchOne(ctx context.Context, deadline time.Time, modelID, prompt string, temperature float64) llm.Reply {
	provider, err := e.Providers.Get(modelID)
	if err != nil {
		return llm.Reply{ModelID: modelID, Success: false, ErrorKind: llm.ErrorKindHTTPError}
	}

	attempt := 1
	var last llm.Reply
	for {
		call := llm.Call{
			ModelID:     modelID,
			Prompt:      prompt,
			Temperature: temperature,
			Deadline:    deadline,
			Attempt:     attempt,
		}
		callStart := time.Now()
		reply, invokeErr := provider.Invoke(ctx, call)
		if invokeErr != nil {
			reply = llm.Reply{ModelID: modelID, Success: false, ErrorKind: llm.ErrorKindHTTPError, Latency: time.Since(callStart)}
		}
		last = reply
		if reply.Success || !reply.ErrorKind.IsTransient(reply.StatusCode) {
			return reply
		}
		if attempt > e.maxRetries() {
			return reply
		}
		if ctx.Err() != nil {
			return reply
		}

		wait := retryBackoff(attempt)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return last
		case <-timer.C:
		}
		if !time.Now().Before(deadline) {
			return last
		}
		attempt++
	}
}

// retryBackoff computes 100ms * 2^attempt with +/-25% jitter, per §4.5
// step 4.
func retryBackoff(attempt int) time.Duration {
	base := float64(retryBaseDelay) * float64(uint(1)<<uint(attempt))
	jitter := 0.75 + rand.Float64()*0.5
	return time.Duration(base * jitter)
}

func (e *Engine) requestTimeout() time.Duration {
	if e.RequestTimeout <= 0 {
		return DefaultRequestTimeout
	}
	return e.RequestTimeout
}

// Timeout exposes the effective per-request deadline compute() enforces
// internally via fanCtx, so callers (the HTTP layer) can bound the outer
// context to the same budget instead of leaving it unbounded.
func (e *Engine) Timeout() time.Duration {
	return e.requestTimeout()
}

func (e *Engine) maxRetries() int {
	// Unlike the other tuning knobs, 0 is a meaningful explicit value here
	// (no retries at all), so only a negative field falls back to the
	// default; NewEngine always sets a non-negative value.
	if e.MaxRetries < 0 {
		return DefaultMaxRetries
	}
	return e.MaxRetries
}

func (e *Engine) minSuccess() int {
	if e.MinSuccess <= 0 {
		return DefaultMinSuccess
	}
	return e.MinSuccess
}

func (e *Engine) lowConsensusThreshold() float64 {
	if e.LowConsensusThreshold <= 0 {
		return DefaultLowConsensusThreshold
	}
	return e.LowConsensusThreshold
}

func (e *Engine) cacheTTL() time.Duration {
	if e.CacheTTL <= 0 {
		return DefaultCacheTTL
	}
	return e.CacheTTL
}
