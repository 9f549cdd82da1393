// Package consensus implements C5, the heart of the system: fan-out
// orchestration, weighted-pairwise agreement scoring, and the optional
// chain-refinement loop described in §4.5.
package consensus

import "time"

// Method is the closed set of consensus strategies §3 names.
type Method string

const (
	MethodExpertRoles     Method = "expert_roles"
	MethodDirectConsensus Method = "direct_consensus"
	MethodDebate          Method = "debate"
	MethodChain           Method = "chain"
)

// Request is the normalised input to the engine, after §3's validation.
type Request struct {
	Question             string
	Roles                []string
	SelectedModelIDs     []string
	Method               Method
	Temperature          float64
	Weights              []float64
	ChainDepth           int
	EnableChainOfThought bool
	EnableCaching        bool
	MaxModels            int
	ReasoningMethod      string
}

// ChainRound is one entry of chain_trace per §3.
type ChainRound struct {
	Round      int     `json:"round"`
	CriticID   string  `json:"critic_id"`
	Critique   string  `json:"critique"`
	ReviserID  string  `json:"reviser_id"`
	RevisedText string `json:"revised_text"`
	NewScore   float64 `json:"new_score"`
}

// ModelResult is one enriched per_model entry of the returned Result.
type ModelResult struct {
	ModelID          string        `json:"model_id"`
	Text             string        `json:"text"`
	Success          bool          `json:"success"`
	ErrorKind        string        `json:"error_kind,omitempty"`
	Latency          time.Duration `json:"latency"`
	PromptTokens     int           `json:"prompt_tokens"`
	CompletionTokens int           `json:"completion_tokens"`
	Weight           float64       `json:"weight"`
	PairwiseScore    float64       `json:"pairwise_score"`
}

// Result is the returned artifact, per §3.
type Result struct {
	ConsensusText   string                 `json:"consensus_text"`
	ConsensusScore  float64                `json:"consensus_score"`
	PerModel        []ModelResult          `json:"per_model"`
	MethodUsed      Method                 `json:"method_used"`
	ModelsUsed      []string               `json:"models_used"`
	CacheHit        bool                   `json:"cache_hit"`
	TotalLatency    time.Duration          `json:"total_latency"`
	ChainTrace      []ChainRound           `json:"chain_trace,omitempty"`
	QualityMetrics  map[string]interface{} `json:"quality_metrics,omitempty"`
	Partial         bool                   `json:"partial,omitempty"`
	AdaptiveWeights map[string]float64     `json:"adaptive_weights,omitempty"`
}
