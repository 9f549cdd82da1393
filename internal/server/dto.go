package server

import (
	"time"

	"github.com/n0rvyn/cross-mind-consensus/internal/consensus"
)

// ConsensusRequestBody is the wire shape of POST /consensus (§6). Unknown
// fields are rejected by the decoder that reads it.
type ConsensusRequestBody struct {
	Question             string    `json:"question"`
	Method               string    `json:"method,omitempty"`
	Models               []string  `json:"models,omitempty"`
	MaxModels            int       `json:"max_models,omitempty"`
	Temperature          *float64  `json:"temperature,omitempty"`
	Weights              []float64 `json:"weights,omitempty"`
	EnableCaching        *bool     `json:"enable_caching,omitempty"`
	EnableChainOfThought bool      `json:"enable_chain_of_thought,omitempty"`
	ReasoningMethod      string    `json:"reasoning_method,omitempty"`
	ChainDepth           *int      `json:"chain_depth,omitempty"`
	Roles                []string  `json:"roles,omitempty"`
}

// ConsensusResponseBody mirrors consensus.Result field-for-field (§6:
// "exactly the ConsensusResult fields from §3. Absent optional fields are
// omitted, not null").
type ConsensusResponseBody = consensus.Result

// BatchConsensusRequestBody is the supplemented batch shape (SPEC_FULL §12),
// capped at 50 entries by the handler.
type BatchConsensusRequestBody struct {
	Queries   []ConsensusRequestBody `json:"queries"`
	BatchMode string                 `json:"batch_mode,omitempty"` // "parallel" (default) | "sequential"
}

// BatchResultEntry pairs one query's outcome with its index so a partial
// batch failure doesn't lose positional correspondence to the request.
type BatchResultEntry struct {
	Result *consensus.Result `json:"result,omitempty"`
	Error  *ErrorBody        `json:"error,omitempty"`
}

// BatchSummary aggregates a batch the way the original's batch_summary dict
// does (SPEC_FULL §12).
type BatchSummary struct {
	Count             int           `json:"count"`
	SuccessCount      int           `json:"success_count"`
	MeanConsensusScore float64      `json:"mean_consensus_score"`
	TotalLatency      time.Duration `json:"total_latency"`
}

// BatchConsensusResponseBody is POST /consensus/batch's 200 body (§6:
// "{results:[…], summary}").
type BatchConsensusResponseBody struct {
	Results []BatchResultEntry `json:"results"`
	Summary BatchSummary       `json:"summary"`
}

// ModelStatus is one entry of GET /models's response, joining the static
// descriptor with the live health the registry has cached for it.
type ModelStatus struct {
	ID              string   `json:"id"`
	DisplayName     string   `json:"display_name"`
	ProviderKind    string   `json:"provider_kind"`
	Enabled         bool     `json:"enabled"`
	Health          string   `json:"health"`
	CostPer1KTokens float64  `json:"cost_per_1k_tokens"`
	Specialties     []string `json:"specialties,omitempty"`
}

// ModelsResponseBody is GET /models's 200 body.
type ModelsResponseBody struct {
	Models        []ModelStatus `json:"models"`
	DefaultModels []string      `json:"default_models"`
}

// FeedbackRequestBody is POST /feedback's body (§6): "User rating 1-5 tied
// to consensus_id".
type FeedbackRequestBody struct {
	ConsensusID string `json:"consensus_id"`
	Rating      int    `json:"rating"`
	Comment     string `json:"comment,omitempty"`
}

// HealthResponseBody is GET /health's 200 body, grounded on
// orchestrator/run.go's healthHandler component-map shape.
type HealthResponseBody struct {
	Status     string          `json:"status"`
	Service    string          `json:"service"`
	Timestamp  time.Time       `json:"timestamp"`
	Components map[string]bool `json:"components"`
}

// ErrorBody is §6's uniform error envelope.
type ErrorBody struct {
	ErrorCode string                 `json:"error_code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}
