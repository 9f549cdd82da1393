// Package analytics implements C6: the fire-and-forget query analytics
// sink and the read queries §4.6 exposes over what it has recorded.
package analytics

import (
	"time"

	"github.com/n0rvyn/cross-mind-consensus/internal/consensus"
)

// Record is the durable row §3's QueryAnalyticsRecord describes, stamped
// with the identity fields (query_id, timestamp) the engine itself does not
// know how to assign.
type Record struct {
	QueryID        string
	Timestamp      time.Time
	Fingerprint    string
	Method         consensus.Method
	ConsensusScore float64
	TotalLatency   time.Duration
	Success        bool
	CacheHit       bool
	PerModel       []consensus.ModelAnalytics
	CostEstimate   float64
}

// fromEngine adapts a consensus.AnalyticsRecord into a durable Record,
// assigning the identity fields the engine leaves unset.
func fromEngine(rec consensus.AnalyticsRecord, queryID string, ts time.Time) Record {
	return Record{
		QueryID:        queryID,
		Timestamp:      ts,
		Fingerprint:    rec.Fingerprint,
		Method:         rec.Method,
		ConsensusScore: rec.ConsensusScore,
		TotalLatency:   rec.TotalLatency,
		Success:        rec.Success,
		CacheHit:       rec.CacheHit,
		PerModel:       rec.PerModel,
		CostEstimate:   rec.CostEstimate,
	}
}

// Summary is the aggregate §4.6's summary(window) query returns.
type Summary struct {
	Count         int
	SuccessRate   float64
	MedianLatency time.Duration
	MedianScore   float64
	CacheHitRate  float64
}

// ModelPerformance is one row of §4.6's model_performance(window) query.
type ModelPerformance struct {
	ModelID           string
	SuccessRate       float64
	P50Latency        time.Duration
	P95Latency        time.Duration
	MeanAgreement     float64
	EstimatedCost     float64
}

// TrendPoint is one time bucket of §4.6's trend(window, bucket) query.
type TrendPoint struct {
	BucketStart   time.Time
	MeanScore     float64
	P95Latency    time.Duration
}

// FeedbackRecord is a user rating tied to a prior consensus_id, written by
// POST /feedback. Per the supplemented feature note, it is write-only into
// analytics storage and has no effect on live scoring.
type FeedbackRecord struct {
	ConsensusID string
	Rating      int
	Comment     string
	SubmittedAt time.Time
}

// Store is the persistence capability a Sink drains into. Implementations
// must treat every method as best-effort: Insert failures are retried by
// the caller, not by Store itself.
type Store interface {
	Insert(rec Record) error
	InsertFeedback(fb FeedbackRecord) error
	Summary(window time.Duration) (Summary, error)
	ModelPerformance(window time.Duration) ([]ModelPerformance, error)
	Trend(window, bucket time.Duration) ([]TrendPoint, error)
}
