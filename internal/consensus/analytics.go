package consensus

import "time"

// AnalyticsRecord is the fire-and-forget payload handed to C6 at the end of
// every request, successful or not, per §7's "analytics records are written
// even on failed requests."
type AnalyticsRecord struct {
	Fingerprint    string
	Method         Method
	ConsensusScore float64
	TotalLatency   time.Duration
	Success        bool
	CacheHit       bool
	PerModel       []ModelAnalytics
	CostEstimate   float64
}

// ModelAnalytics is one model's contribution to a completed request, the
// per-model granularity C6's model_performance(window) query aggregates
// over (§4.6: "per model_id: success rate, p50/p95 latency, mean individual
// agreement, rough cost").
type ModelAnalytics struct {
	ModelID       string
	Success       bool
	Latency       time.Duration
	PairwiseScore float64
	CostEstimate  float64
}

// AnalyticsRecorder is the C6 capability the engine depends on. Record must
// not block the caller (§4.6); the engine calls it synchronously on the
// assumption the implementation queues internally and degrades by dropping,
// never by blocking.
type AnalyticsRecorder interface {
	Record(rec AnalyticsRecord)
}

// noopRecorder discards every record. Used when an engine is built without
// an analytics sink, e.g. in unit tests that don't care about C6.
type noopRecorder struct{}

func (noopRecorder) Record(AnalyticsRecord) {}
