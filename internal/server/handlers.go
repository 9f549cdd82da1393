package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/n0rvyn/cross-mind-consensus/internal/analytics"
	"github.com/n0rvyn/cross-mind-consensus/internal/consensus"
)

const maxBatchQueries = 50

// handleHealth reports liveness plus coarse dependency state, grounded on
// orchestrator/run.go's healthHandler component-map shape.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	components := map[string]bool{
		"engine":      s.Engine != nil,
		"model_store": s.Models != nil && len(s.Models.Snapshot().All()) > 0,
		"analytics":   s.Analytics != nil,
	}
	writeJSON(w, HealthResponseBody{
		Status:     "healthy",
		Service:    "consensusd",
		Timestamp:  time.Now().UTC(),
		Components: components,
	})
}

// handleConsensus implements POST /consensus (§6).
func (s *Server) handleConsensus(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	reqID := generateRequestID()

	var body ConsensusRequestBody
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		s.recordRoute("/consensus", "invalid_request", start)
		writeError(w, "invalid_request", "malformed request body: "+err.Error(), nil)
		return
	}

	req, err := toEngineRequest(body, s.Models.Snapshot())
	if err != nil {
		s.recordRoute("/consensus", "invalid_request", start)
		writeError(w, "invalid_request", err.Error(), nil)
		return
	}

	runCtx, cancel := context.WithTimeout(r.Context(), s.Engine.Timeout())
	defer cancel()

	result, err := s.Engine.Run(runCtx, req)
	if err != nil {
		kind := engineErrorKind(err)
		log.Printf("server: consensus request %s failed: %v", reqID, err)
		s.recordRoute("/consensus", kind, start)
		writeError(w, kind, err.Error(), nil)
		return
	}

	s.recordRoute("/consensus", "200", start)
	writeJSON(w, result)
}

// handleBatch implements POST /consensus/batch, the SPEC_FULL §12
// supplemented batch semantics.
func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var body BatchConsensusRequestBody
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		s.recordRoute("/consensus/batch", "invalid_request", start)
		writeError(w, "invalid_request", "malformed request body: "+err.Error(), nil)
		return
	}
	if len(body.Queries) == 0 {
		s.recordRoute("/consensus/batch", "invalid_request", start)
		writeError(w, "invalid_request", "queries must not be empty", nil)
		return
	}
	if len(body.Queries) > maxBatchQueries {
		s.recordRoute("/consensus/batch", "invalid_request", start)
		writeError(w, "invalid_request", "at most 50 queries are allowed per batch", nil)
		return
	}

	snapshot := s.Models.Snapshot()
	entries := make([]BatchResultEntry, len(body.Queries))

	run := func(i int) {
		req, err := toEngineRequest(body.Queries[i], snapshot)
		if err != nil {
			entries[i] = BatchResultEntry{Error: &ErrorBody{ErrorCode: "invalid_request", Message: err.Error(), Timestamp: time.Now().UTC()}}
			return
		}
		runCtx, cancel := context.WithTimeout(r.Context(), s.Engine.Timeout())
		defer cancel()

		result, err := s.Engine.Run(runCtx, req)
		if err != nil {
			kind := engineErrorKind(err)
			entries[i] = BatchResultEntry{Error: &ErrorBody{ErrorCode: kind, Message: err.Error(), Timestamp: time.Now().UTC()}}
			return
		}
		entries[i] = BatchResultEntry{Result: &result}
	}

	if body.BatchMode == "sequential" {
		for i := range body.Queries {
			run(i)
		}
	} else {
		var wg sync.WaitGroup
		for i := range body.Queries {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				run(i)
			}(i)
		}
		wg.Wait()
	}

	summary := BatchSummary{Count: len(entries)}
	var scoreSum float64
	for _, e := range entries {
		if e.Result != nil {
			summary.SuccessCount++
			scoreSum += e.Result.ConsensusScore
			summary.TotalLatency += e.Result.TotalLatency
		}
	}
	if summary.SuccessCount > 0 {
		summary.MeanConsensusScore = scoreSum / float64(summary.SuccessCount)
	}

	s.recordRoute("/consensus/batch", "200", start)
	writeJSON(w, BatchConsensusResponseBody{Results: entries, Summary: summary})
}

// handleModels implements GET /models (§6): descriptors plus runtime status.
func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	snapshot := s.Models.Snapshot()

	descriptors := snapshot.All()
	out := make([]ModelStatus, 0, len(descriptors))
	for id, d := range descriptors {
		health := "unknown"
		if d.Enabled && s.Providers != nil {
			health = string(s.Providers.Health(r.Context(), id))
		}
		out = append(out, ModelStatus{
			ID:              id,
			DisplayName:     d.DisplayName,
			ProviderKind:    string(d.ProviderKind),
			Enabled:         d.Enabled,
			Health:          health,
			CostPer1KTokens: d.CostPer1KTokens,
			Specialties:     d.Specialties,
		})
	}

	s.recordRoute("/models", "200", start)
	writeJSON(w, ModelsResponseBody{Models: out, DefaultModels: snapshot.DefaultModels()})
}

// handleAnalyticsPerformance implements GET /analytics/performance (§6),
// dispatching to one of C6's three read queries by metric_type.
func (s *Server) handleAnalyticsPerformance(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	window := 24 * time.Hour
	if tf := r.URL.Query().Get("timeframe"); tf != "" {
		d, err := time.ParseDuration(tf)
		if err != nil {
			s.recordRoute("/analytics/performance", "invalid_request", start)
			writeError(w, "invalid_request", "timeframe must be a Go duration string, e.g. \"24h\"", nil)
			return
		}
		window = d
	}

	metricType := r.URL.Query().Get("metric_type")
	if metricType == "" {
		metricType = "summary"
	}

	var (
		payload interface{}
		err     error
	)
	switch metricType {
	case "summary":
		payload, err = s.Analytics.Summary(window)
	case "model_performance":
		payload, err = s.Analytics.ModelPerformance(window)
	case "trend":
		bucket := time.Hour
		if b := r.URL.Query().Get("bucket"); b != "" {
			if parsed, perr := time.ParseDuration(b); perr == nil {
				bucket = parsed
			}
		}
		payload, err = s.Analytics.Trend(window, bucket)
	default:
		s.recordRoute("/analytics/performance", "invalid_request", start)
		writeError(w, "invalid_request", "metric_type must be one of summary, model_performance, trend", nil)
		return
	}
	if err != nil {
		log.Printf("server: analytics query %s failed: %v", metricType, err)
		s.recordRoute("/analytics/performance", "internal_error", start)
		writeError(w, "internal_error", "analytics query failed", nil)
		return
	}

	s.recordRoute("/analytics/performance", "200", start)
	writeJSON(w, payload)
}

// handleFeedback implements POST /feedback (§6): write-only into analytics,
// no effect on live scoring.
func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var body FeedbackRequestBody
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		s.recordRoute("/feedback", "invalid_request", start)
		writeError(w, "invalid_request", "malformed request body: "+err.Error(), nil)
		return
	}
	if body.ConsensusID == "" {
		s.recordRoute("/feedback", "invalid_request", start)
		writeError(w, "invalid_request", "consensus_id is required", nil)
		return
	}
	if body.Rating < 1 || body.Rating > 5 {
		s.recordRoute("/feedback", "invalid_request", start)
		writeError(w, "invalid_request", "rating must be between 1 and 5", nil)
		return
	}

	if err := s.Analytics.InsertFeedback(analytics.FeedbackRecord{
		ConsensusID: body.ConsensusID,
		Rating:      body.Rating,
		Comment:     body.Comment,
		SubmittedAt: time.Now().UTC(),
	}); err != nil {
		log.Printf("server: feedback insert failed: %v", err)
		s.recordRoute("/feedback", "internal_error", start)
		writeError(w, "internal_error", "failed to record feedback", nil)
		return
	}

	s.recordRoute("/feedback", "200", start)
	writeJSON(w, map[string]string{"status": "recorded"})
}

// engineErrorKind maps a consensus engine error to its §7 error_code,
// falling back to internal_error for anything not a *consensus.Error.
func engineErrorKind(err error) string {
	var cerr *consensus.Error
	if errors.As(err, &cerr) {
		return string(cerr.Kind)
	}
	return "internal_error"
}

// recordRoute updates the Prometheus counters for one completed request.
func (s *Server) recordRoute(route, status string, start time.Time) {
	promRequestsTotal.WithLabelValues(route, status).Inc()
	promRequestDuration.WithLabelValues(route).Observe(float64(time.Since(start).Milliseconds()))
}
