package analytics

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq"
)

// schemaDDL creates the two tables this store needs: query_analytics, and
// query_feedback for /feedback ratings. per_model is stored
// as JSONB rather than a second normalised table, since §4.6 only requires
// read access through the three named queries, never ad-hoc joins.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS query_analytics (
	query_id         TEXT PRIMARY KEY,
	ts               TIMESTAMPTZ NOT NULL,
	fingerprint      TEXT NOT NULL,
	method           TEXT NOT NULL,
	consensus_score  DOUBLE PRECISION NOT NULL,
	total_latency_ms BIGINT NOT NULL,
	success          BOOLEAN NOT NULL,
	cache_hit        BOOLEAN NOT NULL,
	cost_estimate    DOUBLE PRECISION NOT NULL,
	per_model        JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS query_analytics_ts_idx ON query_analytics (ts);

CREATE TABLE IF NOT EXISTS query_feedback (
	id            SERIAL PRIMARY KEY,
	consensus_id  TEXT NOT NULL,
	rating        SMALLINT NOT NULL,
	comment       TEXT,
	submitted_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS query_feedback_consensus_id_idx ON query_feedback (consensus_id);
`

// PostgresStore is the C6 persistence layer, grounded on
// common/usage/recorder.go's db.Exec-insert, log-not-fail pattern.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an already-opened *sql.DB. Callers open it with
// sql.Open("postgres", dsn) themselves (lib/pq registers the driver via
// this package's blank import).
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates query_analytics and query_feedback if they do not
// already exist.
func (p *PostgresStore) EnsureSchema() error {
	_, err := p.db.Exec(schemaDDL)
	return err
}

type modelAnalyticsRow struct {
	ModelID       string  `json:"model_id"`
	Success       bool    `json:"success"`
	LatencyMs     int64   `json:"latency_ms"`
	PairwiseScore float64 `json:"pairwise_score"`
	CostEstimate  float64 `json:"cost_estimate"`
}

// Insert writes one completed query's analytics row. Errors are logged by
// the Sink that calls it, not here, mirroring recorder.go's division of
// labor between the recorder and its caller.
func (p *PostgresStore) Insert(rec Record) error {
	rows := make([]modelAnalyticsRow, len(rec.PerModel))
	for i, m := range rec.PerModel {
		rows[i] = modelAnalyticsRow{
			ModelID:       m.ModelID,
			Success:       m.Success,
			LatencyMs:     m.Latency.Milliseconds(),
			PairwiseScore: m.PairwiseScore,
			CostEstimate:  m.CostEstimate,
		}
	}
	perModelJSON, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("analytics: failed to marshal per_model: %w", err)
	}

	_, err = p.db.Exec(`
		INSERT INTO query_analytics (
			query_id, ts, fingerprint, method, consensus_score,
			total_latency_ms, success, cache_hit, cost_estimate, per_model
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (query_id) DO NOTHING
	`, rec.QueryID, rec.Timestamp, rec.Fingerprint, string(rec.Method), rec.ConsensusScore,
		rec.TotalLatency.Milliseconds(), rec.Success, rec.CacheHit, rec.CostEstimate, perModelJSON)
	if err != nil {
		log.Printf("analytics: insert failed for %s: %v", rec.QueryID, err)
	}
	return err
}

// InsertFeedback writes one user rating. It never touches query_analytics,
// matching the Open Question resolution that feedback has no effect on live
// scoring (see DESIGN.md).
func (p *PostgresStore) InsertFeedback(fb FeedbackRecord) error {
	_, err := p.db.Exec(`
		INSERT INTO query_feedback (consensus_id, rating, comment, submitted_at)
		VALUES ($1, $2, $3, $4)
	`, fb.ConsensusID, fb.Rating, fb.Comment, fb.SubmittedAt)
	if err != nil {
		log.Printf("analytics: feedback insert failed for %s: %v", fb.ConsensusID, err)
	}
	return err
}

// Summary implements §4.6's summary(window).
func (p *PostgresStore) Summary(window time.Duration) (Summary, error) {
	row := p.db.QueryRow(`
		SELECT
			count(*),
			coalesce(avg(success::int), 0),
			coalesce(percentile_cont(0.5) WITHIN GROUP (ORDER BY total_latency_ms), 0),
			coalesce(percentile_cont(0.5) WITHIN GROUP (ORDER BY consensus_score) FILTER (WHERE success), 0),
			coalesce(avg(cache_hit::int), 0)
		FROM query_analytics
		WHERE ts >= now() - $1::interval
	`, window.String())

	var (
		count         int
		successRate   float64
		medianLatency float64
		medianScore   float64
		cacheHitRate  float64
	)
	if err := row.Scan(&count, &successRate, &medianLatency, &medianScore, &cacheHitRate); err != nil {
		return Summary{}, fmt.Errorf("analytics: summary query failed: %w", err)
	}
	return Summary{
		Count:         count,
		SuccessRate:   successRate,
		MedianLatency: time.Duration(medianLatency) * time.Millisecond,
		MedianScore:   medianScore,
		CacheHitRate:  cacheHitRate,
	}, nil
}

// ModelPerformance implements §4.6's model_performance(window), unnesting
// the per_model JSONB array so aggregates are computed per model_id.
func (p *PostgresStore) ModelPerformance(window time.Duration) ([]ModelPerformance, error) {
	rows, err := p.db.Query(`
		SELECT
			m->>'model_id',
			avg((m->>'success')::boolean::int),
			percentile_cont(0.5) WITHIN GROUP (ORDER BY (m->>'latency_ms')::bigint),
			percentile_cont(0.95) WITHIN GROUP (ORDER BY (m->>'latency_ms')::bigint),
			avg((m->>'pairwise_score')::double precision),
			sum((m->>'cost_estimate')::double precision)
		FROM query_analytics, jsonb_array_elements(per_model) AS m
		WHERE ts >= now() - $1::interval
		GROUP BY m->>'model_id'
	`, window.String())
	if err != nil {
		return nil, fmt.Errorf("analytics: model_performance query failed: %w", err)
	}
	defer rows.Close()

	var out []ModelPerformance
	for rows.Next() {
		var (
			modelID       string
			successRate   float64
			p50           float64
			p95           float64
			meanAgreement float64
			cost          float64
		)
		if err := rows.Scan(&modelID, &successRate, &p50, &p95, &meanAgreement, &cost); err != nil {
			return nil, fmt.Errorf("analytics: model_performance scan failed: %w", err)
		}
		out = append(out, ModelPerformance{
			ModelID:       modelID,
			SuccessRate:   successRate,
			P50Latency:    time.Duration(p50) * time.Millisecond,
			P95Latency:    time.Duration(p95) * time.Millisecond,
			MeanAgreement: meanAgreement,
			EstimatedCost: cost,
		})
	}
	return out, rows.Err()
}

// Trend implements §4.6's trend(window, bucket), bucketing rows into fixed
// bucket-sized windows via epoch-second floor division.
func (p *PostgresStore) Trend(window, bucket time.Duration) ([]TrendPoint, error) {
	bucketSeconds := bucket.Seconds()
	if bucketSeconds <= 0 {
		bucketSeconds = 60
	}

	rows, err := p.db.Query(`
		SELECT
			to_timestamp(floor(extract(epoch FROM ts) / $2) * $2) AS bucket_start,
			avg(consensus_score),
			percentile_cont(0.95) WITHIN GROUP (ORDER BY total_latency_ms)
		FROM query_analytics
		WHERE ts >= now() - $1::interval
		GROUP BY bucket_start
		ORDER BY bucket_start
	`, window.String(), bucketSeconds)
	if err != nil {
		return nil, fmt.Errorf("analytics: trend query failed: %w", err)
	}
	defer rows.Close()

	var out []TrendPoint
	for rows.Next() {
		var (
			bucketStart time.Time
			meanScore   float64
			p95         float64
		)
		if err := rows.Scan(&bucketStart, &meanScore, &p95); err != nil {
			return nil, fmt.Errorf("analytics: trend scan failed: %w", err)
		}
		out = append(out, TrendPoint{
			BucketStart: bucketStart,
			MeanScore:   meanScore,
			P95Latency:  time.Duration(p95) * time.Millisecond,
		})
	}
	return out, rows.Err()
}
