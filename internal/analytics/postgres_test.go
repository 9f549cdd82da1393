package analytics

import (
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n0rvyn/cross-mind-consensus/internal/consensus"
)

func TestPostgresStore_Insert_MarshalsPerModel(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)
	rec := Record{
		QueryID:        "q1",
		Timestamp:      time.Now(),
		Fingerprint:    "fp1",
		Method:         consensus.MethodDirectConsensus,
		ConsensusScore: 0.9,
		TotalLatency:   1500 * time.Millisecond,
		Success:        true,
		CacheHit:       false,
		CostEstimate:   0.002,
		PerModel: []consensus.ModelAnalytics{
			{ModelID: "m1", Success: true, Latency: 500 * time.Millisecond, PairwiseScore: 0.95, CostEstimate: 0.001},
		},
	}

	mock.ExpectExec("INSERT INTO query_analytics").
		WithArgs(rec.QueryID, rec.Timestamp, rec.Fingerprint, string(rec.Method), rec.ConsensusScore,
			rec.TotalLatency.Milliseconds(), rec.Success, rec.CacheHit, rec.CostEstimate, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, store.Insert(rec))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Summary_ScansAggregates(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)
	rows := sqlmock.NewRows([]string{"count", "success_rate", "median_latency", "median_score", "cache_hit_rate"}).
		AddRow(10, 0.9, 1200.0, 0.85, 0.3)
	mock.ExpectQuery("FROM query_analytics").WillReturnRows(rows)

	summary, err := store.Summary(time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 10, summary.Count)
	assert.InDelta(t, 0.9, summary.SuccessRate, 1e-9)
	assert.Equal(t, 1200*time.Millisecond, summary.MedianLatency)
	assert.InDelta(t, 0.3, summary.CacheHitRate, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ModelPerformance_ScansRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)
	rows := sqlmock.NewRows([]string{"model_id", "success_rate", "p50", "p95", "mean_agreement", "cost"}).
		AddRow("m1", 0.95, 400.0, 900.0, 0.88, 1.23).
		AddRow("m2", 0.80, 600.0, 1500.0, 0.75, 0.45)
	mock.ExpectQuery("FROM query_analytics, jsonb_array_elements").WillReturnRows(rows)

	perf, err := store.ModelPerformance(24 * time.Hour)
	require.NoError(t, err)
	require.Len(t, perf, 2)
	assert.Equal(t, "m1", perf[0].ModelID)
	assert.Equal(t, 400*time.Millisecond, perf[0].P50Latency)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Trend_ScansBuckets(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresStore(db)
	bucketStart := time.Now().Truncate(time.Hour)
	rows := sqlmock.NewRows([]string{"bucket_start", "mean_score", "p95"}).
		AddRow(bucketStart, 0.9, 800.0)
	mock.ExpectQuery("FROM query_analytics").WillReturnRows(rows)

	trend, err := store.Trend(7*24*time.Hour, time.Hour)
	require.NoError(t, err)
	require.Len(t, trend, 1)
	assert.InDelta(t, 0.9, trend[0].MeanScore, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}
