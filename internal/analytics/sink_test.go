package analytics

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n0rvyn/cross-mind-consensus/internal/consensus"
)

// fakeStore is an in-memory Store double so Sink's queueing/backpressure
// behaviour can be tested independently of SQL.
type fakeStore struct {
	mu      sync.Mutex
	records []Record
	block   chan struct{} // if non-nil, Insert waits on it before returning
	failN   int           // leading calls to fail
	calls   int
}

func (f *fakeStore) Insert(rec Record) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failN {
		return assert.AnError
	}
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeStore) InsertFeedback(FeedbackRecord) error { return nil }

func (f *fakeStore) Summary(time.Duration) (Summary, error)                        { return Summary{}, nil }
func (f *fakeStore) ModelPerformance(time.Duration) ([]ModelPerformance, error)     { return nil, nil }
func (f *fakeStore) Trend(time.Duration, time.Duration) ([]TrendPoint, error)       { return nil, nil }

func (f *fakeStore) recordCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

func newSinkWithTempFallback(t *testing.T, store Store, backlog, workers int) *Sink {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "analytics-fallback-*.jsonl")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	s, err := NewSink(store, backlog, workers, f.Name())
	require.NoError(t, err)
	return s
}

func TestSink_Record_DrainsToStore(t *testing.T) {
	store := &fakeStore{}
	s := newSinkWithTempFallback(t, store, 10, 2)

	s.Record(consensus.AnalyticsRecord{Fingerprint: "fp1", Success: true, ConsensusScore: 0.9})
	s.Record(consensus.AnalyticsRecord{Fingerprint: "fp2", Success: true, ConsensusScore: 0.8})

	require.NoError(t, s.Shutdown(context.Background()))
	assert.Equal(t, 2, store.recordCount())
}

func TestSink_Record_NeverBlocksOnFullQueue(t *testing.T) {
	store := &fakeStore{block: make(chan struct{})}
	s := newSinkWithTempFallback(t, store, 1, 1)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			s.Record(consensus.AnalyticsRecord{Fingerprint: "fp"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Record blocked the caller despite a full queue")
	}

	close(store.block)
	_ = s.Shutdown(context.Background())
	assert.Greater(t, int(s.dropped), 0)
}

func TestSink_InsertFailure_WritesFallback(t *testing.T) {
	store := &fakeStore{failN: 100}
	fallback, err := os.CreateTemp(t.TempDir(), "analytics-fallback-*.jsonl")
	require.NoError(t, err)
	require.NoError(t, fallback.Close())

	s, err := NewSink(store, 10, 1, fallback.Name())
	require.NoError(t, err)

	s.Record(consensus.AnalyticsRecord{Fingerprint: "fp-failing"})
	require.NoError(t, s.Shutdown(context.Background()))

	data, err := os.ReadFile(fallback.Name())
	require.NoError(t, err)
	assert.Contains(t, string(data), "fp-failing")
}

func TestSink_Shutdown_TimesOutAndDrainsToFallback(t *testing.T) {
	store := &fakeStore{block: make(chan struct{})}
	s := newSinkWithTempFallback(t, store, 10, 1)

	s.Record(consensus.AnalyticsRecord{Fingerprint: "fp-slow"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := s.Shutdown(ctx)
	assert.Error(t, err)
	close(store.block)
}
