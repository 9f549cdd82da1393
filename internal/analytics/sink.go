package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/n0rvyn/cross-mind-consensus/internal/consensus"
)

// DefaultMaxBacklog is §4.6's "drops (and logs) records if the backing queue
// exceeds max_backlog (default 10,000)".
const DefaultMaxBacklog = 10_000

const (
	insertMaxRetries = 3
	insertBaseDelay  = 100 * time.Millisecond
)

// Sink is C6: a buffered queue plus a fixed worker pool draining into Store,
// grounded on agent/audit_queue.go's AuditQueue. Record never blocks the
// caller (§4.6); on overflow the entry is written to a fallback file instead
// of being silently lost, and the drop itself is logged and counted.
type Sink struct {
	store        Store
	queue        chan Record
	workers      int
	wg           sync.WaitGroup
	fallbackFile *os.File
	fallbackMu   sync.Mutex

	dropped uint64
	failed  uint64
}

// NewSink opens fallbackPath and starts workers goroutines draining queue
// entries into store. maxBacklog <= 0 uses DefaultMaxBacklog.
func NewSink(store Store, maxBacklog, workers int, fallbackPath string) (*Sink, error) {
	if maxBacklog <= 0 {
		maxBacklog = DefaultMaxBacklog
	}
	if workers <= 0 {
		workers = 2
	}
	fallbackFile, err := os.OpenFile(fallbackPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("analytics: failed to open fallback file: %w", err)
	}

	s := &Sink{
		store:        store,
		queue:        make(chan Record, maxBacklog),
		workers:      workers,
		fallbackFile: fallbackFile,
	}
	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
	log.Printf("analytics: sink started with %d workers, backlog %d, fallback %s", workers, maxBacklog, fallbackPath)
	return s, nil
}

// Record implements consensus.AnalyticsRecorder: it stamps identity fields
// and enqueues, falling back to the on-disk log immediately if the queue is
// full rather than blocking the request path.
func (s *Sink) Record(rec consensus.AnalyticsRecord) {
	full := fromEngine(rec, uuid.NewString(), time.Now())
	select {
	case s.queue <- full:
	default:
		s.dropped++
		log.Printf("analytics: queue full, writing record %s to fallback", full.QueryID)
		s.writeFallback(full)
	}
}

func (s *Sink) worker(id int) {
	defer s.wg.Done()
	for rec := range s.queue {
		if err := s.insertWithRetry(rec); err != nil {
			s.failed++
			if fbErr := s.writeFallback(rec); fbErr != nil {
				log.Printf("analytics: worker %d: failed to write fallback for %s: %v", id, rec.QueryID, fbErr)
			}
		}
	}
}

// insertWithRetry attempts Store.Insert up to insertMaxRetries times with
// exponential backoff between attempts (100ms, then 200ms), grounded on
// db_policies.go's execWithRetry.
func (s *Sink) insertWithRetry(rec Record) error {
	var lastErr error
	for attempt := 0; attempt < insertMaxRetries; attempt++ {
		if err := s.store.Insert(rec); err == nil {
			return nil
		} else {
			lastErr = err
		}
		if attempt < insertMaxRetries-1 {
			delay := insertBaseDelay * time.Duration(1<<uint(attempt))
			time.Sleep(delay)
		}
	}
	log.Printf("analytics: insert failed after %d attempts for %s: %v", insertMaxRetries, rec.QueryID, lastErr)
	return lastErr
}

func (s *Sink) writeFallback(rec Record) error {
	s.fallbackMu.Lock()
	defer s.fallbackMu.Unlock()

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("analytics: failed to marshal record: %w", err)
	}
	if _, err := fmt.Fprintf(s.fallbackFile, "%s\n", data); err != nil {
		return fmt.Errorf("analytics: failed to write fallback: %w", err)
	}
	return s.fallbackFile.Sync()
}

// Shutdown drains the queue and waits for workers to finish, or (if ctx
// expires first) writes everything still queued to the fallback file.
func (s *Sink) Shutdown(ctx context.Context) error {
	close(s.queue)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Printf("analytics: sink shutdown complete, dropped=%d failed=%d", s.dropped, s.failed)
		return s.fallbackFile.Close()
	case <-ctx.Done():
		remaining := 0
		for rec := range s.queue {
			remaining++
			if err := s.writeFallback(rec); err != nil {
				log.Printf("analytics: failed to write entry to fallback during shutdown timeout: %v", err)
			}
		}
		log.Printf("analytics: shutdown timed out, saved %d entries to fallback", remaining)
		s.fallbackFile.Close()
		return ctx.Err()
	}
}
