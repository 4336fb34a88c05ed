package runtime

import (
	"sync"
	"time"
)

// queueStats tracks local dispatch counters for one queue. Counters are
// per-process; broker-side depth comes from transport.QueueIntrospector.
type queueStats struct {
	mu              sync.Mutex
	consumers       int
	processed       uint64
	failed          uint64
	dropped         uint64
	lastProcessedAt time.Time
}

func (s *queueStats) addConsumer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consumers++
}

func (s *queueStats) recordProcessed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed++
	s.lastProcessedAt = time.Now().UTC()
}

func (s *queueStats) recordFailed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed++
}

func (s *queueStats) recordDropped() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropped++
}

func (s *queueStats) snapshot() (consumers int, processed, failed, dropped uint64, lastProcessedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.consumers, s.processed, s.failed, s.dropped, s.lastProcessedAt
}
