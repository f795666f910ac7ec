package storage

import (
	"sync"
	"sync/atomic"
	"time"
)

// Stats accumulates call counts and byte counters for a Facade's
// lifetime, plus the wall-clock span they were collected over.
//
// Grounded on the teacher's pervasive stats-on-every-backend-call
// idiom (common/ldb.go, backend/depot/depot.go wrapping).
type Stats struct {
	calls        int64
	bytesRead    int64
	bytesWritten int64

	mu      sync.RWMutex
	started time.Time
	ended   time.Time
}

// NewStats creates a Stats with Started set to now.
func NewStats() *Stats {
	return &Stats{started: timeNow()}
}

func (s *Stats) recordCall() {
	atomic.AddInt64(&s.calls, 1)
	s.mu.Lock()
	s.ended = timeNow()
	s.mu.Unlock()
}

func (s *Stats) recordBytesRead(n int)    { atomic.AddInt64(&s.bytesRead, int64(n)) }
func (s *Stats) recordBytesWritten(n int) { atomic.AddInt64(&s.bytesWritten, int64(n)) }

// Snapshot is a point-in-time copy of Stats, safe to print or log.
type Snapshot struct {
	Calls        int64
	BytesRead    int64
	BytesWritten int64
	Started      time.Time
	Ended        time.Time
}

// Snapshot returns the current counters.
func (s *Stats) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Calls:        atomic.LoadInt64(&s.calls),
		BytesRead:    atomic.LoadInt64(&s.bytesRead),
		BytesWritten: atomic.LoadInt64(&s.bytesWritten),
		Started:      s.started,
		Ended:        s.ended,
	}
}

// timeNow exists so Stats has one seam to substitute a fixed clock in
// tests without reaching for a global package variable at every call
// site.
var timeNow = time.Now
