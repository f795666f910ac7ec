package pipeline

import (
	"sync"

	"github.com/cairnbackup/cairn/cairnlog"
)

// progressStepper guards a cairnlog.ProgressLogger for use from the
// worker pool: ProgressLogger's counters are plain ints, updated
// safely by the teacher's single-threaded import/export walk but not
// by the concurrent fan-out this pipeline uses instead.
type progressStepper struct {
	mu sync.Mutex
	p  *cairnlog.ProgressLogger
}

func newProgressStepper(p *cairnlog.ProgressLogger) *progressStepper {
	return &progressStepper{p: p}
}

func (s *progressStepper) step() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.p.Step(1)
}
