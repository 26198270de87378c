package pipeline

import (
	"time"

	"github.com/montanaflynn/stats"
)

// Stats returns the current counters. Latencies cover the most recent segmentation calls.
func (s *Scheduler) Stats() Stats {
	inbox := s.inbox.Stats()
	rejected := s.rejected.Load()
	st := Stats{
		Ticks:     s.ticks.Load(),
		Offered:   inbox.Offered + rejected,
		Dropped:   inbox.Dropped() + rejected,
		Processed: s.processed.Load(),
		Skipped:   s.skipped.Load(),
		Failed:    s.failed.Load(),
		State:     s.State().String(),
	}

	s.mu.Lock()
	data := stats.Float64Data(append([]float64(nil), s.latencies...))
	elapsed := s.clock.Since(s.started)
	s.mu.Unlock()

	if elapsed > 0 {
		st.FramesPerSecond = float64(st.Processed) / elapsed.Seconds()
	}
	if mean, err := data.Mean(); err == nil {
		st.LatencyMean = time.Duration(mean)
	}
	if p95, err := data.Percentile(95); err == nil {
		st.LatencyP95 = time.Duration(p95)
	}
	return st
}
