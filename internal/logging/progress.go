package logging

import "sync"

// ProgressSampler suppresses repetitive progress logs, emitting only when the
// completed fraction crosses a new bucket boundary. It is safe for concurrent
// use by pool workers.
type ProgressSampler struct {
	mu         sync.Mutex
	bucketSize float64
	lastBucket int
}

// NewProgressSampler constructs a sampler that emits when the percent crosses
// bucket boundaries (default 10%).
func NewProgressSampler(bucketSize float64) *ProgressSampler {
	if bucketSize <= 0 {
		bucketSize = 10
	}
	return &ProgressSampler{bucketSize: bucketSize}
}

// Observe records done of total units and reports whether the caller should
// log the new percentage.
func (s *ProgressSampler) Observe(done, total int) (float64, bool) {
	if total <= 0 {
		return 0, false
	}
	percent := float64(done) / float64(total) * 100
	if s == nil {
		return percent, true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket := int(percent / s.bucketSize)
	if bucket <= s.lastBucket {
		return percent, false
	}
	s.lastBucket = bucket
	return percent, true
}
