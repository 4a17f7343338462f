package collector

import (
	"time"

	"rabbitwatch/internal/models"
)

// SampleStore keeps the previous cumulative counters of every queue in the
// latest snapshot. It holds one sample per queue and no history.
type SampleStore struct {
	prev map[models.QueueKey]models.Sample
}

type Rates struct {
	Publish float64
	Consume float64
	Elapsed time.Duration
}

func NewSampleStore() *SampleStore {
	return &SampleStore{prev: map[models.QueueKey]models.Sample{}}
}

func (s *SampleStore) Previous(key models.QueueKey) (models.Sample, bool) {
	p, ok := s.prev[key]
	return p, ok
}

func (s *SampleStore) Len() int { return len(s.prev) }

// Rates computes per-second publish and consume rates for q against the
// stored sample. ok is false on the first sight of a queue, when no time has
// elapsed, or when a counter went backwards (broker restart).
func (s *SampleStore) Rates(q models.Queue, now time.Time) (Rates, bool) {
	p, seen := s.prev[q.Key()]
	if !seen {
		return Rates{}, false
	}
	elapsed := now.Sub(p.At)
	if elapsed <= 0 {
		return Rates{}, false
	}
	if q.Published < p.Published || q.Consumed < p.Consumed {
		return Rates{}, false
	}
	secs := elapsed.Seconds()
	return Rates{
		Publish: float64(q.Published-p.Published) / secs,
		Consume: float64(q.Consumed-p.Consumed) / secs,
		Elapsed: elapsed,
	}, true
}

// Replace swaps the store contents for the given queues. Queues missing from
// the list are forgotten.
func (s *SampleStore) Replace(queues []models.Queue, at time.Time) {
	next := make(map[models.QueueKey]models.Sample, len(queues))
	for _, q := range queues {
		next[q.Key()] = models.Sample{Published: q.Published, Consumed: q.Consumed, At: at}
	}
	s.prev = next
}
