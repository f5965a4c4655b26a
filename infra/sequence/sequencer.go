package sequence

import "sync/atomic"

// Sequencer hands out strictly increasing uint64 ids, starting after the
// value it was created with. Zero is never issued.
type Sequencer struct {
	last atomic.Uint64
}

func New(start uint64) *Sequencer {
	s := &Sequencer{}
	s.last.Store(start)
	return s
}

func (s *Sequencer) Next() uint64 {
	return s.last.Add(1)
}

// Reserve claims the block [first, first+n) in one atomic step.
func (s *Sequencer) Reserve(n uint64) (first uint64) {
	return s.last.Add(n) - n + 1
}

// Observe raises the sequencer so the next id is above v. Lower values
// are ignored, so ids found while scanning storage can be fed in any order.
func (s *Sequencer) Observe(v uint64) {
	for {
		cur := s.last.Load()
		if v <= cur || s.last.CompareAndSwap(cur, v) {
			return
		}
	}
}

// Current returns the last issued id.
func (s *Sequencer) Current() uint64 {
	return s.last.Load()
}
