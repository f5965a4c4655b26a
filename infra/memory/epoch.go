package memory

import "sync/atomic"

const inactive = ^uint64(0)

// ReaderEpoch marks when a participant entered a read section.
type ReaderEpoch struct {
	epoch atomic.Uint64
}

// Enter records the epoch the reader pinned at.
func (r *ReaderEpoch) Enter(at uint64) {
	r.epoch.Store(at)
}

// Exit marks the reader as inactive.
func (r *ReaderEpoch) Exit() {
	r.epoch.Store(inactive)
}

func (r *ReaderEpoch) Value() uint64 {
	return r.epoch.Load()
}

// Active reports whether the reader is inside a read section.
func (r *ReaderEpoch) Active() bool {
	return r.epoch.Load() != inactive
}

// ReclaimablePool is the ONLY requirement for reclamation.
// It is intentionally type-erased.
type ReclaimablePool interface {
	PutAny(any)
}

// retired is one deferred reclamation action, stamped with the global
// epoch observed after the object was unlinked.
type retired struct {
	epoch uint64
	obj   any
	pool  ReclaimablePool
	fn    func()
}

func (r *retired) run() {
	if r.fn != nil {
		r.fn()
		return
	}
	r.pool.PutAny(r.obj)
}

// overflowEntry holds a retired action that did not fit its ring.
// Entries are never recycled, so the overflow list is immune to ABA.
type overflowEntry struct {
	retired
	next *overflowEntry
}

func minReaderEpoch(head *participant) uint64 {
	lo := inactive
	for p := head; p != nil; p = p.next {
		if v := p.Value(); v < lo {
			lo = v
		}
	}
	return lo
}
