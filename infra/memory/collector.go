package memory

import (
	"runtime"
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

const (
	defaultRingSize     = 256
	defaultCollectEvery = 64

	// fullRingRetries bounds how often a retire on a full ring retries a
	// reclamation pass before spilling.
	fullRingRetries = 4
)

// Config tunes a Collector. Zero fields take defaults.
type Config struct {
	// RingSize is the per-participant retire ring capacity (power of two).
	RingSize uint64
	// CollectEvery triggers a reclamation pass every N unpins of a participant.
	CollectEvery uint64
}

// Stats is a point-in-time view of collector counters.
type Stats struct {
	Epoch        uint64
	Participants uint64
	Retired      uint64
	Reclaimed    uint64
	Spilled      uint64
}

// Pending is the number of retired objects not yet reclaimed.
func (s Stats) Pending() uint64 {
	return s.Retired - s.Reclaimed
}

// participant is a pin slot. It is owned by at most one guard at a time;
// ring production and ops are touched only by the owner.
type participant struct {
	ReaderEpoch
	_     cpu.CacheLinePad
	owned atomic.Bool
	ops   uint64
	ring  *RetireRing
	next  *participant // immutable once published
}

// Collector is an epoch-based reclamation domain shared by any number of
// containers.
type Collector struct {
	epoch atomic.Uint64
	_     cpu.CacheLinePad

	participants atomic.Pointer[participant]
	overflow     atomic.Pointer[overflowEntry]
	collecting   atomic.Bool

	count     atomic.Uint64
	retired   atomic.Uint64
	reclaimed atomic.Uint64
	spilled   atomic.Uint64

	ringSize     uint64
	collectEvery uint64

	// pause runs between full-ring retries, giving a concurrent pass
	// time to finish.
	pause func()
}

func NewCollector(cfg Config) *Collector {
	if cfg.RingSize == 0 {
		cfg.RingSize = defaultRingSize
	}
	if cfg.CollectEvery == 0 {
		cfg.CollectEvery = defaultCollectEvery
	}
	if cfg.RingSize&(cfg.RingSize-1) != 0 {
		panic("memory.Collector: RingSize must be power of two")
	}
	return &Collector{
		ringSize:     cfg.RingSize,
		collectEvery: cfg.CollectEvery,
		pause:        runtime.Gosched,
	}
}

var defaultCollector = NewCollector(Config{})

// Default returns the process-wide collector.
func Default() *Collector {
	return defaultCollector
}

// Epoch returns the current global epoch.
func (c *Collector) Epoch() uint64 {
	return c.epoch.Load()
}

// Pin enters a read section. The returned guard must be unpinned by the
// same operation; objects reachable while pinned are not recycled before
// Unpin.
func (c *Collector) Pin() Guard {
	p := c.acquire()
	p.Enter(c.epoch.Load())
	return Guard{c: c, p: p}
}

// acquire claims a free participant or registers a new one.
func (c *Collector) acquire() *participant {
	for p := c.participants.Load(); p != nil; p = p.next {
		if !p.owned.Load() && p.owned.CompareAndSwap(false, true) {
			return p
		}
	}

	p := &participant{ring: NewRetireRing(c.ringSize)}
	p.owned.Store(true)
	p.Exit()
	for {
		head := c.participants.Load()
		p.next = head
		if c.participants.CompareAndSwap(head, p) {
			c.count.Add(1)
			return p
		}
	}
}

// AdvanceEpochAndReclaim advances the epoch and reclaims retired objects
// that are safe. Only one pass runs at a time; a concurrent call returns
// 0 immediately. It returns the number of objects reclaimed.
func (c *Collector) AdvanceEpochAndReclaim() int {
	if !c.collecting.CompareAndSwap(false, true) {
		return 0
	}
	defer c.collecting.Store(false)

	e := c.epoch.Add(1)
	head := c.participants.Load()
	// Anything retired at or after e may have been unlinked after a
	// participant that we did not see as active started reading.
	safe := min(e, minReaderEpoch(head))

	n := 0
	for p := head; p != nil; p = p.next {
		n += p.ring.reclaim(safe)
	}
	n += c.reclaimOverflow(safe)

	c.reclaimed.Add(uint64(n))
	return n
}

func (c *Collector) spill(r retired) {
	e := &overflowEntry{retired: r}
	for {
		head := c.overflow.Load()
		e.next = head
		if c.overflow.CompareAndSwap(head, e) {
			return
		}
	}
}

func (c *Collector) reclaimOverflow(safe uint64) int {
	n := 0
	e := c.overflow.Swap(nil)
	for e != nil {
		next := e.next
		if e.epoch < safe {
			e.run()
			n++
		} else {
			c.spill(e.retired)
		}
		e = next
	}
	return n
}

func (c *Collector) Stats() Stats {
	return Stats{
		Epoch:        c.epoch.Load(),
		Participants: c.count.Load(),
		Retired:      c.retired.Load(),
		Reclaimed:    c.reclaimed.Load(),
		Spilled:      c.spilled.Load(),
	}
}

// Guard scopes one pinned operation.
type Guard struct {
	c *Collector
	p *participant
}

// Epoch returns the epoch the guard pinned at.
func (g Guard) Epoch() uint64 {
	return g.p.Value()
}

// Defer schedules fn to run once no participant pinned now, or pinned
// before the object was unlinked, can still be reading it.
func (g Guard) Defer(fn func()) {
	g.retire(retired{fn: fn})
}

// Retire hands obj back to pool once it is provably unobservable.
func (g Guard) Retire(obj any, pool ReclaimablePool) {
	g.retire(retired{obj: obj, pool: pool})
}

func (g Guard) retire(r retired) {
	r.epoch = g.c.epoch.Load()
	g.c.retired.Add(1)

	if g.p.ring.Enqueue(r) {
		return
	}
	// A pass that loses the single-flight race returns without
	// draining anything, so retry a few times before spilling.
	for i := 0; i < fullRingRetries; i++ {
		g.c.AdvanceEpochAndReclaim()
		if g.p.ring.Enqueue(r) {
			return
		}
		g.c.pause()
	}
	g.c.spilled.Add(1)
	g.c.spill(r)
}

// Unpin leaves the read section and releases the participant.
func (g Guard) Unpin() {
	p := g.p
	p.Exit()
	p.ops++
	collect := p.ops%g.c.collectEvery == 0
	p.owned.Store(false)

	if collect {
		g.c.AdvanceEpochAndReclaim()
	}
}
