package reclaimer

import (
	"context"
	"log/slog"
	"time"

	"lockfree/infra/memory"
)

// Reclaimer advances the collector epoch on a timer so retired nodes are
// recycled even when containers go quiet and no Unpin triggers a pass.
type Reclaimer struct {
	collector *memory.Collector
	interval  time.Duration
	log       *slog.Logger
}

// ------------------------------------------------
// CONSTRUCTOR
// ------------------------------------------------

func New(c *memory.Collector, interval time.Duration, log *slog.Logger) *Reclaimer {
	return &Reclaimer{collector: c, interval: interval, log: log}
}

// ------------------------------------------------
// LOOP
// ------------------------------------------------

// Start runs the loop on its own goroutine.
func (r *Reclaimer) Start(ctx context.Context) {
	go r.Run(ctx)
}

// Run blocks until ctx is done.
func (r *Reclaimer) Run(ctx context.Context) {
	r.log.Info("reclaimer started", "interval", r.interval)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			n := r.collector.AdvanceEpochAndReclaim()
			r.log.Info("reclaimer stopped", "final_reclaimed", n)
			return

		case <-ticker.C:
			r.tick()
		}
	}
}

func (r *Reclaimer) tick() int {
	n := r.collector.AdvanceEpochAndReclaim()
	if n > 0 {
		st := r.collector.Stats()
		r.log.Debug("reclaimed",
			"count", n, "epoch", st.Epoch, "pending", st.Pending())
	}
	return n
}
