package broadcaster

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"

	"lockfree/infra/kafka"
	"lockfree/infra/report"
)

// Broadcaster drains the report outbox into a publisher. Delivery is
// at-least-once: an entry is marked SENT before publishing and ACKED only
// after the publisher confirms, so a crash in between replays it.
type Broadcaster struct {
	store      *report.Store
	publisher  kafka.Publisher
	interval   time.Duration
	maxRetries uint32
	log        *slog.Logger
}

// ------------------------------------------------
// CONSTRUCTOR
// ------------------------------------------------

func New(
	store *report.Store,
	publisher kafka.Publisher,
	interval time.Duration,
	maxRetries uint32,
	log *slog.Logger,
) *Broadcaster {
	return &Broadcaster{
		store:      store,
		publisher:  publisher,
		interval:   interval,
		maxRetries: maxRetries,
		log:        log,
	}
}

// ------------------------------------------------
// START LOOP
// ------------------------------------------------

func (b *Broadcaster) Start(ctx context.Context) {
	go b.Run(ctx)
}

func (b *Broadcaster) Run(ctx context.Context) {
	b.log.Info("broadcaster started", "interval", b.interval)

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.log.Info("broadcaster stopped")
			return

		case <-ticker.C:
			if _, err := b.replayOnce(ctx); err != nil {
				b.log.Warn("outbox scan failed", "err", err)
			}
		}
	}
}

// ------------------------------------------------
// REPLAY LOGIC
// ------------------------------------------------

// replayOnce publishes every NEW entry and every FAILED entry that still
// has retries left. SENT entries are left for the next process start:
// they were in flight when the previous one stopped.
func (b *Broadcaster) replayOnce(ctx context.Context) (int, error) {
	var pending []report.Entry
	collect := func(e report.Entry) error {
		if e.State == report.StateFailed && e.Retries >= b.maxRetries {
			return nil
		}
		pending = append(pending, e)
		return nil
	}
	if err := b.store.ScanByState(report.StateNew, collect); err != nil {
		return 0, err
	}
	if err := b.store.ScanByState(report.StateFailed, collect); err != nil {
		return 0, err
	}

	sent := 0
	for _, e := range pending {
		if ctx.Err() != nil {
			break
		}
		if b.publish(ctx, e) {
			sent++
		}
	}
	return sent, nil
}

func (b *Broadcaster) publish(ctx context.Context, e report.Entry) bool {
	payload, err := e.Report.JSON()
	if err != nil {
		b.log.Error("encode report", "id", e.ID, "err", err)
		return false
	}
	if err := b.store.MarkSent(e.ID); err != nil {
		b.log.Error("mark sent", "id", e.ID, "err", err)
		return false
	}

	key := []byte(strconv.FormatUint(e.ID, 10))
	if err := b.publisher.Publish(ctx, key, payload); err != nil {
		b.log.Warn("publish failed", "id", e.ID, "retries", e.Retries+1, "err", err)
		if merr := b.store.MarkFailed(e.ID); merr != nil {
			b.log.Error("mark failed", "id", e.ID, "err", errors.CombineErrors(err, merr))
		}
		return false
	}

	if err := b.store.MarkAcked(e.ID); err != nil {
		b.log.Error("mark acked", "id", e.ID, "err", err)
		return false
	}
	return true
}

// Requeue moves SENT entries left over from a previous process back to
// FAILED so the loop retries them.
func (b *Broadcaster) Requeue() (int, error) {
	var ids []uint64
	err := b.store.ScanByState(report.StateSent, func(e report.Entry) error {
		ids = append(ids, e.ID)
		return nil
	})
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		if err := b.store.MarkFailed(id); err != nil {
			return 0, err
		}
	}
	return len(ids), nil
}

// ------------------------------------------------
// SHUTDOWN
// ------------------------------------------------

func (b *Broadcaster) Close() error {
	return b.publisher.Close()
}
