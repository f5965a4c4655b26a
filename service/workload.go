package service

import (
	"context"
	"encoding/binary"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"

	"lockfree/domain/container"
	"lockfree/infra/memory"
	"lockfree/infra/report"
	"lockfree/infra/sequence"
)

// Workload describes one randomized stress run.
type Workload struct {
	Container    string
	Workers      int
	OpsPerWorker int
	PushRatio    float64
	Seed         uint64
	// Exact records every value to count duplicates and unknowns.
	Exact bool
}

var (
	ErrUnknownContainer = errors.New("unknown container")
	ErrInvalidWorkload  = errors.New("invalid workload")
)

const (
	valueBlock  = 1024
	cancelCheck = 1024
)

/*
Runner drives a fresh container per run with concurrent workers.

Each worker flips a seeded coin per op: push a fresh value or pop. After
all workers join, the container is drained on the calling goroutine.
Conservation is checked with an order-independent fingerprint (the
wrapping sum of xxhash of every value), and in exact mode with sets.
*/
type Runner struct {
	collector *memory.Collector
	log       *slog.Logger
}

func NewRunner(c *memory.Collector, log *slog.Logger) *Runner {
	return &Runner{collector: c, log: log}
}

// NewContainer builds the named container in the runner's collector.
func (r *Runner) NewContainer(kind string) (container.Container[uint64], error) {
	switch kind {
	case "stack":
		return container.NewStack[uint64](container.WithCollector(r.collector)), nil
	case "queue":
		return container.NewQueue[uint64](container.WithCollector(r.collector)), nil
	}
	return nil, errors.Wrapf(ErrUnknownContainer, "%q", kind)
}

type workerResult struct {
	pushed, popped, empty  uint64
	pushFP, popFP          uint64
	pushedVals, poppedVals []uint64
}

func fingerprint(v uint64) uint64 {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return xxhash.Sum64(b[:])
}

// Run executes w and returns its report. A cancelled ctx stops workers
// early; the partial run is still drained and reported.
func (r *Runner) Run(ctx context.Context, w Workload) (report.Report, error) {
	c, err := r.NewContainer(w.Container)
	if err != nil {
		return report.Report{}, err
	}
	if w.Workers <= 0 {
		return report.Report{}, errors.Wrapf(ErrInvalidWorkload, "workers must be positive, got %d", w.Workers)
	}
	if w.OpsPerWorker < 0 || w.PushRatio < 0 || w.PushRatio > 1 {
		return report.Report{}, errors.Wrapf(ErrInvalidWorkload,
			"ops_per_worker %d, push_ratio %v", w.OpsPerWorker, w.PushRatio)
	}

	r.log.Info("stress run starting",
		"container", w.Container, "workers", w.Workers,
		"ops_per_worker", w.OpsPerWorker, "push_ratio", w.PushRatio)

	seq := sequence.New(0)
	results := make([]workerResult, w.Workers)
	start := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < w.Workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = runWorker(ctx, c, seq, w, i)
		}(i)
	}
	wg.Wait()
	elapsed := time.Since(start)

	rep := report.Report{
		Container: w.Container,
		Workers:   w.Workers,
		Ops:       w.OpsPerWorker,
		PushRatio: w.PushRatio,
		Seed:      w.Seed,
		Exact:     w.Exact,
		StartedAt: start,
		Elapsed:   elapsed,
	}

	var drained []uint64
	for {
		v, ok := c.Pop()
		if !ok {
			break
		}
		rep.Drained++
		rep.ConsumedFingerprint += fingerprint(v)
		if w.Exact {
			drained = append(drained, v)
		}
	}

	for _, res := range results {
		rep.Pushed += res.pushed
		rep.Popped += res.popped
		rep.EmptyPops += res.empty
		rep.PushedFingerprint += res.pushFP
		rep.ConsumedFingerprint += res.popFP
	}
	if w.Exact {
		rep.Duplicates, rep.Unknown = audit(results, drained)
	}

	r.collector.AdvanceEpochAndReclaim()
	rep.Collector = r.collector.Stats()

	level := slog.LevelInfo
	if !rep.OK() {
		level = slog.LevelError
	}
	r.log.Log(ctx, level, "stress run finished",
		"ok", rep.OK(), "pushed", rep.Pushed, "popped", rep.Popped,
		"drained", rep.Drained, "elapsed", elapsed,
		"ops_per_second", int64(rep.OpsPerSecond()))

	if err := ctx.Err(); err != nil {
		return rep, errors.Wrap(err, "stress run interrupted")
	}
	return rep, nil
}

func runWorker(
	ctx context.Context,
	c container.Container[uint64],
	seq *sequence.Sequencer,
	w Workload,
	id int,
) workerResult {
	var (
		res       workerResult
		next, end uint64
	)
	rng := rand.New(rand.NewPCG(w.Seed, uint64(id)))

	for op := 0; op < w.OpsPerWorker; op++ {
		if op%cancelCheck == 0 && ctx.Err() != nil {
			return res
		}
		if rng.Float64() < w.PushRatio {
			if next == end {
				next = seq.Reserve(valueBlock)
				end = next + valueBlock
			}
			v := next
			next++
			c.Push(v)
			res.pushed++
			res.pushFP += fingerprint(v)
			if w.Exact {
				res.pushedVals = append(res.pushedVals, v)
			}
			continue
		}
		v, ok := c.Pop()
		if !ok {
			res.empty++
			continue
		}
		res.popped++
		res.popFP += fingerprint(v)
		if w.Exact {
			res.poppedVals = append(res.poppedVals, v)
		}
	}
	return res
}

// audit counts values consumed more than once and values never pushed.
func audit(results []workerResult, drained []uint64) (dups, unknown uint64) {
	pushed := make(map[uint64]struct{})
	for _, res := range results {
		for _, v := range res.pushedVals {
			pushed[v] = struct{}{}
		}
	}
	seen := make(map[uint64]struct{}, len(pushed))
	check := func(v uint64) {
		if _, ok := pushed[v]; !ok {
			unknown++
			return
		}
		if _, ok := seen[v]; ok {
			dups++
			return
		}
		seen[v] = struct{}{}
	}
	for _, res := range results {
		for _, v := range res.poppedVals {
			check(v)
		}
	}
	for _, v := range drained {
		check(v)
	}
	return dups, unknown
}
