package service

import (
	"sync"
	"time"

	"lockfree/domain/container"
	"lockfree/infra/report"
)

// RunScenario runs the fixed stack scenario: every worker performs iters
// rounds of {push 2i, push 4i, pop}, then the stack is drained. Values
// repeat across workers, so only the fingerprint balance is checked.
func (r *Runner) RunScenario(workers, iters int) report.Report {
	s := container.NewStack[uint64](container.WithCollector(r.collector))
	results := make([]workerResult, workers)
	start := time.Now()

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			res := &results[w]
			for i := 0; i < iters; i++ {
				for _, v := range []uint64{uint64(i) * 2, uint64(i) * 4} {
					s.Push(v)
					res.pushed++
					res.pushFP += fingerprint(v)
				}
				if v, ok := s.Pop(); ok {
					res.popped++
					res.popFP += fingerprint(v)
				} else {
					res.empty++
				}
			}
		}(w)
	}
	wg.Wait()

	rep := report.Report{
		Container: "stack",
		Workers:   workers,
		Ops:       iters * 3,
		PushRatio: 2.0 / 3.0,
		StartedAt: start,
		Elapsed:   time.Since(start),
	}
	for _, res := range results {
		rep.Pushed += res.pushed
		rep.Popped += res.popped
		rep.EmptyPops += res.empty
		rep.PushedFingerprint += res.pushFP
		rep.ConsumedFingerprint += res.popFP
	}
	for v := range s.Drain() {
		rep.Drained++
		rep.ConsumedFingerprint += fingerprint(v)
	}

	r.collector.AdvanceEpochAndReclaim()
	rep.Collector = r.collector.Stats()
	return rep
}
