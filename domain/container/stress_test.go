package container_test

import (
	"math/rand/v2"
	"runtime"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"lockfree/domain/container"
	"lockfree/infra/memory"
)

func TestStackConcurrentScenario(t *testing.T) {
	s := container.NewStack[int]()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				s.Push(i * 2)
				s.Push(i * 4)
				s.Pop()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 800, s.Len())
	pops := 0
	for {
		if _, ok := s.Pop(); !ok {
			break
		}
		pops++
	}
	require.Equal(t, 800, pops)
	_, ok := s.Pop()
	require.False(t, ok)
}

// runConservation pushes unique values from every worker, pops at
// random, then drains, and checks each value comes out exactly once.
func runConservation(t *testing.T, c container.Container[uint64], workers, ops int) {
	t.Helper()

	popped := make([][]uint64, workers)
	pushed := make([]int, workers)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			r := rand.New(rand.NewPCG(uint64(w), 42))
			for i := 0; i < ops; i++ {
				if r.IntN(2) == 0 {
					c.Push(uint64(w)<<32 | uint64(pushed[w]))
					pushed[w]++
					continue
				}
				if v, ok := c.Pop(); ok {
					popped[w] = append(popped[w], v)
				}
			}
		}(w)
	}
	wg.Wait()

	seen := make(map[uint64]struct{})
	record := func(v uint64) {
		_, dup := seen[v]
		require.False(t, dup, "value %x popped twice", v)
		owner, idx := int(v>>32), int(v&0xffffffff)
		require.Less(t, owner, workers)
		require.Less(t, idx, pushed[owner], "value %x never pushed", v)
		seen[v] = struct{}{}
	}
	for _, vs := range popped {
		for _, v := range vs {
			record(v)
		}
	}
	for {
		v, ok := c.Pop()
		if !ok {
			break
		}
		record(v)
	}

	total := 0
	for _, n := range pushed {
		total += n
	}
	require.Equal(t, total, len(seen))
	require.True(t, c.IsEmpty())
}

func TestStackConservation(t *testing.T) {
	col := memory.NewCollector(memory.Config{RingSize: 8, CollectEvery: 4})
	runConservation(t, container.NewStack[uint64](container.WithCollector(col)), 8, 5000)

	col.AdvanceEpochAndReclaim()
	st := col.Stats()
	require.Equal(t, st.Retired, st.Reclaimed)
}

func TestQueueConservation(t *testing.T) {
	col := memory.NewCollector(memory.Config{RingSize: 8, CollectEvery: 4})
	runConservation(t, container.NewQueue[uint64](container.WithCollector(col)), 8, 5000)

	col.AdvanceEpochAndReclaim()
	st := col.Stats()
	require.Equal(t, st.Retired, st.Reclaimed)
}

func TestQueuePerProducerOrder(t *testing.T) {
	const producers, perProducer = 4, 5000
	q := container.NewQueue[[2]int]()

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Push([2]int{p, i})
			}
		}(p)
	}

	next := make([]int, producers)
	received := 0
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	for received < producers*perProducer {
		v, ok := q.Pop()
		if !ok {
			select {
			case <-done:
				// producers finished; anything left must be poppable
				v, ok = q.Pop()
				require.True(t, ok)
			default:
				continue
			}
		}
		require.Equal(t, next[v[0]], v[1], "producer %d out of order", v[0])
		next[v[0]]++
		received++
	}
	_, ok := q.Pop()
	require.False(t, ok)
}

func TestQueueConcurrentConsumers(t *testing.T) {
	const producers, consumers, perProducer = 4, 4, 2000
	q := container.NewQueue[int]()

	var pwg sync.WaitGroup
	for p := 0; p < producers; p++ {
		pwg.Add(1)
		go func(p int) {
			defer pwg.Done()
			for i := 0; i < perProducer; i++ {
				q.Push(p*perProducer + i)
			}
		}(p)
	}

	results := make([][]int, consumers)
	stop := make(chan struct{})
	var cwg sync.WaitGroup
	for c := 0; c < consumers; c++ {
		cwg.Add(1)
		go func(c int) {
			defer cwg.Done()
			for {
				if v, ok := q.Pop(); ok {
					results[c] = append(results[c], v)
					continue
				}
				select {
				case <-stop:
					return
				default:
				}
			}
		}(c)
	}

	pwg.Wait()
	for !q.IsEmpty() {
		runtime.Gosched()
	}
	close(stop)
	cwg.Wait()

	seen := make(map[int]bool)
	for _, rs := range results {
		last := make(map[int]int)
		for _, v := range rs {
			require.False(t, seen[v], "value %d delivered twice", v)
			seen[v] = true
			// a single consumer observes each producer's values in order
			p := v / perProducer
			if prev, ok := last[p]; ok {
				require.Greater(t, v, prev)
			}
			last[p] = v
		}
	}
	require.Len(t, seen, producers*perProducer)
}
