package sequence

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNextIsMonotonic(t *testing.T) {
	s := New(10)
	require.Equal(t, uint64(11), s.Next())
	require.Equal(t, uint64(12), s.Next())
	require.Equal(t, uint64(12), s.Current())
}

func TestReserveBlocksDoNotOverlap(t *testing.T) {
	s := New(0)
	first := s.Reserve(5)
	require.Equal(t, uint64(1), first)
	require.Equal(t, uint64(5), s.Current())
	require.Equal(t, uint64(6), s.Next())
}

func TestConcurrentNextUnique(t *testing.T) {
	s := New(0)
	const workers, per = 8, 1000

	ids := make([][]uint64, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < per; i++ {
				ids[w] = append(ids[w], s.Next())
			}
		}(w)
	}
	wg.Wait()

	seen := make(map[uint64]bool)
	for _, batch := range ids {
		for _, id := range batch {
			require.False(t, seen[id])
			seen[id] = true
		}
	}
	require.Len(t, seen, workers*per)
	require.Equal(t, uint64(workers*per), s.Current())
}

func TestObserveOnlyRaises(t *testing.T) {
	s := New(0)
	s.Observe(7)
	s.Observe(3)
	require.Equal(t, uint64(7), s.Current())
	require.Equal(t, uint64(8), s.Next())
}
