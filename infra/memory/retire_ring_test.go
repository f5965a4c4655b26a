package memory

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRetireRingBasic(t *testing.T) {
	r := NewRetireRing(2)
	o1, o2 := new(int), new(int)

	require.True(t, r.Enqueue(retired{epoch: 1, obj: o1}))
	require.True(t, r.Enqueue(retired{epoch: 2, obj: o2}))
	require.False(t, r.Enqueue(retired{epoch: 3}))
	require.Equal(t, r.Cap(), r.Len())

	v, ok := r.Peek()
	require.True(t, ok)
	require.Same(t, o1, v.obj)
	require.Equal(t, 2, r.Len())

	v, ok = r.Dequeue()
	require.True(t, ok)
	require.Same(t, o1, v.obj)
	v, ok = r.Dequeue()
	require.True(t, ok)
	require.Same(t, o2, v.obj)

	_, ok = r.Dequeue()
	require.False(t, ok)
}

func TestRetireRingReclaimStopsAtUnsafe(t *testing.T) {
	r := NewRetireRing(4)
	ran := 0
	for e := uint64(1); e <= 3; e++ {
		r.Enqueue(retired{epoch: e, fn: func() { ran++ }})
	}

	require.Equal(t, 2, r.reclaim(3))
	require.Equal(t, 2, ran)
	require.Equal(t, 1, r.Len())
}

func TestRetireRingRejectsNonPowerOfTwo(t *testing.T) {
	require.Panics(t, func() { NewRetireRing(6) })
}

func TestPoolPutAnyWrongType(t *testing.T) {
	p := NewPool(func() *int { return new(int) }, nil)
	require.Panics(t, func() { p.PutAny("nope") })
}
