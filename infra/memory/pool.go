package memory

import "sync"

// Pool recycles *T values through a sync.Pool. Containers hand unlinked
// nodes back to it only via the collector, never directly.
type Pool[T any] struct {
	p     *sync.Pool
	reset func(*T)
}

// NewPool creates a pool. reset, when non-nil, runs on every object
// handed back through Put or PutAny.
func NewPool[T any](ctor func() *T, reset func(*T)) *Pool[T] {
	return &Pool[T]{
		p:     &sync.Pool{New: func() any { return ctor() }},
		reset: reset,
	}
}

func (p *Pool[T]) Get() *T {
	return p.p.Get().(*T)
}

func (p *Pool[T]) Put(v *T) {
	if p.reset != nil {
		p.reset(v)
	}
	p.p.Put(v)
}

// PutAny is the type-erased entry used by the collector.
func (p *Pool[T]) PutAny(v any) {
	obj, ok := v.(*T)
	if !ok {
		panic("memory.Pool: PutAny received wrong type")
	}
	p.Put(obj)
}
