package container_test

import (
	"testing"

	"lockfree/domain/container"
)

func BenchmarkStackPushPop(b *testing.B) {
	s := container.NewStack[int]()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.Push(i)
		s.Pop()
	}
}

func BenchmarkStackParallel(b *testing.B) {
	s := container.NewStack[int]()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			if i%2 == 0 {
				s.Push(i)
			} else {
				s.Pop()
			}
			i++
		}
	})
}

func BenchmarkQueuePushPop(b *testing.B) {
	q := container.NewQueue[int]()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		q.Push(i)
		q.Pop()
	}
}

func BenchmarkQueueParallel(b *testing.B) {
	q := container.NewQueue[int]()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			if i%2 == 0 {
				q.Push(i)
			} else {
				q.Pop()
			}
			i++
		}
	})
}
