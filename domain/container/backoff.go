package container

import "runtime"

const (
	spinLimit  = 6
	yieldLimit = 10
)

// backoff spaces out CAS retries: 2^step busy iterations while step is
// small, then scheduler yields.
type backoff struct {
	step uint
}

func (b *backoff) wait() {
	if b.step <= spinLimit {
		for i := 0; i < 1<<b.step; i++ {
			spin()
		}
	} else {
		runtime.Gosched()
	}
	if b.step <= yieldLimit {
		b.step++
	}
}

// spin is kept out of line so the busy loop is not folded away.
//
//go:noinline
func spin() {}
