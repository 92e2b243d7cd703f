package reactive

import (
	"sync"
	"sync/atomic"
)

// Switch returns a Feed that mirrors the inner Feed selected by pick for the
// most recent value of outer.
//
// Whenever outer publishes, the previously selected inner Feed is detached
// before the new one is attached, so values from a superseded inner Feed are
// never forwarded afterwards. When pick returns nil the output keeps its
// last value and emits nothing until a new inner Feed is selected.
//
// The returned stop function detaches from both outer and inner Feeds and
// closes the output Feed.
func Switch[S, T any](outer *Feed[S], pick func(S) *Feed[T]) (out *Feed[T], stop func()) {
	sw := &switcher[S, T]{
		out:  NewFeed[T](),
		pick: pick,
	}
	cancelOuter := outer.Observe(sw.rebind)

	var once sync.Once
	return sw.out, func() {
		once.Do(func() {
			cancelOuter()
			sw.detach()
			sw.out.Close()
		})
	}
}

type switcher[S, T any] struct {
	out  *Feed[T]
	pick func(S) *Feed[T]

	// gen identifies the current binding. Inner callbacks read it
	// atomically; taking mu there could deadlock against rebind.
	gen atomic.Uint64

	mu          sync.Mutex
	cancelInner func()
}

// rebind runs on the outer Feed's publishing goroutine.
func (sw *switcher[S, T]) rebind(v S) {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	gen := sw.gen.Add(1)
	if sw.cancelInner != nil {
		sw.cancelInner()
		sw.cancelInner = nil
	}

	inner := sw.pick(v)
	if inner == nil {
		return
	}
	sw.cancelInner = inner.Observe(func(t T) {
		if sw.gen.Load() != gen {
			return
		}
		sw.out.Publish(t)
	})
}

func (sw *switcher[S, T]) detach() {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	sw.gen.Add(1)
	if sw.cancelInner != nil {
		sw.cancelInner()
		sw.cancelInner = nil
	}
}
