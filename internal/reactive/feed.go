package reactive

import "sync"

// Feed broadcasts the latest value of type T to any number of subscribers.
//
// Values published to a Feed are shared between subscribers and must be
// treated as read-only.
type Feed[T any] struct {
	mu        sync.Mutex
	value     T
	has       bool
	closed    bool
	subs      map[*Subscription[T]]struct{}
	observers map[*observer[T]]struct{}
}

// observer is a synchronous callback registered with Observe.
type observer[T any] struct {
	fn func(T)
}

// NewFeed creates an empty Feed. Subscribers receive nothing until the first
// Publish.
func NewFeed[T any]() *Feed[T] {
	return &Feed[T]{
		subs:      make(map[*Subscription[T]]struct{}),
		observers: make(map[*observer[T]]struct{}),
	}
}

// Publish records v as the current value and delivers it to every subscriber
// and observer. Publishing to a closed Feed is a no-op.
func (f *Feed[T]) Publish(v T) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}
	f.value = v
	f.has = true

	for sub := range f.subs {
		sub.offer(v)
	}
	for obs := range f.observers {
		obs.fn(v)
	}
}

// Latest returns the most recently published value and whether one exists.
func (f *Feed[T]) Latest() (T, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value, f.has
}

// Subscribe returns a new Subscription. If the Feed already holds a value it
// is delivered immediately. Subscribing to a closed Feed yields a
// Subscription whose channel is already closed.
func (f *Feed[T]) Subscribe() *Subscription[T] {
	sub := &Subscription[T]{
		ch:   make(chan T, 1),
		feed: f,
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		sub.shutdown()
		return sub
	}
	f.subs[sub] = struct{}{}
	if f.has {
		sub.offer(f.value)
	}
	return sub
}

// Observe registers fn to be called synchronously with the current value (if
// any) and every later value. The returned function removes the observer;
// once it returns, fn is never called again.
func (f *Feed[T]) Observe(fn func(T)) (cancel func()) {
	obs := &observer[T]{fn: fn}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return func() {}
	}
	f.observers[obs] = struct{}{}
	if f.has {
		fn(f.value)
	}
	f.mu.Unlock()

	return func() {
		f.mu.Lock()
		delete(f.observers, obs)
		f.mu.Unlock()
	}
}

// SubscriberCount returns the number of live subscriptions.
func (f *Feed[T]) SubscriberCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// Close closes every subscription channel and drops all observers.
// Further publishes are ignored.
func (f *Feed[T]) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}
	f.closed = true
	for sub := range f.subs {
		sub.shutdown()
	}
	f.subs = nil
	f.observers = nil
}

func (f *Feed[T]) unsubscribe(sub *Subscription[T]) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subs != nil {
		delete(f.subs, sub)
	}
}

// Subscription is one reader's view of a Feed.
//
// Its channel holds at most one pending value: when a new value arrives
// before the previous one was read, the stale value is replaced.
type Subscription[T any] struct {
	ch   chan T
	feed *Feed[T]

	mu   sync.Mutex
	done bool
}

// C returns the channel values are delivered on. It is closed when the
// Subscription or its Feed is closed.
func (s *Subscription[T]) C() <-chan T {
	return s.ch
}

// Close detaches the Subscription from its Feed and closes its channel.
// It is safe to call more than once.
func (s *Subscription[T]) Close() {
	s.feed.unsubscribe(s)
	s.shutdown()
}

// offer replaces any pending value with v. It never blocks: offer is the
// only sender and the buffer is drained before sending.
func (s *Subscription[T]) offer(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done {
		return
	}
	select {
	case <-s.ch:
	default:
	}
	s.ch <- v
}

func (s *Subscription[T]) shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done {
		return
	}
	s.done = true
	close(s.ch)
}
