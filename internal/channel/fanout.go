package channel

import "sync"

// Fanout copies every published value to all current subscribers. Slow
// subscribers lose values instead of stalling the publisher.
type Fanout[T any] struct {
	mu      sync.Mutex
	subs    map[uint64]Channel[T]
	nextID  uint64
	dropped uint64
	closed  bool
}

// NewFanout creates an empty fanout.
func NewFanout[T any]() *Fanout[T] {
	return &Fanout[T]{subs: make(map[uint64]Channel[T])}
}

// Subscribe registers a new subscriber with the given buffer size. The
// returned cancel func unsubscribes and closes the channel.
func (f *Fanout[T]) Subscribe(size int) (Receiver[T], func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ch := New[T](size)
	if f.closed {
		ch.Close()
		return ch, func() {}
	}

	id := f.nextID
	f.nextID++
	f.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			if sub, ok := f.subs[id]; ok {
				delete(f.subs, id)
				sub.Close()
			}
		})
	}
}

// Publish delivers v to every subscriber that has room and returns how many
// received it.
func (f *Fanout[T]) Publish(v T) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	delivered := 0
	for _, sub := range f.subs {
		if sub.TrySend(v) {
			delivered++
		} else {
			f.dropped++
		}
	}
	return delivered
}

// Subscribers returns the number of active subscribers.
func (f *Fanout[T]) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// Dropped returns how many deliveries were skipped because a subscriber was full.
func (f *Fanout[T]) Dropped() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dropped
}

// Close closes every subscriber channel. Later subscriptions get a closed channel.
func (f *Fanout[T]) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for id, sub := range f.subs {
		sub.Close()
		delete(f.subs, id)
	}
}
