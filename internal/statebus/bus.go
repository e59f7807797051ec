package statebus

import "sync"

// Bus is a latest-value broadcaster.
type Bus[T any] struct {
	publishMu sync.Mutex

	mu       sync.Mutex
	value    T
	subs     map[uint64]chan T
	watchers map[uint64]func(T)
	nextID   uint64
	closed   bool
}

// New returns a bus holding initial.
func New[T any](initial T) *Bus[T] {
	return &Bus[T]{
		value:    initial,
		subs:     make(map[uint64]chan T),
		watchers: make(map[uint64]func(T)),
	}
}

// Value returns the current value.
func (b *Bus[T]) Value() T {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.value
}

// Publish replaces the current value and notifies observers. Watchers run on
// the publishing goroutine after the value is visible through Value. Publish
// after Close is ignored.
func (b *Bus[T]) Publish(v T) {
	b.publishMu.Lock()
	defer b.publishMu.Unlock()

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.value = v
	for _, ch := range b.subs {
		offerLatest(ch, v)
	}
	watchers := make([]func(T), 0, len(b.watchers))
	for _, fn := range b.watchers {
		watchers = append(watchers, fn)
	}
	b.mu.Unlock()

	for _, fn := range watchers {
		fn(v)
	}
}

// Subscribe returns a channel that immediately holds the current value and
// then receives every later value, coalesced. The channel is closed by the
// returned cancel func or by Close.
func (b *Bus[T]) Subscribe() (<-chan T, func()) {
	ch := make(chan T, 1)

	b.mu.Lock()
	defer b.mu.Unlock()

	ch <- b.value
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
		})
	}
}

// Watch registers fn for every subsequent publish. fn must not publish to
// the same bus.
func (b *Bus[T]) Watch(fn func(T)) func() {
	if fn == nil {
		return func() {}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return func() {}
	}

	id := b.nextID
	b.nextID++
	b.watchers[id] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.watchers, id)
	}
}

// Close closes every subscriber channel and drops watchers. The current value
// stays readable.
func (b *Bus[T]) Close() {
	b.publishMu.Lock()
	defer b.publishMu.Unlock()

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
	for id := range b.watchers {
		delete(b.watchers, id)
	}
}

// offerLatest leaves exactly v in the one-slot channel. Callers hold b.mu,
// so no other sender competes for the slot.
func offerLatest[T any](ch chan T, v T) {
	select {
	case ch <- v:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- v:
	default:
	}
}
