package event

import "sync"

type Listener[T any] func(T)

type entry[T any] struct {
	id uint64
	fn Listener[T]
}

// Bus delivers events synchronously and in subscription order to every
// listener that is subscribed at the time Publish is called.
// Listeners may subscribe, unsubscribe or publish from within a callback.
type Bus[T any] struct {
	mu        sync.Mutex
	lastID    uint64
	listeners []entry[T]
}

// Subscribe adds a listener. The returned cancel function removes it again
// and may be called any number of times.
func (b *Bus[T]) Subscribe(fn Listener[T]) (cancel func()) {
	if fn == nil {
		return func() {}
	}

	b.mu.Lock()
	b.lastID++
	id := b.lastID
	b.listeners = append(b.listeners, entry[T]{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(id) })
	}
}

func (b *Bus[T]) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, e := range b.listeners {
		if e.id == id {
			b.listeners = append(b.listeners[:i:i], b.listeners[i+1:]...)
			return
		}
	}
}

func (b *Bus[T]) Publish(v T) {
	b.mu.Lock()
	listeners := b.listeners
	b.mu.Unlock()

	for _, e := range listeners {
		e.fn(v)
	}
}

func (b *Bus[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners)
}
