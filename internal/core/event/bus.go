package event

import (
	"reflect"
	"sync"
)

// Bus is a double-buffered event bus. Events emitted before a swap are
// delivered, in emission order, by the DispatchAll that follows it; events
// emitted by handlers wait for the next swap.
type Bus struct {
	mu       sync.Mutex // protects handlers
	front    []any
	back     []any
	handlers map[reflect.Type][]func(any)
}

func NewBus() *Bus {
	return &Bus{
		front:    make([]any, 0, 32),
		back:     make([]any, 0, 32),
		handlers: make(map[reflect.Type][]func(any)),
	}
}

// Emit queues an event into the back buffer. Game loop goroutine only.
func Emit[T any](b *Bus, event T) {
	b.back = append(b.back, event)
}

// Subscribe registers a typed handler for events of type T.
func Subscribe[T any](b *Bus, fn func(T)) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[t] = append(b.handlers[t], func(ev any) { fn(ev.(T)) })
}

// SwapBuffers makes the back buffer readable and starts a fresh one.
func (b *Bus) SwapBuffers() {
	b.front, b.back = b.back, b.front[:0]
}

// DispatchAll delivers the front buffer to subscribed handlers.
func (b *Bus) DispatchAll() {
	for _, ev := range b.front {
		b.mu.Lock()
		hs := b.handlers[reflect.TypeOf(ev)]
		b.mu.Unlock()
		for _, h := range hs {
			h(ev)
		}
	}
}

// Pending is the number of events waiting for the next swap.
func (b *Bus) Pending() int {
	return len(b.back)
}
