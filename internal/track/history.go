package track

// History is a fixed-capacity ring of the most recent items; pushing onto a
// full ring evicts the oldest. Single goroutine only.
type History[T any] struct {
	slots []T
	head  int // index of the oldest item
	size  int
}

func NewHistory[T any](capacity int) *History[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &History[T]{slots: make([]T, capacity)}
}

func (h *History[T]) Push(v T) {
	if h.size < len(h.slots) {
		h.slots[(h.head+h.size)%len(h.slots)] = v
		h.size++
		return
	}
	h.slots[h.head] = v
	h.head = (h.head + 1) % len(h.slots)
}

// Last returns the most recent item.
func (h *History[T]) Last() (T, bool) {
	var zero T
	if h.size == 0 {
		return zero, false
	}
	return h.slots[(h.head+h.size-1)%len(h.slots)], true
}

// Items returns the items oldest first.
func (h *History[T]) Items() []T {
	out := make([]T, h.size)
	for i := 0; i < h.size; i++ {
		out[i] = h.slots[(h.head+i)%len(h.slots)]
	}
	return out
}

func (h *History[T]) Len() int {
	return h.size
}
