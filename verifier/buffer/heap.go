package buffer

import (
	"container/heap"
	"sync"
)

// heapData adapts a generic slice to container/heap's interface, which
// only understands concrete sort.Interface-shaped methods plus
// interface{}-typed Push/Pop.
type heapData[T any] struct {
	items []T
	less  func(a, b T) bool
}

func (h *heapData[T]) Len() int           { return len(h.items) }
func (h *heapData[T]) Less(i, j int) bool { return h.less(h.items[i], h.items[j]) }
func (h *heapData[T]) Swap(i, j int)      { h.items[i], h.items[j] = h.items[j], h.items[i] }

func (h *heapData[T]) Push(x interface{}) {
	h.items = append(h.items, x.(T))
}

func (h *heapData[T]) Pop() interface{} {
	old := h.items
	n := len(old)
	item := old[n-1]
	var zero T
	old[n-1] = zero
	h.items = old[:n-1]
	return item
}

// HeapBuffer is a bounded min-heap ordered by the caller-supplied less
// function, used by the microblog and seismology sources (spec.md §4.2).
type HeapBuffer[T any] struct {
	mu       sync.Mutex
	data     *heapData[T]
	capacity int
	possible func(T) bool // nil => every buffered entry is a candidate
}

// NewHeapBuffer builds a heap buffer bounded to capacity entries, ordered
// by less. possible may be nil, meaning every buffered entry counts toward
// Possible() (the seismology discipline).
func NewHeapBuffer[T any](capacity int, less func(a, b T) bool, possible func(T) bool) *HeapBuffer[T] {
	return &HeapBuffer[T]{
		data:     &heapData[T]{less: less},
		capacity: capacity,
		possible: possible,
	}
}

// Add pushes value, heap-replacing (dropping the current minimum) if the
// buffer is already at capacity.
func (b *HeapBuffer[T]) Add(value T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.data.Len() > 0 && b.data.Len() >= b.capacity {
		heap.Pop(b.data)
	}
	heap.Push(b.data, value)
}

// CheckMarker pops entries while they fail matches, discarding them, until
// the root matches or the buffer is empty.
func (b *HeapBuffer[T]) CheckMarker(matches func(T) bool) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for b.data.Len() > 0 {
		if matches(b.data.items[0]) {
			return true
		}
		heap.Pop(b.data)
	}
	return false
}

// GetFirst returns the root of the heap without removing it.
func (b *HeapBuffer[T]) GetFirst() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.data.Len() == 0 {
		var zero T
		return zero, false
	}
	return b.data.items[0], true
}

// GetList pops entries while inBound holds, leaving the first
// out-of-bound entry (if any) in place at the root.
func (b *HeapBuffer[T]) GetList(inBound func(T) bool) []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []T
	for b.data.Len() > 0 && inBound(b.data.items[0]) {
		out = append(out, heap.Pop(b.data).(T))
	}
	return out
}

// Len returns the current number of buffered entries.
func (b *HeapBuffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.data.Len()
}

// Possible returns the count of currently buffered entries satisfying the
// candidacy predicate, or the full length if no predicate was configured.
func (b *HeapBuffer[T]) Possible() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.possible == nil {
		return b.data.Len()
	}
	count := 0
	for _, item := range b.data.items {
		if b.possible(item) {
			count++
		}
	}
	return count
}
