package buffer

import (
	"container/list"
	"sync"

	"k8s.io/client-go/tools/cache"
)

// entry is the value actually stored in the backing cache.Store; cache.Store
// only deals in interface{}, so every stored object needs to know its own
// key for the KeyFunc to extract.
type entry[T any] struct {
	key   string
	value T
}

// FIFOBuffer is a bounded, insertion-ordered, keyed buffer. The keyed
// lookup is backed by a k8s.io/client-go tools/cache.Store (the same
// building block the teacher's powchain header cache wraps); order and
// bounded eviction are tracked separately since Store itself is unordered.
type FIFOBuffer[T any] struct {
	mu       sync.Mutex
	capacity int
	store    cache.Store
	order    *list.List // of string keys, front = oldest
	elems    map[string]*list.Element
	merge    func(existing, incoming T) T // nil => re-adding a key overwrites its value in place
	possible func(key string) bool
}

// NewFIFOBuffer builds a FIFO buffer bounded to capacity entries. merge may
// be nil, in which case re-adding an existing key overwrites its value in
// place without changing its position; possible classifies keys for the
// Possible() candidacy count.
func NewFIFOBuffer[T any](capacity int, merge func(existing, incoming T) T, possible func(key string) bool) *FIFOBuffer[T] {
	return &FIFOBuffer[T]{
		capacity: capacity,
		store: cache.NewStore(func(obj interface{}) (string, error) {
			return obj.(entry[T]).key, nil
		}),
		order:    list.New(),
		elems:    make(map[string]*list.Element),
		merge:    merge,
		possible: possible,
	}
}

func (b *FIFOBuffer[T]) getLocked(key string) (T, bool) {
	obj, exists, _ := b.store.GetByKey(key)
	if !exists {
		var zero T
		return zero, false
	}
	return obj.(entry[T]).value, true
}

// Add inserts value under key per the buffer's overflow discipline.
func (b *FIFOBuffer[T]) Add(key string, value T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if existing, ok := b.getLocked(key); ok {
		if b.merge != nil {
			value = b.merge(existing, value)
		}
		_ = b.store.Update(entry[T]{key: key, value: value})
		return
	}

	if b.order.Len() >= b.capacity {
		b.evictOldestLocked()
	}
	_ = b.store.Add(entry[T]{key: key, value: value})
	b.elems[key] = b.order.PushBack(key)
}

func (b *FIFOBuffer[T]) evictOldestLocked() {
	front := b.order.Front()
	if front == nil {
		return
	}
	key := front.Value.(string)
	b.order.Remove(front)
	delete(b.elems, key)
	_ = b.store.Delete(entry[T]{key: key})
}

// CheckMarker reports whether key is buffered, dropping every entry
// inserted strictly before it.
func (b *FIFOBuffer[T]) CheckMarker(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.getLocked(key); !ok {
		return false
	}
	for {
		front := b.order.Front()
		if front == nil || front.Value.(string) == key {
			break
		}
		b.order.Remove(front)
		fkey := front.Value.(string)
		delete(b.elems, fkey)
		_ = b.store.Delete(entry[T]{key: fkey})
	}
	return true
}

// GetFirst returns the oldest buffered entry without removing it.
func (b *FIFOBuffer[T]) GetFirst() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	front := b.order.Front()
	if front == nil {
		var zero T
		return zero, false
	}
	return b.getLocked(front.Value.(string))
}

// GetList pops and returns the n oldest entries, or nil if fewer than n are
// buffered (the buffer is left untouched in that case).
func (b *FIFOBuffer[T]) GetList(n int) []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.order.Len() < n {
		return nil
	}
	out := make([]T, 0, n)
	for i := 0; i < n; i++ {
		front := b.order.Front()
		key := front.Value.(string)
		value, _ := b.getLocked(key)
		out = append(out, value)
		b.order.Remove(front)
		delete(b.elems, key)
		_ = b.store.Delete(entry[T]{key: key})
	}
	return out
}

// Items returns every currently buffered value, oldest first, without
// removing them.
func (b *FIFOBuffer[T]) Items() []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]T, 0, b.order.Len())
	for e := b.order.Front(); e != nil; e = e.Next() {
		value, _ := b.getLocked(e.Value.(string))
		out = append(out, value)
	}
	return out
}

// Len returns the current number of buffered entries.
func (b *FIFOBuffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.order.Len()
}

// Possible returns the count of currently buffered keys satisfying the
// candidacy predicate.
func (b *FIFOBuffer[T]) Possible() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.possible == nil {
		return 0
	}
	count := 0
	for e := b.order.Front(); e != nil; e = e.Next() {
		if b.possible(e.Value.(string)) {
			count++
		}
	}
	return count
}
