// Package buffer implements the bounded, ordered per-source containers
// described in spec.md §3/§4.2: a FIFO insertion-ordered map (radio), a
// min-heap ordered by (eventKey, tieBreaker) (microblog, seism), and a
// FIFO map with hash-merge-on-duplicate-key (Ethereum, one instance per
// RPC provider).
package buffer

// FIFO is the capability set the radio and Ethereum sources depend on.
type FIFO[T any] interface {
	// Add inserts value under key, evicting the oldest entry if the
	// buffer is already at capacity. If key already exists nothing is
	// evicted and the entry keeps its position: the two values are merged
	// when a merge function is configured, otherwise value replaces the
	// old one.
	Add(key string, value T)
	// CheckMarker reports whether key is present, and if so, drops every
	// entry inserted before it so a following GetFirst/GetList begins at
	// key.
	CheckMarker(key string) bool
	// GetFirst returns the oldest buffered entry without removing it.
	GetFirst() (T, bool)
	// GetList pops and returns the n oldest entries in FIFO order, or nil
	// (without mutating the buffer) if fewer than n entries are present.
	GetList(n int) []T
	// Len returns the current number of buffered entries.
	Len() int
	// Possible returns the number of currently buffered entries whose key
	// satisfies the candidacy predicate given at construction.
	Possible() int
}

// Heap is the capability set the microblog and seismology sources depend
// on; entries are ordered by a (date, id)-style key rather than a map key.
type Heap[T any] interface {
	Add(value T)
	// CheckMarker pops entries until the root matches the predicate,
	// pushing the match back, and reports whether a match was found.
	CheckMarker(matches func(T) bool) bool
	GetFirst() (T, bool)
	// GetList pops entries for which inBound returns true, until the
	// first entry for which it returns false (which is pushed back).
	GetList(inBound func(T) bool) []T
	Len() int
	Possible() int
}
