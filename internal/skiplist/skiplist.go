// Package skiplist implements a probabilistic skip list over an ordered
// key type, with Insert/Search and First/Last/Next/Previous primitives.
// The tower-height scheme (coin-flip geometric distribution, MaxHeight
// levels) mirrors the single-structure positional index this codebase
// used to keep every (document, offset) pair in. It is a standalone
// primitive: the merger and the query engine work on sorted slices and
// do not use it.
package skiplist

import (
	"math/rand"
	"time"
)

// MaxHeight bounds the number of tower levels a node can have. 32 levels
// comfortably covers lists with billions of elements at p=0.5.
const MaxHeight = 32

// Ordered is any key type admitting a total order via Less.
type Ordered[T any] interface {
	Less(other T) bool
	Equal(other T) bool
}

// Int is an Ordered wrapper around int, used for plain token positions.
type Int int

func (a Int) Less(b Int) bool  { return a < b }
func (a Int) Equal(b Int) bool { return a == b }

type node[T Ordered[T]] struct {
	key   T
	tower [MaxHeight]*node[T]
}

// List is a skip list over keys of type T. The zero value is not usable;
// construct with New.
type List[T Ordered[T]] struct {
	head   *node[T]
	height int
	size   int
	rnd    *rand.Rand
}

// New returns an empty list. seed fixes the coin-flip source so tests can
// assert on exact tower shapes when needed; pass 0 to seed from a
// time-derived default.
func New[T Ordered[T]](seed int64) *List[T] {
	src := rand.NewSource(seed)
	if seed == 0 {
		src = rand.NewSource(time.Now().UnixNano())
	}
	return &List[T]{
		head:   &node[T]{},
		height: 1,
		rnd:    rand.New(src),
	}
}

func (l *List[T]) randomHeight() int {
	h := 1
	for h < MaxHeight && l.rnd.Intn(2) == 0 {
		h++
	}
	return h
}

// Len returns the number of keys currently stored.
func (l *List[T]) Len() int { return l.size }

// Insert adds key, maintaining ascending order. Duplicate keys (by
// Equal) are rejected; callers that want multiset semantics should carry
// a counter alongside the key type.
func (l *List[T]) Insert(key T) bool {
	var update [MaxHeight]*node[T]
	cur := l.head
	for i := l.height - 1; i >= 0; i-- {
		for cur.tower[i] != nil && cur.tower[i].key.Less(key) {
			cur = cur.tower[i]
		}
		update[i] = cur
	}
	if cur.tower[0] != nil && cur.tower[0].key.Equal(key) {
		return false
	}

	h := l.randomHeight()
	if h > l.height {
		for i := l.height; i < h; i++ {
			update[i] = l.head
		}
		l.height = h
	}
	n := &node[T]{key: key}
	for i := 0; i < h; i++ {
		n.tower[i] = update[i].tower[i]
		update[i].tower[i] = n
	}
	l.size++
	return true
}

// Search reports whether key is present.
func (l *List[T]) Search(key T) bool {
	cur := l.head
	for i := l.height - 1; i >= 0; i-- {
		for cur.tower[i] != nil && cur.tower[i].key.Less(key) {
			cur = cur.tower[i]
		}
	}
	cur = cur.tower[0]
	return cur != nil && cur.key.Equal(key)
}

// First returns the smallest key and true, or the zero value and false
// if the list is empty.
func (l *List[T]) First() (T, bool) {
	var zero T
	if l.head.tower[0] == nil {
		return zero, false
	}
	return l.head.tower[0].key, true
}

// Last returns the largest key and true, or the zero value and false if
// the list is empty.
func (l *List[T]) Last() (T, bool) {
	var zero T
	cur := l.head
	found := false
	for i := l.height - 1; i >= 0; i-- {
		for cur.tower[i] != nil {
			cur = cur.tower[i]
			found = true
		}
	}
	if !found {
		return zero, false
	}
	return cur.key, true
}

// Next returns the smallest stored key strictly greater than key, and
// true, or false if none exists. key itself need not be present.
func (l *List[T]) Next(key T) (T, bool) {
	var zero T
	cur := l.head
	for i := l.height - 1; i >= 0; i-- {
		for cur.tower[i] != nil && !key.Less(cur.tower[i].key) {
			cur = cur.tower[i]
		}
	}
	cur = cur.tower[0]
	if cur == nil {
		return zero, false
	}
	return cur.key, true
}

// Previous returns the largest stored key strictly less than key, and
// true, or false if none exists.
func (l *List[T]) Previous(key T) (T, bool) {
	var zero T
	cur := l.head
	var last *node[T]
	for i := l.height - 1; i >= 0; i-- {
		for cur.tower[i] != nil && cur.tower[i].key.Less(key) {
			cur = cur.tower[i]
			last = cur
		}
	}
	if last == nil {
		return zero, false
	}
	return last.key, true
}

// ToSlice returns all keys in ascending order. Intended for small lists
// (tests, debug dumps); hot paths should walk via First/Next instead of
// materializing a slice.
func (l *List[T]) ToSlice() []T {
	out := make([]T, 0, l.size)
	cur := l.head.tower[0]
	for cur != nil {
		out = append(out, cur.key)
		cur = cur.tower[0]
	}
	return out
}
