package cache

import "github.com/gogpu/rhi/internal/container"

const nilSlot = -1

type lruSlot[K comparable] struct {
	key        K
	prev, next int32
}

// lruOrder keeps keys in recency order inside a slot array. Removed slots
// go on a free list and are handed out again by PushFront, so a cache that
// churns at capacity stops allocating. head is the most recently used.
// Not safe for concurrent use.
type lruOrder[K comparable] struct {
	slots      []lruSlot[K]
	free       container.Stack[int32]
	head, tail int32
}

func newLRUOrder[K comparable]() *lruOrder[K] {
	return &lruOrder[K]{head: nilSlot, tail: nilSlot}
}

// PushFront inserts key as most recently used and returns its slot.
func (l *lruOrder[K]) PushFront(key K) int32 {
	i, ok := l.free.Pop()
	if !ok {
		i = int32(len(l.slots))
		l.slots = append(l.slots, lruSlot[K]{})
	}
	l.slots[i] = lruSlot[K]{key: key, prev: nilSlot, next: nilSlot}
	l.link(i)
	return i
}

// MoveToFront marks slot i most recently used.
func (l *lruOrder[K]) MoveToFront(i int32) {
	if i == l.head {
		return
	}
	l.unlink(i)
	l.link(i)
}

// Remove drops slot i and frees it for reuse.
func (l *lruOrder[K]) Remove(i int32) {
	l.unlink(i)
	var zero K
	l.slots[i].key = zero
	l.free.Push(i)
}

// RemoveOldest drops the least recently used key and returns it.
func (l *lruOrder[K]) RemoveOldest() (K, bool) {
	if l.tail == nilSlot {
		var zero K
		return zero, false
	}
	i := l.tail
	key := l.slots[i].key
	l.Remove(i)
	return key, true
}

// Clear empties the order and releases its slots.
func (l *lruOrder[K]) Clear() {
	l.slots = nil
	l.free.Drain()
	l.head, l.tail = nilSlot, nilSlot
}

func (l *lruOrder[K]) link(i int32) {
	s := &l.slots[i]
	s.prev, s.next = nilSlot, l.head
	if l.head != nilSlot {
		l.slots[l.head].prev = i
	}
	l.head = i
	if l.tail == nilSlot {
		l.tail = i
	}
}

func (l *lruOrder[K]) unlink(i int32) {
	s := &l.slots[i]
	if s.prev != nilSlot {
		l.slots[s.prev].next = s.next
	} else {
		l.head = s.next
	}
	if s.next != nilSlot {
		l.slots[s.next].prev = s.prev
	} else {
		l.tail = s.prev
	}
	s.prev, s.next = nilSlot, nilSlot
}
