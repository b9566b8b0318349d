// Package container provides small generic containers used by the device
// pools.
package container

import "slices"

// Stack is a LIFO free list. The zero value is an empty stack.
// Stack is not safe for concurrent use.
type Stack[E any] struct {
	data []E
}

// Len returns the number of elements.
func (s *Stack[E]) Len() int { return len(s.data) }

// Empty reports whether the stack has no elements.
func (s *Stack[E]) Empty() bool {
	return len(s.data) == 0
}

// Push adds e on top of the stack.
func (s *Stack[E]) Push(e E) {
	s.data = append(s.data, e)
}

// Pop removes and returns the top element. ok is false when the stack is
// empty.
func (s *Stack[E]) Pop() (e E, ok bool) {
	if len(s.data) == 0 {
		return e, false
	}
	e = s.data[len(s.data)-1]
	var zero E
	s.data[len(s.data)-1] = zero
	s.data = s.data[:len(s.data)-1]
	return e, true
}

// Data returns a copy of the elements, bottom first.
func (s *Stack[E]) Data() []E {
	return slices.Clone(s.data)
}

// Drain removes every element and returns them, bottom first.
func (s *Stack[E]) Drain() []E {
	d := s.data
	s.data = nil
	return d
}
