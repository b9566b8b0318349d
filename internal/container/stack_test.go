package container

import (
	"slices"
	"testing"
)

func TestStackLIFO(t *testing.T) {
	var s Stack[int]
	if !s.Empty() {
		t.Fatal("zero Stack is not empty")
	}
	for i := range 3 {
		s.Push(i)
	}
	if s.Len() != 3 {
		t.Errorf("Len() = %d, want 3", s.Len())
	}
	for want := 2; want >= 0; want-- {
		got, ok := s.Pop()
		if !ok || got != want {
			t.Errorf("Pop() = %d, %v, want %d, true", got, ok, want)
		}
	}
	if _, ok := s.Pop(); ok {
		t.Error("Pop() on empty stack reported ok")
	}
}

func TestStackDataAndDrain(t *testing.T) {
	var s Stack[string]
	s.Push("a")
	s.Push("b")

	data := s.Data()
	data[0] = "changed"
	if got := s.Data(); !slices.Equal(got, []string{"a", "b"}) {
		t.Errorf("Data() = %v, want [a b]", got)
	}

	if got := s.Drain(); !slices.Equal(got, []string{"a", "b"}) {
		t.Errorf("Drain() = %v, want [a b]", got)
	}
	if !s.Empty() {
		t.Error("stack not empty after Drain")
	}
}
