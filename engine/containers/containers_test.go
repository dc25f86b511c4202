package containers

import (
	"errors"
	"testing"
)

func TestRingQueue(t *testing.T) {
	q := NewRingQueue[int](3)
	for i := 1; i <= 3; i++ {
		if err := q.Enqueue(i); err != nil {
			t.Fatal(err)
		}
	}
	if err := q.Enqueue(4); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("Enqueue on full queue = %v", err)
	}

	q.Push(4)
	var got []int
	q.Each(func(v int) { got = append(got, v) })
	if len(got) != 3 || got[0] != 2 || got[2] != 4 {
		t.Errorf("Each() = %v, want [2 3 4]", got)
	}

	v, err := q.Dequeue()
	if err != nil || v != 2 {
		t.Errorf("Dequeue() = %d, %v", v, err)
	}
	if p, _ := q.Peek(); p != 3 {
		t.Errorf("Peek() = %d", p)
	}
	_, _ = q.Dequeue()
	_, _ = q.Dequeue()
	if _, err := q.Dequeue(); !errors.Is(err, ErrQueueEmpty) {
		t.Errorf("Dequeue on empty queue = %v", err)
	}
}

func TestArenaGenerations(t *testing.T) {
	a := NewArena[string](4)
	h1 := a.Insert("albedo")
	h2 := a.Insert("normal")

	if !h1.IsValid() || (Handle{}).IsValid() {
		t.Fatal("validity check broken")
	}
	if v, ok := a.Get(h2); !ok || v != "normal" {
		t.Fatalf("Get(h2) = %q, %v", v, ok)
	}

	if _, ok := a.Remove(h1); !ok {
		t.Fatal("Remove(h1) failed")
	}
	if _, ok := a.Get(h1); ok {
		t.Error("stale handle resolved after remove")
	}

	h3 := a.Insert("position")
	if h3.Index != h1.Index {
		t.Errorf("slot not reused: %v vs %v", h3, h1)
	}
	if h3.Generation == h1.Generation {
		t.Error("generation not bumped on reuse")
	}
	if _, ok := a.Get(h1); ok {
		t.Error("old handle resolves to the new value")
	}
	if a.Len() != 2 {
		t.Errorf("Len() = %d", a.Len())
	}

	seen := 0
	a.Each(func(h Handle, v string) { seen++ })
	if seen != 2 {
		t.Errorf("Each visited %d", seen)
	}
}
