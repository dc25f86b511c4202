package containers

import "fmt"

// Handle addresses a slot in an Arena. The generation changes every time the
// slot is reused, so a stale handle never resolves to a newer value.
// The zero Handle is never issued.
type Handle struct {
	Index      uint32
	Generation uint32
}

func (h Handle) IsValid() bool {
	return h.Generation != 0
}

func (h Handle) String() string {
	return fmt.Sprintf("%d:%d", h.Index, h.Generation)
}

type arenaSlot[T any] struct {
	value      T
	generation uint32
	occupied   bool
}

type Arena[T any] struct {
	slots []arenaSlot[T]
	free  []uint32
	live  int
}

func NewArena[T any](capacity int) *Arena[T] {
	return &Arena[T]{
		slots: make([]arenaSlot[T], 0, capacity),
	}
}

// Insert stores value and returns the handle addressing it.
func (a *Arena[T]) Insert(value T) Handle {
	var index uint32
	if n := len(a.free); n > 0 {
		index = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		index = uint32(len(a.slots))
		a.slots = append(a.slots, arenaSlot[T]{})
	}

	slot := &a.slots[index]
	slot.generation++
	if slot.generation == 0 {
		// wrapped, skip the invalid generation
		slot.generation = 1
	}
	slot.value = value
	slot.occupied = true
	a.live++

	return Handle{Index: index, Generation: slot.generation}
}

// Get resolves h. The boolean is false for stale or unknown handles.
func (a *Arena[T]) Get(h Handle) (T, bool) {
	var zero T
	if !a.Contains(h) {
		return zero, false
	}
	return a.slots[h.Index].value, true
}

// Set replaces the value behind a live handle.
func (a *Arena[T]) Set(h Handle, value T) bool {
	if !a.Contains(h) {
		return false
	}
	a.slots[h.Index].value = value
	return true
}

func (a *Arena[T]) Contains(h Handle) bool {
	if !h.IsValid() || int(h.Index) >= len(a.slots) {
		return false
	}
	slot := a.slots[h.Index]
	return slot.occupied && slot.generation == h.Generation
}

// Remove releases the slot behind h and returns the value it held.
func (a *Arena[T]) Remove(h Handle) (T, bool) {
	var zero T
	if !a.Contains(h) {
		return zero, false
	}
	slot := &a.slots[h.Index]
	value := slot.value
	slot.value = zero
	slot.occupied = false
	a.free = append(a.free, h.Index)
	a.live--
	return value, true
}

// Each visits every live value in slot order.
func (a *Arena[T]) Each(fn func(Handle, T)) {
	for i := range a.slots {
		slot := a.slots[i]
		if slot.occupied {
			fn(Handle{Index: uint32(i), Generation: slot.generation}, slot.value)
		}
	}
}

func (a *Arena[T]) Len() int {
	return a.live
}
