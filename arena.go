package troupe

import "fmt"

// ID is an opaque handle referencing an actor in a World.
//
// An ID is a (slot, generation) pair: the slot may be reused after the actor
// is removed, but the generation is bumped on removal, so a stale ID never
// resolves to a newer occupant. The zero ID never refers to a live actor and
// doubles as "no parent" for Create.
type ID struct {
	slot       uint32
	generation uint32
}

// Valid reports whether the ID could have been issued by a World. It does not
// check liveness.
func (id ID) Valid() bool { return id.generation != 0 }

func (id ID) String() string {
	if !id.Valid() {
		return "actor(none)"
	}
	return fmt.Sprintf("actor(%dv%d)", id.slot, id.generation)
}

// arena is a generational slot allocator. Slots are reused after removal; the
// per-slot generation counter gives O(1) staleness checks for old IDs.
type arena[T any] struct {
	slots []slot[T]
	free  []uint32
	count int
}

type slot[T any] struct {
	generation uint32
	occupied   bool
	value      T
}

func (a *arena[T]) insert(value T) ID {
	a.count++

	if n := len(a.free); n > 0 {
		idx := a.free[n-1]
		a.free = a.free[:n-1]
		s := &a.slots[idx]
		s.occupied = true
		s.value = value
		return ID{slot: idx, generation: s.generation}
	}

	a.slots = append(a.slots, slot[T]{generation: 1, occupied: true, value: value})
	return ID{slot: uint32(len(a.slots) - 1), generation: 1}
}

// get resolves an ID to its value, or nil if the ID is stale or was never
// issued. The pointer is invalidated by any later insert.
func (a *arena[T]) get(id ID) *T {
	if int(id.slot) >= len(a.slots) {
		return nil
	}
	s := &a.slots[id.slot]
	if !s.occupied || s.generation != id.generation {
		return nil
	}
	return &s.value
}

func (a *arena[T]) contains(id ID) bool { return a.get(id) != nil }

func (a *arena[T]) remove(id ID) (T, bool) {
	var zero T
	if int(id.slot) >= len(a.slots) {
		return zero, false
	}
	s := &a.slots[id.slot]
	if !s.occupied || s.generation != id.generation {
		return zero, false
	}

	value := s.value
	s.value = zero
	s.occupied = false
	// Bump the generation so outstanding IDs for this slot go stale.
	s.generation++
	a.free = append(a.free, id.slot)
	a.count--
	return value, true
}

func (a *arena[T]) len() int { return a.count }

// each visits every occupied slot. The callback must not insert or remove.
func (a *arena[T]) each(fn func(ID, *T) bool) {
	for i := range a.slots {
		s := &a.slots[i]
		if !s.occupied {
			continue
		}
		if !fn(ID{slot: uint32(i), generation: s.generation}, &s.value) {
			return
		}
	}
}
