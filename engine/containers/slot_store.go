package containers

// SlotStore is a growable table of owned values addressed by index. A nil
// entry is an empty slot. Insert reuses the first empty slot before growing,
// and Delete never shrinks the table, so indices held elsewhere stay valid.
type SlotStore[T any] struct {
	slots []*T
	live  int
}

func NewSlotStore[T any]() *SlotStore[T] {
	return &SlotStore[T]{}
}

// Insert stores v in the first empty slot and returns its index.
func (s *SlotStore[T]) Insert(v *T) int {
	if v == nil {
		panic("containers: SlotStore.Insert of nil value")
	}
	s.live++
	for i, slot := range s.slots {
		if slot == nil {
			s.slots[i] = v
			return i
		}
	}
	s.slots = append(s.slots, v)
	return len(s.slots) - 1
}

// Get returns the value at index, or false if the slot is empty or out of range.
func (s *SlotStore[T]) Get(index int) (*T, bool) {
	if index < 0 || index >= len(s.slots) {
		return nil, false
	}
	v := s.slots[index]
	return v, v != nil
}

// Delete empties the slot and hands the previous value back to the caller
// for destruction. Deleting an empty slot is a no-op.
func (s *SlotStore[T]) Delete(index int) (*T, bool) {
	v, ok := s.Get(index)
	if !ok {
		return nil, false
	}
	s.slots[index] = nil
	s.live--
	return v, true
}

// Clear returns every live value in slot order and empties the table.
func (s *SlotStore[T]) Clear() []*T {
	out := make([]*T, 0, s.live)
	for _, v := range s.slots {
		if v != nil {
			out = append(out, v)
		}
	}
	s.slots = nil
	s.live = 0
	return out
}

// Each visits live slots in index order.
func (s *SlotStore[T]) Each(fn func(index int, v *T)) {
	for i, v := range s.slots {
		if v != nil {
			fn(i, v)
		}
	}
}

// Len is the length of the slot table, empty slots included.
func (s *SlotStore[T]) Len() int {
	return len(s.slots)
}

// Live is the number of occupied slots.
func (s *SlotStore[T]) Live() int {
	return s.live
}
