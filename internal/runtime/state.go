package runtime

import "fmt"

// StateTable is the persistent-state table (C5). A monotone per-bar counter
// resets to zero at the start of each bar; GetOrInitSlot reads the counter,
// advances it, and returns the slot at that index, creating it via factory
// the first time that index is touched. Because every indicator call in a
// procedure executes in the same order on every bar (branches aside, which
// are the caller's responsibility), the Nth call of a bar always lands on
// the same slot it landed on in every prior bar.
type StateTable struct {
	slots   []any
	counter int
}

// NewStateTable returns an empty table.
func NewStateTable() *StateTable { return &StateTable{} }

// ResetCallCounter must be invoked once at the start of every bar, before any
// indicator call executes.
func (t *StateTable) ResetCallCounter() { t.counter = 0 }

// GetOrInitSlot returns the slot at the current counter position, creating it
// via factory on first touch, then advances the counter. It does no type
// check itself; GetTyped does, and a type mismatch between the slot's
// existing contents and what the caller expects indicates state-table
// desynchronization — a control-flow change across bars that visits
// indicator calls in a different order — and is a fatal runtime error
// surfaced via a panic that Execute converts to a run-aborting error.
func (t *StateTable) GetOrInitSlot(factory func() any) any {
	idx := t.counter
	t.counter++
	for len(t.slots) <= idx {
		t.slots = append(t.slots, nil)
	}
	if t.slots[idx] == nil {
		t.slots[idx] = factory()
	}
	return t.slots[idx]
}

// SlotCount reports how many slots have been allocated so far across all
// bars executed on this table.
func (t *StateTable) SlotCount() int { return len(t.slots) }

// DesyncError is raised (as a panic, caught by the runtime's bar executor)
// when a slot already holds a value of a different concrete type than the
// caller expected at this counter position.
type DesyncError struct {
	Slot int
	Want string
	Got  string
}

func (e *DesyncError) Error() string {
	return fmt.Sprintf("state-table desynchronization at slot %d: expected %s, found %s", e.Slot, e.Want, e.Got)
}

// GetTyped is a convenience used by indicator call sites: it fetches (or
// creates) the slot and type-asserts it to T, panicking with a *DesyncError
// on mismatch rather than silently corrupting indicator state.
func GetTyped[T any](t *StateTable, factory func() T) T {
	idx := t.counter
	raw := t.GetOrInitSlot(func() any { return factory() })
	typed, ok := raw.(T)
	if !ok {
		panic(&DesyncError{Slot: idx, Want: fmt.Sprintf("%T", *new(T)), Got: fmt.Sprintf("%T", raw)})
	}
	return typed
}
