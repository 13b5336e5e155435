package item

import (
	"errors"
	"sync"
)

// ErrInventoryFull is returned when an added stack does not fit.
var ErrInventoryFull = errors.New("inventory full")

// DefaultSlots is the size of a player's storage inventory.
const DefaultSlots = 36

// Inventory is a fixed-size slot container safe for concurrent use.
type Inventory struct {
	mu       sync.Mutex
	slots    []Stack
	observer Observer
}

// Observer is told about every change made through Add or Take. delta is
// positive for added items and negative for removed ones. It runs after the
// inventory lock is released.
type Observer func(s Stack, delta int)

// Observe installs fn as the change observer; nil removes it.
func (inv *Inventory) Observe(fn Observer) {
	inv.mu.Lock()
	inv.observer = fn
	inv.mu.Unlock()
}

func (inv *Inventory) notify(obs Observer, s Stack, delta int) {
	if obs == nil || delta == 0 {
		return
	}
	c := s.Clone()
	c.Amount = 0
	obs(c, delta)
}

// NewInventory creates an empty inventory with size slots.
func NewInventory(size int) *Inventory {
	if size <= 0 {
		size = DefaultSlots
	}
	return &Inventory{slots: make([]Stack, size)}
}

// Add merges s into similar slots first, then fills empty slots.
// Returns ErrInventoryFull with the amount that did not fit.
func (inv *Inventory) Add(s Stack) (int, error) {
	inv.mu.Lock()
	left := inv.add(s)
	obs := inv.observer
	inv.mu.Unlock()

	inv.notify(obs, s, s.Amount-left)
	if left > 0 {
		return left, ErrInventoryFull
	}
	return 0, nil
}

func (inv *Inventory) add(s Stack) int {
	left := s.Amount
	for i := range inv.slots {
		if left == 0 {
			break
		}
		slot := &inv.slots[i]
		if slot.IsZero() || !slot.Similar(s) || slot.Amount >= MaxStackSize {
			continue
		}
		n := min(left, MaxStackSize-slot.Amount)
		slot.Amount += n
		left -= n
	}
	for i := range inv.slots {
		if left == 0 {
			break
		}
		if !inv.slots[i].IsZero() {
			continue
		}
		n := min(left, MaxStackSize)
		placed := s.Clone()
		placed.Amount = n
		inv.slots[i] = placed
		left -= n
	}
	return left
}

// Count returns the total amount of stacks similar to match.
func (inv *Inventory) Count(match Stack) int {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	total := 0
	for _, slot := range inv.slots {
		if !slot.IsZero() && slot.Similar(match) {
			total += slot.Amount
		}
	}
	return total
}

// Take removes up to limit items similar to match, walking slots in order.
// A slot holding more than what is still needed is reduced in place and the
// walk stops; smaller slots are emptied whole. Returns the amount removed.
func (inv *Inventory) Take(match Stack, limit int) int {
	inv.mu.Lock()
	taken := inv.take(match, limit)
	obs := inv.observer
	inv.mu.Unlock()

	inv.notify(obs, match, -taken)
	return taken
}

func (inv *Inventory) take(match Stack, limit int) int {
	taken := 0
	for i := range inv.slots {
		if taken >= limit {
			break
		}
		slot := &inv.slots[i]
		if slot.IsZero() || !slot.Similar(match) {
			continue
		}
		need := limit - taken
		if need < slot.Amount {
			slot.Amount -= need
			taken += need
			break
		}
		taken += slot.Amount
		inv.slots[i] = Stack{}
	}
	return taken
}

// Contents returns a copy of every non-empty slot.
func (inv *Inventory) Contents() []Stack {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	out := make([]Stack, 0, len(inv.slots))
	for _, slot := range inv.slots {
		if !slot.IsZero() {
			out = append(out, slot.Clone())
		}
	}
	return out
}

// Replace overwrites the contents with stacks without telling the observer.
// Stacks that do not fit are dropped and their amount returned.
func (inv *Inventory) Replace(stacks []Stack) int {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	clear(inv.slots)
	lost := 0
	for _, s := range stacks {
		if s.IsZero() {
			continue
		}
		lost += inv.add(s)
	}
	return lost
}
