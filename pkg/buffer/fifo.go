package buffer

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrFull is returned when no slot or queue entry is available.
	ErrFull = errors.New("buffer: full")

	// ErrEmpty is returned when there is nothing to consume.
	ErrEmpty = errors.New("buffer: empty")

	// ErrSlotState is returned when a slot is used out of its lifecycle
	// order, for example locking a slot that was never claimed.
	ErrSlotState = errors.New("buffer: invalid slot state")
)

type slotState uint8

const (
	slotVacant slotState = iota
	slotClaimed
	slotLocked
)

// FIFO is a fixed arena of slots handed out with a claim/lock/free
// lifecycle. Locked slots are consumed in the order they were locked.
//
// All methods are safe for concurrent use and never block on a peer: the
// critical sections only touch slot bookkeeping, never the slot contents.
// FIFO does not allocate after construction.
type FIFO[T any] struct {
	mu     sync.Mutex
	slots  []T
	states []slotState

	// order holds the locked slot indices as a ring, oldest at head.
	order  []int
	head   int
	locked int

	allocated int
}

// NewFIFO returns a FIFO with capacity slots. It panics if capacity is not
// positive.
func NewFIFO[T any](capacity int) *FIFO[T] {
	if capacity <= 0 {
		panic("buffer: fifo capacity must be positive")
	}
	return &FIFO[T]{
		slots:  make([]T, capacity),
		states: make([]slotState, capacity),
		order:  make([]int, capacity),
	}
}

// Cap returns the number of slots.
func (f *FIFO[T]) Cap() int {
	return len(f.slots)
}

// Len returns the number of allocated slots (claimed or locked) and the
// number of locked slots.
func (f *FIFO[T]) Len() (allocated, locked int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.allocated, f.locked
}

// Claim takes a vacant slot for writing. The returned pointer stays valid
// until the slot is freed. Returns ErrFull when every slot is allocated.
func (f *FIFO[T]) Claim() (int, *T, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.claimLocked()
}

// ClaimEvicting is Claim with the overrun policy applied: when no slot is
// vacant, the oldest locked slot is freed first and evicted reports it.
// ErrFull is only returned when every slot is claimed and none is locked.
func (f *FIFO[T]) ClaimEvicting() (idx int, slot *T, evicted bool, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.allocated == len(f.slots) && f.locked > 0 {
		f.freeLocked(f.order[f.head])
		evicted = true
	}
	idx, slot, err = f.claimLocked()
	return idx, slot, evicted, err
}

func (f *FIFO[T]) claimLocked() (int, *T, error) {
	if f.allocated == len(f.slots) {
		return -1, nil, ErrFull
	}
	for i, s := range f.states {
		if s == slotVacant {
			f.states[i] = slotClaimed
			f.allocated++
			return i, &f.slots[i], nil
		}
	}
	return -1, nil, ErrFull
}

// Lock publishes a claimed slot to the consumer.
func (f *FIFO[T]) Lock(idx int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(idx, slotClaimed); err != nil {
		return err
	}
	f.states[idx] = slotLocked
	f.order[(f.head+f.locked)%len(f.order)] = idx
	f.locked++
	return nil
}

// PeekOldest returns the oldest locked slot without freeing it. Returns
// ErrEmpty when no slot is locked.
//
// The slot stays in the lock order, so ClaimEvicting may reuse it before
// the caller frees it, and Free then releases the new frame. PeekOldest is
// only safe when producer and consumer share one context; consumers racing
// an evicting producer use TakeOldest.
func (f *FIFO[T]) PeekOldest() (int, *T, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.locked == 0 {
		return -1, nil, ErrEmpty
	}
	idx := f.order[f.head]
	return idx, &f.slots[idx], nil
}

// TakeOldest removes the oldest locked slot from the lock order and hands
// it to the caller as claimed, so eviction can no longer reuse it while it
// is read. The caller frees it with Free. Returns ErrEmpty when no slot is
// locked.
func (f *FIFO[T]) TakeOldest() (int, *T, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.locked == 0 {
		return -1, nil, ErrEmpty
	}
	idx := f.order[f.head]
	f.head = (f.head + 1) % len(f.order)
	f.locked--
	f.states[idx] = slotClaimed
	return idx, &f.slots[idx], nil
}

// Free returns a claimed or locked slot to the vacant pool. The slot
// contents are left as they are; the next claimer overwrites them.
func (f *FIFO[T]) Free(idx int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if idx < 0 || idx >= len(f.slots) {
		return fmt.Errorf("%w: slot %d out of range", ErrSlotState, idx)
	}
	switch f.states[idx] {
	case slotClaimed:
		f.states[idx] = slotVacant
		f.allocated--
		return nil
	case slotLocked:
		f.freeLocked(idx)
		return nil
	default:
		return fmt.Errorf("%w: slot %d is vacant", ErrSlotState, idx)
	}
}

// freeLocked removes a locked slot from the lock order. The common case is
// the oldest slot, which is O(1).
func (f *FIFO[T]) freeLocked(idx int) {
	n := len(f.order)
	pos := 0
	for ; pos < f.locked; pos++ {
		if f.order[(f.head+pos)%n] == idx {
			break
		}
	}
	for ; pos > 0; pos-- {
		f.order[(f.head+pos)%n] = f.order[(f.head+pos-1)%n]
	}
	f.head = (f.head + 1) % n
	f.locked--
	f.states[idx] = slotVacant
	f.allocated--
}

func (f *FIFO[T]) check(idx int, want slotState) error {
	if idx < 0 || idx >= len(f.slots) {
		return fmt.Errorf("%w: slot %d out of range", ErrSlotState, idx)
	}
	if f.states[idx] != want {
		return fmt.Errorf("%w: slot %d", ErrSlotState, idx)
	}
	return nil
}
