// Package barrier implements a reusable multi-party rendezvous point with
// dynamic party membership, used between the phases of a simulation
// step (propose -> barrier -> execute -> barrier -> handle messages).
//
// Grounded on original_source/simba-core/src/simulator/mod.rs, whose
// step machine waits for every node thread to reach each phase boundary
// before any of them proceeds, and allows node threads to join or leave
// between generations as they are spawned or killed.
package barrier

import (
	"sync"

	"simba/internal/simerr"
)

// Barrier is a cyclic rendezvous point for a fixed-at-any-instant set of
// parties. Parties may be added or removed between generations; doing so
// while a generation's Wait calls are in progress is a programming error
// and reported as an ImplementationError rather than silently corrupting
// the count.
type Barrier struct {
	mu         sync.Mutex
	cond       *sync.Cond
	expected   int
	arrived    int
	generation uint64
}

// New constructs a Barrier for the given number of initial parties.
func New(parties int) *Barrier {
	b := &Barrier{expected: parties}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Wait blocks until every expected party has called Wait for the current
// generation, then releases them all together.
func (b *Barrier) Wait() {
	b.mu.Lock()
	defer b.mu.Unlock()

	gen := b.generation
	b.arrived++
	if b.arrived == b.expected {
		b.generation++
		b.arrived = 0
		b.cond.Broadcast()
		return
	}
	for gen == b.generation {
		b.cond.Wait()
	}
}

// AddParty increases the number of parties expected in the next
// generation. It must only be called between Wait calls (i.e. when no
// party is currently blocked in the barrier); calling it mid-wait
// returns ErrImplementation.
func (b *Barrier) AddParty() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.arrived != 0 {
		return simerr.NewImplementationError("", "barrier", errAddDuringWait)
	}
	b.expected++
	return nil
}

// RemoveParty decreases the number of parties expected in the next
// generation. Like AddParty it must only be called outside an
// in-progress wait: if any party has already arrived it returns an
// ImplementationError and never releases the waiting generation.
func (b *Barrier) RemoveParty() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.arrived != 0 {
		return simerr.NewImplementationError("", "barrier", errRemoveDuringWait)
	}
	if b.expected == 0 {
		return simerr.NewImplementationError("", "barrier", errRemoveEmpty)
	}
	b.expected--
	return nil
}

// Parties reports the number of parties expected in the next generation.
func (b *Barrier) Parties() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.expected
}
