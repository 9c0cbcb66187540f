// Package quiescence implements the shared counters and condition
// variable the scheduler waits on to decide when a simulation step may
// advance: every running node must be waiting, and no message may be
// in flight.
//
// Grounded on original_source/simba-core/src/simulator/mod.rs, which
// keeps waiting_nodes / in_flight_messages / force_finish as shared
// state gating the end-of-step barrier.
package quiescence

import "sync"

// Counter tracks end-of-step readiness. All methods are safe for
// concurrent use by the scheduler goroutine and the node goroutines.
type Counter struct {
	mu           sync.Mutex
	cond         *sync.Cond
	waitingNodes int
	inFlightMsgs int
	forceFinish  bool
}

// New constructs an empty Counter.
func New() *Counter {
	c := &Counter{}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// NodeWaiting records that one more node has reached its step barrier.
func (c *Counter) NodeWaiting() {
	c.mu.Lock()
	c.waitingNodes++
	c.cond.Broadcast()
	c.mu.Unlock()
}

// NodeResumed records that a previously waiting node has resumed work.
func (c *Counter) NodeResumed() {
	c.mu.Lock()
	if c.waitingNodes > 0 {
		c.waitingNodes--
	}
	c.mu.Unlock()
}

// MessageSent records a message that has been queued but not yet
// delivered/handled.
func (c *Counter) MessageSent() {
	c.mu.Lock()
	c.inFlightMsgs++
	c.mu.Unlock()
}

// MessageHandled records that a previously in-flight message has been
// delivered and processed.
func (c *Counter) MessageHandled() {
	c.mu.Lock()
	c.inFlightMsgs--
	c.cond.Broadcast()
	c.mu.Unlock()
}

// MessagesHandled records that n previously in-flight messages have been
// delivered and processed in a single batch, e.g. after a broker ingest
// sweep.
func (c *Counter) MessagesHandled(n int) {
	if n == 0 {
		return
	}
	c.mu.Lock()
	c.inFlightMsgs -= n
	c.cond.Broadcast()
	c.mu.Unlock()
}

// ForceFinish marks the run for immediate termination, e.g. after an
// ImplementationError. It wakes every waiter.
func (c *Counter) ForceFinish() {
	c.mu.Lock()
	c.forceFinish = true
	c.cond.Broadcast()
	c.mu.Unlock()
}

// ForceFinished reports whether ForceFinish has been called.
func (c *Counter) ForceFinished() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.forceFinish
}

// Quiescent reports whether every one of the given running nodes is
// waiting and no message is in flight, or whether force finish has been
// requested.
func (c *Counter) Quiescent(running int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.forceFinish || (c.waitingNodes >= running && c.inFlightMsgs == 0)
}

// WaitQuiescent blocks until Quiescent(running) holds, re-checking under
// the condition variable each time a counter changes.
func (c *Counter) WaitQuiescent(running int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for !(c.forceFinish || (c.waitingNodes >= running && c.inFlightMsgs == 0)) {
		c.cond.Wait()
	}
}

// WaitAllWaiting blocks until every one of the given running nodes has
// reached this barrier phase, or force finish has been requested —
// without also requiring in-flight messages to have drained. The phase
// that ingests remote observations (spec.md §4.8 step 3b) has to wait
// for every node to arrive *before* it can drain what they just sent;
// gating that arrival on in_flight==0 too would deadlock, since the
// only thing that decrements in_flight is the ingest this wait is
// supposed to unblock.
func (c *Counter) WaitAllWaiting(running int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for !(c.forceFinish || c.waitingNodes >= running) {
		c.cond.Wait()
	}
}

// Snapshot returns the current counter values, for diagnostics/logging.
func (c *Counter) Snapshot() (waitingNodes, inFlightMessages int, forceFinish bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.waitingNodes, c.inFlightMsgs, c.forceFinish
}

// ResetWaiting zeroes the waiting-node count at the start of a new step,
// leaving in-flight message accounting untouched.
func (c *Counter) ResetWaiting() {
	c.mu.Lock()
	c.waitingNodes = 0
	c.mu.Unlock()
}
