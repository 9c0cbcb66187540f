package scheduler

import (
	"context"
	"sync"

	"simba/internal/logging"
	"simba/internal/node"
)

// Run drives the simulation forward one elected common_time per cycle
// until every node has finished (common_time exceeds max_time, or the
// cycle at common_time == max_time has completed), the context is
// cancelled, or a node reports an ImplementationError.
//
// Each cycle spawns one fresh goroutine per currently live node (joined
// with a WaitGroup before the cycle ends), rendezvousing with the
// orchestrator three times at the shared barrier: once to propose a
// next time and learn common_time, once after executing the step to
// let the orchestrator ingest messages and run scenario triggers, and
// once after handling end-of-step delivery so Kill/Spawn bookkeeping
// can happen in the safe gap between cycles.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			s.counter.ForceFinish()
			return ctx.Err()
		default:
		}

		ids := s.liveIDs()
		if len(ids) == 0 {
			return nil
		}

		cycle := &cycleState{
			proposals: make(map[string]float64, len(ids)),
			killed:    make(map[string]struct{}),
		}

		var wg sync.WaitGroup
		wg.Add(len(ids))
		for _, id := range ids {
			s.mu.Lock()
			n := s.nodes[id]
			s.mu.Unlock()
			go func(n *node.Node) {
				defer wg.Done()
				s.runNodeCycle(n, cycle)
			}(n)
		}

		running := len(ids)

		// Phase 1: every node proposes; the orchestrator collapses the
		// proposals to common_time, then releases the generation itself.
		// A still-pending scenario time-trigger is folded in too, so a
		// Kill/Spawn scheduled for an exact instant fires at that instant
		// rather than whatever later time node pacing happens to land on.
		s.counter.WaitQuiescent(running)
		if s.counter.ForceFinished() {
			wg.Wait()
			return cycle.firstErr
		}
		commonTime, ok := cycle.minProposal()
		if !ok {
			commonTime = s.maxTime
		}
		if s.scenarioEngine != nil {
			if eventTime, pending := s.scenarioEngine.NextEventTime(); pending && eventTime < commonTime {
				commonTime = eventTime
			}
		}
		s.mu.Lock()
		s.commonTime = commonTime
		s.mu.Unlock()
		s.counter.ResetWaiting()
		s.barrier.Wait()

		if commonTime > s.maxTime {
			wg.Wait()
			return cycle.firstErr
		}

		// Phase 2: every node has executed its step; ingest whatever it
		// produced, run scenario triggers (which may themselves enqueue
		// kills/spawns), then ingest those too before releasing. Arrival
		// is gated on waitingNodes alone (WaitAllWaiting), not on
		// in_flight==0 (WaitQuiescent) — the messages nodes just sent are
		// still in flight at this point, and ProcessMessages below is what
		// drains them; requiring in_flight==0 to arrive would deadlock
		// against the very ingest that clears it.
		s.counter.WaitAllWaiting(running)
		if s.counter.ForceFinished() {
			wg.Wait()
			return cycle.firstErr
		}
		s.broker.ProcessMessages()
		if s.scenarioEngine != nil {
			if err := s.scenarioEngine.Evaluate(commonTime, s.positionsSnapshot()); err != nil {
				cycle.recordErr(err)
				s.counter.ForceFinish()
			}
			s.broker.ProcessMessages()
		}
		s.counter.ResetWaiting()
		s.barrier.Wait()

		// Phase 3: every node has handled its end-of-step delivery
		// (including any Kill/Spawn the scenario pass just produced).
		s.counter.WaitQuiescent(running)
		s.counter.ResetWaiting()
		s.barrier.Wait()

		wg.Wait()

		if s.recorder != nil {
			s.mu.Lock()
			snapshot := make(map[string]*node.Node, len(s.nodes))
			for id, n := range s.nodes {
				snapshot[id] = n
			}
			s.mu.Unlock()
			if err := s.recorder.RecordStep(commonTime, snapshot); err != nil {
				cycle.recordErr(err)
			}
		}

		s.reapAndSpawn(cycle.killed)

		if cycle.firstErr != nil {
			s.counter.ForceFinish()
			return cycle.firstErr
		}
		if commonTime >= s.maxTime {
			return nil
		}
	}
}

// reapAndSpawn mutates node/barrier membership. Safe only because Run
// calls it after wg.Wait() — no goroutine from the just-finished cycle
// can still be blocked inside Barrier.Wait.
func (s *Scheduler) reapAndSpawn(killed map[string]struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id := range killed {
		n, ok := s.nodes[id]
		if !ok {
			continue
		}
		n.MarkKilled()
		_ = s.barrier.RemoveParty()
		delete(s.nodes, id)
		delete(s.positions, id)
		s.log.Info("node killed", logging.String("node", id))
	}

	for _, req := range s.pending {
		id := req.node.ID()
		if _, exists := s.nodes[id]; exists {
			continue
		}
		s.nodes[id] = req.node
		s.positions[id] = req.node.Position()
		_ = s.barrier.AddParty()
		s.log.Info("node spawned", logging.String("node", id))
	}
	s.pending = nil
}

// cycleState holds the per-cycle scratch state shared across this
// cycle's node goroutines under its own locks, kept separate from the
// Scheduler's own state so two cycles never share mutable data.
type cycleState struct {
	mu        sync.Mutex
	proposals map[string]float64
	killed    map[string]struct{}
	firstErr  error
}

func (c *cycleState) setProposal(id string, t float64) {
	c.mu.Lock()
	c.proposals[id] = t
	c.mu.Unlock()
}

func (c *cycleState) minProposal() (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	best, ok := 0.0, false
	for _, t := range c.proposals {
		if !ok || t < best {
			best, ok = t, true
		}
	}
	return best, ok
}

func (c *cycleState) markKilled(id string) {
	c.mu.Lock()
	c.killed[id] = struct{}{}
	c.mu.Unlock()
}

func (c *cycleState) recordErr(err error) {
	if err == nil {
		return
	}
	c.mu.Lock()
	if c.firstErr == nil {
		c.firstErr = err
	}
	c.mu.Unlock()
}
