// Package scheduler implements the orchestrator: the barrier-based
// cooperative loop across one goroutine per live node plus the
// orchestrator goroutine that elects a common next time step, drives
// every node through it, and detects quiescence.
//
// Grounded on original_source/simba-core/src/simulator/mod.rs's
// run_one_node/simulator_spin pair: node goroutines propose a next
// time, rendezvous at a barrier, execute their step at the elected
// common_time, rendezvous again while the orchestrator ingests
// messages and runs scenario triggers, then rendezvous a third time
// after handling end-of-step delivery. Node goroutines are spawned
// fresh every cycle (joined with a sync.WaitGroup) rather than kept
// alive across the whole run, so barrier membership changes (Spawn,
// Kill) only ever happen in the gap between cycles, when no goroutine
// can possibly be blocked inside Barrier.Wait — the orchestrator's own
// use of AddParty/RemoveParty never races a live generation. The
// orchestrator itself is a permanent extra party of the barrier (one
// more than the running node count) so it can compute common_time, or
// ingest/evaluate scenario triggers, strictly between the moment every
// node has arrived and the moment it releases them by calling Wait
// itself — the same "temporarily join the barrier to gate a step it
// otherwise has no way to inject work into" trick the original
// simulator thread uses around its own add_one/remove_one calls.
package scheduler

import (
	"fmt"
	"sort"
	"sync"

	"simba/internal/barrier"
	"simba/internal/bus"
	"simba/internal/logging"
	"simba/internal/node"
	"simba/internal/quiescence"
	"simba/internal/scenario"
	"simba/internal/simerr"
	"simba/internal/spatial"
	"simba/internal/strategy"
)

// NodeFactory builds the plug-in module set for a newly spawned node
// named id, looked up by the scenario config's model_name.
type NodeFactory func(id string) (strategy.Set, error)

// Recorder observes every completed step, for the result/record stream.
// Implemented by internal/record.Writer and internal/record.Recorder.
type Recorder interface {
	RecordStep(commonTime float64, nodes map[string]*node.Node) error
}

type spawnRequest struct {
	node *node.Node
}

// Scheduler is the orchestrator: it owns the broker, the quiescence
// counter, the reusable barrier, and the scenario engine, and drives
// the population of node goroutines through the step machine.
type Scheduler struct {
	mu        sync.Mutex
	broker    *bus.Broker
	counter   *quiescence.Counter
	barrier   *barrier.Barrier
	nodes     map[string]*node.Node
	positions map[string]spatial.Position
	factories map[string]NodeFactory
	pending   []spawnRequest

	scenarioEngine *scenario.Engine
	recorder       Recorder
	quantum        float64
	maxTime        float64
	commonTime     float64
	log            *logging.Logger
}

// New constructs an empty Scheduler bound to broker/counter, running
// until maxTime. quantum is the default time quantum used for nodes
// spawned mid-run by the scenario engine (pre-existing nodes carry
// their own quantum, set when they were constructed). Nodes are added
// with AddNode before Run is called.
func New(broker *bus.Broker, counter *quiescence.Counter, quantum, maxTime float64, log *logging.Logger) *Scheduler {
	if log == nil {
		log = logging.NewDiscard()
	}
	return &Scheduler{
		broker:    broker,
		counter:   counter,
		barrier:   barrier.New(1), // orchestrator is the only standing party until nodes join
		nodes:     make(map[string]*node.Node),
		positions: make(map[string]spatial.Position),
		factories: make(map[string]NodeFactory),
		quantum:   quantum,
		maxTime:   maxTime,
		log:       log,
	}
}

// SetScenario installs the scenario engine evaluated once per step, at
// common_time, between the step and end-of-step barrier phases.
func (s *Scheduler) SetScenario(eng *scenario.Engine) { s.scenarioEngine = eng }

// SetRecorder installs the result/record sink notified after every
// completed step.
func (s *Scheduler) SetRecorder(r Recorder) { s.recorder = r }

// RegisterFactory makes model available as a Spawn target by name.
func (s *Scheduler) RegisterFactory(model string, factory NodeFactory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.factories[model] = factory
}

// AddNode registers an already-constructed node before the run starts
// and adds it as a barrier party. Calling AddNode after Run has begun
// is a programming error; use Spawn (via the scenario engine) instead.
func (s *Scheduler) AddNode(n *node.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.nodes[n.ID()]; exists {
		return simerr.NewConfigError("node", fmt.Errorf("duplicate node id %q", n.ID()))
	}
	s.nodes[n.ID()] = n
	s.positions[n.ID()] = n.Position()
	return s.barrier.AddParty()
}

// Spawn implements scenario.Spawner: it builds a node from a registered
// model factory and queues it to join the active set at the next safe
// cycle boundary.
func (s *Scheduler) Spawn(model, id string, t float64) error {
	s.mu.Lock()
	factory, ok := s.factories[model]
	_, exists := s.nodes[id]
	s.mu.Unlock()
	if !ok {
		return simerr.NewConfigError("spawn", fmt.Errorf("unknown spawn model %q", model))
	}
	if exists {
		return simerr.NewConfigError("spawn", fmt.Errorf("node %q already exists", id))
	}

	modules, err := factory(id)
	if err != nil {
		return err
	}
	n, err := node.New(id, modules, s.quantum, s.maxTime, s.broker, s.counter)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, spawnRequest{node: n})
	s.log.Info("scenario spawn queued", logging.String("node", id), logging.String("model", model), logging.Float("time", t))
	return nil
}

// CommonTime reports the most recently elected common time step.
func (s *Scheduler) CommonTime() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commonTime
}

func (s *Scheduler) positionsSnapshot() map[string]spatial.Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]spatial.Position, len(s.positions))
	for k, v := range s.positions {
		out[k] = v
	}
	return out
}

func (s *Scheduler) updatePosition(n *node.Node) {
	s.mu.Lock()
	s.positions[n.ID()] = n.Position()
	s.mu.Unlock()
}

// LiveNodeIDs reports the ids of every node currently registered with
// the scheduler, in sorted order. Exposed for diagnostics and tests.
func (s *Scheduler) LiveNodeIDs() []string { return s.liveIDs() }

func (s *Scheduler) liveIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.nodes))
	for id := range s.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
