// Package node implements the per-node time-step machine: the fixed
// phase order (physics -> sensors -> state estimation -> conditional
// navigation/control -> history save), state history for rollback, and
// the Running -> Zombie -> Killed lifecycle.
//
// Grounded on original_source/src/robot.rs and
// original_source/simba-core/src/simulator/mod.rs's per-thread step
// loop; the history/rollback design follows spec.md §4.8 directly since
// neither the teacher nor the rest of the retrieval pack models
// deterministic replay-on-late-message semantics.
package node

import (
	"sync"

	"simba/internal/bus"
	"simba/internal/pathkey"
	"simba/internal/quiescence"
	"simba/internal/spatial"
	"simba/internal/strategy"
	"simba/internal/tob"
)

// State is a node's lifecycle phase.
type State int

const (
	// Running is the normal, stepping state.
	Running State = iota
	// Zombie means a Kill was received; one more drain pass remains
	// before teardown.
	Zombie
	// Killed means the node has finished its teardown barrier pass and
	// its goroutine is exiting.
	Killed
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Zombie:
		return "zombie"
	default:
		return "killed"
	}
}

// Record is one saved snapshot of a node's modules at a given time, used
// both for result emission and for rollback.
type Record struct {
	Time      float64
	Snapshots map[string]any
	Public    any
}

// CommandRoot and ObservationsSuffix compose the reserved channel names:
// /simba/internal/command/<name> and
// /simba/internal/node/<name>/sensors/observations.
var (
	CommandRoot        = pathkey.New("simba", "internal", "command")
	NodeRoot           = pathkey.New("simba", "internal", "node")
	ObservationsSuffix = []string{"sensors", "observations"}
)

// CommandKey returns the reserved Kill-delivery channel key for name.
func CommandKey(name string) pathkey.Key { return CommandRoot.Child(name) }

// ObservationsKey returns the reserved observation-delivery channel key for name.
func ObservationsKey(name string) pathkey.Key {
	key := NodeRoot.Child(name)
	for _, seg := range ObservationsSuffix {
		key = key.Child(seg)
	}
	return key
}

// Node is one simulated agent: its modules, its lifecycle, and its
// rollback-capable history.
type Node struct {
	mu       sync.Mutex
	id       string
	quantum  float64
	maxTime  float64
	state    State
	modules  strategy.Set
	history  *tob.Buffer[Record]
	nextTime float64

	broker        *bus.Broker
	counter       *quiescence.Counter
	commandClient *bus.Client
	observeClient *bus.Client
	pendingObs    []strategy.Observation
}

// New constructs a node named id, registers its reserved command and
// observations channels on broker, and subscribes itself to both.
func New(id string, modules strategy.Set, quantum, maxTime float64, broker *bus.Broker, counter *quiescence.Counter) (*Node, error) {
	broker.AddChannel(CommandKey(id), quantum)
	broker.AddChannel(ObservationsKey(id), quantum)

	commandClient, err := broker.Subscribe(CommandKey(id), id, 0, nil)
	if err != nil {
		return nil, err
	}
	observeClient, err := broker.Subscribe(ObservationsKey(id), id, 0, nil)
	if err != nil {
		return nil, err
	}

	return &Node{
		id:            id,
		quantum:       quantum,
		maxTime:       maxTime,
		state:         Running,
		modules:       modules,
		history:       tob.New[Record](quantum),
		broker:        broker,
		counter:       counter,
		commandClient: commandClient,
		observeClient: observeClient,
	}, nil
}

// ID returns the node's name.
func (n *Node) ID() string { return n.id }

// State reports the node's current lifecycle phase.
func (n *Node) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// Position reports the node's physics-reported world position, or the
// zero position if it has no physics module.
func (n *Node) Position() spatial.Position {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.modules.Physics == nil {
		return spatial.Position{}
	}
	return n.modules.Physics.Position()
}

// History returns the node's saved records in ascending time order, for
// result emission. The caller must not mutate the returned slice.
func (n *Node) History() []tob.Entry[Record] {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.history.All()
}

// ProposeNextTime computes min(state_estimator.next_time,
// sensors.next_time, command/observation channel next times). The result
// is not rounded to the node's quantum. If every source is silent, it
// proposes maxTime; the scheduler's Run ends after the cycle at max_time,
// so such a node does not hold the run there.
func (n *Node) ProposeNextTime() float64 {
	n.mu.Lock()
	defer n.mu.Unlock()

	best, ok := n.maxTime, false
	consider := func(t float64, has bool) {
		if has && (!ok || t < best) {
			best, ok = t, true
		}
	}
	if n.modules.StateEstimator != nil {
		consider(n.modules.StateEstimator.NextTime())
	}
	if n.modules.Sensors != nil {
		consider(n.modules.Sensors.NextTime())
	}
	consider(n.commandClient.NextTime())
	consider(n.observeClient.NextTime())

	n.nextTime = best
	return best
}

// Kill marks self Zombie immediately, used by the scenario engine and
// tests driving a node without going through the command channel.
func (n *Node) Kill() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.state == Running {
		n.state = Zombie
	}
}

// MarkKilled finalizes teardown after the last drain pass.
func (n *Node) MarkKilled() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.state = Killed
	n.commandClient.Unsubscribe()
	n.observeClient.Unsubscribe()
}

// Teardown reports whether the node is past Running and should be
// removed from the active set at the next opportunity.
func (n *Node) Teardown() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state != Running
}

func moduleSnapshot(m any) any {
	s, ok := m.(strategy.Snapshotter)
	if !ok {
		return nil
	}
	return s.Snapshot()
}

func restoreModule(m any, snap any) {
	if snap == nil {
		return
	}
	if s, ok := m.(strategy.Snapshotter); ok {
		s.Restore(snap)
	}
}

// snapshotModules captures every module's state (best-effort; a module
// that doesn't implement strategy.Snapshotter is simply omitted).
func (n *Node) snapshotModules() map[string]any {
	out := make(map[string]any, 5)
	if n.modules.Physics != nil {
		if s := moduleSnapshot(n.modules.Physics); s != nil {
			out["physics"] = s
		}
	}
	if n.modules.Sensors != nil {
		if s := moduleSnapshot(n.modules.Sensors); s != nil {
			out["sensors"] = s
		}
	}
	if n.modules.StateEstimator != nil {
		if s := moduleSnapshot(n.modules.StateEstimator); s != nil {
			out["state_estimator"] = s
		}
	}
	if n.modules.Navigator != nil {
		if s := moduleSnapshot(n.modules.Navigator); s != nil {
			out["navigator"] = s
		}
	}
	if n.modules.Controller != nil {
		if s := moduleSnapshot(n.modules.Controller); s != nil {
			out["controller"] = s
		}
	}
	return out
}

func (n *Node) restoreModules(snaps map[string]any) {
	restoreModule(n.modules.Physics, snaps["physics"])
	restoreModule(n.modules.Sensors, snaps["sensors"])
	restoreModule(n.modules.StateEstimator, snaps["state_estimator"])
	restoreModule(n.modules.Navigator, snaps["navigator"])
	restoreModule(n.modules.Controller, snaps["controller"])
}
