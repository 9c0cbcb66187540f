package node

import (
	"testing"

	"simba/internal/bus"
	"simba/internal/quiescence"
	"simba/internal/spatial"
	"simba/internal/strategy"
)

// recordingPhysics tracks call order and supports snapshot/restore so
// rollback tests can assert the state was actually rewound.
type recordingPhysics struct {
	calls *[]string
	pos   spatial.Position
	value int
}

func (p *recordingPhysics) UpdateState(t float64) error {
	*p.calls = append(*p.calls, "physics.update")
	p.value++
	return nil
}
func (p *recordingPhysics) ApplyCommand(t float64) error {
	*p.calls = append(*p.calls, "physics.apply")
	return nil
}
func (p *recordingPhysics) Position() spatial.Position { return p.pos }
func (p *recordingPhysics) Snapshot() any              { return p.value }
func (p *recordingPhysics) Restore(s any)              { p.value = s.(int) }

type recordingSensors struct {
	calls *[]string
	obs   []strategy.Observation
}

func (s *recordingSensors) MakeObservations(t float64) ([]strategy.Observation, error) {
	*s.calls = append(*s.calls, "sensors.make")
	return s.obs, nil
}
func (s *recordingSensors) NextTime() (float64, bool) { return 0, false }

type recordingEstimator struct {
	calls       *[]string
	corrections []int
}

func (e *recordingEstimator) CorrectionStep(observations []strategy.Observation) error {
	*e.calls = append(*e.calls, "estimator.correct")
	e.corrections = append(e.corrections, len(observations))
	return nil
}
func (e *recordingEstimator) PredictionStep(t float64) error {
	*e.calls = append(*e.calls, "estimator.predict")
	return nil
}
func (e *recordingEstimator) NextTime() (float64, bool) { return 0, false }

type recordingNavigator struct{ calls *[]string }

func (n *recordingNavigator) ComputeError(t float64) error {
	*n.calls = append(*n.calls, "navigator.compute")
	return nil
}

type recordingController struct{ calls *[]string }

func (c *recordingController) MakeCommand(t float64) error {
	*c.calls = append(*c.calls, "controller.command")
	return nil
}

func newTestNode(t *testing.T, calls *[]string) (*Node, *bus.Broker) {
	t.Helper()
	counter := quiescence.New()
	broker := bus.NewBroker(counter)
	modules := strategy.Set{
		Physics:        &recordingPhysics{calls: calls},
		Sensors:        &recordingSensors{calls: calls},
		StateEstimator: &recordingEstimator{calls: calls},
		Navigator:      &recordingNavigator{calls: calls},
		Controller:     &recordingController{calls: calls},
	}
	n, err := New("alpha", modules, 1.0, 100.0, broker, counter)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return n, broker
}

func TestRunStepFollowsFixedPhaseOrder(t *testing.T) {
	var calls []string
	n, _ := newTestNode(t, &calls)

	if err := n.RunStep(1.0, nil); err != nil {
		t.Fatalf("RunStep: %v", err)
	}

	want := []string{
		"physics.update",
		"sensors.make",
		"estimator.correct",
		"estimator.predict",
		"navigator.compute",
		"controller.command",
		"physics.apply",
	}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	for i, w := range want {
		if calls[i] != w {
			t.Fatalf("call %d = %q, want %q (full: %v)", i, calls[i], w, calls)
		}
	}
}

func TestRunStepSavesHistoryRecord(t *testing.T) {
	var calls []string
	n, _ := newTestNode(t, &calls)

	if err := n.RunStep(2.0, nil); err != nil {
		t.Fatalf("RunStep: %v", err)
	}
	hist := n.History()
	if len(hist) != 1 || hist[0].Time != 2.0 {
		t.Fatalf("expected one history record at t=2.0, got %v", hist)
	}
}

func TestKillTransitionsToZombie(t *testing.T) {
	var calls []string
	n, _ := newTestNode(t, &calls)

	n.Kill()
	if n.State() != Zombie {
		t.Fatalf("expected Zombie after Kill, got %v", n.State())
	}
	if !n.Teardown() {
		t.Fatalf("expected Teardown true for a Zombie node")
	}
}

func TestHandleEndOfStepKillEnvelopeTransitionsZombie(t *testing.T) {
	var calls []string
	n, broker := newTestNode(t, &calls)

	if err := broker.Send(bus.Envelope{
		From:      "scenario",
		Key:       CommandKey("alpha"),
		Timestamp: 1.0,
		Flags:     bus.FlagKill,
	}, nil); err != nil {
		t.Fatalf("Send: %v", err)
	}
	broker.ProcessMessages()

	zombie, err := n.HandleEndOfStep(1.0, nil)
	if err != nil {
		t.Fatalf("HandleEndOfStep: %v", err)
	}
	if !zombie {
		t.Fatalf("expected node to report zombie after Kill envelope")
	}
	if n.State() != Zombie {
		t.Fatalf("expected node state Zombie, got %v", n.State())
	}
}

func TestMarkKilledUnsubscribesClients(t *testing.T) {
	var calls []string
	n, broker := newTestNode(t, &calls)
	n.Kill()
	n.MarkKilled()
	if n.State() != Killed {
		t.Fatalf("expected Killed, got %v", n.State())
	}
	if err := broker.Send(bus.Envelope{
		From:      "scenario",
		Key:       CommandKey("alpha"),
		Timestamp: 1.0,
	}, nil); err != nil {
		t.Fatalf("Send: %v", err)
	}
	broker.ProcessMessages()
	if _, ok := n.commandClient.TryReceive(1.0); ok {
		t.Fatalf("expected no delivery to the command client after MarkKilled")
	}
}

func TestRollbackReplaysAtLateTimeThenCatchesUp(t *testing.T) {
	var calls []string
	n, broker := newTestNode(t, &calls)

	if err := n.RunStep(1.0, nil); err != nil {
		t.Fatalf("RunStep(1.0): %v", err)
	}
	if err := n.RunStep(2.0, nil); err != nil {
		t.Fatalf("RunStep(2.0): %v", err)
	}
	calls = nil

	// A God-flagged observation with an effective time well before the
	// current common_time (2.0) arrives late, forcing a rollback to the
	// t=1.0 snapshot, a replay there, then a catch-up run back at 2.0.
	if err := broker.Send(bus.Envelope{
		From:      "beta",
		Key:       ObservationsKey("alpha"),
		Timestamp: 1.0,
		Flags:     bus.FlagGod,
	}, nil); err != nil {
		t.Fatalf("Send: %v", err)
	}
	broker.ProcessMessages()

	if _, err := n.HandleEndOfStep(2.0, nil); err != nil {
		t.Fatalf("HandleEndOfStep: %v", err)
	}

	// Expect two full step replays: one at the rolled-back time, one
	// catching back up to common_time.
	perStep := 7
	if len(calls) != 2*perStep {
		t.Fatalf("expected %d calls across replay+catchup, got %d: %v", 2*perStep, len(calls), calls)
	}

	hist := n.History()
	if len(hist) != 2 {
		t.Fatalf("expected history still pinned at two distinct times, got %d entries: %v", len(hist), hist)
	}
	if hist[0].Time != 1.0 || hist[1].Time != 2.0 {
		t.Fatalf("expected history at [1.0, 2.0], got %v", hist)
	}
}

func TestProposeNextTimeDefaultsToMaxTimeWhenNothingPending(t *testing.T) {
	var calls []string
	n, _ := newTestNode(t, &calls)
	if got := n.ProposeNextTime(); got != 100.0 {
		t.Fatalf("expected maxTime fallback 100.0, got %v", got)
	}
}

func TestProposeNextTimeReflectsEarliestPendingCommand(t *testing.T) {
	var calls []string
	n, broker := newTestNode(t, &calls)

	if err := broker.Send(bus.Envelope{
		From:      "scenario",
		Key:       CommandKey("alpha"),
		Timestamp: 5.0,
	}, nil); err != nil {
		t.Fatalf("Send: %v", err)
	}
	broker.ProcessMessages()

	if got := n.ProposeNextTime(); got != 5.0 {
		t.Fatalf("expected proposed next time 5.0, got %v", got)
	}
}
