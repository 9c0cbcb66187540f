package scenario

import (
	"math/rand"
	"testing"

	"simba/internal/bus"
	"simba/internal/node"
	"simba/internal/quiescence"
	"simba/internal/spatial"
)

func fixed(v float64) NumberConfig { return NumberConfig{Fixed: &v} }

func newTestBroker() *bus.Broker {
	return bus.NewBroker(quiescence.New())
}

func TestTimeTriggerFixedOccurrencesFiresKillAtEachTime(t *testing.T) {
	broker := newTestBroker()
	broker.AddChannel(node.CommandKey("alpha"), 0)

	cfg := Config{Events: []EventConfig{{
		Trigger: TriggerConfig{Type: "time", Time: &TimeConfig{
			Time:        fixed(5.0),
			Occurrences: fixed(2),
		}},
		Type: "kill",
		Kill: &KillConfig{NodeName: "alpha"},
	}}}

	eng, err := New(cfg, 100, rand.New(rand.NewSource(1)), broker, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	client, err := broker.Subscribe(node.CommandKey("alpha"), "alpha", 0, nil)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if err := eng.Evaluate(5.0, nil); err != nil {
		t.Fatalf("Evaluate(5.0): %v", err)
	}
	broker.ProcessMessages()
	if _, ok := client.TryReceive(5.0); !ok {
		t.Fatalf("expected a Kill envelope delivered at t=5.0")
	}

	if err := eng.Evaluate(5.0, nil); err != nil {
		t.Fatalf("Evaluate(5.0) again: %v", err)
	}
	broker.ProcessMessages()
	if _, ok := client.TryReceive(5.0); ok {
		t.Fatalf("expected the same time-trigger occurrence not to refire")
	}

	if err := eng.Evaluate(10.0, nil); err != nil {
		t.Fatalf("Evaluate(10.0): %v", err)
	}
	broker.ProcessMessages()
	if _, ok := client.TryReceive(10.0); !ok {
		t.Fatalf("expected the second occurrence (a fixed-time period) to fire at t=10.0")
	}
}

func TestKillEventToUnknownNodeIsIgnoredNotFatal(t *testing.T) {
	broker := newTestBroker()
	cfg := Config{Events: []EventConfig{{
		Trigger: TriggerConfig{Type: "time", Time: &TimeConfig{Time: fixed(1.0), Occurrences: fixed(1)}},
		Type:    "kill",
		Kill:    &KillConfig{NodeName: "ghost"},
	}}}
	eng, err := New(cfg, 10, rand.New(rand.NewSource(1)), broker, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := eng.Evaluate(1.0, nil); err != nil {
		t.Fatalf("expected no error for an unknown target node, got %v", err)
	}
}

func TestProximityTriggerFiresWhenNodesAreClose(t *testing.T) {
	broker := newTestBroker()
	broker.AddChannel(node.CommandKey("beta"), 0)
	cfg := Config{Events: []EventConfig{{
		Trigger: TriggerConfig{Type: "proximity", Proximity: &ProximityConfig{Distance: 5.0, Inside: true}},
		Type:    "kill",
		Kill:    &KillConfig{NodeName: "beta"},
	}}}
	eng, err := New(cfg, 10, rand.New(rand.NewSource(1)), broker, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	client, err := broker.Subscribe(node.CommandKey("beta"), "beta", 0, nil)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	positions := map[string]spatial.Position{
		"alpha": {X: 0, Y: 0},
		"beta":  {X: 1, Y: 0},
	}
	if err := eng.Evaluate(1.0, positions); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	broker.ProcessMessages()
	if _, ok := client.TryReceive(1.0); !ok {
		t.Fatalf("expected a proximity-triggered Kill")
	}
}

func TestProximityTriggerDoesNotFireWhenFar(t *testing.T) {
	broker := newTestBroker()
	broker.AddChannel(node.CommandKey("beta"), 0)
	cfg := Config{Events: []EventConfig{{
		Trigger: TriggerConfig{Type: "proximity", Proximity: &ProximityConfig{Distance: 5.0, Inside: true}},
		Type:    "kill",
		Kill:    &KillConfig{NodeName: "beta"},
	}}}
	eng, err := New(cfg, 10, rand.New(rand.NewSource(1)), broker, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	client, err := broker.Subscribe(node.CommandKey("beta"), "beta", 0, nil)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	positions := map[string]spatial.Position{
		"alpha": {X: 0, Y: 0},
		"beta":  {X: 100, Y: 0},
	}
	if err := eng.Evaluate(1.0, positions); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	broker.ProcessMessages()
	if _, ok := client.TryReceive(1.0); ok {
		t.Fatalf("expected no Kill for distant nodes")
	}
}

func TestAreaTriggerRectFiresForNodeInside(t *testing.T) {
	broker := newTestBroker()
	broker.AddChannel(node.CommandKey("alpha"), 0)
	cfg := Config{Events: []EventConfig{{
		TriggeringNodes: []string{"^alpha$"},
		Trigger: TriggerConfig{Type: "area", Area: &AreaConfig{
			Inside: true,
			Rect:   &RectConfig{BottomLeft: [2]float64{0, 0}, TopRight: [2]float64{10, 10}},
		}},
		Type: "kill",
		Kill: &KillConfig{NodeName: "$0"},
	}}}
	eng, err := New(cfg, 10, rand.New(rand.NewSource(1)), broker, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	client, err := broker.Subscribe(node.CommandKey("alpha"), "alpha", 0, nil)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	positions := map[string]spatial.Position{"alpha": {X: 5, Y: 5}}
	if err := eng.Evaluate(1.0, positions); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	broker.ProcessMessages()
	if _, ok := client.TryReceive(1.0); !ok {
		t.Fatalf("expected the $0-substituted Kill to target alpha")
	}
}

func TestSpawnEventInvokesSpawnerWithSubstitutedNames(t *testing.T) {
	broker := newTestBroker()
	var gotModel, gotName string
	spawner := func(model, name string, t float64) error {
		gotModel, gotName = model, name
		return nil
	}
	cfg := Config{Events: []EventConfig{{
		Trigger: TriggerConfig{Type: "time", Time: &TimeConfig{Time: fixed(2.0), Occurrences: fixed(1)}},
		Type:    "spawn",
		Spawn:   &SpawnConfig{ModelName: "drone", NodeName: "drone-$0"},
	}}}
	eng, err := New(cfg, 10, rand.New(rand.NewSource(1)), broker, spawner, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := eng.Evaluate(2.0, nil); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if gotModel != "drone" || gotName != "drone-0" {
		t.Fatalf("expected spawner called with (drone, drone-0), got (%s, %s)", gotModel, gotName)
	}
}

func TestNextEventTimeReflectsEarliestUnfiredTimeTrigger(t *testing.T) {
	broker := newTestBroker()
	broker.AddChannel(node.CommandKey("alpha"), 0)
	cfg := Config{Events: []EventConfig{{
		Trigger: TriggerConfig{Type: "time", Time: &TimeConfig{Time: fixed(3.0), Occurrences: fixed(2)}},
		Type:    "kill",
		Kill:    &KillConfig{NodeName: "alpha"},
	}}}
	eng, err := New(cfg, 10, rand.New(rand.NewSource(1)), broker, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, ok := eng.NextEventTime()
	if !ok || got != 3.0 {
		t.Fatalf("expected next event time 3.0, got %v,%v", got, ok)
	}
}
