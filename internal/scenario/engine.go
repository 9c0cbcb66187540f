// Package scenario evaluates Time/Proximity/Area triggers against the
// running simulation and dispatches Kill/Spawn events, including $0/$1/…
// trigger-variable substitution.
//
// Grounded on original_source/simba-core/src/scenario/mod.rs's Scenario
// type: the split between pre-materialized time events and per-step
// proximity/area events, the trigger-variable substitution scheme, and
// the "publish an EventRecord after a successful dispatch" behavior are
// all carried over directly; only the config shape (YAML via
// gopkg.in/yaml.v3 instead of a Rust config crate) and the regex engine
// (Go's stdlib regexp instead of the `regex` crate) differ.
package scenario

import (
	"fmt"
	"math"
	"math/rand"

	"simba/internal/bus"
	"simba/internal/logging"
	"simba/internal/node"
	"simba/internal/pathkey"
	"simba/internal/spatial"
)

// ChannelKey is the reserved channel the engine publishes EventRecords
// to after a successful dispatch.
var ChannelKey = pathkey.New("simba", "internal", "scenario")

// EventRecord describes one successfully dispatched event, published on
// ChannelKey for any subscriber to observe.
type EventRecord struct {
	Time      float64
	Trigger   string
	EventType string
	Target    string
}

// Spawner constructs and registers a new node named nodeName from the
// template model, wired into the scheduler and barrier. Supplied by the
// scheduler since node construction requires knowledge the scenario
// engine does not have (strategy factories, the shared barrier).
type Spawner func(model, nodeName string, t float64) error

type timeEvent struct {
	occurrence int
	ev         *event
}

// Engine evaluates scenario triggers once per step, at common_time,
// before the step-handling phase begins.
type Engine struct {
	timeEvents  []timeEventEntry
	otherEvents []*event
	lastTime    float64
	broker      *bus.Broker
	spawn       Spawner
	log         *logging.Logger
}

type timeEventEntry struct {
	time float64
	te   timeEvent
}

// New compiles cfg against maxTime using rng for any random-valued
// triggers and registers the scenario channel on broker, so dispatched
// events can be published as EventRecords for any subscriber to observe.
func New(cfg Config, maxTime float64, rng *rand.Rand, broker *bus.Broker, spawn Spawner, log *logging.Logger) (*Engine, error) {
	if log == nil {
		log = logging.NewDiscard()
	}
	broker.AddChannel(ChannelKey, 0)

	eng := &Engine{broker: broker, spawn: spawn, log: log}

	for _, ec := range cfg.Events {
		if ec.Trigger.Type == "time" {
			entries, err := materializeTimeEvents(ec, maxTime, rng)
			if err != nil {
				return nil, err
			}
			eng.timeEvents = append(eng.timeEvents, entries...)
			continue
		}
		ev, err := compileEvent(ec)
		if err != nil {
			return nil, err
		}
		eng.otherEvents = append(eng.otherEvents, ev)
	}

	return eng, nil
}

func materializeTimeEvents(cfg EventConfig, maxTime float64, rng *rand.Rand) ([]timeEventEntry, error) {
	if cfg.Trigger.Time == nil {
		return nil, fmt.Errorf("scenario: time trigger missing time config")
	}
	ev, err := compileTimeDispatch(cfg)
	if err != nil {
		return nil, err
	}

	occurrences := int(resolveNumber(cfg.Trigger.Time.Occurrences, rng))
	var times []float64
	if step := cfg.Trigger.Time.Time.Fixed; step != nil {
		// A fixed time is a period: occurrence i fires at (i+1)*step,
		// either for the explicit occurrence count or, if zero, for
		// ceil(maxTime/step) occurrences; when maxTime is not a multiple
		// of step, the last of these lies past maxTime and never fires.
		if *step <= 0 {
			return nil, fmt.Errorf("scenario: time trigger requires a positive fixed time")
		}
		count := occurrences
		if count == 0 {
			count = int(math.Ceil(maxTime / *step))
		}
		for i := 0; i < count; i++ {
			times = append(times, *step*float64(i+1))
		}
	} else {
		if occurrences <= 0 {
			occurrences = 1
		}
		for i := 0; i < occurrences; i++ {
			times = append(times, resolveNumber(cfg.Trigger.Time.Time, rng))
		}
	}

	entries := make([]timeEventEntry, 0, len(times))
	for i, t := range times {
		entries = append(entries, timeEventEntry{time: t, te: timeEvent{occurrence: i, ev: ev}})
	}
	return entries, nil
}

// compileTimeDispatch builds the dispatch half of a time-triggered event
// (time events have no proximity/area geometry and no node filter).
func compileTimeDispatch(cfg EventConfig) (*event, error) {
	ev := &event{kind: TriggerTime}
	if err := fillDispatch(ev, cfg); err != nil {
		return nil, err
	}
	return ev, nil
}

// Evaluate runs every trigger due at or before t, in original-source
// order (time events first, then proximity/area), dispatching events and
// publishing an EventRecord for each successful dispatch. positions maps
// node id to its current world position; a node with no known position
// is excluded from Proximity/Area consideration.
func (e *Engine) Evaluate(t float64, positions map[string]spatial.Position) error {
	for _, entry := range e.timeEvents {
		if entry.time <= e.lastTime || entry.time > t {
			continue
		}
		variables := []string{fmt.Sprintf("%d", entry.te.occurrence)}
		if err := e.dispatch(entry.te.ev, t, variables, "time"); err != nil {
			return err
		}
	}

	for _, ev := range e.otherEvents {
		switch ev.kind {
		case TriggerProximity:
			for _, nodeName := range e.proximityTriggered(ev, positions) {
				if err := e.dispatch(ev, t, []string{nodeName}, "proximity"); err != nil {
					return err
				}
			}
		case TriggerArea:
			for _, nodeName := range e.areaTriggered(ev, positions) {
				if err := e.dispatch(ev, t, []string{nodeName}, "area"); err != nil {
					return err
				}
			}
		}
	}

	e.lastTime = t
	return nil
}

func (e *Engine) proximityTriggered(ev *event, positions map[string]spatial.Position) []string {
	var hits []string
	seen := make(map[string]struct{})
	names := make([]string, 0, len(positions))
	for name := range positions {
		names = append(names, name)
	}
	for i := range names {
		a := names[i]
		if !ev.matches(a) {
			continue
		}
		for j := range names {
			b := names[j]
			if a >= b || !ev.matches(b) {
				continue
			}
			if target := ev.proximity.protectedTarget; target != "" && target != a && target != b {
				continue
			}
			inside := spatial.Distance(positions[a], positions[b]) <= ev.proximity.distance
			if inside != ev.proximity.inside {
				continue
			}
			for _, n := range [2]string{a, b} {
				if _, ok := seen[n]; !ok {
					seen[n] = struct{}{}
					hits = append(hits, n)
				}
			}
		}
	}
	return hits
}

func (e *Engine) areaTriggered(ev *event, positions map[string]spatial.Position) []string {
	var hits []string
	for name, pos := range positions {
		if !ev.matches(name) {
			continue
		}
		var inside bool
		switch {
		case ev.area.rect != nil:
			inside = ev.area.rect.Contains(pos)
		case ev.area.circle != nil:
			inside = ev.area.circle.Contains(pos)
		default:
			continue
		}
		if inside == ev.area.inside {
			hits = append(hits, name)
		}
	}
	return hits
}

func (e *Engine) dispatch(ev *event, t float64, variables []string, triggerName string) error {
	switch ev.eventKind {
	case EventKill:
		name := substitute(ev.killNode, variables)
		cmdKey := node.CommandKey(name)
		if _, ok := e.broker.Channel(cmdKey); !ok {
			e.log.Warn("ignoring Kill event for unknown node", logging.String("node", name))
			return nil
		}
		if err := e.broker.Send(bus.Envelope{
			From:      "scenario",
			Key:       cmdKey,
			Timestamp: t,
			Flags:     bus.FlagKill,
		}, nil); err != nil {
			return err
		}
		e.publish(t, triggerName, "kill", name)
	case EventSpawn:
		model := substitute(ev.spawnModel, variables)
		name := substitute(ev.spawnNode, variables)
		if e.spawn == nil {
			e.log.Warn("ignoring Spawn event: no spawner configured", logging.String("node", name))
			return nil
		}
		if err := e.spawn(model, name, t); err != nil {
			e.log.Warn("ignoring Spawn event failure",
				logging.String("node", name), logging.String("model", model), logging.Error(err))
			return nil
		}
		e.publish(t, triggerName, "spawn", name)
	}
	return nil
}

func (e *Engine) publish(t float64, trigger, eventType, target string) {
	record := EventRecord{Time: t, Trigger: trigger, EventType: eventType, Target: target}
	_ = e.broker.Send(bus.Envelope{
		From:      "scenario",
		Key:       ChannelKey,
		Payload:   record,
		Timestamp: t,
	}, nil)
}

// NextEventTime reports the earliest still-pending time-triggered
// event's time, for folding into the scheduler's common-time proposal,
// matching original_source's next_event_time.
func (e *Engine) NextEventTime() (float64, bool) {
	best, ok := 0.0, false
	for _, entry := range e.timeEvents {
		if entry.time <= e.lastTime {
			continue
		}
		if !ok || entry.time < best {
			best, ok = entry.time, true
		}
	}
	return best, ok
}
