package scenario

import (
	"fmt"
	"math/rand"
	"regexp"
	"strconv"
	"strings"

	"simba/internal/spatial"
)

// TriggerKind discriminates a compiled Trigger.
type TriggerKind int

const (
	TriggerTime TriggerKind = iota
	TriggerProximity
	TriggerArea
)

func (k TriggerKind) String() string {
	switch k {
	case TriggerTime:
		return "time"
	case TriggerProximity:
		return "proximity"
	default:
		return "area"
	}
}

// EventKind discriminates a compiled Event's dispatch.
type EventKind int

const (
	EventKill EventKind = iota
	EventSpawn
)

// proximityTrigger and areaTrigger are evaluated every step against
// current node positions; time triggers are pre-materialized at
// construction and never re-evaluated here.
type proximityTrigger struct {
	distance        float64
	inside          bool
	protectedTarget string
}

type areaTrigger struct {
	rect   *spatial.Rect
	circle *spatial.Circle
	inside bool
}

// event is a compiled scenario event ready for repeated evaluation.
type event struct {
	filters    []*regexp.Regexp
	kind       TriggerKind
	proximity  proximityTrigger
	area       areaTrigger
	eventKind  EventKind
	killNode   string
	spawnModel string
	spawnNode  string
}

func (e *event) matches(name string) bool {
	if len(e.filters) == 0 {
		return true
	}
	for _, re := range e.filters {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}

// compileEvent translates an EventConfig into its runtime form, compiling
// regexes and resolving the dispatch target. Time-triggered events are
// handled separately by materializeTimeEvents and never reach here.
func compileEvent(cfg EventConfig) (*event, error) {
	filters := make([]*regexp.Regexp, 0, len(cfg.TriggeringNodes))
	for _, pattern := range cfg.TriggeringNodes {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("scenario: invalid triggering_nodes pattern %q: %w", pattern, err)
		}
		filters = append(filters, re)
	}

	ev := &event{filters: filters}
	switch cfg.Trigger.Type {
	case "proximity":
		if cfg.Trigger.Proximity == nil {
			return nil, fmt.Errorf("scenario: proximity trigger missing proximity config")
		}
		ev.kind = TriggerProximity
		ev.proximity = proximityTrigger{
			distance:        cfg.Trigger.Proximity.Distance,
			inside:          cfg.Trigger.Proximity.Inside,
			protectedTarget: cfg.Trigger.Proximity.ProtectedTarget,
		}
	case "area":
		if cfg.Trigger.Area == nil {
			return nil, fmt.Errorf("scenario: area trigger missing area config")
		}
		ev.kind = TriggerArea
		ev.area.inside = cfg.Trigger.Area.Inside
		if r := cfg.Trigger.Area.Rect; r != nil {
			ev.area.rect = &spatial.Rect{
				MinX: r.BottomLeft[0], MinY: r.BottomLeft[1],
				MaxX: r.TopRight[0], MaxY: r.TopRight[1],
			}
		}
		if c := cfg.Trigger.Area.Circle; c != nil {
			ev.area.circle = &spatial.Circle{
				Center: spatial.Position{X: c.Center[0], Y: c.Center[1]},
				Radius: c.Radius,
			}
		}
	default:
		return nil, fmt.Errorf("scenario: unsupported trigger type %q for a non-time event", cfg.Trigger.Type)
	}

	if err := fillDispatch(ev, cfg); err != nil {
		return nil, err
	}
	return ev, nil
}

func fillDispatch(ev *event, cfg EventConfig) error {
	switch cfg.Type {
	case "kill":
		if cfg.Kill == nil {
			return fmt.Errorf("scenario: kill event missing kill config")
		}
		ev.eventKind = EventKill
		ev.killNode = cfg.Kill.NodeName
	case "spawn":
		if cfg.Spawn == nil {
			return fmt.Errorf("scenario: spawn event missing spawn config")
		}
		ev.eventKind = EventSpawn
		ev.spawnModel = cfg.Spawn.ModelName
		ev.spawnNode = cfg.Spawn.NodeName
	default:
		return fmt.Errorf("scenario: unsupported event type %q", cfg.Type)
	}
	return nil
}

// resolveNumber draws a value from cfg: the fixed value if set, else a
// uniform draw from [min, max] using rng.
func resolveNumber(cfg NumberConfig, rng *rand.Rand) float64 {
	if cfg.Fixed != nil {
		return *cfg.Fixed
	}
	lo, hi := 0.0, 0.0
	if cfg.Min != nil {
		lo = *cfg.Min
	}
	if cfg.Max != nil {
		hi = *cfg.Max
	}
	if hi <= lo {
		return lo
	}
	return lo + rng.Float64()*(hi-lo)
}

// substitute replaces every $0, $1, ... occurrence in template with the
// corresponding trigger variable, matching spec.md §4.9's template
// substitution rule.
func substitute(template string, variables []string) string {
	out := template
	for i, v := range variables {
		out = strings.ReplaceAll(out, "$"+strconv.Itoa(i), v)
	}
	return out
}
