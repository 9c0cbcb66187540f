package scenario

// Config is the top-level `scenario:` document, a flat list of events.
// Grounded on original_source/simba-core/src/scenario/config.rs's
// ScenarioConfig/EventConfig shape (file not present in the retrieval
// pack's original_source snapshot; reconstructed from mod.rs's usage of
// config.events and each EventConfig's fields).
type Config struct {
	Events []EventConfig `yaml:"events"`
}

// EventConfig is one scenario event: a trigger plus what fires when the
// trigger is satisfied. TriggeringNodes are regexp patterns restricting
// which node names a Proximity/Area trigger considers; Time triggers
// ignore this filter.
type EventConfig struct {
	TriggeringNodes []string      `yaml:"triggering_nodes"`
	Trigger         TriggerConfig `yaml:"trigger"`
	Type            string        `yaml:"type"` // "kill" or "spawn"
	Kill            *KillConfig   `yaml:"kill,omitempty"`
	Spawn           *SpawnConfig  `yaml:"spawn,omitempty"`
}

// TriggerConfig is a discriminated union selected by Type: "time",
// "proximity", or "area".
type TriggerConfig struct {
	Type      string           `yaml:"type"`
	Time      *TimeConfig      `yaml:"time,omitempty"`
	Proximity *ProximityConfig `yaml:"proximity,omitempty"`
	Area      *AreaConfig      `yaml:"area,omitempty"`
}

// NumberConfig is either a fixed value or a uniform-random range drawn
// once per occurrence, seeded from the simulation's random_seed so a
// fixed seed reproduces the same trigger times.
type NumberConfig struct {
	Fixed *float64 `yaml:"fixed,omitempty"`
	Min   *float64 `yaml:"min,omitempty"`
	Max   *float64 `yaml:"max,omitempty"`
}

// TimeConfig pre-materializes into a list of trigger times, kept in
// configuration order rather than sorted; Evaluate checks every entry.
// Occurrences of zero with a fixed Time means "repeat every Time units
// until max_time", matching the original's `occurences == 0` case.
type TimeConfig struct {
	Time        NumberConfig `yaml:"time"`
	Occurrences NumberConfig `yaml:"occurrences"`
}

// ProximityConfig fires when two (filtered) nodes are within Distance of
// each other, optionally restricted to pairs involving ProtectedTarget.
type ProximityConfig struct {
	Distance        float64 `yaml:"distance"`
	Inside          bool    `yaml:"inside"`
	ProtectedTarget string  `yaml:"protected_target,omitempty"`
}

// AreaConfig fires when a node is inside/outside a Rect or Circle.
type AreaConfig struct {
	Inside bool          `yaml:"inside"`
	Rect   *RectConfig   `yaml:"rect,omitempty"`
	Circle *CircleConfig `yaml:"circle,omitempty"`
}

// RectConfig is an axis-aligned XY rectangle: (bottom_left, top_right).
type RectConfig struct {
	BottomLeft [2]float64 `yaml:"bottom_left"`
	TopRight   [2]float64 `yaml:"top_right"`
}

// CircleConfig is an XY circle.
type CircleConfig struct {
	Center [2]float64 `yaml:"center"`
	Radius float64    `yaml:"radius"`
}

// KillConfig names the node to kill, with $0/$1/... trigger-variable
// substitution applied before dispatch.
type KillConfig struct {
	NodeName string `yaml:"node_name"`
}

// SpawnConfig names the template and the new node, both with
// $0/$1/... substitution applied.
type SpawnConfig struct {
	ModelName string `yaml:"model_name"`
	NodeName  string `yaml:"node_name"`
}
