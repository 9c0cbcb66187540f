// Package strategy defines the plug-in interfaces a node's modules
// implement — physics, sensors, state estimation, navigation, and
// control — and the panic recovery boundary that converts a
// misbehaving plug-in into an ImplementationError rather than letting
// it unwind (and poison) the node's goroutine.
//
// Grounded on spec.md §9's design note on plug-in panics ("a panic in a
// plug-in must not poison global state; wrap each plug-in call site in a
// catch boundary") and on the teacher's internal/bots/controller.go,
// whose nil-receiver-safe, functional-option-constructed methods are the
// model for treating plug-in calls as untrusted boundaries.
package strategy

import "simba/internal/spatial"

// Observation is one piece of sensor data, either retained locally or
// destined for another node's observations channel.
type Observation struct {
	Source  string
	Payload any
	Remote  string // target node name; empty means local-only
}

// Physics advances and applies forces to a node's simulated body.
type Physics interface {
	// UpdateState integrates the body forward to t.
	UpdateState(t float64) error
	// ApplyCommand applies a previously computed control command.
	ApplyCommand(t float64) error
	// Position reports the body's current world position.
	Position() spatial.Position
}

// Sensors produces observations at or before t.
type Sensors interface {
	// MakeObservations runs every sensor due at t and returns what they produced.
	MakeObservations(t float64) ([]Observation, error)
	// NextTime reports the next simulated time a sensor is due to fire.
	NextTime() (float64, bool)
}

// StateEstimator fuses observations into a state estimate.
type StateEstimator interface {
	// CorrectionStep folds newly arrived observations into the estimate.
	CorrectionStep(observations []Observation) error
	// PredictionStep advances the estimate without new observations.
	PredictionStep(t float64) error
	// NextTime reports when the estimator next requires a correction/prediction pass.
	NextTime() (float64, bool)
}

// Navigator computes tracking error against a reference trajectory.
type Navigator interface {
	ComputeError(t float64) error
}

// Controller turns navigation error into a physics command.
type Controller interface {
	MakeCommand(t float64) error
}

// Snapshotter is implemented by a plug-in module that can save and
// restore its own state, enabling the node step machine's rollback path
// to rewind a module to an earlier point in its history. A module that
// does not implement Snapshotter is simply left untouched on rollback.
type Snapshotter interface {
	Snapshot() any
	Restore(snapshot any)
}

// Set bundles one node's plug-in modules. A nil field means the node has
// no module of that kind and the corresponding phase is skipped.
type Set struct {
	Physics        Physics
	Sensors        Sensors
	StateEstimator StateEstimator
	Navigator      Navigator
	Controller     Controller
}
