package node

import (
	"simba/internal/bus"
	"simba/internal/spatial"
	"simba/internal/strategy"
)

// RunStep executes the fixed within-step phase order at t: physics,
// sensors (publishing remote observations and folding in local ones plus
// anything already delivered to this node), state estimation,
// conditional prediction/navigation/control, then a history save.
func (n *Node) RunStep(t float64, positions map[string]spatial.Position) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.runStepLocked(t, positions)
}

func (n *Node) runStepLocked(t float64, positions map[string]spatial.Position) error {
	if n.modules.Physics != nil {
		if err := strategy.Guard(n.id, "physics", func() error {
			return n.modules.Physics.UpdateState(t)
		}); err != nil {
			return err
		}
	}

	var produced []strategy.Observation
	if n.modules.Sensors != nil {
		err := strategy.Guard(n.id, "sensors", func() error {
			obs, err := n.modules.Sensors.MakeObservations(t)
			produced = obs
			return err
		})
		if err != nil {
			return err
		}
	}

	local := make([]strategy.Observation, 0, len(produced))
	for _, obs := range produced {
		if obs.Remote == "" {
			local = append(local, obs)
			continue
		}
		if err := n.broker.Send(bus.Envelope{
			From:      n.id,
			Key:       ObservationsKey(obs.Remote),
			Payload:   obs.Payload,
			Timestamp: t,
		}, positions); err != nil {
			return err
		}
	}

	observed := append(n.pendingObs, local...)
	n.pendingObs = nil

	var predictionDue bool
	if n.modules.StateEstimator != nil {
		if nextT, ok := n.modules.StateEstimator.NextTime(); ok {
			predictionDue = t >= nextT
		} else {
			predictionDue = true
		}
		if err := strategy.Guard(n.id, "state_estimator", func() error {
			return n.modules.StateEstimator.CorrectionStep(observed)
		}); err != nil {
			return err
		}
	}

	if predictionDue {
		if n.modules.StateEstimator != nil {
			if err := strategy.Guard(n.id, "state_estimator", func() error {
				return n.modules.StateEstimator.PredictionStep(t)
			}); err != nil {
				return err
			}
		}
		if n.modules.Navigator != nil {
			if err := strategy.Guard(n.id, "navigator", func() error {
				return n.modules.Navigator.ComputeError(t)
			}); err != nil {
				return err
			}
		}
		if n.modules.Controller != nil {
			if err := strategy.Guard(n.id, "controller", func() error {
				return n.modules.Controller.MakeCommand(t)
			}); err != nil {
				return err
			}
		}
		if n.modules.Physics != nil {
			if err := strategy.Guard(n.id, "physics", func() error {
				return n.modules.Physics.ApplyCommand(t)
			}); err != nil {
				return err
			}
		}
	}

	n.history.Insert(t, Record{Time: t, Snapshots: n.snapshotModules()}, true)
	return nil
}

// HandleEndOfStep drains the node's command and observation channels at
// t (the step's common_time). A Kill envelope transitions the node to
// Zombie. An observation whose effective delivery time falls before t
// triggers a rollback: the node restores its last recorded state at or
// before that time, replays the step there with the late observation
// folded in, then re-runs the step at t to catch back up. Per the kept
// double-drain behavior, a node that becomes Zombie during this pass
// drains both channels once more before returning.
func (n *Node) HandleEndOfStep(t float64, positions map[string]spatial.Position) (zombie bool, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.drainLocked(t, positions); err != nil {
		return false, err
	}
	if n.state == Zombie {
		if err := n.drainLocked(t, positions); err != nil {
			return true, err
		}
	}
	return n.state == Zombie, nil
}

func (n *Node) drainLocked(t float64, positions map[string]spatial.Position) error {
	for {
		env, ok := n.commandClient.TryReceive(t)
		if !ok {
			break
		}
		if env.HasFlag(bus.FlagKill) {
			n.state = Zombie
		}
	}

	for {
		env, ok := n.observeClient.TryReceive(t)
		if !ok {
			break
		}
		obs := strategy.Observation{Source: env.From, Payload: env.Payload}
		if env.Timestamp < t-n.quantum/2 {
			if err := n.rollbackAndReplayLocked(env.Timestamp, t, obs, positions); err != nil {
				return err
			}
			continue
		}
		n.pendingObs = append(n.pendingObs, obs)
	}
	return nil
}

// rollbackAndReplayLocked implements spec.md §4.8's rollback semantics.
func (n *Node) rollbackAndReplayLocked(late, commonTime float64, obs strategy.Observation, positions map[string]spatial.Position) error {
	rec, ok := n.history.Before(late)
	if !ok {
		return nil
	}
	n.restoreModules(rec.Value.Snapshots)

	n.pendingObs = append(n.pendingObs, obs)
	if err := n.runStepLocked(late, positions); err != nil {
		return err
	}
	return n.runStepLocked(commonTime, positions)
}
