// Command simba runs the deterministic multi-agent simulation core
// against a YAML configuration document: it loads the document, builds
// the node population and scenario engine it describes, drives the
// scheduler to completion, and persists the record stream.
//
// Grounded on the teacher's main() in main.go: the
// load-config/construct-logger/os.Exit(1)-on-error sequence is carried
// forward unchanged; everything after it is new, since the teacher
// wires a WebSocket broker and this binary wires the simulation core
// instead.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"

	"simba/internal/bus"
	"simba/internal/config"
	"simba/internal/logging"
	"simba/internal/node"
	"simba/internal/quiescence"
	"simba/internal/record"
	"simba/internal/scenario"
	"simba/internal/scheduler"
	"simba/internal/strategy"
)

func main() {
	configPath := flag.String("config", "", "path to the simulation's YAML configuration document")
	flag.Parse()

	if strings.TrimSpace(*configPath) == "" {
		fmt.Fprintln(os.Stderr, "simba: -config is required")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New("simba", cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize structured logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	seed := resolveRandomSeed(cfg)
	logger.Info("resolved random seed", logging.Int("seed", int(seed)))
	rng := rand.New(rand.NewSource(seed))

	counter := quiescence.New()
	broker := bus.NewBroker(counter)
	sched := scheduler.New(broker, counter, cfg.TimeRound, cfg.MaxTime, logger)

	registerPassiveFactories(sched, cfg)

	if err := addConfiguredNodes(sched, cfg, broker, counter); err != nil {
		logger.Error("failed to build configured nodes", logging.Error(err))
		os.Exit(1)
	}

	if len(cfg.Scenario.Events) > 0 {
		eng, err := scenario.New(cfg.Scenario, cfg.MaxTime, rng, broker, sched.Spawn, logger)
		if err != nil {
			logger.Error("failed to build scenario engine", logging.Error(err))
			os.Exit(1)
		}
		sched.SetScenario(eng)
	}

	sink, finalize, err := buildResultSink(cfg)
	if err != nil {
		logger.Error("failed to set up the record sink", logging.Error(err))
		os.Exit(1)
	}
	if sink != nil {
		sched.SetRecorder(sink)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	runErr := sched.Run(ctx)

	if finalize != nil {
		if err := finalize(); err != nil {
			logger.Error("failed to finalize the record stream", logging.Error(err))
			runErr = errors.Join(runErr, err)
		}
	}

	if runErr != nil {
		logger.Error("simulation run failed", logging.Error(runErr))
		os.Exit(1)
	}
	logger.Info("simulation run complete", logging.Float("common_time", sched.CommonTime()))
}

// resolveRandomSeed returns cfg.RandomSeed if the document set one,
// otherwise generates one and writes it back into cfg so callers that
// inspect cfg after this point (and a future result-document header)
// see the same value that was actually used, per spec.md §6's
// "absent = generated and echoed in output" contract. The generated
// value is derived from a fresh UUID rather than the current time, so
// that two runs started in the same process tick still diverge.
func resolveRandomSeed(cfg *config.Config) int64 {
	if cfg.RandomSeed != nil {
		return *cfg.RandomSeed
	}
	id := uuid.New()
	seed := int64(0)
	for _, b := range id[:8] {
		seed = seed<<8 | int64(b)
	}
	if seed < 0 {
		seed = -seed
	}
	cfg.RandomSeed = &seed
	return seed
}

// registerPassiveFactories registers a no-op strategy.Set factory for
// every model name named by the document's robots/computation_units.
// Concrete physics/sensor/controller/navigator/state-estimator
// implementations are strategy plug-ins outside this repository's
// scope; this factory exists only so a minimal document is runnable
// end to end. An embedding application replaces it by calling
// scheduler.RegisterFactory with its own models before Run.
func registerPassiveFactories(sched *scheduler.Scheduler, cfg *config.Config) {
	seen := make(map[string]struct{})
	for _, list := range [][]config.NodeConfig{cfg.Robots, cfg.ComputationUnits} {
		for _, n := range list {
			model := n.Model
			if model == "" {
				model = "passive"
			}
			if _, ok := seen[model]; ok {
				continue
			}
			seen[model] = struct{}{}
			sched.RegisterFactory(model, func(id string) (strategy.Set, error) {
				return strategy.Set{}, nil
			})
		}
	}
}

// addConfiguredNodes builds one node per robot/computation_unit entry
// and registers it with sched via AddNode before Run begins. This
// differs from Spawn, which only queues a node to join at the next
// safe cycle boundary once Run is already looping: the initial
// population has to be a barrier party from cycle zero, or Run would
// see zero live nodes and return immediately.
func addConfiguredNodes(sched *scheduler.Scheduler, cfg *config.Config, broker *bus.Broker, counter *quiescence.Counter) error {
	for _, list := range [][]config.NodeConfig{cfg.Robots, cfg.ComputationUnits} {
		for _, nc := range list {
			n, err := node.New(nc.Name, strategy.Set{}, cfg.TimeRound, cfg.MaxTime, broker, counter)
			if err != nil {
				return err
			}
			if err := sched.AddNode(n); err != nil {
				return err
			}
		}
	}
	return nil
}

// buildResultSink constructs the record sink named by cfg.Results, and
// returns the function that must run after Run returns to flush and
// close it. A nil sink/finalize pair means the document asked for
// nothing to be persisted.
func buildResultSink(cfg *config.Config) (scheduler.Recorder, func() error, error) {
	mode := cfg.Results.SaveMode.SaveModeConfig

	switch mode.Mode {
	case record.AtTheEnd:
		rec := record.NewRecorder(cfg)
		path := cfg.Results.ResultPath
		if path == "" {
			return rec, nil, nil
		}
		return rec, func() error { return rec.Finalize(path) }, nil
	case record.Continuous, record.Batch, record.Periodic:
		snapshotPath := cfg.Results.ResultPath + ".snapshot"
		w, err := record.NewWriter(cfg.Results.ResultPath, snapshotPath, mode)
		if err != nil {
			return nil, nil, err
		}
		return w, w.Close, nil
	default:
		return nil, nil, nil
	}
}
