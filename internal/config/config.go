// Package config loads the simulator's configuration document: the
// version/max_time/random_seed/time_round header, the robots and
// computation_units node lists, the scenario and results blocks, and
// logging setup, per spec.md §6.
//
// Grounded on the teacher's internal/config/config.go: the env-override
// convention (a default baked into the YAML-decoded value, selectively
// overridden by an environment variable of the same shape) and the
// accumulate-then-join validation-error style are carried forward
// unchanged; the document format itself moves from flat environment
// variables to a nested gopkg.in/yaml.v3 document, since spec.md §6
// describes a configuration file, not a flag/env surface.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"simba/internal/logging"
	"simba/internal/record"
	"simba/internal/scenario"
)

// DefaultTimeRound is used when a document omits time_round.
const DefaultTimeRound = 0.1

// CurrentMajorVersion is this build's configuration major version.
// Documents whose major differs are rejected. The minor part is not
// compared, and no warning is emitted for it.
const CurrentMajorVersion = 1

// NodeConfig names one robot or computation unit plus its opaque,
// model-specific strategy configs. The model-specific maps are handed
// to the node factory registered for this NodeConfig's model under
// scheduler.RegisterFactory; internal/config does not interpret them.
type NodeConfig struct {
	Name           string         `yaml:"name"`
	Model          string         `yaml:"model,omitempty"`
	Physics        map[string]any `yaml:"physics,omitempty"`
	Navigator      map[string]any `yaml:"navigator,omitempty"`
	Controller     map[string]any `yaml:"controller,omitempty"`
	StateEstimator map[string]any `yaml:"state_estimator,omitempty"`
	Sensors        map[string]any `yaml:"sensors,omitempty"`
	Network        map[string]any `yaml:"network,omitempty"`
}

// ResultsConfig names where and how the record stream is persisted.
type ResultsConfig struct {
	ResultPath string          `yaml:"result_path,omitempty"`
	SaveMode   SaveModeSetting `yaml:"save_mode"`
}

// SaveModeSetting decodes the save_mode scalar of spec.md §6
// ("AtTheEnd|Continuous|Batch(n)|Periodic(s)") into a
// record.SaveModeConfig. Accepted YAML spellings: "at_the_end",
// "continuous", "batch:<n>", "periodic:<seconds>" (case-insensitive).
type SaveModeSetting struct {
	record.SaveModeConfig
}

// UnmarshalYAML implements yaml.Unmarshaler for the save_mode scalar.
func (s *SaveModeSetting) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("save_mode: %w", err)
	}
	mode, err := parseSaveMode(raw)
	if err != nil {
		return err
	}
	s.SaveModeConfig = mode
	return nil
}

func parseSaveMode(raw string) (record.SaveModeConfig, error) {
	trimmed := strings.TrimSpace(raw)
	name, param, hasParam := strings.Cut(trimmed, ":")
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "at_the_end", "attheend":
		return record.SaveModeConfig{Mode: record.AtTheEnd}, nil
	case "continuous":
		return record.SaveModeConfig{Mode: record.Continuous}, nil
	case "batch":
		if !hasParam {
			return record.SaveModeConfig{}, fmt.Errorf("save_mode: batch requires a record count, e.g. %q", "batch:50")
		}
		n, err := strconv.Atoi(strings.TrimSpace(param))
		if err != nil || n <= 0 {
			return record.SaveModeConfig{}, fmt.Errorf("save_mode: batch count must be a positive integer, got %q", param)
		}
		return record.SaveModeConfig{Mode: record.Batch, BatchSize: n}, nil
	case "periodic":
		if !hasParam {
			return record.SaveModeConfig{}, fmt.Errorf("save_mode: periodic requires a second count, e.g. %q", "periodic:2.0")
		}
		s, err := strconv.ParseFloat(strings.TrimSpace(param), 64)
		if err != nil || s <= 0 {
			return record.SaveModeConfig{}, fmt.Errorf("save_mode: periodic seconds must be a positive number, got %q", param)
		}
		return record.SaveModeConfig{Mode: record.Periodic, PeriodSeconds: s}, nil
	default:
		return record.SaveModeConfig{}, fmt.Errorf("save_mode: unknown mode %q", raw)
	}
}

// Config is the simulator's top-level configuration document.
type Config struct {
	Version          string          `yaml:"version"`
	MaxTime          float64         `yaml:"max_time"`
	RandomSeed       *int64          `yaml:"random_seed,omitempty"`
	TimeRound        float64         `yaml:"time_round"`
	Robots           []NodeConfig    `yaml:"robots"`
	ComputationUnits []NodeConfig    `yaml:"computation_units"`
	Scenario         scenario.Config `yaml:"scenario"`
	Results          ResultsConfig   `yaml:"results"`
	Logging          logging.Config  `yaml:"logging"`
}

// Load reads and validates the configuration document at path,
// applying the same BROKER_-style environment overrides the teacher's
// Load used for its own flat schema, scoped here to SIMBA_ equivalents
// for the handful of values an operator most often needs to override
// without editing the document (max_time, random_seed, result_path).
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := &Config{TimeRound: DefaultTimeRound}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if problems := cfg.validate(); len(problems) > 0 {
		return nil, fmt.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if raw := strings.TrimSpace(os.Getenv("SIMBA_MAX_TIME")); raw != "" {
		if value, err := strconv.ParseFloat(raw, 64); err == nil && value > 0 {
			cfg.MaxTime = value
		}
	}
	if raw := strings.TrimSpace(os.Getenv("SIMBA_RANDOM_SEED")); raw != "" {
		if value, err := strconv.ParseInt(raw, 10, 64); err == nil {
			cfg.RandomSeed = &value
		}
	}
	if raw := strings.TrimSpace(os.Getenv("SIMBA_RESULT_PATH")); raw != "" {
		cfg.Results.ResultPath = raw
	}
}

// validate returns a description of every problem found in cfg,
// mirroring the teacher's accumulate-then-join style so a misconfigured
// document is reported in one error rather than one failure at a time.
func (c *Config) validate() []string {
	var problems []string

	major, minor, ok := parseVersion(c.Version)
	if !ok {
		problems = append(problems, fmt.Sprintf("version must be MAJOR.MINOR, got %q", c.Version))
	} else if major != CurrentMajorVersion {
		problems = append(problems, fmt.Sprintf("version %d.%d is incompatible with this build's major version %d", major, minor, CurrentMajorVersion))
	}

	if c.MaxTime <= 0 {
		problems = append(problems, "max_time must be positive")
	}
	if c.TimeRound <= 0 {
		problems = append(problems, "time_round must be positive")
	}

	seen := make(map[string]struct{})
	for _, list := range [][]NodeConfig{c.Robots, c.ComputationUnits} {
		for _, n := range list {
			if strings.TrimSpace(n.Name) == "" {
				problems = append(problems, "every robot/computation_unit needs a non-empty name")
				continue
			}
			if _, dup := seen[n.Name]; dup {
				problems = append(problems, fmt.Sprintf("duplicate node name %q", n.Name))
				continue
			}
			seen[n.Name] = struct{}{}
		}
	}

	switch c.Results.SaveMode.Mode {
	case record.Continuous, record.Batch, record.Periodic:
		if strings.TrimSpace(c.Results.ResultPath) == "" {
			problems = append(problems, "results.result_path is required for streaming save modes")
		}
	}

	return problems
}

func parseVersion(raw string) (major, minor int, ok bool) {
	parts := strings.SplitN(raw, ".", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	majorVal, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, false
	}
	minorVal, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, false
	}
	return majorVal, minorVal, true
}
