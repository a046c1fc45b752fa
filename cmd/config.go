package cmd

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	sim "github.com/fbsim/fbsim/sim"
	"github.com/fbsim/fbsim/sim/workload"
)

// RunConfig represents the full run configuration file.
// All top-level sections must be listed to satisfy KnownFields(true) strict parsing.
type RunConfig struct {
	Seed       int64         `yaml:"seed"`
	Simulation sim.Config    `yaml:"simulation"`
	Workload   workload.Spec `yaml:"workload"`
}

// defaultRunConfig returns the configuration used when no file is given.
func defaultRunConfig() RunConfig {
	return RunConfig{
		Seed:       42,
		Simulation: sim.DefaultConfig(),
		Workload:   workload.DefaultSpec(),
	}
}

// loadRunConfig parses a run configuration file on top of the defaults:
// keys absent from the file keep their default values.
// Uses strict field checking: typos must cause errors.
func loadRunConfig(path string) (RunConfig, error) {
	cfg := defaultRunConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config file: %w", err)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks both sections before anything is simulated.
func (c RunConfig) Validate() error {
	if err := c.Simulation.Validate(); err != nil {
		return fmt.Errorf("simulation: %w", err)
	}
	if err := c.Workload.Validate(); err != nil {
		return fmt.Errorf("workload: %w", err)
	}
	return nil
}
