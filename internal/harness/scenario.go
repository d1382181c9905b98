package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario defines a scenario test.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Schema is an optional CUE package directory declaring types and
	// functions beyond the builtins. Relative to the scenario file.
	Schema string `yaml:"schema,omitempty"`

	// Network is the network definition file. Relative to the scenario
	// file.
	Network string `yaml:"network"`

	// MaxRounds bounds each driver run; zero selects the default.
	MaxRounds int `yaml:"max_rounds,omitempty"`

	// InterruptAfterRounds stops the first run after this many rounds,
	// reopens the checkpoint in a fresh engine and finishes from there.
	InterruptAfterRounds int `yaml:"interrupt_after_rounds,omitempty"`

	// Assertions validate the final network.
	Assertions []Assertion `yaml:"assertions"`
}

// Assertion validates the final network.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Endpoint addresses a value, "instance:dir.path" (output, unset).
	Endpoint string `yaml:"endpoint,omitempty"`

	// Equals is the expected rendering of the value (output).
	Equals string `yaml:"equals,omitempty"`

	// Instance names an instance (children, failed).
	Instance string `yaml:"instance,omitempty"`

	// Count is the expected number (dirty_count, instance_count,
	// children, invocations).
	Count int `yaml:"count"`
}

// Assertion type constants.
const (
	AssertOutput        = "output"
	AssertUnset         = "unset"
	AssertDirtyCount    = "dirty_count"
	AssertInstanceCount = "instance_count"
	AssertChildren      = "children"
	AssertFailed        = "failed"
	AssertInvocations   = "invocations"
)

// LoadScenario reads and parses a scenario YAML file, resolving the schema
// and network paths relative to the file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	base := filepath.Dir(path)
	if scenario.Network != "" && !filepath.IsAbs(scenario.Network) {
		scenario.Network = filepath.Join(base, scenario.Network)
	}
	if scenario.Schema != "" && !filepath.IsAbs(scenario.Schema) {
		scenario.Schema = filepath.Join(base, scenario.Schema)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Network == "" {
		return fmt.Errorf("network is required")
	}
	if _, err := os.Stat(s.Network); os.IsNotExist(err) {
		return fmt.Errorf("network file not found: %s", s.Network)
	}
	if s.Schema != "" {
		if _, err := os.Stat(s.Schema); os.IsNotExist(err) {
			return fmt.Errorf("schema directory not found: %s", s.Schema)
		}
	}
	if s.InterruptAfterRounds < 0 {
		return fmt.Errorf("interrupt_after_rounds must not be negative")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, a := range s.Assertions {
		switch a.Type {
		case AssertOutput:
			if a.Endpoint == "" {
				return fmt.Errorf("assertions[%d]: output requires endpoint", i)
			}
		case AssertUnset:
			if a.Endpoint == "" {
				return fmt.Errorf("assertions[%d]: unset requires endpoint", i)
			}
		case AssertChildren, AssertFailed:
			if a.Instance == "" {
				return fmt.Errorf("assertions[%d]: %s requires instance", i, a.Type)
			}
		case AssertDirtyCount, AssertInstanceCount, AssertInvocations:
		default:
			return fmt.Errorf("assertions[%d]: unknown type %q", i, a.Type)
		}
	}
	return nil
}
