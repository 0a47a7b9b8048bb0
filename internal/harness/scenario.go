package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/plcsim/internal/iotable"
)

// Scenario is a scripted sequence of operator actions and scans.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Program is a CUE program path, relative to the scenario file.
	// Empty means the built-in training rig.
	Program string `yaml:"program,omitempty"`

	// Seed seeds the fault injection random source.
	Seed uint64 `yaml:"seed,omitempty"`

	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions"`
}

// Step holds exactly one operation.
type Step struct {
	Set         *SetStep    `yaml:"set,omitempty"`
	Toggle      string      `yaml:"toggle,omitempty"`
	Fault       *FaultStep  `yaml:"fault,omitempty"`
	ToggleFault string      `yaml:"toggle_fault,omitempty"`
	Inject      *InjectStep `yaml:"inject,omitempty"`
	Scan        int         `yaml:"scan,omitempty"`
	Start       bool        `yaml:"start,omitempty"`
	Stop        bool        `yaml:"stop,omitempty"`
	Reset       bool        `yaml:"reset,omitempty"`
	ReleaseAll  bool        `yaml:"release_all,omitempty"`

	// ExpectError makes the step pass only if it fails with an error
	// containing this text.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// SetStep forces a point value.
type SetStep struct {
	Tag   string `yaml:"tag"`
	Value any    `yaml:"value"`
}

// FaultStep sets a fault flag.
type FaultStep struct {
	Tag string `yaml:"tag"`
	On  bool   `yaml:"on"`
}

// InjectStep performs one fault injection.
type InjectStep struct {
	Kinds    []string `yaml:"kinds,omitempty"`
	Critical bool     `yaml:"critical,omitempty"`
}

// Assertion validates the final engine state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	Tag    string `yaml:"tag,omitempty"`
	Rung   string `yaml:"rung,omitempty"`
	Value  any    `yaml:"value,omitempty"`
	Fault  *bool  `yaml:"fault,omitempty"`
	Active *bool  `yaml:"active,omitempty"`
	Count  *int   `yaml:"count,omitempty"`
	Origin string `yaml:"origin,omitempty"`
}

// Assertion type constants.
const (
	AssertPoint         = "point"
	AssertRung          = "rung"
	AssertFaultCount    = "fault_count"
	AssertHistoryCount  = "history_count"
	AssertForcedCount   = "forced_count"
	AssertJournalFaults = "journal_faults"
)

// op names the step's operation.
func (s Step) op() string {
	var ops []string
	if s.Set != nil {
		ops = append(ops, "set")
	}
	if s.Toggle != "" {
		ops = append(ops, "toggle")
	}
	if s.Fault != nil {
		ops = append(ops, "fault")
	}
	if s.ToggleFault != "" {
		ops = append(ops, "toggle_fault")
	}
	if s.Inject != nil {
		ops = append(ops, "inject")
	}
	if s.Scan > 0 {
		ops = append(ops, "scan")
	}
	if s.Start {
		ops = append(ops, "start")
	}
	if s.Stop {
		ops = append(ops, "stop")
	}
	if s.Reset {
		ops = append(ops, "reset")
	}
	if s.ReleaseAll {
		ops = append(ops, "release_all")
	}
	if len(ops) != 1 {
		return ""
	}
	return ops[0]
}

// LoadScenario reads and parses a scenario YAML file. A relative program
// path is resolved against the scenario's directory.
// Unknown fields are rejected to catch typos.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Program != "" && !filepath.IsAbs(scenario.Program) {
		scenario.Program = filepath.Join(filepath.Dir(path), scenario.Program)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadDir loads every *.yaml scenario in dir, sorted by file name.
func LoadDir(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	var out []*Scenario
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
		out = append(out, s)
	}
	return out, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if s.Program != "" {
		if _, err := os.Stat(s.Program); os.IsNotExist(err) {
			return fmt.Errorf("program file not found: %s", s.Program)
		}
	}

	for i, step := range s.Steps {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(i int, step Step) error {
	op := step.op()
	if op == "" {
		return fmt.Errorf("steps[%d]: exactly one operation is required", i)
	}
	switch op {
	case "set":
		if step.Set.Tag == "" {
			return fmt.Errorf("steps[%d].set: tag is required", i)
		}
		if step.Set.Value == nil {
			return fmt.Errorf("steps[%d].set: value is required", i)
		}
	case "fault":
		if step.Fault.Tag == "" {
			return fmt.Errorf("steps[%d].fault: tag is required", i)
		}
	case "inject":
		for _, k := range step.Inject.Kinds {
			if _, err := iotable.ParseKind(k); err != nil {
				return fmt.Errorf("steps[%d].inject: %w", i, err)
			}
		}
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertPoint:
		if a.Tag == "" {
			return fmt.Errorf("assertions[%d]: tag is required for point", index)
		}
		if a.Value == nil && a.Fault == nil {
			return fmt.Errorf("assertions[%d]: value or fault is required for point", index)
		}
	case AssertRung:
		if a.Rung == "" || a.Active == nil {
			return fmt.Errorf("assertions[%d]: rung and active are required for rung", index)
		}
	case AssertFaultCount, AssertHistoryCount, AssertForcedCount, AssertJournalFaults:
		if a.Count == nil {
			return fmt.Errorf("assertions[%d]: count is required for %s", index, a.Type)
		}
		if *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
