package harness

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/mindlens/mindlens/internal/lens"
)

// Scenario defines a conformance test scenario: seed the three tiers, run a
// sequence of resolutions, assert on the merged results.
type Scenario struct {
	// Name uniquely identifies this scenario. Also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Catalog seeds the graph node table.
	Catalog []CatalogNode `yaml:"catalog"`

	// Preset seeds tier 1: the profile's active preset.
	Preset PresetSeed `yaml:"preset"`

	// Workspaces seeds tier 2: per-workspace override maps.
	Workspaces map[string]map[string]string `yaml:"workspaces,omitempty"`

	// Sessions seeds tier 3: per-session override maps.
	Sessions map[string]map[string]string `yaml:"sessions,omitempty"`

	// Resolves is the sequence of resolutions to run.
	Resolves []ResolveStep `yaml:"resolves"`

	// Assertions validate the resolution results.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// CatalogNode is one graph node seed.
type CatalogNode struct {
	ID    string `yaml:"id"`
	Label string `yaml:"label"`
	Type  string `yaml:"type"`
}

// PresetSeed is the tier-1 seed.
type PresetSeed struct {
	Profile string            `yaml:"profile"`
	Name    string            `yaml:"name"`
	Nodes   map[string]string `yaml:"nodes"`
}

// ResolveStep is one resolution in the scenario flow.
type ResolveStep struct {
	// Workspace selects the tier-2 scope. Empty means no workspace tier.
	Workspace string `yaml:"workspace,omitempty"`

	// Session selects the tier-3 scope. Empty means no session tier.
	Session string `yaml:"session,omitempty"`
}

// Assertion validates one aspect of the resolution results.
type Assertion struct {
	// Type selects the assertion:
	//   - "state": node in resolve #Step has State from Scope
	//   - "excluded": node is absent from resolve #Step
	//   - "hash_equal": resolves #Step and #Other produced the same hash
	//   - "hash_differ": resolves #Step and #Other produced different hashes
	Type string `yaml:"type"`

	// Step is the zero-based index into Resolves.
	Step int `yaml:"step"`

	// Other is the second resolve index for hash comparisons.
	Other int `yaml:"other,omitempty"`

	Node  string `yaml:"node,omitempty"`
	State string `yaml:"state,omitempty"`
	Scope string `yaml:"scope,omitempty"`
}

// Assertion type constants.
const (
	AssertState      = "state"
	AssertExcluded   = "excluded"
	AssertHashEqual  = "hash_equal"
	AssertHashDiffer = "hash_differ"
)

// LoadScenario loads and validates a scenario from a YAML file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load scenario: %w", err)
	}

	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if err := scenario.Validate(); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	return &scenario, nil
}

// LoadScenarios loads every *.yaml scenario in a directory, sorted by name.
func LoadScenarios(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}

	scenarios := make([]*Scenario, 0, len(paths))
	for _, path := range paths {
		scenario, err := LoadScenario(path)
		if err != nil {
			return nil, err
		}
		scenarios = append(scenarios, scenario)
	}
	return scenarios, nil
}

// Validate checks structural requirements before a scenario runs.
func (s *Scenario) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("scenario name is required")
	}
	if s.Preset.Profile == "" {
		return fmt.Errorf("preset profile is required")
	}
	if len(s.Preset.Nodes) == 0 {
		return fmt.Errorf("preset must seed at least one node")
	}
	if len(s.Resolves) == 0 {
		return fmt.Errorf("scenario has no resolves")
	}

	for id, state := range s.Preset.Nodes {
		if !lens.NodeState(state).Valid() {
			return fmt.Errorf("preset node %s: bad state %q", id, state)
		}
	}
	for ws, nodes := range s.Workspaces {
		for id, state := range nodes {
			if !lens.NodeState(state).Valid() {
				return fmt.Errorf("workspace %s node %s: bad state %q", ws, id, state)
			}
		}
	}
	for sess, nodes := range s.Sessions {
		for id, state := range nodes {
			if !lens.NodeState(state).Valid() {
				return fmt.Errorf("session %s node %s: bad state %q", sess, id, state)
			}
		}
	}

	for i, a := range s.Assertions {
		if a.Step < 0 || a.Step >= len(s.Resolves) {
			return fmt.Errorf("assertion %d: step %d out of range", i, a.Step)
		}
		switch a.Type {
		case AssertState, AssertExcluded:
			if a.Node == "" {
				return fmt.Errorf("assertion %d: node is required", i)
			}
		case AssertHashEqual, AssertHashDiffer:
			if a.Other < 0 || a.Other >= len(s.Resolves) {
				return fmt.Errorf("assertion %d: other %d out of range", i, a.Other)
			}
		default:
			return fmt.Errorf("assertion %d: unknown type %q", i, a.Type)
		}
	}
	return nil
}
