package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/mindlens/mindlens/internal/lens"
)

// snapshotMap converts a result to a canonical-JSON-friendly map.
//
// Hashes and weights are deliberately omitted: hashes are asserted by the
// hash_equal/hash_differ assertion types, and weight is derived from state,
// so the golden file stays a pure record of the merge outcome.
func snapshotMap(scenarioName string, result *Result) map[string]any {
	resolves := make([]any, len(result.Lenses))
	for i, l := range result.Lenses {
		nodes := make([]any, len(l.Nodes))
		for j, n := range l.Nodes {
			nodes[j] = map[string]any{
				"node":  n.NodeID,
				"state": n.State,
				"scope": string(n.Scope),
			}
		}
		entry := map[string]any{
			"profile": l.ProfileID,
			"preset":  l.GlobalPresetName,
			"nodes":   nodes,
		}
		if l.WorkspaceID != "" {
			entry["workspace"] = l.WorkspaceID
		}
		if l.SessionID != "" {
			entry["session"] = l.SessionID
		}
		resolves[i] = entry
	}
	return map[string]any{
		"scenario_name": scenarioName,
		"resolves":      resolves,
	}
}

// RunWithGolden executes a scenario, fails the test on any assertion error,
// and compares the resolution snapshot against a golden file at
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}
	for _, msg := range result.Errors {
		t.Error(msg)
	}

	snapshot, err := lens.MarshalCanonical(snapshotMap(scenario.Name, result))
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, snapshot)
	return nil
}
