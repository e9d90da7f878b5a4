// Package harness provides a conformance testing framework for the lens
// resolution pipeline.
//
// Scenarios are YAML files that seed the three override tiers, run a
// sequence of resolutions against the real resolver over a fresh in-memory
// database, and assert on the merged results. Golden files capture the full
// resolution output for regression comparison.
package harness

import (
	"context"
	"fmt"

	"github.com/mindlens/mindlens/internal/lens"
	"github.com/mindlens/mindlens/internal/resolver"
	"github.com/mindlens/mindlens/internal/session"
	"github.com/mindlens/mindlens/internal/store"
	"github.com/mindlens/mindlens/internal/testutil"
)

// Result holds the outcome of one scenario run.
type Result struct {
	// Lenses are the resolution results, one per ResolveStep.
	Lenses []*lens.EffectiveLens

	// Errors are assertion failures. Empty means the scenario passed.
	Errors []string
}

// Passed reports whether every assertion held.
func (r *Result) Passed() bool {
	return len(r.Errors) == 0
}

// AddError records an assertion failure.
func (r *Result) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh in-memory database and session store
// for isolation, with a deterministic clock for reproducible timestamps.
func Run(scenario *Scenario) (*Result, error) {
	clock := testutil.NewClock()

	st, err := store.Open(":memory:", store.WithClock(clock.Now))
	if err != nil {
		return nil, fmt.Errorf("harness: open store: %w", err)
	}
	defer st.Close()

	sessions, err := session.Open(session.DefaultTTL)
	if err != nil {
		return nil, fmt.Errorf("harness: open session store: %w", err)
	}
	defer sessions.Close()

	ctx := context.Background()
	if err := seed(ctx, st, sessions, scenario); err != nil {
		return nil, err
	}

	res := resolver.New(st, st, sessions)
	result := &Result{}
	for i, step := range scenario.Resolves {
		l, err := res.Resolve(ctx, scenario.Preset.Profile, step.Workspace, step.Session)
		if err != nil {
			return nil, fmt.Errorf("harness: resolve %d: %w", i, err)
		}
		result.Lenses = append(result.Lenses, l)
	}

	evaluateAssertions(result, scenario.Assertions)
	return result, nil
}

// seed writes the scenario's tier content: catalog nodes, the active preset,
// workspace overrides and session overrides.
func seed(ctx context.Context, st *store.Store, sessions *session.Store, scenario *Scenario) error {
	for _, node := range scenario.Catalog {
		typ := lens.NodeType(node.Type)
		if !lens.KnownNodeTypes[typ] {
			return fmt.Errorf("harness: catalog node %s: unknown type %q", node.ID, node.Type)
		}
		err := st.UpsertGraphNode(ctx, lens.GraphNode{ID: node.ID, Label: node.Label, Type: typ})
		if err != nil {
			return fmt.Errorf("harness: seed catalog: %w", err)
		}
	}

	preset, err := st.CreatePreset(ctx, scenario.Preset.Profile, scenario.Preset.Name, true)
	if err != nil {
		return fmt.Errorf("harness: seed preset: %w", err)
	}
	for nodeID, state := range scenario.Preset.Nodes {
		if err := st.UpsertPresetNode(ctx, preset.ID, nodeID, lens.NodeState(state)); err != nil {
			return fmt.Errorf("harness: seed preset node %s: %w", nodeID, err)
		}
	}

	for workspaceID, nodes := range scenario.Workspaces {
		for nodeID, state := range nodes {
			if err := st.UpsertWorkspaceOverride(ctx, workspaceID, nodeID, lens.NodeState(state)); err != nil {
				return fmt.Errorf("harness: seed workspace %s: %w", workspaceID, err)
			}
		}
	}

	for sessionID, nodes := range scenario.Sessions {
		for nodeID, state := range nodes {
			if err := sessions.Set(sessionID, nodeID, lens.NodeState(state)); err != nil {
				return fmt.Errorf("harness: seed session %s: %w", sessionID, err)
			}
		}
	}
	return nil
}

// evaluateAssertions checks every assertion against the collected lenses.
// Failures accumulate; the run never aborts on a failed assertion.
func evaluateAssertions(result *Result, assertions []Assertion) {
	for i, a := range assertions {
		l := result.Lenses[a.Step]
		switch a.Type {
		case AssertState:
			state, ok := l.StateOf(a.Node)
			if !ok {
				result.AddError(fmt.Sprintf("assertion %d: node %s not in resolve %d", i, a.Node, a.Step))
				continue
			}
			if a.State != "" && state != lens.NodeState(a.State) {
				result.AddError(fmt.Sprintf("assertion %d: node %s has state %s, want %s", i, a.Node, state, a.State))
			}
			if a.Scope != "" {
				if scope := scopeOf(l, a.Node); scope != lens.Scope(a.Scope) {
					result.AddError(fmt.Sprintf("assertion %d: node %s has scope %s, want %s", i, a.Node, scope, a.Scope))
				}
			}

		case AssertExcluded:
			if _, ok := l.StateOf(a.Node); ok {
				result.AddError(fmt.Sprintf("assertion %d: node %s unexpectedly in resolve %d", i, a.Node, a.Step))
			}

		case AssertHashEqual:
			if l.Hash != result.Lenses[a.Other].Hash {
				result.AddError(fmt.Sprintf("assertion %d: resolves %d and %d have different hashes", i, a.Step, a.Other))
			}

		case AssertHashDiffer:
			if l.Hash == result.Lenses[a.Other].Hash {
				result.AddError(fmt.Sprintf("assertion %d: resolves %d and %d have the same hash", i, a.Step, a.Other))
			}
		}
	}
}

func scopeOf(l *lens.EffectiveLens, nodeID string) lens.Scope {
	for i := range l.Nodes {
		if l.Nodes[i].NodeID == nodeID {
			return l.Nodes[i].Scope
		}
	}
	return ""
}
