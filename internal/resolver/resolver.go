// Package resolver merges the three override tiers into effective lenses.
//
// Precedence is strictly session > workspace > preset. Each node's final
// state comes from exactly one tier - the most specific one that has an
// entry for it - never a blend across tiers.
package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/mindlens/mindlens/internal/lens"
)

// NodeSource looks up node identity in the external graph node store.
//
// The lookup is the only network-capable call on the resolution path;
// implementations must honor context cancellation. A timeout surfaces as a
// resolution failure, never as a silently-empty node set.
type NodeSource interface {
	Nodes(ctx context.Context, ids []string) (map[string]lens.GraphNode, error)
}

// TierSource reads the two durable override tiers.
type TierSource interface {
	ActivePreset(ctx context.Context, profileID string) (lens.Preset, error)
	PresetNodes(ctx context.Context, presetID string) (map[string]lens.OverrideRecord, error)
	WorkspaceOverrides(ctx context.Context, workspaceID string) (map[string]lens.OverrideRecord, error)
}

// SessionSource reads the ephemeral tier-3 overrides.
type SessionSource interface {
	GetAll(sessionID string) (map[string]lens.NodeState, error)
}

// SnapshotStore persists content-addressed snapshots, insert-or-fetch.
type SnapshotStore interface {
	SaveSnapshotIfNotExists(ctx context.Context, snap lens.Snapshot) (lens.Snapshot, error)
}

// Resolver computes effective lenses. Resolution is read-only and
// side-effect-free: safe for unlimited parallel execution, no locking.
type Resolver struct {
	tiers    TierSource
	nodes    NodeSource
	sessions SessionSource
}

// New constructs a Resolver. sessions may be nil when no session tier is
// wired; a resolve with a session id then sees no session overrides.
func New(tiers TierSource, nodes NodeSource, sessions SessionSource) *Resolver {
	return &Resolver{tiers: tiers, nodes: nodes, sessions: sessions}
}

// Resolve merges the three tiers for (profile, workspace?, session?).
//
// The node universe is the profile's active preset. Workspace and session
// overrides can only restate node ids already in the universe; an override
// for an unknown id is logged and skipped, never an error - overrides go
// stale as presets evolve.
//
// Resolving with sessionID == "" yields the baseline used by the diff
// engine: a pure function of (profile, workspace), repeatable, no
// randomness. Unknown profiles return a NOT_FOUND domain error.
func (r *Resolver) Resolve(ctx context.Context, profileID, workspaceID, sessionID string) (*lens.EffectiveLens, error) {
	preset, err := r.tiers.ActivePreset(ctx, profileID)
	if err != nil {
		return nil, fmt.Errorf("resolve: %w", err)
	}

	universe, err := r.tiers.PresetNodes(ctx, preset.ID)
	if err != nil {
		return nil, fmt.Errorf("resolve: preset nodes: %w", err)
	}

	// Working state per node, tier 1 first.
	type merged struct {
		state lens.NodeState
		scope lens.Scope
	}
	states := make(map[string]merged, len(universe))
	for nodeID, rec := range universe {
		states[nodeID] = merged{state: rec.State, scope: lens.ScopePreset}
	}

	stale := 0

	// Tier 2: workspace overrides replace tier-1 state for restated ids only.
	if workspaceID != "" {
		overrides, err := r.tiers.WorkspaceOverrides(ctx, workspaceID)
		if err != nil {
			return nil, fmt.Errorf("resolve: workspace overrides: %w", err)
		}
		for nodeID, rec := range overrides {
			if _, ok := states[nodeID]; !ok {
				stale++
				slog.Warn("skipping stale workspace override",
					"workspace", workspaceID,
					"node", nodeID,
				)
				continue
			}
			states[nodeID] = merged{state: rec.State, scope: lens.ScopeWorkspace}
		}
	}

	// Tier 3: session overrides on top, same replace-only rule. A missing
	// session is "no session overrides", never an error - the session store
	// carries no durability guarantee.
	if sessionID != "" && r.sessions != nil {
		overrides, err := r.sessions.GetAll(sessionID)
		if err != nil {
			return nil, fmt.Errorf("resolve: session overrides: %w", err)
		}
		for nodeID, state := range overrides {
			if _, ok := states[nodeID]; !ok {
				stale++
				slog.Warn("skipping stale session override",
					"session", sessionID,
					"node", nodeID,
				)
				continue
			}
			states[nodeID] = merged{state: state, scope: lens.ScopeSession}
		}
	}

	ids := make([]string, 0, len(states))
	for nodeID := range states {
		ids = append(ids, nodeID)
	}
	sort.Strings(ids)

	// External node identity lookup. Failure here (including timeout) is a
	// resolution failure, never a silently-empty node set.
	nodes, err := r.nodes.Nodes(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve: node lookup: %w", err)
	}

	effective := make([]lens.EffectiveNode, 0, len(ids))
	for _, nodeID := range ids {
		node, ok := nodes[nodeID]
		if !ok {
			// Preset entry outlived the node itself.
			stale++
			slog.Warn("skipping preset entry for deleted node",
				"preset", preset.ID,
				"node", nodeID,
			)
			continue
		}
		m := states[nodeID]
		weight := 0.0
		if m.state != lens.StateOff {
			weight = lens.StateWeight(m.state)
		}
		effective = append(effective, lens.EffectiveNode{
			NodeID:    node.ID,
			NodeLabel: node.Label,
			NodeType:  node.Type,
			State:     m.state,
			Weight:    weight,
			Scope:     m.scope,
		})
	}

	result := &lens.EffectiveLens{
		ProfileID:        profileID,
		WorkspaceID:      workspaceID,
		SessionID:        sessionID,
		Nodes:            effective,
		GlobalPresetName: preset.Name,
	}

	hash, err := lens.Hash(profileID, result.StatePairs())
	if err != nil {
		return nil, fmt.Errorf("resolve: %w", err)
	}
	result.Hash = hash

	slog.Debug("lens resolved",
		"profile", profileID,
		"workspace", workspaceID,
		"session", sessionID,
		"nodes", len(effective),
		"stale_skipped", stale,
		"hash", hash,
	)

	return result, nil
}

// Snapshot persists a resolved lens into the content-addressed snapshot
// store, insert-or-fetch. Kept separate from Resolve so resolution itself
// stays side-effect-free.
func Snapshot(ctx context.Context, snapshots SnapshotStore, l *lens.EffectiveLens) (lens.Snapshot, error) {
	nodesJSON, err := json.Marshal(l.Nodes)
	if err != nil {
		return lens.Snapshot{}, fmt.Errorf("snapshot: marshal nodes: %w", err)
	}

	return snapshots.SaveSnapshotIfNotExists(ctx, lens.Snapshot{
		EffectiveLensHash: l.Hash,
		ProfileID:         l.ProfileID,
		WorkspaceID:       l.WorkspaceID,
		SessionID:         l.SessionID,
		NodesJSON:         string(nodesJSON),
	})
}
