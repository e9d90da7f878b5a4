package changelog

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/mindlens/mindlens/internal/changeset"
	"github.com/mindlens/mindlens/internal/lens"
)

// ApplyStore is the mutation surface the store-backed applier needs.
// Satisfied by store.Store.
type ApplyStore interface {
	UpsertGraphNode(ctx context.Context, node lens.GraphNode) error
	DeleteGraphNode(ctx context.Context, id string) error
	UpsertWorkspaceOverride(ctx context.Context, workspaceID, nodeID string, state lens.NodeState) error
	DeleteWorkspaceOverride(ctx context.Context, workspaceID, nodeID string) error
	UpsertPresetNode(ctx context.Context, presetID, nodeID string, state lens.NodeState) error
	DeletePresetNode(ctx context.Context, presetID, nodeID string) error
}

// StoreApplier applies recorded state to the targets this module owns:
// local graph nodes, workspace overrides, preset nodes, and batches of
// either. Edge targets belong to the external graph store and are rejected;
// hosts that own edges plug in their own Applier.
type StoreApplier struct {
	store ApplyStore
}

// NewStoreApplier wraps a store as an Applier.
func NewStoreApplier(s ApplyStore) *StoreApplier {
	return &StoreApplier{store: s}
}

// overrideState is the state payload recorded for single override entries.
type overrideState struct {
	ScopeID string         `json:"scope_id"`
	NodeID  string         `json:"node_id"`
	State   lens.NodeState `json:"state"`
	// Absent marks "no record existed" - applying it removes the row.
	Absent bool `json:"absent,omitempty"`
}

// EncodeOverrideState renders the state payload for a single override
// changelog entry.
func EncodeOverrideState(scopeID, nodeID string, state lens.NodeState, absent bool) (string, error) {
	data, err := json.Marshal(overrideState{ScopeID: scopeID, NodeID: nodeID, State: state, Absent: absent})
	if err != nil {
		return "", fmt.Errorf("encode override state: %w", err)
	}
	return string(data), nil
}

// Apply implements Applier.
func (a *StoreApplier) Apply(ctx context.Context, target lens.TargetType, targetID, stateJSON string) error {
	switch target {
	case lens.TargetNode:
		return a.applyNode(ctx, targetID, stateJSON)
	case lens.TargetWorkspaceOverride:
		return a.applyOverride(ctx, target, stateJSON)
	case lens.TargetPresetNode:
		return a.applyOverride(ctx, target, stateJSON)
	case lens.TargetBatch:
		return a.applyBatch(ctx, stateJSON)
	case lens.TargetEdge:
		return lens.NewInvalidArgument("edge targets are owned by the external graph store")
	}
	return lens.NewInvalidArgument(fmt.Sprintf("no applier for target type %q", target))
}

func (a *StoreApplier) applyNode(ctx context.Context, targetID, stateJSON string) error {
	// An empty state means the node did not exist - applying it is a delete.
	if stateJSON == "" || stateJSON == "null" {
		return a.store.DeleteGraphNode(ctx, targetID)
	}
	var node lens.GraphNode
	if err := json.Unmarshal([]byte(stateJSON), &node); err != nil {
		return fmt.Errorf("apply node state: %w", err)
	}
	if node.ID == "" {
		node.ID = targetID
	}
	return a.store.UpsertGraphNode(ctx, node)
}

func (a *StoreApplier) applyOverride(ctx context.Context, target lens.TargetType, stateJSON string) error {
	var st overrideState
	if err := json.Unmarshal([]byte(stateJSON), &st); err != nil {
		return fmt.Errorf("apply override state: %w", err)
	}

	switch {
	case target == lens.TargetWorkspaceOverride && st.Absent:
		return a.store.DeleteWorkspaceOverride(ctx, st.ScopeID, st.NodeID)
	case target == lens.TargetWorkspaceOverride:
		return a.store.UpsertWorkspaceOverride(ctx, st.ScopeID, st.NodeID, st.State)
	case st.Absent:
		return a.store.DeletePresetNode(ctx, st.ScopeID, st.NodeID)
	default:
		return a.store.UpsertPresetNode(ctx, st.ScopeID, st.NodeID, st.State)
	}
}

// applyBatch replays a changeset batch payload. Per-node writes are
// deterministic upserts/deletes, so replaying the same payload twice
// converges - the all-or-nothing guarantee the batch entry promises.
func (a *StoreApplier) applyBatch(ctx context.Context, stateJSON string) error {
	var batch changeset.BatchState
	if err := json.Unmarshal([]byte(stateJSON), &batch); err != nil {
		return fmt.Errorf("apply batch state: %w", err)
	}

	// Deterministic application order.
	nodeIDs := make([]string, 0, len(batch.Nodes))
	for nodeID := range batch.Nodes {
		nodeIDs = append(nodeIDs, nodeID)
	}
	sort.Strings(nodeIDs)

	for _, nodeID := range nodeIDs {
		node := batch.Nodes[nodeID]
		var err error
		switch batch.Target {
		case lens.TargetWorkspaceOverride:
			if node == nil {
				err = a.store.DeleteWorkspaceOverride(ctx, batch.Scope, nodeID)
			} else {
				err = a.store.UpsertWorkspaceOverride(ctx, batch.Scope, nodeID, node.State)
			}
		case lens.TargetPresetNode:
			if node == nil {
				err = a.store.DeletePresetNode(ctx, batch.Scope, nodeID)
			} else {
				err = a.store.UpsertPresetNode(ctx, batch.Scope, nodeID, node.State)
			}
		default:
			return lens.NewInvalidArgument(fmt.Sprintf("batch payload has unsupported target %q", batch.Target))
		}
		if err != nil {
			return fmt.Errorf("apply batch node %s: %w", nodeID, err)
		}
	}
	return nil
}
