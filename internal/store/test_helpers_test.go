package store

import (
	"context"
	"testing"

	"github.com/mindlens/mindlens/internal/lens"
	"github.com/mindlens/mindlens/internal/testutil"
)

// newTestStore opens a fresh in-memory store with a deterministic clock.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:", WithClock(testutil.NewClock().Now))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// seedNode writes one graph node.
func seedNode(t *testing.T, s *Store, id, label string, typ lens.NodeType) {
	t.Helper()
	if err := s.UpsertGraphNode(context.Background(), lens.GraphNode{ID: id, Label: label, Type: typ}); err != nil {
		t.Fatalf("UpsertGraphNode(%s) failed: %v", id, err)
	}
}

// seedPreset creates an active preset with the given node states.
func seedPreset(t *testing.T, s *Store, profileID, name string, nodes map[string]lens.NodeState) lens.Preset {
	t.Helper()
	ctx := context.Background()
	preset, err := s.CreatePreset(ctx, profileID, name, true)
	if err != nil {
		t.Fatalf("CreatePreset() failed: %v", err)
	}
	for nodeID, state := range nodes {
		if err := s.UpsertPresetNode(ctx, preset.ID, nodeID, state); err != nil {
			t.Fatalf("UpsertPresetNode(%s) failed: %v", nodeID, err)
		}
	}
	return preset
}

// appendEntry appends a minimal valid batch entry for a workspace.
func appendEntry(t *testing.T, s *Store, workspaceID string) lens.ChangelogEntry {
	t.Helper()
	entry, err := s.AppendChangelog(context.Background(), lens.ChangelogEntry{
		WorkspaceID: workspaceID,
		Operation:   lens.OpBatch,
		TargetType:  lens.TargetBatch,
		TargetID:    workspaceID,
		BeforeState: `{"nodes":{}}`,
		AfterState:  `{"nodes":{}}`,
		Actor:       lens.ActorUser,
	})
	if err != nil {
		t.Fatalf("AppendChangelog() failed: %v", err)
	}
	return entry
}
