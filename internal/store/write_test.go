package store

import (
	"context"
	"testing"

	"github.com/mindlens/mindlens/internal/lens"
)

func TestUpsertGraphNode_InsertAndUpdate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedNode(t, s, "node-a", "Honesty", lens.TypeValue)

	node, err := s.GetNode(ctx, "node-a")
	if err != nil {
		t.Fatalf("GetNode() failed: %v", err)
	}
	if node.Label != "Honesty" || node.Type != lens.TypeValue {
		t.Errorf("unexpected node: %+v", node)
	}

	// Update in place, no duplicate row.
	seedNode(t, s, "node-a", "Radical honesty", lens.TypeValue)
	node, err = s.GetNode(ctx, "node-a")
	if err != nil {
		t.Fatalf("GetNode() after update failed: %v", err)
	}
	if node.Label != "Radical honesty" {
		t.Errorf("label = %q, want updated label", node.Label)
	}

	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM graph_nodes WHERE id = 'node-a'").Scan(&count); err != nil {
		t.Fatalf("count query failed: %v", err)
	}
	if count != 1 {
		t.Errorf("row count = %d, want 1", count)
	}
}

func TestCreatePreset_ActivateDeactivatesPrevious(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.CreatePreset(ctx, "profile-1", "first", true)
	if err != nil {
		t.Fatalf("CreatePreset(first) failed: %v", err)
	}
	second, err := s.CreatePreset(ctx, "profile-1", "second", true)
	if err != nil {
		t.Fatalf("CreatePreset(second) failed: %v", err)
	}

	active, err := s.ActivePreset(ctx, "profile-1")
	if err != nil {
		t.Fatalf("ActivePreset() failed: %v", err)
	}
	if active.ID != second.ID {
		t.Errorf("active preset = %s, want %s", active.ID, second.ID)
	}

	var firstActive int
	if err := s.db.QueryRow("SELECT active FROM lens_presets WHERE id = ?", first.ID).Scan(&firstActive); err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if firstActive != 0 {
		t.Error("first preset still active after second activation")
	}
}

func TestCreatePreset_InactiveDoesNotReplaceActive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	active, err := s.CreatePreset(ctx, "profile-1", "live", true)
	if err != nil {
		t.Fatalf("CreatePreset(live) failed: %v", err)
	}
	if _, err := s.CreatePreset(ctx, "profile-1", "draft", false); err != nil {
		t.Fatalf("CreatePreset(draft) failed: %v", err)
	}

	current, err := s.ActivePreset(ctx, "profile-1")
	if err != nil {
		t.Fatalf("ActivePreset() failed: %v", err)
	}
	if current.ID != active.ID {
		t.Errorf("active preset = %s, want %s", current.ID, active.ID)
	}
}

func TestUpsertPresetNode_Converges(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	preset := seedPreset(t, s, "profile-1", "base", nil)

	if err := s.UpsertPresetNode(ctx, preset.ID, "node-a", lens.StateKeep); err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}
	// Same key twice, state replaced, single row.
	if err := s.UpsertPresetNode(ctx, preset.ID, "node-a", lens.StateEmphasize); err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}

	nodes, err := s.PresetNodes(ctx, preset.ID)
	if err != nil {
		t.Fatalf("PresetNodes() failed: %v", err)
	}
	if len(nodes) != 1 {
		t.Fatalf("node count = %d, want 1", len(nodes))
	}
	if nodes["node-a"].State != lens.StateEmphasize {
		t.Errorf("state = %s, want emphasize", nodes["node-a"].State)
	}
}

func TestUpsertPresetNode_RejectsMalformedState(t *testing.T) {
	s := newTestStore(t)
	preset := seedPreset(t, s, "profile-1", "base", nil)

	err := s.UpsertPresetNode(context.Background(), preset.ID, "node-a", lens.NodeState("boost"))
	if !lens.IsInvalidArgument(err) {
		t.Errorf("expected INVALID_ARGUMENT, got %v", err)
	}
}

func TestUpsertWorkspaceOverride_OffIsDistinctFromAbsent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.UpsertWorkspaceOverride(ctx, "ws-1", "node-a", lens.StateOff); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	overrides, err := s.WorkspaceOverrides(ctx, "ws-1")
	if err != nil {
		t.Fatalf("WorkspaceOverrides() failed: %v", err)
	}
	rec, ok := overrides["node-a"]
	if !ok {
		t.Fatal("off override missing: off must be a present record, not absence")
	}
	if rec.State != lens.StateOff {
		t.Errorf("state = %s, want off", rec.State)
	}

	if err := s.DeleteWorkspaceOverride(ctx, "ws-1", "node-a"); err != nil {
		t.Fatalf("DeleteWorkspaceOverride() failed: %v", err)
	}
	overrides, err = s.WorkspaceOverrides(ctx, "ws-1")
	if err != nil {
		t.Fatalf("WorkspaceOverrides() after delete failed: %v", err)
	}
	if _, ok := overrides["node-a"]; ok {
		t.Error("override still present after delete")
	}
}

func TestSaveSnapshotIfNotExists_Dedupes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	hash := lens.MustHash("profile-1", []lens.StatePair{{NodeID: "node-a", State: lens.StateKeep}})
	snap := lens.Snapshot{
		EffectiveLensHash: hash,
		ProfileID:         "profile-1",
		NodesJSON:         `[{"node_id":"node-a"}]`,
	}

	first, err := s.SaveSnapshotIfNotExists(ctx, snap)
	if err != nil {
		t.Fatalf("first save failed: %v", err)
	}
	second, err := s.SaveSnapshotIfNotExists(ctx, snap)
	if err != nil {
		t.Fatalf("second save failed: %v", err)
	}

	if first.ID != second.ID {
		t.Errorf("second save returned different id: %s != %s", second.ID, first.ID)
	}

	count, err := s.CountSnapshots(ctx, hash)
	if err != nil {
		t.Fatalf("CountSnapshots() failed: %v", err)
	}
	if count != 1 {
		t.Errorf("snapshot count = %d, want exactly 1", count)
	}
}

func TestSaveSnapshotIfNotExists_DistinctHashes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	h1 := lens.MustHash("profile-1", []lens.StatePair{{NodeID: "node-a", State: lens.StateKeep}})
	h2 := lens.MustHash("profile-1", []lens.StatePair{{NodeID: "node-a", State: lens.StateOff}})

	s1, err := s.SaveSnapshotIfNotExists(ctx, lens.Snapshot{EffectiveLensHash: h1, ProfileID: "profile-1", NodesJSON: "[]"})
	if err != nil {
		t.Fatalf("save h1 failed: %v", err)
	}
	s2, err := s.SaveSnapshotIfNotExists(ctx, lens.Snapshot{EffectiveLensHash: h2, ProfileID: "profile-1", NodesJSON: "[]"})
	if err != nil {
		t.Fatalf("save h2 failed: %v", err)
	}

	if s1.ID == s2.ID {
		t.Error("distinct hashes shared a snapshot row")
	}
}

func TestWriteReceipt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	receipt, err := s.WriteReceipt(ctx, lens.Receipt{
		ExecutionID:        "exec-1",
		WorkspaceID:        "ws-1",
		EffectiveLensHash:  "abc",
		TriggeredNodesJSON: `["node-a"]`,
		LensOutput:         "lens text",
	})
	if err != nil {
		t.Fatalf("WriteReceipt() failed: %v", err)
	}
	if receipt.ID == "" {
		t.Error("receipt id not assigned")
	}

	receipts, err := s.ListReceipts(ctx, "ws-1", 0)
	if err != nil {
		t.Fatalf("ListReceipts() failed: %v", err)
	}
	if len(receipts) != 1 {
		t.Fatalf("receipt count = %d, want 1", len(receipts))
	}
	if receipts[0].ExecutionID != "exec-1" {
		t.Errorf("execution id = %q", receipts[0].ExecutionID)
	}
}

func TestWritePreviewVote_RejectsBadVariant(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.WritePreviewVote(ctx, lens.PreviewVote{
		PreviewID:     "pv-1",
		WorkspaceID:   "ws-1",
		ProfileID:     "profile-1",
		ChosenVariant: lens.PreviewVariant("both"),
	})
	if !lens.IsInvalidArgument(err) {
		t.Errorf("expected INVALID_ARGUMENT, got %v", err)
	}

	if _, err := s.WritePreviewVote(ctx, lens.PreviewVote{
		PreviewID:     "pv-1",
		WorkspaceID:   "ws-1",
		ProfileID:     "profile-1",
		ChosenVariant: lens.VariantLens,
		InputTextHash: lens.InputHash("draft text"),
	}); err != nil {
		t.Errorf("valid vote rejected: %v", err)
	}
}
