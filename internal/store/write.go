package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/mindlens/mindlens/internal/lens"
)

// UpsertGraphNode inserts or updates a node in the local graph_nodes
// materialization. Used by seeding and by the external-sync path.
func (s *Store) UpsertGraphNode(ctx context.Context, node lens.GraphNode) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO graph_nodes (id, label, type)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET label = excluded.label, type = excluded.type
	`, node.ID, node.Label, string(node.Type))
	if err != nil {
		return fmt.Errorf("upsert graph node: %w", err)
	}
	return nil
}

// CreatePreset inserts a preset row. When activate is true, any previously
// active preset for the profile is deactivated in the same transaction so
// the one-active-per-profile index is never violated.
func (s *Store) CreatePreset(ctx context.Context, profileID, name string, activate bool) (lens.Preset, error) {
	preset := lens.Preset{
		ID:        uuid.NewString(),
		ProfileID: profileID,
		Name:      name,
		Active:    activate,
		CreatedAt: s.now(),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return lens.Preset{}, fmt.Errorf("create preset: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if activate {
		if _, err := tx.ExecContext(ctx, `
			UPDATE lens_presets SET active = 0 WHERE profile_id = ? AND active = 1
		`, profileID); err != nil {
			return lens.Preset{}, fmt.Errorf("create preset: deactivate previous: %w", err)
		}
	}

	active := 0
	if activate {
		active = 1
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO lens_presets (id, profile_id, name, active, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, preset.ID, preset.ProfileID, preset.Name, active, timeRFC3339(preset.CreatedAt)); err != nil {
		return lens.Preset{}, fmt.Errorf("create preset: insert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return lens.Preset{}, fmt.Errorf("create preset: commit: %w", err)
	}
	return preset, nil
}

// UpsertPresetNode sets the tier-1 state for (preset, node).
// Upsert by (preset_id, node_id) - never a duplicate row, so repeated
// application of the same changeset converges to the same end state.
func (s *Store) UpsertPresetNode(ctx context.Context, presetID, nodeID string, state lens.NodeState) error {
	if !state.Valid() {
		return lens.NewInvalidArgument(fmt.Sprintf("malformed node state %q", state))
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO lens_profile_nodes (preset_id, node_id, state, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(preset_id, node_id) DO UPDATE SET
			state = excluded.state,
			updated_at = excluded.updated_at
	`, presetID, nodeID, string(state), timeRFC3339(s.now()))
	if err != nil {
		return fmt.Errorf("upsert preset node: %w", err)
	}
	return nil
}

// UpsertWorkspaceOverride sets the tier-2 state for (workspace, node).
// Same upsert-by-unique-key convergence guarantee as UpsertPresetNode.
func (s *Store) UpsertWorkspaceOverride(ctx context.Context, workspaceID, nodeID string, state lens.NodeState) error {
	if !state.Valid() {
		return lens.NewInvalidArgument(fmt.Sprintf("malformed node state %q", state))
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workspace_lens_overrides (workspace_id, node_id, state, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(workspace_id, node_id) DO UPDATE SET
			state = excluded.state,
			updated_at = excluded.updated_at
	`, workspaceID, nodeID, string(state), timeRFC3339(s.now()))
	if err != nil {
		return fmt.Errorf("upsert workspace override: %w", err)
	}
	return nil
}

// DeleteWorkspaceOverride removes the override row for (workspace, node).
// Overrides are never deleted implicitly; this exists for explicit undo,
// which restores "no override present".
func (s *Store) DeleteWorkspaceOverride(ctx context.Context, workspaceID, nodeID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM workspace_lens_overrides WHERE workspace_id = ? AND node_id = ?
	`, workspaceID, nodeID)
	if err != nil {
		return fmt.Errorf("delete workspace override: %w", err)
	}
	return nil
}

// DeletePresetNode removes the tier-1 row for (preset, node). Same explicit
// undo rationale as DeleteWorkspaceOverride.
func (s *Store) DeletePresetNode(ctx context.Context, presetID, nodeID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM lens_profile_nodes WHERE preset_id = ? AND node_id = ?
	`, presetID, nodeID)
	if err != nil {
		return fmt.Errorf("delete preset node: %w", err)
	}
	return nil
}

// DeleteGraphNode removes a node from the local materialization. Used when
// undoing a node create.
func (s *Store) DeleteGraphNode(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM graph_nodes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete graph node: %w", err)
	}
	return nil
}

// SaveSnapshotIfNotExists writes a snapshot row, insert-or-fetch.
//
// ON CONFLICT(effective_lens_hash) DO NOTHING plus the unique constraint
// guarantees at most one row per distinct effective-lens content, even when
// two resolvers race on the same hash. The existing row is returned on
// conflict; the snapshot is never updated in place.
func (s *Store) SaveSnapshotIfNotExists(ctx context.Context, snap lens.Snapshot) (lens.Snapshot, error) {
	if snap.ID == "" {
		snap.ID = uuid.NewString()
	}
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = s.now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return lens.Snapshot{}, fmt.Errorf("save snapshot: begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO lens_snapshots
		(id, effective_lens_hash, profile_id, workspace_id, session_id, nodes_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(effective_lens_hash) DO NOTHING
	`,
		snap.ID,
		snap.EffectiveLensHash,
		snap.ProfileID,
		nullable(snap.WorkspaceID),
		nullable(snap.SessionID),
		snap.NodesJSON,
		timeRFC3339(snap.CreatedAt),
	)
	if err != nil {
		return lens.Snapshot{}, fmt.Errorf("save snapshot: insert: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return lens.Snapshot{}, fmt.Errorf("save snapshot: rows affected: %w", err)
	}

	if rowsAffected == 0 {
		// Lost the race or snapshot already cached - fetch the winner.
		existing, err := scanSnapshotRow(tx.QueryRowContext(ctx, `
			SELECT id, effective_lens_hash, profile_id, workspace_id, session_id, nodes_json, created_at
			FROM lens_snapshots WHERE effective_lens_hash = ?
		`, snap.EffectiveLensHash))
		if err != nil {
			return lens.Snapshot{}, fmt.Errorf("save snapshot: select existing: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return lens.Snapshot{}, fmt.Errorf("save snapshot: commit (existing): %w", err)
		}
		return existing, nil
	}

	if err := tx.Commit(); err != nil {
		return lens.Snapshot{}, fmt.Errorf("save snapshot: commit: %w", err)
	}
	return snap, nil
}

// WriteReceipt inserts one immutable receipt row for a compiled execution.
func (s *Store) WriteReceipt(ctx context.Context, r lens.Receipt) (lens.Receipt, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO lens_receipts
		(id, execution_id, workspace_id, effective_lens_hash, triggered_nodes_json,
		 base_output, lens_output, diff_summary, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.ID,
		r.ExecutionID,
		r.WorkspaceID,
		r.EffectiveLensHash,
		r.TriggeredNodesJSON,
		r.BaseOutput,
		r.LensOutput,
		r.DiffSummary,
		timeRFC3339(r.CreatedAt),
	)
	if err != nil {
		return lens.Receipt{}, fmt.Errorf("write receipt: %w", err)
	}
	return r, nil
}

// WritePreviewVote inserts one preview vote row.
func (s *Store) WritePreviewVote(ctx context.Context, v lens.PreviewVote) (lens.PreviewVote, error) {
	if v.ChosenVariant != lens.VariantBase && v.ChosenVariant != lens.VariantLens {
		return lens.PreviewVote{}, lens.NewInvalidArgument(fmt.Sprintf("malformed chosen variant %q", v.ChosenVariant))
	}
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO preview_votes
		(id, preview_id, workspace_id, profile_id, session_id, chosen_variant,
		 preview_type, input_text_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		v.ID,
		v.PreviewID,
		v.WorkspaceID,
		v.ProfileID,
		v.SessionID,
		string(v.ChosenVariant),
		v.PreviewType,
		v.InputTextHash,
		timeRFC3339(v.CreatedAt),
	)
	if err != nil {
		return lens.PreviewVote{}, fmt.Errorf("write preview vote: %w", err)
	}
	return v, nil
}

// nullable maps "" to NULL for optional TEXT columns.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
