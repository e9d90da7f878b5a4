package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mindlens/mindlens/internal/lens"
)

// GetNode looks up a single graph node by id.
func (s *Store) GetNode(ctx context.Context, id string) (lens.GraphNode, error) {
	var node lens.GraphNode
	var typ string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, label, type FROM graph_nodes WHERE id = ?
	`, id).Scan(&node.ID, &node.Label, &typ)
	if errors.Is(err, sql.ErrNoRows) {
		return lens.GraphNode{}, lens.NewNotFound("node", id)
	}
	if err != nil {
		return lens.GraphNode{}, fmt.Errorf("get node: %w", err)
	}
	node.Type = lens.NodeType(typ)
	return node, nil
}

// Nodes returns the graph nodes for the given ids, keyed by id.
// Missing ids are simply absent from the result - stale override handling
// is the resolver's concern.
//
// Implements resolver.NodeSource.
func (s *Store) Nodes(ctx context.Context, ids []string) (map[string]lens.GraphNode, error) {
	nodes := make(map[string]lens.GraphNode, len(ids))
	// Single-writer SQLite store: per-id point reads are cheap and keep the
	// query free of dynamic IN-list construction.
	for _, id := range ids {
		node, err := s.GetNode(ctx, id)
		if lens.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		nodes[id] = node
	}
	return nodes, nil
}

// ActivePreset returns the active preset for a profile.
// Returns a NOT_FOUND domain error when the profile has no active preset.
func (s *Store) ActivePreset(ctx context.Context, profileID string) (lens.Preset, error) {
	var preset lens.Preset
	var active int
	var createdAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, profile_id, name, active, created_at
		FROM lens_presets
		WHERE profile_id = ? AND active = 1
	`, profileID).Scan(&preset.ID, &preset.ProfileID, &preset.Name, &active, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return lens.Preset{}, lens.NewNotFound("profile", profileID)
	}
	if err != nil {
		return lens.Preset{}, fmt.Errorf("active preset: %w", err)
	}
	preset.Active = active == 1
	if preset.CreatedAt, err = parseTime(createdAt); err != nil {
		return lens.Preset{}, fmt.Errorf("active preset: %w", err)
	}
	return preset, nil
}

// PresetNodes returns all tier-1 state assignments for a preset, keyed by
// node id. Results ordered by node_id for deterministic iteration.
func (s *Store) PresetNodes(ctx context.Context, presetID string) (map[string]lens.OverrideRecord, error) {
	return s.readOverrides(ctx, `
		SELECT preset_id, node_id, state, updated_at
		FROM lens_profile_nodes
		WHERE preset_id = ?
		ORDER BY node_id COLLATE BINARY ASC
	`, presetID)
}

// WorkspaceOverrides returns all tier-2 state restatements for a workspace,
// keyed by node id.
func (s *Store) WorkspaceOverrides(ctx context.Context, workspaceID string) (map[string]lens.OverrideRecord, error) {
	return s.readOverrides(ctx, `
		SELECT workspace_id, node_id, state, updated_at
		FROM workspace_lens_overrides
		WHERE workspace_id = ?
		ORDER BY node_id COLLATE BINARY ASC
	`, workspaceID)
}

func (s *Store) readOverrides(ctx context.Context, query, scopeID string) (map[string]lens.OverrideRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, scopeID)
	if err != nil {
		return nil, fmt.Errorf("query overrides: %w", err)
	}
	defer rows.Close()

	overrides := make(map[string]lens.OverrideRecord)
	for rows.Next() {
		var rec lens.OverrideRecord
		var state, updatedAt string
		if err := rows.Scan(&rec.ScopeID, &rec.NodeID, &state, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan override: %w", err)
		}
		rec.State = lens.NodeState(state)
		if rec.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, fmt.Errorf("scan override: %w", err)
		}
		overrides[rec.NodeID] = rec
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate overrides: %w", err)
	}

	return overrides, nil
}

// GetSnapshotByHash returns the snapshot for an effective-lens hash.
func (s *Store) GetSnapshotByHash(ctx context.Context, hash string) (lens.Snapshot, error) {
	snap, err := scanSnapshotRow(s.db.QueryRowContext(ctx, `
		SELECT id, effective_lens_hash, profile_id, workspace_id, session_id, nodes_json, created_at
		FROM lens_snapshots WHERE effective_lens_hash = ?
	`, hash))
	if errors.Is(err, sql.ErrNoRows) {
		return lens.Snapshot{}, lens.NewNotFound("snapshot", hash)
	}
	if err != nil {
		return lens.Snapshot{}, fmt.Errorf("get snapshot by hash: %w", err)
	}
	return snap, nil
}

// GetSnapshotByID returns the snapshot with the given id.
func (s *Store) GetSnapshotByID(ctx context.Context, id string) (lens.Snapshot, error) {
	snap, err := scanSnapshotRow(s.db.QueryRowContext(ctx, `
		SELECT id, effective_lens_hash, profile_id, workspace_id, session_id, nodes_json, created_at
		FROM lens_snapshots WHERE id = ?
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return lens.Snapshot{}, lens.NewNotFound("snapshot", id)
	}
	if err != nil {
		return lens.Snapshot{}, fmt.Errorf("get snapshot by id: %w", err)
	}
	return snap, nil
}

// CountSnapshots returns the number of snapshot rows for a hash.
// Deduplication means this is always 0 or 1; exposed for verification.
func (s *Store) CountSnapshots(ctx context.Context, hash string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM lens_snapshots WHERE effective_lens_hash = ?
	`, hash).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count snapshots: %w", err)
	}
	return count, nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scan helpers.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshotRow(row rowScanner) (lens.Snapshot, error) {
	var snap lens.Snapshot
	var workspaceID, sessionID sql.NullString
	var createdAt string
	if err := row.Scan(
		&snap.ID,
		&snap.EffectiveLensHash,
		&snap.ProfileID,
		&workspaceID,
		&sessionID,
		&snap.NodesJSON,
		&createdAt,
	); err != nil {
		return lens.Snapshot{}, err
	}
	snap.WorkspaceID = workspaceID.String
	snap.SessionID = sessionID.String
	var err error
	if snap.CreatedAt, err = parseTime(createdAt); err != nil {
		return lens.Snapshot{}, err
	}
	return snap, nil
}

// ListReceipts returns receipts for a workspace, newest first.
func (s *Store) ListReceipts(ctx context.Context, workspaceID string, limit int) ([]lens.Receipt, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, execution_id, workspace_id, effective_lens_hash, triggered_nodes_json,
		       base_output, lens_output, diff_summary, created_at
		FROM lens_receipts
		WHERE workspace_id = ?
		ORDER BY created_at DESC, id COLLATE BINARY ASC
		LIMIT ?
	`, workspaceID, limit)
	if err != nil {
		return nil, fmt.Errorf("list receipts: %w", err)
	}
	defer rows.Close()

	receipts := []lens.Receipt{}
	for rows.Next() {
		var r lens.Receipt
		var createdAt string
		if err := rows.Scan(
			&r.ID, &r.ExecutionID, &r.WorkspaceID, &r.EffectiveLensHash,
			&r.TriggeredNodesJSON, &r.BaseOutput, &r.LensOutput, &r.DiffSummary, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan receipt: %w", err)
		}
		if r.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("scan receipt: %w", err)
		}
		receipts = append(receipts, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate receipts: %w", err)
	}
	return receipts, nil
}
