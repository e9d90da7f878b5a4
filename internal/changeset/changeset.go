// Package changeset computes the diff between a session-scoped resolution
// and its baseline, and applies an accepted diff back into a durable tier.
package changeset

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/mindlens/mindlens/internal/lens"
)

// Resolver produces effective lenses. Satisfied by resolver.Resolver.
type Resolver interface {
	Resolve(ctx context.Context, profileID, workspaceID, sessionID string) (*lens.EffectiveLens, error)
}

// ApplyStore is the durable-tier surface an apply needs. Satisfied by
// store.Store.
type ApplyStore interface {
	ActivePreset(ctx context.Context, profileID string) (lens.Preset, error)
	PresetNodes(ctx context.Context, presetID string) (map[string]lens.OverrideRecord, error)
	WorkspaceOverrides(ctx context.Context, workspaceID string) (map[string]lens.OverrideRecord, error)
	UpsertWorkspaceOverride(ctx context.Context, workspaceID, nodeID string, state lens.NodeState) error
	UpsertPresetNode(ctx context.Context, presetID, nodeID string, state lens.NodeState) error
}

// Recorder appends applied batch entries to the changelog. Satisfied by
// changelog.Engine; nil disables audit recording.
type Recorder interface {
	RecordApplied(ctx context.Context, entry lens.ChangelogEntry) (lens.ChangelogEntry, error)
}

// Engine creates and applies changesets.
type Engine struct {
	resolver Resolver
	store    ApplyStore
	recorder Recorder
	now      func() time.Time
	newID    func() string
}

// New constructs a changeset engine. recorder may be nil.
func New(r Resolver, s ApplyStore, rec Recorder) *Engine {
	return &Engine{resolver: r, store: s, recorder: rec, now: time.Now, newID: uuid.NewString}
}

// WithClock overrides the wall clock. For tests.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// WithIDGenerator overrides changeset ID generation. For tests.
func (e *Engine) WithIDGenerator(newID func() string) *Engine {
	e.newID = newID
	return e
}

// Create diffs the session resolution against its baseline.
//
// Baseline is resolve(profile, workspace, session=none). A NodeChange is
// emitted for every node present in both resolutions whose state differs;
// nodes absent from the baseline map are skipped (cannot diff against
// nothing). Changes are ordered by node id, and Summary is regenerated
// deterministically from the change list - a derived fact, never stored
// independently.
func (e *Engine) Create(ctx context.Context, profileID, sessionID, workspaceID string) (*lens.ChangeSet, error) {
	if sessionID == "" {
		return nil, lens.NewInvalidArgument("changeset requires a session id")
	}

	baseline, err := e.resolver.Resolve(ctx, profileID, workspaceID, "")
	if err != nil {
		return nil, fmt.Errorf("create changeset: baseline: %w", err)
	}
	current, err := e.resolver.Resolve(ctx, profileID, workspaceID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("create changeset: current: %w", err)
	}

	baseStates := make(map[string]lens.NodeState, len(baseline.Nodes))
	for _, n := range baseline.Nodes {
		baseStates[n.NodeID] = n.State
	}

	var changes []lens.NodeChange
	for _, n := range current.Nodes {
		from, ok := baseStates[n.NodeID]
		if !ok {
			continue
		}
		if n.State != from {
			changes = append(changes, lens.NodeChange{
				NodeID:    n.NodeID,
				NodeLabel: n.NodeLabel,
				FromState: from,
				ToState:   n.State,
			})
		}
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].NodeID < changes[j].NodeID })

	return &lens.ChangeSet{
		ID:          e.newID(),
		ProfileID:   profileID,
		SessionID:   sessionID,
		WorkspaceID: workspaceID,
		Changes:     changes,
		Summary:     Summarize(changes),
		CreatedAt:   e.now(),
	}, nil
}

// Apply promotes an accepted changeset into the chosen tier.
//
// The whole apply is one logical batch. Every per-node write is an upsert by
// the tier's unique key, so the operation is deterministic, no-fail and
// idempotent: applying the same changeset twice converges to the same end
// state with no duplicate rows.
func (e *Engine) Apply(ctx context.Context, cs *lens.ChangeSet, target lens.ApplyTarget, targetWorkspaceID string, actor lens.Actor) error {
	if !target.Valid() {
		return lens.NewInvalidArgument(fmt.Sprintf("bad apply target %q", target))
	}

	switch target {
	case lens.ApplySessionOnly:
		// Changes already live in the session tier.
		return nil

	case lens.ApplyWorkspace:
		workspaceID := cs.WorkspaceID
		if targetWorkspaceID != "" {
			workspaceID = targetWorkspaceID
		}
		if workspaceID == "" {
			return lens.NewInvalidArgument("workspace apply requires a workspace id")
		}
		return e.applyWorkspace(ctx, cs, workspaceID, actor)

	case lens.ApplyPreset:
		return e.applyPreset(ctx, cs, actor)
	}

	return lens.NewInvalidArgument(fmt.Sprintf("bad apply target %q", target))
}

func (e *Engine) applyWorkspace(ctx context.Context, cs *lens.ChangeSet, workspaceID string, actor lens.Actor) error {
	prior, err := e.store.WorkspaceOverrides(ctx, workspaceID)
	if err != nil {
		return fmt.Errorf("apply changeset: prior overrides: %w", err)
	}

	for _, change := range cs.Changes {
		if err := e.store.UpsertWorkspaceOverride(ctx, workspaceID, change.NodeID, change.ToState); err != nil {
			return fmt.Errorf("apply changeset: %w", err)
		}
	}

	slog.Info("changeset applied",
		"changeset", cs.ID,
		"scope", "workspace",
		"workspace", workspaceID,
		"changes", len(cs.Changes),
	)

	return e.record(ctx, cs, lens.TargetWorkspaceOverride, workspaceID, workspaceID, prior, actor)
}

func (e *Engine) applyPreset(ctx context.Context, cs *lens.ChangeSet, actor lens.Actor) error {
	preset, err := e.store.ActivePreset(ctx, cs.ProfileID)
	if err != nil {
		// No active preset for the profile - error per contract.
		return fmt.Errorf("apply changeset: %w", err)
	}

	prior, err := e.store.PresetNodes(ctx, preset.ID)
	if err != nil {
		return fmt.Errorf("apply changeset: prior preset nodes: %w", err)
	}

	for _, change := range cs.Changes {
		if err := e.store.UpsertPresetNode(ctx, preset.ID, change.NodeID, change.ToState); err != nil {
			return fmt.Errorf("apply changeset: %w", err)
		}
	}

	slog.Info("changeset applied",
		"changeset", cs.ID,
		"scope", "preset",
		"preset", preset.ID,
		"changes", len(cs.Changes),
	)

	return e.record(ctx, cs, lens.TargetPresetNode, preset.ID, cs.WorkspaceID, prior, actor)
}

// record appends one batch changelog entry covering the whole apply.
// The changelog is ordered per workspace; a preset apply with no workspace
// in scope has no version stream to join and is logged but not recorded.
func (e *Engine) record(ctx context.Context, cs *lens.ChangeSet, target lens.TargetType, targetID, workspaceID string, prior map[string]lens.OverrideRecord, actor lens.Actor) error {
	if e.recorder == nil {
		return nil
	}
	if workspaceID == "" {
		slog.Debug("changeset apply not recorded: no workspace scope", "changeset", cs.ID)
		return nil
	}

	before, after, err := batchStates(target, targetID, cs.Changes, prior)
	if err != nil {
		return fmt.Errorf("apply changeset: encode batch states: %w", err)
	}

	_, err = e.recorder.RecordApplied(ctx, lens.ChangelogEntry{
		WorkspaceID:  workspaceID,
		Operation:    lens.OpBatch,
		TargetType:   lens.TargetBatch,
		TargetID:     targetID,
		BeforeState:  before,
		AfterState:   after,
		Actor:        actor,
		ActorContext: fmt.Sprintf("changeset %s -> %s", cs.ID, target),
	})
	if err != nil {
		return fmt.Errorf("apply changeset: record: %w", err)
	}
	return nil
}

// BatchState is the per-node before/after payload stored on batch entries.
// A nil Prior means "no record existed" - undo must remove the row rather
// than restore a state.
type BatchState struct {
	Target lens.TargetType       `json:"target"`
	Scope  string                `json:"scope"`
	Nodes  map[string]*BatchNode `json:"nodes"`
}

// BatchNode is one node's position inside a batch state.
type BatchNode struct {
	State lens.NodeState `json:"state"`
}

// batchStates encodes the before/after JSON blobs for a batch changelog
// entry from the change list and the prior tier contents. The blobs are
// self-describing (tier + scope id) so undo can re-apply before state
// without consulting anything but the entry itself.
func batchStates(target lens.TargetType, scopeID string, changes []lens.NodeChange, prior map[string]lens.OverrideRecord) (before, after string, err error) {
	beforeNodes := make(map[string]*BatchNode, len(changes))
	afterNodes := make(map[string]*BatchNode, len(changes))
	for _, change := range changes {
		if rec, ok := prior[change.NodeID]; ok {
			beforeNodes[change.NodeID] = &BatchNode{State: rec.State}
		} else {
			beforeNodes[change.NodeID] = nil
		}
		afterNodes[change.NodeID] = &BatchNode{State: change.ToState}
	}

	beforeJSON, err := json.Marshal(BatchState{Target: target, Scope: scopeID, Nodes: beforeNodes})
	if err != nil {
		return "", "", err
	}
	afterJSON, err := json.Marshal(BatchState{Target: target, Scope: scopeID, Nodes: afterNodes})
	if err != nil {
		return "", "", err
	}
	return string(beforeJSON), string(afterJSON), nil
}
