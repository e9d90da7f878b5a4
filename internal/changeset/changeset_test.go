package changeset

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindlens/mindlens/internal/lens"
	"github.com/mindlens/mindlens/internal/testutil"
)

// fakeResolver returns canned lenses keyed by session id.
type fakeResolver struct {
	bySession map[string]*lens.EffectiveLens
}

func (f *fakeResolver) Resolve(_ context.Context, profileID, workspaceID, sessionID string) (*lens.EffectiveLens, error) {
	l, ok := f.bySession[sessionID]
	if !ok {
		return nil, lens.NewNotFound("profile", profileID)
	}
	return l, nil
}

// fakeStore keeps tier contents in maps, mimicking upsert-by-key semantics.
type fakeStore struct {
	preset           lens.Preset
	presetNodes      map[string]lens.OverrideRecord
	workspaces       map[string]map[string]lens.OverrideRecord
	activePresetErr  error
	workspaceUpserts int
}

func (f *fakeStore) ActivePreset(context.Context, string) (lens.Preset, error) {
	if f.activePresetErr != nil {
		return lens.Preset{}, f.activePresetErr
	}
	return f.preset, nil
}

func (f *fakeStore) PresetNodes(context.Context, string) (map[string]lens.OverrideRecord, error) {
	return f.presetNodes, nil
}

func (f *fakeStore) WorkspaceOverrides(_ context.Context, workspaceID string) (map[string]lens.OverrideRecord, error) {
	// Return a copy: the real store returns a point-in-time snapshot from a
	// SQL read, not a live view that later upserts would mutate.
	snapshot := make(map[string]lens.OverrideRecord, len(f.workspaces[workspaceID]))
	for k, v := range f.workspaces[workspaceID] {
		snapshot[k] = v
	}
	return snapshot, nil
}

func (f *fakeStore) UpsertWorkspaceOverride(_ context.Context, workspaceID, nodeID string, state lens.NodeState) error {
	if f.workspaces == nil {
		f.workspaces = make(map[string]map[string]lens.OverrideRecord)
	}
	if f.workspaces[workspaceID] == nil {
		f.workspaces[workspaceID] = make(map[string]lens.OverrideRecord)
	}
	f.workspaces[workspaceID][nodeID] = lens.OverrideRecord{ScopeID: workspaceID, NodeID: nodeID, State: state}
	f.workspaceUpserts++
	return nil
}

func (f *fakeStore) UpsertPresetNode(_ context.Context, presetID, nodeID string, state lens.NodeState) error {
	if f.presetNodes == nil {
		f.presetNodes = make(map[string]lens.OverrideRecord)
	}
	f.presetNodes[nodeID] = lens.OverrideRecord{ScopeID: presetID, NodeID: nodeID, State: state}
	return nil
}

// fakeRecorder captures RecordApplied calls.
type fakeRecorder struct {
	entries []lens.ChangelogEntry
}

func (f *fakeRecorder) RecordApplied(_ context.Context, entry lens.ChangelogEntry) (lens.ChangelogEntry, error) {
	entry.ID = int64(len(f.entries) + 1)
	entry.Version = entry.ID
	f.entries = append(f.entries, entry)
	return entry, nil
}

func node(id, label string, state lens.NodeState) lens.EffectiveNode {
	return lens.EffectiveNode{NodeID: id, NodeLabel: label, State: state}
}

func newTestEngine(r Resolver, s ApplyStore, rec Recorder) *Engine {
	clock := testutil.NewClock()
	ids := testutil.NewSequentialIDGenerator("cs")
	return New(r, s, rec).WithClock(clock.Now).WithIDGenerator(ids.NextID)
}

func TestCreate_DiffsAgainstBaseline(t *testing.T) {
	resolver := &fakeResolver{bySession: map[string]*lens.EffectiveLens{
		"": {Nodes: []lens.EffectiveNode{
			node("node-a", "Honesty", lens.StateKeep),
			node("node-b", "Whimsy", lens.StateKeep),
			node("node-c", "Brutalism", lens.StateKeep),
		}},
		"exp-1": {Nodes: []lens.EffectiveNode{
			node("node-a", "Honesty", lens.StateKeep),
			node("node-b", "Whimsy", lens.StateOff),
			node("node-c", "Brutalism", lens.StateEmphasize),
		}},
	}}
	e := newTestEngine(resolver, &fakeStore{}, nil)

	cs, err := e.Create(context.Background(), "profile-1", "exp-1", "ws-1")
	require.NoError(t, err)

	assert.Equal(t, "cs-0001", cs.ID)
	assert.Equal(t, "profile-1", cs.ProfileID)
	assert.Equal(t, "exp-1", cs.SessionID)
	require.Len(t, cs.Changes, 2)

	// Ordered by node id.
	assert.Equal(t, "node-b", cs.Changes[0].NodeID)
	assert.Equal(t, lens.StateKeep, cs.Changes[0].FromState)
	assert.Equal(t, lens.StateOff, cs.Changes[0].ToState)
	assert.Equal(t, "node-c", cs.Changes[1].NodeID)
	assert.Equal(t, lens.StateEmphasize, cs.Changes[1].ToState)

	assert.Equal(t, Summarize(cs.Changes), cs.Summary)
}

func TestCreate_RequiresSession(t *testing.T) {
	e := newTestEngine(&fakeResolver{}, &fakeStore{}, nil)

	_, err := e.Create(context.Background(), "profile-1", "", "ws-1")
	assert.True(t, lens.IsInvalidArgument(err))
}

func TestCreate_NoChanges(t *testing.T) {
	same := &lens.EffectiveLens{Nodes: []lens.EffectiveNode{node("node-a", "A", lens.StateKeep)}}
	resolver := &fakeResolver{bySession: map[string]*lens.EffectiveLens{"": same, "exp-1": same}}
	e := newTestEngine(resolver, &fakeStore{}, nil)

	cs, err := e.Create(context.Background(), "profile-1", "exp-1", "")
	require.NoError(t, err)
	assert.Empty(t, cs.Changes)
	assert.Equal(t, "No changes.", cs.Summary)
}

func TestCreate_NodesOutsideBaselineSkipped(t *testing.T) {
	resolver := &fakeResolver{bySession: map[string]*lens.EffectiveLens{
		"": {Nodes: []lens.EffectiveNode{node("node-a", "A", lens.StateKeep)}},
		"exp-1": {Nodes: []lens.EffectiveNode{
			node("node-a", "A", lens.StateKeep),
			node("node-new", "New", lens.StateEmphasize),
		}},
	}}
	e := newTestEngine(resolver, &fakeStore{}, nil)

	cs, err := e.Create(context.Background(), "profile-1", "exp-1", "")
	require.NoError(t, err)
	assert.Empty(t, cs.Changes, "cannot diff a node absent from the baseline")
}

func testChangeSet() *lens.ChangeSet {
	return &lens.ChangeSet{
		ID:          "cs-0001",
		ProfileID:   "profile-1",
		SessionID:   "exp-1",
		WorkspaceID: "ws-1",
		Changes: []lens.NodeChange{
			{NodeID: "node-b", NodeLabel: "Whimsy", FromState: lens.StateKeep, ToState: lens.StateOff},
			{NodeID: "node-c", NodeLabel: "Brutalism", FromState: lens.StateKeep, ToState: lens.StateEmphasize},
		},
	}
}

func TestApply_SessionOnlyIsNoOp(t *testing.T) {
	store := &fakeStore{}
	e := newTestEngine(&fakeResolver{}, store, nil)

	err := e.Apply(context.Background(), testChangeSet(), lens.ApplySessionOnly, "", lens.ActorUser)
	require.NoError(t, err)
	assert.Zero(t, store.workspaceUpserts)
}

func TestApply_BadTarget(t *testing.T) {
	e := newTestEngine(&fakeResolver{}, &fakeStore{}, nil)

	err := e.Apply(context.Background(), testChangeSet(), lens.ApplyTarget("global"), "", lens.ActorUser)
	assert.True(t, lens.IsInvalidArgument(err))
}

func TestApply_Workspace(t *testing.T) {
	store := &fakeStore{
		workspaces: map[string]map[string]lens.OverrideRecord{
			"ws-1": {"node-b": {ScopeID: "ws-1", NodeID: "node-b", State: lens.StateKeep}},
		},
	}
	recorder := &fakeRecorder{}
	e := newTestEngine(&fakeResolver{}, store, recorder)

	require.NoError(t, e.Apply(context.Background(), testChangeSet(), lens.ApplyWorkspace, "", lens.ActorUser))

	assert.Equal(t, lens.StateOff, store.workspaces["ws-1"]["node-b"].State)
	assert.Equal(t, lens.StateEmphasize, store.workspaces["ws-1"]["node-c"].State)

	require.Len(t, recorder.entries, 1)
	entry := recorder.entries[0]
	assert.Equal(t, "ws-1", entry.WorkspaceID)
	assert.Equal(t, lens.OpBatch, entry.Operation)
	assert.Equal(t, lens.TargetBatch, entry.TargetType)
	assert.Equal(t, lens.ActorUser, entry.Actor)

	// The batch payload is self-describing: tier, scope and per-node states.
	var before, after BatchState
	require.NoError(t, json.Unmarshal([]byte(entry.BeforeState), &before))
	require.NoError(t, json.Unmarshal([]byte(entry.AfterState), &after))

	assert.Equal(t, lens.TargetWorkspaceOverride, before.Target)
	assert.Equal(t, "ws-1", before.Scope)
	require.NotNil(t, before.Nodes["node-b"])
	assert.Equal(t, lens.StateKeep, before.Nodes["node-b"].State)
	assert.Nil(t, before.Nodes["node-c"], "no prior record must encode as null")
	assert.Equal(t, lens.StateOff, after.Nodes["node-b"].State)
	assert.Equal(t, lens.StateEmphasize, after.Nodes["node-c"].State)
}

func TestApply_WorkspaceRequiresWorkspaceID(t *testing.T) {
	cs := testChangeSet()
	cs.WorkspaceID = ""
	e := newTestEngine(&fakeResolver{}, &fakeStore{}, nil)

	err := e.Apply(context.Background(), cs, lens.ApplyWorkspace, "", lens.ActorUser)
	assert.True(t, lens.IsInvalidArgument(err))
}

func TestApply_WorkspaceOverrideTarget(t *testing.T) {
	store := &fakeStore{}
	e := newTestEngine(&fakeResolver{}, store, nil)

	require.NoError(t, e.Apply(context.Background(), testChangeSet(), lens.ApplyWorkspace, "ws-other", lens.ActorUser))
	assert.Contains(t, store.workspaces, "ws-other")
}

func TestApply_Idempotent(t *testing.T) {
	store := &fakeStore{}
	e := newTestEngine(&fakeResolver{}, store, nil)
	cs := testChangeSet()

	require.NoError(t, e.Apply(context.Background(), cs, lens.ApplyWorkspace, "", lens.ActorUser))
	firstState := store.workspaces["ws-1"]["node-b"].State

	require.NoError(t, e.Apply(context.Background(), cs, lens.ApplyWorkspace, "", lens.ActorUser))
	assert.Equal(t, firstState, store.workspaces["ws-1"]["node-b"].State)
	assert.Len(t, store.workspaces["ws-1"], 2, "re-apply must not create duplicate rows")
}

func TestApply_Preset(t *testing.T) {
	store := &fakeStore{
		preset:      lens.Preset{ID: "preset-1", ProfileID: "profile-1", Active: true},
		presetNodes: map[string]lens.OverrideRecord{},
	}
	recorder := &fakeRecorder{}
	e := newTestEngine(&fakeResolver{}, store, recorder)

	require.NoError(t, e.Apply(context.Background(), testChangeSet(), lens.ApplyPreset, "", lens.ActorUser))

	assert.Equal(t, lens.StateOff, store.presetNodes["node-b"].State)
	require.Len(t, recorder.entries, 1)

	var after BatchState
	require.NoError(t, json.Unmarshal([]byte(recorder.entries[0].AfterState), &after))
	assert.Equal(t, lens.TargetPresetNode, after.Target)
	assert.Equal(t, "preset-1", after.Scope)
}

func TestApply_PresetWithoutActivePresetFails(t *testing.T) {
	store := &fakeStore{activePresetErr: lens.NewNotFound("profile", "profile-1")}
	e := newTestEngine(&fakeResolver{}, store, nil)

	err := e.Apply(context.Background(), testChangeSet(), lens.ApplyPreset, "", lens.ActorUser)
	assert.True(t, lens.IsNotFound(err))
}

func TestApply_PresetWithoutWorkspaceNotRecorded(t *testing.T) {
	cs := testChangeSet()
	cs.WorkspaceID = ""
	store := &fakeStore{preset: lens.Preset{ID: "preset-1", ProfileID: "profile-1"}}
	recorder := &fakeRecorder{}
	e := newTestEngine(&fakeResolver{}, store, recorder)

	require.NoError(t, e.Apply(context.Background(), cs, lens.ApplyPreset, "", lens.ActorUser))
	assert.Empty(t, recorder.entries, "no workspace scope means no version stream to record into")
}

func TestWithClock(t *testing.T) {
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	resolver := &fakeResolver{bySession: map[string]*lens.EffectiveLens{
		"":      {Nodes: []lens.EffectiveNode{node("node-a", "A", lens.StateKeep)}},
		"exp-1": {Nodes: []lens.EffectiveNode{node("node-a", "A", lens.StateOff)}},
	}}
	e := New(resolver, &fakeStore{}, nil).WithClock(func() time.Time { return fixed })

	cs, err := e.Create(context.Background(), "profile-1", "exp-1", "")
	require.NoError(t, err)
	assert.Equal(t, fixed, cs.CreatedAt)
}
