package lens

import "time"

// NodeState is the per-node preference flag. States are independent flags,
// not a scale: "off" excludes the node, "keep" includes it at baseline
// weight, "emphasize" includes it with elevated influence.
type NodeState string

const (
	StateOff       NodeState = "off"
	StateKeep      NodeState = "keep"
	StateEmphasize NodeState = "emphasize"
)

// Valid reports whether s is one of the three known states.
func (s NodeState) Valid() bool {
	switch s {
	case StateOff, StateKeep, StateEmphasize:
		return true
	}
	return false
}

// NodeType classifies graph nodes. The enumeration is closed per deployment;
// this is the set for the current one.
type NodeType string

const (
	TypeValue     NodeType = "value"
	TypeWorldview NodeType = "worldview"
	TypeAesthetic NodeType = "aesthetic"
	TypeStrategy  NodeType = "strategy"
	TypeRole      NodeType = "role"
	TypeRhythm    NodeType = "rhythm"
	TypeKnowledge NodeType = "knowledge"
	TypeBoundary  NodeType = "boundary"
)

// KnownNodeTypes is the closed type set for this deployment.
var KnownNodeTypes = map[NodeType]bool{
	TypeValue:     true,
	TypeWorldview: true,
	TypeAesthetic: true,
	TypeStrategy:  true,
	TypeRole:      true,
	TypeRhythm:    true,
	TypeKnowledge: true,
	TypeBoundary:  true,
}

// GraphNode is the read-only identity of a node as seen by this engine.
// The node store itself is an external collaborator.
type GraphNode struct {
	ID    string   `json:"id"`
	Label string   `json:"label"`
	Type  NodeType `json:"type"`
}

// Node weights by state. Weight never participates in hashing - it is
// derived from state and would only add float instability.
const (
	WeightKeep      = 1.0
	WeightEmphasize = 1.5
)

// StateWeight returns the influence weight for an included state.
// StateOff has no weight: off nodes are excluded before weighting.
func StateWeight(s NodeState) float64 {
	if s == StateEmphasize {
		return WeightEmphasize
	}
	return WeightKeep
}

// Scope identifies the tier an effective state was drawn from.
type Scope string

const (
	ScopePreset    Scope = "preset"
	ScopeWorkspace Scope = "workspace"
	ScopeSession   Scope = "session"
)

// OverrideRecord is one durable per-node state assignment, owned by either
// the preset tier (scope = preset id) or the workspace tier
// (scope = workspace id). Unique per (scope, node) - upsert semantics.
//
// An "off" record still exists; it is distinct from "no override present".
type OverrideRecord struct {
	ScopeID   string    `json:"scope_id"`
	NodeID    string    `json:"node_id"`
	State     NodeState `json:"state"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EffectiveNode is one merged node in an effective lens. State comes from
// exactly one tier (EffectiveScope), never blended.
type EffectiveNode struct {
	NodeID    string    `json:"node_id"`
	NodeLabel string    `json:"node_label"`
	NodeType  NodeType  `json:"node_type"`
	State     NodeState `json:"state"`
	Weight    float64   `json:"weight"`
	Scope     Scope     `json:"effective_scope"`
}

// EffectiveLens is the fully merged, hashed result of resolving the three
// tiers for one (profile, workspace?, session?) triple.
//
// Nodes are deduplicated by node id and ordered by node id; Hash covers only
// the state-bearing content (see Hash in hash.go), so identical effective
// states always produce identical hashes regardless of override insertion
// order or timestamps.
type EffectiveLens struct {
	ProfileID        string          `json:"profile_id"`
	WorkspaceID      string          `json:"workspace_id,omitempty"`
	SessionID        string          `json:"session_id,omitempty"`
	Nodes            []EffectiveNode `json:"nodes"`
	Hash             string          `json:"hash"`
	GlobalPresetName string          `json:"global_preset_name"`
}

// StateOf returns the effective state for a node id and whether the node is
// part of the lens at all.
func (l *EffectiveLens) StateOf(nodeID string) (NodeState, bool) {
	for i := range l.Nodes {
		if l.Nodes[i].NodeID == nodeID {
			return l.Nodes[i].State, true
		}
	}
	return "", false
}

// StatePairs returns the (node_id, state) pairs that define the lens
// identity, in node-id order. This is the exact hash input set.
func (l *EffectiveLens) StatePairs() []StatePair {
	pairs := make([]StatePair, len(l.Nodes))
	for i, n := range l.Nodes {
		pairs[i] = StatePair{NodeID: n.NodeID, State: n.State}
	}
	return pairs
}

// StatePair is one (node_id, state) element of the hash input.
type StatePair struct {
	NodeID string
	State  NodeState
}

// Snapshot is a content-addressed, immutable record of one resolved lens.
// At most one row exists per distinct EffectiveLensHash.
type Snapshot struct {
	ID                string    `json:"id"`
	EffectiveLensHash string    `json:"effective_lens_hash"`
	ProfileID         string    `json:"profile_id"`
	WorkspaceID       string    `json:"workspace_id,omitempty"`
	SessionID         string    `json:"session_id,omitempty"`
	NodesJSON         string    `json:"nodes_json"`
	CreatedAt         time.Time `json:"created_at"`
}

// NodeChange is one diffed state transition. Produced only by the diff
// algorithm in the changeset package.
type NodeChange struct {
	NodeID    string    `json:"node_id"`
	NodeLabel string    `json:"node_label"`
	FromState NodeState `json:"from_state"`
	ToState   NodeState `json:"to_state"`
}

// ChangeSet is a computed diff between a session resolution and its
// baseline. It is ephemeral by design: never persisted server-side, carried
// by the caller, applied at most once to exactly one target scope.
type ChangeSet struct {
	ID          string       `json:"id"`
	ProfileID   string       `json:"profile_id"`
	SessionID   string       `json:"session_id"`
	WorkspaceID string       `json:"workspace_id,omitempty"`
	Changes     []NodeChange `json:"changes"`
	Summary     string       `json:"summary"`
	CreatedAt   time.Time    `json:"created_at"`
}

// ApplyTarget selects where an accepted changeset is durably applied.
type ApplyTarget string

const (
	ApplySessionOnly ApplyTarget = "session_only"
	ApplyWorkspace   ApplyTarget = "workspace"
	ApplyPreset      ApplyTarget = "preset"
)

// Valid reports whether t is a known apply target.
func (t ApplyTarget) Valid() bool {
	switch t {
	case ApplySessionOnly, ApplyWorkspace, ApplyPreset:
		return true
	}
	return false
}

// Preset is the profile-owned baseline (tier 1). At most one preset is
// active per profile at a time.
type Preset struct {
	ID        string    `json:"id"`
	ProfileID string    `json:"profile_id"`
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// Receipt is one immutable record per compiled execution, kept for
// observability. It consumes engine outputs but is not required for their
// correctness.
type Receipt struct {
	ID                 string    `json:"id"`
	ExecutionID        string    `json:"execution_id"`
	WorkspaceID        string    `json:"workspace_id"`
	EffectiveLensHash  string    `json:"effective_lens_hash"`
	TriggeredNodesJSON string    `json:"triggered_nodes_json"`
	BaseOutput         string    `json:"base_output"`
	LensOutput         string    `json:"lens_output"`
	DiffSummary        string    `json:"diff_summary"`
	CreatedAt          time.Time `json:"created_at"`
}

// PreviewVariant identifies which side of a base-vs-lens preview was chosen.
type PreviewVariant string

const (
	VariantBase PreviewVariant = "base"
	VariantLens PreviewVariant = "lens"
)

// PreviewVote records a user's choice between base and lens output for one
// preview rendering.
type PreviewVote struct {
	ID            string         `json:"id"`
	PreviewID     string         `json:"preview_id"`
	WorkspaceID   string         `json:"workspace_id"`
	ProfileID     string         `json:"profile_id"`
	SessionID     string         `json:"session_id"`
	ChosenVariant PreviewVariant `json:"chosen_variant"`
	PreviewType   string         `json:"preview_type"`
	InputTextHash string         `json:"input_text_hash"`
	CreatedAt     time.Time      `json:"created_at"`
}
