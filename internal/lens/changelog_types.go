package lens

import "time"

// NOTE: Changelog types are store-layer records. They use auto-increment IDs
// for FK references; identity within a workspace is (workspace_id, version).

// Operation is the kind of mutation a changelog entry records.
type Operation string

const (
	OpCreate   Operation = "create"
	OpUpdate   Operation = "update"
	OpDelete   Operation = "delete"
	OpOverride Operation = "override"
	OpBatch    Operation = "batch"
	OpUndo     Operation = "undo"
)

// TargetType is the kind of object a changelog entry mutated.
type TargetType string

const (
	TargetNode              TargetType = "node"
	TargetEdge              TargetType = "edge"
	TargetWorkspaceOverride TargetType = "workspace_override"
	TargetPresetNode        TargetType = "preset_node"
	TargetBatch             TargetType = "batch"
)

// Actor identifies who initiated a mutation.
type Actor string

const (
	ActorUser     Actor = "user"
	ActorLLM      Actor = "llm"
	ActorSystem   Actor = "system"
	ActorPlaybook Actor = "playbook"
)

// Valid reports whether a is a known actor.
func (a Actor) Valid() bool {
	switch a {
	case ActorUser, ActorLLM, ActorSystem, ActorPlaybook:
		return true
	}
	return false
}

// ChangeStatus is the state machine position of a changelog entry.
//
// Valid transitions: pending -> applied | rejected, applied -> undone.
// A rejected proposal can never become applied; it must be resubmitted as a
// new entry.
type ChangeStatus string

const (
	StatusPending  ChangeStatus = "pending"
	StatusApplied  ChangeStatus = "applied"
	StatusRejected ChangeStatus = "rejected"
	StatusUndone   ChangeStatus = "undone"
)

// CanTransition reports whether the state machine permits from -> to.
func CanTransition(from, to ChangeStatus) bool {
	switch from {
	case StatusPending:
		return to == StatusApplied || to == StatusRejected
	case StatusApplied:
		return to == StatusUndone
	}
	return false
}

// validOperationTargets is the closed table of allowed (operation, target)
// combinations. Recording any other pairing is an invalid-argument error.
var validOperationTargets = map[Operation]map[TargetType]bool{
	OpCreate:   {TargetNode: true, TargetEdge: true},
	OpUpdate:   {TargetNode: true, TargetEdge: true},
	OpDelete:   {TargetNode: true, TargetEdge: true},
	OpOverride: {TargetWorkspaceOverride: true, TargetPresetNode: true},
	OpBatch:    {TargetBatch: true},
	OpUndo:     {TargetNode: true, TargetEdge: true, TargetWorkspaceOverride: true, TargetPresetNode: true, TargetBatch: true},
}

// ValidOperationTarget reports whether (op, target) is an allowed pairing.
func ValidOperationTarget(op Operation, target TargetType) bool {
	return validOperationTargets[op][target]
}

// ChangelogEntry is one append-only, versioned record of a mutation.
//
// (WorkspaceID, Version) is unique; versions are strictly increasing per
// workspace with no gaps under normal operation. BeforeState is required for
// any entry that may later transition to undone.
type ChangelogEntry struct {
	ID           int64        `json:"id"`
	WorkspaceID  string       `json:"workspace_id"`
	Version      int64        `json:"version"`
	Operation    Operation    `json:"operation"`
	TargetType   TargetType   `json:"target_type"`
	TargetID     string       `json:"target_id"`
	BeforeState  string       `json:"before_state,omitempty"`
	AfterState   string       `json:"after_state"`
	Actor        Actor        `json:"actor"`
	ActorContext string       `json:"actor_context,omitempty"`
	Status       ChangeStatus `json:"status"`
	CreatedAt    time.Time    `json:"created_at"`
	AppliedAt    *time.Time   `json:"applied_at,omitempty"`
	AppliedBy    string       `json:"applied_by,omitempty"`
}

// Undoable reports whether the entry satisfies the undo preconditions:
// status applied and a recorded before state.
func (e *ChangelogEntry) Undoable() bool {
	return e.Status == StatusApplied && e.BeforeState != ""
}

// Event is the outbound notification emitted on changelog transitions.
// Delivery is fire-and-forget, best-effort.
type Event struct {
	Type        string     `json:"type"`
	WorkspaceID string     `json:"workspace_id"`
	ChangeID    int64      `json:"change_id"`
	Operation   Operation  `json:"operation"`
	TargetType  TargetType `json:"target_type"`
	TargetID    string     `json:"target_id"`
	Actor       Actor      `json:"actor"`
}
