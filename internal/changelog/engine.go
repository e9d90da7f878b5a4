// Package changelog is the event-sourced audit engine over the graph
// changelog table.
//
// Every durable mutation to node/edge/override state is recorded as an
// append-only, per-workspace-versioned entry with a small status state
// machine: pending -> applied | rejected, applied -> undone. Undo replays
// the recorded before state and is itself recorded as a new entry - history
// is never mutated, only extended.
package changelog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mindlens/mindlens/internal/lens"
	"github.com/mindlens/mindlens/internal/notify"
)

// Log is the persistence surface the engine needs. Satisfied by store.Store.
type Log interface {
	AppendChangelog(ctx context.Context, entry lens.ChangelogEntry) (lens.ChangelogEntry, error)
	GetChangelogEntry(ctx context.Context, id int64) (lens.ChangelogEntry, error)
	TransitionChangelogStatus(ctx context.Context, id int64, from, to lens.ChangeStatus, appliedBy string) error
}

// Applier re-applies recorded state to a target. Implementations exist for
// the targets this module owns (overrides, local nodes, batches); hosts
// with external graph stores supply their own.
type Applier interface {
	Apply(ctx context.Context, target lens.TargetType, targetID, stateJSON string) error
}

// Engine coordinates changelog writes, status transitions and undo/redo.
type Engine struct {
	log     Log
	applier Applier
	sink    notify.Sink
	now     func() time.Time
}

// New constructs an Engine. sink may be nil (no events are emitted).
func New(log Log, applier Applier, sink notify.Sink) *Engine {
	if sink == nil {
		sink = notify.NopSink{}
	}
	return &Engine{log: log, applier: applier, sink: sink, now: time.Now}
}

// WithClock overrides the wall clock. For tests.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Propose appends a pending entry without touching the target. The entry
// waits for Approve or Reject.
func (e *Engine) Propose(ctx context.Context, entry lens.ChangelogEntry) (lens.ChangelogEntry, error) {
	entry.Status = lens.StatusPending
	recorded, err := e.log.AppendChangelog(ctx, entry)
	if err != nil {
		return lens.ChangelogEntry{}, fmt.Errorf("propose: %w", err)
	}
	slog.Info("change proposed",
		"workspace", recorded.WorkspaceID,
		"version", recorded.Version,
		"operation", string(recorded.Operation),
		"target", recorded.TargetID,
	)
	return recorded, nil
}

// RecordApplied appends an entry directly in applied status, for mutations
// that already happened (e.g. a changeset apply, which performs its upserts
// before recording). Emits an applied event.
func (e *Engine) RecordApplied(ctx context.Context, entry lens.ChangelogEntry) (lens.ChangelogEntry, error) {
	entry.Status = lens.StatusApplied
	now := e.now()
	entry.AppliedAt = &now
	recorded, err := e.log.AppendChangelog(ctx, entry)
	if err != nil {
		return lens.ChangelogEntry{}, fmt.Errorf("record applied: %w", err)
	}
	e.emit(ctx, "change_applied", recorded)
	return recorded, nil
}

// Approve moves a pending entry to applied and applies its after state to
// the target. The status transition is performed first: the guarded UPDATE
// is the serialization point, so two concurrent approvers cannot both apply.
func (e *Engine) Approve(ctx context.Context, id int64, appliedBy string) (lens.ChangelogEntry, error) {
	entry, err := e.log.GetChangelogEntry(ctx, id)
	if err != nil {
		return lens.ChangelogEntry{}, fmt.Errorf("approve: %w", err)
	}

	if err := e.log.TransitionChangelogStatus(ctx, id, lens.StatusPending, lens.StatusApplied, appliedBy); err != nil {
		return lens.ChangelogEntry{}, fmt.Errorf("approve: %w", err)
	}

	if err := e.applier.Apply(ctx, entry.TargetType, entry.TargetID, entry.AfterState); err != nil {
		return lens.ChangelogEntry{}, fmt.Errorf("approve: apply after state: %w", err)
	}

	applied, err := e.log.GetChangelogEntry(ctx, id)
	if err != nil {
		return lens.ChangelogEntry{}, fmt.Errorf("approve: reread: %w", err)
	}
	e.emit(ctx, "change_applied", applied)
	return applied, nil
}

// Reject moves a pending entry to rejected. A rejected proposal can never
// be applied; it must be resubmitted as a new entry.
func (e *Engine) Reject(ctx context.Context, id int64, rejectedBy string) (lens.ChangelogEntry, error) {
	if err := e.log.TransitionChangelogStatus(ctx, id, lens.StatusPending, lens.StatusRejected, rejectedBy); err != nil {
		return lens.ChangelogEntry{}, fmt.Errorf("reject: %w", err)
	}
	entry, err := e.log.GetChangelogEntry(ctx, id)
	if err != nil {
		return lens.ChangelogEntry{}, fmt.Errorf("reject: reread: %w", err)
	}
	e.emit(ctx, "change_rejected", entry)
	return entry, nil
}

// Undo reverts an applied entry by re-applying its recorded before state.
//
// Preconditions: status is applied and before state was recorded - an entry
// lacking before state can never be undone. The undo is recorded as a new
// changelog entry (history is extended, not rewritten); the original entry's
// status also moves to undone for query convenience.
func (e *Engine) Undo(ctx context.Context, id int64, actor lens.Actor, actorContext string) (lens.ChangelogEntry, error) {
	entry, err := e.log.GetChangelogEntry(ctx, id)
	if err != nil {
		return lens.ChangelogEntry{}, fmt.Errorf("undo: %w", err)
	}

	if entry.Status != lens.StatusApplied {
		return lens.ChangelogEntry{}, lens.NewUndoPrecondition(
			fmt.Sprintf("entry is %s, only applied entries can be undone", entry.Status), id)
	}
	if entry.BeforeState == "" {
		return lens.ChangelogEntry{}, lens.NewUndoPrecondition("entry has no before state", id)
	}

	// Claim the entry first: the guarded transition loses cleanly if a
	// concurrent undoer got there already.
	if err := e.log.TransitionChangelogStatus(ctx, id, lens.StatusApplied, lens.StatusUndone, actorContext); err != nil {
		return lens.ChangelogEntry{}, fmt.Errorf("undo: %w", err)
	}

	if err := e.applier.Apply(ctx, entry.TargetType, entry.TargetID, entry.BeforeState); err != nil {
		return lens.ChangelogEntry{}, fmt.Errorf("undo: apply before state: %w", err)
	}

	now := e.now()
	undoEntry, err := e.log.AppendChangelog(ctx, lens.ChangelogEntry{
		WorkspaceID:  entry.WorkspaceID,
		Operation:    lens.OpUndo,
		TargetType:   entry.TargetType,
		TargetID:     entry.TargetID,
		BeforeState:  entry.AfterState,
		AfterState:   entry.BeforeState,
		Actor:        actor,
		ActorContext: fmt.Sprintf("undo of version %d", entry.Version),
		Status:       lens.StatusApplied,
		AppliedAt:    &now,
	})
	if err != nil {
		return lens.ChangelogEntry{}, fmt.Errorf("undo: record: %w", err)
	}

	slog.Info("change undone",
		"workspace", entry.WorkspaceID,
		"version", entry.Version,
		"undo_version", undoEntry.Version,
	)

	undone, err := e.log.GetChangelogEntry(ctx, id)
	if err != nil {
		return lens.ChangelogEntry{}, fmt.Errorf("undo: reread: %w", err)
	}
	e.emit(ctx, "change_undone", undone)
	return undoEntry, nil
}

// Redo re-applies the after state of an undone entry as a fresh applied
// entry. The state machine has no undone -> applied edge, so redo extends
// history instead of reviving the original entry.
func (e *Engine) Redo(ctx context.Context, id int64, actor lens.Actor) (lens.ChangelogEntry, error) {
	entry, err := e.log.GetChangelogEntry(ctx, id)
	if err != nil {
		return lens.ChangelogEntry{}, fmt.Errorf("redo: %w", err)
	}
	if entry.Status != lens.StatusUndone {
		return lens.ChangelogEntry{}, lens.NewUndoPrecondition(
			fmt.Sprintf("entry is %s, only undone entries can be redone", entry.Status), id)
	}

	if err := e.applier.Apply(ctx, entry.TargetType, entry.TargetID, entry.AfterState); err != nil {
		return lens.ChangelogEntry{}, fmt.Errorf("redo: apply after state: %w", err)
	}

	now := e.now()
	redoEntry, err := e.log.AppendChangelog(ctx, lens.ChangelogEntry{
		WorkspaceID:  entry.WorkspaceID,
		Operation:    entry.Operation,
		TargetType:   entry.TargetType,
		TargetID:     entry.TargetID,
		BeforeState:  entry.BeforeState,
		AfterState:   entry.AfterState,
		Actor:        actor,
		ActorContext: fmt.Sprintf("redo of version %d", entry.Version),
		Status:       lens.StatusApplied,
		AppliedAt:    &now,
	})
	if err != nil {
		return lens.ChangelogEntry{}, fmt.Errorf("redo: record: %w", err)
	}
	e.emit(ctx, "change_applied", redoEntry)
	return redoEntry, nil
}

// emit publishes an outbound event for a changelog transition.
// Best-effort: the sink contract forbids blocking or error returns.
func (e *Engine) emit(ctx context.Context, eventType string, entry lens.ChangelogEntry) {
	e.sink.Publish(ctx, lens.Event{
		Type:        eventType,
		WorkspaceID: entry.WorkspaceID,
		ChangeID:    entry.ID,
		Operation:   entry.Operation,
		TargetType:  entry.TargetType,
		TargetID:    entry.TargetID,
		Actor:       entry.Actor,
	})
}
