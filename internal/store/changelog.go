package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/mindlens/mindlens/internal/lens"
)

// maxVersionRetries bounds the version-assignment retry loop. With the
// single-connection pool, conflicts are only possible across processes
// sharing the database file.
const maxVersionRetries = 5

// AppendChangelog inserts a changelog entry, assigning the next version for
// its workspace atomically with the insert.
//
// The next version is max(existing)+1 computed inside the insert
// transaction; the UNIQUE(workspace_id, version) constraint is the final
// arbiter. A writer that loses the race retries with a recomputed version,
// so N concurrent appends for one workspace produce N distinct, contiguous
// versions. The CONFLICT is internal - callers never see it unless all
// retries are exhausted.
func (s *Store) AppendChangelog(ctx context.Context, entry lens.ChangelogEntry) (lens.ChangelogEntry, error) {
	if !entry.Actor.Valid() {
		return lens.ChangelogEntry{}, lens.NewInvalidArgument(fmt.Sprintf("malformed actor %q", entry.Actor))
	}
	if !lens.ValidOperationTarget(entry.Operation, entry.TargetType) {
		return lens.ChangelogEntry{}, lens.NewInvalidArgument(
			fmt.Sprintf("disallowed operation/target pairing %s/%s", entry.Operation, entry.TargetType))
	}
	if entry.Status == "" {
		entry.Status = lens.StatusPending
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}

	var lastErr error
	for attempt := 0; attempt < maxVersionRetries; attempt++ {
		inserted, err := s.tryAppendChangelog(ctx, entry)
		if err == nil {
			return inserted, nil
		}
		if !isUniqueConstraintErr(err) {
			return lens.ChangelogEntry{}, err
		}
		// Lost the version race - recompute and retry.
		lastErr = err
	}

	return lens.ChangelogEntry{}, fmt.Errorf("append changelog: %w: %v",
		lens.NewConflict("version race not resolved after retries"), lastErr)
}

func (s *Store) tryAppendChangelog(ctx context.Context, entry lens.ChangelogEntry) (lens.ChangelogEntry, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return lens.ChangelogEntry{}, fmt.Errorf("append changelog: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	var next int64
	if err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(version), 0) + 1 FROM graph_changelog WHERE workspace_id = ?
	`, entry.WorkspaceID).Scan(&next); err != nil {
		return lens.ChangelogEntry{}, fmt.Errorf("append changelog: next version: %w", err)
	}

	var appliedAt any
	if entry.AppliedAt != nil {
		appliedAt = timeRFC3339(*entry.AppliedAt)
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO graph_changelog
		(workspace_id, version, operation, target_type, target_id,
		 before_state, after_state, actor, actor_context, status,
		 created_at, applied_at, applied_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		entry.WorkspaceID,
		next,
		string(entry.Operation),
		string(entry.TargetType),
		entry.TargetID,
		nullable(entry.BeforeState),
		entry.AfterState,
		string(entry.Actor),
		nullable(entry.ActorContext),
		string(entry.Status),
		timeRFC3339(entry.CreatedAt),
		appliedAt,
		nullable(entry.AppliedBy),
	)
	if err != nil {
		return lens.ChangelogEntry{}, fmt.Errorf("append changelog: insert: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return lens.ChangelogEntry{}, fmt.Errorf("append changelog: last insert id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return lens.ChangelogEntry{}, fmt.Errorf("append changelog: commit: %w", err)
	}

	entry.ID = id
	entry.Version = next
	return entry, nil
}

// isUniqueConstraintErr reports whether err is a SQLite UNIQUE violation.
func isUniqueConstraintErr(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// GetChangelogEntry returns the entry with the given row id.
func (s *Store) GetChangelogEntry(ctx context.Context, id int64) (lens.ChangelogEntry, error) {
	entry, err := scanChangelogRow(s.db.QueryRowContext(ctx, `
		SELECT id, workspace_id, version, operation, target_type, target_id,
		       before_state, after_state, actor, actor_context, status,
		       created_at, applied_at, applied_by
		FROM graph_changelog WHERE id = ?
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return lens.ChangelogEntry{}, lens.NewNotFound("changelog entry", fmt.Sprintf("%d", id))
	}
	if err != nil {
		return lens.ChangelogEntry{}, fmt.Errorf("get changelog entry: %w", err)
	}
	return entry, nil
}

// GetChangelogEntryByVersion returns the entry at (workspace, version).
func (s *Store) GetChangelogEntryByVersion(ctx context.Context, workspaceID string, version int64) (lens.ChangelogEntry, error) {
	entry, err := scanChangelogRow(s.db.QueryRowContext(ctx, `
		SELECT id, workspace_id, version, operation, target_type, target_id,
		       before_state, after_state, actor, actor_context, status,
		       created_at, applied_at, applied_by
		FROM graph_changelog WHERE workspace_id = ? AND version = ?
	`, workspaceID, version))
	if errors.Is(err, sql.ErrNoRows) {
		return lens.ChangelogEntry{}, lens.NewNotFound("changelog entry", fmt.Sprintf("%s@%d", workspaceID, version))
	}
	if err != nil {
		return lens.ChangelogEntry{}, fmt.Errorf("get changelog entry by version: %w", err)
	}
	return entry, nil
}

// TransitionChangelogStatus moves an entry from one status to another.
//
// The WHERE clause pins the expected from-status, so a concurrent transition
// loses cleanly: zero rows affected surfaces as a CONFLICT for the engine to
// re-read and re-evaluate. Validity of the transition itself is checked
// against the state machine before touching the row.
func (s *Store) TransitionChangelogStatus(ctx context.Context, id int64, from, to lens.ChangeStatus, appliedBy string) error {
	if !lens.CanTransition(from, to) {
		return lens.NewInvalidArgument(fmt.Sprintf("invalid status transition %s -> %s", from, to))
	}

	var appliedAt any
	if to == lens.StatusApplied {
		appliedAt = timeRFC3339(s.now())
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE graph_changelog
		SET status = ?,
		    applied_at = COALESCE(?, applied_at),
		    applied_by = COALESCE(?, applied_by)
		WHERE id = ? AND status = ?
	`, string(to), appliedAt, nullable(appliedBy), id, string(from))
	if err != nil {
		return fmt.Errorf("transition changelog status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("transition changelog status: rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return lens.NewConflict(fmt.Sprintf("entry %d not in status %s", id, from))
	}
	return nil
}

// MaxVersion returns the highest assigned version for a workspace, 0 if none.
func (s *Store) MaxVersion(ctx context.Context, workspaceID string) (int64, error) {
	var max int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(version), 0) FROM graph_changelog WHERE workspace_id = ?
	`, workspaceID).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("max version: %w", err)
	}
	return max, nil
}

// ListChangelog returns entries matching the filter in version order.
func (s *Store) ListChangelog(ctx context.Context, filter ChangelogFilter) ([]lens.ChangelogEntry, error) {
	query, args, err := filter.compile()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list changelog: %w", err)
	}
	defer rows.Close()

	entries := []lens.ChangelogEntry{}
	for rows.Next() {
		entry, err := scanChangelogRow(rows)
		if err != nil {
			return nil, fmt.Errorf("list changelog: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate changelog: %w", err)
	}
	return entries, nil
}

func scanChangelogRow(row rowScanner) (lens.ChangelogEntry, error) {
	var entry lens.ChangelogEntry
	var operation, targetType, actor, status, createdAt string
	var beforeState, actorContext, appliedAt, appliedBy sql.NullString

	if err := row.Scan(
		&entry.ID,
		&entry.WorkspaceID,
		&entry.Version,
		&operation,
		&targetType,
		&entry.TargetID,
		&beforeState,
		&entry.AfterState,
		&actor,
		&actorContext,
		&status,
		&createdAt,
		&appliedAt,
		&appliedBy,
	); err != nil {
		return lens.ChangelogEntry{}, err
	}

	entry.Operation = lens.Operation(operation)
	entry.TargetType = lens.TargetType(targetType)
	entry.BeforeState = beforeState.String
	entry.Actor = lens.Actor(actor)
	entry.ActorContext = actorContext.String
	entry.Status = lens.ChangeStatus(status)
	entry.AppliedBy = appliedBy.String

	var err error
	if entry.CreatedAt, err = parseTime(createdAt); err != nil {
		return lens.ChangelogEntry{}, err
	}
	if appliedAt.Valid {
		t, err := parseTime(appliedAt.String)
		if err != nil {
			return lens.ChangelogEntry{}, err
		}
		entry.AppliedAt = &t
	}
	return entry, nil
}
