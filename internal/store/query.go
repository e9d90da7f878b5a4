package store

import (
	"fmt"
	"strings"

	"github.com/mindlens/mindlens/internal/lens"
)

// ChangelogFilter selects changelog entries for listing and time-travel
// queries. Zero values mean "no constraint" except WorkspaceID, which is
// required - the changelog is ordered per workspace.
type ChangelogFilter struct {
	WorkspaceID  string
	Actor        lens.Actor
	Status       lens.ChangeStatus
	TargetType   lens.TargetType
	SinceVersion int64 // entries with version > SinceVersion
	Limit        int
}

// compile produces parameterized SQL for the filter.
//
// All values are parameterized, never interpolated. Every query carries an
// ORDER BY with a deterministic tiebreaker so listings are stable across
// runs.
func (f ChangelogFilter) compile() (string, []any, error) {
	if f.WorkspaceID == "" {
		return "", nil, lens.NewInvalidArgument("changelog filter requires a workspace id")
	}
	if f.Actor != "" && !f.Actor.Valid() {
		return "", nil, lens.NewInvalidArgument(fmt.Sprintf("malformed actor %q", f.Actor))
	}

	where := []string{"workspace_id = ?"}
	params := []any{f.WorkspaceID}

	if f.Actor != "" {
		where = append(where, "actor = ?")
		params = append(params, string(f.Actor))
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		params = append(params, string(f.Status))
	}
	if f.TargetType != "" {
		where = append(where, "target_type = ?")
		params = append(params, string(f.TargetType))
	}
	if f.SinceVersion > 0 {
		where = append(where, "version > ?")
		params = append(params, f.SinceVersion)
	}

	var limit string
	if f.Limit > 0 {
		limit = " LIMIT ?"
		params = append(params, f.Limit)
	}

	query := fmt.Sprintf(`
		SELECT id, workspace_id, version, operation, target_type, target_id,
		       before_state, after_state, actor, actor_context, status,
		       created_at, applied_at, applied_by
		FROM graph_changelog
		WHERE %s
		ORDER BY version ASC, id ASC%s`,
		strings.Join(where, " AND "), limit)

	return query, params, nil
}
