package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mindlens/mindlens/internal/lens"
	"github.com/mindlens/mindlens/internal/store"
)

// LogOptions holds flags for the log command.
type LogOptions struct {
	*RootOptions
	Actor        string
	Status       string
	TargetType   string
	SinceVersion int64
	Limit        int
}

// NewLogCommand creates the log command.
func NewLogCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LogOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "log <workspace-id>",
		Short: "List changelog entries for a workspace",
		Long: `List the versioned changelog for a workspace, oldest first.
Filters narrow by actor, status, target type or version floor.

Example:
  mindlens log ws-1 --db ./lens.db --status applied --limit 20`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLog(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Actor, "actor", "", "filter by actor (user|llm|system|playbook)")
	cmd.Flags().StringVar(&opts.Status, "status", "", "filter by status (pending|applied|rejected|undone)")
	cmd.Flags().StringVar(&opts.TargetType, "target-type", "", "filter by target type")
	cmd.Flags().Int64Var(&opts.SinceVersion, "since-version", 0, "only entries with version > N")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum entries to return")

	return cmd
}

func runLog(opts *LogOptions, workspaceID string, cmd *cobra.Command) error {
	a, err := openApp(opts.RootOptions, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), ErrWriter: cmd.ErrOrStderr(), Verbose: opts.Verbose}

	entries, err := a.store.ListChangelog(cmd.Context(), store.ChangelogFilter{
		WorkspaceID:  workspaceID,
		Actor:        lens.Actor(opts.Actor),
		Status:       lens.ChangeStatus(opts.Status),
		TargetType:   lens.TargetType(opts.TargetType),
		SinceVersion: opts.SinceVersion,
		Limit:        opts.Limit,
	})
	if err != nil {
		f.Error(err)
		return WrapExitError(GetExitCode(err), "log failed", err)
	}

	if opts.Format == "json" {
		return f.Success(entries)
	}
	return f.Success(formatChangelogText(workspaceID, entries))
}

func formatChangelogText(workspaceID string, entries []lens.ChangelogEntry) string {
	if len(entries) == 0 {
		return fmt.Sprintf("No changelog entries for workspace %s.", workspaceID)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Changelog for workspace %s\n", workspaceID)
	for _, e := range entries {
		applied := ""
		if e.AppliedAt != nil {
			applied = "  applied " + e.AppliedAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(&b, "  v%-4d %-8s %-18s %-10s %s%s\n",
			e.Version, e.Operation, e.TargetType, e.Status, e.Actor, applied)
		if e.ActorContext != "" {
			fmt.Fprintf(&b, "        %s\n", e.ActorContext)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
