package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mindlens/mindlens/internal/lens"
)

// DiffOptions holds flags for the diff command.
type DiffOptions struct {
	*RootOptions
	Workspace   string
	SessionFile string
}

// NewDiffCommand creates the diff command.
func NewDiffCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DiffOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "diff <profile-id>",
		Short: "Diff a session resolution against its baseline",
		Long: `Compute the changeset between the session-scoped lens and the
baseline lens (same profile and workspace, no session tier).

Example:
  mindlens diff profile-1 --db ./lens.db --workspace ws-1 --session-file exp.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiff(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Workspace, "workspace", "", "workspace id for tier-2 overrides")
	cmd.Flags().StringVar(&opts.SessionFile, "session-file", "", "YAML file of session overrides (required)")
	_ = cmd.MarkFlagRequired("session-file")

	return cmd
}

func runDiff(opts *DiffOptions, profileID string, cmd *cobra.Command) error {
	a, err := openApp(opts.RootOptions, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), ErrWriter: cmd.ErrOrStderr(), Verbose: opts.Verbose}

	sessionID, err := loadSessionFile(a.sessions, opts.SessionFile)
	if err != nil {
		return err
	}

	cs, err := a.changeset.Create(cmd.Context(), profileID, sessionID, opts.Workspace)
	if err != nil {
		f.Error(err)
		return WrapExitError(GetExitCode(err), "diff failed", err)
	}

	if opts.Format == "json" {
		return f.Success(cs)
	}
	return f.Success(formatChangeSetText(cs))
}

func formatChangeSetText(cs *lens.ChangeSet) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Changeset %s\n", cs.ID)
	fmt.Fprintf(&b, "%s\n", cs.Summary)
	for _, c := range cs.Changes {
		fmt.Fprintf(&b, "  %-28s %s -> %s\n", c.NodeLabel, c.FromState, c.ToState)
	}
	return strings.TrimRight(b.String(), "\n")
}
