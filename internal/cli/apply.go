package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mindlens/mindlens/internal/lens"
)

// ApplyOptions holds flags for the apply command.
type ApplyOptions struct {
	*RootOptions
	Workspace   string
	SessionFile string
	Target      string
	Actor       string
}

// NewApplyCommand creates the apply command.
func NewApplyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ApplyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "apply <profile-id>",
		Short: "Promote session overrides into a durable tier",
		Long: `Diff the session resolution against its baseline and apply the
resulting changeset to the chosen target tier. Workspace and preset applies
are recorded in the changelog as one batch entry.

Example:
  mindlens apply profile-1 --db ./lens.db --workspace ws-1 --session-file exp.yaml --target workspace`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Workspace, "workspace", "", "workspace id for tier-2 overrides")
	cmd.Flags().StringVar(&opts.SessionFile, "session-file", "", "YAML file of session overrides (required)")
	cmd.Flags().StringVar(&opts.Target, "target", string(lens.ApplyWorkspace), "apply target (session_only|workspace|preset)")
	cmd.Flags().StringVar(&opts.Actor, "actor", string(lens.ActorUser), "recording actor (user|llm|system|playbook)")
	_ = cmd.MarkFlagRequired("session-file")

	return cmd
}

func runApply(opts *ApplyOptions, profileID string, cmd *cobra.Command) error {
	target := lens.ApplyTarget(opts.Target)
	if !target.Valid() {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid target %q: must be session_only, workspace or preset", opts.Target))
	}
	actor := lens.Actor(opts.Actor)
	if !actor.Valid() {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid actor %q", opts.Actor))
	}

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
		return WrapExitError(GetExitCode(err), "apply failed", err)
	}
	if len(cs.Changes) == 0 {
		return f.Success("No changes to apply.")
	}

	if err := a.changeset.Apply(cmd.Context(), cs, target, opts.Workspace, actor); err != nil {
		f.Error(err)
		return WrapExitError(GetExitCode(err), "apply failed", err)
	}

	if opts.Format == "json" {
		return f.Success(cs)
	}
	return f.Success(fmt.Sprintf("Applied to %s: %s", target, cs.Summary))
}
