package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mindlens/mindlens/internal/lens"
)

// UndoOptions holds flags for the undo and redo commands.
type UndoOptions struct {
	*RootOptions
	Actor string
}

// NewUndoCommand creates the undo command.
func NewUndoCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &UndoOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "undo <workspace-id> <version>",
		Short: "Undo an applied changelog entry",
		Long: `Revert an applied entry by re-applying its recorded before state.
The undo is recorded as a new changelog entry; history is extended, never
rewritten.

Example:
  mindlens undo ws-1 7 --db ./lens.db`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUndoRedo(opts, args[0], args[1], cmd, false)
		},
	}

	cmd.Flags().StringVar(&opts.Actor, "actor", string(lens.ActorUser), "recording actor")

	return cmd
}

// NewRedoCommand creates the redo command.
func NewRedoCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &UndoOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "redo <workspace-id> <version>",
		Short: "Redo an undone changelog entry",
		Long: `Re-apply the after state of an undone entry as a fresh applied
entry.

Example:
  mindlens redo ws-1 7 --db ./lens.db`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUndoRedo(opts, args[0], args[1], cmd, true)
		},
	}

	cmd.Flags().StringVar(&opts.Actor, "actor", string(lens.ActorUser), "recording actor")

	return cmd
}

func runUndoRedo(opts *UndoOptions, workspaceID, versionArg string, cmd *cobra.Command, redo bool) error {
	version, err := strconv.ParseInt(versionArg, 10, 64)
	if err != nil || version < 1 {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid version %q", versionArg))
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

	entry, err := a.store.GetChangelogEntryByVersion(cmd.Context(), workspaceID, version)
	if err != nil {
		f.Error(err)
		return WrapExitError(GetExitCode(err), "lookup failed", err)
	}

	var recorded lens.ChangelogEntry
	if redo {
		recorded, err = a.changelog.Redo(cmd.Context(), entry.ID, actor)
	} else {
		recorded, err = a.changelog.Undo(cmd.Context(), entry.ID, actor, fmt.Sprintf("cli %s", actor))
	}
	if err != nil {
		f.Error(err)
		verb := "undo"
		if redo {
			verb = "redo"
		}
		return WrapExitError(GetExitCode(err), verb+" failed", err)
	}

	if opts.Format == "json" {
		return f.Success(recorded)
	}
	verb := "Undid"
	if redo {
		verb = "Redid"
	}
	return f.Success(fmt.Sprintf("%s version %d of workspace %s (recorded as version %d)",
		verb, version, workspaceID, recorded.Version))
}
