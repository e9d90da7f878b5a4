package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mindlens/mindlens/internal/lens"
	"github.com/mindlens/mindlens/internal/resolver"
)

// ResolveOptions holds flags for the resolve command.
type ResolveOptions struct {
	*RootOptions
	Workspace   string
	SessionFile string
	Snapshot    bool
}

// NewResolveCommand creates the resolve command.
func NewResolveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ResolveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "resolve <profile-id>",
		Short: "Resolve the effective lens for a profile",
		Long: `Resolve the three override tiers into an effective lens.

The preset tier comes from the profile's active preset. Workspace overrides
are layered on with --workspace. Session overrides are ephemeral; supply
them from a YAML file with --session-file.

Example:
  mindlens resolve profile-1 --db ./lens.db
  mindlens resolve profile-1 --db ./lens.db --workspace ws-1 --session-file exp.yaml --snapshot`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Workspace, "workspace", "", "workspace id for tier-2 overrides")
	cmd.Flags().StringVar(&opts.SessionFile, "session-file", "", "YAML file of session overrides")
	cmd.Flags().BoolVar(&opts.Snapshot, "snapshot", false, "persist a content-addressed snapshot of the result")

	return cmd
}

func runResolve(opts *ResolveOptions, profileID string, cmd *cobra.Command) error {
	a, err := openApp(opts.RootOptions, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), ErrWriter: cmd.ErrOrStderr(), Verbose: opts.Verbose}

	sessionID := ""
	if opts.SessionFile != "" {
		if sessionID, err = loadSessionFile(a.sessions, opts.SessionFile); err != nil {
			return err
		}
		f.VerboseLog("loaded session overrides from %s (session %s)", opts.SessionFile, sessionID)
	}

	l, err := a.resolver.Resolve(cmd.Context(), profileID, opts.Workspace, sessionID)
	if err != nil {
		f.Error(err)
		return WrapExitError(GetExitCode(err), "resolve failed", err)
	}

	if opts.Snapshot {
		snap, err := resolver.Snapshot(cmd.Context(), a.store, l)
		if err != nil {
			f.Error(err)
			return WrapExitError(ExitFailure, "snapshot failed", err)
		}
		f.VerboseLog("snapshot %s (hash %s)", snap.ID, snap.EffectiveLensHash)
	}

	if opts.Format == "json" {
		return f.Success(l)
	}
	return f.Success(formatLensText(l))
}

// formatLensText renders an effective lens as an aligned text table.
func formatLensText(l *lens.EffectiveLens) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Lens %s\n", l.Hash)
	fmt.Fprintf(&b, "Profile: %s", l.ProfileID)
	if l.GlobalPresetName != "" {
		fmt.Fprintf(&b, " (preset %q)", l.GlobalPresetName)
	}
	if l.WorkspaceID != "" {
		fmt.Fprintf(&b, "  Workspace: %s", l.WorkspaceID)
	}
	if l.SessionID != "" {
		fmt.Fprintf(&b, "  Session: %s", l.SessionID)
	}
	b.WriteString("\n\n")
	for _, n := range l.Nodes {
		fmt.Fprintf(&b, "  %-28s %-10s %-9s w=%.1f  [%s]\n", n.NodeLabel, n.NodeType, n.State, n.Weight, n.Scope)
	}
	return strings.TrimRight(b.String(), "\n")
}
