package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mindlens/mindlens/internal/lens"
)

// VoteOptions holds flags for the vote command.
type VoteOptions struct {
	*RootOptions
	PreviewID   string
	Profile     string
	Session     string
	Variant     string
	PreviewType string
	Input       string
}

// NewVoteCommand creates the vote command.
func NewVoteCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VoteOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "vote <workspace-id>",
		Short: "Record a base-vs-lens preview vote",
		Long: `Record which side of a base-vs-lens preview was chosen. The input
text is stored only as a domain-separated hash.

Example:
  mindlens vote ws-1 --db ./lens.db --preview-id prev-7 --variant lens --input "draft headline"`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVote(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.PreviewID, "preview-id", "", "preview rendering id (required)")
	cmd.Flags().StringVar(&opts.Profile, "profile", "", "profile id the preview was resolved for")
	cmd.Flags().StringVar(&opts.Session, "session", "", "session id active during the preview")
	cmd.Flags().StringVar(&opts.Variant, "variant", "", "chosen variant (base|lens) (required)")
	cmd.Flags().StringVar(&opts.PreviewType, "preview-type", "copy", "preview type (e.g. copy, visual)")
	cmd.Flags().StringVar(&opts.Input, "input", "", "input text the preview rendered; stored hashed")
	_ = cmd.MarkFlagRequired("preview-id")
	_ = cmd.MarkFlagRequired("variant")

	return cmd
}

func runVote(opts *VoteOptions, workspaceID string, cmd *cobra.Command) error {
	variant := lens.PreviewVariant(opts.Variant)
	if variant != lens.VariantBase && variant != lens.VariantLens {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid variant %q: must be base or lens", opts.Variant))
	}

	a, err := openApp(opts.RootOptions, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), ErrWriter: cmd.ErrOrStderr(), Verbose: opts.Verbose}

	inputHash := ""
	if opts.Input != "" {
		inputHash = lens.InputHash(opts.Input)
	}

	vote, err := a.store.WritePreviewVote(cmd.Context(), lens.PreviewVote{
		PreviewID:     opts.PreviewID,
		WorkspaceID:   workspaceID,
		ProfileID:     opts.Profile,
		SessionID:     opts.Session,
		ChosenVariant: variant,
		PreviewType:   opts.PreviewType,
		InputTextHash: inputHash,
	})
	if err != nil {
		f.Error(err)
		return WrapExitError(GetExitCode(err), "vote failed", err)
	}

	if opts.Format == "json" {
		return f.Success(vote)
	}
	return f.Success(fmt.Sprintf("Recorded %s vote %s for preview %s", vote.ChosenVariant, vote.ID, vote.PreviewID))
}
