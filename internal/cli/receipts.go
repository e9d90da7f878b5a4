package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mindlens/mindlens/internal/lens"
)

// ReceiptsOptions holds flags for the receipts command.
type ReceiptsOptions struct {
	*RootOptions
	Limit int
}

// NewReceiptsCommand creates the receipts command.
func NewReceiptsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReceiptsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "receipts <workspace-id>",
		Short: "List compile receipts for a workspace",
		Long: `List the receipts recorded by compile --receipt, newest first.
Each receipt pins the lens hash and triggered nodes of one execution.

Example:
  mindlens receipts ws-1 --db ./lens.db --limit 10`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReceipts(opts, args[0], cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum receipts to return")

	return cmd
}

func runReceipts(opts *ReceiptsOptions, workspaceID string, cmd *cobra.Command) error {
	a, err := openApp(opts.RootOptions, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), ErrWriter: cmd.ErrOrStderr(), Verbose: opts.Verbose}

	receipts, err := a.store.ListReceipts(cmd.Context(), workspaceID, opts.Limit)
	if err != nil {
		f.Error(err)
		return WrapExitError(GetExitCode(err), "receipts failed", err)
	}

	if opts.Format == "json" {
		return f.Success(receipts)
	}
	return f.Success(formatReceiptsText(workspaceID, receipts))
}

func formatReceiptsText(workspaceID string, receipts []lens.Receipt) string {
	if len(receipts) == 0 {
		return fmt.Sprintf("No receipts for workspace %s.", workspaceID)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Receipts for workspace %s\n", workspaceID)
	for _, r := range receipts {
		fmt.Fprintf(&b, "  %s  exec %-12s lens %.12s  %s\n",
			r.CreatedAt.UTC().Format(time.RFC3339), r.ExecutionID, r.EffectiveLensHash, r.DiffSummary)
	}
	return strings.TrimRight(b.String(), "\n")
}
