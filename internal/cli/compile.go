package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mindlens/mindlens/internal/compiler"
	"github.com/mindlens/mindlens/internal/lens"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Workspace   string
	SessionFile string
	Target      string
	Composition bool
	Receipt     bool
	ExecutionID string
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <profile-id>",
		Short: "Compile the effective lens for an output target",
		Long: `Resolve the effective lens and compile it into target-shaped
prompt context. An empty or unknown --target falls back to the default
compiler.

Example:
  mindlens compile profile-1 --db ./lens.db --target copy
  mindlens compile profile-1 --db ./lens.db --workspace ws-1 --composition`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Workspace, "workspace", "", "workspace id for tier-2 overrides")
	cmd.Flags().StringVar(&opts.SessionFile, "session-file", "", "YAML file of session overrides")
	cmd.Flags().StringVar(&opts.Target, "target", "", "compile target (copy|visual); empty uses the default compiler")
	cmd.Flags().BoolVar(&opts.Composition, "composition", false, "emit the prioritized composition stack instead of prompt context")
	cmd.Flags().BoolVar(&opts.Receipt, "receipt", false, "record a receipt for this compile (requires --workspace)")
	cmd.Flags().StringVar(&opts.ExecutionID, "execution-id", "", "execution id for the receipt (defaults to a new UUID)")

	return cmd
}

func runCompile(opts *CompileOptions, profileID string, cmd *cobra.Command) error {
	if opts.Receipt && opts.Workspace == "" {
		return NewExitError(ExitCommandError, "--receipt requires --workspace")
	}

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
	}

	l, err := a.resolver.Resolve(cmd.Context(), profileID, opts.Workspace, sessionID)
	if err != nil {
		f.Error(err)
		return WrapExitError(GetExitCode(err), "compile failed", err)
	}

	if opts.Composition {
		comp := compiler.Compile(l)
		if opts.Format == "json" {
			return f.Success(comp)
		}
		return f.Success(formatCompositionText(comp))
	}

	compiled := a.registry.Compile(l, opts.Target)

	if opts.Receipt {
		if err := recordCompileReceipt(opts, cmd, a, l, compiled); err != nil {
			f.Error(err)
			return WrapExitError(ExitFailure, "receipt failed", err)
		}
	}

	if opts.Format == "json" {
		return f.Success(compiled)
	}
	return f.Success(compiled.SystemPromptAdditions)
}

// recordCompileReceipt writes one immutable receipt row for this compile.
// Triggered nodes are the included node ids, so later analysis can tie an
// execution back to the exact lens content that shaped it.
func recordCompileReceipt(opts *CompileOptions, cmd *cobra.Command, a *app, l *lens.EffectiveLens, compiled compiler.CompiledContext) error {
	var triggered []string
	for _, n := range l.Nodes {
		if n.State != lens.StateOff {
			triggered = append(triggered, n.NodeID)
		}
	}
	triggeredJSON, err := json.Marshal(triggered)
	if err != nil {
		return err
	}

	executionID := opts.ExecutionID
	if executionID == "" {
		executionID = uuid.NewString()
	}

	receipt, err := a.store.WriteReceipt(cmd.Context(), lens.Receipt{
		ExecutionID:        executionID,
		WorkspaceID:        opts.Workspace,
		EffectiveLensHash:  l.Hash,
		TriggeredNodesJSON: string(triggeredJSON),
		LensOutput:         compiled.SystemPromptAdditions,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "receipt %s recorded for execution %s\n", receipt.ID, executionID)
	return nil
}

func formatCompositionText(comp compiler.LensComposition) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Composition for lens %s\n", comp.LensHash)
	for _, e := range comp.Entries {
		locked := ""
		if e.Locked {
			locked = " locked"
		}
		fmt.Fprintf(&b, "  p%-2d w=%.2f%s  %s (%s)\n", e.Priority, e.Weight, locked, e.Label, strings.Join(e.NodeIDs, ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}
