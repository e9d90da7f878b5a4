package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mindlens/mindlens/internal/preset"
)

// ImportOptions holds flags for the import command.
type ImportOptions struct {
	*RootOptions
	Activate bool
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ImportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import <definition.cue>",
		Short: "Import a CUE preset definition",
		Long: `Parse a CUE preset definition and write it into the store:
catalog nodes first, then the preset and its node states.

Example:
  mindlens import presets/brand-voice.cue --db ./lens.db --activate`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Activate, "activate", false, "make the imported preset the profile's active preset")

	return cmd
}

func runImport(opts *ImportOptions, path string, cmd *cobra.Command) error {
	def, err := preset.LoadFile(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load definition", err)
	}

	a, err := openApp(opts.RootOptions, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), ErrWriter: cmd.ErrOrStderr(), Verbose: opts.Verbose}

	imported, err := preset.Import(cmd.Context(), a.store, def, opts.Activate)
	if err != nil {
		f.Error(err)
		return WrapExitError(GetExitCode(err), "import failed", err)
	}

	if opts.Format == "json" {
		return f.Success(imported)
	}
	status := "inactive"
	if imported.Active {
		status = "active"
	}
	return f.Success(fmt.Sprintf("Imported preset %q (%s) for profile %s: %d nodes, %d catalog entries",
		imported.Name, status, imported.ProfileID, len(def.Nodes), len(def.Catalog)))
}
