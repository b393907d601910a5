package cmd

import (
	"github.com/spf13/cobra"

	"github.com/fulmenhq/tmplcat/internal/validate"
)

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check that changed YAML files parse",
		Long: `Validate parses every YAML file changed by the latest commit that still
exists in the working tree, reports every failure on stderr, and lists the
templates the commit touched. It never writes.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE:         runValidate,
	}
}

func runValidate(cmd *cobra.Command, _ []string) error {
	ws, err := openWorkspace(cmd.Context(), cmd)
	if err != nil {
		return err
	}
	v := &validate.Validator{
		Store:        ws.store,
		ManifestFile: ws.cfg.Layout.ManifestFile,
		Exclude:      ws.cfg.Templates.Exclude,
		Patterns:     ws.cfg.Validate.Patterns,
		Out:          cmd.OutOrStdout(),
		ErrOut:       cmd.ErrOrStderr(),
		NoColor:      ws.noColor,
	}
	_, err = v.Run(cmd.Context(), ws.history)
	return err
}
