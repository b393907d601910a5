package cmd

import (
	"github.com/spf13/cobra"

	"github.com/fulmenhq/tmplcat/internal/pipeline"
)

func newUpdateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "update",
		Short: "Bump changed templates and regenerate the catalog index",
		Long: `Update compares HEAD with its parent (or lists every tracked file on the
first commit), bumps the patch version of each changed template whose
manifest version the commit did not already change, and rewrites the
catalog index when its content differs.

By default a commit counts as an author bump when the version value in the
manifest went up (bump.detection: structured). Set bump.detection: marker to
count any manifest diff that mentions "version:" instead, which also skips
edits to lines next to the version.

Manifests whose version is not MAJOR.MINOR.PATCH are left untouched.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE:         runUpdate,
	}
}

func runUpdate(cmd *cobra.Command, _ []string) error {
	ws, err := openWorkspace(cmd.Context(), cmd)
	if err != nil {
		return err
	}
	_, err = pipeline.Update(cmd.Context(), pipeline.Options{
		Config:  ws.cfg,
		Store:   ws.store,
		History: ws.history,
		NoOp:    ws.noOp,
		Out:     cmd.OutOrStdout(),
	})
	return err
}
