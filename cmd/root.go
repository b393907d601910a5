package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/fulmenhq/tmplcat/internal/catalog"
	"github.com/fulmenhq/tmplcat/internal/manifest"
	"github.com/fulmenhq/tmplcat/internal/validate"
	"github.com/fulmenhq/tmplcat/internal/vcs"
	"github.com/fulmenhq/tmplcat/pkg/buildinfo"
	"github.com/fulmenhq/tmplcat/pkg/config"
	"github.com/fulmenhq/tmplcat/pkg/exitcode"
	"github.com/fulmenhq/tmplcat/pkg/ignore"
	"github.com/fulmenhq/tmplcat/pkg/logger"
)

// newRootCommand creates a fresh root command instance.
// Tests build isolated command trees from it instead of sharing rootCmd.
func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tmplcat",
		Short: "Keep a template catalog's versions and index in sync",
		Long: `tmplcat maintains a catalog of versioned templates, one per top-level
directory with a manifest.yaml. After a merge it bumps the patch version of
every changed template the author did not bump and regenerates info.yaml.
Before a merge it checks that every changed YAML file still parses.

Examples:
   tmplcat update             # Bump changed templates, rebuild info.yaml
   tmplcat update --no-op     # Show what update would change
   tmplcat validate           # Check changed YAML files
   tmplcat version            # Show version`,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			initializeLogger(cmd)
		},
	}

	cmd.PersistentFlags().String("root", ".", "Repository root (any directory inside the worktree)")
	cmd.PersistentFlags().String("config", "", "Config file (default: <root>/"+config.ProjectConfigName+" when present)")
	cmd.PersistentFlags().String("log-level", "info", "Set log level (trace|debug|info|warn|error)")
	cmd.PersistentFlags().Bool("json", false, "Output logs in JSON format")
	cmd.PersistentFlags().Bool("no-color", false, "Disable colored output")
	cmd.PersistentFlags().Bool("no-op", false, "Report changes without writing any file")

	cmd.Version = buildinfo.Version()
	cmd.SetVersionTemplate("tmplcat {{.Version}}\n")

	return cmd
}

// registerSubcommands adds all subcommands to the root command.
func registerSubcommands(cmd *cobra.Command) {
	cmd.AddCommand(newUpdateCommand())
	cmd.AddCommand(newValidateCommand())
	cmd.AddCommand(newVersionCommand())
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = newRootCommand()

func init() {
	registerSubcommands(rootCmd)
}

// Execute runs the root command and exits with a code matching the failure.
// This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		code := exitCodeFor(err)
		logger.Error("Command execution failed", logger.Err(err), logger.String("kind", exitcode.String(code)))
		os.Exit(code)
	}
}

// initializeLogger sets up the logger based on command flags
func initializeLogger(cmd *cobra.Command) {
	logLevelStr, _ := cmd.Flags().GetString("log-level")
	jsonLogs, _ := cmd.Flags().GetBool("json")
	noColor, _ := cmd.Flags().GetBool("no-color")
	noOp, _ := cmd.Flags().GetBool("no-op")

	cfg := logger.Config{
		Level:     logger.ParseLevel(logLevelStr),
		UseColor:  !noColor,
		JSON:      jsonLogs,
		Component: "tmplcat",
		NoOp:      noOp,
		Output:    cmd.ErrOrStderr(),
	}

	if err := logger.Initialize(cfg); err != nil {
		_, _ = os.Stderr.WriteString("Failed to initialize logger: " + err.Error() + "\n")
		os.Exit(exitcode.ConfigError)
	}
}

// configError marks failures to load or validate configuration.
type configError struct{ err error }

func (e *configError) Error() string { return "configuration: " + e.err.Error() }

func (e *configError) Unwrap() error { return e.err }

// workspace is what every catalog command needs: configuration, the
// repository history and the working tree.
type workspace struct {
	cfg     *config.Config
	history vcs.History
	store   *catalog.Store
	noOp    bool
	noColor bool
}

func openWorkspace(ctx context.Context, cmd *cobra.Command) (*workspace, error) {
	rootFlag, _ := cmd.Flags().GetString("root")
	configFile, _ := cmd.Flags().GetString("config")
	noOp, _ := cmd.Flags().GetBool("no-op")
	noColor, _ := cmd.Flags().GetBool("no-color")

	root, err := filepath.Abs(rootFlag)
	if err != nil {
		return nil, fmt.Errorf("resolving root %s: %w", rootFlag, err)
	}

	cfg, err := config.Load(config.LoadOptions{Root: root, File: configFile})
	if err != nil {
		return nil, &configError{err: err}
	}

	history, err := vcs.Open(ctx, root, cfg.VCS.Backend)
	if err != nil {
		return nil, err
	}
	logger.Debug("workspace ready",
		logger.String("repository", history.Root()),
		logger.String("backend", cfg.VCS.Backend),
		logger.String("detection", cfg.Bump.Detection))

	store := catalog.NewStore(history.Root())
	if cfg.Templates.RespectIgnoreFiles {
		m, err := ignore.NewMatcher(history.Root())
		if err != nil {
			return nil, fmt.Errorf("reading ignore files: %w", err)
		}
		store.SetIgnore(m)
	}

	return &workspace{
		cfg:     cfg,
		history: history,
		store:   store,
		noOp:    noOp,
		noColor: noColor,
	}, nil
}

// exitCodeFor maps an error returned by a command to a process exit code.
func exitCodeFor(err error) int {
	var (
		failed   *validate.FailedError
		parseErr *manifest.ParseError
		cfgErr   *configError
		pathErr  *fs.PathError
		linkErr  *os.LinkError
	)
	switch {
	case err == nil:
		return exitcode.Success
	case errors.As(err, &failed), errors.As(err, &parseErr):
		return exitcode.ValidationError
	case errors.Is(err, vcs.ErrHistory):
		return exitcode.VCSError
	case errors.As(err, &cfgErr):
		return exitcode.ConfigError
	case errors.As(err, &pathErr), errors.As(err, &linkErr):
		return exitcode.FileSystemError
	default:
		return exitcode.GeneralError
	}
}
