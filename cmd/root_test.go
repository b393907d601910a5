package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fulmenhq/tmplcat/internal/manifest"
	"github.com/fulmenhq/tmplcat/internal/validate"
	"github.com/fulmenhq/tmplcat/internal/vcs"
	"github.com/fulmenhq/tmplcat/pkg/exitcode"
)

// execRoot runs a fresh command tree and captures stdout and stderr apart.
func execRoot(t *testing.T, args []string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	registerSubcommands(cmd)

	var outBuf, errBuf bytes.Buffer
	cmd.SetOut(&outBuf)
	cmd.SetErr(&errBuf)
	cmd.SetArgs(append([]string{"--log-level", "error", "--no-color"}, args...))
	err := cmd.Execute()
	return outBuf.String(), errBuf.String(), err
}

// initCatalog creates a repository with the given files in one commit.
func initCatalog(t *testing.T, files map[string]string) (string, *git.Repository) {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	commitFiles(t, dir, repo, files, "initial")
	return dir, repo
}

func commitFiles(t *testing.T, dir string, repo *git.Repository, files map[string]string, msg string) {
	t.Helper()
	for p, c := range files {
		full := filepath.Join(dir, filepath.FromSlash(p))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(c), 0o644))
	}
	wt, err := repo.Worktree()
	require.NoError(t, err)
	require.NoError(t, wt.AddWithOptions(&git.AddOptions{All: true}))
	sig := &object.Signature{Name: "Catalog Bot", Email: "bot@example.com", When: time.Now()}
	_, err = wt.Commit(msg, &git.CommitOptions{Author: sig, Committer: sig})
	require.NoError(t, err)
}

func TestInitializeLogger(t *testing.T) {
	for _, level := range []string{"info", "debug", "invalid"} {
		cmd := &cobra.Command{}
		cmd.Flags().String("log-level", level, "")
		cmd.Flags().Bool("json", false, "")
		cmd.Flags().Bool("no-color", true, "")
		cmd.Flags().Bool("no-op", false, "")

		initializeLogger(cmd)
	}
}

func TestUpdateCommand(t *testing.T) {
	dir, _ := initCatalog(t, map[string]string{
		"web/manifest.yaml": "name: Web\nversion: 1.0.0\n",
		"api/manifest.yaml": "name: API\nversion: 0.1.0\n",
	})

	out, _, err := execRoot(t, []string{"--root", dir, "update"})
	require.NoError(t, err)
	assert.Equal(t,
		"Bumped api version: 0.1.0 -> 0.1.1\n"+
			"Bumped web version: 1.0.0 -> 1.0.1\n"+
			"Updated info.yaml\n", out)

	index, err := os.ReadFile(filepath.Join(dir, "info.yaml"))
	require.NoError(t, err)
	assert.Equal(t, `templates:
  - id: api
    name: API
    description: null
    version: 0.1.1
    tags: []
    keywords: []
  - id: web
    name: Web
    description: null
    version: 1.0.1
    tags: []
    keywords: []
`, string(index))
}

func TestUpdateCommandNoOp(t *testing.T) {
	dir, _ := initCatalog(t, map[string]string{"web/manifest.yaml": "version: 1.0.0\n"})

	out, _, err := execRoot(t, []string{"--root", dir, "--no-op", "update"})
	require.NoError(t, err)
	assert.Contains(t, out, "Would bump web version: 1.0.0 -> 1.0.1")
	_, statErr := os.Stat(filepath.Join(dir, "info.yaml"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestUpdateCommandFromSubdirectory(t *testing.T) {
	dir, _ := initCatalog(t, map[string]string{"web/manifest.yaml": "version: 1.0.0\n"})

	_, _, err := execRoot(t, []string{"--root", filepath.Join(dir, "web"), "update"})
	require.NoError(t, err)
	_, statErr := os.Stat(filepath.Join(dir, "info.yaml"))
	assert.NoError(t, statErr)
}

func TestValidateCommand(t *testing.T) {
	dir, repo := initCatalog(t, map[string]string{
		"web/manifest.yaml": "version: 1.0.0\n",
		"api/manifest.yaml": "version: 1.0.0\n",
	})
	commitFiles(t, dir, repo, map[string]string{"web/extra.yaml": "a: 1\n"}, "extra")

	out, stderr, err := execRoot(t, []string{"--root", dir, "validate"})
	require.NoError(t, err)
	assert.Equal(t, "Validated: web\n", out)
	assert.Empty(t, stderr)

	commitFiles(t, dir, repo, map[string]string{"api/broken.yml": "a: [\n"}, "broken")
	out, stderr, err = execRoot(t, []string{"--root", dir, "validate"})
	require.Error(t, err)
	assert.Empty(t, out)
	assert.Contains(t, stderr, "ERROR: api/broken.yml: ")
	assert.Equal(t, exitcode.ValidationError, exitCodeFor(err))
}

func TestConfigFileIsHonoured(t *testing.T) {
	dir, _ := initCatalog(t, map[string]string{
		".tmplcat.yaml":  "layout:\n  manifest_file: meta.yaml\n  index_file: catalog.yaml\ntemplates:\n  exclude: [skip]\n",
		"web/meta.yaml":  "version: 2.0.0\n",
		"web/README.md":  "# web\n",
		"skip/meta.yaml": "version: 9.9.9\n",
	})

	out, _, err := execRoot(t, []string{"--root", dir, "update"})
	require.NoError(t, err)
	assert.Equal(t, "Bumped web version: 2.0.0 -> 2.0.1\nUpdated catalog.yaml\n", out)
}

func TestBadConfigIsConfigError(t *testing.T) {
	dir, _ := initCatalog(t, map[string]string{"web/manifest.yaml": "version: 1.0.0\n"})
	cfgPath := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("bump:\n  detection: psychic\n"), 0o644))

	_, _, err := execRoot(t, []string{"--root", dir, "--config", cfgPath, "update"})
	require.Error(t, err)
	assert.Equal(t, exitcode.ConfigError, exitCodeFor(err))
}

func TestOutsideRepositoryIsVCSError(t *testing.T) {
	_, _, err := execRoot(t, []string{"--root", t.TempDir(), "validate"})
	require.Error(t, err)
	assert.Equal(t, exitcode.VCSError, exitCodeFor(err))
}

func TestUpdateHelpDescribesDetectionModes(t *testing.T) {
	stdout, _, err := execRoot(t, []string{"update", "--help"})
	require.NoError(t, err)
	assert.Contains(t, stdout, "bump.detection: structured")
	assert.Contains(t, stdout, "bump.detection: marker")
	assert.Contains(t, stdout, `mentions "version:"`)
}

func TestCommandsRejectArguments(t *testing.T) {
	_, _, err := execRoot(t, []string{"update", "extra"})
	assert.Error(t, err)
}

func TestExitCodeFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, exitcode.Success},
		{&validate.FailedError{Err: errors.New("x")}, exitcode.ValidationError},
		{fmt.Errorf("bump: %w", &manifest.ParseError{Path: "a", Err: errors.New("bad")}), exitcode.ValidationError},
		{fmt.Errorf("resolve: %w", vcs.ErrHistory), exitcode.VCSError},
		{&configError{err: errors.New("bad key")}, exitcode.ConfigError},
		{fmt.Errorf("write: %w", &os.PathError{Op: "open", Path: "x", Err: os.ErrPermission}), exitcode.FileSystemError},
		{&os.LinkError{Op: "rename", Old: "a", New: "b", Err: os.ErrPermission}, exitcode.FileSystemError},
		{errors.New("other"), exitcode.GeneralError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, exitCodeFor(tt.err), fmt.Sprint(tt.err))
	}
}

func TestVersionCommand(t *testing.T) {
	out, _, err := execRoot(t, []string{"version"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "tmplcat "), out)

	out, _, err = execRoot(t, []string{"version", "--extended"})
	require.NoError(t, err)
	assert.Contains(t, out, "Go version:")
	assert.Contains(t, out, "Platform:")
}

func TestRootCommandRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"update", "validate", "version"} {
		assert.True(t, names[want], want)
	}
	assert.NotEmpty(t, rootCmd.Version)
}
