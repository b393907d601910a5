package vcs

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSignature = &object.Signature{Name: "Catalog Bot", Email: "bot@example.com", When: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}

// memRepo is an in-memory repository with a helper to commit file sets.
type memRepo struct {
	t    *testing.T
	repo *git.Repository
	fs   billy.Filesystem
}

func newMemRepo(t *testing.T) *memRepo {
	t.Helper()
	fs := memfs.New()
	repo, err := git.Init(memory.NewStorage(), fs)
	require.NoError(t, err)
	return &memRepo{t: t, repo: repo, fs: fs}
}

// commit writes files (nil content removes the file) and commits them.
func (m *memRepo) commit(msg string, files map[string][]byte) {
	m.t.Helper()
	wt, err := m.repo.Worktree()
	require.NoError(m.t, err)
	for name, data := range files {
		if data == nil {
			_, err := wt.Remove(name)
			require.NoError(m.t, err)
			continue
		}
		require.NoError(m.t, util.WriteFile(m.fs, name, data, 0o644))
		_, err := wt.Add(name)
		require.NoError(m.t, err)
	}
	_, err = wt.Commit(msg, &git.CommitOptions{Author: testSignature, Committer: testSignature})
	require.NoError(m.t, err)
}

func TestGoGitFirstCommit(t *testing.T) {
	m := newMemRepo(t)
	m.commit("initial", map[string][]byte{
		"web/manifest.yaml": []byte("version: 1.0.0\n"),
		"web/README.md":     []byte("# web\n"),
		"README.md":         []byte("# catalog\n"),
	})
	h := NewGoGit(m.repo)
	ctx := context.Background()

	hasParent, err := h.HasParentRevision(ctx)
	require.NoError(t, err)
	assert.False(t, hasParent)

	paths, err := h.ChangedPaths(ctx, "", Head)
	require.NoError(t, err)
	assert.Equal(t, []string{"README.md", "web/README.md", "web/manifest.yaml"}, paths)
}

func TestGoGitChangedPathsAndDiff(t *testing.T) {
	m := newMemRepo(t)
	m.commit("initial", map[string][]byte{
		"web/manifest.yaml": []byte("name: Web\nversion: 1.0.0\n"),
		"api/manifest.yaml": []byte("version: 2.0.0\n"),
		"api/old.txt":       []byte("old\n"),
	})
	m.commit("second", map[string][]byte{
		"web/manifest.yaml": []byte("name: Web\nversion: 1.0.1\n"),
		"api/old.txt":       nil,
		"api/new.txt":       []byte("new\n"),
	})
	h := NewGoGit(m.repo)
	ctx := context.Background()

	hasParent, err := h.HasParentRevision(ctx)
	require.NoError(t, err)
	assert.True(t, hasParent)

	paths, err := h.ChangedPaths(ctx, Parent, Head)
	require.NoError(t, err)
	assert.Equal(t, []string{"api/new.txt", "api/old.txt", "web/manifest.yaml"}, paths)

	diff, err := h.Diff(ctx, Parent, Head, "web/manifest.yaml")
	require.NoError(t, err)
	assert.Contains(t, diff, "-version: 1.0.0")
	assert.Contains(t, diff, "+version: 1.0.1")

	diff, err = h.Diff(ctx, Parent, Head, "api/manifest.yaml")
	require.NoError(t, err)
	assert.Empty(t, diff)
}

func TestGoGitShow(t *testing.T) {
	m := newMemRepo(t)
	m.commit("initial", map[string][]byte{"web/manifest.yaml": []byte("version: 1.0.0\n")})
	m.commit("second", map[string][]byte{"web/manifest.yaml": []byte("version: 1.0.1\n")})
	h := NewGoGit(m.repo)
	ctx := context.Background()

	data, err := h.Show(ctx, Parent, "web/manifest.yaml")
	require.NoError(t, err)
	assert.Equal(t, "version: 1.0.0\n", string(data))

	_, err = h.Show(ctx, Head, "missing/manifest.yaml")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGoGitEmptyRepository(t *testing.T) {
	m := newMemRepo(t)
	h := NewGoGit(m.repo)
	_, err := h.HasParentRevision(context.Background())
	assert.ErrorIs(t, err, ErrHistory)
}

func TestOpenOutsideRepository(t *testing.T) {
	_, err := OpenGoGit(t.TempDir())
	assert.ErrorIs(t, err, ErrHistory)

	_, err = Open(context.Background(), t.TempDir(), "bogus")
	assert.Error(t, err)
}

func TestSortedUnique(t *testing.T) {
	got := sortedUnique([]string{"b/x", "a\\y", "", "b/x", " c "})
	assert.Equal(t, []string{"a/y", "b/x", "c"}, got)
}

func TestSplitNUL(t *testing.T) {
	assert.Equal(t, []string{"a", "b c"}, splitNUL([]byte("a\x00b c\x00")))
	assert.Empty(t, splitNUL(nil))
}

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available, skipping CLI backend test")
	}
}

func gitIn(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=Catalog Bot", "GIT_AUTHOR_EMAIL=bot@example.com",
		"GIT_COMMITTER_NAME=Catalog Bot", "GIT_COMMITTER_EMAIL=bot@example.com",
	)
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, string(out))
}

func TestCLIBackend(t *testing.T) {
	requireGit(t)
	dir := t.TempDir()
	gitIn(t, dir, "init", "-q")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "web"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "web", "manifest.yaml"), []byte("version: 1.0.0\n"), 0o644))
	gitIn(t, dir, "add", ".")
	gitIn(t, dir, "commit", "-q", "-m", "initial")

	ctx := context.Background()
	h, err := Open(ctx, dir, "cli")
	require.NoError(t, err)

	hasParent, err := h.HasParentRevision(ctx)
	require.NoError(t, err)
	assert.False(t, hasParent)

	paths, err := h.ChangedPaths(ctx, "", Head)
	require.NoError(t, err)
	assert.Equal(t, []string{"web/manifest.yaml"}, paths)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "web", "README.md"), []byte("# web\n"), 0o644))
	gitIn(t, dir, "add", ".")
	gitIn(t, dir, "commit", "-q", "-m", "docs")

	hasParent, err = h.HasParentRevision(ctx)
	require.NoError(t, err)
	assert.True(t, hasParent)

	paths, err = h.ChangedPaths(ctx, Parent, Head)
	require.NoError(t, err)
	assert.Equal(t, []string{"web/README.md"}, paths)

	diff, err := h.Diff(ctx, Parent, Head, "web/manifest.yaml")
	require.NoError(t, err)
	assert.Empty(t, diff)

	data, err := h.Show(ctx, Parent, "web/manifest.yaml")
	require.NoError(t, err)
	assert.Equal(t, "version: 1.0.0\n", string(data))

	_, err = h.Show(ctx, Parent, "web/README.md")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestShallowCloneHasNoParent(t *testing.T) {
	requireGit(t)
	src := t.TempDir()
	gitIn(t, src, "init", "-q")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "web"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "web", "manifest.yaml"), []byte("version: 1.0.0\n"), 0o644))
	gitIn(t, src, "add", ".")
	gitIn(t, src, "commit", "-q", "-m", "initial")
	require.NoError(t, os.WriteFile(filepath.Join(src, "web", "README.md"), []byte("# web\n"), 0o644))
	gitIn(t, src, "add", ".")
	gitIn(t, src, "commit", "-q", "-m", "docs")

	clone := filepath.Join(t.TempDir(), "clone")
	gitIn(t, src, "clone", "-q", "--depth", "1", "file://"+filepath.ToSlash(src), clone)

	ctx := context.Background()
	for _, backend := range []string{"gogit", "cli"} {
		t.Run(backend, func(t *testing.T) {
			h, err := Open(ctx, clone, backend)
			require.NoError(t, err)

			hasParent, err := h.HasParentRevision(ctx)
			require.NoError(t, err)
			assert.False(t, hasParent)

			paths, err := h.ChangedPaths(ctx, "", Head)
			require.NoError(t, err)
			assert.Equal(t, []string{"web/README.md", "web/manifest.yaml"}, paths)
		})
	}
}
