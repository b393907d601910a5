// Package vcs exposes the small slice of version-control history the catalog
// needs: whether HEAD has a parent, which paths differ between two revisions,
// and the content or diff of a single file. Two backends are provided: go-git
// (in process) and the git CLI, which is used as a fallback when go-git
// cannot open the repository.
package vcs

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strings"

	"github.com/fulmenhq/tmplcat/pkg/config"
	"github.com/fulmenhq/tmplcat/pkg/logger"
)

// Revisions compared on every run.
const (
	Head   = "HEAD"
	Parent = "HEAD~1"
)

var (
	// ErrHistory marks failures to read repository history other than a
	// missing parent commit. Callers treat it as fatal.
	ErrHistory = errors.New("revision history unavailable")
	// ErrNotFound is returned by Show when the path does not exist at the revision.
	ErrNotFound = errors.New("path not found at revision")
)

// History is the view of version control used by the change-set resolver
// and the bump gate. Paths are repository-relative with forward slashes.
type History interface {
	// Root is the absolute worktree root the paths are relative to.
	Root() string
	// HasParentRevision reports whether HEAD has a first parent.
	HasParentRevision(ctx context.Context) (bool, error)
	// ChangedPaths lists paths that differ between from and to. An empty
	// from lists every file tracked at to.
	ChangedPaths(ctx context.Context, from, to string) ([]string, error)
	// Diff returns the unified diff of a single path between two revisions.
	// An unchanged path yields an empty string.
	Diff(ctx context.Context, from, to, path string) (string, error)
	// Show returns the content of path at rev, or ErrNotFound.
	Show(ctx context.Context, rev, path string) ([]byte, error)
}

// Open returns a History for the repository containing dir using the
// configured backend. "auto" prefers go-git and falls back to the git CLI.
func Open(ctx context.Context, dir, backend string) (History, error) {
	switch backend {
	case config.BackendGoGit:
		h, err := OpenGoGit(dir)
		if err != nil {
			return nil, err
		}
		return h, nil
	case config.BackendCLI:
		h, err := OpenCLI(ctx, dir)
		if err != nil {
			return nil, err
		}
		return h, nil
	case config.BackendAuto, "":
		h, err := OpenGoGit(dir)
		if err == nil {
			return h, nil
		}
		logger.Debug("go-git could not open repository, trying git CLI", logger.String("dir", dir), logger.Err(err))
		if _, lookErr := exec.LookPath("git"); lookErr != nil {
			return nil, err
		}
		cli, cliErr := OpenCLI(ctx, dir)
		if cliErr != nil {
			return nil, fmt.Errorf("%w (git CLI fallback: %v)", err, cliErr)
		}
		return cli, nil
	default:
		return nil, fmt.Errorf("unknown vcs backend %q", backend)
	}
}

// sortedUnique normalises a path list: forward slashes, no blanks, no duplicates.
func sortedUnique(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		p = strings.TrimSpace(strings.ReplaceAll(p, `\`, "/"))
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
