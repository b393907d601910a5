package vcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/fulmenhq/tmplcat/pkg/logger"
)

// CLI reads history by shelling out to the git binary.
type CLI struct {
	root string
}

// OpenCLI locates the worktree root containing dir with git rev-parse.
func OpenCLI(ctx context.Context, dir string) (*CLI, error) {
	if _, err := exec.LookPath("git"); err != nil {
		return nil, fmt.Errorf("%w: git executable not found: %v", ErrHistory, err)
	}
	out, err := runGit(ctx, dir, "rev-parse", "--show-toplevel")
	if err != nil {
		return nil, fmt.Errorf("%w: %s is not inside a git worktree: %v", ErrHistory, dir, err)
	}
	root := filepath.FromSlash(strings.TrimSpace(string(out)))
	logger.Debug("opened repository with git CLI", logger.String("root", root))
	return &CLI{root: root}, nil
}

func (c *CLI) Root() string { return c.root }

func (c *CLI) HasParentRevision(ctx context.Context) (bool, error) {
	if _, err := runGit(ctx, c.root, "rev-parse", "--verify", "--quiet", Head+"^{commit}"); err != nil {
		return false, fmt.Errorf("%w: resolving HEAD: %v", ErrHistory, err)
	}
	_, err := runGit(ctx, c.root, "rev-parse", "--verify", "--quiet", Parent+"^{commit}")
	if err == nil {
		return true, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return false, nil
	}
	return false, fmt.Errorf("%w: resolving %s: %v", ErrHistory, Parent, err)
}

func (c *CLI) ChangedPaths(ctx context.Context, from, to string) ([]string, error) {
	var args []string
	if from == "" {
		args = []string{"ls-tree", "-r", "--name-only", "-z", to}
	} else {
		args = []string{"diff", "--name-only", "--no-renames", "-z", from, to}
	}
	out, err := runGit(ctx, c.root, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: git %s: %v", ErrHistory, args[0], err)
	}
	return sortedUnique(splitNUL(out)), nil
}

func (c *CLI) Diff(ctx context.Context, from, to, path string) (string, error) {
	out, err := runGit(ctx, c.root, "diff", "--no-color", from, to, "--", path)
	if err != nil {
		return "", fmt.Errorf("%w: git diff %s: %v", ErrHistory, path, err)
	}
	return string(out), nil
}

func (c *CLI) Show(ctx context.Context, rev, path string) ([]byte, error) {
	object := rev + ":" + path
	if _, err := runGit(ctx, c.root, "cat-file", "-e", object); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("%w: %s at %s", ErrNotFound, path, rev)
		}
		return nil, fmt.Errorf("%w: git cat-file %s: %v", ErrHistory, object, err)
	}
	out, err := runGit(ctx, c.root, "show", object)
	if err != nil {
		return nil, fmt.Errorf("%w: git show %s: %v", ErrHistory, object, err)
	}
	return out, nil
}

// runGit runs git in dir and returns stdout. Stderr is folded into the error.
func runGit(ctx context.Context, dir string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return out, nil
}

func splitNUL(data []byte) []string {
	parts := bytes.Split(data, []byte{0})
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if len(p) > 0 {
			out = append(out, string(p))
		}
	}
	return out
}
