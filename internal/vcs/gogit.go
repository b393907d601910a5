package vcs

import (
	"context"
	"errors"
	"fmt"
	"strings"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/fulmenhq/tmplcat/pkg/logger"
)

// GoGit reads history in process through go-git.
type GoGit struct {
	repo *git.Repository
	root string
}

// OpenGoGit opens the repository containing dir, walking up to find .git.
func OpenGoGit(dir string) (*GoGit, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("%w: opening repository at %s: %v", ErrHistory, dir, err)
	}
	root := dir
	if wt, err := repo.Worktree(); err == nil {
		root = wt.Filesystem.Root()
	}
	logger.Debug("opened repository with go-git", logger.String("root", root))
	return &GoGit{repo: repo, root: root}, nil
}

// NewGoGit wraps an already opened repository, e.g. an in-memory one.
func NewGoGit(repo *git.Repository) *GoGit {
	g := &GoGit{repo: repo}
	if wt, err := repo.Worktree(); err == nil {
		g.root = wt.Filesystem.Root()
	}
	return g
}

func (g *GoGit) Root() string { return g.root }

func (g *GoGit) HasParentRevision(ctx context.Context) (bool, error) {
	head, err := g.repo.Head()
	if err != nil {
		return false, fmt.Errorf("%w: resolving HEAD: %v", ErrHistory, err)
	}
	commit, err := g.repo.CommitObject(head.Hash())
	if err != nil {
		return false, fmt.Errorf("%w: reading HEAD commit: %v", ErrHistory, err)
	}
	if commit.NumParents() == 0 {
		return false, nil
	}

	// A shallow clone records the parent hash without the parent object;
	// git itself treats such a commit as parentless.
	shallow, err := g.repo.Storer.Shallow()
	if err != nil {
		return false, fmt.Errorf("%w: reading shallow boundary: %v", ErrHistory, err)
	}
	for _, h := range shallow {
		if h == commit.Hash {
			logger.Debug("HEAD is a shallow boundary, treating it as the first commit")
			return false, nil
		}
	}
	if _, err := g.repo.CommitObject(commit.ParentHashes[0]); err != nil {
		if errors.Is(err, plumbing.ErrObjectNotFound) {
			logger.Debug("parent commit object is missing, treating HEAD as the first commit")
			return false, nil
		}
		return false, fmt.Errorf("%w: reading parent commit: %v", ErrHistory, err)
	}
	return true, nil
}

func (g *GoGit) ChangedPaths(ctx context.Context, from, to string) ([]string, error) {
	toTree, err := g.tree(to)
	if err != nil {
		return nil, err
	}

	var paths []string
	if from == "" {
		err := toTree.Files().ForEach(func(f *object.File) error {
			paths = append(paths, f.Name)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("%w: listing files at %s: %v", ErrHistory, to, err)
		}
		return sortedUnique(paths), nil
	}

	fromTree, err := g.tree(from)
	if err != nil {
		return nil, err
	}
	changes, err := fromTree.DiffContext(ctx, toTree)
	if err != nil {
		return nil, fmt.Errorf("%w: diffing %s..%s: %v", ErrHistory, from, to, err)
	}
	for _, ch := range changes {
		paths = append(paths, ch.From.Name, ch.To.Name)
	}
	return sortedUnique(paths), nil
}

func (g *GoGit) Diff(ctx context.Context, from, to, path string) (string, error) {
	fromTree, err := g.tree(from)
	if err != nil {
		return "", err
	}
	toTree, err := g.tree(to)
	if err != nil {
		return "", err
	}
	changes, err := fromTree.DiffContext(ctx, toTree)
	if err != nil {
		return "", fmt.Errorf("%w: diffing %s..%s: %v", ErrHistory, from, to, err)
	}

	var sb strings.Builder
	for _, ch := range changes {
		if ch.From.Name != path && ch.To.Name != path {
			continue
		}
		patch, err := ch.PatchContext(ctx)
		if err != nil {
			return "", fmt.Errorf("%w: patch for %s: %v", ErrHistory, path, err)
		}
		sb.WriteString(patch.String())
	}
	return sb.String(), nil
}

func (g *GoGit) Show(ctx context.Context, rev, path string) ([]byte, error) {
	commit, err := g.commit(rev)
	if err != nil {
		return nil, err
	}
	f, err := commit.File(path)
	if err != nil {
		if errors.Is(err, object.ErrFileNotFound) {
			return nil, fmt.Errorf("%w: %s at %s", ErrNotFound, path, rev)
		}
		return nil, fmt.Errorf("%w: reading %s at %s: %v", ErrHistory, path, rev, err)
	}
	contents, err := f.Contents()
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s at %s: %v", ErrHistory, path, rev, err)
	}
	return []byte(contents), nil
}

func (g *GoGit) commit(rev string) (*object.Commit, error) {
	hash, err := g.repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return nil, fmt.Errorf("%w: resolving %s: %v", ErrHistory, rev, err)
	}
	commit, err := g.repo.CommitObject(*hash)
	if err != nil {
		return nil, fmt.Errorf("%w: reading commit %s: %v", ErrHistory, rev, err)
	}
	return commit, nil
}

func (g *GoGit) tree(rev string) (*object.Tree, error) {
	commit, err := g.commit(rev)
	if err != nil {
		return nil, err
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("%w: reading tree of %s: %v", ErrHistory, rev, err)
	}
	return tree, nil
}
