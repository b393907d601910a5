// Package changeset resolves which files, and which template directories,
// changed in the most recent commit.
package changeset

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/fulmenhq/tmplcat/internal/vcs"
	"github.com/fulmenhq/tmplcat/pkg/logger"
)

// ChangeSet is the set of paths that differ between HEAD and its parent,
// or every tracked path when HEAD is the first commit.
type ChangeSet struct {
	// Files are repository-relative paths, sorted.
	Files []string
	// FirstCommit is true when HEAD has no parent.
	FirstCommit bool
}

// Resolve computes the change set for HEAD. A history failure other than a
// missing parent is returned as is (wrapping vcs.ErrHistory).
func Resolve(ctx context.Context, h vcs.History) (*ChangeSet, error) {
	hasParent, err := h.HasParentRevision(ctx)
	if err != nil {
		return nil, fmt.Errorf("checking for parent commit: %w", err)
	}

	var files []string
	if hasParent {
		files, err = h.ChangedPaths(ctx, vcs.Parent, vcs.Head)
	} else {
		logger.Info("no parent commit, treating every tracked file as changed")
		files, err = h.ChangedPaths(ctx, "", vcs.Head)
	}
	if err != nil {
		return nil, fmt.Errorf("listing changed files: %w", err)
	}

	logger.Debug("resolved change set", logger.Int("files", len(files)), logger.Bool("first_commit", !hasParent))
	return &ChangeSet{Files: files, FirstCommit: !hasParent}, nil
}

// ChangedTemplates returns the known template directories that own at least
// one changed file. A path only counts when it lies inside the directory; a
// top-level file that happens to share a template's name does not.
func (cs *ChangeSet) ChangedTemplates(known []string) []string {
	if cs == nil {
		return nil
	}
	knownSet := make(map[string]struct{}, len(known))
	for _, k := range known {
		knownSet[k] = struct{}{}
	}

	seen := make(map[string]struct{})
	var out []string
	for _, f := range cs.Files {
		dir, ok := TopLevelDir(f)
		if !ok {
			continue
		}
		if _, isTemplate := knownSet[dir]; !isTemplate {
			continue
		}
		if _, dup := seen[dir]; dup {
			continue
		}
		seen[dir] = struct{}{}
		out = append(out, dir)
	}
	sort.Strings(out)
	return out
}

// TopLevelDir returns the first segment of a slash-separated path that has
// at least two segments.
func TopLevelDir(p string) (string, bool) {
	p = strings.TrimPrefix(p, "./")
	dir, rest, found := strings.Cut(p, "/")
	if !found || dir == "" || rest == "" {
		return "", false
	}
	return dir, true
}
