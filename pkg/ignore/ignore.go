// Package ignore provides gitignore-based path filtering using go-git
package ignore

import (
	"errors"
	"os"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	gitignore "github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// FileName is the repository-level ignore file read on top of .gitignore.
const FileName = ".tmplcatignore"

// Matcher reports whether repository-relative paths are ignored.
type Matcher struct {
	matcher gitignore.Matcher
}

// NewMatcher creates a matcher for the repository at repoRoot with layered
// ignore files:
// 1. .gitignore files and .git/info/exclude (foundation)
// 2. .tmplcatignore at the repository root (overrides)
func NewMatcher(repoRoot string) (*Matcher, error) {
	return NewMatcherFs(osfs.New(repoRoot))
}

// NewMatcherFs is NewMatcher over an arbitrary billy filesystem rooted at the
// repository root.
func NewMatcherFs(fs billy.Filesystem) (*Matcher, error) {
	var patterns []gitignore.Pattern

	gitPatterns, err := gitignore.ReadPatterns(fs, nil)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	patterns = append(patterns, gitPatterns...)

	local, err := readIgnoreFile(fs, FileName)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	for _, p := range local {
		patterns = append(patterns, gitignore.ParsePattern(p, nil))
	}

	return &Matcher{matcher: gitignore.NewMatcher(patterns)}, nil
}

// readIgnoreFile reads patterns from a gitignore-syntax text file
func readIgnoreFile(fs billy.Filesystem, name string) ([]string, error) {
	content, err := util.ReadFile(fs, name)
	if err != nil {
		return nil, err
	}

	var patterns []string
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	return patterns, nil
}

// IsIgnored checks a slash-separated path relative to the repository root.
// A nil Matcher ignores nothing.
func (m *Matcher) IsIgnored(path string, isDir bool) bool {
	if m == nil {
		return false
	}
	parts := splitPath(path)
	if len(parts) == 0 {
		return false
	}
	return m.matcher.Match(parts, isDir)
}

// splitPath converts a slash-separated path into components for go-git matching
func splitPath(path string) []string {
	path = strings.TrimPrefix(strings.ReplaceAll(path, `\`, "/"), "/")
	parts := strings.Split(path, "/")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if part != "" && part != "." {
			result = append(result, part)
		}
	}
	return result
}
