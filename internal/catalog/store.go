package catalog

import (
	"errors"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/afero"

	"github.com/fulmenhq/tmplcat/internal/manifest"
	"github.com/fulmenhq/tmplcat/pkg/ignore"
	"github.com/fulmenhq/tmplcat/pkg/safeio"
)

// Store is the repository working tree seen as a filesystem. All paths are
// relative to the repository root and use forward slashes.
type Store struct {
	fs     afero.Fs
	ignore *ignore.Matcher
}

// NewStore returns a Store over the directory root on the OS filesystem.
func NewStore(root string) *Store {
	return &Store{fs: afero.NewBasePathFs(afero.NewOsFs(), root)}
}

// NewStoreFs wraps an existing filesystem whose root is the repository root.
func NewStoreFs(fs afero.Fs) *Store {
	return &Store{fs: fs}
}

// SetIgnore makes TemplateDirs skip directories the matcher ignores.
func (s *Store) SetIgnore(m *ignore.Matcher) { s.ignore = m }

// Fs exposes the underlying filesystem.
func (s *Store) Fs() afero.Fs { return s.fs }

// Read returns the content of p.
func (s *Store) Read(p string) ([]byte, error) {
	clean, err := safeio.CleanRelPath(p)
	if err != nil {
		return nil, err
	}
	return afero.ReadFile(s.fs, clean)
}

// Write replaces p atomically.
func (s *Store) Write(p string, data []byte) error {
	clean, err := safeio.CleanRelPath(p)
	if err != nil {
		return err
	}
	return safeio.WriteFileAtomic(s.fs, clean, data)
}

// Exists reports whether p is a regular file.
func (s *Store) Exists(p string) (bool, error) {
	clean, err := safeio.CleanRelPath(p)
	if err != nil {
		return false, err
	}
	info, err := s.fs.Stat(clean)
	switch {
	case err == nil:
		return info.Mode().IsRegular(), nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

// Manifest loads the manifest of template dir.
func (s *Store) Manifest(dir, manifestFile string) (*manifest.Document, error) {
	return manifest.Load(s.fs, path.Join(dir, manifestFile))
}

// TemplateDirs lists the top-level directories that hold manifestFile,
// skipping dot-directories, ignored directories and names matching any
// exclude pattern. The result is sorted by name.
func (s *Store) TemplateDirs(manifestFile string, exclude []string) ([]string, error) {
	entries, err := afero.ReadDir(s.fs, ".")
	if err != nil {
		return nil, fmt.Errorf("listing repository root: %w", err)
	}

	var dirs []string
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() || strings.HasPrefix(name, ".") || excluded(name, exclude) || s.ignore.IsIgnored(name, true) {
			continue
		}
		ok, err := s.Exists(path.Join(name, manifestFile))
		if err != nil {
			return nil, fmt.Errorf("checking %s: %w", name, err)
		}
		if ok {
			dirs = append(dirs, name)
		}
	}
	sort.Strings(dirs)
	return dirs, nil
}

func excluded(name string, patterns []string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, name); ok {
			return true
		}
	}
	return false
}
