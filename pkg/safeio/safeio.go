package safeio

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// ErrPathEscapes is returned when a repository-relative path would leave the repository.
var ErrPathEscapes = errors.New("path escapes repository root")

// CleanRelPath cleans a repository-relative path and rejects absolute paths
// and traversal. Returns forward-slash paths for cross-platform consistency.
func CleanRelPath(p string) (string, error) {
	slashed := filepath.ToSlash(p)
	if path.IsAbs(slashed) || filepath.IsAbs(p) {
		return "", fmt.Errorf("%w: %s", ErrPathEscapes, p)
	}
	c := path.Clean(slashed)
	if c == ".." || strings.HasPrefix(c, "../") {
		return "", fmt.Errorf("%w: %s", ErrPathEscapes, p)
	}
	return c, nil
}

// WriteFileAtomic writes data to a temporary sibling of name and renames it
// into place, so readers never observe a partially written file. The mode of
// an existing file is preserved; new files get 0644.
func WriteFileAtomic(fs afero.Fs, name string, data []byte) (err error) {
	var mode os.FileMode = 0o644
	if st, statErr := fs.Stat(name); statErr == nil {
		if m := st.Mode() & 0o777; m != 0 {
			mode = m
		}
	}

	dir, base := filepath.Split(name)
	if dir == "" {
		dir = "."
	}
	tmp, err := afero.TempFile(fs, dir, "."+base+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", name, err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = fs.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err = fs.Chmod(tmpName, mode); err != nil {
		return fmt.Errorf("chmod %s: %w", tmpName, err)
	}
	if err = fs.Rename(tmpName, name); err != nil {
		return fmt.Errorf("rename %s to %s: %w", tmpName, name, err)
	}
	return nil
}
