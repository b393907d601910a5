// Package catalog discovers template directories and maintains the
// consolidated catalog index built from their manifests.
package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/fulmenhq/tmplcat/pkg/logger"
)

// Summary is the per-template record stored in the index. Values are copied
// from the manifest as written, whatever their type. Absent optional fields
// are written as null; tags and keywords default to empty lists.
type Summary struct {
	ID          *yaml.Node `yaml:"id"`
	Name        *yaml.Node `yaml:"name"`
	Description *yaml.Node `yaml:"description"`
	Version     *yaml.Node `yaml:"version"`
	Tags        *yaml.Node `yaml:"tags"`
	Keywords    *yaml.Node `yaml:"keywords"`
}

// Index is the catalog index document.
type Index struct {
	Templates []Summary `yaml:"templates"`
}

// Builder regenerates the index from every template manifest.
type Builder struct {
	Store        *Store
	ManifestFile string
	IndexFile    string
	Exclude      []string
	NoOp         bool
	// Out receives the "Updated" progress line. Nil discards.
	Out io.Writer
}

// Build reads every template manifest and assembles the index. Any manifest
// that fails to parse aborts the build.
func (b *Builder) Build() (*Index, error) {
	dirs, err := b.Store.TemplateDirs(b.ManifestFile, b.Exclude)
	if err != nil {
		return nil, err
	}

	idx := &Index{Templates: make([]Summary, 0, len(dirs))}
	for _, dir := range dirs {
		doc, err := b.Store.Manifest(dir, b.ManifestFile)
		if err != nil {
			return nil, err
		}
		f := doc.Fields()
		s := Summary{
			ID:          f.ID,
			Name:        f.Name,
			Description: f.Description,
			Version:     f.Version,
			Tags:        f.Tags,
			Keywords:    f.Keywords,
		}
		if s.ID == nil {
			s.ID = &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: dir}
		}
		if s.Tags == nil {
			s.Tags = emptyList()
		}
		if s.Keywords == nil {
			s.Keywords = emptyList()
		}
		idx.Templates = append(idx.Templates, s)
	}
	return idx, nil
}

func emptyList() *yaml.Node {
	return &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
}

// Render serialises the index with two-space indentation.
func Render(idx *Index) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(idx); err != nil {
		return nil, fmt.Errorf("encoding index: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encoding index: %w", err)
	}
	return buf.Bytes(), nil
}

// Update rebuilds the index and writes it only when the rendered bytes differ
// from the file on disk. It reports whether the file changed (or would have,
// in no-op mode).
func (b *Builder) Update() (bool, error) {
	idx, err := b.Build()
	if err != nil {
		return false, err
	}
	data, err := Render(idx)
	if err != nil {
		return false, err
	}

	current, err := b.Store.Read(b.IndexFile)
	switch {
	case err == nil:
		if bytes.Equal(current, data) {
			logger.Debug("index up to date", logger.String("path", b.IndexFile), logger.Int("templates", len(idx.Templates)))
			return false, nil
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return false, fmt.Errorf("reading %s: %w", b.IndexFile, err)
	}

	if b.NoOp {
		b.printf("Would update %s\n", b.IndexFile)
		return true, nil
	}
	if err := b.Store.Write(b.IndexFile, data); err != nil {
		return false, fmt.Errorf("writing %s: %w", b.IndexFile, err)
	}
	logger.Debug("index written", logger.String("path", b.IndexFile), logger.Int("templates", len(idx.Templates)))
	b.printf("Updated %s\n", b.IndexFile)
	return true, nil
}

func (b *Builder) printf(format string, args ...interface{}) {
	if b.Out != nil {
		_, _ = fmt.Fprintf(b.Out, format, args...)
	}
}
