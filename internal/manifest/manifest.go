// Package manifest reads and rewrites template manifests.
//
// A manifest may keep its fields at the top level of the document or nested
// under a "manifest" mapping. Both shapes are read the same way, and a
// rewrite keeps whichever shape the file already had. Documents are held as
// yaml.v3 node trees so key order and comments survive a version rewrite.
package manifest

import (
	"bytes"
	"fmt"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/fulmenhq/tmplcat/pkg/versioning"
)

// NestedKey is the mapping key that may wrap the manifest fields.
const NestedKey = "manifest"

const versionKey = "version"

// Field keys read from a manifest.
const (
	idKey          = "id"
	nameKey        = "name"
	descriptionKey = "description"
	tagsKey        = "tags"
	keywordsKey    = "keywords"
)

// Fields is the uniform view of the manifest fields used downstream. Values
// are kept as written, whatever their type, detached from their position and
// layout so equal values compare equal. A field is nil when the key is
// absent or null.
type Fields struct {
	ID          *yaml.Node
	Name        *yaml.Node
	Description *yaml.Node
	Version     *yaml.Node
	Tags        *yaml.Node
	Keywords    *yaml.Node
}

// ParseError reports a manifest that is not usable structured data.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing manifest %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Document is a parsed manifest.
type Document struct {
	path   string
	doc    *yaml.Node
	source *yaml.Node
	nested bool
	fields Fields
}

// Load reads and parses the manifest at path.
func Load(fs afero.Fs, path string) (*Document, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest %s: %w", path, err)
	}
	return Parse(path, data)
}

// Parse parses manifest content. path is only used for error reporting.
func Parse(path string, data []byte) (*Document, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}

	root, err := rootMapping(&doc)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}

	d := &Document{path: path, doc: &doc, source: root}
	if v := lookup(root, NestedKey); v != nil && v.Kind == yaml.MappingNode {
		d.source = v
		d.nested = true
	}

	d.fields = Fields{
		ID:          field(d.source, idKey),
		Name:        field(d.source, nameKey),
		Description: field(d.source, descriptionKey),
		Version:     field(d.source, versionKey),
		Tags:        field(d.source, tagsKey),
		Keywords:    field(d.source, keywordsKey),
	}
	return d, nil
}

// field returns a detached copy of the value under key, or nil when the key
// is absent or null.
func field(m *yaml.Node, key string) *yaml.Node {
	v := lookup(m, key)
	if v != nil && v.Kind == yaml.AliasNode {
		v = v.Alias
	}
	if v == nil || (v.Kind == yaml.ScalarNode && v.Tag == "!!null") {
		return nil
	}
	return detach(v)
}

// detach deep-copies n keeping only its kind, tag and value. Aliases are
// resolved so the copy stands on its own.
func detach(n *yaml.Node) *yaml.Node {
	if n == nil {
		return nil
	}
	if n.Kind == yaml.AliasNode {
		return detach(n.Alias)
	}
	out := &yaml.Node{Kind: n.Kind, Tag: n.Tag, Value: n.Value}
	for _, c := range n.Content {
		out.Content = append(out.Content, detach(c))
	}
	return out
}

// ScalarText returns the text of a scalar value. It reports false for nil
// and for sequences and mappings.
func ScalarText(n *yaml.Node) (string, bool) {
	if n == nil || n.Kind != yaml.ScalarNode {
		return "", false
	}
	return n.Value, true
}

// rootMapping returns the top-level mapping, turning an empty or null
// document into an empty mapping.
func rootMapping(doc *yaml.Node) (*yaml.Node, error) {
	if doc.Kind == 0 {
		doc.Kind = yaml.DocumentNode
	}
	if len(doc.Content) == 0 {
		doc.Content = []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}}
	}
	root := doc.Content[0]
	switch {
	case root.Kind == yaml.MappingNode:
		return root, nil
	case root.Kind == yaml.ScalarNode && root.Tag == "!!null":
		*root = yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		return root, nil
	default:
		return nil, fmt.Errorf("document root must be a mapping")
	}
}

func lookup(m *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

// Path returns the path the manifest was loaded from.
func (d *Document) Path() string { return d.path }

// Nested reports whether the fields live under a "manifest" mapping.
func (d *Document) Nested() bool { return d.nested }

// Fields returns a copy of the manifest fields.
func (d *Document) Fields() Fields {
	return Fields{
		ID:          detach(d.fields.ID),
		Name:        detach(d.fields.Name),
		Description: detach(d.fields.Description),
		Version:     detach(d.fields.Version),
		Tags:        detach(d.fields.Tags),
		Keywords:    detach(d.fields.Keywords),
	}
}

// Version returns the manifest version, or versioning.DefaultVersion when
// the field is absent or null. A sequence or mapping reads as "".
func (d *Document) Version() string {
	if d.fields.Version == nil {
		return versioning.DefaultVersion
	}
	v, _ := ScalarText(d.fields.Version)
	return v
}

// SetVersion replaces the version value, appending the key when the manifest
// has none. No other key is touched.
func (d *Document) SetVersion(v string) {
	value := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v}
	for i := 0; i+1 < len(d.source.Content); i += 2 {
		if d.source.Content[i].Value != versionKey {
			continue
		}
		old := d.source.Content[i+1]
		if old.Kind == yaml.ScalarNode && old.Tag == "!!str" {
			value.Style = old.Style
		}
		value.LineComment = old.LineComment
		d.source.Content[i+1] = value
		d.fields.Version = detach(value)
		return
	}
	d.source.Content = append(d.source.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: versionKey},
		value,
	)
	d.fields.Version = detach(value)
}

// Encode serialises the document with two-space indentation.
func (d *Document) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(d.doc); err != nil {
		return nil, fmt.Errorf("encoding manifest %s: %w", d.path, err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encoding manifest %s: %w", d.path, err)
	}
	return buf.Bytes(), nil
}
