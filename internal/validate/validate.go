// Package validate checks that every YAML file touched by the latest commit
// still parses. It never writes to the repository.
package validate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fatih/color"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/fulmenhq/tmplcat/internal/catalog"
	"github.com/fulmenhq/tmplcat/internal/changeset"
	"github.com/fulmenhq/tmplcat/internal/vcs"
	"github.com/fulmenhq/tmplcat/pkg/logger"
)

// FileError is a YAML parse failure in one changed file.
type FileError struct {
	Path string
	Err  error
}

func (e *FileError) Error() string { return fmt.Sprintf("%s: %v", e.Path, e.Err) }

func (e *FileError) Unwrap() error { return e.Err }

// FailedError is returned when at least one changed file did not parse.
type FailedError struct {
	// Err combines every *FileError.
	Err error
}

func (e *FailedError) Error() string {
	n := len(multierr.Errors(e.Err))
	return fmt.Sprintf("%d changed YAML file(s) failed to parse", n)
}

func (e *FailedError) Unwrap() error { return e.Err }

// Failures lists the individual file errors in the order they were found.
func (e *FailedError) Failures() []*FileError {
	var out []*FileError
	for _, err := range multierr.Errors(e.Err) {
		var fe *FileError
		if errors.As(err, &fe) {
			out = append(out, fe)
		}
	}
	return out
}

// Report summarises a validation run.
type Report struct {
	// Checked holds the YAML files that were parsed.
	Checked []string
	// Templates are the template directories owning any changed file,
	// whether or not the file parsed.
	Templates []string
	// FirstCommit is true when the change set is the full tracked listing.
	FirstCommit bool
}

// Validator checks changed YAML files.
type Validator struct {
	Store        *catalog.Store
	ManifestFile string
	Exclude      []string
	// Patterns select which changed paths are YAML (doublestar syntax).
	Patterns []string
	// Out receives the success line; ErrOut one line per failure.
	Out    io.Writer
	ErrOut io.Writer
	// NoColor disables the coloured ERROR prefix.
	NoColor bool
}

// Run resolves the change set, parses every selected file still present in
// the working tree, and reports all failures together. History failures are
// returned before any file is parsed.
func (v *Validator) Run(ctx context.Context, h vcs.History) (*Report, error) {
	cs, err := changeset.Resolve(ctx, h)
	if err != nil {
		return nil, err
	}
	known, err := v.Store.TemplateDirs(v.ManifestFile, v.Exclude)
	if err != nil {
		return nil, err
	}

	report := &Report{
		Templates:   cs.ChangedTemplates(known),
		FirstCommit: cs.FirstCommit,
	}

	var errs error
	for _, p := range v.Select(cs.Files) {
		data, err := v.Store.Read(p)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				logger.Debug("changed file no longer exists, skipping", logger.String("path", p))
				continue
			}
			return report, fmt.Errorf("reading %s: %w", p, err)
		}
		report.Checked = append(report.Checked, p)
		if err := CheckSyntax(data); err != nil {
			errs = multierr.Append(errs, &FileError{Path: p, Err: err})
		}
	}
	logger.Debug("validated changed YAML files", logger.Int("checked", len(report.Checked)), logger.Strings("templates", report.Templates))

	if errs != nil {
		failed := &FailedError{Err: errs}
		for _, fe := range failed.Failures() {
			v.printErr(fe)
		}
		return report, failed
	}

	if v.Out != nil {
		summary := "no template changes"
		if len(report.Templates) > 0 {
			summary = strings.Join(report.Templates, ", ")
		}
		_, _ = fmt.Fprintf(v.Out, "Validated: %s\n", summary)
	}
	return report, nil
}

// Select keeps the paths matching any configured pattern, sorted.
func (v *Validator) Select(paths []string) []string {
	var out []string
	for _, p := range paths {
		for _, pattern := range v.Patterns {
			if ok, _ := doublestar.Match(pattern, p); ok {
				out = append(out, p)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

// CheckSyntax decodes every document in data and returns the first error.
func CheckSyntax(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	for {
		var n yaml.Node
		if err := dec.Decode(&n); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

func (v *Validator) printErr(fe *FileError) {
	if v.ErrOut == nil {
		return
	}
	prefix := "ERROR:"
	if !v.NoColor {
		prefix = color.New(color.FgRed, color.Bold).Sprint(prefix)
	}
	_, _ = fmt.Fprintf(v.ErrOut, "%s %s\n", prefix, fe.Error())
}
