// Package pipeline runs the post-merge catalog update: resolve the change
// set, bump the patch version of changed templates the author did not bump,
// then regenerate the catalog index.
package pipeline

import (
	"context"
	"io"

	"github.com/fulmenhq/tmplcat/internal/bump"
	"github.com/fulmenhq/tmplcat/internal/catalog"
	"github.com/fulmenhq/tmplcat/internal/changeset"
	"github.com/fulmenhq/tmplcat/internal/vcs"
	"github.com/fulmenhq/tmplcat/pkg/config"
	"github.com/fulmenhq/tmplcat/pkg/logger"
)

// Options wires the update run.
type Options struct {
	Config  *config.Config
	Store   *catalog.Store
	History vcs.History
	NoOp    bool
	// Out receives progress lines. Nil discards.
	Out io.Writer
}

// Result summarises an update run.
type Result struct {
	FirstCommit bool
	// Changed are the template directories touched by the commit.
	Changed      []string
	Bumps        []bump.Result
	IndexChanged bool
}

// Bumped returns the templates whose version was (or, in no-op mode, would
// be) incremented.
func (r *Result) Bumped() []string {
	var out []string
	for _, b := range r.Bumps {
		if b.Outcome == bump.OutcomeBumped {
			out = append(out, b.Template)
		}
	}
	return out
}

// Update runs the whole pipeline. It stops at the first error; manifests
// bumped before the error stay bumped and the index is not touched.
func Update(ctx context.Context, opts Options) (*Result, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}

	cs, err := changeset.Resolve(ctx, opts.History)
	if err != nil {
		return nil, err
	}
	templates, err := opts.Store.TemplateDirs(cfg.Layout.ManifestFile, cfg.Templates.Exclude)
	if err != nil {
		return nil, err
	}

	res := &Result{FirstCommit: cs.FirstCommit, Changed: cs.ChangedTemplates(templates)}
	logger.Info("resolved changed templates",
		logger.Int("templates", len(templates)),
		logger.Strings("changed", res.Changed),
		logger.Bool("first_commit", cs.FirstCommit))

	gate := &bump.Gate{
		History:      opts.History,
		FS:           opts.Store.Fs(),
		ManifestFile: cfg.Layout.ManifestFile,
		Detection:    cfg.Bump.Detection,
		NoOp:         opts.NoOp,
		Out:          opts.Out,
	}
	res.Bumps, err = gate.Apply(ctx, res.Changed, cs.FirstCommit)
	if err != nil {
		return res, err
	}

	builder := &catalog.Builder{
		Store:        opts.Store,
		ManifestFile: cfg.Layout.ManifestFile,
		IndexFile:    cfg.Layout.IndexFile,
		Exclude:      cfg.Templates.Exclude,
		NoOp:         opts.NoOp,
		Out:          opts.Out,
	}
	res.IndexChanged, err = builder.Update()
	if err != nil {
		return res, err
	}

	logger.Info("catalog update complete",
		logger.Strings("bumped", res.Bumped()),
		logger.Bool("index_changed", res.IndexChanged))
	return res, nil
}
