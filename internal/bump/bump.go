// Package bump decides whether a changed template needs its patch version
// incremented, and persists the increment.
package bump

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/fulmenhq/tmplcat/internal/manifest"
	"github.com/fulmenhq/tmplcat/internal/vcs"
	"github.com/fulmenhq/tmplcat/pkg/config"
	"github.com/fulmenhq/tmplcat/pkg/logger"
	"github.com/fulmenhq/tmplcat/pkg/safeio"
	"github.com/fulmenhq/tmplcat/pkg/versioning"
)

// versionMarker is the text searched for in a manifest diff in marker mode.
const versionMarker = "version:"

// Outcome classifies what the gate did with one template.
type Outcome string

const (
	OutcomeBumped       Outcome = "bumped"
	OutcomeAuthorBumped Outcome = "author-bumped"
	OutcomeUnchanged    Outcome = "unchanged"
)

// Result describes the decision for one template directory.
type Result struct {
	Template string
	Outcome  Outcome
	From     string
	To       string
	// Written is false for dry runs and for every outcome but OutcomeBumped.
	Written bool
}

// Gate applies the bump decision to changed template directories.
type Gate struct {
	History vcs.History
	// FS is rooted at the repository root.
	FS           afero.Fs
	ManifestFile string
	// Detection is config.DetectionStructured or config.DetectionMarker.
	Detection string
	NoOp      bool
	// Out receives one progress line per bump. Nil discards.
	Out io.Writer
}

// Apply runs the gate over dirs in name order. The first manifest that
// cannot be loaded or written aborts the run.
func (g *Gate) Apply(ctx context.Context, dirs []string, firstCommit bool) ([]Result, error) {
	sorted := append([]string(nil), dirs...)
	sort.Strings(sorted)

	results := make([]Result, 0, len(sorted))
	for _, dir := range sorted {
		res, err := g.applyOne(ctx, dir, firstCommit)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

func (g *Gate) applyOne(ctx context.Context, dir string, firstCommit bool) (Result, error) {
	manifestPath := path.Join(dir, g.ManifestFile)
	res := Result{Template: dir}

	if !firstCommit && g.AuthorBumped(ctx, manifestPath) {
		logger.Info("version already bumped by author", logger.String("template", dir))
		res.Outcome = OutcomeAuthorBumped
		return res, nil
	}

	doc, err := manifest.Load(g.FS, manifestPath)
	if err != nil {
		return res, err
	}
	res.From = doc.Version()
	if !versioning.IsCompact(res.From) {
		logger.Warn("version not in major.minor.patch form, manifest left unchanged",
			logger.String("template", dir), logger.String("version", res.From))
		res.To = res.From
		res.Outcome = OutcomeUnchanged
		return res, nil
	}
	res.To = versioning.BumpPatch(res.From)
	res.Outcome = OutcomeBumped

	if g.NoOp {
		g.printf("Would bump %s version: %s -> %s\n", dir, res.From, res.To)
		return res, nil
	}

	doc.SetVersion(res.To)
	data, err := doc.Encode()
	if err != nil {
		return res, err
	}
	logger.Debug("rewriting manifest", logger.String("path", doc.Path()), logger.Bool("nested", doc.Nested()))
	if err := safeio.WriteFileAtomic(g.FS, doc.Path(), data); err != nil {
		return res, fmt.Errorf("writing manifest %s: %w", doc.Path(), err)
	}
	res.Written = true
	g.printf("Bumped %s version: %s -> %s\n", dir, res.From, res.To)
	return res, nil
}

// AuthorBumped reports whether the most recent commit already changed the
// version in manifestPath. Any history failure counts as "not bumped" so the
// caller errs on the side of a monotonic version.
func (g *Gate) AuthorBumped(ctx context.Context, manifestPath string) bool {
	if g.Detection == config.DetectionMarker {
		return g.markerBumped(ctx, manifestPath)
	}
	return g.structuredBumped(ctx, manifestPath)
}

func (g *Gate) markerBumped(ctx context.Context, manifestPath string) bool {
	diff, err := g.History.Diff(ctx, vcs.Parent, vcs.Head, manifestPath)
	if err != nil {
		logger.Debug("manifest diff failed, assuming no author bump", logger.String("path", manifestPath), logger.Err(err))
		return false
	}
	return diff != "" && strings.Contains(diff, versionMarker)
}

func (g *Gate) structuredBumped(ctx context.Context, manifestPath string) bool {
	head, err := g.History.Show(ctx, vcs.Head, manifestPath)
	if err != nil {
		logger.Debug("manifest not readable at HEAD, assuming no author bump", logger.String("path", manifestPath), logger.Err(err))
		return false
	}
	headVersion := committedVersion(manifestPath, head)
	if headVersion == nil {
		return false
	}

	parent, err := g.History.Show(ctx, vcs.Parent, manifestPath)
	switch {
	case errors.Is(err, vcs.ErrNotFound):
		return true
	case err != nil:
		logger.Debug("manifest not readable at parent, assuming no author bump", logger.String("path", manifestPath), logger.Err(err))
		return false
	}
	parentVersion := committedVersion(manifestPath, parent)
	if parentVersion == nil {
		return true
	}

	cmp, err := versioning.Compare(*headVersion, *parentVersion)
	if err != nil {
		return *headVersion != *parentVersion
	}
	return cmp == versioning.ComparisonGreater
}

// committedVersion extracts the version field from manifest content, or nil
// when the content has no usable version.
func committedVersion(manifestPath string, data []byte) *string {
	doc, err := manifest.Parse(manifestPath, data)
	if err != nil {
		return nil
	}
	v, ok := manifest.ScalarText(doc.Fields().Version)
	if !ok {
		return nil
	}
	return &v
}

func (g *Gate) printf(format string, args ...interface{}) {
	if g.Out != nil {
		_, _ = fmt.Fprintf(g.Out, format, args...)
	}
}
