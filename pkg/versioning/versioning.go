// Package versioning implements the compact semantic-version scheme used by
// template manifests: exactly three dot-separated non-negative integers.
// Prerelease and build suffixes are not part of the scheme.
package versioning

import (
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"
)

type Comparison int

const (
	ComparisonUnknown Comparison = iota
	ComparisonLess
	ComparisonEqual
	ComparisonGreater
)

// String returns a short name for the comparison result.
func (c Comparison) String() string {
	switch c {
	case ComparisonLess:
		return "less"
	case ComparisonEqual:
		return "equal"
	case ComparisonGreater:
		return "greater"
	default:
		return "unknown"
	}
}

// DefaultVersion is assumed for manifests that carry no version at all.
const DefaultVersion = "0.0.0"

var compactPattern = regexp.MustCompile(`^([0-9]+)\.([0-9]+)\.([0-9]+)$`)

// Version is a parsed MAJOR.MINOR.PATCH triple. Components are
// arbitrary-precision so that bumping never overflows.
type Version struct {
	major *big.Int
	minor *big.Int
	patch *big.Int
}

// ParseCompact parses a strict MAJOR.MINOR.PATCH string. Surrounding
// whitespace is ignored; leading zeros are accepted and normalised.
func ParseCompact(input string) (*Version, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return nil, errors.New("empty version")
	}

	matches := compactPattern.FindStringSubmatch(trimmed)
	if len(matches) == 0 {
		return nil, fmt.Errorf("invalid format: %q (expected MAJOR.MINOR.PATCH)", trimmed)
	}

	parts := make([]*big.Int, 3)
	for i, seg := range matches[1:4] {
		n, ok := new(big.Int).SetString(seg, 10)
		if !ok {
			return nil, fmt.Errorf("segment '%s' is not a number", seg)
		}
		parts[i] = n
	}
	return &Version{major: parts[0], minor: parts[1], patch: parts[2]}, nil
}

// String renders the version as MAJOR.MINOR.PATCH.
func (v *Version) String() string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%s.%s.%s", v.major, v.minor, v.patch)
}

// BumpPatch returns a new version with the patch component incremented.
func (v *Version) BumpPatch() *Version {
	if v == nil {
		return nil
	}
	return &Version{
		major: new(big.Int).Set(v.major),
		minor: new(big.Int).Set(v.minor),
		patch: new(big.Int).Add(v.patch, big.NewInt(1)),
	}
}

// Compare orders v against other component by component.
func (v *Version) Compare(other *Version) Comparison {
	if v == nil || other == nil {
		return ComparisonUnknown
	}
	for _, pair := range [][2]*big.Int{{v.major, other.major}, {v.minor, other.minor}, {v.patch, other.patch}} {
		switch pair[0].Cmp(pair[1]) {
		case -1:
			return ComparisonLess
		case 1:
			return ComparisonGreater
		}
	}
	return ComparisonEqual
}

// Compare determines ordering between version strings a and b.
func Compare(a, b string) (Comparison, error) {
	av, err := ParseCompact(a)
	if err != nil {
		return ComparisonUnknown, fmt.Errorf("invalid version '%s': %w", a, err)
	}
	bv, err := ParseCompact(b)
	if err != nil {
		return ComparisonUnknown, fmt.Errorf("invalid version '%s': %w", b, err)
	}
	return av.Compare(bv), nil
}

// IsCompact reports whether s is a well-formed MAJOR.MINOR.PATCH version.
func IsCompact(s string) bool {
	_, err := ParseCompact(s)
	return err == nil
}

// BumpPatch increments the patch component of a MAJOR.MINOR.PATCH string.
// Anything else, including the empty string, is returned unchanged: a
// malformed version is never a reason to stop the pipeline.
func BumpPatch(version string) string {
	v, err := ParseCompact(version)
	if err != nil {
		return version
	}
	return v.BumpPatch().String()
}
