package compilation

import (
	"regexp"
	"strings"

	"github.com/Masterminds/semver"
	"github.com/pkg/errors"
)

// coerceVersionRegexp matches the first major.minor.patch triple in a version string.
var coerceVersionRegexp = regexp.MustCompile(`(\d+)\.(\d+)\.(\d+)`)

// NormalizeVersion rewrites nightly versions recorded with a "-ci." prerelease tag (e.g.
// "0.8.17-ci.2022.8.9+commit.6b60524c") to the "-nightly." form compiler builds are published under.
func NormalizeVersion(version string) string {
	return strings.Replace(strings.TrimSpace(version), "-ci.", "-nightly.", 1)
}

// CoerceVersion extracts the plain major.minor.patch version from a full compiler version string, dropping any
// prerelease and build metadata.
func CoerceVersion(version string) (*semver.Version, error) {
	match := coerceVersionRegexp.FindString(version)
	if match == "" {
		return nil, errors.Errorf("could not parse a compiler version from %q", version)
	}
	return semver.NewVersion(match)
}

// VersionInRange returns true if the coerced version satisfies the provided semver constraint. Unparsable versions never
// satisfy a constraint.
func VersionInRange(version string, constraint string) bool {
	coerced, err := CoerceVersion(version)
	if err != nil {
		return false
	}
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return false
	}
	return c.Check(coerced)
}
