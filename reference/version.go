package reference

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/Masterminds/semver/v3"
)

// ErrInvalidVersion is returned when a string is not a full semantic version
var ErrInvalidVersion = errors.New("invalid semantic version")

// versionCore rejects the shortened forms ("18", "3.9") that semver.NewVersion
// would otherwise coerce into a full version.
var versionCore = regexp.MustCompile(
	`^v?[0-9]+\.[0-9]+\.[0-9]+(-[0-9A-Za-z.-]+)?(\+[0-9A-Za-z.-]+)?$`,
)

// ParseVersion parses a MAJOR.MINOR.PATCH version with optional pre-release
// and build metadata. Leading zeros in the core are accepted and normalized,
// so "22.04.3" renders as "22.4.3".
func ParseVersion(s string) (*semver.Version, error) {
	if !versionCore.MatchString(s) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidVersion, s)
	}

	v, err := semver.NewVersion(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrInvalidVersion, s, err)
	}

	return v, nil
}
