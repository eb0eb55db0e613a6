// Package version parses and orders the identifiers the release engine
// reasons about: semantic versions, tracks, risks, channels and channel
// ranges.
package version

import (
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/charmed-kubernetes/jenkins-sub000/errors"
)

// Version is a parsed semantic version. The zero value is an absent version.
type Version struct {
	sv  *semver.Version
	raw string
}

// Parse parses s as a strict semantic version, accepting an optional
// leading "v". It returns a PARSE_ERROR on non-semver input.
func Parse(s string) (Version, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(s), "v")
	sv, err := semver.StrictNewVersion(trimmed)
	if err != nil {
		return Version{}, errors.NewParseError("version", s, err)
	}
	return Version{sv: sv, raw: s}, nil
}

// MustParse is like Parse but panics on error. Intended for tests and
// constants.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// IsZero reports whether v is the absent version.
func (v Version) IsZero() bool {
	return v.sv == nil
}

// String returns the canonical form without a leading "v".
func (v Version) String() string {
	if v.sv == nil {
		return ""
	}
	return v.sv.String()
}

// Original returns the string v was parsed from, e.g. the tag name "v1.32.1".
func (v Version) Original() string {
	return v.raw
}

// Major returns the major component.
func (v Version) Major() uint64 {
	if v.sv == nil {
		return 0
	}
	return v.sv.Major()
}

// Minor returns the minor component.
func (v Version) Minor() uint64 {
	if v.sv == nil {
		return 0
	}
	return v.sv.Minor()
}

// Patch returns the patch component.
func (v Version) Patch() uint64 {
	if v.sv == nil {
		return 0
	}
	return v.sv.Patch()
}

// Prerelease returns the prerelease component, or "".
func (v Version) Prerelease() string {
	if v.sv == nil {
		return ""
	}
	return v.sv.Prerelease()
}

// IsPrerelease reports whether v carries a prerelease component.
func (v Version) IsPrerelease() bool {
	return v.Prerelease() != ""
}

// Equal reports whether a and b have the same precedence.
func (v Version) Equal(o Version) bool {
	return Compare(v, o) == 0
}

// Compare returns -1, 0 or 1 following semver precedence. A prerelease sorts
// before its release and build metadata is ignored. The absent version sorts
// before every parsed version.
func Compare(a, b Version) int {
	switch {
	case a.sv == nil && b.sv == nil:
		return 0
	case a.sv == nil:
		return -1
	case b.sv == nil:
		return 1
	}
	return a.sv.Compare(b.sv)
}

// TrackOf returns the (major, minor) track of v.
func TrackOf(v Version) Track {
	return NewTrack(v.Major(), v.Minor())
}

// SortVersions sorts vs in ascending precedence.
func SortVersions(vs []Version) {
	sort.SliceStable(vs, func(i, j int) bool {
		return Compare(vs[i], vs[j]) < 0
	})
}

// Max returns the greatest version in vs, or false if vs is empty.
func Max(vs []Version) (Version, bool) {
	if len(vs) == 0 {
		return Version{}, false
	}
	max := vs[0]
	for _, v := range vs[1:] {
		if Compare(v, max) > 0 {
			max = v
		}
	}
	return max, true
}

// MarshalText implements encoding.TextMarshaler using the original spelling.
func (v Version) MarshalText() ([]byte, error) {
	return []byte(v.raw), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *Version) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*v = Version{}
		return nil
	}
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
