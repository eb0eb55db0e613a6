package version

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmed-kubernetes/jenkins-sub000/errors"
)

// LatestName is the name of the rolling track.
const LatestName = "latest"

// Track is a version line: either a major.minor pair or the rolling latest
// track.
type Track struct {
	Major  uint64
	Minor  uint64
	latest bool
}

// Latest is the rolling track. It sorts above every numeric track.
var Latest = Track{latest: true}

// NewTrack returns the numeric track major.minor.
func NewTrack(major, minor uint64) Track {
	return Track{Major: major, Minor: minor}
}

// ParseTrack parses "latest" or "major.minor".
func ParseTrack(s string) (Track, error) {
	if s == LatestName {
		return Latest, nil
	}
	parts := strings.Split(s, ".")
	if len(parts) != 2 {
		return Track{}, errors.NewParseError("track", s, nil)
	}
	major, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return Track{}, errors.NewParseError("track", s, err)
	}
	minor, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return Track{}, errors.NewParseError("track", s, err)
	}
	return NewTrack(major, minor), nil
}

// IsLatest reports whether t is the rolling latest track.
func (t Track) IsLatest() bool {
	return t.latest
}

// String returns "latest" or "major.minor".
func (t Track) String() string {
	if t.latest {
		return LatestName
	}
	return fmt.Sprintf("%d.%d", t.Major, t.Minor)
}

// Compare orders tracks by (major, minor) with latest greatest.
func (t Track) Compare(o Track) int {
	switch {
	case t.latest && o.latest:
		return 0
	case t.latest:
		return 1
	case o.latest:
		return -1
	}
	if c := cmpUint(t.Major, o.Major); c != 0 {
		return c
	}
	return cmpUint(t.Minor, o.Minor)
}

// Matches reports whether v belongs to track t. The latest track matches
// every version.
func (t Track) Matches(v Version) bool {
	if t.latest {
		return true
	}
	return !v.IsZero() && v.Major() == t.Major && v.Minor() == t.Minor
}

// MarshalText implements encoding.TextMarshaler.
func (t Track) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Track) UnmarshalText(b []byte) error {
	parsed, err := ParseTrack(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func cmpUint(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
