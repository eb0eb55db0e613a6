package version

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmed-kubernetes/jenkins-sub000/errors"
)

// Risk is the maturity level of a channel.
type Risk string

const (
	Stable    Risk = "stable"
	Candidate Risk = "candidate"
	Beta      Risk = "beta"
	Edge      Risk = "edge"
)

// Risks lists every risk from most to least mature.
var Risks = []Risk{Stable, Candidate, Beta, Edge}

func (r Risk) rank() int {
	for i, risk := range Risks {
		if r == risk {
			return len(Risks) - i
		}
	}
	return 0
}

// Valid reports whether r is one of the known risks.
func (r Risk) Valid() bool {
	return r.rank() > 0
}

// MoreMatureThan reports whether r is strictly more mature than o.
func (r Risk) MoreMatureThan(o Risk) bool {
	return r.rank() > o.rank()
}

// ParseRisk parses one of stable, candidate, beta or edge.
func ParseRisk(s string) (Risk, error) {
	r := Risk(s)
	if !r.Valid() {
		return "", errors.NewParseError("risk", s, nil)
	}
	return r, nil
}

// Channel is a publication target: track/risk with an optional branch.
type Channel struct {
	Track  Track
	Risk   Risk
	Branch string
}

// NewChannel returns the channel track/risk.
func NewChannel(t Track, r Risk) Channel {
	return Channel{Track: t, Risk: r}
}

// ParseChannel parses "risk", "track", "track/risk" or
// "track/risk/branch". A bare risk implies the latest track and a bare track
// implies stable.
func ParseChannel(s string) (Channel, error) {
	if s == "" {
		return Channel{}, errors.NewParseError("channel", s, nil)
	}

	p := strings.Split(s, "/")
	ch := Channel{Track: Latest, Risk: Stable}

	var err error
	switch len(p) {
	case 1:
		if r := Risk(p[0]); r.Valid() {
			ch.Risk = r
		} else if ch.Track, err = ParseTrack(p[0]); err != nil {
			return Channel{}, errors.NewParseError("channel", s, err)
		}
	case 2:
		if r := Risk(p[0]); r.Valid() {
			if p[1] == "" {
				return Channel{}, errors.NewParseError("channel", s, fmt.Errorf("empty branch"))
			}
			ch.Risk, ch.Branch = r, p[1]
			break
		}
		if ch.Track, err = ParseTrack(p[0]); err != nil {
			return Channel{}, errors.NewParseError("channel", s, err)
		}
		if ch.Risk, err = ParseRisk(p[1]); err != nil {
			return Channel{}, errors.NewParseError("channel", s, err)
		}
	case 3:
		if ch.Track, err = ParseTrack(p[0]); err != nil {
			return Channel{}, errors.NewParseError("channel", s, err)
		}
		if ch.Risk, err = ParseRisk(p[1]); err != nil {
			return Channel{}, errors.NewParseError("channel", s, err)
		}
		if p[2] == "" {
			return Channel{}, errors.NewParseError("channel", s, fmt.Errorf("empty branch"))
		}
		ch.Branch = p[2]
	default:
		return Channel{}, errors.NewParseError("channel", s, fmt.Errorf("too many components"))
	}

	return ch, nil
}

// MustParseChannel is like ParseChannel but panics on error.
func MustParseChannel(s string) Channel {
	ch, err := ParseChannel(s)
	if err != nil {
		panic(err)
	}
	return ch
}

// String returns track/risk[/branch]. The track is always spelled out.
func (c Channel) String() string {
	s := c.Track.String() + "/" + string(c.Risk)
	if c.Branch != "" {
		s += "/" + c.Branch
	}
	return s
}

// MarshalText implements encoding.TextMarshaler.
func (c Channel) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Channel) UnmarshalText(b []byte) error {
	parsed, err := ParseChannel(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// MatchedNumericalChannel translates a bare risk into the newest numbered
// channel that supports it. Tracks in trackToChannels are visited in
// descending order and the first whose channel list contains
// "{track}/{risk}" wins.
func MatchedNumericalChannel(risk Risk, trackToChannels map[string][]string) (Channel, bool) {
	tracks := make([]Track, 0, len(trackToChannels))
	names := make(map[Track]string, len(trackToChannels))
	for name := range trackToChannels {
		t, err := ParseTrack(name)
		if err != nil || t.IsLatest() {
			continue
		}
		tracks = append(tracks, t)
		names[t] = name
	}
	sort.Slice(tracks, func(i, j int) bool {
		return tracks[i].Compare(tracks[j]) > 0
	})

	for _, t := range tracks {
		want := NewChannel(t, risk)
		for _, raw := range trackToChannels[names[t]] {
			ch, err := ParseChannel(raw)
			if err != nil {
				continue
			}
			if ch.Track == want.Track && ch.Risk == want.Risk && ch.Branch == "" {
				return want, true
			}
		}
	}
	return Channel{}, false
}
