package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmed-kubernetes/jenkins-sub000/domain"
	"github.com/charmed-kubernetes/jenkins-sub000/errors"
	"github.com/charmed-kubernetes/jenkins-sub000/version"
)

type charmcraftBase struct {
	Name         string `json:"name"`
	Channel      string `json:"channel"`
	Architecture string `json:"architecture"`
}

func (b charmcraftBase) String() string {
	if b.Name == "" {
		return ""
	}
	return b.Name + "-" + b.Channel
}

type charmcraftRevision struct {
	Revision  int              `json:"revision"`
	Version   string           `json:"version"`
	CreatedAt time.Time        `json:"created_at"`
	Status    string           `json:"status"`
	Bases     []charmcraftBase `json:"bases"`
}

type charmcraftResource struct {
	Name     string `json:"name"`
	Revision int    `json:"revision"`
}

type charmcraftRelease struct {
	Status    string               `json:"status"`
	Channel   string               `json:"channel"`
	Version   *string              `json:"version"`
	Revision  *int                 `json:"revision"`
	Resources []charmcraftResource `json:"resources"`
}

type charmcraftMapping struct {
	Base     *charmcraftBase     `json:"base"`
	Releases []charmcraftRelease `json:"releases"`
}

type charmcraftTrack struct {
	Track    string              `json:"track"`
	Mappings []charmcraftMapping `json:"mappings"`
}

// ParseCharmcraftStatus decodes `charmcraft status --format json` into the
// releases of every open channel. Closed and tracking channels are skipped.
func ParseCharmcraftStatus(data []byte) ([]Release, error) {
	var tracks []charmcraftTrack
	if err := json.Unmarshal(data, &tracks); err != nil {
		return nil, errors.NewParseError("charmcraft status", abbreviate(data), err)
	}

	var out []Release
	for _, tr := range tracks {
		for _, m := range tr.Mappings {
			for _, rel := range m.Releases {
				if rel.Status != "open" || rel.Revision == nil {
					continue
				}
				ch, err := version.ParseChannel(rel.Channel)
				if err != nil {
					return nil, err
				}
				r := Release{Channel: ch, Revision: *rel.Revision}
				if rel.Version != nil {
					r.Version = *rel.Version
				}
				if m.Base != nil {
					r.Arch = m.Base.Architecture
					r.Base = m.Base.String()
				}
				for _, res := range rel.Resources {
					r.Resources = append(r.Resources, domain.Resource{Name: res.Name, Revision: res.Revision})
				}
				out = append(out, r)
			}
		}
	}
	return out, nil
}

// ParseCharmcraftRevisions decodes `charmcraft revisions --format json` and
// attaches channel memberships from releases. Versions that are not semver
// are left zero.
func ParseCharmcraftRevisions(data []byte, releases []Release) ([]domain.Revision, error) {
	var raw []charmcraftRevision
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.NewParseError("charmcraft revisions", abbreviate(data), err)
	}

	byRev := make(map[int][]domain.ChannelMembership)
	for _, rel := range releases {
		byRev[rel.Revision] = append(byRev[rel.Revision], domain.ChannelMembership{Channel: rel.Channel, Promoted: true})
	}

	out := make([]domain.Revision, 0, len(raw))
	for _, r := range raw {
		v, _ := version.Parse(r.Version)
		rev := domain.Revision{
			Number:   r.Revision,
			Version:  v,
			Created:  r.CreatedAt,
			Channels: byRev[r.Revision],
		}
		for _, b := range r.Bases {
			rev.Architectures = appendUnique(rev.Architectures, b.Architecture)
			rev.Bases = appendUnique(rev.Bases, b.String())
		}
		out = append(out, rev)
	}
	return out, nil
}

// ParseResourceRevisions decodes the `charmcraft resource-revisions` table
// and returns the revision numbers newest first.
func ParseResourceRevisions(text string) ([]int, error) {
	var revs []int
	sc := bufio.NewScanner(strings.NewReader(text))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 || strings.EqualFold(fields[0], "revision") {
			continue
		}
		n, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, errors.NewParseError("resource revision", sc.Text(), err)
		}
		revs = append(revs, n)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(revs)))
	return revs, nil
}

var uploadRevisionRe = regexp.MustCompile(`Revision (\d+)`)

// ParseUploadRevision extracts the revision number from the output of
// `charmcraft upload`, `charmcraft upload-resource` or `snapcraft upload`.
func ParseUploadRevision(text string) (int, error) {
	m := uploadRevisionRe.FindStringSubmatch(text)
	if m == nil {
		return 0, errors.NewParseError("upload output", abbreviate([]byte(text)), fmt.Errorf("no revision"))
	}
	return strconv.Atoi(m[1])
}

// ParseSnapRevisions decodes the `snapcraft list-revisions` table:
//
//	Rev.    Uploaded              Arches    Version    Channels
//	1629    2023-01-18T10:00:00Z  amd64     1.19.3     1.19/stable*, 1.19/candidate*
//
// A trailing * marks the channel's current revision; "-" means unreleased.
func ParseSnapRevisions(text string) ([]domain.Revision, error) {
	var out []domain.Revision
	sc := bufio.NewScanner(strings.NewReader(text))
	for sc.Scan() {
		line := sc.Text()
		fields := strings.Fields(line)
		if len(fields) == 0 || strings.HasPrefix(fields[0], "Rev") {
			continue
		}
		if len(fields) < 5 {
			return nil, errors.NewParseError("snap revision", line, fmt.Errorf("expected 5 columns"))
		}

		n, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, errors.NewParseError("snap revision", line, err)
		}
		created, err := time.Parse(time.RFC3339, fields[1])
		if err != nil {
			return nil, errors.NewParseError("snap revision", line, err)
		}
		v, _ := version.Parse(fields[3])

		rev := domain.Revision{
			Number:        n,
			Version:       v,
			Created:       created,
			Architectures: strings.Split(fields[2], ","),
		}

		for _, raw := range strings.Split(strings.Join(fields[4:], " "), ",") {
			raw = strings.TrimSpace(raw)
			if raw == "" || raw == "-" {
				continue
			}
			promoted := strings.HasSuffix(raw, "*")
			ch, err := version.ParseChannel(strings.TrimSuffix(raw, "*"))
			if err != nil {
				return nil, err
			}
			rev.Channels = append(rev.Channels, domain.ChannelMembership{Channel: ch, Promoted: promoted})
		}
		out = append(out, rev)
	}
	return out, nil
}

// ReleasesFromRevisions derives the channel map from revision memberships:
// every promoted membership is the current release of its channel.
func ReleasesFromRevisions(revs []domain.Revision) []Release {
	var out []Release
	for _, r := range revs {
		for _, m := range r.Channels {
			if !m.Promoted {
				continue
			}
			arches := r.Architectures
			if len(arches) == 0 {
				arches = []string{""}
			}
			for _, arch := range arches {
				out = append(out, Release{Channel: m.Channel, Arch: arch, Revision: r.Number, Version: r.Version.Original()})
			}
		}
	}
	return out
}

type launchpadSource struct {
	SourcePackageName    string     `json:"source_package_name"`
	SourcePackageVersion string     `json:"source_package_version"`
	Status               string     `json:"status"`
	DatePublished        *time.Time `json:"date_published"`
	DateCreated          time.Time  `json:"date_created"`
}

type launchpadCollection struct {
	TotalSize int               `json:"total_size"`
	Entries   []launchpadSource `json:"entries"`
}

// ParseLaunchpadSources decodes a Launchpad getPublishedSources collection.
// Publications are numbered in creation order starting at 1; the ones still
// Published are current members of ch.
func ParseLaunchpadSources(data []byte, ch version.Channel) ([]domain.Revision, error) {
	var coll launchpadCollection
	if err := json.Unmarshal(data, &coll); err != nil {
		return nil, errors.NewParseError("launchpad sources", abbreviate(data), err)
	}

	entries := coll.Entries
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].DateCreated.Before(entries[j].DateCreated)
	})

	out := make([]domain.Revision, 0, len(entries))
	for i, e := range entries {
		v, _ := version.Parse(DebianUpstreamVersion(e.SourcePackageVersion))
		rev := domain.Revision{Number: i + 1, Version: v, Created: e.DateCreated}
		if e.DatePublished != nil {
			rev.Created = *e.DatePublished
		}
		if e.Status == "Published" {
			rev.Channels = []domain.ChannelMembership{{Channel: ch, Promoted: true}}
		}
		out = append(out, rev)
	}
	return out, nil
}

// DebianUpstreamVersion strips the epoch and debian revision from a debian
// version: "1:1.32.1-0ubuntu1" becomes "1.32.1".
func DebianUpstreamVersion(v string) string {
	if i := strings.Index(v, ":"); i >= 0 {
		v = v[i+1:]
	}
	if i := strings.LastIndex(v, "-"); i >= 0 {
		v = v[:i]
	}
	return strings.ReplaceAll(v, "~", "-")
}

func appendUnique(list []string, s string) []string {
	if s == "" {
		return list
	}
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}

func abbreviate(data []byte) string {
	const limit = 64
	s := strings.TrimSpace(string(data))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
