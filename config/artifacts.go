package config

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/charmed-kubernetes/jenkins-sub000/domain"
	"github.com/charmed-kubernetes/jenkins-sub000/errors"
	"github.com/charmed-kubernetes/jenkins-sub000/fs"
	"github.com/charmed-kubernetes/jenkins-sub000/version"
)

// artifactDoc is one entry of the artifact list as written in YAML.
type artifactDoc struct {
	Kind            string                `yaml:"kind"`
	Downstream      string                `yaml:"downstream"`
	Upstream        string                `yaml:"upstream"`
	Branch          string                `yaml:"branch"`
	Subdir          string                `yaml:"subdir"`
	StartingVersion string                `yaml:"starting_version"`
	ChannelRange    rangeDoc              `yaml:"channel_range"`
	Tags            []string              `yaml:"tags"`
	Architectures   []string              `yaml:"architectures"`
	Resources       []domain.ResourceSpec `yaml:"resources"`
	Templates       []domain.TemplateSpec `yaml:"templates"`
	BuildScript     string                `yaml:"build_script"`
	PPA             string                `yaml:"ppa"`
}

type rangeDoc struct {
	Min string `yaml:"min"`
	Max string `yaml:"max"`
}

// LoadArtifacts reads and validates the artifact list at path.
func LoadArtifacts(fsys fs.Filesystem, path string) ([]domain.Artifact, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, errors.WrapWithContext(err, errors.CodeInvalidConfig, "failed to read artifact list",
			map[string]interface{}{"path": path})
	}
	artifacts, err := ParseArtifacts(data)
	if err != nil {
		return nil, errors.WrapWithContext(err, errors.GetCode(err), "failed to load artifact list",
			map[string]interface{}{"path": path})
	}
	return artifacts, nil
}

// ParseArtifacts decodes an artifact list: a YAML sequence of single-key
// maps from artifact name to its definition, e.g.
//
//	- kubernetes-worker:
//	    downstream: https://github.com/charmed-kubernetes/charm-kubernetes-worker
//	    branch: main
//	    tags: [k8s, kubernetes-worker]
//
// The list is checked against the embedded CUE schema before conversion.
// Order is preserved.
func ParseArtifacts(data []byte) ([]domain.Artifact, error) {
	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, errors.NewParseError("artifact list", abbreviate(data), err)
	}
	if raw == nil {
		return nil, nil
	}
	if err := validateSchema(raw); err != nil {
		return nil, err
	}

	var entries []map[string]artifactDoc
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, errors.NewParseError("artifact list", abbreviate(data), err)
	}

	seen := make(map[string]bool)
	artifacts := make([]domain.Artifact, 0, len(entries))
	var problems []string
	for i, entry := range entries {
		if len(entry) != 1 {
			problems = append(problems, fmt.Sprintf("entry %d: expected exactly one artifact name, got %d", i, len(entry)))
			continue
		}
		for name, doc := range entry {
			if seen[name] {
				problems = append(problems, fmt.Sprintf("%s: duplicate artifact", name))
				continue
			}
			seen[name] = true

			a, err := doc.artifact(name)
			if err != nil {
				problems = append(problems, err.Error())
				continue
			}
			artifacts = append(artifacts, a)
		}
	}

	if len(problems) > 0 {
		return nil, errors.New(errors.CodeInvalidConfig,
			fmt.Sprintf("artifact list validation failed: %s", strings.Join(problems, "; ")))
	}
	return artifacts, nil
}

func (d artifactDoc) artifact(name string) (domain.Artifact, error) {
	kind := domain.ArtifactKind(d.Kind)
	if kind == "" {
		kind = domain.KindCharm
	}

	a := domain.Artifact{
		Name:            name,
		Kind:            kind,
		Downstream:      d.Downstream,
		Upstream:        d.Upstream,
		Branch:          d.Branch,
		Subdir:          d.Subdir,
		StartingVersion: d.StartingVersion,
		Tags:            d.Tags,
		Architectures:   d.Architectures,
		Resources:       d.Resources,
		Templates:       d.Templates,
		BuildScript:     d.BuildScript,
		PPA:             d.PPA,
	}

	r, err := d.ChannelRange.parse()
	if err != nil {
		return domain.Artifact{}, fmt.Errorf("%s: %w", name, err)
	}
	a.Range = r

	if err := validateArtifact(a); err != nil {
		return domain.Artifact{}, fmt.Errorf("%s: %w", name, err)
	}
	return a, nil
}

func (r rangeDoc) parse() (version.ChannelRange, error) {
	var cr version.ChannelRange
	if r.Min != "" {
		ch, err := version.ParseChannel(r.Min)
		if err != nil {
			return cr, err
		}
		cr.Min = &ch
	}
	if r.Max != "" {
		ch, err := version.ParseChannel(r.Max)
		if err != nil {
			return cr, err
		}
		cr.Max = &ch
	}
	if cr.Min != nil && cr.Max != nil && cr.Min.Track.Compare(cr.Max.Track) > 0 {
		return cr, fmt.Errorf("channel range min %s is above max %s", cr.Min, cr.Max)
	}
	return cr, nil
}

// validateArtifact checks the rules the schema cannot express.
func validateArtifact(a domain.Artifact) error {
	if a.StartingVersion != "" {
		if !a.Versioned() {
			return fmt.Errorf("starting_version requires upstream")
		}
		if _, err := version.Parse(a.StartingVersion); err != nil {
			return err
		}
	}
	if a.Kind == domain.KindDeb && a.PPA == "" {
		return fmt.Errorf("deb artifacts require a ppa")
	}
	if a.Kind != domain.KindCharm && len(a.Resources) > 0 {
		return fmt.Errorf("only charms declare resources")
	}
	for _, r := range a.Resources {
		switch r.Kind {
		case domain.ResourceOCIImage:
			if r.Image == "" {
				return fmt.Errorf("resource %s: oci-image requires image", r.Name)
			}
		case domain.ResourceFile:
			if r.Script == "" || r.Path == "" {
				return fmt.Errorf("resource %s: file requires script and path", r.Name)
			}
		}
	}
	return nil
}

// Tags returns every tag used in artifacts, sorted.
func Tags(artifacts []domain.Artifact) []string {
	set := make(map[string]bool)
	for _, a := range artifacts {
		for _, t := range a.Tags {
			set[t] = true
		}
	}
	tags := make([]string, 0, len(set))
	for t := range set {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}

func abbreviate(data []byte) string {
	const limit = 64
	s := strings.TrimSpace(string(data))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
