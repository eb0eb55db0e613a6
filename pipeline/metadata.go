package pipeline

import (
	"path"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/charmed-kubernetes/jenkins-sub000/domain"
	"github.com/charmed-kubernetes/jenkins-sub000/errors"
	"github.com/charmed-kubernetes/jenkins-sub000/fs"
)

type charmMetadata struct {
	Resources map[string]struct {
		Type string `yaml:"type"`
	} `yaml:"resources"`
}

// DeclaredResources reads the resources a charm declares in metadata.yaml
// or charmcraft.yaml, sorted by name. Both files are optional.
func DeclaredResources(fsys fs.Filesystem, dir string) ([]domain.ResourceSpec, error) {
	seen := make(map[string]domain.ResourceKind)
	for _, name := range []string{"metadata.yaml", "charmcraft.yaml"} {
		file := path.Join(dir, name)
		if !exists(fsys, file) {
			continue
		}
		data, err := fsys.ReadFile(file)
		if err != nil {
			return nil, errors.Wrapf(err, errors.CodeBuildTool, "failed to read %s", file)
		}
		var md charmMetadata
		if err := yaml.Unmarshal(data, &md); err != nil {
			return nil, errors.NewParseError("charm metadata", file, err)
		}
		for res, decl := range md.Resources {
			kind := domain.ResourceFile
			if decl.Type == string(domain.ResourceOCIImage) {
				kind = domain.ResourceOCIImage
			}
			seen[res] = kind
		}
	}

	out := make([]domain.ResourceSpec, 0, len(seen))
	for name, kind := range seen {
		out = append(out, domain.ResourceSpec{Name: name, Kind: kind})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
