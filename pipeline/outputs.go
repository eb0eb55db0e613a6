package pipeline

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/charmed-kubernetes/jenkins-sub000/domain"
	"github.com/charmed-kubernetes/jenkins-sub000/errors"
	"github.com/charmed-kubernetes/jenkins-sub000/fs"
)

// Platform is one (base, arch) pair a file was built for.
type Platform struct {
	Base string
	Arch string
}

var outputSuffix = map[domain.ArtifactKind]string{
	domain.KindCharm:  ".charm",
	domain.KindBundle: ".zip",
	domain.KindSnap:   ".snap",
	domain.KindDeb:    "_source.changes",
}

// ParseOutputName reads the platforms from a produced file name:
//
//	kubernetes-worker_ubuntu-22.04-amd64.charm
//	kubernetes-worker_ubuntu@22.04-amd64_ubuntu@24.04-amd64.charm
//	kubernetes-worker.charm
//	kubectl_1.32.1_arm64.snap
//	kubeadm_1.32.1-0ubuntu1_source.changes
//	kubernetes-core.zip
func ParseOutputName(kind domain.ArtifactKind, file string) ([]Platform, error) {
	base := path.Base(file)
	stem, ok := strings.CutSuffix(base, outputSuffix[kind])
	if !ok || outputSuffix[kind] == "" {
		return nil, errors.NewParseError(string(kind)+" output", file, fmt.Errorf("unexpected suffix"))
	}

	switch kind {
	case domain.KindBundle:
		return []Platform{{Arch: "all"}}, nil
	case domain.KindDeb:
		return []Platform{{Arch: "source"}}, nil
	case domain.KindSnap:
		parts := strings.Split(stem, "_")
		if len(parts) != 3 {
			return nil, errors.NewParseError("snap output", file, fmt.Errorf("expected name_version_arch"))
		}
		return []Platform{{Arch: parts[2]}}, nil
	}

	// Reactive builds name the file after the charm alone and the one file
	// serves every architecture.
	if !strings.Contains(stem, "_") {
		if stem == "" {
			return nil, errors.NewParseError("charm output", file, fmt.Errorf("empty name"))
		}
		return []Platform{{Arch: "all"}}, nil
	}
	parts := strings.Split(stem, "_")
	out := make([]Platform, 0, len(parts)-1)
	for _, p := range parts[1:] {
		i := strings.LastIndex(p, "-")
		if i <= 0 || i == len(p)-1 {
			return nil, errors.NewParseError("charm output", file, fmt.Errorf("bad platform %q", p))
		}
		out = append(out, Platform{Base: strings.Replace(p[:i], "@", "-", 1), Arch: p[i+1:]})
	}
	return out, nil
}

// FindOutputs lists the files of kind produced in dir, sorted by name.
func FindOutputs(fsys fs.Filesystem, kind domain.ArtifactKind, dir string) ([]string, error) {
	entries, err := fsys.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), outputSuffix[kind]) {
			out = append(out, path.Join(dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

var expectedMIME = map[domain.ArtifactKind]string{
	domain.KindCharm:  "application/zip",
	domain.KindBundle: "application/zip",
	domain.KindDeb:    "text/plain",
}

// Sniff checks the content type of a produced file against what the store
// accepts for kind. Kinds without an expectation pass.
func Sniff(fsys fs.Filesystem, kind domain.ArtifactKind, file string) error {
	want, ok := expectedMIME[kind]
	if !ok {
		return nil
	}
	f, err := fsys.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	detected, err := mimetype.DetectReader(f)
	if err != nil {
		return errors.Wrapf(err, errors.CodeInvalidInput, "failed to detect content type of %s", file)
	}
	for m := detected; m != nil; m = m.Parent() {
		if m.Is(want) {
			return nil
		}
	}
	return errors.Newf(errors.CodeInvalidInput, "%s is %s, want %s", file, detected.String(), want)
}
