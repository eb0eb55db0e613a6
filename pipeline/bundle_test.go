package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/charmed-kubernetes/jenkins-sub000/errors"
)

const bundleYAML = `description: A minimal Kubernetes cluster
# pinned by the release job
applications:
  kubernetes-control-plane:
    charm: kubernetes-control-plane
    channel: latest/edge
    num_units: 1
  kubernetes-worker:
    charm: kubernetes-worker
    num_units: 1
relations:
- - kubernetes-control-plane:kube-control
  - kubernetes-worker:kube-control
`

type bundleDoc struct {
	Applications map[string]map[string]interface{} `yaml:"applications"`
	Services     map[string]map[string]interface{} `yaml:"services"`
}

func TestRewriteBundleChannels(t *testing.T) {
	out, err := RewriteBundleChannels([]byte(bundleYAML), "1.32/stable")
	require.NoError(t, err)
	assert.Contains(t, string(out), "# pinned by the release job")

	var doc bundleDoc
	require.NoError(t, yaml.Unmarshal(out, &doc))
	assert.Equal(t, "1.32/stable", doc.Applications["kubernetes-control-plane"]["channel"])
	assert.Equal(t, "1.32/stable", doc.Applications["kubernetes-worker"]["channel"])
	assert.Equal(t, 1, doc.Applications["kubernetes-worker"]["num_units"])
}

func TestRewriteBundleChannels_Services(t *testing.T) {
	out, err := RewriteBundleChannels([]byte("services:\n  etcd:\n    charm: etcd\n"), "1.31/edge")
	require.NoError(t, err)

	var doc bundleDoc
	require.NoError(t, yaml.Unmarshal(out, &doc))
	assert.Equal(t, "1.31/edge", doc.Services["etcd"]["channel"])
}

func TestRewriteBundleChannels_Invalid(t *testing.T) {
	for _, in := range []string{"", "- a\n- b\n", "name: x\n", "applications: [\n"} {
		_, err := RewriteBundleChannels([]byte(in), "1.32/edge")
		assert.True(t, errors.HasCode(err, errors.CodeParse), in)
	}
}
