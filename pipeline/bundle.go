package pipeline

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/charmed-kubernetes/jenkins-sub000/errors"
)

// RewriteBundleChannels sets the channel of every application in a
// bundle.yaml document to channel. Comments and key order are kept. Older
// bundles list applications under "services".
func RewriteBundleChannels(data []byte, channel string) ([]byte, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.NewParseError("bundle", "bundle.yaml", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, errors.NewParseError("bundle", "bundle.yaml", fmt.Errorf("not a mapping"))
	}

	apps := mappingValue(doc.Content[0], "applications")
	if apps == nil {
		apps = mappingValue(doc.Content[0], "services")
	}
	if apps == nil || apps.Kind != yaml.MappingNode {
		return nil, errors.NewParseError("bundle", "bundle.yaml", fmt.Errorf("no applications"))
	}

	for i := 1; i < len(apps.Content); i += 2 {
		app := apps.Content[i]
		if app.Kind != yaml.MappingNode {
			continue
		}
		if v := mappingValue(app, "channel"); v != nil {
			v.Kind, v.Tag, v.Style, v.Value = yaml.ScalarNode, "!!str", 0, channel
			continue
		}
		app.Content = append(app.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: "channel"},
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: channel},
		)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to encode bundle")
	}
	if err := enc.Close(); err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to encode bundle")
	}
	return buf.Bytes(), nil
}

func mappingValue(m *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}
