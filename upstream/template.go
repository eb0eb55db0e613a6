package upstream

import (
	"fmt"

	"github.com/flosch/pongo2"

	"github.com/charmed-kubernetes/jenkins-sub000/domain"
	"github.com/charmed-kubernetes/jenkins-sub000/version"
)

// TemplateVars is the render context for a downstream branch created for ref.
func TemplateVars(ref domain.UpstreamRef) map[string]interface{} {
	v := ref.Version
	return map[string]interface{}{
		"version":    v.String(),
		"tag":        ref.Name,
		"track":      version.TrackOf(v).String(),
		"major":      v.Major(),
		"minor":      v.Minor(),
		"patch":      v.Patch(),
		"prerelease": v.Prerelease(),
	}
}

// Render renders a Django-syntax template with vars. Output is not
// HTML-escaped.
func Render(src string, vars map[string]interface{}) (string, error) {
	tpl, err := pongo2.FromString("{% autoescape off %}" + src + "{% endautoescape %}")
	if err != nil {
		return "", fmt.Errorf("parse template: %w", err)
	}
	out, err := tpl.Execute(pongo2.Context(vars))
	if err != nil {
		return "", fmt.Errorf("execute template: %w", err)
	}
	return out, nil
}
