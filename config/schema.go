package config

import (
	_ "embed"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"

	"github.com/charmed-kubernetes/jenkins-sub000/errors"
)

//go:embed schema/artifacts.cue
var artifactSchema string

// validateSchema checks a decoded artifact list against #ArtifactList.
// Types, enums and formats live in the schema; cross-field rules are
// checked by validateArtifact.
func validateSchema(doc interface{}) error {
	cctx := cuecontext.New()

	schema := cctx.CompileString(artifactSchema, cue.Filename("artifacts.cue"))
	if err := schema.Err(); err != nil {
		return errors.Wrap(err, errors.CodeInternal, "embedded artifact schema does not compile")
	}
	def := schema.LookupPath(cue.ParsePath("#ArtifactList"))

	data := cctx.Encode(doc)
	if err := data.Err(); err != nil {
		return errors.Wrap(err, errors.CodeInvalidConfig, "artifact list cannot be encoded")
	}

	if err := def.Unify(data).Validate(cue.Concrete(true)); err != nil {
		return errors.Wrapf(err, errors.CodeInvalidConfig,
			"artifact list does not match schema: %s", cueerrors.Details(err, nil))
	}
	return nil
}
