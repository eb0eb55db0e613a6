package secrets

import (
	"context"
	"os"

	"github.com/charmed-kubernetes/jenkins-sub000/errors"
)

// Env reads secrets from environment variables named after the key.
type Env struct {
	lookup func(string) (string, bool)
}

// NewEnv returns a provider over the process environment.
func NewEnv() *Env {
	return &Env{lookup: os.LookupEnv}
}

// NewEnvFrom returns a provider over a fixed set of variables.
func NewEnvFrom(vars map[string]string) *Env {
	return &Env{lookup: func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}}
}

// Name implements Provider.
func (e *Env) Name() string {
	return "env"
}

// Lookup implements Provider. Unset and empty variables are both missing.
func (e *Env) Lookup(_ context.Context, key string) (string, error) {
	if v, ok := e.lookup(key); ok && v != "" {
		return v, nil
	}
	return "", errors.Newf(errors.CodeNotFound, "environment variable %s is not set", key)
}
