package secrets

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charmed-kubernetes/jenkins-sub000/errors"
)

type mockManagerAPI struct {
	getSecretValueFunc func(ctx context.Context, params *secretsmanager.GetSecretValueInput) (*secretsmanager.GetSecretValueOutput, error)
	calls              int
}

func (m *mockManagerAPI) GetSecretValue(
	ctx context.Context,
	params *secretsmanager.GetSecretValueInput,
	_ ...func(*secretsmanager.Options),
) (*secretsmanager.GetSecretValueOutput, error) {
	m.calls++
	if m.getSecretValueFunc != nil {
		return m.getSecretValueFunc(ctx, params)
	}
	return nil, stderrors.New("GetSecretValue not implemented")
}

func secretString(s string) func(context.Context, *secretsmanager.GetSecretValueInput) (*secretsmanager.GetSecretValueOutput, error) {
	return func(_ context.Context, params *secretsmanager.GetSecretValueInput) (*secretsmanager.GetSecretValueOutput, error) {
		return &secretsmanager.GetSecretValueOutput{
			Name:         params.SecretId,
			SecretString: aws.String(s),
		}, nil
	}
}

func TestEnv(t *testing.T) {
	env := NewEnvFrom(map[string]string{
		KeyGitHubToken:    "ghp_token",
		KeyCharmcraftAuth: "",
	})

	v, err := env.Lookup(context.Background(), KeyGitHubToken)
	require.NoError(t, err)
	assert.Equal(t, "ghp_token", v)

	_, err = env.Lookup(context.Background(), KeyCharmcraftAuth)
	assert.True(t, errors.HasCode(err, errors.CodeNotFound), "empty variable is missing")

	_, err = env.Lookup(context.Background(), KeySnapcraftCredentials)
	assert.True(t, errors.HasCode(err, errors.CodeNotFound))
	assert.Equal(t, "env", env.Name())
}

func TestNewAWS_RequiresSecretID(t *testing.T) {
	_, err := NewAWS(context.Background(), "", WithManagerAPI(&mockManagerAPI{}))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeInvalidConfig))
}

func TestAWS_Lookup(t *testing.T) {
	api := &mockManagerAPI{
		getSecretValueFunc: secretString(`{"CHARMCRAFT_AUTH":"macaroon","GITHUB_TOKEN":"ghp"}`),
	}
	p, err := NewAWS(context.Background(), "ci/charmed-kubernetes", WithManagerAPI(api))
	require.NoError(t, err)

	v, err := p.Lookup(context.Background(), KeyCharmcraftAuth)
	require.NoError(t, err)
	assert.Equal(t, "macaroon", v)

	v, err = p.Lookup(context.Background(), KeyGitHubToken)
	require.NoError(t, err)
	assert.Equal(t, "ghp", v)

	_, err = p.Lookup(context.Background(), KeySnapcraftCredentials)
	assert.True(t, errors.HasCode(err, errors.CodeNotFound))

	assert.Equal(t, 1, api.calls, "document is cached between lookups")
}

func TestAWS_SecretBinary(t *testing.T) {
	api := &mockManagerAPI{
		getSecretValueFunc: func(context.Context, *secretsmanager.GetSecretValueInput) (*secretsmanager.GetSecretValueOutput, error) {
			return &secretsmanager.GetSecretValueOutput{SecretBinary: []byte(`{"GITHUB_TOKEN":"bin"}`)}, nil
		},
	}
	p, err := NewAWS(context.Background(), "id", WithManagerAPI(api))
	require.NoError(t, err)

	v, err := p.Lookup(context.Background(), KeyGitHubToken)
	require.NoError(t, err)
	assert.Equal(t, "bin", v)
}

func TestAWS_Errors(t *testing.T) {
	tests := []struct {
		name string
		fn   func(context.Context, *secretsmanager.GetSecretValueInput) (*secretsmanager.GetSecretValueOutput, error)
		code errors.ErrorCode
	}{
		{
			name: "missing secret",
			fn: func(context.Context, *secretsmanager.GetSecretValueInput) (*secretsmanager.GetSecretValueOutput, error) {
				return nil, &smithy.GenericAPIError{Code: ResourceNotFoundException, Message: "no such secret"}
			},
			code: errors.CodeInvalidConfig,
		},
		{
			name: "access denied",
			fn: func(context.Context, *secretsmanager.GetSecretValueInput) (*secretsmanager.GetSecretValueOutput, error) {
				return nil, &smithy.GenericAPIError{Code: AccessDeniedException, Message: "denied"}
			},
			code: errors.CodeUnauthorized,
		},
		{
			name: "network",
			fn: func(context.Context, *secretsmanager.GetSecretValueInput) (*secretsmanager.GetSecretValueOutput, error) {
				return nil, stderrors.New("connection reset")
			},
			code: errors.CodeInternal,
		},
		{
			name: "not json",
			fn:   secretString("plain text"),
			code: errors.CodeParse,
		},
		{
			name: "empty",
			fn: func(context.Context, *secretsmanager.GetSecretValueInput) (*secretsmanager.GetSecretValueOutput, error) {
				return &secretsmanager.GetSecretValueOutput{}, nil
			},
			code: errors.CodeInvalidConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewAWS(context.Background(), "id", WithManagerAPI(&mockManagerAPI{getSecretValueFunc: tt.fn}))
			require.NoError(t, err)

			_, err = p.Lookup(context.Background(), KeyGitHubToken)
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, tt.code), "got %v", err)
		})
	}
}

func TestResolver(t *testing.T) {
	api := &mockManagerAPI{getSecretValueFunc: secretString(
		`{"CHARMCRAFT_AUTH":"from-aws","GITHUB_TOKEN":"aws-token","OCI_REGISTRY_USERNAME":"cdkbot","OCI_REGISTRY_PASSWORD":"hunter2"}`)}
	sm, err := NewAWS(context.Background(), "id", WithManagerAPI(api))
	require.NoError(t, err)
	env := NewEnvFrom(map[string]string{KeyGitHubToken: "env-token", KeyRegistryHost: "rocks.canonical.com"})

	r := NewResolver([]Provider{env, sm})

	v, err := r.Get(context.Background(), KeyGitHubToken)
	require.NoError(t, err)
	assert.Equal(t, "env-token", v, "earlier provider wins")

	v, err = r.Get(context.Background(), KeyCharmcraftAuth)
	require.NoError(t, err)
	assert.Equal(t, "from-aws", v, "falls through on missing keys")

	_, err = r.Get(context.Background(), KeySnapcraftCredentials)
	assert.True(t, errors.HasCode(err, errors.CodeNotFound))

	creds, err := r.Credentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Credentials{
		CharmcraftAuth:   "from-aws",
		GitHubToken:      "env-token",
		RegistryHost:     "rocks.canonical.com",
		RegistryUsername: "cdkbot",
		RegistryPassword: "hunter2",
	}, creds)
}

func TestResolver_StopsOnProviderFailure(t *testing.T) {
	api := &mockManagerAPI{
		getSecretValueFunc: func(context.Context, *secretsmanager.GetSecretValueInput) (*secretsmanager.GetSecretValueOutput, error) {
			return nil, &smithy.GenericAPIError{Code: AccessDeniedException}
		},
	}
	sm, err := NewAWS(context.Background(), "id", WithManagerAPI(api))
	require.NoError(t, err)

	r := NewResolver([]Provider{NewEnvFrom(nil), sm})
	_, err = r.Credentials(context.Background())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeUnauthorized))
}

func TestCache_Expiry(t *testing.T) {
	c := newCache(time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.set("id", map[string]string{"k": "v"})
	doc, ok := c.get("id")
	require.True(t, ok)
	assert.Equal(t, "v", doc["k"])

	now = now.Add(2 * time.Minute)
	_, ok = c.get("id")
	assert.False(t, ok)

	disabled := newCache(0)
	disabled.set("id", map[string]string{"k": "v"})
	_, ok = disabled.get("id")
	assert.False(t, ok)
}
