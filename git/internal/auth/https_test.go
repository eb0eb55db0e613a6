package auth

import (
	"testing"

	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPSTokenProvider_Method(t *testing.T) {
	tests := []struct {
		name      string
		provider  *HTTPSTokenProvider
		remoteURL string
		wantAuth  bool
		wantError bool
	}{
		{
			name:      "https URL returns auth",
			provider:  NewHTTPSTokenProvider("tok"),
			remoteURL: "https://github.com/charmed-kubernetes/charm-etcd.git",
			wantAuth:  true,
		},
		{
			name:      "file URL gets no auth",
			provider:  NewHTTPSTokenProvider("tok"),
			remoteURL: "file:///tmp/repo.git",
		},
		{
			name:      "empty token gets no auth",
			provider:  NewHTTPSTokenProvider(""),
			remoteURL: "https://github.com/x/y.git",
		},
		{
			name:      "allowed host matches",
			provider:  NewHTTPSTokenProvider("tok").WithAllowedHosts("github.com"),
			remoteURL: "https://github.com/x/y.git",
			wantAuth:  true,
		},
		{
			name:      "wildcard host matches",
			provider:  NewHTTPSTokenProvider("tok").WithAllowedHosts("*.launchpad.net"),
			remoteURL: "https://git.launchpad.net/x",
			wantAuth:  true,
		},
		{
			name:      "host not allowed returns nil",
			provider:  NewHTTPSTokenProvider("tok").WithAllowedHosts("gitlab.com"),
			remoteURL: "https://github.com/x/y.git",
		},
		{
			name:      "malformed URL",
			provider:  NewHTTPSTokenProvider("tok"),
			remoteURL: "://bad",
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method, err := tt.provider.Method(tt.remoteURL)
			if tt.wantError {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			if !tt.wantAuth {
				assert.Nil(t, method)
				return
			}
			basic, ok := method.(*http.BasicAuth)
			require.True(t, ok)
			assert.Equal(t, TokenUser, basic.Username)
			assert.Equal(t, "tok", basic.Password)
		})
	}
}

func TestMatchesPattern(t *testing.T) {
	assert.True(t, matchesPattern("github.com", "github.com"))
	assert.True(t, matchesPattern("api.github.com", "*.github.com"))
	assert.False(t, matchesPattern("evilgithub.com", "*.github.com"))
	assert.True(t, matchesPattern("github.io", "github.*"))
	assert.False(t, matchesPattern("github.com", "*.*"))
}
