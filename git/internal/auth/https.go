package auth

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
)

// TokenUser is the username GitHub expects alongside an access token.
const TokenUser = "x-access-token"

// HTTPSTokenProvider authenticates https remotes with a token as basic-auth
// password. Remotes using other schemes get no credentials.
type HTTPSTokenProvider struct {
	auth *http.BasicAuth

	// AllowedHosts restricts authentication to specific host patterns.
	// If empty, authentication is sent to every https host.
	// Supports patterns like "*.github.com" or "github.*".
	AllowedHosts []string
}

// NewHTTPSTokenProvider creates a provider for token.
func NewHTTPSTokenProvider(token string) *HTTPSTokenProvider {
	return &HTTPSTokenProvider{
		auth: &http.BasicAuth{
			Username: TokenUser,
			Password: token,
		},
	}
}

// WithAllowedHosts sets the allowed hosts for this provider.
func (p *HTTPSTokenProvider) WithAllowedHosts(hosts ...string) *HTTPSTokenProvider {
	p.AllowedHosts = hosts
	return p
}

// Method returns the authentication method for the given remote URL.
//
//nolint:ireturn // go-git requires returning transport.AuthMethod interface
func (p *HTTPSTokenProvider) Method(remoteURL string) (transport.AuthMethod, error) {
	parsedURL, err := url.Parse(remoteURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	if parsedURL.Scheme != "https" || p.auth.Password == "" {
		return nil, nil
	}

	if len(p.AllowedHosts) > 0 && !p.isHostAllowed(parsedURL.Host) {
		return nil, nil
	}

	return p.auth, nil
}

func (p *HTTPSTokenProvider) isHostAllowed(host string) bool {
	for _, pattern := range p.AllowedHosts {
		if matchesPattern(host, pattern) {
			return true
		}
	}
	return false
}

// matchesPattern checks if a host matches a pattern with one "*" wildcard.
func matchesPattern(host, pattern string) bool {
	if host == pattern {
		return true
	}

	if strings.Count(pattern, "*") != 1 {
		return false
	}

	if strings.HasPrefix(pattern, "*.") {
		suffix := strings.TrimPrefix(pattern, "*.")
		return strings.HasSuffix(host, "."+suffix) || host == suffix
	}

	if strings.HasSuffix(pattern, ".*") {
		prefix := strings.TrimSuffix(pattern, ".*")
		return strings.HasPrefix(host, prefix+".")
	}

	return false
}
