package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/charmed-kubernetes/jenkins-sub000/domain"
	"github.com/charmed-kubernetes/jenkins-sub000/errors"
)

const (
	// DefaultCharmhubAPI is the Charmhub publisher API.
	DefaultCharmhubAPI = "https://api.charmhub.io"
	// DefaultSnapAPI is the Snap Store publisher API.
	DefaultSnapAPI = "https://dashboard.snapcraft.io"

	jsonMIME = "application/json"
)

// TrackAPI reads and creates tracks through a store publisher API:
//
//	GET  {base}/v1/{namespace}/{name}
//	POST {base}/v1/{namespace}/{name}/tracks
//
// where namespace is "charm" or "snap". Requests are retried with backoff.
type TrackAPI struct {
	base      string
	namespace string
	token     string
	client    *retryablehttp.Client
}

// TrackAPIOption configures a TrackAPI.
type TrackAPIOption func(*TrackAPI)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(c *http.Client) TrackAPIOption {
	return func(t *TrackAPI) {
		t.client.HTTPClient = c
	}
}

// WithRetries bounds the retries of each request and the backoff between them.
func WithRetries(max int, minWait, maxWait time.Duration) TrackAPIOption {
	return func(t *TrackAPI) {
		t.client.RetryMax = max
		t.client.RetryWaitMin = minWait
		t.client.RetryWaitMax = maxWait
	}
}

// WithTrackLogger sets the logger retry attempts are reported to.
func WithTrackLogger(logger *slog.Logger) TrackAPIOption {
	return func(t *TrackAPI) {
		if logger != nil {
			t.client.Logger = logger
		}
	}
}

// NewTrackAPI returns a TrackAPI for namespace ("charm" or "snap")
// authenticating with a macaroon token.
func NewTrackAPI(base, namespace, token string, opts ...TrackAPIOption) *TrackAPI {
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.Logger = nil
	t := &TrackAPI{
		base:      strings.TrimRight(base, "/"),
		namespace: namespace,
		token:     token,
		client:    client,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

type guardrail struct {
	Pattern   string `json:"pattern"`
	CreatedAt string `json:"created-at,omitempty"`
}

type packageTrack struct {
	Name string `json:"name"`
}

type packageMetadata struct {
	Metadata struct {
		Name            string         `json:"name"`
		TrackGuardrails []guardrail    `json:"track-guardrails"`
		Tracks          []packageTrack `json:"tracks"`
	} `json:"metadata"`
}

// Tracks implements TrackAdmin.
func (t *TrackAPI) Tracks(ctx context.Context, a domain.Artifact) (TrackInfo, error) {
	var meta packageMetadata
	if err := t.do(ctx, http.MethodGet, t.url(a.Name), nil, &meta); err != nil {
		return TrackInfo{}, errors.NewStoreAPIError(a.Name, "tracks", err)
	}
	info := TrackInfo{}
	for _, tr := range meta.Metadata.Tracks {
		info.Tracks = append(info.Tracks, tr.Name)
	}
	for _, g := range meta.Metadata.TrackGuardrails {
		info.Guardrails = append(info.Guardrails, g.Pattern)
	}
	return info, nil
}

// CreateTrack implements TrackAdmin.
func (t *TrackAPI) CreateTrack(ctx context.Context, a domain.Artifact, track string) error {
	body := []packageTrack{{Name: track}}
	if err := t.do(ctx, http.MethodPost, t.url(a.Name)+"/tracks", body, nil); err != nil {
		return errors.NewStoreAPIError(a.Name, "create track", err)
	}
	return nil
}

func (t *TrackAPI) url(name string) string {
	return fmt.Sprintf("%s/v1/%s/%s", t.base, t.namespace, name)
}

func (t *TrackAPI) do(ctx context.Context, method, url string, body, result interface{}) error {
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		payload = bytes.NewReader(data)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, url, payload)
	if err != nil {
		return fmt.Errorf("can not make new request: %w", err)
	}
	req.Header.Set("Accept", jsonMIME)
	if body != nil {
		req.Header.Set("Content-Type", jsonMIME)
	}
	if t.token != "" {
		req.Header.Set("Authorization", "Macaroon "+t.token)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode > http.StatusNoContent {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		code := errors.CodeStoreAPI
		switch resp.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			code = errors.CodeUnauthorized
		case http.StatusNotFound:
			code = errors.CodeNotFound
		}
		return errors.Newf(code, "%s %s: status %d: %s", method, url, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if result == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// CheckGuardrails reports whether track matches one of the guardrail
// patterns. Patterns are anchored at both ends.
func CheckGuardrails(track string, patterns []string) (bool, error) {
	for _, p := range patterns {
		re, err := regexp.Compile(`^(?:` + p + `)$`)
		if err != nil {
			return false, errors.NewParseError("guardrail", p, err)
		}
		if re.MatchString(track) {
			return true, nil
		}
	}
	return false, nil
}

// EnsureTrack creates track for a unless it exists. A track that matches no
// guardrail is refused with a guardrail violation.
func EnsureTrack(ctx context.Context, admin TrackAdmin, a domain.Artifact, track string) (created bool, err error) {
	info, err := admin.Tracks(ctx, a)
	if err != nil {
		return false, err
	}
	if info.Has(track) {
		return false, nil
	}
	ok, err := CheckGuardrails(track, info.Guardrails)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, errors.NewGuardrailViolation(a.Name, track, info.Guardrails)
	}
	if err := admin.CreateTrack(ctx, a, track); err != nil {
		return false, err
	}
	return true, nil
}
