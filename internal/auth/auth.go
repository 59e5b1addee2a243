// Package auth verifies bearer credentials against an identity provider and
// injects the resulting principal into the request context.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"time"
)

// ErrMissingToken indicates the request carried no bearer credential.
var ErrMissingToken = errors.New("missing bearer token")

// ErrInvalidToken indicates the credential failed provider verification.
var ErrInvalidToken = errors.New("invalid bearer token")

var bearerRe = regexp.MustCompile(`^(?i:Bearer)\s+(\S+)$`)

// Principal is the identity derived from a verified credential. It lives for
// the duration of one request.
type Principal struct {
	Subject string         `json:"sub"`
	Claims  map[string]any `json:"claims,omitempty"`
}

// TokenVerifier validates an opaque bearer token.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*Principal, error)
}

// ExtractBearer pulls the token out of an Authorization header value.
// Returns ErrMissingToken when the header is empty or not in Bearer form.
func ExtractBearer(header string) (string, error) {
	m := bearerRe.FindStringSubmatch(header)
	if m == nil {
		return "", ErrMissingToken
	}
	return m[1], nil
}

// VerifierOption configures a RemoteVerifier.
type VerifierOption func(*RemoteVerifier)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) VerifierOption {
	return func(v *RemoteVerifier) {
		v.httpClient = httpClient
	}
}

// WithAudience sets the expected audience claim forwarded to the provider.
func WithAudience(audience string) VerifierOption {
	return func(v *RemoteVerifier) {
		v.audience = audience
	}
}

// RemoteVerifier submits tokens to an identity provider's verification
// endpoint. The provider is expected to respond 200 with a JSON principal
// for a valid token and any non-2xx status otherwise.
type RemoteVerifier struct {
	verifyURL  string
	audience   string
	httpClient *http.Client
}

// NewRemoteVerifier creates a verifier against the given endpoint.
func NewRemoteVerifier(verifyURL string, opts ...VerifierOption) *RemoteVerifier {
	v := &RemoteVerifier{
		verifyURL:  verifyURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

type verifyRequest struct {
	Token    string `json:"token"`
	Audience string `json:"audience,omitempty"`
}

// Verify submits the token for verification and returns the principal.
// All failure modes (transport error, provider rejection, malformed
// response) collapse into an error wrapping ErrInvalidToken; the wrapped
// detail is for server-side logs only.
func (v *RemoteVerifier) Verify(ctx context.Context, token string) (*Principal, error) {
	if v.verifyURL == "" {
		return nil, fmt.Errorf("%w: verifier endpoint not configured", ErrInvalidToken)
	}

	body, err := json.Marshal(verifyRequest{Token: token, Audience: v.audience})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.verifyURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Drain so the connection can be reused.
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: provider returned status %d", ErrInvalidToken, resp.StatusCode)
	}

	var p Principal
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: decoding principal: %v", ErrInvalidToken, err)
	}
	if p.Subject == "" {
		return nil, fmt.Errorf("%w: provider returned no subject", ErrInvalidToken)
	}

	return &p, nil
}
