package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// oauthTimeout is the per-request timeout for calls to the tenant's
	// OAuth endpoints.
	oauthTimeout = 30 * time.Second

	// maxOAuthResponseBytes caps response body reads so a misbehaving
	// server cannot consume unbounded memory.
	maxOAuthResponseBytes = 1024 * 1024
)

// newOAuthHTTPClient returns the HTTP client used for token endpoint
// traffic when the caller does not inject one.
func newOAuthHTTPClient() *http.Client {
	return &http.Client{Timeout: oauthTimeout}
}

// postForm sends an application/x-www-form-urlencoded POST and decodes
// the JSON response body. Non-2xx responses come back as a
// *TransportError carrying the status and truncated body; body is
// returned raw alongside so callers can inspect OAuth error codes.
func postForm(ctx context.Context, client *http.Client, endpoint string, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", endpoint, err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxOAuthResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w", endpoint, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return body, newTransportError(endpoint, resp.StatusCode, body)
	}

	return body, nil
}

// postTokenForm posts to a token endpoint and decodes the success shape.
func postTokenForm(ctx context.Context, client *http.Client, endpoint string, form url.Values) (tokenResponse, error) {
	body, err := postForm(ctx, client, endpoint, form)
	if err != nil {
		return tokenResponse{}, err
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return tokenResponse{}, fmt.Errorf("decoding token response from %s: %w", endpoint, err)
	}

	if tok.AccessToken == "" {
		return tokenResponse{}, fmt.Errorf("token response from %s has no access_token", endpoint)
	}

	return tok, nil
}

// oauthErrorCode extracts the RFC 6749 error code from an error
// response body, or "" when the body is not a recognizable error shape.
func oauthErrorCode(body []byte) string {
	var e tokenErrorResponse
	if err := json.Unmarshal(body, &e); err != nil {
		return ""
	}

	return e.Error
}
