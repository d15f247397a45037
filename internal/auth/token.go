// Package auth implements token acquisition for an AIC tenant: the
// authorization-code+PKCE flow for attended processes, the
// device-authorization flow for containerized ones, RFC 8693 token
// exchange for per-call scope narrowing, and persistent caching of the
// primary token across restarts and tenant switches.
package auth

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// TokenRecord is the persisted unit: the primary access token, its
// absolute expiry, and the tenant it was issued for. Records are
// replaced whole on re-authentication, never mutated in place.
type TokenRecord struct {
	AccessToken string `json:"accessToken"`
	ExpiresAt   int64  `json:"expiresAt"` // milliseconds since epoch
	TenantHost  string `json:"tenantHost"`
}

// Valid reports whether the record is unexpired at the given instant
// and was issued for the given tenant host.
func (r *TokenRecord) Valid(now time.Time, tenantHost string) bool {
	return r.ExpiresAt > now.UnixMilli() && r.TenantHost == tenantHost
}

// ExpiresIn returns the remaining lifetime at the given instant.
func (r *TokenRecord) ExpiresIn(now time.Time) time.Duration {
	return time.UnixMilli(r.ExpiresAt).Sub(now)
}

// newTokenRecord builds a record from a token endpoint response.
func newTokenRecord(accessToken string, expiresIn int, tenantHost string, now time.Time) TokenRecord {
	return TokenRecord{
		AccessToken: accessToken,
		ExpiresAt:   now.UnixMilli() + int64(expiresIn)*1000,
		TenantHost:  tenantHost,
	}
}

// tokenResponse is the wire shape of a successful token endpoint reply
// for all three grant types.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Scope       string `json:"scope,omitempty"`
}

// tokenErrorResponse is the wire shape of an RFC 6749 error reply.
type tokenErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// Endpoints holds the tenant OAuth2 endpoint URLs.
type Endpoints struct {
	Authorize  string
	Token      string
	DeviceAuth string
}

// TenantEndpoints derives the AM OAuth2 endpoints from a tenant base
// URL. AIC tenants expose OAuth2 under /am/oauth2/realms/root.
func TenantEndpoints(tenantURL string) (Endpoints, error) {
	u, err := url.Parse(tenantURL)
	if err != nil {
		return Endpoints{}, fmt.Errorf("parsing tenant URL: %w", err)
	}

	base := strings.TrimRight(u.String(), "/") + "/am/oauth2/realms/root"

	return Endpoints{
		Authorize:  base + "/authorize",
		Token:      base + "/access_token",
		DeviceAuth: base + "/device/code",
	}, nil
}
