package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// authCodeFlow runs the attended authorization-code+PKCE flow: start a
// loopback listener, send the user's browser to the tenant's authorize
// endpoint, validate the redirect, and exchange the code for a token.
type authCodeFlow struct {
	endpoints  Endpoints
	clientID   string
	tenantHost string
	port       int
	httpClient *http.Client
	openURL    func(string) error
	logger     *slog.Logger
}

// Run executes one flow attempt. The PKCE pair and CSRF state are
// generated fresh and discarded when the attempt ends, success or not.
// The listener is stopped on every exit path.
func (f *authCodeFlow) Run(ctx context.Context, scopes []string) (TokenRecord, error) {
	pkce, err := GeneratePKCE()
	if err != nil {
		return TokenRecord{}, err
	}

	state, err := GenerateState()
	if err != nil {
		return TokenRecord{}, err
	}

	listener := newRedirectListener(f.port, f.tenantHost, state, f.logger)

	redirectURI, err := listener.Start()
	if err != nil {
		return TokenRecord{}, err
	}
	defer listener.Stop()

	authURL := f.buildAuthorizeURL(scopes, redirectURI, pkce.Challenge, state)

	f.logger.Info("opening browser for authentication",
		slog.String("tenant", f.tenantHost),
		slog.Int("callback_port", listener.port),
	)

	if err := f.openURL(authURL); err != nil {
		return TokenRecord{}, fmt.Errorf("opening browser: %w", err)
	}

	code, err := listener.Wait(ctx)
	if err != nil {
		return TokenRecord{}, err
	}

	return f.exchangeCode(ctx, code, redirectURI, pkce.Verifier)
}

// buildAuthorizeURL assembles the authorize-endpoint URL with the PKCE
// challenge and CSRF state.
func (f *authCodeFlow) buildAuthorizeURL(scopes []string, redirectURI, challenge, state string) string {
	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", f.clientID)
	q.Set("scope", strings.Join(scopes, " "))
	q.Set("redirect_uri", redirectURI)
	q.Set("code_challenge", challenge)
	q.Set("code_challenge_method", "S256")
	q.Set("state", state)

	return f.endpoints.Authorize + "?" + q.Encode()
}

// exchangeCode trades the authorization code for the primary token.
func (f *authCodeFlow) exchangeCode(ctx context.Context, code, redirectURI, verifier string) (TokenRecord, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", redirectURI)
	form.Set("code_verifier", verifier)
	form.Set("client_id", f.clientID)

	tok, err := postTokenForm(ctx, f.httpClient, f.endpoints.Token, form)
	if err != nil {
		return TokenRecord{}, fmt.Errorf("exchanging authorization code: %w", err)
	}

	return newTokenRecord(tok.AccessToken, tok.ExpiresIn, f.tenantHost, time.Now()), nil
}
