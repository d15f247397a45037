package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// RFC 8693 token type identifiers.
const (
	tokenTypeAccessToken = "urn:ietf:params:oauth:token-type:access_token"
	grantTypeExchange    = "urn:ietf:params:oauth:grant-type:token-exchange"
)

// exchanger narrows a broadly-scoped primary token to the scope subset
// a single tool call needs, per RFC 8693. The primary token never
// leaves this package; callers only ever see exchanged tokens.
type exchanger struct {
	endpoint   string
	clientID   string
	httpClient *http.Client
}

// Exchange trades the primary token for one scoped to the given set.
// Called on every acquisition, cache hit or not: the authorization
// server mints a fresh scoped token per request.
func (e *exchanger) Exchange(ctx context.Context, primaryToken string, scopes []string) (string, error) {
	form := url.Values{}
	form.Set("grant_type", grantTypeExchange)
	form.Set("subject_token", primaryToken)
	form.Set("subject_token_type", tokenTypeAccessToken)
	form.Set("requested_token_type", tokenTypeAccessToken)
	form.Set("scope", strings.Join(scopes, " "))
	form.Set("client_id", e.clientID)

	tok, err := postTokenForm(ctx, e.httpClient, e.endpoint, form)
	if err != nil {
		return "", fmt.Errorf("exchanging token for scopes %q: %w", strings.Join(scopes, " "), err)
	}

	return tok.AccessToken, nil
}
