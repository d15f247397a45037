// Package aic is the REST client for a PingOne Advanced Identity Cloud
// tenant's management APIs: authentication journeys, managed objects,
// themes, ESV secrets and variables, and monitoring logs. Every request
// carries a bearer token narrowed to the scope the endpoint needs.
package aic

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	apperrors "github.com/mwestcott/aic-mcp/internal/errors"
)

// Scope subsets requested per API family. The token provider exchanges
// the primary token down to exactly one of these per call.
const (
	ScopeAM        = "fr:am:*"
	ScopeIDM       = "fr:idm:*"
	ScopeESV       = "fr:idc:esv:*"
	ScopeAnalytics = "fr:idc:analytics:*"
)

const (
	requestTimeout  = 30 * time.Second
	responseBodyMax = 512 // error body truncation for logs and messages
)

// TokenProvider issues a scoped access token for one call.
type TokenProvider interface {
	GetToken(ctx context.Context, scopes []string) (string, error)
}

// Client talks to one tenant. Construct once and share; resty handles
// connection reuse.
type Client struct {
	rest   *resty.Client
	tokens TokenProvider
	realm  string
	logger *slog.Logger
}

// NewClient builds a tenant client. realm is the managed realm name
// ("alpha" on most tenants).
func NewClient(tenantURL, realm string, tokens TokenProvider, logger *slog.Logger) *Client {
	rest := resty.New().
		SetBaseURL(strings.TrimRight(tenantURL, "/")).
		SetTimeout(requestTimeout).
		SetHeader("Accept", "application/json")

	return &Client{
		rest:   rest,
		tokens: tokens,
		realm:  realm,
		logger: logger,
	}
}

// request builds a request authorized with a token scoped to scope.
func (c *Client) request(ctx context.Context, scope string) (*resty.Request, error) {
	token, err := c.tokens.GetToken(ctx, []string{scope})
	if err != nil {
		return nil, fmt.Errorf("acquiring token: %w", err)
	}

	return c.rest.R().SetContext(ctx).SetAuthToken(token), nil
}

// checkResponse maps non-2xx responses to wrapped sentinel errors.
func checkResponse(resp *resty.Response, op string) error {
	if !resp.IsError() {
		return nil
	}

	if resp.StatusCode() == 404 {
		return fmt.Errorf("%s: %w", op, apperrors.ErrNotFound)
	}

	body := resp.String()
	if len(body) > responseBodyMax {
		body = body[:responseBodyMax] + "..."
	}

	return fmt.Errorf("%s: %w: status %d: %s", op, apperrors.ErrAPIResponse, resp.StatusCode(), body)
}
