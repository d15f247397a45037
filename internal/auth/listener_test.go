package auth

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTenantHost = "openam-acme.forgeblocks.com"

// startTestListener binds an ephemeral port and returns the listener
// and its redirect URI.
func startTestListener(t *testing.T, state string) (*redirectListener, string) {
	t.Helper()

	l := newRedirectListener(0, testTenantHost, state, testLogger())

	uri, err := l.Start()
	require.NoError(t, err)
	t.Cleanup(l.Stop)

	return l, uri
}

// getRedirect performs a redirect request with optional headers and
// returns the response.
func getRedirect(t *testing.T, uri string, query url.Values, headers map[string]string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, uri+"/?"+query.Encode(), nil)
	require.NoError(t, err)

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	return resp
}

func waitResult(t *testing.T, l *redirectListener) (string, error) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return l.Wait(ctx)
}

func TestListener_SuccessfulRedirect(t *testing.T) {
	l, uri := startTestListener(t, "expected-state")

	resp := getRedirect(t, uri, url.Values{
		"code":  {"auth-code-123"},
		"state": {"expected-state"},
	}, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "Signed in")

	code, err := waitResult(t, l)
	require.NoError(t, err)
	assert.Equal(t, "auth-code-123", code)
}

func TestListener_StateMismatch(t *testing.T) {
	l, uri := startTestListener(t, "expected-state")

	resp := getRedirect(t, uri, url.Values{
		"code":  {"auth-code-123"},
		"state": {"forged-state"},
	}, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	_, err := waitResult(t, l)
	assert.ErrorIs(t, err, ErrSecurityRejection)
}

func TestListener_StateMissing(t *testing.T) {
	l, uri := startTestListener(t, "expected-state")

	resp := getRedirect(t, uri, url.Values{"code": {"auth-code-123"}}, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	_, err := waitResult(t, l)
	assert.ErrorIs(t, err, ErrSecurityRejection)
}

func TestListener_OriginRejected(t *testing.T) {
	// Suffix and substring tricks must not pass the exact-host check.
	for _, origin := range []string{
		"https://evil." + testTenantHost + ".attacker.com",
		"https://" + testTenantHost + ".attacker.com",
		"https://attacker.com",
	} {
		t.Run(origin, func(t *testing.T) {
			l, uri := startTestListener(t, "expected-state")

			resp := getRedirect(t, uri, url.Values{
				"code":  {"auth-code-123"},
				"state": {"expected-state"},
			}, map[string]string{"Referer": origin})
			assert.Equal(t, http.StatusForbidden, resp.StatusCode)

			_, err := waitResult(t, l)
			assert.ErrorIs(t, err, ErrSecurityRejection)
		})
	}
}

func TestListener_OriginAccepted(t *testing.T) {
	l, uri := startTestListener(t, "expected-state")

	resp := getRedirect(t, uri, url.Values{
		"code":  {"auth-code-123"},
		"state": {"expected-state"},
	}, map[string]string{"Referer": "https://" + testTenantHost + "/am/XUI/"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	code, err := waitResult(t, l)
	require.NoError(t, err)
	assert.Equal(t, "auth-code-123", code)
}

func TestListener_OriginAbsentAccepted(t *testing.T) {
	// Browsers may omit Referer and Origin on top-level navigations;
	// the state check still protects the redirect.
	l, uri := startTestListener(t, "expected-state")

	resp := getRedirect(t, uri, url.Values{
		"code":  {"auth-code-123"},
		"state": {"expected-state"},
	}, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	code, err := waitResult(t, l)
	require.NoError(t, err)
	assert.Equal(t, "auth-code-123", code)
}

func TestListener_ProviderError(t *testing.T) {
	l, uri := startTestListener(t, "expected-state")

	resp := getRedirect(t, uri, url.Values{
		"state":             {"expected-state"},
		"error":             {"access_denied"},
		"error_description": {"user gave up"},
	}, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	_, err := waitResult(t, l)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access_denied")
	assert.Contains(t, err.Error(), "user gave up")
}

func TestListener_SecondRedirectIgnored(t *testing.T) {
	l, uri := startTestListener(t, "expected-state")

	first := getRedirect(t, uri, url.Values{
		"code":  {"first-code"},
		"state": {"expected-state"},
	}, nil)
	assert.Equal(t, http.StatusOK, first.StatusCode)

	second := getRedirect(t, uri, url.Values{
		"code":  {"second-code"},
		"state": {"expected-state"},
	}, nil)
	assert.Equal(t, http.StatusBadRequest, second.StatusCode)

	code, err := waitResult(t, l)
	require.NoError(t, err)
	assert.Equal(t, "first-code", code, "first result stands")
}

func TestListener_WaitCancelled(t *testing.T) {
	l, _ := startTestListener(t, "expected-state")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
