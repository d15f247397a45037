package auth

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// browserSim returns an openURL func that plays the browser's part:
// parse the authorize URL, then hit the redirect URI with the given
// query. The captured authorize parameters land in *params.
func browserSim(t *testing.T, params *url.Values, respond func(authQuery url.Values) url.Values) func(string) error {
	t.Helper()

	return func(authURL string) error {
		u, err := url.Parse(authURL)
		if err != nil {
			return err
		}

		q := u.Query()
		*params = q

		redirect := respond(q)
		if redirect == nil {
			return nil
		}

		resp, err := http.Get(q.Get("redirect_uri") + "/?" + redirect.Encode())
		if err != nil {
			return err
		}
		resp.Body.Close()

		return nil
	}
}

func TestAuthCodeFlow_Success(t *testing.T) {
	var authParams url.Values

	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())

		assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		assert.Equal(t, "granted-code", r.PostForm.Get("code"))
		assert.Equal(t, "test-client", r.PostForm.Get("client_id"))
		assert.Equal(t, authParams.Get("redirect_uri"), r.PostForm.Get("redirect_uri"))

		// The verifier sent here must hash to the challenge sent to the
		// authorize endpoint.
		verifier := r.PostForm.Get("code_verifier")
		sum := sha256.Sum256([]byte(verifier))
		assert.Equal(t, authParams.Get("code_challenge"), base64.RawURLEncoding.EncodeToString(sum[:]))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"primary-token","token_type":"Bearer","expires_in":3599}`)
	}))
	defer tokenSrv.Close()

	flow := &authCodeFlow{
		endpoints:  Endpoints{Authorize: "https://" + testTenantHost + "/am/oauth2/realms/root/authorize", Token: tokenSrv.URL},
		clientID:   "test-client",
		tenantHost: testTenantHost,
		httpClient: tokenSrv.Client(),
		logger:     testLogger(),
	}
	flow.openURL = browserSim(t, &authParams, func(q url.Values) url.Values {
		return url.Values{"code": {"granted-code"}, "state": {q.Get("state")}}
	})

	rec, err := flow.Run(context.Background(), []string{"fr:am:*", "fr:idm:*"})
	require.NoError(t, err)

	assert.Equal(t, "primary-token", rec.AccessToken)
	assert.Equal(t, testTenantHost, rec.TenantHost)
	assert.InDelta(t, time.Now().Add(3599*time.Second).UnixMilli(), rec.ExpiresAt, float64(5*time.Second/time.Millisecond))

	// Authorize request carried the full PKCE and CSRF surface.
	assert.Equal(t, "code", authParams.Get("response_type"))
	assert.Equal(t, "test-client", authParams.Get("client_id"))
	assert.Equal(t, "fr:am:* fr:idm:*", authParams.Get("scope"))
	assert.Equal(t, "S256", authParams.Get("code_challenge_method"))
	assert.NotEmpty(t, authParams.Get("state"))
}

func TestAuthCodeFlow_StateMismatchFailsAttempt(t *testing.T) {
	var authParams url.Values

	flow := &authCodeFlow{
		endpoints:  Endpoints{Authorize: "https://" + testTenantHost + "/authorize", Token: "http://unused.invalid"},
		clientID:   "test-client",
		tenantHost: testTenantHost,
		httpClient: http.DefaultClient,
		logger:     testLogger(),
	}
	flow.openURL = browserSim(t, &authParams, func(q url.Values) url.Values {
		return url.Values{"code": {"granted-code"}, "state": {"forged"}}
	})

	_, err := flow.Run(context.Background(), []string{"fr:am:*"})
	assert.ErrorIs(t, err, ErrSecurityRejection)
}

func TestAuthCodeFlow_BrowserOpenFails(t *testing.T) {
	flow := &authCodeFlow{
		endpoints:  Endpoints{Authorize: "https://" + testTenantHost + "/authorize", Token: "http://unused.invalid"},
		clientID:   "test-client",
		tenantHost: testTenantHost,
		httpClient: http.DefaultClient,
		logger:     testLogger(),
		openURL:    func(string) error { return fmt.Errorf("no display") },
	}

	_, err := flow.Run(context.Background(), []string{"fr:am:*"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "opening browser")
}

func TestAuthCodeFlow_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	flow := &authCodeFlow{
		endpoints:  Endpoints{Authorize: "https://" + testTenantHost + "/authorize", Token: "http://unused.invalid"},
		clientID:   "test-client",
		tenantHost: testTenantHost,
		httpClient: http.DefaultClient,
		logger:     testLogger(),
		openURL: func(string) error {
			// Browser opened but the user walks away; the caller gives up.
			cancel()
			return nil
		},
	}

	_, err := flow.Run(ctx, []string{"fr:am:*"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAuthCodeFlow_PortInUse(t *testing.T) {
	// Occupy a port, then ask the flow to bind it.
	l, uri := startTestListener(t, "other")
	_ = uri

	flow := &authCodeFlow{
		endpoints:  Endpoints{Authorize: "https://" + testTenantHost + "/authorize", Token: "http://unused.invalid"},
		clientID:   "test-client",
		tenantHost: testTenantHost,
		port:       l.port,
		httpClient: http.DefaultClient,
		logger:     testLogger(),
		openURL:    func(string) error { t.Fatal("browser must not open when bind fails"); return nil },
	}

	_, err := flow.Run(context.Background(), []string{"fr:am:*"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "binding redirect listener")
}
