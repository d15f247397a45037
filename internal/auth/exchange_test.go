package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExchanger_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())

		assert.Equal(t, grantTypeExchange, r.PostForm.Get("grant_type"))
		assert.Equal(t, "primary-token", r.PostForm.Get("subject_token"))
		assert.Equal(t, tokenTypeAccessToken, r.PostForm.Get("subject_token_type"))
		assert.Equal(t, tokenTypeAccessToken, r.PostForm.Get("requested_token_type"))
		assert.Equal(t, "fr:am:* fr:idm:*", r.PostForm.Get("scope"))
		assert.Equal(t, "test-client", r.PostForm.Get("client_id"))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"scoped-token","token_type":"Bearer","expires_in":899,"scope":"fr:am:* fr:idm:*"}`)
	}))
	defer srv.Close()

	e := &exchanger{endpoint: srv.URL, clientID: "test-client", httpClient: srv.Client()}

	tok, err := e.Exchange(context.Background(), "primary-token", []string{"fr:am:*", "fr:idm:*"})
	require.NoError(t, err)
	assert.Equal(t, "scoped-token", tok)
}

func TestExchanger_ServerRejects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"invalid_scope","error_description":"scope exceeds grant"}`)
	}))
	defer srv.Close()

	e := &exchanger{endpoint: srv.URL, clientID: "test-client", httpClient: srv.Client()}

	_, err := e.Exchange(context.Background(), "primary-token", []string{"fr:idc:esv:*"})
	require.Error(t, err)

	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, http.StatusBadRequest, terr.Status)
	assert.Contains(t, terr.Body, "invalid_scope")
}

func TestExchanger_NoAccessToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"token_type":"Bearer"}`)
	}))
	defer srv.Close()

	e := &exchanger{endpoint: srv.URL, clientID: "test-client", httpClient: srv.Client()}

	_, err := e.Exchange(context.Background(), "primary-token", []string{"fr:am:*"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no access_token")
}
