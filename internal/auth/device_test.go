package auth

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const (
	testDeviceAuthURL = "https://" + testTenantHost + "/am/oauth2/realms/root/device/code"
	testTokenURL      = "https://" + testTenantHost + "/am/oauth2/realms/root/access_token"
)

// deviceServer scripts the tenant's device-authorization and token
// endpoints in memory so flows run inside a synctest bubble.
type deviceServer struct {
	expiresIn    int
	interval     int
	tokenReplies []string // token endpoint replies in order; "err:<code>" means a 400 error body
	polls        atomic.Int64
	deviceCalls  atomic.Int64

	codeForm  url.Values // last device-code request form
	tokenForm url.Values // last token request form
}

func (d *deviceServer) roundTrip(r *http.Request) (*http.Response, error) {
	body, _ := io.ReadAll(r.Body)
	form, _ := url.ParseQuery(string(body))

	switch r.URL.String() {
	case testDeviceAuthURL:
		d.deviceCalls.Add(1)
		d.codeForm = form

		return jsonResponse(http.StatusOK, fmt.Sprintf(`{
			"device_code": "dev-code-1",
			"user_code": "ABCD-EFGH",
			"verification_uri": "https://%s/am/device",
			"verification_uri_complete": "https://%s/am/device?user_code=ABCD-EFGH",
			"expires_in": %d,
			"interval": %d
		}`, testTenantHost, testTenantHost, d.expiresIn, d.interval)), nil

	case testTokenURL:
		n := d.polls.Add(1)
		d.tokenForm = form

		reply := d.tokenReplies[len(d.tokenReplies)-1]
		if int(n) <= len(d.tokenReplies) {
			reply = d.tokenReplies[n-1]
		}

		if code, ok := strings.CutPrefix(reply, "err:"); ok {
			return jsonResponse(http.StatusBadRequest, fmt.Sprintf(`{"error":%q}`, code)), nil
		}

		return jsonResponse(http.StatusOK, reply), nil

	default:
		return jsonResponse(http.StatusNotFound, `{}`), nil
	}
}

func testDeviceFlow(srv *deviceServer, elicitor Elicitor) *deviceFlow {
	return &deviceFlow{
		endpoints:  Endpoints{Token: testTokenURL, DeviceAuth: testDeviceAuthURL},
		clientID:   "test-client",
		tenantHost: testTenantHost,
		httpClient: stubClient(srv.roundTrip),
		elicitor:   elicitor,
		logger:     testLogger(),
	}
}

const successTokenReply = `{"access_token":"primary-token","token_type":"Bearer","expires_in":3599}`

func TestDeviceFlow_Success(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		ctrl := gomock.NewController(t)
		srv := &deviceServer{
			expiresIn:    600,
			interval:     5,
			tokenReplies: []string{"err:authorization_pending", "err:authorization_pending", successTokenReply},
		}

		elicitor := NewMockElicitor(ctrl)
		elicitor.EXPECT().
			RequestUserAction(gomock.Any(), gomock.Any(), "https://"+testTenantHost+"/am/device?user_code=ABCD-EFGH").
			DoAndReturn(func(_ context.Context, message, _ string) (ElicitAction, error) {
				assert.Contains(t, message, "ABCD-EFGH", "prompt carries the user code")
				assert.Contains(t, message, testTenantHost)
				return ElicitAccept, nil
			})
		elicitor.EXPECT().NotifyComplete(gomock.Any(), "ABCD-EFGH").Return(nil)

		start := time.Now()

		rec, err := testDeviceFlow(srv, elicitor).Run(t.Context(), []string{"fr:am:*"})
		require.NoError(t, err)

		assert.Equal(t, "primary-token", rec.AccessToken)
		assert.Equal(t, testTenantHost, rec.TenantHost)
		assert.EqualValues(t, 3, srv.polls.Load())
		assert.Equal(t, 15*time.Second, time.Since(start), "one interval before each poll")

		// The device-code request and the poll carry the PKCE binding.
		sum := sha256.Sum256([]byte(srv.tokenForm.Get("code_verifier")))
		assert.Equal(t, srv.codeForm.Get("code_challenge"), base64.RawURLEncoding.EncodeToString(sum[:]))
		assert.Equal(t, "urn:ietf:params:oauth:grant-type:device_code", srv.tokenForm.Get("grant_type"))
		assert.Equal(t, "dev-code-1", srv.tokenForm.Get("device_code"))
	})
}

func TestDeviceFlow_DeclinedWithoutPolling(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		ctrl := gomock.NewController(t)
		srv := &deviceServer{expiresIn: 600, interval: 5, tokenReplies: []string{successTokenReply}}

		elicitor := NewMockElicitor(ctrl)
		elicitor.EXPECT().
			RequestUserAction(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(ElicitCancel, nil)

		_, err := testDeviceFlow(srv, elicitor).Run(t.Context(), []string{"fr:am:*"})
		assert.ErrorIs(t, err, ErrUserCancelled)
		assert.EqualValues(t, 0, srv.polls.Load(), "declining must not trigger a single poll")
	})
}

func TestDeviceFlow_ExpiresBeforeApproval(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		ctrl := gomock.NewController(t)
		srv := &deviceServer{
			expiresIn:    12,
			interval:     5,
			tokenReplies: []string{"err:authorization_pending"},
		}

		elicitor := NewMockElicitor(ctrl)
		elicitor.EXPECT().RequestUserAction(gomock.Any(), gomock.Any(), gomock.Any()).Return(ElicitAccept, nil)

		_, err := testDeviceFlow(srv, elicitor).Run(t.Context(), []string{"fr:am:*"})
		assert.ErrorIs(t, err, ErrDeviceCodeExpired)
		assert.EqualValues(t, 2, srv.polls.Load(), "polling stops once the deadline passes")
	})
}

func TestDeviceFlow_SlowDownStretchesInterval(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		ctrl := gomock.NewController(t)
		srv := &deviceServer{
			expiresIn:    600,
			interval:     5,
			tokenReplies: []string{"err:slow_down", successTokenReply},
		}

		elicitor := NewMockElicitor(ctrl)
		elicitor.EXPECT().RequestUserAction(gomock.Any(), gomock.Any(), gomock.Any()).Return(ElicitAccept, nil)
		elicitor.EXPECT().NotifyComplete(gomock.Any(), gomock.Any()).Return(nil)

		start := time.Now()

		_, err := testDeviceFlow(srv, elicitor).Run(t.Context(), []string{"fr:am:*"})
		require.NoError(t, err)

		// 5s to the first poll, then a stretched 10s to the second.
		assert.Equal(t, 15*time.Second, time.Since(start))
	})
}

func TestDeviceFlow_AccessDenied(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		ctrl := gomock.NewController(t)
		srv := &deviceServer{expiresIn: 600, interval: 5, tokenReplies: []string{"err:access_denied"}}

		elicitor := NewMockElicitor(ctrl)
		elicitor.EXPECT().RequestUserAction(gomock.Any(), gomock.Any(), gomock.Any()).Return(ElicitAccept, nil)

		_, err := testDeviceFlow(srv, elicitor).Run(t.Context(), []string{"fr:am:*"})
		assert.ErrorIs(t, err, ErrAccessDenied)
	})
}

func TestDeviceFlow_NotifyFailureTolerated(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		ctrl := gomock.NewController(t)
		srv := &deviceServer{expiresIn: 600, interval: 5, tokenReplies: []string{successTokenReply}}

		elicitor := NewMockElicitor(ctrl)
		elicitor.EXPECT().RequestUserAction(gomock.Any(), gomock.Any(), gomock.Any()).Return(ElicitAccept, nil)
		elicitor.EXPECT().NotifyComplete(gomock.Any(), gomock.Any()).Return(fmt.Errorf("session gone"))

		rec, err := testDeviceFlow(srv, elicitor).Run(t.Context(), []string{"fr:am:*"})
		require.NoError(t, err, "notification failures never fail the flow")
		assert.Equal(t, "primary-token", rec.AccessToken)
	})
}

func TestDeviceFlow_CancelDuringPolling(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		ctrl := gomock.NewController(t)
		srv := &deviceServer{
			expiresIn:    600,
			interval:     5,
			tokenReplies: []string{"err:authorization_pending"},
		}

		elicitor := NewMockElicitor(ctrl)
		elicitor.EXPECT().RequestUserAction(gomock.Any(), gomock.Any(), gomock.Any()).Return(ElicitAccept, nil)

		ctx, cancel := context.WithCancel(t.Context())

		errCh := make(chan error, 1)
		go func() {
			_, err := testDeviceFlow(srv, elicitor).Run(ctx, []string{"fr:am:*"})
			errCh <- err
		}()

		// Let one poll happen, then abandon the attempt mid-sleep.
		time.Sleep(7 * time.Second)
		cancel()

		assert.ErrorIs(t, <-errCh, context.Canceled)
		assert.EqualValues(t, 1, srv.polls.Load())
	})
}
