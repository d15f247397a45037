package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ElicitAction is the operator's structured answer to a device-flow
// prompt.
type ElicitAction string

const (
	// ElicitAccept means the operator confirmed they will complete
	// verification in a browser; polling may begin.
	ElicitAccept ElicitAction = "accept"

	// ElicitCancel means the operator declined; the attempt fails
	// without a single poll.
	ElicitCancel ElicitAction = "cancel"
)

// Elicitor is the external channel the device flow uses to surface the
// verification URI to a human and await their go-ahead. The hosting
// process implements it; this package only consumes it.
//
//go:generate mockgen -source=device.go -destination=device_mock_test.go -package=auth
type Elicitor interface {
	// RequestUserAction presents the message and verification URI and
	// blocks until the operator accepts or cancels.
	RequestUserAction(ctx context.Context, message, verificationURI string) (ElicitAction, error)

	// NotifyComplete tells the channel the interaction identified by id
	// finished. Best-effort: failures are logged, never propagated.
	NotifyComplete(ctx context.Context, id string) error
}

// deviceCodeResponse is the wire shape of a device-authorization reply.
type deviceCodeResponse struct {
	DeviceCode              string `json:"device_code"`
	UserCode                string `json:"user_code"`
	VerificationURI         string `json:"verification_uri"`
	VerificationURIComplete string `json:"verification_uri_complete"`
	ExpiresIn               int    `json:"expires_in"`
	Interval                int    `json:"interval"`
}

const (
	// defaultPollInterval is used when the server omits interval.
	defaultPollInterval = 5 * time.Second

	// maxPollInterval caps interval growth from slow_down responses.
	maxPollInterval = 10 * time.Second
)

// deviceFlow runs the unattended device-authorization flow: request a
// device code, hand the verification URI to a human through the
// elicitation channel, then poll the token endpoint until approval,
// denial, or expiry.
type deviceFlow struct {
	endpoints  Endpoints
	clientID   string
	tenantHost string
	httpClient *http.Client
	elicitor   Elicitor
	logger     *slog.Logger
}

// Run executes one flow attempt. PKCE is included even though RFC 8628
// does not require it; the tenant accepts the extra parameters and it
// binds the device code to this process.
func (f *deviceFlow) Run(ctx context.Context, scopes []string) (TokenRecord, error) {
	pkce, err := GeneratePKCE()
	if err != nil {
		return TokenRecord{}, err
	}

	dc, err := f.requestDeviceCode(ctx, scopes, pkce.Challenge)
	if err != nil {
		return TokenRecord{}, err
	}

	// The deadline starts at the device-code grant, not at user
	// acceptance: the code expires regardless of how long the operator
	// deliberates.
	deadline := time.Now().Add(time.Duration(dc.ExpiresIn) * time.Second)

	msg := fmt.Sprintf("Authentication required for %s. Visit the verification URL and enter code %s, then accept this prompt.",
		f.tenantHost, dc.UserCode)

	action, err := f.elicitor.RequestUserAction(ctx, msg, dc.VerificationURIComplete)
	if err != nil {
		return TokenRecord{}, fmt.Errorf("eliciting user approval: %w", err)
	}

	if action != ElicitAccept {
		return TokenRecord{}, fmt.Errorf("device verification declined: %w", ErrUserCancelled)
	}

	rec, err := f.poll(ctx, dc, pkce.Verifier, deadline)
	if err != nil {
		return TokenRecord{}, err
	}

	if nerr := f.elicitor.NotifyComplete(ctx, dc.UserCode); nerr != nil {
		f.logger.Warn("completion notification failed", slog.String("error", nerr.Error()))
	}

	return rec, nil
}

// requestDeviceCode calls the device-authorization endpoint.
func (f *deviceFlow) requestDeviceCode(ctx context.Context, scopes []string, challenge string) (deviceCodeResponse, error) {
	form := url.Values{}
	form.Set("client_id", f.clientID)
	form.Set("scope", strings.Join(scopes, " "))
	form.Set("code_challenge", challenge)
	form.Set("code_challenge_method", "S256")

	body, err := postForm(ctx, f.httpClient, f.endpoints.DeviceAuth, form)
	if err != nil {
		return deviceCodeResponse{}, fmt.Errorf("requesting device code: %w", err)
	}

	var dc deviceCodeResponse
	if err := json.Unmarshal(body, &dc); err != nil {
		return deviceCodeResponse{}, fmt.Errorf("decoding device code response: %w", err)
	}

	if dc.DeviceCode == "" {
		return deviceCodeResponse{}, fmt.Errorf("device authorization response has no device_code")
	}

	return dc, nil
}

// poll hits the token endpoint every interval until the grant resolves
// or the deadline passes. authorization_pending keeps polling,
// slow_down stretches the interval, access_denied and invalid_grant
// fail immediately.
func (f *deviceFlow) poll(ctx context.Context, dc deviceCodeResponse, verifier string, deadline time.Time) (TokenRecord, error) {
	interval := defaultPollInterval
	if dc.Interval > 0 {
		interval = time.Duration(dc.Interval) * time.Second
	}

	form := url.Values{}
	form.Set("grant_type", "urn:ietf:params:oauth:grant-type:device_code")
	form.Set("device_code", dc.DeviceCode)
	form.Set("client_id", f.clientID)
	form.Set("code_verifier", verifier)

	for {
		if !time.Now().Before(deadline) {
			return TokenRecord{}, ErrDeviceCodeExpired
		}

		select {
		case <-ctx.Done():
			return TokenRecord{}, ctx.Err()
		case <-time.After(interval):
		}

		// Re-check after sleeping: the interval may have carried us
		// past the deadline.
		if !time.Now().Before(deadline) {
			return TokenRecord{}, ErrDeviceCodeExpired
		}

		body, err := postForm(ctx, f.httpClient, f.endpoints.Token, form)
		if err != nil {
			var terr *TransportError
			if !errors.As(err, &terr) {
				return TokenRecord{}, fmt.Errorf("polling token endpoint: %w", err)
			}

			switch oauthErrorCode(body) {
			case "authorization_pending":
				continue
			case "slow_down":
				interval += 5 * time.Second
				if interval > maxPollInterval {
					interval = maxPollInterval
				}

				f.logger.Debug("server requested slower polling", slog.Duration("interval", interval))

				continue
			case "expired_token":
				return TokenRecord{}, ErrDeviceCodeExpired
			case "access_denied", "invalid_grant":
				return TokenRecord{}, fmt.Errorf("%s: %w", oauthErrorCode(body), ErrAccessDenied)
			default:
				return TokenRecord{}, fmt.Errorf("polling token endpoint: %w", err)
			}
		}

		var tok tokenResponse
		if err := json.Unmarshal(body, &tok); err != nil {
			return TokenRecord{}, fmt.Errorf("decoding token response: %w", err)
		}

		if tok.AccessToken == "" {
			return TokenRecord{}, fmt.Errorf("token response has no access_token")
		}

		return newTokenRecord(tok.AccessToken, tok.ExpiresIn, f.tenantHost, time.Now()), nil
	}
}
