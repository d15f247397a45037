package auth

import (
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// listenerShutdownTimeout bounds how long Stop waits for an in-flight
// response to finish writing.
const listenerShutdownTimeout = 5 * time.Second

// successPage is shown when the redirect carried a valid code.
var successPage = template.Must(template.New("success").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>aic-mcp</title>
<style>
  body {
    font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, Helvetica, Arial, sans-serif;
    background: #f5f5f5;
    color: #1a1a1a;
    display: flex;
    align-items: center;
    justify-content: center;
    min-height: 100vh;
  }
  .card {
    background: #fff;
    border: 1px solid #e0e0e0;
    border-radius: 8px;
    padding: 2.5rem 2rem;
    max-width: 380px;
    text-align: center;
  }
  .card h1 { font-size: 1.25rem; font-weight: 600; margin-bottom: 0.5rem; }
  .card p { font-size: 0.9rem; color: #666; }
</style>
</head>
<body>
<div class="card">
  <h1>Signed in</h1>
  <p>Authentication complete. You can close this tab and return to your tools.</p>
</div>
</body>
</html>`))

// failurePage is shown when the redirect was rejected. The reason is
// HTML-escaped by the template engine.
var failurePage = template.Must(template.New("failure").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>aic-mcp</title>
<style>
  body {
    font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, Helvetica, Arial, sans-serif;
    background: #f5f5f5;
    color: #1a1a1a;
    display: flex;
    align-items: center;
    justify-content: center;
    min-height: 100vh;
  }
  .card {
    background: #fff;
    border: 1px solid #fecaca;
    border-radius: 8px;
    padding: 2.5rem 2rem;
    max-width: 380px;
    text-align: center;
  }
  .card h1 { font-size: 1.25rem; font-weight: 600; margin-bottom: 0.5rem; color: #991b1b; }
  .card p { font-size: 0.9rem; color: #666; }
</style>
</head>
<body>
<div class="card">
  <h1>Sign-in failed</h1>
  <p>{{.Reason}}</p>
</div>
</body>
</html>`))

// redirectResult is what the listener hands back to the waiting flow:
// either an authorization code or the reason the redirect was rejected.
type redirectResult struct {
	code string
	err  error
}

// redirectListener is the short-lived loopback HTTP endpoint that
// receives the authorization-code redirect, validates it, and
// terminates. Exactly one redirect is processed per listener; it is
// owned by a single flow attempt and stopped on every exit path.
type redirectListener struct {
	port       int
	tenantHost string
	state      string
	logger     *slog.Logger

	server   *http.Server
	listener net.Listener
	resultCh chan redirectResult
	once     sync.Once
}

// newRedirectListener creates a listener for one flow attempt. The
// state value must be the one embedded in the authorization request;
// tenantHost is the only origin redirects are accepted from.
func newRedirectListener(port int, tenantHost, state string, logger *slog.Logger) *redirectListener {
	return &redirectListener{
		port:       port,
		tenantHost: tenantHost,
		state:      state,
		logger:     logger,
		resultCh:   make(chan redirectResult, 1),
	}
}

// Start binds the loopback port and begins serving. A bind failure
// (port already in use) is fatal for the attempt and propagates
// immediately. Returns the redirect URI to embed in the authorization
// request.
func (l *redirectListener) Start() (string, error) {
	addr := fmt.Sprintf("127.0.0.1:%d", l.port)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("binding redirect listener on %s: %w", addr, err)
	}

	l.listener = listener
	l.port = listener.Addr().(*net.TCPAddr).Port

	mux := http.NewServeMux()
	mux.HandleFunc("/", l.handleRedirect)

	l.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := l.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			select {
			case l.resultCh <- redirectResult{err: fmt.Errorf("redirect listener: %w", err)}:
			default:
			}
		}
	}()

	return fmt.Sprintf("http://localhost:%d", l.port), nil
}

// Wait blocks until the listener receives a redirect, fails, or the
// context is cancelled. Cancelling the context is the caller's way of
// abandoning the attempt; the listener is stopped either way.
func (l *redirectListener) Wait(ctx context.Context) (string, error) {
	select {
	case res := <-l.resultCh:
		return res.code, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Stop shuts the listener down. Safe to call on every exit path,
// including after the handler already scheduled its own shutdown.
func (l *redirectListener) Stop() {
	if l.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), listenerShutdownTimeout)
		defer cancel()
		_ = l.server.Shutdown(ctx)
	}

	if l.listener != nil {
		_ = l.listener.Close()
	}
}

// handleRedirect validates a single incoming redirect. Later requests
// get a plain 400: the result of the first one already stands.
func (l *redirectListener) handleRedirect(w http.ResponseWriter, r *http.Request) {
	handled := false
	l.once.Do(func() {
		handled = true
		l.processRedirect(w, r)
	})

	if !handled {
		http.Error(w, "redirect already processed", http.StatusBadRequest)
	}
}

func (l *redirectListener) processRedirect(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.Header().Set("Cache-Control", "no-store")

	if err := l.checkOrigin(r); err != nil {
		l.fail(w, http.StatusForbidden, "The request came from an unexpected origin.", err)
		return
	}

	q := r.URL.Query()

	state := q.Get("state")
	if state == "" || state != l.state {
		err := fmt.Errorf("state parameter mismatch: %w", ErrSecurityRejection)
		l.fail(w, http.StatusForbidden, "The sign-in response did not match this session.", err)

		return
	}

	code := q.Get("code")
	if code == "" {
		reason := q.Get("error")
		if reason == "" {
			reason = "no authorization code in redirect"
		}

		desc := q.Get("error_description")
		if desc != "" {
			reason = reason + ": " + desc
		}

		l.fail(w, http.StatusOK, "The authorization server reported an error.", fmt.Errorf("authorization failed: %s", reason))

		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = successPage.Execute(w, nil)

	l.deliver(redirectResult{code: code})
}

// checkOrigin validates the Referer (preferred) or Origin header
// against the tenant host. Absent headers are accepted: browsers may
// omit both on top-level navigations. Present headers must parse and
// their hostname must equal the tenant host exactly; suffix or
// substring matches (evil.<tenant>.attacker.com) are rejected.
func (l *redirectListener) checkOrigin(r *http.Request) error {
	ref := r.Header.Get("Referer")
	if ref == "" {
		ref = r.Header.Get("Origin")
	}

	if ref == "" {
		return nil
	}

	u, err := url.Parse(ref)
	if err != nil {
		return fmt.Errorf("unparseable redirect origin: %w", ErrSecurityRejection)
	}

	if u.Hostname() != l.tenantHost {
		l.logger.Warn("redirect origin rejected",
			slog.String("got", u.Hostname()),
			slog.String("want", l.tenantHost),
		)

		return fmt.Errorf("redirect origin %q does not match tenant %q: %w", u.Hostname(), l.tenantHost, ErrSecurityRejection)
	}

	return nil
}

// fail writes the HTML failure page and delivers the error to the
// waiting flow.
func (l *redirectListener) fail(w http.ResponseWriter, status int, reason string, err error) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_ = failurePage.Execute(w, struct{ Reason string }{Reason: reason})

	l.deliver(redirectResult{err: err})
}

func (l *redirectListener) deliver(res redirectResult) {
	select {
	case l.resultCh <- res:
	default:
	}
}
