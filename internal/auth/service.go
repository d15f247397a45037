package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	apperrors "github.com/mwestcott/aic-mcp/internal/errors"
)

// Options configures a Service. Store, TenantHost, ClientID, and
// Endpoints are required; Elicitor is required when Containerized.
type Options struct {
	// Endpoints are the tenant OAuth2 endpoints.
	Endpoints Endpoints

	// TenantHost is the hostname cached tokens are bound to.
	TenantHost string

	// ClientID is the OAuth client this process authenticates as.
	ClientID string

	// Scopes are the primary-token scopes requested during a flow.
	Scopes []string

	// CallbackPort is the fixed loopback port for the PKCE redirect.
	CallbackPort int

	// AllowCachedFirst permits trusting a persisted token on the very
	// first acquisition of the process. False forces one fresh
	// authentication per process start.
	AllowCachedFirst bool

	// Containerized selects the device flow; otherwise the
	// authorization-code flow runs.
	Containerized bool

	// Store persists the primary token between runs.
	Store TokenStore

	// Elicitor surfaces device-flow verification to a human. Required
	// in containerized mode, unused otherwise.
	Elicitor Elicitor

	// HTTPClient overrides the OAuth HTTP client. Nil gets a default.
	HTTPClient *http.Client

	// OpenBrowser overrides how the authorization URL is opened. Nil
	// gets the system default browser.
	OpenBrowser func(string) error

	Logger *slog.Logger
}

// Status is a redacted snapshot of the service's state for operator
// display. It never contains token material.
type Status struct {
	Authenticated bool      `json:"authenticated"`
	TenantHost    string    `json:"tenant_host"`
	Mode          string    `json:"mode"`
	TokenCached   bool      `json:"token_cached"`
	ExpiresAt     time.Time `json:"expires_at,omitzero"`
}

// Service is the acquisition coordinator: the single entry point every
// tool call goes through to obtain a scoped access token. It owns
// cache-validity checks, flow selection, and in-flight deduplication.
type Service struct {
	opts       Options
	httpClient *http.Client
	openURL    func(string) error
	exchanger  *exchanger
	logger     *slog.Logger

	// group shares one in-flight acquisition among all concurrent
	// callers; the handle clears when the winning call returns.
	group singleflight.Group

	mu            sync.Mutex
	authenticated bool // set after the first successful flow this process
}

// NewService constructs the coordinator. Flow selection is fixed here
// for the process lifetime and never re-evaluated per call.
func NewService(opts Options) (*Service, error) {
	if opts.TenantHost == "" || opts.Endpoints.Token == "" {
		return nil, apperrors.ErrMissingTenant
	}

	if opts.ClientID == "" {
		return nil, fmt.Errorf("auth: client ID is required")
	}

	if opts.Store == nil {
		return nil, fmt.Errorf("auth: token store is required")
	}

	if opts.Containerized && opts.Elicitor == nil {
		return nil, fmt.Errorf("auth: containerized mode requires an elicitation channel")
	}

	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = newOAuthHTTPClient()
	}

	openURL := opts.OpenBrowser
	if openURL == nil {
		openURL = defaultOpenBrowser
	}

	return &Service{
		opts:       opts,
		httpClient: httpClient,
		openURL:    openURL,
		exchanger: &exchanger{
			endpoint:   opts.Endpoints.Token,
			clientID:   opts.ClientID,
			httpClient: httpClient,
		},
		logger: opts.Logger,
	}, nil
}

// GetToken returns an access token narrowed to the given scopes.
// Callable concurrently and repeatedly: concurrent callers share one
// authentication attempt, and the exchange runs per call so every
// caller gets a token scoped to its own request. The primary token is
// never returned.
func (s *Service) GetToken(ctx context.Context, scopes []string) (string, error) {
	primary, err := s.primaryToken(ctx)
	if err != nil {
		return "", err
	}

	return s.exchanger.Exchange(ctx, primary, scopes)
}

// primaryToken returns a primary token that was valid (unexpired,
// correct tenant) at the moment it was selected. If an acquisition is
// already in flight, the caller attaches to it rather than re-checking
// the cache; otherwise it checks the cache and, on a miss, runs the
// flow itself while later arrivals attach.
func (s *Service) primaryToken(ctx context.Context) (string, error) {
	token, err, _ := s.group.Do("primary", func() (any, error) {
		return s.acquire(ctx)
	})
	if err != nil {
		return "", err
	}

	return token.(string), nil
}

// acquire is the single-flight body: cache check, flow, persist.
func (s *Service) acquire(ctx context.Context) (string, error) {
	if rec, ok := s.cachedRecord(); ok {
		return rec.AccessToken, nil
	}

	rec, err := s.runFlow(ctx)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.authenticated = true
	s.mu.Unlock()

	if err := s.opts.Store.Save(rec); err != nil {
		// The token works in memory but did not persist; the caller
		// decides whether to continue without a cache.
		return "", fmt.Errorf("%w: %v", ErrStorage, err)
	}

	s.logger.Info("authenticated",
		slog.String("tenant", s.opts.TenantHost),
		slog.Time("expires_at", time.UnixMilli(rec.ExpiresAt)),
	)

	return rec.AccessToken, nil
}

// cachedRecord loads and validates the persisted record. Read failures
// and stale or foreign-tenant records all degrade to a cache miss.
func (s *Service) cachedRecord() (TokenRecord, bool) {
	s.mu.Lock()
	authenticated := s.authenticated
	s.mu.Unlock()

	// "Prove identity once per process start" policy: until the first
	// successful flow, a persisted token is only trusted when
	// configured to allow it.
	if !authenticated && !s.opts.AllowCachedFirst {
		return TokenRecord{}, false
	}

	rec, err := s.opts.Store.Load()
	if errors.Is(err, ErrNoToken) {
		return TokenRecord{}, false
	}

	if err != nil {
		s.logger.Warn("token store read failed, re-authenticating", slog.String("error", err.Error()))
		return TokenRecord{}, false
	}

	now := time.Now()

	if rec.TenantHost != s.opts.TenantHost {
		s.logger.Warn("cached token belongs to a different tenant, re-authenticating",
			slog.String("cached", rec.TenantHost),
			slog.String("active", s.opts.TenantHost),
		)

		return TokenRecord{}, false
	}

	if !rec.Valid(now, s.opts.TenantHost) {
		s.logger.Debug("cached token expired", slog.Time("expired_at", time.UnixMilli(rec.ExpiresAt)))
		return TokenRecord{}, false
	}

	return rec, true
}

// runFlow executes the flow selected for this process mode.
func (s *Service) runFlow(ctx context.Context) (TokenRecord, error) {
	if s.opts.Containerized {
		flow := &deviceFlow{
			endpoints:  s.opts.Endpoints,
			clientID:   s.opts.ClientID,
			tenantHost: s.opts.TenantHost,
			httpClient: s.httpClient,
			elicitor:   s.opts.Elicitor,
			logger:     s.logger,
		}

		return flow.Run(ctx, s.opts.Scopes)
	}

	flow := &authCodeFlow{
		endpoints:  s.opts.Endpoints,
		clientID:   s.opts.ClientID,
		tenantHost: s.opts.TenantHost,
		port:       s.opts.CallbackPort,
		httpClient: s.httpClient,
		openURL:    s.openURL,
		logger:     s.logger,
	}

	return flow.Run(ctx, s.opts.Scopes)
}

// NoteExternalTokenUpdate records that the token store was refreshed by
// an external process (for example a sidecar login writing the token
// file). The provisioning counts as this session's authentication, so
// first-request policies do not force a redundant flow.
func (s *Service) NoteExternalTokenUpdate() {
	s.mu.Lock()
	s.authenticated = true
	s.mu.Unlock()

	s.logger.Info("token store updated externally")
}

// Status reports a redacted view of the service state.
func (s *Service) Status() Status {
	s.mu.Lock()
	authenticated := s.authenticated
	s.mu.Unlock()

	mode := "attended"
	if s.opts.Containerized {
		mode = "containerized"
	}

	st := Status{
		Authenticated: authenticated,
		TenantHost:    s.opts.TenantHost,
		Mode:          mode,
	}

	if rec, err := s.opts.Store.Load(); err == nil && rec.TenantHost == s.opts.TenantHost {
		st.TokenCached = true
		st.ExpiresAt = time.UnixMilli(rec.ExpiresAt)
	}

	return st
}
