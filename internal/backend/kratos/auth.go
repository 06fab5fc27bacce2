// Package kratos implements backend.AuthBackend on Ory Kratos native
// (API) flows. The session token is kept in a tokenstore.Store, and session
// events are emitted after Kratos confirms each change.
package kratos

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	kratosclient "github.com/ory/kratos-client-go"

	"studygenie/internal/backend"
	"studygenie/internal/backend/tokenstore"
	"studygenie/pkg/platform/sentinel"
)

const defaultTimeout = 10 * time.Second

// ProfileProvisioner creates the profile row for an identity Kratos has
// confirmed. It must leave an existing row untouched.
type ProfileProvisioner interface {
	ProvisionProfile(ctx context.Context, identityID string, traits map[string]any) error
}

// Auth is a Kratos-backed AuthBackend.
type Auth struct {
	client      *kratosclient.APIClient
	tokens      tokenstore.Store
	logger      *slog.Logger
	timeout     time.Duration
	listeners   backend.Listeners
	signedIn    atomic.Bool
	profiles    ProfileProvisioner
	provisioned sync.Map
}

var _ backend.AuthBackend = (*Auth)(nil)

type Option func(*Auth)

func WithLogger(logger *slog.Logger) Option {
	return func(a *Auth) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithTimeout bounds every call to Kratos.
func WithTimeout(timeout time.Duration) Option {
	return func(a *Auth) {
		if timeout > 0 {
			a.timeout = timeout
		}
	}
}

// WithProfileProvisioner provisions a profile row whenever Kratos confirms a
// registration or a session for an identity not seen yet by this process.
func WithProfileProvisioner(p ProfileProvisioner) Option {
	return func(a *Auth) {
		a.profiles = p
	}
}

// New constructs an Auth talking to the Kratos public API at publicURL.
func New(publicURL string, tokens tokenstore.Store, opts ...Option) *Auth {
	configuration := kratosclient.NewConfiguration()
	configuration.Servers = []kratosclient.ServerConfiguration{{URL: publicURL}}
	configuration.HTTPClient = &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        20,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	a := &Auth{
		client:  kratosclient.NewAPIClient(configuration),
		tokens:  tokens,
		logger:  slog.Default(),
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(a)
	}
	configuration.HTTPClient.Timeout = a.timeout
	return a
}

func (a *Auth) GetActiveSession(ctx context.Context) (*backend.Session, error) {
	token, err := a.tokens.Load(ctx)
	if errors.Is(err, sentinel.ErrNotFound) {
		a.signedIn.Store(false)
		return nil, nil
	}
	if err != nil {
		return nil, backend.Unavailable(err)
	}

	session, httpResp, err := a.client.FrontendAPI.ToSession(ctx).XSessionToken(token).Execute()
	if err != nil {
		if status(httpResp) == http.StatusUnauthorized {
			// The token no longer names a live session.
			a.forgetToken(ctx)
			return nil, nil
		}
		return nil, a.classify(err, httpResp, "whoami")
	}
	if session.Active != nil && !*session.Active {
		a.forgetToken(ctx)
		return nil, nil
	}
	a.provision(ctx, session.Identity)
	out := toSession(session, token)
	a.signedIn.Store(true)
	return &out, nil
}

func (a *Auth) OnSessionChange(listener backend.SessionListener) func() {
	return a.listeners.Add(listener)
}

func (a *Auth) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*backend.Identity, error) {
	flow, httpResp, err := a.client.FrontendAPI.CreateNativeRegistrationFlow(ctx).Execute()
	if err != nil {
		return nil, a.classify(err, httpResp, "registration_flow_create")
	}

	method := kratosclient.UpdateRegistrationFlowWithPasswordMethod{
		Method:   "password",
		Password: password,
		Traits:   registrationTraits(email, metadata),
	}
	resp, httpResp, err := a.client.FrontendAPI.
		UpdateRegistrationFlow(ctx).
		Flow(flow.Id).
		UpdateRegistrationFlowBody(kratosclient.UpdateRegistrationFlowWithPasswordMethodAsUpdateRegistrationFlowBody(&method)).
		Execute()
	if err != nil {
		return nil, a.classify(err, httpResp, "registration_flow_submit")
	}

	identity := toIdentity(&resp.Identity)
	a.logger.InfoContext(ctx, "kratos registration completed", "identity_id", identity.ID)
	a.provision(ctx, &resp.Identity)

	// Kratos returns a session only when the registration hook signs the user in.
	if resp.Session != nil && resp.SessionToken != nil {
		if _, err := a.establish(ctx, *resp.Session, *resp.SessionToken); err != nil {
			return nil, err
		}
	}
	return &identity, nil
}

func (a *Auth) SignIn(ctx context.Context, email, password string) (*backend.Session, error) {
	flow, httpResp, err := a.client.FrontendAPI.CreateNativeLoginFlow(ctx).Execute()
	if err != nil {
		return nil, a.classify(err, httpResp, "login_flow_create")
	}

	method := kratosclient.UpdateLoginFlowWithPasswordMethod{
		Method:     "password",
		Identifier: email,
		Password:   password,
	}
	resp, httpResp, err := a.client.FrontendAPI.
		UpdateLoginFlow(ctx).
		Flow(flow.Id).
		UpdateLoginFlowBody(kratosclient.UpdateLoginFlowWithPasswordMethodAsUpdateLoginFlowBody(&method)).
		Execute()
	if err != nil {
		return nil, a.classify(err, httpResp, "login_flow_submit")
	}
	return a.establish(ctx, resp.Session, resp.GetSessionToken())
}

// SignInWithProvider starts a browser login flow. The user agent finishes it at
// the provider; the session shows up on the next GetActiveSession.
func (a *Auth) SignInWithProvider(ctx context.Context, provider, redirectTo string) (*backend.ProviderRedirect, error) {
	req := a.client.FrontendAPI.CreateBrowserLoginFlow(ctx)
	if redirectTo != "" {
		req = req.ReturnTo(redirectTo)
	}
	flow, httpResp, err := req.Execute()
	if err != nil {
		return nil, a.classify(err, httpResp, "browser_login_flow_create")
	}
	return &backend.ProviderRedirect{
		Provider: provider,
		FlowID:   flow.Id,
		URL:      providerURL(flow.Ui.Action, provider),
	}, nil
}

func (a *Auth) SignOut(ctx context.Context) error {
	token, err := a.tokens.Load(ctx)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
	case err != nil:
		return backend.Unavailable(err)
	default:
		httpResp, err := a.client.FrontendAPI.
			PerformNativeLogout(ctx).
			PerformNativeLogoutBody(kratosclient.PerformNativeLogoutBody{SessionToken: token}).
			Execute()
		// An unknown token is already signed out.
		if err != nil && status(httpResp) != http.StatusUnauthorized && status(httpResp) != http.StatusForbidden {
			return a.classify(err, httpResp, "logout")
		}
	}
	if err := a.tokens.Clear(ctx); err != nil {
		return backend.Unavailable(err)
	}
	a.signedIn.Store(false)
	a.listeners.Emit(backend.SessionEvent{Kind: backend.EventSignedOut})
	return nil
}

// WatchExpiry polls the active session every interval and emits
// EventExpired when a session this process knew about lapses. It returns when
// ctx is cancelled.
func (a *Auth) WatchExpiry(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if !a.signedIn.Load() {
				continue
			}
			session, err := a.GetActiveSession(ctx)
			if err != nil {
				a.logger.WarnContext(ctx, "session expiry check failed", "error", err)
				continue
			}
			if session == nil {
				a.listeners.Emit(backend.SessionEvent{Kind: backend.EventExpired})
			}
		}
	}
}

func (a *Auth) establish(ctx context.Context, ks kratosclient.Session, token string) (*backend.Session, error) {
	if token == "" {
		return nil, backend.Reject("Kratos returned no session token", nil)
	}
	session := toSession(&ks, token)
	if err := a.tokens.Save(ctx, token, tokenTTL(session.ExpiresAt, time.Now())); err != nil {
		return nil, backend.Unavailable(err)
	}
	a.provision(ctx, ks.Identity)
	a.signedIn.Store(true)
	a.listeners.Emit(backend.SessionEvent{Kind: backend.EventSignedIn, Session: &session})
	return &session, nil
}

// provision makes sure identity has a profile row before its session is
// announced. A failure is logged and retried on the next confirmation, so
// authentication never depends on the data store being reachable.
func (a *Auth) provision(ctx context.Context, identity *kratosclient.Identity) {
	if a.profiles == nil || identity == nil || identity.Id == "" {
		return
	}
	if _, done := a.provisioned.Load(identity.Id); done {
		return
	}
	if err := a.profiles.ProvisionProfile(ctx, identity.Id, profileTraits(identity)); err != nil {
		a.logger.ErrorContext(ctx, "failed to provision profile", "error", err, "identity_id", identity.Id)
		return
	}
	a.provisioned.Store(identity.Id, struct{}{})
}

func (a *Auth) forgetToken(ctx context.Context) {
	a.signedIn.Store(false)
	if err := a.tokens.Clear(ctx); err != nil {
		a.logger.WarnContext(ctx, "failed to clear stale session token", "error", err)
	}
}

// classify maps a failed Kratos call onto backend errors: client errors are
// rejections carrying the Kratos message, everything else is unavailability.
func (a *Auth) classify(err error, httpResp *http.Response, operation string) error {
	code := status(httpResp)
	a.logger.Error("kratos call failed", "operation", operation, "error", err, "http_status", code)

	if code == 0 || code >= http.StatusInternalServerError {
		return backend.Unavailable(fmt.Errorf("kratos %s: %w", operation, err))
	}
	message := ""
	var apiErr *kratosclient.GenericOpenAPIError
	if errors.As(err, &apiErr) {
		message = messageFromBody(apiErr.Body())
	}
	if message == "" {
		message = defaultMessage(code)
	}
	return backend.Reject(message, fmt.Errorf("kratos %s: %w", operation, err))
}

func status(resp *http.Response) int {
	if resp == nil {
		return 0
	}
	return resp.StatusCode
}

func providerURL(action, provider string) string {
	u, err := url.Parse(action)
	if err != nil {
		return action
	}
	q := u.Query()
	q.Set("provider", provider)
	u.RawQuery = q.Encode()
	return u.String()
}

// tokenTTL keeps the stored token no longer than the session it names.
func tokenTTL(expiresAt, now time.Time) time.Duration {
	if expiresAt.IsZero() {
		return 0
	}
	ttl := expiresAt.Sub(now)
	if ttl < time.Second {
		return time.Second
	}
	return ttl
}
