// Package session owns the authentication lifecycle on the client side: the
// current identity, the cached profile and the change notifications the
// presentation layer renders from.
//
// State only changes when the AuthBackend confirms a change through its event
// channel. Operations such as SignIn return the backend's answer, and the
// transition arrives separately, in backend order, through the manager's
// dispatcher.
package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"

	"studygenie/internal/activity"
	"studygenie/internal/backend"
	"studygenie/internal/platform/config"
	"studygenie/internal/platform/metrics"
	dErrors "studygenie/pkg/domain-errors"
)

const (
	msgSignUpSuccess    = "Registration successful! Please check your email for verification."
	msgProfileUpdated   = "Profile updated successfully!"
	msgSessionExpired   = "Your session has expired. Please sign in again."
	profilesCollection  = "user_profiles"
	defaultLandingRoute = "/"
)

// ActivityRecorder receives activity events. Delivery failures are the
// recorder's concern.
type ActivityRecorder interface {
	Record(ctx context.Context, event activity.Event)
}

// Manager is the session state machine.
type Manager struct {
	auth      backend.AuthBackend
	data      backend.DataBackend
	presenter Presenter
	logger    *slog.Logger
	metrics   *metrics.Metrics
	activity  ActivityRecorder
	routes    config.Routes
	validate  *validator.Validate

	mu          sync.RWMutex
	state       State
	eventsSeen  int
	epoch       uint64
	profileSeq  uint64
	appliedSeq  uint64
	unsubscribe func()

	listenersMu      sync.Mutex
	nextListener     int
	stateListeners   map[int]StateListener
	profileListeners map[int]ProfileListener

	queue   *taskQueue
	flights singleflight.Group
	ctx     context.Context
	cancel  context.CancelFunc
	started sync.Once
}

type Option func(*Manager)

func WithPresenter(p Presenter) Option {
	return func(m *Manager) {
		if p != nil {
			m.presenter = p
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = mt
	}
}

func WithActivity(recorder ActivityRecorder) Option {
	return func(m *Manager) {
		m.activity = recorder
	}
}

// WithRoutes sets the landing, dashboard and provider redirect targets.
func WithRoutes(routes config.Routes) Option {
	return func(m *Manager) {
		m.routes = routes
	}
}

// New constructs a Manager. Call Start before use.
func New(auth backend.AuthBackend, data backend.DataBackend, opts ...Option) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		auth:             auth,
		data:             data,
		presenter:        NopPresenter{},
		logger:           slog.Default(),
		routes:           config.Routes{Landing: defaultLandingRoute, Dashboard: "/dashboard"},
		validate:         validator.New(validator.WithRequiredStructEnabled()),
		state:            State{Status: StatusUnauthenticated, Pending: true},
		stateListeners:   make(map[int]StateListener),
		profileListeners: make(map[int]ProfileListener),
		queue:            newTaskQueue(),
		ctx:              ctx,
		cancel:           cancel,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start subscribes to backend session events, then resolves the initial state
// from the backend's persisted session. It blocks until that query resolves.
// A failed query leaves the manager unauthenticated and returns the error.
func (m *Manager) Start(ctx context.Context) error {
	m.started.Do(func() {
		go m.queue.run()
		m.mu.Lock()
		m.unsubscribe = m.auth.OnSessionChange(m.onSessionEvent)
		m.mu.Unlock()
	})

	session, err := m.auth.GetActiveSession(ctx)
	if err != nil {
		m.logger.ErrorContext(ctx, "failed to restore session", "error", err)
		m.metrics.IncrementBackendFailure("get_active_session", string(dErrors.CodeOf(backend.Translate(err))))
	}
	m.queue.push(func() { m.restore(session) })
	if drainErr := m.queue.drain(ctx); drainErr != nil {
		return drainErr
	}
	return backend.Translate(err)
}

// Close stops event processing and unsubscribes from the backend.
func (m *Manager) Close() {
	m.mu.Lock()
	unsubscribe := m.unsubscribe
	m.unsubscribe = nil
	m.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
	m.cancel()
	m.queue.stop()
}

// Settle waits until every backend event received so far has been applied.
func (m *Manager) Settle(ctx context.Context) error {
	return m.queue.drain(ctx)
}

// OnStateChange registers listener for future transitions and returns a
// function that removes it.
func (m *Manager) OnStateChange(listener StateListener) func() {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()
	m.nextListener++
	key := m.nextListener
	m.stateListeners[key] = listener
	return func() {
		m.listenersMu.Lock()
		defer m.listenersMu.Unlock()
		delete(m.stateListeners, key)
	}
}

// OnProfileChange registers listener for profile cache replacements.
func (m *Manager) OnProfileChange(listener ProfileListener) func() {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()
	m.nextListener++
	key := m.nextListener
	m.profileListeners[key] = listener
	return func() {
		m.listenersMu.Lock()
		defer m.listenersMu.Unlock()
		delete(m.profileListeners, key)
	}
}

// State returns a snapshot of the current state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

func (m *Manager) IsAuthenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Status == StatusAuthenticated
}

// CurrentIdentity returns a copy of the cached identity, or nil.
func (m *Manager) CurrentIdentity() *backend.Identity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state.Identity == nil {
		return nil
	}
	identity := *m.state.Identity
	return &identity
}

// CurrentProfile returns a copy of the cached profile, or nil.
func (m *Manager) CurrentProfile() *Profile {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state.Profile == nil {
		return nil
	}
	profile := *m.state.Profile
	return &profile
}

func (m *Manager) HasRole(role string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Profile != nil && m.state.Profile.Role == role
}

// RequireAuthOrRedirect is an advisory guard for protected views. When no one
// is signed in it asks the presenter to go to the landing page.
func (m *Manager) RequireAuthOrRedirect() bool {
	if m.IsAuthenticated() {
		return true
	}
	m.presenter.Navigate(Navigation{Target: m.routes.Landing})
	return false
}

// SignUp registers a new account. The session, if the backend opens one,
// arrives later as an event.
func (m *Manager) SignUp(ctx context.Context, req SignUpRequest) (*backend.Identity, error) {
	req.Email = strings.TrimSpace(req.Email)
	if err := m.validate.Struct(req); err != nil {
		return nil, m.fail(ctx, "sign_up", dErrors.Wrap(err, dErrors.CodeValidation, "a valid email and password are required"))
	}

	identity, err := m.auth.SignUp(ctx, req.Email, req.Password, req.metadata())
	if err != nil {
		return nil, m.fail(ctx, "sign_up", backend.Translate(err))
	}
	m.metrics.IncrementAuthOperation("sign_up", nil)
	m.record(ctx, activity.Event{UserID: identity.ID, Action: activity.ActionSignedUp})
	m.presenter.Notify(Notification{Message: msgSignUpSuccess, Severity: SeveritySuccess})
	return identity, nil
}

// SignIn authenticates with email and password.
func (m *Manager) SignIn(ctx context.Context, email, password string) (*backend.Session, error) {
	email = strings.TrimSpace(email)
	if err := m.validate.Var(email, "required,email"); err != nil {
		return nil, m.fail(ctx, "sign_in", dErrors.Wrap(err, dErrors.CodeValidation, "a valid email is required"))
	}
	if password == "" {
		return nil, m.fail(ctx, "sign_in", dErrors.New(dErrors.CodeValidation, "password is required"))
	}

	session, err := m.auth.SignIn(ctx, email, password)
	if err != nil {
		return nil, m.fail(ctx, "sign_in", backend.Translate(err))
	}
	m.metrics.IncrementAuthOperation("sign_in", nil)
	return session, nil
}

// SignInWithProvider starts an OAuth-style flow and sends the user agent to
// the provider. It returns as soon as the redirect is known.
func (m *Manager) SignInWithProvider(ctx context.Context, provider string) (*backend.ProviderRedirect, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if err := m.validate.Var(provider, "required,alphanum"); err != nil {
		return nil, m.fail(ctx, "sign_in_provider", dErrors.Wrap(err, dErrors.CodeValidation, "unknown sign-in provider"))
	}

	redirect, err := m.auth.SignInWithProvider(ctx, provider, m.routes.ProviderRedirect)
	if err != nil {
		return nil, m.fail(ctx, "sign_in_provider", backend.Translate(err))
	}
	m.metrics.IncrementAuthOperation("sign_in_provider", nil)
	m.presenter.Navigate(Navigation{Target: redirect.URL, External: true})
	return redirect, nil
}

// SignOut ends the session. The transition and the landing redirect follow the
// backend's event.
func (m *Manager) SignOut(ctx context.Context) error {
	if err := m.auth.SignOut(ctx); err != nil {
		return m.fail(ctx, "sign_out", backend.Translate(err))
	}
	m.metrics.IncrementAuthOperation("sign_out", nil)
	return nil
}

// fail logs, counts and announces a failed auth operation and returns err.
func (m *Manager) fail(ctx context.Context, operation string, err error) error {
	m.metrics.IncrementAuthOperation(operation, err)
	if dErrors.HasCode(err, dErrors.CodeTransport) {
		m.logger.ErrorContext(ctx, "auth backend unreachable", "operation", operation, "error", err)
	} else {
		m.logger.WarnContext(ctx, "auth operation failed", "operation", operation, "error", err)
	}
	m.presenter.Notify(Notification{Message: dErrors.UserMessage(err), Severity: SeverityError})
	return err
}

func (m *Manager) onSessionEvent(evt backend.SessionEvent) {
	m.queue.push(func() { m.apply(evt) })
}

// restore applies the startup session unless a backend event got there first.
func (m *Manager) restore(session *backend.Session) {
	m.mu.Lock()
	seen := m.eventsSeen
	wasPending := m.state.Pending
	m.state.Pending = false
	m.mu.Unlock()

	if seen == 0 && session != nil {
		m.signIn(session.Identity, false)
		return
	}
	if wasPending {
		m.notifyState(m.State())
	}
}

// apply runs on the dispatcher goroutine, one event at a time.
func (m *Manager) apply(evt backend.SessionEvent) {
	m.mu.Lock()
	m.eventsSeen++
	m.mu.Unlock()

	switch evt.Kind {
	case backend.EventSignedIn, backend.EventTokenRefreshed, backend.EventUserUpdated:
		if evt.Session == nil {
			return
		}
		m.signIn(evt.Session.Identity, evt.Kind == backend.EventSignedIn)
	case backend.EventSignedOut, backend.EventExpired:
		m.signOut(evt.Kind == backend.EventExpired)
	default:
		m.logger.Warn("ignoring unknown session event", "kind", evt.Kind)
	}
}

func (m *Manager) signIn(identity backend.Identity, navigate bool) {
	m.mu.Lock()
	current := m.state.Identity
	sameIdentity := m.state.Status == StatusAuthenticated && current != nil && current.ID == identity.ID
	if sameIdentity {
		// Token refresh or user update: keep the cache, refresh the copy.
		m.state.Identity = &identity
		m.mu.Unlock()
		return
	}
	m.appliedSeq = m.profileSeq
	m.epoch++
	m.state.Status = StatusAuthenticated
	m.state.Pending = false
	m.state.Identity = &identity
	m.state.Profile = nil
	m.mu.Unlock()

	m.refreshProfile(m.ctx, identity.ID, false)

	m.metrics.IncrementSessionTransition(string(StatusAuthenticated))
	m.record(m.ctx, activity.Event{UserID: identity.ID, Action: activity.ActionSignedIn})
	m.notifyState(m.State())
	if navigate {
		m.presenter.Navigate(Navigation{Target: m.routes.Dashboard})
	}
}

func (m *Manager) signOut(expired bool) {
	m.mu.Lock()
	if m.state.Status != StatusAuthenticated {
		m.mu.Unlock()
		return
	}
	userID := m.state.Identity.ID
	// Responses issued before now belong to the old session.
	m.appliedSeq = m.profileSeq
	m.epoch++
	m.state = State{Status: StatusUnauthenticated}
	m.mu.Unlock()

	action := activity.ActionSignedOut
	if expired {
		action = activity.ActionSessionExpired
		m.presenter.Notify(Notification{Message: msgSessionExpired, Severity: SeverityInfo})
	}
	m.metrics.IncrementSessionTransition(string(StatusUnauthenticated))
	m.record(m.ctx, activity.Event{UserID: userID, Action: action})
	m.notifyState(m.State())
	m.presenter.Navigate(Navigation{Target: m.routes.Landing})
}

func (m *Manager) snapshotLocked() State {
	out := State{Status: m.state.Status, Pending: m.state.Pending}
	if m.state.Identity != nil {
		identity := *m.state.Identity
		out.Identity = &identity
	}
	if m.state.Profile != nil {
		profile := *m.state.Profile
		out.Profile = &profile
	}
	return out
}

func (m *Manager) notifyState(state State) {
	m.listenersMu.Lock()
	listeners := make([]StateListener, 0, len(m.stateListeners))
	for _, key := range sortedKeys(m.stateListeners) {
		listeners = append(listeners, m.stateListeners[key])
	}
	m.listenersMu.Unlock()
	for _, l := range listeners {
		l(state)
	}
}

func (m *Manager) notifyProfile(profile *Profile) {
	m.listenersMu.Lock()
	listeners := make([]ProfileListener, 0, len(m.profileListeners))
	for _, key := range sortedKeys(m.profileListeners) {
		listeners = append(listeners, m.profileListeners[key])
	}
	m.listenersMu.Unlock()
	for _, l := range listeners {
		var cp *Profile
		if profile != nil {
			p := *profile
			cp = &p
		}
		l(cp)
	}
}

func (m *Manager) record(ctx context.Context, event activity.Event) {
	if m.activity == nil {
		return
	}
	m.activity.Record(ctx, event)
}

var errNoProfile = errors.New("profile row missing")
